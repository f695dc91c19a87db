package callqueue

import (
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/dennisdiepolder/monti/pbxlive/internal/broadcast"
	"github.com/dennisdiepolder/monti/pbxlive/internal/event"
	"github.com/dennisdiepolder/monti/pbxlive/internal/sched"
	"github.com/dennisdiepolder/monti/pbxlive/internal/types"
	"github.com/rs/zerolog"
)

type fakePersister struct {
	updates map[string][]types.CallUpdate
	stats   []types.QueueStats
}

func newFakePersister() *fakePersister {
	return &fakePersister{updates: make(map[string][]types.CallUpdate)}
}

func (p *fakePersister) UpdateCall(id string, u types.CallUpdate) {
	p.updates[id] = append(p.updates[id], u)
}

func (p *fakePersister) SaveQueueStats(s types.QueueStats) {
	p.stats = append(p.stats, s)
}

var start = time.Date(2026, 3, 2, 9, 15, 0, 0, time.Local)

func testCatalog() *Catalog {
	return NewCatalog(60, 80, QueueConfig{ID: "support", Name: "Support", SLThresholdSecs: 20})
}

func newPresence(clock *sched.Fake) (*Presence, *fakePersister, *broadcast.Recorder) {
	persist := newFakePersister()
	out := broadcast.NewRecorder()
	return NewPresence(testCatalog(), clock.Now, persist, out, zerolog.Nop()), persist, out
}

func TestQueueJoinIsIdempotent(t *testing.T) {
	clock := sched.NewFake(start)
	p, persist, _ := newPresence(clock)

	join := event.QueueJoin{QueueID: "support", CallID: "u1", CorrelationID: "C1", Position: 1}
	if !p.OnQueueJoin(join) {
		t.Fatal("first join should insert")
	}
	clock.Advance(5 * time.Second)
	if p.OnQueueJoin(join) {
		t.Error("second join should be a no-op")
	}

	callers := p.Callers()
	if len(callers) != 1 {
		t.Fatalf("expected 1 caller, got %d", len(callers))
	}
	if callers[0].WaitSeconds != 5 {
		t.Errorf("wait = %.0f, want 5 (measured from the first join)", callers[0].WaitSeconds)
	}
	if callers[0].QueueName != "Support" {
		t.Errorf("queue name = %q", callers[0].QueueName)
	}
	if len(persist.updates["C1"]) != 1 {
		t.Errorf("expected one attribution write, got %d", len(persist.updates["C1"]))
	}
}

func TestAbandonThenLeaveCountsOnce(t *testing.T) {
	clock := sched.NewFake(start)
	p, persist, _ := newPresence(clock)

	p.OnQueueJoin(event.QueueJoin{QueueID: "support", CallID: "u1", CorrelationID: "C1"})
	clock.Advance(42 * time.Second)

	d, ok := p.OnQueueAbandon("u1")
	if !ok || d.Outcome != types.QueueOutcomeAbandoned || d.WaitSeconds != 42 {
		t.Fatalf("unexpected departure %+v ok=%v", d, ok)
	}
	if _, ok := p.OnQueueLeave("u1"); ok {
		t.Error("leave after abandon must be a no-op")
	}
	if p.Waiting() != 0 {
		t.Errorf("expected empty queue, got %d", p.Waiting())
	}

	last := persist.updates["C1"][len(persist.updates["C1"])-1]
	if last.QueueOutcome == nil || *last.QueueOutcome != types.QueueOutcomeAbandoned {
		t.Errorf("expected abandoned outcome persisted, got %+v", last)
	}
}

func TestMemberReportUpsertsByLocation(t *testing.T) {
	clock := sched.NewFake(start)
	p, _, out := newPresence(clock)

	p.OnQueueMemberReport(event.QueueMember{QueueID: "support", Location: "PJSIP/1001", Status: "NOT_INUSE"})
	p.OnQueueMemberReport(event.QueueMember{QueueID: "support", Location: "PJSIP/1002", Status: "INUSE"})
	p.OnQueueMemberReport(event.QueueMember{QueueID: "support", Location: "PJSIP/1001", Status: "RINGING", Paused: true})
	p.OnQueueMemberReport(event.QueueMember{QueueID: "sales", Location: "PJSIP/1001", Status: "NOT_INUSE"})

	members := p.Members()
	if len(members) != 3 {
		t.Fatalf("expected 3 members, got %d", len(members))
	}
	if members[0].QueueID != "sales" || members[0].QueueName != "sales" {
		t.Errorf("unknown queue should display its id, got %+v", members[0])
	}
	if members[1].Status != "RINGING" || !members[1].Paused {
		t.Errorf("repeat report should overwrite in place, got %+v", members[1])
	}

	p.OnQueueMemberRemoved(event.QueueMemberRemoved{QueueID: "support", Location: "PJSIP/1002"})
	if len(p.Members()) != 2 {
		t.Errorf("expected 2 members after removal")
	}
	if n := len(out.ByTopic(broadcast.TopicQueueMembers)); n != 5 {
		t.Errorf("expected 5 member broadcasts, got %d", n)
	}
}

func TestStatsServiceLevel(t *testing.T) {
	clock := sched.NewFake(start)
	s := NewStats(testCatalog(), clock.Now, newFakePersister(), zerolog.Nop())

	if snap := s.Snapshot(0); snap.Summary.ServiceLevel != 100 {
		t.Errorf("empty SL = %.1f, want 100", snap.Summary.ServiceLevel)
	}

	for i := 0; i < 4; i++ {
		s.RecordJoin("support")
	}
	s.RecordAnswered("support", s.Day(), 10) // within 20s
	s.RecordAnswered("support", s.Day(), 20) // boundary counts
	s.RecordAnswered("support", s.Day(), 35)
	s.RecordAbandoned("support", s.Day(), 5)

	q, ok := s.Queue("support")
	if !ok {
		t.Fatal("expected support stats")
	}
	if q.ServiceLevel.CurrentSL != 50 {
		t.Errorf("SL = %.1f, want 50", q.ServiceLevel.CurrentSL)
	}
	if q.AnswerRate != 75 || q.AbandonRate != 25 {
		t.Errorf("rates = %.1f/%.1f, want 75/25", q.AnswerRate, q.AbandonRate)
	}
	if q.AvgWaitTime != 17.5 {
		t.Errorf("avg wait = %.2f, want 17.5", q.AvgWaitTime)
	}
	if q.Hourly[9].Total != 4 || q.Hourly[9].Answered != 3 || q.Hourly[9].Abandoned != 1 {
		t.Errorf("unexpected hour 9 bucket %+v", q.Hourly[9])
	}
}

func TestStatsDefaultThresholdForUnknownQueue(t *testing.T) {
	clock := sched.NewFake(start)
	s := NewStats(testCatalog(), clock.Now, newFakePersister(), zerolog.Nop())

	s.RecordJoin("sales")
	s.RecordAnswered("sales", s.Day(), 45)

	q, _ := s.Queue("sales")
	if q.ServiceLevel.ThresholdSecs != 60 || q.ServiceLevel.CurrentSL != 100 {
		t.Errorf("expected default 60s threshold, got %+v", q.ServiceLevel)
	}
}

func TestStatsTalkAndHoldAverages(t *testing.T) {
	clock := sched.NewFake(start)
	s := NewStats(testCatalog(), clock.Now, newFakePersister(), zerolog.Nop())

	s.RecordTalk("support", 100)
	s.RecordTalk("support", 200)
	s.RecordHold("support", 0)
	s.RecordHold("support", 30)
	s.RecordMissed("support")

	q, _ := s.Queue("support")
	if q.AvgTalkTime != 150 || q.AvgHoldTime != 15 {
		t.Errorf("averages talk=%.1f hold=%.1f", q.AvgTalkTime, q.AvgHoldTime)
	}
	if q.Missed != 1 {
		t.Errorf("missed = %d", q.Missed)
	}
}

func TestStatsRotateAtMidnight(t *testing.T) {
	clock := sched.NewFake(time.Date(2026, 3, 2, 23, 59, 0, 0, time.Local))
	persist := newFakePersister()
	s := NewStats(testCatalog(), clock.Now, persist, zerolog.Nop())

	s.RecordJoin("support")
	clock.Advance(2 * time.Minute)

	if !s.Rotate() {
		t.Fatal("expected rotation after midnight")
	}
	if len(persist.stats) != 1 || persist.stats[0].Date != "2026-03-02" || persist.stats[0].Total != 1 {
		t.Fatalf("previous day not flushed: %+v", persist.stats)
	}
	if s.Day() != "2026-03-03" {
		t.Errorf("day = %s", s.Day())
	}
	if _, ok := s.Queue("support"); ok {
		t.Error("counters should reset on rotation")
	}
	if s.Rotate() {
		t.Error("second rotate on the same day should be a no-op")
	}
}

func TestStatsDepartureAcrossMidnight(t *testing.T) {
	clock := sched.NewFake(time.Date(2026, 3, 2, 23, 59, 0, 0, time.Local))
	persist := newFakePersister()
	s := NewStats(testCatalog(), clock.Now, persist, zerolog.Nop())
	p := NewPresence(testCatalog(), clock.Now, persist, broadcast.NewRecorder(), zerolog.Nop())

	join := func(callID string) {
		if p.OnQueueJoin(event.QueueJoin{QueueID: "support", CallID: callID}) {
			s.RecordJoin("support")
		}
	}
	leave := func(callID string) bool {
		d, ok := p.OnQueueLeave(callID)
		return ok && s.RecordAnswered(d.QueueID, d.JoinDay, d.WaitSeconds)
	}

	join("u1")
	join("u2")
	clock.Advance(2 * time.Minute)

	if leave("u1") || leave("u2") {
		t.Error("callers offered yesterday must not count as answered today")
	}
	join("u3")
	if !leave("u3") {
		t.Error("caller offered today should count")
	}

	q, _ := s.Queue("support")
	if q.Total != 1 || q.Answered != 1 {
		t.Errorf("total/answered = %d/%d, want 1/1", q.Total, q.Answered)
	}
	if q.AnswerRate != 100 || q.ServiceLevel.CurrentSL != 100 {
		t.Errorf("rates = %.1f/%.1f, want 100/100", q.AnswerRate, q.ServiceLevel.CurrentSL)
	}

	if len(persist.stats) != 1 || persist.stats[0].Total != 2 || persist.stats[0].Answered != 0 {
		t.Errorf("previous day should keep its two offered calls, got %+v", persist.stats)
	}
}

func TestStatsAbandonFromPreviousDayIgnored(t *testing.T) {
	clock := sched.NewFake(time.Date(2026, 3, 2, 23, 58, 0, 0, time.Local))
	s := NewStats(testCatalog(), clock.Now, newFakePersister(), zerolog.Nop())

	s.RecordJoin("support")
	joined := s.Day()
	clock.Advance(5 * time.Minute)

	if s.RecordAbandoned("support", joined, 300) {
		t.Error("abandon of a caller offered before midnight must not count")
	}
	if q, ok := s.Queue("support"); ok && q.Abandoned != 0 {
		t.Errorf("abandoned = %d, want 0", q.Abandoned)
	}
}

func TestStatsRestoreToday(t *testing.T) {
	clock := sched.NewFake(start)
	s := NewStats(testCatalog(), clock.Now, newFakePersister(), zerolog.Nop())

	n := s.Restore([]types.QueueStats{
		{QueueID: "support", Date: "2026-03-02", Total: 10, Answered: 8, ServiceLevel: types.ServiceLevel{AnsweredInSL: 6}},
		{QueueID: "support", Date: "2026-03-01", Total: 99},
	})
	if n != 1 {
		t.Fatalf("restored %d, want 1", n)
	}
	s.RecordJoin("support")

	q, _ := s.Queue("support")
	if q.Total != 11 || len(q.Hourly) != 24 {
		t.Errorf("unexpected restored record %+v", q)
	}
	if math.Abs(q.ServiceLevel.CurrentSL-6.0/11.0*100) > 1e-9 {
		t.Errorf("SL = %.3f", q.ServiceLevel.CurrentSL)
	}
}

func TestLoadCatalog(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "queues.yaml")
	data := `queues:
  - id: support
    name: Customer Support
    sl_threshold_seconds: 30
    sl_target: 90
  - id: sales
`
	if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
		t.Fatal(err)
	}

	c, err := LoadCatalog(path, 60, 80)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg := c.Config("support"); cfg.Name != "Customer Support" || cfg.SLThresholdSecs != 30 || cfg.SLTarget != 90 {
		t.Errorf("support = %+v", cfg)
	}
	if cfg := c.Config("sales"); cfg.Name != "sales" || cfg.SLThresholdSecs != 60 || cfg.SLTarget != 80 {
		t.Errorf("sales defaults = %+v", cfg)
	}
	if ids := c.IDs(); len(ids) != 2 || ids[0] != "sales" {
		t.Errorf("ids = %v", ids)
	}

	if err := os.WriteFile(path, []byte("queues:\n  - name: nameless\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadCatalog(path, 60, 80); err == nil {
		t.Error("expected error for entry without id")
	}
}
