package agents

import (
	"math"
	"testing"
	"time"

	"github.com/dennisdiepolder/monti/pbxlive/internal/broadcast"
	"github.com/dennisdiepolder/monti/pbxlive/internal/sched"
	"github.com/dennisdiepolder/monti/pbxlive/internal/types"
	"github.com/rs/zerolog"
)

type fakePersister struct {
	saved   map[string]types.AgentRecord
	deleted []string
}

func (p *fakePersister) SaveAgent(r types.AgentRecord) { p.saved[r.Extension] = r }
func (p *fakePersister) DeleteAgent(ext string)        { p.deleted = append(p.deleted, ext) }

type transition struct {
	agent  string
	online bool
	reason string
}

type fakeShifts struct {
	got []transition
}

func (f *fakeShifts) OnOnline(agentID string) {
	f.got = append(f.got, transition{agent: agentID, online: true})
}

func (f *fakeShifts) OnOffline(agentID, reason string) {
	f.got = append(f.got, transition{agent: agentID, reason: reason})
}

type harness struct {
	clock   *sched.Fake
	persist *fakePersister
	shifts  *fakeShifts
	out     *broadcast.Recorder
	tracker *Tracker
}

func newHarness() *harness {
	h := &harness{
		clock:   sched.NewFake(time.Date(2026, 3, 2, 8, 0, 0, 0, time.Local)),
		persist: &fakePersister{saved: make(map[string]types.AgentRecord)},
		shifts:  &fakeShifts{},
		out:     broadcast.NewRecorder(),
	}
	h.tracker = NewTracker(10*time.Second, h.clock, h.clock.Now, h.persist, h.shifts, h.out, zerolog.Nop())
	h.tracker.LoadIdentities([]types.AgentRecord{
		{Extension: "1001", Name: "Alice", Queues: []string{"support"}},
		{Extension: "1002", Name: "Bob"},
	})
	return h
}

func TestUnknownExtensionIsDropped(t *testing.T) {
	h := newHarness()

	h.tracker.OnPresenceChange("9999", "NOT_INUSE")
	h.tracker.OnCallNotified("9999")

	if h.tracker.EnsureSession("9999") {
		t.Error("session must not be created for an unknown identity")
	}
	if len(h.persist.saved) != 0 || len(h.out.Messages()) != 0 {
		t.Error("unknown agent events must have no effect")
	}
	if !h.tracker.EnsureSession("1001") {
		t.Error("known identity should get a session")
	}
}

func TestAverageCorrectness(t *testing.T) {
	h := newHarness()
	holds := []float64{12, 7, 30, 1, 19}

	for _, hold := range holds {
		h.tracker.OnCallNotified("1001")
		h.tracker.OnCallAnswered("1001", hold, 4)
	}

	var sum float64
	for _, x := range holds {
		sum += x
	}
	want := sum / float64(len(holds))

	v, _ := h.tracker.View("1001")
	if math.Abs(v.Today.AvgHoldTime-want) > 1e-9 || math.Abs(v.Overall.AvgHoldTime-want) > 1e-9 {
		t.Errorf("avg hold today=%.6f overall=%.6f, want %.6f", v.Today.AvgHoldTime, v.Overall.AvgHoldTime, want)
	}
	if v.Today.Answered != 5 || v.Today.TotalCalls != 5 || v.Today.AvgRingTime != 4 {
		t.Errorf("unexpected counters %+v", v.Today)
	}
}

func TestTodayAndOverallAveragedIndependently(t *testing.T) {
	h := newHarness()
	h.tracker.LoadIdentities([]types.AgentRecord{{
		Extension: "1001",
		StatsDate: "2026-03-01",
		Today:     types.AgentCounters{TotalCalls: 9, Answered: 9, AvgHoldTime: 99},
		Overall:   types.AgentCounters{TotalCalls: 3, Answered: 3, AvgHoldTime: 10},
	}})

	h.tracker.OnCallNotified("1001")
	h.tracker.OnCallAnswered("1001", 30, 0)

	v, _ := h.tracker.View("1001")
	// Yesterday's block is reset, overall keeps its history
	if v.Today.Answered != 1 || v.Today.AvgHoldTime != 30 {
		t.Errorf("today = %+v", v.Today)
	}
	if v.Overall.Answered != 4 || v.Overall.AvgHoldTime != 15 {
		t.Errorf("overall = %+v", v.Overall)
	}
}

func TestTalkAndRingNoAnswerUseTotalCalls(t *testing.T) {
	h := newHarness()

	h.tracker.OnCallNotified("1001")
	h.tracker.OnCallAnswered("1001", 0, 2)
	h.tracker.OnCallEnded("1001", 120)

	h.tracker.OnCallNotified("1001")
	h.tracker.OnRingNoAnswer("1001", 20)

	v, _ := h.tracker.View("1001")
	if v.Today.TotalCalls != 2 || v.Today.Missed != 1 || v.Today.Answered != 1 {
		t.Fatalf("counters = %+v", v.Today)
	}
	if v.Today.AvgTalkTime != 120 {
		t.Errorf("avg talk = %.2f, want 120", v.Today.AvgTalkTime)
	}
	// (2*1 + 20) / 2
	if v.Today.AvgRingTime != 11 {
		t.Errorf("avg ring = %.2f, want 11", v.Today.AvgRingTime)
	}
	if v.Status != types.AgentIdle {
		t.Errorf("status after call end = %s", v.Status)
	}
}

func TestIdleSampler(t *testing.T) {
	h := newHarness()

	h.tracker.OnPresenceChange("1001", "NOT_INUSE")
	h.clock.Advance(35 * time.Second)

	if h.clock.Pending() != 1 {
		t.Fatalf("expected one idle task pending, got %d", h.clock.Pending())
	}
	v, _ := h.tracker.View("1001")
	if v.Today.IdleSeconds != 35 {
		t.Errorf("idle = %.0f, want 35", v.Today.IdleSeconds)
	}

	h.tracker.OnPresenceChange("1001", "INUSE")
	if h.clock.Pending() != 0 {
		t.Errorf("idle task should be cancelled, %d pending", h.clock.Pending())
	}
	h.clock.Advance(time.Minute)

	v, _ = h.tracker.View("1001")
	if v.Today.IdleSeconds != 35 || v.Overall.IdleSeconds != 35 {
		t.Errorf("idle grew while in use: %.0f", v.Today.IdleSeconds)
	}
}

func TestTransitionsDriveShifts(t *testing.T) {
	h := newHarness()

	h.tracker.OnPresenceChange("1001", "Not in use")
	h.tracker.OnPresenceChange("1001", "RINGING")   // still online
	h.tracker.OnPresenceChange("1001", "UNAVAILABLE") // offline
	h.tracker.OnPresenceChange("1001", "INVALID")     // still offline
	h.tracker.OnPresenceChange("1001", "INUSE")       // online again

	want := []transition{
		{agent: "1001", online: true},
		{agent: "1001", reason: "unavailable"},
		{agent: "1001", online: true},
	}
	if len(h.shifts.got) != len(want) {
		t.Fatalf("transitions = %+v", h.shifts.got)
	}
	for i := range want {
		if h.shifts.got[i] != want[i] {
			t.Errorf("transition %d = %+v, want %+v", i, h.shifts.got[i], want[i])
		}
	}
}

func TestFirstOfflineReportInformsShifts(t *testing.T) {
	h := newHarness()

	h.tracker.OnPresenceChange("1002", "UNAVAILABLE")

	if len(h.shifts.got) != 1 || h.shifts.got[0].online {
		t.Errorf("expected one offline transition, got %+v", h.shifts.got)
	}
}

func TestRemoveIdentityCancelsIdle(t *testing.T) {
	h := newHarness()
	h.tracker.OnPresenceChange("1001", "NOT_INUSE")

	if !h.tracker.RemoveIdentity("1001") {
		t.Fatal("expected removal")
	}
	if h.clock.Pending() != 0 {
		t.Error("idle task should be cancelled with the session")
	}
	if h.tracker.EnsureSession("1001") {
		t.Error("removed identity must not get a session")
	}
	if len(h.persist.deleted) != 1 {
		t.Error("expected identity deletion to be persisted")
	}
}

func TestRefreshKeepsLiveCounters(t *testing.T) {
	h := newHarness()
	h.tracker.OnCallNotified("1001")

	h.tracker.LoadIdentities([]types.AgentRecord{{Extension: "1001", Name: "Alice Smith"}})

	v, ok := h.tracker.View("1001")
	if !ok || v.Name != "Alice Smith" || v.Today.TotalCalls != 1 {
		t.Errorf("view after refresh = %+v", v)
	}
	if h.tracker.Known("1002") {
		t.Error("1002 was dropped from the directory")
	}
}

func TestUpsertIdentityKeepsCounters(t *testing.T) {
	h := newHarness()
	h.tracker.OnCallNotified("1001")

	r := h.tracker.UpsertIdentity(types.AgentRecord{Extension: "1001", Name: "Alice B"})
	if r.Today.TotalCalls != 1 || r.Name != "Alice B" {
		t.Errorf("upsert lost counters: %+v", r)
	}

	r = h.tracker.UpsertIdentity(types.AgentRecord{Extension: "2001", Name: "Carol"})
	if r.Status != types.AgentUnknown || !h.tracker.Known("2001") {
		t.Errorf("new identity = %+v", r)
	}
}

func TestStatusForDeviceState(t *testing.T) {
	tests := []struct {
		state string
		want  types.AgentStatus
	}{
		{"NOT_INUSE", types.AgentIdle},
		{"Not in use", types.AgentIdle},
		{"INUSE", types.AgentInUse},
		{"On Hold", types.AgentInUse},
		{"BUSY", types.AgentBusy},
		{"RINGINUSE", types.AgentRinging},
		{"Ringing", types.AgentRinging},
		{"UNAVAILABLE", types.AgentUnavailable},
		{"Invalid", types.AgentUnavailable},
		{"UNKNOWN", types.AgentUnknown},
		{"", types.AgentUnknown},
	}

	for _, tt := range tests {
		if got := StatusForDeviceState(tt.state); got != tt.want {
			t.Errorf("StatusForDeviceState(%q) = %s, want %s", tt.state, got, tt.want)
		}
	}
}

func TestCheckAlerts(t *testing.T) {
	now := time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)
	callStart := now.Add(-31 * time.Minute)

	tests := []struct {
		name string
		view types.AgentView
		want string
	}{
		{"ringing short", types.AgentView{Status: types.AgentRinging, StatusSince: now.Add(-10 * time.Second)}, ""},
		{"ringing long", types.AgentView{Status: types.AgentRinging, StatusSince: now.Add(-31 * time.Second)}, "ringing_long"},
		{"call long", types.AgentView{Status: types.AgentInUse, StatusSince: now, CurrentCallStart: &callStart}, "call_long"},
		{"unavailable", types.AgentView{Status: types.AgentUnavailable, StatusSince: now}, "unavailable"},
		{"idle", types.AgentView{Status: types.AgentIdle, StatusSince: now.Add(-time.Hour)}, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			alerts := CheckAlerts(tt.view, now)
			if tt.want == "" {
				if len(alerts) != 0 {
					t.Errorf("expected no alerts, got %+v", alerts)
				}
				return
			}
			if len(alerts) != 1 || alerts[0].Type != tt.want {
				t.Errorf("expected %s, got %+v", tt.want, alerts)
			}
		})
	}
}
