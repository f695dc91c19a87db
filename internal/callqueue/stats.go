package callqueue

import (
	"sort"

	"github.com/dennisdiepolder/monti/pbxlive/internal/sched"
	"github.com/dennisdiepolder/monti/pbxlive/internal/types"
	"github.com/rs/zerolog"
)

// StatsPersister is the subset of the persistence gateway used for queue stats
type StatsPersister interface {
	SaveQueueStats(stats types.QueueStats)
}

type queueDay struct {
	stats types.QueueStats
	sl    *SLTracker
}

// Stats aggregates per-queue counters for the current local day.
// Rates and service level are percentages.
type Stats struct {
	day    string
	queues map[string]*queueDay

	catalog *Catalog
	now     sched.Clock
	persist StatsPersister
	logger  zerolog.Logger
}

// NewStats creates an aggregator for the current day
func NewStats(catalog *Catalog, clock sched.Clock, persist StatsPersister, logger zerolog.Logger) *Stats {
	return &Stats{
		day:     clock().Format(types.DateKeyFormat),
		queues:  make(map[string]*queueDay),
		catalog: catalog,
		now:     clock,
		persist: persist,
		logger:  logger.With().Str("component", "queue-stats").Logger(),
	}
}

// Restore seeds today's counters from persisted records. Records of other days are ignored.
func (s *Stats) Restore(records []types.QueueStats) int {
	n := 0
	for _, r := range records {
		if r.Date != s.day {
			continue
		}
		cfg := s.catalog.Config(r.QueueID)
		sl := NewSLTracker(cfg.SLTarget, cfg.SLThresholdSecs)
		sl.AnsweredInSL = r.ServiceLevel.AnsweredInSL
		sl.TotalOffered = r.Total
		if len(r.Hourly) != 24 {
			r.Hourly = emptyHours()
		}
		s.queues[r.QueueID] = &queueDay{stats: r, sl: sl}
		n++
	}
	return n
}

// RecordJoin counts a call offered to the queue
func (s *Stats) RecordJoin(queueID string) {
	q, hour := s.ref(queueID)
	q.stats.Total++
	q.stats.Hourly[hour].Total++
	q.sl.RecordOffered()
}

// RecordAnswered counts a caller leaving the queue to an agent. joinDay is
// the day the join was counted on; departures of callers offered on an
// earlier day are not counted and false is returned.
func (s *Stats) RecordAnswered(queueID, joinDay string, waitSeconds float64) bool {
	if !s.countedToday(queueID, joinDay) {
		return false
	}
	q, hour := s.ref(queueID)
	q.stats.Answered++
	q.stats.WaitTimeSum += waitSeconds
	q.stats.Hourly[hour].Answered++
	q.sl.RecordAnswer(waitSeconds)
	return true
}

// RecordAbandoned counts a caller hanging up while waiting, with the same
// day rule as RecordAnswered
func (s *Stats) RecordAbandoned(queueID, joinDay string, waitSeconds float64) bool {
	if !s.countedToday(queueID, joinDay) {
		return false
	}
	q, hour := s.ref(queueID)
	q.stats.Abandoned++
	q.stats.WaitTimeSum += waitSeconds
	q.stats.Hourly[hour].Abandoned++
	return true
}

// countedToday reports whether a join counted on joinDay belongs to the
// current day's totals
func (s *Stats) countedToday(queueID, joinDay string) bool {
	s.Rotate()
	if joinDay == s.day {
		return true
	}
	s.logger.Debug().
		Str("queue", queueID).
		Str("joined", joinDay).
		Str("day", s.day).
		Msg("departure of a caller offered on another day not counted")
	return false
}

// RecordMissed counts an agent not answering an offered call
func (s *Stats) RecordMissed(queueID string) {
	q, hour := s.ref(queueID)
	q.stats.Missed++
	q.stats.Hourly[hour].Missed++
}

// RecordTalk adds the talk time of a completed queue call
func (s *Stats) RecordTalk(queueID string, talkSeconds float64) {
	q, _ := s.ref(queueID)
	q.stats.TalkTimeSum += talkSeconds
	q.stats.TalkSamples++
}

// RecordHold adds the hold time of a finalized queue call
func (s *Stats) RecordHold(queueID string, holdSeconds float64) {
	q, _ := s.ref(queueID)
	q.stats.HoldTimeSum += holdSeconds
	q.stats.HoldSamples++
}

// Rotate starts a new day when the local date has changed since the last
// reference. The previous day's records are flushed first.
func (s *Stats) Rotate() bool {
	today := s.now().Format(types.DateKeyFormat)
	if today == s.day {
		return false
	}

	s.Flush()
	s.logger.Info().Str("from", s.day).Str("to", today).Int("queues", len(s.queues)).Msg("rotating queue statistics")
	s.day = today
	s.queues = make(map[string]*queueDay)
	return true
}

// Flush persists every queue's record for the current day
func (s *Stats) Flush() {
	for _, id := range s.ids() {
		s.persist.SaveQueueStats(s.record(s.queues[id]))
	}
}

// Snapshot returns per-queue records plus a roll-up. waiting is the number
// of callers currently queued.
func (s *Stats) Snapshot(waiting int) types.QueueStatsSnapshot {
	snap := types.QueueStatsSnapshot{
		Date:   s.day,
		Queues: make([]types.QueueStats, 0, len(s.queues)),
	}

	var inSL int
	var waitSum float64
	for _, id := range s.ids() {
		r := s.record(s.queues[id])
		snap.Queues = append(snap.Queues, r)

		snap.Summary.Total += r.Total
		snap.Summary.Answered += r.Answered
		snap.Summary.Abandoned += r.Abandoned
		snap.Summary.Missed += r.Missed
		inSL += r.ServiceLevel.AnsweredInSL
		waitSum += r.WaitTimeSum
	}

	sum := &snap.Summary
	sum.AnswerRate = rate(sum.Answered, sum.Total)
	sum.AbandonRate = rate(sum.Abandoned, sum.Total)
	sum.ServiceLevel = serviceLevel(inSL, sum.Total)
	sum.AvgWaitTime = average(waitSum, sum.Answered+sum.Abandoned)
	sum.Waiting = waiting
	return snap
}

// Queue returns today's record of one queue
func (s *Stats) Queue(queueID string) (types.QueueStats, bool) {
	q, ok := s.queues[queueID]
	if !ok {
		return types.QueueStats{}, false
	}
	return s.record(q), true
}

// Day returns the date the counters belong to
func (s *Stats) Day() string {
	return s.day
}

// ref returns the queue's counters and the current hour, rotating first
func (s *Stats) ref(queueID string) (*queueDay, int) {
	s.Rotate()

	q, ok := s.queues[queueID]
	if !ok {
		cfg := s.catalog.Config(queueID)
		q = &queueDay{
			stats: types.QueueStats{
				QueueID:   queueID,
				Date:      s.day,
				QueueName: cfg.Name,
				Hourly:    emptyHours(),
			},
			sl: NewSLTracker(cfg.SLTarget, cfg.SLThresholdSecs),
		}
		s.queues[queueID] = q
	}
	return q, s.now().Hour()
}

// record returns a copy with derived values filled in
func (s *Stats) record(q *queueDay) types.QueueStats {
	r := q.stats
	r.Hourly = append([]types.HourlyBucket(nil), q.stats.Hourly...)
	r.ServiceLevel = q.sl.Snapshot()
	r.AnswerRate = rate(r.Answered, r.Total)
	r.AbandonRate = rate(r.Abandoned, r.Total)
	r.AvgWaitTime = average(r.WaitTimeSum, r.Answered+r.Abandoned)
	r.AvgTalkTime = average(r.TalkTimeSum, r.TalkSamples)
	r.AvgHoldTime = average(r.HoldTimeSum, r.HoldSamples)
	r.UpdatedAt = s.now().UTC()
	return r
}

func (s *Stats) ids() []string {
	ids := make([]string, 0, len(s.queues))
	for id := range s.queues {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func emptyHours() []types.HourlyBucket {
	hours := make([]types.HourlyBucket, 24)
	for h := range hours {
		hours[h].Hour = h
	}
	return hours
}

func rate(n, total int) float64 {
	if total == 0 {
		return 0
	}
	return float64(n) / float64(total) * 100.0
}

func average(sum float64, n int) float64 {
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}
