// Package shift manages agent shifts: an online period that is closed only
// after the agent has stayed offline for a grace period.
package shift

import (
	"sort"
	"time"

	"github.com/dennisdiepolder/monti/pbxlive/internal/sched"
	"github.com/dennisdiepolder/monti/pbxlive/internal/types"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// DefaultGracePeriod is how long an agent may stay offline before the shift ends
const DefaultGracePeriod = 5 * time.Minute

// Persister is the subset of the persistence gateway used for shifts
type Persister interface {
	SaveShift(shift types.ShiftRecord)
}

// session is an open shift and its finalize task, if one is pending
type session struct {
	rec      types.ShiftRecord
	finalize sched.Task
}

// Manager owns the open shift of each agent. At most one finalize task
// exists per shift. Runs on the engine worker.
type Manager struct {
	open  map[string]*session
	grace time.Duration

	timers  sched.Timers
	now     sched.Clock
	persist Persister
	newID   func() string
	logger  zerolog.Logger
}

// NewManager creates a shift manager
func NewManager(grace time.Duration, timers sched.Timers, clock sched.Clock, persist Persister, logger zerolog.Logger) *Manager {
	if grace <= 0 {
		grace = DefaultGracePeriod
	}
	return &Manager{
		open:    make(map[string]*session),
		grace:   grace,
		timers:  timers,
		now:     clock,
		persist: persist,
		newID:   func() string { return uuid.New().String() },
		logger:  logger.With().Str("component", "shifts").Logger(),
	}
}

// OnOnline opens a shift, or cancels the pending end of the open one
func (m *Manager) OnOnline(agentID string) {
	s, ok := m.open[agentID]
	if !ok {
		now := m.now()
		s = &session{rec: types.ShiftRecord{
			AgentID:   agentID,
			ShiftID:   m.newID(),
			StartTime: now,
			UpdatedAt: now.UTC(),
		}}
		m.open[agentID] = s
		m.save(s)
		m.logger.Info().Str("agent", agentID).Str("shift", s.rec.ShiftID).Msg("shift started")
		return
	}

	if s.rec.PendingEndUntil == nil {
		return
	}
	if s.finalize != nil {
		s.finalize.Cancel()
		s.finalize = nil
	}
	s.rec.PendingEndUntil = nil
	s.rec.OfflineReason = ""
	m.save(s)
	m.logger.Info().Str("agent", agentID).Str("shift", s.rec.ShiftID).Msg("agent back within grace period")
}

// OnOffline schedules the end of the open shift after the grace period
func (m *Manager) OnOffline(agentID, reason string) {
	s, ok := m.open[agentID]
	if !ok || s.rec.PendingEndUntil != nil {
		return
	}

	until := m.now().Add(m.grace)
	s.rec.PendingEndUntil = &until
	s.rec.OfflineReason = reason
	m.save(s)
	m.schedule(s, m.grace)

	m.logger.Debug().
		Str("agent", agentID).
		Time("pending_end_until", until).
		Str("reason", reason).
		Msg("shift end pending")
}

func (m *Manager) schedule(s *session, d time.Duration) {
	s.finalize = m.timers.AfterFunc(d, func() {
		// The shift may have been replaced while the task was queued
		if cur, ok := m.open[s.rec.AgentID]; !ok || cur != s {
			return
		}
		m.finalizeShift(s)
	})
}

func (m *Manager) finalizeShift(s *session) {
	end := m.now()
	s.finalize = nil
	s.rec.EndTime = &end
	s.rec.DurationSeconds = end.Sub(s.rec.StartTime).Seconds()
	s.rec.PendingEndUntil = nil
	delete(m.open, s.rec.AgentID)
	m.save(s)

	m.logger.Info().
		Str("agent", s.rec.AgentID).
		Str("shift", s.rec.ShiftID).
		Float64("duration", s.rec.DurationSeconds).
		Str("reason", s.rec.OfflineReason).
		Msg("shift ended")
}

// Restore reloads open shifts after a restart. A pending end still in the
// future is rescheduled for the remaining delay; otherwise the shift is open.
func (m *Manager) Restore(records []types.ShiftRecord) (restored, rescheduled int) {
	sort.Slice(records, func(i, j int) bool {
		return records[i].StartTime.Before(records[j].StartTime)
	})

	now := m.now()
	for _, r := range records {
		if r.Closed() {
			continue
		}
		if prev, ok := m.open[r.AgentID]; ok {
			m.logger.Warn().
				Str("agent", r.AgentID).
				Str("kept", r.ShiftID).
				Str("dropped", prev.rec.ShiftID).
				Msg("multiple open shifts for agent, keeping the latest")
			if prev.finalize != nil {
				prev.finalize.Cancel()
			}
		}

		s := &session{rec: r}
		m.open[r.AgentID] = s

		if r.PendingEndUntil == nil {
			continue
		}
		if remaining := r.PendingEndUntil.Sub(now); remaining > 0 {
			m.schedule(s, remaining)
			continue
		}
		s.rec.PendingEndUntil = nil
		s.rec.OfflineReason = ""
		m.save(s)
	}

	for _, s := range m.open {
		restored++
		if s.finalize != nil {
			rescheduled++
		}
	}
	m.logger.Info().Int("restored", restored).Int("rescheduled", rescheduled).Msg("open shifts restored")
	return restored, rescheduled
}

// Open returns the agent's open shift
func (m *Manager) Open(agentID string) (types.ShiftRecord, bool) {
	s, ok := m.open[agentID]
	if !ok {
		return types.ShiftRecord{}, false
	}
	return s.rec, true
}

// OpenShifts returns all open shifts ordered by agent
func (m *Manager) OpenShifts() []types.ShiftRecord {
	out := make([]types.ShiftRecord, 0, len(m.open))
	for _, s := range m.open {
		out = append(out, s.rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AgentID < out[j].AgentID })
	return out
}

func (m *Manager) save(s *session) {
	s.rec.UpdatedAt = m.now().UTC()
	m.persist.SaveShift(s.rec)
}
