// Package agents tracks live agent sessions: device state, call counters
// with running averages and idle time. All methods run on the engine worker.
package agents

import (
	"sort"
	"time"

	"github.com/dennisdiepolder/monti/pbxlive/internal/broadcast"
	"github.com/dennisdiepolder/monti/pbxlive/internal/sched"
	"github.com/dennisdiepolder/monti/pbxlive/internal/types"
	"github.com/rs/zerolog"
)

// Persister is the subset of the persistence gateway used for agents
type Persister interface {
	SaveAgent(agent types.AgentRecord)
	DeleteAgent(extension string)
}

// ShiftNotifier receives online/offline transitions
type ShiftNotifier interface {
	OnOnline(agentID string)
	OnOffline(agentID, reason string)
}

type session struct {
	rec              types.AgentRecord
	statusSince      time.Time
	currentCallStart *time.Time
	reported         bool // a device state has been seen since the session was created

	idleTask sched.Task
	idleMark time.Time
}

// Tracker owns agent sessions. Sessions exist only for extensions in the
// identity directory.
type Tracker struct {
	directory map[string]types.AgentRecord
	sessions  map[string]*session

	idleInterval time.Duration
	timers       sched.Timers
	now          sched.Clock
	persist      Persister
	shifts       ShiftNotifier
	out          broadcast.Broadcaster
	logger       zerolog.Logger
}

// NewTracker creates a tracker with an empty directory
func NewTracker(idleInterval time.Duration, timers sched.Timers, clock sched.Clock, persist Persister, shifts ShiftNotifier, out broadcast.Broadcaster, logger zerolog.Logger) *Tracker {
	return &Tracker{
		directory:    make(map[string]types.AgentRecord),
		sessions:     make(map[string]*session),
		idleInterval: idleInterval,
		timers:       timers,
		now:          clock,
		persist:      persist,
		shifts:       shifts,
		out:          out,
		logger:       logger.With().Str("component", "agents").Logger(),
	}
}

// LoadIdentities replaces the directory. Sessions whose identity is gone are
// destroyed; live sessions keep their in-memory counters.
func (t *Tracker) LoadIdentities(records []types.AgentRecord) {
	next := make(map[string]types.AgentRecord, len(records))
	for _, r := range records {
		if r.Extension == "" {
			continue
		}
		next[r.Extension] = r
	}

	for ext := range t.sessions {
		if _, ok := next[ext]; !ok {
			t.destroy(ext)
		}
	}
	for ext, r := range next {
		if s, ok := t.sessions[ext]; ok {
			s.rec.Name = r.Name
			s.rec.Queues = r.Queues
		}
	}
	t.directory = next

	t.logger.Debug().Int("identities", len(next)).Msg("identity directory loaded")
}

// UpsertIdentity adds or renames an identity, keeping any counters already known
func (t *Tracker) UpsertIdentity(r types.AgentRecord) types.AgentRecord {
	if s, ok := t.sessions[r.Extension]; ok {
		s.rec.Name = r.Name
		s.rec.Queues = r.Queues
		r = s.rec
	} else if existing, ok := t.directory[r.Extension]; ok {
		existing.Name = r.Name
		existing.Queues = r.Queues
		r = existing
	}
	if r.Status == "" {
		r.Status = types.AgentUnknown
	}
	r.UpdatedAt = t.now().UTC()
	t.directory[r.Extension] = r
	t.persist.SaveAgent(r)
	return r
}

// RemoveIdentity deletes an identity and destroys its session
func (t *Tracker) RemoveIdentity(extension string) bool {
	if _, ok := t.directory[extension]; !ok {
		return false
	}
	delete(t.directory, extension)
	t.destroy(extension)
	t.persist.DeleteAgent(extension)
	t.BroadcastStatus()
	return true
}

func (t *Tracker) destroy(extension string) {
	s, ok := t.sessions[extension]
	if !ok {
		return
	}
	if s.idleTask != nil {
		s.idleTask.Cancel()
	}
	delete(t.sessions, extension)
	t.logger.Info().Str("extension", extension).Msg("agent session destroyed")
}

// EnsureSession returns the session for a known extension, creating it on
// first reference. Unknown extensions yield false.
func (t *Tracker) EnsureSession(extension string) bool {
	return t.session(extension) != nil
}

func (t *Tracker) session(extension string) *session {
	if s, ok := t.sessions[extension]; ok {
		t.rollDay(s)
		return s
	}

	rec, ok := t.directory[extension]
	if !ok {
		t.logger.Debug().Str("extension", extension).Msg("event for unknown agent dropped")
		return nil
	}

	now := t.now()
	// Live state is unknown until the PBX reports it
	rec.Status = types.AgentUnknown
	s := &session{rec: rec, statusSince: now}
	t.rollDay(s)
	t.sessions[extension] = s
	return s
}

// rollDay resets today's counters when the local date has changed
func (t *Tracker) rollDay(s *session) {
	today := t.now().Format(types.DateKeyFormat)
	if s.rec.StatsDate == today {
		return
	}
	s.rec.StatsDate = today
	s.rec.Today = types.AgentCounters{}
}

// OnPresenceChange applies a device state report
func (t *Tracker) OnPresenceChange(extension, deviceState string) {
	s := t.session(extension)
	if s == nil {
		return
	}
	t.setStatus(s, StatusForDeviceState(deviceState), deviceState)
	t.save(s)
	t.BroadcastStatus()
}

// OnCallNotified counts a call offered to the agent
func (t *Tracker) OnCallNotified(extension string) {
	s := t.session(extension)
	if s == nil {
		return
	}
	s.rec.Today.TotalCalls++
	s.rec.Overall.TotalCalls++
	s.rec.LastActivity = t.now()
	t.save(s)
	t.BroadcastStatus()
}

// OnCallAnswered counts an answer and folds hold and ring time into the averages
func (t *Tracker) OnCallAnswered(extension string, holdSeconds, ringSeconds float64) {
	s := t.session(extension)
	if s == nil {
		return
	}
	for _, c := range []*types.AgentCounters{&s.rec.Today, &s.rec.Overall} {
		c.Answered++
		c.AvgHoldTime = runningAverage(c.AvgHoldTime, c.Answered, holdSeconds)
		c.AvgRingTime = runningAverage(c.AvgRingTime, c.Answered, ringSeconds)
	}

	now := t.now()
	t.setStatus(s, types.AgentInUse, s.rec.DeviceState)
	s.currentCallStart = &now
	t.save(s)
	t.BroadcastStatus()
}

// OnCallEnded folds talk time into the average and returns the agent to idle
func (t *Tracker) OnCallEnded(extension string, talkSeconds float64) {
	s := t.session(extension)
	if s == nil {
		return
	}
	for _, c := range []*types.AgentCounters{&s.rec.Today, &s.rec.Overall} {
		c.AvgTalkTime = runningAverage(c.AvgTalkTime, c.TotalCalls, talkSeconds)
	}

	t.setStatus(s, types.AgentIdle, s.rec.DeviceState)
	t.save(s)
	t.BroadcastStatus()
}

// OnRingNoAnswer counts a missed offer. Total was counted at notify time.
func (t *Tracker) OnRingNoAnswer(extension string, ringSeconds float64) {
	s := t.session(extension)
	if s == nil {
		return
	}
	for _, c := range []*types.AgentCounters{&s.rec.Today, &s.rec.Overall} {
		c.Missed++
		c.AvgRingTime = runningAverage(c.AvgRingTime, c.TotalCalls, ringSeconds)
	}
	s.rec.LastActivity = t.now()
	t.save(s)
	t.BroadcastStatus()
}

// setStatus moves the session to status, driving the idle sampler and shifts
func (t *Tracker) setStatus(s *session, status types.AgentStatus, deviceState string) {
	now := t.now()
	prev := s.rec.Status
	first := !s.reported

	s.reported = true
	s.rec.DeviceState = deviceState
	s.rec.LastActivity = now

	if status == prev && !first {
		return
	}
	s.rec.Status = status
	s.statusSince = now
	if status != types.AgentInUse {
		s.currentCallStart = nil
	}

	if status == types.AgentIdle {
		t.startIdle(s)
	} else {
		t.stopIdle(s)
	}

	t.logger.Debug().
		Str("extension", s.rec.Extension).
		Str("from", string(prev)).
		Str("to", string(status)).
		Msg("agent status changed")

	if t.shifts == nil {
		return
	}
	// The first report after a session is created always informs shifts, so
	// a shift restored as open is closed out if the agent turns out offline.
	if first || status.Online() != prev.Online() {
		if status.Online() {
			t.shifts.OnOnline(s.rec.Extension)
		} else {
			t.shifts.OnOffline(s.rec.Extension, string(status))
		}
	}
}

func (t *Tracker) startIdle(s *session) {
	if s.idleTask != nil {
		return
	}
	s.idleMark = t.now()
	t.scheduleIdle(s)
}

func (t *Tracker) scheduleIdle(s *session) {
	ext := s.rec.Extension
	s.idleTask = t.timers.AfterFunc(t.idleInterval, func() {
		cur, ok := t.sessions[ext]
		if !ok || cur != s {
			return
		}
		t.sampleIdle(s)
		t.scheduleIdle(s)
	})
}

func (t *Tracker) stopIdle(s *session) {
	if s.idleTask == nil {
		return
	}
	s.idleTask.Cancel()
	s.idleTask = nil
	t.sampleIdle(s)
}

// sampleIdle adds the idle time since the last mark
func (t *Tracker) sampleIdle(s *session) {
	now := t.now()
	elapsed := now.Sub(s.idleMark).Seconds()
	s.idleMark = now
	if elapsed <= 0 {
		return
	}
	t.rollDay(s)
	s.rec.Today.IdleSeconds += elapsed
	s.rec.Overall.IdleSeconds += elapsed
}

func (t *Tracker) save(s *session) {
	s.rec.UpdatedAt = t.now().UTC()
	t.directory[s.rec.Extension] = s.rec
	t.persist.SaveAgent(s.rec)
}

// Flush persists every live session, including idle time sampled so far
func (t *Tracker) Flush() {
	for _, ext := range t.extensions() {
		t.save(t.sessions[ext])
	}
}

// Views returns every live session with alerts evaluated now
func (t *Tracker) Views() []types.AgentView {
	now := t.now()
	views := make([]types.AgentView, 0, len(t.sessions))
	for _, ext := range t.extensions() {
		s := t.sessions[ext]
		v := types.AgentView{
			Extension:        s.rec.Extension,
			Name:             s.rec.Name,
			Queues:           s.rec.Queues,
			Status:           s.rec.Status,
			DeviceState:      s.rec.DeviceState,
			StatusSince:      s.statusSince,
			LastActivity:     s.rec.LastActivity,
			CurrentCallStart: s.currentCallStart,
			Today:            s.rec.Today,
			Overall:          s.rec.Overall,
		}
		if s.idleTask != nil {
			pending := now.Sub(s.idleMark).Seconds()
			v.Today.IdleSeconds += pending
			v.Overall.IdleSeconds += pending
		}
		v.Alerts = CheckAlerts(v, now)
		views = append(views, v)
	}
	return views
}

// View returns one agent's live view
func (t *Tracker) View(extension string) (types.AgentView, bool) {
	for _, v := range t.Views() {
		if v.Extension == extension {
			return v, true
		}
	}
	return types.AgentView{}, false
}

// Online returns the number of agents with an online status
func (t *Tracker) Online() int {
	n := 0
	for _, s := range t.sessions {
		if s.rec.Status.Online() {
			n++
		}
	}
	return n
}

// Known reports whether the extension is in the identity directory
func (t *Tracker) Known(extension string) bool {
	_, ok := t.directory[extension]
	return ok
}

// BroadcastStatus publishes the agent status list
func (t *Tracker) BroadcastStatus() {
	t.out.Broadcast(broadcast.TopicAgentStatus, t.Views())
}

func (t *Tracker) extensions() []string {
	exts := make([]string, 0, len(t.sessions))
	for ext := range t.sessions {
		exts = append(exts, ext)
	}
	sort.Strings(exts)
	return exts
}

// runningAverage folds x into avg where n counts x itself
func runningAverage(avg float64, n int, x float64) float64 {
	if n <= 1 {
		return x
	}
	return (avg*float64(n-1) + x) / float64(n)
}
