package storage

import (
	"context"
	"sort"
	"sync"

	"github.com/dennisdiepolder/monti/pbxlive/internal/types"
)

// MemoryStore keeps records in process memory. It follows the same write
// semantics as the database stores and backs offline replays.
type MemoryStore struct {
	mu     sync.Mutex
	calls  map[string]types.CallRecord
	agents map[string]types.AgentRecord
	shifts map[string]map[string]types.ShiftRecord
	stats  map[string]map[string]types.QueueStats
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		calls:  make(map[string]types.CallRecord),
		agents: make(map[string]types.AgentRecord),
		shifts: make(map[string]map[string]types.ShiftRecord),
		stats:  make(map[string]map[string]types.QueueStats),
	}
}

func (s *MemoryStore) CreateCallRecord(_ context.Context, record types.CallRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.calls[record.CorrelationID]
	if !ok {
		s.calls[record.CorrelationID] = record
		return nil
	}
	fillCallRecord(&existing, record)
	s.calls[record.CorrelationID] = existing
	return nil
}

func (s *MemoryStore) UpdateCallRecord(_ context.Context, correlationID string, update types.CallUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.calls[correlationID]
	if !ok {
		r = types.CallRecord{CorrelationID: correlationID}
	}
	applyCallUpdate(&r, update)
	r.UpdatedAt = nowUTC()
	s.calls[correlationID] = r
	return nil
}

// CallRecord returns the stored record for correlationID
func (s *MemoryStore) CallRecord(correlationID string) (types.CallRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.calls[correlationID]
	return r, ok
}

// CallRecords returns every stored call, oldest first
func (s *MemoryStore) CallRecords() []types.CallRecord {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]types.CallRecord, 0, len(s.calls))
	for _, r := range s.calls {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].StartedAt.Equal(out[j].StartedAt) {
			return out[i].CorrelationID < out[j].CorrelationID
		}
		return out[i].StartedAt.Before(out[j].StartedAt)
	})
	return out
}

func (s *MemoryStore) SaveAgent(_ context.Context, agent types.AgentRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.agents[agent.Extension] = agent
	return nil
}

func (s *MemoryStore) DeleteAgent(_ context.Context, extension string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.agents, extension)
	return nil
}

func (s *MemoryStore) ListAgents(_ context.Context) ([]types.AgentRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]types.AgentRecord, 0, len(s.agents))
	for _, a := range s.agents {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Extension < out[j].Extension })
	return out, nil
}

func (s *MemoryStore) SaveShift(_ context.Context, shift types.ShiftRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	byID, ok := s.shifts[shift.AgentID]
	if !ok {
		byID = make(map[string]types.ShiftRecord)
		s.shifts[shift.AgentID] = byID
	}
	byID[shift.ShiftID] = shift
	return nil
}

func (s *MemoryStore) ListOpenShifts(_ context.Context) ([]types.ShiftRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []types.ShiftRecord
	for _, byID := range s.shifts {
		for _, sh := range byID {
			if !sh.Closed() {
				out = append(out, sh)
			}
		}
	}
	sortShifts(out)
	return out, nil
}

func (s *MemoryStore) ListShifts(_ context.Context, agentID string) ([]types.ShiftRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []types.ShiftRecord
	for _, sh := range s.shifts[agentID] {
		out = append(out, sh)
	}
	sortShifts(out)
	return out, nil
}

func (s *MemoryStore) SaveQueueStats(_ context.Context, stats types.QueueStats) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	byDate, ok := s.stats[stats.QueueID]
	if !ok {
		byDate = make(map[string]types.QueueStats)
		s.stats[stats.QueueID] = byDate
	}
	byDate[stats.Date] = stats
	return nil
}

func (s *MemoryStore) ListQueueStats(_ context.Context, queueID string) ([]types.QueueStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []types.QueueStats
	for _, st := range s.stats[queueID] {
		out = append(out, st)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date < out[j].Date })
	return out, nil
}

func (s *MemoryStore) Close() error { return nil }

func sortShifts(shifts []types.ShiftRecord) {
	sort.Slice(shifts, func(i, j int) bool { return shifts[i].StartTime.Before(shifts[j].StartTime) })
}

// fillCallRecord copies the fields of r that dst does not have yet
func fillCallRecord(dst *types.CallRecord, r types.CallRecord) {
	fill := func(field *string, v string) {
		if *field == "" {
			*field = v
		}
	}
	fill(&dst.DateKey, r.DateKey)
	fill(&dst.CallerNumber, r.CallerNumber)
	fill(&dst.CallerName, r.CallerName)
	fill(&dst.Destination, r.Destination)
	fill(&dst.QueueID, r.QueueID)
	fill(&dst.Agent, r.Agent)
	fill(&dst.QueueOutcome, r.QueueOutcome)
	fill(&dst.CauseText, r.CauseText)
	fill(&dst.RecordingPath, r.RecordingPath)
	if dst.Status == "" {
		dst.Status = r.Status
	}
	if dst.StartedAt.IsZero() {
		dst.StartedAt = r.StartedAt
	}
	if dst.AnsweredAt == nil {
		dst.AnsweredAt = r.AnsweredAt
	}
	if dst.EndedAt == nil {
		dst.EndedAt = r.EndedAt
	}
	if dst.UpdatedAt.IsZero() {
		dst.UpdatedAt = r.UpdatedAt
	}
}

func applyCallUpdate(r *types.CallRecord, u types.CallUpdate) {
	if u.Status != nil {
		r.Status = *u.Status
	}
	if u.QueueID != nil {
		r.QueueID = *u.QueueID
	}
	if u.Agent != nil {
		r.Agent = *u.Agent
	}
	if u.QueueOutcome != nil {
		r.QueueOutcome = *u.QueueOutcome
	}
	if u.WaitSeconds != nil {
		r.WaitSeconds = *u.WaitSeconds
	}
	if u.DurationSeconds != nil {
		r.DurationSeconds = *u.DurationSeconds
	}
	if u.HoldSeconds != nil {
		r.HoldSeconds = *u.HoldSeconds
	}
	if u.Cause != nil {
		r.Cause = *u.Cause
	}
	if u.CauseText != nil {
		r.CauseText = *u.CauseText
	}
	if u.RecordingPath != nil {
		r.RecordingPath = *u.RecordingPath
	}
	if u.AnsweredAt != nil {
		r.AnsweredAt = u.AnsweredAt
	}
	if u.EndedAt != nil {
		r.EndedAt = u.EndedAt
	}
}
