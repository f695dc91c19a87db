package storage

import (
	"context"

	"github.com/dennisdiepolder/monti/pbxlive/internal/types"
)

// Store defines the durable storage interface
type Store interface {
	// CreateCallRecord writes the attributes of record that an earlier update
	// has not already set, so it commutes with UpdateCallRecord
	CreateCallRecord(ctx context.Context, record types.CallRecord) error
	// UpdateCallRecord applies the non-nil fields of update, creating the
	// record when it does not exist yet
	UpdateCallRecord(ctx context.Context, correlationID string, update types.CallUpdate) error

	SaveAgent(ctx context.Context, agent types.AgentRecord) error
	DeleteAgent(ctx context.Context, extension string) error
	ListAgents(ctx context.Context) ([]types.AgentRecord, error)

	SaveShift(ctx context.Context, shift types.ShiftRecord) error
	// ListOpenShifts returns every shift without an end time
	ListOpenShifts(ctx context.Context) ([]types.ShiftRecord, error)
	ListShifts(ctx context.Context, agentID string) ([]types.ShiftRecord, error)

	SaveQueueStats(ctx context.Context, stats types.QueueStats) error
	ListQueueStats(ctx context.Context, queueID string) ([]types.QueueStats, error)

	Close() error
}

// NoopStore is a no-op implementation when persistence is disabled
type NoopStore struct{}

func NewNoopStore() *NoopStore { return &NoopStore{} }

func (s *NoopStore) CreateCallRecord(_ context.Context, _ types.CallRecord) error { return nil }
func (s *NoopStore) UpdateCallRecord(_ context.Context, _ string, _ types.CallUpdate) error {
	return nil
}
func (s *NoopStore) SaveAgent(_ context.Context, _ types.AgentRecord) error          { return nil }
func (s *NoopStore) DeleteAgent(_ context.Context, _ string) error                   { return nil }
func (s *NoopStore) ListAgents(_ context.Context) ([]types.AgentRecord, error)       { return nil, nil }
func (s *NoopStore) SaveShift(_ context.Context, _ types.ShiftRecord) error          { return nil }
func (s *NoopStore) ListOpenShifts(_ context.Context) ([]types.ShiftRecord, error)   { return nil, nil }
func (s *NoopStore) ListShifts(_ context.Context, _ string) ([]types.ShiftRecord, error) {
	return nil, nil
}
func (s *NoopStore) SaveQueueStats(_ context.Context, _ types.QueueStats) error { return nil }
func (s *NoopStore) ListQueueStats(_ context.Context, _ string) ([]types.QueueStats, error) {
	return nil, nil
}
func (s *NoopStore) Close() error { return nil }
