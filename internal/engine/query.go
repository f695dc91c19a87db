package engine

import (
	"context"

	"github.com/dennisdiepolder/monti/pbxlive/internal/broadcast"
	"github.com/dennisdiepolder/monti/pbxlive/internal/types"
)

// Snapshot is the full live state as sent to a newly attached dashboard
type Snapshot struct {
	OngoingCalls []types.CallView         `json:"ongoingCalls"`
	QueueCallers []types.QueueCaller      `json:"queueCallers"`
	QueueMembers []types.QueueMember      `json:"queueMembers"`
	Agents       []types.AgentView        `json:"agents"`
	QueueStats   types.QueueStatsSnapshot `json:"queueStats"`
	OpenShifts   []types.ShiftRecord      `json:"openShifts"`
}

func (e *Engine) snapshot() Snapshot {
	return Snapshot{
		OngoingCalls: e.calls.Ongoing(),
		QueueCallers: e.queues.Callers(),
		QueueMembers: e.queues.Members(),
		Agents:       e.agents.Views(),
		QueueStats:   e.stats.Snapshot(e.queues.Waiting()),
		OpenShifts:   e.shifts.OpenShifts(),
	}
}

// Snapshot reads the live state on the worker
func (e *Engine) Snapshot(ctx context.Context) (Snapshot, error) {
	var s Snapshot
	err := e.Do(ctx, func() { s = e.snapshot() })
	return s, err
}

// Resync sends every live snapshot topic to a single subscriber
func (e *Engine) Resync(sub broadcast.Subscriber) {
	e.Post(func() {
		s := e.snapshot()
		e.out.SendTo(sub, broadcast.TopicOngoingCalls, s.OngoingCalls)
		e.out.SendTo(sub, broadcast.TopicQueueCallers, s.QueueCallers)
		e.out.SendTo(sub, broadcast.TopicQueueMembers, s.QueueMembers)
		e.out.SendTo(sub, broadcast.TopicAgentStatus, s.Agents)
		e.out.SendTo(sub, broadcast.TopicQueueStats, s.QueueStats)
	})
}

// Agent returns one agent's live view
func (e *Engine) Agent(ctx context.Context, extension string) (types.AgentView, bool, error) {
	var (
		v  types.AgentView
		ok bool
	)
	err := e.Do(ctx, func() { v, ok = e.agents.View(extension) })
	return v, ok, err
}

// Call returns one call's live view
func (e *Engine) Call(ctx context.Context, correlationID string) (types.CallView, bool, error) {
	var (
		v  types.CallView
		ok bool
	)
	err := e.Do(ctx, func() { v, ok = e.calls.Call(correlationID) })
	return v, ok, err
}

// UpsertAgent adds or updates a roster entry
func (e *Engine) UpsertAgent(ctx context.Context, r types.AgentRecord) (types.AgentRecord, error) {
	var out types.AgentRecord
	err := e.Do(ctx, func() {
		out = e.agents.UpsertIdentity(r)
		e.agents.BroadcastStatus()
	})
	return out, err
}

// RemoveAgent deletes a roster entry and its live session
func (e *Engine) RemoveAgent(ctx context.Context, extension string) (bool, error) {
	var removed bool
	err := e.Do(ctx, func() { removed = e.agents.RemoveIdentity(extension) })
	return removed, err
}
