// Package callqueue tracks callers waiting in PBX queues, queue members and
// per-queue daily statistics. Everything here runs on the engine worker.
package callqueue

import (
	"sort"

	"github.com/dennisdiepolder/monti/pbxlive/internal/broadcast"
	"github.com/dennisdiepolder/monti/pbxlive/internal/event"
	"github.com/dennisdiepolder/monti/pbxlive/internal/sched"
	"github.com/dennisdiepolder/monti/pbxlive/internal/types"
	"github.com/rs/zerolog"
)

// CallPersister is the subset of the persistence gateway used for queue attribution
type CallPersister interface {
	UpdateCall(correlationID string, update types.CallUpdate)
}

// Departure is a caller removed from a queue
type Departure struct {
	QueueID       string
	CorrelationID string
	WaitSeconds   float64
	Outcome       string
	JoinDay       string
}

// Presence owns waiting callers keyed by call id and members keyed by
// queue and location
type Presence struct {
	callers map[string]*types.QueueCaller
	members map[string]map[string]*types.QueueMember

	catalog *Catalog
	now     sched.Clock
	persist CallPersister
	out     broadcast.Broadcaster
	logger  zerolog.Logger
}

// NewPresence creates an empty presence tracker
func NewPresence(catalog *Catalog, clock sched.Clock, persist CallPersister, out broadcast.Broadcaster, logger zerolog.Logger) *Presence {
	return &Presence{
		callers: make(map[string]*types.QueueCaller),
		members: make(map[string]map[string]*types.QueueMember),
		catalog: catalog,
		now:     clock,
		persist: persist,
		out:     out,
		logger:  logger.With().Str("component", "queues").Logger(),
	}
}

// OnQueueJoin inserts a waiting caller. It reports false for a repeated join.
func (p *Presence) OnQueueJoin(e event.QueueJoin) bool {
	if _, ok := p.callers[e.CallID]; ok {
		return false
	}

	now := p.now()
	p.callers[e.CallID] = &types.QueueCaller{
		CallID:        e.CallID,
		QueueID:       e.QueueID,
		QueueName:     p.catalog.Name(e.QueueID),
		CorrelationID: e.CorrelationID,
		Position:      e.Position,
		Caller:        e.Caller,
		WaitStart:     now,
		JoinDay:       now.Format(types.DateKeyFormat),
	}

	if e.CorrelationID != "" {
		p.persist.UpdateCall(e.CorrelationID, types.CallUpdate{QueueID: types.Ptr(e.QueueID)})
	}

	p.logger.Debug().
		Str("queue", e.QueueID).
		Str("call_id", e.CallID).
		Int("position", e.Position).
		Msg("caller joined queue")

	p.BroadcastCallers()
	return true
}

// OnQueueLeave removes a caller that was handed to an agent
func (p *Presence) OnQueueLeave(callID string) (Departure, bool) {
	return p.depart(callID, types.QueueOutcomeAnswered)
}

// OnQueueAbandon removes a caller that hung up while waiting
func (p *Presence) OnQueueAbandon(callID string) (Departure, bool) {
	return p.depart(callID, types.QueueOutcomeAbandoned)
}

func (p *Presence) depart(callID, outcome string) (Departure, bool) {
	c, ok := p.callers[callID]
	if !ok {
		// Abandon is followed by a leave for the same caller
		return Departure{}, false
	}
	delete(p.callers, callID)

	d := Departure{
		QueueID:       c.QueueID,
		CorrelationID: c.CorrelationID,
		WaitSeconds:   p.now().Sub(c.WaitStart).Seconds(),
		Outcome:       outcome,
		JoinDay:       c.JoinDay,
	}

	if c.CorrelationID != "" {
		p.persist.UpdateCall(c.CorrelationID, types.CallUpdate{
			QueueID:      types.Ptr(c.QueueID),
			WaitSeconds:  types.Ptr(d.WaitSeconds),
			QueueOutcome: types.Ptr(outcome),
		})
	}

	p.logger.Debug().
		Str("queue", c.QueueID).
		Str("call_id", callID).
		Str("outcome", outcome).
		Float64("wait", d.WaitSeconds).
		Msg("caller left queue")

	p.BroadcastCallers()
	return d, true
}

// OnQueueMemberReport upserts a member by queue and location
func (p *Presence) OnQueueMemberReport(e event.QueueMember) {
	byLocation, ok := p.members[e.QueueID]
	if !ok {
		byLocation = make(map[string]*types.QueueMember)
		p.members[e.QueueID] = byLocation
	}

	byLocation[e.Location] = &types.QueueMember{
		QueueID:        e.QueueID,
		QueueName:      p.catalog.Name(e.QueueID),
		Location:       e.Location,
		Name:           e.Name,
		StateInterface: e.StateInterface,
		Status:         e.Status,
		Paused:         e.Paused,
		PausedReason:   e.PausedReason,
		InCall:         e.InCall,
		CallsTaken:     e.CallsTaken,
		LastCall:       e.LastCall,
		Penalty:        e.Penalty,
		UpdatedAt:      p.now(),
	}

	p.BroadcastMembers()
}

// OnQueueMemberRemoved drops a member location from a queue
func (p *Presence) OnQueueMemberRemoved(e event.QueueMemberRemoved) {
	byLocation, ok := p.members[e.QueueID]
	if !ok {
		return
	}
	if _, ok := byLocation[e.Location]; !ok {
		return
	}
	delete(byLocation, e.Location)
	if len(byLocation) == 0 {
		delete(p.members, e.QueueID)
	}
	p.BroadcastMembers()
}

// Callers returns waiting callers with wait times computed now, longest waiting first
func (p *Presence) Callers() []types.QueueCaller {
	now := p.now()
	out := make([]types.QueueCaller, 0, len(p.callers))
	for _, c := range p.callers {
		entry := *c
		entry.WaitSeconds = now.Sub(c.WaitStart).Seconds()
		out = append(out, entry)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].QueueID != out[j].QueueID {
			return out[i].QueueID < out[j].QueueID
		}
		if !out[i].WaitStart.Equal(out[j].WaitStart) {
			return out[i].WaitStart.Before(out[j].WaitStart)
		}
		return out[i].CallID < out[j].CallID
	})
	return out
}

// Members returns the flattened member list ordered by queue and location
func (p *Presence) Members() []types.QueueMember {
	var out []types.QueueMember
	for _, byLocation := range p.members {
		for _, m := range byLocation {
			out = append(out, *m)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].QueueID != out[j].QueueID {
			return out[i].QueueID < out[j].QueueID
		}
		return out[i].Location < out[j].Location
	})
	if out == nil {
		out = []types.QueueMember{}
	}
	return out
}

// Waiting returns the number of waiting callers
func (p *Presence) Waiting() int {
	return len(p.callers)
}

// BroadcastCallers publishes the queue caller list
func (p *Presence) BroadcastCallers() {
	p.out.Broadcast(broadcast.TopicQueueCallers, p.Callers())
}

// BroadcastMembers publishes the queue member list
func (p *Presence) BroadcastMembers() {
	p.out.Broadcast(broadcast.TopicQueueMembers, p.Members())
}
