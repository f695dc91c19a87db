package engine

import (
	"github.com/dennisdiepolder/monti/pbxlive/internal/event"
	"github.com/dennisdiepolder/monti/pbxlive/internal/metrics"
	"github.com/dennisdiepolder/monti/pbxlive/internal/types"
)

// dispatch routes one normalized event to the trackers. Worker only.
func (e *Engine) dispatch(ev event.Event) {
	switch ev := ev.(type) {
	case event.RingStart:
		e.calls.OnRingStart(ev)

	case event.BridgeEnter:
		e.bridges.OnBridgeMembership(ev)

	case event.BridgeDestroy:
		e.bridges.OnBridgeDestroy(ev.BridgeID)

	case event.Hangup:
		for _, v := range e.calls.OnHangup(ev) {
			if v.QueueID != "" && v.Status != types.CallStatusMissed {
				e.stats.RecordHold(v.QueueID, v.HoldSeconds)
			}
		}

	case event.Hold:
		e.calls.OnHold(ev.CorrelationID)

	case event.Unhold:
		e.calls.OnUnhold(ev.CorrelationID)

	case event.QueueJoin:
		if e.queues.OnQueueJoin(ev) {
			e.stats.RecordJoin(ev.QueueID)
			e.calls.AttributeQueue(ev.CorrelationID, ev.QueueID)
		}

	case event.QueueLeave:
		if d, ok := e.queues.OnQueueLeave(ev.CallID); ok {
			e.stats.RecordAnswered(d.QueueID, d.JoinDay, d.WaitSeconds)
		}

	case event.QueueAbandon:
		if d, ok := e.queues.OnQueueAbandon(ev.CallID); ok {
			e.stats.RecordAbandoned(d.QueueID, d.JoinDay, d.WaitSeconds)
		}

	case event.QueueMember:
		e.queues.OnQueueMemberReport(ev)

	case event.QueueMemberRemoved:
		e.queues.OnQueueMemberRemoved(ev)

	case event.AgentCalled:
		e.agents.OnCallNotified(ev.Extension)

	case event.AgentConnect:
		e.agents.OnCallAnswered(ev.Extension, ev.HoldTime, ev.RingTime)
		if ev.CorrelationID != "" {
			e.calls.AttributeAgent(ev.CorrelationID, ev.Extension)
		}

	case event.AgentComplete:
		e.agents.OnCallEnded(ev.Extension, ev.TalkTime)
		if ev.QueueID != "" {
			e.stats.RecordTalk(ev.QueueID, ev.TalkTime)
		}

	case event.AgentRingNoAnswer:
		e.agents.OnRingNoAnswer(ev.Extension, ev.RingTime)
		if ev.QueueID != "" {
			e.stats.RecordMissed(ev.QueueID)
		}

	case event.Presence:
		e.agents.OnPresenceChange(ev.Extension, ev.DeviceState)

	default:
		e.logger.Warn().Str("kind", string(ev.Kind())).Msg("no handler for event")
		return
	}

	metrics.Get().RecordEventProcessed()
}
