package event

import "github.com/dennisdiepolder/monti/pbxlive/internal/types"

// Kind discriminates normalized events
type Kind string

const (
	KindRingStart          Kind = "ring_start"
	KindBridgeEnter        Kind = "bridge_enter"
	KindBridgeDestroy      Kind = "bridge_destroy"
	KindHangup             Kind = "hangup"
	KindHold               Kind = "hold"
	KindUnhold             Kind = "unhold"
	KindQueueJoin          Kind = "queue_join"
	KindQueueLeave         Kind = "queue_leave"
	KindQueueAbandon       Kind = "queue_abandon"
	KindQueueMember        Kind = "queue_member"
	KindQueueMemberRemoved Kind = "queue_member_removed"
	KindAgentCalled        Kind = "agent_called"
	KindAgentConnect       Kind = "agent_connect"
	KindAgentComplete      Kind = "agent_complete"
	KindAgentRingNoAnswer  Kind = "agent_ring_no_answer"
	KindPresence           Kind = "presence"
)

// Event is a normalized telephony event. The set of implementations is closed.
type Event interface {
	Kind() Kind
	isEvent()
}

// RingStart is a channel leg starting to ring for a call
type RingStart struct {
	CorrelationID string
	Channel       string
	Caller        types.Party
	Destination   string
}

// BridgeEnter is a channel joining a bridge
type BridgeEnter struct {
	BridgeID      string
	CorrelationID string
	Channel       string
	Caller        types.Party
	Connected     types.Party
}

// BridgeDestroy is a bridge being torn down
type BridgeDestroy struct {
	BridgeID string
}

// Hangup is one channel leg ending
type Hangup struct {
	CorrelationID string
	Channel       string
	Cause         int
	CauseText     string
}

// Hold is a call being put on hold
type Hold struct {
	CorrelationID string
	Channel       string
}

// Unhold is a call being taken off hold
type Unhold struct {
	CorrelationID string
	Channel       string
}

// QueueJoin is a caller entering a queue
type QueueJoin struct {
	QueueID       string
	CallID        string
	CorrelationID string
	Position      int
	Caller        types.Party
}

// QueueLeave is a caller leaving a queue towards an agent
type QueueLeave struct {
	QueueID       string
	CallID        string
	CorrelationID string
	Position      int
}

// QueueAbandon is a caller hanging up while waiting
type QueueAbandon struct {
	QueueID          string
	CallID           string
	CorrelationID    string
	Position         int
	OriginalPosition int
	HoldTime         float64
}

// QueueMember is a membership report for one queue location
type QueueMember struct {
	QueueID        string
	Location       string
	Name           string
	StateInterface string
	Status         string
	Paused         bool
	PausedReason   string
	InCall         bool
	CallsTaken     int
	LastCall       int64
	Penalty        int
}

// QueueMemberRemoved is a location leaving a queue
type QueueMemberRemoved struct {
	QueueID  string
	Location string
}

// AgentCalled is an agent being offered a queue call
type AgentCalled struct {
	Extension     string
	Interface     string
	QueueID       string
	CorrelationID string
}

// AgentConnect is an agent answering a queue call
type AgentConnect struct {
	Extension     string
	Interface     string
	QueueID       string
	CorrelationID string
	HoldTime      float64 // seconds the caller waited
	RingTime      float64 // seconds the agent's phone rang
}

// AgentComplete is a queue call handled by an agent ending
type AgentComplete struct {
	Extension     string
	Interface     string
	QueueID       string
	CorrelationID string
	HoldTime      float64
	TalkTime      float64
	Reason        string
}

// AgentRingNoAnswer is an agent not picking up an offered call
type AgentRingNoAnswer struct {
	Extension     string
	Interface     string
	QueueID       string
	CorrelationID string
	RingTime      float64
}

// Presence is a device state change of an agent's endpoint
type Presence struct {
	Extension   string
	Device      string
	DeviceState string
}

func (RingStart) Kind() Kind          { return KindRingStart }
func (BridgeEnter) Kind() Kind        { return KindBridgeEnter }
func (BridgeDestroy) Kind() Kind      { return KindBridgeDestroy }
func (Hangup) Kind() Kind             { return KindHangup }
func (Hold) Kind() Kind               { return KindHold }
func (Unhold) Kind() Kind             { return KindUnhold }
func (QueueJoin) Kind() Kind          { return KindQueueJoin }
func (QueueLeave) Kind() Kind         { return KindQueueLeave }
func (QueueAbandon) Kind() Kind       { return KindQueueAbandon }
func (QueueMember) Kind() Kind        { return KindQueueMember }
func (QueueMemberRemoved) Kind() Kind { return KindQueueMemberRemoved }
func (AgentCalled) Kind() Kind        { return KindAgentCalled }
func (AgentConnect) Kind() Kind       { return KindAgentConnect }
func (AgentComplete) Kind() Kind      { return KindAgentComplete }
func (AgentRingNoAnswer) Kind() Kind  { return KindAgentRingNoAnswer }
func (Presence) Kind() Kind           { return KindPresence }

func (RingStart) isEvent()          {}
func (BridgeEnter) isEvent()        {}
func (BridgeDestroy) isEvent()      {}
func (Hangup) isEvent()             {}
func (Hold) isEvent()               {}
func (Unhold) isEvent()             {}
func (QueueJoin) isEvent()          {}
func (QueueLeave) isEvent()         {}
func (QueueAbandon) isEvent()       {}
func (QueueMember) isEvent()        {}
func (QueueMemberRemoved) isEvent() {}
func (AgentCalled) isEvent()        {}
func (AgentConnect) isEvent()       {}
func (AgentComplete) isEvent()      {}
func (AgentRingNoAnswer) isEvent()  {}
func (Presence) isEvent()           {}
