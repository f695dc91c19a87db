package types

import "time"

// AgentStatus is the closed set of live agent statuses derived from device state
type AgentStatus string

const (
	AgentIdle        AgentStatus = "idle"
	AgentInUse       AgentStatus = "in_use"
	AgentBusy        AgentStatus = "busy"
	AgentRinging     AgentStatus = "ringing"
	AgentUnavailable AgentStatus = "unavailable"
	AgentUnknown     AgentStatus = "unknown"
)

// Online reports whether the status counts towards an open shift
func (s AgentStatus) Online() bool {
	switch s {
	case AgentIdle, AgentInUse, AgentBusy, AgentRinging:
		return true
	}
	return false
}

// AgentCounters holds call counters and running averages.
// Averages are maintained incrementally, so no per-call history is kept.
type AgentCounters struct {
	TotalCalls  int     `json:"totalCalls" dynamodbav:"TotalCalls"`
	Answered    int     `json:"answered" dynamodbav:"Answered"`
	Missed      int     `json:"missed" dynamodbav:"Missed"`
	AvgHoldTime float64 `json:"avgHoldTime" dynamodbav:"AvgHoldTime"` // seconds
	AvgRingTime float64 `json:"avgRingTime" dynamodbav:"AvgRingTime"` // seconds
	AvgTalkTime float64 `json:"avgTalkTime" dynamodbav:"AvgTalkTime"` // seconds
	IdleSeconds float64 `json:"idleSeconds" dynamodbav:"IdleSeconds"`
}

// AgentRecord is the durable identity of an agent with its rolling counters
type AgentRecord struct {
	Extension    string        `json:"extension" dynamodbav:"Extension"` // partition key
	Name         string        `json:"name" dynamodbav:"Name"`
	Queues       []string      `json:"queues" dynamodbav:"Queues"`
	Status       AgentStatus   `json:"status" dynamodbav:"Status"`
	DeviceState  string        `json:"deviceState" dynamodbav:"DeviceState"`
	LastActivity time.Time     `json:"lastActivity" dynamodbav:"LastActivity"`
	StatsDate    string        `json:"statsDate" dynamodbav:"StatsDate"` // date the Today block belongs to
	Today        AgentCounters `json:"today" dynamodbav:"Today"`
	Overall      AgentCounters `json:"overall" dynamodbav:"Overall"`
	UpdatedAt    time.Time     `json:"updatedAt" dynamodbav:"UpdatedAt"`
}

// Alert is a condition worth a supervisor's attention
type Alert struct {
	Type     string `json:"type"`
	Severity string `json:"severity"` // "warning" or "critical"
	Message  string `json:"message"`
}

// AgentView is the broadcast shape of an agent with both stat blocks
type AgentView struct {
	Extension        string        `json:"extension"`
	Name             string        `json:"name"`
	Queues           []string      `json:"queues"`
	Status           AgentStatus   `json:"status"`
	DeviceState      string        `json:"deviceState"`
	StatusSince      time.Time     `json:"statusSince"`
	LastActivity     time.Time     `json:"lastActivity"`
	CurrentCallStart *time.Time    `json:"currentCallStart,omitempty"`
	Today            AgentCounters `json:"today"`
	Overall          AgentCounters `json:"overall"`
	Alerts           []Alert       `json:"alerts,omitempty"`
}
