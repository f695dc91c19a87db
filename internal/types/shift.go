package types

import "time"

// ShiftRecord is a contiguous online period of an agent
type ShiftRecord struct {
	AgentID         string     `json:"agentId" dynamodbav:"AgentID"` // partition key
	ShiftID         string     `json:"shiftId" dynamodbav:"ShiftID"` // sort key
	StartTime       time.Time  `json:"startTime" dynamodbav:"StartTime"`
	EndTime         *time.Time `json:"endTime,omitempty" dynamodbav:"EndTime,omitempty"`
	DurationSeconds float64    `json:"durationSeconds" dynamodbav:"DurationSeconds"`
	PendingEndUntil *time.Time `json:"pendingEndUntil,omitempty" dynamodbav:"PendingEndUntil,omitempty"`
	OfflineReason   string     `json:"offlineReason,omitempty" dynamodbav:"OfflineReason,omitempty"`
	UpdatedAt       time.Time  `json:"updatedAt" dynamodbav:"UpdatedAt"`
}

// Closed reports whether the shift has been finalized
func (r ShiftRecord) Closed() bool {
	return r.EndTime != nil
}
