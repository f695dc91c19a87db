package types

import "time"

// DateKeyFormat is the layout used for per-day partition keys
const DateKeyFormat = "2006-01-02"

// CallRecord is the durable lifecycle record of a call, keyed by correlation id
type CallRecord struct {
	CorrelationID   string     `json:"correlationId" dynamodbav:"CorrelationID"` // partition key
	DateKey         string     `json:"dateKey" dynamodbav:"DateKey"`             // YYYY-MM-DD
	Status          CallStatus `json:"status" dynamodbav:"Status"`
	CallerNumber    string     `json:"callerNumber" dynamodbav:"CallerNumber"`
	CallerName      string     `json:"callerName" dynamodbav:"CallerName"`
	Destination     string     `json:"destination" dynamodbav:"Destination"`
	QueueID         string     `json:"queueId,omitempty" dynamodbav:"QueueID,omitempty"`
	Agent           string     `json:"agent,omitempty" dynamodbav:"Agent,omitempty"`
	QueueOutcome    string     `json:"queueOutcome,omitempty" dynamodbav:"QueueOutcome,omitempty"`
	WaitSeconds     float64    `json:"waitSeconds" dynamodbav:"WaitSeconds"`
	DurationSeconds float64    `json:"durationSeconds" dynamodbav:"DurationSeconds"`
	HoldSeconds     float64    `json:"holdSeconds" dynamodbav:"HoldSeconds"`
	Cause           int        `json:"cause" dynamodbav:"Cause"`
	CauseText       string     `json:"causeText,omitempty" dynamodbav:"CauseText,omitempty"`
	RecordingPath   string     `json:"recordingPath,omitempty" dynamodbav:"RecordingPath,omitempty"`
	StartedAt       time.Time  `json:"startedAt" dynamodbav:"StartedAt"`
	AnsweredAt      *time.Time `json:"answeredAt,omitempty" dynamodbav:"AnsweredAt,omitempty"`
	EndedAt         *time.Time `json:"endedAt,omitempty" dynamodbav:"EndedAt,omitempty"`
	UpdatedAt       time.Time  `json:"updatedAt" dynamodbav:"UpdatedAt"`
}

// CallUpdate is a partial call record update; nil fields are left untouched
type CallUpdate struct {
	Status          *CallStatus
	QueueID         *string
	Agent           *string
	QueueOutcome    *string
	WaitSeconds     *float64
	DurationSeconds *float64
	HoldSeconds     *float64
	Cause           *int
	CauseText       *string
	RecordingPath   *string
	AnsweredAt      *time.Time
	EndedAt         *time.Time
}

// Queue outcomes stored on the call record
const (
	QueueOutcomeAnswered  = "answered"
	QueueOutcomeAbandoned = "abandoned"
)

// Ptr returns a pointer to v
func Ptr[T any](v T) *T {
	return &v
}
