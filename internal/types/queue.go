package types

import "time"

// QueueCaller is a call waiting in a queue
type QueueCaller struct {
	CallID        string    `json:"callId"`
	QueueID       string    `json:"queueId"`
	QueueName     string    `json:"queueName"`
	CorrelationID string    `json:"correlationId"`
	Position      int       `json:"position"`
	Caller        Party     `json:"caller"`
	WaitStart     time.Time `json:"waitStart"`
	WaitSeconds   float64   `json:"waitSeconds"` // computed at snapshot time
	JoinDay       string    `json:"-"`           // statistics day the join was counted on
}

// QueueMember is one member location of a queue with its live attributes
type QueueMember struct {
	QueueID        string    `json:"queueId"`
	QueueName      string    `json:"queueName"`
	Location       string    `json:"location"`
	Name           string    `json:"name"`
	StateInterface string    `json:"stateInterface,omitempty"`
	Status         string    `json:"status"`
	Paused         bool      `json:"paused"`
	PausedReason   string    `json:"pausedReason,omitempty"`
	InCall         bool      `json:"inCall"`
	CallsTaken     int       `json:"callsTaken"`
	LastCall       int64     `json:"lastCall"` // unix seconds, 0 if never
	Penalty        int       `json:"penalty"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

// ServiceLevel is the service-level block of a queue
type ServiceLevel struct {
	Target        int     `json:"target" dynamodbav:"Target"`               // target percentage (e.g., 80)
	ThresholdSecs int     `json:"thresholdSecs" dynamodbav:"ThresholdSecs"` // answered within this many seconds
	AnsweredInSL  int     `json:"answeredInSL" dynamodbav:"AnsweredInSL"`
	TotalOffered  int     `json:"totalOffered" dynamodbav:"TotalOffered"`
	CurrentSL     float64 `json:"currentSL" dynamodbav:"CurrentSL"`
}

// HourlyBucket counts queue activity within one hour of the day
type HourlyBucket struct {
	Hour      int `json:"hour" dynamodbav:"Hour"`
	Total     int `json:"total" dynamodbav:"Total"`
	Answered  int `json:"answered" dynamodbav:"Answered"`
	Abandoned int `json:"abandoned" dynamodbav:"Abandoned"`
	Missed    int `json:"missed" dynamodbav:"Missed"`
}

// QueueStats is the per-queue per-day statistics record
type QueueStats struct {
	QueueID      string         `json:"queueId" dynamodbav:"QueueID"` // partition key
	Date         string         `json:"date" dynamodbav:"Date"`       // sort key, YYYY-MM-DD
	QueueName    string         `json:"queueName" dynamodbav:"QueueName"`
	Total        int            `json:"total" dynamodbav:"Total"`
	Answered     int            `json:"answered" dynamodbav:"Answered"`
	Abandoned    int            `json:"abandoned" dynamodbav:"Abandoned"`
	Missed       int            `json:"missed" dynamodbav:"Missed"`
	WaitTimeSum  float64        `json:"waitTimeSum" dynamodbav:"WaitTimeSum"`
	TalkTimeSum  float64        `json:"talkTimeSum" dynamodbav:"TalkTimeSum"`
	TalkSamples  int            `json:"talkSamples" dynamodbav:"TalkSamples"`
	HoldTimeSum  float64        `json:"holdTimeSum" dynamodbav:"HoldTimeSum"`
	HoldSamples  int            `json:"holdSamples" dynamodbav:"HoldSamples"`
	ServiceLevel ServiceLevel   `json:"serviceLevel" dynamodbav:"ServiceLevel"`
	AnswerRate   float64        `json:"answerRate" dynamodbav:"AnswerRate"`
	AbandonRate  float64        `json:"abandonRate" dynamodbav:"AbandonRate"`
	AvgWaitTime  float64        `json:"avgWaitTime" dynamodbav:"AvgWaitTime"`
	AvgTalkTime  float64        `json:"avgTalkTime" dynamodbav:"AvgTalkTime"`
	AvgHoldTime  float64        `json:"avgHoldTime" dynamodbav:"AvgHoldTime"`
	Hourly       []HourlyBucket `json:"hourly" dynamodbav:"Hourly"`
	UpdatedAt    time.Time      `json:"updatedAt" dynamodbav:"UpdatedAt"`
}

// QueueStatsSummary rolls up all queues of the day
type QueueStatsSummary struct {
	Total        int     `json:"total"`
	Answered     int     `json:"answered"`
	Abandoned    int     `json:"abandoned"`
	Missed       int     `json:"missed"`
	AnswerRate   float64 `json:"answerRate"`
	AbandonRate  float64 `json:"abandonRate"`
	ServiceLevel float64 `json:"serviceLevel"`
	AvgWaitTime  float64 `json:"avgWaitTime"`
	Waiting      int     `json:"waiting"`
}

// QueueStatsSnapshot is the broadcast shape of the statistics aggregator
type QueueStatsSnapshot struct {
	Date    string            `json:"date"`
	Queues  []QueueStats      `json:"queues"`
	Summary QueueStatsSummary `json:"summary"`
}
