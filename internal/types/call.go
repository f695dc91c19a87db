package types

import (
	"sort"
	"time"
)

// CallStatus represents the lifecycle state of a call
type CallStatus string

const (
	CallStatusRinging    CallStatus = "ringing"
	CallStatusAnswered   CallStatus = "answered"
	CallStatusTalking    CallStatus = "talking"
	CallStatusOnHold     CallStatus = "on_hold"
	CallStatusMissed     CallStatus = "missed"     // every ringing leg hung up before a bridge formed
	CallStatusBusy       CallStatus = "busy"       // cause 17
	CallStatusUnanswered CallStatus = "unanswered" // cause 18, 19
	CallStatusFailed     CallStatus = "failed"
	CallStatusCompleted  CallStatus = "completed"
)

// IsTerminal reports whether no further transitions are possible
func (s CallStatus) IsTerminal() bool {
	switch s {
	case CallStatusMissed, CallStatusBusy, CallStatusUnanswered, CallStatusFailed, CallStatusCompleted:
		return true
	}
	return false
}

// Party is caller-id style number/name information
type Party struct {
	Number string `json:"number"`
	Name   string `json:"name,omitempty"`
}

// LegSet is the set of channel legs belonging to one call
type LegSet map[string]struct{}

// Add inserts a channel and reports whether it was new
func (s LegSet) Add(channel string) bool {
	if _, ok := s[channel]; ok {
		return false
	}
	s[channel] = struct{}{}
	return true
}

// Remove deletes a channel and reports whether it was present
func (s LegSet) Remove(channel string) bool {
	if _, ok := s[channel]; !ok {
		return false
	}
	delete(s, channel)
	return true
}

// Has reports whether the channel belongs to the set
func (s LegSet) Has(channel string) bool {
	_, ok := s[channel]
	return ok
}

// Sorted returns the channels in lexical order
func (s LegSet) Sorted() []string {
	out := make([]string, 0, len(s))
	for ch := range s {
		out = append(out, ch)
	}
	sort.Strings(out)
	return out
}

// RingingCall is a call whose legs are ringing and no bridge has formed yet
type RingingCall struct {
	CorrelationID string
	Caller        Party
	Destination   string
	Legs          LegSet
	StartedAt     time.Time
}

// Bridge mixes two or more channel legs
type Bridge struct {
	ID            string
	CorrelationID string
	Participants  []string // insertion order, unique
	Caller        Party
	Connected     Party
	CreatedAt     time.Time
}

// Add appends a participant and reports whether it was new
func (b *Bridge) Add(channel string) bool {
	for _, p := range b.Participants {
		if p == channel {
			return false
		}
	}
	b.Participants = append(b.Participants, channel)
	return true
}

// Remove drops a participant and reports whether it was present
func (b *Bridge) Remove(channel string) bool {
	for i, p := range b.Participants {
		if p == channel {
			b.Participants = append(b.Participants[:i], b.Participants[i+1:]...)
			return true
		}
	}
	return false
}

// OngoingCall is an answered call with at least one live leg
type OngoingCall struct {
	CorrelationID string
	Legs          LegSet
	State         CallStatus // CallStatusTalking or CallStatusOnHold
	Caller        Party
	Connected     Party
	Destination   string
	StartedAt     time.Time
	AnsweredAt    time.Time
	QueueID       string
	Agent         string
	RecordingPath string
	HoldSeconds   float64
	HoldStartedAt *time.Time
}

// CallView is the broadcast shape of a single call
type CallView struct {
	CorrelationID   string     `json:"correlationId"`
	Status          CallStatus `json:"status"`
	Caller          Party      `json:"caller"`
	Connected       *Party     `json:"connected,omitempty"`
	Destination     string     `json:"destination,omitempty"`
	Channels        []string   `json:"channels"`
	StartedAt       time.Time  `json:"startedAt"`
	AnsweredAt      *time.Time `json:"answeredAt,omitempty"`
	EndedAt         *time.Time `json:"endedAt,omitempty"`
	DurationSeconds float64    `json:"durationSeconds"`
	HoldSeconds     float64    `json:"holdSeconds,omitempty"`
	QueueID         string     `json:"queueId,omitempty"`
	Agent           string     `json:"agent,omitempty"`
	RecordingPath   string     `json:"recordingPath,omitempty"`
	Cause           int        `json:"cause,omitempty"`
	CauseText       string     `json:"causeText,omitempty"`
}
