package broadcast

import (
	"encoding/json"
	"time"

	"github.com/dennisdiepolder/monti/pbxlive/internal/metrics"
	"github.com/rs/zerolog"
)

// Snapshot topics
const (
	TopicOngoingCalls = "ongoing_calls"
	TopicQueueCallers = "queue_callers"
	TopicQueueMembers = "queue_members"
	TopicAgentStatus  = "agent_status"
	TopicQueueStats   = "queue_stats"
	TopicCallEvent    = "call_event"
)

// Envelope wraps every published payload
type Envelope struct {
	Type      string    `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Data      any       `json:"data"`
}

// Sink receives encoded envelopes. Publish must not block.
type Sink interface {
	Publish(topic string, payload []byte)
}

// Subscriber is a single attached dashboard
type Subscriber interface {
	ID() string
	// Send queues msg for delivery and reports whether it was accepted
	Send(msg []byte) bool
}

// Broadcaster is what the trackers publish through
type Broadcaster interface {
	Broadcast(topic string, data any)
}

// Publisher encodes snapshots once and fans them out to every sink
type Publisher struct {
	sinks  []Sink
	now    func() time.Time
	logger zerolog.Logger
}

// NewPublisher creates a publisher over the given sinks
func NewPublisher(logger zerolog.Logger, sinks ...Sink) *Publisher {
	return &Publisher{
		sinks:  sinks,
		now:    time.Now,
		logger: logger.With().Str("component", "broadcast").Logger(),
	}
}

// AddSink attaches another sink. Not safe for use after publishing started.
func (p *Publisher) AddSink(s Sink) {
	p.sinks = append(p.sinks, s)
}

// Broadcast publishes data under topic to all sinks
func (p *Publisher) Broadcast(topic string, data any) {
	payload, err := p.encode(topic, data)
	if err != nil {
		p.logger.Error().Err(err).Str("topic", topic).Msg("failed to marshal broadcast")
		return
	}
	for _, s := range p.sinks {
		s.Publish(topic, payload)
	}
	metrics.Get().RecordBroadcast(topic)
	p.logger.Debug().Str("topic", topic).Int("bytes", len(payload)).Msg("broadcast")
}

// SendTo publishes data under topic to a single subscriber
func (p *Publisher) SendTo(sub Subscriber, topic string, data any) bool {
	payload, err := p.encode(topic, data)
	if err != nil {
		p.logger.Error().Err(err).Str("topic", topic).Msg("failed to marshal resync payload")
		return false
	}
	if !sub.Send(payload) {
		p.logger.Warn().Str("client_id", sub.ID()).Str("topic", topic).Msg("subscriber rejected resync payload")
		return false
	}
	return true
}

func (p *Publisher) encode(topic string, data any) ([]byte, error) {
	return json.Marshal(Envelope{Type: topic, Timestamp: p.now(), Data: data})
}
