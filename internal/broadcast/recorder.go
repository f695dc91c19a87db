package broadcast

import "sync"

// Message is one recorded broadcast
type Message struct {
	Topic string
	Data  any
}

// Recorder is a Broadcaster that keeps every message for assertions
type Recorder struct {
	mu       sync.Mutex
	messages []Message
}

// NewRecorder creates an empty Recorder
func NewRecorder() *Recorder {
	return &Recorder{}
}

// Broadcast records the message
func (r *Recorder) Broadcast(topic string, data any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages = append(r.messages, Message{Topic: topic, Data: data})
}

// Messages returns a copy of all recorded messages
func (r *Recorder) Messages() []Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Message, len(r.messages))
	copy(out, r.messages)
	return out
}

// ByTopic returns the recorded messages for one topic
func (r *Recorder) ByTopic(topic string) []Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Message
	for _, m := range r.messages {
		if m.Topic == topic {
			out = append(out, m)
		}
	}
	return out
}

// Last returns the most recent message for topic
func (r *Recorder) Last(topic string) (Message, bool) {
	msgs := r.ByTopic(topic)
	if len(msgs) == 0 {
		return Message{}, false
	}
	return msgs[len(msgs)-1], true
}

// Reset clears all recorded messages
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages = nil
}
