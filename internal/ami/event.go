package ami

import (
	"sort"
	"strconv"
	"strings"
)

// Event is one AMI message (event or response) as an ordered set of headers
type Event struct {
	headers []header
}

type header struct {
	Key   string
	Value string
}

// NewEvent creates an Event from alternating keys and values
func NewEvent(kvs ...string) Event {
	e := Event{}
	for i := 0; i+1 < len(kvs); i += 2 {
		e.headers = append(e.headers, header{Key: kvs[i], Value: kvs[i+1]})
	}
	return e
}

// FromMap creates an Event from a map of headers. Keys are ordered
// lexically with "Event" and "Response" first.
func FromMap(m map[string]string) Event {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		ri, rj := keyRank(keys[i]), keyRank(keys[j])
		if ri != rj {
			return ri < rj
		}
		return keys[i] < keys[j]
	})

	e := Event{headers: make([]header, 0, len(keys))}
	for _, k := range keys {
		e.headers = append(e.headers, header{Key: k, Value: m[k]})
	}
	return e
}

func keyRank(k string) int {
	switch k {
	case "Event", "Response":
		return 0
	}
	return 1
}

// Get returns the first value for key, or "" if absent.
// Key matching is case-insensitive; Asterisk versions disagree on casing.
func (e Event) Get(key string) string {
	for _, h := range e.headers {
		if strings.EqualFold(h.Key, key) {
			return h.Value
		}
	}
	return ""
}

// Has reports whether key is present with a non-empty value
func (e Event) Has(key string) bool {
	return e.Get(key) != ""
}

// First returns the first non-empty value among keys
func (e Event) First(keys ...string) string {
	for _, k := range keys {
		if v := e.Get(k); v != "" {
			return v
		}
	}
	return ""
}

// Type returns the event name
func (e Event) Type() string {
	return e.Get("Event")
}

// ActionID returns the id correlating a response to its action
func (e Event) ActionID() string {
	return e.Get("ActionID")
}

// IsResponse reports whether this is a reply to an action rather than an event
func (e Event) IsResponse() bool {
	return e.Get("Response") != ""
}

// GetInt returns the integer value for key, or 0 if absent or unparseable
func (e Event) GetInt(key string) int {
	v, _ := strconv.Atoi(strings.TrimSpace(e.Get(key)))
	return v
}

// GetFloat returns the float value for key, or 0 if absent or unparseable
func (e Event) GetFloat(key string) float64 {
	v, _ := strconv.ParseFloat(strings.TrimSpace(e.Get(key)), 64)
	return v
}

// Len returns the number of headers
func (e Event) Len() int {
	return len(e.headers)
}

// Map returns the headers as a map; the first occurrence of a key wins
func (e Event) Map() map[string]string {
	m := make(map[string]string, len(e.headers))
	for _, h := range e.headers {
		if _, ok := m[h.Key]; !ok && h.Key != "" {
			m[h.Key] = h.Value
		}
	}
	return m
}
