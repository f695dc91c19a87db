package event

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

type recordingSubmitter struct {
	events []Event
	err    error
}

func (s *recordingSubmitter) Submit(_ context.Context, ev Event) error {
	if s.err != nil {
		return s.err
	}
	s.events = append(s.events, ev)
	return nil
}

func post(r *Receiver, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/internal/event", strings.NewReader(body))
	rr := httptest.NewRecorder()
	r.HandleEvent(rr, req)
	return rr
}

func TestReceiverSingleEvent(t *testing.T) {
	sub := &recordingSubmitter{}
	r := NewReceiver(sub, zerolog.Nop())

	rr := post(r, `{"Event":"Hangup","Channel":"PJSIP/1001-01","Linkedid":"1700.1","Cause":"16"}`)

	if rr.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202", rr.Code)
	}
	if len(sub.events) != 1 {
		t.Fatalf("submitted %d events, want 1", len(sub.events))
	}
	h, ok := sub.events[0].(Hangup)
	if !ok || h.Cause != 16 || h.CorrelationID != "1700.1" {
		t.Errorf("event = %+v", sub.events[0])
	}
}

func TestReceiverBatchCounts(t *testing.T) {
	sub := &recordingSubmitter{}
	r := NewReceiver(sub, zerolog.Nop())

	rr := post(r, `[
		{"Event":"Hangup","Channel":"PJSIP/1001-01","Linkedid":"1700.1"},
		{"Event":"FullyBooted"},
		{"Event":"Hangup","Channel":"PJSIP/1001-02"}
	]`)

	var resp map[string]int
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp["accepted"] != 1 || resp["ignored"] != 1 || resp["invalid"] != 1 {
		t.Errorf("response = %v, want 1/1/1", resp)
	}

	stats := httptest.NewRecorder()
	r.GetStats(stats, httptest.NewRequest(http.MethodGet, "/internal/event/stats", nil))
	var s map[string]interface{}
	if err := json.NewDecoder(stats.Body).Decode(&s); err != nil {
		t.Fatalf("decode stats: %v", err)
	}
	if s["events_received"].(float64) != 3 {
		t.Errorf("events_received = %v, want 3", s["events_received"])
	}
}

func TestReceiverRejects(t *testing.T) {
	tests := []struct {
		name   string
		method string
		body   string
		err    error
		want   int
	}{
		{"wrong method", http.MethodGet, "", nil, http.StatusMethodNotAllowed},
		{"not json", http.MethodPost, "Event: Hangup", nil, http.StatusBadRequest},
		{"engine stopped", http.MethodPost, `{"Event":"Hangup","Channel":"c","Linkedid":"l"}`, errors.New("stopped"), http.StatusServiceUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewReceiver(&recordingSubmitter{err: tt.err}, zerolog.Nop())
			req := httptest.NewRequest(tt.method, "/internal/event", strings.NewReader(tt.body))
			rr := httptest.NewRecorder()
			r.HandleEvent(rr, req)
			if rr.Code != tt.want {
				t.Errorf("status = %d, want %d", rr.Code, tt.want)
			}
		})
	}
}

func TestReceiverLogsDroppedEventAtWarn(t *testing.T) {
	var buf bytes.Buffer
	r := NewReceiver(&recordingSubmitter{}, zerolog.New(&buf).Level(zerolog.WarnLevel))

	// Hangup without a correlation id is malformed
	post(r, `{"Event":"Hangup","Channel":"PJSIP/1001-02"}`)

	out := buf.String()
	if !strings.Contains(out, `"level":"warn"`) || !strings.Contains(out, "dropping injected event") {
		t.Errorf("expected a warn entry for the dropped event, got %q", out)
	}
}
