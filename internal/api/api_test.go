package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/dennisdiepolder/monti/pbxlive/internal/engine"
	"github.com/dennisdiepolder/monti/pbxlive/internal/types"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
)

type fakeRoster struct {
	upserted []types.AgentRecord
	known    map[string]bool
	err      error
}

func (f *fakeRoster) UpsertAgent(_ context.Context, r types.AgentRecord) (types.AgentRecord, error) {
	if f.err != nil {
		return types.AgentRecord{}, f.err
	}
	f.upserted = append(f.upserted, r)
	return r, nil
}

func (f *fakeRoster) RemoveAgent(_ context.Context, ext string) (bool, error) {
	if f.err != nil {
		return false, f.err
	}
	return f.known[ext], nil
}

type fakeHistory struct {
	shifts []types.ShiftRecord
	stats  []types.QueueStats
	err    error
}

func (f *fakeHistory) ListShifts(context.Context, string) ([]types.ShiftRecord, error) {
	return f.shifts, f.err
}

func (f *fakeHistory) ListQueueStats(context.Context, string) ([]types.QueueStats, error) {
	return f.stats, f.err
}

type fakeLive struct {
	agents map[string]types.AgentView
}

func (f *fakeLive) Snapshot(context.Context) (engine.Snapshot, error) {
	return engine.Snapshot{}, nil
}

func (f *fakeLive) Agent(_ context.Context, ext string) (types.AgentView, bool, error) {
	v, ok := f.agents[ext]
	return v, ok, nil
}

func (f *fakeLive) Call(context.Context, string) (types.CallView, bool, error) {
	return types.CallView{}, false, nil
}

func newRouter(roster Roster, history HistoryStore, live LiveState) http.Handler {
	r := chi.NewRouter()
	rh := NewRosterHandler(roster, zerolog.Nop())
	hh := NewHistoryHandler(history, zerolog.Nop())
	lh := NewLiveHandler(live, zerolog.Nop())
	r.Post("/internal/agents/roster", rh.HandleRoster)
	r.Delete("/internal/agents/{extension}", rh.HandleRemove)
	r.Get("/api/agents/{extension}/shifts", hh.GetShifts)
	r.Get("/api/queues/{queue}/stats", hh.GetQueueStats)
	r.Get("/api/agents/{extension}", lh.GetAgent)
	r.Get("/api/calls/{correlationId}", lh.GetCall)
	r.Get("/api/live", lh.GetSnapshot)
	return r
}

func do(h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func TestHandleRoster(t *testing.T) {
	roster := &fakeRoster{}
	h := newRouter(roster, &fakeHistory{}, &fakeLive{})

	rr := do(h, http.MethodPost, "/internal/agents/roster",
		`[{"extension":"1001","name":"Alice","queues":["support"]},{"extension":" ","name":"nobody"}]`)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}
	var resp map[string]int
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp["registered"] != 1 || resp["skipped"] != 1 {
		t.Errorf("response = %v, want 1 registered 1 skipped", resp)
	}
	if len(roster.upserted) != 1 || roster.upserted[0].Name != "Alice" {
		t.Errorf("upserted = %+v", roster.upserted)
	}
}

func TestHandleRosterErrors(t *testing.T) {
	tests := []struct {
		name   string
		roster *fakeRoster
		body   string
		want   int
	}{
		{"invalid json", &fakeRoster{}, `{"extension":`, http.StatusBadRequest},
		{"engine stopped", &fakeRoster{err: errors.New("engine stopped")}, `[{"extension":"1001"}]`, http.StatusServiceUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := do(newRouter(tt.roster, &fakeHistory{}, &fakeLive{}), http.MethodPost, "/internal/agents/roster", tt.body)
			if rr.Code != tt.want {
				t.Errorf("status = %d, want %d", rr.Code, tt.want)
			}
		})
	}
}

func TestHandleRemove(t *testing.T) {
	h := newRouter(&fakeRoster{known: map[string]bool{"1001": true}}, &fakeHistory{}, &fakeLive{})

	if rr := do(h, http.MethodDelete, "/internal/agents/1001", ""); rr.Code != http.StatusNoContent {
		t.Errorf("known extension status = %d, want 204", rr.Code)
	}
	if rr := do(h, http.MethodDelete, "/internal/agents/2002", ""); rr.Code != http.StatusNotFound {
		t.Errorf("unknown extension status = %d, want 404", rr.Code)
	}
}

func TestGetShifts(t *testing.T) {
	base := time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)
	history := &fakeHistory{shifts: []types.ShiftRecord{
		{AgentID: "1001", ShiftID: "a", StartTime: base},
		{AgentID: "1001", ShiftID: "c", StartTime: base.Add(48 * time.Hour)},
		{AgentID: "1001", ShiftID: "b", StartTime: base.Add(24 * time.Hour)},
	}}
	h := newRouter(&fakeRoster{}, history, &fakeLive{})

	rr := do(h, http.MethodGet, "/api/agents/1001/shifts?limit=2", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}
	var got []types.ShiftRecord
	if err := json.NewDecoder(rr.Body).Decode(&got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(got) != 2 || got[0].ShiftID != "c" || got[1].ShiftID != "b" {
		t.Errorf("shifts = %+v, want c then b", got)
	}

	if rr := do(h, http.MethodGet, "/api/agents/1001/shifts?limit=x", ""); rr.Code != http.StatusBadRequest {
		t.Errorf("bad limit status = %d, want 400", rr.Code)
	}
}

func TestGetShiftsEmptyIsArray(t *testing.T) {
	h := newRouter(&fakeRoster{}, &fakeHistory{}, &fakeLive{})

	rr := do(h, http.MethodGet, "/api/agents/1001/shifts", "")
	if strings.TrimSpace(rr.Body.String()) != "[]" {
		t.Errorf("body = %q, want []", rr.Body.String())
	}
}

func TestGetQueueStats(t *testing.T) {
	history := &fakeHistory{stats: []types.QueueStats{
		{QueueID: "support", Date: "2026-03-03", Total: 3},
		{QueueID: "support", Date: "2026-03-01", Total: 1},
		{QueueID: "support", Date: "2026-03-02", Total: 2},
	}}
	h := newRouter(&fakeRoster{}, history, &fakeLive{})

	tests := []struct {
		name  string
		query string
		want  []string
		code  int
	}{
		{"all sorted", "", []string{"2026-03-01", "2026-03-02", "2026-03-03"}, http.StatusOK},
		{"from", "?from=2026-03-02", []string{"2026-03-02", "2026-03-03"}, http.StatusOK},
		{"range", "?from=2026-03-02&to=2026-03-02", []string{"2026-03-02"}, http.StatusOK},
		{"bad date", "?from=yesterday", nil, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := do(h, http.MethodGet, "/api/queues/support/stats"+tt.query, "")
			if rr.Code != tt.code {
				t.Fatalf("status = %d, want %d", rr.Code, tt.code)
			}
			if tt.code != http.StatusOK {
				return
			}
			var got []types.QueueStats
			if err := json.NewDecoder(rr.Body).Decode(&got); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("got %d records, want %d", len(got), len(tt.want))
			}
			for i, d := range tt.want {
				if got[i].Date != d {
					t.Errorf("record %d date = %s, want %s", i, got[i].Date, d)
				}
			}
		})
	}
}

func TestGetQueueStatsStoreError(t *testing.T) {
	h := newRouter(&fakeRoster{}, &fakeHistory{err: errors.New("table missing")}, &fakeLive{})

	if rr := do(h, http.MethodGet, "/api/queues/support/stats", ""); rr.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", rr.Code)
	}
}

func TestLiveHandlers(t *testing.T) {
	live := &fakeLive{agents: map[string]types.AgentView{"1001": {Extension: "1001", Status: types.AgentIdle}}}
	h := newRouter(&fakeRoster{}, &fakeHistory{}, live)

	if rr := do(h, http.MethodGet, "/api/agents/1001", ""); rr.Code != http.StatusOK {
		t.Errorf("agent status = %d, want 200", rr.Code)
	}
	if rr := do(h, http.MethodGet, "/api/agents/9999", ""); rr.Code != http.StatusNotFound {
		t.Errorf("unknown agent status = %d, want 404", rr.Code)
	}
	if rr := do(h, http.MethodGet, "/api/calls/L1", ""); rr.Code != http.StatusNotFound {
		t.Errorf("unknown call status = %d, want 404", rr.Code)
	}
	if rr := do(h, http.MethodGet, "/api/live", ""); rr.Code != http.StatusOK {
		t.Errorf("live status = %d, want 200", rr.Code)
	}
}
