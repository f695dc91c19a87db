package event

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dennisdiepolder/monti/pbxlive/internal/ami"
	"github.com/dennisdiepolder/monti/pbxlive/internal/metrics"
	"github.com/rs/zerolog"
)

const maxBody = 1 << 20

// Submitter accepts normalized events in arrival order
type Submitter interface {
	Submit(ctx context.Context, ev Event) error
}

// Receiver accepts raw manager events over HTTP, for replaying captures and
// for PBX setups that push events instead of holding a manager session
type Receiver struct {
	engine   Submitter
	logger   zerolog.Logger
	received int64
	accepted int64
	ignored  int64
	invalid  int64

	mu           sync.RWMutex
	lastReceived time.Time
}

// NewReceiver creates a new event receiver
func NewReceiver(engine Submitter, logger zerolog.Logger) *Receiver {
	return &Receiver{
		engine: engine,
		logger: logger.With().Str("component", "event-receiver").Logger(),
	}
}

// HandleEvent accepts one JSON object of manager headers, or an array of them
func (r *Receiver) HandleEvent(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	body, err := io.ReadAll(io.LimitReader(req.Body, maxBody))
	if err != nil {
		http.Error(w, "failed to read body", http.StatusBadRequest)
		return
	}
	raws, err := decodeRaw(body)
	if err != nil {
		r.logger.Warn().Err(err).Msg("failed to decode event")
		http.Error(w, "invalid event", http.StatusBadRequest)
		return
	}

	m := metrics.Get()
	var accepted, ignored, invalid int
	for _, raw := range raws {
		m.RecordEventReceived()
		atomic.AddInt64(&r.received, 1)

		ev, err := Normalize(ami.FromMap(raw))
		switch {
		case errors.Is(err, ErrIgnored):
			ignored++
			continue
		case err != nil:
			m.RecordEventDropped("invalid")
			r.logger.Warn().Err(err).Msg("dropping injected event")
			invalid++
			continue
		}

		if err := r.engine.Submit(req.Context(), ev); err != nil {
			r.logger.Error().Err(err).Msg("engine rejected event")
			http.Error(w, "engine unavailable", http.StatusServiceUnavailable)
			return
		}
		accepted++
	}

	atomic.AddInt64(&r.accepted, int64(accepted))
	atomic.AddInt64(&r.ignored, int64(ignored))
	atomic.AddInt64(&r.invalid, int64(invalid))
	r.mu.Lock()
	r.lastReceived = time.Now()
	r.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(map[string]int{
		"accepted": accepted,
		"ignored":  ignored,
		"invalid":  invalid,
	})
}

// GetStats returns receiver statistics
func (r *Receiver) GetStats(w http.ResponseWriter, req *http.Request) {
	r.mu.RLock()
	lastReceived := r.lastReceived
	r.mu.RUnlock()

	stats := map[string]interface{}{
		"events_received": atomic.LoadInt64(&r.received),
		"events_accepted": atomic.LoadInt64(&r.accepted),
		"events_ignored":  atomic.LoadInt64(&r.ignored),
		"events_invalid":  atomic.LoadInt64(&r.invalid),
		"last_received":   lastReceived,
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(stats)
}

func decodeRaw(body []byte) ([]map[string]string, error) {
	var many []map[string]string
	if err := json.Unmarshal(body, &many); err == nil {
		return many, nil
	}
	var one map[string]string
	if err := json.Unmarshal(body, &one); err != nil {
		return nil, err
	}
	return []map[string]string{one}, nil
}
