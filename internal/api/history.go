package api

import (
	"context"
	"net/http"
	"sort"
	"strconv"
	"time"

	"github.com/dennisdiepolder/monti/pbxlive/internal/types"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
)

// HistoryStore is the read side of durable storage
type HistoryStore interface {
	ListShifts(ctx context.Context, agentID string) ([]types.ShiftRecord, error)
	ListQueueStats(ctx context.Context, queueID string) ([]types.QueueStats, error)
}

// HistoryHandler provides REST endpoints for persisted history
type HistoryHandler struct {
	store  HistoryStore
	logger zerolog.Logger
}

// NewHistoryHandler creates a new HistoryHandler
func NewHistoryHandler(store HistoryStore, logger zerolog.Logger) *HistoryHandler {
	return &HistoryHandler{
		store:  store,
		logger: logger.With().Str("component", "history_handler").Logger(),
	}
}

// GetShifts returns an agent's shifts, newest first
// GET /api/agents/{extension}/shifts?limit=N
func (h *HistoryHandler) GetShifts(w http.ResponseWriter, r *http.Request) {
	ext := chi.URLParam(r, "extension")

	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		limit = n
	}

	shifts, err := h.store.ListShifts(r.Context(), ext)
	if err != nil {
		h.logger.Error().Err(err).Str("extension", ext).Msg("failed to list shifts")
		writeError(w, http.StatusInternalServerError, "failed to retrieve shifts")
		return
	}

	sort.Slice(shifts, func(i, j int) bool {
		return shifts[i].StartTime.After(shifts[j].StartTime)
	})
	if limit > 0 && len(shifts) > limit {
		shifts = shifts[:limit]
	}
	if shifts == nil {
		shifts = []types.ShiftRecord{}
	}

	writeJSON(w, http.StatusOK, shifts)
}

// GetQueueStats returns a queue's daily records, oldest first
// GET /api/queues/{queue}/stats?from=YYYY-MM-DD&to=YYYY-MM-DD
func (h *HistoryHandler) GetQueueStats(w http.ResponseWriter, r *http.Request) {
	queueID := chi.URLParam(r, "queue")

	from, to := r.URL.Query().Get("from"), r.URL.Query().Get("to")
	for _, d := range []string{from, to} {
		if d == "" {
			continue
		}
		if _, err := time.Parse(types.DateKeyFormat, d); err != nil {
			writeError(w, http.StatusBadRequest, "dates must be YYYY-MM-DD")
			return
		}
	}

	records, err := h.store.ListQueueStats(r.Context(), queueID)
	if err != nil {
		h.logger.Error().Err(err).Str("queue", queueID).Msg("failed to list queue stats")
		writeError(w, http.StatusInternalServerError, "failed to retrieve queue stats")
		return
	}

	out := make([]types.QueueStats, 0, len(records))
	for _, rec := range records {
		// Date keys sort lexically
		if from != "" && rec.Date < from {
			continue
		}
		if to != "" && rec.Date > to {
			continue
		}
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date < out[j].Date })

	writeJSON(w, http.StatusOK, out)
}
