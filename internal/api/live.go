package api

import (
	"context"
	"net/http"

	"github.com/dennisdiepolder/monti/pbxlive/internal/engine"
	"github.com/dennisdiepolder/monti/pbxlive/internal/types"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
)

// LiveState answers queries against the engine's in-memory state
type LiveState interface {
	Snapshot(ctx context.Context) (engine.Snapshot, error)
	Agent(ctx context.Context, extension string) (types.AgentView, bool, error)
	Call(ctx context.Context, correlationID string) (types.CallView, bool, error)
}

// LiveHandler serves point-in-time views for dashboards that poll
type LiveHandler struct {
	state  LiveState
	logger zerolog.Logger
}

// NewLiveHandler creates a new LiveHandler
func NewLiveHandler(state LiveState, logger zerolog.Logger) *LiveHandler {
	return &LiveHandler{
		state:  state,
		logger: logger.With().Str("component", "live_handler").Logger(),
	}
}

// GetSnapshot handles GET /api/live
func (h *LiveHandler) GetSnapshot(w http.ResponseWriter, r *http.Request) {
	snap, err := h.state.Snapshot(r.Context())
	if err != nil {
		h.logger.Error().Err(err).Msg("snapshot failed")
		writeError(w, http.StatusServiceUnavailable, "engine unavailable")
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// GetAgent handles GET /api/agents/{extension}
func (h *LiveHandler) GetAgent(w http.ResponseWriter, r *http.Request) {
	v, ok, err := h.state.Agent(r.Context(), chi.URLParam(r, "extension"))
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, "engine unavailable")
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, "agent not active")
		return
	}
	writeJSON(w, http.StatusOK, v)
}

// GetCall handles GET /api/calls/{correlationId}
func (h *LiveHandler) GetCall(w http.ResponseWriter, r *http.Request) {
	v, ok, err := h.state.Call(r.Context(), chi.URLParam(r, "correlationId"))
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, "engine unavailable")
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, "call not live")
		return
	}
	writeJSON(w, http.StatusOK, v)
}
