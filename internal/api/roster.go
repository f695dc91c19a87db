package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/dennisdiepolder/monti/pbxlive/internal/types"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
)

// Roster applies identity changes on the engine
type Roster interface {
	UpsertAgent(ctx context.Context, r types.AgentRecord) (types.AgentRecord, error)
	RemoveAgent(ctx context.Context, extension string) (bool, error)
}

// RosterEntry represents a single agent in the roster payload
type RosterEntry struct {
	Extension string   `json:"extension"`
	Name      string   `json:"name"`
	Queues    []string `json:"queues"`
}

// RosterHandler handles agent identity registration
type RosterHandler struct {
	roster Roster
	logger zerolog.Logger
}

// NewRosterHandler creates a new RosterHandler
func NewRosterHandler(roster Roster, logger zerolog.Logger) *RosterHandler {
	return &RosterHandler{
		roster: roster,
		logger: logger.With().Str("component", "roster").Logger(),
	}
}

// HandleRoster handles POST /internal/agents/roster
func (h *RosterHandler) HandleRoster(w http.ResponseWriter, r *http.Request) {
	var roster []RosterEntry
	if err := json.NewDecoder(r.Body).Decode(&roster); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	registered, skipped := 0, 0
	for _, entry := range roster {
		ext := strings.TrimSpace(entry.Extension)
		if ext == "" {
			skipped++
			continue
		}
		_, err := h.roster.UpsertAgent(r.Context(), types.AgentRecord{
			Extension: ext,
			Name:      entry.Name,
			Queues:    entry.Queues,
		})
		if err != nil {
			h.logger.Error().Err(err).Str("extension", ext).Msg("failed to register agent")
			writeError(w, http.StatusServiceUnavailable, "engine unavailable")
			return
		}
		registered++
	}

	h.logger.Info().Int("registered", registered).Int("skipped", skipped).Msg("roster received")

	writeJSON(w, http.StatusOK, map[string]int{"registered": registered, "skipped": skipped})
}

// HandleRemove handles DELETE /internal/agents/{extension}
func (h *RosterHandler) HandleRemove(w http.ResponseWriter, r *http.Request) {
	ext := chi.URLParam(r, "extension")

	removed, err := h.roster.RemoveAgent(r.Context(), ext)
	if err != nil {
		h.logger.Error().Err(err).Str("extension", ext).Msg("failed to remove agent")
		writeError(w, http.StatusServiceUnavailable, "engine unavailable")
		return
	}
	if !removed {
		writeError(w, http.StatusNotFound, "unknown extension")
		return
	}

	h.logger.Info().Str("extension", ext).Msg("agent removed")
	w.WriteHeader(http.StatusNoContent)
}
