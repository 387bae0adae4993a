package gateway

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/mcdev12/manhunt/go/internal/results"
	"github.com/mcdev12/manhunt/go/internal/roomstore"
	"github.com/rs/zerolog/log"
)

// StateHandler serves the REST state-sync surface.
type StateHandler struct {
	stateProvider StateProvider
}

// NewStateHandler creates a state handler.
func NewStateHandler(provider StateProvider) *StateHandler {
	return &StateHandler{stateProvider: provider}
}

// HandleGetRoomState handles GET /api/rooms/{id}/state.
func (h *StateHandler) HandleGetRoomState(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	roomID := extractRoomID(r.URL.Path, "/state")
	if roomID == "" {
		http.Error(w, "Room ID is required", http.StatusBadRequest)
		return
	}

	state, err := h.stateProvider.GetRoomState(r.Context(), roomID)
	if errors.Is(err, roomstore.ErrNotFound) {
		http.Error(w, "Room not found", http.StatusNotFound)
		return
	}
	if err != nil {
		log.Error().Err(err).Str("room_id", roomID).Msg("failed to get room state")
		http.Error(w, "Failed to get room state", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(state); err != nil {
		log.Error().Err(err).Msg("failed to encode room state response")
	}
}

// HandleGetRoomResult handles GET /api/rooms/{id}/result.
func (h *StateHandler) HandleGetRoomResult(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	roomID := extractRoomID(r.URL.Path, "/result")
	if roomID == "" {
		http.Error(w, "Room ID is required", http.StatusBadRequest)
		return
	}

	result, err := h.stateProvider.GetRoomResult(r.Context(), roomID)
	if errors.Is(err, results.ErrNotFound) || errors.Is(err, roomstore.ErrNotFound) {
		http.Error(w, "Result not found", http.StatusNotFound)
		return
	}
	if err != nil {
		log.Error().Err(err).Str("room_id", roomID).Msg("failed to get room result")
		http.Error(w, "Failed to get room result", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(result); err != nil {
		log.Error().Err(err).Msg("failed to encode room result response")
	}
}

// RegisterStateRoutes registers the REST routes.
func (h *StateHandler) RegisterStateRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/api/rooms/", func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasSuffix(r.URL.Path, "/state"):
			h.HandleGetRoomState(w, r)
		case strings.HasSuffix(r.URL.Path, "/result"):
			h.HandleGetRoomResult(w, r)
		default:
			http.NotFound(w, r)
		}
	})
}

// extractRoomID pulls the room id out of paths like /api/rooms/{id}/state.
func extractRoomID(path, suffix string) string {
	const prefix = "/api/rooms/"
	if !strings.HasPrefix(path, prefix) || !strings.HasSuffix(path, suffix) {
		return ""
	}
	id := strings.TrimSuffix(strings.TrimPrefix(path, prefix), suffix)
	if id == "" || strings.Contains(id, "/") {
		return ""
	}
	return id
}
