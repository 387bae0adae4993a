package gateway

import (
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog/log"
)

// WebSocketHandler handles websocket upgrade requests for room feeds.
type WebSocketHandler struct {
	connectionManager *ConnectionManager
}

// NewWebSocketHandler creates a websocket handler.
func NewWebSocketHandler(cm *ConnectionManager) *WebSocketHandler {
	return &WebSocketHandler{connectionManager: cm}
}

// HandleRoomConnection handles websocket connections for one room.
func (h *WebSocketHandler) HandleRoomConnection(w http.ResponseWriter, r *http.Request) {
	roomID := r.URL.Query().Get("room_id")
	if roomID == "" {
		http.Error(w, "room_id is required", http.StatusBadRequest)
		return
	}

	// The uid comes straight from the query string; auth is the embedding
	// app's concern, not the gateway's.
	userUID := r.URL.Query().Get("uid")
	if userUID == "" {
		userUID = "anonymous"
	}

	if err := h.connectionManager.UpgradeConnection(w, r, userUID, roomID); err != nil {
		log.Error().
			Err(err).
			Str("room_id", roomID).
			Str("uid", userUID).
			Msg("failed to upgrade websocket connection")
		http.Error(w, "failed to upgrade connection", http.StatusInternalServerError)
		return
	}
}

// HandleConnectionStats returns connection pool statistics.
func (h *WebSocketHandler) HandleConnectionStats(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(h.connectionManager.GetStats()); err != nil {
		log.Error().Err(err).Msg("failed to encode connection stats")
	}
}

// RegisterRoutes registers the websocket routes.
func (h *WebSocketHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/ws/room", h.HandleRoomConnection)
	mux.HandleFunc("/ws/stats", h.HandleConnectionStats)
}
