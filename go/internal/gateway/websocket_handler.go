package gateway

import (
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog/log"
)

// WebSocketHandler handles WebSocket upgrade requests from countdown viewers.
type WebSocketHandler struct {
	hub           *Hub
	stateProvider StateProvider
}

// NewWebSocketHandler creates a new WebSocket handler. With a non-nil
// provider every new viewer first receives a CountdownState event.
func NewWebSocketHandler(hub *Hub, provider StateProvider) *WebSocketHandler {
	return &WebSocketHandler{
		hub:           hub,
		stateProvider: provider,
	}
}

// HandleCountdownConnection handles /ws/countdown?meeting_id=...&user_id=...
func (h *WebSocketHandler) HandleCountdownConnection(w http.ResponseWriter, r *http.Request) {
	meetingID := r.URL.Query().Get("meeting_id")
	if meetingID == "" {
		http.Error(w, "meeting_id is required", http.StatusBadRequest)
		return
	}
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		userID = "anonymous"
	}

	viewer, err := h.hub.Attach(w, r, userID, meetingID)
	if err != nil {
		// The upgrader has already written an HTTP error response.
		log.Error().
			Err(err).
			Str("meeting_id", meetingID).
			Str("user_id", userID).
			Msg("failed to upgrade WebSocket connection")
		return
	}

	if h.stateProvider == nil {
		return
	}
	state, err := h.stateProvider.CountdownState(r.Context(), meetingID)
	if err != nil {
		log.Debug().Err(err).Str("meeting_id", meetingID).Msg("no initial countdown state for viewer")
		return
	}
	event, err := NewEvent(meetingID, EventTypeCountdownState, state)
	if err != nil {
		log.Error().Err(err).Msg("failed to build initial state event")
		return
	}
	if err := h.hub.SendTo(viewer, event); err != nil {
		log.Warn().Err(err).Str("viewer_id", viewer.ID).Msg("failed to send initial state")
	}
}

// HandleConnectionStats returns statistics about active connections.
func (h *WebSocketHandler) HandleConnectionStats(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(h.hub.GetConnectionStats()); err != nil {
		log.Error().Err(err).Msg("failed to encode connection stats")
	}
}

// RegisterRoutes registers WebSocket routes with an HTTP mux.
func (h *WebSocketHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/ws/countdown", h.HandleCountdownConnection)
	mux.HandleFunc("/ws/stats", h.HandleConnectionStats)
}
