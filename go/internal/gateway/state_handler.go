package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog/log"
)

// ErrUnknownMeeting is returned by a StateProvider for meetings it does not track.
var ErrUnknownMeeting = errors.New("unknown meeting")

// StateProvider reports the current countdown for a meeting.
type StateProvider interface {
	CountdownState(ctx context.Context, meetingID string) (*CountdownStateResponse, error)
}

// CountdownStateResponse is the current countdown of one meeting.
type CountdownStateResponse struct {
	MeetingID             string `json:"meeting_id"`
	CountdownID           string `json:"countdown_id"`
	Phase                 string `json:"phase"`
	Loading               bool   `json:"loading"`
	IsBreakout            bool   `json:"is_breakout"`
	BreakoutDuration      bool   `json:"breakout_duration"`
	DurationSec           int    `json:"duration_sec"`
	ReferenceStartedTime  int64  `json:"reference_started_time"`
	RemainingSec          int    `json:"remaining_sec"`
	Display               string `json:"display"`
	Message               string `json:"message,omitempty"`
	LastFiredThresholdSec *int   `json:"last_fired_threshold_sec,omitempty"`
	ClockOffsetMs         int64  `json:"clock_offset_ms"`
}

// StateHandler serves GET /api/countdown/state.
type StateHandler struct {
	stateProvider StateProvider
}

// NewStateHandler creates a new state handler.
func NewStateHandler(provider StateProvider) *StateHandler {
	return &StateHandler{stateProvider: provider}
}

// HandleGetCountdownState handles GET /api/countdown/state?meeting_id=...
func (h *StateHandler) HandleGetCountdownState(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	meetingID := r.URL.Query().Get("meeting_id")
	if meetingID == "" {
		http.Error(w, "meeting_id is required", http.StatusBadRequest)
		return
	}

	state, err := h.stateProvider.CountdownState(r.Context(), meetingID)
	if errors.Is(err, ErrUnknownMeeting) {
		http.Error(w, "Meeting not found", http.StatusNotFound)
		return
	}
	if err != nil {
		log.Error().Err(err).Str("meeting_id", meetingID).Msg("failed to get countdown state")
		http.Error(w, "Failed to get countdown state", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(state); err != nil {
		log.Error().Err(err).Msg("failed to encode countdown state response")
	}
}

// RegisterStateRoutes registers state-related HTTP routes.
func (h *StateHandler) RegisterStateRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/api/countdown/state", h.HandleGetCountdownState)
}
