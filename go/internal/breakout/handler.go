package breakout

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog/log"
)

// JoinURLHTTPRequest is the body of POST /api/breakout/join-url.
type JoinURLHTTPRequest struct {
	MeetingID       string `json:"meetingId"`
	RequesterUserID string `json:"requesterUserId"`
	RequesterToken  string `json:"requesterToken"`
	BreakoutID      string `json:"breakoutId"`
	UserID          string `json:"userId,omitempty"`
}

// JoinURLHTTPResponse reports either the URL or that it was requested.
type JoinURLHTTPResponse struct {
	URL     string `json:"url,omitempty"`
	Pending bool   `json:"pending"`
}

// Handler serves join URL requests.
type Handler struct {
	requester *Requester
}

// NewHandler creates a new handler.
func NewHandler(r *Requester) *Handler {
	return &Handler{requester: r}
}

// HandleJoinURL handles POST /api/breakout/join-url.
func (h *Handler) HandleJoinURL(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req JoinURLHTTPRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.BreakoutID == "" {
		http.Error(w, "breakoutId is required", http.StatusBadRequest)
		return
	}

	creds := Credentials{
		MeetingID:       req.MeetingID,
		RequesterUserID: req.RequesterUserID,
		RequesterToken:  req.RequesterToken,
	}
	url, err := h.requester.RequestJoinURL(r.Context(), creds, req.BreakoutID, req.UserID)
	if errors.Is(err, ErrInvalidCredentials) {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err != nil {
		log.Error().Err(err).Str("breakout_id", req.BreakoutID).Msg("failed to request join URL")
		http.Error(w, "Failed to request join URL", http.StatusBadGateway)
		return
	}

	status := http.StatusOK
	if url == "" {
		status = http.StatusAccepted
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(JoinURLHTTPResponse{URL: url, Pending: url == ""}); err != nil {
		log.Error().Err(err).Msg("failed to encode join URL response")
	}
}

// RegisterRoutes registers the breakout routes.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/api/breakout/join-url", h.HandleJoinURL)
}
