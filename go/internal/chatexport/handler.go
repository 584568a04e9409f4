package chatexport

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

// ExportRequest is the body of POST /api/chat/export.
type ExportRequest struct {
	Messages []Message `json:"messages"`
	Welcome  Welcome   `json:"welcome"`
}

// Handler serves chat exports as text file downloads.
type Handler struct {
	tr    Translator
	clock clockwork.Clock
}

// NewHandler creates a new handler.
func NewHandler(tr Translator, clock clockwork.Clock) *Handler {
	return &Handler{tr: tr, clock: clock}
}

// HandleExport handles POST /api/chat/export.
func (h *Handler) HandleExport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req ExportRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	text, err := Export(req.Messages, req.Welcome, h.tr)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	filename := fmt.Sprintf("public-chat-%s.txt", DateString(h.clock.Now()))
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	if _, err := w.Write([]byte(text)); err != nil {
		log.Error().Err(err).Msg("failed to write chat export")
	}
}

// RegisterRoutes registers the export route.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/api/chat/export", h.HandleExport)
}
