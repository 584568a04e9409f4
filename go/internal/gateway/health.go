package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
)

// HealthStatus is the body of /health when a checker is configured.
type HealthStatus struct {
	Healthy        bool     `json:"healthy"`
	NATSConnected  bool     `json:"nats_connected"`
	ClockSynced    bool     `json:"clock_synced"`
	ClockOffsetMs  int64    `json:"clock_offset_ms"`
	CountdownPhase string   `json:"countdown_phase"`
	Connections    int      `json:"connections"`
	Errors         []string `json:"errors"`
}

// HealthChecker reports the health of the process behind the gateway.
type HealthChecker interface {
	Check(ctx context.Context) HealthStatus
}

type healthHandler struct {
	checker HealthChecker
	hub     *Hub
}

func (h *healthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h.checker == nil {
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte("OK")); err != nil {
			log.Error().Err(err).Msg("failed to write health check response")
		}
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := h.checker.Check(ctx)
	status.Connections = h.hub.GetConnectionStats().TotalConnections
	if status.Errors == nil {
		status.Errors = []string{}
	}

	w.Header().Set("Content-Type", "application/json")
	if !status.Healthy {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	if err := json.NewEncoder(w).Encode(status); err != nil {
		log.Error().Err(err).Msg("failed to encode health status")
	}
}
