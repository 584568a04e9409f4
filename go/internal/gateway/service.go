// Package gateway pushes countdown events to viewers over WebSocket and serves
// the current countdown state over HTTP.
package gateway

import (
	"context"
	"net/http"

	"github.com/rs/cors"
	"github.com/rs/zerolog/log"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"
)

// Config holds configuration for the gateway.
type Config struct {
	Hub            HubConfig
	AllowedOrigins []string
}

// DefaultConfig returns default configuration for the gateway.
func DefaultConfig() Config {
	return Config{
		Hub:            DefaultHubConfig(),
		AllowedOrigins: []string{"*"},
	}
}

// Service bundles the viewer hub and the HTTP handlers.
type Service struct {
	config       Config
	hub          *Hub
	wsHandler    *WebSocketHandler
	stateHandler *StateHandler
	health       *healthHandler
}

// NewService creates a new gateway service.
func NewService(config Config, stateProvider StateProvider) *Service {
	hub := NewHub(config.Hub)
	return &Service{
		config:       config,
		hub:          hub,
		wsHandler:    NewWebSocketHandler(hub, stateProvider),
		stateHandler: NewStateHandler(stateProvider),
		health:       &healthHandler{hub: hub},
	}
}

// SetHealthChecker makes /health report checker's status as JSON. Without a
// checker /health answers a plain OK. Call before serving.
func (s *Service) SetHealthChecker(checker HealthChecker) {
	s.health.checker = checker
}

// Start runs the broadcast loop until ctx is cancelled.
func (s *Service) Start(ctx context.Context) {
	log.Info().Msg("starting countdown gateway")
	s.hub.Start(ctx)
	log.Info().Msg("countdown gateway stopped")
}

// Broadcast sends event to every viewer of meetingID.
func (s *Service) Broadcast(meetingID string, event *Event) {
	s.hub.BroadcastToMeeting(meetingID, event)
}

// Stats returns connection statistics.
func (s *Service) Stats() ConnectionStats {
	return s.hub.GetConnectionStats()
}

// RegisterRoutes registers the WebSocket, state and health routes.
func (s *Service) RegisterRoutes(mux *http.ServeMux) {
	s.wsHandler.RegisterRoutes(mux)
	s.stateHandler.RegisterStateRoutes(mux)
	mux.Handle("/health", s.health)
	log.Info().Msg("countdown gateway routes registered")
}

// RouteRegistrar adds routes to a mux.
type RouteRegistrar interface {
	RegisterRoutes(mux *http.ServeMux)
}

// Handler returns the full HTTP handler: the gateway routes plus extra, wrapped
// with CORS and served over HTTP/1.1 or cleartext HTTP/2.
func (s *Service) Handler(extra ...RouteRegistrar) http.Handler {
	mux := http.NewServeMux()
	s.RegisterRoutes(mux)
	for _, r := range extra {
		r.RegisterRoutes(mux)
	}

	c := cors.New(cors.Options{
		AllowedMethods: []string{
			http.MethodHead,
			http.MethodGet,
			http.MethodPost,
			http.MethodOptions,
		},
		AllowedOrigins: s.config.AllowedOrigins,
		AllowedHeaders: []string{"*"},
	})
	return h2c.NewHandler(c.Handler(mux), &http2.Server{})
}
