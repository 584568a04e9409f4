package main

import (
	"fmt"
	"net/http"
	"time"

	"github.com/mcdev12/roomclock/go/internal/config"
)

func setupServer(cfg *config.Config, services *Services) *http.Server {
	return &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Gateway.Port),
		Handler:           services.Gateway.Handler(services.BreakoutHandler, services.ChatExport),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
}
