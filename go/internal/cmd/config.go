package main

import (
	"fmt"
	"os"

	"github.com/mcdev12/roomclock/go/internal/config"
)

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// loadConfig reads ROOMCLOCK_CONFIG (default roomclock.yaml) and validates it.
func loadConfig() (*config.Config, error) {
	path := getEnv("ROOMCLOCK_CONFIG", "roomclock.yaml")
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
