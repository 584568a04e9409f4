// Package config loads roomclock settings from YAML with environment overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

// Config is the root configuration.
type Config struct {
	App       AppConfig       `yaml:"app"`
	Countdown CountdownConfig `yaml:"countdown"`
	Meeting   MeetingConfig   `yaml:"meeting"`
	NATS      NATSConfig      `yaml:"nats"`
	Gateway   GatewayConfig   `yaml:"gateway"`
	Log       LogConfig       `yaml:"log"`
}

// AppConfig mirrors the client settings that shape the countdown.
type AppConfig struct {
	// RemainingTimeAlertThresholds is in minutes.
	RemainingTimeAlertThresholds []int `yaml:"remaining_time_alert_thresholds"`
	DisplayAlerts                bool  `yaml:"display_alerts"`
	// BreakoutDuration takes the countdown from the first breakout room
	// instead of the meeting.
	BreakoutDuration bool `yaml:"breakout_duration"`
}

type CountdownConfig struct {
	DriftToleranceSeconds int `yaml:"drift_tolerance_seconds"`
}

type MeetingConfig struct {
	ID string `yaml:"id"`
}

// NATSConfig holds the connection and every subject the service touches.
type NATSConfig struct {
	URL           string        `yaml:"url"`
	MaxReconnects int           `yaml:"max_reconnects"`
	ReconnectWait time.Duration `yaml:"reconnect_wait"`

	Stream              string `yaml:"stream"`
	Consumer            string `yaml:"consumer"`
	EventsSubjectPrefix string `yaml:"events_subject_prefix"`

	TimeRequestSubject string        `yaml:"time_request_subject"`
	TimePushSubject    string        `yaml:"time_push_subject"`
	TimeSyncInterval   time.Duration `yaml:"time_sync_interval"`

	NotifySubjectPrefix string `yaml:"notify_subject_prefix"`
	CaptureSubject      string `yaml:"capture_subject"`
	ToAkkaAppsSubject   string `yaml:"to_akka_apps_subject"`
	FromAkkaAppsSubject string `yaml:"from_akka_apps_subject"`
}

type GatewayConfig struct {
	Port           int           `yaml:"port"`
	AllowedOrigins []string      `yaml:"allowed_origins"`
	WriteTimeout   time.Duration `yaml:"write_timeout"`
	ReadTimeout    time.Duration `yaml:"read_timeout"`
	PingInterval   time.Duration `yaml:"ping_interval"`
}

type LogConfig struct {
	Level string `yaml:"level"`
}

// Default returns a Config populated with defaults.
func Default() *Config {
	return &Config{
		App: AppConfig{
			RemainingTimeAlertThresholds: []int{1, 5},
			DisplayAlerts:                true,
		},
		Countdown: CountdownConfig{
			DriftToleranceSeconds: 2,
		},
		NATS: NATSConfig{
			URL:                 "nats://localhost:4222",
			MaxReconnects:       -1,
			ReconnectWait:       2 * time.Second,
			Stream:              "MEETING_EVENTS",
			Consumer:            "roomclock",
			EventsSubjectPrefix: "meeting.events",
			TimeRequestSubject:  "meeting.time.request",
			TimePushSubject:     "meeting.time.push",
			TimeSyncInterval:    time.Minute,
			NotifySubjectPrefix: "meeting.notifications",
			CaptureSubject:      "meeting.capture.upload",
			ToAkkaAppsSubject:   "to-akka-apps-redis-channel",
			FromAkkaAppsSubject: "from-akka-apps-redis-channel",
		},
		Gateway: GatewayConfig{
			Port:           8081,
			AllowedOrigins: []string{"*"},
			WriteTimeout:   10 * time.Second,
			ReadTimeout:    60 * time.Second,
			PingInterval:   30 * time.Second,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load reads the YAML file at path over Default(). A missing file yields the
// defaults. Environment overrides are applied last:
//
//	ROOMCLOCK_MEETING_ID         meeting.id
//	ROOMCLOCK_ALERT_THRESHOLDS   app.remaining_time_alert_thresholds, comma separated
//	ROOMCLOCK_DISPLAY_ALERTS     app.display_alerts
//	ROOMCLOCK_BREAKOUT_DURATION  app.breakout_duration
//	NATS_URL                     nats.url
//	GATEWAY_PORT                 gateway.port
//	LOG_LEVEL                    log.level
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	if err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	if err := applyEnv(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) error {
	cfg.Meeting.ID = getEnv("ROOMCLOCK_MEETING_ID", cfg.Meeting.ID)
	cfg.NATS.URL = getEnv("NATS_URL", cfg.NATS.URL)
	cfg.Log.Level = getEnv("LOG_LEVEL", cfg.Log.Level)
	cfg.Gateway.Port = getEnvAsInt("GATEWAY_PORT", cfg.Gateway.Port)
	cfg.App.DisplayAlerts = getEnvAsBool("ROOMCLOCK_DISPLAY_ALERTS", cfg.App.DisplayAlerts)
	cfg.App.BreakoutDuration = getEnvAsBool("ROOMCLOCK_BREAKOUT_DURATION", cfg.App.BreakoutDuration)

	if v := os.Getenv("ROOMCLOCK_ALERT_THRESHOLDS"); v != "" {
		var minutes []int
		for _, part := range strings.Split(v, ",") {
			m, err := strconv.Atoi(strings.TrimSpace(part))
			if err != nil {
				return fmt.Errorf("ROOMCLOCK_ALERT_THRESHOLDS: %w", err)
			}
			minutes = append(minutes, m)
		}
		cfg.App.RemainingTimeAlertThresholds = minutes
	}
	return nil
}

// Validate returns the first inconsistency found.
func (c *Config) Validate() error {
	if c.Meeting.ID == "" {
		return errors.New("meeting.id must not be empty")
	}
	for _, m := range c.App.RemainingTimeAlertThresholds {
		if m <= 0 {
			return fmt.Errorf("app.remaining_time_alert_thresholds must be positive, got %d", m)
		}
	}
	if d := c.Countdown.DriftToleranceSeconds; d < 0 || d == 1 {
		// A tick can sit one second off the recomputed value at a boundary.
		return fmt.Errorf("countdown.drift_tolerance_seconds must be 0 (off) or at least 2, got %d", d)
	}
	if c.NATS.URL == "" {
		return errors.New("nats.url must not be empty")
	}
	if c.NATS.TimeSyncInterval <= 0 {
		return errors.New("nats.time_sync_interval must be positive")
	}
	if c.Gateway.Port < 1 || c.Gateway.Port > 65535 {
		return errors.New("gateway.port must be between 1 and 65535")
	}
	if c.Gateway.PingInterval <= 0 || c.Gateway.ReadTimeout <= 0 || c.Gateway.WriteTimeout <= 0 {
		return errors.New("gateway.ping_interval, gateway.read_timeout and gateway.write_timeout must be positive")
	}
	if _, err := zerolog.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("log.level: %w", err)
	}
	return nil
}

// LogLevel returns the parsed log level, falling back to info.
func (c *Config) LogLevel() zerolog.Level {
	lvl, err := zerolog.ParseLevel(c.Log.Level)
	if err != nil || lvl == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return lvl
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}
