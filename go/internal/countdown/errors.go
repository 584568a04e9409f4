package countdown

import (
	"errors"
	"fmt"
)

var (
	ErrNegativeDuration = errors.New("duration must not be negative")
	ErrInvalidThreshold = errors.New("alert thresholds must be positive minutes")
	ErrNoOffset         = errors.New("clock offset provider is required")
	ErrNoClock          = errors.New("no clock available to schedule ticks")
	ErrNotInitialized   = errors.New("engine has not been initialized")
)

// ConfigurationError reports input rejected by Initialize. The engine does
// not start.
type ConfigurationError struct {
	Field string
	Err   error
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("countdown configuration: %s: %v", e.Field, e.Err)
}

func (e *ConfigurationError) Unwrap() error { return e.Err }

// SchedulingError reports that the tick timer could not be armed. It is fatal
// for the engine instance and is not retried.
type SchedulingError struct {
	Err error
}

func (e *SchedulingError) Error() string {
	return fmt.Sprintf("countdown scheduling: %v", e.Err)
}

func (e *SchedulingError) Unwrap() error { return e.Err }
