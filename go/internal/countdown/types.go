package countdown

// Session is the externally supplied description of one countdown.
// A new Session value always re-initializes an engine; it is never patched.
type Session struct {
	ReferenceStartedTime int64 `json:"reference_started_time"` // unix ms
	DurationSeconds      int   `json:"duration_seconds"`
	IsBreakout           bool  `json:"is_breakout"`
}

// EndMs returns the reference-clock instant at which the session ends.
func (s Session) EndMs() int64 {
	return s.ReferenceStartedTime + int64(s.DurationSeconds)*1000
}

// Active reports whether the session describes a running countdown.
func (s Session) Active() bool {
	return s.DurationSeconds > 0
}

// OffsetProvider supplies the current offset between the local clock and the
// reference clock: local + offset ≈ reference. It may change between calls.
type OffsetProvider interface {
	OffsetMs() int64
}

// OffsetFunc adapts a plain function to OffsetProvider.
type OffsetFunc func() int64

func (f OffsetFunc) OffsetMs() int64 { return f() }

// Phase is the lifecycle phase of an engine.
type Phase string

const (
	PhaseDormant Phase = "dormant"
	PhaseActive  Phase = "active"
	PhaseExpired Phase = "expired"
	PhaseStopped Phase = "stopped"
)

// Callbacks are invoked synchronously while the engine is locked.
// They must not call back into the Engine that invoked them.
type Callbacks struct {
	OnTick   func(remainingSeconds int)
	OnAlert  func(thresholdMinutes int)
	OnExpire func()
}

// State is a point-in-time snapshot of an engine.
type State struct {
	ID                        string  `json:"id"`
	Phase                     Phase   `json:"phase"`
	Session                   Session `json:"session"`
	RemainingSeconds          int     `json:"remaining_seconds"`
	LastFiredThresholdSeconds *int    `json:"last_fired_threshold_seconds,omitempty"`
}
