// Package countdown computes the time remaining in a meeting or breakout room,
// ticks it down once per second aligned to the session's second boundaries,
// raises at-most-once threshold alerts and a single expiry event.
//
// An Engine tracks exactly one countdown. All state transitions happen under
// one mutex, so ticks, Reinitialize and Teardown are strictly serialized and a
// tick never observes a half torn down engine.
package countdown

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// DefaultDriftTolerance is how far, in seconds, the ticked value may drift from
// the value recomputed against the reference clock before the engine resyncs.
const DefaultDriftTolerance = 2

// Option configures an Engine.
type Option func(*Engine)

// WithClock sets the clock used for both time reads and tick timers.
// In tests, pass a clockwork.FakeClock.
func WithClock(c clockwork.Clock) Option {
	return func(e *Engine) { e.clock = c }
}

// WithLogger sets the parent logger. The engine adds its own countdown_id.
func WithLogger(l zerolog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// WithDriftTolerance sets the resync threshold in seconds. Zero or less turns
// drift correction off; offset changes and explicit Resync calls still apply.
// A tick that lands exactly on a second boundary can sit one second off the
// recomputed value, so a tolerance of 1 may realign once after a start that
// falls on a boundary.
func WithDriftTolerance(seconds int) Option {
	return func(e *Engine) { e.driftTolerance = seconds }
}

// Engine composes the calculator, tick scheduler, alert deduplication and
// expiry notifier for one countdown.
type Engine struct {
	id             string
	clock          clockwork.Clock
	logger         zerolog.Logger
	driftTolerance int
	scheduler      *TickScheduler

	mu          sync.Mutex
	initialized bool
	phase       Phase
	session     Session
	offsets     OffsetProvider
	thresholds  Thresholds
	cb          Callbacks
	remaining   int
	armedOffset int64
	lastFired   *int
	expiry      *ExpiryNotifier
}

// NewEngine creates a dormant engine.
func NewEngine(opts ...Option) *Engine {
	e := &Engine{
		id:             uuid.New().String(),
		clock:          clockwork.NewRealClock(),
		logger:         log.Logger,
		driftTolerance: DefaultDriftTolerance,
		phase:          PhaseDormant,
		remaining:      -1,
	}
	for _, opt := range opts {
		opt(e)
	}
	e.logger = e.logger.With().Str("countdown_id", e.id[:8]).Logger()
	e.scheduler = NewTickScheduler(e.clock, time.Second, e.logger)
	return e
}

// ID returns the engine's unique identifier.
func (e *Engine) ID() string { return e.id }

// Initialize validates the session, computes the initial remaining time and
// starts ticking. A session with DurationSeconds == 0 leaves the engine
// dormant. Any previous countdown on this engine is torn down first.
//
// The initial value goes through the same path as a tick, so a countdown that
// starts exactly on an alert boundary raises that alert immediately.
func (e *Engine) Initialize(session Session, offsets OffsetProvider, thresholdsMinutes []int, cb Callbacks) error {
	if err := validateSession(session); err != nil {
		return err
	}
	if offsets == nil {
		return &ConfigurationError{Field: "offset_provider", Err: ErrNoOffset}
	}
	thresholds, err := NewThresholds(thresholdsMinutes)
	if err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	e.scheduler.Stop()
	e.initialized = true
	e.offsets = offsets
	e.thresholds = thresholds
	e.cb = cb
	e.session = session
	return e.startLocked()
}

// Reinitialize replaces the session and restarts the countdown from scratch:
// the old timer is cleared, alert and expiry state are reset and the remaining
// time is recomputed. Offsets, thresholds and callbacks are kept.
func (e *Engine) Reinitialize(session Session) error {
	if err := validateSession(session); err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.initialized {
		return ErrNotInitialized
	}
	e.scheduler.Stop()
	e.session = session
	e.logger.Info().
		Int64("reference_started_time", session.ReferenceStartedTime).
		Int("duration_sec", session.DurationSeconds).
		Msg("countdown reinitialized")
	return e.startLocked()
}

// Resync recomputes the remaining time against the current clock offset and
// realigns the tick phase without resetting alert or expiry state.
//
// Ticks already re-read the offset and carry a changed offset into the next
// value, so calling Resync on every offset change only makes the correction
// visible before that tick.
func (e *Engine) Resync() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.phase != PhaseActive {
		return nil
	}
	now, offset := e.readClock()
	computed := Compute(e.session.ReferenceStartedTime, e.session.DurationSeconds, now, 0)
	if err := e.armLocked(now, offset); err != nil {
		e.phase = PhaseStopped
		return err
	}
	if computed != e.remaining {
		e.deliverLocked(computed)
	}
	return nil
}

// Teardown stops the timer and discards countdown state. No callback runs
// after Teardown returns. Calling it again is a no-op.
func (e *Engine) Teardown() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.phase == PhaseStopped {
		return
	}
	e.scheduler.Stop()
	e.phase = PhaseStopped
	e.remaining = -1
	e.lastFired = nil
	e.expiry = nil
	e.logger.Debug().Msg("countdown torn down")
}

// State returns a snapshot of the engine.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()

	st := State{
		ID:               e.id,
		Phase:            e.phase,
		Session:          e.session,
		RemainingSeconds: e.remaining,
	}
	if e.lastFired != nil {
		v := *e.lastFired
		st.LastFiredThresholdSeconds = &v
	}
	return st
}

// startLocked begins a fresh lifetime for e.session. Must be called with e.mu held.
func (e *Engine) startLocked() error {
	e.remaining = -1
	e.lastFired = nil
	e.expiry = NewExpiryNotifier(e.cb.OnExpire)

	if !e.session.Active() {
		e.phase = PhaseDormant
		e.logger.Debug().Msg("session has no duration, staying dormant")
		return nil
	}
	if e.clock == nil {
		e.phase = PhaseStopped
		return &SchedulingError{Err: ErrNoClock}
	}

	now, offset := e.readClock()
	initial := Compute(e.session.ReferenceStartedTime, e.session.DurationSeconds, now, 0)

	// Arm before delivering anything so a scheduling failure never looks like
	// a tick happened.
	if err := e.armLocked(now, offset); err != nil {
		e.phase = PhaseStopped
		return err
	}
	e.phase = PhaseActive

	e.logger.Info().
		Int("remaining_sec", initial).
		Int("duration_sec", e.session.DurationSeconds).
		Bool("is_breakout", e.session.IsBreakout).
		Ints("thresholds_sec", e.thresholds.Seconds()).
		Msg("countdown started")

	e.deliverLocked(initial)
	return nil
}

// armLocked (re)starts the scheduler aligned to the session's second boundary
// and remembers the offset that alignment was computed with.
func (e *Engine) armLocked(adjustedNowMs, offsetMs int64) error {
	first := PhaseOffset(e.session.ReferenceStartedTime, e.session.DurationSeconds, adjustedNowMs)
	if _, err := e.scheduler.Start(first, e.onTimer); err != nil {
		e.logger.Error().Err(err).Msg("failed to arm tick timer")
		return err
	}
	e.armedOffset = offsetMs
	return nil
}

// onTimer is the scheduler callback: one decrement per tick.
func (e *Engine) onTimer(gen uint64) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.phase != PhaseActive || !e.scheduler.Live(gen) {
		e.logger.Debug().
			Uint64("generation", gen).
			Str("phase", string(e.phase)).
			Msg("absorbing stale tick")
		return
	}

	next := e.remaining - 1
	now, offset := e.readClock()

	if offset != e.armedOffset {
		// Shift the decremented value by however many seconds the offset
		// change moves the countdown, then realign to the new boundary.
		shift := e.openingSecond(now) - e.openingSecond(now-offset+e.armedOffset)
		e.logger.Info().
			Int64("offset_ms", offset).
			Int64("previous_offset_ms", e.armedOffset).
			Int("shift_sec", shift).
			Msg("clock offset changed, realigning countdown")
		next += shift
		if err := e.armLocked(now, offset); err != nil {
			e.phase = PhaseStopped
			return
		}
	} else if e.driftTolerance > 0 {
		computed := e.openingSecond(now)
		if drift := computed - next; drift >= e.driftTolerance || -drift >= e.driftTolerance {
			e.logger.Warn().
				Int("ticked_sec", next).
				Int("computed_sec", computed).
				Msg("clock drift detected, resyncing countdown")
			if err := e.armLocked(now, offset); err != nil {
				e.phase = PhaseStopped
				return
			}
			next = computed
		}
	}
	e.deliverLocked(next)
}

// deliverLocked applies a new remaining value: alert gate, display callback,
// then the expiry state machine.
func (e *Engine) deliverLocked(remaining int) {
	e.remaining = remaining

	if threshold, ok := ShouldFire(remaining, e.thresholds, e.lastFired); ok {
		e.lastFired = &threshold
		e.logger.Info().Int("threshold_min", threshold/60).Msg("remaining time alert")
		if e.cb.OnAlert != nil {
			e.cb.OnAlert(threshold / 60)
		}
	}

	if remaining >= 0 && e.cb.OnTick != nil {
		e.cb.OnTick(remaining)
	}

	if e.expiry.Observe(remaining) {
		e.scheduler.Stop()
		e.phase = PhaseExpired
		if e.expiry.Fired() {
			e.logger.Info().Int("remaining_sec", remaining).Msg("countdown expired")
		} else {
			e.logger.Info().Int("remaining_sec", remaining).Msg("session already ended, countdown expired silently")
		}
	}
}

// readClock returns local time corrected onto the reference clock together
// with the offset used. The offset is read fresh on every call.
func (e *Engine) readClock() (adjustedNowMs, offsetMs int64) {
	offsetMs = e.offsets.OffsetMs()
	return e.clock.Now().UnixMilli() + offsetMs, offsetMs
}

// openingSecond is the remaining value of the second that starts at
// adjustedNowMs. A tick fires on a boundary, where Compute would still report
// the second that is ending.
func (e *Engine) openingSecond(adjustedNowMs int64) int {
	return Compute(e.session.ReferenceStartedTime, e.session.DurationSeconds, adjustedNowMs+1, 0)
}

func validateSession(s Session) error {
	if s.DurationSeconds < 0 {
		return &ConfigurationError{
			Field: "duration_seconds",
			Err:   fmt.Errorf("%w: got %d", ErrNegativeDuration, s.DurationSeconds),
		}
	}
	return nil
}
