package countdown

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
)

// TickFunc receives the generation the firing timer was armed under.
type TickFunc func(gen uint64)

// TickScheduler owns the single repeating tick timer of an engine.
//
// The first tick fires after the delay passed to Start; later ticks are
// aligned to firstDeadline + k*period, so callback latency never accumulates.
// Every Start or Stop bumps the generation, which lets a callback that was
// already dequeued recognise itself as stale.
type TickScheduler struct {
	clock  clockwork.Clock
	period time.Duration
	logger zerolog.Logger

	mu    sync.Mutex
	timer clockwork.Timer
	next  time.Time
	gen   uint64
}

// NewTickScheduler creates a scheduler that ticks every period on clock.
func NewTickScheduler(clock clockwork.Clock, period time.Duration, logger zerolog.Logger) *TickScheduler {
	return &TickScheduler{
		clock:  clock,
		period: period,
		logger: logger,
	}
}

// Start replaces any live timer with a new one firing after first, then every
// period. It returns the generation that fn will be called with.
func (s *TickScheduler) Start(first time.Duration, fn TickFunc) (uint64, error) {
	if s.clock == nil {
		return 0, &SchedulingError{Err: ErrNoClock}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.stopLocked()
	s.gen++
	gen := s.gen
	s.next = s.clock.Now().Add(first)
	s.timer = s.clock.AfterFunc(first, func() { s.fire(gen, fn) })

	s.logger.Debug().
		Uint64("generation", gen).
		Dur("first", first).
		Time("deadline", s.next).
		Msg("tick timer armed")
	return gen, nil
}

// Stop clears the live timer. A tick whose timer is cleared before firing
// never reaches its callback; one already running observes a stale generation.
func (s *TickScheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopLocked() {
		s.logger.Debug().Uint64("generation", s.gen).Msg("tick timer cleared")
	}
	s.gen++
}

// Live reports whether gen belongs to the currently armed timer.
func (s *TickScheduler) Live(gen uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.timer != nil && gen == s.gen
}

// Running reports whether a timer is armed.
func (s *TickScheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.timer != nil
}

func (s *TickScheduler) fire(gen uint64, fn TickFunc) {
	s.mu.Lock()
	if gen != s.gen || s.timer == nil {
		s.mu.Unlock()
		s.logger.Debug().Uint64("generation", gen).Msg("stale tick timer fired, ignoring")
		return
	}

	// Re-arm before running the callback so the period stays anchored to the
	// first deadline; the callback may still Stop or restart us.
	s.next = s.next.Add(s.period)
	delay := s.next.Sub(s.clock.Now())
	if delay < 0 {
		delay = 0
	}
	s.timer = s.clock.AfterFunc(delay, func() { s.fire(gen, fn) })
	s.mu.Unlock()

	fn(gen)
}

// stopLocked cancels the armed timer, if any. Must be called with s.mu held.
func (s *TickScheduler) stopLocked() bool {
	if s.timer == nil {
		return false
	}
	s.timer.Stop()
	s.timer = nil
	return true
}
