package countdown

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
)

// ─── helpers ─────────────────────────────────────────────────────────────────

var t0 = time.Date(2024, 3, 14, 15, 0, 0, 0, time.UTC)

// recorder captures engine callbacks. Callbacks run on the timer goroutine,
// so everything goes through buffered channels.
type recorder struct {
	ticks   chan int
	alerts  chan int
	expires chan struct{}
}

func newRecorder() *recorder {
	return &recorder{
		ticks:   make(chan int, 256),
		alerts:  make(chan int, 16),
		expires: make(chan struct{}, 4),
	}
}

func (r *recorder) callbacks() Callbacks {
	return Callbacks{
		OnTick:   func(v int) { r.ticks <- v },
		OnAlert:  func(m int) { r.alerts <- m },
		OnExpire: func() { r.expires <- struct{}{} },
	}
}

func (r *recorder) expectTick(t *testing.T, want int) {
	t.Helper()
	select {
	case got := <-r.ticks:
		if got != want {
			t.Fatalf("tick = %d, want %d", got, want)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for tick %d", want)
	}
}

func (r *recorder) expectAlert(t *testing.T, want int) {
	t.Helper()
	select {
	case got := <-r.alerts:
		if got != want {
			t.Fatalf("alert = %d, want %d", got, want)
		}
	default:
		t.Fatalf("expected alert %d, got none", want)
	}
}

func (r *recorder) expectNoAlert(t *testing.T) {
	t.Helper()
	select {
	case got := <-r.alerts:
		t.Fatalf("unexpected alert %d", got)
	default:
	}
}

func (r *recorder) expectExpire(t *testing.T) {
	t.Helper()
	select {
	case <-r.expires:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for expiry")
	}
}

// expectQuiet asserts nothing at all is delivered for a short while.
func (r *recorder) expectQuiet(t *testing.T) {
	t.Helper()
	select {
	case v := <-r.ticks:
		t.Fatalf("unexpected tick %d", v)
	case m := <-r.alerts:
		t.Fatalf("unexpected alert %d", m)
	case <-r.expires:
		t.Fatal("unexpected expiry")
	case <-time.After(50 * time.Millisecond):
	}
}

type offset struct{ ms atomic.Int64 }

func (o *offset) OffsetMs() int64 { return o.ms.Load() }

func newTestEngine(fc *clockwork.FakeClock) *Engine {
	return NewEngine(WithClock(fc), WithLogger(zerolog.Nop()))
}

func waitTimers(t *testing.T, fc *clockwork.FakeClock, n int) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := fc.BlockUntilContext(ctx, n); err != nil {
		t.Fatalf("waiting for %d armed timers: %v", n, err)
	}
}

// advance moves the fake clock one step and waits for the resulting tick.
func advance(t *testing.T, fc *clockwork.FakeClock, r *recorder, d time.Duration, want int) {
	t.Helper()
	waitTimers(t, fc, 1)
	fc.Advance(d)
	r.expectTick(t, want)
}

// ─── Tests ───────────────────────────────────────────────────────────────────

// Nine minutes into a ten minute session the initial value is 60 and the one
// minute alert fires immediately, once.
func TestEngine_InitialValueAndAlert(t *testing.T) {
	fc := clockwork.NewFakeClockAt(t0.Add(540 * time.Second))
	e := newTestEngine(fc)
	r := newRecorder()

	err := e.Initialize(Session{ReferenceStartedTime: t0.UnixMilli(), DurationSeconds: 600}, &offset{}, []int{1}, r.callbacks())
	if err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	r.expectAlert(t, 1)
	r.expectTick(t, 60)

	st := e.State()
	if st.Phase != PhaseActive || st.RemainingSeconds != 60 {
		t.Fatalf("State = %+v, want active with 60 remaining", st)
	}
	if st.LastFiredThresholdSeconds == nil || *st.LastFiredThresholdSeconds != 60 {
		t.Fatalf("LastFiredThresholdSeconds = %v, want 60", st.LastFiredThresholdSeconds)
	}

	advance(t, fc, r, time.Second, 59)
	r.expectNoAlert(t)
	e.Teardown()
}

// A duplicate internal delivery of the same value must not re-alert.
func TestEngine_DuplicateDeliveryDoesNotRealert(t *testing.T) {
	fc := clockwork.NewFakeClockAt(t0.Add(540 * time.Second))
	e := newTestEngine(fc)
	r := newRecorder()

	if err := e.Initialize(Session{ReferenceStartedTime: t0.UnixMilli(), DurationSeconds: 600}, &offset{}, []int{1}, r.callbacks()); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	r.expectAlert(t, 1)
	r.expectTick(t, 60)

	e.mu.Lock()
	e.deliverLocked(60)
	e.mu.Unlock()

	r.expectTick(t, 60)
	r.expectNoAlert(t)
	e.Teardown()
}

func TestEngine_TicksDownToExpiry(t *testing.T) {
	fc := clockwork.NewFakeClockAt(t0)
	e := newTestEngine(fc)
	r := newRecorder()

	if err := e.Initialize(Session{ReferenceStartedTime: t0.UnixMilli(), DurationSeconds: 60}, &offset{}, []int{1}, r.callbacks()); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	r.expectAlert(t, 1)
	r.expectTick(t, 60)

	for want := 59; want >= 0; want-- {
		advance(t, fc, r, time.Second, want)
	}
	r.expectExpire(t)
	r.expectNoAlert(t)

	if st := e.State(); st.Phase != PhaseExpired {
		t.Fatalf("Phase = %s, want expired", st.Phase)
	}

	// The timer is gone: advancing delivers nothing.
	waitTimers(t, fc, 0)
	fc.Advance(5 * time.Second)
	r.expectQuiet(t)

	// A late duplicate 0 is absorbed.
	e.mu.Lock()
	if e.expiry.Observe(0) {
		t.Error("expiry fired twice")
	}
	e.mu.Unlock()
	e.onTimer(0)
	r.expectQuiet(t)
}

func TestEngine_PhaseAlignedToSecondBoundary(t *testing.T) {
	fc := clockwork.NewFakeClockAt(t0.Add(540*time.Second + 250*time.Millisecond))
	e := newTestEngine(fc)
	r := newRecorder()

	if err := e.Initialize(Session{ReferenceStartedTime: t0.UnixMilli(), DurationSeconds: 600}, &offset{}, nil, r.callbacks()); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	r.expectTick(t, 59)

	waitTimers(t, fc, 1)
	fc.Advance(749 * time.Millisecond)
	r.expectQuiet(t)
	fc.Advance(time.Millisecond)
	r.expectTick(t, 58)

	advance(t, fc, r, time.Second, 57)
	e.Teardown()
}

// An offset change mid-countdown shows up on the next tick without
// re-initialization.
func TestEngine_OffsetChangeResyncs(t *testing.T) {
	fc := clockwork.NewFakeClockAt(t0.Add(540 * time.Second))
	e := newTestEngine(fc)
	r := newRecorder()
	off := &offset{}

	if err := e.Initialize(Session{ReferenceStartedTime: t0.UnixMilli(), DurationSeconds: 600}, off, []int{1}, r.callbacks()); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	r.expectAlert(t, 1)
	r.expectTick(t, 60)
	advance(t, fc, r, time.Second, 59)

	off.ms.Store(5_000)
	advance(t, fc, r, time.Second, 53) // naive 58, minus 5
	advance(t, fc, r, time.Second, 52)
	r.expectNoAlert(t)

	if st := e.State(); st.Phase != PhaseActive || st.RemainingSeconds != 52 {
		t.Fatalf("State = %+v, want active with 52 remaining", st)
	}
	e.Teardown()
}

func TestEngine_ExplicitResyncDoesNotReplayAlert(t *testing.T) {
	fc := clockwork.NewFakeClockAt(t0.Add(540 * time.Second))
	e := newTestEngine(fc)
	r := newRecorder()
	off := &offset{}

	if err := e.Initialize(Session{ReferenceStartedTime: t0.UnixMilli(), DurationSeconds: 600}, off, []int{1}, r.callbacks()); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	r.expectAlert(t, 1)
	r.expectTick(t, 60)

	off.ms.Store(-3_000)
	if err := e.Resync(); err != nil {
		t.Fatalf("Resync: %v", err)
	}
	r.expectTick(t, 63)

	advance(t, fc, r, time.Second, 62)
	advance(t, fc, r, time.Second, 61)
	advance(t, fc, r, time.Second, 60)
	r.expectNoAlert(t)
	e.Teardown()
}

func TestEngine_ReinitializeReplacesCountdown(t *testing.T) {
	fc := clockwork.NewFakeClockAt(t0.Add(540 * time.Second))
	e := newTestEngine(fc)
	r := newRecorder()

	if err := e.Initialize(Session{ReferenceStartedTime: t0.UnixMilli(), DurationSeconds: 600}, &offset{}, []int{1, 5}, r.callbacks()); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	r.expectAlert(t, 1)
	r.expectTick(t, 60)

	now := fc.Now()
	if err := e.Reinitialize(Session{ReferenceStartedTime: now.UnixMilli(), DurationSeconds: 300, IsBreakout: true}); err != nil {
		t.Fatalf("Reinitialize: %v", err)
	}
	// lastFired was reset, so the five minute boundary fires for the new session.
	r.expectAlert(t, 5)
	r.expectTick(t, 300)

	waitTimers(t, fc, 1)
	fc.Advance(time.Second)
	r.expectTick(t, 299)
	r.expectQuiet(t)

	st := e.State()
	if !st.Session.IsBreakout || st.RemainingSeconds != 299 {
		t.Fatalf("State = %+v, want breakout session with 299 remaining", st)
	}
	e.Teardown()
}

func TestEngine_ReinitializeAfterExpiry(t *testing.T) {
	fc := clockwork.NewFakeClockAt(t0)
	e := newTestEngine(fc)
	r := newRecorder()

	if err := e.Initialize(Session{ReferenceStartedTime: t0.UnixMilli(), DurationSeconds: 1}, &offset{}, nil, r.callbacks()); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	r.expectTick(t, 1)
	advance(t, fc, r, time.Second, 0)
	r.expectExpire(t)

	if err := e.Reinitialize(Session{ReferenceStartedTime: fc.Now().UnixMilli(), DurationSeconds: 2}); err != nil {
		t.Fatalf("Reinitialize: %v", err)
	}
	r.expectTick(t, 2)
	advance(t, fc, r, time.Second, 1)
	advance(t, fc, r, time.Second, 0)
	r.expectExpire(t)
}

func TestEngine_TeardownIsIdempotent(t *testing.T) {
	fc := clockwork.NewFakeClockAt(t0)
	e := newTestEngine(fc)
	r := newRecorder()

	if err := e.Initialize(Session{ReferenceStartedTime: t0.UnixMilli(), DurationSeconds: 30}, &offset{}, nil, r.callbacks()); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	r.expectTick(t, 30)

	e.Teardown()
	e.Teardown()

	waitTimers(t, fc, 0)
	fc.Advance(10 * time.Second)
	r.expectQuiet(t)

	st := e.State()
	if st.Phase != PhaseStopped || st.RemainingSeconds != -1 {
		t.Fatalf("State = %+v, want stopped and uninitialized", st)
	}
}

func TestEngine_ZeroDurationStaysDormant(t *testing.T) {
	fc := clockwork.NewFakeClockAt(t0)
	e := newTestEngine(fc)
	r := newRecorder()

	if err := e.Initialize(Session{ReferenceStartedTime: t0.UnixMilli()}, &offset{}, []int{1}, r.callbacks()); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	waitTimers(t, fc, 0)
	fc.Advance(time.Minute)
	r.expectQuiet(t)

	if st := e.State(); st.Phase != PhaseDormant {
		t.Fatalf("Phase = %s, want dormant", st.Phase)
	}
}

// A session that ended long before the engine saw it goes straight to
// expired: no tick, no alert and no expiry callback.
func TestEngine_AlreadyElapsedExpiresSilently(t *testing.T) {
	fc := clockwork.NewFakeClockAt(t0.Add(2 * time.Hour))
	e := newTestEngine(fc)
	r := newRecorder()
	session := Session{ReferenceStartedTime: t0.UnixMilli(), DurationSeconds: 60}

	if err := e.Initialize(session, &offset{}, []int{1}, r.callbacks()); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	r.expectQuiet(t)
	waitTimers(t, fc, 0)

	st := e.State()
	if st.Phase != PhaseExpired || st.RemainingSeconds != -7140 {
		t.Fatalf("State = %+v, want expired at -7140", st)
	}

	// Restarting the same ended session stays silent too.
	if err := e.Reinitialize(Session{}); err != nil {
		t.Fatalf("Reinitialize(empty): %v", err)
	}
	if err := e.Reinitialize(session); err != nil {
		t.Fatalf("Reinitialize: %v", err)
	}
	r.expectQuiet(t)
	if st := e.State(); st.Phase != PhaseExpired {
		t.Fatalf("Phase = %s, want expired", st.Phase)
	}
}

// A resync that jumps from a positive value past 0 still expires once.
func TestEngine_ResyncPastZeroExpires(t *testing.T) {
	fc := clockwork.NewFakeClockAt(t0.Add(55 * time.Second))
	e := newTestEngine(fc)
	r := newRecorder()
	off := &offset{}

	if err := e.Initialize(Session{ReferenceStartedTime: t0.UnixMilli(), DurationSeconds: 60}, off, nil, r.callbacks()); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	r.expectTick(t, 5)

	off.ms.Store(8_000)
	if err := e.Resync(); err != nil {
		t.Fatalf("Resync: %v", err)
	}
	r.expectExpire(t)
	r.expectQuiet(t)
	if st := e.State(); st.Phase != PhaseExpired || st.RemainingSeconds != -3 {
		t.Fatalf("State = %+v, want expired at -3", st)
	}
}

// An offset change without an explicit Resync is carried into the very next
// tick, also when the countdown started between second boundaries.
func TestEngine_OffsetChangeAppliedOnNextTick(t *testing.T) {
	fc := clockwork.NewFakeClockAt(t0.Add(540*time.Second + 250*time.Millisecond))
	e := newTestEngine(fc)
	r := newRecorder()
	off := &offset{}

	if err := e.Initialize(Session{ReferenceStartedTime: t0.UnixMilli(), DurationSeconds: 600}, off, nil, r.callbacks()); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	r.expectTick(t, 59)
	advance(t, fc, r, 750*time.Millisecond, 58)

	off.ms.Store(1_500)
	advance(t, fc, r, time.Second, 56)

	// Realigned to the new boundary, half a second away.
	waitTimers(t, fc, 1)
	fc.Advance(499 * time.Millisecond)
	r.expectQuiet(t)
	fc.Advance(time.Millisecond)
	r.expectTick(t, 55)
	advance(t, fc, r, time.Second, 54)
	e.Teardown()
}

// Ticks that land on a boundary never look like drift, even with the tightest
// tolerance.
func TestEngine_ToleranceOneDoesNotResyncEveryTick(t *testing.T) {
	fc := clockwork.NewFakeClockAt(t0.Add(540*time.Second + 250*time.Millisecond))
	e := NewEngine(WithClock(fc), WithLogger(zerolog.Nop()), WithDriftTolerance(1))
	r := newRecorder()

	if err := e.Initialize(Session{ReferenceStartedTime: t0.UnixMilli(), DurationSeconds: 600}, &offset{}, nil, r.callbacks()); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	r.expectTick(t, 59)
	advance(t, fc, r, 750*time.Millisecond, 58)
	for want := 57; want >= 50; want-- {
		advance(t, fc, r, time.Second, want)
	}
	r.expectQuiet(t)
	e.Teardown()
}

func TestEngine_ConfigurationErrors(t *testing.T) {
	fc := clockwork.NewFakeClockAt(t0)

	tests := []struct {
		name    string
		session Session
		offsets OffsetProvider
		minutes []int
		want    error
	}{
		{"negative duration", Session{DurationSeconds: -5}, &offset{}, nil, ErrNegativeDuration},
		{"missing offset provider", Session{DurationSeconds: 60}, nil, nil, ErrNoOffset},
		{"zero threshold", Session{DurationSeconds: 60}, &offset{}, []int{0}, ErrInvalidThreshold},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newTestEngine(fc)
			r := newRecorder()
			err := e.Initialize(tt.session, tt.offsets, tt.minutes, r.callbacks())

			var cfgErr *ConfigurationError
			if !errors.As(err, &cfgErr) {
				t.Fatalf("Initialize err = %v, want *ConfigurationError", err)
			}
			if !errors.Is(err, tt.want) {
				t.Fatalf("Initialize err = %v, want %v", err, tt.want)
			}
			r.expectQuiet(t)
			if st := e.State(); st.Phase != PhaseDormant {
				t.Errorf("Phase = %s, want dormant", st.Phase)
			}
		})
	}
	waitTimers(t, fc, 0)
}

func TestEngine_SchedulingError(t *testing.T) {
	e := NewEngine(WithClock(nil), WithLogger(zerolog.Nop()))
	r := newRecorder()

	err := e.Initialize(Session{ReferenceStartedTime: t0.UnixMilli(), DurationSeconds: 60}, &offset{}, []int{1}, r.callbacks())
	var schedErr *SchedulingError
	if !errors.As(err, &schedErr) || !errors.Is(err, ErrNoClock) {
		t.Fatalf("Initialize err = %v, want SchedulingError wrapping ErrNoClock", err)
	}
	r.expectQuiet(t)
	if st := e.State(); st.Phase != PhaseStopped {
		t.Errorf("Phase = %s, want stopped", st.Phase)
	}
}

func TestEngine_ReinitializeRequiresInitialize(t *testing.T) {
	e := newTestEngine(clockwork.NewFakeClockAt(t0))
	if err := e.Reinitialize(Session{DurationSeconds: 60}); !errors.Is(err, ErrNotInitialized) {
		t.Fatalf("Reinitialize err = %v, want ErrNotInitialized", err)
	}
}
