// Package timesync tracks the offset between the local clock and the server
// clock that meeting start times are expressed in.
package timesync

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"
)

// ServerTime is the payload of both a time request reply and a time push.
type ServerTime struct {
	ServerTimeMs int64 `json:"serverTimeMs"`
}

// Requester is the part of *nats.Conn used for request/reply syncs.
type Requester interface {
	RequestWithContext(ctx context.Context, subj string, data []byte) (*nats.Msg, error)
}

// Tracker holds the best known offset; local + offset ≈ server time.
// Safe for concurrent use.
type Tracker struct {
	clock   clockwork.Clock
	offset  atomic.Int64
	lastRTT atomic.Int64 // ms
	synced  atomic.Bool
	changes chan struct{}
}

// NewTracker creates a tracker with a zero offset.
func NewTracker(clock clockwork.Clock) *Tracker {
	return &Tracker{clock: clock, changes: make(chan struct{}, 1)}
}

// Changes signals after the offset changes. Signals coalesce.
func (t *Tracker) Changes() <-chan struct{} { return t.changes }

// OffsetMs returns the current offset in milliseconds.
func (t *Tracker) OffsetMs() int64 { return t.offset.Load() }

// Synced reports whether at least one sample has been recorded.
func (t *Tracker) Synced() bool { return t.synced.Load() }

// LastRTT returns the round trip of the last request/reply sync.
func (t *Tracker) LastRTT() time.Duration {
	return time.Duration(t.lastRTT.Load()) * time.Millisecond
}

// Set stores an offset directly. It reports whether the value changed.
func (t *Tracker) Set(ms int64) bool {
	t.synced.Store(true)
	if t.offset.Swap(ms) == ms {
		return false
	}
	select {
	case t.changes <- struct{}{}:
	default:
	}
	return true
}

// Observe records a sample: the server stamped serverTime somewhere between
// sentAt and receivedAt, so it is compared against their midpoint.
func (t *Tracker) Observe(serverTime, sentAt, receivedAt time.Time) int64 {
	rtt := receivedAt.Sub(sentAt)
	if rtt < 0 {
		rtt = 0
	}
	mid := sentAt.Add(rtt / 2)
	ms := serverTime.UnixMilli() - mid.UnixMilli()

	t.lastRTT.Store(rtt.Milliseconds())
	if t.Set(ms) {
		log.Debug().
			Int64("offset_ms", ms).
			Dur("rtt", rtt).
			Msg("clock offset updated")
	}
	return ms
}

// Sync asks the time service for its clock and records the sample.
func (t *Tracker) Sync(ctx context.Context, nc Requester, subject string) error {
	sentAt := t.clock.Now()
	msg, err := nc.RequestWithContext(ctx, subject, nil)
	if err != nil {
		return fmt.Errorf("request server time: %w", err)
	}
	receivedAt := t.clock.Now()

	var st ServerTime
	if err := json.Unmarshal(msg.Data, &st); err != nil {
		return fmt.Errorf("unmarshal server time: %w", err)
	}
	t.Observe(time.UnixMilli(st.ServerTimeMs), sentAt, receivedAt)
	return nil
}

// HandlePush records a server time pushed without a request. Only the
// receive time is known, so transit latency counts as offset.
func (t *Tracker) HandlePush(data []byte) error {
	var st ServerTime
	if err := json.Unmarshal(data, &st); err != nil {
		return fmt.Errorf("unmarshal server time: %w", err)
	}
	now := t.clock.Now()
	t.Observe(time.UnixMilli(st.ServerTimeMs), now, now)
	return nil
}

// Subscribe applies every push published on subject.
func (t *Tracker) Subscribe(nc *nats.Conn, subject string) (*nats.Subscription, error) {
	sub, err := nc.Subscribe(subject, func(msg *nats.Msg) {
		if err := t.HandlePush(msg.Data); err != nil {
			log.Warn().Err(err).Str("subject", msg.Subject).Msg("ignoring malformed time push")
		}
	})
	if err != nil {
		return nil, fmt.Errorf("subscribe to %s: %w", subject, err)
	}
	return sub, nil
}

// Run syncs immediately and then every interval until ctx is done. Failed
// syncs keep the previous offset.
func (t *Tracker) Run(ctx context.Context, nc Requester, subject string, interval time.Duration) {
	ticker := t.clock.NewTicker(interval)
	defer ticker.Stop()

	for {
		reqCtx, cancel := context.WithTimeout(ctx, interval)
		if err := t.Sync(reqCtx, nc, subject); err != nil && ctx.Err() == nil {
			log.Warn().Err(err).Str("subject", subject).Msg("clock sync failed, keeping previous offset")
		}
		cancel()

		select {
		case <-ctx.Done():
			log.Info().Msg("clock sync loop stopped")
			return
		case <-ticker.Chan():
		}
	}
}
