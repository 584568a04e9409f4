package timesync_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/roomclock/go/internal/timesync"
	"github.com/nats-io/nats.go"
)

var t0 = time.Date(2024, 3, 14, 15, 0, 0, 0, time.UTC)

// fakeRequester answers with a fixed server clock and simulates latency by
// advancing the fake clock while the request is in flight.
type fakeRequester struct {
	clock     *clockwork.FakeClock
	latency   time.Duration
	serverNow func() time.Time
	err       error
	subjects  []string
}

func (f *fakeRequester) RequestWithContext(_ context.Context, subj string, _ []byte) (*nats.Msg, error) {
	f.subjects = append(f.subjects, subj)
	if f.err != nil {
		return nil, f.err
	}
	f.clock.Advance(f.latency / 2)
	data, _ := json.Marshal(timesync.ServerTime{ServerTimeMs: f.serverNow().UnixMilli()})
	f.clock.Advance(f.latency / 2)
	return &nats.Msg{Subject: subj, Data: data}, nil
}

func TestTracker_Observe(t *testing.T) {
	tr := timesync.NewTracker(clockwork.NewFakeClockAt(t0))

	sent := t0
	received := t0.Add(200 * time.Millisecond)
	server := t0.Add(100*time.Millisecond + 5*time.Second)

	if got := tr.Observe(server, sent, received); got != 5000 {
		t.Fatalf("Observe() = %d, want 5000", got)
	}
	if tr.OffsetMs() != 5000 || !tr.Synced() {
		t.Fatalf("OffsetMs() = %d synced=%v, want 5000 synced", tr.OffsetMs(), tr.Synced())
	}
	if tr.LastRTT() != 200*time.Millisecond {
		t.Errorf("LastRTT() = %v, want 200ms", tr.LastRTT())
	}
}

func TestTracker_Sync(t *testing.T) {
	fc := clockwork.NewFakeClockAt(t0)
	tr := timesync.NewTracker(fc)
	req := &fakeRequester{
		clock:     fc,
		latency:   400 * time.Millisecond,
		serverNow: func() time.Time { return fc.Now().Add(-1500 * time.Millisecond) },
	}

	if err := tr.Sync(context.Background(), req, "timesync.now"); err != nil {
		t.Fatalf("Sync: %v", err)
	}
	if got := tr.OffsetMs(); got != -1500 {
		t.Fatalf("OffsetMs() = %d, want -1500", got)
	}
	if len(req.subjects) != 1 || req.subjects[0] != "timesync.now" {
		t.Errorf("requested subjects = %v", req.subjects)
	}
}

func TestTracker_SyncFailureKeepsOffset(t *testing.T) {
	fc := clockwork.NewFakeClockAt(t0)
	tr := timesync.NewTracker(fc)
	tr.Set(750)

	req := &fakeRequester{clock: fc, err: errors.New("no responders")}
	if err := tr.Sync(context.Background(), req, "timesync.now"); err == nil {
		t.Fatal("Sync: expected error")
	}
	if got := tr.OffsetMs(); got != 750 {
		t.Errorf("OffsetMs() = %d, want 750 kept", got)
	}
}

func TestTracker_HandlePush(t *testing.T) {
	fc := clockwork.NewFakeClockAt(t0)
	tr := timesync.NewTracker(fc)

	data, _ := json.Marshal(timesync.ServerTime{ServerTimeMs: t0.Add(3 * time.Second).UnixMilli()})
	if err := tr.HandlePush(data); err != nil {
		t.Fatalf("HandlePush: %v", err)
	}
	if got := tr.OffsetMs(); got != 3000 {
		t.Errorf("OffsetMs() = %d, want 3000", got)
	}

	if err := tr.HandlePush([]byte("not json")); err == nil {
		t.Error("HandlePush: expected error for malformed payload")
	}
	if got := tr.OffsetMs(); got != 3000 {
		t.Errorf("OffsetMs() = %d after bad push, want 3000", got)
	}
}

func TestTracker_SetReportsChange(t *testing.T) {
	tr := timesync.NewTracker(clockwork.NewFakeClock())
	if !tr.Set(10) {
		t.Error("Set(10) from 0 reported no change")
	}
	if tr.Set(10) {
		t.Error("Set(10) twice reported a change")
	}
}

func TestTracker_ChangesSignal(t *testing.T) {
	tr := timesync.NewTracker(clockwork.NewFakeClock())

	tr.Set(0)
	select {
	case <-tr.Changes():
		t.Fatal("unchanged offset must not signal")
	default:
	}

	tr.Set(100)
	tr.Set(200)
	select {
	case <-tr.Changes():
	default:
		t.Fatal("expected a change signal")
	}
	select {
	case <-tr.Changes():
		t.Fatal("signals should coalesce")
	default:
	}
}
