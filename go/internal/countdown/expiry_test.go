package countdown_test

import (
	"testing"

	"github.com/mcdev12/roomclock/go/internal/countdown"
)

func TestExpiryNotifier_FiresOnceAtZero(t *testing.T) {
	calls := 0
	n := countdown.NewExpiryNotifier(func() { calls++ })

	for _, v := range []int{3, 2, 1} {
		if n.Observe(v) {
			t.Fatalf("Observe(%d) expired early", v)
		}
	}
	if !n.Observe(0) {
		t.Fatal("Observe(0) did not expire")
	}
	// Late and duplicate deliveries after expiry.
	for _, v := range []int{0, -1, -2, 0} {
		if n.Observe(v) {
			t.Fatalf("Observe(%d) fired again after expiry", v)
		}
	}
	if calls != 1 {
		t.Errorf("onExpire called %d times, want 1", calls)
	}
	if !n.Expired() {
		t.Error("Expired() = false after expiry")
	}
}

func TestExpiryNotifier_AlreadyElapsedIsSilent(t *testing.T) {
	calls := 0
	n := countdown.NewExpiryNotifier(func() { calls++ })
	if !n.Observe(-7140) {
		t.Fatal("Observe(-7140) on a fresh notifier should expire")
	}
	n.Observe(-7141)
	n.Observe(0)
	if calls != 0 {
		t.Errorf("onExpire called %d times for a session that never reached 0", calls)
	}
	if !n.Expired() || n.Fired() {
		t.Errorf("Expired() = %v, Fired() = %v, want expired without firing", n.Expired(), n.Fired())
	}
}

func TestExpiryNotifier_JumpPastZeroFires(t *testing.T) {
	calls := 0
	n := countdown.NewExpiryNotifier(func() { calls++ })
	n.Observe(3)
	if !n.Observe(-2) {
		t.Fatal("a jump from 3 to -2 should expire")
	}
	n.Observe(-3)
	if calls != 1 || !n.Fired() {
		t.Errorf("onExpire called %d times, want 1", calls)
	}
}

func TestExpiryNotifier_NilCallback(t *testing.T) {
	n := countdown.NewExpiryNotifier(nil)
	if !n.Observe(0) {
		t.Fatal("Observe(0) did not expire")
	}
}
