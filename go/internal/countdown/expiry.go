package countdown

// ExpiryNotifier is the ACTIVE -> EXPIRED state machine of one countdown
// lifetime. EXPIRED is terminal; re-initialization builds a new notifier.
type ExpiryNotifier struct {
	expired  bool
	fired    bool
	seen     bool
	last     int
	onExpire func()
}

// NewExpiryNotifier returns an ACTIVE notifier. onExpire may be nil.
func NewExpiryNotifier(onExpire func()) *ExpiryNotifier {
	return &ExpiryNotifier{onExpire: onExpire}
}

// Observe feeds the next remaining value and reports whether it moved the
// notifier to EXPIRED.
//
// The callback runs once, when the countdown reaches exactly 0 or jumps from a
// positive value straight past it (a resync). A countdown whose first value is
// already negative ended before it was observed: it expires without the
// callback.
func (n *ExpiryNotifier) Observe(remaining int) bool {
	if n.expired {
		return false
	}
	switch {
	case remaining == 0, remaining < 0 && n.seen && n.last > 0:
		n.expired = true
		n.fired = true
		if n.onExpire != nil {
			n.onExpire()
		}
		return true
	case remaining < 0:
		n.expired = true
		return true
	}
	n.seen = true
	n.last = remaining
	return false
}

// Expired reports whether the terminal state was reached.
func (n *ExpiryNotifier) Expired() bool { return n.expired }

// Fired reports whether the expiry callback ran.
func (n *ExpiryNotifier) Fired() bool { return n.fired }
