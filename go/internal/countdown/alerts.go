package countdown

import (
	"fmt"
	"sort"
)

// Thresholds is the configured set of alert boundaries, held in seconds.
// It is immutable once built.
type Thresholds struct {
	seconds map[int]struct{}
	ordered []int // descending
}

// NewThresholds converts minutes to seconds. Duplicates collapse; every value
// must be positive.
func NewThresholds(minutes []int) (Thresholds, error) {
	t := Thresholds{seconds: make(map[int]struct{}, len(minutes))}
	for _, m := range minutes {
		if m <= 0 {
			return Thresholds{}, &ConfigurationError{
				Field: "thresholds",
				Err:   fmt.Errorf("%w: got %d", ErrInvalidThreshold, m),
			}
		}
		s := m * 60
		if _, dup := t.seconds[s]; dup {
			continue
		}
		t.seconds[s] = struct{}{}
		t.ordered = append(t.ordered, s)
	}
	sort.Sort(sort.Reverse(sort.IntSlice(t.ordered)))
	return t, nil
}

// Contains reports whether seconds is exactly a configured boundary.
func (t Thresholds) Contains(seconds int) bool {
	_, ok := t.seconds[seconds]
	return ok
}

// Seconds returns the boundaries, largest first.
func (t Thresholds) Seconds() []int {
	out := make([]int, len(t.ordered))
	copy(out, t.ordered)
	return out
}

// Len returns the number of distinct boundaries.
func (t Thresholds) Len() int { return len(t.ordered) }

// ShouldFire decides whether remaining is an alert boundary that has not fired
// yet. It returns the threshold (in seconds) the caller must record as the new
// lastFired value, or false.
//
// Matching is by equality: a boundary skipped by a late tick is not fired on
// catch-up. Once a boundary V has fired, nothing at or above V fires again,
// so a resync that moves remaining back up cannot replay an alert.
func ShouldFire(remaining int, thresholds Thresholds, lastFired *int) (int, bool) {
	if remaining <= 0 || !thresholds.Contains(remaining) {
		return 0, false
	}
	if lastFired != nil && remaining >= *lastFired {
		return 0, false
	}
	return remaining, true
}
