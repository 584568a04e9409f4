package countdown

import "time"

// Compute returns the whole seconds remaining until start+duration, measured
// on the reference clock (now+offset). The result is floored and may be
// negative once the session has ended. Compute performs no validation.
func Compute(referenceStartedTime int64, durationSeconds int, nowMs, offsetMs int64) int {
	end := referenceStartedTime + int64(durationSeconds)*1000
	return int(floorDiv(end-(nowMs+offsetMs), 1000))
}

// PhaseOffset returns the delay until the next whole-second boundary of the
// session end, so decrements line up with the true second boundary instead
// of with the moment the timer was armed. A boundary that is exactly now
// yields one full second.
func PhaseOffset(referenceStartedTime int64, durationSeconds int, adjustedNowMs int64) time.Duration {
	end := referenceStartedTime + int64(durationSeconds)*1000
	ms := floorMod(end-adjustedNowMs, 1000)
	if ms == 0 {
		return time.Second
	}
	return time.Duration(ms) * time.Millisecond
}

func floorDiv(a, b int64) int64 {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}

func floorMod(a, b int64) int64 {
	m := a % b
	if m != 0 && ((m < 0) != (b < 0)) {
		m += b
	}
	return m
}
