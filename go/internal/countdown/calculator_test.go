package countdown_test

import (
	"testing"
	"time"

	"github.com/mcdev12/roomclock/go/internal/countdown"
)

func TestCompute(t *testing.T) {
	const t0 = int64(1_700_000_000_000)

	tests := []struct {
		name     string
		start    int64
		duration int
		now      int64
		offset   int64
		want     int
	}{
		{"nine minutes elapsed of ten", t0, 600, t0 + 540_000, 0, 60},
		{"partial second floors down", t0, 600, t0 + 540_250, 0, 59},
		{"positive offset moves reference clock ahead", t0, 600, t0 + 540_000, 5_000, 55},
		{"negative offset moves reference clock behind", t0, 600, t0 + 540_000, -2_500, 62},
		{"exactly at end", t0, 60, t0 + 60_000, 0, 0},
		{"half a second past end floors to -1", t0, 60, t0 + 60_500, 0, -1},
		{"well past end", t0, 60, t0 + 75_000, 0, -15},
		{"zero duration still yields a number", t0, 0, t0 + 1_000, 0, -1},
		{"before start", t0, 30, t0 - 10_000, 0, 40},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := countdown.Compute(tt.start, tt.duration, tt.now, tt.offset)
			if got != tt.want {
				t.Errorf("Compute() = %d, want %d", got, tt.want)
			}
			// Pure: identical inputs, identical output.
			if again := countdown.Compute(tt.start, tt.duration, tt.now, tt.offset); again != got {
				t.Errorf("Compute() not deterministic: %d then %d", got, again)
			}
		})
	}
}

func TestPhaseOffset(t *testing.T) {
	const t0 = int64(1_700_000_000_000)

	tests := []struct {
		name string
		now  int64
		want time.Duration
	}{
		{"on a boundary uses a full period", t0 + 540_000, time.Second},
		{"quarter second in", t0 + 540_250, 750 * time.Millisecond},
		{"just before boundary", t0 + 540_999, time.Millisecond},
		{"past the end still in range", t0 + 600_300, 700 * time.Millisecond},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := countdown.PhaseOffset(t0, 600, tt.now)
			if got != tt.want {
				t.Errorf("PhaseOffset() = %v, want %v", got, tt.want)
			}
			if got <= 0 || got > time.Second {
				t.Errorf("PhaseOffset() = %v, want within (0, 1s]", got)
			}
		})
	}
}
