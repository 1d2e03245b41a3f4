package throttle_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dnrjke/readygate/internal/throttle"
)

func fill(d *throttle.Detector, n int, v float64) {
	for i := 0; i < n; i++ {
		d.Push(v)
	}
}

func TestDetector_LocksOnceWindowFullAndWithinBand(t *testing.T) {
	d := throttle.New(throttle.DefaultConfig())

	fill(d, 9, 104)
	require.False(t, d.IsLocked(), "window not yet full")

	d.Push(104)
	assert.True(t, d.IsLocked())
	assert.InDelta(t, 104, d.Mean(), 0.001)
	assert.InDelta(t, 0, d.Stddev(), 0.001)
}

func TestDetector_NotLockedOutsideBand(t *testing.T) {
	d := throttle.New(throttle.DefaultConfig())
	fill(d, 10, 16.67) // healthy 60fps cadence, not throttle-locked
	assert.False(t, d.IsLocked())
}

func TestDetector_NotLockedWhenStddevTooHigh(t *testing.T) {
	cfg := throttle.DefaultConfig()
	d := throttle.New(cfg)

	for i := 0; i < cfg.Window; i++ {
		if i%2 == 0 {
			d.Push(cfg.LowMS)
		} else {
			d.Push(cfg.HighMS)
		}
	}
	assert.False(t, d.IsLocked())
}

func TestDetector_ResetThenPushMatchesFreshDetector(t *testing.T) {
	d := throttle.New(throttle.DefaultConfig())
	fill(d, 10, 16.67)
	require.False(t, d.IsLocked())

	d.Reset()
	fill(d, 10, 104)

	fresh := throttle.New(throttle.DefaultConfig())
	fill(fresh, 10, 104)

	assert.Equal(t, fresh.IsLocked(), d.IsLocked())
	assert.InDelta(t, fresh.Mean(), d.Mean(), 0.001)
}
