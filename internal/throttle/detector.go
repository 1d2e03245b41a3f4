// Package throttle implements the Throttle-Lock Detector: a
// sliding window over recent frame intervals that recognizes a host
// compositor's punitive throttle cadence (commonly ~10 Hz) as "locked"
// (running, just slow) rather than stalled.
package throttle

import "math"

// Config is the closed set of options the detector accepts.
type Config struct {
	// Window is the number of most recent intervals considered.
	Window int
	// LowMS/HighMS bound the inclusive band every sample must fall inside.
	LowMS, HighMS float64
	// StddevThresholdMS is the maximum permitted sample standard deviation.
	StddevThresholdMS float64
}

// DefaultConfig matches the documented defaults: window 10, band
// [95, 115] ms, stddev threshold 5 ms.
func DefaultConfig() Config {
	return Config{
		Window:            10,
		LowMS:             95,
		HighMS:            115,
		StddevThresholdMS: 5,
	}
}

// Detector is a sliding window over the last Window interval samples.
type Detector struct {
	cfg     Config
	samples []float64
}

// New builds a Detector. A zero Config.Window falls back to DefaultConfig.
func New(cfg Config) *Detector {
	if cfg.Window <= 0 {
		cfg = DefaultConfig()
	}
	return &Detector{cfg: cfg, samples: make([]float64, 0, cfg.Window)}
}

// Push appends a new frame interval (in milliseconds), discarding the
// oldest sample once the window is full.
func (d *Detector) Push(dtMS float64) {
	d.samples = append(d.samples, dtMS)
	if len(d.samples) > d.cfg.Window {
		d.samples = d.samples[len(d.samples)-d.cfg.Window:]
	}
}

// Reset clears the window. A push immediately after reset behaves exactly
// like the first push into a freshly constructed Detector.
func (d *Detector) Reset() {
	d.samples = d.samples[:0]
}

// Mean returns the sample mean in milliseconds, or 0 for an empty window.
func (d *Detector) Mean() float64 {
	if len(d.samples) == 0 {
		return 0
	}
	sum := 0.0
	for _, s := range d.samples {
		sum += s
	}
	return sum / float64(len(d.samples))
}

// Stddev returns the population standard deviation of the window, or 0 for
// an empty window.
func (d *Detector) Stddev() float64 {
	n := len(d.samples)
	if n == 0 {
		return 0
	}
	mean := d.Mean()
	var variance float64
	for _, s := range d.samples {
		diff := s - mean
		variance += diff * diff
	}
	variance /= float64(n)
	return math.Sqrt(variance)
}

// IsLocked reports whether the window is full and every sample lies inside
// [LowMS, HighMS] with stddev at or below StddevThresholdMS, the
// definition of a throttle-stable cadence.
func (d *Detector) IsLocked() bool {
	if len(d.samples) < d.cfg.Window {
		return false
	}
	for _, s := range d.samples {
		if s < d.cfg.LowMS || s > d.cfg.HighMS {
			return false
		}
	}
	return d.Stddev() <= d.cfg.StddevThresholdMS
}

// Len reports how many samples currently fill the window.
func (d *Detector) Len() int { return len(d.samples) }
