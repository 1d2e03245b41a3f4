// Package clock provides the Frame Clock: a monotonic
// millisecond time source plus a cooperative suspension primitive that
// resumes on the next host frame callback.
//
// Production code is driven by a real host (a browser's
// requestAnimationFrame, or any scheduler that can deliver one-shot frame
// callbacks); tests drive hand-stepped Host implementations (the per-package
// manual hosts and internal/testutil.TickHost) so that frame cadence, stalls
// and throttle patterns are reproducible without real sleeps.
package clock

import (
	"context"
	"time"

	"github.com/benbjohnson/clock"
)

// Host is the external frame-callback primitive this package suspends on.
// RequestFrame must invoke cb exactly once, asynchronously, the next time
// the host's scheduler produces a frame.
type Host interface {
	Now() time.Time
	RequestFrame(cb func(t time.Time))
}

// RealHost adapts a fixed-delay timer into a Host: each RequestFrame fires
// its callback once, one period after the request. Host applications that
// expose a native one-shot "next frame" primitive (a requestAnimationFrame
// binding, a game engine's per-tick hook, ...) should implement Host
// directly instead; RealHost exists for environments with nothing better
// than a timer.
type RealHost struct {
	clk    clock.Clock
	period time.Duration
}

// NewRealHost builds a Host whose frame callbacks fire one period after
// they are requested, a stand-in for a native frame callback when the
// embedding application has none.
func NewRealHost(period time.Duration) *RealHost {
	if period <= 0 {
		period = 16 * time.Millisecond
	}
	return &RealHost{clk: clock.New(), period: period}
}

func (h *RealHost) Now() time.Time { return h.clk.Now() }

func (h *RealHost) RequestFrame(cb func(t time.Time)) {
	t := h.clk.Timer(h.period)
	go func() {
		tm := <-t.C
		cb(tm)
	}()
}

// FrameClock is the library-facing Frame Clock: Now() and NextFrame().
type FrameClock struct {
	host  Host
	start time.Time
}

// New builds a FrameClock bound to a Host.
func New(host Host) *FrameClock {
	return &FrameClock{host: host, start: host.Now()}
}

// Now returns a monotonic millisecond timestamp relative to the clock's
// construction. Callers must not assume sub-millisecond precision.
func (c *FrameClock) Now() int64 {
	return c.host.Now().Sub(c.start).Milliseconds()
}

// NextFrame suspends the calling goroutine until at least one host frame
// has been scheduled, or ctx is done. Between suspension and resumption at
// least one host frame has elapsed, satisfying the Frame Clock contract
// that budget measurements are comparable to the renderer's own timing.
func (c *FrameClock) NextFrame(ctx context.Context) error {
	done := make(chan time.Time, 1)
	c.host.RequestFrame(func(t time.Time) {
		select {
		case done <- t:
		default:
		}
	})

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
