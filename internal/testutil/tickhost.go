package testutil

import (
	"sync"
	"time"
)

// TickHost is a deterministic rgclock.Host: time only advances when Tick is
// called, by exactly the duration given, and a Tick fires exactly the frame
// callbacks requested before it. Anything requested while those callbacks
// run is deferred to the next Tick. This is the same request/fire shape the
// internal packages' own manual hosts use; TickHost adds an optional
// background Drive loop so a single fixture can support a multi-component
// caller like the Loading Protocol, where precisely hand-counting how many
// frame chains are in flight at once is impractical.
type TickHost struct {
	mu      sync.Mutex
	now     time.Time
	pending []func(time.Time)
	stop    chan struct{}
}

// NewTickHost builds a TickHost starting at an arbitrary fixed instant.
func NewTickHost() *TickHost {
	return &TickHost{now: time.Unix(0, 0)}
}

// Now implements rgclock.Host.
func (h *TickHost) Now() time.Time {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.now
}

// RequestFrame implements rgclock.Host: cb fires on the next Tick.
func (h *TickHost) RequestFrame(cb func(t time.Time)) {
	h.mu.Lock()
	h.pending = append(h.pending, cb)
	h.mu.Unlock()
}

// Tick advances simulated time by dt and fires every callback requested
// since the previous Tick.
func (h *TickHost) Tick(dt time.Duration) {
	h.mu.Lock()
	h.now = h.now.Add(dt)
	due := h.pending
	h.pending = nil
	now := h.now
	h.mu.Unlock()

	for _, cb := range due {
		cb(now)
	}
}

// PendingLen reports how many callbacks are queued for the next Tick.
func (h *TickHost) PendingLen() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.pending)
}

// Drive starts a background goroutine that calls Tick(dt) every pace
// wall-clock interval. pace is real time, not simulated time: it exists
// only to give goroutines reacting to one frame a chance to call
// RequestFrame again before the next frame fires. Stop ends the loop.
func (h *TickHost) Drive(dt, pace time.Duration) {
	h.mu.Lock()
	if h.stop != nil {
		h.mu.Unlock()
		return
	}
	stop := make(chan struct{})
	h.stop = stop
	h.mu.Unlock()

	go func() {
		ticker := time.NewTicker(pace)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				h.Tick(dt)
			}
		}
	}()
}

// Stop halts a running Drive loop. Safe to call even if Drive was never
// started.
func (h *TickHost) Stop() {
	h.mu.Lock()
	stop := h.stop
	h.stop = nil
	h.mu.Unlock()
	if stop != nil {
		close(stop)
	}
}
