// Package execctx implements the Execution Context: the
// per-unit budget tracker the Load Executor owns for exactly one unit run.
package execctx

import (
	"context"
	"sync"
	"sync/atomic"

	rgclock "github.com/dnrjke/readygate/internal/clock"
)

// DesignFailureThresholdMS is the single-block time above which a yield is
// flagged as a design failure: never fatal, always
// reportable.
const DesignFailureThresholdMS = 50

// Stats are the counters the executor and progress model consume: yields,
// total work time, recovery frames, forced yields, and the worst
// single-block time seen.
type Stats struct {
	Yields           uint64
	ForcedYields     uint64
	RecoveryFrames   uint64
	TotalWorkMS      int64
	MaxSingleBlockMS int64
	DesignFailure    bool
}

// Context tracks one unit's execution: its budget, frame-start timestamp,
// pause state and counters. It implements health.Subscriber.
type Context struct {
	clk    *rgclock.FrameClock
	budget int64 // ms

	mu            sync.Mutex
	frameStart    int64
	lastYieldAt   int64
	havePrevYield bool
	paused        bool
	pauseReason   string

	stats atomic.Value // Stats
}

// New builds an execution context with the given per-frame budget.
func New(clk *rgclock.FrameClock, budgetMS int64) *Context {
	c := &Context{clk: clk, budget: budgetMS}
	c.stats.Store(Stats{})
	return c
}

// StartFrame captures a new start-of-frame timestamp; elapsed() is
// measured relative to it until the next StartFrame call.
func (c *Context) StartFrame() {
	now := c.clk.Now()
	c.mu.Lock()
	c.frameStart = now
	c.lastYieldAt = now
	c.havePrevYield = true
	c.mu.Unlock()
}

// Elapsed returns milliseconds since the last StartFrame.
func (c *Context) Elapsed() int64 {
	c.mu.Lock()
	frameStart := c.frameStart
	c.mu.Unlock()
	return c.clk.Now() - frameStart
}

// IsOverBudget reports whether Elapsed has reached or exceeded the budget.
func (c *Context) IsOverBudget() bool {
	return c.Elapsed() >= c.budget
}

// IsHealthy reports !paused && !IsOverBudget.
func (c *Context) IsHealthy() bool {
	return !c.Paused() && !c.IsOverBudget()
}

// Paused reports the current pause flag.
func (c *Context) Paused() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.paused
}

// PauseReason returns the reason supplied to the Pause call that paused the
// context, or "" while it is not paused (Resume clears it).
func (c *Context) PauseReason() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pauseReason
}

// Pause implements health.Subscriber: sets the pause flag with a reason.
func (c *Context) Pause(reason string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.paused = true
	c.pauseReason = reason
}

// Resume implements health.Subscriber: clears the pause flag and restarts
// the frame timer for this unit's budget accounting.
func (c *Context) Resume() {
	c.mu.Lock()
	c.paused = false
	c.pauseReason = ""
	c.mu.Unlock()
	c.StartFrame()
}

// RecordYield updates counters for one step boundary. forced indicates the
// yield was forced by a budget/health check rather than the unit's own
// cooperative yield. Never returns an error; a design failure is recorded
// as a flag, never raised.
func (c *Context) RecordYield(forced bool) {
	now := c.clk.Now()

	c.mu.Lock()
	var blockMS int64
	if c.havePrevYield {
		blockMS = now - c.lastYieldAt
	}
	c.lastYieldAt = now
	c.havePrevYield = true
	c.mu.Unlock()

	s := c.stats.Load().(Stats)
	s.Yields++
	if forced {
		s.ForcedYields++
	}
	s.TotalWorkMS += blockMS
	if blockMS > s.MaxSingleBlockMS {
		s.MaxSingleBlockMS = blockMS
	}
	if blockMS > DesignFailureThresholdMS {
		s.DesignFailure = true
	}
	c.stats.Store(s)
}

// RequestRecoveryFrames awaits n host frames via the Frame Clock, used by
// units immediately after an uncooperative blocking call to let the host's
// compositor recover scheduling confidence.
func (c *Context) RequestRecoveryFrames(ctx context.Context, n int) error {
	for i := 0; i < n; i++ {
		if err := c.clk.NextFrame(ctx); err != nil {
			return err
		}
	}
	s := c.stats.Load().(Stats)
	s.RecoveryFrames += uint64(n)
	c.stats.Store(s)
	c.StartFrame()
	return nil
}

// Stats returns a snapshot of the context's counters.
func (c *Context) Stats() Stats {
	return c.stats.Load().(Stats)
}
