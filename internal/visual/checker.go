// Package visual implements the Visual-Ready Checker:
// predicate-based scene requirements that must hold for several consecutive
// attempts before being considered validated.
package visual

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/multierr"

	rgclock "github.com/dnrjke/readygate/internal/clock"
)

// Predicate evaluates a scene-level property. Must be side-effect-free and
// must not depend on elapsed time or "rendered at least once" heuristics.
type Predicate func(ctx context.Context, scene any) (ready bool, reason string, err error)

// Requirement is one visual requirement: an identity, a display name and a
// predicate.
type Requirement struct {
	ID    string
	Name  string
	Check Predicate
}

// Config is the Visual-Ready Checker's option set.
type Config struct {
	MaxAttempts               int
	AttemptDelay              time.Duration
	MinConsecutiveFramesReady int
}

// DefaultConfig matches the documented defaults.
func DefaultConfig() Config {
	return Config{
		MaxAttempts:               45,
		AttemptDelay:              50 * time.Millisecond,
		MinConsecutiveFramesReady: 3,
	}
}

type requirementState struct {
	req         Requirement
	consecutive int
	validated   bool
	lastReason  string
}

// Checker is the Visual-Ready Checker.
type Checker struct {
	cfg Config
	clk *rgclock.FrameClock
}

// New builds a Checker bound to clk.
func New(clk *rgclock.FrameClock, cfg Config) *Checker {
	if cfg.MaxAttempts <= 0 {
		cfg = DefaultConfig()
	}
	return &Checker{cfg: cfg, clk: clk}
}

// Run evaluates every requirement repeatedly until each has accumulated
// MinConsecutiveFramesReady consecutive ready observations, MaxAttempts is
// exhausted, or ctx is cancelled. Failure aggregates every still-pending
// requirement with its last-observed reason via multierr.
func (c *Checker) Run(ctx context.Context, scene any, requirements []Requirement) error {
	states := make([]*requirementState, len(requirements))
	for i, r := range requirements {
		states[i] = &requirementState{req: r}
	}

	for attempt := 0; attempt < c.cfg.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("visual-ready checker: %w", err)
		}

		allValidated := true
		for _, st := range states {
			if st.validated {
				continue
			}

			ready, reason, err := st.req.Check(ctx, scene)
			if err != nil {
				st.consecutive = 0
				st.lastReason = err.Error()
				allValidated = false
				continue
			}

			if ready {
				st.consecutive++
				if st.consecutive >= c.cfg.MinConsecutiveFramesReady {
					st.validated = true
					continue
				}
			} else {
				st.consecutive = 0
				st.lastReason = reason
			}
			allValidated = false
		}

		if allValidated {
			return nil
		}

		if attempt < c.cfg.MaxAttempts-1 {
			if err := c.sleep(ctx, c.cfg.AttemptDelay); err != nil {
				return fmt.Errorf("visual-ready checker: %w", err)
			}
		}
	}

	var errs error
	for _, st := range states {
		if !st.validated {
			reason := st.lastReason
			if reason == "" {
				reason = "no ready observation recorded"
			}
			errs = multierr.Append(errs, fmt.Errorf("requirement %q (%s) pending: %s", st.req.ID, st.req.Name, reason))
		}
	}
	return fmt.Errorf("visual-ready checker: requirements unmet after %d attempts: %w", c.cfg.MaxAttempts, errs)
}

// sleep suspends for d using the Frame Clock's frame-by-frame suspension
// primitive rather than a wall-clock timer, keeping it inside the same
// closed set of suspension points every other blocking call uses.
func (c *Checker) sleep(ctx context.Context, d time.Duration) error {
	deadline := c.clk.Now() + d.Milliseconds()
	for c.clk.Now() < deadline {
		if err := c.clk.NextFrame(ctx); err != nil {
			return err
		}
	}
	return nil
}
