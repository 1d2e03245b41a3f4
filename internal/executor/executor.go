// Package executor implements the Load Executor: drives one
// unit's step coroutine to completion under a per-frame time budget,
// consulting the Frame Health Guard at every yield.
package executor

import (
	"context"
	"fmt"
	"time"

	rgclock "github.com/dnrjke/readygate/internal/clock"
	"github.com/dnrjke/readygate/internal/execctx"
	"github.com/dnrjke/readygate/internal/health"
	"github.com/dnrjke/readygate/internal/obslog"
	"github.com/dnrjke/readygate/internal/registry"
	"github.com/dnrjke/readygate/internal/unit"
)

// Config mirrors the budget defaults.
type Config struct {
	// DefaultBudgetMS is the per-frame allowance for ordinary units.
	DefaultBudgetMS int64
	// AggressiveBudgetMS applies to units inferred or declared HEAVY.
	AggressiveBudgetMS int64
	// AutoHeavyThresholdMS: a unit whose prior elapsed time exceeded this
	// is treated as HEAVY even if not declared so.
	AutoHeavyThresholdMS float64
}

// DefaultConfig matches the documented defaults.
func DefaultConfig() Config {
	return Config{
		DefaultBudgetMS:      4,
		AggressiveBudgetMS:   2,
		AutoHeavyThresholdMS: 16,
	}
}

// Result is what Run returns for a single unit.
type Result struct {
	UnitID    string
	Status    unit.Status
	Skipped   bool
	Err       error
	Stats     execctx.Stats
	ElapsedMS int64
}

// Executor drives one unit at a time against a shared clock, health guard
// and registry.
type Executor struct {
	clk    *rgclock.FrameClock
	guard  *health.Guard
	reg    *registry.Registry
	cfg    Config
	logger *obslog.Logger
}

// New builds an Executor.
func New(clk *rgclock.FrameClock, guard *health.Guard, reg *registry.Registry, cfg Config, logger *obslog.Logger) *Executor {
	if cfg.DefaultBudgetMS <= 0 {
		cfg = DefaultConfig()
	}
	if logger == nil {
		logger = obslog.DefaultLogger("readygate")
	}
	return &Executor{clk: clk, guard: guard, reg: reg, cfg: cfg, logger: logger.Named("executor")}
}

// Run drives u to completion or failure.
func (e *Executor) Run(ctx context.Context, u unit.Load, scene any, onProgress unit.ProgressFunc) Result {
	id := u.ID()

	status, ok := e.reg.Status(id)
	if !ok {
		status = unit.StatusPending
	}
	if status != unit.StatusPending {
		return Result{UnitID: id, Status: status, Skipped: true}
	}

	budget := e.inferBudget(id, u.CostHint())

	ectx := execctx.New(e.clk, budget)
	e.guard.Connect(ectx)
	defer e.guard.Disconnect(ectx)

	e.reg.SetStatus(id, unit.StatusLoading, nil)

	start := e.clk.Now()

	steps, err := u.ExecuteSteps(ectx, scene, onProgress)
	if err != nil {
		e.fail(id, err)
		return Result{UnitID: id, Status: unit.StatusFailed, Err: err, Stats: ectx.Stats()}
	}

	ectx.StartFrame()

	for {
		if err := ctx.Err(); err != nil {
			e.fail(id, err)
			return Result{UnitID: id, Status: unit.StatusFailed, Err: err, Stats: ectx.Stats(), ElapsedMS: e.clk.Now() - start}
		}

		switch e.guard.Status() {
		case health.Critical, health.Locked, health.Recovering:
			if err := e.clk.NextFrame(ctx); err != nil {
				e.fail(id, err)
				return Result{UnitID: id, Status: unit.StatusFailed, Err: err, Stats: ectx.Stats()}
			}
			ectx.StartFrame()
			continue
		}

		if ectx.Paused() {
			if err := e.clk.NextFrame(ctx); err != nil {
				e.fail(id, err)
				return Result{UnitID: id, Status: unit.StatusFailed, Err: err, Stats: ectx.Stats()}
			}
			continue
		}

		result, err := steps.Step(ctx)
		if err != nil {
			e.fail(id, err)
			return Result{UnitID: id, Status: unit.StatusFailed, Err: err, Stats: ectx.Stats(), ElapsedMS: e.clk.Now() - start}
		}

		if result == unit.StepDone {
			break
		}

		if ectx.IsOverBudget() {
			ectx.RecordYield(true)
			if err := e.clk.NextFrame(ctx); err != nil {
				e.fail(id, err)
				return Result{UnitID: id, Status: unit.StatusFailed, Err: err, Stats: ectx.Stats()}
			}
			ectx.StartFrame()
		} else {
			ectx.RecordYield(false)
		}
	}

	elapsed := e.clk.Now() - start
	e.reg.SetStatus(id, unit.StatusLoaded, nil)
	e.reg.RecordElapsed(id, float64(elapsed))

	stats := ectx.Stats()
	if stats.DesignFailure {
		e.logger.Warn("unit exceeded single-block design threshold",
			obslog.String("unit", id),
			obslog.Duration("max_block", time.Duration(stats.MaxSingleBlockMS)*time.Millisecond))
	}

	return Result{UnitID: id, Status: unit.StatusLoaded, Stats: stats, ElapsedMS: elapsed}
}

func (e *Executor) fail(id string, err error) {
	e.reg.SetStatus(id, unit.StatusFailed, err)
	e.logger.Error("unit failed", obslog.String("unit", id), obslog.Err(err))
}

// inferBudget implements step 2: HEAVY units, or units whose
// prior runs exceeded the auto-heavy threshold, get the aggressive budget.
func (e *Executor) inferBudget(id string, cost unit.Cost) int64 {
	if cost == unit.CostHeavy {
		return e.cfg.AggressiveBudgetMS
	}
	if prior, ok := e.reg.PriorElapsed(id); ok && prior > e.cfg.AutoHeavyThresholdMS {
		return e.cfg.AggressiveBudgetMS
	}
	return e.cfg.DefaultBudgetMS
}

// RunSequential runs units in input order; a required unit's failure
// aborts the run, optional-unit failures are absorbed as skipped.
func (e *Executor) RunSequential(ctx context.Context, units []unit.Load, scene any, onProgress unit.ProgressFunc) ([]Result, error) {
	results := make([]Result, 0, len(units))
	for _, u := range units {
		res := e.Run(ctx, u, scene, onProgress)
		results = append(results, res)

		if res.Err != nil {
			if u.RequiredForReady() {
				return results, fmt.Errorf("required unit %q failed: %w", u.ID(), res.Err)
			}
			e.reg.SetStatus(u.ID(), unit.StatusSkipped, res.Err)
			results[len(results)-1].Status = unit.StatusSkipped
		}
	}
	return results, nil
}
