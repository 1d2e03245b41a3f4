// Package unit defines the Load Unit data model: phases,
// unit status, cost hints and the coroutine-shaped step contract a host
// application implements to hand readygate a piece of loading work.
package unit

import "context"

// Phase is the fixed, strictly ordered sequence of readiness phases.
// pending and failed are terminals; order is never violated.
type Phase int

const (
	PhasePending Phase = iota
	PhaseFetching
	PhaseBuilding
	PhaseWarming
	PhaseBarrier
	PhaseVisualReady
	PhaseStabilizing
	PhaseReady
	PhaseFailed
)

var phaseNames = map[Phase]string{
	PhasePending:     "pending",
	PhaseFetching:    "fetching",
	PhaseBuilding:    "building",
	PhaseWarming:     "warming",
	PhaseBarrier:     "barrier",
	PhaseVisualReady: "visual_ready",
	PhaseStabilizing: "stabilizing",
	PhaseReady:       "ready",
	PhaseFailed:      "failed",
}

func (p Phase) String() string {
	if n, ok := phaseNames[p]; ok {
		return n
	}
	return "unknown"
}

// orderedLoadPhases is the canonical phase order in which units are drained
// (fetching → building → warming → barrier → visual_ready). Barrier-phase units run as
// part of the BARRIER phase alongside the Render-Ready Barrier itself.
var orderedLoadPhases = []Phase{PhaseFetching, PhaseBuilding, PhaseWarming, PhaseBarrier, PhaseVisualReady}

// OrderedLoadPhases returns the phases the Loading Protocol drains units
// for, in canonical order.
func OrderedLoadPhases() []Phase {
	out := make([]Phase, len(orderedLoadPhases))
	copy(out, orderedLoadPhases)
	return out
}

// Status is a Load Unit's progression state. It is monotonic per run: a
// unit does not return to StatusPending within a run.
type Status int

const (
	StatusPending Status = iota
	StatusLoading
	StatusLoaded
	StatusValidated
	StatusFailed
	StatusSkipped
)

var statusNames = map[Status]string{
	StatusPending:   "pending",
	StatusLoading:   "loading",
	StatusLoaded:    "loaded",
	StatusValidated: "validated",
	StatusFailed:    "failed",
	StatusSkipped:   "skipped",
}

func (s Status) String() string {
	if n, ok := statusNames[s]; ok {
		return n
	}
	return "unknown"
}

// Complete reports whether status represents a unit that no longer needs
// executor attention: validated, loaded or skipped.
func (s Status) Complete() bool {
	return s == StatusValidated || s == StatusLoaded || s == StatusSkipped
}

// Cost is the unit's declared cost estimate, used by the Load Executor to
// pick a per-frame budget.
type Cost int

const (
	CostLight Cost = iota
	CostMedium
	CostHeavy
)

// StepResult is what a unit's coroutine returns from one Step call.
type StepResult int

const (
	// StepYield means a bounded chunk of work completed; the unit has more
	// work and should be resumed by calling Step again.
	StepYield StepResult = iota
	// StepDone means the unit's work is complete.
	StepDone
)

// Steps is the explicit-iteration analogue of "coroutines /
// async-await → explicit step iteration": a restartable state machine that
// performs one bounded chunk of work per Step call, returning StepYield
// until it returns StepDone (or an error).
type Steps interface {
	// Step performs one bounded chunk of work. Implementations must yield
	// control back (return) well before the executor's budget elapses;
	// the executor treats >50ms between yields as a design failure.
	Step(ctx context.Context) (StepResult, error)
}

// ProgressFunc is the on_progress callback a unit's ExecuteSteps receives;
// units may call it zero or more times to report fractional progress
// within their own step sequence. It has no bearing on phase progress
// bands, those are owned by the Arcana Progress Model.
type ProgressFunc func(fraction float64)

// ExecutionContext is the unit-facing view of the Execution Context the
// Load Executor builds for one unit run: budget queries, pause state, and
// the recovery-frames request a unit makes immediately after an
// uncooperative blocking call (e.g. a synchronous asset parse) to let the
// host's compositor recover scheduling confidence.
type ExecutionContext interface {
	// Elapsed returns milliseconds since the executor last reset the
	// per-frame timer for this unit.
	Elapsed() int64
	// IsOverBudget reports whether Elapsed has reached or exceeded the
	// unit's per-frame budget.
	IsOverBudget() bool
	// IsHealthy reports whether the unit is neither paused nor over
	// budget.
	IsHealthy() bool
	// PauseReason returns why the Frame Health Guard paused this context,
	// or "" while it is not paused (Resume clears the reason).
	PauseReason() string
	// RequestRecoveryFrames awaits n host frames, then resets the
	// per-frame timer.
	RequestRecoveryFrames(ctx context.Context, n int) error
}

// Load is the contract a host application implements to hand readygate
// one piece of loading work.
type Load interface {
	// ID is the unit's unique, non-empty identity.
	ID() string
	// TargetPhase is the phase this unit belongs to.
	TargetPhase() Phase
	// RequiredForReady reports whether the protocol must fail if this unit
	// fails to complete.
	RequiredForReady() bool
	// CostHint is this unit's declared cost estimate.
	CostHint() Cost
	// ExecuteSteps returns the step coroutine for this run. Scene is an
	// opaque handle the caller defines; readygate never inspects it. ectx
	// is this run's Execution Context, scoped to this unit alone.
	ExecuteSteps(ectx ExecutionContext, scene any, progress ProgressFunc) (Steps, error)
	// Validate is the optional post-load validator. A false return from
	// HasValidator means the unit has none.
	Validate(ctx context.Context, scene any) (bool, error)
	// HasValidator reports whether Validate should be called at all.
	HasValidator() bool
	// Dispose releases any resources the unit holds. Optional; a no-op
	// implementation is valid.
	Dispose()
}

// Record is a Frame Record: one observation of the host's own
// frame cadence, independent of the renderer's internal frame counter.
type Record struct {
	Index      uint64
	AbsMS      int64
	IntervalMS int64
	Visible    bool
}
