package protocol

import "github.com/dnrjke/readygate/internal/unit"

// PhaseTiming records how long one phase took to cross.
type PhaseTiming struct {
	Phase     unit.Phase
	ElapsedMS int64
}

// FailedUnit records a unit that failed during a run.
type FailedUnit struct {
	ID  string
	Err error
}

// Result is what Run always returns, success or failure. It never panics
// or returns a bare error to the caller; every outcome, including
// cancellation, is reported here.
type Result struct {
	// Phase is the phase the run ended in: PhaseReady on success,
	// PhaseFailed otherwise.
	Phase unit.Phase
	// ElapsedMS is the total wall time of the run, in Frame Clock
	// milliseconds.
	ElapsedMS int64
	// PhaseTimings records elapsed time for every phase the run entered,
	// in the order entered.
	PhaseTimings []PhaseTiming
	// FailedUnits lists every unit that failed, required or optional.
	// Optional failures also appear here even though they did not abort
	// the run; they are not silent.
	FailedUnits []FailedUnit
	// Err is the first error encountered, nil on success.
	Err error
	// Warnings carries non-fatal advisories, e.g. the stabilization
	// fail-safe firing.
	Warnings []string
	// DisplayProgress is the Arcana Progress Model's final display value.
	DisplayProgress float64
}

// Succeeded reports whether the run reached PhaseReady.
func (r Result) Succeeded() bool {
	return r.Phase == unit.PhaseReady && r.Err == nil
}
