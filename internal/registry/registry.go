// Package registry implements the Unit Registry: a keyed
// store of Load Units grouped by phase, with required/optional
// classification, query operations, and disposal semantics.
package registry

import (
	"fmt"
	"sync"

	"github.com/dnrjke/readygate/internal/unit"
)

// statusWeight mirrors the progress-estimator weight table.
var statusWeight = map[unit.Status]float64{
	unit.StatusPending:   0,
	unit.StatusLoading:   0.5,
	unit.StatusLoaded:    0.8,
	unit.StatusValidated: 1.0,
	unit.StatusFailed:    0,
	unit.StatusSkipped:   1.0,
}

// entry is the registry's bookkeeping record for one unit.
type entry struct {
	load   unit.Load
	status unit.Status
	err    error
	// elapsedHistoryMS is a small moving average of prior elapsed times,
	// used by the Load Executor's cost inference.
	elapsedHistoryMS float64
	haveHistory      bool
}

// Registry is the Unit Registry.
type Registry struct {
	mu      sync.RWMutex
	order   []string
	entries map[string]*entry
}

// New constructs an empty Registry.
func New() *Registry {
	return &Registry{entries: make(map[string]*entry)}
}

// Register adds a unit. Duplicate ids are rejected.
func (r *Registry) Register(u unit.Load) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	id := u.ID()
	if id == "" {
		return fmt.Errorf("registry: unit id must not be empty")
	}
	if _, exists := r.entries[id]; exists {
		return fmt.Errorf("registry: duplicate registration for unit %q", id)
	}

	r.entries[id] = &entry{load: u, status: unit.StatusPending}
	r.order = append(r.order, id)
	return nil
}

// RegisterAll registers every unit in order, stopping at the first error.
func (r *Registry) RegisterAll(units []unit.Load) error {
	for _, u := range units {
		if err := r.Register(u); err != nil {
			return err
		}
	}
	return nil
}

// Get returns the unit registered under id.
func (r *Registry) Get(id string) (unit.Load, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[id]
	if !ok {
		return nil, false
	}
	return e.load, true
}

// Status returns the current status of the unit registered under id.
func (r *Registry) Status(id string) (unit.Status, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[id]
	if !ok {
		return unit.StatusPending, false
	}
	return e.status, true
}

// SetStatus updates a unit's status and, for failures, its recorded error.
func (r *Registry) SetStatus(id string, status unit.Status, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.entries[id]; ok {
		e.status = status
		if err != nil {
			e.err = err
		}
	}
}

// RecordElapsed folds a unit's measured elapsed time into its moving
// average, using an `(old*3 + new) / 4` decay.
func (r *Registry) RecordElapsed(id string, elapsedMS float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[id]
	if !ok {
		return
	}
	if !e.haveHistory {
		e.elapsedHistoryMS = elapsedMS
		e.haveHistory = true
		return
	}
	e.elapsedHistoryMS = (e.elapsedHistoryMS*3 + elapsedMS) / 4
}

// PriorElapsed returns the moving average of a unit's historical elapsed
// time and whether any history exists yet.
func (r *Registry) PriorElapsed(id string) (float64, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[id]
	if !ok || !e.haveHistory {
		return 0, false
	}
	return e.elapsedHistoryMS, true
}

// Error returns the recorded error for a failed unit, if any.
func (r *Registry) Error(id string) error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if e, ok := r.entries[id]; ok {
		return e.err
	}
	return nil
}

// ByPhase returns every unit targeting phase, in registration order.
func (r *Registry) ByPhase(phase unit.Phase) []unit.Load {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []unit.Load
	for _, id := range r.order {
		e := r.entries[id]
		if e.load.TargetPhase() == phase {
			out = append(out, e.load)
		}
	}
	return out
}

// ByStatus returns every unit currently at status.
func (r *Registry) ByStatus(status unit.Status) []unit.Load {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []unit.Load
	for _, id := range r.order {
		e := r.entries[id]
		if e.status == status {
			out = append(out, e.load)
		}
	}
	return out
}

// Required returns every required-for-ready unit, in registration order.
func (r *Registry) Required() []unit.Load {
	return r.filter(func(u unit.Load) bool { return u.RequiredForReady() })
}

// Optional returns every non-required unit, in registration order.
func (r *Registry) Optional() []unit.Load {
	return r.filter(func(u unit.Load) bool { return !u.RequiredForReady() })
}

func (r *Registry) filter(pred func(unit.Load) bool) []unit.Load {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []unit.Load
	for _, id := range r.order {
		e := r.entries[id]
		if pred(e.load) {
			out = append(out, e.load)
		}
	}
	return out
}

// All returns every registered unit in canonical registration order.
func (r *Registry) All() []unit.Load {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]unit.Load, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.entries[id].load)
	}
	return out
}

// Progress implements the progress estimator, used only until the Arcana
// Progress Model takes over unit-level weighting.
func (r *Registry) Progress(requiredOnly bool) float64 {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var units []string
	if requiredOnly {
		for _, id := range r.order {
			if r.entries[id].load.RequiredForReady() {
				units = append(units, id)
			}
		}
	} else {
		units = r.order
	}

	if len(units) == 0 {
		return 0
	}

	var sum float64
	for _, id := range units {
		sum += statusWeight[r.entries[id].status]
	}
	return sum / float64(len(units))
}

// Clear disposes every registered unit exactly once and empties the
// registry.
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, id := range r.order {
		r.entries[id].load.Dispose()
	}
	r.entries = make(map[string]*entry)
	r.order = nil
}

// Len reports how many units are currently registered.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}
