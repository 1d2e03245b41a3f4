// Package progress implements the Arcana Progress Model: a
// display-progress function with compression and hold semantics, driven by
// unit completions and an external per-frame tick, that must never reach
// 100% before visual evidence is verified.
package progress

import (
	"sync"

	"github.com/dnrjke/readygate/internal/unit"
)

// Band is a phase's [lo, hi] display-progress range.
type Band struct {
	Lo, Hi float64
}

// Config mirrors the compression parameters.
type Config struct {
	BarrierRate               float64
	BarrierMinInc             float64
	BarrierMaxInc             float64
	VisualReadyRateMultiplier float64
}

// DefaultConfig matches the documented defaults.
func DefaultConfig() Config {
	return Config{
		BarrierRate:               0.03,
		BarrierMinInc:             0.001,
		BarrierMaxInc:             0.015,
		VisualReadyRateMultiplier: 1.5,
	}
}

// weightRequired and weightOptional are the default per-unit weights:
// required units weigh 1.0, optional 0.5, unless a unit overrides via
// WithWeight.
const (
	weightRequired = 1.0
	weightOptional = 0.5
)

var phaseBands = map[unit.Phase]Band{
	unit.PhasePending:     {0, 0},
	unit.PhaseFetching:    {0, 0.10},
	unit.PhaseBuilding:    {0.10, 0.70},
	unit.PhaseWarming:     {0.70, 0.85},
	unit.PhaseBarrier:     {0.85, 0.90},
	unit.PhaseVisualReady: {0.90, 0.98},
	unit.PhaseStabilizing: {1.00, 1.00},
	unit.PhaseReady:       {1.00, 1.00},
}

// EventKind names the typed events the model emits.
type EventKind int

const (
	EventUnitStart EventKind = iota
	EventUnitComplete
	EventBarrierEnter
	EventBarrierResolve
	EventVisualReadyEnter
	EventVisualReadyComplete
	EventStabilizingEnter
	EventStabilizingComplete
	EventLaunch
	EventPhaseChange
	EventProgressUpdate
)

// Event is what Model.OnEvent delivers.
type Event struct {
	Kind    EventKind
	Phase   unit.Phase
	Display float64
	Raw     float64
}

// Model is the Arcana Progress Model.
type Model struct {
	cfg Config

	mu             sync.Mutex
	weights        map[string]float64
	completed      map[string]bool
	phase          unit.Phase
	display        float64
	visualComplete bool
	emit           func(Event)
}

// New constructs a Model. emit, if non-nil, receives every observable event.
func New(cfg Config, emit func(Event)) *Model {
	if cfg.BarrierRate <= 0 {
		cfg = DefaultConfig()
	}
	return &Model{
		cfg:       cfg,
		weights:   make(map[string]float64),
		completed: make(map[string]bool),
		phase:     unit.PhasePending,
		emit:      emit,
	}
}

// RegisterUnit sets a unit's weight from its required flag, unless
// overridden.
func (m *Model) RegisterUnit(id string, required bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if required {
		m.weights[id] = weightRequired
	} else {
		m.weights[id] = weightOptional
	}
}

// WithWeight overrides a registered unit's weight.
func (m *Model) WithWeight(id string, weight float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.weights[id] = weight
}

// UnitStarted records a unit beginning work and emits unit_start.
func (m *Model) UnitStarted(id string) {
	m.fire(Event{Kind: EventUnitStart, Phase: m.Phase()})
}

// UnitCompleted records a unit finishing (loaded/validated/skipped) and
// recomputes raw progress, emitting unit_complete then progress_update.
func (m *Model) UnitCompleted(id string) {
	m.mu.Lock()
	m.completed[id] = true
	phase := m.phase
	m.mu.Unlock()

	m.fire(Event{Kind: EventUnitComplete, Phase: phase})
	m.fire(Event{Kind: EventProgressUpdate, Phase: phase, Display: m.Display(), Raw: m.raw()})
}

// EnterPhase transitions the model into phase, clamping display progress to
// the new phase's band floor if it has not yet caught up, and emits
// phase_change plus the phase's enter event where applicable.
func (m *Model) EnterPhase(phase unit.Phase) {
	m.mu.Lock()
	m.phase = phase
	band := phaseBands[phase]
	// Stabilizing/Ready's band floor is 1.00, but display must never reach
	// 1.00 before ResolveVisualReady has fired; skip the clamp until then
	// rather than let entering the phase race ahead of that invariant.
	if m.display < band.Lo && (phase != unit.PhaseStabilizing && phase != unit.PhaseReady || m.visualComplete) {
		m.display = band.Lo
	}
	display := m.display
	m.mu.Unlock()

	m.fire(Event{Kind: EventPhaseChange, Phase: phase, Display: display})

	switch phase {
	case unit.PhaseBarrier:
		m.fire(Event{Kind: EventBarrierEnter, Phase: phase, Display: display})
	case unit.PhaseVisualReady:
		m.fire(Event{Kind: EventVisualReadyEnter, Phase: phase, Display: display})
	case unit.PhaseStabilizing:
		m.fire(Event{Kind: EventStabilizingEnter, Phase: phase, Display: display})
	}
}

// ResolveBarrier clamps display to ≥ 0.90 and emits barrier_resolve.
func (m *Model) ResolveBarrier() {
	m.mu.Lock()
	if m.display < 0.90 {
		m.display = 0.90
	}
	display := m.display
	m.mu.Unlock()
	m.fire(Event{Kind: EventBarrierResolve, Phase: unit.PhaseBarrier, Display: display})
}

// ResolveVisualReady marks visual-ready evidence complete, the only event
// after which display progress may legally reach 1.0, and emits
// visual_ready_complete.
func (m *Model) ResolveVisualReady() {
	m.mu.Lock()
	m.visualComplete = true
	if m.display < 0.98 {
		m.display = 0.98
	}
	display := m.display
	m.mu.Unlock()
	m.fire(Event{Kind: EventVisualReadyComplete, Phase: unit.PhaseVisualReady, Display: display})
}

// ResolveStabilizing pins display at 1.00 and emits stabilizing_complete.
// Panics if visual_ready_complete has not yet fired: display must never
// reach 1.0 before visual readiness is confirmed, enforced here as an
// assertion rather than left as a documentation-only invariant.
func (m *Model) ResolveStabilizing() {
	m.mu.Lock()
	if !m.visualComplete {
		m.mu.Unlock()
		panic("progress: ResolveStabilizing called before visual_ready_complete")
	}
	m.display = 1.00
	m.mu.Unlock()
	m.fire(Event{Kind: EventStabilizingComplete, Phase: unit.PhaseStabilizing, Display: 1.00})
}

// Launch emits the terminal launch event.
func (m *Model) Launch() {
	m.fire(Event{Kind: EventLaunch, Phase: unit.PhaseReady, Display: m.Display()})
}

// Tick advances display progress toward raw progress within the current
// phase's compression scheme. Called by an external
// animator, typically every 16 ms.
func (m *Model) Tick() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.phase == unit.PhaseStabilizing || m.phase == unit.PhaseReady {
		return
	}

	raw := m.rawLocked()
	if raw <= m.display {
		return
	}

	rate := m.cfg.BarrierRate
	minInc := m.cfg.BarrierMinInc
	maxInc := m.cfg.BarrierMaxInc
	if m.phase == unit.PhaseVisualReady {
		rate *= m.cfg.VisualReadyRateMultiplier
		minInc *= m.cfg.VisualReadyRateMultiplier
		maxInc *= m.cfg.VisualReadyRateMultiplier
	}

	inc := (raw - m.display) * rate
	if inc < minInc {
		inc = minInc
	}
	if inc > maxInc {
		inc = maxInc
	}

	band := phaseBands[m.phase]
	next := m.display + inc
	if next > band.Hi {
		next = band.Hi
	}
	if next > raw {
		next = raw
	}
	m.display = next
}

// Display returns the current display progress value ∈ [0, 1].
func (m *Model) Display() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.display
}

// Phase returns the current phase.
func (m *Model) Phase() unit.Phase {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.phase
}

// VisualReadyComplete reports whether ResolveVisualReady has fired, the
// gate ResolveStabilizing requires before display may equal 1.0.
func (m *Model) VisualReadyComplete() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.visualComplete
}

func (m *Model) raw() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.rawLocked()
}

// rawLocked computes raw progress inside the current phase's band from
// completed-unit weight. Callers must hold m.mu.
func (m *Model) rawLocked() float64 {
	if len(m.weights) == 0 {
		band := phaseBands[m.phase]
		return band.Hi
	}

	var total, done float64
	for id, w := range m.weights {
		total += w
		if m.completed[id] {
			done += w
		}
	}
	if total == 0 {
		return phaseBands[m.phase].Lo
	}

	band := phaseBands[m.phase]
	frac := done / total
	return band.Lo + frac*(band.Hi-band.Lo)
}

func (m *Model) fire(ev Event) {
	if m.emit == nil {
		return
	}
	m.emit(ev)
}
