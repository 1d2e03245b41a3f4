// Package protocol wires the Unit Registry, Load Executor, Frame Health
// Guard, Render-Ready Barrier, Engine-Awakened Barrier, Visual-Ready
// Checker, Arcana Progress Model and Loading State Emitter into the
// Loading Protocol: the seven-phase sequence (fetching, building, warming,
// barrier, visual_ready, stabilizing, ready) that takes a host application
// from "constructed" to "safe to hand control to the player".
//
// Run is a free function rather than a method on a stateful type: each
// call owns its own registry, guard and executor, so there is no shared
// object a caller could invoke twice concurrently and no "already running"
// state to track or reject.
package protocol

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/dnrjke/readygate/internal/barrier"
	rgclock "github.com/dnrjke/readygate/internal/clock"
	"github.com/dnrjke/readygate/internal/emitter"
	"github.com/dnrjke/readygate/internal/executor"
	"github.com/dnrjke/readygate/internal/health"
	"github.com/dnrjke/readygate/internal/metrics"
	"github.com/dnrjke/readygate/internal/obslog"
	"github.com/dnrjke/readygate/internal/progress"
	"github.com/dnrjke/readygate/internal/registry"
	"github.com/dnrjke/readygate/internal/unit"
	"github.com/dnrjke/readygate/internal/visual"
)

// Renderer is the full renderer surface the Loading Protocol needs: the
// Engine-Awakened Barrier's synchronous frame cycle and before-render
// observable, plus the Render-Ready Barrier's after-render observable.
type Renderer interface {
	barrier.Renderer
	barrier.AfterRenderObservable
}

// Input bundles everything specific to one run: the renderer under test,
// the opaque scene handle passed through to every unit and barrier, and
// the units to drain.
type Input struct {
	Renderer Renderer
	Scene    any
	Units    []unit.Load
}

func (in Input) validate() error {
	if in.Renderer == nil {
		return fmt.Errorf("protocol: renderer must not be nil")
	}
	if in.Scene == nil {
		return fmt.Errorf("protocol: scene must not be nil")
	}
	return nil
}

type stateChangeEvent struct {
	ID     string
	Status unit.Status
}

type unitCompleteEvent struct {
	ID     string
	Status unit.Status
	Err    error
}

// Run drives one complete pass of the Loading Protocol against host and
// in, honoring opts (zero value is the fully-defaulted configuration), and
// always returns a Result, including on cancellation or unit failure. It
// never panics and never returns a bare error.
func Run(ctx context.Context, host rgclock.Host, in Input, opts Options) Result {
	opts = opts.withDefaults()
	logger := opts.logger()

	if err := in.validate(); err != nil {
		return Result{Phase: unit.PhaseFailed, Err: err}
	}

	clk := rgclock.New(host)

	reg := registry.New()
	if err := reg.RegisterAll(in.Units); err != nil {
		return Result{Phase: unit.PhaseFailed, Err: fmt.Errorf("duplicate_registration: %w", err)}
	}

	shutdown := obslog.NewGracefulShutdown(2*time.Second, logger)
	shutdown.Register(func() error { reg.Clear(); return nil })
	defer func() { _ = shutdown.Shutdown(context.Background()) }()

	guard := health.New(ctx, host, opts.Health, logger)
	shutdown.Register(func() error { guard.Stop(); return nil })
	if opts.Metrics != nil {
		guard.OnStatusChange(func(s health.Status) { opts.Metrics.ObserveHealthTransition(s.String()) })
	}

	em := emitter.New(opts.Emitter, logger)
	wireCallbacks(em, opts.Callbacks)

	pm := progress.New(opts.Progress, bridgeProgress(em, opts.Metrics))
	for _, u := range in.Units {
		pm.RegisterUnit(u.ID(), u.RequiredForReady())
	}

	exec := executor.New(clk, guard, reg, opts.Executor, logger)
	vchecker := visual.New(clk, opts.Visual)

	stopTick := startProgressTicker(host, pm)
	shutdown.Register(func() error { stopTick(); return nil })

	start := clk.Now()
	phaseStart := start
	var timings []PhaseTiming
	var failedUnits []FailedUnit
	var warnings []string

	record := func(phase unit.Phase) {
		timings = append(timings, PhaseTiming{Phase: phase, ElapsedMS: clk.Now() - phaseStart})
		phaseStart = clk.Now()
	}

	fail := func(phase unit.Phase, err error) Result {
		logger.Error("loading protocol failed",
			obslog.String("phase", phase.String()), obslog.Err(err))
		em.Emit(emitter.Failed, err)
		return Result{
			Phase:           unit.PhaseFailed,
			ElapsedMS:       clk.Now() - start,
			PhaseTimings:    timings,
			FailedUnits:     failedUnits,
			Err:             err,
			Warnings:        warnings,
			DisplayProgress: pm.Display(),
		}
	}

	checkCancel := func() error {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("cancelled: %w", err)
		}
		return nil
	}

	for _, phase := range []unit.Phase{unit.PhaseFetching, unit.PhaseBuilding, unit.PhaseWarming} {
		if err := checkCancel(); err != nil {
			return fail(phase, err)
		}
		pm.EnterPhase(phase)
		em.Emit(emitter.PhaseChange, phase)
		failed, err := runLoadPhase(ctx, reg, exec, pm, em, opts.Metrics, phase, in.Scene)
		failedUnits = append(failedUnits, failed...)
		if err != nil {
			record(phase)
			return fail(phase, err)
		}
		record(phase)
	}

	if err := checkCancel(); err != nil {
		return fail(unit.PhaseBarrier, err)
	}
	pm.EnterPhase(unit.PhaseBarrier)
	em.Emit(emitter.PhaseChange, unit.PhaseBarrier)
	failed, err := runBarrierPhase(ctx, reg, exec, pm, em, opts.Metrics, opts, in.Renderer, in.Scene)
	failedUnits = append(failedUnits, failed...)
	if err != nil {
		record(unit.PhaseBarrier)
		return fail(unit.PhaseBarrier, err)
	}
	record(unit.PhaseBarrier)

	if err := checkCancel(); err != nil {
		return fail(unit.PhaseVisualReady, err)
	}
	pm.EnterPhase(unit.PhaseVisualReady)
	em.Emit(emitter.PhaseChange, unit.PhaseVisualReady)
	failed, vrWarnings, err := runVisualReadyPhase(ctx, clk, guard, reg, exec, pm, em, opts.Metrics, vchecker, opts, in.Renderer, in.Scene)
	warnings = append(warnings, vrWarnings...)
	failedUnits = append(failedUnits, failed...)
	if err != nil {
		record(unit.PhaseVisualReady)
		return fail(unit.PhaseVisualReady, err)
	}
	record(unit.PhaseVisualReady)

	if err := checkCancel(); err != nil {
		return fail(unit.PhaseStabilizing, err)
	}
	pm.EnterPhase(unit.PhaseStabilizing)
	em.Emit(emitter.PhaseChange, unit.PhaseStabilizing)
	stWarnings, err := runStabilizingPhase(ctx, clk, guard, pm, opts)
	warnings = append(warnings, stWarnings...)
	if err != nil {
		record(unit.PhaseStabilizing)
		return fail(unit.PhaseStabilizing, err)
	}
	record(unit.PhaseStabilizing)

	pm.Launch()
	em.Emit(emitter.Launch, nil)
	if opts.Callbacks.OnAfterReady != nil {
		cb := opts.Callbacks.OnAfterReady
		host.RequestFrame(func(time.Time) { cb() })
	}

	return Result{
		Phase:           unit.PhaseReady,
		ElapsedMS:       clk.Now() - start,
		PhaseTimings:    timings,
		FailedUnits:     failedUnits,
		Warnings:        warnings,
		DisplayProgress: pm.Display(),
	}
}

// runUnit drives one unit through the executor, threading its start/
// complete events into both the progress model and the emitter.
func runUnit(ctx context.Context, exec *executor.Executor, pm *progress.Model, em *emitter.Emitter, metricsReg *metrics.Registry, u unit.Load, scene any) executor.Result {
	id := u.ID()

	pm.UnitStarted(id)
	em.Emit(emitter.UnitStart, id)

	res := exec.Run(ctx, u, scene, nil)

	if metricsReg != nil {
		metricsReg.ObserveUnitElapsed(float64(res.ElapsedMS))
		metricsReg.ObserveForcedYields(res.Stats.ForcedYields)
	}

	if !res.Skipped {
		em.Emit(emitter.StateChange, stateChangeEvent{ID: id, Status: res.Status})
	}

	if res.Status == unit.StatusLoaded || res.Status == unit.StatusSkipped {
		pm.UnitCompleted(id)
	}
	em.Emit(emitter.UnitComplete, unitCompleteEvent{ID: id, Status: res.Status, Err: res.Err})

	return res
}

// runLoadPhase drains every unit targeting phase: required units run
// sequentially and abort the phase on the first failure; optional units
// run concurrently and a failure only demotes that unit to skipped.
func runLoadPhase(ctx context.Context, reg *registry.Registry, exec *executor.Executor, pm *progress.Model, em *emitter.Emitter, metricsReg *metrics.Registry, phase unit.Phase, scene any) ([]FailedUnit, error) {
	units := reg.ByPhase(phase)

	var required, optional []unit.Load
	for _, u := range units {
		if u.RequiredForReady() {
			required = append(required, u)
		} else {
			optional = append(optional, u)
		}
	}

	var failed []FailedUnit

	for _, u := range required {
		if err := ctx.Err(); err != nil {
			return failed, fmt.Errorf("cancelled before unit %q: %w", u.ID(), err)
		}
		res := runUnit(ctx, exec, pm, em, metricsReg, u, scene)
		if res.Err != nil {
			failed = append(failed, FailedUnit{ID: u.ID(), Err: res.Err})
			return failed, fmt.Errorf("required unit %q failed: %w", u.ID(), res.Err)
		}
	}

	if len(optional) > 0 {
		var mu sync.Mutex
		var wg sync.WaitGroup
		for _, u := range optional {
			wg.Add(1)
			go func(u unit.Load) {
				defer wg.Done()
				res := runUnit(ctx, exec, pm, em, metricsReg, u, scene)
				if res.Err != nil {
					reg.SetStatus(u.ID(), unit.StatusSkipped, res.Err)
					mu.Lock()
					failed = append(failed, FailedUnit{ID: u.ID(), Err: res.Err})
					mu.Unlock()
				}
			}(u)
		}
		wg.Wait()
	}

	return failed, nil
}

// runBarrierPhase runs the Render-Ready Barrier, then barrier-phase units,
// then offers every required unit loaded across fetching/building/warming/
// barrier to its validator (or auto-promotes it if it has none), finally
// asserting every required unit in those phases ended validated or
// skipped.
func runBarrierPhase(ctx context.Context, reg *registry.Registry, exec *executor.Executor, pm *progress.Model, em *emitter.Emitter, metricsReg *metrics.Registry, opts Options, renderer barrier.AfterRenderObservable, scene any) ([]FailedUnit, error) {
	rrScene, ok := scene.(barrier.RenderReadyScene)
	if !ok {
		return nil, fmt.Errorf("barrier: scene does not implement the render-ready scene contract")
	}

	rb := barrier.NewRenderReadyBarrier(opts.BarrierValidation.toConfig())
	if err := rb.Run(ctx, renderer, rrScene); err != nil {
		return nil, fmt.Errorf("barrier_timeout: %w", err)
	}

	failed, err := runLoadPhase(ctx, reg, exec, pm, em, metricsReg, unit.PhaseBarrier, scene)
	if err != nil {
		return failed, err
	}

	preBarrierPhases := []unit.Phase{unit.PhaseFetching, unit.PhaseBuilding, unit.PhaseWarming, unit.PhaseBarrier}

	for _, phase := range preBarrierPhases {
		for _, u := range reg.ByPhase(phase) {
			if !u.RequiredForReady() {
				continue
			}
			status, _ := reg.Status(u.ID())
			if status != unit.StatusLoaded {
				continue
			}

			if !u.HasValidator() {
				reg.SetStatus(u.ID(), unit.StatusValidated, nil)
				em.Emit(emitter.StateChange, stateChangeEvent{ID: u.ID(), Status: unit.StatusValidated})
				continue
			}

			ok, verr := u.Validate(ctx, scene)
			if verr == nil && !ok {
				verr = fmt.Errorf("validation reported unready")
			}
			if verr != nil {
				reg.SetStatus(u.ID(), unit.StatusFailed, verr)
				failed = append(failed, FailedUnit{ID: u.ID(), Err: verr})
				return failed, fmt.Errorf("unit %q failed validation: %w", u.ID(), verr)
			}
			reg.SetStatus(u.ID(), unit.StatusValidated, nil)
			em.Emit(emitter.StateChange, stateChangeEvent{ID: u.ID(), Status: unit.StatusValidated})
		}
	}

	var nonConforming []string
	for _, phase := range preBarrierPhases {
		for _, u := range reg.ByPhase(phase) {
			if !u.RequiredForReady() {
				continue
			}
			status, _ := reg.Status(u.ID())
			if status != unit.StatusValidated && status != unit.StatusSkipped {
				nonConforming = append(nonConforming, fmt.Sprintf("%s(%s)", u.ID(), status))
			}
		}
	}
	if len(nonConforming) > 0 {
		return failed, fmt.Errorf("barrier: required units not validated or skipped: %v", nonConforming)
	}

	pm.ResolveBarrier()
	return failed, nil
}

// runVisualReadyPhase runs the Engine-Awakened Barrier, then visual-ready-
// phase units, then the Visual-Ready Checker against the configured
// requirements.
func runVisualReadyPhase(ctx context.Context, clk *rgclock.FrameClock, guard *health.Guard, reg *registry.Registry, exec *executor.Executor, pm *progress.Model, em *emitter.Emitter, metricsReg *metrics.Registry, vchecker *visual.Checker, opts Options, renderer barrier.Renderer, scene any) ([]FailedUnit, []string, error) {
	var warnings []string

	eb := barrier.NewEngineAwakenedBarrier(clk, opts.EngineAwakened)
	ebRes, err := eb.Run(ctx, renderer)
	if err != nil {
		return nil, warnings, fmt.Errorf("awakened_hard_fail: %w", err)
	}
	guard.NotifyAwakened()
	if ebRes.Disposition == barrier.DispositionGraceful {
		warnings = append(warnings, "engine-awakened barrier resolved via graceful fallback, not a confirmed stable cadence")
	}

	failed, err := runLoadPhase(ctx, reg, exec, pm, em, metricsReg, unit.PhaseVisualReady, scene)
	if err != nil {
		return failed, warnings, err
	}

	if len(opts.VisualRequirements) > 0 {
		if err := vchecker.Run(ctx, scene, opts.VisualRequirements); err != nil {
			return failed, warnings, fmt.Errorf("visual_requirement_unmet: %w", err)
		}
	}

	pm.ResolveVisualReady()
	return failed, warnings, nil
}

// runStabilizingPhase holds display progress at 1.00 until the
// Frame Health Guard has reported Healthy for MinStableFrames consecutive
// frames and at least MinTimeMS has elapsed. MaxTimeMS is a fail-safe: if
// reached without sustained stability, stabilization still succeeds, but
// with a warning rather than silently pretending the run was stable.
func runStabilizingPhase(ctx context.Context, clk *rgclock.FrameClock, guard *health.Guard, pm *progress.Model, opts Options) ([]string, error) {
	var warnings []string

	start := clk.Now()
	stableFrames := 0

	for {
		if err := ctx.Err(); err != nil {
			return warnings, fmt.Errorf("cancelled during stabilization: %w", err)
		}
		if err := clk.NextFrame(ctx); err != nil {
			return warnings, fmt.Errorf("cancelled during stabilization: %w", err)
		}

		if guard.Status() == health.Healthy {
			stableFrames++
		} else {
			stableFrames = 0
		}

		elapsed := clk.Now() - start
		if elapsed >= opts.Stabilization.MinTimeMS && stableFrames >= opts.Stabilization.MinStableFrames {
			break
		}
		if elapsed >= opts.Stabilization.MaxTimeMS {
			warnings = append(warnings, "stabilization_fail_safe: max_time_ms reached without a sustained healthy window")
			break
		}
	}

	pm.ResolveStabilizing()
	return warnings, nil
}

// startProgressTicker drives pm.Tick() once per host frame via its own
// self-scheduling frame chain, the same pattern the Frame Health Guard
// uses to watch cadence independently of any renderer loop. The returned
// func stops the chain; it is safe to call exactly once.
func startProgressTicker(host rgclock.Host, pm *progress.Model) func() {
	stopped := make(chan struct{})

	var schedule func()
	schedule = func() {
		select {
		case <-stopped:
			return
		default:
		}
		host.RequestFrame(func(time.Time) {
			select {
			case <-stopped:
				return
			default:
			}
			pm.Tick()
			schedule()
		})
	}
	schedule()

	return func() { close(stopped) }
}

// progressEventName maps an Arcana Progress Model event kind onto its
// emitter name. Four kinds are deliberately excluded from bridging because
// Run already emits their emitter equivalent directly, with a richer
// payload than the model's own Event carries: unit_start and unit_complete
// (the model's version carries no unit id), and phase_change and launch
// (Run fires these the instant it transitions, rather than waiting for the
// model to notice).
func progressEventName(k progress.EventKind) (emitter.Name, bool) {
	switch k {
	case progress.EventBarrierEnter:
		return emitter.BarrierEnter, true
	case progress.EventBarrierResolve:
		return emitter.BarrierResolve, true
	case progress.EventVisualReadyEnter:
		return emitter.VisualReadyEnter, true
	case progress.EventVisualReadyComplete:
		return emitter.VisualReadyComplete, true
	case progress.EventStabilizingEnter:
		return emitter.StabilizingEnter, true
	case progress.EventStabilizingComplete:
		return emitter.StabilizingComplete, true
	case progress.EventProgressUpdate:
		return emitter.ProgressUpdate, true
	default:
		return "", false
	}
}

func bridgeProgress(em *emitter.Emitter, metricsReg *metrics.Registry) func(progress.Event) {
	return func(ev progress.Event) {
		if metricsReg != nil {
			metricsReg.SetDisplayProgress(ev.Display)
		}
		name, ok := progressEventName(ev.Kind)
		if !ok {
			return
		}
		em.Emit(name, ev)
	}
}

// wireCallbacks subscribes opts.Callbacks to the emitter, one subscription
// per non-nil hook. A nil hook is simply never subscribed.
func wireCallbacks(em *emitter.Emitter, cb Callbacks) {
	if cb.OnPhaseChange != nil {
		em.On(emitter.PhaseChange, func(payload any) {
			if phase, ok := payload.(unit.Phase); ok {
				cb.OnPhaseChange(phase)
			}
		})
	}
	if cb.OnProgress != nil {
		em.On(emitter.ProgressUpdate, func(payload any) {
			if ev, ok := payload.(progress.Event); ok {
				cb.OnProgress(ev.Display)
			}
		})
	}
	if cb.OnUnitStatusChange != nil {
		em.On(emitter.StateChange, func(payload any) {
			if ev, ok := payload.(stateChangeEvent); ok {
				cb.OnUnitStatusChange(ev.ID, ev.Status)
			}
		})
	}
	if cb.OnUnitStart != nil {
		em.On(emitter.UnitStart, func(payload any) {
			if id, ok := payload.(string); ok {
				cb.OnUnitStart(id)
			}
		})
	}
	if cb.OnUnitEnd != nil {
		em.On(emitter.UnitComplete, func(payload any) {
			if ev, ok := payload.(unitCompleteEvent); ok {
				cb.OnUnitEnd(ev.ID, ev.Status, ev.Err)
			}
		})
	}
	if cb.OnLog != nil {
		em.OnAny(func(name emitter.Name, payload any) {
			cb.OnLog(fmt.Sprintf("%s: %v", name, payload))
		})
	}
}
