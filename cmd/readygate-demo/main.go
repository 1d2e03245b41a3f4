// Command readygate-demo drives one complete pass of the Loading Protocol
// against a mock renderer and a mock host frame clock, standing in for the
// 3D engine and browser/game-loop callback a real embedder would supply.
// It exists to exercise protocol.Run end to end outside a test binary and
// to show the shape of a minimal integration.
package main

import (
	"context"
	"fmt"
	"math/rand"
	"os"
	"os/signal"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/dnrjke/readygate/internal/barrier"
	rgclock "github.com/dnrjke/readygate/internal/clock"
	"github.com/dnrjke/readygate/internal/metrics"
	"github.com/dnrjke/readygate/internal/obslog"
	"github.com/dnrjke/readygate/internal/unit"
	"github.com/dnrjke/readygate/internal/visual"
	"github.com/dnrjke/readygate/protocol"
)

func main() {
	logger := obslog.DefaultLogger("readygate-demo")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	host := rgclock.NewRealHost(16 * time.Millisecond)
	renderer := newLoopRenderer(host)
	defer renderer.stop()
	scene := newDemoScene()

	reg := prometheus.NewRegistry()
	metricsReg := metrics.New(reg)

	opts := protocol.DefaultOptions()
	opts.Metrics = metricsReg
	opts.Logger = logger
	opts.Callbacks = protocol.Callbacks{
		OnPhaseChange: func(phase unit.Phase) {
			logger.Info("entered phase", obslog.String("phase", phase.String()))
		},
		OnProgress: func(display float64) {
			logger.Debug("progress", obslog.Float64("display", display))
		},
		OnUnitStart: func(id string) {
			logger.Info("unit started", obslog.String("unit", id))
		},
		OnUnitEnd: func(id string, status unit.Status, err error) {
			if err != nil {
				logger.Warn("unit ended", obslog.String("unit", id), obslog.String("status", status.String()), obslog.Err(err))
				return
			}
			logger.Info("unit ended", obslog.String("unit", id), obslog.String("status", status.String()))
		},
		OnAfterReady: func() {
			logger.Info("control handed to player: this callback ran on the frame after readiness")
		},
	}
	opts.VisualRequirements = []visual.Requirement{
		{
			ID:   "terrain-streamed",
			Name: "terrain mesh streamed in",
			Check: func(ctx context.Context, scene any) (bool, string, error) {
				ds, ok := scene.(*demoScene)
				if !ok {
					return false, "scene has no terrain flag", nil
				}
				return ds.terrainStreamed(), "terrain still streaming", nil
			},
		},
	}

	units := []unit.Load{
		newAssetUnit("manifest-fetch", unit.PhaseFetching, true, unit.CostLight, 3, nil),
		newAssetUnit("texture-prefetch", unit.PhaseFetching, false, unit.CostMedium, 6, nil),
		newAssetUnit("shader-compile", unit.PhaseBuilding, true, unit.CostHeavy, 8, nil),
		newAssetUnit("scene-graph-build", unit.PhaseBuilding, true, unit.CostMedium, 4, nil),
		newAssetUnit("gpu-upload", unit.PhaseWarming, true, unit.CostMedium, 5, nil),
		newAssetUnit("audio-warm", unit.PhaseWarming, false, unit.CostLight, 2, nil),
		newAssetUnit("camera-rig", unit.PhaseBarrier, true, unit.CostLight, 1, nil),
		newAssetUnit("terrain-stream", unit.PhaseVisualReady, true, unit.CostMedium, 6, func() { scene.markTerrainStreamed() }),
	}

	in := protocol.Input{Renderer: renderer, Scene: scene, Units: units}

	start := time.Now()
	result := protocol.Run(ctx, host, in, opts)
	elapsedWall := time.Since(start)

	fmt.Printf("\n--- readygate-demo result ---\n")
	fmt.Printf("phase:            %s\n", result.Phase)
	fmt.Printf("succeeded:        %v\n", result.Succeeded())
	fmt.Printf("elapsed_ms:       %d (wall: %s)\n", result.ElapsedMS, elapsedWall)
	fmt.Printf("display_progress: %.3f\n", result.DisplayProgress)
	for _, t := range result.PhaseTimings {
		fmt.Printf("  phase %-13s %6d ms\n", t.Phase, t.ElapsedMS)
	}
	for _, w := range result.Warnings {
		fmt.Printf("  warning: %s\n", w)
	}
	for _, f := range result.FailedUnits {
		fmt.Printf("  failed unit %s: %v\n", f.ID, f.Err)
	}
	if result.Err != nil {
		fmt.Printf("error: %v\n", result.Err)
		os.Exit(1)
	}
}

// demoCamera is a minimal, always-finite barrier.Camera.
type demoCamera struct{}

func (demoCamera) Position() [3]float64 { return [3]float64{0, 1.8, -4} }
func (demoCamera) ViewMatrix() [16]float64 {
	var m [16]float64
	m[0], m[5], m[10], m[15] = 1, 1, 1, 1
	return m
}

// demoScene stands in for the host application's scene graph: just enough
// state for the barrier and visual-requirement checks to have something to
// inspect.
type demoScene struct {
	mu       sync.Mutex
	cam      *demoCamera
	streamed bool
}

func newDemoScene() *demoScene {
	return &demoScene{cam: &demoCamera{}}
}

func (s *demoScene) ActiveCamera() (barrier.Camera, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cam, s.cam != nil
}

func (s *demoScene) markTerrainStreamed() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.streamed = true
}

func (s *demoScene) terrainStreamed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.streamed
}

// loopRenderer simulates a renderer whose render loop is driven by the same
// host the protocol's clock is built on: it requests a frame, fires its
// before- and after-render subscribers, then requests the next one, for as
// long as stop has not been called.
type loopRenderer struct {
	host rgclock.Host

	mu         sync.Mutex
	beforeSubs []func()
	afterSubs  []func()
	stopped    bool
}

func newLoopRenderer(host rgclock.Host) *loopRenderer {
	r := &loopRenderer{host: host}
	r.scheduleNext()
	return r
}

func (r *loopRenderer) scheduleNext() {
	r.mu.Lock()
	if r.stopped {
		r.mu.Unlock()
		return
	}
	r.mu.Unlock()

	r.host.RequestFrame(func(time.Time) {
		r.mu.Lock()
		before := append([]func(){}, r.beforeSubs...)
		r.mu.Unlock()
		for _, cb := range before {
			cb()
		}

		r.mu.Lock()
		after := append([]func(){}, r.afterSubs...)
		stopped := r.stopped
		r.mu.Unlock()
		for _, cb := range after {
			cb()
		}

		if !stopped {
			r.scheduleNext()
		}
	})
}

func (r *loopRenderer) BeginFrame() {}
func (r *loopRenderer) Render()     {}
func (r *loopRenderer) EndFrame()   {}

func (r *loopRenderer) OnBeforeRender(cb func()) func() {
	r.mu.Lock()
	r.beforeSubs = append(r.beforeSubs, cb)
	idx := len(r.beforeSubs) - 1
	r.mu.Unlock()
	return func() {
		r.mu.Lock()
		r.beforeSubs[idx] = func() {}
		r.mu.Unlock()
	}
}

func (r *loopRenderer) OnAfterRender(cb func()) func() {
	r.mu.Lock()
	r.afterSubs = append(r.afterSubs, cb)
	idx := len(r.afterSubs) - 1
	r.mu.Unlock()
	return func() {
		r.mu.Lock()
		r.afterSubs[idx] = func() {}
		r.mu.Unlock()
	}
}

func (r *loopRenderer) stop() {
	r.mu.Lock()
	r.stopped = true
	r.mu.Unlock()
}

// assetUnit is a unit.Load that simulates steps worth of work with a small
// random jitter, optionally calling onDone when its work completes.
type assetUnit struct {
	id       string
	phase    unit.Phase
	required bool
	cost     unit.Cost
	steps    int
	onDone   func()
}

func newAssetUnit(id string, phase unit.Phase, required bool, cost unit.Cost, steps int, onDone func()) *assetUnit {
	return &assetUnit{id: id, phase: phase, required: required, cost: cost, steps: steps, onDone: onDone}
}

func (u *assetUnit) ID() string             { return u.id }
func (u *assetUnit) TargetPhase() unit.Phase { return u.phase }
func (u *assetUnit) RequiredForReady() bool  { return u.required }
func (u *assetUnit) CostHint() unit.Cost     { return u.cost }
func (u *assetUnit) HasValidator() bool      { return false }
func (u *assetUnit) Validate(ctx context.Context, scene any) (bool, error) {
	return true, nil
}
func (u *assetUnit) Dispose() {}

func (u *assetUnit) ExecuteSteps(ectx unit.ExecutionContext, scene any, onProgress unit.ProgressFunc) (unit.Steps, error) {
	return &assetSteps{owner: u, ectx: ectx, remaining: u.steps}, nil
}

type assetSteps struct {
	owner     *assetUnit
	ectx      unit.ExecutionContext
	remaining int
	done      int
}

func (s *assetSteps) Step(ctx context.Context) (unit.StepResult, error) {
	// Up to half a millisecond of simulated work per step, jittered so units
	// racing in the same phase don't lock-step.
	time.Sleep(time.Duration(rand.Intn(500)) * time.Microsecond)

	s.done++
	s.remaining--

	// shader-compile stands in for a synchronous, uncooperative call (a
	// real shader compiler blocks the calling thread); once it has done
	// its heaviest chunk of work it asks for a couple of recovery frames
	// before resuming, rather than contending for budget immediately.
	if s.owner.id == "shader-compile" && s.done == 1 {
		if err := s.ectx.RequestRecoveryFrames(ctx, 2); err != nil {
			return unit.StepYield, err
		}
	}

	if s.remaining <= 0 {
		if s.owner.onDone != nil {
			s.owner.onDone()
		}
		return unit.StepDone, nil
	}
	return unit.StepYield, nil
}
