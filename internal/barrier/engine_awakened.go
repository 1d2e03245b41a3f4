package barrier

import (
	"context"
	"fmt"

	rgclock "github.com/dnrjke/readygate/internal/clock"
	"github.com/dnrjke/readygate/internal/throttle"
)

// FrameCycle is the renderer's synchronous per-frame primitive triplet,
// invoked once per forced burst frame.
type FrameCycle interface {
	BeginFrame()
	Render()
	EndFrame()
}

// BeforeRenderObservable fires once per frame, before render, every frame,
// stable or not.
type BeforeRenderObservable interface {
	OnBeforeRender(cb func()) (unsubscribe func())
}

// Renderer is the combined surface the Engine-Awakened Barrier needs.
type Renderer interface {
	FrameCycle
	BeforeRenderObservable
}

// Disposition is the Engine-Awakened Barrier's outcome classification.
type Disposition int

const (
	DispositionNormal Disposition = iota
	DispositionThrottleStable
	DispositionGraceful
	DispositionHardFail
)

func (d Disposition) String() string {
	switch d {
	case DispositionNormal:
		return "normal"
	case DispositionThrottleStable:
		return "throttle-stable"
	case DispositionGraceful:
		return "graceful"
	case DispositionHardFail:
		return "hard-fail"
	default:
		return "unknown"
	}
}

// EngineAwakenedConfig is the engine_awakened option struct.
type EngineAwakenedConfig struct {
	MinConsecutiveFrames        int
	MaxAllowedFrameGapMS        float64
	MaxWaitMS                   int64
	BurstFrameCount             int
	MaxBurstRetries             int
	GracefulFallbackMS          int64
	MinNaturalFramesForGraceful int
	EnableThrottleDetection     bool
	Throttle                    throttle.Config
}

// DefaultEngineAwakenedConfig matches the documented defaults.
func DefaultEngineAwakenedConfig() EngineAwakenedConfig {
	return EngineAwakenedConfig{
		MinConsecutiveFrames:        3,
		MaxAllowedFrameGapMS:        100,
		MaxWaitMS:                   3000,
		BurstFrameCount:             5,
		MaxBurstRetries:             1,
		GracefulFallbackMS:          200,
		MinNaturalFramesForGraceful: 10,
		EnableThrottleDetection:     true,
		Throttle:                    throttle.DefaultConfig(),
	}
}

// Result is the Engine-Awakened Barrier's reported disposition evidence.
type Result struct {
	Disposition         Disposition
	FirstFrameDelayMS   int64
	AvgStableIntervalMS float64
	MaxIntervalMS       float64
	BurstCount          int
}

// EngineAwakenedBarrier is the two-phase hard gate.
type EngineAwakenedBarrier struct {
	cfg EngineAwakenedConfig
	clk *rgclock.FrameClock
}

// NewEngineAwakenedBarrier builds a barrier bound to clk.
func NewEngineAwakenedBarrier(clk *rgclock.FrameClock, cfg EngineAwakenedConfig) *EngineAwakenedBarrier {
	if cfg.BurstFrameCount <= 0 {
		cfg = DefaultEngineAwakenedConfig()
	}
	return &EngineAwakenedBarrier{cfg: cfg, clk: clk}
}

// Run executes the wake-up burst, then waits for natural stable frames (or
// a throttle-stable/graceful/hard-fail outcome).
func (b *EngineAwakenedBarrier) Run(ctx context.Context, renderer Renderer) (Result, error) {
	burst, err := b.burst(ctx, renderer)
	if err != nil {
		return Result{Disposition: DispositionHardFail, BurstCount: burst}, err
	}

	res, err := b.watchNatural(ctx, renderer)
	res.BurstCount = burst
	return res, err
}

// burst runs Phase 1: K forced frames with no observer registered. Each
// forced frame issues the renderer's full synchronous frame cycle.
// MaxBurstRetries is reserved for hosts whose frame cycle can itself fail
// transiently; FrameCycle as defined here is synchronous and error-free, so
// the current implementation never needs it.
func (b *EngineAwakenedBarrier) burst(ctx context.Context, renderer FrameCycle) (int, error) {
	count := 0
	for i := 0; i < b.cfg.BurstFrameCount; i++ {
		if err := b.clk.NextFrame(ctx); err != nil {
			return count, fmt.Errorf("engine-awakened barrier: burst: %w", err)
		}
		renderer.BeginFrame()
		renderer.Render()
		renderer.EndFrame()
		count++
	}
	return count, nil
}

// watchNatural runs Phase 2: subscribes to before-render and classifies the
// resulting cadence.
func (b *EngineAwakenedBarrier) watchNatural(ctx context.Context, renderer BeforeRenderObservable) (Result, error) {
	events := make(chan struct{}, 1)
	unsubscribe := renderer.OnBeforeRender(func() {
		select {
		case events <- struct{}{}:
		default:
		}
	})
	defer unsubscribe()

	detector := throttle.New(b.cfg.Throttle)
	throttleWindow := b.cfg.Throttle.Window
	if throttleWindow <= 0 {
		throttleWindow = throttle.DefaultConfig().Window
	}

	startWait := b.clk.Now()
	var lastFrame int64
	haveLast := false
	consecutive := 0
	naturalCount := 0
	var sumStable, maxInterval float64
	firstFrameDelayMS := int64(-1)

	evaluateTimeout := func() (Result, bool, error) {
		elapsed := b.clk.Now() - startWait
		// The in-window graceful fallback waits until the throttle detector
		// (when enabled) holds a full window, so a throttle-stable cadence
		// is classified as such rather than as graceful.
		throttlePending := b.cfg.EnableThrottleDetection && detector.Len() < throttleWindow
		if b.cfg.GracefulFallbackMS > 0 && elapsed >= b.cfg.GracefulFallbackMS && naturalCount >= b.cfg.MinNaturalFramesForGraceful && !throttlePending {
			return Result{
				Disposition:          DispositionGraceful,
				FirstFrameDelayMS:    firstFrameDelayMS,
				AvgStableIntervalMS: avg(sumStable, consecutive),
				MaxIntervalMS:        maxInterval,
			}, true, nil
		}
		if elapsed >= b.cfg.MaxWaitMS {
			if consecutive >= b.cfg.MinConsecutiveFrames {
				return Result{
					Disposition:          DispositionNormal,
					FirstFrameDelayMS:    firstFrameDelayMS,
					AvgStableIntervalMS: avg(sumStable, consecutive),
					MaxIntervalMS:        maxInterval,
				}, true, nil
			}
			if naturalCount >= b.cfg.MinNaturalFramesForGraceful {
				return Result{
					Disposition:          DispositionGraceful,
					FirstFrameDelayMS:    firstFrameDelayMS,
					AvgStableIntervalMS: avg(sumStable, consecutive),
					MaxIntervalMS:        maxInterval,
				}, true, nil
			}
			return Result{
				Disposition:          DispositionHardFail,
				FirstFrameDelayMS:    firstFrameDelayMS,
				AvgStableIntervalMS: avg(sumStable, consecutive),
				MaxIntervalMS:        maxInterval,
			}, true, fmt.Errorf("engine-awakened barrier: hard timeout with no stable cadence")
		}
		return Result{}, false, nil
	}

	if res, done, err := evaluateTimeout(); done {
		return res, err
	}

	for {
		select {
		case <-ctx.Done():
			return Result{Disposition: DispositionHardFail}, fmt.Errorf("engine-awakened barrier: %w", ctx.Err())
		case <-events:
		}

		now := b.clk.Now()
		naturalCount++

		if !haveLast {
			haveLast = true
			lastFrame = now
			firstFrameDelayMS = now - startWait
		} else {
			dt := float64(now - lastFrame)
			lastFrame = now
			if dt > maxInterval {
				maxInterval = dt
			}

			if b.cfg.EnableThrottleDetection {
				detector.Push(dt)
				if detector.IsLocked() {
					return Result{
						Disposition:          DispositionThrottleStable,
						FirstFrameDelayMS:    firstFrameDelayMS,
						AvgStableIntervalMS: detector.Mean(),
						MaxIntervalMS:        maxInterval,
					}, nil
				}
			}

			if dt < b.cfg.MaxAllowedFrameGapMS {
				consecutive++
				sumStable += dt
				if consecutive >= b.cfg.MinConsecutiveFrames {
					return Result{
						Disposition:          DispositionNormal,
						FirstFrameDelayMS:    firstFrameDelayMS,
						AvgStableIntervalMS: avg(sumStable, consecutive),
						MaxIntervalMS:        maxInterval,
					}, nil
				}
			} else {
				consecutive = 0
				sumStable = 0
			}
		}

		if res, done, err := evaluateTimeout(); done {
			return res, err
		}
	}
}

func avg(sum float64, n int) float64 {
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}
