package protocol

import (
	"github.com/dnrjke/readygate/internal/barrier"
	"github.com/dnrjke/readygate/internal/emitter"
	"github.com/dnrjke/readygate/internal/executor"
	"github.com/dnrjke/readygate/internal/health"
	"github.com/dnrjke/readygate/internal/metrics"
	"github.com/dnrjke/readygate/internal/obslog"
	"github.com/dnrjke/readygate/internal/progress"
	"github.com/dnrjke/readygate/internal/unit"
	"github.com/dnrjke/readygate/internal/visual"
)

// BarrierValidationOptions is the barrier_validation option set.
type BarrierValidationOptions struct {
	MaxRetryFrames      int
	RequireCameraRender bool
	// RetryFrameIntervalMS is reserved: retries are paced by the renderer's
	// own after-render events, not a fixed wall-clock interval, so this
	// field has no effect on the current barrier implementation.
	RetryFrameIntervalMS int64
}

// DefaultBarrierValidationOptions matches the documented defaults.
func DefaultBarrierValidationOptions() BarrierValidationOptions {
	d := barrier.DefaultRenderReadyConfig()
	return BarrierValidationOptions{
		MaxRetryFrames:      d.MaxRetryFrames,
		RequireCameraRender: d.RequireCameraRender,
	}
}

func (o BarrierValidationOptions) toConfig() barrier.RenderReadyConfig {
	return barrier.RenderReadyConfig{
		MaxRetryFrames:      o.MaxRetryFrames,
		RequireCameraRender: o.RequireCameraRender,
	}
}

// EngineAwakenedOptions is the engine_awakened option set, identical in
// shape to the barrier package's own config.
type EngineAwakenedOptions = barrier.EngineAwakenedConfig

// DefaultEngineAwakenedOptions matches the documented defaults.
func DefaultEngineAwakenedOptions() EngineAwakenedOptions {
	return barrier.DefaultEngineAwakenedConfig()
}

// StabilizationOptions is the stabilization option set.
type StabilizationOptions struct {
	MinTimeMS       int64
	MinStableFrames int
	// MaxTimeMS is the fail-safe cap: stabilization always succeeds by this
	// deadline, emitting a warning rather than failing the run.
	MaxTimeMS int64
}

// DefaultStabilizationOptions matches the documented defaults.
func DefaultStabilizationOptions() StabilizationOptions {
	return StabilizationOptions{MinTimeMS: 400, MinStableFrames: 8, MaxTimeMS: 1500}
}

// Callbacks is the closed set of host-supplied hooks. Every field is
// optional; a nil callback is simply never invoked.
type Callbacks struct {
	OnPhaseChange      func(phase unit.Phase)
	OnProgress         func(display float64)
	OnLog              func(msg string)
	OnUnitStatusChange func(id string, status unit.Status)
	OnUnitStart        func(id string)
	OnUnitEnd          func(id string, status unit.Status, err error)
	// OnAfterReady fires exactly once, on the host frame callback
	// immediately following the one that declared the run ready, so
	// callers never run game logic inside the frame that declared it.
	OnAfterReady func()
}

// Options is the Loading Protocol's full, closed configuration surface.
type Options struct {
	BarrierValidation  BarrierValidationOptions
	EngineAwakened     EngineAwakenedOptions
	Stabilization      StabilizationOptions
	Callbacks          Callbacks
	VisualRequirements []visual.Requirement

	Executor executor.Config
	Health   health.Config
	Visual   visual.Config
	Progress progress.Config
	Emitter  emitter.Config

	// Metrics is optional; a nil Registry disables metrics entirely.
	Metrics *metrics.Registry
	// Logger is optional; a nil Logger falls back to obslog.DefaultLogger.
	Logger *obslog.Logger
}

// DefaultOptions returns every sub-option at its documented default.
func DefaultOptions() Options {
	return Options{
		BarrierValidation: DefaultBarrierValidationOptions(),
		EngineAwakened:    DefaultEngineAwakenedOptions(),
		Stabilization:     DefaultStabilizationOptions(),
		Executor:          executor.DefaultConfig(),
		Health:            health.DefaultConfig(),
		Visual:            visual.DefaultConfig(),
		Progress:          progress.DefaultConfig(),
		Emitter:           emitter.DefaultConfig(),
	}
}

func (o Options) logger() *obslog.Logger {
	if o.Logger != nil {
		return o.Logger
	}
	return obslog.DefaultLogger("readygate")
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.BarrierValidation.MaxRetryFrames <= 0 {
		o.BarrierValidation = d.BarrierValidation
	}
	if o.EngineAwakened.BurstFrameCount <= 0 {
		o.EngineAwakened = d.EngineAwakened
	}
	if o.Stabilization.MinTimeMS <= 0 {
		o.Stabilization = d.Stabilization
	}
	if o.Executor.DefaultBudgetMS <= 0 {
		o.Executor = d.Executor
	}
	if o.Health.WindowSize <= 0 {
		o.Health = d.Health
	}
	if o.Visual.MaxAttempts <= 0 {
		o.Visual = d.Visual
	}
	if o.Progress.BarrierRate <= 0 {
		o.Progress = d.Progress
	}
	if o.Emitter.StateChangeThrottle <= 0 {
		o.Emitter = d.Emitter
	}
	return o
}
