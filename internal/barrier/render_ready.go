// Package barrier implements the Render-Ready Barrier and Engine-Awakened
// Barrier: hard gates confirming the host renderer has
// actually started producing frames, as opposed to merely being
// constructed.
package barrier

import (
	"context"
	"fmt"
	"math"

	"go.uber.org/multierr"
)

// Camera is the narrow slice of the renderer contract the
// Render-Ready Barrier needs.
type Camera interface {
	Position() [3]float64
	ViewMatrix() [16]float64
}

// RenderReadyScene exposes the active camera, if any.
type RenderReadyScene interface {
	ActiveCamera() (Camera, bool)
}

// AfterRenderObservable fires once per completed frame, after render.
type AfterRenderObservable interface {
	OnAfterRender(cb func()) (unsubscribe func())
}

// RenderReadyConfig is the barrier_validation option struct.
type RenderReadyConfig struct {
	MaxRetryFrames int
	// RequireCameraRender, when false, validates immediately without
	// waiting for an after-render event. Useful for host applications that
	// have no renderer loop at all (e.g. headless scene construction).
	RequireCameraRender bool
}

// DefaultRenderReadyConfig matches the documented defaults.
func DefaultRenderReadyConfig() RenderReadyConfig {
	return RenderReadyConfig{MaxRetryFrames: 12, RequireCameraRender: true}
}

// RenderReadyBarrier is the Render-Ready Barrier. It never
// inspects meshes, mesh counts, visibility or elapsed time, only the
// active camera's position and view matrix.
type RenderReadyBarrier struct {
	cfg RenderReadyConfig
}

// NewRenderReadyBarrier builds a barrier with the given config.
func NewRenderReadyBarrier(cfg RenderReadyConfig) *RenderReadyBarrier {
	if cfg.MaxRetryFrames <= 0 {
		cfg = DefaultRenderReadyConfig()
	}
	return &RenderReadyBarrier{cfg: cfg}
}

// Run subscribes to renderer's after-render observable once, then validates
// the active camera on each subsequent frame, retrying up to
// MaxRetryFrames before failing with the last reason.
func (b *RenderReadyBarrier) Run(ctx context.Context, renderer AfterRenderObservable, scene RenderReadyScene) error {
	if !b.cfg.RequireCameraRender {
		return b.validate(scene)
	}

	frames := make(chan struct{}, 1)
	unsubscribe := renderer.OnAfterRender(func() {
		select {
		case frames <- struct{}{}:
		default:
		}
	})
	defer unsubscribe()

	var lastErr error
	for attempt := 0; attempt < b.cfg.MaxRetryFrames; attempt++ {
		select {
		case <-ctx.Done():
			return fmt.Errorf("render-ready barrier: %w", ctx.Err())
		case <-frames:
		}

		if err := b.validate(scene); err != nil {
			lastErr = err
			continue
		}
		return nil
	}
	return fmt.Errorf("render-ready barrier: exceeded %d retries: %w", b.cfg.MaxRetryFrames, lastErr)
}

func (b *RenderReadyBarrier) validate(scene RenderReadyScene) error {
	cam, ok := scene.ActiveCamera()
	if !ok {
		return fmt.Errorf("render-ready barrier: no active camera")
	}

	var errs error
	pos := cam.Position()
	for i, v := range pos {
		if !finite(v) {
			errs = multierr.Append(errs, fmt.Errorf("camera position component %d is not finite: %v", i, v))
		}
	}
	mat := cam.ViewMatrix()
	for i, v := range mat {
		if !finite(v) {
			errs = multierr.Append(errs, fmt.Errorf("view matrix component %d is not finite: %v", i, v))
		}
	}
	return errs
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
