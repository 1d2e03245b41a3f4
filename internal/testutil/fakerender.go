package testutil

import (
	"sync"
	"time"

	"github.com/dnrjke/readygate/internal/barrier"
	rgclock "github.com/dnrjke/readygate/internal/clock"
)

// FakeCamera is a minimal barrier.Camera implementation for tests.
type FakeCamera struct {
	Pos [3]float64
	Mat [16]float64
}

func (c FakeCamera) Position() [3]float64    { return c.Pos }
func (c FakeCamera) ViewMatrix() [16]float64 { return c.Mat }

// IdentityViewMatrix returns a finite row-major 4x4 identity matrix,
// suitable for FakeCamera.Mat.
func IdentityViewMatrix() [16]float64 {
	var m [16]float64
	m[0], m[5], m[10], m[15] = 1, 1, 1, 1
	return m
}

// FakeScene is a minimal barrier.RenderReadyScene implementation for tests.
type FakeScene struct {
	mu      sync.Mutex
	cam     barrier.Camera
	haveCam bool
}

// NewFakeScene builds a scene with an always-present, always-finite camera.
func NewFakeScene() *FakeScene {
	return &FakeScene{cam: FakeCamera{Mat: IdentityViewMatrix()}, haveCam: true}
}

// ActiveCamera implements barrier.RenderReadyScene.
func (s *FakeScene) ActiveCamera() (barrier.Camera, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cam, s.haveCam
}

// SetCamera replaces the active camera, or clears it if haveCam is false.
func (s *FakeScene) SetCamera(cam barrier.Camera, haveCam bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cam, s.haveCam = cam, haveCam
}

// FakeRenderer is a self-driving renderer stand-in: construction schedules
// its first host frame, and on every host frame it fires its before-render then
// after-render subscribers in turn, the way an application whose render
// loop is tied to the same host would.
type FakeRenderer struct {
	host rgclock.Host

	mu         sync.Mutex
	beforeSubs []func()
	afterSubs  []func()
	stopped    bool
	beginCount int
}

// NewFakeRenderer builds a FakeRenderer driven by host.
func NewFakeRenderer(host rgclock.Host) *FakeRenderer {
	r := &FakeRenderer{host: host}
	r.scheduleNext()
	return r
}

func (r *FakeRenderer) scheduleNext() {
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
			if cb != nil {
				cb()
			}
		}

		r.mu.Lock()
		after := append([]func(){}, r.afterSubs...)
		stopped := r.stopped
		r.mu.Unlock()
		for _, cb := range after {
			if cb != nil {
				cb()
			}
		}

		if !stopped {
			r.scheduleNext()
		}
	})
}

func (r *FakeRenderer) BeginFrame() {
	r.mu.Lock()
	r.beginCount++
	r.mu.Unlock()
}
func (r *FakeRenderer) Render()   {}
func (r *FakeRenderer) EndFrame() {}

// OnBeforeRender implements barrier.BeforeRenderObservable.
func (r *FakeRenderer) OnBeforeRender(cb func()) func() {
	r.mu.Lock()
	r.beforeSubs = append(r.beforeSubs, cb)
	idx := len(r.beforeSubs) - 1
	r.mu.Unlock()
	return func() {
		r.mu.Lock()
		r.beforeSubs[idx] = nil
		r.mu.Unlock()
	}
}

// OnAfterRender implements barrier.AfterRenderObservable.
func (r *FakeRenderer) OnAfterRender(cb func()) func() {
	r.mu.Lock()
	r.afterSubs = append(r.afterSubs, cb)
	idx := len(r.afterSubs) - 1
	r.mu.Unlock()
	return func() {
		r.mu.Lock()
		r.afterSubs[idx] = nil
		r.mu.Unlock()
	}
}

// BeginCount reports how many times BeginFrame has been called.
func (r *FakeRenderer) BeginCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.beginCount
}

// Stop halts the renderer's self-driving frame chain. Safe to call once;
// an in-flight frame callback still completes.
func (r *FakeRenderer) Stop() {
	r.mu.Lock()
	r.stopped = true
	r.mu.Unlock()
}
