package barrier_test

import (
	"context"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dnrjke/readygate/internal/barrier"
)

type fakeCamera struct {
	pos [3]float64
	mat [16]float64
}

func (c fakeCamera) Position() [3]float64   { return c.pos }
func (c fakeCamera) ViewMatrix() [16]float64 { return c.mat }

func identityMatrix() [16]float64 {
	var m [16]float64
	m[0], m[5], m[10], m[15] = 1, 1, 1, 1
	return m
}

type fakeScene struct {
	cam   barrier.Camera
	haveCam bool
}

func (s *fakeScene) ActiveCamera() (barrier.Camera, bool) { return s.cam, s.haveCam }

type fakeAfterRender struct {
	mu        sync.Mutex
	subs      []func()
	subscribed chan struct{}
}

func newFakeAfterRender() *fakeAfterRender {
	return &fakeAfterRender{subscribed: make(chan struct{}, 1)}
}

func (f *fakeAfterRender) OnAfterRender(cb func()) func() {
	f.mu.Lock()
	f.subs = append(f.subs, cb)
	idx := len(f.subs) - 1
	f.mu.Unlock()
	select {
	case f.subscribed <- struct{}{}:
	default:
	}
	return func() {
		f.mu.Lock()
		f.subs[idx] = nil
		f.mu.Unlock()
	}
}

func (f *fakeAfterRender) fire() {
	f.mu.Lock()
	cbs := make([]func(), len(f.subs))
	copy(cbs, f.subs)
	f.mu.Unlock()
	for _, cb := range cbs {
		if cb != nil {
			cb()
		}
	}
}

func TestRenderReadyBarrier_PassesOnFirstValidFrame(t *testing.T) {
	scene := &fakeScene{cam: fakeCamera{pos: [3]float64{1, 2, 3}, mat: identityMatrix()}, haveCam: true}
	renderer := newFakeAfterRender()
	b := barrier.NewRenderReadyBarrier(barrier.DefaultRenderReadyConfig())

	errCh := make(chan error, 1)
	go func() { errCh <- b.Run(context.Background(), renderer, scene) }()

	waitForSubscriber(t, renderer)
	renderer.fire()

	require.NoError(t, <-errCh)
}

func TestRenderReadyBarrier_RetriesUntilCameraBecomesValid(t *testing.T) {
	scene := &fakeScene{haveCam: false}
	renderer := newFakeAfterRender()
	cfg := barrier.DefaultRenderReadyConfig()
	cfg.MaxRetryFrames = 5
	b := barrier.NewRenderReadyBarrier(cfg)

	errCh := make(chan error, 1)
	go func() { errCh <- b.Run(context.Background(), renderer, scene) }()

	waitForSubscriber(t, renderer)
	renderer.fire()
	renderer.fire()

	scene.cam = fakeCamera{pos: [3]float64{0, 0, 0}, mat: identityMatrix()}
	scene.haveCam = true
	renderer.fire()

	require.NoError(t, <-errCh)
}

func TestRenderReadyBarrier_FailsAfterMaxRetries(t *testing.T) {
	scene := &fakeScene{haveCam: false}
	renderer := newFakeAfterRender()
	cfg := barrier.DefaultRenderReadyConfig()
	cfg.MaxRetryFrames = 2
	b := barrier.NewRenderReadyBarrier(cfg)

	errCh := make(chan error, 1)
	go func() { errCh <- b.Run(context.Background(), renderer, scene) }()

	waitForSubscriber(t, renderer)
	renderer.fire()
	renderer.fire()

	err := <-errCh
	assert.Error(t, err)
	assert.ErrorContains(t, err, "no active camera")
}

func TestRenderReadyBarrier_NonFiniteCameraFailsValidation(t *testing.T) {
	scene := &fakeScene{cam: fakeCamera{pos: [3]float64{0, math.Inf(1), 0}, mat: identityMatrix()}, haveCam: true}
	renderer := newFakeAfterRender()
	cfg := barrier.DefaultRenderReadyConfig()
	cfg.MaxRetryFrames = 1
	b := barrier.NewRenderReadyBarrier(cfg)

	errCh := make(chan error, 1)
	go func() { errCh <- b.Run(context.Background(), renderer, scene) }()

	waitForSubscriber(t, renderer)
	renderer.fire()

	err := <-errCh
	assert.Error(t, err)
	assert.ErrorContains(t, err, "not finite")
}

func TestRenderReadyBarrier_SkipsWaitWhenCameraRenderNotRequired(t *testing.T) {
	scene := &fakeScene{cam: fakeCamera{pos: [3]float64{0, 0, 0}, mat: identityMatrix()}, haveCam: true}
	cfg := barrier.DefaultRenderReadyConfig()
	cfg.RequireCameraRender = false
	b := barrier.NewRenderReadyBarrier(cfg)

	err := b.Run(context.Background(), newFakeAfterRender(), scene)
	require.NoError(t, err)
}

func waitForSubscriber(t *testing.T, f *fakeAfterRender) {
	t.Helper()
	select {
	case <-f.subscribed:
	case <-time.After(time.Second):
		t.Fatal("barrier never subscribed")
	}
}
