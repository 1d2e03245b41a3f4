package barrier_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dnrjke/readygate/internal/barrier"
	rgclock "github.com/dnrjke/readygate/internal/clock"
)

type manualHost struct {
	mu      sync.Mutex
	now     time.Time
	pending []func(t time.Time)
}

func (m *manualHost) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

func (m *manualHost) RequestFrame(cb func(t time.Time)) {
	m.mu.Lock()
	m.pending = append(m.pending, cb)
	m.mu.Unlock()
}

func (m *manualHost) tick(dt time.Duration) {
	m.mu.Lock()
	m.now = m.now.Add(dt)
	pending := m.pending
	m.pending = nil
	now := m.now
	m.mu.Unlock()
	for _, cb := range pending {
		cb(now)
	}
}

func (m *manualHost) pendingLen() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.pending)
}

type fakeFrameRenderer struct {
	mu         sync.Mutex
	subs       []func()
	beginEnd   int
	subscribed chan struct{}
}

func newFakeFrameRenderer() *fakeFrameRenderer {
	return &fakeFrameRenderer{subscribed: make(chan struct{}, 1)}
}

func (f *fakeFrameRenderer) BeginFrame() {
	f.mu.Lock()
	f.beginEnd++
	f.mu.Unlock()
}
func (f *fakeFrameRenderer) Render()   {}
func (f *fakeFrameRenderer) EndFrame() {}

func (f *fakeFrameRenderer) OnBeforeRender(cb func()) func() {
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

func (f *fakeFrameRenderer) fireBeforeRender() {
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

func waitUntilPending(t *testing.T, host *manualHost, n int) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if host.pendingLen() >= n {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("host never had %d pending frame callback(s)", n)
}

func runBurst(t *testing.T, host *manualHost, frames int) {
	t.Helper()
	for i := 0; i < frames; i++ {
		waitUntilPending(t, host, 1)
		host.tick(16 * time.Millisecond)
	}
}

func waitForBeforeRenderSubscriber(t *testing.T, f *fakeFrameRenderer) {
	t.Helper()
	select {
	case <-f.subscribed:
	case <-time.After(time.Second):
		t.Fatal("barrier never subscribed to before-render")
	}
}

func TestEngineAwakenedBarrier_NormalDispositionOnStableCadence(t *testing.T) {
	host := &manualHost{now: time.Unix(0, 0)}
	clk := rgclock.New(host)
	renderer := newFakeFrameRenderer()
	cfg := barrier.DefaultEngineAwakenedConfig()
	cfg.EnableThrottleDetection = false
	b := barrier.NewEngineAwakenedBarrier(clk, cfg)

	resCh := make(chan barrier.Result, 1)
	errCh := make(chan error, 1)
	go func() {
		res, err := b.Run(context.Background(), renderer)
		resCh <- res
		errCh <- err
	}()

	runBurst(t, host, cfg.BurstFrameCount)
	waitForBeforeRenderSubscriber(t, renderer)

	for i := 0; i < cfg.MinConsecutiveFrames+1; i++ {
		host.tick(16 * time.Millisecond)
		renderer.fireBeforeRender()
	}

	require.NoError(t, <-errCh)
	res := <-resCh
	assert.Equal(t, barrier.DispositionNormal, res.Disposition)
	assert.Equal(t, cfg.BurstFrameCount, res.BurstCount)
	assert.Equal(t, cfg.BurstFrameCount, renderer.beginEnd)
}

func TestEngineAwakenedBarrier_ThrottleStableDisposition(t *testing.T) {
	host := &manualHost{now: time.Unix(0, 0)}
	clk := rgclock.New(host)
	renderer := newFakeFrameRenderer()
	cfg := barrier.DefaultEngineAwakenedConfig()
	b := barrier.NewEngineAwakenedBarrier(clk, cfg)

	resCh := make(chan barrier.Result, 1)
	errCh := make(chan error, 1)
	go func() {
		res, err := b.Run(context.Background(), renderer)
		resCh <- res
		errCh <- err
	}()

	runBurst(t, host, cfg.BurstFrameCount)
	waitForBeforeRenderSubscriber(t, renderer)

	for i := 0; i < cfg.Throttle.Window+1; i++ {
		host.tick(104 * time.Millisecond)
		renderer.fireBeforeRender()
	}

	require.NoError(t, <-errCh)
	res := <-resCh
	assert.Equal(t, barrier.DispositionThrottleStable, res.Disposition)
}

func TestEngineAwakenedBarrier_GracefulFallbackWhenJitteryButRunning(t *testing.T) {
	host := &manualHost{now: time.Unix(0, 0)}
	clk := rgclock.New(host)
	renderer := newFakeFrameRenderer()
	cfg := barrier.DefaultEngineAwakenedConfig()
	cfg.EnableThrottleDetection = false
	cfg.MinConsecutiveFrames = 100
	cfg.GracefulFallbackMS = 50
	cfg.MinNaturalFramesForGraceful = 3
	b := barrier.NewEngineAwakenedBarrier(clk, cfg)

	resCh := make(chan barrier.Result, 1)
	errCh := make(chan error, 1)
	go func() {
		res, err := b.Run(context.Background(), renderer)
		resCh <- res
		errCh <- err
	}()

	runBurst(t, host, cfg.BurstFrameCount)
	waitForBeforeRenderSubscriber(t, renderer)

	for i := 0; i < 5; i++ {
		host.tick(20 * time.Millisecond)
		renderer.fireBeforeRender()
	}

	require.NoError(t, <-errCh)
	res := <-resCh
	assert.Equal(t, barrier.DispositionGraceful, res.Disposition)
}

func TestEngineAwakenedBarrier_HardTimeoutGracefulPassesWithoutError(t *testing.T) {
	host := &manualHost{now: time.Unix(0, 0)}
	clk := rgclock.New(host)
	renderer := newFakeFrameRenderer()
	cfg := barrier.DefaultEngineAwakenedConfig()
	cfg.EnableThrottleDetection = false
	cfg.MinConsecutiveFrames = 100
	cfg.GracefulFallbackMS = 0
	cfg.MaxWaitMS = 100
	cfg.MinNaturalFramesForGraceful = 3
	b := barrier.NewEngineAwakenedBarrier(clk, cfg)

	resCh := make(chan barrier.Result, 1)
	errCh := make(chan error, 1)
	go func() {
		res, err := b.Run(context.Background(), renderer)
		resCh <- res
		errCh <- err
	}()

	runBurst(t, host, cfg.BurstFrameCount)
	waitForBeforeRenderSubscriber(t, renderer)

	for i := 0; i < 7; i++ {
		host.tick(16 * time.Millisecond)
		renderer.fireBeforeRender()
	}

	require.NoError(t, <-errCh, "hard-timeout graceful fallback must pass, not fail, once the minimum natural frames are met")
	res := <-resCh
	assert.Equal(t, barrier.DispositionGraceful, res.Disposition)
}

func TestEngineAwakenedBarrier_ZeroMaxWaitHardFails(t *testing.T) {
	host := &manualHost{now: time.Unix(0, 0)}
	clk := rgclock.New(host)
	renderer := newFakeFrameRenderer()
	cfg := barrier.DefaultEngineAwakenedConfig()
	cfg.MaxWaitMS = 0

	b := barrier.NewEngineAwakenedBarrier(clk, cfg)

	resCh := make(chan barrier.Result, 1)
	errCh := make(chan error, 1)
	go func() {
		res, err := b.Run(context.Background(), renderer)
		resCh <- res
		errCh <- err
	}()

	runBurst(t, host, cfg.BurstFrameCount)

	err := <-errCh
	res := <-resCh
	assert.Error(t, err)
	assert.Equal(t, barrier.DispositionHardFail, res.Disposition)
}
