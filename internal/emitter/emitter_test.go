package emitter_test

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dnrjke/readygate/internal/emitter"
)

func TestEmitter_DeliversToSubscriber(t *testing.T) {
	e := emitter.New(emitter.DefaultConfig(), nil)

	var got any
	var mu sync.Mutex
	e.On(emitter.Launch, func(payload any) {
		mu.Lock()
		got = payload
		mu.Unlock()
	})

	e.Emit(emitter.Launch, "ready")

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, "ready", got)
}

func TestEmitter_RevocationHandleStopsDelivery(t *testing.T) {
	e := emitter.New(emitter.DefaultConfig(), nil)

	var calls int
	var mu sync.Mutex
	handle := e.On(emitter.Launch, func(payload any) {
		mu.Lock()
		calls++
		mu.Unlock()
	})

	e.Emit(emitter.Launch, nil)
	handle()
	e.Emit(emitter.Launch, nil)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 1, calls)
}

func TestEmitter_BulkSubscriberReceivesEveryEvent(t *testing.T) {
	e := emitter.New(emitter.DefaultConfig(), nil)

	var names []emitter.Name
	var mu sync.Mutex
	e.OnAny(func(name emitter.Name, payload any) {
		mu.Lock()
		names = append(names, name)
		mu.Unlock()
	})

	e.Emit(emitter.PhaseChange, nil)
	e.Emit(emitter.Launch, nil)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []emitter.Name{emitter.PhaseChange, emitter.Launch}, names)
}

func TestEmitter_StateChangeIsThrottledOtherEventsAreNot(t *testing.T) {
	cfg := emitter.DefaultConfig()
	cfg.StateChangeThrottle = time.Hour
	e := emitter.New(cfg, nil)

	var stateChanges, launches int
	var mu sync.Mutex
	e.On(emitter.StateChange, func(payload any) {
		mu.Lock()
		stateChanges++
		mu.Unlock()
	})
	e.On(emitter.Launch, func(payload any) {
		mu.Lock()
		launches++
		mu.Unlock()
	})

	for i := 0; i < 5; i++ {
		e.Emit(emitter.StateChange, nil)
		e.Emit(emitter.Launch, nil)
	}

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 1, stateChanges, "state_change must be throttled")
	assert.Equal(t, 5, launches, "launch must bypass throttling")
}

func TestEmitter_GlobalLifecycle(t *testing.T) {
	defer emitter.DisposeGlobal()
	assert.Nil(t, emitter.Global())
	g := emitter.InitGlobal(emitter.DefaultConfig())
	assert.Same(t, g, emitter.Global())
	emitter.DisposeGlobal()
	assert.Nil(t, emitter.Global())
}

func TestEmitter_PanickingSubscriberIsIsolated(t *testing.T) {
	e := emitter.New(emitter.DefaultConfig(), nil)

	var secondCalled bool
	e.On(emitter.Failed, func(payload any) {
		panic("boom")
	})
	e.On(emitter.Failed, func(payload any) {
		secondCalled = true
	})

	require.NotPanics(t, func() { e.Emit(emitter.Failed, nil) })
	assert.True(t, secondCalled)
}

