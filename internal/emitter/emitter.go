// Package emitter implements the Loading State Emitter:
// typed pub/sub for the protocol's observable events, with throttling on
// on_state_change and isolated subscriber error handling.
//
// Delivery is a registry of typed subscriber funcs per event name,
// protected by an RWMutex and iterated over a snapshot slice so a
// subscriber can add or remove subscribers from inside its own callback
// without deadlocking or corrupting iteration. A panic inside a subscriber
// is recovered and logged, never propagated.
package emitter

import (
	"sync"
	"time"

	"github.com/dnrjke/readygate/internal/obslog"
)

// Name identifies an observable event.
type Name string

const (
	StateChange         Name = "state_change"
	PhaseChange         Name = "phase_change"
	ProgressUpdate      Name = "progress_update"
	UnitStart           Name = "unit_start"
	UnitComplete        Name = "unit_complete"
	BarrierEnter        Name = "barrier_enter"
	BarrierResolve      Name = "barrier_resolve"
	VisualReadyEnter    Name = "visual_ready_enter"
	VisualReadyComplete Name = "visual_ready_complete"
	StabilizingEnter    Name = "stabilizing_enter"
	StabilizingComplete Name = "stabilizing_complete"
	Launch              Name = "launch"
	Failed              Name = "failed"
)

// throttled names the only event subject to debouncing: state_change,
// default 16 ms between fires. Every other event bypasses throttling.
var throttled = map[Name]bool{StateChange: true}

// Handle revokes a subscription when called. Safe to call more than once.
type Handle func()

type subscriber struct {
	id int
	fn func(payload any)
}

// Config is the emitter's option set.
type Config struct {
	StateChangeThrottle time.Duration
}

// DefaultConfig matches the documented default.
func DefaultConfig() Config {
	return Config{StateChangeThrottle: 16 * time.Millisecond}
}

// Emitter is the Loading State Emitter.
type Emitter struct {
	cfg    Config
	logger *obslog.Logger

	mu        sync.RWMutex
	perEvent  map[Name][]subscriber
	bulkFns   []bulkEntry
	nextID    int
	lastFired map[Name]time.Time
}

type bulkEntry struct {
	id int
	fn func(name Name, payload any)
}

// New constructs an Emitter.
func New(cfg Config, logger *obslog.Logger) *Emitter {
	if cfg.StateChangeThrottle <= 0 {
		cfg = DefaultConfig()
	}
	if logger == nil {
		logger = obslog.DefaultLogger("readygate")
	}
	return &Emitter{
		cfg:       cfg,
		logger:    logger.Named("emitter"),
		perEvent:  make(map[Name][]subscriber),
		lastFired: make(map[Name]time.Time),
	}
}

// On subscribes fn to a single event name, returning a revocation handle.
func (e *Emitter) On(name Name, fn func(payload any)) Handle {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.nextID++
	id := e.nextID
	e.perEvent[name] = append(e.perEvent[name], subscriber{id: id, fn: fn})
	return func() { e.revoke(name, id) }
}

// OnAny subscribes fn to every event (bulk subscription).
func (e *Emitter) OnAny(fn func(name Name, payload any)) Handle {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.nextID++
	id := e.nextID
	e.bulkFns = append(e.bulkFns, bulkEntry{id: id, fn: fn})
	return func() { e.revokeBulk(id) }
}

func (e *Emitter) revoke(name Name, id int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	subs := e.perEvent[name]
	for i, s := range subs {
		if s.id == id {
			e.perEvent[name] = append(subs[:i], subs[i+1:]...)
			return
		}
	}
}

func (e *Emitter) revokeBulk(id int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for i, b := range e.bulkFns {
		if b.id == id {
			e.bulkFns = append(e.bulkFns[:i], e.bulkFns[i+1:]...)
			return
		}
	}
}

// Emit fires name with payload. on_state_change is throttled to
// cfg.StateChangeThrottle between fires (measured from the last delivered
// fire, not the last call, using wall time since the throttle here is a UI
// debounce, not a frame-cadence concern); every other event fires
// immediately.
func (e *Emitter) Emit(name Name, payload any) {
	if throttled[name] {
		e.mu.Lock()
		last, ok := e.lastFired[name]
		now := time.Now()
		if ok && now.Sub(last) < e.cfg.StateChangeThrottle {
			e.mu.Unlock()
			return
		}
		e.lastFired[name] = now
		e.mu.Unlock()
	}

	e.mu.RLock()
	direct := append([]subscriber(nil), e.perEvent[name]...)
	bulk := append([]bulkEntry(nil), e.bulkFns...)
	e.mu.RUnlock()

	for _, s := range direct {
		e.deliver(func() { s.fn(payload) })
	}
	for _, b := range bulk {
		fn := b.fn
		e.deliver(func() { fn(name, payload) })
	}
}

func (e *Emitter) deliver(call func()) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("emitter subscriber panicked", obslog.Any("panic", r))
		}
	}()
	call()
}
