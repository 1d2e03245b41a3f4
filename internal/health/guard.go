// Package health implements the Frame Health Guard: an
// independent frame-cadence monitor, driven by its own host frame-callback
// chain rather than the renderer's, that classifies frame health and
// pauses/resumes subscribed execution contexts.
package health

import (
	"context"
	"sync"
	"time"

	rgclock "github.com/dnrjke/readygate/internal/clock"
	"github.com/dnrjke/readygate/internal/obslog"
	"github.com/dnrjke/readygate/internal/throttle"
)

// Subscriber is the minimal surface the guard needs from an execution
// context to pause/resume it. internal/execctx.Context implements this.
type Subscriber interface {
	Pause(reason string)
	Resume()
}

// Config mirrors the documented thresholds and windows.
type Config struct {
	// WindowSize is the rolling average window (default 5).
	WindowSize int
	// HealthyMS: dt below this increments the consecutive-healthy counter.
	HealthyMS float64
	// WarningMS: window average at/above this is WARNING.
	WarningMS float64
	// CriticalMS: a single interval at/above this is CRITICAL.
	CriticalMS float64
	// RecoveryFrames is how many consecutive healthy intervals are needed
	// to transition back to healthy from critical/warning.
	RecoveryFrames int
	// RecoveryFramesFromLocked is the (larger) requirement coming out of
	// locked, reflecting that a throttle-stable host needs more evidence
	// before its scheduler is trusted again.
	RecoveryFramesFromLocked int
	// PostAwakeningWatchMS is how long after an engine-awakened pass the
	// guard keeps watching for regression.
	PostAwakeningWatchMS int64

	Throttle throttle.Config
}

// DefaultConfig matches the documented defaults.
func DefaultConfig() Config {
	return Config{
		WindowSize:               5,
		HealthyMS:                20,
		WarningMS:                33,
		CriticalMS:               50,
		RecoveryFrames:           3,
		RecoveryFramesFromLocked: 6,
		PostAwakeningWatchMS:     500,
		Throttle:                 throttle.DefaultConfig(),
	}
}

// Guard is the Frame Health Guard. It is safe to share across an entire
// rendering surface and supports multiple concurrently-registered
// execution contexts.
type Guard struct {
	cfg    Config
	host   rgclock.Host
	logger *obslog.Logger

	mu               sync.RWMutex
	status           Status
	window           []float64
	lastFrame        time.Time
	haveLastFrame    bool
	consecutiveOK    int
	cameFromLocked   bool
	locked           *throttle.Detector
	subscribers      map[Subscriber]struct{}
	awakenedAt       time.Time
	watchingAwakened bool

	onLocked                   func(mean, stddev float64)
	onPostAwakeningDegradation func(status Status)
	onStatusChange             func(status Status)

	stopped bool
}

// New constructs a Guard bound to host, running its own frame chain
// independently of any renderer loop.
func New(ctx context.Context, host rgclock.Host, cfg Config, logger *obslog.Logger) *Guard {
	if cfg.WindowSize <= 0 {
		cfg = DefaultConfig()
	}
	if logger == nil {
		logger = obslog.DefaultLogger("readygate")
	}

	g := &Guard{
		cfg:         cfg,
		host:        host,
		logger:      logger.Named("health"),
		status:      Healthy,
		window:      make([]float64, 0, cfg.WindowSize),
		locked:      throttle.New(cfg.Throttle),
		subscribers: make(map[Subscriber]struct{}),
	}

	g.scheduleNext(ctx)
	return g
}

// OnLocked registers the callback fired whenever the guard transitions
// into Locked, carrying the window's mean and stddev.
func (g *Guard) OnLocked(fn func(mean, stddev float64)) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.onLocked = fn
}

// OnPostAwakeningDegradation registers the advisory callback fired if
// health regresses to critical/locked within the post-awakening watch
// window. Purely advisory; the protocol decides what to do.
func (g *Guard) OnPostAwakeningDegradation(fn func(status Status)) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.onPostAwakeningDegradation = fn
}

// OnStatusChange registers a callback fired on every status transition.
func (g *Guard) OnStatusChange(fn func(status Status)) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.onStatusChange = fn
}

// Status returns the current classification.
func (g *Guard) Status() Status {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.status
}

// Connect registers an execution context as a subscriber. Must be paired
// with Disconnect in the caller's teardown path: the guard
// holds subscribers only for the duration of their unit's run.
func (g *Guard) Connect(s Subscriber) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.subscribers[s] = struct{}{}
}

// Disconnect removes a subscriber. Safe to call more than once.
func (g *Guard) Disconnect(s Subscriber) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.subscribers, s)
}

// SubscriberCount reports the number of currently connected subscribers,
// used by tests/callers to assert no subscriber leaked past guard Stop.
func (g *Guard) SubscriberCount() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.subscribers)
}

// NotifyAwakened tells the guard an Engine-Awakened Barrier pass just
// happened, starting the post-awakening watch window.
func (g *Guard) NotifyAwakened() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.awakenedAt = g.host.Now()
	g.watchingAwakened = true
}

// Stop halts the guard's independent frame chain. After Stop, SubscriberCount
// should read 0 if every Connect was paired with a Disconnect.
func (g *Guard) Stop() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.stopped = true
}

func (g *Guard) scheduleNext(ctx context.Context) {
	select {
	case <-ctx.Done():
		return
	default:
	}
	g.host.RequestFrame(func(t time.Time) {
		g.tick(t)
		g.mu.RLock()
		stopped := g.stopped
		g.mu.RUnlock()
		if !stopped {
			g.scheduleNext(ctx)
		}
	})
}

func (g *Guard) tick(t time.Time) {
	g.mu.Lock()

	if !g.haveLastFrame {
		g.lastFrame = t
		g.haveLastFrame = true
		g.mu.Unlock()
		return
	}

	dtMS := float64(t.Sub(g.lastFrame).Microseconds()) / 1000.0
	g.lastFrame = t

	g.window = append(g.window, dtMS)
	if len(g.window) > g.cfg.WindowSize {
		g.window = g.window[len(g.window)-g.cfg.WindowSize:]
	}
	g.locked.Push(dtMS)

	prev := g.status
	next := g.classify(dtMS)
	g.status = next

	var fireLocked bool
	var lockedMean, lockedStddev float64
	var fireStatusChange bool
	var firePostAwakening bool
	var paused []Subscriber
	var resumed []Subscriber

	if next != prev {
		fireStatusChange = true
		if next == Locked {
			fireLocked = true
			lockedMean, lockedStddev = g.locked.Mean(), g.locked.Stddev()
			g.cameFromLocked = true
		}
		if next == Critical || next == Locked {
			for s := range g.subscribers {
				paused = append(paused, s)
			}
		}
		if next == Healthy && (prev == Critical || prev == Locked || prev == Recovering) {
			for s := range g.subscribers {
				resumed = append(resumed, s)
			}
		}
		if g.watchingAwakened && (next == Critical || next == Locked) {
			elapsed := g.host.Now().Sub(g.awakenedAt).Milliseconds()
			if elapsed <= g.cfg.PostAwakeningWatchMS {
				firePostAwakening = true
			}
		}
	}

	onLocked := g.onLocked
	onStatusChange := g.onStatusChange
	onDegradation := g.onPostAwakeningDegradation

	g.mu.Unlock()

	// Deliver outside the lock: a callback may reentrantly call
	// Connect/Disconnect.
	for _, s := range paused {
		s.Pause("frame-health:" + next.String())
	}
	for _, s := range resumed {
		s.Resume()
	}
	if fireLocked && onLocked != nil {
		func() {
			defer recoverAndLog(g.logger, "on_locked")
			onLocked(lockedMean, lockedStddev)
		}()
	}
	if fireStatusChange && onStatusChange != nil {
		func() {
			defer recoverAndLog(g.logger, "on_status_change")
			onStatusChange(next)
		}()
	}
	if firePostAwakening && onDegradation != nil {
		func() {
			defer recoverAndLog(g.logger, "on_post_awakening_degradation")
			onDegradation(next)
		}()
	}
}

// classify implements priority-ordered evaluation.
func (g *Guard) classify(dtMS float64) Status {
	if g.locked.IsLocked() {
		g.consecutiveOK = 0
		return Locked
	}

	if dtMS >= g.cfg.CriticalMS {
		g.consecutiveOK = 0
		return Critical
	}

	avg := windowAverage(g.window)
	if avg >= g.cfg.WarningMS {
		g.consecutiveOK = 0
		return Warning
	}

	if dtMS < g.cfg.HealthyMS {
		g.consecutiveOK++
		required := g.cfg.RecoveryFrames
		if g.cameFromLocked {
			required = g.cfg.RecoveryFramesFromLocked
		}
		// A guard that is already healthy stays healthy; Recovering is only
		// the transient state on the way back from a degraded status.
		if g.status == Healthy || g.consecutiveOK >= required {
			g.cameFromLocked = false
			return Healthy
		}
		return Recovering
	}

	g.consecutiveOK = 0
	return Recovering
}

func windowAverage(w []float64) float64 {
	if len(w) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range w {
		sum += v
	}
	return sum / float64(len(w))
}

func recoverAndLog(logger *obslog.Logger, callback string) {
	if r := recover(); r != nil {
		logger.Error("health guard callback panicked",
			obslog.String("callback", callback),
			obslog.Any("panic", r))
	}
}
