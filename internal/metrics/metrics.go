// Package metrics wires the protocol's operational surface into
// Prometheus, following the direct-usage pattern the pack's service
// examples use: a single struct constructed once per process, holding
// promauto-registered collectors, injected as a nilable dependency so
// tests and minimal embedders are not forced to carry a registry.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Registry holds every collector the protocol updates. A nil *Registry is
// a legal no-op: every method tolerates a nil receiver.
type Registry struct {
	healthTransitions *prometheus.CounterVec
	unitElapsed       prometheus.Histogram
	forcedYields      prometheus.Counter
	displayProgress   prometheus.Gauge
}

// New constructs a Registry and registers its collectors against reg. Pass
// prometheus.NewRegistry() for an isolated registry (tests, multiple
// protocol instances in one process), or nil to build collectors that are
// not registered with any registerer.
func New(reg prometheus.Registerer) *Registry {
	factory := promauto.With(reg)
	return &Registry{
		healthTransitions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "readygate",
			Subsystem: "health",
			Name:      "transitions_total",
			Help:      "Frame Health Guard status transitions, labeled by resulting status.",
		}, []string{"status"}),
		unitElapsed: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "readygate",
			Subsystem: "executor",
			Name:      "unit_elapsed_ms",
			Help:      "Elapsed wall time in milliseconds of a completed load unit run.",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 12),
		}),
		forcedYields: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "readygate",
			Subsystem: "executor",
			Name:      "forced_yields_total",
			Help:      "Yields forced by the per-frame time budget rather than a unit's own cooperative yield.",
		}),
		displayProgress: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "readygate",
			Subsystem: "progress",
			Name:      "display_progress",
			Help:      "Current Arcana Progress Model display value, in [0, 1].",
		}),
	}
}

// ObserveHealthTransition records a Frame Health Guard status change.
func (r *Registry) ObserveHealthTransition(status string) {
	if r == nil {
		return
	}
	r.healthTransitions.WithLabelValues(status).Inc()
}

// ObserveUnitElapsed records one unit's completed run time.
func (r *Registry) ObserveUnitElapsed(ms float64) {
	if r == nil {
		return
	}
	r.unitElapsed.Observe(ms)
}

// IncForcedYields records a forced yield.
func (r *Registry) IncForcedYields() {
	if r == nil {
		return
	}
	r.forcedYields.Inc()
}

// ObserveForcedYields adds n forced yields at once, for callers that already
// aggregate a unit's yield count rather than calling IncForcedYields in a
// loop.
func (r *Registry) ObserveForcedYields(n uint64) {
	if r == nil || n == 0 {
		return
	}
	r.forcedYields.Add(float64(n))
}

// SetDisplayProgress records the current display progress value.
func (r *Registry) SetDisplayProgress(v float64) {
	if r == nil {
		return
	}
	r.displayProgress.Set(v)
}
