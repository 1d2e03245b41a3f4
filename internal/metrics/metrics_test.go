package metrics_test

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dnrjke/readygate/internal/metrics"
)

func TestRegistry_RecordsHealthTransitions(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)

	m.ObserveHealthTransition("critical")
	m.ObserveHealthTransition("critical")
	m.ObserveHealthTransition("healthy")

	families, err := reg.Gather()
	require.NoError(t, err)

	var found bool
	for _, f := range families {
		if f.GetName() != "readygate_health_transitions_total" {
			continue
		}
		found = true
		for _, metric := range f.GetMetric() {
			for _, label := range metric.GetLabel() {
				if label.GetName() == "status" && label.GetValue() == "critical" {
					assert.Equal(t, 2.0, metric.GetCounter().GetValue())
				}
			}
		}
	}
	assert.True(t, found, "expected readygate_health_transitions_total in gathered families")
}

func TestRegistry_NilReceiverIsNoOp(t *testing.T) {
	var m *metrics.Registry
	assert.NotPanics(t, func() {
		m.ObserveHealthTransition("locked")
		m.ObserveUnitElapsed(12.5)
		m.IncForcedYields()
		m.SetDisplayProgress(0.5)
	})
}

func TestRegistry_DisplayProgressGaugeReportsLastValue(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)

	m.SetDisplayProgress(0.42)

	families, err := reg.Gather()
	require.NoError(t, err)

	var gauge *dto.Metric
	for _, f := range families {
		if f.GetName() == "readygate_progress_display_progress" {
			gauge = f.GetMetric()[0]
		}
	}
	require.NotNil(t, gauge)
	assert.InDelta(t, 0.42, gauge.GetGauge().GetValue(), 0.0001)
}
