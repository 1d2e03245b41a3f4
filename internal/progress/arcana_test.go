package progress_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dnrjke/readygate/internal/progress"
	"github.com/dnrjke/readygate/internal/unit"
)

func TestModel_DisplayNeverDecreasesAcrossTicks(t *testing.T) {
	m := progress.New(progress.DefaultConfig(), nil)
	m.RegisterUnit("a", true)
	m.EnterPhase(unit.PhaseBarrier)
	m.UnitCompleted("a")

	last := m.Display()
	for i := 0; i < 200; i++ {
		m.Tick()
		next := m.Display()
		assert.GreaterOrEqual(t, next, last)
		last = next
	}
}

func TestModel_DisplayApproachesRawButNeverExceedsPhaseCap(t *testing.T) {
	m := progress.New(progress.DefaultConfig(), nil)
	m.RegisterUnit("a", true)
	m.EnterPhase(unit.PhaseBarrier)
	m.UnitCompleted("a")

	for i := 0; i < 1000; i++ {
		m.Tick()
	}
	assert.LessOrEqual(t, m.Display(), 0.90)
	assert.InDelta(t, 0.90, m.Display(), 0.001)
}

func TestModel_ResolveBarrierClampsToAtLeast090(t *testing.T) {
	m := progress.New(progress.DefaultConfig(), nil)
	m.EnterPhase(unit.PhaseBarrier)
	m.ResolveBarrier()
	assert.GreaterOrEqual(t, m.Display(), 0.90)
}

func TestModel_ResolveStabilizingPanicsBeforeVisualReadyComplete(t *testing.T) {
	m := progress.New(progress.DefaultConfig(), nil)
	m.EnterPhase(unit.PhaseStabilizing)

	assert.Panics(t, func() { m.ResolveStabilizing() })
}

func TestModel_EnterPhaseStabilizingDoesNotReachOneBeforeVisualReadyComplete(t *testing.T) {
	m := progress.New(progress.DefaultConfig(), nil)
	m.EnterPhase(unit.PhaseStabilizing)

	assert.Less(t, m.Display(), 1.0, "display must never reach 1.0 before visual_ready_complete has fired")
}

func TestModel_ResolveStabilizingPinsToOneAfterVisualReadyComplete(t *testing.T) {
	m := progress.New(progress.DefaultConfig(), nil)
	m.EnterPhase(unit.PhaseVisualReady)
	m.ResolveVisualReady()
	require.True(t, m.VisualReadyComplete())

	m.EnterPhase(unit.PhaseStabilizing)
	m.ResolveStabilizing()
	assert.Equal(t, 1.0, m.Display())
}

func TestModel_EventsFireInOrder(t *testing.T) {
	var kinds []progress.EventKind
	m := progress.New(progress.DefaultConfig(), func(ev progress.Event) {
		kinds = append(kinds, ev.Kind)
	})

	m.EnterPhase(unit.PhaseBarrier)
	m.ResolveBarrier()
	m.EnterPhase(unit.PhaseVisualReady)
	m.ResolveVisualReady()
	m.EnterPhase(unit.PhaseStabilizing)
	m.ResolveStabilizing()
	m.Launch()

	require.Contains(t, kinds, progress.EventBarrierEnter)
	require.Contains(t, kinds, progress.EventBarrierResolve)
	require.Contains(t, kinds, progress.EventVisualReadyComplete)
	require.Contains(t, kinds, progress.EventLaunch)

	barrierEnterIdx := indexOf(kinds, progress.EventBarrierEnter)
	barrierResolveIdx := indexOf(kinds, progress.EventBarrierResolve)
	assert.Less(t, barrierEnterIdx, barrierResolveIdx)

	visualCompleteIdx := indexOf(kinds, progress.EventVisualReadyComplete)
	launchIdx := indexOf(kinds, progress.EventLaunch)
	assert.Less(t, visualCompleteIdx, launchIdx)
}

func indexOf(kinds []progress.EventKind, target progress.EventKind) int {
	for i, k := range kinds {
		if k == target {
			return i
		}
	}
	return -1
}
