package unit_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/dnrjke/readygate/internal/unit"
)

func TestStatus_Complete(t *testing.T) {
	assert.True(t, unit.StatusValidated.Complete())
	assert.True(t, unit.StatusLoaded.Complete())
	assert.True(t, unit.StatusSkipped.Complete())
	assert.False(t, unit.StatusPending.Complete())
	assert.False(t, unit.StatusLoading.Complete())
	assert.False(t, unit.StatusFailed.Complete())
}

func TestOrderedLoadPhases_CanonicalOrder(t *testing.T) {
	phases := unit.OrderedLoadPhases()
	assert.Equal(t, []unit.Phase{
		unit.PhaseFetching,
		unit.PhaseBuilding,
		unit.PhaseWarming,
		unit.PhaseBarrier,
		unit.PhaseVisualReady,
	}, phases)
}

func TestPhase_String(t *testing.T) {
	assert.Equal(t, "warming", unit.PhaseWarming.String())
	assert.Equal(t, "ready", unit.PhaseReady.String())
}
