package registry_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dnrjke/readygate/internal/registry"
	"github.com/dnrjke/readygate/internal/testutil"
	"github.com/dnrjke/readygate/internal/unit"
)

func TestRegistry_RejectsDuplicateRegistration(t *testing.T) {
	r := registry.New()
	u := testutil.NewMockUnit("a", unit.PhaseWarming, true, unit.CostLight, 1)
	require.NoError(t, r.Register(u))

	err := r.Register(u)
	assert.ErrorContains(t, err, "duplicate")
}

func TestRegistry_ByPhaseByStatusRequiredOptional(t *testing.T) {
	r := registry.New()
	req := testutil.NewMockUnit("req", unit.PhaseBuilding, true, unit.CostLight, 1)
	opt := testutil.NewMockUnit("opt", unit.PhaseBuilding, false, unit.CostLight, 1)
	other := testutil.NewMockUnit("other", unit.PhaseWarming, true, unit.CostLight, 1)
	require.NoError(t, r.RegisterAll([]unit.Load{req, opt, other}))

	building := r.ByPhase(unit.PhaseBuilding)
	assert.Len(t, building, 2)

	assert.Len(t, r.Required(), 2)
	assert.Len(t, r.Optional(), 1)

	r.SetStatus("req", unit.StatusLoaded, nil)
	assert.Len(t, r.ByStatus(unit.StatusLoaded), 1)
}

func TestRegistry_ProgressWeighting(t *testing.T) {
	r := registry.New()
	a := testutil.NewMockUnit("a", unit.PhaseWarming, true, unit.CostLight, 1)
	b := testutil.NewMockUnit("b", unit.PhaseWarming, true, unit.CostLight, 1)
	require.NoError(t, r.RegisterAll([]unit.Load{a, b}))

	r.SetStatus("a", unit.StatusValidated, nil)
	r.SetStatus("b", unit.StatusLoading, nil)

	assert.InDelta(t, (1.0+0.5)/2, r.Progress(true), 0.0001)
}

func TestRegistry_ClearDisposesEveryUnitExactlyOnce(t *testing.T) {
	r := registry.New()
	a := testutil.NewMockUnit("a", unit.PhaseWarming, true, unit.CostLight, 1)
	require.NoError(t, r.Register(a))

	r.Clear()
	assert.True(t, a.Disposed())
	assert.Equal(t, 0, r.Len())
}

func TestRegistry_RegisterAllClearRegisterAllIsIdempotentShape(t *testing.T) {
	build := func() []unit.Load {
		return []unit.Load{
			testutil.NewMockUnit("a", unit.PhaseWarming, true, unit.CostLight, 1),
			testutil.NewMockUnit("b", unit.PhaseWarming, false, unit.CostLight, 1),
		}
	}

	r1 := registry.New()
	require.NoError(t, r1.RegisterAll(build()))
	r1.Clear()
	require.NoError(t, r1.RegisterAll(build()))

	r2 := registry.New()
	require.NoError(t, r2.RegisterAll(build()))

	assert.Equal(t, r2.Len(), r1.Len())
	assert.ElementsMatch(t, idsOf(r2.All()), idsOf(r1.All()))
}

func idsOf(units []unit.Load) []string {
	ids := make([]string, len(units))
	for i, u := range units {
		ids[i] = u.ID()
	}
	return ids
}

func TestRegistry_RecordElapsedMovingAverage(t *testing.T) {
	r := registry.New()
	a := testutil.NewMockUnit("a", unit.PhaseWarming, true, unit.CostLight, 1)
	require.NoError(t, r.Register(a))

	r.RecordElapsed("a", 50)
	v, ok := r.PriorElapsed("a")
	require.True(t, ok)
	assert.InDelta(t, 50, v, 0.001)

	r.RecordElapsed("a", 150)
	v, ok = r.PriorElapsed("a")
	require.True(t, ok)
	assert.InDelta(t, 75, v, 0.001) // (50*3 + 150) / 4
}
