package execctx_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	rgclock "github.com/dnrjke/readygate/internal/clock"
	"github.com/dnrjke/readygate/internal/execctx"
)

type manualHost struct {
	now     time.Time
	pending []func(t time.Time)
}

func (m *manualHost) Now() time.Time { return m.now }

func (m *manualHost) RequestFrame(cb func(t time.Time)) {
	m.pending = append(m.pending, cb)
}

func (m *manualHost) tick(dt time.Duration) {
	m.now = m.now.Add(dt)
	pending := m.pending
	m.pending = nil
	for _, cb := range pending {
		cb(m.now)
	}
}

func TestContext_BudgetAndElapsed(t *testing.T) {
	host := &manualHost{now: time.Unix(0, 0)}
	clk := rgclock.New(host)
	ctx := execctx.New(clk, 4)

	ctx.StartFrame()
	assert.False(t, ctx.IsOverBudget())

	host.now = host.now.Add(5 * time.Millisecond)
	assert.True(t, ctx.IsOverBudget())
	assert.False(t, ctx.IsHealthy())
}

func TestContext_PauseResumeRestartsTimer(t *testing.T) {
	host := &manualHost{now: time.Unix(0, 0)}
	clk := rgclock.New(host)
	ctx := execctx.New(clk, 4)

	ctx.StartFrame()
	ctx.Pause("critical")
	assert.True(t, ctx.Paused())
	assert.Equal(t, "critical", ctx.PauseReason())
	assert.False(t, ctx.IsHealthy())

	host.now = host.now.Add(100 * time.Millisecond)
	ctx.Resume()
	assert.False(t, ctx.Paused())
	assert.False(t, ctx.IsOverBudget(), "resume should restart the frame timer")
}

func TestContext_RecordYieldTracksDesignFailure(t *testing.T) {
	host := &manualHost{now: time.Unix(0, 0)}
	clk := rgclock.New(host)
	ctx := execctx.New(clk, 4)

	ctx.StartFrame()
	ctx.RecordYield(false)

	host.now = host.now.Add(60 * time.Millisecond)
	ctx.RecordYield(true)

	stats := ctx.Stats()
	assert.Equal(t, uint64(2), stats.Yields)
	assert.Equal(t, uint64(1), stats.ForcedYields)
	assert.True(t, stats.DesignFailure)
	assert.GreaterOrEqual(t, stats.MaxSingleBlockMS, int64(60))
}

func TestContext_RequestRecoveryFrames(t *testing.T) {
	host := &manualHost{now: time.Unix(0, 0)}
	clk := rgclock.New(host)
	ctx := execctx.New(clk, 4)

	done := make(chan error, 1)
	go func() {
		done <- ctx.RequestRecoveryFrames(context.Background(), 2)
	}()

	for i := 0; i < 1000 && len(host.pending) == 0; i++ {
		time.Sleep(time.Microsecond)
	}
	require.Len(t, host.pending, 1)
	host.tick(16 * time.Millisecond)

	for i := 0; i < 1000 && len(host.pending) == 0; i++ {
		time.Sleep(time.Microsecond)
	}
	require.Len(t, host.pending, 1)
	host.tick(16 * time.Millisecond)

	require.NoError(t, <-done)
	assert.Equal(t, uint64(2), ctx.Stats().RecoveryFrames)
}
