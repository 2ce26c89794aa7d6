package governance

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/fyrsmithlabs/govern/internal/action"
	"github.com/fyrsmithlabs/govern/internal/audit"
	"github.com/fyrsmithlabs/govern/internal/store"
)

func (h *harness) submitExpiring(t *testing.T, in time.Duration) *action.Proposal {
	t.Helper()
	at := h.clock.Now().Add(in)
	req := invoiceRequest()
	req.ExpiresAt = &at
	p, err := h.engine.Submit(context.Background(), req)
	require.NoError(t, err)
	return p
}

func TestSweepExpired_Idempotent(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.rule(t, "r1", action.RiskHigh, false)

	var overdue []*action.Proposal
	for i := 0; i < 3; i++ {
		overdue = append(overdue, h.submitExpiring(t, time.Minute))
	}
	fresh := h.submitExpiring(t, 3*time.Hour)
	forever := h.submit(t)

	h.clock.Advance(2 * time.Minute)

	n, err := h.engine.SweepExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	n, err = h.engine.SweepExpired(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	for _, p := range overdue {
		got, err := h.engine.Get(ctx, p.ID)
		require.NoError(t, err)
		assert.Equal(t, action.StatusExpired, got.Status)
		assert.Nil(t, got.ReviewedAt)
		assert.Equal(t,
			[]audit.EventType{audit.EventSubmitted, audit.EventExpired},
			auditEvents(t, h.store, audit.Query{ActionID: p.ID}))
	}
	for _, p := range []*action.Proposal{fresh, forever} {
		got, err := h.engine.Get(ctx, p.ID)
		require.NoError(t, err)
		assert.Equal(t, action.StatusPending, got.Status)
	}

	stats, err := h.engine.GetRuleStats(ctx, "r1")
	require.NoError(t, err)
	assert.Zero(t, stats.TotalActions, "expiry is not a reviewed outcome")
}

func TestSweepExpired_ThenReviewConflicts(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	p := h.submitExpiring(t, time.Minute)
	h.clock.Advance(time.Minute)

	n, err := h.engine.SweepExpired(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, n)

	_, err = h.engine.Review(ctx, ReviewRequest{ActionID: p.ID, Decision: action.DecisionApprove})
	assert.ErrorIs(t, err, ErrNotPending)
	assert.ErrorIs(t, err, store.ErrConflict)
}

func TestSweepExpired_ReviewedBeforeSweepIsSkipped(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	p := h.submitExpiring(t, time.Minute)
	h.clock.Advance(time.Hour)

	// Overdue but not yet swept: the reviewer still wins.
	_, err := h.engine.Review(ctx, ReviewRequest{ActionID: p.ID, Decision: action.DecisionApprove})
	require.NoError(t, err)

	n, err := h.engine.SweepExpired(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestSweepExpired_Batches(t *testing.T) {
	h := newHarness(t, func(c *Config) { c.SweepBatchSize = 2 })
	for i := 0; i < 5; i++ {
		h.submitExpiring(t, time.Minute)
	}
	h.clock.Advance(time.Hour)

	n, err := h.engine.SweepExpired(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 5, n)

	pending, err := h.engine.ListPending(context.Background(), store.ActionFilter{})
	require.NoError(t, err)
	assert.Empty(t, pending)
}

type countingSweeper struct {
	calls atomic.Int32
}

func (c *countingSweeper) SweepExpired(context.Context) (int, error) {
	c.calls.Add(1)
	return 0, nil
}

type panickingSweeper struct {
	calls atomic.Int32
}

func (p *panickingSweeper) SweepExpired(context.Context) (int, error) {
	p.calls.Add(1)
	panic("boom")
}

func TestSweeper_Lifecycle(t *testing.T) {
	target := &countingSweeper{}
	s, err := NewSweeper(target, zaptest.NewLogger(t), WithSweepInterval(10*time.Millisecond))
	require.NoError(t, err)

	require.NoError(t, s.Start(context.Background()))
	assert.Error(t, s.Start(context.Background()), "second start must fail")

	assert.Eventually(t, func() bool { return target.calls.Load() >= 2 }, time.Second, 5*time.Millisecond)

	s.Stop()
	s.Stop()
	stopped := target.calls.Load()
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, stopped, target.calls.Load())

	require.NoError(t, s.Start(context.Background()), "restart after stop")
	s.Stop()
}

func TestSweeper_RecoversFromPanic(t *testing.T) {
	target := &panickingSweeper{}
	s, err := NewSweeper(target, zaptest.NewLogger(t), WithSweepInterval(5*time.Millisecond))
	require.NoError(t, err)
	require.NoError(t, s.Start(context.Background()))
	defer s.Stop()

	assert.Eventually(t, func() bool { return target.calls.Load() >= 3 }, time.Second, 5*time.Millisecond)
}

func TestNewSweeper_NilTarget(t *testing.T) {
	_, err := NewSweeper(nil, nil)
	assert.Error(t, err)
}
