package rules

import (
	"context"
	"testing"
	"time"

	"github.com/fyrsmithlabs/govern/internal/action"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCachedSource_TTL(t *testing.T) {
	src := &staticSource{rules: []*Rule{ruleWith("r", action.RiskLow, 0, nil)}}
	cache := NewCachedSource(src, time.Minute)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	cache.now = func() time.Time { return now }

	ctx := context.Background()
	_, err := cache.ActiveRules(ctx, testScope)
	require.NoError(t, err)
	_, err = cache.ActiveRules(ctx, testScope)
	require.NoError(t, err)
	assert.Equal(t, 1, src.calls, "second read served from cache")
	assert.Equal(t, 1, cache.Len())

	now = now.Add(2 * time.Minute)
	_, err = cache.ActiveRules(ctx, testScope)
	require.NoError(t, err)
	assert.Equal(t, 2, src.calls, "expired entry reloads")

	other := testScope
	other.Agent = "pricing-agent"
	_, err = cache.ActiveRules(ctx, other)
	require.NoError(t, err)
	assert.Equal(t, 3, src.calls, "scopes are cached independently")
}

func TestCachedSource_PrunesExpiredScopes(t *testing.T) {
	src := &staticSource{}
	cache := NewCachedSource(src, time.Minute)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	cache.now = func() time.Time { return now }
	ctx := context.Background()

	for _, agent := range []string{"a1", "a2", "a3", "a4", "a5"} {
		scope := testScope
		scope.Agent = agent
		_, err := cache.ActiveRules(ctx, scope)
		require.NoError(t, err)
	}
	assert.Equal(t, 5, cache.Len())

	now = now.Add(90 * time.Second)
	_, err := cache.ActiveRules(ctx, testScope)
	require.NoError(t, err)
	assert.Equal(t, 1, cache.Len(), "expired scopes are dropped on the next load")

	scope := testScope
	scope.Agent = "a6"
	_, err = cache.ActiveRules(ctx, scope)
	require.NoError(t, err)
	assert.Equal(t, 2, cache.Len(), "live scopes are kept")
}

func TestCachedSource_Invalidate(t *testing.T) {
	src := &staticSource{rules: []*Rule{ruleWith("r", action.RiskLow, 0, nil)}}
	cache := NewCachedSource(src, time.Hour)
	ctx := context.Background()

	_, err := cache.ActiveRules(ctx, testScope)
	require.NoError(t, err)
	cache.Invalidate()
	assert.Zero(t, cache.Len())

	_, err = cache.ActiveRules(ctx, testScope)
	require.NoError(t, err)
	assert.Equal(t, 2, src.calls)
}

func TestCachedSource_Disabled(t *testing.T) {
	src := &staticSource{}
	cache := NewCachedSource(src, 0)
	for i := 0; i < 3; i++ {
		_, err := cache.ActiveRules(context.Background(), testScope)
		require.NoError(t, err)
	}
	assert.Equal(t, 3, src.calls)
}

func TestCachedSource_CallersCannotMutateCache(t *testing.T) {
	src := &staticSource{rules: []*Rule{ruleWith("r", action.RiskLow, 0, nil)}}
	cache := NewCachedSource(src, time.Hour)
	ctx := context.Background()

	got, err := cache.ActiveRules(ctx, testScope)
	require.NoError(t, err)
	got[0].RiskLevel = action.RiskCritical

	again, err := cache.ActiveRules(ctx, testScope)
	require.NoError(t, err)
	assert.Equal(t, action.RiskLow, again[0].RiskLevel)
}
