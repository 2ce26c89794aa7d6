package rules

import (
	"context"
	"sync"
	"time"
)

// DefaultCacheTTL bounds how long a rule edit made elsewhere takes to reach
// the matcher.
const DefaultCacheTTL = 5 * time.Second

type cacheEntry struct {
	rules   []*Rule
	expires time.Time
}

// CachedSource caches ActiveRules results per scope for a fixed TTL.
// Invalidate drops everything; callers invoke it after local rule mutations.
// Expired scopes are pruned on the next load at most once per TTL, so the
// map holds only scopes read within roughly the last two TTLs.
type CachedSource struct {
	source Source
	ttl    time.Duration
	now    func() time.Time

	mu        sync.RWMutex
	entries   map[Scope]cacheEntry
	lastPrune time.Time
}

// NewCachedSource wraps source. A ttl <= 0 disables caching.
func NewCachedSource(source Source, ttl time.Duration) *CachedSource {
	return &CachedSource{
		source:  source,
		ttl:     ttl,
		now:     time.Now,
		entries: make(map[Scope]cacheEntry),
	}
}

// ActiveRules returns cached rules for scope, loading from the source on a
// miss. Callers get copies and may not mutate the cache through them.
func (c *CachedSource) ActiveRules(ctx context.Context, scope Scope) ([]*Rule, error) {
	if c.ttl <= 0 {
		return c.source.ActiveRules(ctx, scope)
	}

	now := c.now()
	c.mu.RLock()
	entry, ok := c.entries[scope]
	c.mu.RUnlock()
	if ok && now.Before(entry.expires) {
		return cloneRules(entry.rules), nil
	}

	loaded, err := c.source.ActiveRules(ctx, scope)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	if now.Sub(c.lastPrune) >= c.ttl {
		c.prune(now)
	}
	c.entries[scope] = cacheEntry{rules: cloneRules(loaded), expires: now.Add(c.ttl)}
	c.mu.Unlock()

	return loaded, nil
}

// prune drops expired entries. c.mu must be held for writing.
func (c *CachedSource) prune(now time.Time) {
	for scope, e := range c.entries {
		if !now.Before(e.expires) {
			delete(c.entries, scope)
		}
	}
	c.lastPrune = now
}

// Invalidate drops every cached scope.
func (c *CachedSource) Invalidate() {
	c.mu.Lock()
	c.entries = make(map[Scope]cacheEntry)
	c.mu.Unlock()
}

// Len returns the number of cached scopes.
func (c *CachedSource) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

func cloneRules(in []*Rule) []*Rule {
	out := make([]*Rule, len(in))
	for i, r := range in {
		out[i] = r.Clone()
	}
	return out
}
