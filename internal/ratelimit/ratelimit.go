// Package ratelimit provides token-bucket limiters keyed by caller identity.
//
// Agents are limited per (company, agent) so that one runaway agent cannot
// flood the review queue of every tenant.
package ratelimit

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// DefaultIdleTTL is how long an unused key keeps its bucket.
const DefaultIdleTTL = time.Hour

type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// Keyed holds one limiter per key. A nil *Keyed allows everything.
type Keyed struct {
	limit   rate.Limit
	burst   int
	idleTTL time.Duration
	now     func() time.Time

	mu          sync.Mutex
	buckets     map[string]*bucket
	lastCleanup time.Time
}

// New creates a keyed limiter allowing perSecond events per key with the
// given burst. perSecond <= 0 returns nil, which disables limiting.
func New(perSecond float64, burst int) *Keyed {
	if perSecond <= 0 {
		return nil
	}
	if burst < 1 {
		burst = 1
	}
	return &Keyed{
		limit:   rate.Limit(perSecond),
		burst:   burst,
		idleTTL: DefaultIdleTTL,
		now:     time.Now,
		buckets: make(map[string]*bucket),
	}
}

// Key joins the parts of a caller identity.
func Key(company, agent string) string {
	return company + "/" + agent
}

// Allow reports whether key may proceed now, consuming a token if so.
func (k *Keyed) Allow(key string) bool {
	if k == nil {
		return true
	}
	now := k.now()

	k.mu.Lock()
	defer k.mu.Unlock()

	if now.Sub(k.lastCleanup) > k.idleTTL {
		for key, b := range k.buckets {
			if now.Sub(b.lastSeen) > k.idleTTL {
				delete(k.buckets, key)
			}
		}
		k.lastCleanup = now
	}

	b, ok := k.buckets[key]
	if !ok {
		b = &bucket{limiter: rate.NewLimiter(k.limit, k.burst)}
		k.buckets[key] = b
	}
	b.lastSeen = now
	return b.limiter.AllowN(now, 1)
}

// Len returns the number of tracked keys.
func (k *Keyed) Len() int {
	if k == nil {
		return 0
	}
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.buckets)
}
