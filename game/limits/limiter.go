package limits

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"golang.org/x/time/rate"
)

// Buckets idle for less than this are always kept.
const minIdle = time.Minute

type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// Limiter hands out one token bucket per player. Buckets outlive the
// connection and are only dropped once they have sat idle long enough to
// refill, so reconnecting never buys a fresh burst.
type Limiter struct {
	mu        sync.Mutex
	clock     clockwork.Clock
	limit     rate.Limit
	burst     int
	idleAfter time.Duration
	lastSweep time.Time
	buckets   map[string]*bucket
}

// NewLimiter allows perSecond actions per player with the given burst. A
// perSecond of 0 disables limiting.
func NewLimiter(clock clockwork.Clock, perSecond int, burst int) *Limiter {
	limit := rate.Limit(perSecond)
	if perSecond <= 0 {
		limit = rate.Inf
	}
	if burst <= 0 {
		burst = 1
	}

	idleAfter := minIdle
	if perSecond > 0 {
		if refill := time.Duration(burst) * time.Second / time.Duration(perSecond); refill > idleAfter {
			idleAfter = refill
		}
	}

	return &Limiter{
		clock:     clock,
		limit:     limit,
		burst:     burst,
		idleAfter: idleAfter,
		lastSweep: clock.Now(),
		buckets:   make(map[string]*bucket),
	}
}

func (l *Limiter) get(playerID string, now time.Time) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	if now.Sub(l.lastSweep) >= l.idleAfter {
		l.sweep(now)
	}

	b, exists := l.buckets[playerID]
	if !exists {
		b = &bucket{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.buckets[playerID] = b
	}
	b.lastSeen = now
	return b.limiter
}

// sweep drops buckets that are full again. Callers hold mu.
func (l *Limiter) sweep(now time.Time) {
	for playerID, b := range l.buckets {
		if now.Sub(b.lastSeen) >= l.idleAfter {
			delete(l.buckets, playerID)
		}
	}
	l.lastSweep = now
}

func (l *Limiter) Allow(playerID string) bool {
	if l == nil || l.limit == rate.Inf {
		return true
	}

	now := l.clock.Now()
	return l.get(playerID, now).AllowN(now, 1)
}

// LocalCooldown is the in-process counterpart of the redis cooldown, used
// when no redis is configured.
type LocalCooldown struct {
	mu      sync.Mutex
	clock   clockwork.Clock
	expires map[string]time.Time
}

func NewLocalCooldown(clock clockwork.Clock) *LocalCooldown {
	return &LocalCooldown{clock: clock, expires: make(map[string]time.Time)}
}

func (c *LocalCooldown) Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.clock.Now()
	if until, ok := c.expires[key]; ok && now.Before(until) {
		return false, nil
	}
	c.expires[key] = now.Add(ttl)
	return true, nil
}

func (c *LocalCooldown) Release(ctx context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.expires, key)
	return nil
}
