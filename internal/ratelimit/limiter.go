// Package ratelimit implements the per-connection/per-user token
// bucket rate limiting spec §4.4 requires for inbound commands,
// generalized from a single IP-keyed bucket (the teacher's pack
// neighbour TheMinecraftGuyGuru-vidfriends/backend/internal/middleware/rate_limiter.go)
// into one bucket per (subject, command kind) pair.
package ratelimit

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// Limiter tracks buckets keyed by an arbitrary subject string
// (typically "conn:<id>:<kind>" or "user:<id>:<kind>") with TTL-based
// garbage collection of stale entries.
type Limiter struct {
	mu       sync.Mutex
	visitors map[string]*visitor
	ttl      time.Duration
	now      func() time.Time
}

func New(ttl time.Duration) *Limiter {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &Limiter{
		visitors: make(map[string]*visitor),
		ttl:      ttl,
		now:      time.Now,
	}
}

// Allow reports whether an event identified by key is permitted under
// a budget of perMinute events per minute, creating the bucket on
// first use and lazily sweeping expired buckets.
func (l *Limiter) Allow(key string, perMinute int) bool {
	if perMinute <= 0 {
		perMinute = 1
	}
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	v, ok := l.visitors[key]
	if !ok {
		v = &visitor{limiter: rate.NewLimiter(rate.Limit(float64(perMinute)/60.0), perMinute)}
		l.visitors[key] = v
	}
	v.lastSeen = now
	l.gcLocked(now)

	return v.limiter.Allow()
}

func (l *Limiter) gcLocked(now time.Time) {
	for key, v := range l.visitors {
		if now.Sub(v.lastSeen) > l.ttl {
			delete(l.visitors, key)
		}
	}
}
