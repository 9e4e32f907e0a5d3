package ratelimit

import (
	"sync"
	"time"

	ratelib "golang.org/x/time/rate"
)

// Limiter manages a collection of token bucket rate limiters, one per client.
type Limiter struct {
	// mu protects the entries map.
	mu sync.RWMutex
	// entries stores rate.Limiter instances, keyed by client IP.
	entries map[string]*entry
	now     func() time.Time
}

type entry struct {
	lim *ratelib.Limiter
	// lastSeen is unix nanoseconds, updated under the read lock.
	lastSeen int64
	seenMu   sync.Mutex
}

// Config defines the parameters for a token bucket rate limiter.
type Config struct {
	// RequestsPerSecond is the average number of requests per second allowed.
	RequestsPerSecond float64
	// Burst is the maximum number of requests that can exceed the rate limit instantaneously.
	Burst int
}

// NewLimiter creates and returns a new Limiter.
func NewLimiter() *Limiter {
	return &Limiter{
		entries: make(map[string]*entry),
		now:     time.Now,
	}
}

// Allow checks if a request is allowed for the given key, updating the limiter's
// configuration (rps/burst) if it has changed.
func (l *Limiter) Allow(key string, cfg Config) bool {
	l.mu.RLock()
	e, ok := l.entries[key]
	l.mu.RUnlock()

	if !ok {
		l.mu.Lock()
		// Double-check
		e, ok = l.entries[key]
		if !ok {
			e = &entry{lim: ratelib.NewLimiter(ratelib.Limit(cfg.RequestsPerSecond), cfg.Burst)}
			l.entries[key] = e
		}
		l.mu.Unlock()
	}

	now := l.now()
	e.seenMu.Lock()
	e.lastSeen = now.UnixNano()
	e.seenMu.Unlock()

	// Hot reload may have changed the limits.
	if e.lim.Limit() != ratelib.Limit(cfg.RequestsPerSecond) {
		e.lim.SetLimitAt(now, ratelib.Limit(cfg.RequestsPerSecond))
	}
	if e.lim.Burst() != cfg.Burst {
		e.lim.SetBurstAt(now, cfg.Burst)
	}

	return e.lim.AllowN(now, 1)
}

// Prune drops limiters not used for idle and returns how many were removed.
func (l *Limiter) Prune(idle time.Duration) int {
	cutoff := l.now().Add(-idle).UnixNano()

	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for k, e := range l.entries {
		e.seenMu.Lock()
		stale := e.lastSeen < cutoff
		e.seenMu.Unlock()
		if stale {
			delete(l.entries, k)
			n++
		}
	}
	return n
}

// Len is the number of tracked clients.
func (l *Limiter) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries)
}
