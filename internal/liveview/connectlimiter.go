package liveview

import (
	"sync"
	"time"
)

// connectLimiter enforces a maximum number of new WebSocket upgrade
// attempts within a sliding time window, adapted from the teacher's
// internal/http.SlidingWindowLimiter — folded directly into this package
// rather than kept as its own generic internal/http home, since liveview's
// connect gate is the only caller that ever exercised it (the admin REST
// rate limiter it originally also served, internal/http/handlers.go, has
// no SPEC_FULL.md counterpart and was deleted). Named and scoped to what
// ServeHTTP actually needs: one shared gate on new connection attempts,
// not a per-caller or per-route limiter.
type connectLimiter struct {
	window time.Duration
	limit  int
	now    func() time.Time

	mu      sync.Mutex
	attempt []time.Time
}

// newConnectLimiter constructs a limiter allowing up to limit new
// connection attempts per window. A non-positive window or limit disables
// the gate (Allow always returns true).
func newConnectLimiter(window time.Duration, limit int, timeSource func() time.Time) *connectLimiter {
	if window <= 0 || limit <= 0 {
		return &connectLimiter{window: window, limit: limit}
	}
	if timeSource == nil {
		timeSource = time.Now
	}
	return &connectLimiter{window: window, limit: limit, now: timeSource}
}

// Allow reports whether a new connection attempt may proceed under the
// current rate limit.
func (l *connectLimiter) Allow() bool {
	if l == nil || l.limit <= 0 || l.window <= 0 {
		return true
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	cutoff := now.Add(-l.window)
	kept := l.attempt[:0]
	for _, ts := range l.attempt {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	l.attempt = kept
	if len(l.attempt) >= l.limit {
		return false
	}
	l.attempt = append(l.attempt, now)
	return true
}
