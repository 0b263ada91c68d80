package apifront

import (
	"sync"
	"time"
)

// ClientLimiter implements the per-client-identity sliding window of spec
// §4.5: "sliding window of windowMs, max maxRequests; on exceed, 429 with
// resetTime". Adapted from the shape of internal/venue/reliability.Limiter
// (token-bucket) generalized to a sliding log since the window here keys
// on client identity rather than venue.
type ClientLimiter struct {
	mu          sync.Mutex
	windowMs    int64
	maxRequests int
	history     map[string][]time.Time
}

func NewClientLimiter(windowMs int64, maxRequests int) *ClientLimiter {
	return &ClientLimiter{
		windowMs:    windowMs,
		maxRequests: maxRequests,
		history:     make(map[string][]time.Time),
	}
}

// Allow reports whether identity may proceed now, and if not, when the
// window resets.
func (l *ClientLimiter) Allow(identity string) (allowed bool, resetTime time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	windowStart := now.Add(-time.Duration(l.windowMs) * time.Millisecond)

	events := l.history[identity]
	kept := events[:0]
	for _, t := range events {
		if t.After(windowStart) {
			kept = append(kept, t)
		}
	}

	if len(kept) >= l.maxRequests {
		resetTime = kept[0].Add(time.Duration(l.windowMs) * time.Millisecond)
		l.history[identity] = kept
		return false, resetTime
	}

	kept = append(kept, now)
	l.history[identity] = kept
	return true, time.Time{}
}

// ClientIdentity derives the rate-limit key from the forwarded-for header,
// falling back to "unknown" (spec §4.5).
func ClientIdentity(forwardedFor string) string {
	if forwardedFor == "" {
		return "unknown"
	}
	return forwardedFor
}
