package reliability

import (
	"context"

	"golang.org/x/time/rate"

	venueerr "github.com/sawpanic/goldrouter/internal/venue/errors"
)

// Limiter is a per-venue token-bucket rate limiter. Adapted from the
// teacher's internal/net/ratelimit.Limiter, narrowed to a single venue
// (the envelope keeps one Limiter per registered venue rather than one
// Limiter keyed by host).
type Limiter struct {
	rl *rate.Limiter
}

// NewLimiter builds a limiter with the given sustained rate and burst.
func NewLimiter(requestsPerSecond float64, burstSize int) *Limiter {
	return &Limiter{rl: rate.NewLimiter(rate.Limit(requestsPerSecond), burstSize)}
}

// Wait blocks until a token is available or ctx's deadline (bounded per
// spec §4.1 point 1: "wait up to a bounded time for a token, then fail").
func (l *Limiter) Wait(ctx context.Context) error {
	if err := l.rl.Wait(ctx); err != nil {
		return venueerr.Wrap(venueerr.RateLimitError, "rate limit wait exceeded deadline", err)
	}
	return nil
}

// Allow reports whether a token is immediately available without consuming
// the caller's deadline budget.
func (l *Limiter) Allow() bool { return l.rl.Allow() }

func (l *Limiter) SetLimit(requestsPerSecond float64) { l.rl.SetLimit(rate.Limit(requestsPerSecond)) }
func (l *Limiter) SetBurst(burst int)                  { l.rl.SetBurst(burst) }

// Tokens reports the current estimated token count, used by health/metrics
// reporting.
func (l *Limiter) Tokens() float64 { return l.rl.Tokens() }
