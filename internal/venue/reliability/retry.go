package reliability

import (
	"context"
	"math"
	"time"

	venueerr "github.com/sawpanic/goldrouter/internal/venue/errors"
)

// RetryConfig holds the backoff parameters of spec §4.1 point 3:
// delay = min(baseDelay * multiplier^attempt, maxDelay).
type RetryConfig struct {
	MaxRetries int
	BaseDelay  time.Duration
	Multiplier float64
	MaxDelay   time.Duration
}

func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries: 3,
		BaseDelay:  200 * time.Millisecond,
		Multiplier: 2.0,
		MaxDelay:   5 * time.Second,
	}
}

func (c RetryConfig) delay(attempt int) time.Duration {
	d := float64(c.BaseDelay) * math.Pow(c.Multiplier, float64(attempt))
	if d > float64(c.MaxDelay) {
		d = float64(c.MaxDelay)
	}
	return time.Duration(d)
}

// Do runs fn, retrying only classified-transient errors (spec §7: rate
// limit, network, venue/5xx) up to MaxRetries times with exponential
// backoff. Non-retryable errors (auth, validation, permission, slippage,
// breaker-open) short-circuit immediately. On final failure the returned
// error carries the retry count attached (spec §7 propagation policy).
func (c RetryConfig) Do(ctx context.Context, fn func() (any, error)) (any, error) {
	var lastErr error
	for attempt := 0; attempt <= c.MaxRetries; attempt++ {
		result, err := fn()
		if err == nil {
			return result, nil
		}
		lastErr = err

		ve, ok := venueerr.As(err)
		if !ok || !ve.Retryable() {
			return nil, err
		}
		if attempt == c.MaxRetries {
			return nil, ve.WithRetries(attempt)
		}

		select {
		case <-ctx.Done():
			return nil, venueerr.Wrap(venueerr.NetworkError, "retry aborted by context", ctx.Err())
		case <-time.After(c.delay(attempt)):
		}
	}
	return nil, lastErr
}
