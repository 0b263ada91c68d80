package reliability

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	venueerr "github.com/sawpanic/goldrouter/internal/venue/errors"
)

// Envelope concentrates the reliability envelope of spec §4.1 around a
// single venue: rate limiter, circuit breaker, retry policy, and health
// tracker. Per call the rate limiter is waited on first, then a retry loop
// runs in which every attempt passes through the circuit breaker, and the
// outcome is recorded by the health tracker.
// Adapted from the teacher's per-provider wiring in
// internal/infrastructure/providers/circuitbreakers.go, generalized from a
// "provider" notion to venue.Info and wired to the closed error taxonomy
// instead of bare fmt.Errorf.
type Envelope struct {
	VenueID string

	limiter *Limiter
	breaker *Breaker
	retry   RetryConfig
	health  *HealthTracker
}

func NewEnvelope(venueID string, limiter *Limiter, breaker *Breaker, retry RetryConfig) *Envelope {
	return &Envelope{
		VenueID: venueID,
		limiter: limiter,
		breaker: breaker,
		retry:   retry,
		health:  NewHealthTracker(5 * time.Minute),
	}
}

// Call runs fn through the full envelope. fn should return a
// *venueerr.Err (wrapped in the `error` interface) on failure so the
// retry/health layers can classify it; any other error is treated as
// INTERNAL_ERROR and is never retried.
func (e *Envelope) Call(ctx context.Context, fn func(ctx context.Context) (any, error)) (any, error) {
	if err := e.limiter.Wait(ctx); err != nil {
		e.health.RecordFailure()
		return nil, err
	}

	start := time.Now()
	result, err := e.retry.Do(ctx, func() (any, error) {
		breakerResult, berr := e.breaker.Execute(func() (any, error) {
			r, callErr := fn(ctx)
			if callErr != nil {
				if _, ok := venueerr.As(callErr); !ok {
					callErr = venueerr.Wrap(venueerr.InternalError, "unclassified adapter error", callErr)
				}
				return nil, callErr
			}
			return r, nil
		})
		return breakerResult, berr
	})

	latency := time.Since(start)
	if err != nil {
		e.health.RecordFailure()
		log.Debug().Str("venue", e.VenueID).Err(err).Dur("latency", latency).Msg("venue call failed")
		return nil, err
	}
	e.health.RecordSuccess(latency)
	return result, nil
}

// Status reports the venue's current derived Status (spec §4.1 point 4).
func (e *Envelope) Status() string {
	return e.health.Status(e.breaker.State())
}

func (e *Envelope) ErrorRate() float64        { return e.health.ErrorRate() }
func (e *Envelope) Latency() time.Duration    { return e.health.Latency() }
func (e *Envelope) LastSeen() time.Time       { return e.health.LastSeen() }
func (e *Envelope) BreakerState() string      { return e.breaker.State() }
func (e *Envelope) RateLimiterTokens() float64 { return e.limiter.Tokens() }

// ForceOpen and Reset expose the breaker's forced-open override for the
// resilience sub-mode's DisableVenue hook (spec §7).
func (e *Envelope) ForceOpen() { e.breaker.ForceOpen() }
func (e *Envelope) Reset()     { e.breaker.Reset() }
