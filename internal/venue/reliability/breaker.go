package reliability

import (
	"time"

	cb "github.com/sony/gobreaker"

	venueerr "github.com/sawpanic/goldrouter/internal/venue/errors"
)

// Breaker wraps gobreaker with the three-state semantics of spec §4.1
// point 2: trips to open at failureThreshold consecutive failures within
// monitoringPeriod, rejects for recoveryTimeout, then allows one
// half-open probe. Adapted from the teacher's infra/breakers.Breaker,
// generalized to accept the threshold/timeout as constructor parameters
// instead of teacher's hardcoded values.
type Breaker struct {
	name   string
	cb     *cb.CircuitBreaker
	forced bool // set by ForceOpen for the resilience DisableVenue hook
}

// Config holds the tunables named in spec §4.1.
type Config struct {
	Name             string
	FailureThreshold uint32
	MonitoringPeriod time.Duration
	RecoveryTimeout  time.Duration
}

func NewBreaker(cfg Config) *Breaker {
	st := cb.Settings{
		Name:     cfg.Name,
		Interval: cfg.MonitoringPeriod,
		Timeout:  cfg.RecoveryTimeout,
		ReadyToTrip: func(counts cb.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.FailureThreshold
		},
	}
	return &Breaker{name: cfg.Name, cb: cb.NewCircuitBreaker(st)}
}

// Execute runs fn under the breaker. A rejected call (breaker open) is
// surfaced as BreakerOpenError without ever invoking fn, satisfying
// invariant 8 ("without contacting the venue").
func (b *Breaker) Execute(fn func() (any, error)) (any, error) {
	if b.forced || b.cb.State() == cb.StateOpen {
		return nil, venueerr.New(venueerr.BreakerOpenError, "circuit breaker open for "+b.name)
	}
	result, err := b.cb.Execute(fn)
	if err != nil {
		if b.cb.State() == cb.StateOpen {
			return nil, venueerr.Wrap(venueerr.BreakerOpenError, "circuit breaker open for "+b.name, err)
		}
		return nil, err
	}
	return result, nil
}

// State reports the breaker's current state name for health reporting.
func (b *Breaker) State() string {
	if b.forced {
		return cb.StateOpen.String()
	}
	return b.cb.State().String()
}

func (b *Breaker) Counts() cb.Counts { return b.cb.Counts() }

// ForceOpen rejects every call until Reset is called, independent of the
// underlying breaker's own failure counting. Used by the resilience
// sub-mode's DisableVenue hook to simulate an outage without generating
// real traffic.
func (b *Breaker) ForceOpen() { b.forced = true }

// Reset clears a ForceOpen override.
func (b *Breaker) Reset() { b.forced = false }
