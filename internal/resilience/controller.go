// Package resilience implements the Controller that owns venue lifecycle
// (registration, admin disable) and the two resilience hooks named in
// spec §1: DisableVenue and RaiseConfirmationThreshold. Grounded on the
// teacher's internal/infrastructure/providers/circuitbreakers.go for the
// per-venue breaker/envelope wiring pattern.
package resilience

import (
	"context"
	"fmt"
	"sync"

	"github.com/sawpanic/goldrouter/internal/apifront"
	"github.com/sawpanic/goldrouter/internal/audit"
	"github.com/sawpanic/goldrouter/internal/venue"
	venueerr "github.com/sawpanic/goldrouter/internal/venue/errors"
	"github.com/sawpanic/goldrouter/internal/venue/reliability"
)

// Entry is one managed venue: its adapter, envelope, and the capability
// set needed to satisfy spec §4.1's "adapter" role uniformly across
// exchange and chain kinds.
type Entry struct {
	Adapter  venue.Adapter
	Envelope *reliability.Envelope
	Kind     venue.Kind

	// SetConfirmationThreshold is set only for chain entries (spec §7
	// RaiseConfirmationThreshold); nil for exchange entries.
	SetConfirmationThreshold func(n uint64) error
}

// Controller owns the set of registered venues and is the single place
// that disables/re-enables them, so the API front, portfolio aggregator,
// and trading engine all observe the same lifecycle state.
type Controller struct {
	mu      sync.RWMutex
	entries map[string]*Entry
	sink    audit.Sink
}

func NewController(sink audit.Sink) *Controller {
	return &Controller{entries: make(map[string]*Entry), sink: sink}
}

func (c *Controller) Add(id string, e *Entry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[id] = e
}

func (c *Controller) Get(id string) (*Entry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[id]
	return e, ok
}

// List satisfies apifront.Registry for GET /connectors and GET /health.
func (c *Controller) List() []apifront.ConnectorStatus {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]apifront.ConnectorStatus, 0, len(c.entries))
	for id, e := range c.entries {
		out = append(out, apifront.ConnectorStatus{
			VenueID:      id,
			Kind:         e.Kind,
			Status:       venue.Status(e.Envelope.Status()),
			BreakerState: e.Envelope.BreakerState(),
			ErrorRate:    e.Envelope.ErrorRate(),
			LatencyMs:    float64(e.Envelope.Latency().Milliseconds()),
		})
	}
	return out
}

// RegisterVenue satisfies apifront.Registry for POST /admin/venues. It
// rejects an id that is already registered and otherwise installs a
// placeholder entry into the lookup used by List/DisableVenue: the entry
// records the kind and has no adapter wiring, and its breaker is forced
// open so /health and /connectors report it as offline until Add replaces
// it with a wired entry.
func (c *Controller) RegisterVenue(ctx context.Context, venueID string, kind venue.Kind) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.entries[venueID]; exists {
		return venueerr.New(venueerr.ValidationError, "venue already registered")
	}
	env := reliability.NewEnvelope(venueID, reliability.NewLimiter(10, 20),
		reliability.NewBreaker(reliability.Config{Name: venueID, FailureThreshold: 5}), reliability.RetryConfig{})
	env.ForceOpen()
	c.entries[venueID] = &Entry{Kind: kind, Envelope: env}

	c.emit("venue_registered", venueID, fmt.Sprintf("kind=%s", kind))
	return nil
}

// DisableVenue is the first resilience hook of spec §7: it forces the
// venue's breaker open without generating real traffic, so the portfolio
// aggregator and trading engine observe it as unavailable on their next
// call.
func (c *Controller) DisableVenue(ctx context.Context, venueID string) error {
	c.mu.RLock()
	e, ok := c.entries[venueID]
	c.mu.RUnlock()
	if !ok {
		return venueerr.New(venueerr.NotFound, "venue not registered")
	}

	e.Envelope.ForceOpen()
	c.emit("disable_venue", venueID, "breaker forced open")
	return nil
}

// RaiseConfirmationThreshold is the second resilience hook of spec §7: it
// raises a chain venue's required confirmation count, exercised to
// simulate a slower-finality chain during a resilience scenario.
func (c *Controller) RaiseConfirmationThreshold(ctx context.Context, venueID string, n uint64) error {
	c.mu.RLock()
	e, ok := c.entries[venueID]
	c.mu.RUnlock()
	if !ok {
		return venueerr.New(venueerr.NotFound, "venue not registered")
	}
	if e.SetConfirmationThreshold == nil {
		return venueerr.New(venueerr.ValidationError, "venue does not support confirmation thresholds")
	}
	if err := e.SetConfirmationThreshold(n); err != nil {
		return err
	}
	c.emit("raise_confirmation_threshold", venueID, fmt.Sprintf("n=%d", n))
	return nil
}

func (c *Controller) emit(action, venueID, detail string) {
	if c.sink == nil {
		return
	}
	_, _ = c.sink.Append(audit.KindResilienceAction, audit.ResilienceActionDetails{
		Action:  action,
		VenueID: venueID,
		Detail:  detail,
	}, "resilience", venueID)
}
