package resilience

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sawpanic/goldrouter/internal/audit"
	"github.com/sawpanic/goldrouter/internal/venue"
	venueerr "github.com/sawpanic/goldrouter/internal/venue/errors"
	"github.com/sawpanic/goldrouter/internal/venue/reliability"
)

func newTestEntry(venueID string) *Entry {
	breaker := reliability.NewBreaker(reliability.Config{Name: venueID, FailureThreshold: 5, MonitoringPeriod: time.Minute, RecoveryTimeout: time.Minute})
	limiter := reliability.NewLimiter(10, 20)
	return &Entry{
		Kind:     venue.KindExchange,
		Envelope: reliability.NewEnvelope(venueID, limiter, breaker, reliability.DefaultRetryConfig()),
	}
}

func TestController_RegisterVenueRejectsDuplicate(t *testing.T) {
	c := NewController(audit.New())
	require.NoError(t, c.RegisterVenue(context.Background(), "v1", venue.KindExchange))

	err := c.RegisterVenue(context.Background(), "v1", venue.KindExchange)
	require.Error(t, err)
	ve, ok := venueerr.As(err)
	require.True(t, ok)
	assert.Equal(t, venueerr.ValidationError, ve.Code)
}

// TestController_DisableVenueForcesBreakerOpen is the resilience hook of
// spec §7: after DisableVenue, the venue reports offline without any call
// reaching it.
func TestController_DisableVenueForcesBreakerOpen(t *testing.T) {
	j := audit.New()
	c := NewController(j)
	c.Add("v1", newTestEntry("v1"))

	require.NoError(t, c.DisableVenue(context.Background(), "v1"))

	list := c.List()
	require.Len(t, list, 1)
	assert.Equal(t, venue.StatusOffline, list[0].Status)

	records := j.Export(time.Time{}, time.Time{})
	require.Len(t, records, 1)
	assert.Equal(t, audit.KindResilienceAction, records[0].Kind)
}

func TestController_DisableVenueUnknownReturnsNotFound(t *testing.T) {
	c := NewController(audit.New())
	err := c.DisableVenue(context.Background(), "missing")
	require.Error(t, err)
	ve, ok := venueerr.As(err)
	require.True(t, ok)
	assert.Equal(t, venueerr.NotFound, ve.Code)
}

func TestController_RaiseConfirmationThresholdRequiresChainSupport(t *testing.T) {
	c := NewController(audit.New())
	c.Add("exchange-v1", newTestEntry("exchange-v1")) // SetConfirmationThreshold is nil

	err := c.RaiseConfirmationThreshold(context.Background(), "exchange-v1", 20)
	require.Error(t, err)
	ve, ok := venueerr.As(err)
	require.True(t, ok)
	assert.Equal(t, venueerr.ValidationError, ve.Code)
}

func TestController_RaiseConfirmationThresholdCallsHook(t *testing.T) {
	c := NewController(audit.New())
	entry := newTestEntry("chain-v1")
	called := 0
	entry.SetConfirmationThreshold = func(n uint64) error {
		called++
		assert.Equal(t, uint64(30), n)
		return nil
	}
	c.Add("chain-v1", entry)

	require.NoError(t, c.RaiseConfirmationThreshold(context.Background(), "chain-v1", 30))
	assert.Equal(t, 1, called)
}

func TestController_ListReportsConnectorStatus(t *testing.T) {
	c := NewController(audit.New())
	c.Add("v1", newTestEntry("v1"))

	list := c.List()
	require.Len(t, list, 1)
	assert.Equal(t, "v1", list[0].VenueID)
	assert.Equal(t, "closed", list[0].BreakerState)
}
