package portfolio

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sawpanic/goldrouter/internal/venue"
)

type fakeSource struct {
	info    venue.Info
	holding venue.Holding
	err     error
	delay   time.Duration
}

func (f fakeSource) Info() venue.Info { return f.info }
func (f fakeSource) GetBalance(ctx context.Context, symbol string) (venue.Holding, error) {
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return venue.Holding{}, ctx.Err()
		}
	}
	if f.err != nil {
		return venue.Holding{}, f.err
	}
	return f.holding, nil
}

func TestToGrams_XAUtUsesTroyOunceConstant(t *testing.T) {
	grams, unknown := ToGrams("XAUt", decimal.NewFromInt(1))
	assert.False(t, unknown)
	assert.True(t, grams.Equal(decimal.RequireFromString("31.1034768")))
}

func TestToGrams_KAUIsOneToOne(t *testing.T) {
	grams, unknown := ToGrams("KAU", decimal.NewFromInt(5))
	assert.False(t, unknown)
	assert.True(t, grams.Equal(decimal.NewFromInt(5)))
}

func TestToGrams_UnknownSymbolFlagsZero(t *testing.T) {
	grams, unknown := ToGrams("DOGE", decimal.NewFromInt(100))
	assert.True(t, unknown)
	assert.True(t, grams.IsZero())
}

// TestAggregator_ZeroVenuesIsVacuouslyHealthy is the spec §4.2 edge case:
// with nothing registered, status is healthy and totalGrams is zero.
func TestAggregator_ZeroVenuesIsVacuouslyHealthy(t *testing.T) {
	a := New(time.Second)
	snap := a.Refresh(context.Background())
	assert.Equal(t, venue.StatusHealthy, snap.Status)
	assert.True(t, snap.TotalGrams.IsZero())
	assert.Empty(t, snap.Holdings)
}

// TestAggregator_AllAvailableAndHealthySumsGrams is scenario S1 from
// spec §8.
func TestAggregator_AllAvailableAndHealthySumsGrams(t *testing.T) {
	a := New(time.Second)
	a.Register(Registration{
		Source: fakeSource{
			info:    venue.Info{ID: "v1"},
			holding: venue.Holding{Symbol: "XAUt", Native: decimal.NewFromInt(2)},
		},
		Symbol:       "XAUt",
		HealthStatus: func() venue.Status { return venue.StatusHealthy },
	})
	a.Register(Registration{
		Source: fakeSource{
			info:    venue.Info{ID: "v2"},
			holding: venue.Holding{Symbol: "KAU", Native: decimal.NewFromInt(10)},
		},
		Symbol:       "KAU",
		HealthStatus: func() venue.Status { return venue.StatusHealthy },
	})

	snap := a.Refresh(context.Background())
	assert.Equal(t, venue.StatusHealthy, snap.Status)
	expected := decimal.RequireFromString("31.1034768").Mul(decimal.NewFromInt(2)).Add(decimal.NewFromInt(10))
	assert.True(t, snap.TotalGrams.Equal(expected), "got %s want %s", snap.TotalGrams, expected)
}

// TestAggregator_OneVenueUnavailableDegradesNotOffline matches spec §4.2:
// some available, some not -> degraded.
func TestAggregator_OneVenueUnavailableDegradesNotOffline(t *testing.T) {
	a := New(time.Second)
	a.Register(Registration{
		Source: fakeSource{
			info:    venue.Info{ID: "v1"},
			holding: venue.Holding{Symbol: "XAUt", Native: decimal.NewFromInt(1)},
		},
		Symbol:       "XAUt",
		HealthStatus: func() venue.Status { return venue.StatusHealthy },
	})
	a.Register(Registration{
		Source:       fakeSource{info: venue.Info{ID: "v2"}, err: assertErr},
		Symbol:       "KAU",
		HealthStatus: func() venue.Status { return venue.StatusOffline },
	})

	snap := a.Refresh(context.Background())
	assert.Equal(t, venue.StatusDegraded, snap.Status)
	require.Len(t, snap.Holdings, 2)
}

// TestAggregator_AllUnavailableIsOffline is scenario S6 from spec §8.
func TestAggregator_AllUnavailableIsOffline(t *testing.T) {
	a := New(time.Second)
	a.Register(Registration{
		Source:       fakeSource{info: venue.Info{ID: "v1"}, err: assertErr},
		Symbol:       "XAUt",
		HealthStatus: func() venue.Status { return venue.StatusOffline },
	})

	snap := a.Refresh(context.Background())
	assert.Equal(t, venue.StatusOffline, snap.Status)
	assert.False(t, snap.Holdings[0].Available)
}

// TestAggregator_PerVenueDeadlineExcludesSlowVenue exercises the bounded
// per-venue wait of spec §4.2.
func TestAggregator_PerVenueDeadlineExcludesSlowVenue(t *testing.T) {
	a := New(20 * time.Millisecond)
	a.Register(Registration{
		Source:       fakeSource{info: venue.Info{ID: "slow"}, delay: 200 * time.Millisecond},
		Symbol:       "XAUt",
		HealthStatus: func() venue.Status { return venue.StatusDegraded },
	})

	snap := a.Refresh(context.Background())
	require.Len(t, snap.Holdings, 1)
	assert.False(t, snap.Holdings[0].Available)
}

func TestAggregator_LatestReturnsFalseBeforeFirstRefresh(t *testing.T) {
	a := New(time.Second)
	_, ok := a.Latest()
	assert.False(t, ok)
}

type sinkError string

func (e sinkError) Error() string { return string(e) }

var assertErr = sinkError("venue unreachable")
