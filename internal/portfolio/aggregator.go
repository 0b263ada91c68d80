// Package portfolio implements the Portfolio Aggregator of spec §4.2: a
// fan-out/fan-in balance refresh across every registered venue, gram
// normalization, and an immutable snapshot. Grounded on the teacher's
// concurrent-fetch shape in internal/application's scan orchestration
// (bounded goroutine fan-out with a per-call deadline, each result written
// to its own slice slot and joined with a WaitGroup) generalized from scan candidates to venue holdings.
package portfolio

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/sawpanic/goldrouter/internal/venue"
)

// troyOunceToGram is the exact XAUt conversion constant (spec §4.2, §6
// "bit-exact").
var troyOunceToGram = decimal.RequireFromString("31.1034768")

// kauToGram is the KAU conversion constant: 1.
var kauToGram = decimal.NewFromInt(1)

// ToGrams applies the one conversion rule per symbol (spec §4.2). Unknown
// symbols normalize to zero and are flagged for user review.
func ToGrams(symbol string, native decimal.Decimal) (grams decimal.Decimal, unknown bool) {
	switch symbol {
	case "XAUt":
		return native.Mul(troyOunceToGram), false
	case "KAU":
		return native.Mul(kauToGram), false
	default:
		return decimal.Zero, true
	}
}

// Source is the minimal query surface the aggregator needs from a
// registered venue: a balance lookup and the venue's own Info for
// capability/status reporting. internal/venue.Adapter satisfies this.
type Source interface {
	Info() venue.Info
	GetBalance(ctx context.Context, symbol string) (venue.Holding, error)
}

// Registration pairs a Source with the symbol it should be queried for and
// a label describing its runtime health, independent of the Source's own
// capability flags (e.g. a breaker-open venue is a registered, capable
// Source that is simply unavailable right now).
type Registration struct {
	Source       Source
	Symbol       string
	HealthStatus func() venue.Status // current derived status, e.g. envelope.Status
}

// VenueHolding is one venue's contribution to a Snapshot.
type VenueHolding struct {
	VenueID     string
	Symbol      string
	Native      decimal.Decimal
	Grams       decimal.Decimal
	Available   bool
	UnknownSym  bool
	LastSeen    time.Time
	FailureNote string
}

// Snapshot is the immutable result of one refresh (spec §3 "Portfolio
// Snapshot ... snapshot is immutable").
type Snapshot struct {
	TotalGrams decimal.Decimal
	Holdings   []VenueHolding
	Status     venue.Status
	BuiltAt    time.Time
}

// Aggregator holds the current registrations and the last snapshot
// (spec §4.2 "held as 'latest'; older copies discarded").
type Aggregator struct {
	mu            sync.RWMutex
	registrations []Registration
	lastSeen      map[string]time.Time
	latest        *Snapshot

	perVenueDeadline time.Duration
}

// New creates an Aggregator with the given per-venue call deadline
// (spec §4.2 "wait with a per-venue deadline").
func New(perVenueDeadline time.Duration) *Aggregator {
	return &Aggregator{
		lastSeen:         make(map[string]time.Time),
		perVenueDeadline: perVenueDeadline,
	}
}

// Register adds a venue to the fan-out set. Registration is append-only
// from the aggregator's point of view; venue lifecycle (enable/disable)
// is managed by internal/resilience and internal/goldconfig.
func (a *Aggregator) Register(reg Registration) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.registrations = append(a.registrations, reg)
}

type fetchResult struct {
	holding VenueHolding
}

// Refresh performs the fan-out/fan-in balance query described in spec
// §4.2. With zero registered venues the result is vacuously healthy with
// totalGrams = 0 (spec §4.2 "With zero venues registered, status is
// healthy (vacuous)").
func (a *Aggregator) Refresh(ctx context.Context) Snapshot {
	a.mu.RLock()
	regs := make([]Registration, len(a.registrations))
	copy(regs, a.registrations)
	a.mu.RUnlock()

	results := make([]fetchResult, len(regs))
	var wg sync.WaitGroup
	for i, reg := range regs {
		wg.Add(1)
		go func(i int, reg Registration) {
			defer wg.Done()
			results[i] = a.fetchOne(ctx, reg)
		}(i, reg)
	}
	wg.Wait()

	snap := Snapshot{TotalGrams: decimal.Zero, BuiltAt: time.Now().UTC()}
	availableCount, degradedOrUnavailableCount := 0, 0
	for _, r := range results {
		snap.Holdings = append(snap.Holdings, r.holding)
		if r.holding.Available {
			snap.TotalGrams = snap.TotalGrams.Add(r.holding.Grams)
			availableCount++
		} else {
			degradedOrUnavailableCount++
		}
	}

	switch {
	case len(regs) == 0:
		snap.Status = venue.StatusHealthy
	case availableCount == 0:
		snap.Status = venue.StatusOffline
	case degradedOrUnavailableCount > 0:
		snap.Status = venue.StatusDegraded
	default:
		snap.Status = a.allHealthyOrDegraded(regs)
	}

	a.mu.Lock()
	a.latest = &snap
	a.mu.Unlock()

	log.Debug().Int("venues", len(regs)).Str("status", string(snap.Status)).Str("totalGrams", snap.TotalGrams.String()).Msg("portfolio refreshed")
	return snap
}

// allHealthyOrDegraded is the fine-grained check when every venue is
// available: status is healthy only if every available venue is also
// reporting healthy (spec §4.2 "healthy iff all registered venues are
// available and healthy").
func (a *Aggregator) allHealthyOrDegraded(regs []Registration) venue.Status {
	for _, reg := range regs {
		if reg.HealthStatus == nil {
			continue
		}
		if reg.HealthStatus() != venue.StatusHealthy {
			return venue.StatusDegraded
		}
	}
	return venue.StatusHealthy
}

func (a *Aggregator) fetchOne(ctx context.Context, reg Registration) fetchResult {
	info := reg.Source.Info()
	callCtx, cancel := context.WithTimeout(ctx, a.perVenueDeadline)
	defer cancel()

	holding, err := reg.Source.GetBalance(callCtx, reg.Symbol)

	a.mu.Lock()
	if err == nil {
		a.lastSeen[info.ID] = time.Now().UTC()
	}
	last := a.lastSeen[info.ID]
	a.mu.Unlock()

	if err != nil {
		return fetchResult{holding: VenueHolding{
			VenueID:     info.ID,
			Symbol:      reg.Symbol,
			Available:   false,
			LastSeen:    last,
			FailureNote: err.Error(),
		}}
	}

	grams, unknown := ToGrams(holding.Symbol, holding.Native)
	status := venue.StatusHealthy
	if reg.HealthStatus != nil {
		status = reg.HealthStatus()
	}

	return fetchResult{holding: VenueHolding{
		VenueID:    info.ID,
		Symbol:     holding.Symbol,
		Native:     holding.Native,
		Grams:      grams,
		Available:  status != venue.StatusOffline,
		UnknownSym: unknown,
		LastSeen:   holding.SampledAt,
	}}
}

// Latest returns the most recent snapshot without forcing a refresh, or
// the zero Snapshot if none has run yet.
func (a *Aggregator) Latest() (Snapshot, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.latest == nil {
		return Snapshot{}, false
	}
	return *a.latest, true
}
