// Package trading implements the Trading Engine of spec §4.3: candidate
// selection, venue scoring, the slippage guard, execution with a single
// fallback retry, and the order state machine. Grounded on the teacher's
// composite-scoring pattern in internal/domain/scoring (a sort.Slice over
// candidates with a multi-key less-function) generalized from momentum
// scores to venue execution quality.
package trading

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/sawpanic/goldrouter/internal/audit"
	"github.com/sawpanic/goldrouter/internal/venue"
	venueerr "github.com/sawpanic/goldrouter/internal/venue/errors"
)

// Venue bundles everything the engine needs from one registered exchange
// venue: the adapter surface, its current derived status, and latency/
// error-rate telemetry (all satisfied by a reliability.Envelope paired
// with its wrapped venue.ExchangeAdapter).
type Venue struct {
	ID        string
	Adapter   venue.ExchangeAdapter
	Status    func() venue.Status
	Latency   func() time.Duration
	ErrorRate func() float64
}

// Engine places protected limit orders across registered exchange venues
// (spec §4.3). Besides the registration list it keeps a copy of every
// accepted order, used to reject backward status transitions.
type Engine struct {
	mu       sync.RWMutex
	venues   map[string]Venue
	sink     audit.Sink
	tracked  map[string]*venue.Order // by "venueID:venueOrderID"
}

func New(sink audit.Sink) *Engine {
	return &Engine{venues: make(map[string]Venue), sink: sink, tracked: make(map[string]*venue.Order)}
}

func (e *Engine) Register(v Venue) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.venues[v.ID] = v
}

func (e *Engine) Unregister(venueID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.venues, venueID)
}

// candidate is one scoring unit for a prospective order.
type candidate struct {
	venue      Venue
	book       venue.OrderBook
	topPrice   decimal.Decimal
	depthInBand decimal.Decimal
}

// PlaceLimitOrder runs the full pre-trade pipeline and execution of spec
// §4.3. quantity/limitPrice are never mutated; a rejection always carries
// a structured *venueerr.Err.
func (e *Engine) PlaceLimitOrder(ctx context.Context, symbol string, side venue.Side, quantity, limitPrice decimal.Decimal, slippageBps int) (venue.Order, error) {
	if quantity.LessThanOrEqual(decimal.Zero) || limitPrice.LessThanOrEqual(decimal.Zero) {
		return venue.Order{}, venueerr.New(venueerr.ValidationError, "quantity and limit price must be positive")
	}

	candidates, err := e.buildCandidates(ctx, symbol, side, quantity, limitPrice, slippageBps)
	if err != nil {
		return venue.Order{}, err
	}
	if len(candidates) == 0 {
		e.emitRisk(symbol, "no candidate venue within slippage band", string(venueerr.SlippageError))
		return venue.Order{}, venueerr.New(venueerr.SlippageError, "no venue quotes sufficient depth within slippage band")
	}

	e.scoreCandidates(candidates, side)

	e.emitOrder(audit.KindOrderPlaced, venue.Order{Symbol: symbol, Side: side, Quantity: quantity, LimitPrice: limitPrice}, candidates[0].venue.ID, "")

	order, err := e.executeOn(ctx, candidates[0].venue, symbol, side, quantity, limitPrice, slippageBps)
	if err == nil {
		e.trackOrder(order)
		e.emitOrder(audit.KindOrderFilled, order, candidates[0].venue.ID, "")
		return order, nil
	}

	if len(candidates) < 2 {
		e.emitOrder(audit.KindOrderFailed, venue.Order{Symbol: symbol, Side: side, Status: venue.OrderRejected}, candidates[0].venue.ID, err.Error())
		return venue.Order{}, venueerr.New(venueerr.VenueError, "primary venue rejected order and no fallback candidate available")
	}

	// Single fallback retry on the next-best candidate (spec §4.3 step 4).
	order, err = e.executeOn(ctx, candidates[1].venue, symbol, side, quantity, limitPrice, slippageBps)
	if err != nil {
		e.emitOrder(audit.KindOrderFailed, venue.Order{Symbol: symbol, Side: side, Status: venue.OrderRejected}, candidates[1].venue.ID, err.Error())
		return venue.Order{}, venueerr.New(venueerr.VenueError, "primary and fallback venues both rejected order")
	}
	e.trackOrder(order)
	e.emitOrder(audit.KindOrderFilled, order, candidates[1].venue.ID, "")
	return order, nil
}

func (e *Engine) buildCandidates(ctx context.Context, symbol string, side venue.Side, quantity, limitPrice decimal.Decimal, slippageBps int) ([]candidate, error) {
	e.mu.RLock()
	venues := make([]Venue, 0, len(e.venues))
	for _, v := range e.venues {
		venues = append(venues, v)
	}
	e.mu.RUnlock()

	var candidates []candidate
	for _, v := range venues {
		if v.Status != nil && v.Status() == venue.StatusOffline {
			continue
		}
		info := v.Adapter.Info()
		if !info.HasCapability(venue.CapLimitOrders) {
			continue
		}

		book, err := v.Adapter.GetOrderBook(ctx, symbol, 50)
		if err != nil {
			continue // venue unreachable for this symbol; excluded, not fatal
		}

		topPrice, depth, ok := evaluateBook(book, side, quantity, limitPrice, slippageBps)
		if !ok {
			continue
		}
		candidates = append(candidates, candidate{venue: v, book: book, topPrice: topPrice, depthInBand: depth})
	}
	return candidates, nil
}

// evaluateBook computes the top-of-book price for side, the cumulative
// depth available within slippageBps of limitPrice, and the quantity-
// weighted average fill price across the requested quantity (spec §4.3
// step 3, both clauses). ok is false when either depth within the band is
// less than quantity, or the average fill price across quantity would
// deviate from limitPrice by more than slippageBps.
func evaluateBook(book venue.OrderBook, side venue.Side, quantity, limitPrice decimal.Decimal, slippageBps int) (topPrice, depth decimal.Decimal, ok bool) {
	levels := book.Asks
	if side == venue.SideSell {
		levels = book.Bids
	}
	if len(levels) == 0 {
		return decimal.Zero, decimal.Zero, false
	}
	topPrice = levels[0].Price

	bandFraction := decimal.NewFromInt(int64(slippageBps)).Div(decimal.NewFromInt(10000))
	var bandEdge decimal.Decimal
	if side == venue.SideBuy {
		bandEdge = limitPrice.Mul(decimal.NewFromInt(1).Add(bandFraction))
	} else {
		bandEdge = limitPrice.Mul(decimal.NewFromInt(1).Sub(bandFraction))
	}

	cumulative := decimal.Zero
	for _, lvl := range levels {
		withinBand := (side == venue.SideBuy && lvl.Price.LessThanOrEqual(bandEdge)) ||
			(side == venue.SideSell && lvl.Price.GreaterThanOrEqual(bandEdge))
		if !withinBand {
			break
		}
		cumulative = cumulative.Add(lvl.Size)
	}
	if cumulative.LessThan(quantity) {
		return topPrice, cumulative, false
	}

	avgFill, filled := weightedAverageFillPrice(levels, quantity)
	if filled.LessThan(quantity) {
		return topPrice, cumulative, false
	}
	deviationBps := avgFill.Sub(limitPrice).Abs().Div(limitPrice).Mul(decimal.NewFromInt(10000))
	if deviationBps.GreaterThan(decimal.NewFromInt(int64(slippageBps))) {
		return topPrice, cumulative, false
	}

	return topPrice, cumulative, true
}

// weightedAverageFillPrice walks levels (best price first) consuming up to
// quantity and returns the quantity-weighted average price actually
// reachable, along with how much of quantity could be filled (less than
// quantity when the book is too thin).
func weightedAverageFillPrice(levels []venue.BookLevel, quantity decimal.Decimal) (avg, filled decimal.Decimal) {
	remaining := quantity
	weightedSum := decimal.Zero
	filled = decimal.Zero
	for _, lvl := range levels {
		if remaining.LessThanOrEqual(decimal.Zero) {
			break
		}
		take := lvl.Size
		if take.GreaterThan(remaining) {
			take = remaining
		}
		weightedSum = weightedSum.Add(lvl.Price.Mul(take))
		filled = filled.Add(take)
		remaining = remaining.Sub(take)
	}
	if filled.IsZero() {
		return decimal.Zero, decimal.Zero
	}
	return weightedSum.Div(filled), filled
}

// scoreCandidates sorts candidates by the composite key of spec §4.3 step
// 2: price (better for side), then depth within band, then latency, then
// error rate, ties broken by venue-id.
func (e *Engine) scoreCandidates(candidates []candidate, side venue.Side) {
	sort.Slice(candidates, func(i, k int) bool {
		a, b := candidates[i], candidates[k]

		if !a.topPrice.Equal(b.topPrice) {
			if side == venue.SideBuy {
				return a.topPrice.LessThan(b.topPrice) // cheaper ask wins
			}
			return a.topPrice.GreaterThan(b.topPrice) // higher bid wins
		}
		if !a.depthInBand.Equal(b.depthInBand) {
			return a.depthInBand.GreaterThan(b.depthInBand)
		}

		aLatency, bLatency := time.Duration(0), time.Duration(0)
		if a.venue.Latency != nil {
			aLatency = a.venue.Latency()
		}
		if b.venue.Latency != nil {
			bLatency = b.venue.Latency()
		}
		if aLatency != bLatency {
			return aLatency < bLatency
		}

		aErr, bErr := 0.0, 0.0
		if a.venue.ErrorRate != nil {
			aErr = a.venue.ErrorRate()
		}
		if b.venue.ErrorRate != nil {
			bErr = b.venue.ErrorRate()
		}
		if aErr != bErr {
			return aErr < bErr
		}

		return a.venue.ID < b.venue.ID
	})
}

func (e *Engine) executeOn(ctx context.Context, v Venue, symbol string, side venue.Side, quantity, limitPrice decimal.Decimal, slippageBps int) (venue.Order, error) {
	return v.Adapter.PlaceLimitOrder(ctx, venue.PlaceLimitOrderParams{
		Symbol:      symbol,
		Side:        side,
		Quantity:    quantity,
		LimitPrice:  limitPrice,
		SlippageBps: slippageBps,
	})
}

// monotonicRank enforces the state machine ordering of spec §4.3: any
// transition must move forward through this rank, never backward.
var monotonicRank = map[venue.OrderStatus]int{
	venue.OrderPending:   0,
	venue.OrderPartial:   1,
	venue.OrderFilled:    2,
	venue.OrderCancelled: 2,
	venue.OrderRejected:  2,
	venue.OrderExpired:   2,
}

// trackOrder records the order for future transition checks and panics on
// a backward transition, matching spec §4.3 "must raise an internal
// invariant violation".
func (e *Engine) trackOrder(o venue.Order) {
	e.mu.Lock()
	defer e.mu.Unlock()
	key := o.VenueID + ":" + o.VenueOrderID
	if prev, ok := e.tracked[key]; ok {
		if monotonicRank[o.Status] < monotonicRank[prev.Status] {
			panic("trading: backward order state transition")
		}
	}
	cp := o
	e.tracked[key] = &cp
}

func (e *Engine) emitOrder(kind audit.Kind, o venue.Order, venueID, reason string) {
	if e.sink == nil {
		return
	}
	_, _ = e.sink.Append(kind, audit.OrderDetails{
		OrderID:  o.VenueOrderID,
		VenueID:  venueID,
		Symbol:   o.Symbol,
		Side:     string(o.Side),
		Quantity: o.Quantity.String(),
		Price:    o.LimitPrice.String(),
		Status:   string(o.Status),
		Reason:   reason,
	}, "engine", venueID)
}

func (e *Engine) emitRisk(symbol, reason, code string) {
	if e.sink == nil {
		return
	}
	_, _ = e.sink.Append(audit.KindRiskBlock, audit.RiskBlockDetails{Symbol: symbol, Reason: reason, Code: code}, "engine", "")
}
