package venue

import (
	"context"

	"github.com/shopspring/decimal"
)

// Adapter is the contract every venue implements, exchange or chain alike
// (spec §4.1 "Operations exposed by every adapter").
type Adapter interface {
	Info() Info

	// Authenticate verifies credentials via a cheap authenticated round
	// trip. On success a session is cached until Disconnect; on failure no
	// partial state is left.
	Authenticate(ctx context.Context, creds Credentials) error

	// Disconnect wipes any cached session/credential state.
	Disconnect(ctx context.Context) error

	// HealthCheck is a cheap, unauthenticated-when-possible probe. It
	// updates the adapter's own last-seen/latency bookkeeping; overall
	// Status computation (breaker + error rate) lives in the reliability
	// envelope wrapping this adapter, not in the adapter itself.
	HealthCheck(ctx context.Context) (Status, error)

	// GetBalance returns a Holding for symbol. For exchange adapters the
	// balance is the authenticated account balance; chain adapters return
	// a ValidationError here and answer balance queries through
	// ChainAdapter.GetBalanceOf instead.
	GetBalance(ctx context.Context, symbol string) (Holding, error)
}

// ExchangeAdapter is the exchange-only surface of spec §4.1.
type ExchangeAdapter interface {
	Adapter

	PlaceLimitOrder(ctx context.Context, params PlaceLimitOrderParams) (Order, error)
	CancelOrder(ctx context.Context, orderID string) error
	GetOrderStatus(ctx context.Context, orderID string) (Order, error)
	GetOrderBook(ctx context.Context, symbol string, depth int) (OrderBook, error)
}

// PlaceLimitOrderParams are the inputs to ExchangeAdapter.PlaceLimitOrder.
type PlaceLimitOrderParams struct {
	Symbol      string
	Side        Side
	Quantity    decimal.Decimal
	LimitPrice  decimal.Decimal
	SlippageBps int
}

// ChainAdapter is the on-chain-only surface of spec §4.1.
type ChainAdapter interface {
	Adapter

	GetBalanceOf(ctx context.Context, address, tokenContract string) (Holding, error)
	TrackTransfers(ctx context.Context, address, token string) ([]Transfer, error)
	GetConfirmationStatus(ctx context.Context, txHash string) (ConfirmationStatus, error)
	SetConfirmationThreshold(n uint64) error
}
