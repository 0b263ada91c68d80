// Package venue defines the uniform contract shared by exchange connectors
// and on-chain trackers, plus the value types that flow across it.
package venue

import (
	"time"

	"github.com/shopspring/decimal"
)

// Kind distinguishes the two venue families the router routes to.
type Kind string

const (
	KindExchange Kind = "exchange"
	KindOnchain  Kind = "onchain"
)

// Status is the health of a venue as observed through the reliability
// envelope (see internal/venue/reliability).
type Status string

const (
	StatusHealthy  Status = "healthy"
	StatusDegraded Status = "degraded"
	StatusOffline  Status = "offline"
)

// Capability names a feature a venue adapter supports. Capability sets
// drive candidate selection in the trading engine (spec §4.3 step 1).
type Capability string

const (
	CapLimitOrders      Capability = "limit_orders"
	CapOrderBook        Capability = "order_book"
	CapBalance          Capability = "balance"
	CapTransferTracking Capability = "transfer_tracking"
)

// Info is the registry-facing description of a venue. The id is immutable
// once registered. Status is the value the adapter sets itself; the
// reliability envelope does not write to it and reports its own derived
// status through Envelope.Status.
type Info struct {
	ID           string
	Kind         Kind
	DisplayName  string
	Capabilities map[Capability]bool
	Status       Status
}

func (i Info) HasCapability(c Capability) bool {
	return i.Capabilities[c]
}

// Holding is a single venue's balance of one token, normalized to grams.
type Holding struct {
	VenueID    string
	Symbol     string
	Native     decimal.Decimal
	Grams      decimal.Decimal
	SampledAt  time.Time
	UnknownSym bool // true when Symbol had no conversion rule (grams forced to 0)
}

// Side of a limit order.
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// OrderStatus is the lifecycle state of an Order (spec §4.3 state machine).
type OrderStatus string

const (
	OrderPending   OrderStatus = "pending"
	OrderPartial   OrderStatus = "partial"
	OrderFilled    OrderStatus = "filled"
	OrderCancelled OrderStatus = "cancelled"
	OrderRejected  OrderStatus = "rejected"
	OrderExpired   OrderStatus = "expired"
)

// Fill is a single execution report against an Order.
type Fill struct {
	FillID    string
	OrderID   string
	Quantity  decimal.Decimal
	Price     decimal.Decimal
	Fees      decimal.Decimal
	Timestamp time.Time
}

// Order is the router's own record of a placed limit order, independent of
// whatever id the venue assigns it (tracked separately in VenueOrderID).
type Order struct {
	ID          string
	VenueID     string
	VenueOrderID string
	Symbol      string
	Side        Side
	Quantity    decimal.Decimal
	LimitPrice  decimal.Decimal
	SlippageBps int
	Status      OrderStatus
	CreatedAt   time.Time
	ExecutedAt  *time.Time
	Fills       []Fill
}

// BookLevel is one price/size pair in an order book.
type BookLevel struct {
	Price decimal.Decimal
	Size  decimal.Decimal
}

// OrderBook is a depth snapshot for a symbol on one venue.
type OrderBook struct {
	VenueID   string
	Symbol    string
	Bids      []BookLevel // best first (highest price)
	Asks      []BookLevel // best first (lowest price)
	Timestamp time.Time
}

// Transfer is an observed on-chain transfer of a tracked token.
type Transfer struct {
	TxHash        string
	BlockHeight   uint64
	From          string
	To            string
	Amount        decimal.Decimal
	Token         string
	ObservedAt    time.Time
	Confirmations uint64
}

// ConfirmationStatus answers "is this transaction final yet".
type ConfirmationStatus struct {
	Confirmations uint64
	Required      uint64
	IsConfirmed   bool
}

// Credentials are opaque key material plus the permission facts proven
// about them at storage time. Ownership rules live in internal/security.
type Credentials struct {
	VenueID     string
	KeyID       string
	Secret      []byte // plaintext only while held by the caller of a using call
	Permissions []string
}

func (c Credentials) HasPermission(p string) bool {
	for _, x := range c.Permissions {
		if x == p {
			return true
		}
	}
	return false
}
