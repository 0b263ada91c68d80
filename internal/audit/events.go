package audit

// Kind is one entry of the event taxonomy from spec §4.4.
type Kind string

const (
	KindCredStored       Kind = "CRED_STORED"
	KindCredRetrieved    Kind = "CRED_RETRIEVED"
	KindCredRotated      Kind = "CRED_ROTATED"
	KindAuthOK           Kind = "AUTH_OK"
	KindAuthFail         Kind = "AUTH_FAIL"
	KindOrderPlaced      Kind = "ORDER_PLACED"
	KindOrderFilled      Kind = "ORDER_FILLED"
	KindOrderCancelled   Kind = "ORDER_CANCELLED"
	KindOrderFailed      Kind = "ORDER_FAILED"
	KindRiskBlock        Kind = "RISK_BLOCK"
	KindHealthChange     Kind = "HEALTH_CHANGE"
	KindConfigChange     Kind = "CONFIG_CHANGE"
	KindResilienceAction Kind = "RESILIENCE_ACTION"
	KindAPIRequest       Kind = "API_REQUEST"
)

// Details is implemented by every tagged event-detail variant (spec §9
// "replace free-form maps with tagged variants per audit kind"). Redacted
// returns the map that gets hashed and exported; a variant with no
// sensitive fields just returns its fields verbatim.
type Details interface {
	Redacted() map[string]any
}

// GenericDetails is the backstop free-form carrier for event kinds whose
// shape is inherently open-ended (CONFIG_CHANGE, API_REQUEST per
// SPEC_FULL.md §8). Its Redacted method applies the substring rule of
// spec §4.4 rather than a statically known field list.
type GenericDetails map[string]any

func (g GenericDetails) Redacted() map[string]any {
	return RedactMap(map[string]any(g))
}

// CredStoredDetails is the tagged variant for CRED_STORED.
type CredStoredDetails struct {
	VenueID     string
	Success     bool
	Permissions []string
	Reason      string // set on failure, e.g. "withdrawal capability present"
}

func (d CredStoredDetails) Redacted() map[string]any {
	return map[string]any{
		"venue_id":    d.VenueID,
		"success":     d.Success,
		"permissions": d.Permissions,
		"reason":      d.Reason,
	}
}

// AuthDetails is the tagged variant for AUTH_OK / AUTH_FAIL.
type AuthDetails struct {
	VenueID string
	Success bool
	Reason  string
}

func (d AuthDetails) Redacted() map[string]any {
	return map[string]any{"venue_id": d.VenueID, "success": d.Success, "reason": d.Reason}
}

// OrderDetails is the tagged variant for ORDER_PLACED / ORDER_FILLED /
// ORDER_CANCELLED / ORDER_FAILED.
type OrderDetails struct {
	OrderID  string
	VenueID  string
	Symbol   string
	Side     string
	Quantity string
	Price    string
	Status   string
	Reason   string
}

func (d OrderDetails) Redacted() map[string]any {
	return map[string]any{
		"order_id": d.OrderID,
		"venue_id": d.VenueID,
		"symbol":   d.Symbol,
		"side":     d.Side,
		"quantity": d.Quantity,
		"price":    d.Price,
		"status":   d.Status,
		"reason":   d.Reason,
	}
}

// RiskBlockDetails is the tagged variant for RISK_BLOCK.
type RiskBlockDetails struct {
	Symbol string
	Reason string
	Code   string
}

func (d RiskBlockDetails) Redacted() map[string]any {
	return map[string]any{"symbol": d.Symbol, "reason": d.Reason, "code": d.Code}
}

// HealthChangeDetails is the tagged variant for HEALTH_CHANGE.
type HealthChangeDetails struct {
	VenueID string
	From    string
	To      string
}

func (d HealthChangeDetails) Redacted() map[string]any {
	return map[string]any{"venue_id": d.VenueID, "from": d.From, "to": d.To}
}

// ResilienceActionDetails is the tagged variant for RESILIENCE_ACTION.
type ResilienceActionDetails struct {
	Action  string
	VenueID string
	Detail  string
}

func (d ResilienceActionDetails) Redacted() map[string]any {
	return map[string]any{"action": d.Action, "venue_id": d.VenueID, "detail": d.Detail}
}
