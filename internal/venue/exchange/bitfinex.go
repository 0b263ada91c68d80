// Package exchange implements the reference exchange adapter named in
// spec §4.1: a Bitfinex-shaped connector authenticating with HMAC-SHA384
// over a base64-encoded JSON payload carrying a monotonic nonce. Adapted
// from the teacher's internal/data/exchanges/kraken.Adapter (HTTP client
// shape, health/latency bookkeeping, zerolog usage) with Kraken's REST
// calls replaced by Bitfinex's authenticated-request scheme.
package exchange

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha512"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/sawpanic/goldrouter/internal/venue"
	venueerr "github.com/sawpanic/goldrouter/internal/venue/errors"
)

// HTTPDoer is the seam spec §9 requires ("a seam ... exists so tests can
// substitute deterministic fakes without changing production behavior").
// *http.Client satisfies it.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

var symbolNormalizeRE = regexp.MustCompile(`[^A-Z]`)

// Adapter is the Bitfinex-shaped reference exchange connector.
type Adapter struct {
	info    venue.Info
	baseURL string
	client  HTTPDoer

	mu        sync.Mutex
	apiKey    string
	apiSecret []byte
	authed    bool

	nonce int64 // monotonic per credential, guarded by atomic ops

	lastSeen   time.Time
	lastLatency time.Duration
}

// NewAdapter builds an unauthenticated Bitfinex-shaped adapter. Call
// Authenticate before any call requiring a signed request.
func NewAdapter(id, baseURL string, client HTTPDoer) *Adapter {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &Adapter{
		info: venue.Info{
			ID:          id,
			Kind:        venue.KindExchange,
			DisplayName: "Bitfinex-shaped reference exchange",
			Capabilities: map[venue.Capability]bool{
				venue.CapLimitOrders: true,
				venue.CapOrderBook:   true,
				venue.CapBalance:     true,
			},
			Status: venue.StatusHealthy,
		},
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  client,
	}
}

func (a *Adapter) Info() venue.Info { return a.info }

// Authenticate performs the cheap authenticated round trip (an account-info
// call) required by spec §4.1. On failure no partial state is left: the
// key/secret are only committed after a successful response.
func (a *Adapter) Authenticate(ctx context.Context, creds venue.Credentials) error {
	if creds.HasPermission("withdraw") {
		return venueerr.New(venueerr.PermissionError, "credentials carry withdrawal capability")
	}

	candidateKey := creds.KeyID
	candidateSecret := creds.Secret

	body, err := a.signedRequest(ctx, candidateKey, candidateSecret, "/v2/auth/r/info/user", map[string]any{})
	if err != nil {
		return err
	}
	_ = body

	a.mu.Lock()
	a.apiKey = candidateKey
	a.apiSecret = append([]byte(nil), candidateSecret...)
	a.authed = true
	a.mu.Unlock()
	return nil
}

func (a *Adapter) Disconnect(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.apiKey = ""
	for i := range a.apiSecret {
		a.apiSecret[i] = 0
	}
	a.apiSecret = nil
	a.authed = false
	return nil
}

// HealthCheck performs a cheap unauthenticated probe (the public platform
// status endpoint) and updates latency bookkeeping.
func (a *Adapter) HealthCheck(ctx context.Context) (venue.Status, error) {
	start := time.Now()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.baseURL+"/v2/platform/status", nil)
	if err != nil {
		return venue.StatusOffline, venueerr.Wrap(venueerr.NetworkError, "build health check request", err)
	}
	resp, err := a.client.Do(req)
	if err != nil {
		return venue.StatusOffline, venueerr.Wrap(venueerr.NetworkError, "health check request failed", err)
	}
	defer resp.Body.Close()

	a.lastLatency = time.Since(start)
	a.lastSeen = time.Now()

	if resp.StatusCode >= 500 {
		return venue.StatusDegraded, venueerr.New(venueerr.VenueError, fmt.Sprintf("health check returned %d", resp.StatusCode))
	}
	if resp.StatusCode != http.StatusOK {
		return venue.StatusDegraded, nil
	}
	return venue.StatusHealthy, nil
}

// GetBalance queries the authenticated wallets endpoint for symbol.
func (a *Adapter) GetBalance(ctx context.Context, symbol string) (venue.Holding, error) {
	a.mu.Lock()
	key, secret, authed := a.apiKey, a.apiSecret, a.authed
	a.mu.Unlock()
	if !authed {
		return venue.Holding{}, venueerr.New(venueerr.AuthError, "adapter not authenticated")
	}

	respBody, err := a.signedRequest(ctx, key, secret, "/v2/auth/r/wallets", map[string]any{})
	if err != nil {
		return venue.Holding{}, err
	}

	var wallets []walletEntry
	if err := json.Unmarshal(respBody, &wallets); err != nil {
		return venue.Holding{}, venueerr.Wrap(venueerr.VenueError, "parse wallets response", err)
	}

	normalizedSymbol := NormalizeSymbolExternal(symbol)
	for _, w := range wallets {
		if strings.EqualFold(w.Currency, normalizedSymbol) {
			native, perr := decimal.NewFromString(fmt.Sprintf("%v", w.Balance))
			if perr != nil {
				return venue.Holding{}, venueerr.Wrap(venueerr.VenueError, "parse wallet balance", perr)
			}
			return venue.Holding{
				VenueID:   a.info.ID,
				Symbol:    symbol,
				Native:    native,
				SampledAt: time.Now().UTC(),
			}, nil
		}
	}
	return venue.Holding{VenueID: a.info.ID, Symbol: symbol, Native: decimal.Zero, SampledAt: time.Now().UTC()}, nil
}

type walletEntry struct {
	Type     string
	Currency string
	Balance  float64
}

// PlaceLimitOrder submits a signed limit order. Bitfinex encodes side by
// signed amount: positive amount for buy, negative for sell.
func (a *Adapter) PlaceLimitOrder(ctx context.Context, params venue.PlaceLimitOrderParams) (venue.Order, error) {
	a.mu.Lock()
	key, secret, authed := a.apiKey, a.apiSecret, a.authed
	a.mu.Unlock()
	if !authed {
		return venue.Order{}, venueerr.New(venueerr.AuthError, "adapter not authenticated")
	}
	if params.Quantity.LessThanOrEqual(decimal.Zero) || params.LimitPrice.LessThanOrEqual(decimal.Zero) {
		return venue.Order{}, venueerr.New(venueerr.ValidationError, "quantity and limit price must be positive")
	}

	amount := params.Quantity
	if params.Side == venue.SideSell {
		amount = amount.Neg()
	}

	payload := map[string]any{
		"type":   "EXCHANGE LIMIT",
		"symbol": "t" + NormalizeSymbolExternal(params.Symbol),
		"amount": amount.String(),
		"price":  params.LimitPrice.String(),
	}

	respBody, err := a.signedRequest(ctx, key, secret, "/v2/auth/w/order/submit", payload)
	if err != nil {
		return venue.Order{}, err
	}

	venueOrderID, status, err := parseOrderSubmitResponse(respBody)
	if err != nil {
		return venue.Order{}, err
	}

	now := time.Now().UTC()
	return venue.Order{
		VenueID:      a.info.ID,
		VenueOrderID: venueOrderID,
		Symbol:       params.Symbol,
		Side:         params.Side,
		Quantity:     params.Quantity,
		LimitPrice:   params.LimitPrice,
		SlippageBps:  params.SlippageBps,
		Status:       status,
		CreatedAt:    now,
	}, nil
}

func (a *Adapter) CancelOrder(ctx context.Context, orderID string) error {
	a.mu.Lock()
	key, secret, authed := a.apiKey, a.apiSecret, a.authed
	a.mu.Unlock()
	if !authed {
		return venueerr.New(venueerr.AuthError, "adapter not authenticated")
	}
	_, err := a.signedRequest(ctx, key, secret, "/v2/auth/w/order/cancel", map[string]any{"id": orderID})
	return err
}

func (a *Adapter) GetOrderStatus(ctx context.Context, orderID string) (venue.Order, error) {
	a.mu.Lock()
	key, secret, authed := a.apiKey, a.apiSecret, a.authed
	a.mu.Unlock()
	if !authed {
		return venue.Order{}, venueerr.New(venueerr.AuthError, "adapter not authenticated")
	}
	respBody, err := a.signedRequest(ctx, key, secret, "/v2/auth/r/orders", map[string]any{"id": []string{orderID}})
	if err != nil {
		return venue.Order{}, err
	}
	_, status, err := parseOrderSubmitResponse(respBody)
	if err != nil {
		return venue.Order{}, err
	}
	return venue.Order{VenueOrderID: orderID, Status: status}, nil
}

// GetOrderBook fetches the public order book for symbol.
func (a *Adapter) GetOrderBook(ctx context.Context, symbol string, depth int) (venue.OrderBook, error) {
	url := fmt.Sprintf("%s/v2/book/t%s/P0?len=%d", a.baseURL, NormalizeSymbolExternal(symbol), depth)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return venue.OrderBook{}, venueerr.Wrap(venueerr.NetworkError, "build order book request", err)
	}
	resp, err := a.client.Do(req)
	if err != nil {
		return venue.OrderBook{}, venueerr.Wrap(venueerr.NetworkError, "order book request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return venue.OrderBook{}, mapHTTPStatus(resp.StatusCode, "order book request")
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return venue.OrderBook{}, venueerr.Wrap(venueerr.NetworkError, "read order book response", err)
	}

	var raw [][3]float64
	if err := json.Unmarshal(body, &raw); err != nil {
		return venue.OrderBook{}, venueerr.Wrap(venueerr.VenueError, "parse order book response", err)
	}

	book := venue.OrderBook{VenueID: a.info.ID, Symbol: symbol, Timestamp: time.Now().UTC()}
	for _, lvl := range raw {
		price := decimal.NewFromFloat(lvl[0])
		amount := decimal.NewFromFloat(lvl[2])
		level := venue.BookLevel{Price: price, Size: amount.Abs()}
		if amount.IsPositive() {
			book.Bids = append(book.Bids, level)
		} else {
			book.Asks = append(book.Asks, level)
		}
	}
	log.Debug().Str("venue", a.info.ID).Str("symbol", symbol).Int("bids", len(book.Bids)).Int("asks", len(book.Asks)).Msg("fetched order book")
	return book, nil
}

// signedRequest performs the POST + HMAC-SHA384 signing scheme of spec
// §6: headers carry API key, base64(JSON payload including nonce), and a
// hex HMAC-SHA384 signature over the payload. The error message from a
// non-ok response never embeds the secret (spec §4.1 reference adapter
// note).
func (a *Adapter) signedRequest(ctx context.Context, apiKey string, apiSecret []byte, path string, body map[string]any) ([]byte, error) {
	body["nonce"] = strconv.FormatInt(a.nextNonce(), 10)

	payloadJSON, err := json.Marshal(body)
	if err != nil {
		return nil, venueerr.Wrap(venueerr.InternalError, "marshal request payload", err)
	}
	payloadB64 := base64.StdEncoding.EncodeToString(payloadJSON)

	mac := hmac.New(sha512.New384, apiSecret)
	mac.Write([]byte(payloadB64))
	signature := hex.EncodeToString(mac.Sum(nil))

	url := a.baseURL + path
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payloadJSON))
	if err != nil {
		return nil, venueerr.Wrap(venueerr.NetworkError, "build signed request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-BFX-APIKEY", apiKey)
	req.Header.Set("X-BFX-PAYLOAD", payloadB64)
	req.Header.Set("X-BFX-SIGNATURE", signature)

	start := time.Now()
	resp, err := a.client.Do(req)
	if err != nil {
		return nil, venueerr.Wrap(venueerr.NetworkError, "signed request failed", err)
	}
	defer resp.Body.Close()
	a.lastLatency = time.Since(start)
	a.lastSeen = time.Now()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, venueerr.Wrap(venueerr.NetworkError, "read signed response", err)
	}

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return nil, venueerr.New(venueerr.AuthError, "authentication rejected by venue")
	}
	if resp.StatusCode != http.StatusOK {
		return nil, mapHTTPStatus(resp.StatusCode, "signed request")
	}
	return respBody, nil
}

func (a *Adapter) nextNonce() int64 {
	return atomic.AddInt64(&a.nonce, 1) + time.Now().UnixNano()
}

func mapHTTPStatus(status int, context string) error {
	switch {
	case status == http.StatusTooManyRequests:
		return venueerr.New(venueerr.RateLimitError, context+": rate limited")
	case status >= 500:
		return venueerr.New(venueerr.VenueError, fmt.Sprintf("%s: upstream returned %d", context, status))
	case status == http.StatusNotFound:
		return venueerr.New(venueerr.NotFound, context+": not found")
	case status == http.StatusBadRequest:
		return venueerr.New(venueerr.ValidationError, context+": rejected by venue")
	default:
		return venueerr.New(venueerr.VenueError, fmt.Sprintf("%s: unexpected status %d", context, status))
	}
}

// NormalizeSymbolExternal converts the internal "BASE/QUOTE" form to the
// external Bitfinex "BASEQUOTE" form (spec §4.1 "Symbols normalize between
// the external 'BASEQUOTE' form and the internal 'BASE/QUOTE' form").
func NormalizeSymbolExternal(symbol string) string {
	upper := strings.ToUpper(symbol)
	upper = strings.ReplaceAll(upper, "/", "")
	return symbolNormalizeRE.ReplaceAllString(upper, "")
}

// NormalizeSymbolInternal converts an external "BASEQUOTE" symbol (e.g.
// "XAUTUSD") to the internal "BASE/QUOTE" form given the known quote
// currency length, defaulting to a 3-character quote.
func NormalizeSymbolInternal(external string, quoteLen int) string {
	upper := strings.ToUpper(external)
	if quoteLen <= 0 || quoteLen >= len(upper) {
		quoteLen = 3
	}
	if len(upper) <= quoteLen {
		return upper
	}
	return upper[:len(upper)-quoteLen] + "/" + upper[len(upper)-quoteLen:]
}

// orderStatusMapping is the fixed status mapping of spec §4.1:
//
//	live|active         -> pending
//	partially filled    -> partial
//	executed|filled     -> filled
//	canceled|cancelled  -> cancelled
//	rejected            -> rejected
//	else                -> pending
func mapOrderStatus(external string) venue.OrderStatus {
	switch strings.ToLower(strings.TrimSpace(external)) {
	case "live", "active":
		return venue.OrderPending
	case "partially filled":
		return venue.OrderPartial
	case "executed", "filled":
		return venue.OrderFilled
	case "canceled", "cancelled":
		return venue.OrderCancelled
	case "rejected":
		return venue.OrderRejected
	default:
		return venue.OrderPending
	}
}

func parseOrderSubmitResponse(body []byte) (venueOrderID string, status venue.OrderStatus, err error) {
	// Bitfinex's order endpoints return a notification envelope:
	// [MTS, TYPE, MESSAGE_ID, null, ORDER_ARRAY, ...]. ORDER_ARRAY[0] is
	// the order id, ORDER_ARRAY[13] is the status string.
	var envelope []json.RawMessage
	if jsonErr := json.Unmarshal(body, &envelope); jsonErr != nil || len(envelope) < 5 {
		return "", venue.OrderRejected, venueerr.Wrap(venueerr.VenueError, "parse order response envelope", jsonErr)
	}

	var orders [][]any
	if jsonErr := json.Unmarshal(envelope[4], &orders); jsonErr != nil {
		var single []any
		if singleErr := json.Unmarshal(envelope[4], &single); singleErr != nil || len(single) < 14 {
			return "", venue.OrderRejected, venueerr.New(venueerr.VenueError, "malformed order response")
		}
		orders = [][]any{single}
	}
	if len(orders) == 0 || len(orders[0]) < 14 {
		return "", venue.OrderRejected, venueerr.New(venueerr.VenueError, "malformed order response")
	}

	id := fmt.Sprintf("%v", orders[0][0])
	statusStr, _ := orders[0][13].(string)
	return id, mapOrderStatus(statusStr), nil
}
