package exchange

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sawpanic/goldrouter/internal/venue"
	venueerr "github.com/sawpanic/goldrouter/internal/venue/errors"
)

// roundTripFunc lets a test supply an HTTPDoer inline without a real
// network seam, per spec §9's "tests can substitute deterministic fakes".
type roundTripFunc func(req *http.Request) (*http.Response, error)

func (f roundTripFunc) Do(req *http.Request) (*http.Response, error) { return f(req) }

func jsonResponse(status int, body any) *http.Response {
	b, _ := json.Marshal(body)
	return &http.Response{StatusCode: status, Body: io.NopCloser(bytes.NewReader(b))}
}

func TestAdapter_AuthenticateRejectsWithdrawPermission(t *testing.T) {
	a := NewAdapter("bfx", "https://api.example.com", roundTripFunc(func(req *http.Request) (*http.Response, error) {
		t.Fatal("should not reach the network when permission check fails first")
		return nil, nil
	}))

	err := a.Authenticate(context.Background(), venue.Credentials{KeyID: "k", Secret: []byte("s"), Permissions: []string{"withdraw"}})
	require.Error(t, err)
	ve, ok := venueerr.As(err)
	require.True(t, ok)
	assert.Equal(t, venueerr.PermissionError, ve.Code)
}

func TestAdapter_AuthenticateSignsRequestAndCommitsOnSuccess(t *testing.T) {
	var capturedKey, capturedSig string
	a := NewAdapter("bfx", "https://api.example.com", roundTripFunc(func(req *http.Request) (*http.Response, error) {
		assert.Equal(t, "/v2/auth/r/info/user", req.URL.Path)
		capturedKey = req.Header.Get("X-BFX-APIKEY")
		capturedSig = req.Header.Get("X-BFX-SIGNATURE")
		return jsonResponse(http.StatusOK, map[string]any{}), nil
	}))

	err := a.Authenticate(context.Background(), venue.Credentials{KeyID: "read-key", Secret: []byte("secret")})
	require.NoError(t, err)
	assert.Equal(t, "read-key", capturedKey)
	assert.NotEmpty(t, capturedSig)

	_, err = a.GetBalance(context.Background(), "XAU/USD")
	require.Error(t, err, "wallets call will fail against the same stub response shape, proving authed state was committed")
}

func TestAdapter_AuthenticateRejectedByVenueReturnsAuthError(t *testing.T) {
	a := NewAdapter("bfx", "https://api.example.com", roundTripFunc(func(req *http.Request) (*http.Response, error) {
		return jsonResponse(http.StatusUnauthorized, map[string]any{"error": "bad key"}), nil
	}))

	err := a.Authenticate(context.Background(), venue.Credentials{KeyID: "k", Secret: []byte("s")})
	require.Error(t, err)
	ve, ok := venueerr.As(err)
	require.True(t, ok)
	assert.Equal(t, venueerr.AuthError, ve.Code)
}

func authedAdapter(t *testing.T, doer HTTPDoer) *Adapter {
	t.Helper()
	a := NewAdapter("bfx", "https://api.example.com", roundTripFunc(func(req *http.Request) (*http.Response, error) {
		return jsonResponse(http.StatusOK, map[string]any{}), nil
	}))
	require.NoError(t, a.Authenticate(context.Background(), venue.Credentials{KeyID: "k", Secret: []byte("s")}))
	a.client = doer
	return a
}

func TestAdapter_GetBalanceFindsMatchingWallet(t *testing.T) {
	a := authedAdapter(t, roundTripFunc(func(req *http.Request) (*http.Response, error) {
		return jsonResponse(http.StatusOK, []walletEntry{{Type: "exchange", Currency: "XAUT", Balance: 2.5}}), nil
	}))

	h, err := a.GetBalance(context.Background(), "XAUt")
	require.NoError(t, err)
	assert.True(t, decimal.NewFromFloat(2.5).Equal(h.Native))
}

func TestAdapter_GetBalanceMissingSymbolReturnsZero(t *testing.T) {
	a := authedAdapter(t, roundTripFunc(func(req *http.Request) (*http.Response, error) {
		return jsonResponse(http.StatusOK, []walletEntry{{Type: "exchange", Currency: "BTC", Balance: 1}}), nil
	}))

	h, err := a.GetBalance(context.Background(), "XAUt")
	require.NoError(t, err)
	assert.True(t, decimal.Zero.Equal(h.Native))
}

func TestAdapter_PlaceLimitOrderRejectsNonPositiveAmounts(t *testing.T) {
	a := authedAdapter(t, roundTripFunc(func(req *http.Request) (*http.Response, error) {
		t.Fatal("should not reach network on validation failure")
		return nil, nil
	}))

	_, err := a.PlaceLimitOrder(context.Background(), venue.PlaceLimitOrderParams{
		Symbol: "XAUt/USD", Side: venue.SideBuy, Quantity: decimal.Zero, LimitPrice: decimal.NewFromInt(100),
	})
	require.Error(t, err)
	ve, ok := venueerr.As(err)
	require.True(t, ok)
	assert.Equal(t, venueerr.ValidationError, ve.Code)
}

func TestAdapter_PlaceLimitOrderParsesNotificationEnvelope(t *testing.T) {
	// [MTS, TYPE, MESSAGE_ID, null, ORDER_ARRAY, CODE, STATUS, TEXT]
	orderArray := make([]any, 14)
	orderArray[0] = float64(98765)
	orderArray[13] = "ACTIVE"
	envelope := []any{float64(1), "on-req", nil, nil, orderArray, nil, "SUCCESS", "submitted"}

	a := authedAdapter(t, roundTripFunc(func(req *http.Request) (*http.Response, error) {
		return jsonResponse(http.StatusOK, envelope), nil
	}))

	order, err := a.PlaceLimitOrder(context.Background(), venue.PlaceLimitOrderParams{
		Symbol: "XAUt/USD", Side: venue.SideBuy, Quantity: decimal.NewFromInt(1), LimitPrice: decimal.NewFromInt(100),
	})
	require.NoError(t, err)
	assert.Equal(t, "98765", order.VenueOrderID)
	assert.Equal(t, venue.OrderPending, order.Status)
}

func TestAdapter_GetOrderBookSplitsBidsAndAsksBySign(t *testing.T) {
	a := NewAdapter("bfx", "https://api.example.com", roundTripFunc(func(req *http.Request) (*http.Response, error) {
		raw := [][3]float64{
			{100.0, 1, 5},  // bid: positive amount
			{101.0, 1, -3}, // ask: negative amount
		}
		return jsonResponse(http.StatusOK, raw), nil
	}))

	book, err := a.GetOrderBook(context.Background(), "XAUt/USD", 25)
	require.NoError(t, err)
	require.Len(t, book.Bids, 1)
	require.Len(t, book.Asks, 1)
	assert.True(t, decimal.NewFromFloat(3).Equal(book.Asks[0].Size))
}

func TestAdapter_HealthCheckMapsStatusCodes(t *testing.T) {
	cases := []struct {
		status int
		want   venue.Status
	}{
		{http.StatusOK, venue.StatusHealthy},
		{http.StatusServiceUnavailable, venue.StatusDegraded},
	}
	for _, tc := range cases {
		a := NewAdapter("bfx", "https://api.example.com", roundTripFunc(func(req *http.Request) (*http.Response, error) {
			return jsonResponse(tc.status, map[string]any{}), nil
		}))
		status, _ := a.HealthCheck(context.Background())
		assert.Equal(t, tc.want, status)
	}
}

func TestNormalizeSymbol_RoundTripsBaseQuote(t *testing.T) {
	assert.Equal(t, "XAUTUSD", NormalizeSymbolExternal("XAUt/USD"))
	assert.Equal(t, "XAUT/USD", NormalizeSymbolInternal("XAUTUSD", 3))
}

func TestMapOrderStatus_CoversFixedMapping(t *testing.T) {
	assert.Equal(t, venue.OrderPartial, mapOrderStatus("partially filled"))
	assert.Equal(t, venue.OrderFilled, mapOrderStatus("executed"))
	assert.Equal(t, venue.OrderCancelled, mapOrderStatus("cancelled"))
	assert.Equal(t, venue.OrderRejected, mapOrderStatus("rejected"))
}
