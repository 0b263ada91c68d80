// Package chain implements the reference on-chain adapter named in spec
// §4.1: an Ethereum-shaped JSON-RPC tracker for an ERC-20-style gold
// token. Grounded on the teacher's exchange adapters for the HTTP/health
// bookkeeping shape (internal/data/exchanges/kraken.Adapter) generalized
// to JSON-RPC instead of REST.
package chain

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/sawpanic/goldrouter/internal/venue"
	venueerr "github.com/sawpanic/goldrouter/internal/venue/errors"
)

var (
	addressRE = regexp.MustCompile(`^0x[0-9a-fA-F]{40}$`)
	txHashRE  = regexp.MustCompile(`^0x[0-9a-fA-F]{64}$`)
)

// HTTPDoer is the same seam as internal/venue/exchange.HTTPDoer, repeated
// here so chain adapters do not import the exchange package for it.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// tokenMeta is cached per-contract decimals/symbol, fetched once and never
// invalidated (spec §4.1 "token metadata cache").
type tokenMeta struct {
	Symbol   string
	Decimals int32
}

// Adapter is the Ethereum-shaped reference chain connector.
type Adapter struct {
	info   venue.Info
	rpcURL string
	client HTTPDoer

	confirmationThreshold uint64

	metaMu sync.Mutex
	meta   map[string]tokenMeta // contract address (lowercased) -> metadata

	scanMu        sync.Mutex
	lastSeenBlock uint64 // low watermark for the next TrackTransfers window, spec §4.1

	headMu       sync.Mutex
	headRefBlock *big.Int  // block height observed at headRefTime, for drift checks
	headRefTime  time.Time

	lastLatency time.Duration
	lastSeen    time.Time
	reqID       int64
}

// nominalBlockTime and headProximityBlocks implement spec §4.1's health
// requirement: "currentBlock > 0 and within ~100 blocks of expected head
// based on chain's nominal block time."
const (
	nominalBlockTime    = 12 * time.Second
	headProximityBlocks = 100
	transferScanWindow  = 1000
)

// NewAdapter builds an Ethereum-shaped chain adapter. confirmationThreshold
// defaults to 12 (mainnet-conventional) and can be changed via
// SetConfirmationThreshold.
func NewAdapter(id, rpcURL string, client HTTPDoer) *Adapter {
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	return &Adapter{
		info: venue.Info{
			ID:          id,
			Kind:        venue.KindOnchain,
			DisplayName: "Ethereum-shaped reference chain tracker",
			Capabilities: map[venue.Capability]bool{
				venue.CapBalance:          true,
				venue.CapTransferTracking: true,
			},
			Status: venue.StatusHealthy,
		},
		rpcURL:                strings.TrimRight(rpcURL, "/"),
		client:                client,
		confirmationThreshold: 12,
		meta:                  make(map[string]tokenMeta),
	}
}

func (a *Adapter) Info() venue.Info { return a.info }

// Authenticate is a no-op credential check for chain adapters that talk to
// a public/permissioned RPC endpoint with no account session: it validates
// connectivity only (spec §4.1 "Authenticate ... via a cheap authenticated
// round trip"; for a chain adapter the round trip is just eth_chainId).
func (a *Adapter) Authenticate(ctx context.Context, creds venue.Credentials) error {
	_, err := a.call(ctx, "eth_chainId", []any{})
	return err
}

func (a *Adapter) Disconnect(ctx context.Context) error { return nil }

// HealthCheck implements spec §4.1's health requirement: currentBlock must
// be positive, and must sit within headProximityBlocks of the head expected
// from the chain's nominal block time since the last observed height.
func (a *Adapter) HealthCheck(ctx context.Context) (venue.Status, error) {
	start := time.Now()
	result, err := a.call(ctx, "eth_blockNumber", []any{})
	a.lastLatency = time.Since(start)
	if err != nil {
		return venue.StatusOffline, err
	}
	now := time.Now()
	a.lastSeen = now

	var blockHex string
	if err := json.Unmarshal(result, &blockHex); err != nil {
		return venue.StatusDegraded, venueerr.Wrap(venueerr.VenueError, "parse block number", err)
	}
	current := new(big.Int)
	if _, ok := current.SetString(strings.TrimPrefix(blockHex, "0x"), 16); !ok {
		return venue.StatusDegraded, venueerr.New(venueerr.VenueError, "malformed block number")
	}
	if current.Sign() <= 0 {
		return venue.StatusDegraded, venueerr.New(venueerr.VenueError, "chain reports non-positive block height")
	}

	a.headMu.Lock()
	defer a.headMu.Unlock()

	status := venue.StatusHealthy
	if a.headRefBlock != nil && !a.headRefTime.IsZero() {
		elapsedBlocks := int64(now.Sub(a.headRefTime) / nominalBlockTime)
		expected := new(big.Int).Add(a.headRefBlock, big.NewInt(elapsedBlocks))
		drift := new(big.Int).Abs(new(big.Int).Sub(current, expected))
		if drift.Cmp(big.NewInt(headProximityBlocks)) > 0 {
			status = venue.StatusDegraded
		}
	}
	a.headRefBlock = current
	a.headRefTime = now
	return status, nil
}

// GetBalance is not meaningful without an (address, tokenContract) pair;
// chain adapters expose GetBalanceOf instead. Present to satisfy the
// shared Adapter interface (spec §4.1: chain adapters still implement the
// base four operations, with balance routed through GetBalanceOf).
func (a *Adapter) GetBalance(ctx context.Context, symbol string) (venue.Holding, error) {
	return venue.Holding{}, venueerr.New(venueerr.ValidationError, "chain adapters require an address and token contract; use GetBalanceOf")
}

// GetBalanceOf calls the ERC-20 balanceOf(address) view function via
// eth_call and normalizes the raw integer by the token's cached decimals.
func (a *Adapter) GetBalanceOf(ctx context.Context, address, tokenContract string) (venue.Holding, error) {
	if !addressRE.MatchString(address) {
		return venue.Holding{}, venueerr.New(venueerr.ValidationError, "address must match ^0x[0-9a-fA-F]{40}$")
	}
	if !addressRE.MatchString(tokenContract) {
		return venue.Holding{}, venueerr.New(venueerr.ValidationError, "tokenContract must match ^0x[0-9a-fA-F]{40}$")
	}

	meta, err := a.tokenMetadata(ctx, tokenContract)
	if err != nil {
		return venue.Holding{}, err
	}

	// balanceOf(address) selector: 0x70a08231, padded to 32 bytes.
	data := "0x70a08231" + strings.Repeat("0", 24) + strings.TrimPrefix(address, "0x")
	params := []any{
		map[string]any{"to": tokenContract, "data": data},
		"latest",
	}
	result, err := a.call(ctx, "eth_call", params)
	if err != nil {
		return venue.Holding{}, err
	}

	var hexValue string
	if err := json.Unmarshal(result, &hexValue); err != nil {
		return venue.Holding{}, venueerr.Wrap(venueerr.VenueError, "parse eth_call result", err)
	}

	raw := new(big.Int)
	if _, ok := raw.SetString(strings.TrimPrefix(hexValue, "0x"), 16); !ok {
		return venue.Holding{}, venueerr.New(venueerr.VenueError, "malformed eth_call result")
	}

	native := decimal.NewFromBigInt(raw, -meta.Decimals)
	return venue.Holding{
		VenueID:   a.info.ID,
		Symbol:    meta.Symbol,
		Native:    native,
		SampledAt: time.Now().UTC(),
	}, nil
}

// TrackTransfers scans a bounded recent window of blocks for ERC-20
// Transfer events touching address (spec §4.1 "bounded block-window
// transfer scan via eth_getLogs" — unbounded scans are explicitly a
// non-goal).
func (a *Adapter) TrackTransfers(ctx context.Context, address, token string) ([]venue.Transfer, error) {
	if !addressRE.MatchString(address) {
		return nil, venueerr.New(venueerr.ValidationError, "address must match ^0x[0-9a-fA-F]{40}$")
	}

	latestHex, err := a.call(ctx, "eth_blockNumber", []any{})
	if err != nil {
		return nil, err
	}
	var latestStr string
	if err := json.Unmarshal(latestHex, &latestStr); err != nil {
		return nil, venueerr.Wrap(venueerr.VenueError, "parse latest block", err)
	}
	latest := new(big.Int)
	latest.SetString(strings.TrimPrefix(latestStr, "0x"), 16)

	// from = max(lastSeenBlock, currentBlock - transferScanWindow), spec §4.1.
	recentFloor := new(big.Int).Sub(latest, big.NewInt(transferScanWindow))
	if recentFloor.Sign() < 0 {
		recentFloor.SetInt64(0)
	}
	a.scanMu.Lock()
	from := new(big.Int).SetUint64(a.lastSeenBlock)
	a.scanMu.Unlock()
	if recentFloor.Cmp(from) > 0 {
		from = recentFloor
	}

	// Transfer(address,address,uint256) topic0.
	const transferTopic = "0xddf252ad1be2c89b69c2b068fc378daa952ba7f163c4a11628f55a4df523b3ef"
	paddedAddr := "0x" + strings.Repeat("0", 24) + strings.TrimPrefix(address, "0x")

	params := []any{map[string]any{
		"fromBlock": "0x" + from.Text(16),
		"toBlock":   "0x" + latest.Text(16),
		"address":   token,
		"topics":    []any{transferTopic, nil, paddedAddr},
	}}
	result, err := a.call(ctx, "eth_getLogs", params)
	if err != nil {
		return nil, err
	}

	var logs []struct {
		TransactionHash string   `json:"transactionHash"`
		BlockNumber     string   `json:"blockNumber"`
		Topics          []string `json:"topics"`
		Data            string   `json:"data"`
	}
	if err := json.Unmarshal(result, &logs); err != nil {
		return nil, venueerr.Wrap(venueerr.VenueError, "parse eth_getLogs result", err)
	}

	meta, err := a.tokenMetadata(ctx, token)
	if err != nil {
		return nil, err
	}

	transfers := make([]venue.Transfer, 0, len(logs))
	for _, l := range logs {
		blockNum := new(big.Int)
		blockNum.SetString(strings.TrimPrefix(l.BlockNumber, "0x"), 16)
		amount := new(big.Int)
		amount.SetString(strings.TrimPrefix(l.Data, "0x"), 16)

		confirmations := uint64(0)
		if latest.Cmp(blockNum) >= 0 {
			confirmations = new(big.Int).Sub(latest, blockNum).Uint64() + 1
		}

		var fromAddr, toAddr string
		if len(l.Topics) >= 3 {
			fromAddr = "0x" + l.Topics[1][len(l.Topics[1])-40:]
			toAddr = "0x" + l.Topics[2][len(l.Topics[2])-40:]
		}

		transfers = append(transfers, venue.Transfer{
			TxHash:        l.TransactionHash,
			BlockHeight:   blockNum.Uint64(),
			From:          fromAddr,
			To:            toAddr,
			Amount:        decimal.NewFromBigInt(amount, -meta.Decimals),
			Token:         meta.Symbol,
			ObservedAt:    time.Now().UTC(),
			Confirmations: confirmations,
		})
	}

	a.scanMu.Lock()
	if latest.IsUint64() && latest.Uint64() > a.lastSeenBlock {
		a.lastSeenBlock = latest.Uint64()
	}
	a.scanMu.Unlock()

	log.Debug().Str("venue", a.info.ID).Int("transfers", len(transfers)).Uint64("fromBlock", from.Uint64()).Msg("scanned transfer window")
	return transfers, nil
}

// GetConfirmationStatus counts confirmations for a transaction hash
// against the adapter's configured threshold.
func (a *Adapter) GetConfirmationStatus(ctx context.Context, txHash string) (venue.ConfirmationStatus, error) {
	if !txHashRE.MatchString(txHash) {
		return venue.ConfirmationStatus{}, venueerr.New(venueerr.ValidationError, "txHash must match ^0x[0-9a-fA-F]{64}$")
	}

	result, err := a.call(ctx, "eth_getTransactionReceipt", []any{txHash})
	if err != nil {
		return venue.ConfirmationStatus{}, err
	}
	if string(result) == "null" {
		return venue.ConfirmationStatus{Required: a.confirmationThreshold}, venueerr.New(venueerr.NotFound, "transaction not found or pending")
	}

	var receipt struct {
		BlockNumber string `json:"blockNumber"`
	}
	if err := json.Unmarshal(result, &receipt); err != nil {
		return venue.ConfirmationStatus{}, venueerr.Wrap(venueerr.VenueError, "parse transaction receipt", err)
	}
	txBlock := new(big.Int)
	txBlock.SetString(strings.TrimPrefix(receipt.BlockNumber, "0x"), 16)

	latestHex, err := a.call(ctx, "eth_blockNumber", []any{})
	if err != nil {
		return venue.ConfirmationStatus{}, err
	}
	var latestStr string
	json.Unmarshal(latestHex, &latestStr)
	latest := new(big.Int)
	latest.SetString(strings.TrimPrefix(latestStr, "0x"), 16)

	confirmations := uint64(0)
	if latest.Cmp(txBlock) >= 0 {
		confirmations = new(big.Int).Sub(latest, txBlock).Uint64() + 1
	}

	return venue.ConfirmationStatus{
		Confirmations: confirmations,
		Required:      a.confirmationThreshold,
		IsConfirmed:   confirmations >= a.confirmationThreshold,
	}, nil
}

// SetConfirmationThreshold changes how many confirmations are required
// before a transfer is considered final (spec §7 resilience hook
// "RaiseConfirmationThreshold").
func (a *Adapter) SetConfirmationThreshold(n uint64) error {
	if n == 0 {
		return venueerr.New(venueerr.ValidationError, "confirmation threshold must be positive")
	}
	a.confirmationThreshold = n
	return nil
}

func (a *Adapter) tokenMetadata(ctx context.Context, contract string) (tokenMeta, error) {
	key := strings.ToLower(contract)
	a.metaMu.Lock()
	if m, ok := a.meta[key]; ok {
		a.metaMu.Unlock()
		return m, nil
	}
	a.metaMu.Unlock()

	decimalsResult, err := a.call(ctx, "eth_call", []any{
		map[string]any{"to": contract, "data": "0x313ce567"}, // decimals()
		"latest",
	})
	if err != nil {
		return tokenMeta{}, err
	}
	var decimalsHex string
	json.Unmarshal(decimalsResult, &decimalsHex)
	decimalsBig := new(big.Int)
	decimalsBig.SetString(strings.TrimPrefix(decimalsHex, "0x"), 16)

	symbolResult, err := a.call(ctx, "eth_call", []any{
		map[string]any{"to": contract, "data": "0x95d89b41"}, // symbol()
		"latest",
	})
	if err != nil {
		return tokenMeta{}, err
	}
	symbol := decodeABIString(symbolResult)

	m := tokenMeta{Symbol: symbol, Decimals: int32(decimalsBig.Int64())}
	a.metaMu.Lock()
	a.meta[key] = m
	a.metaMu.Unlock()
	return m, nil
}

// decodeABIString decodes a dynamic ABI-encoded string return value
// (offset + length + padded UTF-8 bytes) from an eth_call hex result.
func decodeABIString(raw json.RawMessage) string {
	var hexValue string
	if err := json.Unmarshal(raw, &hexValue); err != nil {
		return ""
	}
	data := strings.TrimPrefix(hexValue, "0x")
	if len(data) < 128 {
		return ""
	}
	lengthHex := data[64:128]
	length := new(big.Int)
	length.SetString(lengthHex, 16)
	n := length.Int64()
	if n <= 0 || 128+n*2 > int64(len(data)) {
		return ""
	}
	strBytes := data[128 : 128+n*2]
	decoded := make([]byte, 0, n)
	for i := int64(0); i < n; i++ {
		var b byte
		fmt.Sscanf(strBytes[i*2:i*2+2], "%02x", &b)
		decoded = append(decoded, b)
	}
	return string(decoded)
}

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	Method  string `json:"method"`
	Params  []any  `json:"params"`
	ID      int64  `json:"id"`
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func (a *Adapter) call(ctx context.Context, method string, params []any) (json.RawMessage, error) {
	a.reqID++
	reqBody, err := json.Marshal(rpcRequest{JSONRPC: "2.0", Method: method, Params: params, ID: a.reqID})
	if err != nil {
		return nil, venueerr.Wrap(venueerr.InternalError, "marshal rpc request", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.rpcURL, bytes.NewReader(reqBody))
	if err != nil {
		return nil, venueerr.Wrap(venueerr.NetworkError, "build rpc request", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, venueerr.Wrap(venueerr.NetworkError, "rpc request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, venueerr.New(venueerr.RateLimitError, "rpc endpoint rate limited")
	}
	if resp.StatusCode != http.StatusOK {
		return nil, venueerr.New(venueerr.VenueError, fmt.Sprintf("rpc endpoint returned %d", resp.StatusCode))
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, venueerr.Wrap(venueerr.NetworkError, "read rpc response", err)
	}

	var rpcResp rpcResponse
	if err := json.Unmarshal(body, &rpcResp); err != nil {
		return nil, venueerr.Wrap(venueerr.VenueError, "parse rpc response", err)
	}
	if rpcResp.Error != nil {
		return nil, venueerr.New(venueerr.VenueError, fmt.Sprintf("rpc error %d: %s", rpcResp.Error.Code, rpcResp.Error.Message))
	}
	return rpcResp.Result, nil
}
