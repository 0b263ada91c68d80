package main

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sawpanic/goldrouter/internal/venue/chain"
	venueerr "github.com/sawpanic/goldrouter/internal/venue/errors"
)

// TestChainSource_GetBalanceRequiresHolderConfig is scenario S1 from spec
// §8/§9: an onchain venue only contributes to the portfolio once it carries
// a holder address and token contract; without them it must fail closed
// rather than silently reporting zero.
func TestChainSource_GetBalanceRequiresHolderConfig(t *testing.T) {
	adapter := chain.NewAdapter("ethereum-ref", "https://rpc.example.com", nil)
	s := chainSource{adapter: adapter}

	_, err := s.GetBalance(context.Background(), "KAU")
	require.Error(t, err)
	ve, ok := venueerr.As(err)
	require.True(t, ok)
	assert.Equal(t, venueerr.ValidationError, ve.Code)
}

// TestChainSource_GetBalanceDelegatesToGetBalanceOf confirms the composition
// root routes portfolio balance lookups through the (address, token
// contract) pair rather than the symbol-keyed GetBalance, which chain
// adapters reject by design.
func TestChainSource_GetBalanceDelegatesToGetBalanceOf(t *testing.T) {
	adapter := chain.NewAdapter("ethereum-ref", "https://rpc.example.com", nil)
	s := chainSource{
		adapter:       adapter,
		holderAddress: "not-a-valid-address",
		tokenContract: "0x" + repeat40("1"),
	}

	_, err := s.GetBalance(context.Background(), "KAU")
	require.Error(t, err)
	ve, ok := venueerr.As(err)
	require.True(t, ok)
	assert.Equal(t, venueerr.ValidationError, ve.Code, "a malformed holder address must surface GetBalanceOf's own validation, proving GetBalance delegates to it")
}

func repeat40(s string) string {
	out := ""
	for i := 0; i < 40; i++ {
		out += s
	}
	return out
}
