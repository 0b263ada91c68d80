package security

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sawpanic/goldrouter/internal/audit"
	venueerr "github.com/sawpanic/goldrouter/internal/venue/errors"
)

func fixedKey() []byte {
	k := make([]byte, 32)
	for i := range k {
		k[i] = byte(i)
	}
	return k
}

// TestManager_WithdrawalCapableCredentialsRejected is scenario S5 from
// spec §8: storeCredentials with withdraw permission always fails with
// PERMISSION_ERROR, and a subsequent retrieve returns NOT_FOUND.
func TestManager_WithdrawalCapableCredentialsRejected(t *testing.T) {
	j := audit.New()
	m := NewWithKey(fixedKey(), j)
	ctx := context.Background()

	err := m.StoreCredentials(ctx, "bitfinex", "key-1", []byte("secret"), []string{"trade", "withdraw"})
	require.Error(t, err)
	ve, ok := venueerr.As(err)
	require.True(t, ok)
	assert.Equal(t, venueerr.PermissionError, ve.Code)

	_, _, _, _, err = m.RetrieveCredentials(ctx, "bitfinex")
	require.Error(t, err)
	ve, ok = venueerr.As(err)
	require.True(t, ok)
	assert.Equal(t, venueerr.NotFound, ve.Code)

	records := j.Export(time.Time{}, time.Time{})
	require.Len(t, records, 2) // CRED_STORED(false) + CRED_RETRIEVED(false)
	assert.Equal(t, audit.KindCredStored, records[0].Kind)
	assert.Equal(t, false, records[0].Details["success"])
}

func TestManager_ValidCredentialsRoundTrip(t *testing.T) {
	j := audit.New()
	m := NewWithKey(fixedKey(), j)
	ctx := context.Background()

	err := m.StoreCredentials(ctx, "bitfinex", "key-1", []byte("super-secret"), []string{"trade", "no-withdraw"})
	require.NoError(t, err)

	venueID, keyID, secret, perms, err := m.RetrieveCredentials(ctx, "bitfinex")
	require.NoError(t, err)
	assert.Equal(t, "bitfinex", venueID)
	assert.Equal(t, "key-1", keyID)
	assert.Equal(t, []byte("super-secret"), secret)
	assert.Contains(t, perms, "no-withdraw")
}

func TestManager_MissingNoWithdrawFactRejected(t *testing.T) {
	m := NewWithKey(fixedKey(), audit.New())
	err := m.StoreCredentials(context.Background(), "v1", "k1", []byte("s"), []string{"trade"})
	require.Error(t, err)
	ve, ok := venueerr.As(err)
	require.True(t, ok)
	assert.Equal(t, venueerr.PermissionError, ve.Code)
}

func TestManager_DisconnectWipesCredentials(t *testing.T) {
	m := NewWithKey(fixedKey(), audit.New())
	ctx := context.Background()
	require.NoError(t, m.StoreCredentials(ctx, "v1", "k1", []byte("s"), []string{"no-withdraw"}))

	m.Disconnect("v1")

	_, _, _, _, err := m.RetrieveCredentials(ctx, "v1")
	require.Error(t, err)
}
