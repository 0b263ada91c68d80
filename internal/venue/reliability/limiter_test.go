package reliability

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLimiter_AllowRespectsBurst(t *testing.T) {
	l := NewLimiter(1, 2)
	assert.True(t, l.Allow())
	assert.True(t, l.Allow())
	assert.False(t, l.Allow(), "burst of 2 exhausted on third immediate call")
}

func TestLimiter_WaitBlocksUntilTokenOrDeadline(t *testing.T) {
	l := NewLimiter(1, 1)
	require.True(t, l.Allow()) // drain the single burst token

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	err := l.Wait(ctx)
	require.Error(t, err, "no token available before the deadline")
}

func TestLimiter_BurstOfThreeAllowsThreeImmediateCalls(t *testing.T) {
	l := NewLimiter(1, 3)
	assert.True(t, l.Allow())
	assert.True(t, l.Allow())
	assert.True(t, l.Allow())
	assert.False(t, l.Allow())
}

func TestLimiter_TokensReportsEstimate(t *testing.T) {
	l := NewLimiter(1, 5)
	assert.InDelta(t, 5, l.Tokens(), 0.01)
}
