package persistence_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/guyghost/backtestkit/internal/persistence"
)

func TestKeyJoinsStrategyAndSymbol(t *testing.T) {
	assert.Equal(t, "trend:BTC-USD", persistence.Key("trend", "BTC-USD"))
}

func TestNoOpRoundTripsValues(t *testing.T) {
	ctx := context.Background()
	adapter := persistence.NewNoOp()
	require.NoError(t, adapter.WaitForInit(ctx, true))

	has, err := adapter.HasValue(ctx, "trend:BTC-USD")
	require.NoError(t, err)
	assert.False(t, has)

	require.NoError(t, adapter.WriteValue(ctx, "trend:BTC-USD", []byte(`{"state":"pending"}`)))

	has, err = adapter.HasValue(ctx, "trend:BTC-USD")
	require.NoError(t, err)
	assert.True(t, has)

	v, err := adapter.ReadValue(ctx, "trend:BTC-USD")
	require.NoError(t, err)
	assert.JSONEq(t, `{"state":"pending"}`, string(v))

	keys, err := adapter.Keys(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"trend:BTC-USD"}, keys)

	require.NoError(t, adapter.RemoveValue(ctx, "trend:BTC-USD"))
	has, err = adapter.HasValue(ctx, "trend:BTC-USD")
	require.NoError(t, err)
	assert.False(t, has)
}
