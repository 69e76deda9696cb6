package config

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultMatchesSpecDefaults(t *testing.T) {
	cfg := Default()

	assert.True(t, cfg.PercentFee.Equal(decimal.NewFromFloat(0.001)))
	assert.True(t, cfg.PercentSlippage.Equal(decimal.NewFromFloat(0.001)))
	assert.Equal(t, 10080, cfg.MaxSignalLifetimeMin)
	assert.Equal(t, 120, cfg.ScheduleAwaitMin)
	assert.True(t, cfg.TrailingStepPct.IsZero())
	assert.True(t, cfg.AllowPreActivationStopCancel)
}

func TestLoadOverlaysEnvironmentOntoDefaults(t *testing.T) {
	t.Setenv("ENGINE_MAX_SIGNAL_LIFETIME_MIN", "60")
	t.Setenv("ENGINE_PERCENT_FEE", "0.002")
	t.Setenv("ENGINE_ALLOW_PRE_ACTIVATION_STOP_CANCEL", "false")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 60, cfg.MaxSignalLifetimeMin)
	assert.True(t, cfg.PercentFee.Equal(decimal.NewFromFloat(0.002)))
	assert.False(t, cfg.AllowPreActivationStopCancel)
}

func TestLoadIgnoresUnparsableValuesAndKeepsDefault(t *testing.T) {
	t.Setenv("ENGINE_MAX_SIGNAL_LIFETIME_MIN", "not-a-number")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, Default().MaxSignalLifetimeMin, cfg.MaxSignalLifetimeMin)
}

func TestLoadRejectsNonPositiveLifetimes(t *testing.T) {
	t.Setenv("ENGINE_MAX_SIGNAL_LIFETIME_MIN", "0")

	_, err := Load()
	require.Error(t, err)
}
