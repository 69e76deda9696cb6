// Package config loads the engine's tunable constants (spec.md §3
// Configuration table) from environment variables, optionally preceded
// by a .env file. The getEnv* helper shape follows the teacher's own
// config package.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

// EngineConfig is the immutable set of tunables consulted by the
// exchange client, the signal state machine, and the loops.
type EngineConfig struct {
	PercentFee       decimal.Decimal
	PercentSlippage  decimal.Decimal
	MinTpDistancePct decimal.Decimal
	MaxSlDistancePct decimal.Decimal

	MaxSignalLifetimeMin int
	ScheduleAwaitMin     int

	AvgPriceCandlesCount int

	CandlesRetryCount   int
	CandlesRetryDelayMs int

	MedianCandlesLookback int
	PriceAnomalyThreshold decimal.Decimal

	TickPollInterval time.Duration

	// BreakevenSafetyMultiplier and TrailingStepPct resolve the Open
	// Questions in spec.md §9 (see SPEC_FULL.md §E).
	BreakevenSafetyMultiplier decimal.Decimal
	TrailingStepPct           decimal.Decimal

	// AllowPreActivationStopCancel gates spec.md §4.5 rule A (a
	// scheduled signal may be cancelled by a stop-loss cross before
	// activation). Default true.
	AllowPreActivationStopCancel bool
}

// Default returns the engine's default configuration, matching every
// row of spec.md §3's Configuration table.
func Default() *EngineConfig {
	return &EngineConfig{
		PercentFee:                   decimal.NewFromFloat(0.001),
		PercentSlippage:              decimal.NewFromFloat(0.001),
		MinTpDistancePct:             decimal.NewFromFloat(0.0022),
		MaxSlDistancePct:             decimal.NewFromFloat(1.0),
		MaxSignalLifetimeMin:         10080,
		ScheduleAwaitMin:             120,
		AvgPriceCandlesCount:         5,
		CandlesRetryCount:            3,
		CandlesRetryDelayMs:          1000,
		MedianCandlesLookback:        20,
		PriceAnomalyThreshold:        decimal.NewFromFloat(0.5),
		TickPollInterval:             61 * time.Second,
		BreakevenSafetyMultiplier:    decimal.NewFromFloat(1.5),
		TrailingStepPct:              decimal.Zero,
		AllowPreActivationStopCancel: true,
	}
}

// Load reads a .env file (if present) then overlays environment
// variables onto Default(), returning an error only if the resulting
// configuration fails validate().
func Load() (*EngineConfig, error) {
	_ = godotenv.Load()

	cfg := Default()

	cfg.PercentFee = getEnvDecimal("ENGINE_PERCENT_FEE", cfg.PercentFee)
	cfg.PercentSlippage = getEnvDecimal("ENGINE_PERCENT_SLIPPAGE", cfg.PercentSlippage)
	cfg.MinTpDistancePct = getEnvDecimal("ENGINE_MIN_TP_DISTANCE_PCT", cfg.MinTpDistancePct)
	cfg.MaxSlDistancePct = getEnvDecimal("ENGINE_MAX_SL_DISTANCE_PCT", cfg.MaxSlDistancePct)
	cfg.MaxSignalLifetimeMin = getEnvInt("ENGINE_MAX_SIGNAL_LIFETIME_MIN", cfg.MaxSignalLifetimeMin)
	cfg.ScheduleAwaitMin = getEnvInt("ENGINE_SCHEDULE_AWAIT_MIN", cfg.ScheduleAwaitMin)
	cfg.AvgPriceCandlesCount = getEnvInt("ENGINE_AVG_PRICE_CANDLES_COUNT", cfg.AvgPriceCandlesCount)
	cfg.CandlesRetryCount = getEnvInt("ENGINE_CANDLES_RETRY_COUNT", cfg.CandlesRetryCount)
	cfg.CandlesRetryDelayMs = getEnvInt("ENGINE_CANDLES_RETRY_DELAY_MS", cfg.CandlesRetryDelayMs)
	cfg.MedianCandlesLookback = getEnvInt("ENGINE_MEDIAN_CANDLES_LOOKBACK", cfg.MedianCandlesLookback)
	cfg.PriceAnomalyThreshold = getEnvDecimal("ENGINE_PRICE_ANOMALY_THRESHOLD", cfg.PriceAnomalyThreshold)
	cfg.TickPollInterval = getEnvDuration("ENGINE_TICK_POLL_INTERVAL_MS", cfg.TickPollInterval)
	cfg.BreakevenSafetyMultiplier = getEnvDecimal("ENGINE_BREAKEVEN_SAFETY_MULTIPLIER", cfg.BreakevenSafetyMultiplier)
	cfg.TrailingStepPct = getEnvDecimal("ENGINE_TRAILING_STEP_PCT", cfg.TrailingStepPct)
	cfg.AllowPreActivationStopCancel = getEnvBool("ENGINE_ALLOW_PRE_ACTIVATION_STOP_CANCEL", cfg.AllowPreActivationStopCancel)

	return cfg, cfg.validate()
}

func (c *EngineConfig) validate() error {
	var missing []string
	if c.MaxSignalLifetimeMin <= 0 {
		missing = append(missing, "ENGINE_MAX_SIGNAL_LIFETIME_MIN must be positive")
	}
	if c.ScheduleAwaitMin <= 0 {
		missing = append(missing, "ENGINE_SCHEDULE_AWAIT_MIN must be positive")
	}
	if c.AvgPriceCandlesCount <= 0 {
		missing = append(missing, "ENGINE_AVG_PRICE_CANDLES_COUNT must be positive")
	}
	if c.MedianCandlesLookback <= 0 {
		missing = append(missing, "ENGINE_MEDIAN_CANDLES_LOOKBACK must be positive")
	}
	if len(missing) > 0 {
		return fmt.Errorf("invalid configuration: %s", strings.Join(missing, "; "))
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	switch strings.ToLower(value) {
	case "true", "1", "yes", "y", "on":
		return true
	case "false", "0", "no", "n", "off":
		return false
	default:
		return defaultValue
	}
}

func getEnvInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if intValue, err := strconv.Atoi(value); err == nil {
		return intValue
	}
	return defaultValue
}

func getEnvDecimal(key string, defaultValue decimal.Decimal) decimal.Decimal {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if parsed, err := decimal.NewFromString(value); err == nil {
		return parsed
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValueMs time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValueMs
	}
	if ms, err := strconv.Atoi(value); err == nil {
		return time.Duration(ms) * time.Millisecond
	}
	return defaultValueMs
}
