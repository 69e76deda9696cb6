package exchangeclient

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/guyghost/backtestkit/internal/ambient"
	"github.com/guyghost/backtestkit/internal/circuitbreaker"
	"github.com/guyghost/backtestkit/internal/config"
	"github.com/guyghost/backtestkit/internal/enginerr"
	"github.com/guyghost/backtestkit/internal/logger"
	"github.com/guyghost/backtestkit/internal/ratelimit"
)

// FetchFunc fetches up to limit candles at the given interval, ending at
// or before (GetCandles) / strictly after (GetNextCandles) the boundary
// timestamp.
type FetchFunc func(ctx context.Context, symbol, interval string, limit int, boundary time.Time) ([]Candle, error)

// AveragePriceFunc is a user override of the default VWAP calculation.
type AveragePriceFunc func(ctx context.Context, symbol string) (decimal.Decimal, error)

// FormatFunc renders a price or quantity for display/order-sizing
// purposes, per the exchange's tick/lot conventions.
type FormatFunc func(symbol string, value decimal.Decimal) string

// ExchangeSchema is the user-supplied collaborator contract for an
// exchange integration (spec.md §4.4, §6). FetchCandles and
// FetchNextCandles are required; AveragePriceOverride, FormatPriceFn and
// FormatQuantityFn are optional and fall back to engine defaults.
type ExchangeSchema struct {
	Name string

	FetchCandles     FetchFunc
	FetchNextCandles FetchFunc

	AveragePriceOverride AveragePriceFunc
	FormatPriceFn        FormatFunc
	FormatQuantityFn     FormatFunc
}

// Validate implements schema.Validatable.
func (s ExchangeSchema) Validate() error {
	if s.Name == "" {
		return fmt.Errorf("%w: exchange schema name must not be empty", enginerr.ErrInvalidSignal)
	}
	if s.FetchCandles == nil {
		return fmt.Errorf("%w: exchange schema %q missing FetchCandles", enginerr.ErrInvalidSignal, s.Name)
	}
	if s.FetchNextCandles == nil {
		return fmt.Errorf("%w: exchange schema %q missing FetchNextCandles", enginerr.ErrInvalidSignal, s.Name)
	}
	return nil
}

// ClientExchange wraps an ExchangeSchema with look-ahead prevention,
// retries, a per-name rate limiter, a per-name circuit breaker, and
// anomaly detection.
type ClientExchange struct {
	schema ExchangeSchema
	cfg    *config.EngineConfig

	breaker *circuitbreaker.CircuitBreaker
	limiter ratelimit.Limiter

	log *logger.Logger
}

// New constructs a ClientExchange for the given schema.
func New(schema ExchangeSchema, cfg *config.EngineConfig) *ClientExchange {
	return &ClientExchange{
		schema:  schema,
		cfg:     cfg,
		breaker: circuitbreaker.New(schema.Name, circuitbreaker.DefaultConfig()),
		limiter: ratelimit.NewTokenBucket(5, 5),
		log:     logger.Component("exchangeclient").Exchange(schema.Name),
	}
}

// GetCandles returns up to limit candles with timestamps at or before
// the ambient ExecutionContext's `when`, ordered ascending. Mandatory
// look-ahead prevention: even in live mode the schema is asked for
// candles bounded by `when`, though in practice `when` tracks real time
// there.
func (c *ClientExchange) GetCandles(ctx context.Context, symbol, interval string, limit int) ([]Candle, error) {
	ec, err := ambient.CurrentExecutionContext(ctx)
	if err != nil {
		return nil, enginerr.New(enginerr.OpGetCandles, symbol, err)
	}

	candles, err := c.fetchWithRetry(ctx, c.schema.FetchCandles, symbol, interval, limit, ec.When)
	if err != nil {
		return nil, enginerr.New(enginerr.OpGetCandles, symbol, err)
	}

	bounded := make([]Candle, 0, len(candles))
	for _, candle := range candles {
		if !candle.Time().After(ec.When) {
			bounded = append(bounded, candle)
		}
	}
	return bounded, nil
}

// GetNextCandles returns candles strictly after `when`; allowed only in
// backtest mode per spec.md §4.4.
func (c *ClientExchange) GetNextCandles(ctx context.Context, symbol, interval string, limit int) ([]Candle, error) {
	ec, err := ambient.CurrentExecutionContext(ctx)
	if err != nil {
		return nil, enginerr.New(enginerr.OpGetNextCandles, symbol, err)
	}
	if !ec.Backtest {
		return nil, enginerr.New(enginerr.OpGetNextCandles, symbol, enginerr.ErrFutureDataInLive)
	}

	candles, err := c.fetchWithRetry(ctx, c.schema.FetchNextCandles, symbol, interval, limit, ec.When)
	if err != nil {
		return nil, enginerr.New(enginerr.OpGetNextCandles, symbol, err)
	}

	after := make([]Candle, 0, len(candles))
	for _, candle := range candles {
		if candle.Time().After(ec.When) {
			after = append(after, candle)
		}
	}
	return after, nil
}

// fetchWithRetry retries fetch per cfg.CandlesRetryCount, running each
// attempt through the circuit breaker and rate limiter, rejecting
// anomalous results per spec.md §4.4.
func (c *ClientExchange) fetchWithRetry(ctx context.Context, fetch FetchFunc, symbol, interval string, limit int, boundary time.Time) ([]Candle, error) {
	var lastErr error

	for attempt := 0; attempt <= c.cfg.CandlesRetryCount; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}

		var candles []Candle
		execErr := c.breaker.Execute(ctx, func() error {
			fetched, err := fetch(ctx, symbol, interval, limit, boundary)
			if err != nil {
				return err
			}
			if err := EnsureAscending(fetched); err != nil {
				return err
			}
			for _, candle := range fetched {
				if err := candle.Validate(); err != nil {
					return fmt.Errorf("%w: %v", enginerr.ErrCandleAnomaly, err)
				}
			}
			if len(fetched) > 0 {
				lookback := fetched[:len(fetched)-1]
				if len(lookback) > c.cfg.MedianCandlesLookback {
					lookback = lookback[len(lookback)-c.cfg.MedianCandlesLookback:]
				}
				if DetectAnomaly(lookback, fetched[len(fetched)-1], c.cfg.PriceAnomalyThreshold) {
					return enginerr.ErrCandleAnomaly
				}
			}
			candles = fetched
			return nil
		})

		if execErr == nil {
			return candles, nil
		}

		lastErr = execErr
		c.log.WithError(execErr).Warn("candle fetch attempt failed", "attempt", attempt, "symbol", symbol)

		if attempt < c.cfg.CandlesRetryCount {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(time.Duration(c.cfg.CandlesRetryDelayMs) * time.Millisecond):
			}
		}
	}

	return nil, fmt.Errorf("%w: %v", enginerr.ErrCandleFetchFailed, lastErr)
}

// GetAveragePrice returns the VWAP over the last AvgPriceCandlesCount 1m
// candles using typical price (high+low+close)/3, or the schema's
// override if supplied.
func (c *ClientExchange) GetAveragePrice(ctx context.Context, symbol string) (decimal.Decimal, error) {
	if c.schema.AveragePriceOverride != nil {
		return c.schema.AveragePriceOverride(ctx, symbol)
	}

	candles, err := c.GetCandles(ctx, symbol, "1m", c.cfg.AvgPriceCandlesCount)
	if err != nil {
		return decimal.Zero, enginerr.New(enginerr.OpAveragePrice, symbol, err)
	}
	if len(candles) == 0 {
		return decimal.Zero, enginerr.New(enginerr.OpAveragePrice, symbol, enginerr.ErrCandleFetchFailed)
	}

	var weightedSum, totalVolume decimal.Decimal
	for _, candle := range candles {
		weightedSum = weightedSum.Add(candle.TypicalPrice().Mul(candle.Volume))
		totalVolume = totalVolume.Add(candle.Volume)
	}
	if totalVolume.IsZero() {
		// Fall back to a simple average of typical prices when every
		// candle in the window reports zero volume.
		var sum decimal.Decimal
		for _, candle := range candles {
			sum = sum.Add(candle.TypicalPrice())
		}
		return sum.Div(decimal.NewFromInt(int64(len(candles)))), nil
	}
	return weightedSum.Div(totalVolume), nil
}

// FormatPrice renders p per the schema's formatting rule, falling back
// to a plain decimal string.
func (c *ClientExchange) FormatPrice(symbol string, p decimal.Decimal) string {
	if c.schema.FormatPriceFn != nil {
		return c.schema.FormatPriceFn(symbol, p)
	}
	return p.String()
}

// FormatQuantity renders q per the schema's formatting rule, falling
// back to a plain decimal string.
func (c *ClientExchange) FormatQuantity(symbol string, q decimal.Decimal) string {
	if c.schema.FormatQuantityFn != nil {
		return c.schema.FormatQuantityFn(symbol, q)
	}
	return q.String()
}
