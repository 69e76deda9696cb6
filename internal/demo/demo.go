// Package demo wires a self-contained exchange/frame/strategy/risk
// schema set for the cmd/backtest, cmd/live, and cmd/walker
// entrypoints: a CSV-or-synthetic candle feed behind exchangeclient,
// an EMA-crossover/RSI strategy behind strategyclient, and a
// max-concurrent-positions risk gate. None of it is meant to trade for
// real; it exists so the three commands have something concrete to run
// against the engine facade.
package demo

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/guyghost/backtestkit/internal/exchangeclient"
	"github.com/guyghost/backtestkit/internal/frameclient"
	"github.com/guyghost/backtestkit/internal/marketdata"
	"github.com/guyghost/backtestkit/internal/riskclient"
	"github.com/guyghost/backtestkit/internal/signal"
	"github.com/guyghost/backtestkit/internal/strategyclient"
)

// DataSource configures how the demo exchange schema obtains candles:
// either a CSV file path or a synthetic sample series.
type DataSource struct {
	CSVPath       string
	SampleCandles int
	SampleStart   time.Time
	BasePrice     float64
}

// Load resolves the configured source into an ascending candle series.
func (d DataSource) Load() ([]exchangeclient.Candle, error) {
	if d.CSVPath != "" {
		return marketdata.LoadCSV(d.CSVPath)
	}
	count := d.SampleCandles
	if count <= 0 {
		count = 1000
	}
	start := d.SampleStart
	if start.IsZero() {
		start = time.Now().Add(-24 * time.Hour * 30)
	}
	basePrice := d.BasePrice
	if basePrice <= 0 {
		basePrice = 50000
	}
	return marketdata.GenerateSample(start, count, basePrice), nil
}

// ExchangeSchema builds an ExchangeSchema that serves candles out of a
// preloaded in-memory series, honoring the boundary timestamp FetchFunc
// receives (the engine's own look-ahead guard, not this schema's job).
func ExchangeSchema(name string, candles []exchangeclient.Candle) exchangeclient.ExchangeSchema {
	return exchangeclient.ExchangeSchema{
		Name: name,
		FetchCandles: func(_ context.Context, _, _ string, limit int, boundary time.Time) ([]exchangeclient.Candle, error) {
			return sliceAtOrBefore(candles, boundary, limit), nil
		},
		FetchNextCandles: func(_ context.Context, _, _ string, limit int, boundary time.Time) ([]exchangeclient.Candle, error) {
			return sliceStrictlyAfter(candles, boundary, limit), nil
		},
	}
}

func sliceAtOrBefore(candles []exchangeclient.Candle, boundary time.Time, limit int) []exchangeclient.Candle {
	boundaryMs := boundary.UnixMilli()
	end := 0
	for end < len(candles) && candles[end].TimestampMs <= boundaryMs {
		end++
	}
	start := end - limit
	if start < 0 {
		start = 0
	}
	out := make([]exchangeclient.Candle, end-start)
	copy(out, candles[start:end])
	return out
}

func sliceStrictlyAfter(candles []exchangeclient.Candle, boundary time.Time, limit int) []exchangeclient.Candle {
	boundaryMs := boundary.UnixMilli()
	start := 0
	for start < len(candles) && candles[start].TimestampMs <= boundaryMs {
		start++
	}
	end := start + limit
	if end > len(candles) {
		end = len(candles)
	}
	out := make([]exchangeclient.Candle, end-start)
	copy(out, candles[start:end])
	return out
}

// FrameSchema builds a FrameSchema whose timeframe vector is every
// candle's own timestamp, so the backtest loop ticks once per bar.
func FrameSchema(name string, candles []exchangeclient.Candle) frameclient.FrameSchema {
	return frameclient.FrameSchema{
		Name: name,
		GetTimeframes: func() ([]time.Time, error) {
			if len(candles) == 0 {
				return nil, fmt.Errorf("demo frame %q has no candles to iterate", name)
			}
			frames := make([]time.Time, len(candles))
			for i, c := range candles {
				frames[i] = c.Time()
			}
			return frames, nil
		},
	}
}

// StrategyParams configures the EMA-crossover/RSI sample strategy.
type StrategyParams struct {
	ShortEMAPeriod    int
	LongEMAPeriod     int
	RSIPeriod         int
	RSIOversold       float64
	RSIOverbought     float64
	TakeProfitPercent float64
	StopLossPercent   float64
	Interval          time.Duration
}

// DefaultStrategyParams mirrors the teacher's DefaultConfig tuning.
func DefaultStrategyParams() StrategyParams {
	return StrategyParams{
		ShortEMAPeriod:    9,
		LongEMAPeriod:     21,
		RSIPeriod:         14,
		RSIOversold:       30.0,
		RSIOverbought:     70.0,
		TakeProfitPercent: 2.0,
		StopLossPercent:   1.0,
		Interval:          time.Minute,
	}
}

// StrategySchema builds a StrategySchema whose GetSignal crosses a short
// EMA over a long EMA, gated by RSI, against the same candle series the
// matching exchange schema serves — adapted from the teacher's
// EMA/RSI indicator math (internal/strategy/indicators.go) into a
// single self-contained signal callback instead of a standalone
// multi-agent strategy engine.
func StrategySchema(name string, candles []exchangeclient.Candle, params StrategyParams) strategyclient.StrategySchema {
	closes := make([]decimal.Decimal, len(candles))
	for i, c := range candles {
		closes[i] = c.Close
	}

	return strategyclient.StrategySchema{
		Name:     name,
		Interval: params.Interval,
		GetSignal: func(ctx context.Context, symbol string) (*signal.DTO, error) {
			idx, ok := currentIndex(ctx, candles)
			if !ok {
				return nil, nil
			}
			return emaRSISignal(closes[:idx+1], params)
		},
	}
}

// RiskSchema builds a RiskSchema capping concurrent open positions, the
// same budget the teacher's BacktestConfig.MaxPositions enforced.
func RiskSchema(name string, maxConcurrentPositions int) riskclient.RiskSchema {
	return riskclient.RiskSchema{
		Name:                   name,
		MaxConcurrentPositions: maxConcurrentPositions,
	}
}
