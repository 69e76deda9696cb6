// Package exchangeclient implements spec.md §4.4: the exchange client
// that wraps a user-supplied ExchangeSchema with look-ahead prevention,
// retries, rate limiting, a circuit breaker, and candle anomaly
// detection.
package exchangeclient

import (
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/guyghost/backtestkit/internal/enginerr"
)

// Candle is one OHLCV bar, per spec.md §3.
type Candle struct {
	TimestampMs int64
	Open        decimal.Decimal
	High        decimal.Decimal
	Low         decimal.Decimal
	Close       decimal.Decimal
	Volume      decimal.Decimal
}

// Time returns the candle's timestamp as a time.Time (UTC).
func (c Candle) Time() time.Time {
	return time.UnixMilli(c.TimestampMs).UTC()
}

// TypicalPrice is (high+low+close)/3, used by the default VWAP.
func (c Candle) TypicalPrice() decimal.Decimal {
	return c.High.Add(c.Low).Add(c.Close).Div(decimal.NewFromInt(3))
}

// Validate checks the candle invariants from spec.md §3: low must not
// exceed the smaller of open/close, high must not be less than the
// larger of open/close, and volume must be non-negative.
func (c Candle) Validate() error {
	minOC := decimal.Min(c.Open, c.Close)
	maxOC := decimal.Max(c.Open, c.Close)

	if c.Low.GreaterThan(minOC) {
		return fmt.Errorf("candle at %d: low %s exceeds min(open,close) %s", c.TimestampMs, c.Low, minOC)
	}
	if c.High.LessThan(maxOC) {
		return fmt.Errorf("candle at %d: high %s below max(open,close) %s", c.TimestampMs, c.High, maxOC)
	}
	if c.Volume.IsNegative() {
		return fmt.Errorf("candle at %d: negative volume %s", c.TimestampMs, c.Volume)
	}
	return nil
}

// DetectAnomaly implements spec.md §3's anomaly rule: a candle is
// anomalous if its close deviates from the median close of the lookback
// window (itself excluded) by more than threshold, fractionally.
func DetectAnomaly(lookback []Candle, candidate Candle, threshold decimal.Decimal) bool {
	if len(lookback) == 0 || threshold.IsZero() {
		return false
	}

	closes := make([]decimal.Decimal, len(lookback))
	for i, c := range lookback {
		closes[i] = c.Close
	}

	sort.Slice(closes, func(i, j int) bool { return closes[i].LessThan(closes[j]) })
	median := medianOf(closes)
	if median.IsZero() {
		return false
	}

	deviation := candidate.Close.Sub(median).Abs().Div(median)
	return deviation.GreaterThan(threshold)
}

func medianOf(sorted []decimal.Decimal) decimal.Decimal {
	n := len(sorted)
	if n == 0 {
		return decimal.Zero
	}
	if n%2 == 1 {
		return sorted[n/2]
	}
	return sorted[n/2-1].Add(sorted[n/2]).Div(decimal.NewFromInt(2))
}

// EnsureAscending validates that candles are strictly ascending in
// timestamp, which every caller of GetCandles/GetNextCandles relies on.
func EnsureAscending(candles []Candle) error {
	for i := 1; i < len(candles); i++ {
		if candles[i].TimestampMs <= candles[i-1].TimestampMs {
			return fmt.Errorf("%w: candles out of order at index %d", enginerr.ErrCandleFetchFailed, i)
		}
	}
	return nil
}
