package demo

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/guyghost/backtestkit/internal/ambient"
	"github.com/guyghost/backtestkit/internal/exchangeclient"
	"github.com/guyghost/backtestkit/internal/signal"
	"github.com/guyghost/backtestkit/internal/strategy"
)

// currentIndex locates the candle at or immediately before the ambient
// execution timestamp, so GetSignal only ever sees prices up to "now" —
// the same look-ahead discipline exchangeclient.GetCandles enforces.
func currentIndex(ctx context.Context, candles []exchangeclient.Candle) (int, bool) {
	ec, err := ambient.CurrentExecutionContext(ctx)
	if err != nil {
		return 0, false
	}
	whenMs := ec.When.UnixMilli()

	idx := -1
	for i, c := range candles {
		if c.TimestampMs > whenMs {
			break
		}
		idx = i
	}
	if idx < 0 {
		return 0, false
	}
	return idx, true
}

// emaRSISignal is the teacher's EMA-crossover/RSI entry rule
// (internal/strategy/orchestrator.go's golden-cross idea), rewritten as
// a pure function over a trailing close-price window instead of a
// precomputed indicator series: long when the short EMA has just
// crossed above the long EMA and RSI confirms it isn't already
// overbought, short on the mirror condition.
func emaRSISignal(closes []decimal.Decimal, params StrategyParams) (*signal.DTO, error) {
	shortEMA := strategy.EMA(closes, params.ShortEMAPeriod)
	longEMA := strategy.EMA(closes, params.LongEMAPeriod)
	rsi := strategy.RSI(closes, params.RSIPeriod)
	if len(shortEMA) < 2 || len(longEMA) < 2 || len(rsi) == 0 {
		return nil, nil
	}

	shortNow, shortPrev := shortEMA[len(shortEMA)-1], shortEMA[len(shortEMA)-2]
	longNow, longPrev := longEMA[len(longEMA)-1], longEMA[len(longEMA)-2]
	currentRSI := rsi[len(rsi)-1]
	price := closes[len(closes)-1]

	crossedUp := shortPrev.LessThanOrEqual(longPrev) && shortNow.GreaterThan(longNow)
	crossedDown := shortPrev.GreaterThanOrEqual(longPrev) && shortNow.LessThan(longNow)

	oversold := decimal.NewFromFloat(params.RSIOversold)
	overbought := decimal.NewFromFloat(params.RSIOverbought)
	takeProfitPct := decimal.NewFromFloat(params.TakeProfitPercent / 100)
	stopLossPct := decimal.NewFromFloat(params.StopLossPercent / 100)

	switch {
	case crossedUp && currentRSI.LessThan(overbought):
		return &signal.DTO{
			Position:        signal.Long,
			PriceTakeProfit: price.Mul(decimal.NewFromInt(1).Add(takeProfitPct)),
			PriceStopLoss:   price.Mul(decimal.NewFromInt(1).Sub(stopLossPct)),
			Note:            "ema crossover long",
		}, nil
	case crossedDown && currentRSI.GreaterThan(oversold):
		return &signal.DTO{
			Position:        signal.Short,
			PriceTakeProfit: price.Mul(decimal.NewFromInt(1).Sub(takeProfitPct)),
			PriceStopLoss:   price.Mul(decimal.NewFromInt(1).Add(stopLossPct)),
			Note:            "ema crossover short",
		}, nil
	default:
		return nil, nil
	}
}
