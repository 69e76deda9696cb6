package engine

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/guyghost/backtestkit/internal/ambient"
	"github.com/guyghost/backtestkit/internal/enginerr"
	"github.com/guyghost/backtestkit/internal/exchangeclient"
)

// GetCandles fetches limit candles at interval for symbol, resolving
// the exchange from ctx's ambient MethodContext (spec.md §6
// "getCandles(symbol, interval, limit)").
func (e *Engine) GetCandles(ctx context.Context, symbol, interval string, limit int) ([]exchangeclient.Candle, error) {
	exchange, err := e.ambientExchange(ctx)
	if err != nil {
		return nil, err
	}
	return exchange.GetCandles(ctx, symbol, interval, limit)
}

// GetNextCandles fetches the next limit candles after the current
// ambient timestamp. Valid only inside strategy.backtest (spec.md §8
// property 3's "No look-ahead" invariant); outside backtest mode the
// underlying ClientExchange rejects the call with
// enginerr.ErrFutureDataInLive.
func (e *Engine) GetNextCandles(ctx context.Context, symbol, interval string, limit int) ([]exchangeclient.Candle, error) {
	exchange, err := e.ambientExchange(ctx)
	if err != nil {
		return nil, err
	}
	return exchange.GetNextCandles(ctx, symbol, interval, limit)
}

// GetAveragePrice returns the current VWAP for symbol (spec.md §6
// "getAveragePrice(symbol)").
func (e *Engine) GetAveragePrice(ctx context.Context, symbol string) (decimal.Decimal, error) {
	exchange, err := e.ambientExchange(ctx)
	if err != nil {
		return decimal.Zero, err
	}
	return exchange.GetAveragePrice(ctx, symbol)
}

// FormatPrice formats p for symbol's tick size (spec.md §6
// "formatPrice").
func (e *Engine) FormatPrice(ctx context.Context, symbol string, p decimal.Decimal) (string, error) {
	exchange, err := e.ambientExchange(ctx)
	if err != nil {
		return "", err
	}
	return exchange.FormatPrice(symbol, p), nil
}

// FormatQuantity formats q for symbol's lot size (spec.md §6
// "formatQuantity").
func (e *Engine) FormatQuantity(ctx context.Context, symbol string, q decimal.Decimal) (string, error) {
	exchange, err := e.ambientExchange(ctx)
	if err != nil {
		return "", err
	}
	return exchange.FormatQuantity(symbol, q), nil
}

// GetDate returns the ambient execution timestamp: the simulated
// "when" in backtest mode, the wall clock in live mode (spec.md §6
// "getDate()").
func (e *Engine) GetDate(ctx context.Context) (time.Time, error) {
	ec, err := ambient.CurrentExecutionContext(ctx)
	if err != nil {
		return time.Time{}, err
	}
	if ec.Backtest {
		return ec.When, nil
	}
	return time.Now(), nil
}

// GetMode reports whether ctx is executing inside a backtest or live
// task (spec.md §6 "getMode()").
func (e *Engine) GetMode(ctx context.Context) (string, error) {
	ec, err := ambient.CurrentExecutionContext(ctx)
	if err != nil {
		return "", err
	}
	if ec.Backtest {
		return "backtest", nil
	}
	return "live", nil
}

func (e *Engine) ambientExchange(ctx context.Context) (*exchangeclient.ClientExchange, error) {
	mc, err := ambient.CurrentMethodContext(ctx)
	if err != nil {
		return nil, err
	}
	if mc.ExchangeName == "" {
		return nil, enginerr.New(enginerr.OpGetCandles, "", enginerr.ErrContextMissing)
	}
	return e.exchangeClient(mc.ExchangeName)
}
