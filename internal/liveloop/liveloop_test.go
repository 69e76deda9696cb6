package liveloop_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/guyghost/backtestkit/internal/config"
	"github.com/guyghost/backtestkit/internal/eventbus"
	"github.com/guyghost/backtestkit/internal/exchangeclient"
	"github.com/guyghost/backtestkit/internal/liveloop"
	"github.com/guyghost/backtestkit/internal/persistence"
	"github.com/guyghost/backtestkit/internal/riskclient"
	"github.com/guyghost/backtestkit/internal/signal"
	"github.com/guyghost/backtestkit/internal/strategyclient"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func flatCandle(price string) exchangeclient.Candle {
	p := dec(price)
	return exchangeclient.Candle{TimestampMs: time.Now().UnixMilli(), Open: p, High: p, Low: p, Close: p, Volume: dec("1")}
}

// livePrice is a mutable stand-in for an exchange's current quote:
// tests update it between ticks to simulate price movement.
type livePrice struct {
	mu    sync.Mutex
	price string
}

func (p *livePrice) set(price string) {
	p.mu.Lock()
	p.price = price
	p.mu.Unlock()
}

func (p *livePrice) fetch(ctx context.Context, symbol, interval string, limit int, boundary time.Time) ([]exchangeclient.Candle, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return []exchangeclient.Candle{flatCandle(p.price)}, nil
}

func newTestRunner(t *testing.T, getSignal strategyclient.GetSignalFunc, price *livePrice) *liveloop.Runner {
	t.Helper()
	cfg := config.Default()
	cfg.AvgPriceCandlesCount = 1
	cfg.MedianCandlesLookback = 0
	cfg.TickPollInterval = 5 * time.Millisecond

	exSchema := exchangeclient.ExchangeSchema{
		Name:         "ex1",
		FetchCandles: price.fetch,
		FetchNextCandles: func(ctx context.Context, symbol, interval string, limit int, boundary time.Time) ([]exchangeclient.Candle, error) {
			return nil, nil
		},
	}
	exchange := exchangeclient.New(exSchema, cfg)
	risk := riskclient.New(riskclient.RiskSchema{Name: "r1"})
	store := persistence.NewNoOp()
	bus := eventbus.New()

	schema := strategyclient.StrategySchema{Name: "s1", Interval: 0, GetSignal: getSignal}
	strategy := strategyclient.New(schema, "ex1", "", cfg, exchange, risk, store, bus)

	return liveloop.NewRunner("s1", "ex1", "", strategy, cfg, bus)
}

// TestRunYieldsOpenedThenClosedAfterSoftStop drives a strategy that
// opens a market signal once then returns nil forever; once the
// opened result is observed the test moves the price through take
// profit and calls Stop, and expects the loop to yield the closed
// result and then exit on its own.
func TestRunYieldsOpenedThenClosedAfterSoftStop(t *testing.T) {
	price := &livePrice{price: "100"}
	fired := false
	runner := newTestRunner(t, func(ctx context.Context, symbol string) (*signal.DTO, error) {
		if fired {
			return nil, nil
		}
		fired = true
		return &signal.DTO{
			Position:            signal.Long,
			PriceOpen:           dec("100"),
			PriceTakeProfit:     dec("110"),
			PriceStopLoss:       dec("90"),
			MinuteEstimatedTime: 60,
		}, nil
	}, price)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	items := runner.Run(ctx, "BTC-USD")

	select {
	case item, ok := <-items:
		require.True(t, ok)
		require.NoError(t, item.Err)
		assert.Equal(t, strategyclient.KindOpened, item.Result.Kind)
	case <-ctx.Done():
		t.Fatal("timed out waiting for opened result")
	}

	price.set("111")
	runner.Stop("BTC-USD")

	select {
	case item, ok := <-items:
		require.True(t, ok)
		assert.Equal(t, strategyclient.KindClosed, item.Result.Kind)
		assert.Equal(t, signal.ReasonTakeProfit, item.Result.Row.CloseReason)
	case <-ctx.Done():
		t.Fatal("timed out waiting for closed result")
	}

	select {
	case _, ok := <-items:
		assert.False(t, ok, "channel should close once the stop flag is observed with no open signal")
	case <-ctx.Done():
		t.Fatal("timed out waiting for loop to exit after close")
	}
}

// TestBackgroundCancelStopsLoopImmediately asserts the hard-cancel
// closure returned by Background interrupts the loop even while a
// signal remains open.
func TestBackgroundCancelStopsLoopImmediately(t *testing.T) {
	price := &livePrice{price: "100"}
	runner := newTestRunner(t, func(ctx context.Context, symbol string) (*signal.DTO, error) {
		return &signal.DTO{
			Position:            signal.Long,
			PriceOpen:           dec("100"),
			PriceTakeProfit:     dec("200"),
			PriceStopLoss:       dec("1"),
			MinuteEstimatedTime: 60,
		}, nil
	}, price)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	items := runner.Run(ctx, "BTC-USD")

	select {
	case item, ok := <-items:
		require.True(t, ok)
		assert.Equal(t, strategyclient.KindOpened, item.Result.Kind)
	case <-ctx.Done():
		t.Fatal("timed out waiting for opened result")
	}

	hardCancel := runner.Background("BTC-USD")
	hardCancel()

	select {
	case _, ok := <-items:
		assert.False(t, ok, "channel should close once the hard cancel fires")
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for loop to exit after Background cancel")
	}
}
