package backtestloop_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/guyghost/backtestkit/internal/backtestloop"
	"github.com/guyghost/backtestkit/internal/config"
	"github.com/guyghost/backtestkit/internal/eventbus"
	"github.com/guyghost/backtestkit/internal/exchangeclient"
	"github.com/guyghost/backtestkit/internal/frameclient"
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

func minuteCandle(minute int64, o, h, l, c string) exchangeclient.Candle {
	return exchangeclient.Candle{TimestampMs: minute * 60_000, Open: dec(o), High: dec(h), Low: dec(l), Close: dec(c), Volume: dec("1")}
}

// TestRunYieldsOneClosedResultForAnImmediateWin builds a one-shot
// strategy (fires once, then returns nil) whose market entry hits take
// profit on the very next minute candle, and asserts the loop streams
// exactly one closed result before finishing.
func TestRunYieldsOneClosedResultForAnImmediateWin(t *testing.T) {
	cfg := config.Default()
	cfg.AvgPriceCandlesCount = 1
	cfg.MedianCandlesLookback = 0

	allCandles := []exchangeclient.Candle{
		minuteCandle(0, "100", "100", "100", "100"),
		minuteCandle(1, "100", "111", "99", "111"),
		minuteCandle(2, "111", "111", "111", "111"),
	}

	exSchema := exchangeclient.ExchangeSchema{
		Name: "ex1",
		FetchCandles: func(ctx context.Context, symbol, interval string, limit int, boundary time.Time) ([]exchangeclient.Candle, error) {
			return allCandles, nil
		},
		FetchNextCandles: func(ctx context.Context, symbol, interval string, limit int, boundary time.Time) ([]exchangeclient.Candle, error) {
			return allCandles, nil
		},
	}
	exchange := exchangeclient.New(exSchema, cfg)

	frame := frameclient.New(frameclient.FrameSchema{
		Name: "1m",
		GetTimeframes: func() ([]time.Time, error) {
			return []time.Time{
				time.UnixMilli(0), time.UnixMilli(60_000), time.UnixMilli(120_000),
			}, nil
		},
	})

	fired := false
	schema := strategyclient.StrategySchema{
		Name:     "s1",
		Interval: time.Minute,
		GetSignal: func(ctx context.Context, symbol string) (*signal.DTO, error) {
			if fired {
				return nil, nil
			}
			fired = true
			return &signal.DTO{
				Position:            signal.Long,
				PriceTakeProfit:     dec("110"),
				PriceStopLoss:       dec("90"),
				MinuteEstimatedTime: 60,
			}, nil
		},
	}
	risk := riskclient.New(riskclient.RiskSchema{Name: "r1"})
	store := persistence.NewNoOp()
	bus := eventbus.New()
	strategy := strategyclient.New(schema, "ex1", "1m", cfg, exchange, risk, store, bus)

	runner := backtestloop.NewRunner("s1", "ex1", "1m", strategy, exchange, frame, cfg, bus)

	var items []backtestloop.Item
	for item := range runner.Run(context.Background(), "BTC-USD") {
		items = append(items, item)
	}

	require.Len(t, items, 1)
	require.NoError(t, items[0].Err)
	assert.Equal(t, strategyclient.KindClosed, items[0].Result.Kind)
	assert.Equal(t, signal.ReasonTakeProfit, items[0].Result.Row.CloseReason)
}
