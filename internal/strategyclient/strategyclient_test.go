package strategyclient_test

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/guyghost/backtestkit/internal/ambient"
	"github.com/guyghost/backtestkit/internal/config"
	"github.com/guyghost/backtestkit/internal/eventbus"
	"github.com/guyghost/backtestkit/internal/exchangeclient"
	"github.com/guyghost/backtestkit/internal/persistence"
	"github.com/guyghost/backtestkit/internal/riskclient"
	"github.com/guyghost/backtestkit/internal/signal"
	"github.com/guyghost/backtestkit/internal/strategyclient"
)

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	require.True(t, cond(), "condition never became true")
}

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func flatCandle(minute int64, price string) exchangeclient.Candle {
	p := dec(price)
	return exchangeclient.Candle{TimestampMs: minute * 60_000, Open: p, High: p, Low: p, Close: p, Volume: dec("1")}
}

func ohlcCandle(minute int64, o, h, l, c string) exchangeclient.Candle {
	return exchangeclient.Candle{TimestampMs: minute * 60_000, Open: dec(o), High: dec(h), Low: dec(l), Close: dec(c), Volume: dec("1")}
}

func execCtx(minute int64, backtest bool) context.Context {
	return ambient.WithExecutionContext(context.Background(), ambient.ExecutionContext{
		Symbol: "BTC-USD", When: time.UnixMilli(minute * 60_000), Backtest: backtest,
	})
}

// candleFeed is a mutable stand-in for an exchange's live candle
// stream: tests append to it between ticks to simulate time passing.
type candleFeed struct {
	candles []exchangeclient.Candle
}

func (f *candleFeed) fetch(ctx context.Context, symbol, interval string, limit int, boundary time.Time) ([]exchangeclient.Candle, error) {
	return f.candles, nil
}

func newTestClient(t *testing.T, getSignal strategyclient.GetSignalFunc, feed *candleFeed) *strategyclient.ClientStrategy {
	t.Helper()
	cfg := config.Default()
	cfg.AvgPriceCandlesCount = 1
	cfg.MedianCandlesLookback = 0

	exSchema := exchangeclient.ExchangeSchema{
		Name:         "ex1",
		FetchCandles: feed.fetch,
		FetchNextCandles: func(ctx context.Context, symbol, interval string, limit int, boundary time.Time) ([]exchangeclient.Candle, error) {
			return nil, nil
		},
	}
	exchange := exchangeclient.New(exSchema, cfg)
	risk := riskclient.New(riskclient.RiskSchema{Name: "r1"})
	store := persistence.NewNoOp()
	bus := eventbus.New()

	schema := strategyclient.StrategySchema{
		Name:      "s1",
		Interval:  time.Minute,
		GetSignal: getSignal,
	}
	return strategyclient.New(schema, "ex1", "f1", cfg, exchange, risk, store, bus)
}

func TestTickReturnsIdleWhenGetSignalReturnsNil(t *testing.T) {
	feed := &candleFeed{candles: []exchangeclient.Candle{flatCandle(0, "100")}}
	client := newTestClient(t, func(ctx context.Context, symbol string) (*signal.DTO, error) {
		return nil, nil
	}, feed)

	result, err := client.Tick(execCtx(0, true), "BTC-USD")
	require.NoError(t, err)
	assert.Equal(t, strategyclient.KindIdle, result.Kind)
}

func TestTickOpensImmediatelyOnMarketSignal(t *testing.T) {
	feed := &candleFeed{candles: []exchangeclient.Candle{flatCandle(0, "100")}}
	client := newTestClient(t, func(ctx context.Context, symbol string) (*signal.DTO, error) {
		return &signal.DTO{
			Position:            signal.Long,
			PriceTakeProfit:     dec("110"),
			PriceStopLoss:       dec("90"),
			MinuteEstimatedTime: 60,
		}, nil
	}, feed)

	result, err := client.Tick(execCtx(0, true), "BTC-USD")
	require.NoError(t, err)
	assert.Equal(t, strategyclient.KindOpened, result.Kind)
	assert.Equal(t, signal.StatePending, result.Row.State)
	assert.True(t, result.Row.PriceOpen.Equal(dec("100")))
}

func TestTickClosesOnTakeProfitHit(t *testing.T) {
	feed := &candleFeed{candles: []exchangeclient.Candle{flatCandle(0, "100")}}
	client := newTestClient(t, func(ctx context.Context, symbol string) (*signal.DTO, error) {
		return &signal.DTO{
			Position:            signal.Long,
			PriceTakeProfit:     dec("110"),
			PriceStopLoss:       dec("90"),
			MinuteEstimatedTime: 60,
		}, nil
	}, feed)

	result, err := client.Tick(execCtx(0, true), "BTC-USD")
	require.NoError(t, err)
	require.Equal(t, strategyclient.KindOpened, result.Kind)

	feed.candles = append(feed.candles, ohlcCandle(1, "100", "111", "99", "111"))

	result, err = client.Tick(execCtx(1, true), "BTC-USD")
	require.NoError(t, err)
	assert.Equal(t, strategyclient.KindClosed, result.Kind)
	assert.Equal(t, signal.ReasonTakeProfit, result.Row.CloseReason)
	assert.True(t, result.Row.PnlPercentage.IsPositive())
}

func TestTickClosesOnStopLossWhenBothLevelsCrossSameCandle(t *testing.T) {
	feed := &candleFeed{candles: []exchangeclient.Candle{flatCandle(0, "100")}}
	client := newTestClient(t, func(ctx context.Context, symbol string) (*signal.DTO, error) {
		return &signal.DTO{
			Position:            signal.Long,
			PriceTakeProfit:     dec("110"),
			PriceStopLoss:       dec("90"),
			MinuteEstimatedTime: 60,
		}, nil
	}, feed)

	result, err := client.Tick(execCtx(0, true), "BTC-USD")
	require.NoError(t, err)
	require.Equal(t, strategyclient.KindOpened, result.Kind)

	// A single candle whose range crosses both TP and SL must resolve
	// conservatively to stop_loss (spec.md §4.5 step 4).
	feed.candles = append(feed.candles, ohlcCandle(1, "100", "111", "89", "105"))

	result, err = client.Tick(execCtx(1, true), "BTC-USD")
	require.NoError(t, err)
	assert.Equal(t, strategyclient.KindClosed, result.Kind)
	assert.Equal(t, signal.ReasonStopLoss, result.Row.CloseReason)
}

func TestBacktestEntersAtPriceOpenNotCandleExtreme(t *testing.T) {
	feed := &candleFeed{candles: []exchangeclient.Candle{flatCandle(0, "50")}}
	client := newTestClient(t, func(ctx context.Context, symbol string) (*signal.DTO, error) {
		return &signal.DTO{
			Position:            signal.Long,
			PriceOpen:           dec("100"),
			PriceTakeProfit:     dec("110"),
			PriceStopLoss:       dec("90"),
			MinuteEstimatedTime: 60,
		}, nil
	}, feed)

	// The candle feed reports a current price (50) far from this
	// candidate's priceOpen (100), so it schedules rather than
	// activating immediately; scheduling/activation/closure then run
	// entirely through Backtest's supplied window.
	result, err := client.Tick(execCtx(0, true), "BTC-USD")
	require.NoError(t, err)
	require.Equal(t, strategyclient.KindScheduled, result.Kind)

	activateAndTP := ohlcCandle(1, "105", "112", "99", "111")
	result, err = client.Backtest(execCtx(1, true), "BTC-USD", []exchangeclient.Candle{activateAndTP})
	require.NoError(t, err)
	assert.Equal(t, strategyclient.KindClosed, result.Kind)
	assert.Equal(t, signal.ReasonTakeProfit, result.Row.CloseReason)
	assert.True(t, result.Row.PriceOpen.Equal(dec("100")))
}

func TestBacktestPublishesOpenedEventAndPersistsOnActivation(t *testing.T) {
	feed := &candleFeed{candles: []exchangeclient.Candle{flatCandle(0, "50")}}
	cfg := config.Default()
	cfg.AvgPriceCandlesCount = 1
	cfg.MedianCandlesLookback = 0

	exSchema := exchangeclient.ExchangeSchema{
		Name:         "ex1",
		FetchCandles: feed.fetch,
		FetchNextCandles: func(ctx context.Context, symbol, interval string, limit int, boundary time.Time) ([]exchangeclient.Candle, error) {
			return nil, nil
		},
	}
	exchange := exchangeclient.New(exSchema, cfg)
	risk := riskclient.New(riskclient.RiskSchema{Name: "r1"})
	store := persistence.NewNoOp()
	bus := eventbus.New()

	// Backtest's scheduled->pending activation must publish the same
	// KindOpened event tickScheduled publishes in live mode, so bus
	// subscribers (telemetry, TUI) see every backtested open too.
	var mu sync.Mutex
	var opened []strategyclient.Result
	unsub := bus.Subscribe(eventbus.SubjectSignal, func(ev eventbus.Event) {
		res, ok := ev.Payload.(strategyclient.Result)
		if !ok || res.Kind != strategyclient.KindOpened {
			return
		}
		mu.Lock()
		defer mu.Unlock()
		opened = append(opened, res)
	})
	defer unsub()

	schema := strategyclient.StrategySchema{
		Name:     "s1",
		Interval: time.Minute,
		GetSignal: func(ctx context.Context, symbol string) (*signal.DTO, error) {
			return &signal.DTO{
				Position:            signal.Long,
				PriceOpen:           dec("100"),
				PriceTakeProfit:     dec("110"),
				PriceStopLoss:       dec("90"),
				MinuteEstimatedTime: 60,
			}, nil
		},
	}
	client := strategyclient.New(schema, "ex1", "f1", cfg, exchange, risk, store, bus)

	result, err := client.Tick(execCtx(0, true), "BTC-USD")
	require.NoError(t, err)
	require.Equal(t, strategyclient.KindScheduled, result.Kind)

	activateAndTP := ohlcCandle(1, "105", "112", "99", "111")
	result, err = client.Backtest(execCtx(1, true), "BTC-USD", []exchangeclient.Candle{activateAndTP})
	require.NoError(t, err)
	assert.Equal(t, strategyclient.KindClosed, result.Kind)

	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(opened) == 1
	})
}

func TestBacktestRiskRejectionCancelsActivationLikeLiveMode(t *testing.T) {
	feed := &candleFeed{candles: []exchangeclient.Candle{flatCandle(0, "50")}}
	cfg := config.Default()
	cfg.AvgPriceCandlesCount = 1
	cfg.MedianCandlesLookback = 0

	exSchema := exchangeclient.ExchangeSchema{
		Name:         "ex1",
		FetchCandles: feed.fetch,
		FetchNextCandles: func(ctx context.Context, symbol, interval string, limit int, boundary time.Time) ([]exchangeclient.Candle, error) {
			return nil, nil
		},
	}
	exchange := exchangeclient.New(exSchema, cfg)
	risk := riskclient.New(riskclient.RiskSchema{
		Name: "r1",
		Predicates: []riskclient.Predicate{
			func(ctx context.Context, candidate signal.Row, openPositions int) error {
				return fmt.Errorf("always reject")
			},
		},
	})
	store := persistence.NewNoOp()
	bus := eventbus.New()

	var mu sync.Mutex
	var rejections int
	unsub := bus.Subscribe(eventbus.SubjectRisk, func(ev eventbus.Event) {
		mu.Lock()
		defer mu.Unlock()
		rejections++
	})
	defer unsub()

	schema := strategyclient.StrategySchema{
		Name:     "s1",
		Interval: time.Minute,
		GetSignal: func(ctx context.Context, symbol string) (*signal.DTO, error) {
			return &signal.DTO{
				Position:            signal.Long,
				PriceOpen:           dec("100"),
				PriceTakeProfit:     dec("110"),
				PriceStopLoss:       dec("90"),
				MinuteEstimatedTime: 60,
			}, nil
		},
	}
	client := strategyclient.New(schema, "ex1", "f1", cfg, exchange, risk, store, bus)

	result, err := client.Tick(execCtx(0, true), "BTC-USD")
	require.NoError(t, err)
	require.Equal(t, strategyclient.KindScheduled, result.Kind)

	activate := ohlcCandle(1, "105", "112", "99", "105")
	result, err = client.Backtest(execCtx(1, true), "BTC-USD", []exchangeclient.Candle{activate})
	require.NoError(t, err)

	// A risk-rejecting predicate must cancel the backtested run exactly
	// as it cancels a live run's activation, not silently open anyway.
	assert.Equal(t, strategyclient.KindCancelled, result.Kind)
	assert.Equal(t, signal.ReasonCancelled, result.Row.CloseReason)

	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return rejections == 1
	})
}

func TestStopPreventsFurtherGetSignalCalls(t *testing.T) {
	calls := 0
	feed := &candleFeed{}
	client := newTestClient(t, func(ctx context.Context, symbol string) (*signal.DTO, error) {
		calls++
		return nil, nil
	}, feed)

	client.Stop("BTC-USD")
	_, err := client.Tick(execCtx(0, true), "BTC-USD")
	require.NoError(t, err)
	assert.Equal(t, 0, calls)
}

func TestWaitForInitRestoresPersistedPendingRow(t *testing.T) {
	cfg := config.Default()
	store := persistence.NewNoOp()
	ctx := context.Background()
	require.NoError(t, store.WaitForInit(ctx, true))

	persisted := signal.NewRow(signal.DTO{
		Position:            signal.Long,
		PriceOpen:           dec("100"),
		PriceTakeProfit:     dec("110"),
		PriceStopLoss:       dec("90"),
		MinuteEstimatedTime: 60,
	}, "BTC-USD", "s1", "ex1", "f1", time.UnixMilli(0))
	persisted.State = signal.StatePending
	persisted.PendingAt = time.UnixMilli(0)

	data, err := json.Marshal(persisted)
	require.NoError(t, err)
	require.NoError(t, store.WriteValue(ctx, persistence.Key("s1", "BTC-USD"), data))

	feed := &candleFeed{candles: []exchangeclient.Candle{flatCandle(0, "100")}}
	exSchema := exchangeclient.ExchangeSchema{
		Name:         "ex1",
		FetchCandles: feed.fetch,
		FetchNextCandles: func(ctx context.Context, symbol, interval string, limit int, boundary time.Time) ([]exchangeclient.Candle, error) {
			return nil, nil
		},
	}
	exchange := exchangeclient.New(exSchema, cfg)
	risk := riskclient.New(riskclient.RiskSchema{Name: "r1"})
	bus := eventbus.New()
	schema := strategyclient.StrategySchema{
		Name:     "s1",
		Interval: time.Minute,
		GetSignal: func(ctx context.Context, symbol string) (*signal.DTO, error) {
			t.Fatal("getSignal must not be called while a signal is already pending")
			return nil, nil
		},
	}
	client := strategyclient.New(schema, "ex1", "f1", cfg, exchange, risk, store, bus)

	result, err := client.Tick(execCtx(0, true), "BTC-USD")
	require.NoError(t, err)
	assert.Equal(t, strategyclient.KindActive, result.Kind)
	assert.Equal(t, signal.StatePending, result.Row.State)
}
