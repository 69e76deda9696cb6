package exchangeclient_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/guyghost/backtestkit/internal/ambient"
	"github.com/guyghost/backtestkit/internal/config"
	"github.com/guyghost/backtestkit/internal/enginerr"
	"github.com/guyghost/backtestkit/internal/exchangeclient"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func flatCandle(ts int64, price string) exchangeclient.Candle {
	p := dec(price)
	return exchangeclient.Candle{TimestampMs: ts, Open: p, High: p, Low: p, Close: p, Volume: dec("10")}
}

func execCtx(when time.Time, backtest bool) context.Context {
	return ambient.WithExecutionContext(context.Background(), ambient.ExecutionContext{
		Symbol: "BTC-USD", When: when, Backtest: backtest,
	})
}

func TestGetCandlesBoundsToExecutionWhen(t *testing.T) {
	when := time.UnixMilli(5 * 60_000)
	schema := exchangeclient.ExchangeSchema{
		Name: "ex1",
		FetchCandles: func(ctx context.Context, symbol, interval string, limit int, boundary time.Time) ([]exchangeclient.Candle, error) {
			return []exchangeclient.Candle{
				flatCandle(1*60_000, "100"),
				flatCandle(5*60_000, "101"),
			}, nil
		},
		FetchNextCandles: func(ctx context.Context, symbol, interval string, limit int, boundary time.Time) ([]exchangeclient.Candle, error) {
			return nil, nil
		},
	}

	client := exchangeclient.New(schema, config.Default())
	candles, err := client.GetCandles(execCtx(when, true), "BTC-USD", "1m", 10)
	require.NoError(t, err)
	assert.Len(t, candles, 2)
}

func TestGetNextCandlesFailsInLiveMode(t *testing.T) {
	schema := exchangeclient.ExchangeSchema{
		Name:             "ex1",
		FetchCandles:     func(ctx context.Context, symbol, interval string, limit int, boundary time.Time) ([]exchangeclient.Candle, error) { return nil, nil },
		FetchNextCandles: func(ctx context.Context, symbol, interval string, limit int, boundary time.Time) ([]exchangeclient.Candle, error) { return nil, nil },
	}

	client := exchangeclient.New(schema, config.Default())
	_, err := client.GetNextCandles(execCtx(time.Now(), false), "BTC-USD", "1m", 10)
	require.Error(t, err)
	assert.ErrorIs(t, err, enginerr.ErrFutureDataInLive)
}

func TestGetNextCandlesAllowedInBacktest(t *testing.T) {
	when := time.UnixMilli(1 * 60_000)
	schema := exchangeclient.ExchangeSchema{
		Name: "ex1",
		FetchCandles: func(ctx context.Context, symbol, interval string, limit int, boundary time.Time) ([]exchangeclient.Candle, error) {
			return nil, nil
		},
		FetchNextCandles: func(ctx context.Context, symbol, interval string, limit int, boundary time.Time) ([]exchangeclient.Candle, error) {
			return []exchangeclient.Candle{flatCandle(2*60_000, "102")}, nil
		},
	}

	client := exchangeclient.New(schema, config.Default())
	candles, err := client.GetNextCandles(execCtx(when, true), "BTC-USD", "1m", 10)
	require.NoError(t, err)
	require.Len(t, candles, 1)
}

func TestDetectAnomalyFlagsLargeDeviation(t *testing.T) {
	cfg := config.Default()
	lookback := []exchangeclient.Candle{
		flatCandle(1, "100"), flatCandle(2, "101"), flatCandle(3, "99"),
	}
	anomalous := flatCandle(4, "1000")
	assert.True(t, exchangeclient.DetectAnomaly(lookback, anomalous, cfg.PriceAnomalyThreshold))
}

func TestDetectAnomalyAllowsNormalMove(t *testing.T) {
	cfg := config.Default()
	lookback := []exchangeclient.Candle{
		flatCandle(1, "100"), flatCandle(2, "101"), flatCandle(3, "99"),
	}
	normal := flatCandle(4, "102")
	assert.False(t, exchangeclient.DetectAnomaly(lookback, normal, cfg.PriceAnomalyThreshold))
}

func TestGetAveragePriceComputesVolumeWeightedTypicalPrice(t *testing.T) {
	when := time.UnixMilli(10 * 60_000)
	schema := exchangeclient.ExchangeSchema{
		Name: "ex1",
		FetchCandles: func(ctx context.Context, symbol, interval string, limit int, boundary time.Time) ([]exchangeclient.Candle, error) {
			return []exchangeclient.Candle{
				flatCandle(8*60_000, "100"),
				flatCandle(9*60_000, "100"),
				flatCandle(10*60_000, "100"),
			}, nil
		},
		FetchNextCandles: func(ctx context.Context, symbol, interval string, limit int, boundary time.Time) ([]exchangeclient.Candle, error) {
			return nil, nil
		},
	}

	client := exchangeclient.New(schema, config.Default())
	avg, err := client.GetAveragePrice(execCtx(when, true), "BTC-USD")
	require.NoError(t, err)
	assert.True(t, avg.Equal(dec("100")))
}

func TestFormatPriceFallsBackToPlainString(t *testing.T) {
	schema := exchangeclient.ExchangeSchema{
		Name:             "ex1",
		FetchCandles:     func(ctx context.Context, symbol, interval string, limit int, boundary time.Time) ([]exchangeclient.Candle, error) { return nil, nil },
		FetchNextCandles: func(ctx context.Context, symbol, interval string, limit int, boundary time.Time) ([]exchangeclient.Candle, error) { return nil, nil },
	}
	client := exchangeclient.New(schema, config.Default())
	assert.Equal(t, "100", client.FormatPrice("BTC-USD", dec("100")))
}

func TestExchangeSchemaValidateRejectsMissingFetch(t *testing.T) {
	schema := exchangeclient.ExchangeSchema{Name: "ex1"}
	require.Error(t, schema.Validate())
}
