// Command live runs a demo EMA-crossover/RSI strategy against a
// synthetic live feed, polling the wall clock until interrupted. A
// SIGINT/SIGTERM triggers a soft stop: the current signal, if any, is
// allowed to close before the process exits.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/guyghost/backtestkit/internal/config"
	"github.com/guyghost/backtestkit/internal/demo"
	"github.com/guyghost/backtestkit/internal/engine"
	"github.com/guyghost/backtestkit/internal/eventbus"
	"github.com/guyghost/backtestkit/internal/persistence"
	"github.com/guyghost/backtestkit/internal/strategyclient"
	"github.com/guyghost/backtestkit/internal/telemetry"
)

const (
	exchangeName = "demo-live-exchange"
	strategyName = "demo-live-ema-rsi"
	riskName     = "demo-live-risk"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		symbol        string
		basePrice     float64
		maxPositions  int
		shortEMA      int
		longEMA       int
		rsiPeriod     int
		rsiOversold   float64
		rsiOverbought float64
		takeProfit    float64
		stopLoss      float64
		metricsAddr   string
	)

	cmd := &cobra.Command{
		Use:   "live",
		Short: "Run a demo strategy against a synthetic live feed",
		RunE: func(cmd *cobra.Command, args []string) error {
			params := demo.DefaultStrategyParams()
			params.ShortEMAPeriod = shortEMA
			params.LongEMAPeriod = longEMA
			params.RSIPeriod = rsiPeriod
			params.RSIOversold = rsiOversold
			params.RSIOverbought = rsiOverbought
			params.TakeProfitPercent = takeProfit
			params.StopLossPercent = stopLoss

			return runLive(cmd.Context(), symbol, basePrice, params, maxPositions, metricsAddr)
		},
	}

	cmd.Flags().StringVar(&symbol, "symbol", "BTC-USD", "trading symbol")
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "address to serve /metrics, /healthz and /readyz on (blank disables)")
	cmd.Flags().Float64Var(&basePrice, "base-price", 50000, "starting price for the synthetic feed")
	cmd.Flags().IntVar(&maxPositions, "max-positions", 1, "maximum concurrent open positions")
	cmd.Flags().IntVar(&shortEMA, "short-ema", 9, "short EMA period")
	cmd.Flags().IntVar(&longEMA, "long-ema", 21, "long EMA period")
	cmd.Flags().IntVar(&rsiPeriod, "rsi-period", 14, "RSI period")
	cmd.Flags().Float64Var(&rsiOversold, "rsi-oversold", 30.0, "RSI oversold threshold")
	cmd.Flags().Float64Var(&rsiOverbought, "rsi-overbought", 70.0, "RSI overbought threshold")
	cmd.Flags().Float64Var(&takeProfit, "take-profit", 2.0, "take-profit percentage")
	cmd.Flags().Float64Var(&stopLoss, "stop-loss", 1.0, "stop-loss percentage")

	return cmd
}

func runLive(ctx context.Context, symbol string, basePrice float64, params demo.StrategyParams, maxPositions int, metricsAddr string) error {
	// A live feed has no fixed end, so the demo exchange is seeded with
	// a generously long synthetic series anchored to the wall clock;
	// the strategy only ever consults candles at or before "now".
	source := demo.DataSource{
		SampleCandles: 60 * 24 * 14,
		SampleStart:   time.Now().Add(-60 * 24 * 14 * time.Minute),
		BasePrice:     basePrice,
	}
	series, err := source.Load()
	if err != nil {
		return fmt.Errorf("seed live feed: %w", err)
	}

	bus := eventbus.New()
	unsubscribeMetrics := telemetry.Subscribe(bus)
	defer unsubscribeMetrics()

	e := engine.New(config.Default(), bus, persistence.NewNoOp())

	if err := e.AddExchange(exchangeName, demo.ExchangeSchema(exchangeName, series)); err != nil {
		return err
	}
	if err := e.AddRisk(riskName, demo.RiskSchema(riskName, maxPositions)); err != nil {
		return err
	}
	if err := e.AddStrategy(strategyName, demo.StrategySchema(strategyName, series, params)); err != nil {
		return err
	}

	metricsServer := telemetry.NewServer(metricsAddr)
	if err := metricsServer.Start(); err != nil {
		return fmt.Errorf("start metrics server: %w", err)
	}
	defer metricsServer.Shutdown(context.Background())

	runCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	items, err := e.Live().Run(runCtx, symbol, engine.LiveOptions{
		StrategyName: strategyName,
		ExchangeName: exchangeName,
		RiskName:     riskName,
	})
	if err != nil {
		return fmt.Errorf("start live run: %w", err)
	}

	metricsServer.SetReady(true)

	fmt.Printf("live run started for %s, press Ctrl+C to stop\n", symbol)
	go func() {
		<-runCtx.Done()
		e.Live().Stop(symbol, strategyName)
	}()

	for item := range items {
		if item.Err != nil {
			fmt.Fprintf(os.Stderr, "tick error: %v\n", item.Err)
			continue
		}
		switch item.Result.Kind {
		case strategyclient.KindOpened:
			row := item.Result.Row
			fmt.Printf("[%s] opened %s at %s\n", time.Now().Format(time.RFC3339), row.Position, row.PriceOpen.StringFixed(2))
		case strategyclient.KindClosed:
			row := item.Result.Row
			fmt.Printf("[%s] closed %s at %s: pnl %s%%\n",
				row.CloseTimestamp.Format(time.RFC3339), row.Position, row.PriceClose.StringFixed(2), row.PnlPercentage.StringFixed(2))
		}
	}

	fmt.Println("live run stopped")
	return nil
}
