// Command backtest runs a demo EMA-crossover/RSI strategy through the
// engine's backtest loop against CSV or synthetic candle data, printing
// a summary report when the run completes.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/guyghost/backtestkit/internal/config"
	"github.com/guyghost/backtestkit/internal/demo"
	"github.com/guyghost/backtestkit/internal/engine"
	"github.com/guyghost/backtestkit/internal/eventbus"
	"github.com/guyghost/backtestkit/internal/persistence"
	"github.com/guyghost/backtestkit/internal/report"
	"github.com/guyghost/backtestkit/internal/strategyclient"
)

const (
	exchangeName = "demo-exchange"
	frameName    = "demo-frame"
	strategyName = "demo-ema-rsi"
	riskName     = "demo-risk"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		symbol         string
		dataFile       string
		generateSample bool
		sampleCandles  int
		basePrice      float64
		maxPositions   int
		shortEMA       int
		longEMA        int
		rsiPeriod      int
		rsiOversold    float64
		rsiOverbought  float64
		takeProfit     float64
		stopLoss       float64
	)

	cmd := &cobra.Command{
		Use:   "backtest",
		Short: "Run a demo strategy through a historical backtest",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !generateSample && dataFile == "" {
				return fmt.Errorf("either --data or --generate-sample is required")
			}
			source := demo.DataSource{
				CSVPath:       dataFile,
				SampleCandles: sampleCandles,
				BasePrice:     basePrice,
			}

			params := demo.DefaultStrategyParams()
			params.ShortEMAPeriod = shortEMA
			params.LongEMAPeriod = longEMA
			params.RSIPeriod = rsiPeriod
			params.RSIOversold = rsiOversold
			params.RSIOverbought = rsiOverbought
			params.TakeProfitPercent = takeProfit
			params.StopLossPercent = stopLoss

			return runBacktest(cmd.Context(), symbol, source, params, maxPositions)
		},
	}

	cmd.Flags().StringVar(&symbol, "symbol", "BTC-USD", "trading symbol")
	cmd.Flags().StringVar(&dataFile, "data", "", "path to a CSV file of historical candles")
	cmd.Flags().BoolVar(&generateSample, "generate-sample", false, "generate synthetic candles instead of loading a CSV file")
	cmd.Flags().IntVar(&sampleCandles, "sample-candles", 1000, "number of synthetic candles to generate")
	cmd.Flags().Float64Var(&basePrice, "base-price", 50000, "starting price for synthetic candles")
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

func runBacktest(ctx context.Context, symbol string, source demo.DataSource, params demo.StrategyParams, maxPositions int) error {
	candles, err := source.Load()
	if err != nil {
		return fmt.Errorf("load candles: %w", err)
	}
	if len(candles) == 0 {
		return fmt.Errorf("no candles loaded")
	}

	fmt.Printf("loaded %d candles spanning %s to %s\n",
		len(candles), candles[0].Time().Format(time.RFC3339), candles[len(candles)-1].Time().Format(time.RFC3339))

	bus := eventbus.New()
	e := engine.New(config.Default(), bus, persistence.NewNoOp())

	if err := e.AddExchange(exchangeName, demo.ExchangeSchema(exchangeName, candles)); err != nil {
		return err
	}
	if err := e.AddFrame(frameName, demo.FrameSchema(frameName, candles)); err != nil {
		return err
	}
	if err := e.AddRisk(riskName, demo.RiskSchema(riskName, maxPositions)); err != nil {
		return err
	}
	if err := e.AddStrategy(strategyName, demo.StrategySchema(strategyName, candles, params)); err != nil {
		return err
	}

	items, err := e.Backtest().Run(ctx, symbol, engine.RunOptions{
		StrategyName: strategyName,
		ExchangeName: exchangeName,
		FrameName:    frameName,
		RiskName:     riskName,
	})
	if err != nil {
		return fmt.Errorf("start backtest: %w", err)
	}

	for item := range items {
		if item.Err != nil {
			fmt.Fprintf(os.Stderr, "tick error: %v\n", item.Err)
			continue
		}
		if item.Result.Kind != strategyclient.KindClosed {
			continue
		}
		row := item.Result.Row
		fmt.Printf("[%s] %s closed at %s: pnl %s%%\n",
			row.CloseTimestamp.Format(time.RFC3339), row.Position, row.PriceClose.StringFixed(2), row.PnlPercentage.StringFixed(2))
	}

	printSummary(e.Accumulator().Summarize(strategyName))
	return nil
}

func printSummary(summary report.Summary) {
	fmt.Println()
	fmt.Println("=== Backtest Summary ===")
	fmt.Printf("Total trades:     %d (%d winning)\n", summary.TotalTrades, summary.WinningTrades)
	fmt.Printf("Win rate:         %s%%\n", summary.WinRatePct.StringFixed(2))
	fmt.Printf("Total PnL:        %s%%\n", summary.TotalPnlPct.StringFixed(2))
	fmt.Printf("Average PnL:      %s%%\n", summary.AvgPnlPct.StringFixed(2))
	fmt.Printf("Max drawdown:     %s%%\n", summary.MaxDrawdownPct.StringFixed(2))
	fmt.Printf("Sharpe ratio:     %s\n", summary.SharpeRatio.StringFixed(4))
}
