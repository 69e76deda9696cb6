// Command walker compares a handful of EMA/RSI parameter variants of
// the demo strategy against the same candle series and reports which
// one wins on the chosen metric.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/guyghost/backtestkit/internal/config"
	"github.com/guyghost/backtestkit/internal/demo"
	"github.com/guyghost/backtestkit/internal/engine"
	"github.com/guyghost/backtestkit/internal/eventbus"
	"github.com/guyghost/backtestkit/internal/persistence"
	"github.com/guyghost/backtestkit/internal/report"
	"github.com/guyghost/backtestkit/internal/telemetry"
	"github.com/guyghost/backtestkit/internal/walker"
)

const (
	exchangeName = "walker-exchange"
	frameName    = "walker-frame"
	riskName     = "walker-risk"
	walkerName   = "demo-walker"
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
		sampleCandles int
		basePrice     float64
		maxPositions  int
		metric        string
		metricsAddr   string
	)

	cmd := &cobra.Command{
		Use:   "walker",
		Short: "Compare demo strategy parameter variants against the same history",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWalker(cmd.Context(), symbol, sampleCandles, basePrice, maxPositions, report.Metric(metric), metricsAddr)
		},
	}

	cmd.Flags().StringVar(&symbol, "symbol", "BTC-USD", "trading symbol")
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "address to serve /metrics, /healthz and /readyz on (blank disables)")
	cmd.Flags().IntVar(&sampleCandles, "sample-candles", 2000, "number of synthetic candles to generate")
	cmd.Flags().Float64Var(&basePrice, "base-price", 50000, "starting price for synthetic candles")
	cmd.Flags().IntVar(&maxPositions, "max-positions", 1, "maximum concurrent open positions")
	cmd.Flags().StringVar(&metric, "metric", string(report.MetricSharpeRatio), "comparison metric (sharpeRatio, winRate, totalPnl, avgPnl, maxDrawdown)")

	return cmd
}

// variant names one EMA/RSI parameter set to walk; strategyName doubles
// as its registration key in the engine.
type variant struct {
	strategyName string
	params       demo.StrategyParams
}

func variants() []variant {
	base := demo.DefaultStrategyParams()

	fast := base
	fast.ShortEMAPeriod, fast.LongEMAPeriod = 5, 13

	slow := base
	slow.ShortEMAPeriod, slow.LongEMAPeriod = 13, 34

	return []variant{
		{strategyName: "walker-ema-9-21", params: base},
		{strategyName: "walker-ema-5-13", params: fast},
		{strategyName: "walker-ema-13-34", params: slow},
	}
}

func runWalker(ctx context.Context, symbol string, sampleCandles int, basePrice float64, maxPositions int, metric report.Metric, metricsAddr string) error {
	source := demo.DataSource{SampleCandles: sampleCandles, BasePrice: basePrice}
	candles, err := source.Load()
	if err != nil {
		return fmt.Errorf("load candles: %w", err)
	}

	bus := eventbus.New()
	unsubscribeMetrics := telemetry.Subscribe(bus)
	defer unsubscribeMetrics()

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

	strategyNames := make([]string, 0, len(variants()))
	for _, v := range variants() {
		if err := e.AddStrategy(v.strategyName, demo.StrategySchema(v.strategyName, candles, v.params)); err != nil {
			return err
		}
		strategyNames = append(strategyNames, v.strategyName)
	}

	if err := e.AddWalker(walkerName, walker.Schema{
		StrategyNames: strategyNames,
		Metric:        metric,
		ExchangeName:  exchangeName,
		FrameName:     frameName,
		RiskName:      riskName,
	}); err != nil {
		return err
	}

	metricsServer := telemetry.NewServer(metricsAddr)
	if err := metricsServer.Start(); err != nil {
		return fmt.Errorf("start metrics server: %w", err)
	}
	defer metricsServer.Shutdown(context.Background())
	metricsServer.SetReady(true)

	progress, err := e.Walker().Run(ctx, symbol, walkerName)
	if err != nil {
		return fmt.Errorf("start walker: %w", err)
	}

	for p := range progress {
		if p.Err != nil {
			fmt.Printf("[%d/%d] %s failed: %v\n", p.StrategiesTested, p.TotalStrategies, p.CurrentStrategy, p.Err)
			continue
		}
		fmt.Printf("[%d/%d] %s -> %s %s (best so far: %s %s)\n",
			p.StrategiesTested, p.TotalStrategies, p.CurrentStrategy, metric, p.MetricValue.StringFixed(4),
			p.BestStrategy, p.BestMetric.StringFixed(4))
	}

	return nil
}
