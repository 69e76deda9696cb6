// Package walker implements the sequential multi-strategy comparator
// (spec.md §4.11): it runs each candidate strategy through the
// backtest loop over identical historical data, derives a comparable
// metric from the report accumulator, and tracks a running best.
package walker

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/guyghost/backtestkit/internal/ambient"
	"github.com/guyghost/backtestkit/internal/backtestloop"
	"github.com/guyghost/backtestkit/internal/config"
	"github.com/guyghost/backtestkit/internal/enginerr"
	"github.com/guyghost/backtestkit/internal/eventbus"
	"github.com/guyghost/backtestkit/internal/exchangeclient"
	"github.com/guyghost/backtestkit/internal/frameclient"
	"github.com/guyghost/backtestkit/internal/logger"
	"github.com/guyghost/backtestkit/internal/report"
	"github.com/guyghost/backtestkit/internal/strategyclient"
)

// StrategyLookup resolves a registered strategyName to its
// ClientStrategy, sharing the walker's exchange/frame collaborators.
type StrategyLookup func(strategyName string) (*strategyclient.ClientStrategy, error)

// Schema is the user-supplied collaborator contract for a walker
// (spec.md §4.11 step 1).
type Schema struct {
	Name          string
	StrategyNames []string
	Metric        report.Metric
	ExchangeName  string
	FrameName     string
	RiskName      string
}

// Validate implements schema.Validatable.
func (s Schema) Validate() error {
	if s.Name == "" {
		return fmt.Errorf("%w: walker schema name must not be empty", enginerr.ErrInvalidSignal)
	}
	if len(s.StrategyNames) == 0 {
		return fmt.Errorf("%w: walker schema %q has no strategyNames", enginerr.ErrInvalidSignal, s.Name)
	}
	if s.Metric == "" {
		return fmt.Errorf("%w: walker schema %q missing metric", enginerr.ErrInvalidSignal, s.Name)
	}
	if s.ExchangeName == "" || s.FrameName == "" {
		return fmt.Errorf("%w: walker schema %q missing exchangeName/frameName", enginerr.ErrInvalidSignal, s.Name)
	}
	if s.RiskName == "" {
		return fmt.Errorf("%w: walker schema %q missing riskName", enginerr.ErrInvalidSignal, s.Name)
	}
	return nil
}

// Progress is the payload published on SubjectProgressWalker after
// each strategy finishes its backtest run (spec.md §4.11 step 3).
type Progress struct {
	WalkerName       string
	StrategiesTested int
	TotalStrategies  int
	CurrentStrategy  string
	BestStrategy     string
	BestMetric       decimal.Decimal
	MetricValue      decimal.Decimal
	Err              error
}

// Complete is the payload published on SubjectWalkerComplete once
// every strategy has been tested (spec.md §4.11 step 4).
type Complete struct {
	WalkerName   string
	Results      map[string]report.Summary
	BestStrategy string
	BestMetric   decimal.Decimal
}

// Done is the payload published on SubjectDoneWalker once the
// Progress stream is exhausted, mirroring doneBacktest/doneLive.
type Done struct {
	WalkerName string
}

// Runner owns one Accumulator (subscribed for the Runner's lifetime)
// and the collaborators every candidate strategy's backtest run
// shares.
type Runner struct {
	Exchange *exchangeclient.ClientExchange
	Frame    *frameclient.ClientFrame
	Cfg      *config.EngineConfig
	Bus      *eventbus.Bus
	Lookup   StrategyLookup

	accumulator *report.Accumulator
	unsubscribe eventbus.Unsubscribe
	log         *logger.Logger
}

// NewRunner constructs a Runner and subscribes its Accumulator to bus.
func NewRunner(exchange *exchangeclient.ClientExchange, frame *frameclient.ClientFrame, cfg *config.EngineConfig, bus *eventbus.Bus, lookup StrategyLookup) *Runner {
	accumulator := report.NewAccumulator()
	return &Runner{
		Exchange:    exchange,
		Frame:       frame,
		Cfg:         cfg,
		Bus:         bus,
		Lookup:      lookup,
		accumulator: accumulator,
		unsubscribe: accumulator.Subscribe(bus),
		log:         logger.Component("walker"),
	}
}

// Close releases the Runner's event-bus subscription.
func (r *Runner) Close() {
	if r.unsubscribe != nil {
		r.unsubscribe()
	}
}

// Accumulator exposes the Runner's report accumulator, e.g. so a
// caller can inspect a strategy's full Summary after a run.
func (r *Runner) Accumulator() *report.Accumulator {
	return r.accumulator
}

func (r *Runner) publish(subject eventbus.Subject, payload any) {
	if r.Bus != nil {
		r.Bus.Publish(subject, payload)
	}
}

// Run walks schema.StrategyNames in order against symbol, streaming a
// Progress record per strategy tested.
func (r *Runner) Run(ctx context.Context, symbol string, schema Schema) <-chan Progress {
	out := make(chan Progress)
	go r.run(ctx, symbol, schema, out)
	return out
}

func (r *Runner) run(ctx context.Context, symbol string, schema Schema, out chan<- Progress) {
	defer close(out)

	if err := schema.Validate(); err != nil {
		select {
		case out <- Progress{WalkerName: schema.Name, Err: err}:
		case <-ctx.Done():
		}
		return
	}

	mc := ambient.MethodContext{WalkerName: schema.Name, ExchangeName: schema.ExchangeName, FrameName: schema.FrameName}
	walkerCtx := ambient.WithMethodContext(ctx, mc)

	results := make(map[string]report.Summary, len(schema.StrategyNames))
	var bestStrategy string
	var bestMetric decimal.Decimal
	haveBest := false

	for i, strategyName := range schema.StrategyNames {
		select {
		case <-ctx.Done():
			return
		default:
		}

		r.accumulator.Clear(strategyName)

		var runErr error
		strategy, err := r.Lookup(strategyName)
		if err != nil {
			runErr = err
		} else {
			btRunner := backtestloop.NewRunner(strategyName, schema.ExchangeName, schema.FrameName, strategy, r.Exchange, r.Frame, r.Cfg, r.Bus)
			for item := range btRunner.Run(walkerCtx, symbol) {
				if item.Err != nil && enginerr.Fatal(item.Err) {
					runErr = item.Err
					break
				}
			}
		}

		summary := r.accumulator.Summarize(strategyName)
		results[strategyName] = summary

		// A lookup or fatal backtest failure counts as a null metric
		// (spec.md §4.11 step 4) rather than aborting the walker.
		metricValue := decimal.Zero
		if runErr == nil {
			metricValue = summary.Value(schema.Metric)
		}

		if !haveBest || betterMetric(metricValue, bestMetric, schema.Metric) {
			bestStrategy = strategyName
			bestMetric = metricValue
			haveBest = true
		}

		progress := Progress{
			WalkerName:       schema.Name,
			StrategiesTested: i + 1,
			TotalStrategies:  len(schema.StrategyNames),
			CurrentStrategy:  strategyName,
			BestStrategy:     bestStrategy,
			BestMetric:       bestMetric,
			MetricValue:      metricValue,
			Err:              runErr,
		}
		r.publish(eventbus.SubjectProgressWalker, progress)

		select {
		case out <- progress:
		case <-ctx.Done():
			return
		}
	}

	r.publish(eventbus.SubjectWalkerComplete, Complete{WalkerName: schema.Name, Results: results, BestStrategy: bestStrategy, BestMetric: bestMetric})
	r.publish(eventbus.SubjectDoneWalker, Done{WalkerName: schema.Name})
}

// betterMetric reports whether candidate improves on current for the
// given metric. maxDrawdown is a cost, so lower is better there; every
// other metric (return/risk-adjusted-return/win-rate ratios) is
// higher-is-better.
func betterMetric(candidate, current decimal.Decimal, metric report.Metric) bool {
	if metric == report.MetricMaxDrawdown {
		return candidate.LessThan(current)
	}
	return candidate.GreaterThan(current)
}
