package engine

import (
	"context"

	"github.com/guyghost/backtestkit/internal/backtestloop"
	"github.com/guyghost/backtestkit/internal/enginerr"
	"github.com/guyghost/backtestkit/internal/liveloop"
	"github.com/guyghost/backtestkit/internal/strategyclient"
	"github.com/guyghost/backtestkit/internal/walker"
)

// RunOptions names the schemas one backtest run resolves against
// (spec.md §6 "Backtest.run(symbol, {strategyName, exchangeName,
// frameName})"). RiskName is not part of the abbreviated surface
// syntax but is required here: a ClientStrategy cannot be built
// without a resolved risk schema, and the connection layer's cache key
// is keyed on it alongside exchangeName/frameName.
type RunOptions struct {
	StrategyName string
	ExchangeName string
	FrameName    string
	RiskName     string
}

func cancelKey(kind, symbol, name string) string {
	return kind + "|" + symbol + "|" + name
}

// Backtest is the facade's backtest execution surface.
type Backtest struct{ engine *Engine }

// Backtest returns the engine's backtest execution surface.
func (e *Engine) Backtest() *Backtest { return &Backtest{engine: e} }

// Run streams closed results for symbol as a lazy, finite sequence
// (spec.md §6 "Backtest.run"). The returned channel closes once the
// frame vector is exhausted or ctx is cancelled.
func (b *Backtest) Run(ctx context.Context, symbol string, opts RunOptions) (<-chan backtestloop.Item, error) {
	runner, err := b.engine.backtestRunner(opts)
	if err != nil {
		return nil, err
	}
	return runner.Run(ctx, symbol), nil
}

// Background starts Run in the background and returns a cancellation
// closure (spec.md §6 "Backtest.background"); results surface only
// through the event bus.
func (b *Backtest) Background(ctx context.Context, symbol string, opts RunOptions) (func(), error) {
	runCtx, cancel := context.WithCancel(ctx)
	items, err := b.Run(runCtx, symbol, opts)
	if err != nil {
		cancel()
		return nil, err
	}
	b.engine.storeCancel(cancelKey("backtest", symbol, opts.StrategyName), cancel)
	go func() {
		for range items {
		}
	}()
	return cancel, nil
}

// Stop cancels a backgrounded backtest run for (symbol, strategyName);
// a no-op if none is running (spec.md §6 "Backtest.stop").
func (b *Backtest) Stop(symbol, strategyName string) {
	if cancel, ok := b.engine.takeCancel(cancelKey("backtest", symbol, strategyName)); ok {
		cancel()
	}
}

func (e *Engine) backtestRunner(opts RunOptions) (*backtestloop.Runner, error) {
	strategy, err := e.strategyClient(opts.StrategyName, opts.ExchangeName, opts.FrameName, opts.RiskName)
	if err != nil {
		return nil, enginerr.New(enginerr.OpGetSignal, opts.StrategyName, err)
	}
	exchange, err := e.exchangeClient(opts.ExchangeName)
	if err != nil {
		return nil, enginerr.New(enginerr.OpGetCandles, opts.ExchangeName, err)
	}
	frame, err := e.frameClient(opts.FrameName)
	if err != nil {
		return nil, enginerr.New(enginerr.OpGetCandles, opts.FrameName, err)
	}
	return backtestloop.NewRunner(opts.StrategyName, opts.ExchangeName, opts.FrameName, strategy, exchange, frame, e.cfg, e.bus), nil
}

// LiveOptions names the schemas one live run resolves against
// (spec.md §6 "Live.run(symbol, {strategyName, exchangeName})"):
// FrameName is absent because a live strategy polls the wall clock
// rather than a frame vector.
type LiveOptions struct {
	StrategyName string
	ExchangeName string
	RiskName     string
}

// Live is the facade's live execution surface.
type Live struct{ engine *Engine }

// Live returns the engine's live execution surface.
func (e *Engine) Live() *Live { return &Live{engine: e} }

// Run starts polling symbol against the wall clock and returns a
// channel of opened/closed results (spec.md §6 "Live.run").
func (l *Live) Run(ctx context.Context, symbol string, opts LiveOptions) (<-chan liveloop.Item, error) {
	runner, err := l.engine.liveRunner(opts)
	if err != nil {
		return nil, err
	}
	return runner.Run(ctx, symbol), nil
}

// Background starts Run in the background and returns a hard-cancel
// closure (spec.md §6 "Live.background"); delegates straight to the
// underlying liveloop.Runner, which already tracks its own
// soft-stop/hard-cancel state per symbol.
func (l *Live) Background(ctx context.Context, symbol string, opts LiveOptions) (func(), error) {
	runner, err := l.engine.liveRunner(opts)
	if err != nil {
		return nil, err
	}
	items := runner.Run(ctx, symbol)
	go func() {
		for range items {
		}
	}()
	return runner.Background(symbol), nil
}

// Stop sets the soft stop flag for (symbol, strategyName): the loop
// lets any currently open signal close naturally before exiting
// (spec.md §6 "Live.stop"). A no-op if no Run/Background call has
// ever resolved a live runner for strategyName.
func (l *Live) Stop(symbol, strategyName string) {
	if runner, ok := l.engine.lookupLiveRunner(strategyName); ok {
		runner.Stop(symbol)
	}
}

func (e *Engine) liveRunner(opts LiveOptions) (*liveloop.Runner, error) {
	return e.liveRunnerFor(opts.StrategyName, func() (*liveloop.Runner, error) {
		strategy, err := e.strategyClient(opts.StrategyName, opts.ExchangeName, "", opts.RiskName)
		if err != nil {
			return nil, enginerr.New(enginerr.OpGetSignal, opts.StrategyName, err)
		}
		return liveloop.NewRunner(opts.StrategyName, opts.ExchangeName, "", strategy, e.cfg, e.bus), nil
	})
}

// Walker is the facade's strategy-comparison execution surface.
type Walker struct{ engine *Engine }

// Walker returns the engine's walker execution surface.
func (e *Engine) Walker() *Walker { return &Walker{engine: e} }

// Run walks the registered walker schema's strategies against symbol,
// streaming a Progress record per strategy tested (spec.md §6
// "Walker.run(symbol, {walkerName})").
func (w *Walker) Run(ctx context.Context, symbol, walkerName string) (<-chan walker.Progress, error) {
	runner, schema, err := w.engine.walkerRunner(walkerName)
	if err != nil {
		return nil, err
	}
	return runner.Run(ctx, symbol, schema), nil
}

// Background starts Run in the background, cancellable via Stop
// (spec.md §6 "Walker.background"); results surface only through the
// event bus.
func (w *Walker) Background(ctx context.Context, symbol, walkerName string) (func(), error) {
	runCtx, cancel := context.WithCancel(ctx)
	progress, err := w.Run(runCtx, symbol, walkerName)
	if err != nil {
		cancel()
		return nil, err
	}
	w.engine.storeCancel(cancelKey("walker", symbol, walkerName), cancel)
	go func() {
		for range progress {
		}
	}()
	return cancel, nil
}

// Stop cancels a backgrounded walker run for (symbol, walkerName).
func (w *Walker) Stop(symbol, walkerName string) {
	if cancel, ok := w.engine.takeCancel(cancelKey("walker", symbol, walkerName)); ok {
		cancel()
	}
}

func (e *Engine) walkerRunner(walkerName string) (*walker.Runner, walker.Schema, error) {
	schema, err := e.walkerSchemas.Get(walkerName)
	if err != nil {
		return nil, walker.Schema{}, err
	}
	exchange, err := e.exchangeClient(schema.ExchangeName)
	if err != nil {
		return nil, walker.Schema{}, err
	}
	frame, err := e.frameClient(schema.FrameName)
	if err != nil {
		return nil, walker.Schema{}, err
	}
	lookup := func(strategyName string) (*strategyclient.ClientStrategy, error) {
		return e.strategyClient(strategyName, schema.ExchangeName, schema.FrameName, schema.RiskName)
	}
	return walker.NewRunner(exchange, frame, e.cfg, e.bus, lookup), schema, nil
}
