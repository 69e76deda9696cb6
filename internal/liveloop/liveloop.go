// Package liveloop drives one (symbol, strategyName, exchangeName)
// signal forward in real time (spec.md §4.10): an infinite poll loop,
// paced by the configured tick interval, that ticks the signal
// lifecycle state machine against the wall clock and yields every
// opened or closed result to its caller.
package liveloop

import (
	"context"
	"sync"
	"time"

	"github.com/guyghost/backtestkit/internal/ambient"
	"github.com/guyghost/backtestkit/internal/config"
	"github.com/guyghost/backtestkit/internal/eventbus"
	"github.com/guyghost/backtestkit/internal/logger"
	"github.com/guyghost/backtestkit/internal/strategyclient"
)

// Item is one element of the live result stream: exactly one of Result
// or Err is meaningful.
type Item struct {
	Result strategyclient.Result
	Err    error
}

// PerformanceSample is the payload published on
// eventbus.SubjectPerformance after every tick.
type PerformanceSample struct {
	Symbol   string
	Op       string
	Duration time.Duration
}

// Done is the payload published on eventbus.SubjectDoneLive once a
// stopped loop has let its last signal close and exited.
type Done struct {
	Symbol       string
	StrategyName string
}

// Runner wires the collaborators one live run needs.
type Runner struct {
	StrategyName string
	ExchangeName string
	FrameName    string

	Strategy *strategyclient.ClientStrategy
	Cfg      *config.EngineConfig
	Bus      *eventbus.Bus

	log *logger.Logger

	mu      sync.Mutex
	cancels map[string]context.CancelFunc
	stopped map[string]bool
}

// NewRunner constructs a Runner.
func NewRunner(strategyName, exchangeName, frameName string, strategy *strategyclient.ClientStrategy, cfg *config.EngineConfig, bus *eventbus.Bus) *Runner {
	return &Runner{
		StrategyName: strategyName,
		ExchangeName: exchangeName,
		FrameName:    frameName,
		Strategy:     strategy,
		Cfg:          cfg,
		Bus:          bus,
		log:          logger.Component("liveloop").Strategy(strategyName),
		cancels:      make(map[string]context.CancelFunc),
		stopped:      make(map[string]bool),
	}
}

func (r *Runner) publish(subject eventbus.Subject, payload any) {
	if r.Bus != nil {
		r.Bus.Publish(subject, payload)
	}
}

// Run starts polling symbol against the wall clock and returns a
// channel of opened/closed results. The channel is closed when Stop
// lets the current signal close naturally, when Background's cancel
// closure fires, or when ctx is itself cancelled.
func (r *Runner) Run(ctx context.Context, symbol string) <-chan Item {
	runCtx, cancel := context.WithCancel(ctx)

	r.mu.Lock()
	r.cancels[symbol] = cancel
	r.stopped[symbol] = false
	r.mu.Unlock()

	out := make(chan Item)
	go r.run(runCtx, symbol, out)
	return out
}

// Stop sets the soft stop flag for symbol (spec.md §4.10 step 3): the
// underlying state machine is told to stop sourcing new candidates via
// ClientStrategy.Stop, and the loop exits on its own once the current
// signal (if any) closes naturally.
func (r *Runner) Stop(symbol string) {
	r.Strategy.Stop(symbol)
	r.mu.Lock()
	r.stopped[symbol] = true
	r.mu.Unlock()
}

// Background returns a hard-cancel closure for symbol: calling it
// interrupts the loop at the next yield boundary, regardless of
// whether a signal is still open. Returns a no-op if Run was never
// called for symbol.
func (r *Runner) Background(symbol string) func() {
	r.mu.Lock()
	cancel, ok := r.cancels[symbol]
	r.mu.Unlock()
	if !ok {
		return func() {}
	}
	return cancel
}

func (r *Runner) isStopped(symbol string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stopped[symbol]
}

func (r *Runner) run(ctx context.Context, symbol string, out chan<- Item) {
	defer close(out)

	if err := r.Strategy.WaitForInit(ctx, symbol); err != nil {
		select {
		case out <- Item{Err: err}:
		case <-ctx.Done():
		}
		return
	}

	mc := ambient.MethodContext{StrategyName: r.StrategyName, ExchangeName: r.ExchangeName, FrameName: r.FrameName}

	ticker := time.NewTicker(r.Cfg.TickPollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		when := time.Now().UTC()
		ec := ambient.ExecutionContext{Symbol: symbol, When: when, Backtest: false}
		tickCtx := ambient.WithExecutionContext(ambient.WithMethodContext(ctx, mc), ec)

		start := time.Now()
		result, err := r.Strategy.Tick(tickCtx, symbol)
		r.publish(eventbus.SubjectPerformance, PerformanceSample{Symbol: symbol, Op: "live_tick", Duration: time.Since(start)})

		if err != nil {
			r.publish(eventbus.SubjectError, err)
			continue
		}

		if result.Kind == strategyclient.KindOpened || result.Kind == strategyclient.KindClosed {
			select {
			case out <- Item{Result: result}:
			case <-ctx.Done():
				return
			}
		}

		if r.isStopped(symbol) && (result.Kind == strategyclient.KindIdle || result.Kind == strategyclient.KindClosed) {
			r.publish(eventbus.SubjectDoneLive, Done{Symbol: symbol, StrategyName: r.StrategyName})
			return
		}
	}
}
