// Package backtestloop drives one (symbol, strategyName, exchangeName,
// frameName) backtest run end to end (spec.md §4.9): iterating a
// frame vector, ticking the signal state machine, and simulating
// scheduled/pending signals forward through the scheduled-candle
// simulator whenever one opens.
package backtestloop

import (
	"context"
	"time"

	"github.com/guyghost/backtestkit/internal/ambient"
	"github.com/guyghost/backtestkit/internal/config"
	"github.com/guyghost/backtestkit/internal/enginerr"
	"github.com/guyghost/backtestkit/internal/eventbus"
	"github.com/guyghost/backtestkit/internal/exchangeclient"
	"github.com/guyghost/backtestkit/internal/frameclient"
	"github.com/guyghost/backtestkit/internal/logger"
	"github.com/guyghost/backtestkit/internal/strategyclient"
)

// Item is one element of the lazy result sequence Run streams:
// exactly one of Result (a closed signal) or Err is meaningful.
type Item struct {
	Result strategyclient.Result
	Err    error
}

// Progress is the payload published on eventbus.SubjectProgressBacktest.
type Progress struct {
	Symbol         string
	ProcessedFrames int
	TotalFrames     int
}

// Done is the payload published on eventbus.SubjectDoneBacktest.
type Done struct {
	Symbol       string
	StrategyName string
	TotalFrames  int
}

// Runner wires the collaborators one backtest run needs.
type Runner struct {
	StrategyName string
	ExchangeName string
	FrameName    string

	Strategy *strategyclient.ClientStrategy
	Exchange *exchangeclient.ClientExchange
	Frame    *frameclient.ClientFrame
	Cfg      *config.EngineConfig
	Bus      *eventbus.Bus

	log *logger.Logger
}

// NewRunner constructs a Runner.
func NewRunner(strategyName, exchangeName, frameName string, strategy *strategyclient.ClientStrategy, exchange *exchangeclient.ClientExchange, frame *frameclient.ClientFrame, cfg *config.EngineConfig, bus *eventbus.Bus) *Runner {
	return &Runner{
		StrategyName: strategyName,
		ExchangeName: exchangeName,
		FrameName:    frameName,
		Strategy:     strategy,
		Exchange:     exchange,
		Frame:        frame,
		Cfg:          cfg,
		Bus:          bus,
		log:          logger.Component("backtestloop").Strategy(strategyName),
	}
}

func (r *Runner) publish(subject eventbus.Subject, payload any) {
	if r.Bus != nil {
		r.Bus.Publish(subject, payload)
	}
}

// Run streams closed signal results for symbol as a lazy, finite,
// non-restartable sequence (spec.md §4.9). The returned channel is
// closed once the frame vector is exhausted or ctx is cancelled;
// cancellation is cooperative and honored at the next frame boundary.
func (r *Runner) Run(ctx context.Context, symbol string) <-chan Item {
	out := make(chan Item)
	go r.run(ctx, symbol, out)
	return out
}

func (r *Runner) run(ctx context.Context, symbol string, out chan<- Item) {
	defer close(out)

	frames, err := r.Frame.GetTimeframes()
	if err != nil {
		select {
		case out <- Item{Err: err}:
		case <-ctx.Done():
		}
		return
	}

	mc := ambient.MethodContext{StrategyName: r.StrategyName, ExchangeName: r.ExchangeName, FrameName: r.FrameName}

	for i := 0; i < len(frames); {
		select {
		case <-ctx.Done():
			return
		default:
		}

		when := frames[i]
		ec := ambient.ExecutionContext{Symbol: symbol, When: when, Backtest: true}
		tickCtx := ambient.WithExecutionContext(ambient.WithMethodContext(ctx, mc), ec)

		r.publish(eventbus.SubjectProgressBacktest, Progress{Symbol: symbol, ProcessedFrames: i, TotalFrames: len(frames)})

		result, err := r.Strategy.Tick(tickCtx, symbol)
		if err != nil {
			if enginerr.Fatal(err) {
				select {
				case out <- Item{Err: err}:
				case <-ctx.Done():
				}
				return
			}
			i++
			continue
		}

		switch result.Kind {
		case strategyclient.KindScheduled, strategyclient.KindOpened:
			closed, advanceTo, ok := r.simulate(tickCtx, symbol, result)
			if ok {
				select {
				case out <- Item{Result: closed}:
				case <-ctx.Done():
					return
				}
			}
			i = nextFrameAfter(frames, i, advanceTo)

		case strategyclient.KindClosed:
			select {
			case out <- Item{Result: result}:
			case <-ctx.Done():
				return
			}
			i++

		default:
			i++
		}
	}

	r.publish(eventbus.SubjectDoneBacktest, Done{Symbol: symbol, StrategyName: r.StrategyName, TotalFrames: len(frames)})
}

// simulate fetches the candle window the scheduled-candle simulator
// needs and drives it to a close. ok is false when the window was
// exhausted without a close (the candidate remains scheduled/active
// and is picked up again on the next tick).
func (r *Runner) simulate(ctx context.Context, symbol string, opened strategyclient.Result) (strategyclient.Result, time.Time, bool) {
	windowMin := opened.Row.MinuteEstimatedTime
	if opened.Kind == strategyclient.KindScheduled {
		windowMin += r.Cfg.ScheduleAwaitMin
	}
	if windowMin <= 0 {
		windowMin = r.Cfg.ScheduleAwaitMin
	}

	candles, err := r.Exchange.GetNextCandles(ctx, symbol, "1m", windowMin+1)
	if err != nil {
		return strategyclient.Result{}, time.Time{}, false
	}

	closed, err := r.Strategy.Backtest(ctx, symbol, candles)
	if err != nil || closed.Kind != strategyclient.KindClosed {
		return strategyclient.Result{}, time.Time{}, false
	}
	return closed, closed.Row.CloseTimestamp, true
}

// nextFrameAfter advances from i to the first frame strictly greater
// than advanceTo (spec.md §4.9 step 3's skip-ahead rule), falling back
// to i+1 when advanceTo is the zero value (simulation didn't close).
func nextFrameAfter(frames []time.Time, i int, advanceTo time.Time) int {
	if advanceTo.IsZero() {
		return i + 1
	}
	for j := i + 1; j < len(frames); j++ {
		if frames[j].After(advanceTo) {
			return j
		}
	}
	return len(frames)
}
