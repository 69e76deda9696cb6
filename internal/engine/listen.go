package engine

import (
	"github.com/guyghost/backtestkit/internal/backtestloop"
	"github.com/guyghost/backtestkit/internal/eventbus"
	"github.com/guyghost/backtestkit/internal/liveloop"
	"github.com/guyghost/backtestkit/internal/policy"
	"github.com/guyghost/backtestkit/internal/strategyclient"
	"github.com/guyghost/backtestkit/internal/walker"
)

// Listener callback signatures for every subject spec.md §6 names
// under "Events". Each has a …Once counterpart that fires at most once
// and unsubscribes itself automatically.

func (e *Engine) ListenSignal(fn func(strategyclient.Result)) eventbus.Unsubscribe {
	return e.bus.Subscribe(eventbus.SubjectSignal, typedHandler(fn))
}

func (e *Engine) ListenSignalOnce(filter func(strategyclient.Result) bool, fn func(strategyclient.Result)) eventbus.Unsubscribe {
	return e.bus.SubscribeOnce(eventbus.SubjectSignal, typedFilter(filter), typedHandler(fn))
}

func (e *Engine) ListenSignalBacktest(fn func(strategyclient.Result)) eventbus.Unsubscribe {
	return e.bus.Subscribe(eventbus.SubjectSignalBacktest, typedHandler(fn))
}

func (e *Engine) ListenSignalBacktestOnce(filter func(strategyclient.Result) bool, fn func(strategyclient.Result)) eventbus.Unsubscribe {
	return e.bus.SubscribeOnce(eventbus.SubjectSignalBacktest, typedFilter(filter), typedHandler(fn))
}

func (e *Engine) ListenSignalLive(fn func(strategyclient.Result)) eventbus.Unsubscribe {
	return e.bus.Subscribe(eventbus.SubjectSignalLive, typedHandler(fn))
}

func (e *Engine) ListenSignalLiveOnce(filter func(strategyclient.Result) bool, fn func(strategyclient.Result)) eventbus.Unsubscribe {
	return e.bus.SubscribeOnce(eventbus.SubjectSignalLive, typedFilter(filter), typedHandler(fn))
}

func (e *Engine) ListenDoneBacktest(fn func(backtestloop.Done)) eventbus.Unsubscribe {
	return e.bus.Subscribe(eventbus.SubjectDoneBacktest, typedHandler(fn))
}

func (e *Engine) ListenDoneBacktestOnce(filter func(backtestloop.Done) bool, fn func(backtestloop.Done)) eventbus.Unsubscribe {
	return e.bus.SubscribeOnce(eventbus.SubjectDoneBacktest, typedFilter(filter), typedHandler(fn))
}

func (e *Engine) ListenDoneLive(fn func(liveloop.Done)) eventbus.Unsubscribe {
	return e.bus.Subscribe(eventbus.SubjectDoneLive, typedHandler(fn))
}

func (e *Engine) ListenDoneLiveOnce(filter func(liveloop.Done) bool, fn func(liveloop.Done)) eventbus.Unsubscribe {
	return e.bus.SubscribeOnce(eventbus.SubjectDoneLive, typedFilter(filter), typedHandler(fn))
}

func (e *Engine) ListenDoneWalker(fn func(walker.Done)) eventbus.Unsubscribe {
	return e.bus.Subscribe(eventbus.SubjectDoneWalker, typedHandler(fn))
}

func (e *Engine) ListenDoneWalkerOnce(filter func(walker.Done) bool, fn func(walker.Done)) eventbus.Unsubscribe {
	return e.bus.SubscribeOnce(eventbus.SubjectDoneWalker, typedFilter(filter), typedHandler(fn))
}

func (e *Engine) ListenBacktestProgress(fn func(backtestloop.Progress)) eventbus.Unsubscribe {
	return e.bus.Subscribe(eventbus.SubjectProgressBacktest, typedHandler(fn))
}

func (e *Engine) ListenBacktestProgressOnce(filter func(backtestloop.Progress) bool, fn func(backtestloop.Progress)) eventbus.Unsubscribe {
	return e.bus.SubscribeOnce(eventbus.SubjectProgressBacktest, typedFilter(filter), typedHandler(fn))
}

func (e *Engine) ListenWalkerProgress(fn func(walker.Progress)) eventbus.Unsubscribe {
	return e.bus.Subscribe(eventbus.SubjectProgressWalker, typedHandler(fn))
}

func (e *Engine) ListenWalkerProgressOnce(filter func(walker.Progress) bool, fn func(walker.Progress)) eventbus.Unsubscribe {
	return e.bus.SubscribeOnce(eventbus.SubjectProgressWalker, typedFilter(filter), typedHandler(fn))
}

func (e *Engine) ListenPartialProfit(fn func(policy.PartialHit)) eventbus.Unsubscribe {
	return e.bus.Subscribe(eventbus.SubjectPartialProfit, typedHandler(fn))
}

func (e *Engine) ListenPartialProfitOnce(filter func(policy.PartialHit) bool, fn func(policy.PartialHit)) eventbus.Unsubscribe {
	return e.bus.SubscribeOnce(eventbus.SubjectPartialProfit, typedFilter(filter), typedHandler(fn))
}

func (e *Engine) ListenPartialLoss(fn func(policy.PartialHit)) eventbus.Unsubscribe {
	return e.bus.Subscribe(eventbus.SubjectPartialLoss, typedHandler(fn))
}

func (e *Engine) ListenPartialLossOnce(filter func(policy.PartialHit) bool, fn func(policy.PartialHit)) eventbus.Unsubscribe {
	return e.bus.SubscribeOnce(eventbus.SubjectPartialLoss, typedFilter(filter), typedHandler(fn))
}

// ListenBreakeven receives the symbol whose signal moved its stop-loss
// to breakeven.
func (e *Engine) ListenBreakeven(fn func(string)) eventbus.Unsubscribe {
	return e.bus.Subscribe(eventbus.SubjectBreakeven, typedHandler(fn))
}

func (e *Engine) ListenBreakevenOnce(filter func(string) bool, fn func(string)) eventbus.Unsubscribe {
	return e.bus.SubscribeOnce(eventbus.SubjectBreakeven, typedFilter(filter), typedHandler(fn))
}

func (e *Engine) ListenRisk(fn func(any)) eventbus.Unsubscribe {
	return e.bus.Subscribe(eventbus.SubjectRisk, func(ev eventbus.Event) { fn(ev.Payload) })
}

func (e *Engine) ListenRiskOnce(filter func(any) bool, fn func(any)) eventbus.Unsubscribe {
	return e.bus.SubscribeOnce(eventbus.SubjectRisk,
		func(ev eventbus.Event) bool { return filter(ev.Payload) },
		func(ev eventbus.Event) { fn(ev.Payload) })
}

func (e *Engine) ListenPerformance(fn func(liveloop.PerformanceSample)) eventbus.Unsubscribe {
	return e.bus.Subscribe(eventbus.SubjectPerformance, typedHandler(fn))
}

func (e *Engine) ListenPerformanceOnce(filter func(liveloop.PerformanceSample) bool, fn func(liveloop.PerformanceSample)) eventbus.Unsubscribe {
	return e.bus.SubscribeOnce(eventbus.SubjectPerformance, typedFilter(filter), typedHandler(fn))
}

func (e *Engine) ListenError(fn func(error)) eventbus.Unsubscribe {
	return e.bus.Subscribe(eventbus.SubjectError, func(ev eventbus.Event) {
		if err, ok := ev.Payload.(error); ok {
			fn(err)
		}
	})
}

func (e *Engine) ListenErrorOnce(filter func(error) bool, fn func(error)) eventbus.Unsubscribe {
	return e.bus.SubscribeOnce(eventbus.SubjectError,
		func(ev eventbus.Event) bool {
			err, ok := ev.Payload.(error)
			return ok && filter(err)
		},
		func(ev eventbus.Event) {
			if err, ok := ev.Payload.(error); ok {
				fn(err)
			}
		})
}

func (e *Engine) ListenExit(fn func(error)) eventbus.Unsubscribe {
	return e.bus.Subscribe(eventbus.SubjectExit, func(ev eventbus.Event) {
		if err, ok := ev.Payload.(error); ok {
			fn(err)
		}
	})
}

func (e *Engine) ListenExitOnce(filter func(error) bool, fn func(error)) eventbus.Unsubscribe {
	return e.bus.SubscribeOnce(eventbus.SubjectExit,
		func(ev eventbus.Event) bool {
			err, ok := ev.Payload.(error)
			return ok && filter(err)
		},
		func(ev eventbus.Event) {
			if err, ok := ev.Payload.(error); ok {
				fn(err)
			}
		})
}

// typedHandler adapts a payload-typed callback to eventbus.Handler,
// silently dropping events whose payload doesn't match T (defensive
// against a publisher/subscriber type mismatch on a shared subject).
func typedHandler[T any](fn func(T)) eventbus.Handler {
	return func(ev eventbus.Event) {
		if payload, ok := ev.Payload.(T); ok {
			fn(payload)
		}
	}
}

// typedFilter adapts a payload-typed predicate to eventbus.Filter.
func typedFilter[T any](filter func(T) bool) eventbus.Filter {
	return func(ev eventbus.Event) bool {
		payload, ok := ev.Payload.(T)
		return ok && filter(payload)
	}
}
