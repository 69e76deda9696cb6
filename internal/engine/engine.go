// Package engine is the public facade spec.md's "User-facing
// programmatic surface" names: schema registration (addExchange/
// addStrategy/addFrame/addRisk/addWalker, each with an override…
// counterpart), execution (Backtest/Live/Walker run/background/stop),
// ambient-context-consuming utilities, and event-listener
// registration. It owns every registry and client cache the rest of
// the engine needs and wires them together; it contains no algorithm
// of its own beyond that wiring.
package engine

import (
	"context"
	"sync"

	"github.com/guyghost/backtestkit/internal/config"
	"github.com/guyghost/backtestkit/internal/connection"
	"github.com/guyghost/backtestkit/internal/eventbus"
	"github.com/guyghost/backtestkit/internal/exchangeclient"
	"github.com/guyghost/backtestkit/internal/frameclient"
	"github.com/guyghost/backtestkit/internal/liveloop"
	"github.com/guyghost/backtestkit/internal/logger"
	"github.com/guyghost/backtestkit/internal/persistence"
	"github.com/guyghost/backtestkit/internal/report"
	"github.com/guyghost/backtestkit/internal/riskclient"
	"github.com/guyghost/backtestkit/internal/schema"
	"github.com/guyghost/backtestkit/internal/strategyclient"
	"github.com/guyghost/backtestkit/internal/walker"
)

// Engine owns every schema registry, client cache, and accumulator the
// facade's Backtest/Live/Walker surfaces share (spec.md §4.1/§4.3).
type Engine struct {
	cfg   *config.EngineConfig
	bus   *eventbus.Bus
	store persistence.Adapter
	log   *logger.Logger

	exchangeSchemas *schema.Registry[exchangeclient.ExchangeSchema]
	strategySchemas *schema.Registry[strategyclient.StrategySchema]
	frameSchemas    *schema.Registry[frameclient.FrameSchema]
	riskSchemas     *schema.Registry[riskclient.RiskSchema]
	walkerSchemas   *schema.Registry[walker.Schema]

	exchanges  *connection.Cache[*exchangeclient.ClientExchange]
	frames     *connection.Cache[*frameclient.ClientFrame]
	risks      *connection.Cache[*riskclient.ClientRisk]
	strategies *connection.Cache[*strategyclient.ClientStrategy]

	accumulator *report.Accumulator

	mu          sync.Mutex
	cancels     map[string]context.CancelFunc
	liveRunners map[string]*liveloop.Runner
}

// New constructs an Engine bound to cfg/bus/store. store is the
// persistence.Adapter every registered strategy's ClientStrategy is
// wired to (spec.md §4.13); pass persistence.NewNoOp() for a pure
// in-memory engine.
func New(cfg *config.EngineConfig, bus *eventbus.Bus, store persistence.Adapter) *Engine {
	accumulator := report.NewAccumulator()
	accumulator.Subscribe(bus)

	return &Engine{
		cfg:   cfg,
		bus:   bus,
		store: store,
		log:   logger.Component("engine"),

		exchangeSchemas: schema.New[exchangeclient.ExchangeSchema](),
		strategySchemas: schema.New[strategyclient.StrategySchema](),
		frameSchemas:    schema.New[frameclient.FrameSchema](),
		riskSchemas:     schema.New[riskclient.RiskSchema](),
		walkerSchemas:   schema.New[walker.Schema](),

		exchanges:  connection.New[*exchangeclient.ClientExchange](),
		frames:     connection.New[*frameclient.ClientFrame](),
		risks:      connection.New[*riskclient.ClientRisk](),
		strategies: connection.New[*strategyclient.ClientStrategy](),

		accumulator: accumulator,
		cancels:     make(map[string]context.CancelFunc),
		liveRunners: make(map[string]*liveloop.Runner),
	}
}

// Bus exposes the engine's event bus for listener registration.
func (e *Engine) Bus() *eventbus.Bus { return e.bus }

// Accumulator exposes the report accumulator every run feeds, e.g. so
// a caller can request Summarize(strategyName) directly.
func (e *Engine) Accumulator() *report.Accumulator { return e.accumulator }

// --- Schema registration (spec.md "User-facing programmatic surface") ---

func (e *Engine) AddExchange(name string, s exchangeclient.ExchangeSchema) error {
	s.Name = name
	return e.exchangeSchemas.Register(name, s)
}

func (e *Engine) OverrideExchange(name string, merge func(exchangeclient.ExchangeSchema) exchangeclient.ExchangeSchema) error {
	return e.exchangeSchemas.Override(name, merge)
}

func (e *Engine) AddStrategy(name string, s strategyclient.StrategySchema) error {
	s.Name = name
	return e.strategySchemas.Register(name, s)
}

func (e *Engine) OverrideStrategy(name string, merge func(strategyclient.StrategySchema) strategyclient.StrategySchema) error {
	return e.strategySchemas.Override(name, merge)
}

func (e *Engine) AddFrame(name string, s frameclient.FrameSchema) error {
	s.Name = name
	return e.frameSchemas.Register(name, s)
}

func (e *Engine) OverrideFrame(name string, merge func(frameclient.FrameSchema) frameclient.FrameSchema) error {
	return e.frameSchemas.Override(name, merge)
}

func (e *Engine) AddRisk(name string, s riskclient.RiskSchema) error {
	s.Name = name
	return e.riskSchemas.Register(name, s)
}

func (e *Engine) OverrideRisk(name string, merge func(riskclient.RiskSchema) riskclient.RiskSchema) error {
	return e.riskSchemas.Override(name, merge)
}

func (e *Engine) AddWalker(name string, s walker.Schema) error {
	s.Name = name
	return e.walkerSchemas.Register(name, s)
}

func (e *Engine) OverrideWalker(name string, merge func(walker.Schema) walker.Schema) error {
	return e.walkerSchemas.Override(name, merge)
}

// --- Client resolution (spec.md §4.3 Connection Layer) ---

func (e *Engine) exchangeClient(name string) (*exchangeclient.ClientExchange, error) {
	return e.exchanges.Get(connection.Key(name), func() (*exchangeclient.ClientExchange, error) {
		s, err := e.exchangeSchemas.Get(name)
		if err != nil {
			return nil, err
		}
		return exchangeclient.New(s, e.cfg), nil
	})
}

func (e *Engine) frameClient(name string) (*frameclient.ClientFrame, error) {
	return e.frames.Get(connection.Key(name), func() (*frameclient.ClientFrame, error) {
		s, err := e.frameSchemas.Get(name)
		if err != nil {
			return nil, err
		}
		return frameclient.New(s), nil
	})
}

func (e *Engine) riskClient(name string) (*riskclient.ClientRisk, error) {
	return e.risks.Get(connection.Key(name), func() (*riskclient.ClientRisk, error) {
		s, err := e.riskSchemas.Get(name)
		if err != nil {
			return nil, err
		}
		return riskclient.New(s), nil
	})
}

// strategyClient resolves (or builds) the ClientStrategy for the given
// name tuple, the cache key spec.md §4.3 describes
// (riskName+exchangeName+frameName+strategyName here, since a single
// strategy schema may be run against different exchange/frame/risk
// combinations).
func (e *Engine) strategyClient(strategyName, exchangeName, frameName, riskName string) (*strategyclient.ClientStrategy, error) {
	key := connection.Key(strategyName, exchangeName, frameName, riskName)
	return e.strategies.Get(key, func() (*strategyclient.ClientStrategy, error) {
		strategySchema, err := e.strategySchemas.Get(strategyName)
		if err != nil {
			return nil, err
		}
		exchange, err := e.exchangeClient(exchangeName)
		if err != nil {
			return nil, err
		}
		risk, err := e.riskClient(riskName)
		if err != nil {
			return nil, err
		}
		return strategyclient.New(strategySchema, exchangeName, frameName, e.cfg, exchange, risk, e.store, e.bus), nil
	})
}

// ClearCaches evicts every cached client, forcing the next run to
// rebuild from the currently registered schemas (spec.md §4.3's
// explicit "clear").
func (e *Engine) ClearCaches() {
	e.exchanges.ClearAll()
	e.frames.ClearAll()
	e.risks.ClearAll()
	e.strategies.ClearAll()
}

// liveRunnerFor returns the cached liveloop.Runner for strategyName,
// building it via build on a miss. Live runners are keyed by
// strategyName alone (unlike the other client caches) because
// Live.stop(symbol, name) spec.md §6 names only the strategy.
func (e *Engine) liveRunnerFor(strategyName string, build func() (*liveloop.Runner, error)) (*liveloop.Runner, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if runner, ok := e.liveRunners[strategyName]; ok {
		return runner, nil
	}
	runner, err := build()
	if err != nil {
		return nil, err
	}
	e.liveRunners[strategyName] = runner
	return runner, nil
}

func (e *Engine) lookupLiveRunner(strategyName string) (*liveloop.Runner, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	runner, ok := e.liveRunners[strategyName]
	return runner, ok
}

func (e *Engine) storeCancel(key string, cancel context.CancelFunc) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.cancels[key] = cancel
}

func (e *Engine) takeCancel(key string) (context.CancelFunc, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	cancel, ok := e.cancels[key]
	delete(e.cancels, key)
	return cancel, ok
}
