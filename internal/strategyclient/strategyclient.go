// Package strategyclient implements the signal lifecycle state machine
// (spec.md §4.5, §4.6): the per-(strategyName, symbol) executor that
// drives a candidate signal through scheduling, activation, monitoring,
// and closure, identically in backtest and live modes.
package strategyclient

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/guyghost/backtestkit/internal/ambient"
	"github.com/guyghost/backtestkit/internal/config"
	"github.com/guyghost/backtestkit/internal/enginerr"
	"github.com/guyghost/backtestkit/internal/eventbus"
	"github.com/guyghost/backtestkit/internal/exchangeclient"
	"github.com/guyghost/backtestkit/internal/logger"
	"github.com/guyghost/backtestkit/internal/persistence"
	"github.com/guyghost/backtestkit/internal/policy"
	"github.com/guyghost/backtestkit/internal/riskclient"
	"github.com/guyghost/backtestkit/internal/signal"
)

// GetSignalFunc is the user strategy callback consulted whenever no
// signal is currently live for a symbol.
type GetSignalFunc func(ctx context.Context, symbol string) (*signal.DTO, error)

// StrategySchema is the user-supplied collaborator contract for a
// trading strategy.
type StrategySchema struct {
	Name string
	// Interval throttles getSignal calls: a new call is skipped if
	// less than Interval has elapsed since the last one (spec.md §4.5
	// step 2b).
	Interval  time.Duration
	GetSignal GetSignalFunc
}

// Validate implements schema.Validatable.
func (s StrategySchema) Validate() error {
	if s.Name == "" {
		return fmt.Errorf("%w: strategy schema name must not be empty", enginerr.ErrInvalidSignal)
	}
	if s.GetSignal == nil {
		return fmt.Errorf("%w: strategy schema %q missing GetSignal", enginerr.ErrInvalidSignal, s.Name)
	}
	if s.Interval <= 0 {
		return fmt.Errorf("%w: strategy schema %q must have a positive Interval", enginerr.ErrInvalidSignal, s.Name)
	}
	return nil
}

// activationTolerancePct is the "minute-resolution tolerance" spec.md
// §4.5 step 1f leaves unspecified: a market-adjacent limit price this
// close to the current VWAP is treated as immediately activating.
var activationTolerancePct = decimal.NewFromFloat(0.0005)

// ResultKind discriminates the outcome of one tick or backtest call.
type ResultKind string

const (
	KindIdle      ResultKind = "idle"
	KindScheduled ResultKind = "scheduled"
	KindOpened    ResultKind = "opened"
	KindActive    ResultKind = "active"
	KindCancelled ResultKind = "cancelled"
	KindClosed    ResultKind = "closed"
)

// Result is the discriminated outcome spec.md §4.5 requires from tick
// and backtest. Row is the zero value for Idle.
type Result struct {
	Kind ResultKind
	Row  signal.Row
}

type symbolState struct {
	mu                sync.Mutex
	row               *signal.Row
	stopFlag          bool
	lastGetSignalCall time.Time
	initialized       bool
}

// ClientStrategy drives the signal lifecycle for every symbol a
// strategy is asked to trade, backed by one ClientExchange, one
// ClientRisk, and a persistence Adapter resolved by the connection
// layer (spec.md §4.3).
type ClientStrategy struct {
	schema       StrategySchema
	exchangeName string
	frameName    string
	cfg          *config.EngineConfig
	exchange     *exchangeclient.ClientExchange
	risk         *riskclient.ClientRisk
	store        persistence.Adapter
	bus          *eventbus.Bus
	log          *logger.Logger

	mu      sync.Mutex
	symbols map[string]*symbolState
}

// New constructs a ClientStrategy. exchangeName/frameName are the
// schema names this strategy was registered against, stamped onto
// every Row it produces.
func New(
	schema StrategySchema,
	exchangeName, frameName string,
	cfg *config.EngineConfig,
	exchange *exchangeclient.ClientExchange,
	risk *riskclient.ClientRisk,
	store persistence.Adapter,
	bus *eventbus.Bus,
) *ClientStrategy {
	return &ClientStrategy{
		schema:       schema,
		exchangeName: exchangeName,
		frameName:    frameName,
		cfg:          cfg,
		exchange:     exchange,
		risk:         risk,
		store:        store,
		bus:          bus,
		log:          logger.Component("strategyclient").Strategy(schema.Name),
		symbols:      make(map[string]*symbolState),
	}
}

func (c *ClientStrategy) state(symbol string) *symbolState {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.symbols[symbol]
	if !ok {
		s = &symbolState{}
		c.symbols[symbol] = s
	}
	return s
}

func (c *ClientStrategy) entityID(symbol string) string {
	return persistence.Key(c.schema.Name, symbol)
}

// openPositions counts symbols currently holding a pending (active)
// row for this strategy — the MaxConcurrentPositions budget spans
// every symbol the strategy trades, not just the one being ticked.
func (c *ClientStrategy) openPositions() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, s := range c.symbols {
		s.mu.Lock()
		if s.row != nil && s.row.State == signal.StatePending {
			n++
		}
		s.mu.Unlock()
	}
	return n
}

// Stop sets the soft stop flag for symbol: future ticks will no
// longer invoke getSignal, but an already-live signal is left to
// close naturally (spec.md §4.5 "stop(symbol)").
func (c *ClientStrategy) Stop(symbol string) {
	s := c.state(symbol)
	s.mu.Lock()
	s.stopFlag = true
	s.mu.Unlock()
}

// WaitForInit restores a persisted signal row on its first call for
// symbol; idempotent thereafter (spec.md §4.5 "waitForInit(symbol)").
func (c *ClientStrategy) WaitForInit(ctx context.Context, symbol string) error {
	s := c.state(symbol)
	s.mu.Lock()
	defer s.mu.Unlock()
	return c.waitForInitLocked(ctx, s, symbol)
}

func (c *ClientStrategy) waitForInitLocked(ctx context.Context, s *symbolState, symbol string) error {
	if s.initialized {
		return nil
	}
	s.initialized = true

	raw, err := c.store.ReadValue(ctx, c.entityID(symbol))
	if err != nil {
		return enginerr.New(enginerr.OpPersistRead, c.entityID(symbol), err)
	}
	if raw == nil {
		return nil
	}
	var row signal.Row
	if err := json.Unmarshal(raw, &row); err != nil {
		return enginerr.New(enginerr.OpPersistRead, c.entityID(symbol), err)
	}
	if row.State != signal.StateClosed {
		s.row = &row
	}
	return nil
}

func (c *ClientStrategy) persist(ctx context.Context, symbol string, row *signal.Row) error {
	data, err := json.Marshal(row)
	if err != nil {
		return enginerr.New(enginerr.OpPersistWrite, c.entityID(symbol), err)
	}
	if err := c.store.WriteValue(ctx, c.entityID(symbol), data); err != nil {
		return enginerr.New(enginerr.OpPersistWrite, c.entityID(symbol), err)
	}
	return nil
}

func (c *ClientStrategy) clearPersisted(ctx context.Context, symbol string) {
	if err := c.store.RemoveValue(ctx, c.entityID(symbol)); err != nil {
		c.log.WithContext(ctx).WithError(err).Error("failed to clear persisted signal")
	}
}

func (c *ClientStrategy) publish(subject eventbus.Subject, payload any) {
	if c.bus != nil {
		c.bus.Publish(subject, payload)
	}
}

func (c *ClientStrategy) publishError(ctx context.Context, err error) {
	c.log.WithContext(ctx).WithError(err).Warn("recoverable strategy error")
	c.publish(eventbus.SubjectError, err)
}

// Tick executes one step of the single-tick algorithm (spec.md §4.5)
// for symbol using the ambient ExecutionContext's timestamp.
func (c *ClientStrategy) Tick(ctx context.Context, symbol string) (Result, error) {
	ec, err := ambient.CurrentExecutionContext(ctx)
	if err != nil {
		return Result{}, err
	}

	s := c.state(symbol)
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := c.waitForInitLocked(ctx, s, symbol); err != nil {
		c.publishError(ctx, err)
	}

	if s.row == nil {
		return c.tickNoSignal(ctx, s, symbol, ec)
	}

	switch s.row.State {
	case signal.StateScheduled:
		return c.tickScheduled(ctx, s, symbol, ec)
	case signal.StatePending:
		return c.tickPending(ctx, s, symbol, ec)
	default:
		return Result{Kind: KindIdle}, nil
	}
}

func (c *ClientStrategy) tickNoSignal(ctx context.Context, s *symbolState, symbol string, ec ambient.ExecutionContext) (Result, error) {
	if s.stopFlag {
		return Result{Kind: KindIdle}, nil
	}
	if !s.lastGetSignalCall.IsZero() && ec.When.Sub(s.lastGetSignalCall) < c.schema.Interval {
		return Result{Kind: KindIdle}, nil
	}
	s.lastGetSignalCall = ec.When

	dto, err := c.schema.GetSignal(ctx, symbol)
	if err != nil {
		c.publishError(ctx, enginerr.New(enginerr.OpGetSignal, symbol, err))
		return Result{Kind: KindIdle}, nil
	}
	if dto == nil {
		return Result{Kind: KindIdle}, nil
	}

	idInUse := func(strategyName, sym, id string) bool {
		return s.row != nil && s.row.ID == id
	}
	if err := signal.Validate(*dto, c.cfg, c.schema.Name, symbol, idInUse); err != nil {
		c.publishError(ctx, err)
		return Result{Kind: KindIdle}, nil
	}

	currentPrice, err := c.exchange.GetAveragePrice(ctx, symbol)
	if err != nil {
		c.publishError(ctx, enginerr.New(enginerr.OpAveragePrice, symbol, err))
		return Result{Kind: KindIdle}, nil
	}

	row := signal.NewRow(*dto, symbol, c.schema.Name, c.exchangeName, c.frameName, ec.When)

	immediate := row.PriceOpen.IsZero() ||
		row.PriceOpen.Sub(currentPrice).Abs().Div(currentPrice).LessThanOrEqual(activationTolerancePct)

	if !immediate {
		row.State = signal.StateScheduled
		s.row = &row
		if err := c.persist(ctx, symbol, s.row); err != nil {
			c.publishError(ctx, err)
		}
		c.publish(eventbus.SubjectSignal, Result{Kind: KindScheduled, Row: row})
		return Result{Kind: KindScheduled, Row: row}, nil
	}

	if row.PriceOpen.IsZero() {
		row.PriceOpen = currentPrice
	}
	row.State = signal.StatePending
	row.PendingAt = ec.When

	if err := c.risk.CheckSignal(ctx, row, c.openPositions()); err != nil {
		c.publish(eventbus.SubjectRisk, err)
		return Result{Kind: KindIdle}, nil
	}

	s.row = &row
	if err := c.persist(ctx, symbol, s.row); err != nil {
		c.publishError(ctx, err)
		s.row = nil
		return Result{Kind: KindIdle}, nil
	}
	c.publish(eventbus.SubjectSignal, Result{Kind: KindOpened, Row: row})
	return Result{Kind: KindOpened, Row: row}, nil
}

func (c *ClientStrategy) candleWindow(ctx context.Context, symbol string, from, to time.Time) ([]exchangeclient.Candle, error) {
	minutes := int(to.Sub(from).Minutes()) + 2
	if minutes < 1 {
		minutes = 1
	}
	candles, err := c.exchange.GetCandles(ctx, symbol, "1m", minutes)
	if err != nil {
		return nil, err
	}
	out := candles[:0:0]
	for _, candle := range candles {
		t := candle.Time()
		if !t.Before(from) && !t.After(to) {
			out = append(out, candle)
		}
	}
	return out, nil
}

func (c *ClientStrategy) tickScheduled(ctx context.Context, s *symbolState, symbol string, ec ambient.ExecutionContext) (Result, error) {
	row := s.row
	candles, err := c.candleWindow(ctx, symbol, row.ScheduledAt, ec.When)
	if err != nil {
		c.publishError(ctx, enginerr.New(enginerr.OpGetCandles, symbol, err))
		return Result{Kind: KindScheduled, Row: *row}, nil
	}

	long := row.Position == signal.Long

	for _, candle := range candles {
		slCrossed := (long && candle.Low.LessThanOrEqual(row.PriceStopLoss)) ||
			(!long && candle.High.GreaterThanOrEqual(row.PriceStopLoss))
		if c.cfg.AllowPreActivationStopCancel && slCrossed {
			return c.cancel(ctx, s, symbol, row, signal.ReasonStopLoss, candle.Time())
		}

		activated := (long && candle.Low.LessThanOrEqual(row.PriceOpen)) ||
			(!long && candle.High.GreaterThanOrEqual(row.PriceOpen))
		if activated {
			row.State = signal.StatePending
			row.PendingAt = candle.Time()

			if err := c.risk.CheckSignal(ctx, *row, c.openPositions()); err != nil {
				c.publish(eventbus.SubjectRisk, err)
				return c.cancel(ctx, s, symbol, row, signal.ReasonCancelled, candle.Time())
			}

			if err := c.persist(ctx, symbol, row); err != nil {
				c.publishError(ctx, err)
				return Result{Kind: KindScheduled, Row: *row}, nil
			}
			c.publish(eventbus.SubjectSignal, Result{Kind: KindOpened, Row: *row})

			outcome := evaluatePendingCandle(row, candle, c.cfg)
			c.emitPendingOutcome(ctx, symbol, outcome)
			if outcome.closed {
				return c.closeRow(ctx, s, symbol, row, outcome)
			}
			if err := c.persist(ctx, symbol, row); err != nil {
				c.publishError(ctx, err)
			}
			return Result{Kind: KindOpened, Row: *row}, nil
		}

		if candle.Time().Sub(row.ScheduledAt) >= time.Duration(c.cfg.ScheduleAwaitMin)*time.Minute {
			return c.cancel(ctx, s, symbol, row, signal.ReasonTimeExpired, candle.Time())
		}
	}

	return Result{Kind: KindScheduled, Row: *row}, nil
}

func (c *ClientStrategy) cancel(ctx context.Context, s *symbolState, symbol string, row *signal.Row, reason signal.CloseReason, when time.Time) (Result, error) {
	row.State = signal.StateClosed
	row.CloseReason = reason
	row.CloseTimestamp = when
	c.clearPersisted(ctx, symbol)
	s.row = nil
	result := Result{Kind: KindCancelled, Row: *row}
	c.publish(eventbus.SubjectSignal, result)
	return result, nil
}

func (c *ClientStrategy) tickPending(ctx context.Context, s *symbolState, symbol string, ec ambient.ExecutionContext) (Result, error) {
	row := s.row
	candles, err := c.candleWindow(ctx, symbol, row.PendingAt, ec.When)
	if err != nil {
		c.publishError(ctx, enginerr.New(enginerr.OpGetCandles, symbol, err))
		return Result{Kind: KindActive, Row: *row}, nil
	}

	for _, candle := range candles {
		outcome := evaluatePendingCandle(row, candle, c.cfg)
		c.emitPendingOutcome(ctx, symbol, outcome)
		if outcome.closed {
			return c.closeRow(ctx, s, symbol, row, outcome)
		}
	}

	if ec.When.Sub(row.PendingAt) >= time.Duration(row.MinuteEstimatedTime)*time.Minute {
		currentPrice, err := c.exchange.GetAveragePrice(ctx, symbol)
		if err != nil {
			c.publishError(ctx, enginerr.New(enginerr.OpAveragePrice, symbol, err))
			return Result{Kind: KindActive, Row: *row}, nil
		}
		return c.closeRow(ctx, s, symbol, row, pendingOutcome{
			closed:         true,
			reason:         signal.ReasonTimeExpired,
			closePrice:     currentPrice,
			closeTimestamp: ec.When,
		})
	}

	if err := c.persist(ctx, symbol, row); err != nil {
		c.publishError(ctx, err)
	}
	return Result{Kind: KindActive, Row: *row}, nil
}

func (c *ClientStrategy) emitPendingOutcome(ctx context.Context, symbol string, outcome pendingOutcome) {
	for _, hit := range outcome.partialHits {
		subject := eventbus.SubjectPartialProfit
		if !hit.IsProfit {
			subject = eventbus.SubjectPartialLoss
		}
		c.publish(subject, hit)
	}
	if outcome.breakevenApplied {
		c.publish(eventbus.SubjectBreakeven, symbol)
	}
}

func (c *ClientStrategy) closeRow(ctx context.Context, s *symbolState, symbol string, row *signal.Row, outcome pendingOutcome) (Result, error) {
	row.State = signal.StateClosed
	row.CloseReason = outcome.reason
	row.CloseTimestamp = outcome.closeTimestamp
	row.PriceClose = outcome.closePrice
	pnl := signal.Compute(row.Position, row.PriceOpen, outcome.closePrice, c.cfg.PercentFee, c.cfg.PercentSlippage)
	row.PnlPercentage = pnl.PnlPercentage
	c.clearPersisted(ctx, symbol)
	s.row = nil

	result := Result{Kind: KindClosed, Row: *row}
	c.publish(eventbus.SubjectSignal, result)
	return result, nil
}
