// Package signal defines the trade-signal data model (spec.md §3, §4.7,
// §4.8): the DTO a strategy callback returns, the internal Row after
// validation, the close-reason taxonomy, and the PnL computation shared
// by the state machine and the backtest simulator.
package signal

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/guyghost/backtestkit/internal/config"
	"github.com/guyghost/backtestkit/internal/enginerr"
)

// Position is the signal's directional side.
type Position string

const (
	Long  Position = "long"
	Short Position = "short"
)

// Dir returns +1 for Long, -1 for Short, used throughout the PnL and
// rule-evaluation formulas.
func (p Position) Dir() int {
	if p == Short {
		return -1
	}
	return 1
}

// CloseReason enumerates why a Row transitioned to closed (or, for
// scheduled signals, cancelled).
type CloseReason string

const (
	ReasonTakeProfit  CloseReason = "take_profit"
	ReasonStopLoss    CloseReason = "stop_loss"
	ReasonTimeExpired CloseReason = "time_expired"
	ReasonCancelled   CloseReason = "cancelled"
	ReasonUserClose   CloseReason = "user_close"
)

// State is a signal's lifecycle state (spec.md §3 Signal States).
type State string

const (
	StateIdle      State = "idle"
	StateScheduled State = "scheduled"
	StatePending   State = "pending"
	StateClosed    State = "closed"
)

// DTO is what a user strategy callback returns from getSignal.
type DTO struct {
	Position            Position
	PriceOpen           decimal.Decimal // zero value means "open at market"
	PriceTakeProfit     decimal.Decimal
	PriceStopLoss       decimal.Decimal
	MinuteEstimatedTime int
	Note                string
	ID                  string // optional, caller-supplied
}

// Row is the internal record for a signal after validation and during
// its lifecycle.
type Row struct {
	DTO

	ID           string
	Symbol       string
	StrategyName string
	ExchangeName string
	FrameName    string

	State State

	ScheduledAt    time.Time
	PendingAt      time.Time
	CloseTimestamp time.Time
	CloseReason    CloseReason

	// PriceClose/PnlPercentage are populated once the row closes
	// (spec.md §4.8); zero otherwise.
	PriceClose    decimal.Decimal
	PnlPercentage decimal.Decimal

	// OriginalPriceTakeProfit/OriginalPriceStopLoss preserve the
	// pre-breakeven/trailing values once policy mutates PriceStopLoss.
	OriginalPriceTakeProfit decimal.Decimal
	OriginalPriceStopLoss   decimal.Decimal

	// TotalExecuted is the monotonically increasing count of
	// partial-level milestones already emitted for this signal.
	TotalExecuted int

	// BreakevenApplied marks the one-time breakeven transition so it
	// stays idempotent across ticks.
	BreakevenApplied bool
}

// NewRow builds a validated Row from a DTO, assigning a UUID if the
// caller omitted one.
func NewRow(dto DTO, symbol, strategyName, exchangeName, frameName string, scheduledAt time.Time) Row {
	id := dto.ID
	if id == "" {
		id = uuid.NewString()
	}
	return Row{
		DTO:                     dto,
		ID:                      id,
		Symbol:                  symbol,
		StrategyName:            strategyName,
		ExchangeName:            exchangeName,
		FrameName:               frameName,
		State:                   StateIdle,
		ScheduledAt:             scheduledAt,
		OriginalPriceTakeProfit: dto.PriceTakeProfit,
		OriginalPriceStopLoss:   dto.PriceStopLoss,
	}
}

// IDInUse reports whether id is already used by an active (non-closed)
// signal for the given strategy/symbol pair — the check spec.md §4.7
// requires for a caller-supplied id.
type IDInUse func(strategyName, symbol, id string) bool

// Validate rejects a DTO per spec.md §4.7. idInUse, when non-nil, reports
// whether a caller-supplied id is already taken by a live signal of the
// same strategy and symbol.
func Validate(dto DTO, cfg *config.EngineConfig, strategyName, symbol string, idInUse IDInUse) error {
	if !dto.PriceTakeProfit.IsPositive() {
		return fmt.Errorf("%w: priceTakeProfit must be finite and positive", enginerr.ErrInvalidSignal)
	}
	if !dto.PriceStopLoss.IsPositive() {
		return fmt.Errorf("%w: priceStopLoss must be finite and positive", enginerr.ErrInvalidSignal)
	}
	if !dto.PriceOpen.IsZero() && !dto.PriceOpen.IsPositive() {
		return fmt.Errorf("%w: priceOpen must be finite and positive when supplied", enginerr.ErrInvalidSignal)
	}

	open := dto.PriceOpen
	hasOpen := !open.IsZero()

	if hasOpen {
		switch dto.Position {
		case Long:
			if dto.PriceTakeProfit.LessThanOrEqual(open) {
				return fmt.Errorf("%w: long priceTakeProfit must exceed priceOpen", enginerr.ErrInvalidSignal)
			}
			if dto.PriceStopLoss.GreaterThanOrEqual(open) {
				return fmt.Errorf("%w: long priceStopLoss must be below priceOpen", enginerr.ErrInvalidSignal)
			}
		case Short:
			if dto.PriceTakeProfit.GreaterThanOrEqual(open) {
				return fmt.Errorf("%w: short priceTakeProfit must be below priceOpen", enginerr.ErrInvalidSignal)
			}
			if dto.PriceStopLoss.LessThanOrEqual(open) {
				return fmt.Errorf("%w: short priceStopLoss must exceed priceOpen", enginerr.ErrInvalidSignal)
			}
		default:
			return fmt.Errorf("%w: position must be long or short", enginerr.ErrInvalidSignal)
		}

		tpDist := dto.PriceTakeProfit.Sub(open).Abs().Div(open)
		if tpDist.LessThan(cfg.MinTpDistancePct) {
			return fmt.Errorf("%w: take-profit distance %s below minimum %s", enginerr.ErrInvalidSignal, tpDist, cfg.MinTpDistancePct)
		}

		slDist := dto.PriceStopLoss.Sub(open).Abs().Div(open)
		if slDist.GreaterThan(cfg.MaxSlDistancePct) {
			return fmt.Errorf("%w: stop-loss distance %s exceeds maximum %s", enginerr.ErrInvalidSignal, slDist, cfg.MaxSlDistancePct)
		}
	} else if dto.Position != Long && dto.Position != Short {
		return fmt.Errorf("%w: position must be long or short", enginerr.ErrInvalidSignal)
	}

	if dto.MinuteEstimatedTime <= 0 || dto.MinuteEstimatedTime > cfg.MaxSignalLifetimeMin {
		return fmt.Errorf("%w: minuteEstimatedTime must be positive and at most %d", enginerr.ErrInvalidSignal, cfg.MaxSignalLifetimeMin)
	}

	if dto.ID != "" && idInUse != nil && idInUse(strategyName, symbol, dto.ID) {
		return fmt.Errorf("%w: id %q already in use for %s:%s", enginerr.ErrSignalIDInUse, dto.ID, strategyName, symbol)
	}

	return nil
}
