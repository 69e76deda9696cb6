// Package policy implements the profit-side decisions the signal state
// machine applies on every pending-signal tick (spec.md §4.5 step 2):
// partial-level milestone events, the one-time breakeven stop-loss
// transition, and the optional trailing-stop ratchet. None of these
// mutate state machine control flow directly — they report what
// changed and let the caller (internal/strategyclient) apply it and
// emit the corresponding events.
package policy

import (
	"github.com/shopspring/decimal"

	"github.com/guyghost/backtestkit/internal/config"
	"github.com/guyghost/backtestkit/internal/signal"
)

// Levels is the ordered set of PnL percent milestones that trigger a
// partial_profit/partial_loss event, per spec.md §4.5 step 2e.
var Levels = []int{10, 20, 30, 40, 50, 60, 70, 80, 90}

// PartialHit describes one newly-crossed milestone.
type PartialHit struct {
	Level    int
	IsProfit bool
}

// EvaluatePartials reports every milestone in Levels that pnlPct has
// newly crossed since totalExecuted levels were last recorded, in
// ascending order, along with the updated totalExecuted count. A
// milestone is "crossed" once |pnlPct| reaches or exceeds it; profit
// vs. loss is the sign of pnlPct. Idempotent: calling again with the
// returned totalExecuted and the same or smaller pnlPct yields no
// further hits (spec.md Testable Property 5).
func EvaluatePartials(pnlPct decimal.Decimal, totalExecuted int) (hits []PartialHit, newTotalExecuted int) {
	magnitude := pnlPct.Abs()
	isProfit := pnlPct.IsPositive()

	newTotalExecuted = totalExecuted
	for _, level := range Levels {
		if level <= totalExecuted*10 {
			continue
		}
		if magnitude.LessThan(decimal.NewFromInt(int64(level))) {
			break
		}
		hits = append(hits, PartialHit{Level: level, IsProfit: isProfit})
		newTotalExecuted++
	}
	return hits, newTotalExecuted
}

// BreakevenThresholdPct resolves the Open Question left unanswered by
// spec.md §9: the PnL percent at which the breakeven transition fires.
func BreakevenThresholdPct(cfg *config.EngineConfig) decimal.Decimal {
	two := decimal.NewFromInt(2)
	return cfg.PercentFee.Add(cfg.PercentSlippage).Mul(two).Mul(cfg.BreakevenSafetyMultiplier).Mul(decimal.NewFromInt(100))
}

// EvaluateBreakeven reports whether the pending signal's PnL has
// crossed the breakeven threshold and, if so, the new stop-loss price
// — priceOpen adjusted so that closing there nets zero PnL rather than
// a loss. Idempotent: the caller only applies this once per signal
// (tracked via Row.BreakevenApplied).
func EvaluateBreakeven(row signal.Row, pnlPct decimal.Decimal, cfg *config.EngineConfig) (newStopLoss decimal.Decimal, applies bool) {
	if row.BreakevenApplied {
		return decimal.Zero, false
	}
	if pnlPct.LessThan(BreakevenThresholdPct(cfg)) {
		return decimal.Zero, false
	}

	dir := row.Position.Dir()
	// The stop-loss that exactly offsets entry+exit costs: close at
	// this price adjusts (via signal.AdjustedPrice) to equal the
	// adjusted open price.
	adjOpen := signal.AdjustedPrice(dir, row.PriceOpen, cfg.PercentFee, cfg.PercentSlippage, true)
	exitFactor := signal.AdjustedPrice(dir, decimal.NewFromInt(1), cfg.PercentFee, cfg.PercentSlippage, false)
	return adjOpen.Div(exitFactor), true
}

// EvaluateTrailing moves the stop-loss to TrailingStepPct away from the
// current price whenever that is tighter than the existing stop-loss,
// and never loosens it (spec.md §4.5 step 2f). Returns the candidate stop-loss
// and whether it is strictly tighter than the existing one. A zero
// TrailingStepPct disables trailing.
func EvaluateTrailing(position signal.Position, currentPrice, existingStopLoss, trailingStepPct decimal.Decimal) (newStopLoss decimal.Decimal, tightened bool) {
	if trailingStepPct.IsZero() || trailingStepPct.IsNegative() {
		return existingStopLoss, false
	}

	step := trailingStepPct.Div(decimal.NewFromInt(100))
	one := decimal.NewFromInt(1)

	switch position {
	case signal.Long:
		candidate := currentPrice.Mul(one.Sub(step))
		if candidate.GreaterThan(existingStopLoss) {
			return candidate, true
		}
	case signal.Short:
		candidate := currentPrice.Mul(one.Add(step))
		if existingStopLoss.IsZero() || candidate.LessThan(existingStopLoss) {
			return candidate, true
		}
	}
	return existingStopLoss, false
}
