package strategyclient

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/guyghost/backtestkit/internal/config"
	"github.com/guyghost/backtestkit/internal/exchangeclient"
	"github.com/guyghost/backtestkit/internal/policy"
	"github.com/guyghost/backtestkit/internal/signal"
)

// pendingOutcome is the per-candle result of applying the pending
// ruleset (spec.md §4.5 step 4): at most one close per candle, plus
// whatever partial/breakeven/trailing side effects fired first.
type pendingOutcome struct {
	closed           bool
	reason           signal.CloseReason
	closePrice       decimal.Decimal
	closeTimestamp   time.Time
	partialHits    []policy.PartialHit
	breakevenApplied bool
}

// evaluatePendingCandle mutates row in place (TotalExecuted,
// PriceStopLoss, BreakevenApplied) and reports whether this candle
// closes the signal, per the ordered priority in spec.md §4.5 step 4:
// SL-and-TP-conflict resolves to stop_loss, then TP, then SL, then
// partial levels, then breakeven, then trailing.
func evaluatePendingCandle(row *signal.Row, candle exchangeclient.Candle, cfg *config.EngineConfig) pendingOutcome {
	long := row.Position == signal.Long

	var slHit, tpHit bool
	if long {
		slHit = candle.Low.LessThanOrEqual(row.PriceStopLoss)
		tpHit = candle.High.GreaterThanOrEqual(row.PriceTakeProfit)
	} else {
		slHit = candle.High.GreaterThanOrEqual(row.PriceStopLoss)
		tpHit = candle.Low.LessThanOrEqual(row.PriceTakeProfit)
	}

	switch {
	case slHit:
		return pendingOutcome{closed: true, reason: signal.ReasonStopLoss, closePrice: row.PriceStopLoss, closeTimestamp: candle.Time()}
	case tpHit:
		return pendingOutcome{closed: true, reason: signal.ReasonTakeProfit, closePrice: row.PriceTakeProfit, closeTimestamp: candle.Time()}
	}

	pnl := signal.Compute(row.Position, row.PriceOpen, candle.Close, cfg.PercentFee, cfg.PercentSlippage)

	hits, newTotal := policy.EvaluatePartials(pnl.PnlPercentage, row.TotalExecuted)
	row.TotalExecuted = newTotal

	var outcome pendingOutcome
	outcome.partialHits = hits

	if newSL, applies := policy.EvaluateBreakeven(*row, pnl.PnlPercentage, cfg); applies {
		row.PriceStopLoss = newSL
		row.BreakevenApplied = true
		outcome.breakevenApplied = true
	}

	if cfg.TrailingStepPct.IsPositive() {
		if newSL, tightened := policy.EvaluateTrailing(row.Position, candle.Close, row.PriceStopLoss, cfg.TrailingStepPct); tightened {
			row.PriceStopLoss = newSL
		}
	}

	return outcome
}
