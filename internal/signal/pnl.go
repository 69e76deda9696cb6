package signal

import "github.com/shopspring/decimal"

// PnL is the result of closing a position, per spec.md §3 PnL.
type PnL struct {
	PnlPercentage     decimal.Decimal
	PriceOpenAdjusted  decimal.Decimal
	PriceCloseAdjusted decimal.Decimal
}

// AdjustedPrice applies the per-side fee/slippage adjustment used on
// entry (sign +dir) or exit (sign -dir) — shared by PnL computation and
// the breakeven stop-loss calculation in internal/policy.
func AdjustedPrice(dir int, raw, fee, slippage decimal.Decimal, entry bool) decimal.Decimal {
	sign := decimal.NewFromInt(int64(dir))
	if !entry {
		sign = sign.Neg()
	}
	slippageFactor := decimal.NewFromInt(1).Add(sign.Mul(slippage))
	var feeFactor decimal.Decimal
	if entry {
		feeFactor = decimal.NewFromInt(1).Add(fee)
	} else {
		feeFactor = decimal.NewFromInt(1).Sub(fee)
	}
	return raw.Mul(slippageFactor).Mul(feeFactor)
}

// Compute returns the PnL of closing a position opened at priceOpen and
// closed at priceClose, given the signal's direction and the configured
// fee/slippage fractions.
func Compute(position Position, priceOpen, priceClose, fee, slippage decimal.Decimal) PnL {
	dir := position.Dir()
	adjOpen := AdjustedPrice(dir, priceOpen, fee, slippage, true)
	adjClose := AdjustedPrice(dir, priceClose, fee, slippage, false)

	ratio := adjClose.Div(adjOpen).Sub(decimal.NewFromInt(1))
	pnlPct := decimal.NewFromInt(int64(dir)).Mul(ratio).Mul(decimal.NewFromInt(100))

	return PnL{
		PnlPercentage:      pnlPct,
		PriceOpenAdjusted:  adjOpen,
		PriceCloseAdjusted: adjClose,
	}
}
