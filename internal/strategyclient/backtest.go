package strategyclient

import (
	"context"
	"time"

	"github.com/guyghost/backtestkit/internal/eventbus"
	"github.com/guyghost/backtestkit/internal/exchangeclient"
	"github.com/guyghost/backtestkit/internal/signal"
)

// Backtest simulates a scheduled-or-pending row forward through a
// supplied, contiguous, ascending candle window (spec.md §4.6),
// producing a deterministic closed result without further I/O. The
// window must start at row.ScheduledAt (if still scheduled) or
// row.PendingAt (if already pending) and span at least
// minuteEstimatedTime + scheduleAwaitMin minutes.
func (c *ClientStrategy) Backtest(ctx context.Context, symbol string, candles []exchangeclient.Candle) (Result, error) {
	s := c.state(symbol)
	s.mu.Lock()
	defer s.mu.Unlock()

	row := s.row
	if row == nil {
		return Result{Kind: KindIdle}, nil
	}

	long := row.Position == signal.Long

	for _, candle := range candles {
		switch row.State {
		case signal.StateScheduled:
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

				// Entry for PnL purposes is priceOpen, not the
				// candle's extreme (spec.md §4.6: "the entry is
				// priceOpen, not the candle's actual extreme").
				outcome := evaluatePendingCandle(row, candle, c.cfg)
				c.emitPendingOutcome(ctx, symbol, outcome)
				if outcome.closed {
					return c.closeRow(ctx, s, symbol, row, outcome)
				}
				if err := c.persist(ctx, symbol, row); err != nil {
					c.publishError(ctx, err)
				}
				continue
			}

			if candle.Time().Sub(row.ScheduledAt) >= time.Duration(c.cfg.ScheduleAwaitMin)*time.Minute {
				return c.cancel(ctx, s, symbol, row, signal.ReasonTimeExpired, candle.Time())
			}

		case signal.StatePending:
			if candle.Time().Sub(row.PendingAt) >= time.Duration(row.MinuteEstimatedTime)*time.Minute {
				return c.closeRow(ctx, s, symbol, row, pendingOutcome{
					closed:         true,
					reason:         signal.ReasonTimeExpired,
					closePrice:     candle.Close,
					closeTimestamp: candle.Time(),
				})
			}
			outcome := evaluatePendingCandle(row, candle, c.cfg)
			c.emitPendingOutcome(ctx, symbol, outcome)
			if outcome.closed {
				return c.closeRow(ctx, s, symbol, row, outcome)
			}

		default:
			return Result{Kind: KindIdle}, nil
		}
	}

	// Window exhausted without a close: report the live state as-is,
	// the caller (backtest loop) must supply a wider window next time.
	if row.State == signal.StateScheduled {
		return Result{Kind: KindScheduled, Row: *row}, nil
	}
	return Result{Kind: KindActive, Row: *row}, nil
}
