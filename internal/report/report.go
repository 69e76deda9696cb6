// Package report accumulates closed signal results per strategy and
// derives the summary metrics the walker compares strategies by
// (spec.md §4.11). It subscribes to the event bus rather than being
// fed directly, mirroring the teacher's own reporter, which formats an
// already-computed backtesting.Metrics rather than performing I/O
// itself.
package report

import (
	"math"
	"time"

	"github.com/shopspring/decimal"

	"github.com/guyghost/backtestkit/internal/eventbus"
	"github.com/guyghost/backtestkit/internal/signal"
	"github.com/guyghost/backtestkit/internal/strategyclient"
)

// Metric names the walker's comparable statistics (spec.md §4.11).
type Metric string

const (
	MetricSharpeRatio           Metric = "sharpeRatio"
	MetricWinRate               Metric = "winRate"
	MetricTotalPnl               Metric = "totalPnl"
	MetricAvgPnl                Metric = "avgPnl"
	MetricMaxDrawdown           Metric = "maxDrawdown"
	MetricCertaintyRatio        Metric = "certaintyRatio"
	MetricAnnualizedSharpeRatio Metric = "annualizedSharpeRatio"
	MetricExpectedYearlyReturns Metric = "expectedYearlyReturns"
)

// Summary is the full set of derived statistics for one strategy's
// accumulated closed trades.
type Summary struct {
	StrategyName string
	TotalTrades  int
	WinningTrades int

	TotalPnlPct   decimal.Decimal
	AvgPnlPct     decimal.Decimal
	WinRatePct    decimal.Decimal
	MaxDrawdownPct decimal.Decimal

	SharpeRatio           decimal.Decimal
	AnnualizedSharpeRatio decimal.Decimal
	CertaintyRatio        decimal.Decimal
	ExpectedYearlyReturns decimal.Decimal

	FirstCloseAt time.Time
	LastCloseAt  time.Time
}

// Value reads the named metric off a Summary; used by the walker to
// compare strategies generically by the schema's chosen metric.
func (s Summary) Value(m Metric) decimal.Decimal {
	switch m {
	case MetricSharpeRatio:
		return s.SharpeRatio
	case MetricWinRate:
		return s.WinRatePct
	case MetricTotalPnl:
		return s.TotalPnlPct
	case MetricAvgPnl:
		return s.AvgPnlPct
	case MetricMaxDrawdown:
		return s.MaxDrawdownPct
	case MetricCertaintyRatio:
		return s.CertaintyRatio
	case MetricAnnualizedSharpeRatio:
		return s.AnnualizedSharpeRatio
	case MetricExpectedYearlyReturns:
		return s.ExpectedYearlyReturns
	default:
		return decimal.Zero
	}
}

// Accumulator collects closed rows per strategy and derives Summary on
// demand. Not safe for concurrent writes from multiple goroutines
// against the same strategy; the walker drives one strategy at a time
// (spec.md §4.11 step 3's "sequential" comparator), so no locking is
// needed beyond what a single subscriber goroutine already serializes.
type Accumulator struct {
	rows map[string][]signal.Row
}

// NewAccumulator constructs an empty Accumulator.
func NewAccumulator() *Accumulator {
	return &Accumulator{rows: make(map[string][]signal.Row)}
}

// Clear drops all accumulated rows for strategyName (spec.md §4.11
// step 2: "clear per-strategy report storage").
func (a *Accumulator) Clear(strategyName string) {
	delete(a.rows, strategyName)
}

// Record appends a closed row to strategyName's history.
func (a *Accumulator) Record(strategyName string, row signal.Row) {
	a.rows[strategyName] = append(a.rows[strategyName], row)
}

// Subscribe wires the accumulator to bus, recording every signal.Row
// whose published Result reports it as closed.
func (a *Accumulator) Subscribe(bus *eventbus.Bus) eventbus.Unsubscribe {
	return bus.Subscribe(eventbus.SubjectSignal, func(ev eventbus.Event) {
		result, ok := ev.Payload.(strategyclient.Result)
		if !ok || result.Kind != strategyclient.KindClosed {
			return
		}
		a.Record(result.Row.StrategyName, result.Row)
	})
}

// Summarize derives Summary from every row recorded for strategyName.
// Returns the zero Summary (all metrics zero) if no trade closed.
func (a *Accumulator) Summarize(strategyName string) Summary {
	rows := a.rows[strategyName]
	s := Summary{StrategyName: strategyName, TotalTrades: len(rows)}
	if len(rows) == 0 {
		return s
	}

	returns := make([]float64, len(rows))
	var totalPnl decimal.Decimal
	for i, row := range rows {
		totalPnl = totalPnl.Add(row.PnlPercentage)
		returns[i], _ = row.PnlPercentage.Float64()
		if row.PnlPercentage.IsPositive() {
			s.WinningTrades++
		}
		if row.CloseTimestamp.IsZero() {
			continue
		}
		if s.FirstCloseAt.IsZero() || row.CloseTimestamp.Before(s.FirstCloseAt) {
			s.FirstCloseAt = row.CloseTimestamp
		}
		if row.CloseTimestamp.After(s.LastCloseAt) {
			s.LastCloseAt = row.CloseTimestamp
		}
	}

	n := decimal.NewFromInt(int64(len(rows)))
	s.TotalPnlPct = totalPnl
	s.AvgPnlPct = totalPnl.Div(n)
	s.WinRatePct = decimal.NewFromInt(int64(s.WinningTrades)).Div(n).Mul(decimal.NewFromInt(100))
	s.MaxDrawdownPct = maxDrawdown(rows)

	mean, stddev := meanStddev(returns)
	if stddev > 0 {
		s.SharpeRatio = decimal.NewFromFloat(mean / stddev)
	}

	years := yearsSpanned(s.FirstCloseAt, s.LastCloseAt)
	if years > 0 {
		s.AnnualizedSharpeRatio = s.SharpeRatio.Mul(decimal.NewFromFloat(math.Sqrt(252 / (years * 365.25))))
		s.ExpectedYearlyReturns = s.TotalPnlPct.Div(decimal.NewFromFloat(years))
	}

	// certaintyRatio: the fraction of trades whose sign agrees with the
	// overall sign of totalPnl, i.e. how consistently trades point the
	// same direction as the net result (1 = every trade agreed, 0.5 =
	// a coin flip).
	s.CertaintyRatio = certaintyRatio(rows, totalPnl)

	return s
}

// maxDrawdown walks the cumulative-PnL equity curve built from rows in
// close order and returns the largest peak-to-trough percentage drop,
// following the teacher's own calculateMaxDrawdown shape (track a
// running peak, compare each point against it).
func maxDrawdown(rows []signal.Row) decimal.Decimal {
	var equity, peak, worst decimal.Decimal
	for _, row := range rows {
		equity = equity.Add(row.PnlPercentage)
		if equity.GreaterThan(peak) {
			peak = equity
		}
		drawdown := peak.Sub(equity)
		if drawdown.GreaterThan(worst) {
			worst = drawdown
		}
	}
	return worst
}

// certaintyRatio measures how many trades' sign agrees with the net
// result's sign.
func certaintyRatio(rows []signal.Row, totalPnl decimal.Decimal) decimal.Decimal {
	if totalPnl.IsZero() {
		return decimal.Zero
	}
	agree := 0
	for _, row := range rows {
		if row.PnlPercentage.IsZero() {
			continue
		}
		if row.PnlPercentage.IsPositive() == totalPnl.IsPositive() {
			agree++
		}
	}
	return decimal.NewFromInt(int64(agree)).Div(decimal.NewFromInt(int64(len(rows))))
}

func meanStddev(xs []float64) (mean, stddev float64) {
	if len(xs) == 0 {
		return 0, 0
	}
	var sum float64
	for _, x := range xs {
		sum += x
	}
	mean = sum / float64(len(xs))

	var variance float64
	for _, x := range xs {
		d := x - mean
		variance += d * d
	}
	variance /= float64(len(xs))
	return mean, math.Sqrt(variance)
}

func yearsSpanned(first, last time.Time) float64 {
	if first.IsZero() || last.IsZero() || !last.After(first) {
		return 0
	}
	return last.Sub(first).Hours() / 24 / 365.25
}
