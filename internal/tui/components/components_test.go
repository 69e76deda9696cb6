package components

import (
	"strings"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/guyghost/backtestkit/internal/report"
	"github.com/guyghost/backtestkit/internal/signal"
	"github.com/guyghost/backtestkit/internal/strategyclient"
)

func TestRenderSummaryCard(t *testing.T) {
	tests := []struct {
		name        string
		summary     report.Summary
		expectWords []string
	}{
		{
			name: "winning strategy",
			summary: report.Summary{
				StrategyName:   "trend-follow",
				TotalTrades:    100,
				WinningTrades:  60,
				TotalPnlPct:    decimal.NewFromFloat(12.5),
				WinRatePct:     decimal.NewFromFloat(60),
				SharpeRatio:    decimal.NewFromFloat(1.8),
				MaxDrawdownPct: decimal.NewFromFloat(4.2),
			},
			expectWords: []string{"trend-follow", "12.50%", "100 (60 won)", "60.0%", "1.80", "4.20%"},
		},
		{
			name: "losing strategy",
			summary: report.Summary{
				StrategyName: "mean-revert",
				TotalPnlPct:  decimal.NewFromFloat(-3.1),
			},
			expectWords: []string{"mean-revert", "-3.10%"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := RenderSummaryCard(tt.summary)
			for _, word := range tt.expectWords {
				if !strings.Contains(result, word) {
					t.Errorf("summary card should contain %q, got:\n%s", word, result)
				}
			}
		})
	}
}

func TestRenderActivityCard(t *testing.T) {
	tests := []struct {
		name        string
		messages    []string
		expectWords []string
	}{
		{
			name:        "with messages",
			messages:    []string{"signal opened", "signal closed"},
			expectWords: []string{"signal opened", "signal closed"},
		},
		{
			name:        "no messages",
			messages:    []string{},
			expectWords: []string{"No recent activity"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := RenderActivityCard(tt.messages)
			if !strings.Contains(result, "Recent Activity") {
				t.Error("activity card should contain header")
			}
			for _, word := range tt.expectWords {
				if !strings.Contains(result, word) {
					t.Errorf("activity card should contain %q", word)
				}
			}
		})
	}
}

func TestRenderWalkerCard(t *testing.T) {
	result := RenderWalkerCard("w1", "strategy-b", "strategy-a", 1, 2, decimal.NewFromFloat(8.25))
	for _, word := range []string{"w1", "strategy-b", "strategy-a", "1/2", "8.2500"} {
		if !strings.Contains(result, word) {
			t.Errorf("walker card should contain %q, got:\n%s", word, result)
		}
	}

	empty := RenderWalkerCard("w1", "", "", 0, 0, decimal.Zero)
	if !strings.Contains(empty, "Waiting for progress") {
		t.Error("walker card with no progress should say it is waiting")
	}
}

func TestRenderSignals(t *testing.T) {
	dec := func(s string) decimal.Decimal {
		d, err := decimal.NewFromString(s)
		if err != nil {
			t.Fatal(err)
		}
		return d
	}

	t.Run("with signals", func(t *testing.T) {
		results := map[string]strategyclient.Result{
			"BTC-USD": {
				Kind: strategyclient.KindClosed,
				Row: signal.Row{
					DTO:           signal.DTO{Position: signal.Long, PriceOpen: dec("50000")},
					State:         signal.StateClosed,
					PnlPercentage: dec("2.5"),
				},
			},
		}
		result := RenderSignals(results)
		for _, word := range []string{"BTC-USD", "closed", "LONG", "50000.00", "2.50%"} {
			if !strings.Contains(result, word) {
				t.Errorf("signals table should contain %q, got:\n%s", word, result)
			}
		}
	})

	t.Run("no signals", func(t *testing.T) {
		result := RenderSignals(map[string]strategyclient.Result{})
		if !strings.Contains(result, "No signals yet") {
			t.Error("empty signals table should say so")
		}
	})
}
