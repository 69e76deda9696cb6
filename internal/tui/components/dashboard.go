// Package components renders individual dashboard cards shared by the
// monitor's views, adapted from the teacher's
// internal/tui/components/dashboard.go card layout.
package components

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/shopspring/decimal"

	"github.com/guyghost/backtestkit/internal/report"
)

var (
	successColor = lipgloss.Color("#00FF87")
	errorColor   = lipgloss.Color("#FF5555")
	warningColor = lipgloss.Color("#FFB86C")
	mutedColor   = lipgloss.Color("#6272A4")

	boxStyle = lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(mutedColor).
			Padding(1, 2)
)

// RenderSummaryCard renders a strategy's report.Summary as a card.
func RenderSummaryCard(s report.Summary) string {
	var content strings.Builder

	content.WriteString(fmt.Sprintf("📊 %s\n\n", s.StrategyName))

	pnlStyle := lipgloss.NewStyle().Foreground(successColor)
	if s.TotalPnlPct.IsNegative() {
		pnlStyle = lipgloss.NewStyle().Foreground(errorColor)
	}
	content.WriteString(fmt.Sprintf("Total P&L:    %s\n", pnlStyle.Render(s.TotalPnlPct.StringFixed(2)+"%")))

	winRateStyle := lipgloss.NewStyle().Foreground(successColor)
	if s.WinRatePct.LessThan(decimal.NewFromInt(50)) {
		winRateStyle = lipgloss.NewStyle().Foreground(warningColor)
	}
	content.WriteString(fmt.Sprintf("Trades:       %d (%d won)\n", s.TotalTrades, s.WinningTrades))
	content.WriteString(fmt.Sprintf("Win Rate:     %s\n", winRateStyle.Render(s.WinRatePct.StringFixed(1)+"%")))
	content.WriteString(fmt.Sprintf("Sharpe:       %s\n", s.SharpeRatio.StringFixed(2)))

	drawdownStyle := lipgloss.NewStyle().Foreground(warningColor)
	if s.MaxDrawdownPct.GreaterThan(decimal.NewFromInt(10)) {
		drawdownStyle = lipgloss.NewStyle().Foreground(errorColor)
	}
	content.WriteString(fmt.Sprintf("Max Drawdown: %s\n", drawdownStyle.Render(s.MaxDrawdownPct.StringFixed(2)+"%")))

	return boxStyle.Render(content.String())
}

// RenderActivityCard renders the recent event-bus message log.
func RenderActivityCard(messages []string) string {
	var content strings.Builder

	content.WriteString("📝 Recent Activity\n\n")

	mutedStyle := lipgloss.NewStyle().Foreground(mutedColor)
	if len(messages) == 0 {
		content.WriteString(mutedStyle.Render("No recent activity"))
	} else {
		for _, msg := range messages {
			content.WriteString(mutedStyle.Render("• "+msg) + "\n")
		}
	}

	return boxStyle.Render(content.String())
}

// RenderWalkerCard renders a walker's running progress/best strategy.
func RenderWalkerCard(walkerName, currentStrategy, bestStrategy string, tested, total int, bestMetric decimal.Decimal) string {
	var content strings.Builder

	content.WriteString(fmt.Sprintf("🚶 Walker: %s\n\n", walkerName))

	if total == 0 {
		content.WriteString(lipgloss.NewStyle().Foreground(mutedColor).Render("Waiting for progress"))
		return boxStyle.Render(content.String())
	}

	content.WriteString(fmt.Sprintf("Progress:     %d/%d\n", tested, total))
	content.WriteString(fmt.Sprintf("Testing:      %s\n", currentStrategy))

	bestStyle := lipgloss.NewStyle().Foreground(successColor).Bold(true)
	content.WriteString(fmt.Sprintf("Best so far:  %s\n", bestStyle.Render(bestStrategy)))
	content.WriteString(fmt.Sprintf("Best metric:  %s\n", bestMetric.StringFixed(4)))

	return boxStyle.Render(content.String())
}
