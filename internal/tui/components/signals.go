package components

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/shopspring/decimal"

	"github.com/guyghost/backtestkit/internal/signal"
	"github.com/guyghost/backtestkit/internal/strategyclient"
)

// RenderSignals renders the per-symbol table of the most recent
// lifecycle Result observed for each symbol, adapted from the
// teacher's open-positions table.
func RenderSignals(results map[string]strategyclient.Result) string {
	var content strings.Builder

	content.WriteString("📈 Signals\n\n")

	if len(results) == 0 {
		return boxStyle.Render(content.String() + lipgloss.NewStyle().Foreground(mutedColor).Render("No signals yet"))
	}

	headerStyle := lipgloss.NewStyle().Bold(true).Foreground(mutedColor)
	content.WriteString(headerStyle.Render(
		fmt.Sprintf("%-12s %-10s %-10s %-12s %-12s %-10s\n",
			"Symbol", "Kind", "Side", "Entry", "State", "PnL")))
	content.WriteString(strings.Repeat("─", 72) + "\n")

	totalPnl := decimal.Zero
	for symbol, result := range results {
		row := result.Row
		side := "LONG"
		sideStyle := lipgloss.NewStyle().Foreground(successColor).Bold(true)
		if row.Position == signal.Short {
			side = "SHORT"
			sideStyle = lipgloss.NewStyle().Foreground(errorColor).Bold(true)
		}

		pnlStyle := lipgloss.NewStyle().Foreground(successColor)
		if row.PnlPercentage.IsNegative() {
			pnlStyle = lipgloss.NewStyle().Foreground(errorColor)
		}
		totalPnl = totalPnl.Add(row.PnlPercentage)

		content.WriteString(fmt.Sprintf("%-12s %-10s %-10s %-12s %-12s %s\n",
			symbol,
			string(result.Kind),
			sideStyle.Render(side),
			row.PriceOpen.StringFixed(2),
			string(row.State),
			pnlStyle.Render(row.PnlPercentage.StringFixed(2)+"%")))
	}

	content.WriteString(strings.Repeat("─", 72) + "\n")
	totalStyle := lipgloss.NewStyle().Foreground(successColor).Bold(true)
	if totalPnl.IsNegative() {
		totalStyle = lipgloss.NewStyle().Foreground(errorColor).Bold(true)
	}
	content.WriteString(fmt.Sprintf("%-58s %s\n", "Total PnL:", totalStyle.Render(totalPnl.StringFixed(2)+"%")))

	return boxStyle.Render(content.String())
}
