package tui

import (
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/shopspring/decimal"

	"github.com/guyghost/backtestkit/internal/tui/components"
)

var (
	successColor = lipgloss.Color("#00FF87")
	errorColor   = lipgloss.Color("#FF5555")
	mutedColor   = lipgloss.Color("#6272A4")

	titleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFFDF5")).
			Bold(true)

	errorStyle = lipgloss.NewStyle().Foreground(errorColor).Bold(true)
	mutedStyle = lipgloss.NewStyle().Foreground(mutedColor)

	statusBarStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFFDF5")).
			Background(lipgloss.Color("#6272A4")).
			Padding(0, 1)

	helpStyle = lipgloss.NewStyle().
			Foreground(mutedColor).
			Italic(true)
)

// View renders the monitor.
func (m *Model) View() string {
	if m.width == 0 {
		return "Loading..."
	}

	var content string
	switch m.activeView {
	case ViewSignals:
		content = m.renderSignalsView()
	case ViewWalker:
		content = m.renderWalkerView()
	case ViewLog:
		content = m.renderLogView()
	}

	return lipgloss.JoinVertical(
		lipgloss.Left,
		m.renderHeader(),
		"",
		content,
		"",
		m.renderHelp(),
		m.renderStatusBar(),
	)
}

func (m *Model) renderHeader() string {
	title := titleStyle.Render("⚡ BACKTESTKIT MONITOR")
	nav := mutedStyle.Render(strings.Join([]string{"1:Signals", "2:Walker", "3:Log"}, "  "))
	return lipgloss.JoinHorizontal(lipgloss.Top, title, "  ", nav)
}

func (m *Model) renderStatusBar() string {
	timestamp := time.Now().Format("15:04:05")

	var errorText string
	if m.lastError != nil && time.Since(m.errorTime) < 5*time.Second {
		errorText = " | " + errorStyle.Render("ERROR: "+m.lastError.Error())
	}

	return statusBarStyle.Width(m.width).Render(timestamp + errorText)
}

func (m *Model) renderHelp() string {
	helps := []string{
		"[1-3] Switch view",
		"[c] Clear error",
		"[q] Quit",
	}
	return helpStyle.Render(strings.Join(helps, " • "))
}

func (m *Model) renderSignalsView() string {
	return components.RenderSignals(m.signals)
}

func (m *Model) renderWalkerView() string {
	if !m.haveWalker {
		return components.RenderWalkerCard("", "", "", 0, 0, decimal.Zero)
	}
	p := m.walkerProgress
	return components.RenderWalkerCard(p.WalkerName, p.CurrentStrategy, p.BestStrategy, p.StrategiesTested, p.TotalStrategies, p.BestMetric)
}

func (m *Model) renderLogView() string {
	return components.RenderActivityCard(lastN(m.messages, 30))
}

func lastN(items []string, n int) []string {
	if len(items) <= n {
		return items
	}
	return items[len(items)-n:]
}
