package tui

import (
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/guyghost/backtestkit/internal/strategyclient"
	"github.com/guyghost/backtestkit/internal/walker"
)

// Update handles messages and updates the model.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKeyPress(msg)

	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		return m, nil

	case signalMsg:
		result := strategyclient.Result(msg)
		m.signals[result.Row.Symbol] = result
		m.addMessage(result.Row.Symbol + ": " + string(result.Kind))
		return m, m.waitForEvent()

	case performanceMsg:
		return m, m.waitForEvent()

	case walkerProgressMsg:
		m.walkerProgress = walker.Progress(msg)
		m.haveWalker = true
		return m, m.waitForEvent()

	case errorMsg:
		m.lastError = msg
		m.errorTime = time.Now()
		m.addMessage("error: " + msg.Error())
		return m, m.waitForEvent()

	case logMsg:
		m.addMessage(string(msg))
		return m, m.waitForEvent()
	}

	return m, nil
}

// handleKeyPress handles keyboard input.
func (m *Model) handleKeyPress(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c", "q":
		return m, tea.Quit
	case "1":
		m.activeView = ViewSignals
	case "2":
		m.activeView = ViewWalker
	case "3":
		m.activeView = ViewLog
	case "c":
		m.lastError = nil
	}
	return m, nil
}
