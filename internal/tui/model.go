// Package tui adapts the teacher's bubbletea/lipgloss dashboard
// (internal/tui/{model,update,view}.go) into a read-only monitor over
// the event bus: it never drives a strategy or exchange directly, it
// only renders whatever signal, performance, walker and error events
// the engine already publishes.
package tui

import (
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/guyghost/backtestkit/internal/eventbus"
	"github.com/guyghost/backtestkit/internal/liveloop"
	"github.com/guyghost/backtestkit/internal/strategyclient"
	"github.com/guyghost/backtestkit/internal/walker"
)

// View selects which panel is rendered (teacher's model.go View enum,
// trimmed to the panels this monitor has data for).
type View int

const (
	ViewSignals View = iota
	ViewWalker
	ViewLog
)

// Model is the bubbletea model driving the monitor. It owns no
// business logic: every field is populated from events the bus
// delivers.
type Model struct {
	bus         *eventbus.Bus
	events      chan tea.Msg
	unsubscribe eventbus.Unsubscribe

	width, height int
	activeView    View

	// signals is keyed by symbol, holding the most recent lifecycle
	// Result observed for it (spec.md §4.5's Kind discriminator).
	signals map[string]strategyclient.Result

	walkerProgress walker.Progress
	haveWalker     bool

	messages []string

	lastError error
	errorTime time.Time
}

// NewModel constructs a Model subscribed to bus. Call Close once the
// tea.Program has finished running to release the subscriptions.
func NewModel(bus *eventbus.Bus) *Model {
	m := &Model{
		bus:     bus,
		events:  make(chan tea.Msg, 256),
		signals: make(map[string]strategyclient.Result),
	}
	m.unsubscribe = subscribeAll(bus, m.events)
	return m
}

// Close unsubscribes the Model from its event bus.
func (m *Model) Close() {
	if m.unsubscribe != nil {
		m.unsubscribe()
	}
}

// subscribeAll wires every subject this monitor displays into events,
// dropping an event rather than blocking when the buffer is full so
// an unread TUI never stalls the bus's delivery goroutines.
func subscribeAll(bus *eventbus.Bus, events chan tea.Msg) eventbus.Unsubscribe {
	send := func(msg tea.Msg) {
		select {
		case events <- msg:
		default:
		}
	}
	unsubs := []eventbus.Unsubscribe{
		bus.Subscribe(eventbus.SubjectSignal, func(ev eventbus.Event) {
			if result, ok := ev.Payload.(strategyclient.Result); ok {
				send(signalMsg(result))
			}
		}),
		bus.Subscribe(eventbus.SubjectPerformance, func(ev eventbus.Event) {
			if sample, ok := ev.Payload.(liveloop.PerformanceSample); ok {
				send(performanceMsg(sample))
			}
		}),
		bus.Subscribe(eventbus.SubjectProgressWalker, func(ev eventbus.Event) {
			if progress, ok := ev.Payload.(walker.Progress); ok {
				send(walkerProgressMsg(progress))
			}
		}),
		bus.Subscribe(eventbus.SubjectError, func(ev eventbus.Event) {
			if err, ok := ev.Payload.(error); ok {
				send(errorMsg(err))
			}
		}),
		bus.Subscribe(eventbus.SubjectDoneLive, func(ev eventbus.Event) {
			send(logMsg(fmt.Sprintf("live loop done: %+v", ev.Payload)))
		}),
		bus.Subscribe(eventbus.SubjectDoneBacktest, func(ev eventbus.Event) {
			send(logMsg(fmt.Sprintf("backtest done: %+v", ev.Payload)))
		}),
		bus.Subscribe(eventbus.SubjectDoneWalker, func(ev eventbus.Event) {
			send(logMsg(fmt.Sprintf("walker done: %+v", ev.Payload)))
		}),
	}
	return func() {
		for _, unsub := range unsubs {
			unsub()
		}
	}
}

// Message types delivered through Model.events.
type signalMsg strategyclient.Result
type performanceMsg liveloop.PerformanceSample
type walkerProgressMsg walker.Progress
type errorMsg error
type logMsg string

// waitForEvent blocks on the next bus-derived message, turning it
// into a tea.Cmd the runtime schedules alongside key/resize events.
func (m *Model) waitForEvent() tea.Cmd {
	return func() tea.Msg {
		return <-m.events
	}
}

// Init starts the monitor's event pump.
func (m *Model) Init() tea.Cmd {
	return m.waitForEvent()
}

func (m *Model) addMessage(message string) {
	timestamp := time.Now().Format("15:04:05")
	m.messages = append(m.messages, timestamp+" "+message)
	if len(m.messages) > 200 {
		m.messages = m.messages[1:]
	}
}

// Run blocks running the monitor as a full-screen bubbletea program
// against bus, mirroring the teacher's cmd/bot/main.go
// tea.NewProgram(...).Run() wiring.
func Run(bus *eventbus.Bus) error {
	m := NewModel(bus)
	defer m.Close()

	program := tea.NewProgram(m, tea.WithAltScreen())
	_, err := program.Run()
	return err
}
