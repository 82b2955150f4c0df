// Package tui implements the live watch view. The model renders the event
// feed only while the platform is healthy; any other health phase replaces
// the whole screen with a blocking gate page.
package tui

import (
	"fmt"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/telcoflow/console/internal/events"
	"github.com/telcoflow/console/internal/health"
)

// Messages pushed into the program by the console wiring.
type (
	// HealthMsg carries a health state transition.
	HealthMsg struct{ State health.State }
	// TickMsg carries the countdown display value.
	TickMsg struct{ Remaining int }
	// ReadyMsg signals the countdown reached zero and retry is allowed.
	ReadyMsg struct{}
	// EventMsg signals a new event landed in the buffer.
	EventMsg struct{ Event events.ChangeEvent }
	// ConnectMsg signals the streaming channel came up.
	ConnectMsg struct{}
	// DropMsg signals the streaming channel was lost.
	DropMsg struct{ Err error }
)

// Hooks are the actions the view triggers back into the session.
type Hooks struct {
	// Retry re-probes the platform. Invoked on 'r' when allowed.
	Retry func()
}

// Model is the bubbletea model for the watch view. Single-threaded within
// the bubbletea event loop; the buffer it reads is the only shared state.
type Model struct {
	topic  string
	buffer *events.Buffer
	hooks  Hooks

	state     health.State
	remaining int
	canRetry  bool
	connected bool
	dropErr   error

	spinner  spinner.Model
	width    int
	height   int
	quitting bool
}

// NewModel creates the watch model in the checking phase.
func NewModel(topic string, buffer *events.Buffer, hooks Hooks) Model {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = spinnerStyle
	return Model{
		topic:   topic,
		buffer:  buffer,
		hooks:   hooks,
		state:   health.State{Phase: health.PhaseChecking},
		spinner: sp,
	}
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	return m.spinner.Tick
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case spinner.TickMsg:
		if m.state.Phase != health.PhaseChecking {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case HealthMsg:
		prev := m.state.Phase
		m.state = msg.State
		switch msg.State.Phase {
		case health.PhaseRateLimited:
			// A fresh hint restarts the countdown display.
			m.remaining = int(msg.State.RetryAfter.Seconds())
			m.canRetry = false
		case health.PhaseChecking:
			if prev != health.PhaseChecking {
				return m, m.spinner.Tick
			}
		}
		return m, nil

	case TickMsg:
		m.remaining = msg.Remaining
		return m, nil

	case ReadyMsg:
		m.canRetry = true
		return m, nil

	case EventMsg:
		// The event is already in the buffer; this is a repaint trigger.
		return m, nil

	case ConnectMsg:
		m.connected = true
		m.dropErr = nil
		return m, nil

	case DropMsg:
		m.connected = false
		m.dropErr = msg.Err
		return m, nil
	}

	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		m.quitting = true
		return m, tea.Quit

	case "r":
		if !m.retryAllowed() {
			return m, nil
		}
		retry := m.hooks.Retry
		return m, func() tea.Msg {
			if retry != nil {
				retry()
			}
			return nil
		}

	case "c":
		if m.state.Phase == health.PhaseHealthy {
			m.buffer.Clear()
		}
		return m, nil
	}
	return m, nil
}

// retryAllowed reports whether the manual retry action is currently enabled:
// always during connectivity loss, only after the countdown while rate
// limited.
func (m Model) retryAllowed() bool {
	switch m.state.Phase {
	case health.PhaseConnectionError:
		return true
	case health.PhaseRateLimited:
		return m.canRetry
	default:
		return false
	}
}

// formatRemaining renders the countdown display value.
func formatRemaining(seconds int) string {
	if seconds < 0 {
		seconds = 0
	}
	return fmt.Sprintf("%ds", seconds)
}
