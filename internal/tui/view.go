package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/telcoflow/console/internal/events"
	"github.com/telcoflow/console/internal/health"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("39"))

	spinnerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("205"))

	gateStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			Padding(1, 3)

	warnStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("214"))

	errStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("196"))

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241"))

	insertStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	updateStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	deleteStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	readStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("75"))
)

// View implements tea.Model. Any phase other than healthy replaces the whole
// screen; the event feed never shows through a gate.
func (m Model) View() string {
	if m.quitting {
		return ""
	}

	switch m.state.Phase {
	case health.PhaseChecking:
		return m.viewChecking()
	case health.PhaseRateLimited:
		return m.viewRateLimited()
	case health.PhaseConnectionError:
		return m.viewConnectionError()
	default:
		return m.viewFeed()
	}
}

func (m Model) viewChecking() string {
	return m.centered(fmt.Sprintf("%s Checking platform availability...", m.spinner.View()))
}

func (m Model) viewRateLimited() string {
	var b strings.Builder
	b.WriteString(warnStyle.Render("Too many requests"))
	b.WriteString("\n\n")
	b.WriteString("The platform is throttling this console.\n")
	if m.canRetry {
		b.WriteString("\nPress " + titleStyle.Render("r") + " to retry now.")
	} else {
		b.WriteString(fmt.Sprintf("\nRetry available in %s.", warnStyle.Render(formatRemaining(m.remaining))))
	}
	b.WriteString(dimStyle.Render("\n\nq quit"))
	return m.centered(gateStyle.Render(b.String()))
}

func (m Model) viewConnectionError() string {
	var b strings.Builder
	b.WriteString(errStyle.Render("Platform unreachable"))
	b.WriteString("\n\n")
	b.WriteString("No response from the management gateway.\n")
	b.WriteString("\nPress " + titleStyle.Render("r") + " to retry.")
	b.WriteString(dimStyle.Render("\n\nq quit"))
	return m.centered(gateStyle.Render(b.String()))
}

func (m Model) viewFeed() string {
	var b strings.Builder

	status := dimStyle.Render("channel down")
	if m.connected {
		status = insertStyle.Render("live")
	}
	b.WriteString(fmt.Sprintf("%s  %s  %s\n\n",
		titleStyle.Render("tfconsole watch"),
		dimStyle.Render(m.topic),
		status,
	))

	items := m.buffer.Items()
	if len(items) == 0 {
		b.WriteString(dimStyle.Render("waiting for events...") + "\n")
	}
	for _, ev := range items {
		b.WriteString(m.renderEvent(ev))
		b.WriteString("\n")
	}

	b.WriteString("\n" + m.renderCounts())
	b.WriteString(dimStyle.Render("\nq quit  c clear"))
	return b.String()
}

// renderEvent renders one feed line: time, operation, table, id.
func (m Model) renderEvent(ev events.ChangeEvent) string {
	op := string(ev.Operation)
	var styled string
	switch ev.Operation {
	case events.OpInsert:
		styled = insertStyle.Render(op)
	case events.OpUpdate:
		styled = updateStyle.Render(op)
	case events.OpDelete:
		styled = deleteStyle.Render(op)
	case events.OpRead:
		styled = readStyle.Render(op)
	default:
		styled = dimStyle.Render(op)
	}

	id := ev.ID
	if len(id) > 8 {
		id = id[:8]
	}
	return fmt.Sprintf("%s  %-18s %-24s %s",
		dimStyle.Render(ev.Time().Format("15:04:05")),
		styled,
		ev.Table,
		dimStyle.Render(id),
	)
}

// renderCounts renders the per-operation tally of the buffer contents.
func (m Model) renderCounts() string {
	counts := m.buffer.Counts()
	return fmt.Sprintf("%s %s  %s %s  %s %s  %s %s\n",
		insertStyle.Render("ins"), fmt.Sprint(counts[events.OpInsert]),
		updateStyle.Render("upd"), fmt.Sprint(counts[events.OpUpdate]),
		deleteStyle.Render("del"), fmt.Sprint(counts[events.OpDelete]),
		readStyle.Render("read"), fmt.Sprint(counts[events.OpRead]),
	)
}

// centered places content in the middle of the terminal when dimensions are
// known.
func (m Model) centered(content string) string {
	if m.width == 0 || m.height == 0 {
		return content
	}
	return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center, content)
}
