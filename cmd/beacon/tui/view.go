package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"beacon/internal/control"
)

const maxRows = 12

var (
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	focusStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("10"))
	dimStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	selStyle   = lipgloss.NewStyle().Reverse(true)
	errStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	paneStyle  = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			Padding(0, 1)
)

func (m *Model) View() string {
	if m.quit {
		return ""
	}

	var b strings.Builder
	b.WriteString(titleStyle.Render("beacon"))
	b.WriteString("  ")
	b.WriteString(m.input.View())
	b.WriteString("\n\n")

	columns := []string{
		m.renderPane(control.PaneSubject, "Subject"),
		m.renderPane(control.PaneCommand, "Command"),
	}
	if m.mode == control.ModeSubjectCommandObject {
		columns = append(columns, m.renderPane(control.PaneObject, "Object"))
	}
	b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, columns...))
	b.WriteString("\n")

	if m.status != "" {
		style := dimStyle
		if strings.Contains(m.status, "failed") || strings.Contains(m.status, "error") {
			style = errStyle
		}
		b.WriteString(style.Render(m.status))
		b.WriteString("\n")
	}
	b.WriteString(dimStyle.Render("tab panes · enter run · →/← browse · ^space stage · ^d default · ^f favorite"))
	return b.String()
}

func (m *Model) renderPane(pane control.Pane, title string) string {
	p := &m.panes[pane]

	head := title
	if len(p.stack) > 0 {
		head = fmt.Sprintf("%s (+%d)", title, len(p.stack))
	}
	if pane == m.active {
		head = focusStyle.Render(head)
	} else {
		head = dimStyle.Render(head)
	}

	var rows []string
	rows = append(rows, head)
	for i, match := range p.matches {
		if i >= maxRows {
			rows = append(rows, dimStyle.Render(fmt.Sprintf("… %d more", len(p.matches)-maxRows)))
			break
		}
		line := match.Object.Name()
		if i == p.cursor && pane == m.active {
			line = selStyle.Render(line)
		}
		rows = append(rows, line)
	}
	if len(p.matches) == 0 {
		rows = append(rows, dimStyle.Render("no matches"))
	}

	width := 30
	if m.width > 0 {
		n := 2
		if m.mode == control.ModeSubjectCommandObject {
			n = 3
		}
		if w := m.width/n - 4; w > 10 {
			width = w
		}
	}
	return paneStyle.Width(width).Render(strings.Join(rows, "\n"))
}
