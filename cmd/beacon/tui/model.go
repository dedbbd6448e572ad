// Package tui is the terminal front-end. It consumes only the
// controller's query surface and event stream; all catalog and pane
// state lives behind that boundary.
package tui

import (
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"beacon/internal/catalog"
	"beacon/internal/control"
	"beacon/internal/search"
)

// eventMsg wraps a controller event for the bubbletea update loop.
type eventMsg struct{ ev control.Event }

// paneView is the render-side state of one pane.
type paneView struct {
	matches  []*search.Rankable
	cursor   int
	selected catalog.Object
	stack    []catalog.Item
}

// Model drives the three-pane launcher UI.
type Model struct {
	ctrl *control.Controller

	input  textinput.Model
	active control.Pane
	mode   control.Mode
	panes  [3]paneView

	status string
	width  int
	height int
	quit   bool
}

func New(ctrl *control.Controller) *Model {
	input := textinput.New()
	input.Placeholder = "type to search"
	input.Focus()
	return &Model{ctrl: ctrl, input: input, active: control.PaneSubject}
}

func (m *Model) Init() tea.Cmd {
	m.ctrl.Start()
	return tea.Batch(textinput.Blink, m.waitEvent())
}

// waitEvent blocks on the controller's event stream.
func (m *Model) waitEvent() tea.Cmd {
	return func() tea.Msg {
		ev, ok := <-m.ctrl.Events()
		if !ok {
			return tea.Quit()
		}
		return eventMsg{ev: ev}
	}
}

func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		return m, nil

	case eventMsg:
		m.applyEvent(msg.ev)
		return m, m.waitEvent()

	case tea.KeyMsg:
		return m.handleKey(msg)
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m *Model) applyEvent(ev control.Event) {
	switch ev := ev.(type) {
	case control.SearchDone:
		p := &m.panes[ev.Pane]
		p.matches = ev.Matches
		if p.cursor >= len(p.matches) {
			p.cursor = 0
		}

	case control.SelectionChanged:
		m.panes[ev.Pane].selected = ev.Selection

	case control.ModeChanged:
		m.mode = ev.Mode
		if m.mode == control.ModeSubjectCommand && m.active == control.PaneObject {
			m.focus(control.PaneSubject)
		}

	case control.StackChanged:
		m.panes[ev.Pane].stack = ev.Items

	case control.Launched:
		m.status = "launched " + ev.Command

	case control.ExecFailed:
		m.status = ev.Err.Error()
	}
}

func (m *Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c":
		m.quit = true
		return m, tea.Quit

	case "esc":
		if m.input.Value() != "" {
			m.input.SetValue("")
			m.search("")
			return m, nil
		}
		m.quit = true
		return m, tea.Quit

	case "tab":
		m.focus(m.nextPane())
		return m, nil

	case "enter":
		m.status = ""
		m.ctrl.Activate()
		return m, nil

	case "up":
		m.moveCursor(-1)
		return m, nil

	case "down":
		m.moveCursor(1)
		return m, nil

	case "right":
		m.ctrl.BrowseDown(m.active, false)
		m.input.SetValue("")
		return m, nil

	case "left":
		m.ctrl.BrowseUp(m.active)
		m.input.SetValue("")
		return m, nil

	case "ctrl+space":
		m.ctrl.StackPush(m.active)
		return m, nil

	case "ctrl+u":
		m.ctrl.StackPop(m.active)
		return m, nil

	case "ctrl+f":
		m.ctrl.ToggleFavorite()
		return m, nil

	case "ctrl+d":
		m.ctrl.MarkDefault()
		m.status = "marked as default"
		return m, nil
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	m.search(m.input.Value())
	return m, cmd
}

// search issues the debounced search for the focused pane. The object
// pane searches lazily so command browsing stays cheap.
func (m *Model) search(key string) {
	m.ctrl.Search(m.active, key, false, m.active == control.PaneObject && key == "", false)
}

// moveCursor moves the focused pane's cursor and tells the controller
// about the new tentative selection.
func (m *Model) moveCursor(delta int) {
	p := &m.panes[m.active]
	if len(p.matches) == 0 {
		return
	}
	p.cursor += delta
	if p.cursor < 0 {
		p.cursor = 0
	}
	if p.cursor >= len(p.matches) {
		p.cursor = len(p.matches) - 1
	}
	m.ctrl.Select(m.active, p.matches[p.cursor].Object)
}

// focus switches the active pane and restores its query text.
func (m *Model) focus(pane control.Pane) {
	m.active = pane
	m.input.SetValue("")
}

func (m *Model) nextPane() control.Pane {
	switch m.active {
	case control.PaneSubject:
		return control.PaneCommand
	case control.PaneCommand:
		if m.mode == control.ModeSubjectCommandObject {
			return control.PaneObject
		}
		return control.PaneSubject
	default:
		return control.PaneSubject
	}
}
