// Package control implements the selection state machine: three panes
// (subject, command, secondary object), debounced cancellable searches
// through the ranking engine, and command execution.
package control

import (
	"beacon/internal/catalog"
	"beacon/internal/search"
)

// Pane identifies one of the three selection panes.
type Pane int

const (
	PaneSubject Pane = iota
	PaneCommand
	PaneObject
)

func (p Pane) String() string {
	switch p {
	case PaneSubject:
		return "subject"
	case PaneCommand:
		return "command"
	case PaneObject:
		return "object"
	}
	return "unknown"
}

// Mode says whether the current command needs a secondary object.
type Mode int

const (
	ModeSubjectCommand Mode = iota
	ModeSubjectCommandObject
)

// Event is what the controller emits to the front-end. Drain Events()
// from exactly one goroutine.
type Event interface{ event() }

// SearchDone carries the results of a completed pane search. Matches
// holds up to the requested limit; First is nil when nothing matched.
type SearchDone struct {
	Pane    Pane
	Key     string
	First   *search.Rankable
	Matches []*search.Rankable
}

// SelectionChanged reports the new selection of a pane. Selection is
// nil when the pane was reset.
type SelectionChanged struct {
	Pane      Pane
	Selection catalog.Object
}

// ModeChanged reports a switch between two- and three-pane operation.
type ModeChanged struct {
	Mode Mode
}

// StackChanged reports a change to a pane's multi-select stack.
type StackChanged struct {
	Pane  Pane
	Items []catalog.Item
}

// Launched reports that a purely side-effecting command ran. Token
// identifies the execution.
type Launched struct {
	Token   string
	Command string
}

// ExecFailed reports a failed command execution.
type ExecFailed struct {
	Token string
	Err   error
}

func (SearchDone) event()       {}
func (SelectionChanged) event() {}
func (ModeChanged) event()      {}
func (StackChanged) event()     {}
func (Launched) event()         {}
func (ExecFailed) event()       {}
