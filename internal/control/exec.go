package control

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"beacon/internal/catalog"
)

var (
	ErrNoSubject = errors.New("no subject selected")
	ErrNoCommand = errors.New("no command selected")
	ErrNoObject  = errors.New("command requires a secondary object")
)

// ExecError wraps a command execution failure with the triple that
// produced it. Execution failures never disturb catalog or pane state.
type ExecError struct {
	Command string
	Subject string
	Err     error
}

func (e *ExecError) Error() string {
	return fmt.Sprintf("command %q on %q: %v", e.Command, e.Subject, e.Err)
}

func (e *ExecError) Unwrap() error { return e.Err }

// Activate executes the composed (subject, command, object) triple.
// Usage hits are recorded for all three before the command runs.
// Synchronous commands run on the loop; async ones on their own
// goroutine, with the result posted back.
func (c *Controller) Activate() {
	c.loop.Post(c.doActivate)
}

func (c *Controller) doActivate() {
	subject := c.panes[PaneSubject].composed()
	cmd := c.currentCommand()
	var object catalog.Item
	if c.mode == ModeSubjectCommandObject {
		object = c.panes[PaneObject].composed()
	}

	token := uuid.NewString()
	switch {
	case subject == nil:
		c.emit(ExecFailed{Token: token, Err: ErrNoSubject})
		return
	case cmd == nil:
		c.emit(ExecFailed{Token: token, Err: ErrNoCommand})
		return
	case c.mode == ModeSubjectCommandObject && object == nil:
		c.emit(ExecFailed{Token: token, Err: ErrNoObject})
		return
	}

	c.register.RecordUse(subject.ID(), c.panes[PaneSubject].key)
	c.register.RecordUse(cmd.ID(), c.panes[PaneCommand].key)
	if object != nil {
		c.register.RecordUse(object.ID(), c.panes[PaneObject].key)
	}

	if cmd.Async() {
		go func() {
			res, err := runCommand(cmd, subject, object)
			c.loop.Post(func() { c.finishExec(token, cmd, subject, res, err) })
		}()
		return
	}
	res, err := runCommand(cmd, subject, object)
	c.finishExec(token, cmd, subject, res, err)
}

// runCommand contains a panicking command the same way the manager
// contains a panicking provider.
func runCommand(cmd catalog.Command, subject, object catalog.Item) (res catalog.Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("command panic: %v", r)
		}
	}()
	return cmd.Run(context.Background(), subject, object)
}

// finishExec routes an execution result: a new provider is pushed onto
// the subject pane, a new item becomes the subject selection with all
// stacks cleared, anything else is just a launch notification.
func (c *Controller) finishExec(token string, cmd catalog.Command, subject catalog.Item, res catalog.Result, err error) {
	if err != nil {
		execErr := &ExecError{Command: cmd.Name(), Subject: subject.Name(), Err: err}
		c.log.Warnw("command failed", "command", cmd.ID(), "error", err)
		c.emit(ExecFailed{Token: token, Err: execErr})
		return
	}

	switch {
	case res.Provider != nil:
		p := c.panes[PaneSubject]
		p.pushProvider(c.manager.Canonical(res.Provider))
		c.execSearch(PaneSubject, p.nextSearch(), "", false)

	case res.Item != nil:
		c.clearAllStacks()
		c.applySelection(PaneSubject, res.Item)

	default:
		c.emit(Launched{Token: token, Command: cmd.Name()})
	}
}

func (c *Controller) clearAllStacks() {
	for _, p := range c.panes {
		if p.stackClear() {
			c.emit(StackChanged{Pane: p.id})
		}
	}
}
