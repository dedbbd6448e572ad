package control

import (
	"context"
	"time"

	"beacon/internal/catalog"
	"beacon/internal/learn"
	"beacon/internal/logging"
	"beacon/internal/rank"
	"beacon/internal/search"
)

// saveInterval is how often learned data is flushed to disk while the
// process runs. A final save happens at shutdown regardless.
const saveInterval = 3660 * time.Second

// defaultMatchLimit bounds how many matches a SearchDone event carries.
const defaultMatchLimit = 50

// Config tunes a Controller.
type Config struct {
	// MatchLimit caps matches per search event. 0 means the default.
	MatchLimit int
	// SaveEvery overrides the periodic data save interval. 0 means the
	// default; negative disables the timer.
	SaveEvery time.Duration
}

// Controller is the pane state machine. All mutation happens on its
// loop; the public methods are safe from any goroutine and hand their
// work to the loop, with results reported through Events.
type Controller struct {
	loop     *Loop
	manager  *catalog.Manager
	register *learn.Register

	panes [3]*paneState
	mode  Mode

	events chan Event
	limit  int

	saveEvery time.Duration
	saveTimer *time.Timer

	log *logging.Logger
}

func New(loop *Loop, manager *catalog.Manager, register *learn.Register, metric rank.Metric, cfg Config) *Controller {
	if cfg.MatchLimit <= 0 {
		cfg.MatchLimit = defaultMatchLimit
	}
	if cfg.SaveEvery == 0 {
		cfg.SaveEvery = saveInterval
	}
	c := &Controller{
		loop:      loop,
		manager:   manager,
		register:  register,
		events:    make(chan Event, 128),
		limit:     cfg.MatchLimit,
		saveEvery: cfg.SaveEvery,
		mode:      ModeSubjectCommand,
		log:       logging.For("control"),
	}
	for i := range c.panes {
		c.panes[i] = newPaneState(Pane(i), metric, register)
	}
	quarantine := func(p catalog.Provider, err error) { manager.Quarantine(p, err) }
	c.panes[PaneSubject].engine.OnProviderError = quarantine
	c.panes[PaneObject].engine.OnProviderError = quarantine
	return c
}

// Events is the stream the front-end drains. Events are dropped, with
// a log line, if nothing drains them.
func (c *Controller) Events() <-chan Event { return c.events }

func (c *Controller) emit(ev Event) {
	select {
	case c.events <- ev:
	default:
		c.log.Warnw("event dropped, consumer lagging", "event", ev)
	}
}

// Start points the subject pane at the catalog root, lists it, and
// arms the periodic data save. Call once, after the loop is running.
func (c *Controller) Start() {
	c.loop.Post(func() {
		c.panes[PaneSubject].setProvider(c.manager.Root())
		c.execSearch(PaneSubject, c.panes[PaneSubject].nextSearch(), "", false)
		if c.saveEvery > 0 {
			c.saveTimer = time.AfterFunc(c.saveEvery, c.periodicSave)
		}
	})
}

func (c *Controller) periodicSave() {
	c.loop.Post(func() {
		if err := c.register.Save(); err != nil {
			c.log.Warnw("periodic register save failed", "error", err)
		}
		if err := c.manager.SaveData(); err != nil {
			c.log.Warnw("periodic data save failed", "error", err)
		}
		if c.saveTimer != nil {
			c.saveTimer.Reset(c.saveEvery)
		}
	})
}

// Shutdown runs the persistence sequence and stops the loop. Blocks
// until the loop has drained.
func (c *Controller) Shutdown() {
	done := make(chan struct{})
	c.loop.Post(func() {
		defer close(done)
		if c.saveTimer != nil {
			c.saveTimer.Stop()
		}
		for _, p := range c.panes {
			p.debounce.cancel()
		}
		c.manager.Finalize()
		if err := c.manager.SaveCache(); err != nil {
			c.log.Warnw("cache save failed", "error", err)
		}
		if err := c.manager.SaveData(); err != nil {
			c.log.Warnw("data save failed", "error", err)
		}
		if err := c.register.Save(); err != nil {
			c.log.Warnw("register save failed", "error", err)
		}
	})
	<-done
	c.loop.Stop()
}

// Search issues a debounced, cancellable search for pane. interactive
// skips the debounce; lazy stretches it, used for the object pane. A
// newer call for the same pane supersedes this one.
func (c *Controller) Search(pane Pane, key string, interactive, lazy, textMode bool) {
	c.loop.Post(func() {
		p := c.panes[pane]
		p.key = key
		p.textMode = textMode
		id := p.nextSearch()
		p.debounce.schedule(searchDelay(key, interactive, lazy), func() {
			c.loop.Post(func() {
				if p.current(id) {
					c.execSearch(pane, id, key, textMode)
				}
			})
		})
	})
}

// execSearch runs on the loop. id has already been checked current.
func (c *Controller) execSearch(pane Pane, id uint64, key string, textMode bool) {
	p := c.panes[pane]

	if pane == PaneCommand {
		c.execCommandSearch(p, key)
		return
	}

	var sources []search.Source
	if p.provider != nil {
		sources = append(sources, search.Source{Provider: p.provider})
	}
	if key != "" && (textMode || c.atRoot(p)) {
		for _, tp := range c.textScope(pane) {
			sources = append(sources, search.Source{Text: tp})
		}
	}

	opts := search.Options{
		Score:     key != "",
		Decorator: c.decoratorFor(pane),
	}
	first, stream := p.engine.Search(context.Background(), sources, key, opts)

	// The debounced closure may have been superseded while fetching.
	if !p.current(id) {
		return
	}

	c.emit(SearchDone{Pane: pane, Key: key, First: first, Matches: stream.Collect(c.limit)})
	if first != nil {
		c.applySelection(pane, first.Object)
	} else if p.selection != nil {
		p.selection = nil
		c.emit(SelectionChanged{Pane: pane})
		if pane == PaneSubject {
			c.populateCommands("")
		}
	}
}

func (c *Controller) execCommandSearch(p *paneState, key string) {
	subject := c.panes[PaneSubject].composed()
	var cmds []catalog.Command
	if subject != nil {
		cmds = c.manager.CommandsFor(subject)
	}
	first, stream := p.engine.RankCommands(cmds, key, subject, nil)
	c.emit(SearchDone{Pane: PaneCommand, Key: key, First: first, Matches: stream.Collect(c.limit)})
	if first != nil {
		c.applySelection(PaneCommand, first.Object)
	} else if p.selection != nil {
		p.selection = nil
		c.emit(SelectionChanged{Pane: PaneCommand})
		c.setMode(ModeSubjectCommand)
	}
}

// atRoot reports whether p is browsing the catalog root, where text
// providers take part.
func (c *Controller) atRoot(p *paneState) bool {
	return p.id == PaneSubject && len(p.browse) == 0
}

// textScope returns the text providers eligible for pane, restricted
// by the current command's object types on the object pane.
func (c *Controller) textScope(pane Pane) []catalog.TextProvider {
	var types []catalog.Type
	if pane == PaneObject {
		if cmd := c.currentCommand(); cmd != nil {
			types = cmd.ObjectTypes()
		}
	}
	return c.manager.TextProviders(types)
}

// decoratorFor attaches content providers to matches lazily.
func (c *Controller) decoratorFor(pane Pane) func(*search.Rankable) *search.Rankable {
	var cmd catalog.Command
	if pane == PaneObject {
		cmd = c.currentCommand()
	}
	return func(rb *search.Rankable) *search.Rankable {
		if item, ok := rb.Object.(catalog.Item); ok {
			rb.Object = c.manager.Decorate(item, cmd)
		}
		return rb
	}
}

// Select sets a pane's selection explicitly (cursor movement in the
// result list).
func (c *Controller) Select(pane Pane, obj catalog.Object) {
	c.loop.Post(func() { c.applySelection(pane, obj) })
}

// applySelection runs on the loop. A subject change repopulates the
// command pane; a command change reshapes the object pane and mode.
func (c *Controller) applySelection(pane Pane, obj catalog.Object) {
	p := c.panes[pane]
	if p.selection != nil && obj != nil && p.selection.ID() == obj.ID() {
		return
	}
	p.selection = obj
	c.emit(SelectionChanged{Pane: pane, Selection: obj})

	switch pane {
	case PaneSubject:
		c.populateCommands(c.panes[PaneCommand].key)
	case PaneCommand:
		c.reshapeObjectPane()
	}
}

// populateCommands ranks the subject's commands immediately, no
// debounce.
func (c *Controller) populateCommands(key string) {
	p := c.panes[PaneCommand]
	p.key = key
	c.execSearch(PaneCommand, p.nextSearch(), key, false)
}

// reshapeObjectPane applies the selected command's object requirements:
// mode flips to three-pane iff the command takes a secondary object,
// and the object scope is rebuilt from the catalog restricted to the
// command's accepted types.
func (c *Controller) reshapeObjectPane() {
	obj := c.panes[PaneObject]
	if obj.stackClear() {
		c.emit(StackChanged{Pane: PaneObject})
	}

	cmd := c.currentCommand()
	if cmd == nil || len(cmd.ObjectTypes()) == 0 {
		obj.reset()
		c.setMode(ModeSubjectCommand)
		return
	}

	var extra catalog.Provider
	useCatalog := true
	if scoped, ok := cmd.(catalog.ObjectScoped); ok {
		extra, useCatalog = scoped.ObjectProvider(c.panes[PaneSubject].composed())
		if extra != nil {
			extra = c.manager.Canonical(extra)
		}
	}
	var scope catalog.Provider
	if useCatalog {
		scope = c.manager.RootForTypes(cmd.ObjectTypes(), extra)
	} else {
		scope = extra
	}
	obj.reset()
	obj.setProvider(scope)
	c.setMode(ModeSubjectCommandObject)

	// Populate lazily so rapid command-pane browsing stays cheap.
	c.Search(PaneObject, "", false, true, false)
}

func (c *Controller) setMode(m Mode) {
	if c.mode == m {
		return
	}
	c.mode = m
	c.emit(ModeChanged{Mode: m})
}

func (c *Controller) currentCommand() catalog.Command {
	cmd, _ := c.panes[PaneCommand].selection.(catalog.Command)
	return cmd
}

// BrowseDown enters the selected item's content provider, staging the
// current scope for BrowseUp. With alternate, an item offering an
// alternate content view is asked for that instead.
func (c *Controller) BrowseDown(pane Pane, alternate bool) {
	c.loop.Post(func() {
		p := c.panes[pane]
		sel := p.selectedItem()
		if sel == nil {
			return
		}
		content := sel.Content()
		if alternate {
			if alt, ok := sel.(catalog.AlternateContent); ok {
				if ac := alt.AlternateContent(); ac != nil {
					content = ac
				}
			}
		}
		if content == nil {
			return
		}
		c.register.RecordUse(sel.ID(), "")
		p.pushProvider(c.manager.Canonical(content))
		c.execSearch(pane, p.nextSearch(), "", false)
	})
}

// BrowseUp leaves the current scope, falling back to the provider's
// declared parent when the browse stack is empty.
func (c *Controller) BrowseUp(pane Pane) {
	c.loop.Post(func() {
		p := c.panes[pane]
		if p.popProvider() {
			c.execSearch(pane, p.nextSearch(), "", false)
		}
	})
}

// StackPush stages the pane's selection for multi-select.
func (c *Controller) StackPush(pane Pane) {
	c.loop.Post(func() {
		p := c.panes[pane]
		if p.stackPush() {
			c.emit(StackChanged{Pane: pane, Items: p.stack})
			if pane == PaneSubject {
				c.populateCommands(c.panes[PaneCommand].key)
			}
		}
	})
}

// StackPop unstages the most recently staged item.
func (c *Controller) StackPop(pane Pane) {
	c.loop.Post(func() {
		p := c.panes[pane]
		if p.stackPop() {
			c.emit(StackChanged{Pane: pane, Items: p.stack})
			if pane == PaneSubject {
				c.populateCommands(c.panes[PaneCommand].key)
			}
		}
	})
}

// StackClear drops the pane's whole staging list.
func (c *Controller) StackClear(pane Pane) {
	c.loop.Post(func() {
		p := c.panes[pane]
		if p.stackClear() {
			c.emit(StackChanged{Pane: pane, Items: nil})
			if pane == PaneSubject {
				c.populateCommands(c.panes[PaneCommand].key)
			}
		}
	})
}

// Validate sweeps all panes after a catalog change: selections that
// went invalid reset their pane, stale staged items are dropped, and
// prefix caches are flushed.
func (c *Controller) Validate() {
	c.loop.Post(func() {
		for _, p := range c.panes {
			p.engine.Reset()
			if p.sweepStack() {
				c.emit(StackChanged{Pane: p.id, Items: p.stack})
			}
			if sel := p.selectedItem(); sel != nil && !sel.Valid() {
				p.selection = nil
				c.emit(SelectionChanged{Pane: p.id})
				c.execSearch(p.id, p.nextSearch(), p.key, p.textMode)
			}
		}
	})
}

// MarkDefault learns the current command as the default for the
// current subject, feeding the correlation bonus.
func (c *Controller) MarkDefault() {
	c.loop.Post(func() {
		subject := c.panes[PaneSubject].selectedItem()
		cmd := c.currentCommand()
		if subject == nil || cmd == nil {
			return
		}
		c.register.SetCorrelation(subject.ID(), cmd.ID())
	})
}

// HasAffinity reports whether learned data exists for the current
// subject. Synchronous; answers through the returned channel.
func (c *Controller) HasAffinity() <-chan bool {
	out := make(chan bool, 1)
	c.loop.Post(func() {
		sel := c.panes[PaneSubject].selectedItem()
		out <- sel != nil && c.register.HasAffinity(sel.ID())
	})
	return out
}

// EraseAffinity forgets everything learned about the current subject.
func (c *Controller) EraseAffinity() {
	c.loop.Post(func() {
		if sel := c.panes[PaneSubject].selectedItem(); sel != nil {
			c.register.EraseAffinity(sel.ID())
		}
	})
}

// ToggleFavorite flips the favorite flag on the current subject.
func (c *Controller) ToggleFavorite() {
	c.loop.Post(func() {
		sel := c.panes[PaneSubject].selectedItem()
		if sel == nil {
			return
		}
		if c.register.IsFavorite(sel.ID()) {
			c.register.RemoveFavorite(sel.ID())
		} else {
			c.register.AddFavorite(sel.ID())
		}
	})
}
