package control

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"beacon/internal/catalog"
	"beacon/internal/learn"
	"beacon/internal/rank"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fakeProvider struct {
	id       string
	provides []catalog.Type
	items    []catalog.Item
}

func (f *fakeProvider) ID() string               { return f.id }
func (f *fakeProvider) Name() string             { return f.id }
func (f *fakeProvider) Version() int             { return 1 }
func (f *fakeProvider) Dynamic() bool            { return false }
func (f *fakeProvider) Provides() []catalog.Type { return f.provides }
func (f *fakeProvider) Initialize() error        { return nil }
func (f *fakeProvider) Finalize()                {}

func (f *fakeProvider) Fetch(ctx context.Context, refresh bool) ([]catalog.Item, error) {
	return f.items, nil
}

type captureCommand struct {
	id      string
	types   []catalog.Type
	result  catalog.Result
	subject catalog.Item
	object  catalog.Item
	runs    int
}

func (c *captureCommand) ID() string                  { return "cmd:" + c.id }
func (c *captureCommand) Name() string                { return c.id }
func (c *captureCommand) Accel() rune                 { return 0 }
func (c *captureCommand) RankBias() int               { return 0 }
func (c *captureCommand) ObjectTypes() []catalog.Type { return c.types }
func (c *captureCommand) AppliesTo(catalog.Item) bool { return true }
func (c *captureCommand) Async() bool                 { return false }

func (c *captureCommand) Run(ctx context.Context, subject, object catalog.Item) (catalog.Result, error) {
	c.runs++
	c.subject = subject
	c.object = object
	return c.result, nil
}

func item(id string, kind catalog.Type) *catalog.GenericItem {
	return &catalog.GenericItem{IDKey: id, Label: id, Kind: kind}
}

type fixture struct {
	ctrl     *Controller
	loop     *Loop
	manager  *catalog.Manager
	register *learn.Register
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	manager := catalog.NewManager(catalog.ManagerConfig{
		CacheDir: t.TempDir(),
		DataDir:  t.TempDir(),
		Rescan: catalog.RescanConfig{
			Startup: time.Hour, Period: time.Hour, Campaign: time.Hour,
		},
	})
	register := learn.NewRegister(t.TempDir())

	loop := NewLoop()
	go loop.Run()

	ctrl := New(loop, manager, register, rank.SubstringMetric{}, Config{SaveEvery: -1})
	t.Cleanup(ctrl.Shutdown)
	return &fixture{ctrl: ctrl, loop: loop, manager: manager, register: register}
}

// next pulls events until pred accepts one. Unrelated events in
// between are skipped.
func next[T Event](f *fixture, t *testing.T, pred func(T) bool) T {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case ev := <-f.ctrl.Events():
			if typed, ok := ev.(T); ok && (pred == nil || pred(typed)) {
				return typed
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %T", *new(T))
		}
	}
}

func noEvent[T Event](f *fixture, t *testing.T, pred func(T) bool, wait time.Duration) {
	t.Helper()
	deadline := time.After(wait)
	for {
		select {
		case ev := <-f.ctrl.Events():
			if typed, ok := ev.(T); ok && pred(typed) {
				t.Fatalf("unexpected event %#v", typed)
			}
		case <-deadline:
			return
		}
	}
}

func TestStartListsCatalogRoot(t *testing.T) {
	f := newFixture(t)
	f.manager.Add("test", []catalog.Provider{&fakeProvider{id: "p1",
		items: []catalog.Item{item("alpha", catalog.TypeText)}}}, true, false)

	f.ctrl.Start()

	done := next(f, t, func(ev SearchDone) bool { return ev.Pane == PaneSubject })
	require.NotNil(t, done.First)
	assert.Equal(t, "alpha", done.First.Object.Name())

	sel := next(f, t, func(ev SelectionChanged) bool { return ev.Pane == PaneSubject })
	assert.Equal(t, "alpha", sel.Selection.Name())
}

func TestSupersession(t *testing.T) {
	f := newFixture(t)
	f.manager.Add("test", []catalog.Provider{&fakeProvider{id: "p1", items: []catalog.Item{
		item("stale match", catalog.TypeText),
		item("fresh match", catalog.TypeText),
	}}}, true, false)
	f.ctrl.Start()
	next(f, t, func(ev SearchDone) bool { return ev.Pane == PaneSubject })

	// The first search debounces; the second, interactive one lands
	// before the first timer fires and must supersede it.
	f.ctrl.Search(PaneSubject, "stale", false, false, false)
	f.ctrl.Search(PaneSubject, "fresh", true, false, false)

	done := next(f, t, func(ev SearchDone) bool {
		return ev.Pane == PaneSubject && ev.Key != ""
	})
	assert.Equal(t, "fresh", done.Key)

	noEvent(f, t, func(ev SearchDone) bool { return ev.Key == "stale" }, 150*time.Millisecond)
}

func TestModeTransition(t *testing.T) {
	f := newFixture(t)
	files := &fakeProvider{id: "files", provides: []catalog.Type{catalog.TypeFile},
		items: []catalog.Item{item("doc.txt", catalog.TypeFile)}}
	urls := &fakeProvider{id: "urls", provides: []catalog.Type{catalog.TypeURL},
		items: []catalog.Item{item("url://x", catalog.TypeURL)}}
	f.manager.Add("test", []catalog.Provider{files, urls}, true, false)

	needsObject := &captureCommand{id: "copy-to", types: []catalog.Type{catalog.TypeFile}}
	plain := &captureCommand{id: "open"}
	f.manager.AddCommands("test", []catalog.Command{needsObject, plain})

	f.ctrl.Start()
	next(f, t, func(ev SearchDone) bool { return ev.Pane == PaneCommand })

	t.Run("object-taking command enters three-pane mode", func(t *testing.T) {
		f.ctrl.Select(PaneCommand, needsObject)
		mode := next(f, t, func(ModeChanged) bool { return true })
		assert.Equal(t, ModeSubjectCommandObject, mode.Mode)

		// The lazy object search fires after its long debounce and is
		// scoped to providers that can supply files.
		done := next(f, t, func(ev SearchDone) bool { return ev.Pane == PaneObject })
		for _, m := range done.Matches {
			assert.NotEqual(t, catalog.TypeURL, m.Object.(catalog.Item).Type())
		}
	})

	t.Run("plain command flips back", func(t *testing.T) {
		f.ctrl.Select(PaneCommand, plain)
		mode := next(f, t, func(ModeChanged) bool { return true })
		assert.Equal(t, ModeSubjectCommand, mode.Mode)
	})
}

func TestActivate(t *testing.T) {
	f := newFixture(t)
	subject := item("doc.txt", catalog.TypeFile)
	f.manager.Add("test", []catalog.Provider{&fakeProvider{id: "p1",
		provides: []catalog.Type{catalog.TypeFile}, items: []catalog.Item{subject}}}, true, false)
	cmd := &captureCommand{id: "open"}
	f.manager.AddCommands("test", []catalog.Command{cmd})

	f.ctrl.Start()
	next(f, t, func(ev SelectionChanged) bool {
		return ev.Pane == PaneCommand && ev.Selection != nil
	})

	f.ctrl.Activate()
	launched := next(f, t, func(Launched) bool { return true })
	assert.Equal(t, "open", launched.Command)
	assert.Equal(t, subject.ID(), cmd.subject.ID())

	// Activation feeds the usage register for both subject and command.
	assert.Greater(t, f.register.Score(subject.ID(), ""), 0.0)
	assert.Greater(t, f.register.Score(cmd.ID(), ""), 0.0)
}

func TestActivateResultItemBecomesSubject(t *testing.T) {
	f := newFixture(t)
	produced := item("result.txt", catalog.TypeFile)
	f.manager.Add("test", []catalog.Provider{&fakeProvider{id: "p1",
		items: []catalog.Item{item("doc.txt", catalog.TypeFile)}}}, true, false)
	cmd := &captureCommand{id: "transform", result: catalog.Result{Item: produced}}
	f.manager.AddCommands("test", []catalog.Command{cmd})

	f.ctrl.Start()
	next(f, t, func(ev SelectionChanged) bool {
		return ev.Pane == PaneCommand && ev.Selection != nil
	})

	f.ctrl.Activate()
	sel := next(f, t, func(ev SelectionChanged) bool {
		return ev.Pane == PaneSubject && ev.Selection != nil && ev.Selection.ID() == produced.ID()
	})
	assert.Equal(t, "result.txt", sel.Selection.Name())
}

func TestBrowseDownAndUp(t *testing.T) {
	f := newFixture(t)
	child := &fakeProvider{id: "child", items: []catalog.Item{item("inner", catalog.TypeText)}}
	folder := &catalog.GenericItem{IDKey: "folder", Label: "folder",
		Kind: catalog.TypeText, ContentSrc: child}
	f.manager.Add("test", []catalog.Provider{&fakeProvider{id: "p1",
		items: []catalog.Item{folder}}}, true, false)

	f.ctrl.Start()
	next(f, t, func(ev SearchDone) bool { return ev.Pane == PaneSubject })

	f.ctrl.BrowseDown(PaneSubject, false)
	done := next(f, t, func(ev SearchDone) bool { return ev.Pane == PaneSubject })
	require.NotNil(t, done.First)
	assert.Equal(t, "inner", done.First.Object.Name())
	assert.True(t, f.register.HasAffinity("folder"), "browsing in counts as a use")

	f.ctrl.BrowseUp(PaneSubject)
	done = next(f, t, func(ev SearchDone) bool { return ev.Pane == PaneSubject })
	require.NotNil(t, done.First)
	assert.Equal(t, "folder", done.First.Object.Name())
}

func TestStackComposesSubject(t *testing.T) {
	f := newFixture(t)
	a := item("a.txt", catalog.TypeFile)
	b := item("b.txt", catalog.TypeFile)
	f.manager.Add("test", []catalog.Provider{&fakeProvider{id: "p1",
		items: []catalog.Item{a, b}}}, true, false)
	cmd := &captureCommand{id: "open"}
	f.manager.AddCommands("test", []catalog.Command{cmd})

	f.ctrl.Start()
	next(f, t, func(ev SearchDone) bool { return ev.Pane == PaneSubject })

	f.ctrl.StackPush(PaneSubject)
	next(f, t, func(ev StackChanged) bool { return ev.Pane == PaneSubject })

	f.ctrl.Select(PaneSubject, b)
	next(f, t, func(ev SelectionChanged) bool {
		return ev.Pane == PaneCommand && ev.Selection != nil
	})

	f.ctrl.Activate()
	next(f, t, func(Launched) bool { return true })

	multi, ok := cmd.subject.(*catalog.MultiItem)
	require.True(t, ok, "staged selection folds into a composite subject")
	assert.Len(t, multi.Items, 2)
}

func TestValidateResetsInvalidSelection(t *testing.T) {
	f := newFixture(t)
	alive := true
	flaky := &catalog.GenericItem{IDKey: "flaky", Label: "flaky",
		Kind: catalog.TypeText, ValidFn: func() bool { return alive }}
	f.manager.Add("test", []catalog.Provider{&fakeProvider{id: "p1",
		items: []catalog.Item{flaky}}}, true, false)

	f.ctrl.Start()
	next(f, t, func(ev SelectionChanged) bool {
		return ev.Pane == PaneSubject && ev.Selection != nil
	})

	alive = false
	f.ctrl.Validate()
	sel := next(f, t, func(ev SelectionChanged) bool { return ev.Pane == PaneSubject })
	assert.Nil(t, sel.Selection, "invalid selection resets the pane")
}

func TestMarkDefaultFeedsCorrelation(t *testing.T) {
	f := newFixture(t)
	subject := item("doc.txt", catalog.TypeFile)
	f.manager.Add("test", []catalog.Provider{&fakeProvider{id: "p1",
		items: []catalog.Item{subject}}}, true, false)
	cmd := &captureCommand{id: "open"}
	f.manager.AddCommands("test", []catalog.Command{cmd})

	f.ctrl.Start()
	next(f, t, func(ev SelectionChanged) bool {
		return ev.Pane == PaneCommand && ev.Selection != nil
	})

	f.ctrl.MarkDefault()
	ok := <-f.ctrl.HasAffinity()
	assert.True(t, ok)
	assert.Equal(t, 50.0, f.register.CorrelationBonus(cmd.ID(), subject.ID()))
}
