package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubProvider is the minimal test provider.
type stubProvider struct {
	id       string
	name     string
	version  int
	dynamic  bool
	provides []Type
	items    []Item
	initErr  error

	inits    atomic.Int32
	finals   atomic.Int32
	fetches  atomic.Int32
	snapshot []byte
	restored []byte
}

func newStub(id string, items ...Item) *stubProvider {
	return &stubProvider{id: id, name: id, version: 1, items: items}
}

func (s *stubProvider) ID() string       { return s.id }
func (s *stubProvider) Name() string     { return s.name }
func (s *stubProvider) Version() int     { return s.version }
func (s *stubProvider) Dynamic() bool    { return s.dynamic }
func (s *stubProvider) Provides() []Type { return s.provides }
func (s *stubProvider) Finalize()        { s.finals.Add(1) }

func (s *stubProvider) Initialize() error {
	s.inits.Add(1)
	return s.initErr
}

func (s *stubProvider) Fetch(ctx context.Context, refresh bool) ([]Item, error) {
	s.fetches.Add(1)
	return s.items, nil
}

func (s *stubProvider) MarshalItems() ([]byte, error) {
	if s.snapshot != nil {
		return s.snapshot, nil
	}
	return json.Marshal(len(s.items))
}

func (s *stubProvider) UnmarshalItems(data []byte) error {
	s.restored = data
	return nil
}

func genItem(id string, kind Type) *GenericItem {
	return &GenericItem{IDKey: id, Label: id, Kind: kind}
}

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	return NewManager(ManagerConfig{
		CacheDir: t.TempDir(),
		DataDir:  t.TempDir(),
		Rescan:   RescanConfig{Startup: time.Hour, Period: time.Hour, Campaign: time.Hour},
	})
}

func providerIDs(provs []Provider) []string {
	out := make([]string, len(provs))
	for i, p := range provs {
		out[i] = p.ID()
	}
	return out
}

func TestCanonicalIdentity(t *testing.T) {
	m := newTestManager(t)
	defer m.Finalize()

	first := newStub("p1", genItem("a", TypeText))
	second := newStub("p1") // value-equal, different instance

	m.Add("owner", []Provider{first}, true, true)
	m.Add("owner", []Provider{second}, true, true)

	assert.Equal(t, []string{"p1"}, providerIDs(m.Providers()))
	assert.Same(t, Provider(first), m.Canonical(second), "tracked instance wins")

	root := m.Root().(*MultiProvider)
	count := 0
	for _, s := range root.Sources {
		if s.ID() == "p1" {
			count++
		}
	}
	assert.Equal(t, 1, count, "root lists the canonical instance once")
}

func TestQuarantineOnInitFailure(t *testing.T) {
	m := newTestManager(t)
	defer m.Finalize()

	bad := newStub("bad")
	bad.initErr = errors.New("backend gone")
	good := newStub("good")

	m.Add("owner", []Provider{bad, good}, true, true)

	assert.Equal(t, []string{"good"}, providerIDs(m.Providers()))

	root := m.Root().(*MultiProvider)
	assert.NotContains(t, providerIDs(root.Sources), "bad")

	scope := m.RootForTypes([]Type{TypeText}, nil).(*MultiProvider)
	assert.NotContains(t, providerIDs(scope.Sources), "bad")
}

func TestQuarantineOnFetchPanic(t *testing.T) {
	m := newTestManager(t)
	defer m.Finalize()

	p := newStub("p1")
	m.Add("owner", []Provider{p}, true, false)
	require.Len(t, m.Providers(), 1)

	m.Quarantine(p, errors.New("fetch blew up"))
	assert.Empty(t, m.Providers())
}

func TestRootForTypes(t *testing.T) {
	m := newTestManager(t)
	defer m.Finalize()

	files := newStub("files")
	files.provides = []Type{TypeFile}
	urls := newStub("urls")
	urls.provides = []Type{TypeURL}
	anything := newStub("anything") // no declared types qualifies everywhere

	m.Add("owner", []Provider{files, urls, anything}, true, false)

	scope := m.RootForTypes([]Type{TypeFile}, nil).(*MultiProvider)
	ids := providerIDs(scope.Sources)
	assert.Contains(t, ids, "files")
	assert.Contains(t, ids, "anything")
	assert.NotContains(t, ids, "urls")

	extra := newStub("extra")
	scope = m.RootForTypes([]Type{TypeFile}, extra).(*MultiProvider)
	assert.Contains(t, providerIDs(scope.Sources), "extra")
}

func TestRootIncludesProviderIndex(t *testing.T) {
	m := newTestManager(t)
	defer m.Finalize()

	top := newStub("top")
	hidden := newStub("hidden")
	m.Add("owner", []Provider{top}, true, false)
	m.Add("owner", []Provider{hidden}, false, false)

	root := m.Root().(*MultiProvider)
	ids := providerIDs(root.Sources)
	assert.Contains(t, ids, "top")
	assert.NotContains(t, ids, "hidden", "non-toplevel providers stay out of the root union")

	// The index still exposes every tracked provider.
	items, err := root.Sources[0].Fetch(context.Background(), false)
	require.NoError(t, err)
	names := make([]string, len(items))
	for i, it := range items {
		names[i] = it.Name()
	}
	assert.Contains(t, names, "top")
	assert.Contains(t, names, "hidden")
}

func TestRemoveOwner(t *testing.T) {
	m := newTestManager(t)
	defer m.Finalize()

	mine := newStub("mine")
	theirs := newStub("theirs")
	m.Add("plugin-a", []Provider{mine}, true, true)
	m.Add("plugin-b", []Provider{theirs}, true, true)

	assert.True(t, m.RemoveOwner("plugin-a"))
	assert.Equal(t, []string{"theirs"}, providerIDs(m.Providers()))
	assert.Equal(t, int32(1), mine.finals.Load(), "removed providers are finalized")

	assert.False(t, m.RemoveOwner("plugin-a"), "second removal is a no-op")
}

func TestDecorate(t *testing.T) {
	m := newTestManager(t)
	defer m.Finalize()

	content := newStub("content")
	content.provides = []Type{TypeFile}
	deco := &stubDecorator{trigger: TypeFile, content: content}
	m.AddContentDecorators("owner", []ContentDecorator{deco})

	t.Run("attaches matching decorator", func(t *testing.T) {
		item := m.Decorate(genItem("f", TypeFile), nil)
		require.NotNil(t, item.Content())
		assert.Equal(t, "content", item.Content().ID())
	})

	t.Run("ignores non-matching trigger type", func(t *testing.T) {
		item := m.Decorate(genItem("u", TypeURL), nil)
		assert.Nil(t, item.Content())
	})

	t.Run("keeps existing content", func(t *testing.T) {
		existing := newStub("existing")
		item := m.Decorate(&GenericItem{IDKey: "f2", Kind: TypeFile, ContentSrc: existing}, nil)
		assert.Equal(t, "existing", item.Content().ID())
	})

	t.Run("command restricts content types", func(t *testing.T) {
		item := m.Decorate(genItem("f3", TypeFile), stubCommand{types: []Type{TypeURL}})
		assert.Nil(t, item.Content(), "file content cannot serve a url-typed object pane")
	})
}

type stubDecorator struct {
	trigger Type
	content Provider
}

func (d *stubDecorator) TriggerType() Type { return d.trigger }

func (d *stubDecorator) Decorate(item Item) Provider { return d.content }

type stubCommand struct {
	id    string
	bias  int
	types []Type
}

func (c stubCommand) ID() string   { return "cmd:" + c.id }
func (c stubCommand) Name() string { return c.id }

func (c stubCommand) Accel() rune         { return 0 }
func (c stubCommand) RankBias() int       { return c.bias }
func (c stubCommand) ObjectTypes() []Type { return c.types }
func (c stubCommand) AppliesTo(Item) bool { return true }
func (c stubCommand) Async() bool         { return false }

func (c stubCommand) Run(ctx context.Context, subject, object Item) (Result, error) {
	return Result{}, nil
}

func TestCommandsFor(t *testing.T) {
	m := newTestManager(t)
	defer m.Finalize()

	m.AddCommands("owner", []Command{stubCommand{id: "open"}})
	m.AddCommandGenerators("owner", []CommandGenerator{generatorFunc(func(subject Item) []Command {
		return []Command{stubCommand{id: "generated-" + subject.Name()}}
	})})

	cmds := m.CommandsFor(genItem("x", TypeText))
	names := make([]string, len(cmds))
	for i, c := range cmds {
		names[i] = c.Name()
	}
	assert.Equal(t, []string{"open", "generated-x"}, names)
}

type generatorFunc func(Item) []Command

func (g generatorFunc) CommandsFor(subject Item) []Command { return g(subject) }

func TestSaveCacheRequiresFinalize(t *testing.T) {
	m := newTestManager(t)
	assert.Error(t, m.SaveCache())
	m.Finalize()
	assert.NoError(t, m.SaveCache())
}

func TestSnapshotRestoreOnAdd(t *testing.T) {
	cacheDir := t.TempDir()
	cfg := ManagerConfig{CacheDir: cacheDir, DataDir: t.TempDir(),
		Rescan: RescanConfig{Startup: time.Hour, Period: time.Hour, Campaign: time.Hour}}

	first := NewManager(cfg)
	p := newStub("p1", genItem("a", TypeText))
	p.snapshot = []byte(`{"kept":true}`)
	first.Add("owner", []Provider{p}, true, false)
	first.Finalize()
	require.NoError(t, first.SaveCache())

	second := NewManager(cfg)
	defer second.Finalize()
	fresh := newStub("p1")
	second.Add("owner", []Provider{fresh}, true, false)
	assert.JSONEq(t, `{"kept":true}`, string(fresh.restored))

	t.Run("version bump discards snapshot", func(t *testing.T) {
		third := NewManager(cfg)
		defer third.Finalize()
		bumped := newStub("p1")
		bumped.version = 2
		third.Add("owner", []Provider{bumped}, true, false)
		assert.Nil(t, bumped.restored)
	})
}

// statefulProvider exercises the custom persistence path.
type statefulProvider struct {
	*stubProvider
	state []byte
}

func (s *statefulProvider) SaveName() string { return "stateful" }

func (s *statefulProvider) SaveState() ([]byte, error) { return s.state, nil }

func (s *statefulProvider) RestoreState(data []byte) error {
	s.state = data
	return nil
}

func TestCustomPersistence(t *testing.T) {
	cfg := ManagerConfig{CacheDir: t.TempDir(), DataDir: t.TempDir(),
		Rescan: RescanConfig{Startup: time.Hour, Period: time.Hour, Campaign: time.Hour}}

	first := NewManager(cfg)
	p := &statefulProvider{stubProvider: newStub("stateful"), state: []byte(`{"pinned":["a"]}`)}
	first.Add("owner", []Provider{p}, true, false)
	require.NoError(t, first.SaveData())
	first.Finalize()

	second := NewManager(cfg)
	defer second.Finalize()
	fresh := &statefulProvider{stubProvider: newStub("stateful")}
	second.Add("owner", []Provider{fresh}, true, false)
	assert.JSONEq(t, `{"pinned":["a"]}`, string(fresh.state))
}
