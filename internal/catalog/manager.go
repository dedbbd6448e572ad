package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"beacon/internal/logging"
)

// ContentDecorator computes a content provider for items of its
// trigger type, e.g. "directories get a directory listing".
type ContentDecorator interface {
	TriggerType() Type
	// Decorate returns the content provider for item, or nil when this
	// decorator has nothing to offer for it.
	Decorate(item Item) Provider
}

type tracked struct {
	provider    Provider
	owner       string
	toplevel    bool
	initialized bool
}

type ownedText struct {
	provider TextProvider
	owner    string
}

type ownedDecorator struct {
	deco  ContentDecorator
	owner string
}

type ownedCommand struct {
	cmd   Command
	owner string
}

type ownedGenerator struct {
	gen   CommandGenerator
	owner string
}

// Manager owns the set of registered providers and everything derived
// from it: the canonical instance per identity, the lazily cached root
// view, content decoration, command registries and persistence.
//
// State is mutated on the event loop; rescan workers only read the
// provider list and call Fetch, so a light read lock suffices.
type Manager struct {
	mu sync.RWMutex

	providers map[string]*tracked
	order     []string // registration order, for stable views
	text      []ownedText
	decos     []ownedDecorator
	commands  []ownedCommand
	gens      []ownedGenerator

	// preRoot caches the toplevel view; nil means recompute.
	preRoot []Provider

	snapshots *SnapshotStore
	dataDir   string
	rescanner *Rescanner
	finalized bool

	log *logging.Logger
}

// ManagerConfig carries the persistence locations and rescan cadence.
type ManagerConfig struct {
	CacheDir string
	DataDir  string
	Rescan   RescanConfig
}

func NewManager(cfg ManagerConfig) *Manager {
	m := &Manager{
		providers: make(map[string]*tracked),
		snapshots: NewSnapshotStore(cfg.CacheDir),
		dataDir:   cfg.DataDir,
		log:       logging.For("catalog"),
	}
	m.rescanner = NewRescanner(cfg.Rescan, m.Providers, m.refresh)
	return m
}

// Rescanner exposes the scheduler for lifecycle control.
func (m *Manager) Rescanner() *Rescanner { return m.rescanner }

// Add registers providers for owner, restoring each from its persisted
// snapshot or custom state first and falling back to the supplied
// fresh instance when that fails or mismatches. Value-equal providers
// resolve to the already tracked instance. With initialize, providers
// are initialized and given a first rescan immediately; otherwise that
// is deferred to the next catalog reload.
func (m *Manager) Add(owner string, providers []Provider, toplevel, initialize bool) {
	m.mu.Lock()
	var fresh []*tracked
	for _, p := range providers {
		m.restore(p)
		if existing, ok := m.providers[p.ID()]; ok {
			// Canonical instance wins; only the toplevel flag may widen.
			if toplevel {
				existing.toplevel = true
			}
			continue
		}
		t := &tracked{provider: p, owner: owner, toplevel: toplevel}
		m.providers[p.ID()] = t
		m.order = append(m.order, p.ID())
		fresh = append(fresh, t)
	}
	m.preRoot = nil
	m.mu.Unlock()

	if initialize {
		for _, t := range fresh {
			m.initProvider(t)
		}
		m.rescanner.Restart()
	}
}

// restore tries cache/config restoration for p. Caller holds the lock.
func (m *Manager) restore(p Provider) {
	if cp, ok := p.(CustomPersistence); ok {
		if data, err := os.ReadFile(m.stateFile(cp)); err == nil {
			if err := cp.RestoreState(data); err != nil {
				m.log.Warnw("discarding provider state",
					"provider", p.ID(), "error", err)
			}
		}
		return
	}
	if c, ok := p.(Cacheable); ok && !p.Dynamic() {
		if m.snapshots.Restore(c) {
			m.log.Debugw("restored provider from snapshot", "provider", p.ID())
		}
	}
}

// initProvider runs a provider's Initialize plus first rescan, with
// failures quarantining it instead of propagating.
func (m *Manager) initProvider(t *tracked) {
	if t.initialized {
		return
	}
	if err := guard(t.provider.Initialize); err != nil {
		m.Quarantine(t.provider, err)
		return
	}
	t.initialized = true
	m.rescanner.RescanNow(t.provider, false)
}

// Initialize initializes every provider not yet initialized and starts
// the rescan schedule. Call once after the initial Add calls.
func (m *Manager) Initialize() {
	m.mu.RLock()
	var pending []*tracked
	for _, id := range m.order {
		if t, ok := m.providers[id]; ok && !t.initialized {
			pending = append(pending, t)
		}
	}
	m.mu.RUnlock()

	for _, t := range pending {
		m.initProvider(t)
	}
	m.rescanner.Start()
}

// AddTextProviders registers free-text providers for owner.
func (m *Manager) AddTextProviders(owner string, providers []TextProvider) {
	m.mu.Lock()
	for _, tp := range providers {
		m.text = append(m.text, ownedText{provider: tp, owner: owner})
	}
	m.mu.Unlock()
}

// AddContentDecorators registers content decorators for owner.
func (m *Manager) AddContentDecorators(owner string, decos []ContentDecorator) {
	m.mu.Lock()
	for _, d := range decos {
		m.decos = append(m.decos, ownedDecorator{deco: d, owner: owner})
	}
	m.mu.Unlock()
}

// AddCommands registers commands for owner.
func (m *Manager) AddCommands(owner string, cmds []Command) {
	m.mu.Lock()
	for _, c := range cmds {
		m.commands = append(m.commands, ownedCommand{cmd: c, owner: owner})
	}
	m.mu.Unlock()
}

// AddCommandGenerators registers per-subject command generators.
func (m *Manager) AddCommandGenerators(owner string, gens []CommandGenerator) {
	m.mu.Lock()
	for _, g := range gens {
		m.gens = append(m.gens, ownedGenerator{gen: g, owner: owner})
	}
	m.mu.Unlock()
}

// RemoveOwner drops everything owner registered. It reports whether a
// provider was removed, i.e. whether the root view must be rebuilt.
func (m *Manager) RemoveOwner(owner string) bool {
	m.mu.Lock()
	var removed []*tracked
	for id, t := range m.providers {
		if t.owner == owner {
			removed = append(removed, t)
			delete(m.providers, id)
		}
	}
	if len(removed) > 0 {
		m.order = filterOrder(m.order, m.providers)
		m.preRoot = nil
	}

	m.text = filterText(m.text, owner)
	m.decos = filterDecos(m.decos, owner)
	m.commands = filterCommands(m.commands, owner)
	m.gens = filterGens(m.gens, owner)
	m.mu.Unlock()

	for _, t := range removed {
		m.retire(t)
	}
	if len(removed) > 0 {
		m.rescanner.Restart()
	}
	return len(removed) > 0
}

// retire finalizes a provider on its way out and persists whichever
// store it uses.
func (m *Manager) retire(t *tracked) {
	if err := guard(func() error { t.provider.Finalize(); return nil }); err != nil {
		m.log.Warnw("provider finalize failed", "provider", t.provider.ID(), "error", err)
	}
	if cp, ok := t.provider.(CustomPersistence); ok {
		if err := m.saveState(cp); err != nil {
			m.log.Warnw("provider state save failed", "provider", t.provider.ID(), "error", err)
		}
		return
	}
	if c, ok := t.provider.(Cacheable); ok && !t.provider.Dynamic() {
		if err := m.snapshots.Save(c); err != nil {
			m.log.Warnw("provider snapshot failed", "provider", t.provider.ID(), "error", err)
		}
	}
}

// Canonical returns the tracked instance equal to p, initializing p on
// first use when it is untracked.
func (m *Manager) Canonical(p Provider) Provider {
	m.mu.RLock()
	t, ok := m.providers[p.ID()]
	m.mu.RUnlock()
	if ok {
		return t.provider
	}
	if err := guard(p.Initialize); err != nil {
		m.log.Warnw("initialize failed for untracked provider",
			"provider", p.ID(), "error", err)
	}
	return p
}

// Providers returns the tracked providers in registration order.
func (m *Manager) Providers() []Provider {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Provider, 0, len(m.order))
	for _, id := range m.order {
		if t, ok := m.providers[id]; ok {
			out = append(out, t.provider)
		}
	}
	return out
}

// TextProviders returns the registered text providers, optionally
// restricted to those that can produce one of types.
func (m *Manager) TextProviders(types []Type) []TextProvider {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]TextProvider, 0, len(m.text))
	for _, t := range m.text {
		if types == nil || typesOverlap(t.provider.Provides(), types) {
			out = append(out, t.provider)
		}
	}
	return out
}

// Root returns the aggregate root view: the union of toplevel
// providers plus the index of all tracked providers, so the catalog
// itself is browsable. The view is cached until the provider set
// changes.
func (m *Manager) Root() Provider {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.preRoot == nil {
		first := []Provider{m.index()}
		for _, id := range m.order {
			if t, ok := m.providers[id]; ok && t.toplevel {
				first = append(first, t.provider)
			}
		}
		m.preRoot = first
	}
	return NewMultiProvider("Catalog", m.preRoot...)
}

// RootForTypes returns a flat aggregate over every tracked provider
// that can supply at least one of types, plus the provider index and
// extra when given. A provider reporting no types qualifies for
// anything.
func (m *Manager) RootForTypes(types []Type, extra Provider) Provider {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var first []Provider
	if extra != nil {
		first = append(first, extra)
	}
	for _, id := range m.order {
		t, ok := m.providers[id]
		if !ok {
			continue
		}
		if goodForTypes(t.provider, types) {
			first = append(first, t.provider)
		}
	}
	if goodForTypes(m.index(), types) {
		first = append(first, m.index())
	}
	return NewMultiProvider("Catalog", first...)
}

func goodForTypes(p Provider, types []Type) bool {
	provides := p.Provides()
	if len(provides) == 0 {
		return true
	}
	return typesOverlap(provides, types)
}

func typesOverlap(a, b []Type) bool {
	for _, x := range a {
		for _, y := range b {
			if x == y {
				return true
			}
		}
	}
	return false
}

func (m *Manager) index() Provider {
	return &providerIndex{providers: m.Providers}
}

// CommandsFor returns the commands applicable to subject, static
// registrations first, then generated ones.
func (m *Manager) CommandsFor(subject Item) []Command {
	m.mu.RLock()
	cmds := make([]Command, 0, len(m.commands))
	for _, oc := range m.commands {
		cmds = append(cmds, oc.cmd)
	}
	gens := make([]CommandGenerator, 0, len(m.gens))
	for _, og := range m.gens {
		gens = append(gens, og.gen)
	}
	m.mu.RUnlock()

	out := make([]Command, 0, len(cmds))
	for _, c := range cmds {
		if c.AppliesTo(subject) {
			out = append(out, c)
		}
	}
	for _, g := range gens {
		for _, c := range g.CommandsFor(subject) {
			if c.AppliesTo(subject) {
				out = append(out, c)
			}
		}
	}
	return out
}

// Decorate attaches a content provider to item when it has none,
// computed from the decorators whose trigger type matches. When
// forCommand is given, candidate content is restricted to providers
// able to supply the command's object types. Multiple matches are
// wrapped in a union provider.
func (m *Manager) Decorate(item Item, forCommand Command) Item {
	if item == nil || item.Content() != nil {
		return item
	}

	m.mu.RLock()
	decos := make([]ContentDecorator, 0, len(m.decos))
	for _, od := range m.decos {
		if od.deco.TriggerType() == item.Type() {
			decos = append(decos, od.deco)
		}
	}
	m.mu.RUnlock()

	var types []Type
	if forCommand != nil {
		types = forCommand.ObjectTypes()
	}

	var contents []Provider
	for _, d := range decos {
		var content Provider
		err := guard(func() error {
			content = d.Decorate(item)
			return nil
		})
		if err != nil {
			m.log.Warnw("content decorator failed",
				"item", item.ID(), "error", err)
			continue
		}
		if content == nil {
			continue
		}
		if len(types) > 0 && !goodForTypes(content, types) {
			continue
		}
		contents = append(contents, m.Canonical(content))
	}

	switch len(contents) {
	case 0:
		return item
	case 1:
		return WithContent(item, contents[0])
	default:
		return WithContent(item, NewMultiProvider(item.Name(), contents...))
	}
}

// Quarantine removes a defective provider from every tracked set. The
// defect is logged as a plugin problem and never propagated.
func (m *Manager) Quarantine(p Provider, cause error) {
	m.mu.Lock()
	_, ok := m.providers[p.ID()]
	if ok {
		delete(m.providers, p.ID())
		m.order = filterOrder(m.order, m.providers)
		m.preRoot = nil
	}
	m.mu.Unlock()
	if ok {
		m.log.Errorw("quarantined defective provider",
			"provider", p.ID(), "error", cause)
		m.rescanner.Restart()
	}
}

// refresh is the rescanner's fetch hook: re-read a provider's items,
// quarantining it on failure. A rescan always bypasses the item cache.
func (m *Manager) refresh(p Provider, force bool) {
	err := guard(func() error {
		_, err := p.Fetch(context.Background(), true)
		return err
	})
	if err != nil {
		m.Quarantine(p, err)
	}
}

// RescanNow forces an immediate refresh of p. With force, the
// last-rescan stamp advances even when the fetch is a no-op.
func (m *Manager) RescanNow(p Provider, force bool) {
	m.rescanner.RescanNow(p, force)
}

// Finalize releases every provider's resources. Must run before
// SaveCache.
func (m *Manager) Finalize() {
	m.rescanner.Stop()
	for _, p := range m.Providers() {
		p := p
		if err := guard(func() error { p.Finalize(); return nil }); err != nil {
			m.log.Warnw("provider finalize failed", "provider", p.ID(), "error", err)
		}
	}
	m.mu.Lock()
	m.finalized = true
	m.mu.Unlock()
}

// SaveCache persists snapshots for the non-dynamic providers without
// custom persistence. It is an error to call it before Finalize.
func (m *Manager) SaveCache() error {
	m.mu.RLock()
	finalized := m.finalized
	m.mu.RUnlock()
	if !finalized {
		return fmt.Errorf("SaveCache called before Finalize")
	}

	m.snapshots.PruneObsolete()
	for _, p := range m.Providers() {
		if _, ok := p.(CustomPersistence); ok {
			continue
		}
		c, ok := p.(Cacheable)
		if !ok || p.Dynamic() {
			continue
		}
		if err := m.snapshots.Save(c); err != nil {
			m.log.Warnw("provider snapshot failed", "provider", p.ID(), "error", err)
		}
	}
	return nil
}

// SaveData persists the providers that own their persistence format.
func (m *Manager) SaveData() error {
	for _, p := range m.Providers() {
		cp, ok := p.(CustomPersistence)
		if !ok {
			continue
		}
		if err := m.saveState(cp); err != nil {
			m.log.Warnw("provider state save failed", "provider", p.ID(), "error", err)
		}
	}
	return nil
}

func (m *Manager) stateFile(cp CustomPersistence) string {
	return filepath.Join(m.dataDir, fmt.Sprintf("state-%s-v%d.json", cp.SaveName(), snapshotFormat))
}

func (m *Manager) saveState(cp CustomPersistence) error {
	data, err := cp.SaveState()
	if err != nil {
		return fmt.Errorf("save state %s: %w", cp.SaveName(), err)
	}
	if !json.Valid(data) {
		return fmt.Errorf("save state %s: not valid JSON", cp.SaveName())
	}
	if err := os.MkdirAll(m.dataDir, 0o755); err != nil {
		return err
	}
	path := m.stateFile(cp)
	tmp := fmt.Sprintf("%s.%d", path, os.Getpid())
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// guard converts a panic inside plugin-supplied code into an error so
// one bad provider cannot take the process down.
func guard(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("plugin panic: %v", r)
		}
	}()
	return fn()
}

func filterOrder(order []string, keep map[string]*tracked) []string {
	out := order[:0]
	for _, id := range order {
		if _, ok := keep[id]; ok {
			out = append(out, id)
		}
	}
	return out
}

func filterText(in []ownedText, owner string) []ownedText {
	out := in[:0]
	for _, t := range in {
		if t.owner != owner {
			out = append(out, t)
		}
	}
	return out
}

func filterDecos(in []ownedDecorator, owner string) []ownedDecorator {
	out := in[:0]
	for _, d := range in {
		if d.owner != owner {
			out = append(out, d)
		}
	}
	return out
}

func filterCommands(in []ownedCommand, owner string) []ownedCommand {
	out := in[:0]
	for _, c := range in {
		if c.owner != owner {
			out = append(out, c)
		}
	}
	return out
}

func filterGens(in []ownedGenerator, owner string) []ownedGenerator {
	out := in[:0]
	for _, g := range in {
		if g.owner != owner {
			out = append(out, g)
		}
	}
	return out
}
