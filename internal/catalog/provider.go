package catalog

import (
	"context"
	"sort"
	"sync"
)

// Provider supplies a collection of catalog items.
//
// Identity is value-based: two providers with the same ID are the same
// provider, and the manager keeps exactly one tracked ("canonical")
// instance per ID. Version participates in cache invalidation only.
//
// Initialize and Finalize run on the event loop; Fetch may be invoked
// from a rescan worker concurrently with loop reads, so implementations
// must synchronize their internal item cache (ItemCache does this).
type Provider interface {
	// ID is the canonical identity, stable across process runs.
	ID() string
	Name() string
	// Version invalidates persisted snapshots when bumped.
	Version() int
	// Dynamic providers are recomputed per query, never cached or
	// proactively rescanned.
	Dynamic() bool
	// Provides lists the item types this provider can produce. An empty
	// list means "could be anything" and qualifies for every scope.
	Provides() []Type
	Initialize() error
	Finalize()
	// Fetch returns the current items. With refresh, the provider must
	// re-read its backing store.
	Fetch(ctx context.Context, refresh bool) ([]Item, error)
}

// Parented is an optional Provider capability: a parent to fall back to
// when browsing up from an empty stack.
type Parented interface {
	Parent() Provider
}

// LeafRepr is an optional Provider capability: a self-representation
// item used by the provider index instead of the generated one.
type LeafRepr interface {
	Leaf() Item
}

// Cacheable providers can serialize their fetched items so the manager
// can persist a snapshot between runs. Dynamic providers are never
// snapshotted.
type Cacheable interface {
	Provider
	MarshalItems() ([]byte, error)
	UnmarshalItems(data []byte) error
}

// CustomPersistence replaces snapshot caching with provider-owned
// save/restore of configuration-like data.
type CustomPersistence interface {
	Provider
	SaveName() string
	SaveState() ([]byte, error)
	RestoreState(data []byte) error
}

// TextProvider synthesizes items directly from the typed query text.
// Only consulted at the catalog root, never cached.
type TextProvider interface {
	ID() string
	Name() string
	// Rank is the fixed rank bias assigned to every produced item.
	Rank() int
	Provides() []Type
	// Items receives the raw query, original case preserved.
	Items(text string) []Item
}

// ItemCache guards a provider's fetched items so Fetch can be called
// from rescan workers while the loop reads. Embed it and route Fetch
// through Get.
type ItemCache struct {
	mu     sync.Mutex
	items  []Item
	loaded bool
}

// Get returns the cached items, invoking load to (re)fill them when the
// cache is cold or refresh is set.
func (c *ItemCache) Get(refresh bool, load func() ([]Item, error)) ([]Item, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.loaded && !refresh {
		return c.items, nil
	}
	items, err := load()
	if err != nil {
		return nil, err
	}
	c.items = items
	c.loaded = true
	return items, nil
}

// Invalidate drops the cached items so the next Get reloads.
func (c *ItemCache) Invalidate() {
	c.mu.Lock()
	c.loaded = false
	c.items = nil
	c.mu.Unlock()
}

// Seed replaces the cache contents, marking it warm. Used when
// restoring a persisted snapshot.
func (c *ItemCache) Seed(items []Item) {
	c.mu.Lock()
	c.items = items
	c.loaded = true
	c.mu.Unlock()
}

// Warm reports whether the cache holds items.
func (c *ItemCache) Warm() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.loaded
}

// MultiProvider aggregates several providers into one flat view. It is
// the shape of the catalog root and of type-restricted scopes.
type MultiProvider struct {
	Label   string
	Sources []Provider
}

func NewMultiProvider(name string, sources ...Provider) *MultiProvider {
	return &MultiProvider{Label: name, Sources: sources}
}

func (m *MultiProvider) ID() string {
	ids := make([]string, len(m.Sources))
	for i, s := range m.Sources {
		ids[i] = s.ID()
	}
	sort.Strings(ids)
	return "multi:" + m.Label + ":" + joinIDs(ids)
}

func (m *MultiProvider) Name() string      { return m.Label }
func (m *MultiProvider) Version() int      { return 1 }
func (m *MultiProvider) Dynamic() bool     { return true }
func (m *MultiProvider) Initialize() error { return nil }
func (m *MultiProvider) Finalize()         {}

func (m *MultiProvider) Provides() []Type {
	seen := map[Type]bool{}
	var types []Type
	for _, s := range m.Sources {
		for _, t := range s.Provides() {
			if !seen[t] {
				seen[t] = true
				types = append(types, t)
			}
		}
	}
	return types
}

func (m *MultiProvider) Fetch(ctx context.Context, refresh bool) ([]Item, error) {
	var all []Item
	for _, s := range m.Sources {
		items, err := s.Fetch(ctx, refresh)
		if err != nil {
			// One broken constituent must not hide the rest.
			continue
		}
		all = append(all, items...)
	}
	return all, nil
}

func joinIDs(ids []string) string {
	out := ""
	for i, id := range ids {
		if i > 0 {
			out += "\x1f"
		}
		out += id
	}
	return out
}

// providerIndex is the pseudo-provider enumerating all tracked
// providers, so the catalog itself is browsable.
type providerIndex struct {
	providers func() []Provider
}

func (p *providerIndex) ID() string        { return "beacon.provider-index" }
func (p *providerIndex) Name() string      { return "Catalog Index" }
func (p *providerIndex) Version() int      { return 1 }
func (p *providerIndex) Dynamic() bool     { return true }
func (p *providerIndex) Provides() []Type  { return []Type{TypeProvider} }
func (p *providerIndex) Initialize() error { return nil }
func (p *providerIndex) Finalize()         {}

func (p *providerIndex) Fetch(ctx context.Context, refresh bool) ([]Item, error) {
	provs := p.providers()
	items := make([]Item, 0, len(provs))
	for _, prov := range provs {
		items = append(items, ProviderItem(prov))
	}
	return items, nil
}

// ProviderItem returns the item representing prov in the provider
// index, honoring an alternate leaf representation when offered.
func ProviderItem(prov Provider) Item {
	if lr, ok := prov.(LeafRepr); ok {
		if leaf := lr.Leaf(); leaf != nil {
			return leaf
		}
	}
	return &GenericItem{
		IDKey:      "provider:" + prov.ID(),
		Label:      prov.Name(),
		Kind:       TypeProvider,
		ContentSrc: prov,
	}
}
