// Package catalog defines the data model for the launcher catalog:
// items, commands, providers and the manager that tracks them.
package catalog

import (
	"context"
	"fmt"
	"strings"
)

// Type tags the kind of value an Item carries. Providers report the
// types they can produce so the manager can build restricted scopes.
type Type string

const (
	TypeFile     Type = "file"
	TypeURL      Type = "url"
	TypeText     Type = "text"
	TypeProvider Type = "provider"
	TypeAction   Type = "action"
)

// Object is anything the usage register can learn about. Both Item and
// Command satisfy it; the ID is the canonical identity used for
// counting, correlation and deduplication.
type Object interface {
	ID() string
	Name() string
}

// Item is a selectable object backed by an underlying value. Items are
// produced transiently by provider queries and compared by ID.
type Item interface {
	Object
	Type() Type
	// Aliases are alternate names matched alongside Name.
	Aliases() []string
	Description() string
	// Valid reports whether the underlying value still exists. Checked
	// at result-consumption time, not eagerly.
	Valid() bool
	// Content returns the provider to browse into, or nil.
	Content() Provider
}

// Result is what a command activation yields. The zero value means the
// command was purely side-effecting.
type Result struct {
	// Provider, when set, is a new sub-catalog pushed onto the subject pane.
	Provider Provider
	// Item, when set, becomes the new subject selection.
	Item Item
}

// Command is an operation applicable to a subject item, optionally
// taking a secondary object.
type Command interface {
	Object
	// Accel is the accelerator rune, or 0 for none.
	Accel() rune
	// RankBias nudges default ordering. Positive for default commands,
	// negative for destructive ones. Keep it small.
	RankBias() int
	// ObjectTypes lists accepted secondary-object types. Empty means the
	// command takes no secondary object.
	ObjectTypes() []Type
	AppliesTo(subject Item) bool
	Run(ctx context.Context, subject, object Item) (Result, error)
	// Async marks commands whose Run must not block the event loop.
	Async() bool
}

// AlternateContent is an optional Item capability: a second content
// view reachable by browsing down with the alternate flag.
type AlternateContent interface {
	AlternateContent() Provider
}

// CommandGenerator produces commands dynamically for a given subject.
type CommandGenerator interface {
	CommandsFor(subject Item) []Command
}

// ObjectScoped is an optional Command capability: it supplies its own
// provider for the secondary-object pane, possibly instead of the
// whole catalog.
type ObjectScoped interface {
	// ObjectProvider returns an extra provider for the object scope and
	// whether the catalog-wide scope should be used in addition to it.
	ObjectProvider(subject Item) (Provider, bool)
}

// GenericItem is the stock Item implementation used by providers.
type GenericItem struct {
	IDKey     string
	Label     string
	Kind      Type
	AliasList []string
	Detail    string
	// ValidFn overrides validity; nil means always valid.
	ValidFn func() bool
	// ContentSrc is browsed into by the selection controller.
	ContentSrc Provider
}

func (g *GenericItem) ID() string          { return g.IDKey }
func (g *GenericItem) Name() string        { return g.Label }
func (g *GenericItem) Type() Type          { return g.Kind }
func (g *GenericItem) Aliases() []string   { return g.AliasList }
func (g *GenericItem) Description() string { return g.Detail }
func (g *GenericItem) Content() Provider   { return g.ContentSrc }

func (g *GenericItem) Valid() bool {
	if g.ValidFn == nil {
		return true
	}
	return g.ValidFn()
}

func (g *GenericItem) String() string {
	return fmt.Sprintf("%s(%s)", g.Kind, g.IDKey)
}

// withContent wraps an item with a content provider attached by the
// manager's decorators. The wrapped item keeps its identity.
type withContent struct {
	Item
	content Provider
}

func (w *withContent) Content() Provider { return w.content }

// WithContent returns item with content attached, unless the item
// already declares its own content provider.
func WithContent(item Item, content Provider) Item {
	if item.Content() != nil || content == nil {
		return item
	}
	return &withContent{Item: item, content: content}
}

// MultiItem folds a multi-select staging stack into one composite
// subject or object.
type MultiItem struct {
	Items []Item
}

func (m *MultiItem) ID() string {
	ids := make([]string, len(m.Items))
	for i, it := range m.Items {
		ids[i] = it.ID()
	}
	return "multi:" + strings.Join(ids, "\x1f")
}

func (m *MultiItem) Name() string {
	names := make([]string, len(m.Items))
	for i, it := range m.Items {
		names[i] = it.Name()
	}
	return strings.Join(names, ", ")
}

func (m *MultiItem) Type() Type {
	if len(m.Items) == 0 {
		return TypeText
	}
	return m.Items[0].Type()
}

func (m *MultiItem) Aliases() []string   { return nil }
func (m *MultiItem) Description() string { return fmt.Sprintf("%d objects", len(m.Items)) }
func (m *MultiItem) Content() Provider   { return nil }

func (m *MultiItem) Valid() bool {
	for _, it := range m.Items {
		if !it.Valid() {
			return false
		}
	}
	return true
}

// ComposeItems returns nil for an empty list, the single element for a
// one-item list, and a MultiItem otherwise.
func ComposeItems(items []Item) Item {
	switch len(items) {
	case 0:
		return nil
	case 1:
		return items[0]
	default:
		return &MultiItem{Items: items}
	}
}
