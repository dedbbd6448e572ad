package control

import (
	"beacon/internal/catalog"
	"beacon/internal/learn"
	"beacon/internal/rank"
	"beacon/internal/search"
)

// paneState is the per-pane half of the controller: the active
// provider, the browse stack behind it, the multi-select stack, the
// current selection and the outstanding search id. All access happens
// on the loop.
type paneState struct {
	id     Pane
	engine *search.Engine

	// provider is the active search scope; nil on the command pane,
	// which ranks the subject's command list instead.
	provider catalog.Provider
	// browse holds the providers behind the active one, pushed by
	// browseDown and popped by browseUp.
	browse []catalog.Provider

	// stack is the ordered multi-select staging list. Folded into a
	// composite item when commands execute.
	stack []catalog.Item

	selection catalog.Object
	key       string
	textMode  bool

	// searchID supersedes stale results: only the most recently issued
	// search may apply its data.
	searchID uint64
	debounce debouncer
}

func newPaneState(id Pane, metric rank.Metric, register *learn.Register) *paneState {
	return &paneState{id: id, engine: search.NewEngine(metric, register)}
}

// setProvider switches the active scope and drops the prefix cache.
func (p *paneState) setProvider(prov catalog.Provider) {
	p.provider = prov
	p.engine.Reset()
}

// pushProvider enters prov, remembering the current scope for
// browseUp.
func (p *paneState) pushProvider(prov catalog.Provider) {
	if p.provider != nil {
		p.browse = append(p.browse, p.provider)
	}
	p.setProvider(prov)
}

// popProvider leaves the current scope. With an empty browse stack it
// falls back to the provider's declared parent. Reports whether the
// scope changed.
func (p *paneState) popProvider() bool {
	if n := len(p.browse); n > 0 {
		p.setProvider(p.browse[n-1])
		p.browse = p.browse[:n-1]
		return true
	}
	if parented, ok := p.provider.(catalog.Parented); ok {
		if parent := parented.Parent(); parent != nil {
			p.setProvider(parent)
			return true
		}
	}
	return false
}

// nextSearch invalidates any outstanding search and returns the id the
// new one must carry.
func (p *paneState) nextSearch() uint64 {
	p.searchID++
	return p.searchID
}

// current reports whether a result with this id may still be applied.
func (p *paneState) current(id uint64) bool { return id == p.searchID }

// reset clears selection, stacks and caches, keeping the root scope.
func (p *paneState) reset() {
	p.searchID++
	p.debounce.cancel()
	p.selection = nil
	p.stack = nil
	p.browse = nil
	p.key = ""
	p.engine.Reset()
}

// selectedItem returns the selection as an Item, or nil.
func (p *paneState) selectedItem() catalog.Item {
	item, _ := p.selection.(catalog.Item)
	return item
}

// composed folds the selection and the multi-select stack into the
// single item handed to command execution.
func (p *paneState) composed() catalog.Item {
	sel := p.selectedItem()
	if len(p.stack) == 0 {
		return sel
	}
	items := make([]catalog.Item, 0, len(p.stack)+1)
	items = append(items, p.stack...)
	if sel != nil && !onStack(p.stack, sel) {
		items = append(items, sel)
	}
	return catalog.ComposeItems(items)
}

// stackPush stages the current selection for multi-select. No-op
// without a selection or when already staged.
func (p *paneState) stackPush() bool {
	sel := p.selectedItem()
	if sel == nil || onStack(p.stack, sel) {
		return false
	}
	p.stack = append(p.stack, sel)
	return true
}

// stackPop unstages the most recently staged item.
func (p *paneState) stackPop() bool {
	if len(p.stack) == 0 {
		return false
	}
	p.stack = p.stack[:len(p.stack)-1]
	return true
}

// stackClear drops the whole staging list.
func (p *paneState) stackClear() bool {
	if len(p.stack) == 0 {
		return false
	}
	p.stack = nil
	return true
}

// sweepStack drops staged items that went invalid. Reports whether
// anything was removed.
func (p *paneState) sweepStack() bool {
	kept := p.stack[:0]
	for _, it := range p.stack {
		if it.Valid() {
			kept = append(kept, it)
		}
	}
	changed := len(kept) != len(p.stack)
	p.stack = kept
	return changed
}

func onStack(stack []catalog.Item, item catalog.Item) bool {
	for _, it := range stack {
		if it.ID() == item.ID() {
			return true
		}
	}
	return false
}
