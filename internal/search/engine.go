package search

import (
	"context"
	"strings"

	"beacon/internal/catalog"
	"beacon/internal/learn"
	"beacon/internal/logging"
	"beacon/internal/rank"
)

// Source is one input to a search: exactly one of Provider, Text or
// Items is set. A literal Items slice is wrapped directly and never
// cached.
type Source struct {
	Provider catalog.Provider
	Text     catalog.TextProvider
	Items    []catalog.Item
}

// Options tune a single Search call.
type Options struct {
	// Score ranks and sorts results; without it sources are listed in
	// catalog order (used for empty-query browsing).
	Score bool
	// ItemFilter drops items before they enter the ranking pool.
	ItemFilter func(catalog.Item) bool
	// Decorator is applied lazily to each match as it is consumed,
	// e.g. to attach content providers.
	Decorator func(*Rankable) *Rankable
}

// Engine ranks catalog items for queries, keeping per-provider result
// lists cached as long as the query narrows monotonically: the cache
// is reused only when the new query is a case-insensitive extension of
// the previous one, since results for "ab" are a superset of results
// for "abc". Any other query drops the whole cache.
type Engine struct {
	metric   rank.Metric
	register *learn.Register

	cache  map[string][]*Rankable
	oldKey string

	// OnProviderError is invoked when a provider fetch fails; the
	// manager hooks quarantine in here. Errors never propagate to
	// callers of Search.
	OnProviderError func(catalog.Provider, error)

	log *logging.Logger
}

// NewEngine creates an engine scoring with metric and learning bonuses
// from register.
func NewEngine(metric rank.Metric, register *learn.Register) *Engine {
	return &Engine{
		metric:   metric,
		register: register,
		cache:    make(map[string][]*Rankable),
		log:      logging.For("search"),
	}
}

// Reset drops the prefix cache. Call when the pane's provider changes.
func (e *Engine) Reset() {
	e.cache = make(map[string][]*Rankable)
	e.oldKey = ""
}

// Search ranks the contents of sources against key and returns the
// best match plus a stream over all matches (including the first).
// Results are deduplicated by object identity, checked for validity at
// consumption time and decorated lazily.
func (e *Engine) Search(ctx context.Context, sources []Source, key string, opts Options) (*Rankable, *Stream) {
	keyl := strings.ToLower(key)

	if e.oldKey == "" || !strings.HasPrefix(keyl, e.oldKey) {
		e.cache = make(map[string][]*Rankable)
	}
	e.oldKey = keyl

	var lists [][]*Rankable
	for _, src := range sources {
		fixed := 0.0
		canCache := false
		cacheID := ""

		var rs []*Rankable
		switch {
		case src.Items != nil:
			rs = makeRankables(e.filterItems(src.Items, opts.ItemFilter), 0)

		case src.Text != nil:
			// Text providers get the raw query, case preserved.
			items := src.Text.Items(key)
			rs = makeRankables(e.filterItems(items, opts.ItemFilter), 0)
			fixed = float64(src.Text.Rank())

		case src.Provider != nil:
			cacheID = src.Provider.ID()
			if cached, ok := e.cache[cacheID]; ok {
				rs = cached
				canCache = true
			} else {
				items, err := src.Provider.Fetch(ctx, false)
				if err != nil {
					e.log.Warnw("provider fetch failed",
						"provider", src.Provider.ID(), "error", err)
					if e.OnProviderError != nil {
						e.OnProviderError(src.Provider, err)
					}
					continue
				}
				rs = makeRankables(e.filterItems(items, opts.ItemFilter), 0)
				canCache = !src.Provider.Dynamic()
			}

		default:
			continue
		}

		if opts.Score {
			if fixed != 0 {
				addFixedRank(rs, fixed)
			} else if keyl != "" {
				rs = scoreItems(rs, keyl, e.metric)
				addUsageBonus(rs, keyl, e.register, 0)
			}
			if canCache {
				e.cache[cacheID] = rs
			}
		}

		if len(rs) > 0 {
			lists = append(lists, rs)
		}
	}

	var merged []*Rankable
	if opts.Score {
		for _, l := range lists {
			sortDesc(l)
		}
		merged = mergeRanked(lists)
	} else {
		for _, l := range lists {
			merged = append(merged, l...)
		}
	}

	return peekFirst(streamOf(merged, opts.Decorator))
}

// RankCommands orders commands for a subject. With a query, commands
// are ranked by name similarity plus usage and correlation bonuses.
// With an empty query the learned formula orders default commands:
// positive bias (including a learned correlation) lifts a command into
// the 50+ band, negative bias sinks it below zero.
func (e *Engine) RankCommands(cmds []catalog.Command, key string, subject catalog.Item, decorator func(*Rankable) *Rankable) (*Rankable, *Stream) {
	rs := make([]*Rankable, 0, len(cmds))
	for _, c := range cmds {
		rs = append(rs, &Rankable{Value: c.Name(), Object: c, Rank: 0})
	}

	subjectID := ""
	if subject != nil {
		subjectID = subject.ID()
	}

	if key != "" {
		keyl := strings.ToLower(key)
		rs = scoreItems(rs, keyl, e.metric)
		for _, rb := range rs {
			cmd := rb.Object.(catalog.Command)
			rb.Rank += e.register.Score(cmd.ID(), keyl) + float64(cmd.RankBias())
			rb.Rank += e.register.CorrelationBonus(cmd.ID(), subjectID)
		}
	} else {
		for _, rb := range rs {
			cmd := rb.Object.(catalog.Command)
			bias := float64(cmd.RankBias()) + e.register.CorrelationBonus(cmd.ID(), subjectID)
			usage := e.register.Score(cmd.ID(), "")
			switch {
			case bias > 0:
				rb.Rank = 50 + bias + usage/2
			case bias == 0:
				rb.Rank = usage
			default:
				rb.Rank = -50 + bias + usage
			}
		}
	}

	sortDesc(rs)
	return peekFirst(streamOf(rs, decorator))
}

func (e *Engine) filterItems(items []catalog.Item, filter func(catalog.Item) bool) []catalog.Item {
	if filter == nil {
		return items
	}
	out := make([]catalog.Item, 0, len(items))
	for _, it := range items {
		if filter(it) {
			out = append(out, it)
		}
	}
	return out
}
