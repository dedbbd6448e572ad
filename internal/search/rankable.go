// Package search implements the ranking engine: it turns provider
// contents into ranked, deduplicated, lazily validated match streams,
// with a short-lived prefix cache per query.
package search

import (
	"sort"

	"beacon/internal/catalog"
	"beacon/internal/learn"
	"beacon/internal/rank"
)

// aliasWeight discounts alias matches slightly so the display name is
// preferred when the scores are close.
const aliasWeight = 0.95

// pruneRank is the cutoff below which a scored candidate is dropped
// from the result pool entirely.
const pruneRank = 10

// Rankable is an ephemeral (object, rank, matched string) triple
// created per search call and discarded after consumption.
type Rankable struct {
	// Value is the string the query matched: the display name, or the
	// alias that outranked it.
	Value  string
	Object catalog.Object
	Rank   float64
}

func makeRankables(items []catalog.Item, r float64) []*Rankable {
	out := make([]*Rankable, 0, len(items))
	for _, it := range items {
		out = append(out, &Rankable{Value: it.Name(), Object: it, Rank: r})
	}
	return out
}

// scoreItems ranks rs against key (already lowercased) and prunes weak
// candidates. Aliases and the name's abbreviation are considered when
// the name itself does not match well; a winning alias replaces Value.
func scoreItems(rs []*Rankable, key string, metric rank.Metric) []*Rankable {
	out := rs[:0]
	for _, rb := range rs {
		// A cached list may carry an alias substituted by the previous
		// pass; scoring always starts from the display name.
		rb.Value = rb.Object.Name()
		score := 100 * metric.Score(rb.Value, key)
		if score < 90 {
			if item, ok := rb.Object.(catalog.Item); ok {
				if abbrev := rank.Abbreviation(rb.Value); len(abbrev) > 1 {
					if s := 100 * metric.Score(abbrev, key); s > score {
						score = s
					}
				}
				for _, alias := range item.Aliases() {
					if s := 100 * aliasWeight * metric.Score(alias, key); s > score {
						rb.Value = alias
						score = s
					}
				}
			}
		}
		rb.Rank = score
		if rb.Rank > pruneRank {
			out = append(out, rb)
		}
	}
	return out
}

// addUsageBonus adds the learned usage score for key, plus extra, to
// every rankable.
func addUsageBonus(rs []*Rankable, key string, reg *learn.Register, extra float64) {
	for _, rb := range rs {
		rb.Rank += reg.Score(rb.Object.ID(), key) + extra
	}
}

// addFixedRank raises every rankable by a text provider's fixed bias.
func addFixedRank(rs []*Rankable, r float64) {
	for _, rb := range rs {
		rb.Rank += r
	}
}

// sortDesc orders rs by descending rank, keeping input order on ties.
func sortDesc(rs []*Rankable) {
	sort.SliceStable(rs, func(i, j int) bool { return rs[i].Rank > rs[j].Rank })
}

// mergeRanked merges per-source descending-rank lists into one
// descending stream. On rank ties the earlier source wins, so
// per-source ordering stays stable.
func mergeRanked(lists [][]*Rankable) []*Rankable {
	total := 0
	for _, l := range lists {
		total += len(l)
	}
	out := make([]*Rankable, 0, total)
	heads := make([]int, len(lists))
	for len(out) < total {
		best := -1
		for i, l := range lists {
			if heads[i] >= len(l) {
				continue
			}
			if best == -1 || l[heads[i]].Rank > lists[best][heads[best]].Rank {
				best = i
			}
		}
		out = append(out, lists[best][heads[best]])
		heads[best]++
	}
	return out
}

// Stream is a pull iterator over match results. The first element
// returned by a search is replayed by its stream, so nothing is
// computed twice.
type Stream struct {
	next func() (*Rankable, bool)
}

// Next returns the next match, or false when exhausted.
func (s *Stream) Next() (*Rankable, bool) {
	if s == nil || s.next == nil {
		return nil, false
	}
	return s.next()
}

// Collect drains up to limit matches (all of them when limit <= 0).
func (s *Stream) Collect(limit int) []*Rankable {
	var out []*Rankable
	for {
		rb, ok := s.Next()
		if !ok {
			return out
		}
		out = append(out, rb)
		if limit > 0 && len(out) >= limit {
			return out
		}
	}
}

// streamOf builds a Stream over rs applying dedup by object identity
// (first occurrence wins), the validity check at consumption time, and
// the decorator, in that order.
func streamOf(rs []*Rankable, decorate func(*Rankable) *Rankable) *Stream {
	seen := make(map[string]bool)
	i := 0
	return &Stream{next: func() (*Rankable, bool) {
		for i < len(rs) {
			rb := rs[i]
			i++
			id := rb.Object.ID()
			if seen[id] {
				continue
			}
			seen[id] = true
			if item, ok := rb.Object.(catalog.Item); ok && !item.Valid() {
				continue
			}
			if decorate != nil {
				rb = decorate(rb)
			}
			return rb, true
		}
		return nil, false
	}}
}

// peekFirst pulls the first element of s and returns it along with a
// stream that replays it before continuing with the rest.
func peekFirst(s *Stream) (*Rankable, *Stream) {
	first, ok := s.Next()
	if !ok {
		return nil, &Stream{}
	}
	replayed := false
	return first, &Stream{next: func() (*Rankable, bool) {
		if !replayed {
			replayed = true
			return first, true
		}
		return s.Next()
	}}
}
