package rank

import (
	"strings"

	"github.com/sahilm/fuzzy"
)

// FuzzyMetric scores with github.com/sahilm/fuzzy instead of the
// substring scorer. Selectable via the scoring.metric config key.
//
// The library returns an unbounded integer score, so it is squashed
// into [0,1] with exact matches pinned to 1.0 to keep the Metric
// contract's ordering properties.
type FuzzyMetric struct{}

func (FuzzyMetric) Score(candidate, query string) float64 {
	if query == "" {
		return 1.0
	}
	if strings.EqualFold(candidate, query) {
		return 1.0
	}
	matches := fuzzy.Find(query, []string{candidate})
	if len(matches) == 0 {
		return 0.0
	}
	score := matches[0].Score
	if score < 0 {
		return 0.0
	}
	// Asymptotic squash; longer aligned runs approach but never
	// reach the exact-match band.
	return 0.9 * float64(score) / float64(score+len(candidate))
}

// MetricByName resolves a configured metric name, defaulting to the
// substring scorer.
func MetricByName(name string) Metric {
	if name == "fuzzy" {
		return FuzzyMetric{}
	}
	return SubstringMetric{}
}
