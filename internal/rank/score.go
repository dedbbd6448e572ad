// Package rank holds the pure scoring primitives: string similarity
// metrics and the relevance formula the search engine builds on.
package rank

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// Metric scores how well a candidate string matches a query, in [0,1].
// The candidate is matched case-insensitively; the query is expected to
// be lowercased by the caller. Any monotonic similarity works here as
// long as exact matches score 1.0.
type Metric interface {
	Score(candidate, query string) float64
}

// SubstringMetric is the default metric: shortest-substring matching
// with word-start and prefix bonuses. Perfect (contiguous) matches land
// in the 0.9-1.0 band so they always outrank split matches.
type SubstringMetric struct{}

func (SubstringMetric) Score(candidate, query string) float64 {
	if len(query) == 1 {
		return ScoreSingle(candidate, query)
	}
	return Score(candidate, query)
}

// Score computes the relevancy of query against s.
func Score(s, query string) float64 {
	if query == "" {
		return 1.0
	}

	s = strings.ToLower(s)
	if s == query {
		return 1.0
	}

	first, last := findBestMatch(s, query)
	if first == -1 {
		return 0.0
	}

	queryLen := len(query)
	score := float64(queryLen) / float64(last-first)

	// Weight by string length so shorter strings win.
	score *= 0.7 + float64(queryLen)/float64(len(s))*0.3

	// Bonus points when matched characters start words.
	bad := 1
	firstCount := 0
	for i := first; i < last-1; i++ {
		if strings.ContainsRune(" -.([_", rune(s[i])) {
			if strings.IndexByte(query, s[i+1]) >= 0 {
				firstCount++
			} else {
				bad++
			}
		}
	}

	// A first character match counts extra.
	if query[0] == s[0] {
		firstCount += 2
	}

	// The longer the acronym, the better it scores.
	good := firstCount * firstCount * 4

	if first == 0 {
		good += 2
	}

	score = (score + 3*float64(good)/float64(good+bad)) / 4

	// Contiguous matches get the 0.9-1.0 band, split matches stay below.
	if last-first == queryLen {
		return 0.9 + 0.1*score
	}
	return 0.9 * score
}

// ScoreSingle is the single-character approximation of Score.
func ScoreSingle(s, query string) float64 {
	s = strings.ToLower(s)
	first := strings.Index(s, query)
	if first == -1 {
		return 0.0
	}
	if first == 0 {
		return 0.97 + 0.025/float64(len(s))
	}
	return 0.9 + 0.025/float64(len(s))
}

// findBestMatch locates the shortest substring of s containing all
// characters of query in order. Returns (-1, -1) when there is none.
func findBestMatch(s, query string) (int, int) {
	lastChar := strings.LastIndexByte(s, query[len(query)-1])
	if lastChar == -1 {
		return -1, -1
	}

	queryLen := len(query)
	bestStart, bestEnd := -1, -1
	lastIndex := lastChar - queryLen + 1

	index := strings.IndexByte(s, query[0])
	for index >= 0 && index <= lastIndex {
		// The first char matches; try to fit the rest in the tail.
		cur := index + 1
		for qcur := 1; qcur < queryLen; qcur++ {
			rel := strings.IndexByte(s[cur:lastChar+1], query[qcur])
			if rel == -1 {
				return bestStart, bestEnd
			}
			cur += rel + 1
		}

		if bestStart == -1 || cur-index < bestEnd-bestStart {
			bestStart, bestEnd = index, cur
			if cur-index == queryLen {
				break
			}
		}

		next := strings.IndexByte(s[index+1:], query[0])
		if next == -1 {
			break
		}
		index += next + 1
	}

	return bestStart, bestEnd
}

// Abbreviation returns the first letters of each whitespace-delimited
// word, lowercased, e.g. "Text Editor" -> "te".
func Abbreviation(name string) string {
	var b strings.Builder
	for _, word := range strings.Fields(name) {
		r, _ := utf8.DecodeRuneInString(word)
		b.WriteRune(unicode.ToLower(r))
	}
	return b.String()
}
