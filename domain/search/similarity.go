package search

import (
	"math"
	"sort"
)

// CosineSimilarity computes the cosine similarity between two vectors.
// Returns a value between -1 (opposite) and 1 (identical).
// Returns 0 if the lengths differ or either vector has zero magnitude.
func CosineSimilarity(a, b []float64) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dot, magA, magB float64
	for i := range a {
		dot += a[i] * b[i]
		magA += a[i] * a[i]
		magB += b[i] * b[i]
	}

	if magA == 0 || magB == 0 {
		return 0
	}

	return dot / (math.Sqrt(magA) * math.Sqrt(magB))
}

// TopK scores entries against the query, drops those rejected by filters
// and returns up to k matches by descending score. Equal scores keep the
// order of entries.
func TopK(query []float64, entries []Entry, k int, filters Filters) []Match {
	if len(entries) == 0 || k <= 0 {
		return []Match{}
	}

	matches := make([]Match, 0, len(entries))
	for _, e := range entries {
		if !filters.Matches(e.metadata) {
			continue
		}
		matches = append(matches, NewMatch(e.id, CosineSimilarity(query, e.vector), e.metadata))
	}

	SortMatches(matches)

	if k > len(matches) {
		k = len(matches)
	}
	return matches[:k]
}

// SortMatches orders matches by descending score, keeping the relative
// order of equal scores.
func SortMatches(matches []Match) {
	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].score > matches[j].score
	})
}
