// Package rank implements the two ordering primitives the scoring model is
// built on: an inclusive percentile rank over a numeric column, and standard
// competition ranking over composite scores.
//
// The percentile rank follows the spreadsheet PERCENTRANK.INC convention:
//
//	rank(v) = |{x in population : x ≤ v}| / N
//
// Ties share the same percentile. The convention is deliberately asymmetric:
// a column where every value is equal maps every element to 1.0, and a unique
// minimum maps to 1/N, not 0. Percentile math runs in float64 — scores are
// converted to decimal only after the points multiplication, mirroring how
// monetary values stay in decimal everywhere else.
package rank

import (
	"errors"
	"math"
	"sort"

	"github.com/shopspring/decimal"
)

var (
	// ErrEmptyColumn is returned when a percentile rank is requested over
	// zero values.
	ErrEmptyColumn = errors.New("rank: column must contain at least one value")

	// ErrNotFinite is returned when a column contains NaN or ±Inf.
	ErrNotFinite = errors.New("rank: column contains a non-finite value")
)

// PercentileRank maps each value of a column to its inclusive percentile
// rank in (0, 1]. Robust to heavy right-skew: only order matters, so a few
// dominant values cannot crush the rest of the scale.
//
// Complexity: O(N log N) — one sort of a copy, then a binary search per
// element. The naive per-element counting loop is O(N²) and only tolerable
// for populations in the low hundreds; this implementation stays linearithmic
// so the primitive is not the bottleneck if the population grows.
func PercentileRank(values []float64) ([]float64, error) {
	n := len(values)
	if n == 0 {
		return nil, ErrEmptyColumn
	}
	for _, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, ErrNotFinite
		}
	}

	sorted := make([]float64, n)
	copy(sorted, values)
	sort.Float64s(sorted)

	ranks := make([]float64, n)
	for i, v := range values {
		// Upper bound: first index with sorted[j] > v, which equals
		// the count of values ≤ v.
		countLE := sort.Search(n, func(j int) bool { return sorted[j] > v })
		ranks[i] = float64(countLE) / float64(n)
	}
	return ranks, nil
}

// CompetitionRank assigns standard competition ranks ("1224" ranking)
// to totals, descending: the highest total gets rank 1, equal totals share
// the lowest rank number of their tie group, and the next distinct total
// skips ahead by the tie-group size.
//
// Totals must already be rounded to display precision — ranking on the
// rounded value guarantees two accounts shown with the same score can never
// carry different ranks.
func CompetitionRank(totals []decimal.Decimal) []int {
	n := len(totals)
	if n == 0 {
		return nil
	}

	order := make([]int, n)
	for i := range order {
		order[i] = i
	}
	// Stable so equal totals keep input order; their ranks are equal anyway.
	sort.SliceStable(order, func(a, b int) bool {
		return totals[order[a]].GreaterThan(totals[order[b]])
	})

	ranks := make([]int, n)
	for pos, idx := range order {
		if pos > 0 && totals[idx].Equal(totals[order[pos-1]]) {
			ranks[idx] = ranks[order[pos-1]]
			continue
		}
		ranks[idx] = pos + 1
	}
	return ranks
}
