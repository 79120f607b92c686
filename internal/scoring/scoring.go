// Package scoring converts raw merchant metrics into a 0–100 composite
// score, a competition rank, and a rank-based tier assignment.
//
// The model is percentile-rank based so that a heavily right-skewed trip
// distribution cannot dominate the scale: every factor contributes only its
// ordering, scaled by a fixed point allocation.
//
//	Volume     35 pts  PercentileRank(annual trips) × 35
//	Wait time  18 pts  (1 − PercentileRank(wait)) × 18     — lower is better
//	Defect     12 pts  (1 − PercentileRank(defect)) × 12   — lower is better
//	Economics  35 pts  PercentileRank(basket × fee) × 35
//
// The economics input is revenue per order under the *current* fee. It
// deliberately excludes any simulated fee so scoring can never be influenced
// by the fee changes it is used to justify.
package scoring

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/merchrank/tier-engine/internal/model"
	"github.com/merchrank/tier-engine/internal/rank"
)

// Point allocations. These must sum to 100.
var (
	VolumePoints    = decimal.NewFromInt(35)
	WaitPoints      = decimal.NewFromInt(18)
	DefectPoints    = decimal.NewFromInt(12)
	EconomicsPoints = decimal.NewFromInt(35)
)

// ScoreScale is the number of decimal places scores are rounded to.
// Ranking is performed on the rounded totals, so two accounts displayed
// with the same score always share a rank.
const ScoreScale int32 = 2

// Tier cut lines: rank positions, fixed regardless of score distribution.
const (
	TierSCut = 10
	TierACut = 50
	TierBCut = 150
)

// ErrInvalidInput is returned when a required input metric is missing,
// negative, non-finite, or out of range. The wrapped message names the
// offending field. Inputs are never silently coerced.
var ErrInvalidInput = errors.New("scoring: invalid input")

// Score produces the scored, ranked, and tiered table for the whole
// population. Pure: the argument is never mutated and the result is a new
// slice. Fails before producing any output if any account carries an
// invalid metric.
func Score(accounts []model.Account) ([]model.ScoredAccount, error) {
	if len(accounts) == 0 {
		return nil, fmt.Errorf("%w: empty population", ErrInvalidInput)
	}
	for i, a := range accounts {
		if err := validate(a); err != nil {
			return nil, fmt.Errorf("%w (account %q, row %d)", err, a.Name, i)
		}
	}

	n := len(accounts)
	trips := make([]float64, n)
	waits := make([]float64, n)
	defects := make([]float64, n)
	revPerOrder := make([]float64, n)
	for i, a := range accounts {
		trips[i] = a.AnnualTrips.InexactFloat64()
		waits[i] = a.WaitMinutes
		defects[i] = a.DefectRate
		revPerOrder[i] = a.BasketSize.Mul(a.FeeRate).InexactFloat64()
	}

	tripPR, err := rank.PercentileRank(trips)
	if err != nil {
		return nil, fmt.Errorf("%w: annual_trips: %v", ErrInvalidInput, err)
	}
	waitPR, err := rank.PercentileRank(waits)
	if err != nil {
		return nil, fmt.Errorf("%w: wait_minutes: %v", ErrInvalidInput, err)
	}
	defectPR, err := rank.PercentileRank(defects)
	if err != nil {
		return nil, fmt.Errorf("%w: defect_rate: %v", ErrInvalidInput, err)
	}
	econPR, err := rank.PercentileRank(revPerOrder)
	if err != nil {
		return nil, fmt.Errorf("%w: revenue per order: %v", ErrInvalidInput, err)
	}

	scored := make([]model.ScoredAccount, n)
	totals := make([]decimal.Decimal, n)
	for i, a := range accounts {
		s := model.ScoredAccount{Account: a}
		s.VolumeScore = points(tripPR[i], VolumePoints)
		s.WaitScore = points(1-waitPR[i], WaitPoints)
		s.DefectScore = points(1-defectPR[i], DefectPoints)
		s.EconomicsScore = points(econPR[i], EconomicsPoints)
		s.TotalScore = s.VolumeScore.
			Add(s.WaitScore).
			Add(s.DefectScore).
			Add(s.EconomicsScore).
			Round(ScoreScale)
		s.Segment = model.SegmentFor(a.ActiveLocations)
		scored[i] = s
		totals[i] = s.TotalScore
	}

	for i, r := range rank.CompetitionRank(totals) {
		scored[i].Rank = r
		scored[i].Tier = TierForRank(r)
	}
	return scored, nil
}

// TierForRank maps a rank position to its tier against the fixed cut lines.
// Independent of population size except that tier C extends to N.
func TierForRank(r int) model.Tier {
	switch {
	case r <= TierSCut:
		return model.TierS
	case r <= TierACut:
		return model.TierA
	case r <= TierBCut:
		return model.TierB
	default:
		return model.TierC
	}
}

// TopN returns the n best-ranked accounts (all of them if n ≥ len),
// ordered by rank.
func TopN(scored []model.ScoredAccount, n int) []model.ScoredAccount {
	out := make([]model.ScoredAccount, len(scored))
	copy(out, scored)
	sort.SliceStable(out, func(a, b int) bool { return out[a].Rank < out[b].Rank })
	if n < len(out) {
		out = out[:n]
	}
	return out
}

// points converts a percentile fraction into a sub-score bounded by its
// point allocation, rounded to score precision.
func points(fraction float64, alloc decimal.Decimal) decimal.Decimal {
	return decimal.NewFromFloat(fraction).Mul(alloc).Round(ScoreScale)
}

func validate(a model.Account) error {
	one := decimal.NewFromInt(1)
	switch {
	case a.AnnualTrips.IsNegative():
		return fmt.Errorf("%w: annual_trips is negative", ErrInvalidInput)
	case a.BasketSize.IsNegative():
		return fmt.Errorf("%w: basket_size is negative", ErrInvalidInput)
	case a.FeeRate.IsNegative() || a.FeeRate.GreaterThanOrEqual(one):
		return fmt.Errorf("%w: fee_rate outside [0,1)", ErrInvalidInput)
	case math.IsNaN(a.WaitMinutes) || math.IsInf(a.WaitMinutes, 0) || a.WaitMinutes < 0:
		return fmt.Errorf("%w: wait_minutes is negative or not finite", ErrInvalidInput)
	case math.IsNaN(a.DefectRate) || a.DefectRate < 0 || a.DefectRate > 1:
		return fmt.Errorf("%w: defect_rate outside [0,1]", ErrInvalidInput)
	case a.ActiveLocations < 0:
		return fmt.Errorf("%w: active_locations is negative", ErrInvalidInput)
	}
	return nil
}
