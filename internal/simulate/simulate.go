// Package simulate applies a tiered fee/volume scenario to a scored
// population and computes the resulting revenue versus baseline.
//
// The simulator is stateless and idempotent: running it twice with the same
// parameters on the same table produces identical output. It depends only on
// each account's tier assignment, never on its score value, and it either
// returns a full result or fails before any row is produced.
//
// All monetary values use shopspring/decimal — never float64 for money.
package simulate

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/merchrank/tier-engine/internal/model"
)

var (
	// FeeFloor is the minimum marketplace fee a scenario may set.
	FeeFloor = decimal.NewFromFloat(0.10)

	// FeeCap is the maximum marketplace fee a scenario may set.
	FeeCap = decimal.NewFromFloat(0.30)

	// FeeScale is the rounding precision applied to the raw proposed fee
	// before clamping. Without it, binary representation error produces
	// spurious cap flags: 0.27 + 0.03 landing at 0.30000000000000004 must
	// not read as over-cap.
	FeeScale int32 = 6

	// ErrInvalidParameter is returned when a scenario parameter is outside
	// its sane range. Raised before any row is processed, so results are
	// never partially computed.
	ErrInvalidParameter = errors.New("simulate: invalid parameter")
)

// TierParams is the fee and volume adjustment for one tier. FeeDelta is in
// fee-rate fraction points (−0.02 = −2pp); VolumeDelta is a fractional
// multiplier (0.20 = +20% trips).
type TierParams struct {
	FeeDelta    decimal.Decimal `json:"fee_delta"`
	VolumeDelta decimal.Decimal `json:"volume_delta"`
}

// Params is the full 8-scalar scenario: one TierParams per tier. It is the
// only mutable state of the system, and it is explicit — the simulator holds
// nothing between invocations.
type Params struct {
	S TierParams `json:"s"`
	A TierParams `json:"a"`
	B TierParams `json:"b"`
	C TierParams `json:"c"`
}

// DefaultParams returns the documented default scenario:
// S −2pp/+20%, A −0.5pp/+10%, B +2pp/−5%, C +3pp/−15%.
func DefaultParams() Params {
	return Params{
		S: TierParams{FeeDelta: decimal.NewFromFloat(-0.02), VolumeDelta: decimal.NewFromFloat(0.20)},
		A: TierParams{FeeDelta: decimal.NewFromFloat(-0.005), VolumeDelta: decimal.NewFromFloat(0.10)},
		B: TierParams{FeeDelta: decimal.NewFromFloat(0.02), VolumeDelta: decimal.NewFromFloat(-0.05)},
		C: TierParams{FeeDelta: decimal.NewFromFloat(0.03), VolumeDelta: decimal.NewFromFloat(-0.15)},
	}
}

// ForTier returns the parameters for one tier.
func (p Params) ForTier(t model.Tier) TierParams {
	switch t {
	case model.TierS:
		return p.S
	case model.TierA:
		return p.A
	case model.TierB:
		return p.B
	default:
		return p.C
	}
}

// Validate checks every parameter against its sane range:
// fee deltas within [−1, 1], volume deltas strictly greater than −1
// (a delta of −1.0 or below would zero out or negate trip volume).
func (p Params) Validate() error {
	one := decimal.NewFromInt(1)
	negOne := one.Neg()
	for _, t := range model.Tiers {
		tp := p.ForTier(t)
		if tp.FeeDelta.LessThan(negOne) || tp.FeeDelta.GreaterThan(one) {
			return fmt.Errorf("%w: tier %s fee delta %s outside [-1,1]",
				ErrInvalidParameter, t, tp.FeeDelta)
		}
		if tp.VolumeDelta.LessThanOrEqual(negOne) {
			return fmt.Errorf("%w: tier %s volume delta %s would drive volume to or below zero",
				ErrInvalidParameter, t, tp.VolumeDelta)
		}
	}
	return nil
}

// Result is the full simulator output: per-account rows, per-tier
// aggregates, and population totals.
type Result struct {
	Rows      []model.SimulatedAccount `json:"rows"`
	Tiers     []model.TierSummary      `json:"tiers"`
	Baseline  decimal.Decimal          `json:"baseline_revenue"`
	Proposed  decimal.Decimal          `json:"proposed_revenue"`
	Delta     decimal.Decimal          `json:"revenue_delta"`
	DeltaPct  decimal.Decimal          `json:"revenue_delta_pct"`
	ZeroBase  bool                     `json:"zero_baseline"`
	Capped    int                      `json:"capped_count"`
	Floored   int                      `json:"floored_count"`
	BaseTrips decimal.Decimal          `json:"baseline_trips"`
	NewTrips  decimal.Decimal          `json:"proposed_trips"`

	// VolumeChangePct is the trip-weighted overall volume change:
	// (Σ proposed − Σ baseline trips) / Σ baseline trips × 100.
	VolumeChangePct decimal.Decimal `json:"volume_change_pct"`
}

// Run applies a scenario to the scored table. The input slice is not
// mutated; each row of the result carries its own copy.
func Run(scored []model.ScoredAccount, p Params) (*Result, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}

	one := decimal.NewFromInt(1)
	hundred := decimal.NewFromInt(100)

	res := &Result{Rows: make([]model.SimulatedAccount, len(scored))}
	byTier := make(map[model.Tier]*model.TierSummary, len(model.Tiers))
	for _, t := range model.Tiers {
		byTier[t] = &model.TierSummary{Tier: t}
	}

	for i, acct := range scored {
		tp := p.ForTier(acct.Tier)
		row := model.SimulatedAccount{ScoredAccount: acct}

		// Baseline is recomputed from the three stored inputs: it is the
		// reconciliation invariant between ingestion and simulation.
		row.BaselineRevenue = acct.AnnualTrips.Mul(acct.BasketSize).Mul(acct.FeeRate)

		// Round the intended fee before clamping; flag only strict
		// overshoot, so a fee landing exactly on a bound reads as
		// "coincidentally at the limit", not "constrained by it".
		rawFee := acct.FeeRate.Add(tp.FeeDelta).Round(FeeScale)
		row.FeeCapped = rawFee.GreaterThan(FeeCap)
		row.FeeFloored = rawFee.LessThan(FeeFloor)
		row.ProposedFee = clampFee(rawFee)
		row.FeeDirection = direction(tp.FeeDelta)

		row.ProposedTrips = acct.AnnualTrips.Mul(one.Add(tp.VolumeDelta))
		row.ProposedRevenue = row.ProposedTrips.Mul(acct.BasketSize).Mul(row.ProposedFee)
		row.RevenueDelta = row.ProposedRevenue.Sub(row.BaselineRevenue)
		if row.BaselineRevenue.IsZero() {
			row.ZeroBaseline = true
		} else {
			row.RevenueDeltaPct = row.RevenueDelta.Div(row.BaselineRevenue).Mul(hundred)
		}
		res.Rows[i] = row

		ts := byTier[acct.Tier]
		ts.Count++
		ts.BaselineRevenue = ts.BaselineRevenue.Add(row.BaselineRevenue)
		ts.ProposedRevenue = ts.ProposedRevenue.Add(row.ProposedRevenue)
		ts.BaselineTrips = ts.BaselineTrips.Add(acct.AnnualTrips)
		ts.ProposedTrips = ts.ProposedTrips.Add(row.ProposedTrips)
		if row.FeeCapped {
			ts.CappedCount++
		}
		if row.FeeFloored {
			ts.FlooredCount++
		}
	}

	for _, t := range model.Tiers {
		ts := byTier[t]
		ts.RevenueDelta = ts.ProposedRevenue.Sub(ts.BaselineRevenue)
		if !ts.BaselineRevenue.IsZero() {
			ts.RevenueDeltaPct = ts.RevenueDelta.Div(ts.BaselineRevenue).Mul(hundred)
		}
		res.Tiers = append(res.Tiers, *ts)

		res.Baseline = res.Baseline.Add(ts.BaselineRevenue)
		res.Proposed = res.Proposed.Add(ts.ProposedRevenue)
		res.BaseTrips = res.BaseTrips.Add(ts.BaselineTrips)
		res.NewTrips = res.NewTrips.Add(ts.ProposedTrips)
		res.Capped += ts.CappedCount
		res.Floored += ts.FlooredCount
	}

	res.Delta = res.Proposed.Sub(res.Baseline)
	if res.Baseline.IsZero() {
		res.ZeroBase = true
	} else {
		res.DeltaPct = res.Delta.Div(res.Baseline).Mul(hundred)
	}
	if !res.BaseTrips.IsZero() {
		res.VolumeChangePct = res.NewTrips.Sub(res.BaseTrips).Div(res.BaseTrips).Mul(hundred)
	}
	return res, nil
}

// ProjectMarketShare applies the linear market-share projection:
//
//	share_new = share_baseline × (1 + volumeChangePct/100)
//
// The formula is a business-policy constant supplied by the caller's
// baseline, not derived here.
func ProjectMarketShare(baselineShare, volumeChangePct decimal.Decimal) decimal.Decimal {
	one := decimal.NewFromInt(1)
	hundred := decimal.NewFromInt(100)
	return baselineShare.Mul(one.Add(volumeChangePct.Div(hundred)))
}

func clampFee(fee decimal.Decimal) decimal.Decimal {
	if fee.LessThan(FeeFloor) {
		return FeeFloor
	}
	if fee.GreaterThan(FeeCap) {
		return FeeCap
	}
	return fee
}

func direction(feeDelta decimal.Decimal) string {
	switch {
	case feeDelta.IsPositive():
		return "up"
	case feeDelta.IsNegative():
		return "down"
	default:
		return "flat"
	}
}
