package simulate

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/merchrank/tier-engine/internal/model"
	"github.com/merchrank/tier-engine/internal/scoring"
)

func d(f float64) decimal.Decimal {
	return decimal.NewFromFloat(f)
}

// scoredAcct builds a ScoredAccount with only the fields the simulator
// reads: tier plus the three revenue inputs. The simulator must depend on
// the tier assignment, never the score values, so scores stay zero here.
func scoredAcct(name string, tier model.Tier, trips, basket, fee float64) model.ScoredAccount {
	return model.ScoredAccount{
		Account: model.Account{
			Name:        name,
			AnnualTrips: d(trips),
			BasketSize:  d(basket),
			FeeRate:     d(fee),
		},
		Tier: tier,
	}
}

func zeroParams() Params {
	return Params{} // all deltas zero
}

// --- Params tests ---

func TestDefaultParams(t *testing.T) {
	p := DefaultParams()
	tests := []struct {
		tier    model.Tier
		fee     float64
		volume  float64
	}{
		{model.TierS, -0.02, 0.20},
		{model.TierA, -0.005, 0.10},
		{model.TierB, 0.02, -0.05},
		{model.TierC, 0.03, -0.15},
	}
	for _, tt := range tests {
		tp := p.ForTier(tt.tier)
		if !tp.FeeDelta.Equal(d(tt.fee)) {
			t.Errorf("tier %s fee delta = %s, want %v", tt.tier, tp.FeeDelta, tt.fee)
		}
		if !tp.VolumeDelta.Equal(d(tt.volume)) {
			t.Errorf("tier %s volume delta = %s, want %v", tt.tier, tp.VolumeDelta, tt.volume)
		}
	}
	if err := p.Validate(); err != nil {
		t.Errorf("default params should validate, got %v", err)
	}
}

func TestValidate_RejectsVolumeDeltaAtOrBelowMinusOne(t *testing.T) {
	for _, bad := range []float64{-1.0, -1.5, -100} {
		p := DefaultParams()
		p.B.VolumeDelta = d(bad)
		err := p.Validate()
		if !errors.Is(err, ErrInvalidParameter) {
			t.Fatalf("volume delta %v: expected ErrInvalidParameter, got %v", bad, err)
		}
		if !strings.Contains(err.Error(), "tier B") {
			t.Errorf("error should name the tier: %v", err)
		}
	}
}

func TestValidate_RejectsFeeDeltaOutsideSanityBound(t *testing.T) {
	p := DefaultParams()
	p.C.FeeDelta = d(1.5)
	if err := p.Validate(); !errors.Is(err, ErrInvalidParameter) {
		t.Fatalf("expected ErrInvalidParameter, got %v", err)
	}

	p = DefaultParams()
	p.S.FeeDelta = d(-1.01)
	if err := p.Validate(); !errors.Is(err, ErrInvalidParameter) {
		t.Fatalf("expected ErrInvalidParameter, got %v", err)
	}
}

func TestRun_InvalidParamsProduceNoOutput(t *testing.T) {
	p := DefaultParams()
	p.A.VolumeDelta = d(-1.5)

	res, err := Run([]model.ScoredAccount{scoredAcct("m", model.TierA, 1000, 25, 0.2)}, p)
	if !errors.Is(err, ErrInvalidParameter) {
		t.Fatalf("expected ErrInvalidParameter, got %v", err)
	}
	if res != nil {
		t.Error("result must be nil when parameters are invalid")
	}
}

// --- Row-level behavior ---

func TestRun_ZeroDeltasReproduceBaselineExactly(t *testing.T) {
	scored := []model.ScoredAccount{
		scoredAcct("s", model.TierS, 120000, 32.50, 0.22),
		scoredAcct("a", model.TierA, 80000, 18.75, 0.25),
		scoredAcct("b", model.TierB, 40000, 22.10, 0.18),
		scoredAcct("c", model.TierC, 9000, 15.00, 0.30),
	}

	res, err := Run(scored, zeroParams())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, row := range res.Rows {
		if !row.ProposedRevenue.Equal(row.BaselineRevenue) {
			t.Errorf("%s: proposed %s != baseline %s under zero deltas",
				row.Name, row.ProposedRevenue, row.BaselineRevenue)
		}
		if !row.RevenueDelta.IsZero() {
			t.Errorf("%s: delta %s, want 0", row.Name, row.RevenueDelta)
		}
		if row.FeeCapped || row.FeeFloored {
			t.Errorf("%s: no bound flags expected under zero deltas", row.Name)
		}
		if row.FeeDirection != "flat" {
			t.Errorf("%s: direction %q, want flat", row.Name, row.FeeDirection)
		}
	}
	if !res.Delta.IsZero() {
		t.Errorf("total delta %s, want 0", res.Delta)
	}
	if !res.VolumeChangePct.IsZero() {
		t.Errorf("volume change %s, want 0", res.VolumeChangePct)
	}
}

func TestRun_BaselineRecomputedFromInputs(t *testing.T) {
	scored := []model.ScoredAccount{scoredAcct("m", model.TierB, 50000, 24.80, 0.21)}

	res, err := Run(scored, DefaultParams())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := d(50000).Mul(d(24.80)).Mul(d(0.21))
	if !res.Rows[0].BaselineRevenue.Equal(want) {
		t.Errorf("baseline %s, want %s", res.Rows[0].BaselineRevenue, want)
	}
}

func TestRun_CapFlagOnlyOnStrictOvershoot(t *testing.T) {
	p := zeroParams()
	p.C.FeeDelta = d(0.03)
	p.B.FeeDelta = d(0.01)

	scored := []model.ScoredAccount{
		// 0.28 + 0.03 = 0.31 → clamped to 0.30, flagged.
		scoredAcct("over", model.TierC, 1000, 20, 0.28),
		// 0.29 + 0.01 = 0.30 exactly → at the bound, NOT flagged.
		scoredAcct("exact", model.TierB, 1000, 20, 0.29),
	}

	res, err := Run(scored, p)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	over := res.Rows[0]
	if !over.FeeCapped {
		t.Error("0.28+0.03 must be flagged capped")
	}
	if !over.ProposedFee.Equal(d(0.30)) {
		t.Errorf("capped fee = %s, want 0.30", over.ProposedFee)
	}

	exact := res.Rows[1]
	if exact.FeeCapped {
		t.Error("0.29+0.01 lands exactly on the cap and must not be flagged")
	}
	if !exact.ProposedFee.Equal(d(0.30)) {
		t.Errorf("exact-bound fee = %s, want 0.30", exact.ProposedFee)
	}
}

func TestRun_CapNotTrippedAtExactSum(t *testing.T) {
	// 0.27 + 0.03 lands exactly on the cap; the float64-converted inputs
	// must not read as over-cap after rounding.
	p := zeroParams()
	p.C.FeeDelta = decimal.NewFromFloat(0.03)

	res, err := Run([]model.ScoredAccount{scoredAcct("m", model.TierC, 1000, 20, 0.27)}, p)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Rows[0].FeeCapped {
		t.Error("0.27+0.03 must not be flagged capped")
	}
	if !res.Rows[0].ProposedFee.Equal(d(0.30)) {
		t.Errorf("proposed fee = %s, want 0.30", res.Rows[0].ProposedFee)
	}
}

func TestRun_FloorFlagOnlyOnStrictUndershoot(t *testing.T) {
	p := zeroParams()
	p.S.FeeDelta = d(-0.05)

	scored := []model.ScoredAccount{
		// 0.12 − 0.05 = 0.07 → floored.
		scoredAcct("under", model.TierS, 1000, 20, 0.12),
		// 0.15 − 0.05 = 0.10 exactly → at the bound, NOT flagged.
		scoredAcct("exact", model.TierS, 1000, 20, 0.15),
	}

	res, err := Run(scored, p)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	under := res.Rows[0]
	if !under.FeeFloored {
		t.Error("0.12-0.05 must be flagged floored")
	}
	if !under.ProposedFee.Equal(d(0.10)) {
		t.Errorf("floored fee = %s, want 0.10", under.ProposedFee)
	}

	exact := res.Rows[1]
	if exact.FeeFloored {
		t.Error("0.15-0.05 lands exactly on the floor and must not be flagged")
	}
}

func TestRun_FlagsMutuallyExclusive(t *testing.T) {
	res, err := Run(fixture(200), DefaultParams())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, row := range res.Rows {
		if row.FeeCapped && row.FeeFloored {
			t.Errorf("%s: capped and floored are mutually exclusive", row.Name)
		}
	}
}

func TestRun_ClampedFeeDrivesRevenue(t *testing.T) {
	// A capped merchant's revenue must reflect the truncated fee, not the
	// intended one.
	p := zeroParams()
	p.C.FeeDelta = d(0.05)

	res, err := Run([]model.ScoredAccount{scoredAcct("m", model.TierC, 10000, 20, 0.28)}, p)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	row := res.Rows[0]
	want := d(10000).Mul(d(20)).Mul(d(0.30)) // clamped 0.30, not 0.33
	if !row.ProposedRevenue.Equal(want) {
		t.Errorf("proposed revenue %s, want %s (clamped fee)", row.ProposedRevenue, want)
	}
}

func TestRun_VolumeDeltaApplied(t *testing.T) {
	p := zeroParams()
	p.A.VolumeDelta = d(0.10)

	res, err := Run([]model.ScoredAccount{scoredAcct("m", model.TierA, 1000, 20, 0.2)}, p)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.Rows[0].ProposedTrips.Equal(d(1100)) {
		t.Errorf("proposed trips %s, want 1100", res.Rows[0].ProposedTrips)
	}
}

func TestRun_ZeroBaselineFlaggedNotDivided(t *testing.T) {
	res, err := Run([]model.ScoredAccount{
		scoredAcct("ghost", model.TierC, 0, 20, 0.2),
	}, DefaultParams())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	row := res.Rows[0]
	if !row.ZeroBaseline {
		t.Error("zero baseline revenue must set the zero_baseline flag")
	}
	if !row.RevenueDeltaPct.IsZero() {
		t.Errorf("delta %% should stay zero for zero baseline, got %s", row.RevenueDeltaPct)
	}
}

func TestRun_DoesNotMutateInput(t *testing.T) {
	scored := []model.ScoredAccount{scoredAcct("m", model.TierS, 1000, 20, 0.2)}
	feeBefore := scored[0].FeeRate

	if _, err := Run(scored, DefaultParams()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !scored[0].FeeRate.Equal(feeBefore) {
		t.Error("Run mutated its input table")
	}
}

// --- Aggregation ---

func TestRun_TierSummariesReconcile(t *testing.T) {
	res, err := Run(fixture(200), DefaultParams())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(res.Tiers) != 4 {
		t.Fatalf("expected 4 tier summaries, got %d", len(res.Tiers))
	}

	var count, capped, floored int
	baseline, proposed := decimal.Zero, decimal.Zero
	for _, ts := range res.Tiers {
		count += ts.Count
		capped += ts.CappedCount
		floored += ts.FlooredCount
		baseline = baseline.Add(ts.BaselineRevenue)
		proposed = proposed.Add(ts.ProposedRevenue)
		if !ts.RevenueDelta.Equal(ts.ProposedRevenue.Sub(ts.BaselineRevenue)) {
			t.Errorf("tier %s delta does not reconcile", ts.Tier)
		}
	}
	if count != 200 {
		t.Errorf("tier counts sum to %d, want 200", count)
	}
	if capped != res.Capped || floored != res.Floored {
		t.Error("tier bound-hit counts do not reconcile with totals")
	}
	if !baseline.Equal(res.Baseline) || !proposed.Equal(res.Proposed) {
		t.Error("tier revenue sums do not reconcile with totals")
	}

	// Row-level reconciliation against the population totals.
	rowBaseline := decimal.Zero
	for _, row := range res.Rows {
		rowBaseline = rowBaseline.Add(row.BaselineRevenue)
	}
	if !rowBaseline.Equal(res.Baseline) {
		t.Error("row baseline sum does not reconcile with total")
	}
}

func TestRun_DefaultScenarioLiftsRevenueAndVolume(t *testing.T) {
	// With the documented defaults, S and A gains outweigh B and C losses:
	// the high-volume top tiers take small fee cuts with large volume
	// lifts, and trip volume is heavily concentrated there.
	res, err := Run(fixture(200), DefaultParams())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.Delta.IsPositive() {
		t.Errorf("default scenario total delta = %s, want positive", res.Delta)
	}
	if !res.VolumeChangePct.IsPositive() {
		t.Errorf("default scenario volume change = %s%%, want positive", res.VolumeChangePct)
	}
}

func TestRun_Idempotent(t *testing.T) {
	scored := fixture(120)

	res1, err := Run(scored, DefaultParams())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	res2, err := Run(scored, DefaultParams())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	j1, _ := json.Marshal(res1)
	j2, _ := json.Marshal(res2)
	if string(j1) != string(j2) {
		t.Error("identical inputs must produce identical output tables")
	}
}

// --- Market share projection ---

func TestProjectMarketShare(t *testing.T) {
	share := ProjectMarketShare(d(0.18), d(10)) // +10% volume
	if !share.Equal(d(0.198)) {
		t.Errorf("projected share = %s, want 0.198", share)
	}

	share = ProjectMarketShare(d(0.18), decimal.Zero)
	if !share.Equal(d(0.18)) {
		t.Errorf("flat volume should keep share at 0.18, got %s", share)
	}

	share = ProjectMarketShare(d(0.20), d(-25))
	if !share.Equal(d(0.15)) {
		t.Errorf("projected share = %s, want 0.15", share)
	}
}

// fixture builds a scored 200-account population through the real scoring
// model so tier assignment matches production behavior: trip volume is
// heavily right-skewed toward the top-ranked accounts.
func fixture(n int) []model.ScoredAccount {
	accounts := make([]model.Account, n)
	for i := 0; i < n; i++ {
		accounts[i] = model.Account{
			Name:        fmt.Sprintf("brand-%03d", i),
			AnnualTrips: d(2_000_000 / float64(i+1)),
			BasketSize:  d(30 - float64(i)*0.01),
			FeeRate:     d(0.27 - float64(i)*0.0004),
			WaitMinutes: 5 + float64(i)*0.1,
			DefectRate:  0.01 + float64(i)*0.0004,
			ActiveLocations: 5 + i%30,
		}
	}
	scored, err := scoring.Score(accounts)
	if err != nil {
		panic(err)
	}
	return scored
}
