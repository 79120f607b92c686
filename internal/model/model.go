// Package model defines the core domain types shared across the tier engine.
// All monetary values use shopspring/decimal — never float64 for money.
package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Tier is one of four priority buckets assigned by rank position,
// not by score threshold.
type Tier string

const (
	TierS Tier = "S" // ranks 1–10
	TierA Tier = "A" // ranks 11–50
	TierB Tier = "B" // ranks 51–150
	TierC Tier = "C" // ranks 151–N
)

// Tiers lists all tiers in display order.
var Tiers = []Tier{TierS, TierA, TierB, TierC}

// Segment classifies account size by location count. Orthogonal to
// scoring and tiering.
type Segment string

const (
	SegmentEnterprise Segment = "Enterprise"
	SegmentSMB        Segment = "SMB"
)

// EnterpriseThreshold is the location count at or above which an account
// is classified Enterprise.
const EnterpriseThreshold = 20

// SegmentFor classifies an account by its active location count.
func SegmentFor(activeLocations int) Segment {
	if activeLocations >= EnterpriseThreshold {
		return SegmentEnterprise
	}
	return SegmentSMB
}

// Account is one row of the merchant population: identity plus the
// immutable input metrics the ingestion collaborator hands the engine.
type Account struct {
	Name            string          `json:"name" db:"name"`
	AnnualTrips     decimal.Decimal `json:"annual_trips" db:"annual_trips"`         // annualized order volume
	BasketSize      decimal.Decimal `json:"basket_size" db:"basket_size"`           // average order value
	FeeRate         decimal.Decimal `json:"fee_rate" db:"fee_rate"`                 // marketplace fee, fraction in [0,1)
	WaitMinutes     float64         `json:"wait_minutes" db:"wait_minutes"`         // avg courier wait, minutes
	DefectRate      float64         `json:"defect_rate" db:"defect_rate"`           // order defect rate, fraction in [0,1]
	ActiveLocations int             `json:"active_locations" db:"active_locations"` // size-segment classification only
}

// ScoredAccount is an Account augmented with the four sub-scores, total,
// rank, tier, and segment. Produced by the scoring model; never mutated
// by the simulator.
type ScoredAccount struct {
	Account

	VolumeScore    decimal.Decimal `json:"volume_score"`    // ≤ 35
	WaitScore      decimal.Decimal `json:"wait_score"`      // ≤ 18
	DefectScore    decimal.Decimal `json:"defect_score"`    // ≤ 12
	EconomicsScore decimal.Decimal `json:"economics_score"` // ≤ 35
	TotalScore     decimal.Decimal `json:"total_score"`     // sum, ∈ [0,100], 2 dp

	Rank    int     `json:"rank"` // competition rank, 1 = best
	Tier    Tier    `json:"tier"`
	Segment Segment `json:"segment"`
}

// SimulatedAccount is one row of simulator output: the scored account plus
// the proposed fee/volume/revenue and deltas versus baseline.
type SimulatedAccount struct {
	ScoredAccount

	BaselineRevenue decimal.Decimal `json:"baseline_revenue"` // trips × basket × fee
	ProposedFee     decimal.Decimal `json:"proposed_fee"`     // after floor/cap clamp
	ProposedTrips   decimal.Decimal `json:"proposed_trips"`
	ProposedRevenue decimal.Decimal `json:"proposed_revenue"`
	RevenueDelta    decimal.Decimal `json:"revenue_delta"`
	RevenueDeltaPct decimal.Decimal `json:"revenue_delta_pct"`
	ZeroBaseline    bool            `json:"zero_baseline"` // delta % undefined: baseline revenue was exactly zero

	FeeDirection string `json:"fee_direction"` // "up", "down", or "flat" — intent, pre-clamp
	FeeCapped    bool   `json:"fee_capped"`    // intended fee strictly above the cap
	FeeFloored   bool   `json:"fee_floored"`   // intended fee strictly below the floor
}

// TierSummary aggregates simulation results for one tier.
type TierSummary struct {
	Tier            Tier            `json:"tier"`
	Count           int             `json:"count"`
	BaselineRevenue decimal.Decimal `json:"baseline_revenue"`
	ProposedRevenue decimal.Decimal `json:"proposed_revenue"`
	RevenueDelta    decimal.Decimal `json:"revenue_delta"`
	RevenueDeltaPct decimal.Decimal `json:"revenue_delta_pct"`
	BaselineTrips   decimal.Decimal `json:"baseline_trips"`
	ProposedTrips   decimal.Decimal `json:"proposed_trips"`
	CappedCount     int             `json:"capped_count"`
	FlooredCount    int             `json:"floored_count"`
}

// ScenarioRun is the persisted record of one simulation: the parameter set
// and the headline aggregates. Row-level output is recomputed on demand —
// the simulator is a pure function of (population, params).
type ScenarioRun struct {
	ID              string          `json:"id" db:"id"`
	FeeDeltaS       decimal.Decimal `json:"fee_delta_s" db:"fee_delta_s"`
	FeeDeltaA       decimal.Decimal `json:"fee_delta_a" db:"fee_delta_a"`
	FeeDeltaB       decimal.Decimal `json:"fee_delta_b" db:"fee_delta_b"`
	FeeDeltaC       decimal.Decimal `json:"fee_delta_c" db:"fee_delta_c"`
	VolumeDeltaS    decimal.Decimal `json:"volume_delta_s" db:"volume_delta_s"`
	VolumeDeltaA    decimal.Decimal `json:"volume_delta_a" db:"volume_delta_a"`
	VolumeDeltaB    decimal.Decimal `json:"volume_delta_b" db:"volume_delta_b"`
	VolumeDeltaC    decimal.Decimal `json:"volume_delta_c" db:"volume_delta_c"`
	BaselineRevenue decimal.Decimal `json:"baseline_revenue" db:"baseline_revenue"`
	ProposedRevenue decimal.Decimal `json:"proposed_revenue" db:"proposed_revenue"`
	RevenueDelta    decimal.Decimal `json:"revenue_delta" db:"revenue_delta"`
	VolumeChangePct decimal.Decimal `json:"volume_change_pct" db:"volume_change_pct"`
	MarketShare     decimal.Decimal `json:"market_share" db:"market_share"`
	CappedCount     int             `json:"capped_count" db:"capped_count"`
	FlooredCount    int             `json:"floored_count" db:"floored_count"`
	CreatedAt       time.Time       `json:"created_at" db:"created_at"`
}
