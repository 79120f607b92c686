// Package scenario provides the HTTP handlers for loading a merchant
// population, querying the scoreboard, and running tiered fee/volume
// simulations.
//
// All monetary values use shopspring/decimal — never float64 for money.
package scenario

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/merchrank/tier-engine/internal/metrics"
	"github.com/merchrank/tier-engine/internal/model"
	"github.com/merchrank/tier-engine/internal/scoring"
	"github.com/merchrank/tier-engine/internal/simulate"
	"github.com/merchrank/tier-engine/internal/store"
)

// DefaultMarketShareBaseline is the assumed current market share used for
// the linear projection when the caller supplies no baseline. A business
// constant, not derived from the data.
var DefaultMarketShareBaseline = decimal.NewFromFloat(0.18)

// Service handles scoring and simulation requests. The engine itself is
// pure; the service owns the store and the optional WebSocket hub.
type Service struct {
	store         store.Store
	shareBaseline decimal.Decimal
	wsHub         *WSHub // optional hub for run broadcasts
}

// NewService creates a new scenario service.
// Pass nil for hub if WebSocket broadcasting is not needed.
func NewService(st store.Store, shareBaseline decimal.Decimal, hub *WSHub) *Service {
	if shareBaseline.LessThanOrEqual(decimal.Zero) {
		shareBaseline = DefaultMarketShareBaseline
	}
	return &Service{
		store:         st,
		shareBaseline: shareBaseline,
		wsHub:         hub,
	}
}

// --- Request/Response types ---

// SimulateRequest is the JSON body for POST /api/v1/simulate.
// A nil Params runs the documented default scenario; a supplied Params must
// carry all eight values — there is no per-field merging with defaults.
type SimulateRequest struct {
	Params              *simulate.Params `json:"params,omitempty"`
	MarketShareBaseline *decimal.Decimal `json:"market_share_baseline,omitempty"`
}

// SimulateResponse is the JSON body returned from POST /api/v1/simulate.
type SimulateResponse struct {
	RunID                string                   `json:"run_id"`
	Params               simulate.Params          `json:"params"`
	Rows                 []model.SimulatedAccount `json:"rows"`
	Tiers                []model.TierSummary      `json:"tiers"`
	BaselineRevenue      decimal.Decimal          `json:"baseline_revenue"`
	ProposedRevenue      decimal.Decimal          `json:"proposed_revenue"`
	RevenueDelta         decimal.Decimal          `json:"revenue_delta"`
	RevenueDeltaPct      decimal.Decimal          `json:"revenue_delta_pct"`
	VolumeChangePct      decimal.Decimal          `json:"volume_change_pct"`
	ProjectedMarketShare decimal.Decimal          `json:"projected_market_share"`
	CappedCount          int                      `json:"capped_count"`
	FlooredCount         int                      `json:"floored_count"`
}

// --- HTTP Handlers ---

// ReplaceAccounts handles POST /api/v1/accounts
// Body: JSON array of accounts. The population is validated by scoring it
// once before it replaces the stored one, so a bad table never lands.
func (s *Service) ReplaceAccounts(w http.ResponseWriter, r *http.Request) {
	var accounts []model.Account
	if err := json.NewDecoder(r.Body).Decode(&accounts); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	if _, err := scoring.Score(accounts); err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}

	if err := s.store.ReplaceAccounts(r.Context(), accounts); err != nil {
		writeError(w, "failed to store population", http.StatusInternalServerError)
		return
	}

	metrics.PopulationSize.Set(float64(len(accounts)))
	slog.Info("population replaced", "accounts", len(accounts))

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(map[string]int{"accounts": len(accounts)})
}

// ListAccounts handles GET /api/v1/accounts
func (s *Service) ListAccounts(w http.ResponseWriter, r *http.Request) {
	accounts, err := s.store.ListAccounts(r.Context())
	if err != nil {
		writeError(w, "failed to list accounts", http.StatusInternalServerError)
		return
	}
	if accounts == nil {
		accounts = []model.Account{}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(accounts)
}

// Scoreboard handles GET /api/v1/scoreboard
// Returns the scored, ranked, tiered table, computed fresh from the stored
// population on every call.
func (s *Service) Scoreboard(w http.ResponseWriter, r *http.Request) {
	scored, ok := s.scorePopulation(w, r)
	if !ok {
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(scored)
}

// TopAccounts handles GET /api/v1/scoreboard/top?n=10
func (s *Service) TopAccounts(w http.ResponseWriter, r *http.Request) {
	n := 10
	if raw := r.URL.Query().Get("n"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			writeError(w, "n must be a positive integer", http.StatusBadRequest)
			return
		}
		n = parsed
	}

	scored, ok := s.scorePopulation(w, r)
	if !ok {
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(scoring.TopN(scored, n))
}

// Simulate handles POST /api/v1/simulate
// Scores the stored population, applies the scenario, persists a run
// record, and broadcasts the headline numbers.
func (s *Service) Simulate(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	var req SimulateRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, "invalid request body", http.StatusBadRequest)
			return
		}
	}

	params := simulate.DefaultParams()
	if req.Params != nil {
		params = *req.Params
	}
	if err := params.Validate(); err != nil {
		metrics.SimulationsTotal.WithLabelValues("invalid").Inc()
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}

	shareBaseline := s.shareBaseline
	if req.MarketShareBaseline != nil {
		shareBaseline = *req.MarketShareBaseline
	}

	scored, ok := s.scorePopulation(w, r)
	if !ok {
		metrics.SimulationsTotal.WithLabelValues("invalid").Inc()
		return
	}

	result, err := simulate.Run(scored, params)
	if err != nil {
		metrics.SimulationsTotal.WithLabelValues("invalid").Inc()
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}

	projectedShare := simulate.ProjectMarketShare(shareBaseline, result.VolumeChangePct)

	run := &model.ScenarioRun{
		ID:              uuid.New().String(),
		FeeDeltaS:       params.S.FeeDelta,
		FeeDeltaA:       params.A.FeeDelta,
		FeeDeltaB:       params.B.FeeDelta,
		FeeDeltaC:       params.C.FeeDelta,
		VolumeDeltaS:    params.S.VolumeDelta,
		VolumeDeltaA:    params.A.VolumeDelta,
		VolumeDeltaB:    params.B.VolumeDelta,
		VolumeDeltaC:    params.C.VolumeDelta,
		BaselineRevenue: result.Baseline,
		ProposedRevenue: result.Proposed,
		RevenueDelta:    result.Delta,
		VolumeChangePct: result.VolumeChangePct,
		MarketShare:     projectedShare,
		CappedCount:     result.Capped,
		FlooredCount:    result.Floored,
		CreatedAt:       time.Now().UTC(),
	}
	if err := s.store.SaveScenarioRun(r.Context(), run); err != nil {
		writeError(w, "failed to record scenario run", http.StatusInternalServerError)
		return
	}

	metrics.SimulationsTotal.WithLabelValues("ok").Inc()
	metrics.SimulationLatency.Observe(time.Since(start).Seconds())
	metrics.FeeBoundHits.WithLabelValues("cap").Set(float64(result.Capped))
	metrics.FeeBoundHits.WithLabelValues("floor").Set(float64(result.Floored))

	slog.Info("scenario simulated",
		"run_id", run.ID,
		"accounts", len(result.Rows),
		"revenue_delta", result.Delta.String(),
		"volume_change_pct", result.VolumeChangePct.String(),
		"capped", result.Capped,
		"floored", result.Floored,
	)

	if s.wsHub != nil {
		s.wsHub.Broadcast(WSMessage{
			Type:            "scenario_run",
			RunID:           run.ID,
			RevenueDelta:    result.Delta.String(),
			VolumeChangePct: result.VolumeChangePct.String(),
			MarketShare:     projectedShare.String(),
			CappedCount:     result.Capped,
			FlooredCount:    result.Floored,
		})
	}

	resp := SimulateResponse{
		RunID:                run.ID,
		Params:               params,
		Rows:                 result.Rows,
		Tiers:                result.Tiers,
		BaselineRevenue:      result.Baseline,
		ProposedRevenue:      result.Proposed,
		RevenueDelta:         result.Delta,
		RevenueDeltaPct:      result.DeltaPct,
		VolumeChangePct:      result.VolumeChangePct,
		ProjectedMarketShare: projectedShare,
		CappedCount:          result.Capped,
		FlooredCount:         result.Floored,
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

// ListRuns handles GET /api/v1/runs
func (s *Service) ListRuns(w http.ResponseWriter, r *http.Request) {
	runs, err := s.store.ListScenarioRuns(r.Context())
	if err != nil {
		writeError(w, "failed to list scenario runs", http.StatusInternalServerError)
		return
	}
	if runs == nil {
		runs = []model.ScenarioRun{}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(runs)
}

// GetRun handles GET /api/v1/runs/{runID}
func (s *Service) GetRun(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "runID")

	run, err := s.store.GetScenarioRun(r.Context(), runID)
	if err != nil {
		writeError(w, "scenario run not found", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(run)
}

// scorePopulation loads and scores the stored population, writing the
// appropriate error response on failure.
func (s *Service) scorePopulation(w http.ResponseWriter, r *http.Request) ([]model.ScoredAccount, bool) {
	accounts, err := s.store.ListAccounts(r.Context())
	if err != nil {
		writeError(w, "failed to load population", http.StatusInternalServerError)
		return nil, false
	}
	if len(accounts) == 0 {
		writeError(w, "no population loaded", http.StatusConflict)
		return nil, false
	}

	scored, err := scoring.Score(accounts)
	if err != nil {
		if errors.Is(err, scoring.ErrInvalidInput) {
			writeError(w, err.Error(), http.StatusBadRequest)
		} else {
			writeError(w, "scoring failed", http.StatusInternalServerError)
		}
		return nil, false
	}
	return scored, true
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
