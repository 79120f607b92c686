package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/merchrank/tier-engine/internal/model"
)

// PostgresStore implements Store using PostgreSQL as the source of truth.
// All monetary values are stored as NUMERIC for exact decimal precision
// and round-tripped as text.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgreSQL-backed store.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func (s *PostgresStore) ReplaceAccounts(ctx context.Context, accounts []model.Account) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("replace accounts: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM accounts`); err != nil {
		return fmt.Errorf("replace accounts: %w", err)
	}

	batch := &pgx.Batch{}
	for i, a := range accounts {
		batch.Queue(
			`INSERT INTO accounts (position, name, annual_trips, basket_size, fee_rate, wait_minutes, defect_rate, active_locations)
			 VALUES ($1, $2, $3::NUMERIC, $4::NUMERIC, $5::NUMERIC, $6, $7, $8)`,
			i, a.Name,
			a.AnnualTrips.String(), a.BasketSize.String(), a.FeeRate.String(),
			a.WaitMinutes, a.DefectRate, a.ActiveLocations,
		)
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("replace accounts: %w", err)
	}
	return tx.Commit(ctx)
}

func (s *PostgresStore) ListAccounts(ctx context.Context) ([]model.Account, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT name, annual_trips::TEXT, basket_size::TEXT, fee_rate::TEXT,
		        wait_minutes, defect_rate, active_locations
		 FROM accounts ORDER BY position`)
	if err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}
	defer rows.Close()

	var accounts []model.Account
	for rows.Next() {
		var a model.Account
		var trips, basket, fee string
		if err := rows.Scan(&a.Name, &trips, &basket, &fee,
			&a.WaitMinutes, &a.DefectRate, &a.ActiveLocations); err != nil {
			return nil, fmt.Errorf("list accounts: %w", err)
		}
		a.AnnualTrips, _ = decimal.NewFromString(trips)
		a.BasketSize, _ = decimal.NewFromString(basket)
		a.FeeRate, _ = decimal.NewFromString(fee)
		accounts = append(accounts, a)
	}
	return accounts, rows.Err()
}

func (s *PostgresStore) SaveScenarioRun(ctx context.Context, run *model.ScenarioRun) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO scenario_runs (
		    id, fee_delta_s, fee_delta_a, fee_delta_b, fee_delta_c,
		    volume_delta_s, volume_delta_a, volume_delta_b, volume_delta_c,
		    baseline_revenue, proposed_revenue, revenue_delta,
		    volume_change_pct, market_share, capped_count, floored_count, created_at)
		 VALUES ($1, $2::NUMERIC, $3::NUMERIC, $4::NUMERIC, $5::NUMERIC,
		         $6::NUMERIC, $7::NUMERIC, $8::NUMERIC, $9::NUMERIC,
		         $10::NUMERIC, $11::NUMERIC, $12::NUMERIC,
		         $13::NUMERIC, $14::NUMERIC, $15, $16, $17)`,
		run.ID,
		run.FeeDeltaS.String(), run.FeeDeltaA.String(), run.FeeDeltaB.String(), run.FeeDeltaC.String(),
		run.VolumeDeltaS.String(), run.VolumeDeltaA.String(), run.VolumeDeltaB.String(), run.VolumeDeltaC.String(),
		run.BaselineRevenue.String(), run.ProposedRevenue.String(), run.RevenueDelta.String(),
		run.VolumeChangePct.String(), run.MarketShare.String(),
		run.CappedCount, run.FlooredCount, run.CreatedAt,
	)
	return err
}

func (s *PostgresStore) GetScenarioRun(ctx context.Context, id string) (*model.ScenarioRun, error) {
	row := s.pool.QueryRow(ctx, selectRunSQL+` WHERE id = $1`, id)
	run, err := scanRun(row)
	if err != nil {
		return nil, fmt.Errorf("get scenario run %s: %w", id, err)
	}
	return run, nil
}

func (s *PostgresStore) ListScenarioRuns(ctx context.Context) ([]model.ScenarioRun, error) {
	rows, err := s.pool.Query(ctx, selectRunSQL+` ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list scenario runs: %w", err)
	}
	defer rows.Close()

	var runs []model.ScenarioRun
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("list scenario runs: %w", err)
		}
		runs = append(runs, *run)
	}
	return runs, rows.Err()
}

const selectRunSQL = `
	SELECT id,
	       fee_delta_s::TEXT, fee_delta_a::TEXT, fee_delta_b::TEXT, fee_delta_c::TEXT,
	       volume_delta_s::TEXT, volume_delta_a::TEXT, volume_delta_b::TEXT, volume_delta_c::TEXT,
	       baseline_revenue::TEXT, proposed_revenue::TEXT, revenue_delta::TEXT,
	       volume_change_pct::TEXT, market_share::TEXT,
	       capped_count, floored_count, created_at
	FROM scenario_runs`

func scanRun(row pgx.Row) (*model.ScenarioRun, error) {
	var run model.ScenarioRun
	cols := make([]string, 13)
	if err := row.Scan(&run.ID,
		&cols[0], &cols[1], &cols[2], &cols[3],
		&cols[4], &cols[5], &cols[6], &cols[7],
		&cols[8], &cols[9], &cols[10], &cols[11], &cols[12],
		&run.CappedCount, &run.FlooredCount, &run.CreatedAt); err != nil {
		return nil, err
	}
	dsts := []*decimal.Decimal{
		&run.FeeDeltaS, &run.FeeDeltaA, &run.FeeDeltaB, &run.FeeDeltaC,
		&run.VolumeDeltaS, &run.VolumeDeltaA, &run.VolumeDeltaB, &run.VolumeDeltaC,
		&run.BaselineRevenue, &run.ProposedRevenue, &run.RevenueDelta,
		&run.VolumeChangePct, &run.MarketShare,
	}
	for i, dst := range dsts {
		*dst, _ = decimal.NewFromString(cols[i])
	}
	return &run, nil
}
