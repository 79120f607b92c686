// Package store defines the persistence interface for the tier engine's
// serving surface. Implementations include PostgreSQL (source of truth),
// Redis (read-through cache), and in-memory (for testing).
//
// The engine packages (rank, scoring, simulate) never touch the store:
// they are pure functions, and the store only holds the population they
// are fed plus the history of scenario runs.
package store

import (
	"context"

	"github.com/merchrank/tier-engine/internal/model"
)

// Store is the persistence interface.
type Store interface {
	// --- Population ---

	// ReplaceAccounts swaps the whole population atomically. The engine
	// scores a fixed population; partial updates are not a use case.
	ReplaceAccounts(ctx context.Context, accounts []model.Account) error

	// ListAccounts returns the current population in insertion order.
	ListAccounts(ctx context.Context) ([]model.Account, error)

	// --- Scenario run history ---

	// SaveScenarioRun appends an immutable run record.
	SaveScenarioRun(ctx context.Context, run *model.ScenarioRun) error

	// GetScenarioRun retrieves a run by ID.
	GetScenarioRun(ctx context.Context, id string) (*model.ScenarioRun, error)

	// ListScenarioRuns returns all runs, most recent first.
	ListScenarioRuns(ctx context.Context) ([]model.ScenarioRun, error)
}
