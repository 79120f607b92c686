package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/merchrank/tier-engine/internal/model"
)

// MemoryStore implements Store with in-memory slices. Used for testing
// and development. Not suitable for production (no persistence).
type MemoryStore struct {
	mu       sync.RWMutex
	accounts []model.Account
	runs     []model.ScenarioRun
}

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) ReplaceAccounts(_ context.Context, accounts []model.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.accounts = make([]model.Account, len(accounts))
	copy(s.accounts, accounts)
	return nil
}

func (s *MemoryStore) ListAccounts(_ context.Context) ([]model.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]model.Account, len(s.accounts))
	copy(out, s.accounts)
	return out, nil
}

func (s *MemoryStore) SaveScenarioRun(_ context.Context, run *model.ScenarioRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.runs {
		if existing.ID == run.ID {
			return fmt.Errorf("scenario run %s already exists", run.ID)
		}
	}
	s.runs = append(s.runs, *run)
	return nil
}

func (s *MemoryStore) GetScenarioRun(_ context.Context, id string) (*model.ScenarioRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, run := range s.runs {
		if run.ID == id {
			out := run
			return &out, nil
		}
	}
	return nil, fmt.Errorf("scenario run %s not found", id)
}

func (s *MemoryStore) ListScenarioRuns(_ context.Context) ([]model.ScenarioRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]model.ScenarioRun, len(s.runs))
	copy(out, s.runs)
	sort.SliceStable(out, func(a, b int) bool {
		return out[a].CreatedAt.After(out[b].CreatedAt)
	})
	return out, nil
}
