package store

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/merchrank/tier-engine/internal/model"
)

// CachedStore wraps a primary Store (PostgreSQL) with a Redis read-through
// cache. Writes go to the primary store and invalidate the cache; reads
// check Redis first then fall back to the primary.
type CachedStore struct {
	primary Store
	rdb     *redis.Client
	ttl     time.Duration
}

// NewCachedStore creates a cached wrapper around a primary store.
func NewCachedStore(primary Store, rdb *redis.Client, ttl time.Duration) *CachedStore {
	return &CachedStore{
		primary: primary,
		rdb:     rdb,
		ttl:     ttl,
	}
}

const (
	accountsKey = "accounts"
	runsKey     = "scenario-runs"
)

func runKey(id string) string { return "scenario-run:" + id }

// --- Write-through (write to primary, invalidate cache) ---

func (s *CachedStore) ReplaceAccounts(ctx context.Context, accounts []model.Account) error {
	if err := s.primary.ReplaceAccounts(ctx, accounts); err != nil {
		return err
	}
	s.rdb.Del(ctx, accountsKey)
	return nil
}

func (s *CachedStore) SaveScenarioRun(ctx context.Context, run *model.ScenarioRun) error {
	if err := s.primary.SaveScenarioRun(ctx, run); err != nil {
		return err
	}
	if data, err := json.Marshal(run); err == nil {
		s.rdb.Set(ctx, runKey(run.ID), data, s.ttl)
	}
	s.rdb.Del(ctx, runsKey)
	return nil
}

// --- Read-through (check cache first) ---

func (s *CachedStore) ListAccounts(ctx context.Context) ([]model.Account, error) {
	data, err := s.rdb.Get(ctx, accountsKey).Bytes()
	if err == nil {
		var accounts []model.Account
		if json.Unmarshal(data, &accounts) == nil {
			return accounts, nil
		}
	}

	accounts, err := s.primary.ListAccounts(ctx)
	if err != nil {
		return nil, err
	}

	if data, err := json.Marshal(accounts); err == nil {
		s.rdb.Set(ctx, accountsKey, data, s.ttl)
	}
	return accounts, nil
}

func (s *CachedStore) GetScenarioRun(ctx context.Context, id string) (*model.ScenarioRun, error) {
	data, err := s.rdb.Get(ctx, runKey(id)).Bytes()
	if err == nil {
		var run model.ScenarioRun
		if json.Unmarshal(data, &run) == nil {
			return &run, nil
		}
	}

	run, err := s.primary.GetScenarioRun(ctx, id)
	if err != nil {
		return nil, err
	}

	if data, err := json.Marshal(run); err == nil {
		s.rdb.Set(ctx, runKey(id), data, s.ttl)
	}
	return run, nil
}

func (s *CachedStore) ListScenarioRuns(ctx context.Context) ([]model.ScenarioRun, error) {
	data, err := s.rdb.Get(ctx, runsKey).Bytes()
	if err == nil {
		var runs []model.ScenarioRun
		if json.Unmarshal(data, &runs) == nil {
			return runs, nil
		}
	}

	runs, err := s.primary.ListScenarioRuns(ctx)
	if err != nil {
		return nil, err
	}

	if data, err := json.Marshal(runs); err == nil {
		s.rdb.Set(ctx, runsKey, data, s.ttl)
	}
	return runs, nil
}
