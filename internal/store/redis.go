package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/synthos/mint-engine/internal/model"
)

// CachedStore wraps a primary Store (PostgreSQL) with a Redis read-through
// cache. Writes go to the primary store and invalidate the cache; reads
// check Redis first then fall back to the primary. The counter and the
// listing queries always hit the primary.
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

// --- Write-through (write to primary, invalidate cache) ---

func (s *CachedStore) CreatePosition(ctx context.Context, p *model.Position) (uint64, error) {
	idx, err := s.primary.CreatePosition(ctx, p)
	if err != nil {
		return 0, err
	}
	s.cachePosition(ctx, p)
	return idx, nil
}

func (s *CachedStore) PutPosition(ctx context.Context, p *model.Position) error {
	if err := s.primary.PutPosition(ctx, p); err != nil {
		return err
	}
	// Invalidate cache; next read will re-populate.
	s.rdb.Del(ctx, positionKey(p.Idx))
	return nil
}

func (s *CachedStore) RemovePosition(ctx context.Context, idx uint64) error {
	if err := s.primary.RemovePosition(ctx, idx); err != nil {
		return err
	}
	s.rdb.Del(ctx, positionKey(idx))
	return nil
}

func (s *CachedStore) PutAssetConfig(ctx context.Context, cfg *model.AssetConfig) error {
	if err := s.primary.PutAssetConfig(ctx, cfg); err != nil {
		return err
	}
	// Migrations must be visible on the next read.
	s.rdb.Del(ctx, assetKey(cfg.Token))
	return nil
}

// --- Read-through (check cache first) ---

func (s *CachedStore) Position(ctx context.Context, idx uint64) (*model.Position, error) {
	data, err := s.rdb.Get(ctx, positionKey(idx)).Bytes()
	if err == nil {
		var p model.Position
		if json.Unmarshal(data, &p) == nil {
			return &p, nil
		}
	}

	// Cache miss: read from primary.
	p, err := s.primary.Position(ctx, idx)
	if err != nil {
		return nil, err
	}

	s.cachePosition(ctx, p)
	return p, nil
}

func (s *CachedStore) AssetConfig(ctx context.Context, token string) (*model.AssetConfig, error) {
	data, err := s.rdb.Get(ctx, assetKey(token)).Bytes()
	if err == nil {
		var cfg model.AssetConfig
		if json.Unmarshal(data, &cfg) == nil {
			return &cfg, nil
		}
	}

	cfg, err := s.primary.AssetConfig(ctx, token)
	if err != nil {
		return nil, err
	}

	if data, err := json.Marshal(cfg); err == nil {
		s.rdb.Set(ctx, assetKey(token), data, s.ttl)
	}
	return cfg, nil
}

// --- Passthrough (not cached) ---

func (s *CachedStore) NextPositionIdx(ctx context.Context) (uint64, error) {
	return s.primary.NextPositionIdx(ctx)
}

func (s *CachedStore) Positions(ctx context.Context, q ListQuery) ([]model.Position, error) {
	return s.primary.Positions(ctx, q)
}

func (s *CachedStore) PositionsByOwner(ctx context.Context, owner string, q ListQuery) ([]model.Position, error) {
	return s.primary.PositionsByOwner(ctx, owner, q)
}

func (s *CachedStore) PositionsByAsset(ctx context.Context, token string, q ListQuery) ([]model.Position, error) {
	return s.primary.PositionsByAsset(ctx, token, q)
}

// --- Cache helpers ---

func (s *CachedStore) cachePosition(ctx context.Context, p *model.Position) {
	if data, err := json.Marshal(p); err == nil {
		s.rdb.Set(ctx, positionKey(p.Idx), data, s.ttl)
	}
}

func positionKey(idx uint64) string { return fmt.Sprintf("position:%d", idx) }
func assetKey(token string) string  { return fmt.Sprintf("asset:%s", token) }
