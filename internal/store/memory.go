package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/synthos/mint-engine/internal/model"
)

// MemoryStore implements Store with in-memory maps. Used for testing
// and development. Not suitable for production (no persistence).
//
// The owner and asset indices are explicit membership sets kept in the
// same critical section as the primary map, so a reader never observes a
// position without its index entries.
type MemoryStore struct {
	mu        sync.RWMutex
	positions map[uint64]*model.Position
	byOwner   map[string]map[uint64]struct{}
	byAsset   map[string]map[uint64]struct{}
	assets    map[string]*model.AssetConfig
	nextIdx   uint64
}

// NewMemoryStore creates a new in-memory store. The position counter
// starts at 1.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		positions: make(map[uint64]*model.Position),
		byOwner:   make(map[string]map[uint64]struct{}),
		byAsset:   make(map[string]map[uint64]struct{}),
		assets:    make(map[string]*model.AssetConfig),
		nextIdx:   1,
	}
}

func (s *MemoryStore) NextPositionIdx(_ context.Context) (uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.nextIdx, nil
}

func (s *MemoryStore) CreatePosition(_ context.Context, p *model.Position) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := s.nextIdx
	p.Idx = idx

	// Store a copy to avoid external mutation.
	copy := *p
	s.positions[idx] = &copy
	s.indexAdd(s.byOwner, copy.Owner, idx)
	s.indexAdd(s.byAsset, copy.Asset.Info.Ident(), idx)

	// Advance only after the record and both indices are written.
	s.nextIdx++
	return idx, nil
}

func (s *MemoryStore) Position(_ context.Context, idx uint64) (*model.Position, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.positions[idx]
	if !ok {
		return nil, fmt.Errorf("position %d: %w", idx, ErrPositionNotFound)
	}
	copy := *p
	return &copy, nil
}

func (s *MemoryStore) PutPosition(_ context.Context, p *model.Position) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.positions[p.Idx]; !ok {
		return fmt.Errorf("position %d: %w", p.Idx, ErrPositionNotFound)
	}
	copy := *p
	s.positions[p.Idx] = &copy
	return nil
}

func (s *MemoryStore) RemovePosition(_ context.Context, idx uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.positions[idx]
	if !ok {
		return fmt.Errorf("position %d: %w", idx, ErrPositionNotFound)
	}
	delete(s.positions, idx)
	s.indexDrop(s.byOwner, p.Owner, idx)
	s.indexDrop(s.byAsset, p.Asset.Info.Ident(), idx)
	return nil
}

func (s *MemoryStore) Positions(_ context.Context, q ListQuery) ([]model.Position, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	idxs := make([]uint64, 0, len(s.positions))
	for idx := range s.positions {
		idxs = append(idxs, idx)
	}
	return s.page(idxs, q), nil
}

func (s *MemoryStore) PositionsByOwner(_ context.Context, owner string, q ListQuery) ([]model.Position, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.page(setToSlice(s.byOwner[owner]), q), nil
}

func (s *MemoryStore) PositionsByAsset(_ context.Context, token string, q ListQuery) ([]model.Position, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.page(setToSlice(s.byAsset[token]), q), nil
}

func (s *MemoryStore) AssetConfig(_ context.Context, token string) (*model.AssetConfig, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cfg, ok := s.assets[token]
	if !ok {
		return nil, fmt.Errorf("asset %s: %w", token, ErrAssetNotFound)
	}
	copy := *cfg
	return &copy, nil
}

func (s *MemoryStore) PutAssetConfig(_ context.Context, cfg *model.AssetConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	copy := *cfg
	s.assets[cfg.Token] = &copy
	return nil
}

// --- Index and paging helpers (callers hold the lock) ---

func (s *MemoryStore) indexAdd(index map[string]map[uint64]struct{}, key string, idx uint64) {
	set, ok := index[key]
	if !ok {
		set = make(map[uint64]struct{})
		index[key] = set
	}
	set[idx] = struct{}{}
}

func (s *MemoryStore) indexDrop(index map[string]map[uint64]struct{}, key string, idx uint64) {
	if set, ok := index[key]; ok {
		delete(set, idx)
		if len(set) == 0 {
			delete(index, key)
		}
	}
}

// page sorts the candidate idxs, applies the exclusive start bound and the
// page size, and copies the selected positions out.
func (s *MemoryStore) page(idxs []uint64, q ListQuery) []model.Position {
	if q.Descending {
		sort.Slice(idxs, func(i, j int) bool { return idxs[i] > idxs[j] })
	} else {
		sort.Slice(idxs, func(i, j int) bool { return idxs[i] < idxs[j] })
	}

	limit := q.Normalize()
	result := make([]model.Position, 0, limit)
	for _, idx := range idxs {
		if q.StartAfter != nil {
			if q.Descending && idx >= *q.StartAfter {
				continue
			}
			if !q.Descending && idx <= *q.StartAfter {
				continue
			}
		}
		result = append(result, *s.positions[idx])
		if len(result) == limit {
			break
		}
	}
	return result
}

func setToSlice(set map[uint64]struct{}) []uint64 {
	idxs := make([]uint64, 0, len(set))
	for idx := range set {
		idxs = append(idxs, idx)
	}
	return idxs
}
