// Package store defines the persistence interface for the position ledger.
// Implementations include PostgreSQL (source of truth), Redis (read-through
// cache), and in-memory (for testing).
package store

import (
	"context"
	"errors"

	"github.com/synthos/mint-engine/internal/model"
)

var (
	// ErrPositionNotFound is returned when no position exists under an idx.
	ErrPositionNotFound = errors.New("store: position not found")

	// ErrAssetNotFound is returned when no config exists for a synthetic token.
	ErrAssetNotFound = errors.New("store: asset config not found")
)

// Listing page bounds.
const (
	DefaultLimit = 10
	MaxLimit     = 30
)

// ListQuery selects a page of positions ordered by idx.
type ListQuery struct {
	StartAfter *uint64 // exclusive idx bound: strictly after (asc) or before (desc)
	Limit      int     // 0 means DefaultLimit; capped at MaxLimit
	Descending bool
}

// Normalize returns the effective page size.
func (q ListQuery) Normalize() int {
	if q.Limit <= 0 {
		return DefaultLimit
	}
	if q.Limit > MaxLimit {
		return MaxLimit
	}
	return q.Limit
}

// Store is the persistence interface. PostgreSQL is the source of truth;
// Redis provides a read-through cache layer.
//
// A position write is one logical unit: CreatePosition persists the record,
// its owner and asset index memberships, and the counter advance together,
// so a partial write is never observable.
type Store interface {
	// --- Position ledger ---

	// NextPositionIdx returns the idx the next successful create will use.
	// The counter advances only inside CreatePosition.
	NextPositionIdx(ctx context.Context) (uint64, error)

	// CreatePosition allocates the next idx, persists the position under it
	// and returns the idx. The position's Idx field is set on success.
	CreatePosition(ctx context.Context, p *model.Position) (uint64, error)

	// Position retrieves a position by idx.
	Position(ctx context.Context, idx uint64) (*model.Position, error)

	// PutPosition overwrites an existing position in place.
	PutPosition(ctx context.Context, p *model.Position) error

	// RemovePosition deletes a position and prunes both index memberships.
	// Used only when a withdrawal fully unwinds a position.
	RemovePosition(ctx context.Context, idx uint64) error

	// Positions lists positions across all owners and assets.
	Positions(ctx context.Context, q ListQuery) ([]model.Position, error)

	// PositionsByOwner lists positions held by one owner.
	PositionsByOwner(ctx context.Context, owner string, q ListQuery) ([]model.Position, error)

	// PositionsByAsset lists positions whose synthetic side is one token.
	PositionsByAsset(ctx context.Context, token string, q ListQuery) ([]model.Position, error)

	// --- Asset registry ---

	// AssetConfig retrieves the registry entry for a synthetic token.
	AssetConfig(ctx context.Context, token string) (*model.AssetConfig, error)

	// PutAssetConfig inserts or updates a registry entry.
	PutAssetConfig(ctx context.Context, cfg *model.AssetConfig) error
}
