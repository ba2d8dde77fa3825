// Package registry provides read access to per-asset configuration and the
// administrative paths that list and migrate synthetic assets. The
// lifecycle operations only consume the read side; administration is
// reachable through the HTTP API alone.
package registry

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/synthos/mint-engine/internal/contract"
	"github.com/synthos/mint-engine/internal/model"
	"github.com/synthos/mint-engine/internal/store"
)

var (
	// ErrUnknownAsset is returned for a synthetic token with no registry entry.
	ErrUnknownAsset = errors.New("registry: unknown asset")

	// ErrAssetMigrated is returned when an operation would add exposure to a
	// migrated (delisted) asset.
	ErrAssetMigrated = errors.New("registry: asset is migrated")

	// ErrAssetExists is returned when registering an already-listed token.
	ErrAssetExists = errors.New("registry: asset already registered")

	// ErrRatioTooLow is returned when a registration's minimum collateral
	// ratio is below the allowed floor.
	ErrRatioTooLow = errors.New("registry: minimum collateral ratio below floor")

	// ErrInvalidEndPrice is returned for a migration without a positive end price.
	ErrInvalidEndPrice = errors.New("registry: end price must be positive")
)

// MinCollateralRatioFloor is the lowest minimum collateral ratio any asset
// may be listed with.
var MinCollateralRatioFloor = decimal.RequireFromString("1.2")

// Registry reads and administers asset configs backed by the store.
type Registry struct {
	store store.Store
}

func New(s store.Store) *Registry {
	return &Registry{store: s}
}

// AssetConfig looks up the registry entry for a synthetic token.
func (r *Registry) AssetConfig(ctx context.Context, token string) (*model.AssetConfig, error) {
	cfg, err := r.store.AssetConfig(ctx, token)
	if err != nil {
		if errors.Is(err, store.ErrAssetNotFound) {
			return nil, fmt.Errorf("%s: %w", token, ErrUnknownAsset)
		}
		return nil, err
	}
	return cfg, nil
}

// AssertNotMigrated rejects assets in wind-down. Open, deposit and mint
// call this before proceeding; withdraw never does.
func AssertNotMigrated(cfg *model.AssetConfig) error {
	if cfg.Migrated() {
		return fmt.Errorf("%s: %w", cfg.Token, ErrAssetMigrated)
	}
	return nil
}

// Register lists a new synthetic asset.
func (r *Registry) Register(ctx context.Context, cfg *model.AssetConfig) error {
	if err := contract.ValidateTokenIdent(cfg.Token); err != nil {
		return err
	}
	if cfg.MinCollateralRatio.LessThan(MinCollateralRatioFloor) {
		return fmt.Errorf("%s: ratio %s: %w", cfg.Token, cfg.MinCollateralRatio, ErrRatioTooLow)
	}
	if _, err := r.store.AssetConfig(ctx, cfg.Token); err == nil {
		return fmt.Errorf("%s: %w", cfg.Token, ErrAssetExists)
	} else if !errors.Is(err, store.ErrAssetNotFound) {
		return err
	}

	stored := &model.AssetConfig{
		Token:              cfg.Token,
		MinCollateralRatio: cfg.MinCollateralRatio,
	}
	return r.store.PutAssetConfig(ctx, stored)
}

// RegisterMigration freezes a listed asset at a fixed end price, putting
// it into withdraw-only wind-down.
func (r *Registry) RegisterMigration(ctx context.Context, token string, endPrice decimal.Decimal) error {
	if !endPrice.IsPositive() {
		return fmt.Errorf("%s: %w", token, ErrInvalidEndPrice)
	}

	cfg, err := r.AssetConfig(ctx, token)
	if err != nil {
		return err
	}
	if cfg.Migrated() {
		return fmt.Errorf("%s: already frozen: %w", token, ErrAssetMigrated)
	}

	cfg.EndPrice = &endPrice
	return r.store.PutAssetConfig(ctx, cfg)
}
