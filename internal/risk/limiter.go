// Package risk implements per-owner exposure limits across positions.
//
// A single owner spreading debt over many positions against the same
// synthetic token carries one correlated liquidation risk, not many
// independent ones. This package caps how many positions an owner may
// hold and how much synthetic debt an owner may accumulate per token.
package risk

import (
	"errors"

	"github.com/shopspring/decimal"

	"github.com/synthos/mint-engine/internal/model"
)

var (
	// ErrPositionLimitExceeded is returned when opening a position would
	// push an owner past the per-owner position count limit.
	ErrPositionLimitExceeded = errors.New("risk: per-owner position limit exceeded")

	// ErrExposureLimitExceeded is returned when a mint would push an
	// owner's aggregate debt in one synthetic token past the limit.
	ErrExposureLimitExceeded = errors.New("risk: per-asset exposure limit exceeded")
)

// ExposureLimiter enforces per-owner limits. A zero limit disables the
// corresponding check, so the zero value is a no-op limiter.
type ExposureLimiter struct {
	// MaxPositions is the maximum number of open positions per owner.
	MaxPositions int

	// MaxAssetExposure is the maximum aggregate synthetic debt an owner
	// may hold across all positions in one token.
	MaxAssetExposure decimal.Decimal
}

// NewExposureLimiter creates a limiter with the given per-owner caps.
func NewExposureLimiter(maxPositions int, maxAssetExposure decimal.Decimal) *ExposureLimiter {
	return &ExposureLimiter{
		MaxPositions:     maxPositions,
		MaxAssetExposure: maxAssetExposure,
	}
}

// CheckOpen validates that opening a position minting mintAmount of asset
// respects both limits, given the owner's existing positions.
func (l *ExposureLimiter) CheckOpen(existing []model.Position, asset model.AssetInfo, mintAmount decimal.Decimal) error {
	if l.MaxPositions > 0 && len(existing)+1 > l.MaxPositions {
		return ErrPositionLimitExceeded
	}
	return l.CheckMint(existing, asset, mintAmount)
}

// CheckMint validates that adding additional debt in asset keeps the
// owner's aggregate exposure within the per-asset limit.
func (l *ExposureLimiter) CheckMint(existing []model.Position, asset model.AssetInfo, additional decimal.Decimal) error {
	if l.MaxAssetExposure.IsZero() {
		return nil
	}
	total := additional
	for _, p := range existing {
		if p.Asset.Info.Equal(asset) {
			total = total.Add(p.Asset.Amount)
		}
	}
	if total.GreaterThan(l.MaxAssetExposure) {
		return ErrExposureLimitExceeded
	}
	return nil
}
