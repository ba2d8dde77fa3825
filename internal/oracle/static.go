package oracle

import (
	"context"
	"fmt"
	"sync"

	"github.com/shopspring/decimal"
)

// StaticOracle serves quotes from memory. Used for testing and dev mode.
// A quote marked stale still serves non-strict reads, matching the real
// oracle's behavior of enforcing the staleness bound only on request.
type StaticOracle struct {
	mu              sync.RWMutex
	prices          map[string]decimal.Decimal
	stalePrices     map[string]bool
	collateral      map[string]CollateralInfo
	staleCollateral map[string]bool
}

// NewStaticOracle creates an empty static oracle.
func NewStaticOracle() *StaticOracle {
	return &StaticOracle{
		prices:          make(map[string]decimal.Decimal),
		stalePrices:     make(map[string]bool),
		collateral:      make(map[string]CollateralInfo),
		staleCollateral: make(map[string]bool),
	}
}

// SetPrice installs or replaces a synthetic asset quote and clears any
// stale mark.
func (o *StaticOracle) SetPrice(asset string, price decimal.Decimal) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.prices[asset] = price
	delete(o.stalePrices, asset)
}

// MarkPriceStale flags a quote as older than the staleness bound.
func (o *StaticOracle) MarkPriceStale(asset string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.stalePrices[asset] = true
}

// SetCollateral installs or replaces a collateral asset's terms and clears
// any stale mark.
func (o *StaticOracle) SetCollateral(asset string, info CollateralInfo) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.collateral[asset] = info
	delete(o.staleCollateral, asset)
}

// MarkCollateralStale flags a collateral quote as stale.
func (o *StaticOracle) MarkCollateralStale(asset string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.staleCollateral[asset] = true
}

func (o *StaticOracle) Price(_ context.Context, asset string, strict bool) (decimal.Decimal, error) {
	o.mu.RLock()
	defer o.mu.RUnlock()

	price, ok := o.prices[asset]
	if !ok {
		return decimal.Zero, fmt.Errorf("price %s: %w", asset, ErrPriceUnavailable)
	}
	if strict && o.stalePrices[asset] {
		return decimal.Zero, fmt.Errorf("price %s: %w", asset, ErrStalePrice)
	}
	return price, nil
}

func (o *StaticOracle) CollateralInfo(_ context.Context, asset string, strict bool) (CollateralInfo, error) {
	o.mu.RLock()
	defer o.mu.RUnlock()

	info, ok := o.collateral[asset]
	if !ok {
		return CollateralInfo{}, fmt.Errorf("collateral %s: %w", asset, ErrPriceUnavailable)
	}
	if strict && o.staleCollateral[asset] {
		return CollateralInfo{}, fmt.Errorf("collateral %s: %w", asset, ErrStalePrice)
	}
	return info, nil
}
