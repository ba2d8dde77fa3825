// Package oracle provides the valuation client for synthetic-asset prices
// and collateral terms. The engine consumes the Oracle interface; the HTTP
// implementation talks to the external oracle services and the static
// implementation backs tests and dev mode.
//
// The client never retries and never caches. A failed read aborts the
// calling operation; freshness policy (the staleness bound) lives in the
// oracle services, not here.
package oracle

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"
)

var (
	// ErrPriceUnavailable is returned when the oracle has no quote for an asset.
	ErrPriceUnavailable = errors.New("oracle: no quote for asset")

	// ErrStalePrice is returned when the quote is older than the staleness
	// bound and the caller requested strict freshness.
	ErrStalePrice = errors.New("oracle: quote is stale")
)

// CollateralInfo is the collateral oracle's view of one collateral asset:
// its price in the base denomination, the risk multiplier applied to
// minimum-ratio requirements, and whether the asset has been revoked as
// collateral.
type CollateralInfo struct {
	Price      decimal.Decimal `json:"price"`
	Multiplier decimal.Decimal `json:"multiplier"`
	Revoked    bool            `json:"revoked"`
}

// Oracle is the valuation client consumed by the lifecycle operations.
// strict requests freshness enforcement: solvency-affecting reads pass
// true, informational reads may pass false.
type Oracle interface {
	// Price returns a synthetic asset's price in the base denomination.
	Price(ctx context.Context, asset string, strict bool) (decimal.Decimal, error)

	// CollateralInfo returns the price, risk multiplier and revoked flag
	// for a collateral asset.
	CollateralInfo(ctx context.Context, asset string, strict bool) (CollateralInfo, error)
}
