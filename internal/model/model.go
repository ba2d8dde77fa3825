// Package model defines the core domain types shared across the mint engine.
// All monetary values use shopspring/decimal: never float64 for money.
package model

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

var ErrInvalidAssetInfo = errors.New("model: asset info must set exactly one of native or token")

// AssetInfo identifies an asset as either a native denomination or a
// token-contract identity. Exactly one field is set; the zero value is
// invalid. Comparisons use Equal, and only outbound instruction
// construction branches on the tag.
type AssetInfo struct {
	Native string `json:"native,omitempty"` // native denomination, e.g. "uusd"
	Token  string `json:"token,omitempty"`  // token contract identity
}

func NativeAsset(denom string) AssetInfo { return AssetInfo{Native: denom} }

func TokenAsset(ident string) AssetInfo { return AssetInfo{Token: ident} }

func (i AssetInfo) IsToken() bool { return i.Token != "" }

// Ident returns the identity string for whichever tag is set. It is the
// key used by the asset secondary index and by oracle lookups.
func (i AssetInfo) Ident() string {
	if i.Token != "" {
		return i.Token
	}
	return i.Native
}

func (i AssetInfo) Equal(other AssetInfo) bool { return i == other }

func (i AssetInfo) Validate() error {
	if (i.Native == "") == (i.Token == "") {
		return ErrInvalidAssetInfo
	}
	return nil
}

// Asset is an AssetInfo together with a whole-unit amount.
type Asset struct {
	Info   AssetInfo       `json:"info"`
	Amount decimal.Decimal `json:"amount"` // integer-valued, non-negative
}

// String renders the canonical amount+identity form, e.g. "1000uusd".
// Event attributes use this form.
func (a Asset) String() string {
	return fmt.Sprintf("%s%s", a.Amount.String(), a.Info.Ident())
}

// AssetConfig is the registry entry for one listed synthetic asset.
// EndPrice is set when the asset has been migrated/delisted; from then on
// the asset is frozen at that price and accepts no new exposure.
type AssetConfig struct {
	Token              string           `json:"token"`
	MinCollateralRatio decimal.Decimal  `json:"min_collateral_ratio"`
	EndPrice           *decimal.Decimal `json:"end_price,omitempty"`
}

// Migrated reports whether the asset is in wind-down.
func (c AssetConfig) Migrated() bool { return c.EndPrice != nil }

// Position is one user's collateralized debt position: locked collateral
// backing outstanding synthetic debt. Solvency is re-checked on every
// mutation that can weaken it.
type Position struct {
	Idx        uint64    `json:"idx"`
	Owner      string    `json:"owner"`
	Collateral Asset     `json:"collateral"`
	Asset      Asset     `json:"asset"` // synthetic holding, always a token
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Attribute is one human-readable key/value pair describing an operation's
// effect. The first attribute of every mutation is action=<name>.
type Attribute struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}
