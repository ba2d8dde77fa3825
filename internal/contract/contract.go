// Package contract constructs the outbound instructions the engine hands
// to external contracts: synthetic-token mints, token-collateral transfers
// and native-collateral sends. The engine only builds instructions, it
// never executes them; execution belongs to the token contract and the
// bank. This is also the only place that branches on the asset tag.
package contract

import (
	"errors"
	"fmt"
	"regexp"

	"github.com/shopspring/decimal"

	"github.com/synthos/mint-engine/internal/model"
)

// Instruction kinds.
const (
	KindMint     = "mint"     // token contract: mint synthetic units to recipient
	KindTransfer = "transfer" // token contract: move token collateral to recipient
	KindSend     = "send"     // bank: move native collateral to recipient
)

var (
	ErrInvalidTokenIdent = errors.New("contract: invalid token identity")
	ErrInvalidDenom      = errors.New("contract: invalid native denomination")
)

// tokenRegex matches token contract identities: msynth-tsla, cw20-anchor.
var tokenRegex = regexp.MustCompile(`^[a-z][a-z0-9\-]{2,63}$`)

// denomRegex matches native denominations: uusd, uluna.
var denomRegex = regexp.MustCompile(`^[a-z][a-z0-9]{2,15}$`)

// Instruction is one outbound action for an external contract. Exactly one
// of Contract or Denom is set, depending on Kind.
type Instruction struct {
	Kind      string          `json:"kind"`
	Contract  string          `json:"contract,omitempty"` // token contract identity
	Denom     string          `json:"denom,omitempty"`    // native denomination
	Recipient string          `json:"recipient"`
	Amount    decimal.Decimal `json:"amount"`
}

// MintTo builds the token-contract instruction minting amount units of the
// synthetic token to recipient.
func MintTo(token, recipient string, amount decimal.Decimal) Instruction {
	return Instruction{
		Kind:      KindMint,
		Contract:  token,
		Recipient: recipient,
		Amount:    amount,
	}
}

// ReturnCollateral builds the instruction returning withdrawn collateral
// to its owner: native collateral goes out as a bank send, token
// collateral as a token-contract transfer.
func ReturnCollateral(asset model.Asset, recipient string) Instruction {
	if asset.Info.IsToken() {
		return Instruction{
			Kind:      KindTransfer,
			Contract:  asset.Info.Token,
			Recipient: recipient,
			Amount:    asset.Amount,
		}
	}
	return Instruction{
		Kind:      KindSend,
		Denom:     asset.Info.Native,
		Recipient: recipient,
		Amount:    asset.Amount,
	}
}

// ValidateTokenIdent checks a token contract identity string.
func ValidateTokenIdent(ident string) error {
	if !tokenRegex.MatchString(ident) {
		return fmt.Errorf("%w: %q", ErrInvalidTokenIdent, ident)
	}
	return nil
}

// ValidateDenom checks a native denomination string.
func ValidateDenom(denom string) error {
	if !denomRegex.MatchString(denom) {
		return fmt.Errorf("%w: %q", ErrInvalidDenom, denom)
	}
	return nil
}

// ValidateAssetInfo checks an asset identity against its tag's format rules.
func ValidateAssetInfo(info model.AssetInfo) error {
	if err := info.Validate(); err != nil {
		return err
	}
	if info.IsToken() {
		return ValidateTokenIdent(info.Token)
	}
	return ValidateDenom(info.Native)
}
