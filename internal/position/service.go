// Package position implements the collateralized position ledger: opening
// positions, depositing and withdrawing collateral, and minting synthetic
// debt, with a single solvency rule guarding every mutation that can
// weaken a position.
package position

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/synthos/mint-engine/internal/contract"
	"github.com/synthos/mint-engine/internal/dmath"
	"github.com/synthos/mint-engine/internal/events"
	"github.com/synthos/mint-engine/internal/metrics"
	"github.com/synthos/mint-engine/internal/model"
	"github.com/synthos/mint-engine/internal/oracle"
	"github.com/synthos/mint-engine/internal/registry"
	"github.com/synthos/mint-engine/internal/risk"
	"github.com/synthos/mint-engine/internal/store"
)

var (
	// ErrUnauthorized is returned when the sender does not own the position.
	ErrUnauthorized = errors.New("position: sender does not own this position")

	// ErrZeroAmount is returned for an amount that is zero, negative, or
	// not a whole number.
	ErrZeroAmount = errors.New("position: amount must be a positive whole number")

	// ErrCollateralMismatch is returned when a deposit or withdrawal names
	// a different collateral asset than the position holds.
	ErrCollateralMismatch = errors.New("position: collateral does not match the position")

	// ErrAssetMismatch is returned when a mint names a different synthetic
	// asset than the position owes.
	ErrAssetMismatch = errors.New("position: asset does not match the position")

	// ErrSyntheticNotToken is returned when the asset to mint is a native
	// denomination. Only tokens can be minted.
	ErrSyntheticNotToken = errors.New("position: synthetic asset must be a token")

	// ErrRatioBelowMinimum is returned when an open names a collateral
	// ratio below the asset's effective minimum.
	ErrRatioBelowMinimum = errors.New("position: collateral ratio below the asset minimum")

	// ErrMintAmountZero is returned when the collateral is too small to
	// mint a single whole unit at the requested ratio.
	ErrMintAmountZero = errors.New("position: collateral too small to mint any synthetic")

	// ErrCollateralRevoked is returned when the collateral asset has been
	// revoked and may no longer back new exposure.
	ErrCollateralRevoked = errors.New("position: collateral asset has been revoked")

	// ErrInsufficientCollateral is returned when a mutation would leave
	// the position undercollateralized.
	ErrInsufficientCollateral = errors.New("position: remaining collateral below required amount")

	// ErrWithdrawExceedsBalance is returned when a withdrawal asks for
	// more collateral than the position holds.
	ErrWithdrawExceedsBalance = errors.New("position: withdrawal exceeds collateral balance")

	// ErrConflictingFilter is returned when a listing filters by owner and
	// asset at once.
	ErrConflictingFilter = errors.New("position: owner and asset filters are mutually exclusive")
)

// Service executes position operations against the ledger. Mutations are
// serialized by a single mutex so each one sees and leaves a consistent
// ledger; an operation either fully applies or leaves no trace.
type Service struct {
	store     store.Store
	registry  *registry.Registry
	oracle    oracle.Oracle
	limiter   *risk.ExposureLimiter // nil disables per-owner limits
	publisher events.Publisher      // nil disables event fan-out

	mu sync.Mutex
}

// NewService creates the position service. Pass nil for limiter or
// publisher if per-owner limits or event fan-out are not needed.
func NewService(st store.Store, reg *registry.Registry, orc oracle.Oracle, limiter *risk.ExposureLimiter, pub events.Publisher) *Service {
	return &Service{
		store:     st,
		registry:  reg,
		oracle:    orc,
		limiter:   limiter,
		publisher: pub,
	}
}

// --- Request and result types ---

// OpenRequest opens a new position.
type OpenRequest struct {
	Sender          string          `json:"sender"`
	Collateral      model.Asset     `json:"collateral"`       // locked up front
	AssetInfo       model.AssetInfo `json:"asset_info"`       // synthetic token to mint
	CollateralRatio decimal.Decimal `json:"collateral_ratio"` // target ratio, at least the asset minimum
}

// DepositRequest adds collateral to an existing position.
type DepositRequest struct {
	PositionIdx uint64      `json:"-"`
	Sender      string      `json:"sender"`
	Collateral  model.Asset `json:"collateral"`
}

// WithdrawRequest removes collateral from a position. A nil Collateral
// withdraws the full balance.
type WithdrawRequest struct {
	PositionIdx uint64       `json:"-"`
	Sender      string       `json:"sender"`
	Collateral  *model.Asset `json:"collateral,omitempty"`
}

// MintRequest mints additional synthetic debt against a position.
type MintRequest struct {
	PositionIdx uint64      `json:"-"`
	Sender      string      `json:"sender"`
	Asset       model.Asset `json:"asset"`
}

// OperationResult reports a committed mutation: the position's state
// after it, the outbound instructions it produced, and its attributes.
// Position is nil when a withdrawal fully unwound the position.
type OperationResult struct {
	PositionIdx  uint64                 `json:"position_idx"`
	Position     *model.Position        `json:"position,omitempty"`
	Instructions []contract.Instruction `json:"instructions,omitempty"`
	Attributes   []model.Attribute      `json:"attributes"`
}

// --- Open ---

// OpenPosition locks the given collateral, computes the synthetic amount
// it supports at the requested ratio, and records the new position under
// the next idx.
func (s *Service) OpenPosition(ctx context.Context, req OpenRequest) (*OperationResult, error) {
	if err := contract.ValidateAssetInfo(req.Collateral.Info); err != nil {
		return nil, err
	}
	if err := validAmount(req.Collateral.Amount); err != nil {
		return nil, err
	}
	if !req.AssetInfo.IsToken() {
		return nil, ErrSyntheticNotToken
	}
	if !req.CollateralRatio.IsPositive() {
		return nil, fmt.Errorf("%w: collateral ratio must be positive", ErrRatioBelowMinimum)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	cfg, err := s.registry.AssetConfig(ctx, req.AssetInfo.Token)
	if err != nil {
		return nil, err
	}
	if err := registry.AssertNotMigrated(cfg); err != nil {
		return nil, err
	}

	coll, err := s.oracle.CollateralInfo(ctx, req.Collateral.Info.Ident(), true)
	if err != nil {
		return nil, err
	}
	if coll.Revoked {
		return nil, ErrCollateralRevoked
	}

	// The effective minimum ratio scales with the collateral's risk
	// multiplier: riskier collateral demands a higher ratio.
	minRatio, err := dmath.Mul(cfg.MinCollateralRatio, coll.Multiplier)
	if err != nil {
		return nil, err
	}
	if req.CollateralRatio.LessThan(minRatio) {
		return nil, fmt.Errorf("%w: minimum %s", ErrRatioBelowMinimum, minRatio)
	}

	assetPrice, err := s.assetPrice(ctx, cfg, true)
	if err != nil {
		return nil, err
	}

	// mint = collateral × (collateral price / asset price) ÷ ratio,
	// flooring at each amount step.
	priceRatio, err := dmath.Div(coll.Price, assetPrice)
	if err != nil {
		return nil, err
	}
	value, err := dmath.MulAmount(req.Collateral.Amount, priceRatio)
	if err != nil {
		return nil, err
	}
	invRatio, err := dmath.Recip(req.CollateralRatio)
	if err != nil {
		return nil, err
	}
	mintAmount, err := dmath.MulAmount(value, invRatio)
	if err != nil {
		return nil, err
	}
	if mintAmount.IsZero() {
		return nil, ErrMintAmountZero
	}

	if s.limiter != nil {
		existing, err := s.ownerPositions(ctx, req.Sender)
		if err != nil {
			return nil, err
		}
		if err := s.limiter.CheckOpen(existing, req.AssetInfo, mintAmount); err != nil {
			return nil, err
		}
	}

	now := time.Now().UTC()
	pos := &model.Position{
		Owner:      req.Sender,
		Collateral: req.Collateral,
		Asset:      model.Asset{Info: req.AssetInfo, Amount: mintAmount},
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	idx, err := s.store.CreatePosition(ctx, pos)
	if err != nil {
		return nil, err
	}
	metrics.PositionsOpen.Inc()

	instructions := []contract.Instruction{
		contract.MintTo(req.AssetInfo.Token, req.Sender, mintAmount),
	}
	attrs := []model.Attribute{
		{Key: "action", Value: "open_position"},
		{Key: "position_idx", Value: strconv.FormatUint(idx, 10)},
		{Key: "mint_amount", Value: pos.Asset.String()},
		{Key: "collateral_amount", Value: pos.Collateral.String()},
	}

	slog.Info("position opened",
		"position_idx", idx,
		"owner", req.Sender,
		"collateral", pos.Collateral.String(),
		"minted", pos.Asset.String(),
	)
	s.publish(ctx, "open_position", idx, req.Sender, attrs, instructions)

	return &OperationResult{
		PositionIdx:  idx,
		Position:     pos,
		Instructions: instructions,
		Attributes:   attrs,
	}, nil
}

// --- Deposit ---

// Deposit adds collateral to an existing position. Depositing can only
// strengthen a position, so no solvency check runs and the collateral
// price may be a non-strict read.
func (s *Service) Deposit(ctx context.Context, req DepositRequest) (*OperationResult, error) {
	if err := contract.ValidateAssetInfo(req.Collateral.Info); err != nil {
		return nil, err
	}
	if err := validAmount(req.Collateral.Amount); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	pos, err := s.store.Position(ctx, req.PositionIdx)
	if err != nil {
		return nil, err
	}
	if pos.Owner != req.Sender {
		return nil, ErrUnauthorized
	}
	if !pos.Collateral.Info.Equal(req.Collateral.Info) {
		return nil, ErrCollateralMismatch
	}

	cfg, err := s.registry.AssetConfig(ctx, pos.Asset.Info.Token)
	if err != nil {
		return nil, err
	}
	if err := registry.AssertNotMigrated(cfg); err != nil {
		return nil, err
	}

	coll, err := s.oracle.CollateralInfo(ctx, pos.Collateral.Info.Ident(), false)
	if err != nil {
		return nil, err
	}
	if coll.Revoked {
		return nil, ErrCollateralRevoked
	}

	sum, err := dmath.Add(pos.Collateral.Amount, req.Collateral.Amount)
	if err != nil {
		return nil, err
	}
	pos.Collateral.Amount = sum
	pos.UpdatedAt = time.Now().UTC()
	if err := s.store.PutPosition(ctx, pos); err != nil {
		return nil, err
	}

	attrs := []model.Attribute{
		{Key: "action", Value: "deposit"},
		{Key: "position_idx", Value: strconv.FormatUint(pos.Idx, 10)},
		{Key: "deposit_amount", Value: req.Collateral.String()},
	}

	slog.Info("collateral deposited",
		"position_idx", pos.Idx,
		"owner", req.Sender,
		"deposit", req.Collateral.String(),
		"collateral", pos.Collateral.String(),
	)
	s.publish(ctx, "deposit", pos.Idx, req.Sender, attrs, nil)

	return &OperationResult{
		PositionIdx: pos.Idx,
		Position:    pos,
		Attributes:  attrs,
	}, nil
}

// --- Withdraw ---

// Withdraw removes collateral from a position if the remainder still
// covers the outstanding debt. Withdrawal stays possible after the
// asset migrates or the collateral is revoked; a migrated asset is
// valued at its frozen end price with the risk multiplier pinned to 1.
// A withdrawal that zeroes both sides removes the position entirely.
func (s *Service) Withdraw(ctx context.Context, req WithdrawRequest) (*OperationResult, error) {
	if req.Collateral != nil {
		if err := contract.ValidateAssetInfo(req.Collateral.Info); err != nil {
			return nil, err
		}
		if err := validAmount(req.Collateral.Amount); err != nil {
			return nil, err
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	pos, err := s.store.Position(ctx, req.PositionIdx)
	if err != nil {
		return nil, err
	}
	if pos.Owner != req.Sender {
		return nil, ErrUnauthorized
	}

	withdraw := pos.Collateral // full balance by default
	if req.Collateral != nil {
		if !pos.Collateral.Info.Equal(req.Collateral.Info) {
			return nil, ErrCollateralMismatch
		}
		if req.Collateral.Amount.GreaterThan(pos.Collateral.Amount) {
			return nil, ErrWithdrawExceedsBalance
		}
		withdraw = *req.Collateral
	}

	cfg, err := s.registry.AssetConfig(ctx, pos.Asset.Info.Token)
	if err != nil {
		return nil, err
	}

	// The revoked flag is deliberately ignored: owners must be able to
	// exit revoked collateral.
	coll, err := s.oracle.CollateralInfo(ctx, pos.Collateral.Info.Ident(), true)
	if err != nil {
		return nil, err
	}
	multiplier := coll.Multiplier
	if cfg.Migrated() {
		multiplier = decimal.NewFromInt(1)
	}

	assetPrice, err := s.assetPrice(ctx, cfg, true)
	if err != nil {
		return nil, err
	}

	remaining, err := dmath.Sub(pos.Collateral.Amount, withdraw.Amount)
	if err != nil {
		return nil, err
	}
	required, err := requiredCollateral(pos.Asset.Amount, assetPrice, coll.Price, cfg.MinCollateralRatio, multiplier)
	if err != nil {
		return nil, err
	}
	if required.GreaterThan(remaining) {
		metrics.SolvencyRejections.Inc()
		return nil, fmt.Errorf("%w: required %s, remaining %s", ErrInsufficientCollateral, required, remaining)
	}

	pos.Collateral.Amount = remaining
	pos.UpdatedAt = time.Now().UTC()

	closed := remaining.IsZero() && pos.Asset.Amount.IsZero()
	if closed {
		if err := s.store.RemovePosition(ctx, pos.Idx); err != nil {
			return nil, err
		}
		metrics.PositionsOpen.Dec()
	} else {
		if err := s.store.PutPosition(ctx, pos); err != nil {
			return nil, err
		}
	}

	instructions := []contract.Instruction{
		contract.ReturnCollateral(withdraw, req.Sender),
	}
	attrs := []model.Attribute{
		{Key: "action", Value: "withdraw"},
		{Key: "position_idx", Value: strconv.FormatUint(pos.Idx, 10)},
		{Key: "withdraw_amount", Value: withdraw.String()},
	}

	slog.Info("collateral withdrawn",
		"position_idx", pos.Idx,
		"owner", req.Sender,
		"withdrawn", withdraw.String(),
		"closed", closed,
	)
	s.publish(ctx, "withdraw", pos.Idx, req.Sender, attrs, instructions)

	result := &OperationResult{
		PositionIdx:  pos.Idx,
		Instructions: instructions,
		Attributes:   attrs,
	}
	if !closed {
		result.Position = pos
	}
	return result, nil
}

// --- Mint ---

// Mint issues additional synthetic debt against a position's existing
// collateral, re-running the solvency rule over the combined total.
func (s *Service) Mint(ctx context.Context, req MintRequest) (*OperationResult, error) {
	if err := contract.ValidateAssetInfo(req.Asset.Info); err != nil {
		return nil, err
	}
	if err := validAmount(req.Asset.Amount); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	pos, err := s.store.Position(ctx, req.PositionIdx)
	if err != nil {
		return nil, err
	}
	if pos.Owner != req.Sender {
		return nil, ErrUnauthorized
	}
	if !pos.Asset.Info.Equal(req.Asset.Info) {
		return nil, ErrAssetMismatch
	}

	cfg, err := s.registry.AssetConfig(ctx, pos.Asset.Info.Token)
	if err != nil {
		return nil, err
	}
	if err := registry.AssertNotMigrated(cfg); err != nil {
		return nil, err
	}

	coll, err := s.oracle.CollateralInfo(ctx, pos.Collateral.Info.Ident(), true)
	if err != nil {
		return nil, err
	}
	if coll.Revoked {
		return nil, ErrCollateralRevoked
	}

	assetPrice, err := s.assetPrice(ctx, cfg, true)
	if err != nil {
		return nil, err
	}

	total, err := dmath.Add(pos.Asset.Amount, req.Asset.Amount)
	if err != nil {
		return nil, err
	}
	required, err := requiredCollateral(total, assetPrice, coll.Price, cfg.MinCollateralRatio, coll.Multiplier)
	if err != nil {
		return nil, err
	}
	if required.GreaterThan(pos.Collateral.Amount) {
		metrics.SolvencyRejections.Inc()
		return nil, fmt.Errorf("%w: required %s, held %s", ErrInsufficientCollateral, required, pos.Collateral.Amount)
	}

	if s.limiter != nil {
		existing, err := s.ownerPositions(ctx, req.Sender)
		if err != nil {
			return nil, err
		}
		if err := s.limiter.CheckMint(existing, req.Asset.Info, req.Asset.Amount); err != nil {
			return nil, err
		}
	}

	pos.Asset.Amount = total
	pos.UpdatedAt = time.Now().UTC()
	if err := s.store.PutPosition(ctx, pos); err != nil {
		return nil, err
	}

	instructions := []contract.Instruction{
		contract.MintTo(pos.Asset.Info.Token, req.Sender, req.Asset.Amount),
	}
	attrs := []model.Attribute{
		{Key: "action", Value: "mint"},
		{Key: "position_idx", Value: strconv.FormatUint(pos.Idx, 10)},
		{Key: "mint_amount", Value: req.Asset.String()},
	}

	slog.Info("synthetic minted",
		"position_idx", pos.Idx,
		"owner", req.Sender,
		"minted", req.Asset.String(),
		"debt", pos.Asset.String(),
	)
	s.publish(ctx, "mint", pos.Idx, req.Sender, attrs, instructions)

	return &OperationResult{
		PositionIdx:  pos.Idx,
		Position:     pos,
		Instructions: instructions,
		Attributes:   attrs,
	}, nil
}

// --- Queries ---

// Position returns one position by idx.
func (s *Service) Position(ctx context.Context, idx uint64) (*model.Position, error) {
	return s.store.Position(ctx, idx)
}

// PositionsQuery selects a page of positions, optionally filtered by
// owner or by synthetic token (not both).
type PositionsQuery struct {
	Owner      string
	AssetToken string
	StartAfter *uint64
	Limit      int
	Descending bool
}

// Positions lists positions matching the query in idx order.
func (s *Service) Positions(ctx context.Context, q PositionsQuery) ([]model.Position, error) {
	if q.Owner != "" && q.AssetToken != "" {
		return nil, ErrConflictingFilter
	}
	lq := store.ListQuery{StartAfter: q.StartAfter, Limit: q.Limit, Descending: q.Descending}
	switch {
	case q.Owner != "":
		return s.store.PositionsByOwner(ctx, q.Owner, lq)
	case q.AssetToken != "":
		return s.store.PositionsByAsset(ctx, q.AssetToken, lq)
	default:
		return s.store.Positions(ctx, lq)
	}
}

// NextPositionIdx returns the idx the next successful open will use.
func (s *Service) NextPositionIdx(ctx context.Context) (uint64, error) {
	return s.store.NextPositionIdx(ctx)
}

// --- Solvency ---

// requiredCollateral computes the minimum collateral backing an amount of
// synthetic debt: amount × (asset price / collateral price) × minimum
// ratio × multiplier, flooring at each amount step. This is the single
// solvency rule; withdraw and mint both route through it.
func requiredCollateral(debt, assetPrice, collateralPrice, minRatio, multiplier decimal.Decimal) (decimal.Decimal, error) {
	priceRatio, err := dmath.Div(assetPrice, collateralPrice)
	if err != nil {
		return decimal.Zero, err
	}
	value, err := dmath.MulAmount(debt, priceRatio)
	if err != nil {
		return decimal.Zero, err
	}
	scaled, err := dmath.MulAmount(value, minRatio)
	if err != nil {
		return decimal.Zero, err
	}
	return dmath.MulAmount(scaled, multiplier)
}

// assetPrice resolves the synthetic's valuation price: the frozen end
// price once migrated, otherwise a live oracle quote.
func (s *Service) assetPrice(ctx context.Context, cfg *model.AssetConfig, strict bool) (decimal.Decimal, error) {
	if cfg.EndPrice != nil {
		return *cfg.EndPrice, nil
	}
	return s.oracle.Price(ctx, cfg.Token, strict)
}

// --- Helpers ---

func validAmount(a decimal.Decimal) error {
	if !a.IsPositive() || !a.Equal(a.Truncate(0)) {
		return ErrZeroAmount
	}
	if a.GreaterThan(dmath.MaxAmount) {
		return dmath.ErrOverflow
	}
	return nil
}

// ownerPositions collects every position held by owner, paging through
// the store in MaxLimit chunks.
func (s *Service) ownerPositions(ctx context.Context, owner string) ([]model.Position, error) {
	var all []model.Position
	var after *uint64
	for {
		page, err := s.store.PositionsByOwner(ctx, owner, store.ListQuery{StartAfter: after, Limit: store.MaxLimit})
		if err != nil {
			return nil, err
		}
		all = append(all, page...)
		if len(page) < store.MaxLimit {
			return all, nil
		}
		last := page[len(page)-1].Idx
		after = &last
	}
}

// publish records the success metric and fans the event out, if a
// publisher is configured.
func (s *Service) publish(ctx context.Context, action string, idx uint64, owner string, attrs []model.Attribute, instructions []contract.Instruction) {
	metrics.OperationsTotal.WithLabelValues(action).Inc()
	if s.publisher == nil {
		return
	}
	s.publisher.Publish(ctx, events.PositionEvent{
		ID:           uuid.New().String(),
		Action:       action,
		PositionIdx:  idx,
		Owner:        owner,
		Attributes:   attrs,
		Instructions: instructions,
		Timestamp:    time.Now().UTC(),
	})
}
