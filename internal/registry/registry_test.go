package registry

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/synthos/mint-engine/internal/contract"
	"github.com/synthos/mint-engine/internal/model"
	"github.com/synthos/mint-engine/internal/store"
)

func newTestRegistry() *Registry {
	return New(store.NewMemoryStore())
}

func testConfig(ratio float64) *model.AssetConfig {
	return &model.AssetConfig{
		Token:              "msynth-tsla",
		MinCollateralRatio: decimal.NewFromFloat(ratio),
	}
}

// --- Registration tests ---

func TestRegister_Valid(t *testing.T) {
	r := newTestRegistry()
	ctx := context.Background()

	if err := r.Register(ctx, testConfig(1.5)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	cfg, err := r.AssetConfig(ctx, "msynth-tsla")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !cfg.MinCollateralRatio.Equal(decimal.NewFromFloat(1.5)) {
		t.Errorf("expected ratio 1.5, got %s", cfg.MinCollateralRatio)
	}
}

func TestRegister_RatioBelowFloor(t *testing.T) {
	r := newTestRegistry()
	err := r.Register(context.Background(), testConfig(1.1))
	if !errors.Is(err, ErrRatioTooLow) {
		t.Errorf("expected ErrRatioTooLow, got %v", err)
	}
}

func TestRegister_InvalidToken(t *testing.T) {
	r := newTestRegistry()
	cfg := testConfig(1.5)
	cfg.Token = "BAD_TOKEN"
	err := r.Register(context.Background(), cfg)
	if !errors.Is(err, contract.ErrInvalidTokenIdent) {
		t.Errorf("expected ErrInvalidTokenIdent, got %v", err)
	}
}

func TestRegister_RatioAtFloor(t *testing.T) {
	r := newTestRegistry()
	if err := r.Register(context.Background(), testConfig(1.2)); err != nil {
		t.Errorf("ratio exactly at the floor should register, got %v", err)
	}
}

func TestRegister_Duplicate(t *testing.T) {
	r := newTestRegistry()
	ctx := context.Background()

	if err := r.Register(ctx, testConfig(1.5)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	err := r.Register(ctx, testConfig(1.8))
	if !errors.Is(err, ErrAssetExists) {
		t.Errorf("expected ErrAssetExists, got %v", err)
	}
}

// --- Lookup tests ---

func TestAssetConfig_Unknown(t *testing.T) {
	r := newTestRegistry()
	_, err := r.AssetConfig(context.Background(), "msynth-unknown")
	if !errors.Is(err, ErrUnknownAsset) {
		t.Errorf("expected ErrUnknownAsset, got %v", err)
	}
}

// --- Migration tests ---

func TestRegisterMigration_FreezesAsset(t *testing.T) {
	r := newTestRegistry()
	ctx := context.Background()

	if err := r.Register(ctx, testConfig(1.5)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := r.RegisterMigration(ctx, "msynth-tsla", decimal.NewFromInt(4)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	cfg, _ := r.AssetConfig(ctx, "msynth-tsla")
	if !cfg.Migrated() {
		t.Fatal("expected asset to be migrated")
	}
	if !cfg.EndPrice.Equal(decimal.NewFromInt(4)) {
		t.Errorf("expected end price 4, got %s", cfg.EndPrice)
	}
	if err := AssertNotMigrated(cfg); !errors.Is(err, ErrAssetMigrated) {
		t.Errorf("expected ErrAssetMigrated, got %v", err)
	}
}

func TestRegisterMigration_UnknownAsset(t *testing.T) {
	r := newTestRegistry()
	err := r.RegisterMigration(context.Background(), "msynth-unknown", decimal.NewFromInt(4))
	if !errors.Is(err, ErrUnknownAsset) {
		t.Errorf("expected ErrUnknownAsset, got %v", err)
	}
}

func TestRegisterMigration_AlreadyMigrated(t *testing.T) {
	r := newTestRegistry()
	ctx := context.Background()

	r.Register(ctx, testConfig(1.5))
	r.RegisterMigration(ctx, "msynth-tsla", decimal.NewFromInt(4))

	err := r.RegisterMigration(ctx, "msynth-tsla", decimal.NewFromInt(5))
	if !errors.Is(err, ErrAssetMigrated) {
		t.Errorf("expected ErrAssetMigrated, got %v", err)
	}
}

func TestRegisterMigration_InvalidEndPrice(t *testing.T) {
	r := newTestRegistry()
	ctx := context.Background()
	r.Register(ctx, testConfig(1.5))

	err := r.RegisterMigration(ctx, "msynth-tsla", decimal.Zero)
	if !errors.Is(err, ErrInvalidEndPrice) {
		t.Errorf("expected ErrInvalidEndPrice, got %v", err)
	}
}

func TestAssertNotMigrated_FreshAsset(t *testing.T) {
	cfg := testConfig(1.5)
	if err := AssertNotMigrated(cfg); err != nil {
		t.Errorf("fresh asset should pass, got %v", err)
	}
}
