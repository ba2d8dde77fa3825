package risk

import (
	"testing"

	"github.com/shopspring/decimal"

	"github.com/synthos/mint-engine/internal/model"
)

func amt(i int64) decimal.Decimal {
	return decimal.NewFromInt(i)
}

func positionWithDebt(token string, debt int64) model.Position {
	return model.Position{
		Asset: model.Asset{Info: model.TokenAsset(token), Amount: amt(debt)},
	}
}

func TestCheckOpen_WithinLimits(t *testing.T) {
	limiter := NewExposureLimiter(5, amt(10000))

	err := limiter.CheckOpen(nil, model.TokenAsset("msynth-tsla"), amt(100))
	if err != nil {
		t.Errorf("expected no error, got %v", err)
	}
}

func TestCheckOpen_PositionCountExceeded(t *testing.T) {
	limiter := NewExposureLimiter(2, amt(10000))

	existing := []model.Position{
		positionWithDebt("msynth-tsla", 100),
		positionWithDebt("msynth-aapl", 100),
	}

	err := limiter.CheckOpen(existing, model.TokenAsset("msynth-goog"), amt(100))
	if err != ErrPositionLimitExceeded {
		t.Errorf("expected ErrPositionLimitExceeded, got %v", err)
	}
}

func TestCheckOpen_CountAtLimitAllowed(t *testing.T) {
	limiter := NewExposureLimiter(2, amt(10000))

	existing := []model.Position{
		positionWithDebt("msynth-tsla", 100),
	}

	err := limiter.CheckOpen(existing, model.TokenAsset("msynth-goog"), amt(100))
	if err != nil {
		t.Errorf("second position should be allowed at limit 2, got %v", err)
	}
}

func TestCheckMint_ExposureExceeded(t *testing.T) {
	limiter := NewExposureLimiter(0, amt(1000))

	existing := []model.Position{
		positionWithDebt("msynth-tsla", 600),
		positionWithDebt("msynth-tsla", 300),
	}

	// 600 + 300 + 200 = 1100 > 1000.
	err := limiter.CheckMint(existing, model.TokenAsset("msynth-tsla"), amt(200))
	if err != ErrExposureLimitExceeded {
		t.Errorf("expected ErrExposureLimitExceeded, got %v", err)
	}
}

func TestCheckMint_ExposureAtLimitAllowed(t *testing.T) {
	limiter := NewExposureLimiter(0, amt(1000))

	existing := []model.Position{
		positionWithDebt("msynth-tsla", 600),
	}

	// 600 + 400 = 1000, exactly at the limit.
	err := limiter.CheckMint(existing, model.TokenAsset("msynth-tsla"), amt(400))
	if err != nil {
		t.Errorf("mint at exact limit should be allowed, got %v", err)
	}
}

func TestCheckMint_OtherAssetsIgnored(t *testing.T) {
	limiter := NewExposureLimiter(0, amt(1000))

	existing := []model.Position{
		positionWithDebt("msynth-tsla", 600),
		positionWithDebt("msynth-aapl", 900), // different token, not counted
	}

	err := limiter.CheckMint(existing, model.TokenAsset("msynth-tsla"), amt(300))
	if err != nil {
		t.Errorf("other tokens should not count toward exposure, got %v", err)
	}
}

func TestCheckMint_ZeroLimitDisabled(t *testing.T) {
	limiter := NewExposureLimiter(0, decimal.Zero)

	existing := []model.Position{
		positionWithDebt("msynth-tsla", 1_000_000),
	}

	err := limiter.CheckMint(existing, model.TokenAsset("msynth-tsla"), amt(1_000_000))
	if err != nil {
		t.Errorf("zero exposure limit should disable the check, got %v", err)
	}
}

func TestCheckOpen_ZeroCountDisabled(t *testing.T) {
	limiter := NewExposureLimiter(0, decimal.Zero)

	existing := make([]model.Position, 50)
	for i := range existing {
		existing[i] = positionWithDebt("msynth-tsla", 10)
	}

	err := limiter.CheckOpen(existing, model.TokenAsset("msynth-tsla"), amt(10))
	if err != nil {
		t.Errorf("zero position limit should disable the check, got %v", err)
	}
}
