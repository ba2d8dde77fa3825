package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/synthos/mint-engine/internal/model"
)

func newTestPosition(owner, token string, collateral, synthetic int64) *model.Position {
	now := time.Now().UTC()
	return &model.Position{
		Owner: owner,
		Collateral: model.Asset{
			Info:   model.NativeAsset("uusd"),
			Amount: decimal.NewFromInt(collateral),
		},
		Asset: model.Asset{
			Info:   model.TokenAsset(token),
			Amount: decimal.NewFromInt(synthetic),
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// --- Counter tests ---

func TestCreatePosition_MonotonicIdx(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	next, err := s.NextPositionIdx(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if next != 1 {
		t.Fatalf("counter should start at 1, got %d", next)
	}

	for want := uint64(1); want <= 3; want++ {
		idx, err := s.CreatePosition(ctx, newTestPosition("alice", "msynth-tsla", 1000, 500))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if idx != want {
			t.Errorf("expected idx %d, got %d", want, idx)
		}
	}

	next, _ = s.NextPositionIdx(ctx)
	if next != 4 {
		t.Errorf("expected next idx 4 after three creates, got %d", next)
	}
}

// --- CRUD tests ---

func TestPosition_NotFound(t *testing.T) {
	s := NewMemoryStore()
	_, err := s.Position(context.Background(), 42)
	if !errors.Is(err, ErrPositionNotFound) {
		t.Errorf("expected ErrPositionNotFound, got %v", err)
	}
}

func TestPosition_CopyOut(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	idx, _ := s.CreatePosition(ctx, newTestPosition("alice", "msynth-tsla", 1000, 500))

	p, err := s.Position(ctx, idx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// Mutating the returned copy must not affect the stored record.
	p.Collateral.Amount = decimal.NewFromInt(1)

	again, _ := s.Position(ctx, idx)
	if !again.Collateral.Amount.Equal(decimal.NewFromInt(1000)) {
		t.Errorf("stored position mutated through returned copy: %s", again.Collateral.Amount)
	}
}

func TestPutPosition_Overwrites(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	idx, _ := s.CreatePosition(ctx, newTestPosition("alice", "msynth-tsla", 1000, 500))

	p, _ := s.Position(ctx, idx)
	p.Collateral.Amount = decimal.NewFromInt(1250)
	if err := s.PutPosition(ctx, p); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got, _ := s.Position(ctx, idx)
	if !got.Collateral.Amount.Equal(decimal.NewFromInt(1250)) {
		t.Errorf("expected collateral 1250, got %s", got.Collateral.Amount)
	}
}

func TestPutPosition_Missing(t *testing.T) {
	s := NewMemoryStore()
	p := newTestPosition("alice", "msynth-tsla", 1000, 500)
	p.Idx = 99
	err := s.PutPosition(context.Background(), p)
	if !errors.Is(err, ErrPositionNotFound) {
		t.Errorf("expected ErrPositionNotFound, got %v", err)
	}
}

func TestRemovePosition_PrunesIndices(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	idx1, _ := s.CreatePosition(ctx, newTestPosition("alice", "msynth-tsla", 1000, 500))
	idx2, _ := s.CreatePosition(ctx, newTestPosition("alice", "msynth-tsla", 2000, 800))

	if err := s.RemovePosition(ctx, idx1); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if _, err := s.Position(ctx, idx1); !errors.Is(err, ErrPositionNotFound) {
		t.Errorf("removed position still readable: %v", err)
	}

	byOwner, _ := s.PositionsByOwner(ctx, "alice", ListQuery{})
	if len(byOwner) != 1 || byOwner[0].Idx != idx2 {
		t.Errorf("owner index not pruned: %+v", byOwner)
	}

	byAsset, _ := s.PositionsByAsset(ctx, "msynth-tsla", ListQuery{})
	if len(byAsset) != 1 || byAsset[0].Idx != idx2 {
		t.Errorf("asset index not pruned: %+v", byAsset)
	}
}

// --- Listing and pagination tests ---

func TestListPositions_Pagination(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		owner := "alice"
		if i%2 == 1 {
			owner = "bob"
		}
		s.CreatePosition(ctx, newTestPosition(owner, "msynth-tsla", 1000, 500))
	}

	idxs := func(ps []model.Position) []uint64 {
		out := make([]uint64, len(ps))
		for i, p := range ps {
			out[i] = p.Idx
		}
		return out
	}
	after := func(n uint64) *uint64 { return &n }

	tests := []struct {
		name string
		q    ListQuery
		want []uint64
	}{
		{"ascending limit", ListQuery{Limit: 2}, []uint64{1, 2}},
		{"ascending start after", ListQuery{StartAfter: after(2), Limit: 2}, []uint64{3, 4}},
		{"descending", ListQuery{Limit: 2, Descending: true}, []uint64{5, 4}},
		{"descending start after", ListQuery{StartAfter: after(3), Descending: true}, []uint64{2, 1}},
		{"default limit", ListQuery{}, []uint64{1, 2, 3, 4, 5}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := s.Positions(ctx, tt.q)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			gotIdxs := idxs(got)
			if len(gotIdxs) != len(tt.want) {
				t.Fatalf("expected idxs %v, got %v", tt.want, gotIdxs)
			}
			for i := range tt.want {
				if gotIdxs[i] != tt.want[i] {
					t.Fatalf("expected idxs %v, got %v", tt.want, gotIdxs)
				}
			}
		})
	}
}

func TestPositionsByOwner_FiltersOwner(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	s.CreatePosition(ctx, newTestPosition("alice", "msynth-tsla", 1000, 500))
	s.CreatePosition(ctx, newTestPosition("bob", "msynth-tsla", 1000, 500))
	s.CreatePosition(ctx, newTestPosition("alice", "msynth-aapl", 1000, 500))

	got, err := s.PositionsByOwner(ctx, "alice", ListQuery{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 positions for alice, got %d", len(got))
	}
	for _, p := range got {
		if p.Owner != "alice" {
			t.Errorf("wrong owner in listing: %s", p.Owner)
		}
	}
}

func TestPositionsByAsset_FiltersToken(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	s.CreatePosition(ctx, newTestPosition("alice", "msynth-tsla", 1000, 500))
	s.CreatePosition(ctx, newTestPosition("bob", "msynth-aapl", 1000, 500))

	got, err := s.PositionsByAsset(ctx, "msynth-aapl", ListQuery{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 1 || got[0].Owner != "bob" {
		t.Errorf("expected bob's msynth-aapl position, got %+v", got)
	}
}

func TestListQuery_LimitCap(t *testing.T) {
	q := ListQuery{Limit: 100}
	if q.Normalize() != MaxLimit {
		t.Errorf("expected limit capped at %d, got %d", MaxLimit, q.Normalize())
	}
	q = ListQuery{}
	if q.Normalize() != DefaultLimit {
		t.Errorf("expected default limit %d, got %d", DefaultLimit, q.Normalize())
	}
}

// --- Asset config tests ---

func TestAssetConfig_Roundtrip(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	cfg := &model.AssetConfig{
		Token:              "msynth-tsla",
		MinCollateralRatio: decimal.NewFromFloat(1.5),
	}
	if err := s.PutAssetConfig(ctx, cfg); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got, err := s.AssetConfig(ctx, "msynth-tsla")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !got.MinCollateralRatio.Equal(decimal.NewFromFloat(1.5)) {
		t.Errorf("expected ratio 1.5, got %s", got.MinCollateralRatio)
	}
	if got.Migrated() {
		t.Error("fresh asset should not be migrated")
	}
}

func TestAssetConfig_NotFound(t *testing.T) {
	s := NewMemoryStore()
	_, err := s.AssetConfig(context.Background(), "msynth-unknown")
	if !errors.Is(err, ErrAssetNotFound) {
		t.Errorf("expected ErrAssetNotFound, got %v", err)
	}
}
