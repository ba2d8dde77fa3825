package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/synthos/mint-engine/internal/model"
)

// PostgresStore implements Store using PostgreSQL as the source of truth.
// All monetary values are stored as NUMERIC for exact decimal precision.
// The owner and asset indices are SQL indexes over the positions table;
// CreatePosition runs in one transaction with the counter advance, so the
// record, its index visibility and the counter commit together.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgreSQL-backed store.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS positions (
		idx               BIGINT PRIMARY KEY,
		owner_addr        TEXT NOT NULL,
		collateral_native TEXT NOT NULL DEFAULT '',
		collateral_token  TEXT NOT NULL DEFAULT '',
		collateral_amount NUMERIC NOT NULL,
		asset_token       TEXT NOT NULL,
		asset_amount      NUMERIC NOT NULL,
		created_at        TIMESTAMPTZ NOT NULL,
		updated_at        TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS positions_by_owner ON positions (owner_addr)`,
	`CREATE INDEX IF NOT EXISTS positions_by_asset ON positions (asset_token)`,
	`CREATE TABLE IF NOT EXISTS position_counter (
		singleton BOOLEAN PRIMARY KEY DEFAULT TRUE CHECK (singleton),
		next_idx  BIGINT NOT NULL
	)`,
	`INSERT INTO position_counter (singleton, next_idx) VALUES (TRUE, 1)
	 ON CONFLICT DO NOTHING`,
	`CREATE TABLE IF NOT EXISTS asset_configs (
		token                TEXT PRIMARY KEY,
		min_collateral_ratio NUMERIC NOT NULL,
		end_price            NUMERIC
	)`,
}

// EnsureSchema creates the tables when absent and seeds the counter at 1.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	for _, stmt := range schemaStatements {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}

func (s *PostgresStore) NextPositionIdx(ctx context.Context) (uint64, error) {
	var idx int64
	err := s.pool.QueryRow(ctx,
		`SELECT next_idx FROM position_counter`).Scan(&idx)
	if err != nil {
		return 0, fmt.Errorf("next position idx: %w", err)
	}
	return uint64(idx), nil
}

func (s *PostgresStore) CreatePosition(ctx context.Context, p *model.Position) (uint64, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback(ctx)

	var idx int64
	if err := tx.QueryRow(ctx,
		`SELECT next_idx FROM position_counter FOR UPDATE`).Scan(&idx); err != nil {
		return 0, fmt.Errorf("allocate position idx: %w", err)
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO positions (idx, owner_addr, collateral_native, collateral_token, collateral_amount, asset_token, asset_amount, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5::NUMERIC, $6, $7::NUMERIC, $8, $9)`,
		idx, p.Owner,
		p.Collateral.Info.Native, p.Collateral.Info.Token, p.Collateral.Amount.String(),
		p.Asset.Info.Token, p.Asset.Amount.String(),
		p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		return 0, fmt.Errorf("insert position: %w", err)
	}

	if _, err := tx.Exec(ctx,
		`UPDATE position_counter SET next_idx = next_idx + 1`); err != nil {
		return 0, fmt.Errorf("advance position counter: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, err
	}
	p.Idx = uint64(idx)
	return uint64(idx), nil
}

func (s *PostgresStore) Position(ctx context.Context, idx uint64) (*model.Position, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT idx, owner_addr, collateral_native, collateral_token,
		        collateral_amount::TEXT, asset_token, asset_amount::TEXT,
		        created_at, updated_at
		 FROM positions WHERE idx = $1`, int64(idx))

	p, err := scanPosition(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("position %d: %w", idx, ErrPositionNotFound)
		}
		return nil, fmt.Errorf("get position %d: %w", idx, err)
	}
	return p, nil
}

func (s *PostgresStore) PutPosition(ctx context.Context, p *model.Position) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE positions
		 SET collateral_amount = $2::NUMERIC, asset_amount = $3::NUMERIC, updated_at = $4
		 WHERE idx = $1`,
		int64(p.Idx), p.Collateral.Amount.String(), p.Asset.Amount.String(), p.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("put position %d: %w", p.Idx, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("position %d: %w", p.Idx, ErrPositionNotFound)
	}
	return nil
}

func (s *PostgresStore) RemovePosition(ctx context.Context, idx uint64) error {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM positions WHERE idx = $1`, int64(idx))
	if err != nil {
		return fmt.Errorf("remove position %d: %w", idx, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("position %d: %w", idx, ErrPositionNotFound)
	}
	return nil
}

func (s *PostgresStore) Positions(ctx context.Context, q ListQuery) ([]model.Position, error) {
	return s.listPositions(ctx, "", nil, q)
}

func (s *PostgresStore) PositionsByOwner(ctx context.Context, owner string, q ListQuery) ([]model.Position, error) {
	return s.listPositions(ctx, "owner_addr = $1", []any{owner}, q)
}

func (s *PostgresStore) PositionsByAsset(ctx context.Context, token string, q ListQuery) ([]model.Position, error) {
	return s.listPositions(ctx, "asset_token = $1", []any{token}, q)
}

// listPositions builds the paged query: an optional filter condition, the
// exclusive idx bound, ordering and the page size.
func (s *PostgresStore) listPositions(ctx context.Context, cond string, condArgs []any, q ListQuery) ([]model.Position, error) {
	sql := `SELECT idx, owner_addr, collateral_native, collateral_token,
	               collateral_amount::TEXT, asset_token, asset_amount::TEXT,
	               created_at, updated_at
	        FROM positions`

	args := append([]any{}, condArgs...)
	var where []string
	if cond != "" {
		where = append(where, cond)
	}
	if q.StartAfter != nil {
		op := ">"
		if q.Descending {
			op = "<"
		}
		args = append(args, int64(*q.StartAfter))
		where = append(where, fmt.Sprintf("idx %s $%d", op, len(args)))
	}
	if len(where) > 0 {
		sql += " WHERE " + strings.Join(where, " AND ")
	}

	dir := "ASC"
	if q.Descending {
		dir = "DESC"
	}
	args = append(args, q.Normalize())
	sql += fmt.Sprintf(" ORDER BY idx %s LIMIT $%d", dir, len(args))

	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var positions []model.Position
	for rows.Next() {
		p, err := scanPosition(rows)
		if err != nil {
			return nil, err
		}
		positions = append(positions, *p)
	}
	return positions, rows.Err()
}

func (s *PostgresStore) AssetConfig(ctx context.Context, token string) (*model.AssetConfig, error) {
	var cfg model.AssetConfig
	var ratioS string
	var endPriceS *string

	err := s.pool.QueryRow(ctx,
		`SELECT token, min_collateral_ratio::TEXT, end_price::TEXT
		 FROM asset_configs WHERE token = $1`, token).
		Scan(&cfg.Token, &ratioS, &endPriceS)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("asset %s: %w", token, ErrAssetNotFound)
		}
		return nil, fmt.Errorf("get asset config %s: %w", token, err)
	}

	cfg.MinCollateralRatio, _ = decimal.NewFromString(ratioS)
	if endPriceS != nil {
		ep, _ := decimal.NewFromString(*endPriceS)
		cfg.EndPrice = &ep
	}
	return &cfg, nil
}

func (s *PostgresStore) PutAssetConfig(ctx context.Context, cfg *model.AssetConfig) error {
	var endPrice any
	if cfg.EndPrice != nil {
		endPrice = cfg.EndPrice.String()
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO asset_configs (token, min_collateral_ratio, end_price)
		 VALUES ($1, $2::NUMERIC, $3::NUMERIC)
		 ON CONFLICT (token) DO UPDATE
		 SET min_collateral_ratio = EXCLUDED.min_collateral_ratio,
		     end_price = EXCLUDED.end_price`,
		cfg.Token, cfg.MinCollateralRatio.String(), endPrice,
	)
	return err
}

// pgxRow is the single-row scan surface shared by QueryRow and Rows.
type pgxRow interface {
	Scan(dest ...interface{}) error
}

// scanPosition reads one row into a Position, rebuilding the tagged
// collateral variant from its two identity columns.
func scanPosition(row pgxRow) (*model.Position, error) {
	var p model.Position
	var idx int64
	var collateralAmtS, assetAmtS string

	if err := row.Scan(&idx, &p.Owner,
		&p.Collateral.Info.Native, &p.Collateral.Info.Token,
		&collateralAmtS, &p.Asset.Info.Token, &assetAmtS,
		&p.CreatedAt, &p.UpdatedAt); err != nil {
		return nil, err
	}

	p.Idx = uint64(idx)
	p.Collateral.Amount, _ = decimal.NewFromString(collateralAmtS)
	p.Asset.Amount, _ = decimal.NewFromString(assetAmtS)
	return &p, nil
}
