// Package config loads engine configuration from an optional TOML file
// with environment variable overrides. Environment variables win so
// container deployments can override a baked-in file.
package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
	"github.com/shopspring/decimal"

	"github.com/synthos/mint-engine/internal/contract"
)

var (
	// ErrInvalidFeeRate is returned when the protocol fee rate is outside [0, 1).
	ErrInvalidFeeRate = errors.New("config: protocol fee rate must be in [0, 1)")

	// ErrInvalidRiskLimit is returned for a negative risk limit.
	ErrInvalidRiskLimit = errors.New("config: risk limits must be non-negative")
)

// Config is the full engine configuration.
type Config struct {
	Port        string `toml:"port"`
	DatabaseURL string `toml:"database_url"` // empty selects the in-memory store
	RedisURL    string `toml:"redis_url"`    // empty disables the read-through cache
	NATSURL     string `toml:"nats_url"`     // empty disables event publishing

	Oracle OracleConfig `toml:"oracle"`
	Engine EngineConfig `toml:"engine"`
	Risk   RiskConfig   `toml:"risk"`
}

// OracleConfig points at the external price services. Empty URLs select
// the static in-process oracle, which is only useful for development.
type OracleConfig struct {
	PriceURL      string `toml:"price_url"`      // synthetic asset price oracle
	CollateralURL string `toml:"collateral_url"` // collateral price and multiplier oracle
}

// EngineConfig carries protocol-level parameters. The module identities
// name external collaborators; the engine never calls them, it only
// reports them through the config query.
type EngineConfig struct {
	BaseDenom       string          `toml:"base_denom"`        // prices are quoted in this denom
	ProtocolFeeRate decimal.Decimal `toml:"protocol_fee_rate"` // in [0, 1)
	FeeCollector    string          `toml:"fee_collector"`     // protocol fee recipient
	TokenFactory    string          `toml:"token_factory"`     // synthetic-token factory
	StakingModule   string          `toml:"staking_module"`
	LockModule      string          `toml:"lock_module"`
}

// RiskConfig carries per-owner exposure limits. Zero disables a limit.
type RiskConfig struct {
	MaxPositionsPerOwner int             `toml:"max_positions_per_owner"`
	MaxAssetExposure     decimal.Decimal `toml:"max_asset_exposure"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Port: "8080",
		Engine: EngineConfig{
			BaseDenom:       "uusd",
			ProtocolFeeRate: decimal.RequireFromString("0.01"),
		},
	}
}

// Load builds the configuration from defaults, then the TOML file named
// by CONFIG_FILE if set, then environment variables.
func Load() (Config, error) {
	cfg := Default()

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return Config{}, fmt.Errorf("config: decode %s: %w", path, err)
		}
	}

	applyEnv(&cfg)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	setIfPresent(&cfg.Port, "PORT")
	setIfPresent(&cfg.DatabaseURL, "DATABASE_URL")
	setIfPresent(&cfg.RedisURL, "REDIS_URL")
	setIfPresent(&cfg.NATSURL, "NATS_URL")
	setIfPresent(&cfg.Oracle.PriceURL, "ORACLE_URL")
	setIfPresent(&cfg.Oracle.CollateralURL, "COLLATERAL_ORACLE_URL")
	setIfPresent(&cfg.Engine.BaseDenom, "BASE_DENOM")
}

func setIfPresent(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

// Validate checks the parameter ranges that have them.
func (c Config) Validate() error {
	if c.Port == "" {
		return errors.New("config: port must not be empty")
	}
	if err := contract.ValidateDenom(c.Engine.BaseDenom); err != nil {
		return fmt.Errorf("config: base denom: %w", err)
	}
	fee := c.Engine.ProtocolFeeRate
	if fee.IsNegative() || fee.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		return ErrInvalidFeeRate
	}
	for _, ident := range []string{
		c.Engine.FeeCollector,
		c.Engine.TokenFactory,
		c.Engine.StakingModule,
		c.Engine.LockModule,
	} {
		if ident == "" {
			continue
		}
		if err := contract.ValidateTokenIdent(ident); err != nil {
			return fmt.Errorf("config: module identity: %w", err)
		}
	}
	if c.Risk.MaxPositionsPerOwner < 0 || c.Risk.MaxAssetExposure.IsNegative() {
		return ErrInvalidRiskLimit
	}
	return nil
}
