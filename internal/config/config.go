// Package config loads the daemon configuration from environment
// variables.
package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/caarlos0/env/v11"
)

// Store backends.
const (
	StoreMemory   = "memory"
	StoreSQLite   = "sqlite"
	StorePostgres = "postgres"
)

// Config holds the application configuration.
type Config struct {
	Environment string `env:"APP_ENV" envDefault:"development"`
	ListenAddr  string `env:"LISTEN_ADDR" envDefault:":8080"`

	// SnapshotStore selects the financial data backend.
	SnapshotStore string `env:"SNAPSHOT_STORE" envDefault:"memory"`
	SQLitePath    string `env:"SQLITE_PATH"`
	DatabaseURL   string `env:"DATABASE_URL"`

	// Governance limits. Zero values fall back to the stock constants.
	SinglePaymentCeiling float64 `env:"SINGLE_PAYMENT_CEILING" envDefault:"50000"`
	BatchTotalCeiling    float64 `env:"BATCH_TOTAL_CEILING" envDefault:"250000"`
	DailySpendingLimit   float64 `env:"DAILY_SPENDING_LIMIT" envDefault:"100000"`
	ReserveRatio         float64 `env:"RESERVE_RATIO" envDefault:"0.10"`
}

// Load parses configuration from the environment and validates it.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parsing environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that the configuration is valid.
func (c *Config) Validate() error {
	var missing []string

	switch c.SnapshotStore {
	case StoreMemory:
	case StoreSQLite:
		if c.SQLitePath == "" {
			missing = append(missing, "SQLITE_PATH")
		}
	case StorePostgres:
		if c.DatabaseURL == "" {
			missing = append(missing, "DATABASE_URL")
		}
	default:
		return fmt.Errorf("SNAPSHOT_STORE must be one of memory, sqlite, postgres; got %q", c.SnapshotStore)
	}

	if len(missing) > 0 {
		return errors.New("missing required environment variables: " + strings.Join(missing, ", "))
	}

	if c.ReserveRatio < 0 || c.ReserveRatio >= 1 {
		return fmt.Errorf("RESERVE_RATIO must be in [0, 1); got %v", c.ReserveRatio)
	}
	if c.SinglePaymentCeiling < 0 || c.BatchTotalCeiling < 0 || c.DailySpendingLimit < 0 {
		return errors.New("spending limits must not be negative")
	}

	return nil
}
