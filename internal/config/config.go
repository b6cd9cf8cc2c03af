// Package config provides process configuration for caliber.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config holds the process configuration, bound from CALIBER_* environment
// variables.
type Config struct {
	// DatabaseDSN is a postgres:// DSN or a SQLite file path. Empty means
	// the default local database file.
	DatabaseDSN string `env:"CALIBER_DATABASE_DSN"`

	// MaxConns is the maximum number of open database connections.
	MaxConns int `env:"CALIBER_DB_MAX_CONNS" envDefault:"10"`

	// WorkerPort is the HTTP port for the ops service.
	WorkerPort int `env:"CALIBER_WORKER_PORT" envDefault:"38080"`

	// ConfigTTL is how long resolved learning configuration is cached.
	ConfigTTL time.Duration `env:"CALIBER_CONFIG_TTL" envDefault:"1m"`

	// Debug enables debug-level logging.
	Debug bool `env:"CALIBER_DEBUG" envDefault:"false"`
}

// DataDir returns the local data directory (~/.caliber).
func DataDir() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".caliber")
}

// DefaultDBPath returns the default SQLite database file path.
func DefaultDBPath() string {
	return filepath.Join(DataDir(), "caliber.db")
}

// Load binds the configuration from the environment and fills in defaults.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}

	if cfg.DatabaseDSN == "" {
		if err := os.MkdirAll(DataDir(), 0o750); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
		cfg.DatabaseDSN = DefaultDBPath()
	}

	return cfg, nil
}
