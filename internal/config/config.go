// Package config loads the engine's runtime configuration from environment
// variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config controls the server, storage, and recognition tuning. Every value
// has a working default so a bare `soletra` launch serves a local SQLite
// instance.
type Config struct {
	Addr      string `env:"SOLETRA_ADDR"       envDefault:":8080"`
	StaticDir string `env:"SOLETRA_STATIC_DIR" envDefault:""`

	// Driver selects the storage backend, "sqlite" or "postgres".
	Driver string `env:"SOLETRA_DB_DRIVER" envDefault:"sqlite"`
	// DSN is the postgres connection string, or the SQLite file path.
	// Empty means ~/.soletra/soletra.db for the sqlite driver.
	DSN    string `env:"SOLETRA_DB_DSN"    envDefault:""`

	CacheTTL       time.Duration `env:"SOLETRA_CACHE_TTL"       envDefault:"5m"`
	ScaleInvariant bool          `env:"SOLETRA_SCALE_INVARIANT" envDefault:"false"`

	RejectThreshold  float64 `env:"SOLETRA_REJECT_THRESHOLD"   envDefault:"0.4"`
	TraditionalHigh  float64 `env:"SOLETRA_TRADITIONAL_HIGH"   envDefault:"0.6"`
	MLHigh           float64 `env:"SOLETRA_ML_HIGH"            envDefault:"0.7"`
	TraditionalLow   float64 `env:"SOLETRA_TRADITIONAL_LOW"    envDefault:"0.4"`
	MLFloor          float64 `env:"SOLETRA_ML_FLOOR"           envDefault:"0.3"`
	CollectThreshold float64 `env:"SOLETRA_COLLECT_THRESHOLD"  envDefault:"0.7"`

	MinExamples      int           `env:"SOLETRA_MIN_EXAMPLES"      envDefault:"5"`
	Trees            int           `env:"SOLETRA_TREES"             envDefault:"100"`
	RetrainThreshold int           `env:"SOLETRA_RETRAIN_THRESHOLD" envDefault:"10"`
	RetrainWindow    time.Duration `env:"SOLETRA_RETRAIN_WINDOW"    envDefault:"168h"`
}

// Load reads configuration from the environment.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}

	switch cfg.Driver {
	case "sqlite", "postgres":
	default:
		return Config{}, fmt.Errorf("unknown db driver %q", cfg.Driver)
	}

	if cfg.Driver == "sqlite" && cfg.DSN == "" {
		path, err := defaultSQLitePath()
		if err != nil {
			return Config{}, err
		}
		cfg.DSN = path
	}
	if cfg.Driver == "postgres" && cfg.DSN == "" {
		return Config{}, fmt.Errorf("postgres driver requires SOLETRA_DB_DSN")
	}

	return cfg, nil
}

func defaultSQLitePath() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home directory: %w", err)
	}

	dir := filepath.Join(homeDir, ".soletra")
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("create data directory: %w", err)
	}
	return filepath.Join(dir, "soletra.db"), nil
}
