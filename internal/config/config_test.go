package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, ":8080", cfg.Addr)
	require.Equal(t, "sqlite", cfg.Driver)
	require.NotEmpty(t, cfg.DSN)
	require.Equal(t, 5*time.Minute, cfg.CacheTTL)
	require.False(t, cfg.ScaleInvariant)
	require.InDelta(t, 0.6, cfg.TraditionalHigh, 1e-9)
	require.InDelta(t, 0.7, cfg.CollectThreshold, 1e-9)
	require.Equal(t, 100, cfg.Trees)
	require.Equal(t, 7*24*time.Hour, cfg.RetrainWindow)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("SOLETRA_ADDR", ":9090")
	t.Setenv("SOLETRA_DB_DRIVER", "postgres")
	t.Setenv("SOLETRA_DB_DSN", "postgres://localhost/soletra")
	t.Setenv("SOLETRA_CACHE_TTL", "30s")
	t.Setenv("SOLETRA_ML_HIGH", "0.8")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, ":9090", cfg.Addr)
	require.Equal(t, "postgres", cfg.Driver)
	require.Equal(t, "postgres://localhost/soletra", cfg.DSN)
	require.Equal(t, 30*time.Second, cfg.CacheTTL)
	require.InDelta(t, 0.8, cfg.MLHigh, 1e-9)
}

func TestLoadRejectsUnknownDriver(t *testing.T) {
	t.Setenv("SOLETRA_DB_DRIVER", "mysql")

	_, err := Load()
	require.Error(t, err)
}

func TestLoadPostgresRequiresDSN(t *testing.T) {
	t.Setenv("SOLETRA_DB_DRIVER", "postgres")
	t.Setenv("SOLETRA_DB_DSN", "")

	_, err := Load()
	require.Error(t, err)
}
