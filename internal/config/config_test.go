package config_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/fairyhunter13/social-hunt/internal/config"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := config.Load()
	require.NoError(t, err)
	require.Equal(t, "dev", cfg.AppEnv)
	require.Equal(t, 8080, cfg.Port)
	require.Equal(t, []string{"providers.yaml"}, cfg.ProvidersYAML)
	require.Equal(t, 6, cfg.MaxConcurrency)
	require.Equal(t, float64(2), cfg.HostRPS)
	require.Equal(t, 4, cfg.HostBurst)
	require.Equal(t, 90*time.Second, cfg.AcquireTimeout)
	require.Equal(t, 180*time.Second, cfg.JobDeadline)
	require.Equal(t, 256, cfg.JobCapacity)
	require.Equal(t, 30*time.Minute, cfg.JobTTL)
	require.Equal(t, 10, cfg.DhashThreshold)
	require.InDelta(t, 0.6, cfg.FaceMatchDistance, 0.0001)
	require.True(t, cfg.IsDev())
	require.False(t, cfg.IsProd())
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("APP_ENV", "prod")
	t.Setenv("SCAN_MAX_CONCURRENCY", "12")
	t.Setenv("PROVIDERS_YAML", "a.yaml,b.yaml")
	t.Setenv("SCAN_HOST_RPS", "0.5")

	cfg, err := config.Load()
	require.NoError(t, err)
	require.True(t, cfg.IsProd())
	require.Equal(t, 12, cfg.MaxConcurrency)
	require.Equal(t, []string{"a.yaml", "b.yaml"}, cfg.ProvidersYAML)
	require.Equal(t, 0.5, cfg.HostRPS)
}

func TestLoadClampsConcurrency(t *testing.T) {
	t.Setenv("SCAN_MAX_CONCURRENCY", "0")
	cfg, err := config.Load()
	require.NoError(t, err)
	require.Equal(t, 1, cfg.MaxConcurrency)

	t.Setenv("SCAN_MAX_CONCURRENCY", "500")
	cfg, err = config.Load()
	require.NoError(t, err)
	require.Equal(t, 64, cfg.MaxConcurrency)
}
