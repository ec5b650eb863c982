package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8089", cfg.Port)
	assert.Equal(t, "development", cfg.Env)
	assert.Equal(t, "data/partitions", cfg.StorageRoot)
	assert.Equal(t, "config/rules", cfg.RulesDir)

	assert.False(t, cfg.Database.Enabled())
	assert.False(t, cfg.Redis.Enabled)

	assert.Equal(t, 4, cfg.Retry.MaxAttempts)
	assert.Equal(t, 500*time.Millisecond, cfg.Retry.BaseDelay)
	assert.Equal(t, 2.0, cfg.Retry.Multiplier)

	assert.Equal(t, 50000, cfg.PJM.RowCount)
	assert.Equal(t, []string{"GHCND:USW00013739"}, cfg.NOAA.Stations)
	assert.Equal(t, []string{"NG", "COAL"}, cfg.EIA.Series)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("PORT", "9000")
	t.Setenv("ENV", "production")
	t.Setenv("STORAGE_ROOT", "/var/lib/gridflow")
	t.Setenv("DATABASE_URL", "postgres://localhost/gridflow")
	t.Setenv("PJM_ROW_COUNT", "1000")
	t.Setenv("NOAA_STATIONS", "GHCND:A, GHCND:B ,")
	t.Setenv("RETRY_MAX_ATTEMPTS", "2")
	t.Setenv("PJM_RATE_WINDOW", "30s")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "9000", cfg.Port)
	assert.Equal(t, "production", cfg.Env)
	assert.Equal(t, "/var/lib/gridflow", cfg.StorageRoot)
	assert.True(t, cfg.Database.Enabled())
	assert.Equal(t, 1000, cfg.PJM.RowCount)
	assert.Equal(t, []string{"GHCND:A", "GHCND:B"}, cfg.NOAA.Stations)
	assert.Equal(t, 2, cfg.Retry.MaxAttempts)
	assert.Equal(t, 30*time.Second, cfg.PJM.RateLimit.Window)
}

func TestLoad_MalformedValuesFallBack(t *testing.T) {
	t.Setenv("PJM_ROW_COUNT", "lots")
	t.Setenv("RETRY_BASE_DELAY", "soon")
	t.Setenv("REDIS_ENABLED", "maybe")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 50000, cfg.PJM.RowCount)
	assert.Equal(t, 500*time.Millisecond, cfg.Retry.BaseDelay)
	assert.False(t, cfg.Redis.Enabled)
}

func TestLoad_ValidationFailures(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value string
		want  string
	}{
		{"bad env", "ENV", "testing", "ENV must be one of"},
		{"zero attempts", "RETRY_MAX_ATTEMPTS", "0", "RETRY_MAX_ATTEMPTS"},
		{"shrinking backoff", "RETRY_MULTIPLIER", "0.5", "RETRY_MULTIPLIER"},
		{"jitter out of range", "RETRY_JITTER_FRAC", "1.5", "RETRY_JITTER_FRAC"},
		{"zero rate limit", "NOAA_RATE_LIMIT", "0", "NOAA rate limit"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)
			_, err := Load()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}
