package config

import (
	"errors"
	"futures-grid-bot/internal/models"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigMergesFileOverDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"symbol":"ETHUSDT","grid_levels":8,"log":{"level":"debug"}}`), 0644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "ETHUSDT", cfg.Symbol)
	assert.Equal(t, 8, cfg.GridLevels)
	assert.Equal(t, "debug", cfg.LogConfig.Level)
	// untouched fields keep their defaults
	assert.Equal(t, 0.5, cfg.GridSpacing)
	assert.Equal(t, 3600, cfg.RebalanceIntervalSec)
	assert.Equal(t, 3, cfg.DefaultQuantityPrecision)
}

func TestLoadConfigMissingFileUsesDefaults(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "absent.json"))
	require.NoError(t, err)
	assert.Equal(t, "BTCUSDT", cfg.Symbol)
	assert.Equal(t, 10.0, cfg.MinBalance)
}

func TestLoadConfigRejectsInvalidValues(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"grid_levels":0}`), 0644))

	_, err := LoadConfig(path)
	require.Error(t, err)
	assert.True(t, errors.Is(err, models.ErrInvalidConfig))
}

func TestApplyEnv(t *testing.T) {
	env := map[string]string{
		"SYMBOL":        "solusdt",
		"LEVERAGE":      "5",
		"GRID_SPACING":  "0.8",
		"STOP_LOSS_PCT": "7.5",
		"TESTNET":       "false",
	}
	cfg := Default()
	require.NoError(t, ApplyEnv(&cfg, func(k string) string { return env[k] }))

	assert.Equal(t, "SOLUSDT", cfg.Symbol)
	assert.Equal(t, 5, cfg.Leverage)
	assert.Equal(t, 0.8, cfg.GridSpacing)
	assert.Equal(t, 7.5, cfg.StopLossPct)
	assert.False(t, cfg.IsTestnet)
}

func TestApplyEnvBadNumber(t *testing.T) {
	cfg := Default()
	err := ApplyEnv(&cfg, func(k string) string {
		if k == "GRID_LEVELS" {
			return "five"
		}
		return ""
	})
	assert.Error(t, err)
}

func TestWithOverridesDoesNotMutateBase(t *testing.T) {
	base := Default()
	levels := 7
	sl := 4.0
	next := base.WithOverrides(models.ConfigOverrides{GridLevels: &levels, StopLossPct: &sl})

	assert.Equal(t, 7, next.GridLevels)
	assert.Equal(t, 4.0, next.StopLossPct)
	assert.Equal(t, 5, base.GridLevels)
	assert.Equal(t, 10.0, base.StopLossPct)
}
