package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/volcorr/internal/modules/dcc"
	"github.com/aristath/volcorr/internal/modules/garch"
)

func TestLoad_Defaults(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("VOLCORR_DATA_DIR", dir)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, dir, cfg.DataDir)
	assert.Equal(t, 8001, cfg.Port)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.False(t, cfg.DevMode)
	assert.Equal(t, 0, cfg.WorkerPoolSize)
	assert.Equal(t, 2, cfg.SeriesConcurrency)
	assert.Equal(t, 5*time.Minute, cfg.RequestTimeout)

	assert.Equal(t, 3, cfg.Search.MaxP)
	assert.Equal(t, 3, cfg.Search.MaxQ)
	assert.Equal(t, 0, cfg.Search.MaxO)
	assert.Equal(t, []garch.VolatilityFamily{garch.GARCH}, cfg.Search.Volatility)
	assert.Equal(t, []garch.MeanModel{garch.MeanConstant}, cfg.Search.Means)
	assert.Equal(t, []garch.Distribution{garch.Normal}, cfg.Search.Distributions)
	assert.Equal(t, dcc.DefaultOptimizerConfig(), cfg.Optimizer)
}

func TestLoad_EnvironmentOverrides(t *testing.T) {
	t.Setenv("VOLCORR_DATA_DIR", t.TempDir())
	t.Setenv("GO_PORT", "9100")
	t.Setenv("DEV_MODE", "true")
	t.Setenv("VOLCORR_WORKERS", "3")
	t.Setenv("VOLCORR_MAX_P", "2")
	t.Setenv("VOLCORR_MAX_O", "1")
	t.Setenv("VOLCORR_FAMILIES", "garch, egarch,aparch")
	t.Setenv("VOLCORR_DISTRIBUTIONS", "t,ged")
	t.Setenv("VOLCORR_FIT_TIMEOUT", "45s")
	t.Setenv("VOLCORR_DCC_ALPHA", "0.05")
	t.Setenv("VOLCORR_DCC_BETA", "0.9")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 9100, cfg.Port)
	assert.True(t, cfg.DevMode)
	assert.Equal(t, 3, cfg.WorkerPoolSize)
	assert.Equal(t, 2, cfg.Search.MaxP)
	assert.Equal(t, 1, cfg.Search.MaxO)
	assert.Equal(t, []garch.VolatilityFamily{garch.GARCH, garch.EGARCH, garch.APARCH}, cfg.Search.Volatility)
	assert.Equal(t, []garch.Distribution{garch.StudentsT, garch.GED}, cfg.Search.Distributions)
	assert.Equal(t, 45*time.Second, cfg.Search.FitTimeout)
	assert.Equal(t, 0.05, cfg.Optimizer.InitialAlpha)
	assert.Equal(t, 0.9, cfg.Optimizer.InitialBeta)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"unknown family", map[string]string{"VOLCORR_FAMILIES": "TARCH"}},
		{"unknown distribution", map[string]string{"VOLCORR_DISTRIBUTIONS": "cauchy"}},
		{"negative order", map[string]string{"VOLCORR_MAX_Q": "-1"}},
		{"no persistence", map[string]string{"VOLCORR_MAX_P": "0"}},
		{"non-stationary guess", map[string]string{"VOLCORR_DCC_ALPHA": "0.3", "VOLCORR_DCC_BETA": "0.8"}},
		{"zero series concurrency", map[string]string{"VOLCORR_SERIES_CONCURRENCY": "0"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("VOLCORR_DATA_DIR", t.TempDir())
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load()
			assert.Error(t, err)
		})
	}
}

func TestApplyProfile(t *testing.T) {
	t.Setenv("VOLCORR_DATA_DIR", t.TempDir())
	cfg, err := Load()
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "profile.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
search:
  max_p: 1
  max_q: 2
  volatility: [garch, figarch]
  means: [zero, ar]
  fit_timeout: 30s
optimizer:
  initial_alpha: 0.02
  max_iterations: 2500
`), 0644))

	require.NoError(t, cfg.ApplyProfile(path))
	assert.Equal(t, 1, cfg.Search.MaxP)
	assert.Equal(t, 2, cfg.Search.MaxQ)
	assert.Equal(t, 0, cfg.Search.MaxO)
	assert.Equal(t, []garch.VolatilityFamily{garch.GARCH, garch.FIGARCH}, cfg.Search.Volatility)
	assert.Equal(t, []garch.MeanModel{garch.MeanZero, garch.MeanAR}, cfg.Search.Means)
	assert.Equal(t, []garch.Distribution{garch.Normal}, cfg.Search.Distributions)
	assert.Equal(t, 30*time.Second, cfg.Search.FitTimeout)
	assert.Equal(t, 0.02, cfg.Optimizer.InitialAlpha)
	assert.Equal(t, 0.85, cfg.Optimizer.InitialBeta)
	assert.Equal(t, 2500, cfg.Optimizer.MaxIterations)
	assert.NoError(t, cfg.Validate())
}

func TestApplyProfile_Errors(t *testing.T) {
	cfg := &Config{}
	assert.Error(t, cfg.ApplyProfile(filepath.Join(t.TempDir(), "missing.yaml")))

	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("search:\n  volatility: [nope]\n"), 0644))
	assert.ErrorIs(t, cfg.ApplyProfile(path), garch.ErrInvalidConfiguration)
}

func TestLoad_WithProfileEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "profile.yaml")
	require.NoError(t, os.WriteFile(path, []byte("search:\n  max_p: 2\n  max_o: 1\n"), 0644))

	t.Setenv("VOLCORR_DATA_DIR", t.TempDir())
	t.Setenv("VOLCORR_PROFILE", path)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, path, cfg.ProfilePath)
	assert.Equal(t, 2, cfg.Search.MaxP)
	assert.Equal(t, 1, cfg.Search.MaxO)
}
