package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("CONFIG_PATH", filepath.Join(t.TempDir(), "missing.yaml"))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, []string{"sonnet-fast", "sonnet-large", "opus-large"}, cfg.Generation.Chain)
	assert.Equal(t, 30, cfg.Generation.RequestsPerMin)
	assert.Equal(t, 10, cfg.Research.BatchSize)
	assert.Equal(t, 60*time.Second, cfg.Research.BatchTimeout)
	assert.Equal(t, 20, cfg.QC.BatchSize)
	assert.Equal(t, 90, cfg.QC.MinAccuracyScore)
	assert.Equal(t, 85, cfg.QC.CorrectionThreshold)
	assert.InDelta(t, 0.30, cfg.QC.OverlapThreshold, 1e-9)
}

func TestLoadFileAndEnvPrecedence(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "synthpanel.yaml")
	yaml := []byte(`
generation:
  chain: ["file-primary", "file-secondary"]
  requests_per_min: 12
qc:
  min_accuracy_score: 80
`)
	require.NoError(t, os.WriteFile(path, yaml, 0o600))

	t.Setenv("CONFIG_PATH", path)
	t.Setenv("GENERATION_CHAIN", "env-primary, env-secondary")
	t.Setenv("QC_MIN_ACCURACY", "95")

	cfg, err := Load()
	require.NoError(t, err)

	// Env beats file, file beats defaults.
	assert.Equal(t, []string{"env-primary", "env-secondary"}, cfg.Generation.Chain)
	assert.Equal(t, 12, cfg.Generation.RequestsPerMin)
	assert.Equal(t, 95, cfg.QC.MinAccuracyScore)
}

func TestLoadRejectsMalformedFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "synthpanel.yaml")
	require.NoError(t, os.WriteFile(path, []byte("generation: [not: a: map"), 0o600))

	t.Setenv("CONFIG_PATH", path)

	_, err := Load()
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	cfg := defaults()
	cfg.Generation.Chain = nil
	assert.Error(t, cfg.Validate())

	cfg = defaults()
	cfg.Research.BatchSize = 11
	assert.Error(t, cfg.Validate())

	cfg = defaults()
	cfg.QC.OverlapThreshold = 0
	assert.Error(t, cfg.Validate())

	cfg = defaults()
	assert.NoError(t, cfg.Validate())
}
