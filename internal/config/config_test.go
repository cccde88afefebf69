package config

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 10, cfg.Generations)
	assert.Equal(t, 0.8, cfg.CrossoverProb)
	assert.Equal(t, 0.3, cfg.MutationProb)
	assert.Equal(t, 0.1, cfg.BitFlipProb)
	assert.Equal(t, 3, cfg.MaxEnsembleBases)
	assert.Equal(t, int64(1102), cfg.Data.SplitSeed)
	assert.Equal(t, "algorithm", cfg.Species)
}

func TestLoadYAMLOverlaysDefaults(t *testing.T) {
	path := writeFile(t, "automl.yaml", `
generations: 4
trial_timeout: 30s
species: subset_size
search:
  mode: random
  iterations: 6
targets:
  - column: price
    metrics: [r2, neg_mean_absolute_error]
  - column: sold
store:
  kind: sqlite
  path: runs.db
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 4, cfg.Generations)
	assert.Equal(t, 30*time.Second, cfg.TrialTimeout)
	assert.Equal(t, "subset_size", cfg.Species)
	assert.Equal(t, "random", cfg.Search.Mode)
	assert.Equal(t, 6, cfg.Search.Iterations)
	assert.Equal(t, 5, cfg.Search.Folds, "unset keys keep defaults")
	assert.Equal(t, []string{"price", "sold"}, cfg.TargetColumns())
	assert.Equal(t, []string{"r2", "neg_mean_absolute_error"}, cfg.Targets[0].Metrics)
	assert.Empty(t, cfg.Targets[1].Metrics)
	assert.Equal(t, "sqlite", cfg.Store.Kind)
}

func TestLoadJSON(t *testing.T) {
	path := writeFile(t, "automl.json", `{"generations": 2, "targets": [{"column": "y"}], "log": {"level": "debug", "format": "json"}}`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 2, cfg.Generations)
	assert.Equal(t, "json", cfg.Log.Format)
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	cases := map[string]string{
		"probability":   "crossover_prob: 1.5\n",
		"search mode":   "search:\n  mode: bayes\n",
		"folds":         "search:\n  cv_folds: 1\n",
		"store path":    "store:\n  kind: badger\n",
		"empty target":  "targets:\n  - metrics: [r2]\n",
		"duplicate":     "targets:\n  - column: y\n  - column: y\n",
		"decoding mode": "algorithm_decoding: clamp\n",
		"ensemble size": "max_ensemble_bases: 1\n",
		"species":       "species: lineage\n",
	}
	for name, body := range cases {
		_, err := Load(writeFile(t, "bad.yaml", body))
		assert.Error(t, err, name)
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default().Generations, cfg.Generations)
}

func TestEnvironmentOverridesFile(t *testing.T) {
	path := writeFile(t, "automl.yaml", "generations: 4\nworkers: 2\n")
	t.Setenv("AUTOML_GENERATIONS", "7")
	t.Setenv("AUTOML_TRIAL_TIMEOUT", "90s")
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 7, cfg.Generations)
	assert.Equal(t, 2, cfg.Workers)
	assert.Equal(t, 90*time.Second, cfg.TrialTimeout)

	t.Setenv("AUTOML_WORKERS", "many")
	_, err = Load(path)
	require.Error(t, err)
}

func TestNewLoggerHonorsLevelAndFormat(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(LogConfig{Level: "warn", Format: "json"}, &buf)
	logger.Info("hidden")
	logger.Warn("shown", "target", "price")
	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.True(t, strings.Contains(out, `"msg":"shown"`), out)
	assert.Contains(t, out, `"target":"price"`)
}
