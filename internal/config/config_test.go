package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestLoadDefaults(t *testing.T) {
	// Change to temp dir so no config.yaml is found
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "reconcile.db", cfg.Store.DatabaseURL)
	assert.Equal(t, "invoices", cfg.Store.Collection)
	assert.Equal(t, "claude-sonnet-4-5-20250929", cfg.Anthropic.Model)
	assert.Equal(t, int64(2048), cfg.Anthropic.MaxTokens)
	assert.Equal(t, "contracts", cfg.Index.Name)
	assert.Equal(t, 3, cfg.Index.TopK)
	assert.InDelta(t, 5, cfg.Index.RateLimit, 0.001)
	assert.Zero(t, cfg.Reconcile.AmountTolerance)
	assert.Equal(t, 30*time.Second, cfg.Reconcile.RetrieveTimeout())
	assert.Equal(t, 60*time.Second, cfg.Reconcile.AdjudicateTimeout())
	assert.Equal(t, 4, cfg.Reconcile.MaxConcurrentFiles)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
}

func TestLoadFromYAML(t *testing.T) {
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })

	yaml := `
store:
  driver: postgres
  database_url: postgres://localhost/reconcile
  collection: ap_invoices
index:
  top_k: 5
reconcile:
  amount_tolerance: 0.01
log:
  level: debug
  format: console
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0o644))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "postgres://localhost/reconcile", cfg.Store.DatabaseURL)
	assert.Equal(t, "ap_invoices", cfg.Store.Collection)
	assert.Equal(t, 5, cfg.Index.TopK)
	assert.InDelta(t, 0.01, cfg.Reconcile.AmountTolerance, 0.0001)
	assert.Equal(t, "debug", cfg.Log.Level)
	// Defaults still apply for unset keys.
	assert.Equal(t, "contracts", cfg.Index.Name)
}

func TestLoadFromEnv(t *testing.T) {
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })

	t.Setenv("RECONCILE_STORE_COLLECTION", "env-invoices")
	t.Setenv("RECONCILE_ANTHROPIC_KEY", "sk-test")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "env-invoices", cfg.Store.Collection)
	assert.Equal(t, "sk-test", cfg.Anthropic.Key)
}

func TestInitLogger(t *testing.T) {
	require.NoError(t, InitLogger(LogConfig{Level: "debug", Format: "console"}))
	assert.NotNil(t, zap.L())

	require.NoError(t, InitLogger(LogConfig{Level: "info", Format: "json"}))

	err := InitLogger(LogConfig{Level: "not-a-level"})
	require.Error(t, err)
}
