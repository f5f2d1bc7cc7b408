package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func chdirTemp(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) }) //nolint:errcheck
	return dir
}

func TestLoadDefaults(t *testing.T) {
	// Change to temp dir so no config.yaml is found
	chdirTemp(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "lender-match.db", cfg.Store.DatabaseURL)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, 8000, cfg.Server.Port)
	assert.Equal(t, []string{"*"}, cfg.Server.CORSOrigins)
	assert.InDelta(t, 50, cfg.Server.RateLimitRPS, 0.001)
	assert.Equal(t, 100, cfg.Server.RateLimitBurst)
	assert.Equal(t, 8, cfg.Engine.Workers)
	assert.Equal(t, 4, cfg.Batch.MaxConcurrentApplications)
	assert.InDelta(t, 5_000_000, cfg.Scorer.RevenueMax, 0.001)
	assert.InDelta(t, 10, cfg.Scorer.YearsMax, 0.001)
	assert.InDelta(t, 999, cfg.Scorer.PaynetMax, 0.001)
	assert.InDelta(t, 0.5, cfg.Scorer.PaynetNeutral, 0.001)
	assert.InDelta(t, 100, cfg.Scorer.MaxScore, 0.001)
	assert.Empty(t, cfg.Cache.RedisURL)
	assert.Equal(t, 300, cfg.Cache.TTLSecs)
	assert.Equal(t, "pdftotext", cfg.Ingest.PdfToTextPath)
	assert.Equal(t, "claude-haiku-4-5-20251001", cfg.Anthropic.Model)
}

func TestLoadFromYAML(t *testing.T) {
	dir := chdirTemp(t)

	yaml := `
store:
  driver: postgres
  database_url: postgres://localhost/lenders
log:
  level: debug
  format: console
server:
  port: 9090
engine:
  workers: 2
scorer:
  revenue_max: 2000000
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "postgres://localhost/lenders", cfg.Store.DatabaseURL)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, 2, cfg.Engine.Workers)
	assert.InDelta(t, 2_000_000, cfg.Scorer.RevenueMax, 0.001)
	// Defaults still apply for unset values
	assert.InDelta(t, 10, cfg.Scorer.YearsMax, 0.001)
	assert.Equal(t, 4, cfg.Batch.MaxConcurrentApplications)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	dir := chdirTemp(t)

	yaml := `
store:
  driver: postgres
log:
  level: debug
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	t.Setenv("LENDER_STORE_DRIVER", "sqlite")
	t.Setenv("LENDER_LOG_LEVEL", "warn")

	cfg, err := Load()
	require.NoError(t, err)

	// Env overrides file
	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestLoadEnvOverridesDefaults(t *testing.T) {
	chdirTemp(t)

	t.Setenv("LENDER_SERVER_PORT", "3000")
	t.Setenv("LENDER_ENGINE_WORKERS", "16")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 3000, cfg.Server.Port)
	assert.Equal(t, 16, cfg.Engine.Workers)
}

func TestLoadInvalidYAML(t *testing.T) {
	dir := chdirTemp(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("store: [unclosed"), 0644))

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "config: read file")
}

func TestInitLoggerConsole(t *testing.T) {
	err := InitLogger(LogConfig{Level: "debug", Format: "console"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerJSON(t *testing.T) {
	err := InitLogger(LogConfig{Level: "info", Format: "json"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerInvalidLevel(t *testing.T) {
	err := InitLogger(LogConfig{Level: "invalid", Format: "json"})
	assert.Error(t, err)
}

// validDefaults returns a Config with all defaults populated for validation tests.
func validDefaults() *Config {
	cfg := &Config{}
	cfg.Store.Driver = "sqlite"
	cfg.Server.Port = 8000
	cfg.Engine.Workers = 8
	cfg.Batch.MaxConcurrentApplications = 4
	return cfg
}

func TestValidateStore(t *testing.T) {
	cfg := validDefaults()
	assert.NoError(t, cfg.Validate("store"))

	cfg.Store.Driver = "postgres"
	err := cfg.Validate("store")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "store.database_url is required")

	cfg.Store.DatabaseURL = "postgres://localhost/test"
	assert.NoError(t, cfg.Validate("store"))

	cfg.Store.Driver = "mysql"
	err = cfg.Validate("store")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "store.driver must be sqlite or postgres")
}

func TestValidateServer_InvalidPort(t *testing.T) {
	cfg := validDefaults()
	cfg.Server.Port = 0

	err := cfg.Validate("server")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "server.port must be between 1 and 65535")
}

func TestValidateEngineAndBatchBounds(t *testing.T) {
	cfg := validDefaults()
	assert.NoError(t, cfg.Validate("engine", "batch"))

	cfg.Engine.Workers = 0
	err := cfg.Validate("engine")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "engine.workers")

	cfg.Engine.Workers = 8
	cfg.Batch.MaxConcurrentApplications = 51
	err = cfg.Validate("batch")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "max_concurrent_applications must be between 1 and 50")
}

func TestValidateIngestAI(t *testing.T) {
	cfg := validDefaults()
	err := cfg.Validate("ingest_ai")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "anthropic.key is required")

	cfg.Anthropic.Key = "sk-ant-key"
	assert.NoError(t, cfg.Validate("ingest_ai"))
}

func TestValidateUnknownMode(t *testing.T) {
	cfg := validDefaults()
	err := cfg.Validate("unknown")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "unknown mode")
}
