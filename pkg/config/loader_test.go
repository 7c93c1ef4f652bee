package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	dir := t.TempDir()

	cfg, err := Load(dir)
	require.NoError(t, err)

	assert.Equal(t, "nats://127.0.0.1:4222", cfg.NATS.URL)
	assert.Equal(t, "standard_query", cfg.Stage.DefaultTemplate)
	assert.Equal(t, 300*time.Second, cfg.Stage.StageTimeout)
	assert.Equal(t, dir, cfg.ConfigDir())
}

func TestLoadMergesOverlayOverDefaults(t *testing.T) {
	dir := t.TempDir()

	overlay := `
nats:
  url: "nats://broker.internal:4222"

stage:
  max_retries_on_timeout: 3

http:
  addr: ":9090"
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "mcp.yaml"), []byte(overlay), 0644))

	cfg, err := Load(dir)
	require.NoError(t, err)

	assert.Equal(t, "nats://broker.internal:4222", cfg.NATS.URL)
	assert.Equal(t, 3, cfg.Stage.MaxRetries)
	assert.Equal(t, ":9090", cfg.HTTP.Addr)

	// Fields untouched by the overlay keep their built-in defaults.
	assert.Equal(t, "mcp_tasks", cfg.NATS.TaskStoreKV)
	assert.Equal(t, "standard_query", cfg.Stage.DefaultTemplate)
	assert.Equal(t, "mcp", cfg.Database.Database)
}

func TestLoadExpandsEnvironmentReferences(t *testing.T) {
	dir := t.TempDir()

	overlay := `
nats:
  url: "${TEST_NATS_URL}"

database:
  password: "${TEST_DB_PASSWORD:-fallback-secret}"
  database: "${TEST_DB_NAME:-mcp}"
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "mcp.yaml"), []byte(overlay), 0644))

	t.Setenv("TEST_NATS_URL", "nats://env-broker:4222")

	cfg, err := Load(dir)
	require.NoError(t, err)

	assert.Equal(t, "nats://env-broker:4222", cfg.NATS.URL)
	assert.Equal(t, "fallback-secret", cfg.Database.Password)
	assert.Equal(t, "mcp", cfg.Database.Database)
}

func TestLoadInvalidYAMLFails(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "mcp.yaml"), []byte("{{{not yaml"), 0644))

	_, err := Load(dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parsing")
}

func TestLoadValidationFailure(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "mcp.yaml"), []byte(`stage:
  stage_timeout_seconds: -1s
`), 0644))

	_, err := Load(dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "stage.stage_timeout_seconds must be positive")
}

func TestValidateFailFastChecks(t *testing.T) {
	t.Run("missing nats url", func(t *testing.T) {
		cfg := Defaults()
		cfg.NATS.URL = ""
		assert.ErrorContains(t, cfg.Validate(), "nats.url is required")
	})

	t.Run("non-positive stage timeout", func(t *testing.T) {
		cfg := Defaults()
		cfg.Stage.StageTimeout = 0
		assert.ErrorContains(t, cfg.Validate(), "stage.stage_timeout_seconds must be positive")
	})

	t.Run("missing default template", func(t *testing.T) {
		cfg := Defaults()
		cfg.Stage.DefaultTemplate = ""
		assert.ErrorContains(t, cfg.Validate(), "stage.dag_default_template is required")
	})

	t.Run("missing database name", func(t *testing.T) {
		cfg := Defaults()
		cfg.Database.Database = ""
		assert.ErrorContains(t, cfg.Validate(), "database.database is required")
	})

	t.Run("defaults pass as-is", func(t *testing.T) {
		assert.NoError(t, Defaults().Validate())
	})
}

func TestExpandEnvLeavesUnmatchedReferencesAsFallback(t *testing.T) {
	raw := []byte(`url: "${NOT_SET_IN_ENV:-http://127.0.0.1:8090}"`)
	out := ExpandEnv(raw)
	assert.Equal(t, `url: "http://127.0.0.1:8090"`, string(out))
}

func TestExpandEnvPrefersSetVariableOverFallback(t *testing.T) {
	t.Setenv("TEST_EXPAND_VAR", "actual-value")
	raw := []byte(`url: "${TEST_EXPAND_VAR:-unused-fallback}"`)
	out := ExpandEnv(raw)
	assert.Equal(t, `url: "actual-value"`, string(out))
}
