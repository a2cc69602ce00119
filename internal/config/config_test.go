package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

const validYAML = `
app:
  environment: sandbox
  database_path: ./data/dcagrid.db
exchange:
  name: binance
  api_key: ${TEST_API_KEY}
  api_secret: ${TEST_API_SECRET}
system:
  log_level: INFO
`

func TestLoad_ExpandsEnvVarsAndApplyDefaults(t *testing.T) {
	os.Setenv("TEST_API_KEY", "key-123")
	os.Setenv("TEST_API_SECRET", "secret-456")
	defer os.Unsetenv("TEST_API_KEY")
	defer os.Unsetenv("TEST_API_SECRET")

	path := writeConfig(t, validYAML)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "key-123", cfg.Exchange.APIKey.Reveal())
	assert.Equal(t, "secret-456", cfg.Exchange.APISecret.Reveal())
	assert.Equal(t, 5, cfg.Timing.StreamReconnectDelaySeconds)
	assert.Equal(t, 500, cfg.Timing.CycleRestartGapMillis)
	assert.Equal(t, 30, cfg.System.ShutdownTimeout)
}

func TestLoad_MissingRequiredFieldFails(t *testing.T) {
	path := writeConfig(t, `
app:
  environment: sandbox
exchange:
  name: binance
  api_key: k
  api_secret: s
`)
	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "database_path")
}

func TestLoad_InvalidEnvironmentFails(t *testing.T) {
	path := writeConfig(t, `
app:
  environment: staging
  database_path: ./data/dcagrid.db
exchange:
  name: binance
  api_key: k
  api_secret: s
`)
	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "environment")
}

func TestSecret_RedactsInErrorsAndLogs(t *testing.T) {
	cfg := ExchangeConfig{APIKey: "super-secret-value"}
	assert.Equal(t, "[REDACTED]", cfg.APIKey.String())
	assert.Equal(t, "super-secret-value", cfg.APIKey.Reveal())
}
