package config_test

import (
	"testing"

	config "github.com/tigerroll/solarback/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := config.LoadConfig("", config.EmbeddedConfig(""))
	require.NoError(t, err)

	assert.Equal(t, "https://owner-api.teslamotors.com", cfg.Solarback.API.BaseURL)
	assert.Equal(t, 1500, cfg.Solarback.API.RequestIntervalMs)
	assert.Equal(t, 3, cfg.Solarback.API.Retry.MaxAttempts)
	assert.Equal(t, 5000, cfg.Solarback.API.Retry.InitialInterval)
	assert.Equal(t, 60000, cfg.Solarback.API.Retry.MaxInterval)
	assert.Equal(t, 2.0, cfg.Solarback.API.Retry.Factor)
	assert.Equal(t, 3, cfg.Solarback.Download.SchemaVersion)
	assert.True(t, cfg.Solarback.Download.Energy)
	assert.False(t, cfg.Solarback.Journal.Enabled)
	assert.Equal(t, "journal", cfg.Solarback.Journal.DBRef)
	assert.Equal(t, "SNAPPY", cfg.Solarback.Export.Compression)
	assert.False(t, cfg.Solarback.Metrics.Enabled)
	assert.Equal(t, ":9464", cfg.Solarback.Metrics.ListenAddr)
	assert.Equal(t, "grpc", cfg.Solarback.Tracing.Protocol)
}

func TestLoadConfigYAMLOverridesDefaults(t *testing.T) {
	yamlConfig := `
solarback:
  system:
    timezone: "America/Los_Angeles"
    logging:
      level: DEBUG
  api:
    request_interval_ms: 2000
    retry:
      max_attempts: 5
  download:
    base_dir: /var/lib/solarback
    schema_version: 2
    earliest_date: "2023-01-01"
  journal:
    enabled: true
    db_ref: audit
`
	cfg, err := config.LoadConfig("", config.EmbeddedConfig(yamlConfig))
	require.NoError(t, err)

	assert.Equal(t, "America/Los_Angeles", cfg.Solarback.System.Timezone)
	assert.Equal(t, "DEBUG", cfg.Solarback.System.Logging.Level)
	assert.Equal(t, 2000, cfg.Solarback.API.RequestIntervalMs)
	assert.Equal(t, 5, cfg.Solarback.API.Retry.MaxAttempts)
	// Unset retry fields keep their defaults.
	assert.Equal(t, 5000, cfg.Solarback.API.Retry.InitialInterval)
	assert.Equal(t, "/var/lib/solarback", cfg.Solarback.Download.BaseDir)
	assert.Equal(t, 2, cfg.Solarback.Download.SchemaVersion)
	assert.Equal(t, "2023-01-01", cfg.Solarback.Download.EarliestDate)
	assert.True(t, cfg.Solarback.Journal.Enabled)
	assert.Equal(t, "audit", cfg.Solarback.Journal.DBRef)
	// Untouched sections keep their defaults.
	assert.Equal(t, "ownerapi", cfg.Solarback.API.ClientID)
}

func TestLoadConfigEnvironmentOverridesYAML(t *testing.T) {
	t.Setenv("SOLARBACK_API_BASE_URL", "https://example.test")
	t.Setenv("SOLARBACK_API_REQUEST_INTERVAL_MS", "2500")
	t.Setenv("SOLARBACK_DOWNLOAD_SCHEMA_VERSION", "1")
	t.Setenv("SOLARBACK_SYSTEM_LOGGING_LEVEL", "ERROR")

	yamlConfig := `
solarback:
  api:
    base_url: "https://yaml.test"
`
	cfg, err := config.LoadConfig("", config.EmbeddedConfig(yamlConfig))
	require.NoError(t, err)

	assert.Equal(t, "https://example.test", cfg.Solarback.API.BaseURL)
	assert.Equal(t, 2500, cfg.Solarback.API.RequestIntervalMs)
	assert.Equal(t, 1, cfg.Solarback.Download.SchemaVersion)
	assert.Equal(t, "ERROR", cfg.Solarback.System.Logging.Level)
}

func TestLoadConfigParsesNamedConnectionMaps(t *testing.T) {
	yamlConfig := `
solarback:
  database:
    journal:
      type: sqlite
      database: journal.db
  datasources:
    archive:
      type: local
      base_dir: /tmp/archive
`
	cfg, err := config.LoadConfig("", config.EmbeddedConfig(yamlConfig))
	require.NoError(t, err)

	require.Contains(t, cfg.Solarback.AdapterConfigs, "journal")
	journal, ok := cfg.Solarback.AdapterConfigs["journal"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "sqlite", journal["type"])

	require.Contains(t, cfg.Solarback.Datasources, "archive")
	archive, ok := cfg.Solarback.Datasources["archive"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "local", archive["type"])
}

func TestLoadConfigMalformedYAML(t *testing.T) {
	_, err := config.LoadConfig("", config.EmbeddedConfig("solarback: [not: a mapping"))
	assert.Error(t, err)
}
