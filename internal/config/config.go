package config

// Package config provides structures and utilities for managing application configuration.

// EmbeddedConfig holds the content of the configuration file, typically passed from main.go.
// This is used when loading configuration from an embedded source (e.g., a compiled binary).
type EmbeddedConfig []byte

// LogLevel defines the logging level for the application.
type LogLevel string

const (
	LogLevelDebug  LogLevel = "DEBUG"
	LogLevelInfo   LogLevel = "INFO"
	LogLevelWarn   LogLevel = "WARN"
	LogLevelError  LogLevel = "ERROR"
	LogLevelFatal  LogLevel = "FATAL"
	LogLevelSilent LogLevel = "SILENT"
)

// RetryConfig holds configuration for the bounded exponential backoff applied
// to transient fetch failures.
type RetryConfig struct {
	MaxAttempts     int     `yaml:"max_attempts"`     // MaxAttempts is the maximum number of attempts per bucket fetch.
	InitialInterval int     `yaml:"initial_interval"` // InitialInterval is the initial backoff interval in milliseconds.
	MaxInterval     int     `yaml:"max_interval"`     // MaxInterval is the upper bound on the backoff interval in milliseconds.
	Factor          float64 `yaml:"factor"`           // Factor is the multiplier applied to the interval per attempt (e.g., 2.0).
}

// APIConfig holds configuration for the vendor owner API.
type APIConfig struct {
	// BaseURL is the default owner API base URL; a region lookup may replace it.
	BaseURL string `yaml:"base_url"`
	// AuthURL is the OAuth token endpoint used for non-interactive refresh.
	AuthURL string `yaml:"auth_url"`
	// ClientID is the OAuth client identifier presented during refresh.
	ClientID string `yaml:"client_id"`
	// TokenStore is the path of the local JSON credential store.
	TokenStore string `yaml:"token_store"`
	// RequestIntervalMs is the minimum delay between consecutive outbound requests, in milliseconds.
	RequestIntervalMs int `yaml:"request_interval_ms"`
	// EnergyItemIntervalMs is the per-item delay applied inside looped energy fetches, in milliseconds.
	EnergyItemIntervalMs int `yaml:"energy_item_interval_ms"`
	// TimeoutSeconds is the HTTP request timeout.
	TimeoutSeconds int `yaml:"timeout_seconds"`
	// Retry is the transient-failure retry configuration.
	Retry RetryConfig `yaml:"retry"`
}

// DownloadConfig holds configuration for the on-disk bucket layout.
type DownloadConfig struct {
	// BaseDir is the root directory for downloaded bucket files.
	BaseDir string `yaml:"base_dir"`
	// SchemaVersion selects the CSV header variant and path layout (1, 2 or 3).
	SchemaVersion int `yaml:"schema_version"`
	// EarliestDate is an optional floor (YYYY-MM-DD) below which no bucket is fetched.
	EarliestDate string `yaml:"earliest_date"`
	// Energy enables the energy sweep in addition to the power sweep.
	Energy bool `yaml:"energy"`
}

// JournalConfig holds configuration for the relational run journal.
type JournalConfig struct {
	// Enabled turns journal persistence on.
	Enabled bool `yaml:"enabled"`
	// DBRef is the name of the database connection used by the journal (key into the database map).
	DBRef string `yaml:"db_ref"`
}

// ArchiveConfig holds configuration for the post-sweep archive sink.
type ArchiveConfig struct {
	// Enabled turns archiving of completed bucket files on.
	Enabled bool `yaml:"enabled"`
	// StorageRef is the name of the storage connection to archive into.
	StorageRef string `yaml:"storage_ref"`
	// Prefix is the object-path prefix within the storage connection.
	Prefix string `yaml:"prefix"`
}

// ExportConfig holds configuration for the Parquet export of power buckets.
type ExportConfig struct {
	// Enabled turns Parquet export on.
	Enabled bool `yaml:"enabled"`
	// StorageRef is the name of the storage connection to export into.
	StorageRef string `yaml:"storage_ref"`
	// OutputBaseDir is the base directory within the storage connection for exported files.
	OutputBaseDir string `yaml:"output_base_dir"`
	// Compression is the Parquet compression codec ("SNAPPY", "GZIP", "NONE").
	Compression string `yaml:"compression"`
}

// MetricsConfig holds configuration for the Prometheus scrape endpoint.
type MetricsConfig struct {
	// Enabled turns the HTTP metrics endpoint on.
	Enabled bool `yaml:"enabled"`
	// ListenAddr is the address the metrics endpoint listens on.
	ListenAddr string `yaml:"listen_addr"`
}

// TracingConfig holds configuration for OTLP span export.
type TracingConfig struct {
	// Enabled turns span export on; when false a no-op tracer is used.
	Enabled bool `yaml:"enabled"`
	// Endpoint is the OTLP collector endpoint (host:port).
	Endpoint string `yaml:"endpoint"`
	// Protocol selects the OTLP transport, "grpc" or "http".
	Protocol string `yaml:"protocol"`
	// ServiceName identifies this process in exported spans.
	ServiceName string `yaml:"service_name"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	// Level is the logging level (e.g., "INFO", "DEBUG").
	Level string `yaml:"level"`
}

// SystemConfig holds system-wide settings.
type SystemConfig struct {
	// Timezone overrides the site-reported timezone when non-empty (e.g., "America/Los_Angeles").
	Timezone string `yaml:"timezone"`
	// Logging is the logging configuration.
	Logging LoggingConfig `yaml:"logging"`
}

// SolarbackConfig holds all configuration under the "solarback" top-level key.
type SolarbackConfig struct {
	// System contains system-wide configurations.
	System SystemConfig `yaml:"system"`
	// API contains vendor API client configurations.
	API APIConfig `yaml:"api"`
	// Download contains bucket layout configurations.
	Download DownloadConfig `yaml:"download"`
	// Journal contains run journal configurations.
	Journal JournalConfig `yaml:"journal"`
	// Archive contains archive sink configurations.
	Archive ArchiveConfig `yaml:"archive"`
	// Export contains Parquet export configurations.
	Export ExportConfig `yaml:"export"`
	// Metrics contains Prometheus endpoint configurations.
	Metrics MetricsConfig `yaml:"metrics"`
	// Tracing contains OTLP tracing configurations.
	Tracing TracingConfig `yaml:"tracing"`
	// AdapterConfigs holds named database connection configurations.
	AdapterConfigs map[string]interface{} `yaml:"database"`
	// Datasources holds named storage connection configurations.
	Datasources map[string]interface{} `yaml:"datasources"`
}

// Config is the root structure for the entire application configuration.
type Config struct {
	// Solarback contains the top-level configuration for the application.
	Solarback SolarbackConfig `yaml:"solarback"`
	// EmbeddedConfig holds configuration loaded from an embedded source, not from YAML.
	EmbeddedConfig EmbeddedConfig `yaml:"-"`
}

// NewConfig returns a new instance of Config with default values.
//
// Returns:
//
//	A pointer to a new Config instance initialized with default settings.
func NewConfig() *Config {
	cfg := &Config{
		Solarback: SolarbackConfig{
			System: SystemConfig{
				Timezone: "", // Empty means the site-reported timezone is used.
				Logging:  LoggingConfig{Level: "INFO"},
			},
			API: APIConfig{
				BaseURL:              "https://owner-api.teslamotors.com",
				AuthURL:              "https://auth.tesla.com/oauth2/v3/token",
				ClientID:             "ownerapi",
				TokenStore:           "cache.json",
				RequestIntervalMs:    1500,
				EnergyItemIntervalMs: 1000,
				TimeoutSeconds:       30,
				Retry: RetryConfig{
					MaxAttempts:     3,
					InitialInterval: 5000,
					MaxInterval:     60000,
					Factor:          2.0,
				},
			},
			Download: DownloadConfig{
				BaseDir:       "download",
				SchemaVersion: 3,
				Energy:        true,
			},
			Journal: JournalConfig{
				Enabled: false,
				DBRef:   "journal",
			},
			Export: ExportConfig{
				Compression: "SNAPPY",
			},
			Metrics: MetricsConfig{
				ListenAddr: ":9464",
			},
			Tracing: TracingConfig{
				Protocol:    "grpc",
				ServiceName: "solarback",
			},
		},
	}

	// Initialize maps as empty, to be populated by YAML or by mergeConfig.
	cfg.Solarback.AdapterConfigs = map[string]interface{}{}
	cfg.Solarback.Datasources = map[string]interface{}{}
	return cfg
}
