package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/marmos91/mythfs/pkg/transfer"
)

const (
	// DefaultBackendPort is the backend's control port
	DefaultBackendPort = 6543

	// DefaultProtocolVersion is the protocol version this client speaks
	DefaultProtocolVersion = "63"
)

// ApplyDefaults sets default values for any unspecified configuration fields.
//
// This function is called after loading configuration from file and environment
// variables to fill in any missing values with sensible defaults.
//
// Default Strategy:
//   - Zero values (0, "", false, nil) are replaced with defaults
//   - Explicit values are preserved
//   - Store-specific defaults are handled by store implementations
func ApplyDefaults(cfg *Config) {
	applyLoggingDefaults(&cfg.Logging)
	applyBackendDefaults(&cfg.Backend)
	applyTransferDefaults(&cfg.Transfer)
	applyCatalogDefaults(&cfg.Catalog)
	applyResolverDefaults(&cfg.Resolver)
	applyMetricsDefaults(&cfg.Metrics)
}

// applyLoggingDefaults sets logging defaults and normalizes values.
func applyLoggingDefaults(cfg *LoggingConfig) {
	if cfg.Level == "" {
		cfg.Level = "INFO"
	}
	// Normalize log level to uppercase for consistent internal representation
	cfg.Level = strings.ToUpper(cfg.Level)

	if cfg.Format == "" {
		cfg.Format = "text"
	}
	if cfg.Output == "" {
		cfg.Output = "stderr"
	}
}

func applyBackendDefaults(cfg *BackendConfig) {
	if cfg.Port == 0 {
		cfg.Port = DefaultBackendPort
	}
	if cfg.ProtocolVersion == "" {
		cfg.ProtocolVersion = DefaultProtocolVersion
	}
	if cfg.LocalID == "" {
		cfg.LocalID = hostname()
	}
	if cfg.DialTimeout == 0 {
		cfg.DialTimeout = 10 * time.Second
	}
	if cfg.IOTimeout == 0 {
		cfg.IOTimeout = 30 * time.Second
	}
}

func applyTransferDefaults(cfg *TransferConfig) {
	if cfg.InitialBlockSize == 0 {
		cfg.InitialBlockSize = transfer.DefaultInitialBlockSize
	}
	if cfg.MaxBlockSize == 0 {
		cfg.MaxBlockSize = transfer.DefaultMaxBlockSize
	}
	if cfg.BlockStep == 0 {
		cfg.BlockStep = transfer.DefaultBlockStep
	}
	if cfg.MaxResyncAttempts == 0 {
		cfg.MaxResyncAttempts = transfer.DefaultMaxResyncAttempts
	}
	// RateLimit defaults to 0 (unlimited)
}

func applyCatalogDefaults(cfg *CatalogConfig) {
	if cfg.Type == "" {
		cfg.Type = "memory"
	}
	if cfg.LocalHostname == "" {
		cfg.LocalHostname = hostname()
	}

	// Initialize maps if nil
	if cfg.Memory == nil {
		cfg.Memory = make(map[string]any)
	}
	if cfg.Badger == nil {
		cfg.Badger = make(map[string]any)
	}

	// Apply defaults for all store types (for config file generation)
	if _, ok := cfg.Badger["db_path"]; !ok {
		cfg.Badger["db_path"] = defaultCatalogPath()
	}
}

func applyResolverDefaults(cfg *ResolverConfig) {
	if cfg.HostCacheSize == 0 {
		cfg.HostCacheSize = 256
	}
	if cfg.HostCacheTTL == 0 {
		cfg.HostCacheTTL = 10 * time.Minute
	}
}

func applyMetricsDefaults(cfg *MetricsConfig) {
	// Enabled defaults to false
	if cfg.Listen == "" {
		cfg.Listen = ":9464"
	}
}

func hostname() string {
	name, err := os.Hostname()
	if err != nil || name == "" {
		return "localhost"
	}
	return name
}

func defaultCatalogPath() string {
	return filepath.Join(GetConfigDir(), "catalog")
}

// GetDefaultConfig returns a Config struct with all default values applied.
//
// This is useful for:
//   - Generating sample configuration files
//   - Testing
//   - Documentation
func GetDefaultConfig() *Config {
	cfg := &Config{
		Catalog: CatalogConfig{
			Memory: map[string]any{
				"locations": []map[string]any{
					{"group": "Default", "host": hostname(), "directory": "/var/lib/mythtv/recordings"},
				},
				"host_ips": map[string]any{},
			},
		},
		Export: ExportConfig{
			S3: map[string]any{
				"region":     "us-east-1",
				"bucket":     "",
				"key_prefix": "recordings/",
				"part_size":  int64(10 * 1024 * 1024),
			},
		},
	}

	ApplyDefaults(cfg)
	return cfg
}
