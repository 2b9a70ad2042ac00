package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config represents the complete mythfs configuration.
//
// This structure captures all configurable aspects of the client including:
//   - Logging configuration
//   - Backend connection settings
//   - Transfer session tuning
//   - Storage-group catalog selection and configuration (store-specific)
//   - Resolver caching
//   - Export targets
//   - Metrics
//
// Configuration sources (in order of precedence):
//  1. CLI flags (highest priority)
//  2. Environment variables (MYTHFS_*)
//  3. Configuration file (YAML or TOML)
//  4. Default values (lowest priority)
//
// Store Configuration Pattern:
// Each catalog store defines its own options. The Catalog section contains
// type-specific maps (catalog.memory, catalog.badger) and only the map
// matching the selected type is used.
type Config struct {
	// Logging controls log output behavior
	Logging LoggingConfig `mapstructure:"logging" yaml:"logging"`

	// Backend contains connection settings for backend servers
	Backend BackendConfig `mapstructure:"backend" yaml:"backend"`

	// Transfer tunes remote transfer sessions
	Transfer TransferConfig `mapstructure:"transfer" yaml:"transfer"`

	// Catalog specifies the storage-group catalog
	Catalog CatalogConfig `mapstructure:"catalog" yaml:"catalog"`

	// Resolver contains path resolution settings
	Resolver ResolverConfig `mapstructure:"resolver" yaml:"resolver"`

	// Export configures export targets
	Export ExportConfig `mapstructure:"export" yaml:"export"`

	// Metrics controls Prometheus metrics collection
	Metrics MetricsConfig `mapstructure:"metrics" yaml:"metrics"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	// Level is the minimum log level to output
	// Valid values: DEBUG, INFO, WARN, ERROR (case-insensitive, normalized to uppercase)
	Level string `mapstructure:"level" yaml:"level" validate:"required,oneof=DEBUG INFO WARN ERROR debug info warn error"`

	// Format specifies the log output format
	// Valid values: text, json
	Format string `mapstructure:"format" yaml:"format" validate:"required,oneof=text json"`

	// Output specifies where logs are written
	// Valid values: stdout, stderr, or a file path
	Output string `mapstructure:"output" yaml:"output" validate:"required"`
}

// BackendConfig contains backend connection settings.
type BackendConfig struct {
	// Port is used when a file URI names no port
	Port int `mapstructure:"port" yaml:"port" validate:"required,gte=1,lte=65535"`

	// ProtocolVersion is sent in the MYTH_PROTO_VERSION handshake
	ProtocolVersion string `mapstructure:"protocol_version" yaml:"protocol_version" validate:"required,numeric"`

	// ProtocolToken is appended to the handshake when the backend expects one
	ProtocolToken string `mapstructure:"protocol_token" yaml:"protocol_token"`

	// LocalID identifies this client in announce commands (default: hostname)
	LocalID string `mapstructure:"local_id" yaml:"local_id" validate:"required"`

	// DialTimeout bounds connection establishment
	DialTimeout time.Duration `mapstructure:"dial_timeout" yaml:"dial_timeout" validate:"gte=0"`

	// IOTimeout bounds each request/response round trip (0 = no limit)
	IOTimeout time.Duration `mapstructure:"io_timeout" yaml:"io_timeout" validate:"gte=0"`
}

// TransferConfig tunes transfer sessions.
type TransferConfig struct {
	// InitialBlockSize is the first read request size in bytes
	InitialBlockSize uint32 `mapstructure:"initial_block_size" yaml:"initial_block_size" validate:"required,gt=0"`

	// MaxBlockSize caps read request sizes in bytes
	MaxBlockSize uint32 `mapstructure:"max_block_size" yaml:"max_block_size" validate:"required,gt=0"`

	// BlockStep is the growth and shrink unit in bytes
	BlockStep uint32 `mapstructure:"block_step" yaml:"block_step" validate:"required,gt=0"`

	// MaxResyncAttempts bounds seek-and-retry cycles per read
	MaxResyncAttempts int `mapstructure:"max_resync_attempts" yaml:"max_resync_attempts" validate:"required,gte=1"`

	// RateLimit caps transfer throughput in bytes per second (0 = unlimited)
	RateLimit uint `mapstructure:"rate_limit" yaml:"rate_limit"`

	// RateBurst is the largest burst in bytes (0 = RateLimit)
	RateBurst uint `mapstructure:"rate_burst" yaml:"rate_burst"`
}

// CatalogConfig specifies the storage-group catalog.
//
// The Type field determines which store implementation is used.
// Only the corresponding type-specific configuration section is used.
type CatalogConfig struct {
	// Type specifies which catalog store implementation to use
	// Valid values: memory, badger
	Type string `mapstructure:"type" yaml:"type" validate:"required,oneof=memory badger"`

	// LocalHostname is the hostname of this machine as the catalog knows it
	// (default: os.Hostname)
	LocalHostname string `mapstructure:"local_hostname" yaml:"local_hostname" validate:"required"`

	// Memory contains memory-specific configuration
	// Only used when Type = "memory"
	Memory map[string]any `mapstructure:"memory" yaml:"memory"`

	// Badger contains BadgerDB-specific configuration
	// Only used when Type = "badger"
	Badger map[string]any `mapstructure:"badger" yaml:"badger"`
}

// ResolverConfig contains path resolution settings.
type ResolverConfig struct {
	// HostCacheSize bounds the IP-to-hostname cache (0 disables it)
	HostCacheSize int `mapstructure:"host_cache_size" yaml:"host_cache_size" validate:"gte=0"`

	// HostCacheTTL expires cached lookups (0 = never)
	HostCacheTTL time.Duration `mapstructure:"host_cache_ttl" yaml:"host_cache_ttl" validate:"gte=0"`
}

// ExportConfig configures export targets.
type ExportConfig struct {
	// S3 contains S3 export configuration (bucket, region, key_prefix,
	// endpoint, access_key_id, secret_access_key, part_size, max_retries)
	S3 map[string]any `mapstructure:"s3" yaml:"s3"`
}

// MetricsConfig controls Prometheus metrics collection.
type MetricsConfig struct {
	// Enabled turns on metrics collection
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// Listen is the address of the /metrics endpoint
	Listen string `mapstructure:"listen" yaml:"listen" validate:"required_if=Enabled true"`
}

// Load loads configuration from file, environment, and defaults.
//
// Configuration precedence (highest to lowest):
//  1. Environment variables (MYTHFS_*)
//  2. Configuration file
//  3. Default values
//
// Parameters:
//   - configPath: Path to config file (empty string uses default location)
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: Configuration loading or validation error
func Load(configPath string) (*Config, error) {
	v := viper.New()

	// Configure viper
	setupViper(v, configPath)

	// Read configuration file if it exists
	if err := readConfigFile(v, configPath); err != nil {
		return nil, err
	}

	// Unmarshal into config struct
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// Apply defaults for any missing values
	ApplyDefaults(&cfg)

	// Validate configuration
	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

// setupViper configures viper with environment variables and config file settings.
func setupViper(v *viper.Viper, configPath string) {
	// Environment variables use MYTHFS_ prefix and underscores
	// Example: MYTHFS_LOGGING_LEVEL=DEBUG
	v.SetEnvPrefix("MYTHFS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// AutomaticEnv only applies to keys viper already knows about
	for _, key := range envKeys {
		_ = v.BindEnv(key)
	}

	// Configure config file search
	if configPath != "" {
		// Use explicitly specified config file
		v.SetConfigFile(configPath)
	} else {
		// Use default location: $XDG_CONFIG_HOME/mythfs/config.{yaml,toml}
		configDir := getConfigDir()
		v.AddConfigPath(configDir)
		v.SetConfigName("config")
		v.SetConfigType("yaml") // Primary format
	}
}

// envKeys are the scalar settings that can be set from the environment
// without appearing in the config file.
var envKeys = []string{
	"logging.level", "logging.format", "logging.output",
	"backend.port", "backend.protocol_version", "backend.protocol_token", "backend.local_id",
	"backend.dial_timeout", "backend.io_timeout",
	"transfer.initial_block_size", "transfer.max_block_size", "transfer.block_step",
	"transfer.max_resync_attempts", "transfer.rate_limit", "transfer.rate_burst",
	"catalog.type", "catalog.local_hostname",
	"resolver.host_cache_size", "resolver.host_cache_ttl",
	"metrics.enabled", "metrics.listen",
}

// readConfigFile reads the configuration file if it exists.
func readConfigFile(v *viper.Viper, configPath string) error {
	if err := v.ReadInConfig(); err != nil {
		// Config file not found is acceptable - use defaults
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return nil
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}

	return nil
}

// getConfigDir returns the configuration directory path.
//
// Uses XDG_CONFIG_HOME if set, otherwise ~/.config, or falls back to current
// directory (.) if home directory cannot be determined.
func getConfigDir() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "mythfs")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}

	return filepath.Join(home, ".config", "mythfs")
}

// GetDefaultConfigPath returns the default configuration file path.
func GetDefaultConfigPath() string {
	return filepath.Join(getConfigDir(), "config.yaml")
}

// ConfigExists checks if a config file exists at the default location.
func ConfigExists() bool {
	_, err := os.Stat(GetDefaultConfigPath())
	return err == nil
}

// GetConfigDir returns the configuration directory path (exposed for init command).
func GetConfigDir() string {
	return getConfigDir()
}
