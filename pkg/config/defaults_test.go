package config

import (
	"testing"
	"time"

	"github.com/marmos91/mythfs/pkg/transfer"
)

func TestApplyDefaults_Logging(t *testing.T) {
	cfg := &Config{}
	ApplyDefaults(cfg)

	if cfg.Logging.Level != "INFO" {
		t.Errorf("Expected default log level 'INFO', got %q", cfg.Logging.Level)
	}
	if cfg.Logging.Format != "text" {
		t.Errorf("Expected default log format 'text', got %q", cfg.Logging.Format)
	}
	if cfg.Logging.Output != "stderr" {
		t.Errorf("Expected default log output 'stderr', got %q", cfg.Logging.Output)
	}
}

func TestApplyDefaults_Backend(t *testing.T) {
	cfg := &Config{}
	ApplyDefaults(cfg)

	if cfg.Backend.Port != 6543 {
		t.Errorf("Expected default port 6543, got %d", cfg.Backend.Port)
	}
	if cfg.Backend.ProtocolVersion != DefaultProtocolVersion {
		t.Errorf("Expected protocol version %q, got %q", DefaultProtocolVersion, cfg.Backend.ProtocolVersion)
	}
	if cfg.Backend.LocalID == "" {
		t.Error("Expected local_id to default to the hostname")
	}
	if cfg.Backend.DialTimeout != 10*time.Second {
		t.Errorf("Expected dial timeout 10s, got %v", cfg.Backend.DialTimeout)
	}
}

func TestApplyDefaults_Transfer(t *testing.T) {
	cfg := &Config{}
	ApplyDefaults(cfg)

	if cfg.Transfer.InitialBlockSize != transfer.DefaultInitialBlockSize {
		t.Errorf("Expected initial block size %d, got %d", transfer.DefaultInitialBlockSize, cfg.Transfer.InitialBlockSize)
	}
	if cfg.Transfer.MaxBlockSize != transfer.DefaultMaxBlockSize {
		t.Errorf("Expected max block size %d, got %d", transfer.DefaultMaxBlockSize, cfg.Transfer.MaxBlockSize)
	}
	if cfg.Transfer.BlockStep != transfer.DefaultBlockStep {
		t.Errorf("Expected block step %d, got %d", transfer.DefaultBlockStep, cfg.Transfer.BlockStep)
	}
	if cfg.Transfer.MaxResyncAttempts != 3 {
		t.Errorf("Expected 3 resync attempts, got %d", cfg.Transfer.MaxResyncAttempts)
	}
	if cfg.Transfer.RateLimit != 0 {
		t.Errorf("Expected unlimited rate, got %d", cfg.Transfer.RateLimit)
	}
}

func TestApplyDefaults_Catalog(t *testing.T) {
	cfg := &Config{}
	ApplyDefaults(cfg)

	if cfg.Catalog.Type != "memory" {
		t.Errorf("Expected default catalog type 'memory', got %q", cfg.Catalog.Type)
	}
	if cfg.Catalog.Memory == nil {
		t.Fatal("Expected Memory map to be initialized")
	}
	if path, ok := cfg.Catalog.Badger["db_path"].(string); !ok || path == "" {
		t.Errorf("Expected default badger db_path, got %v", cfg.Catalog.Badger["db_path"])
	}
}

func TestApplyDefaults_PreservesExplicitValues(t *testing.T) {
	cfg := &Config{
		Logging:  LoggingConfig{Level: "warn", Format: "json", Output: "/var/log/mythfs.log"},
		Backend:  BackendConfig{Port: 7000, LocalID: "frontend1", IOTimeout: time.Second},
		Transfer: TransferConfig{InitialBlockSize: 8192, MaxBlockSize: 16384, BlockStep: 1024, MaxResyncAttempts: 7},
		Catalog:  CatalogConfig{Type: "badger", Badger: map[string]any{"db_path": "/data/catalog"}},
		Resolver: ResolverConfig{HostCacheSize: 4, HostCacheTTL: time.Second},
		Metrics:  MetricsConfig{Listen: "127.0.0.1:9000"},
	}
	ApplyDefaults(cfg)

	if cfg.Logging.Level != "WARN" {
		t.Errorf("Expected level normalized to 'WARN', got %q", cfg.Logging.Level)
	}
	if cfg.Logging.Output != "/var/log/mythfs.log" {
		t.Errorf("Expected output preserved, got %q", cfg.Logging.Output)
	}
	if cfg.Backend.Port != 7000 || cfg.Backend.LocalID != "frontend1" || cfg.Backend.IOTimeout != time.Second {
		t.Errorf("Expected backend values preserved, got %+v", cfg.Backend)
	}
	if cfg.Transfer.InitialBlockSize != 8192 || cfg.Transfer.MaxResyncAttempts != 7 {
		t.Errorf("Expected transfer values preserved, got %+v", cfg.Transfer)
	}
	if cfg.Catalog.Badger["db_path"] != "/data/catalog" {
		t.Errorf("Expected db_path preserved, got %v", cfg.Catalog.Badger["db_path"])
	}
	if cfg.Resolver.HostCacheSize != 4 {
		t.Errorf("Expected host cache size preserved, got %d", cfg.Resolver.HostCacheSize)
	}
	if cfg.Metrics.Listen != "127.0.0.1:9000" {
		t.Errorf("Expected metrics listen preserved, got %q", cfg.Metrics.Listen)
	}
}

func TestGetDefaultConfig_IsValid(t *testing.T) {
	cfg := GetDefaultConfig()
	if err := Validate(cfg); err != nil {
		t.Fatalf("Default config failed validation: %v", err)
	}
}

func TestGetDefaultConfig_HasSampleSections(t *testing.T) {
	cfg := GetDefaultConfig()

	if _, ok := cfg.Catalog.Memory["locations"]; !ok {
		t.Error("Expected sample catalog locations")
	}
	if _, ok := cfg.Export.S3["region"]; !ok {
		t.Error("Expected sample S3 export section")
	}
}
