package config

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/aws/retry"
	awsConfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/marmos91/mythfs/internal/logger"
	"github.com/marmos91/mythfs/internal/ratelimiter"
	"github.com/marmos91/mythfs/pkg/backend"
	"github.com/marmos91/mythfs/pkg/catalog"
	catalogBadger "github.com/marmos91/mythfs/pkg/catalog/badger"
	catalogMemory "github.com/marmos91/mythfs/pkg/catalog/memory"
	exportS3 "github.com/marmos91/mythfs/pkg/export/s3"
	"github.com/marmos91/mythfs/pkg/protocol"
	"github.com/marmos91/mythfs/pkg/resolver"
	"github.com/marmos91/mythfs/pkg/transfer"
	"github.com/mitchellh/mapstructure"
)

// CreateDialer creates the backend dialer used for control and data
// connections.
func CreateDialer(cfg *BackendConfig) *backend.Dialer {
	return backend.NewDialer(backend.Config{
		Port:            cfg.Port,
		ProtocolVersion: cfg.ProtocolVersion,
		ProtocolToken:   cfg.ProtocolToken,
		LocalID:         cfg.LocalID,
		DialTimeout:     cfg.DialTimeout,
		IOTimeout:       cfg.IOTimeout,
	})
}

// CreateCatalogStore creates a catalog store based on configuration.
//
// This factory function uses the Type field to determine which store
// implementation to create, then decodes the type-specific configuration from
// the corresponding map and passes it to the store's constructor.
//
// Supported types:
//   - "memory": Uses pkg/catalog/memory (seeded from the config file)
//   - "badger": Uses pkg/catalog/badger (BadgerDB storage, persistent)
func CreateCatalogStore(ctx context.Context, cfg *CatalogConfig) (catalog.Store, error) {
	switch cfg.Type {
	case "memory":
		return createMemoryCatalogStore(ctx, cfg.Memory)
	case "badger":
		return createBadgerCatalogStore(ctx, cfg.Badger)
	default:
		return nil, fmt.Errorf("unknown catalog store type: %q (supported: memory, badger)", cfg.Type)
	}
}

// LocationConfig is one storage directory in the memory catalog.
type LocationConfig struct {
	Group     string `mapstructure:"group" yaml:"group"`
	Host      string `mapstructure:"host" yaml:"host"`
	Directory string `mapstructure:"directory" yaml:"directory"`
}

// MemoryCatalogOptions is the decoded catalog.memory section.
type MemoryCatalogOptions struct {
	Locations []LocationConfig  `mapstructure:"locations"`
	HostIPs   map[string]string `mapstructure:"host_ips"`
}

func decodeMemoryCatalogOptions(options map[string]any) (MemoryCatalogOptions, error) {
	var opts MemoryCatalogOptions
	if err := mapstructure.Decode(options, &opts); err != nil {
		return opts, fmt.Errorf("failed to decode memory catalog options: %w", err)
	}
	return opts, nil
}

// createMemoryCatalogStore creates an in-memory catalog seeded from options.
func createMemoryCatalogStore(ctx context.Context, options map[string]any) (catalog.Store, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	opts, err := decodeMemoryCatalogOptions(options)
	if err != nil {
		return nil, err
	}

	seed := catalogMemory.Config{HostIPs: opts.HostIPs}
	for _, loc := range opts.Locations {
		seed.Locations = append(seed.Locations, catalog.Location{
			Group:     loc.Group,
			Host:      loc.Host,
			Directory: loc.Directory,
		})
	}

	store, err := catalogMemory.NewStoreFromConfig(ctx, seed)
	if err != nil {
		return nil, fmt.Errorf("failed to create memory catalog: %w", err)
	}
	return store, nil
}

// createBadgerCatalogStore creates a BadgerDB-based persistent catalog.
func createBadgerCatalogStore(ctx context.Context, options map[string]any) (catalog.Store, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	type BadgerCatalogOptions struct {
		DBPath string `mapstructure:"db_path"`
	}

	var opts BadgerCatalogOptions
	if err := mapstructure.Decode(options, &opts); err != nil {
		return nil, fmt.Errorf("failed to decode badger catalog options: %w", err)
	}

	if opts.DBPath == "" {
		return nil, fmt.Errorf("badger catalog: db_path is required")
	}

	store, err := catalogBadger.NewStore(ctx, catalogBadger.Config{DBPath: opts.DBPath})
	if err != nil {
		return nil, fmt.Errorf("failed to create badger catalog: %w", err)
	}
	return store, nil
}

// CreateTransferConfig builds the transfer session configuration, including
// the rate limiter when one is configured.
func CreateTransferConfig(cfg *Config, metrics transfer.Metrics) transfer.Config {
	return transfer.Config{
		LocalID:           cfg.Backend.LocalID,
		InitialBlockSize:  cfg.Transfer.InitialBlockSize,
		MaxBlockSize:      cfg.Transfer.MaxBlockSize,
		BlockStep:         cfg.Transfer.BlockStep,
		MaxResyncAttempts: cfg.Transfer.MaxResyncAttempts,
		Metrics:           metrics,
		Limiter:           ratelimiter.New(cfg.Transfer.RateLimit, cfg.Transfer.RateBurst),
	}
}

// CreateResolver wires a resolver from configuration.
//
// The returned catalog store is owned by the caller and must be closed.
func CreateResolver(ctx context.Context, cfg *Config, dialer protocol.Dialer, m *MetricsResult) (*resolver.Resolver, catalog.Store, error) {
	if m == nil {
		m = &MetricsResult{}
	}

	store, err := CreateCatalogStore(ctx, &cfg.Catalog)
	if err != nil {
		return nil, nil, err
	}

	var cache *resolver.HostCache
	if cfg.Resolver.HostCacheSize > 0 {
		cache = resolver.NewHostCache(cfg.Resolver.HostCacheSize, cfg.Resolver.HostCacheTTL)
	}

	r, err := resolver.New(resolver.Config{
		Registry:  catalog.NewRegistry(store, cfg.Catalog.LocalHostname),
		Dialer:    dialer,
		HostCache: cache,
		Transfer:  CreateTransferConfig(cfg, m.Transfer),
		Metrics:   m.Resolver,
	})
	if err != nil {
		_ = store.Close()
		return nil, nil, err
	}

	logger.Debug("Resolver ready: catalog=%s local_hostname=%s", cfg.Catalog.Type, cfg.Catalog.LocalHostname)
	return r, store, nil
}

// S3ExportConfig is the decoded export.s3 section.
type S3ExportConfig struct {
	Region          string `mapstructure:"region"`
	Bucket          string `mapstructure:"bucket"`
	KeyPrefix       string `mapstructure:"key_prefix"`
	Endpoint        string `mapstructure:"endpoint"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	PartSize        int64  `mapstructure:"part_size"`
	MaxRetries      int    `mapstructure:"max_retries"`
}

// DecodeS3ExportConfig decodes and checks the export.s3 section.
func DecodeS3ExportConfig(options map[string]any) (S3ExportConfig, error) {
	var exportCfg S3ExportConfig
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		Result:           &exportCfg,
	})
	if err != nil {
		return exportCfg, fmt.Errorf("failed to create decoder: %w", err)
	}
	if err := decoder.Decode(options); err != nil {
		return exportCfg, fmt.Errorf("failed to decode S3 export config: %w", err)
	}

	if exportCfg.Bucket == "" {
		return exportCfg, fmt.Errorf("S3 export: bucket is required")
	}
	if exportCfg.Region == "" {
		return exportCfg, fmt.Errorf("S3 export: region is required")
	}
	return exportCfg, nil
}

// CreateExporter creates an S3 exporter from the export.s3 section.
//
// bucketOverride, when not empty, replaces the configured bucket.
func CreateExporter(ctx context.Context, cfg *ExportConfig, bucketOverride string, metrics exportS3.Metrics) (*exportS3.Exporter, error) {
	options := make(map[string]any, len(cfg.S3)+1)
	for k, v := range cfg.S3 {
		options[k] = v
	}
	if bucketOverride != "" {
		options["bucket"] = bucketOverride
	}

	exportCfg, err := DecodeS3ExportConfig(options)
	if err != nil {
		return nil, err
	}

	// ========================================================================
	// Step 1: Build AWS Config
	// ========================================================================

	var configOptions []func(*awsConfig.LoadOptions) error

	configOptions = append(configOptions, awsConfig.WithRegion(exportCfg.Region))

	// Set credentials if provided, otherwise use default credential chain
	if exportCfg.AccessKeyID != "" && exportCfg.SecretAccessKey != "" {
		credProvider := credentials.NewStaticCredentialsProvider(
			exportCfg.AccessKeyID,
			exportCfg.SecretAccessKey,
			"", // session token (empty for static credentials)
		)
		configOptions = append(configOptions, awsConfig.WithCredentialsProvider(credProvider))
	}

	maxRetries := exportCfg.MaxRetries
	if maxRetries == 0 {
		maxRetries = 10
	}
	configOptions = append(configOptions, awsConfig.WithRetryer(func() aws.Retryer {
		return retry.NewStandard(func(o *retry.StandardOptions) {
			o.MaxAttempts = maxRetries
		})
	}))

	awsCfg, err := awsConfig.LoadDefaultConfig(ctx, configOptions...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	// ========================================================================
	// Step 2: Create S3 Client
	// ========================================================================

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		// Custom endpoints (MinIO, Localstack) need path-style addressing
		if exportCfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(exportCfg.Endpoint)
			o.UsePathStyle = true
		}
	})

	// ========================================================================
	// Step 3: Create Exporter
	// ========================================================================

	exporter, err := exportS3.New(exportS3.Config{
		Client:    client,
		Bucket:    exportCfg.Bucket,
		KeyPrefix: exportCfg.KeyPrefix,
		PartSize:  exportCfg.PartSize,
		Metrics:   metrics,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create S3 exporter: %w", err)
	}

	logger.Debug("S3 exporter initialized: bucket=%s, region=%s, prefix=%s",
		exportCfg.Bucket, exportCfg.Region, exportCfg.KeyPrefix)

	return exporter, nil
}
