package config

import (
	exportS3 "github.com/marmos91/mythfs/pkg/export/s3"
	"github.com/marmos91/mythfs/pkg/metrics"
	"github.com/marmos91/mythfs/pkg/resolver"
	"github.com/marmos91/mythfs/pkg/transfer"
)

// MetricsResult contains all metrics-related components created from configuration.
type MetricsResult struct {
	// Server is the HTTP server exposing Prometheus metrics (nil if disabled)
	Server *metrics.Server

	// Transfer, Resolver and Export are nil when metrics are disabled, which
	// makes each component fall back to its no-op implementation.
	Transfer transfer.Metrics
	Resolver resolver.Metrics
	Export   exportS3.Metrics
}

// InitializeMetrics creates and initializes all metrics components based on configuration.
//
// If metrics are enabled in the configuration:
//   - Initializes the global Prometheus registry
//   - Creates the metrics HTTP server
//   - Creates Prometheus-backed metrics instances for all components
//
// If metrics are disabled every field is nil.
//
// Call it once per process: the collectors register with a global registry.
func InitializeMetrics(cfg *Config) *MetricsResult {
	if !cfg.Metrics.Enabled {
		return &MetricsResult{}
	}

	metrics.InitRegistry()

	return &MetricsResult{
		Server:   metrics.NewServer(metrics.ServerConfig{Listen: cfg.Metrics.Listen}),
		Transfer: metrics.NewTransferMetrics(),
		Resolver: metrics.NewResolverMetrics(),
		Export:   metrics.NewExportMetrics(),
	}
}
