package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/marmos91/mythfs/internal/logger"
	"github.com/marmos91/mythfs/pkg/catalog"
	"github.com/marmos91/mythfs/pkg/config"
	"github.com/marmos91/mythfs/pkg/resolver"
)

// app is the runtime a file command works against.
type app struct {
	cfg      *config.Config
	resolver *resolver.Resolver
	store    catalog.Store
	metrics  *config.MetricsResult

	stopMetrics context.CancelFunc
	metricsDone chan struct{}
}

// loadConfig loads the configuration, applies the global flag overrides and
// configures logging.
func loadConfig(g *globals) (*config.Config, error) {
	cfg, err := config.Load(g.configPath)
	if err != nil {
		return nil, err
	}

	if g.logLevel != "" {
		cfg.Logging.Level = strings.ToUpper(g.logLevel)
	}
	if g.metrics {
		cfg.Metrics.Enabled = true
	}

	if err := logger.Configure(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Output); err != nil {
		return nil, fmt.Errorf("failed to configure logging: %w", err)
	}
	return cfg, nil
}

// openApp wires metrics, the backend dialer, the catalog and the resolver.
// The caller must Close the app.
func openApp(ctx context.Context, g *globals) (*app, error) {
	cfg, err := loadConfig(g)
	if err != nil {
		return nil, err
	}

	a := &app{cfg: cfg, metrics: config.InitializeMetrics(cfg)}
	if a.metrics.Server != nil {
		metricsCtx, cancel := context.WithCancel(ctx)
		a.stopMetrics = cancel
		a.metricsDone = make(chan struct{})
		go func() {
			defer close(a.metricsDone)
			if err := a.metrics.Server.Start(metricsCtx); err != nil {
				logger.Error("Metrics server error: %v", err)
			}
		}()
	}

	r, store, err := config.CreateResolver(ctx, cfg, config.CreateDialer(&cfg.Backend), a.metrics)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.resolver = r
	a.store = store
	return a, nil
}

// ref parses uri and replaces an IP host with its hostname.
func (a *app) ref(ctx context.Context, uri string) (resolver.FileRef, error) {
	ref, err := resolver.Parse(uri)
	if err != nil {
		return ref, err
	}
	return a.resolver.Canonical(ctx, ref)
}

// Close releases the catalog and stops the metrics server.
func (a *app) Close() {
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			logger.Warn("Failed to close catalog: %v", err)
		}
	}
	if a.stopMetrics != nil {
		a.stopMetrics()
		<-a.metricsDone
	}
}
