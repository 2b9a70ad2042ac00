// Package metrics provides Prometheus metrics collection for mythfs components.
//
// Metrics are off until InitRegistry is called. The constructors
// (NewTransferMetrics, NewResolverMetrics, NewExportMetrics) return nil while
// metrics are off, and every component treats a nil Metrics as a no-op:
//
//	metrics.InitRegistry()
//	transferCfg.Metrics = metrics.NewTransferMetrics()
//	resolverCfg.Metrics = metrics.NewResolverMetrics()
//
// Collectors register with one process-wide registry, so each constructor
// must be called at most once per process. pkg/config.InitializeMetrics is
// the usual single call site.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

var (
	registry     *prometheus.Registry
	registryOnce sync.Once
)

// InitRegistry creates the process-wide registry with the Go runtime and
// process collectors. Calls after the first are no-ops.
func InitRegistry() {
	registryOnce.Do(func() {
		reg := prometheus.NewRegistry()
		reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{Namespace: "mythfs"}),
		)
		registry = reg
	})
}

// GetRegistry returns the registry, or nil while metrics are off.
func GetRegistry() *prometheus.Registry {
	return registry
}

// IsEnabled reports whether InitRegistry has been called.
func IsEnabled() bool {
	return GetRegistry() != nil
}
