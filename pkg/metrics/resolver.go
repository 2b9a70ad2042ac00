package metrics

import (
	"time"

	"github.com/marmos91/mythfs/pkg/resolver"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type resolverMetrics struct {
	opensTotal      *prometheus.CounterVec
	openDuration    *prometheus.HistogramVec
	fileOpsTotal    *prometheus.CounterVec
	fileOpDuration  *prometheus.HistogramVec
	hostCacheLookup *prometheus.CounterVec
}

// NewResolverMetrics creates a new Prometheus-backed resolver.Metrics.
//
// Returns nil if metrics are not enabled.
func NewResolverMetrics() resolver.Metrics {
	if !IsEnabled() {
		return nil
	}

	reg := GetRegistry()

	return &resolverMetrics{
		opensTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "mythfs_resolver_opens_total",
				Help: "Total number of open calls by mode, target (local or remote) and status",
			},
			[]string{"mode", "target", "status"},
		),
		openDuration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "mythfs_resolver_open_duration_seconds",
				Help:    "Time to resolve and open a file in seconds",
				Buckets: prometheus.ExponentialBuckets(0.0005, 4, 8), // 500us .. ~8s
			},
			[]string{"target"},
		),
		fileOpsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "mythfs_resolver_file_ops_total",
				Help: "Total number of backend file operations by operation and status",
			},
			[]string{"operation", "status"},
		),
		fileOpDuration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "mythfs_resolver_file_op_duration_seconds",
				Help:    "Duration of backend file operations in seconds",
				Buckets: prometheus.ExponentialBuckets(0.0005, 4, 8),
			},
			[]string{"operation"},
		),
		hostCacheLookup: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "mythfs_resolver_host_cache_lookups_total",
				Help: "IP to hostname cache lookups by result",
			},
			[]string{"result"}, // hit or miss
		),
	}
}

func (m *resolverMetrics) ObserveOpen(mode, target string, duration time.Duration, err error) {
	if target == "" {
		target = "none"
	}
	m.opensTotal.WithLabelValues(mode, target, status(err)).Inc()
	m.openDuration.WithLabelValues(target).Observe(duration.Seconds())
}

func (m *resolverMetrics) ObserveFileOp(op string, duration time.Duration, err error) {
	m.fileOpsTotal.WithLabelValues(op, status(err)).Inc()
	m.fileOpDuration.WithLabelValues(op).Observe(duration.Seconds())
}

func (m *resolverMetrics) RecordHostCache(hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	m.hostCacheLookup.WithLabelValues(result).Inc()
}
