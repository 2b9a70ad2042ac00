package resolver

import (
	"time"
)

// Metrics provides observability for path resolution.
//
// This is optional - if Config.Metrics is nil, a no-op implementation is
// used. See metrics.NewResolverMetrics for the Prometheus implementation.
type Metrics interface {
	// ObserveOpen records an Open call. target is "local" or "remote".
	ObserveOpen(mode, target string, duration time.Duration, err error)

	// ObserveFileOp records a backend file operation (exists, hash,
	// delete, free_space).
	ObserveFileOp(op string, duration time.Duration, err error)

	// RecordHostCache records an IP-to-hostname cache lookup.
	RecordHostCache(hit bool)
}

type noopMetrics struct{}

func (noopMetrics) ObserveOpen(mode, target string, duration time.Duration, err error) {}
func (noopMetrics) ObserveFileOp(op string, duration time.Duration, err error)         {}
func (noopMetrics) RecordHostCache(hit bool)                                           {}
