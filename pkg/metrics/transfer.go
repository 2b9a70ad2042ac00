package metrics

import (
	"time"

	"github.com/marmos91/mythfs/pkg/transfer"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// transferMetrics is the Prometheus implementation of transfer.Metrics.
type transferMetrics struct {
	commandsTotal    *prometheus.CounterVec
	commandDuration  *prometheus.HistogramVec
	bytesTransferred *prometheus.CounterVec
	resyncsTotal     prometheus.Counter
	blockSize        prometheus.Histogram
	activeSessions   *prometheus.GaugeVec
}

// NewTransferMetrics creates a new Prometheus-backed transfer.Metrics.
//
// Returns nil if metrics are not enabled (InitRegistry not called), which
// causes transfer sessions to use their built-in no-op implementation.
func NewTransferMetrics() transfer.Metrics {
	if !IsEnabled() {
		return nil
	}

	reg := GetRegistry()

	return &transferMetrics{
		commandsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "mythfs_transfer_commands_total",
				Help: "Total number of transfer control commands by command and status",
			},
			[]string{"command", "status"},
		),
		commandDuration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Name: "mythfs_transfer_command_duration_seconds",
				Help: "Round trip time of transfer control commands in seconds",
				Buckets: []float64{
					0.0005, // 500us
					0.001,  // 1ms
					0.005,  // 5ms
					0.01,   // 10ms
					0.05,   // 50ms
					0.1,    // 100ms
					0.5,    // 500ms
					1.0,    // 1s
					5.0,    // 5s
				},
			},
			[]string{"command"},
		),
		bytesTransferred: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "mythfs_transfer_bytes_total",
				Help: "Total file bytes moved over data connections",
			},
			[]string{"direction"}, // read or write
		),
		resyncsTotal: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Name: "mythfs_transfer_resyncs_total",
				Help: "Total number of failed block requests recovered by a seek and retry",
			},
		),
		blockSize: promauto.With(reg).NewHistogram(
			prometheus.HistogramOpts{
				Name:    "mythfs_transfer_block_size_bytes",
				Help:    "Read block size after each adjustment",
				Buckets: prometheus.ExponentialBuckets(4096, 2, 8), // 4KB .. 512KB
			},
		),
		activeSessions: promauto.With(reg).NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "mythfs_transfer_active_sessions",
				Help: "Current number of open transfer sessions",
			},
			[]string{"mode"},
		),
	}
}

func (m *transferMetrics) ObserveCommand(command string, duration time.Duration, err error) {
	m.commandsTotal.WithLabelValues(command, status(err)).Inc()
	m.commandDuration.WithLabelValues(command).Observe(duration.Seconds())
}

func (m *transferMetrics) RecordBytes(direction string, bytes int64) {
	m.bytesTransferred.WithLabelValues(direction).Add(float64(bytes))
}

func (m *transferMetrics) RecordResync() {
	m.resyncsTotal.Inc()
}

func (m *transferMetrics) ObserveBlockSize(size uint32) {
	m.blockSize.Observe(float64(size))
}

func (m *transferMetrics) SessionOpened(mode string) {
	m.activeSessions.WithLabelValues(mode).Inc()
}

func (m *transferMetrics) SessionClosed(mode string) {
	m.activeSessions.WithLabelValues(mode).Dec()
}

func status(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}
