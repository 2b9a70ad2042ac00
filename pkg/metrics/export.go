package metrics

import (
	"time"

	"github.com/marmos91/mythfs/pkg/export/s3"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// exportMetrics is the Prometheus implementation of s3.Metrics.
//
// This implementation collects metrics about S3 exports including:
//   - Operation counts (PutObject, UploadPart, etc.)
//   - Operation latency
//   - Bytes uploaded
//   - Multipart upload lifecycle
type exportMetrics struct {
	operationsTotal   *prometheus.CounterVec
	operationDuration *prometheus.HistogramVec
	bytesUploaded     prometheus.Counter
	multipartUploads  *prometheus.CounterVec
	errorsTotal       *prometheus.CounterVec
}

// NewExportMetrics creates a new Prometheus-backed s3.Metrics instance.
//
// Returns nil if metrics are not enabled (InitRegistry not called), which
// causes the exporter to use the built-in no-op implementation.
func NewExportMetrics() s3.Metrics {
	if !IsEnabled() {
		return nil // exporter will use noopMetrics
	}

	reg := GetRegistry()

	return &exportMetrics{
		operationsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "mythfs_export_s3_operations_total",
				Help: "Total number of S3 operations by operation type and status",
			},
			[]string{"operation", "status"},
		),
		operationDuration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Name: "mythfs_export_s3_operation_duration_seconds",
				Help: "Duration of S3 operations in seconds",
				Buckets: []float64{
					0.01,  // 10ms
					0.05,  // 50ms
					0.1,   // 100ms
					0.25,  // 250ms
					0.5,   // 500ms
					1.0,   // 1s
					2.5,   // 2.5s
					5.0,   // 5s
					10.0,  // 10s
					30.0,  // 30s
					60.0,  // 1min
				},
			},
			[]string{"operation"},
		),
		bytesUploaded: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Name: "mythfs_export_s3_bytes_uploaded_total",
				Help: "Total bytes uploaded to S3",
			},
		),
		multipartUploads: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "mythfs_export_s3_multipart_uploads_total",
				Help: "Total number of S3 multipart uploads by status",
			},
			[]string{"status"}, // initiated, completed, aborted
		),
		errorsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "mythfs_export_s3_errors_total",
				Help: "Total number of S3 operation errors by operation type",
			},
			[]string{"operation"},
		),
	}
}

// ObserveOperation implements s3.Metrics.ObserveOperation
func (m *exportMetrics) ObserveOperation(operation string, duration time.Duration, err error) {
	if err != nil {
		m.errorsTotal.WithLabelValues(operation).Inc()
	}

	m.operationsTotal.WithLabelValues(operation, status(err)).Inc()
	m.operationDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// RecordBytes implements s3.Metrics.RecordBytes
func (m *exportMetrics) RecordBytes(bytes int64) {
	m.bytesUploaded.Add(float64(bytes))
}

// RecordMultipartUpload implements s3.Metrics.RecordMultipartUpload
func (m *exportMetrics) RecordMultipartUpload(status string) {
	m.multipartUploads.WithLabelValues(status).Inc()
}
