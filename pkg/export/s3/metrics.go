package s3

import (
	"time"
)

// Metrics provides observability for exports.
//
// This is optional - if Config.Metrics is nil, a no-op implementation is
// used. See metrics.NewExportMetrics for the Prometheus implementation.
type Metrics interface {
	// ObserveOperation records an S3 call with its duration and outcome
	ObserveOperation(operation string, duration time.Duration, err error)

	// RecordBytes records bytes uploaded
	RecordBytes(bytes int64)

	// RecordMultipartUpload records a multipart upload event
	// status can be: "initiated", "completed", "aborted"
	RecordMultipartUpload(status string)
}

type noopMetrics struct{}

func (noopMetrics) ObserveOperation(operation string, duration time.Duration, err error) {}
func (noopMetrics) RecordBytes(bytes int64)                                              {}
func (noopMetrics) RecordMultipartUpload(status string)                                  {}
