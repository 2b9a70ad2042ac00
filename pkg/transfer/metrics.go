package transfer

import (
	"time"
)

// Metrics provides observability for transfer sessions.
//
// This is optional - if Config.Metrics is nil, a no-op implementation is
// used. See metrics.NewTransferMetrics for the Prometheus implementation.
type Metrics interface {
	// ObserveCommand records a control round trip (announce, request_block,
	// write_block, seek, join) with its duration and outcome.
	ObserveCommand(command string, duration time.Duration, err error)

	// RecordBytes records file bytes moved on a data connection.
	// direction is "read" or "write".
	RecordBytes(direction string, bytes int64)

	// RecordResync records a -1 block reply recovered by a seek and retry.
	RecordResync()

	// ObserveBlockSize records the block size after an adjustment.
	ObserveBlockSize(size uint32)

	// SessionOpened and SessionClosed track active sessions per mode.
	SessionOpened(mode string)
	SessionClosed(mode string)
}

type noopMetrics struct{}

func (noopMetrics) ObserveCommand(command string, duration time.Duration, err error) {}
func (noopMetrics) RecordBytes(direction string, bytes int64)                        {}
func (noopMetrics) RecordResync()                                                    {}
func (noopMetrics) ObserveBlockSize(size uint32)                                     {}
func (noopMetrics) SessionOpened(mode string)                                        {}
func (noopMetrics) SessionClosed(mode string)                                        {}
