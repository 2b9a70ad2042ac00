// Package transfer implements the remote file transfer session: the block
// protocol used to stream one file over a backend data connection.
//
// A Session owns two connections. The control connection carries the
// QUERY_FILETRANSFER commands (block requests, seeks, join) and, for growing
// files, the UPDATE_FILE_SIZE events. The data connection carries the
// announce and then raw file bytes.
//
// Reads adapt their block size: requests that keep being served in full grow
// the block by BlockStep up to MaxBlockSize, short replies shrink it by twice
// BlockStep down to BlockStep. Writes are chunked by the current block size
// and never tune it.
//
// A Session implements file.Handle and, like any handle, must not be used
// from several goroutines at once.
package transfer

import (
	"context"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/marmos91/mythfs/internal/logger"
	"github.com/marmos91/mythfs/internal/ratelimiter"
	"github.com/marmos91/mythfs/pkg/file"
	"github.com/marmos91/mythfs/pkg/fserrors"
	"github.com/marmos91/mythfs/pkg/protocol"
)

// Block size defaults.
const (
	DefaultInitialBlockSize  = 1 << 15
	DefaultMaxBlockSize      = 1 << 17
	DefaultBlockStep         = 1 << 12
	DefaultMaxResyncAttempts = 3

	// growAfter is the number of capped requests served in full before the
	// block size grows.
	growAfter = 5
)

// Config tunes a session.
type Config struct {
	// LocalID identifies this client in the announce
	LocalID string

	InitialBlockSize uint32
	MaxBlockSize     uint32
	BlockStep        uint32

	// MaxResyncAttempts bounds consecutive -1 replies for one chunk
	MaxResyncAttempts int

	// Metrics is optional; nil disables metrics
	Metrics Metrics

	// Limiter is optional; nil disables throttling
	Limiter *ratelimiter.RateLimiter
}

// DefaultConfig returns the default session configuration.
func DefaultConfig() Config {
	return Config{
		InitialBlockSize:  DefaultInitialBlockSize,
		MaxBlockSize:      DefaultMaxBlockSize,
		BlockStep:         DefaultBlockStep,
		MaxResyncAttempts: DefaultMaxResyncAttempts,
	}
}

func (c *Config) validate() error {
	if c.BlockStep == 0 {
		return fserrors.New(fserrors.ConfigurationError, "transfer", "block step must be positive")
	}
	if c.InitialBlockSize < c.BlockStep || c.InitialBlockSize > c.MaxBlockSize {
		return fserrors.Newf(fserrors.ConfigurationError, "transfer",
			"block sizes must satisfy step (%d) <= initial (%d) <= max (%d)",
			c.BlockStep, c.InitialBlockSize, c.MaxBlockSize)
	}
	if c.MaxResyncAttempts < 1 {
		return fserrors.New(fserrors.ConfigurationError, "transfer", "max resync attempts must be at least 1")
	}
	return nil
}

// GrowingFileWatch associates a read session with a recording that may still
// be written. Matching UPDATE_FILE_SIZE events replace the session size.
type GrowingFileWatch struct {
	ChanID    int64
	StartTime time.Time
}

// Request names the file a session is opened for.
type Request struct {
	Host     string
	Port     int
	Filename string
	Group    string
	Mode     file.Mode

	// Watch is honoured for read sessions only
	Watch *GrowingFileWatch
}

// Session is an open remote transfer.
type Session struct {
	*conns

	host  string
	name  string
	group string
	mode  file.Mode

	pos  int64
	size *atomic.Int64

	blockSize     uint32
	maxBlockSize  uint32
	blockStep     uint32
	fullTransfers uint32
	maxResync     int

	metrics Metrics
	limiter *ratelimiter.RateLimiter
	cleanup runtime.Cleanup
}

// conns is the part of a session the leak cleanup may touch. It must not
// reference the Session itself.
type conns struct {
	ctrl        protocol.Control
	data        protocol.Data
	id          int64
	addr        string
	unsubscribe func()
	metrics     Metrics
	modeName    string

	once sync.Once
	err  error
}

// Open dials the backend named in req and announces the transfer.
//
// Any failure closes both connections; announce failures are never retried.
func Open(ctx context.Context, dialer protocol.Dialer, req Request, cfg Config) (*Session, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if cfg.Metrics == nil {
		cfg.Metrics = noopMetrics{}
	}
	if req.Group == "" {
		req.Group = "Default"
	}
	if req.Mode != file.ModeRead && req.Mode != file.ModeWrite {
		return nil, fserrors.Newf(fserrors.InvalidArgument, "open", "invalid mode %d", int(req.Mode))
	}

	watch := req.Watch
	if watch != nil && req.Mode == file.ModeWrite {
		logger.Debug("Ignoring growing-file watch on write session for %s", req.Filename)
		watch = nil
	}

	// Step 1: control connection
	ctrl, err := dialer.DialControl(ctx, req.Host, req.Port, watch != nil)
	if err != nil {
		return nil, err
	}

	// Step 2: data connection
	data, err := dialer.DialData(ctx, req.Host, req.Port)
	if err != nil {
		_ = ctrl.Close()
		return nil, err
	}

	// Step 3: announce
	start := time.Now()
	resp, err := data.Send(ctx, protocol.AnnounceFileTransfer{
		LocalID:  cfg.LocalID,
		Write:    req.Mode == file.ModeWrite,
		Filename: req.Filename,
		Group:    req.Group,
	}.String())
	var reply protocol.AnnounceReply
	if err == nil {
		reply, err = protocol.ParseAnnounceReply(resp)
	}
	cfg.Metrics.ObserveCommand("announce", time.Since(start), err)
	if err != nil {
		_ = data.Close()
		_ = ctrl.Close()
		return nil, err
	}

	s := &Session{
		conns: &conns{
			ctrl:     ctrl,
			data:     data,
			id:       reply.SessionID,
			addr:     req.Host,
			metrics:  cfg.Metrics,
			modeName: req.Mode.String(),
		},
		host:         req.Host,
		name:         req.Filename,
		group:        req.Group,
		mode:         req.Mode,
		size:         new(atomic.Int64),
		blockSize:    cfg.InitialBlockSize,
		maxBlockSize: cfg.MaxBlockSize,
		blockStep:    cfg.BlockStep,
		maxResync:    cfg.MaxResyncAttempts,
		metrics:      cfg.Metrics,
		limiter:      cfg.Limiter,
	}
	s.size.Store(reply.Size)

	// Step 4: live size tracking
	if watch != nil {
		pattern := protocol.FileSizeEventPattern(watch.ChanID, watch.StartTime)
		size := s.size
		s.unsubscribe = ctrl.Subscribe(pattern, func(event string) {
			if v, ok := protocol.ParseFileSizeEvent(pattern, event); ok {
				size.Store(v)
			}
		})
	}

	s.cleanup = runtime.AddCleanup(s, func(c *conns) {
		logger.Warn("Transfer session %d on %s was not closed", c.id, c.addr)
		_ = c.release(context.Background())
	}, s.conns)

	cfg.Metrics.SessionOpened(s.modeName)
	logger.Debug("Transfer session %d opened: %s %s@%s size=%d", s.id, req.Mode, req.Group, req.Host, reply.Size)
	return s, nil
}

// Close releases the session on the backend and closes both connections.
// Later calls return the first result.
func (s *Session) Close() error {
	s.cleanup.Stop()
	return s.release(context.Background())
}

func (c *conns) release(ctx context.Context) error {
	c.once.Do(func() {
		if c.unsubscribe != nil {
			c.unsubscribe()
		}

		// Join failures are only logged. The backend drops the session with
		// the data connection.
		start := time.Now()
		resp, jerr := c.ctrl.Send(ctx, protocol.Join{SessionID: c.id}.String())
		if jerr == nil {
			jerr = protocol.ParseOK("join", resp)
		}
		c.metrics.ObserveCommand("join", time.Since(start), jerr)
		if jerr != nil {
			logger.Debug("Transfer session %d: join failed: %v", c.id, jerr)
		}

		var err error
		if cerr := c.data.Close(); cerr != nil && err == nil {
			err = fserrors.Wrap(fserrors.IOError, "close", c.addr, cerr)
		}
		if cerr := c.ctrl.Close(); cerr != nil && err == nil {
			err = fserrors.Wrap(fserrors.IOError, "close", c.addr, cerr)
		}
		c.err = err
		c.metrics.SessionClosed(c.modeName)
	})
	return c.err
}

// Tell returns the current position.
func (s *Session) Tell() int64 {
	return s.pos
}

// Size returns the current file size, including live updates.
func (s *Session) Size() int64 {
	return s.size.Load()
}

func (s *Session) Mode() file.Mode {
	return s.mode
}

func (s *Session) Name() string {
	return s.name
}

// Group returns the storage group the session was announced in.
func (s *Session) Group() string {
	return s.group
}

// Host returns the backend host.
func (s *Session) Host() string {
	return s.host
}

// SessionID returns the backend-assigned transfer id.
func (s *Session) SessionID() int64 {
	return s.id
}

// BlockSize returns the current block size.
func (s *Session) BlockSize() uint32 {
	return s.blockSize
}

// send issues one control command and records its latency.
func (s *Session) send(ctx context.Context, name, command string) (string, error) {
	start := time.Now()
	resp, err := s.ctrl.Send(ctx, command)
	s.metrics.ObserveCommand(name, time.Since(start), err)
	return resp, err
}

// growSize raises the cached size to at least v.
func (s *Session) growSize(v int64) {
	for {
		cur := s.size.Load()
		if v <= cur || s.size.CompareAndSwap(cur, v) {
			return
		}
	}
}

var _ file.Handle = (*Session)(nil)
