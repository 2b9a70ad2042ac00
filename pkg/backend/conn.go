// Package backend implements the TCP control and data connections to a
// media backend.
//
// A control connection performs the protocol version handshake, announces
// itself as a monitor and then serves one request at a time. When opened with
// events enabled, a reader goroutine owns the socket and separates
// unsolicited BACKEND_MESSAGE frames (dispatched to subscribers) from
// responses (handed to the waiting Send).
//
// A data connection performs the handshake only. The transfer engine sends
// its announce through Send and then streams raw file bytes with Read and
// Write.
package backend

import (
	"context"
	"errors"
	"fmt"
	"net"
	"regexp"
	"strconv"
	"sync"
	"time"

	"github.com/marmos91/mythfs/internal/logger"
	"github.com/marmos91/mythfs/internal/wire"
	"github.com/marmos91/mythfs/pkg/fserrors"
	"github.com/marmos91/mythfs/pkg/protocol"
)

// ErrClosed is returned by operations on a closed connection.
var ErrClosed = errors.New("backend connection closed")

// Config holds connection settings shared by control and data connections.
type Config struct {
	// Port is the default backend port, used when a URI names none
	Port int

	// ProtocolVersion is sent in the MYTH_PROTO_VERSION handshake
	ProtocolVersion string

	// ProtocolToken is appended to the handshake when non-empty
	ProtocolToken string

	// LocalID identifies this client in announce commands
	LocalID string

	// DialTimeout bounds connection establishment (0 = no limit)
	DialTimeout time.Duration

	// IOTimeout bounds each request/response round trip (0 = no limit)
	IOTimeout time.Duration
}

type subscription struct {
	pattern *regexp.Regexp
	handler func(event string)
}

// Conn is a control connection.
//
// Send is safe for concurrent use but requests are serialized: at most one
// is outstanding at any time.
type Conn struct {
	conn   net.Conn
	cfg    Config
	addr   string
	events bool

	sendMu sync.Mutex

	// responses and done are only used when events is true
	responses chan string
	done      chan struct{}
	readErr   error

	subsMu  sync.RWMutex
	subs    map[uint64]subscription
	nextSub uint64

	closeOnce sync.Once
	closeErr  error
}

// Dial opens a control connection to host.
func Dial(ctx context.Context, host string, port int, cfg Config, events bool) (*Conn, error) {
	nc, addr, err := dialTCP(ctx, host, port, cfg)
	if err != nil {
		return nil, err
	}

	c := &Conn{
		conn:   nc,
		cfg:    cfg,
		addr:   addr,
		events: false,
		subs:   make(map[uint64]subscription),
	}

	// Handshake and announce run synchronously before the reader starts.
	if err := handshake(ctx, c, cfg); err != nil {
		_ = nc.Close()
		return nil, err
	}

	resp, err := c.Send(ctx, protocol.AnnounceMonitor{LocalID: cfg.LocalID, Events: events}.String())
	if err != nil {
		_ = nc.Close()
		return nil, err
	}
	if err := protocol.ParseOK("announce monitor", resp); err != nil {
		_ = nc.Close()
		return nil, err
	}

	if events {
		c.events = true
		c.responses = make(chan string, 1)
		c.done = make(chan struct{})
		go c.readLoop()
	}

	logger.Debug("Control connection to %s established (events=%v)", addr, events)
	return c, nil
}

// Addr returns the remote address.
func (c *Conn) Addr() string {
	return c.addr
}

// Send transmits command and waits for its response.
func (c *Conn) Send(ctx context.Context, command string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	c.sendMu.Lock()
	defer c.sendMu.Unlock()

	if c.cfg.IOTimeout > 0 {
		_ = c.conn.SetWriteDeadline(time.Now().Add(c.cfg.IOTimeout))
	}
	if err := wire.WriteMessage(c.conn, command); err != nil {
		return "", fserrors.Wrap(fserrors.IOError, "send", c.addr, err)
	}

	if !c.events {
		if c.cfg.IOTimeout > 0 {
			_ = c.conn.SetReadDeadline(time.Now().Add(c.cfg.IOTimeout))
		}
		resp, err := wire.ReadMessage(c.conn)
		if err != nil {
			return "", fserrors.Wrap(fserrors.IOError, "receive", c.addr, err)
		}
		return resp, nil
	}

	var timeout <-chan time.Time
	if c.cfg.IOTimeout > 0 {
		timer := time.NewTimer(c.cfg.IOTimeout)
		defer timer.Stop()
		timeout = timer.C
	}

	select {
	case resp := <-c.responses:
		return resp, nil
	case <-c.done:
		return "", fserrors.Wrap(fserrors.IOError, "receive", c.addr, c.readErr)
	case <-timeout:
		// The connection cannot be resynchronized once a response is lost.
		_ = c.Close()
		return "", fserrors.Wrap(fserrors.IOError, "receive", c.addr, context.DeadlineExceeded)
	}
}

// Subscribe registers handler for events matching pattern.
func (c *Conn) Subscribe(pattern *regexp.Regexp, handler func(event string)) func() {
	c.subsMu.Lock()
	id := c.nextSub
	c.nextSub++
	c.subs[id] = subscription{pattern: pattern, handler: handler}
	c.subsMu.Unlock()

	return func() {
		c.subsMu.Lock()
		delete(c.subs, id)
		c.subsMu.Unlock()
	}
}

// Close closes the connection. Subsequent calls return the first result.
func (c *Conn) Close() error {
	c.closeOnce.Do(func() {
		c.closeErr = c.conn.Close()
		logger.Debug("Control connection to %s closed", c.addr)
	})
	return c.closeErr
}

func (c *Conn) readLoop() {
	defer close(c.done)

	for {
		msg, err := wire.ReadMessage(c.conn)
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				err = ErrClosed
			}
			c.readErr = err
			return
		}

		if protocol.IsEvent(msg) {
			c.dispatch(msg)
			continue
		}

		select {
		case c.responses <- msg:
		default:
			logger.Warn("Dropping unsolicited response from %s: %q", c.addr, msg)
		}
	}
}

func (c *Conn) dispatch(event string) {
	c.subsMu.RLock()
	defer c.subsMu.RUnlock()

	for _, sub := range c.subs {
		if sub.pattern.MatchString(event) {
			sub.handler(event)
		}
	}
}

// ============================================================================
// Helpers
// ============================================================================

type sender interface {
	Send(ctx context.Context, command string) (string, error)
}

func handshake(ctx context.Context, s sender, cfg Config) error {
	resp, err := s.Send(ctx, protocol.ProtoVersion{Version: cfg.ProtocolVersion, Token: cfg.ProtocolToken}.String())
	if err != nil {
		return err
	}
	return protocol.ParseProtoVersionReply(resp)
}

func dialTCP(ctx context.Context, host string, port int, cfg Config) (net.Conn, string, error) {
	if port == 0 {
		port = cfg.Port
	}
	addr := net.JoinHostPort(host, strconv.Itoa(port))

	d := net.Dialer{Timeout: cfg.DialTimeout}
	nc, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, addr, fserrors.Wrap(fserrors.IOError, "dial", addr, err)
	}
	return nc, addr, nil
}

// String implements fmt.Stringer for log messages.
func (c *Conn) String() string {
	return fmt.Sprintf("backend control %s", c.addr)
}
