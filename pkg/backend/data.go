package backend

import (
	"context"
	"net"
	"sync"
	"time"

	"github.com/marmos91/mythfs/internal/logger"
	"github.com/marmos91/mythfs/internal/wire"
	"github.com/marmos91/mythfs/pkg/fserrors"
	"github.com/marmos91/mythfs/pkg/protocol"
)

// DataConn is a file transfer data connection.
type DataConn struct {
	conn net.Conn
	addr string
	cfg  Config

	closeOnce sync.Once
	closeErr  error
}

// DialData opens a data connection to host and performs the version
// handshake. The caller announces the transfer with Send.
func DialData(ctx context.Context, host string, port int, cfg Config) (*DataConn, error) {
	nc, addr, err := dialTCP(ctx, host, port, cfg)
	if err != nil {
		return nil, err
	}

	d := &DataConn{conn: nc, addr: addr, cfg: cfg}
	if err := handshake(ctx, d, cfg); err != nil {
		_ = nc.Close()
		return nil, err
	}

	logger.Debug("Data connection to %s established", addr)
	return d, nil
}

// Send writes a framed command and reads the framed reply.
func (d *DataConn) Send(ctx context.Context, command string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	d.setDeadlines()
	if err := wire.WriteMessage(d.conn, command); err != nil {
		return "", fserrors.Wrap(fserrors.IOError, "send", d.addr, err)
	}
	resp, err := wire.ReadMessage(d.conn)
	if err != nil {
		return "", fserrors.Wrap(fserrors.IOError, "receive", d.addr, err)
	}
	return resp, nil
}

// Read reads raw file bytes.
func (d *DataConn) Read(p []byte) (int, error) {
	if d.cfg.IOTimeout > 0 {
		_ = d.conn.SetReadDeadline(time.Now().Add(d.cfg.IOTimeout))
	}
	return d.conn.Read(p)
}

// Write writes raw file bytes.
func (d *DataConn) Write(p []byte) (int, error) {
	if d.cfg.IOTimeout > 0 {
		_ = d.conn.SetWriteDeadline(time.Now().Add(d.cfg.IOTimeout))
	}
	return d.conn.Write(p)
}

// Close closes the connection once.
func (d *DataConn) Close() error {
	d.closeOnce.Do(func() {
		d.closeErr = d.conn.Close()
		logger.Debug("Data connection to %s closed", d.addr)
	})
	return d.closeErr
}

func (d *DataConn) setDeadlines() {
	if d.cfg.IOTimeout > 0 {
		deadline := time.Now().Add(d.cfg.IOTimeout)
		_ = d.conn.SetReadDeadline(deadline)
		_ = d.conn.SetWriteDeadline(deadline)
	}
}

// Dialer opens backend connections with a fixed configuration.
type Dialer struct {
	Config Config
}

// NewDialer returns a Dialer for cfg.
func NewDialer(cfg Config) *Dialer {
	return &Dialer{Config: cfg}
}

// DialControl implements protocol.Dialer.
func (d *Dialer) DialControl(ctx context.Context, host string, port int, events bool) (protocol.Control, error) {
	c, err := Dial(ctx, host, port, d.Config, events)
	if err != nil {
		return nil, err
	}
	return c, nil
}

// DialData implements protocol.Dialer.
func (d *Dialer) DialData(ctx context.Context, host string, port int) (protocol.Data, error) {
	c, err := DialData(ctx, host, port, d.Config)
	if err != nil {
		return nil, err
	}
	return c, nil
}

var _ protocol.Dialer = (*Dialer)(nil)
