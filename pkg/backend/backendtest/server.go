// Package backendtest provides an in-memory backend for tests.
//
// Server implements protocol.Dialer. It keeps files per storage group,
// serves the transfer commands the way a real backend does and records every
// command it receives. Hooks let tests script block replies and failures.
package backendtest

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"io"
	"regexp"
	"strconv"
	"strings"
	"sync"

	"github.com/marmos91/mythfs/pkg/protocol"
)

// Server is an in-memory backend.
type Server struct {
	// BlockReply, when set, decides the reply to a REQUEST_BLOCK of n bytes
	// given the bytes left in the file. Returning -1 simulates a failure.
	BlockReply func(requested, available int64) int64

	// AnnounceReply, when set, replaces the reply to every announce.
	AnnounceReply string

	// DialErr, when set, fails every dial.
	DialErr error

	// OnCommand, when set, runs after every control command is answered.
	// It may call back into the Server.
	OnCommand func(command string)

	// FreeSpace is returned by QUERY_FREE_SPACE_LIST.
	FreeSpace []protocol.FreeSpace

	mu       sync.Mutex
	files    map[string][]byte
	dirs     map[string]string
	sessions map[int64]*session
	nextID   int64
	commands []string
	dials    int
	controls []*controlConn
}

type session struct {
	key      string
	write    bool
	pos      int64
	outbound bytes.Buffer
	inbound  bytes.Buffer
}

// NewServer returns an empty backend.
func NewServer() *Server {
	return &Server{
		files:    make(map[string][]byte),
		dirs:     make(map[string]string),
		sessions: make(map[int64]*session),
		nextID:   1,
	}
}

func fileKey(group, name string) string {
	return group + "/" + name
}

// SetGroupDir sets the directory reported by QUERY_FILE_EXISTS for group.
func (s *Server) SetGroupDir(group, dir string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dirs[group] = dir
}

// PutFile stores a file.
func (s *Server) PutFile(group, name string, content []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.files[fileKey(group, name)] = bytes.Clone(content)
}

// File returns a copy of a stored file.
func (s *Server) File(group, name string) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	content, ok := s.files[fileKey(group, name)]
	return bytes.Clone(content), ok
}

// AppendFile grows a stored file, as a recorder would.
func (s *Server) AppendFile(group, name string, content []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := fileKey(group, name)
	s.files[key] = append(s.files[key], content...)
}

// Commands returns every control and announce command received so far.
func (s *Server) Commands() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.commands...)
}

// CountCommands returns how many received commands contain substr.
func (s *Server) CountCommands(substr string) int {
	n := 0
	for _, c := range s.Commands() {
		if strings.Contains(c, substr) {
			n++
		}
	}
	return n
}

// Dials returns the number of connections opened.
func (s *Server) Dials() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dials
}

// OpenSessions returns the number of sessions not yet joined.
func (s *Server) OpenSessions() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// Emit delivers an event to every matching subscription.
func (s *Server) Emit(event string) {
	s.mu.Lock()
	controls := append([]*controlConn(nil), s.controls...)
	s.mu.Unlock()

	for _, c := range controls {
		c.dispatch(event)
	}
}

// FileHash is the hash QUERY_FILE_HASH reports for content.
func FileHash(content []byte) string {
	h := fnv.New64a()
	_, _ = h.Write(content)
	return fmt.Sprintf("%016x", h.Sum64())
}

// ============================================================================
// protocol.Dialer
// ============================================================================

func (s *Server) DialControl(ctx context.Context, host string, port int, events bool) (protocol.Control, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.dials++
	if s.DialErr != nil {
		return nil, s.DialErr
	}
	c := &controlConn{server: s, events: events, subs: make(map[int]subscription)}
	s.controls = append(s.controls, c)
	return c, nil
}

func (s *Server) DialData(ctx context.Context, host string, port int) (protocol.Data, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.dials++
	if s.DialErr != nil {
		return nil, s.DialErr
	}
	return &dataConn{server: s}, nil
}

var _ protocol.Dialer = (*Server)(nil)

// ============================================================================
// Command handling
// ============================================================================

func (s *Server) handle(command string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.commands = append(s.commands, command)
	fields := protocol.Split(command)

	switch {
	case strings.HasPrefix(fields[0], "QUERY_FILETRANSFER "):
		id, err := strconv.ParseInt(strings.TrimPrefix(fields[0], "QUERY_FILETRANSFER "), 10, 64)
		if err != nil {
			return "", err
		}
		sess, ok := s.sessions[id]
		if !ok {
			return "ERROR[]:[]unknown session", nil
		}
		return s.handleTransfer(id, sess, fields[1:])

	case fields[0] == "QUERY_FILE_EXISTS":
		if _, ok := s.files[fileKey(fields[2], fields[1])]; !ok {
			return "0", nil
		}
		return protocol.Join("1", s.dirs[fields[2]]+"/"+fields[1]), nil

	case fields[0] == "QUERY_FILE_HASH":
		content, ok := s.files[fileKey(fields[2], fields[1])]
		if !ok {
			return "NULL", nil
		}
		return FileHash(content), nil

	case fields[0] == "DELETE_FILE":
		key := fileKey(fields[2], fields[1])
		if _, ok := s.files[key]; !ok {
			return "0", nil
		}
		delete(s.files, key)
		return "1", nil

	case fields[0] == "QUERY_FREE_SPACE_LIST":
		return encodeFreeSpace(s.FreeSpace), nil
	}

	return "", fmt.Errorf("backendtest: unsupported command %q", command)
}

func (s *Server) handleTransfer(id int64, sess *session, fields []string) (string, error) {
	content := s.files[sess.key]

	switch fields[0] {
	case "REQUEST_BLOCK":
		requested, err := strconv.ParseInt(fields[1], 10, 64)
		if err != nil {
			return "", err
		}
		available := max(int64(len(content))-sess.pos, 0)
		reply := min(requested, available)
		if s.BlockReply != nil {
			reply = s.BlockReply(requested, available)
		}
		if deliver := min(reply, available); deliver > 0 {
			sess.outbound.Write(content[sess.pos : sess.pos+deliver])
			sess.pos += deliver
		}
		return strconv.FormatInt(reply, 10), nil

	case "WRITE_BLOCK":
		n, err := strconv.ParseInt(fields[1], 10, 64)
		if err != nil {
			return "", err
		}
		chunk := sess.inbound.Next(int(n))
		end := sess.pos + int64(len(chunk))
		if end > int64(len(content)) {
			content = append(content, make([]byte, end-int64(len(content)))...)
		}
		copy(content[sess.pos:], chunk)
		s.files[sess.key] = content
		sess.pos = end
		return strconv.Itoa(len(chunk)), nil

	case "SEEK":
		off := protocol.JoinInt64(mustInt(fields[1]), mustInt(fields[2]))
		whence := mustInt(fields[3])
		cur := protocol.JoinInt64(mustInt(fields[4]), mustInt(fields[5]))
		switch whence {
		case 0:
			sess.pos = off
		case 1:
			sess.pos = cur + off
		case 2:
			sess.pos = int64(len(content)) + off
		}
		sess.outbound.Reset()
		high, low := protocol.SplitInt64(sess.pos)
		return protocol.Join(strconv.Itoa(int(high)), strconv.Itoa(int(low))), nil

	case "JOIN":
		delete(s.sessions, id)
		return "OK", nil
	}

	return "", fmt.Errorf("backendtest: unsupported transfer command %q", fields[0])
}

func (s *Server) announce(command string) (*session, string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.commands = append(s.commands, command)
	if s.AnnounceReply != "" {
		return nil, s.AnnounceReply
	}

	// ANN FileTransfer <id> <write> 0 -1[]:[]<file>[]:[]<group>
	fields := protocol.Split(command)
	head := strings.Fields(fields[0])
	if len(fields) != 3 || len(head) != 6 || head[1] != "FileTransfer" {
		return nil, "ERROR[]:[]malformed announce"
	}
	write := head[3] == "1"
	key := fileKey(fields[2], fields[1])

	content, ok := s.files[key]
	if !ok && !write {
		return nil, "ERROR[]:[]file not found"
	}
	if write {
		content = nil
		s.files[key] = content
	}

	id := s.nextID
	s.nextID++
	sess := &session{key: key, write: write}
	s.sessions[id] = sess

	high, low := protocol.SplitInt64(int64(len(content)))
	return sess, protocol.Join("OK", strconv.FormatInt(id, 10), strconv.Itoa(int(high)), strconv.Itoa(int(low)))
}

func mustInt(field string) int64 {
	v, err := strconv.ParseInt(field, 10, 64)
	if err != nil {
		panic(err)
	}
	return v
}

func encodeFreeSpace(list []protocol.FreeSpace) string {
	var fields []string
	for _, fs := range list {
		th, tl := protocol.SplitInt64(fs.TotalKB)
		uh, ul := protocol.SplitInt64(fs.UsedKB)
		local := "0"
		if fs.IsLocal {
			local = "1"
		}
		fields = append(fields,
			fs.Host, fs.Path, local,
			strconv.FormatInt(fs.DiskNum, 10),
			strconv.FormatInt(fs.GroupID, 10),
			strconv.FormatInt(fs.BlockSize, 10),
			strconv.Itoa(int(th)), strconv.Itoa(int(tl)),
			strconv.Itoa(int(uh)), strconv.Itoa(int(ul)),
		)
	}
	return protocol.Join(fields...)
}

// ============================================================================
// Connections
// ============================================================================

type subscription struct {
	pattern *regexp.Regexp
	handler func(string)
}

type controlConn struct {
	server *Server
	events bool

	mu     sync.Mutex
	subs   map[int]subscription
	nextID int
	closed bool
}

func (c *controlConn) Send(ctx context.Context, command string) (string, error) {
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return "", errors.New("backendtest: control connection closed")
	}
	resp, err := c.server.handle(command)
	if hook := c.server.OnCommand; hook != nil {
		hook(command)
	}
	return resp, err
}

func (c *controlConn) Subscribe(pattern *regexp.Regexp, handler func(string)) func() {
	c.mu.Lock()
	defer c.mu.Unlock()
	id := c.nextID
	c.nextID++
	c.subs[id] = subscription{pattern: pattern, handler: handler}
	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		delete(c.subs, id)
	}
}

func (c *controlConn) dispatch(event string) {
	c.mu.Lock()
	if !c.events || c.closed {
		c.mu.Unlock()
		return
	}
	var handlers []func(string)
	for _, sub := range c.subs {
		if sub.pattern.MatchString(event) {
			handlers = append(handlers, sub.handler)
		}
	}
	c.mu.Unlock()

	for _, h := range handlers {
		h(event)
	}
}

func (c *controlConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

type dataConn struct {
	server *Server
	sess   *session
	closed bool
}

func (d *dataConn) Send(ctx context.Context, command string) (string, error) {
	sess, resp := d.server.announce(command)
	d.sess = sess
	return resp, nil
}

func (d *dataConn) Read(p []byte) (int, error) {
	d.server.mu.Lock()
	defer d.server.mu.Unlock()
	if d.sess == nil || d.closed {
		return 0, io.ErrClosedPipe
	}
	return d.sess.outbound.Read(p)
}

func (d *dataConn) Write(p []byte) (int, error) {
	d.server.mu.Lock()
	defer d.server.mu.Unlock()
	if d.sess == nil || d.closed {
		return 0, io.ErrClosedPipe
	}
	return d.sess.inbound.Write(p)
}

func (d *dataConn) Close() error {
	d.server.mu.Lock()
	defer d.server.mu.Unlock()
	d.closed = true
	return nil
}
