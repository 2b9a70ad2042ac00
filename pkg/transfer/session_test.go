package transfer

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/marmos91/mythfs/pkg/backend/backendtest"
	"github.com/marmos91/mythfs/pkg/file"
	"github.com/marmos91/mythfs/pkg/fserrors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pattern(n int) []byte {
	buf := make([]byte, n)
	for i := range buf {
		buf[i] = byte(i % 251)
	}
	return buf
}

func smallConfig() Config {
	return Config{
		LocalID:           "tester",
		InitialBlockSize:  32,
		MaxBlockSize:      64,
		BlockStep:         8,
		MaxResyncAttempts: 3,
	}
}

func openRead(t *testing.T, srv *backendtest.Server, name string, cfg Config) *Session {
	t.Helper()
	s, err := Open(context.Background(), srv, Request{Host: "alpha", Filename: name, Group: "Default", Mode: file.ModeRead}, cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestOpenAnnounce(t *testing.T) {
	srv := backendtest.NewServer()
	srv.PutFile("Videos", "a.mkv", pattern(100))

	s, err := Open(context.Background(), srv, Request{Host: "alpha", Filename: "a.mkv", Group: "Videos", Mode: file.ModeRead}, smallConfig())
	require.NoError(t, err)
	defer s.Close()

	assert.Equal(t, int64(100), s.Size())
	assert.Equal(t, int64(0), s.Tell())
	assert.Equal(t, file.ModeRead, s.Mode())
	assert.Equal(t, "a.mkv", s.Name())
	assert.Equal(t, "Videos", s.Group())
	assert.Equal(t, uint32(32), s.BlockSize())
	assert.Equal(t, 1, srv.CountCommands("ANN FileTransfer tester 0 0 -1[]:[]a.mkv[]:[]Videos"))
}

func TestOpenLargeSize(t *testing.T) {
	srv := backendtest.NewServer()
	const size = int64(5)<<32 | 0xFFFFFFF0
	srv.AnnounceReply = fmt.Sprintf("OK[]:[]9[]:[]5[]:[]%d", int32(-16))

	s, err := Open(context.Background(), srv, Request{Host: "alpha", Filename: "big", Mode: file.ModeRead}, smallConfig())
	require.NoError(t, err)
	defer s.Close()

	assert.Equal(t, size, s.Size())
	assert.Equal(t, int64(9), s.SessionID())
}

func TestOpenAnnounceFailures(t *testing.T) {
	tests := []struct {
		name  string
		reply string
	}{
		{"not_ok", "ERROR[]:[]no such file"},
		{"short", "OK[]:[]1[]:[]0"},
		{"bad_size", "OK[]:[]1[]:[]x[]:[]0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := backendtest.NewServer()
			srv.AnnounceReply = tt.reply

			_, err := Open(context.Background(), srv, Request{Host: "alpha", Filename: "a", Mode: file.ModeRead}, smallConfig())
			assert.True(t, errors.Is(err, fserrors.ErrProtocol))
			assert.Equal(t, 1, srv.CountCommands("ANN FileTransfer"), "announce is never retried")
		})
	}
}

func TestOpenInvalidConfig(t *testing.T) {
	cfg := smallConfig()
	cfg.InitialBlockSize = 128

	_, err := Open(context.Background(), backendtest.NewServer(), Request{Host: "alpha", Filename: "a"}, cfg)
	assert.True(t, errors.Is(err, fserrors.ErrConfiguration))
}

func TestReadExactLengths(t *testing.T) {
	content := pattern(1000)
	srv := backendtest.NewServer()
	srv.PutFile("Default", "rec.mpg", content)
	s := openRead(t, srv, "rec.mpg", smallConfig())

	var got bytes.Buffer
	for _, n := range []int{1, 7, 64, 200, 500, 1000} {
		buf := make([]byte, n)
		read, err := s.Read(buf)
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		expected := min(n, len(content)-got.Len())
		assert.Equal(t, expected, read)
		got.Write(buf[:read])
	}
	assert.Equal(t, content, got.Bytes())
	assert.Equal(t, int64(1000), s.Tell())

	n, err := s.Read(make([]byte, 10))
	assert.Equal(t, 0, n)
	assert.ErrorIs(t, err, io.EOF)
}

func TestReadAllMatchesContent(t *testing.T) {
	content := pattern(10_000)
	srv := backendtest.NewServer()
	srv.PutFile("Default", "rec.mpg", content)
	s := openRead(t, srv, "rec.mpg", smallConfig())

	got, err := io.ReadAll(s)
	require.NoError(t, err)
	assert.Equal(t, content, got)
}

func TestReadBlockSizeRampUp(t *testing.T) {
	srv := backendtest.NewServer()
	srv.PutFile("Default", "rec.mpg", pattern(4096))
	s := openRead(t, srv, "rec.mpg", smallConfig())

	// Five capped requests served in full grow the block once. The sixth
	// request is the uncapped tail.
	_, err := s.Read(make([]byte, 6*32))
	require.NoError(t, err)
	assert.Equal(t, uint32(40), s.BlockSize())

	// Growth stops at the maximum.
	_, err = s.Read(make([]byte, 2000))
	require.NoError(t, err)
	assert.Equal(t, uint32(64), s.BlockSize())
}

func TestReadShortReplyShrinks(t *testing.T) {
	content := pattern(200)
	srv := backendtest.NewServer()
	srv.PutFile("Default", "rec.mpg", content)
	srv.BlockReply = func(requested, available int64) int64 {
		return min(max(requested/2, 1), available)
	}
	s := openRead(t, srv, "rec.mpg", smallConfig())

	buf := make([]byte, 200)
	n, err := s.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, 200, n)
	assert.Equal(t, content, buf)
	assert.Equal(t, uint32(8), s.BlockSize(), "block size is floored at the step")
}

func TestReadResyncOnFailure(t *testing.T) {
	content := pattern(100)
	srv := backendtest.NewServer()
	srv.PutFile("Default", "rec.mpg", content)

	failed := false
	srv.BlockReply = func(requested, available int64) int64 {
		if !failed && available < 100 {
			failed = true
			return -1
		}
		return min(requested, available)
	}
	s := openRead(t, srv, "rec.mpg", smallConfig())

	buf := make([]byte, 100)
	n, err := s.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, 100, n)
	assert.Equal(t, content, buf, "no bytes duplicated or skipped")

	assert.Equal(t, 1, srv.CountCommands("[]:[]SEEK[]:[]"), "exactly one resync seek")
	// 32+32+32+4 plus one retried request
	assert.Equal(t, 5, srv.CountCommands("REQUEST_BLOCK"))
}

func TestReadPersistentFailure(t *testing.T) {
	srv := backendtest.NewServer()
	srv.PutFile("Default", "rec.mpg", pattern(100))
	srv.BlockReply = func(requested, available int64) int64 { return -1 }
	s := openRead(t, srv, "rec.mpg", smallConfig())

	_, err := s.Read(make([]byte, 10))
	assert.True(t, errors.Is(err, fserrors.ErrProtocol))
	assert.Equal(t, 3, srv.CountCommands("SEEK"))
}

func TestReadOversizedReply(t *testing.T) {
	srv := backendtest.NewServer()
	srv.PutFile("Default", "rec.mpg", pattern(100))
	srv.BlockReply = func(requested, available int64) int64 { return requested + 1 }
	s := openRead(t, srv, "rec.mpg", smallConfig())

	_, err := s.Read(make([]byte, 10))
	assert.True(t, errors.Is(err, fserrors.ErrProtocol))
}

func TestReadZeroReply(t *testing.T) {
	srv := backendtest.NewServer()
	srv.PutFile("Default", "rec.mpg", pattern(100))
	calls := 0
	srv.BlockReply = func(requested, available int64) int64 {
		calls++
		if calls == 1 {
			return requested
		}
		return 0
	}
	s := openRead(t, srv, "rec.mpg", smallConfig())

	n, err := s.Read(make([]byte, 64))
	require.NoError(t, err)
	assert.Equal(t, 32, n, "bytes gathered before a zero reply are returned")

	_, err = s.Read(make([]byte, 10))
	assert.True(t, errors.Is(err, fserrors.ErrIO))
	assert.ErrorIs(t, err, io.ErrNoProgress)
}

func TestReadGrowingFile(t *testing.T) {
	start := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	srv := backendtest.NewServer()
	srv.PutFile("Default", "1001_20240102030405.ts", pattern(100))

	req := Request{
		Host:     "alpha",
		Filename: "1001_20240102030405.ts",
		Group:    "Default",
		Mode:     file.ModeRead,
		Watch:    &GrowingFileWatch{ChanID: 1001, StartTime: start},
	}
	s, err := Open(context.Background(), srv, req, smallConfig())
	require.NoError(t, err)
	defer s.Close()

	// The recorder appends 50 bytes while the first block is in flight.
	grown := false
	srv.OnCommand = func(command string) {
		if grown || !strings.Contains(command, "REQUEST_BLOCK") {
			return
		}
		grown = true
		srv.AppendFile("Default", req.Filename, pattern(50))
		srv.Emit("BACKEND_MESSAGE[]:[]UPDATE_FILE_SIZE 1001 2024-01-02T03-04-05 150[]:[]empty")
	}

	// An event for another recording is ignored.
	srv.Emit("BACKEND_MESSAGE[]:[]UPDATE_FILE_SIZE 1002 2024-01-02T03-04-05 999[]:[]empty")
	assert.Equal(t, int64(100), s.Size())

	n, err := s.Read(make([]byte, 500))
	require.NoError(t, err)
	assert.Equal(t, 150, n)
	assert.Equal(t, int64(150), s.Size())
}

func TestSeekClamping(t *testing.T) {
	srv := backendtest.NewServer()
	srv.PutFile("Default", "rec.mpg", pattern(1000))
	s := openRead(t, srv, "rec.mpg", smallConfig())

	tests := []struct {
		name   string
		offset int64
		whence int
		want   int64
	}{
		{"start", 100, io.SeekStart, 100},
		{"start_negative", -5, io.SeekStart, 0},
		{"start_past_end", 5000, io.SeekStart, 1000},
		{"current_back", -400, io.SeekCurrent, 600},
		{"current_forward", 50, io.SeekCurrent, 650},
		{"current_past_end", 10_000, io.SeekCurrent, 1000},
		{"current_before_start", -10_000, io.SeekCurrent, 0},
		{"end", -10, io.SeekEnd, 990},
		{"end_past_end", 10, io.SeekEnd, 1000},
		{"end_before_start", -5000, io.SeekEnd, 0},
		{"noop", 0, io.SeekCurrent, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pos, err := s.Seek(tt.offset, tt.whence)
			require.NoError(t, err)
			assert.Equal(t, tt.want, pos)
			assert.Equal(t, tt.want, s.Tell())
			assert.GreaterOrEqual(t, pos, int64(0))
			assert.LessOrEqual(t, pos, s.Size())
		})
	}

	assert.Equal(t, len(tests), srv.CountCommands("SEEK"), "every seek round trips")
}

func TestSeekThenRead(t *testing.T) {
	content := pattern(1000)
	srv := backendtest.NewServer()
	srv.PutFile("Default", "rec.mpg", content)
	s := openRead(t, srv, "rec.mpg", smallConfig())

	_, err := s.Seek(-100, io.SeekEnd)
	require.NoError(t, err)

	got, err := io.ReadAll(s)
	require.NoError(t, err)
	assert.Equal(t, content[900:], got)
}

func TestSeekInvalidWhence(t *testing.T) {
	srv := backendtest.NewServer()
	srv.PutFile("Default", "rec.mpg", pattern(10))
	s := openRead(t, srv, "rec.mpg", smallConfig())

	_, err := s.Seek(0, 7)
	assert.True(t, errors.Is(err, fserrors.ErrInvalidArgument))
	assert.Equal(t, 0, srv.CountCommands("SEEK"))
}

func TestWriteThenReadRoundTrip(t *testing.T) {
	content := pattern(777)
	srv := backendtest.NewServer()

	w, err := Open(context.Background(), srv, Request{Host: "alpha", Filename: "up.mpg", Group: "Default", Mode: file.ModeWrite}, smallConfig())
	require.NoError(t, err)

	n, err := w.Write(content)
	require.NoError(t, err)
	assert.Equal(t, len(content), n)
	assert.Equal(t, int64(777), w.Tell())
	assert.Equal(t, uint32(32), w.BlockSize(), "writes never tune the block size")
	assert.Equal(t, 25, srv.CountCommands("WRITE_BLOCK"))
	require.NoError(t, w.Close())

	r := openRead(t, srv, "up.mpg", smallConfig())
	got, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Equal(t, content, got)
}

func TestModeViolation(t *testing.T) {
	srv := backendtest.NewServer()
	srv.PutFile("Default", "rec.mpg", pattern(10))
	r := openRead(t, srv, "rec.mpg", smallConfig())

	_, err := r.Write([]byte("x"))
	assert.True(t, errors.Is(err, fserrors.ErrModeViolation))

	w, err := Open(context.Background(), srv, Request{Host: "alpha", Filename: "out", Mode: file.ModeWrite}, smallConfig())
	require.NoError(t, err)
	defer w.Close()

	_, err = w.Read(make([]byte, 1))
	assert.True(t, errors.Is(err, fserrors.ErrModeViolation))
	assert.Equal(t, 0, srv.CountCommands("REQUEST_BLOCK"))
	assert.Equal(t, 0, srv.CountCommands("WRITE_BLOCK"))
}

func TestCloseIdempotent(t *testing.T) {
	srv := backendtest.NewServer()
	srv.PutFile("Default", "rec.mpg", pattern(10))

	s, err := Open(context.Background(), srv, Request{Host: "alpha", Filename: "rec.mpg", Mode: file.ModeRead}, smallConfig())
	require.NoError(t, err)
	assert.Equal(t, 1, srv.OpenSessions())

	require.NoError(t, s.Close())
	require.NoError(t, s.Close())
	assert.Equal(t, 1, srv.CountCommands("JOIN"))
	assert.Equal(t, 0, srv.OpenSessions())
}

type recordingMetrics struct {
	noopMetrics
	resyncs int
	bytes   map[string]int64
	opened  int
	closed  int
}

func (m *recordingMetrics) RecordResync() { m.resyncs++ }
func (m *recordingMetrics) RecordBytes(direction string, n int64) {
	if m.bytes == nil {
		m.bytes = make(map[string]int64)
	}
	m.bytes[direction] += n
}
func (m *recordingMetrics) SessionOpened(string) { m.opened++ }
func (m *recordingMetrics) SessionClosed(string) { m.closed++ }

func TestMetricsRecorded(t *testing.T) {
	srv := backendtest.NewServer()
	srv.PutFile("Default", "rec.mpg", pattern(64))
	failed := false
	srv.BlockReply = func(requested, available int64) int64 {
		if !failed {
			failed = true
			return -1
		}
		return min(requested, available)
	}

	m := &recordingMetrics{}
	cfg := smallConfig()
	cfg.Metrics = m

	s, err := Open(context.Background(), srv, Request{Host: "alpha", Filename: "rec.mpg", Mode: file.ModeRead}, cfg)
	require.NoError(t, err)
	_, err = io.ReadAll(s)
	require.NoError(t, err)
	require.NoError(t, s.Close())

	assert.Equal(t, 1, m.resyncs)
	assert.Equal(t, int64(64), m.bytes["read"])
	assert.Equal(t, 1, m.opened)
	assert.Equal(t, 1, m.closed)
}
