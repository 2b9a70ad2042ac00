package transfer

import (
	"context"
	"io"

	"github.com/marmos91/mythfs/internal/logger"
	"github.com/marmos91/mythfs/pkg/file"
	"github.com/marmos91/mythfs/pkg/fserrors"
	"github.com/marmos91/mythfs/pkg/protocol"
)

// Read reads min(len(p), Size()-Tell()) bytes. It returns io.EOF only when
// the session is already at the end of the file.
func (s *Session) Read(p []byte) (int, error) {
	return s.ReadContext(context.Background(), p)
}

// ReadContext is Read with a context for the control round trips.
func (s *Session) ReadContext(ctx context.Context, p []byte) (int, error) {
	if err := file.CheckRead(s.mode, s.name); err != nil {
		return 0, err
	}
	if len(p) == 0 {
		return 0, nil
	}

	startPos := s.pos
	if startPos >= s.size.Load() {
		return 0, io.EOF
	}

	n := 0
	resyncs := 0
	for {
		// The size is reloaded every iteration so that a live update observed
		// mid-read extends the read.
		want := min(int64(len(p)), s.size.Load()-startPos)
		if int64(n) >= want {
			return n, nil
		}

		remaining := want - int64(n)
		chunk := remaining
		if remaining > int64(s.blockSize) {
			chunk = int64(s.blockSize)
			s.fullTransfers++
		}

		resp, err := s.send(ctx, "request_block", protocol.RequestBlock{SessionID: s.id, Count: uint32(chunk)}.String())
		if err != nil {
			return n, err
		}
		reply, err := protocol.ParseBlockReply(resp)
		if err != nil {
			return n, err
		}

		switch {
		case reply == -1:
			resyncs++
			if resyncs > s.maxResync {
				return n, fserrors.Newf(fserrors.ProtocolError, "read", "backend failed %d consecutive block requests at offset %d", resyncs, s.pos)
			}
			s.fullTransfers = 0
			s.metrics.RecordResync()
			logger.Debug("Transfer session %d: block request failed at %d, resyncing", s.id, s.pos)
			if err := s.resync(ctx); err != nil {
				return n, err
			}
			continue

		case reply < -1 || reply > chunk:
			return n, fserrors.Newf(fserrors.ProtocolError, "read", "backend offered %d bytes for a %d byte request", reply, chunk)

		case reply == chunk:
			if s.fullTransfers >= growAfter && s.blockSize < s.maxBlockSize {
				s.blockSize = min(s.blockSize+s.blockStep, s.maxBlockSize)
				s.fullTransfers = 0
				s.metrics.ObserveBlockSize(s.blockSize)
				logger.Debug("Transfer session %d: block size grown to %d", s.id, s.blockSize)
			}

		default:
			s.fullTransfers = 0
			s.blockSize = max(s.blockSize-min(s.blockSize, 2*s.blockStep), s.blockStep)
			s.metrics.ObserveBlockSize(s.blockSize)
			logger.Debug("Transfer session %d: short block (%d of %d), block size shrunk to %d", s.id, reply, chunk, s.blockSize)
		}
		resyncs = 0

		if reply == 0 {
			// The backend has nothing to deliver right now.
			if n > 0 {
				return n, nil
			}
			return 0, fserrors.Wrap(fserrors.IOError, "read", s.name, io.ErrNoProgress)
		}

		if err := s.limiter.WaitN(ctx, int(reply)); err != nil {
			return n, err
		}
		got, err := io.ReadFull(s.data, p[n:n+int(reply)])
		n += got
		s.pos += int64(got)
		s.metrics.RecordBytes("read", int64(got))
		if err != nil {
			return n, fserrors.Wrap(fserrors.IOError, "read", s.name, err)
		}
	}
}

// resync moves the backend read cursor back to the local position.
func (s *Session) resync(ctx context.Context) error {
	resp, err := s.send(ctx, "seek", protocol.Seek{SessionID: s.id, Offset: s.pos, Whence: io.SeekStart, Current: s.pos}.String())
	if err != nil {
		return err
	}
	pos, err := protocol.ParseSeekReply(resp)
	if err != nil {
		return err
	}
	if pos != s.pos {
		return fserrors.Newf(fserrors.ProtocolError, "read", "resync to %d landed at %d", s.pos, pos)
	}
	return nil
}
