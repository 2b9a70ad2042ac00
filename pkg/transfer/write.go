package transfer

import (
	"context"

	"github.com/marmos91/mythfs/pkg/file"
	"github.com/marmos91/mythfs/pkg/fserrors"
	"github.com/marmos91/mythfs/pkg/protocol"
)

// Write sends p in chunks of at most the current block size.
func (s *Session) Write(p []byte) (int, error) {
	return s.WriteContext(context.Background(), p)
}

// WriteContext is Write with a context for the control round trips.
func (s *Session) WriteContext(ctx context.Context, p []byte) (int, error) {
	if err := file.CheckWrite(s.mode, s.name); err != nil {
		return 0, err
	}

	n := 0
	for n < len(p) {
		chunk := min(len(p)-n, int(s.blockSize))

		if err := s.limiter.WaitN(ctx, chunk); err != nil {
			return n, err
		}
		if _, err := s.data.Write(p[n : n+chunk]); err != nil {
			return n, fserrors.Wrap(fserrors.IOError, "write", s.name, err)
		}
		s.metrics.RecordBytes("write", int64(chunk))

		resp, err := s.send(ctx, "write_block", protocol.WriteBlock{SessionID: s.id, Count: uint32(chunk)}.String())
		if err != nil {
			return n, err
		}
		stored, err := protocol.ParseWriteBlockReply(resp)
		if err != nil {
			return n, err
		}
		if stored != int64(chunk) {
			return n, fserrors.Newf(fserrors.ProtocolError, "write", "backend stored %d of %d bytes", stored, chunk)
		}

		n += chunk
		s.pos += int64(chunk)
		s.growSize(s.pos)
	}
	return n, nil
}
