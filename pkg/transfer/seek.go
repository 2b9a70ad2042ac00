package transfer

import (
	"context"
	"io"

	"github.com/marmos91/mythfs/pkg/fserrors"
	"github.com/marmos91/mythfs/pkg/protocol"
)

// Seek moves the position. The target is clamped into [0, Size()] and the
// backend's reply becomes the new position; every call round trips.
func (s *Session) Seek(offset int64, whence int) (int64, error) {
	return s.SeekContext(context.Background(), offset, whence)
}

// SeekContext is Seek with a context for the control round trip.
func (s *Session) SeekContext(ctx context.Context, offset int64, whence int) (int64, error) {
	size := s.size.Load()

	var cmd protocol.Seek
	cmd.SessionID = s.id
	cmd.Current = s.pos

	switch whence {
	case io.SeekStart:
		cmd.Offset = clamp(offset, 0, size)
		cmd.Whence = io.SeekStart
	case io.SeekCurrent:
		cmd.Offset = clamp(s.pos+offset, 0, size) - s.pos
		cmd.Whence = io.SeekCurrent
	case io.SeekEnd:
		cmd.Offset = clamp(size+offset, 0, size)
		cmd.Whence = io.SeekStart
	default:
		return s.pos, fserrors.Newf(fserrors.InvalidArgument, "seek", "invalid whence %d", whence)
	}

	resp, err := s.send(ctx, "seek", cmd.String())
	if err != nil {
		return s.pos, err
	}
	pos, err := protocol.ParseSeekReply(resp)
	if err != nil {
		return s.pos, err
	}
	if pos < 0 {
		return s.pos, fserrors.Newf(fserrors.ProtocolError, "seek", "backend returned negative position %d", pos)
	}

	s.growSize(pos)
	s.pos = pos
	return pos, nil
}

func clamp(v, lo, hi int64) int64 {
	return min(max(v, lo), hi)
}
