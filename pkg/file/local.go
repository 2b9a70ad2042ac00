package file

import (
	"errors"
	"io"
	"os"
	"sync"

	"github.com/marmos91/mythfs/pkg/fserrors"
)

// Local is a Handle on a file of the local filesystem.
type Local struct {
	f    *os.File
	mode Mode
	pos  int64

	closeOnce sync.Once
	closeErr  error
}

// OpenLocal opens path for mode. Write mode creates or truncates the file.
func OpenLocal(path string, mode Mode) (*Local, error) {
	var (
		f   *os.File
		err error
	)
	switch mode {
	case ModeRead:
		f, err = os.Open(path)
	case ModeWrite:
		f, err = os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	default:
		return nil, fserrors.Newf(fserrors.InvalidArgument, "open", "invalid mode %d", int(mode))
	}
	if err != nil {
		code := fserrors.IOError
		if errors.Is(err, os.ErrNotExist) {
			code = fserrors.NotFound
		}
		return nil, fserrors.Wrap(code, "open", path, err)
	}
	return &Local{f: f, mode: mode}, nil
}

// Read fills p completely unless the end of the file is reached first.
func (l *Local) Read(p []byte) (int, error) {
	if err := CheckRead(l.mode, l.Name()); err != nil {
		return 0, err
	}
	n, err := io.ReadFull(l.f, p)
	l.pos += int64(n)
	if errors.Is(err, io.ErrUnexpectedEOF) || (errors.Is(err, io.EOF) && n > 0) {
		err = nil
	}
	return n, err
}

func (l *Local) Write(p []byte) (int, error) {
	if err := CheckWrite(l.mode, l.Name()); err != nil {
		return 0, err
	}
	n, err := l.f.Write(p)
	l.pos += int64(n)
	if err != nil {
		return n, fserrors.Wrap(fserrors.IOError, "write", l.Name(), err)
	}
	return n, nil
}

// Seek clamps the target into [0, size] like a remote session does.
func (l *Local) Seek(offset int64, whence int) (int64, error) {
	info, err := l.f.Stat()
	if err != nil {
		return l.pos, fserrors.Wrap(fserrors.IOError, "seek", l.Name(), err)
	}
	size := info.Size()

	var target int64
	switch whence {
	case io.SeekStart:
		target = offset
	case io.SeekCurrent:
		target = l.pos + offset
	case io.SeekEnd:
		target = size + offset
	default:
		return l.pos, fserrors.Newf(fserrors.InvalidArgument, "seek", "invalid whence %d", whence)
	}
	target = min(max(target, 0), size)

	pos, err := l.f.Seek(target, io.SeekStart)
	if err != nil {
		return l.pos, fserrors.Wrap(fserrors.IOError, "seek", l.Name(), err)
	}
	l.pos = pos
	return pos, nil
}

func (l *Local) Tell() int64 {
	return l.pos
}

func (l *Local) Mode() Mode {
	return l.mode
}

func (l *Local) Name() string {
	return l.f.Name()
}

// Close closes the file once; later calls return the first result.
func (l *Local) Close() error {
	l.closeOnce.Do(func() {
		l.closeErr = l.f.Close()
	})
	return l.closeErr
}

var _ Handle = (*Local)(nil)
