// Package file defines the File Handle contract shared by local files and
// remote transfer sessions.
//
// Callers never branch on the variant: resolver.Open returns a Handle and all
// reads, writes and seeks go through it. A handle is opened for reading or
// for writing and keeps that mode for its whole life.
package file

import (
	"io"

	"github.com/marmos91/mythfs/pkg/fserrors"
)

// Mode is the direction a handle was opened for.
type Mode int

const (
	ModeRead Mode = iota
	ModeWrite
)

func (m Mode) String() string {
	switch m {
	case ModeRead:
		return "r"
	case ModeWrite:
		return "w"
	default:
		return "invalid"
	}
}

// ParseMode parses an open mode token. Only "r" and "w" are accepted; a
// trailing "b" is tolerated.
func ParseMode(token string) (Mode, error) {
	switch token {
	case "r", "rb":
		return ModeRead, nil
	case "w", "wb":
		return ModeWrite, nil
	default:
		return 0, fserrors.Newf(fserrors.InvalidArgument, "open", "invalid mode %q", token)
	}
}

// Handle is an open file, local or remote.
//
// Read on a write handle and Write on a read handle fail with
// fserrors.ErrModeViolation without side effects. Handles are not safe for
// concurrent use.
type Handle interface {
	io.Reader
	io.Writer
	io.Seeker
	io.Closer

	// Tell returns the current position.
	Tell() int64

	// Mode returns the mode the handle was opened with.
	Mode() Mode

	// Name returns the file name the handle was opened for.
	Name() string
}

// CheckRead returns a ModeViolation error unless m permits reading.
func CheckRead(m Mode, name string) error {
	if m != ModeRead {
		return &fserrors.Error{Code: fserrors.ModeViolation, Op: "read", Path: name, Message: "handle is open for writing"}
	}
	return nil
}

// CheckWrite returns a ModeViolation error unless m permits writing.
func CheckWrite(m Mode, name string) error {
	if m != ModeWrite {
		return &fserrors.Error{Code: fserrors.ModeViolation, Op: "write", Path: name, Message: "handle is open for reading"}
	}
	return nil
}
