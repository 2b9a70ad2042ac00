// Package fserrors defines the error taxonomy shared by the resolver, the
// transfer engine and the file handles.
//
// Every failure surfaced to callers is an *Error carrying a Code. Callers
// branch on the category with errors.Is against the exported sentinels:
//
//	h, err := resolver.Open(ctx, "myth://Videos@host/a.mkv", file.ModeWrite, opts)
//	if errors.Is(err, fserrors.ErrOverwriteConflict) {
//	    // file already exists and NoOverwrite was requested
//	}
//
// Implementations wrap lower level errors in Err so that errors.As still
// reaches network or filesystem errors underneath.
package fserrors

import (
	"fmt"
)

// Code is the category of an error.
type Code int

const (
	// InvalidArgument indicates malformed input: bad open mode, malformed URI,
	// path components escaping the storage group.
	InvalidArgument Code = iota + 1

	// ConfigurationError indicates missing or inconsistent configuration, such
	// as a backend IP address with no hostname mapping.
	//
	// Retrying will not help.
	ConfigurationError

	// ProtocolError indicates the backend answered with a non-OK or malformed
	// response.
	ProtocolError

	// OverwriteConflict indicates a write was requested against an existing
	// file while overwriting was disabled.
	OverwriteConflict

	// WriteScopeViolation indicates a remote write targeting a path nested
	// below the storage group base directory.
	WriteScopeViolation

	// ModeViolation indicates a read on a write handle or a write on a read
	// handle.
	ModeViolation

	// NotFound indicates the requested file, group or setting does not exist.
	NotFound

	// IOError indicates a filesystem or network failure.
	IOError
)

// String returns the name of the code.
func (c Code) String() string {
	switch c {
	case InvalidArgument:
		return "InvalidArgument"
	case ConfigurationError:
		return "ConfigurationError"
	case ProtocolError:
		return "ProtocolError"
	case OverwriteConflict:
		return "OverwriteConflict"
	case WriteScopeViolation:
		return "WriteScopeViolation"
	case ModeViolation:
		return "ModeViolation"
	case NotFound:
		return "NotFound"
	case IOError:
		return "IOError"
	default:
		return fmt.Sprintf("Code(%d)", int(c))
	}
}

// Error is a categorized error.
type Error struct {
	// Code is the error category
	Code Code

	// Op is the operation that failed (e.g. "open", "read", "announce")
	Op string

	// Path is the logical or physical path involved, if any
	Path string

	// Message is a human-readable description
	Message string

	// Err is the underlying cause, if any
	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := e.Code.String()
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Path != "" {
		msg += ": " + e.Path
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is an *Error with the same code.
//
// This lets the bare sentinels below match any error of their category.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// Sentinels for errors.Is.
var (
	ErrInvalidArgument     = &Error{Code: InvalidArgument}
	ErrConfiguration       = &Error{Code: ConfigurationError}
	ErrProtocol            = &Error{Code: ProtocolError}
	ErrOverwriteConflict   = &Error{Code: OverwriteConflict}
	ErrWriteScopeViolation = &Error{Code: WriteScopeViolation}
	ErrModeViolation       = &Error{Code: ModeViolation}
	ErrNotFound            = &Error{Code: NotFound}
	ErrIO                  = &Error{Code: IOError}
)

// New creates an error of the given code.
func New(code Code, op, message string) *Error {
	return &Error{Code: code, Op: op, Message: message}
}

// Newf creates an error of the given code with a formatted message.
func Newf(code Code, op, format string, args ...any) *Error {
	return &Error{Code: code, Op: op, Message: fmt.Sprintf(format, args...)}
}

// Wrap creates an error of the given code around cause.
func Wrap(code Code, op, path string, cause error) *Error {
	return &Error{Code: code, Op: op, Path: path, Err: cause}
}

// CodeOf returns the code of the first *Error in err's chain, or 0.
func CodeOf(err error) Code {
	for err != nil {
		if e, ok := err.(*Error); ok {
			return e.Code
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return 0
		}
		err = u.Unwrap()
	}
	return 0
}
