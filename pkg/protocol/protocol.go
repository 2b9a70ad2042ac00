// Package protocol implements the typed command/response codec for the
// backend control protocol.
//
// Messages on the wire are strings whose fields are joined by Separator.
// Every command consumed by this module has a small struct with a String
// method producing the wire form, and every response has a Parse function
// that validates field count and numeric ranges at the boundary. Malformed
// responses are reported as fserrors.ProtocolError.
//
// The protocol carries 64-bit values (file sizes, offsets) as two 32-bit
// decimal fields, high word first. See SplitInt64 and JoinInt64.
package protocol

import (
	"context"
	"io"
	"regexp"
	"strconv"
	"strings"

	"github.com/marmos91/mythfs/pkg/fserrors"
)

// Separator joins the fields of a protocol message.
const Separator = "[]:[]"

// Channel is the request/response side of a control connection.
//
// Responses are matched to requests by arrival order, so implementations must
// allow at most one outstanding request at a time.
type Channel interface {
	// Send transmits command and blocks until the matching response arrives.
	Send(ctx context.Context, command string) (string, error)
}

// EventSource delivers asynchronous backend events.
type EventSource interface {
	// Subscribe registers handler for every event matching pattern. The
	// returned function removes the subscription. Handlers run on the event
	// reader goroutine and must not block.
	Subscribe(pattern *regexp.Regexp, handler func(event string)) (unsubscribe func())
}

// Control is a dedicated control connection: request/response plus events.
type Control interface {
	Channel
	EventSource
	io.Closer
}

// Data is a transfer data connection. Send is used once for the announce;
// afterwards file bytes flow unframed through Read and Write.
type Data interface {
	Channel
	io.Reader
	io.Writer
	io.Closer
}

// Dialer opens connections to a backend host. A port of 0 selects the
// configured default.
type Dialer interface {
	DialControl(ctx context.Context, host string, port int, events bool) (Control, error)
	DialData(ctx context.Context, host string, port int) (Data, error)
}

// Join concatenates fields with Separator.
func Join(fields ...string) string {
	return strings.Join(fields, Separator)
}

// Split splits a message into its fields.
func Split(message string) []string {
	return strings.Split(message, Separator)
}

// SplitInt64 encodes v as a (high, low) pair of signed 32-bit words.
func SplitInt64(v int64) (high, low int32) {
	return int32(v >> 32), int32(uint32(v))
}

// JoinInt64 reconstitutes a 64-bit value from its high and low words.
//
// The low word is taken modulo 2^32, so both signed (-2^31..2^31-1) and
// unsigned (0..2^32-1) renderings of the low half decode to the same value.
func JoinInt64(high, low int64) int64 {
	return high<<32 | int64(uint32(low))
}

// ParseInt64Pair decodes a high/low pair of decimal fields.
func ParseInt64Pair(op, high, low string) (int64, error) {
	h, err := parseInt(op, "high word", high)
	if err != nil {
		return 0, err
	}
	l, err := parseInt(op, "low word", low)
	if err != nil {
		return 0, err
	}
	if h < -1<<31 || h > 1<<31-1 {
		return 0, fserrors.Newf(fserrors.ProtocolError, op, "high word %d out of range", h)
	}
	if l < -1<<31 || l > 1<<32-1 {
		return 0, fserrors.Newf(fserrors.ProtocolError, op, "low word %d out of range", l)
	}
	return JoinInt64(h, l), nil
}

// pairFields renders v as two decimal fields.
func pairFields(v int64) (string, string) {
	high, low := SplitInt64(v)
	return strconv.FormatInt(int64(high), 10), strconv.FormatInt(int64(low), 10)
}

func parseInt(op, what, field string) (int64, error) {
	v, err := strconv.ParseInt(strings.TrimSpace(field), 10, 64)
	if err != nil {
		return 0, &fserrors.Error{
			Code:    fserrors.ProtocolError,
			Op:      op,
			Message: "malformed " + what + " " + strconv.Quote(field),
			Err:     err,
		}
	}
	return v, nil
}

func boolField(b bool) string {
	if b {
		return "1"
	}
	return "0"
}
