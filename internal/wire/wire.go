// Package wire implements message framing for the backend protocol.
//
// Each message is preceded by an 8-byte header holding the payload length as
// ASCII decimal, left-aligned and padded with spaces:
//
//	"21      QUERY_FREE_SPACE_LIST"
//
// Raw file data on transfer connections is not framed.
package wire

import (
	"fmt"
	"io"
	"strconv"
	"strings"
)

// HeaderSize is the length of the frame header in bytes.
const HeaderSize = 8

// MaxMessageSize bounds the payload length a reader will accept.
const MaxMessageSize = 99999999

// WriteMessage frames msg and writes it to w in a single Write call.
func WriteMessage(w io.Writer, msg string) error {
	if len(msg) > MaxMessageSize {
		return fmt.Errorf("message of %d bytes exceeds frame limit", len(msg))
	}

	frame := make([]byte, 0, HeaderSize+len(msg))
	frame = append(frame, fmt.Sprintf("%-*d", HeaderSize, len(msg))...)
	frame = append(frame, msg...)

	if _, err := w.Write(frame); err != nil {
		return fmt.Errorf("write frame: %w", err)
	}
	return nil
}

// ReadMessage reads one framed message from r.
func ReadMessage(r io.Reader) (string, error) {
	var header [HeaderSize]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return "", err
	}

	length, err := strconv.Atoi(strings.TrimSpace(string(header[:])))
	if err != nil || length < 0 {
		return "", fmt.Errorf("malformed frame header %q", string(header[:]))
	}
	if length > MaxMessageSize {
		return "", fmt.Errorf("frame length %d exceeds limit", length)
	}

	payload := make([]byte, length)
	if _, err := io.ReadFull(r, payload); err != nil {
		return "", fmt.Errorf("read frame payload: %w", err)
	}
	return string(payload), nil
}
