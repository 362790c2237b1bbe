// Package request reads and parses the single request line the server acts on.
package request

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"
)

var (
	// ErrEmptyRequest is returned when the peer closed without sending anything.
	ErrEmptyRequest = errors.New("empty request")
	// ErrMalformedRequestLine is returned when the first line has fewer than two tokens.
	ErrMalformedRequestLine = errors.New("malformed request line")
	// ErrRequestLineTooLong is returned when the read filled the buffer
	// without reaching the end of the first line.
	ErrRequestLineTooLong = errors.New("request line exceeds read buffer")
)

// ParsedRequest holds the two tokens of the request line the server uses.
type ParsedRequest struct {
	Method string
	Path   string
}

// ReadRaw performs exactly one read of at most limit bytes from r.
// Bytes the peer sent beyond the first read are never consumed.
func ReadRaw(r io.Reader, limit int) ([]byte, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("invalid read limit %d", limit)
	}
	buf := make([]byte, limit)
	n, err := r.Read(buf)
	if n > 0 {
		// Data takes precedence over an error returned with it.
		return buf[:n], nil
	}
	if err == nil || errors.Is(err, io.EOF) {
		return nil, ErrEmptyRequest
	}
	return nil, err
}

// Parse extracts the method and path from the first line of raw.
// limit is the buffer size raw was read with; a full buffer whose first
// line never terminates is reported as ErrRequestLineTooLong.
func Parse(raw []byte, limit int) (*ParsedRequest, error) {
	if len(raw) == 0 {
		return nil, ErrEmptyRequest
	}

	line := raw
	if i := bytes.IndexAny(raw, "\r\n"); i >= 0 {
		line = raw[:i]
	} else if len(raw) >= limit {
		return nil, ErrRequestLineTooLong
	}

	fields := strings.Fields(string(line))
	if len(fields) < 2 {
		return nil, fmt.Errorf("%w: %d token(s)", ErrMalformedRequestLine, len(fields))
	}
	return &ParsedRequest{Method: fields[0], Path: fields[1]}, nil
}
