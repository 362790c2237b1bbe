package server

import (
	"bytes"
	"io"
	"net/http"
	"strconv"
)

// HeaderField represents a single HTTP header field (name-value pair).
type HeaderField struct {
	Name  string
	Value string
}

// Response is one HTTP/1.1 response. Headers are written in slice order.
// Body holds fixed bodies only; file contents are streamed by the caller
// after the preamble.
type Response struct {
	StatusCode int
	Reason     string
	Headers    []HeaderField
	Body       []byte
}

// NewResponse builds a response with the standard reason phrase for code.
func NewResponse(code int, headers ...HeaderField) *Response {
	return &Response{StatusCode: code, Reason: http.StatusText(code), Headers: headers}
}

// StatusLine returns the status line without its CRLF.
func (r *Response) StatusLine() string {
	return "HTTP/1.1 " + strconv.Itoa(r.StatusCode) + " " + r.Reason
}

// Preamble renders the status line, the headers and the blank line.
func (r *Response) Preamble() []byte {
	var b bytes.Buffer
	b.WriteString(r.StatusLine())
	b.WriteString("\r\n")
	for _, h := range r.Headers {
		b.WriteString(h.Name)
		b.WriteString(": ")
		b.WriteString(h.Value)
		b.WriteString("\r\n")
	}
	b.WriteString("\r\n")
	return b.Bytes()
}

// WriteTo writes the preamble and the fixed body in a single Write call.
func (r *Response) WriteTo(w io.Writer) (int64, error) {
	out := r.Preamble()
	if len(r.Body) > 0 {
		out = append(out, r.Body...)
	}
	n, err := w.Write(out)
	return int64(n), err
}

// OK is the preamble of a successful file response. An empty contentType
// still produces the header, with an empty value.
func OK(contentType string, size int64) *Response {
	return NewResponse(http.StatusOK,
		HeaderField{Name: "Content-Type", Value: contentType},
		HeaderField{Name: "Content-Length", Value: strconv.FormatInt(size, 10)},
	)
}
