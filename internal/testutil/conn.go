// Package testutil holds helpers shared by handler and server tests.
package testutil

import (
	"bytes"
	"io"
	"net"
	"sync"
	"time"
)

// FakeConn is an in-memory net.Conn. Reads are served from the request
// bytes in a single chunk (like one TCP segment); writes are captured.
type FakeConn struct {
	mu sync.Mutex

	request []byte
	readErr error
	readN   int

	written    bytes.Buffer
	writeCalls int
	// FailWriteAfter makes the Nth and later Write calls fail with WriteErr.
	// Zero disables write failures.
	FailWriteAfter int
	WriteErr       error

	closed bool
}

// NewFakeConn returns a connection whose first Read yields request.
func NewFakeConn(request string) *FakeConn {
	return &FakeConn{request: []byte(request)}
}

// NewFailingReadConn returns a connection whose Read always fails with err.
func NewFailingReadConn(err error) *FakeConn {
	return &FakeConn{readErr: err}
}

func (c *FakeConn) Read(p []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.readN++
	if c.readErr != nil {
		return 0, c.readErr
	}
	if len(c.request) == 0 {
		return 0, io.EOF
	}
	n := copy(p, c.request)
	c.request = c.request[n:]
	return n, nil
}

func (c *FakeConn) Write(p []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.writeCalls++
	if c.FailWriteAfter > 0 && c.writeCalls >= c.FailWriteAfter {
		return 0, c.WriteErr
	}
	return c.written.Write(p)
}

func (c *FakeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

// Written returns everything written so far.
func (c *FakeConn) Written() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.written.String()
}

// WriteCalls reports how many times Write was called.
func (c *FakeConn) WriteCalls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.writeCalls
}

// ReadCalls reports how many times Read was called.
func (c *FakeConn) ReadCalls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.readN
}

// Closed reports whether Close was called.
func (c *FakeConn) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *FakeConn) LocalAddr() net.Addr {
	return &net.TCPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 10000}
}

func (c *FakeConn) RemoteAddr() net.Addr {
	return &net.TCPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 54321}
}

func (c *FakeConn) SetDeadline(t time.Time) error      { return nil }
func (c *FakeConn) SetReadDeadline(t time.Time) error  { return nil }
func (c *FakeConn) SetWriteDeadline(t time.Time) error { return nil }

var _ net.Conn = (*FakeConn)(nil)
