package server

import (
	"context"
	"net"
)

// Handler consumes one accepted connection and writes at most one response
// on it. The server closes the connection after ServeConn returns, whatever
// the outcome; implementations must not close it themselves.
//
// A non-nil error means the request was abandoned (for example the read
// failed); it is logged and never retried.
type Handler interface {
	ServeConn(ctx context.Context, conn net.Conn) error
}

// HandlerFunc adapts an ordinary function to the Handler interface.
type HandlerFunc func(ctx context.Context, conn net.Conn) error

// ServeConn calls f(ctx, conn).
func (f HandlerFunc) ServeConn(ctx context.Context, conn net.Conn) error {
	return f(ctx, conn)
}
