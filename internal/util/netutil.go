package util

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"syscall"

	"golang.org/x/sys/unix"
)

// ListenAddress builds the TCP address for host and port. An empty host
// binds every interface, like INADDR_ANY.
func ListenAddress(host string, port int) string {
	return net.JoinHostPort(host, strconv.Itoa(port))
}

// ParsePort validates a decimal TCP port number.
func ParsePort(s string) (int, error) {
	port, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("invalid port %q: %w", s, err)
	}
	if port < 0 || port > 65535 {
		return 0, fmt.Errorf("invalid port %q: out of range", s)
	}
	return port, nil
}

// CreateListener creates a net.Listener on the given address with
// SO_REUSEADDR set, so a restarted server can rebind while old connections
// linger in TIME_WAIT.
func CreateListener(ctx context.Context, network, address string) (net.Listener, error) {
	if network != "tcp" && network != "tcp4" && network != "tcp6" {
		return nil, fmt.Errorf("unsupported network type: %s, only 'tcp', 'tcp4', or 'tcp6' are supported for CreateListener", network)
	}

	lc := net.ListenConfig{Control: reuseAddrControl}
	ln, err := lc.Listen(ctx, network, address)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s %s: %w", network, address, err)
	}
	return ln, nil
}

func reuseAddrControl(network, address string, c syscall.RawConn) error {
	var sockErr error
	err := c.Control(func(fd uintptr) {
		sockErr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEADDR, 1)
	})
	if err != nil {
		return err
	}
	if sockErr != nil {
		return fmt.Errorf("setsockopt SO_REUSEADDR: %w", sockErr)
	}
	return nil
}

// IsAddrInUse checks if the error indicates an "address already in use" condition.
func IsAddrInUse(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, unix.EADDRINUSE) {
		return true
	}
	var sysErr *os.SyscallError
	if errors.As(err, &sysErr) && sysErr.Err == unix.EADDRINUSE {
		return true
	}
	return strings.Contains(strings.ToLower(err.Error()), "address already in use")
}

// IsClosedConnError reports whether err comes from using a closed listener or connection.
func IsClosedConnError(err error) bool {
	return err != nil && errors.Is(err, net.ErrClosed)
}
