package server

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"golang.org/x/net/netutil"

	"example.com/minihttpd/internal/config"
	"example.com/minihttpd/internal/logger"
	"example.com/minihttpd/internal/util"
)

const (
	minAcceptBackoff = 5 * time.Millisecond
	maxAcceptBackoff = time.Second
)

// Server owns the listening socket. It accepts connections, hands each one
// to the Handler and closes it afterwards.
//
// With max_connections = 1 (the default) connections are served one at a
// time on the accept goroutine: the next Accept happens only after the
// previous connection is closed.
type Server struct {
	cfg     *config.Config
	log     *logger.Logger
	handler Handler
	port    int

	maxConns        int
	readTimeout     time.Duration
	writeTimeout    time.Duration
	shutdownTimeout time.Duration

	mu           sync.Mutex
	listener     net.Listener
	activeConns  map[net.Conn]struct{}
	shuttingDown bool
	shutdownDone chan struct{} // closed once Shutdown has drained connections
	inFlight     sync.WaitGroup
}

// NewServer creates a new Server instance. cfg must already be defaulted.
func NewServer(cfg *config.Config, lg *logger.Logger, handler Handler, port int) (*Server, error) {
	if cfg == nil || cfg.Server == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if lg == nil {
		return nil, fmt.Errorf("logger cannot be nil")
	}
	if handler == nil {
		return nil, fmt.Errorf("handler cannot be nil")
	}

	maxConns := config.DefaultMaxConnections
	if cfg.Server.MaxConnections != nil {
		maxConns = *cfg.Server.MaxConnections
	}
	shutdownTimeout := config.ParseDuration(cfg.Server.GracefulShutdownTimeout)
	if shutdownTimeout <= 0 {
		shutdownTimeout, _ = time.ParseDuration(config.DefaultGracefulShutdownTimeout)
	}

	return &Server{
		cfg:             cfg,
		log:             lg,
		handler:         handler,
		port:            port,
		maxConns:        maxConns,
		readTimeout:     config.ParseDuration(cfg.Server.ReadTimeout),
		writeTimeout:    config.ParseDuration(cfg.Server.WriteTimeout),
		shutdownTimeout: shutdownTimeout,
		activeConns:     make(map[net.Conn]struct{}),
		shutdownDone:    make(chan struct{}),
	}, nil
}

// Listen binds the listening socket. It is separate from Serve so callers
// can learn the bound address (port 0) before serving.
func (s *Server) Listen(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return fmt.Errorf("server is already listening on %s", s.listener.Addr())
	}

	host := ""
	if s.cfg.Server.Host != nil {
		host = *s.cfg.Server.Host
	}
	address := util.ListenAddress(host, s.port)

	ln, err := util.CreateListener(ctx, "tcp", address)
	if err != nil {
		if util.IsAddrInUse(err) {
			return fmt.Errorf("port %d is already in use: %w", s.port, err)
		}
		return err
	}
	if s.maxConns > 1 {
		ln = netutil.LimitListener(ln, s.maxConns)
	}
	s.listener = ln
	s.log.Info("Listener created", logger.LogFields{"address": ln.Addr().String(), "max_connections": s.maxConns})
	return nil
}

// Addr returns the bound address, or nil before Listen.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Start binds the socket, installs SIGINT/SIGTERM handling and serves until
// a signal arrives or ctx is cancelled. It returns nil after a clean shutdown.
func (s *Server) Start(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := s.Listen(ctx); err != nil {
		return err
	}
	return s.Serve(ctx)
}

// Serve runs the accept loop on the listener created by Listen. Accept
// failures are logged and retried with capped exponential backoff; only a
// shutdown ends the loop, and Serve returns only after Shutdown has finished
// draining in-flight connections.
func (s *Server) Serve(ctx context.Context) error {
	s.mu.Lock()
	ln := s.listener
	s.mu.Unlock()
	if ln == nil {
		return fmt.Errorf("serve called before listen")
	}

	stopWatch := make(chan struct{})
	defer close(stopWatch)
	go func() {
		select {
		case <-ctx.Done():
			s.log.Info("Shutdown requested", logger.LogFields{"reason": context.Cause(ctx).Error()})
			s.Shutdown()
		case <-stopWatch:
		}
	}()

	s.log.Info("Waiting for client connections", logger.LogFields{"port": s.port, "address": ln.Addr().String()})

	var backoff time.Duration
	for {
		conn, err := ln.Accept()
		if err != nil {
			if s.isShuttingDown() {
				<-s.shutdownDone
				return nil
			}
			if util.IsClosedConnError(err) {
				return fmt.Errorf("listener closed unexpectedly: %w", err)
			}
			if backoff == 0 {
				backoff = minAcceptBackoff
			} else if backoff *= 2; backoff > maxAcceptBackoff {
				backoff = maxAcceptBackoff
			}
			s.log.Warn("Accept failed; retrying", logger.LogFields{"error": err.Error(), "retry_in": backoff.String()})
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				<-s.shutdownDone
				return nil
			}
			continue
		}
		backoff = 0

		if !s.trackConn(conn) {
			conn.Close()
			<-s.shutdownDone
			return nil
		}
		if s.maxConns > 1 {
			go s.serveConn(ctx, conn)
		} else {
			s.serveConn(ctx, conn)
		}
	}
}

// serveConn runs the handler for one connection and always closes it.
func (s *Server) serveConn(ctx context.Context, conn net.Conn) {
	defer s.untrackConn(conn)
	defer conn.Close()
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("Handler panicked", logger.LogFields{"remote_addr": remoteAddr(conn), "panic": fmt.Sprint(r)})
		}
	}()

	now := time.Now()
	if s.readTimeout > 0 {
		conn.SetReadDeadline(now.Add(s.readTimeout))
	}
	if s.writeTimeout > 0 {
		conn.SetWriteDeadline(now.Add(s.writeTimeout))
	}

	if err := s.handler.ServeConn(ctx, conn); err != nil {
		s.log.Warn("Connection abandoned", logger.LogFields{"remote_addr": remoteAddr(conn), "error": err.Error()})
	}
}

func (s *Server) trackConn(conn net.Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.shuttingDown {
		return false
	}
	s.activeConns[conn] = struct{}{}
	s.inFlight.Add(1)
	return true
}

func (s *Server) untrackConn(conn net.Conn) {
	s.mu.Lock()
	delete(s.activeConns, conn)
	s.mu.Unlock()
	s.inFlight.Done()
}

func (s *Server) isShuttingDown() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.shuttingDown
}

// Shutdown stops accepting, waits up to graceful_shutdown_timeout for
// in-flight connections, then closes whatever is left. It is safe to call
// more than once.
func (s *Server) Shutdown() error {
	s.mu.Lock()
	if s.shuttingDown {
		s.mu.Unlock()
		return nil
	}
	s.shuttingDown = true
	var closeErr error
	if s.listener != nil {
		closeErr = s.listener.Close()
	}
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.inFlight.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(s.shutdownTimeout):
		s.mu.Lock()
		n := len(s.activeConns)
		for c := range s.activeConns {
			c.Close()
		}
		s.mu.Unlock()
		s.log.Warn("Graceful shutdown timed out; closed active connections", logger.LogFields{"connections": n})
		<-done
	}
	close(s.shutdownDone)

	if closeErr != nil && !util.IsClosedConnError(closeErr) {
		return fmt.Errorf("failed to close listener: %w", closeErr)
	}
	return nil
}

func remoteAddr(conn net.Conn) string {
	if a := conn.RemoteAddr(); a != nil {
		return a.String()
	}
	return ""
}
