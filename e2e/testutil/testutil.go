// Package testutil starts the minihttpd binary as a subprocess and talks to
// it over raw TCP.
package testutil

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"testing"
	"time"

	"github.com/BurntSushi/toml"
)

// SafeBuffer is a bytes.Buffer guarded by a mutex; the subprocess writes
// into it while the test reads.
type SafeBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *SafeBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *SafeBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// ServerInstance is a running server process.
type ServerInstance struct {
	Cmd        *exec.Cmd
	Address    string // host:port the server listens on
	ConfigPath string
	Logs       *SafeBuffer // combined stdout and stderr

	waitOnce sync.Once
	waitErr  error
	exited   chan struct{}
}

var (
	buildOnce   sync.Once
	binaryPath  string
	buildErr    error
	buildOutput []byte
)

// BuildServerBinary compiles the server once per test binary and returns its
// path. The test is skipped when no Go toolchain is on PATH.
func BuildServerBinary(t *testing.T) string {
	t.Helper()
	goTool, err := exec.LookPath("go")
	if err != nil {
		t.Skip("go toolchain not found in PATH; skipping end-to-end test")
	}

	buildOnce.Do(func() {
		_, currentFile, _, _ := runtime.Caller(0)
		projectRoot := filepath.Join(filepath.Dir(currentFile), "..", "..")

		dir, err := os.MkdirTemp("", "minihttpd-e2e-")
		if err != nil {
			buildErr = err
			return
		}
		binaryPath = filepath.Join(dir, "minihttpd")
		cmd := exec.Command(goTool, "build", "-o", binaryPath, ".")
		cmd.Dir = projectRoot
		buildOutput, buildErr = cmd.CombinedOutput()
	})
	if buildErr != nil {
		t.Fatalf("failed to build server binary: %v\n%s", buildErr, buildOutput)
	}
	return binaryPath
}

// GetFreePort asks the kernel for a free open port that is ready to use.
func GetFreePort() (int, error) {
	addr, err := net.ResolveTCPAddr("tcp", "127.0.0.1:0")
	if err != nil {
		return 0, err
	}
	l, err := net.ListenTCP("tcp", addr)
	if err != nil {
		return 0, err
	}
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port, nil
}

// WriteTempConfig writes configData as JSON or TOML into dir and returns the path.
func WriteTempConfig(dir string, configData interface{}, format string) (string, error) {
	var data []byte
	var err error

	switch strings.ToLower(format) {
	case "json":
		data, err = json.MarshalIndent(configData, "", "  ")
	case "toml":
		buf := new(bytes.Buffer)
		if err = toml.NewEncoder(buf).Encode(configData); err == nil {
			data = buf.Bytes()
		}
	default:
		err = fmt.Errorf("unsupported config format: %s", format)
	}
	if err != nil {
		return "", fmt.Errorf("failed to marshal config data to %s: %w", format, err)
	}

	path := filepath.Join(dir, "minihttpd."+strings.ToLower(format))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write temp config file: %w", err)
	}
	return path, nil
}

// RunServer runs the binary to completion with args and returns its exit
// code and combined output. It is meant for invocations that exit on their own.
func RunServer(binary string, timeout time.Duration, args ...string) (int, string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	cmd := exec.CommandContext(ctx, binary, args...)
	out, err := cmd.CombinedOutput()
	if exitErr, ok := err.(*exec.ExitError); ok {
		return exitErr.ExitCode(), string(out), nil
	}
	if err != nil {
		return -1, string(out), err
	}
	return 0, string(out), nil
}

// StartTestServer launches the binary on port with the given config file
// and waits until the port accepts connections.
func StartTestServer(binary, configFile string, port int) (*ServerInstance, error) {
	args := []string{}
	if configFile != "" {
		args = append(args, "-config", configFile)
	}
	args = append(args, strconv.Itoa(port))

	logs := &SafeBuffer{}
	cmd := exec.Command(binary, args...)
	cmd.Stdout = logs
	cmd.Stderr = logs

	s := &ServerInstance{
		Cmd:        cmd,
		Address:    net.JoinHostPort("127.0.0.1", strconv.Itoa(port)),
		ConfigPath: configFile,
		Logs:       logs,
		exited:     make(chan struct{}),
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start server process %s: %w", binary, err)
	}
	go func() {
		s.wait()
	}()

	readyTimeout := 10 * time.Second
	pollInterval := 50 * time.Millisecond
	deadline := time.Now().Add(readyTimeout)
	var lastDialErr error
	for time.Now().Before(deadline) {
		select {
		case <-s.exited:
			return nil, fmt.Errorf("server exited before becoming ready: %v. Logs captured:\n%s", s.waitErr, logs.String())
		default:
		}
		// The readiness connection sends nothing; the server drops it without a response.
		conn, err := net.DialTimeout("tcp", s.Address, pollInterval)
		if err == nil {
			conn.Close()
			return s, nil
		}
		lastDialErr = err
		time.Sleep(pollInterval)
	}
	s.Stop()
	return nil, fmt.Errorf("server not ready at %s after %v. Last dial error: %v. Logs captured:\n%s", s.Address, readyTimeout, lastDialErr, logs.String())
}

func (s *ServerInstance) wait() {
	s.waitOnce.Do(func() {
		s.waitErr = s.Cmd.Wait()
		close(s.exited)
	})
}

// Stop sends SIGINT and waits for a graceful exit, killing the process if
// it does not exit in time. It returns the process exit code.
func (s *ServerInstance) Stop() (int, error) {
	if s.Cmd.Process == nil {
		return -1, fmt.Errorf("server process was never started")
	}
	select {
	case <-s.exited:
	default:
		_ = s.Cmd.Process.Signal(syscall.SIGINT)
		select {
		case <-s.exited:
		case <-time.After(5 * time.Second):
			_ = s.Cmd.Process.Kill()
			<-s.exited
			return -1, fmt.Errorf("server did not exit after SIGINT; killed. Logs captured:\n%s", s.Logs.String())
		}
	}
	return s.Cmd.ProcessState.ExitCode(), nil
}

// SendRaw writes raw to addr and returns everything read until the server
// closes the connection.
func SendRaw(addr string, raw []byte, timeout time.Duration) ([]byte, error) {
	conn, err := net.DialTimeout("tcp", addr, timeout)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}
	defer conn.Close()
	if err := conn.SetDeadline(time.Now().Add(timeout)); err != nil {
		return nil, err
	}
	if len(raw) > 0 {
		if _, err := conn.Write(raw); err != nil {
			return nil, fmt.Errorf("write request: %w", err)
		}
	}
	resp, err := io.ReadAll(conn)
	if err != nil {
		return resp, fmt.Errorf("read response: %w", err)
	}
	return resp, nil
}
