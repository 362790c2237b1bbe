package logger

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/rs/zerolog"

	"example.com/minihttpd/internal/config"
)

// LogFields carries structured key/value pairs for a log entry.
type LogFields map[string]interface{}

// AccessEntry describes one completed connection.
type AccessEntry struct {
	RemoteAddr    string
	Method        string
	Path          string
	Status        int // 0 when no response was written
	ResponseBytes int64
	Duration      time.Duration
}

// Logger is a general logger that contains specific loggers for access and errors.
type Logger struct {
	errorLog  zerolog.Logger
	accessLog *zerolog.Logger

	mu    sync.Mutex
	files []*os.File
}

// NewLogger creates and configures a new Logger instance.
func NewLogger(cfg *config.LoggingConfig) (*Logger, error) {
	if cfg == nil {
		return nil, fmt.Errorf("logging configuration cannot be nil")
	}

	l := &Logger{}
	level := toZerologLevel(cfg.LogLevel)

	errTarget, errFormat := "stderr", config.LogFormatConsole
	if cfg.ErrorLog != nil {
		if cfg.ErrorLog.Target != "" {
			errTarget = cfg.ErrorLog.Target
		}
		if cfg.ErrorLog.Format != "" {
			errFormat = cfg.ErrorLog.Format
		}
	}
	errOut, err := l.openTarget(errTarget, os.Stderr)
	if err != nil {
		return nil, fmt.Errorf("failed to open error log: %w", err)
	}
	l.errorLog = newZerolog(errOut, errFormat).Level(level)

	if cfg.AccessLog != nil && (cfg.AccessLog.Enabled == nil || *cfg.AccessLog.Enabled) {
		format := cfg.AccessLog.Format
		if format == "" {
			format = config.LogFormatJSON
		}
		accessOut, err := l.openTarget(cfg.AccessLog.Target, os.Stdout)
		if err != nil {
			l.CloseLogFiles()
			return nil, fmt.Errorf("failed to open access log: %w", err)
		}
		al := newZerolog(accessOut, format)
		l.accessLog = &al
	}

	return l, nil
}

// NewDiscardLogger returns a logger that drops everything.
func NewDiscardLogger() *Logger {
	return &Logger{errorLog: zerolog.Nop()}
}

// NewTestLogger writes both error and access entries as JSON lines to w.
func NewTestLogger(w io.Writer, level config.LogLevel) *Logger {
	al := zerolog.New(w).With().Str("log", "access").Logger()
	return &Logger{
		errorLog:  zerolog.New(w).Level(toZerologLevel(level)),
		accessLog: &al,
	}
}

func (l *Logger) openTarget(target string, fallback *os.File) (io.Writer, error) {
	switch target {
	case "":
		return fallback, nil
	case "stdout":
		return os.Stdout, nil
	case "stderr":
		return os.Stderr, nil
	}
	f, err := os.OpenFile(target, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, err
	}
	l.mu.Lock()
	l.files = append(l.files, f)
	l.mu.Unlock()
	return f, nil
}

func newZerolog(w io.Writer, format config.LogFormat) zerolog.Logger {
	if format == config.LogFormatConsole {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339, NoColor: !isTerminal(w)}
	}
	return zerolog.New(w).With().Timestamp().Logger()
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd())
}

func toZerologLevel(level config.LogLevel) zerolog.Level {
	switch level {
	case config.LogLevelDebug:
		return zerolog.DebugLevel
	case config.LogLevelWarning:
		return zerolog.WarnLevel
	case config.LogLevelError:
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

func (l *Logger) event(e *zerolog.Event, msg string, fields LogFields) {
	if e == nil {
		return
	}
	if len(fields) > 0 {
		e = e.Fields(map[string]interface{}(fields))
	}
	e.Msg(msg)
}

func (l *Logger) Debug(msg string, fields LogFields) { l.event(l.errorLog.Debug(), msg, fields) }
func (l *Logger) Info(msg string, fields LogFields)  { l.event(l.errorLog.Info(), msg, fields) }
func (l *Logger) Warn(msg string, fields LogFields)  { l.event(l.errorLog.Warn(), msg, fields) }
func (l *Logger) Error(msg string, fields LogFields) { l.event(l.errorLog.Error(), msg, fields) }

// Access writes one access log entry. It is a no-op when access logging is disabled.
func (l *Logger) Access(entry AccessEntry) {
	if l.accessLog == nil {
		return
	}
	e := l.accessLog.Log().
		Str("remote_addr", entry.RemoteAddr).
		Int("status", entry.Status).
		Int64("resp_bytes", entry.ResponseBytes).
		Int64("duration_ms", entry.Duration.Milliseconds())
	if entry.Method != "" {
		e = e.Str("method", entry.Method)
	}
	if entry.Path != "" {
		e = e.Str("uri", entry.Path)
	}
	e.Send()
}

// CloseLogFiles closes any log files opened by NewLogger.
func (l *Logger) CloseLogFiles() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	var firstErr error
	for _, f := range l.files {
		if err := f.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	l.files = nil
	return firstErr
}
