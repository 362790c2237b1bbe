package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"golang.org/x/net/http/httpguts"
)

// ConfigError describes a configuration problem, optionally tied to a file.
type ConfigError struct {
	FilePath string
	Message  string
	Err      error
}

func (e *ConfigError) Error() string {
	var b strings.Builder
	b.WriteString("config")
	if e.FilePath != "" {
		b.WriteString(" ")
		b.WriteString(e.FilePath)
	}
	b.WriteString(": ")
	b.WriteString(e.Message)
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *ConfigError) Unwrap() error { return e.Err }

// Default returns a fully defaulted configuration, equivalent to running
// without a configuration file.
func Default() *Config {
	cfg := &Config{}
	ApplyDefaults(cfg)
	return cfg
}

// LoadConfig reads, parses, defaults and validates the configuration file at
// filePath. The format is chosen by extension (.json, .toml); any other
// extension is auto-detected, trying JSON first.
func LoadConfig(filePath string) (*Config, error) {
	if filePath == "" {
		return nil, &ConfigError{Message: "configuration file path cannot be empty"}
	}

	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, &ConfigError{FilePath: filePath, Message: "failed to read configuration file", Err: err}
	}

	var format string
	switch strings.ToLower(filepath.Ext(filePath)) {
	case ".json":
		format = "json"
	case ".toml":
		format = "toml"
	}

	cfg, err := ParseConfig(data, format)
	if err != nil {
		return nil, &ConfigError{FilePath: filePath, Message: "invalid configuration", Err: err}
	}
	return cfg, nil
}

// ParseConfig decodes data as JSON or TOML. An empty format auto-detects.
// Unknown keys are rejected in both formats.
func ParseConfig(data []byte, format string) (*Config, error) {
	var cfg *Config
	var err error

	switch format {
	case "json":
		cfg, err = parseJSON(data)
		if err != nil {
			return nil, fmt.Errorf("failed to parse JSON config: %w", err)
		}
	case "toml":
		cfg, err = parseTOML(data)
		if err != nil {
			return nil, fmt.Errorf("failed to parse TOML config: %w", err)
		}
	case "":
		var jsonErr, tomlErr error
		cfg, jsonErr = parseJSON(data)
		if jsonErr != nil {
			cfg, tomlErr = parseTOML(data)
			if tomlErr != nil {
				return nil, fmt.Errorf("failed to auto-detect and parse config (JSON error: %v; TOML error: %v)", jsonErr, tomlErr)
			}
		}
	default:
		return nil, fmt.Errorf("unsupported config format %q", format)
	}

	ApplyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func parseJSON(data []byte) (*Config, error) {
	var cfg Config
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func parseTOML(data []byte) (*Config, error) {
	var cfg Config
	md, err := toml.Decode(string(data), &cfg)
	if err != nil {
		return nil, err
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		sort.Strings(keys)
		return nil, fmt.Errorf("unknown keys: %s", strings.Join(keys, ", "))
	}
	return &cfg, nil
}

// ApplyDefaults fills every unset field. It is idempotent.
func ApplyDefaults(cfg *Config) {
	if cfg.Server == nil {
		cfg.Server = &ServerConfig{}
	}
	if cfg.Server.MaxConnections == nil {
		cfg.Server.MaxConnections = intPtr(DefaultMaxConnections)
	}
	if cfg.Server.GracefulShutdownTimeout == nil {
		cfg.Server.GracefulShutdownTimeout = strPtr(DefaultGracefulShutdownTimeout)
	}

	if cfg.Handler == nil {
		cfg.Handler = &StaticFileServerConfig{}
	}
	if cfg.Handler.DocumentRoot == "" {
		cfg.Handler.DocumentRoot = DefaultDocumentRoot
	}
	if cfg.Handler.ReadBufferSize == nil {
		cfg.Handler.ReadBufferSize = intPtr(DefaultReadBufferSize)
	}
	if cfg.Handler.ChunkSize == nil {
		cfg.Handler.ChunkSize = intPtr(DefaultChunkSize)
	}

	if cfg.Logging == nil {
		cfg.Logging = &LoggingConfig{}
	}
	if cfg.Logging.LogLevel == "" {
		cfg.Logging.LogLevel = LogLevelInfo
	}
	if cfg.Logging.ErrorLog == nil {
		cfg.Logging.ErrorLog = &ErrorLogConfig{}
	}
	if cfg.Logging.ErrorLog.Target == "" {
		cfg.Logging.ErrorLog.Target = "stderr"
	}
	if cfg.Logging.ErrorLog.Format == "" {
		cfg.Logging.ErrorLog.Format = LogFormatConsole
	}
	if cfg.Logging.AccessLog == nil {
		cfg.Logging.AccessLog = &AccessLogConfig{}
	}
	if cfg.Logging.AccessLog.Enabled == nil {
		cfg.Logging.AccessLog.Enabled = boolPtr(true)
	}
	if cfg.Logging.AccessLog.Target == "" {
		cfg.Logging.AccessLog.Target = "stdout"
	}
	if cfg.Logging.AccessLog.Format == "" {
		cfg.Logging.AccessLog.Format = LogFormatJSON
	}
}

// Validate checks a defaulted configuration.
func Validate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("configuration cannot be nil")
	}

	s := cfg.Server
	if s.Host != nil && strings.ContainsAny(*s.Host, " /") {
		return fmt.Errorf("server.host %q is not a valid host", *s.Host)
	}
	if *s.MaxConnections < 1 {
		return fmt.Errorf("server.max_connections must be at least 1, got %d", *s.MaxConnections)
	}
	if err := validateDuration("server.read_timeout", s.ReadTimeout, true); err != nil {
		return err
	}
	if err := validateDuration("server.write_timeout", s.WriteTimeout, true); err != nil {
		return err
	}
	if err := validateDuration("server.graceful_shutdown_timeout", s.GracefulShutdownTimeout, false); err != nil {
		return err
	}

	h := cfg.Handler
	if n := *h.ReadBufferSize; n < MinReadBufferSize || n > MaxReadBufferSize {
		return fmt.Errorf("handler.read_buffer_size must be between %d and %d, got %d", MinReadBufferSize, MaxReadBufferSize, n)
	}
	if n := *h.ChunkSize; n < 1 || n > MaxChunkSize {
		return fmt.Errorf("handler.chunk_size must be between 1 and %d, got %d", MaxChunkSize, n)
	}
	for ext, ct := range h.MimeTypes {
		if ext == "" || strings.ContainsAny(ext, "./ ") {
			return fmt.Errorf("handler.mime_types: invalid extension %q (use the bare suffix, e.g. \"txt\")", ext)
		}
		if ct == "" || !httpguts.ValidHeaderFieldValue(ct) {
			return fmt.Errorf("handler.mime_types: invalid content type %q for extension %q", ct, ext)
		}
	}

	l := cfg.Logging
	switch l.LogLevel {
	case LogLevelDebug, LogLevelInfo, LogLevelWarning, LogLevelError:
	default:
		return fmt.Errorf("logging.log_level %q is not one of DEBUG, INFO, WARNING, ERROR", l.LogLevel)
	}
	if err := validateTarget("logging.error_log", l.ErrorLog.Target, l.ErrorLog.Format); err != nil {
		return err
	}
	if err := validateTarget("logging.access_log", l.AccessLog.Target, l.AccessLog.Format); err != nil {
		return err
	}
	return nil
}

func validateDuration(name string, value *string, allowZero bool) error {
	if value == nil {
		return nil
	}
	if *value == "" {
		return fmt.Errorf("%s cannot be an empty string if specified", name)
	}
	d, err := time.ParseDuration(*value)
	if err != nil {
		return fmt.Errorf("invalid format for %s '%s': %w", name, *value, err)
	}
	if d < 0 || (d == 0 && !allowZero) {
		return fmt.Errorf("%s must be a positive duration, got '%s'", name, *value)
	}
	return nil
}

func validateTarget(name, target string, format LogFormat) error {
	if IsFilePath(target) && !filepath.IsAbs(target) {
		return fmt.Errorf("%s.target must be 'stdout', 'stderr' or an absolute path, got %q", name, target)
	}
	if format != LogFormatJSON && format != LogFormatConsole {
		return fmt.Errorf("%s.format must be 'json' or 'console', got %q", name, format)
	}
	return nil
}

// ParseDuration converts an optional, already validated duration string.
// nil yields zero, meaning "no limit".
func ParseDuration(value *string) time.Duration {
	if value == nil || *value == "" {
		return 0
	}
	d, err := time.ParseDuration(*value)
	if err != nil {
		return 0
	}
	return d
}

func intPtr(i int) *int       { return &i }
func strPtr(s string) *string { return &s }
func boolPtr(b bool) *bool    { return &b }
