package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeTempFile creates a temporary file with the given content and extension
// and returns its path. The file is removed with the test's temp dir.
func writeTempFile(t *testing.T, content string, ext string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test-config"+ext)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

// checkErrorContains checks if the error is not nil and its message contains the expected substring.
func checkErrorContains(t *testing.T, err error, expectedSubstring string) {
	t.Helper()
	require.Error(t, err, "expected an error containing %q", expectedSubstring)
	assert.Contains(t, err.Error(), expectedSubstring)
}

func TestLoadConfig_EmptyPath(t *testing.T) {
	_, err := LoadConfig("")
	checkErrorContains(t, err, "configuration file path cannot be empty")
}

func TestLoadConfig_NonExistentFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "non_existent_file.json"))
	checkErrorContains(t, err, "failed to read configuration file")

	var cfgErr *ConfigError
	require.True(t, errors.As(err, &cfgErr))
	assert.True(t, errors.Is(err, os.ErrNotExist))
}

func TestLoadConfig_ValidJSON(t *testing.T) {
	path := writeTempFile(t, `{"server": {"host": "127.0.0.1"}, "handler": {"document_root": "/srv/www"}}`, ".json")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	require.NotNil(t, cfg.Server.Host)
	assert.Equal(t, "127.0.0.1", *cfg.Server.Host)
	assert.Equal(t, "/srv/www", cfg.Handler.DocumentRoot)
}

func TestLoadConfig_ValidTOML(t *testing.T) {
	content := `
[server]
host = "127.0.0.1"
max_connections = 4

[handler]
read_buffer_size = 2048
chunk_size = 512

[handler.mime_types]
txt = "text/plain"
`
	path := writeTempFile(t, content, ".toml")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1", *cfg.Server.Host)
	assert.Equal(t, 4, *cfg.Server.MaxConnections)
	assert.Equal(t, 2048, *cfg.Handler.ReadBufferSize)
	assert.Equal(t, 512, *cfg.Handler.ChunkSize)
	assert.Equal(t, map[string]string{"txt": "text/plain"}, cfg.Handler.MimeTypes)
}

func TestLoadConfig_AutoDetect(t *testing.T) {
	t.Run("json", func(t *testing.T) {
		path := writeTempFile(t, `{"logging": {"log_level": "DEBUG"}}`, ".conf")
		cfg, err := LoadConfig(path)
		require.NoError(t, err)
		assert.Equal(t, LogLevelDebug, cfg.Logging.LogLevel)
	})

	t.Run("toml", func(t *testing.T) {
		path := writeTempFile(t, "[logging]\nlog_level = \"ERROR\"\n", ".conf")
		cfg, err := LoadConfig(path)
		require.NoError(t, err)
		assert.Equal(t, LogLevelError, cfg.Logging.LogLevel)
	})

	t.Run("neither", func(t *testing.T) {
		path := writeTempFile(t, `not json or toml`, ".data")
		_, err := LoadConfig(path)
		checkErrorContains(t, err, "failed to auto-detect and parse config")
		checkErrorContains(t, err, "JSON error")
		checkErrorContains(t, err, "TOML error")
	})
}

func TestLoadConfig_InvalidSyntax(t *testing.T) {
	_, err := LoadConfig(writeTempFile(t, `{"server": {"host": "a",}}`, ".json"))
	checkErrorContains(t, err, "failed to parse JSON config")

	_, err = LoadConfig(writeTempFile(t, "[server\nhost = \"a\"\n", ".toml"))
	checkErrorContains(t, err, "failed to parse TOML config")
}

func TestLoadConfig_UnknownKeysRejected(t *testing.T) {
	_, err := LoadConfig(writeTempFile(t, `{"server": {"address": ":8080"}}`, ".json"))
	checkErrorContains(t, err, "unknown field")

	_, err = LoadConfig(writeTempFile(t, "[server]\naddress = \":8080\"\n", ".toml"))
	checkErrorContains(t, err, "unknown keys: server.address")
}

func TestLoadConfig_DefaultsApplied(t *testing.T) {
	cfg, err := LoadConfig(writeTempFile(t, `{}`, ".json"))
	require.NoError(t, err)

	assert.Nil(t, cfg.Server.Host)
	assert.Equal(t, DefaultMaxConnections, *cfg.Server.MaxConnections)
	assert.Nil(t, cfg.Server.ReadTimeout)
	assert.Nil(t, cfg.Server.WriteTimeout)
	assert.Equal(t, DefaultGracefulShutdownTimeout, *cfg.Server.GracefulShutdownTimeout)

	assert.Equal(t, DefaultDocumentRoot, cfg.Handler.DocumentRoot)
	assert.Equal(t, DefaultReadBufferSize, *cfg.Handler.ReadBufferSize)
	assert.Equal(t, DefaultChunkSize, *cfg.Handler.ChunkSize)
	assert.Empty(t, cfg.Handler.MimeTypes)

	assert.Equal(t, LogLevelInfo, cfg.Logging.LogLevel)
	assert.Equal(t, "stderr", cfg.Logging.ErrorLog.Target)
	assert.Equal(t, LogFormatConsole, cfg.Logging.ErrorLog.Format)
	assert.True(t, *cfg.Logging.AccessLog.Enabled)
	assert.Equal(t, "stdout", cfg.Logging.AccessLog.Target)
	assert.Equal(t, LogFormatJSON, cfg.Logging.AccessLog.Format)
}

func TestDefault_MatchesEmptyFile(t *testing.T) {
	fromFile, err := ParseConfig([]byte(`{}`), "json")
	require.NoError(t, err)
	assert.Equal(t, Default(), fromFile)
}

func TestApplyDefaults_Idempotent(t *testing.T) {
	cfg := Default()
	*cfg.Handler.ChunkSize = 99
	ApplyDefaults(cfg)
	assert.Equal(t, 99, *cfg.Handler.ChunkSize)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name        string
		configJSON  string
		expectError string
	}{
		{
			name:        "zero max_connections",
			configJSON:  `{"server": {"max_connections": 0}}`,
			expectError: "server.max_connections must be at least 1, got 0",
		},
		{
			name:        "host with slash",
			configJSON:  `{"server": {"host": "a/b"}}`,
			expectError: `server.host "a/b" is not a valid host`,
		},
		{
			name:        "invalid read_timeout format",
			configJSON:  `{"server": {"read_timeout": "10"}}`,
			expectError: "invalid format for server.read_timeout '10'",
		},
		{
			name:        "negative write_timeout",
			configJSON:  `{"server": {"write_timeout": "-5s"}}`,
			expectError: "server.write_timeout must be a positive duration, got '-5s'",
		},
		{
			name:        "zero graceful_shutdown_timeout",
			configJSON:  `{"server": {"graceful_shutdown_timeout": "0s"}}`,
			expectError: "server.graceful_shutdown_timeout must be a positive duration, got '0s'",
		},
		{
			name:        "empty graceful_shutdown_timeout",
			configJSON:  `{"server": {"graceful_shutdown_timeout": ""}}`,
			expectError: "server.graceful_shutdown_timeout cannot be an empty string if specified",
		},
		{
			name:        "tiny read buffer",
			configJSON:  `{"handler": {"read_buffer_size": 8}}`,
			expectError: "handler.read_buffer_size must be between 64 and 1048576, got 8",
		},
		{
			name:        "zero chunk size",
			configJSON:  `{"handler": {"chunk_size": 0}}`,
			expectError: "handler.chunk_size must be between 1 and 1048576, got 0",
		},
		{
			name:        "mime extension with dot",
			configJSON:  `{"handler": {"mime_types": {".txt": "text/plain"}}}`,
			expectError: `handler.mime_types: invalid extension ".txt"`,
		},
		{
			name:        "mime value with newline",
			configJSON:  `{"handler": {"mime_types": {"txt": "text/plain\r\nX-Evil: 1"}}}`,
			expectError: `handler.mime_types: invalid content type`,
		},
		{
			name:        "bad log level",
			configJSON:  `{"logging": {"log_level": "TRACE"}}`,
			expectError: `logging.log_level "TRACE" is not one of`,
		},
		{
			name:        "relative log file",
			configJSON:  `{"logging": {"error_log": {"target": "logs/error.log"}}}`,
			expectError: "logging.error_log.target must be 'stdout', 'stderr' or an absolute path",
		},
		{
			name:        "bad access log format",
			configJSON:  `{"logging": {"access_log": {"format": "clf"}}}`,
			expectError: "logging.access_log.format must be 'json' or 'console', got \"clf\"",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := LoadConfig(writeTempFile(t, tc.configJSON, ".json"))
			checkErrorContains(t, err, tc.expectError)
		})
	}
}

func TestParseDuration(t *testing.T) {
	assert.Equal(t, time.Duration(0), ParseDuration(nil))
	assert.Equal(t, time.Duration(0), ParseDuration(strPtr("")))
	assert.Equal(t, 1500*time.Millisecond, ParseDuration(strPtr("1.5s")))
}

func TestIsFilePath(t *testing.T) {
	assert.False(t, IsFilePath("stdout"))
	assert.False(t, IsFilePath("stderr"))
	assert.False(t, IsFilePath(""))
	assert.True(t, IsFilePath("/var/log/minihttpd.log"))
}

func TestConfigError_Message(t *testing.T) {
	err := &ConfigError{FilePath: "/etc/x.toml", Message: "invalid configuration", Err: errors.New("boom")}
	assert.Equal(t, "config /etc/x.toml: invalid configuration: boom", err.Error())
	assert.True(t, strings.HasPrefix((&ConfigError{Message: "m"}).Error(), "config: m"))
}
