package config

// LogLevel defines the minimum severity for error logs.
type LogLevel string

const (
	LogLevelDebug   LogLevel = "DEBUG"
	LogLevelInfo    LogLevel = "INFO"
	LogLevelWarning LogLevel = "WARNING"
	LogLevelError   LogLevel = "ERROR"
)

// LogFormat selects how log lines are rendered.
type LogFormat string

const (
	LogFormatJSON    LogFormat = "json"
	LogFormatConsole LogFormat = "console"
)

const (
	// DefaultDocumentRoot is the directory requests are resolved against.
	DefaultDocumentRoot = "."
	// DefaultReadBufferSize bounds the single read of the request.
	DefaultReadBufferSize = 1024
	// DefaultChunkSize is the size of each body write when streaming a file.
	DefaultChunkSize = 1024
	// DefaultMaxConnections of 1 keeps the accept loop strictly sequential.
	DefaultMaxConnections = 1
	// DefaultGracefulShutdownTimeout bounds how long Shutdown waits for an in-flight request.
	DefaultGracefulShutdownTimeout = "5s"

	MinReadBufferSize = 64
	MaxReadBufferSize = 1 << 20
	MaxChunkSize      = 1 << 20
)

// Config is the top-level configuration structure for the server.
type Config struct {
	Server  *ServerConfig           `json:"server,omitempty" toml:"server,omitempty"`
	Handler *StaticFileServerConfig `json:"handler,omitempty" toml:"handler,omitempty"`
	Logging *LoggingConfig          `json:"logging,omitempty" toml:"logging,omitempty"`
}

// ServerConfig holds listener settings. The port is never part of the file;
// it always comes from the command line.
type ServerConfig struct {
	Host                    *string `json:"host,omitempty" toml:"host,omitempty"`
	MaxConnections          *int    `json:"max_connections,omitempty" toml:"max_connections,omitempty"`
	ReadTimeout             *string `json:"read_timeout,omitempty" toml:"read_timeout,omitempty"`   // e.g., "10s"
	WriteTimeout            *string `json:"write_timeout,omitempty" toml:"write_timeout,omitempty"` // e.g., "30s"
	GracefulShutdownTimeout *string `json:"graceful_shutdown_timeout,omitempty" toml:"graceful_shutdown_timeout,omitempty"`
}

// StaticFileServerConfig configures the request handler.
type StaticFileServerConfig struct {
	DocumentRoot   string            `json:"document_root,omitempty" toml:"document_root,omitempty"`
	ReadBufferSize *int              `json:"read_buffer_size,omitempty" toml:"read_buffer_size,omitempty"`
	ChunkSize      *int              `json:"chunk_size,omitempty" toml:"chunk_size,omitempty"`
	MimeTypes      map[string]string `json:"mime_types,omitempty" toml:"mime_types,omitempty"` // extension (no dot) -> content type
}

// LoggingConfig holds logging configurations.
type LoggingConfig struct {
	LogLevel  LogLevel         `json:"log_level,omitempty" toml:"log_level,omitempty"`
	AccessLog *AccessLogConfig `json:"access_log,omitempty" toml:"access_log,omitempty"`
	ErrorLog  *ErrorLogConfig  `json:"error_log,omitempty" toml:"error_log,omitempty"`
}

// AccessLogConfig configures access logging.
type AccessLogConfig struct {
	Enabled *bool     `json:"enabled,omitempty" toml:"enabled,omitempty"`
	Target  string    `json:"target,omitempty" toml:"target,omitempty"`
	Format  LogFormat `json:"format,omitempty" toml:"format,omitempty"`
}

// ErrorLogConfig configures error logging.
type ErrorLogConfig struct {
	Target string    `json:"target,omitempty" toml:"target,omitempty"`
	Format LogFormat `json:"format,omitempty" toml:"format,omitempty"`
}

// IsFilePath reports whether a log target names a file rather than a standard stream.
func IsFilePath(target string) bool {
	return target != "" && target != "stdout" && target != "stderr"
}
