package config

// Version is the release version reported in the default Server header and by -version.
const Version = "0.4.0"

// MatchType defines how a path pattern is interpreted.
type MatchType string

const (
	// MatchTypeExact matches the path exactly.
	MatchTypeExact MatchType = "Exact"
	// MatchTypePrefix matches any path starting with the prefix.
	MatchTypePrefix MatchType = "Prefix"
)

// LogLevel defines the minimum severity for error logs.
type LogLevel string

const (
	LogLevelDebug   LogLevel = "DEBUG"
	LogLevelInfo    LogLevel = "INFO"
	LogLevelWarning LogLevel = "WARNING"
	LogLevelError   LogLevel = "ERROR"
)

// Log formats understood by both the access log and the error log.
const (
	LogFormatJSON    = "json"
	LogFormatConsole = "console"
)

// Config is the top-level configuration structure for the server.
type Config struct {
	Server  *ServerConfig  `json:"server,omitempty" toml:"server,omitempty" yaml:"server,omitempty"`
	Routing *RoutingConfig `json:"routing,omitempty" toml:"routing,omitempty" yaml:"routing,omitempty"`
	Logging *LoggingConfig `json:"logging,omitempty" toml:"logging,omitempty" yaml:"logging,omitempty"`
}

// ServerConfig holds transport settings. Durations are Go duration strings ("10s").
type ServerConfig struct {
	Address                 *string `json:"address,omitempty" toml:"address,omitempty" yaml:"address,omitempty"`
	ReadTimeout             *string `json:"read_timeout,omitempty" toml:"read_timeout,omitempty" yaml:"read_timeout,omitempty"`
	WriteTimeout            *string `json:"write_timeout,omitempty" toml:"write_timeout,omitempty" yaml:"write_timeout,omitempty"`
	IdleTimeout             *string `json:"idle_timeout,omitempty" toml:"idle_timeout,omitempty" yaml:"idle_timeout,omitempty"`
	GracefulShutdownTimeout *string `json:"graceful_shutdown_timeout,omitempty" toml:"graceful_shutdown_timeout,omitempty" yaml:"graceful_shutdown_timeout,omitempty"`
	// EnableH2C serves cleartext HTTP/2 (prior knowledge or Upgrade) next to HTTP/1.1.
	EnableH2C *bool `json:"enable_h2c,omitempty" toml:"enable_h2c,omitempty" yaml:"enable_h2c,omitempty"`
}

// RoutingConfig contains the list of routes.
type RoutingConfig struct {
	Routes []Route `json:"routes,omitempty" toml:"routes,omitempty" yaml:"routes,omitempty"`
}

// Route mounts a static file tree under a path pattern.
type Route struct {
	PathPattern string                  `json:"path_pattern" toml:"path_pattern" yaml:"path_pattern"`
	MatchType   MatchType               `json:"match_type" toml:"match_type" yaml:"match_type"`
	Static      *StaticFileServerConfig `json:"static,omitempty" toml:"static,omitempty" yaml:"static,omitempty"`
}

// LoggingConfig holds logging configurations.
type LoggingConfig struct {
	LogLevel  LogLevel         `json:"log_level,omitempty" toml:"log_level,omitempty" yaml:"log_level,omitempty"`
	AccessLog *AccessLogConfig `json:"access_log,omitempty" toml:"access_log,omitempty" yaml:"access_log,omitempty"`
	ErrorLog  *ErrorLogConfig  `json:"error_log,omitempty" toml:"error_log,omitempty" yaml:"error_log,omitempty"`
}

// AccessLogConfig configures access logging.
type AccessLogConfig struct {
	Enabled        *bool    `json:"enabled,omitempty" toml:"enabled,omitempty" yaml:"enabled,omitempty"`
	Target         *string  `json:"target,omitempty" toml:"target,omitempty" yaml:"target,omitempty"`
	Format         string   `json:"format,omitempty" toml:"format,omitempty" yaml:"format,omitempty"`
	TrustedProxies []string `json:"trusted_proxies,omitempty" toml:"trusted_proxies,omitempty" yaml:"trusted_proxies,omitempty"`
	RealIPHeader   *string  `json:"real_ip_header,omitempty" toml:"real_ip_header,omitempty" yaml:"real_ip_header,omitempty"`
}

// ErrorLogConfig configures error logging.
type ErrorLogConfig struct {
	Target *string `json:"target,omitempty" toml:"target,omitempty" yaml:"target,omitempty"`
	Format string  `json:"format,omitempty" toml:"format,omitempty" yaml:"format,omitempty"`
}

// StaticFileServerConfig configures one static file handler.
type StaticFileServerConfig struct {
	DocumentRoot  string             `json:"document_root" toml:"document_root" yaml:"document_root"`
	IndexFile     string             `json:"index_file,omitempty" toml:"index_file,omitempty" yaml:"index_file,omitempty"`
	ServerName    string             `json:"server_name,omitempty" toml:"server_name,omitempty" yaml:"server_name,omitempty"`
	MimeTypesMap  map[string]string  `json:"mime_types,omitempty" toml:"mime_types,omitempty" yaml:"mime_types,omitempty"`
	MimeTypesPath *string            `json:"mime_types_path,omitempty" toml:"mime_types_path,omitempty" yaml:"mime_types_path,omitempty"`
	Compression   *CompressionConfig `json:"compression,omitempty" toml:"compression,omitempty" yaml:"compression,omitempty"`
}

// CompressionConfig controls deflate content coding.
type CompressionConfig struct {
	Enabled *bool `json:"enabled,omitempty" toml:"enabled,omitempty" yaml:"enabled,omitempty"`
	// Level is a flate level: -2 (Huffman only), -1 (default), 0 (store) through 9.
	Level *int `json:"level,omitempty" toml:"level,omitempty" yaml:"level,omitempty"`
	// MinSize is a human readable byte size ("1KB", "512 B"); smaller bodies are sent as identity.
	MinSize string `json:"min_size,omitempty" toml:"min_size,omitempty" yaml:"min_size,omitempty"`

	// MinSizeBytes is MinSize parsed during validation.
	MinSizeBytes uint64 `json:"-" toml:"-" yaml:"-"`
}
