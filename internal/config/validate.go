package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
)

const (
	defaultServerAddress           = ":13666"
	defaultReadTimeout             = "30s"
	defaultWriteTimeout            = "60s"
	defaultIdleTimeout             = "120s"
	defaultGracefulShutdownTimeout = "30s"
	defaultEnableH2C               = true

	defaultDocumentRoot      = "."
	defaultIndexFile         = "index.html"
	defaultCompressionLevel  = -1
	defaultCompressionMin    = "0"
	minCompressionLevel      = -2
	maxCompressionLevel      = 9
	defaultCompressionOnFlag = true

	defaultLogLevel              = LogLevelInfo
	defaultAccessLogEnabled      = true
	defaultAccessLogTarget       = "stdout"
	defaultAccessLogFormat       = LogFormatJSON
	defaultAccessLogRealIPHeader = "X-Forwarded-For"
	defaultErrorLogTarget        = "stderr"
	defaultErrorLogFormat        = LogFormatJSON
)

// DefaultServerName is the Server header value used when a route does not set one.
var DefaultServerName = "kawaii/" + Version

// ConfigError describes a failure tied to a specific configuration file.
type ConfigError struct {
	FilePath string
	Message  string
	Err      error
}

func (e *ConfigError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("config error in %s: %s: %v", e.FilePath, e.Message, e.Err)
	}
	return fmt.Sprintf("config error in %s: %s", e.FilePath, e.Message)
}

func (e *ConfigError) Unwrap() error { return e.Err }

// IsFilePath reports whether a log target names a file rather than a standard stream.
func IsFilePath(target string) bool {
	return target != "stdout" && target != "stderr"
}

// ApplyDefaults fills every unset optional field. An empty route table becomes a
// single catch-all route serving the current directory.
func ApplyDefaults(cfg *Config) {
	if cfg.Server == nil {
		cfg.Server = &ServerConfig{}
	}
	s := cfg.Server
	if s.Address == nil {
		s.Address = strPtr(defaultServerAddress)
	}
	if s.ReadTimeout == nil {
		s.ReadTimeout = strPtr(defaultReadTimeout)
	}
	if s.WriteTimeout == nil {
		s.WriteTimeout = strPtr(defaultWriteTimeout)
	}
	if s.IdleTimeout == nil {
		s.IdleTimeout = strPtr(defaultIdleTimeout)
	}
	if s.GracefulShutdownTimeout == nil {
		s.GracefulShutdownTimeout = strPtr(defaultGracefulShutdownTimeout)
	}
	if s.EnableH2C == nil {
		s.EnableH2C = boolPtr(defaultEnableH2C)
	}

	if cfg.Routing == nil {
		cfg.Routing = &RoutingConfig{}
	}
	if len(cfg.Routing.Routes) == 0 {
		cfg.Routing.Routes = []Route{{
			PathPattern: "/",
			MatchType:   MatchTypePrefix,
			Static:      &StaticFileServerConfig{DocumentRoot: defaultDocumentRoot},
		}}
	}
	for i := range cfg.Routing.Routes {
		if st := cfg.Routing.Routes[i].Static; st != nil {
			applyStaticDefaults(st)
		}
	}

	if cfg.Logging == nil {
		cfg.Logging = &LoggingConfig{}
	}
	lc := cfg.Logging
	if lc.LogLevel == "" {
		lc.LogLevel = defaultLogLevel
	}
	if lc.AccessLog == nil {
		lc.AccessLog = &AccessLogConfig{}
	}
	if lc.AccessLog.Enabled == nil {
		lc.AccessLog.Enabled = boolPtr(defaultAccessLogEnabled)
	}
	if lc.AccessLog.Target == nil {
		lc.AccessLog.Target = strPtr(defaultAccessLogTarget)
	}
	if lc.AccessLog.Format == "" {
		lc.AccessLog.Format = defaultAccessLogFormat
	}
	if lc.AccessLog.TrustedProxies == nil {
		lc.AccessLog.TrustedProxies = []string{}
	}
	if lc.AccessLog.RealIPHeader == nil {
		lc.AccessLog.RealIPHeader = strPtr(defaultAccessLogRealIPHeader)
	}
	if lc.ErrorLog == nil {
		lc.ErrorLog = &ErrorLogConfig{}
	}
	if lc.ErrorLog.Target == nil {
		lc.ErrorLog.Target = strPtr(defaultErrorLogTarget)
	}
	if lc.ErrorLog.Format == "" {
		lc.ErrorLog.Format = defaultErrorLogFormat
	}
}

func applyStaticDefaults(st *StaticFileServerConfig) {
	if st.IndexFile == "" {
		st.IndexFile = defaultIndexFile
	}
	if st.ServerName == "" {
		st.ServerName = DefaultServerName
	}
	if st.Compression == nil {
		st.Compression = &CompressionConfig{}
	}
	if st.Compression.Enabled == nil {
		st.Compression.Enabled = boolPtr(defaultCompressionOnFlag)
	}
	if st.Compression.Level == nil {
		level := defaultCompressionLevel
		st.Compression.Level = &level
	}
	if st.Compression.MinSize == "" {
		st.Compression.MinSize = defaultCompressionMin
	}
}

// Validate checks a defaulted configuration. Relative document roots and MIME
// type files are resolved against baseDir and rewritten as absolute paths.
func Validate(cfg *Config, baseDir string) error {
	if cfg == nil {
		return fmt.Errorf("configuration cannot be nil")
	}
	if err := validateServer(cfg.Server); err != nil {
		return err
	}
	if err := validateRouting(cfg.Routing, baseDir); err != nil {
		return err
	}
	return validateLogging(cfg.Logging)
}

func validateServer(s *ServerConfig) error {
	if s == nil {
		return fmt.Errorf("server section is missing")
	}
	if s.Address == nil || *s.Address == "" {
		return fmt.Errorf("server.address cannot be an empty string")
	}
	durations := []struct {
		name  string
		value *string
	}{
		{"server.read_timeout", s.ReadTimeout},
		{"server.write_timeout", s.WriteTimeout},
		{"server.idle_timeout", s.IdleTimeout},
		{"server.graceful_shutdown_timeout", s.GracefulShutdownTimeout},
	}
	for _, d := range durations {
		if err := validatePositiveDuration(d.name, d.value); err != nil {
			return err
		}
	}
	return nil
}

func validatePositiveDuration(name string, value *string) error {
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
	if d <= 0 {
		return fmt.Errorf("%s must be a positive duration, got '%s'", name, *value)
	}
	return nil
}

func validateRouting(rc *RoutingConfig, baseDir string) error {
	if rc == nil || len(rc.Routes) == 0 {
		return fmt.Errorf("routing.routes must contain at least one route")
	}
	seen := make(map[string]bool, len(rc.Routes))
	for i := range rc.Routes {
		route := &rc.Routes[i]
		field := fmt.Sprintf("routing.routes[%d]", i)

		if !strings.HasPrefix(route.PathPattern, "/") {
			return fmt.Errorf("%s.path_pattern must start with '/', got %q", field, route.PathPattern)
		}
		switch route.MatchType {
		case MatchTypeExact, MatchTypePrefix:
		default:
			return fmt.Errorf("%s.match_type must be %q or %q, got %q", field, MatchTypeExact, MatchTypePrefix, route.MatchType)
		}
		key := string(route.MatchType) + " " + route.PathPattern
		if seen[key] {
			return fmt.Errorf("%s duplicates path_pattern %q with match_type %q", field, route.PathPattern, route.MatchType)
		}
		seen[key] = true

		if route.Static == nil {
			return fmt.Errorf("%s.static is required", field)
		}
		if err := validateStatic(route.Static, baseDir, field+".static"); err != nil {
			return err
		}
	}
	return nil
}

func validateStatic(st *StaticFileServerConfig, baseDir, field string) error {
	if st.DocumentRoot == "" {
		return fmt.Errorf("%s.document_root cannot be empty", field)
	}
	root := st.DocumentRoot
	if !filepath.IsAbs(root) {
		root = filepath.Join(baseDir, root)
	}
	root, err := filepath.Abs(root)
	if err != nil {
		return fmt.Errorf("%s.document_root %q cannot be made absolute: %w", field, st.DocumentRoot, err)
	}
	info, err := os.Stat(root)
	if err != nil {
		return fmt.Errorf("%s.document_root %q is not accessible: %w", field, root, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("%s.document_root %q is not a directory", field, root)
	}
	st.DocumentRoot = filepath.Clean(root)

	if st.IndexFile == "" || st.IndexFile == "." || st.IndexFile == ".." ||
		strings.ContainsAny(st.IndexFile, `/\`) {
		return fmt.Errorf("%s.index_file must be a plain file name, got %q", field, st.IndexFile)
	}

	normalized := make(map[string]string, len(st.MimeTypesMap))
	for ext, mimeType := range st.MimeTypesMap {
		if !strings.HasPrefix(ext, ".") {
			return fmt.Errorf("%s.mime_types key %q must start with '.'", field, ext)
		}
		if mimeType == "" {
			return fmt.Errorf("%s.mime_types value for %q cannot be empty", field, ext)
		}
		normalized[strings.ToLower(ext)] = mimeType
	}
	if st.MimeTypesMap != nil {
		st.MimeTypesMap = normalized
	}
	if st.MimeTypesPath != nil {
		if *st.MimeTypesPath == "" {
			return fmt.Errorf("%s.mime_types_path cannot be an empty string if specified", field)
		}
		if !filepath.IsAbs(*st.MimeTypesPath) {
			resolved := filepath.Join(baseDir, *st.MimeTypesPath)
			st.MimeTypesPath = &resolved
		}
	}

	if c := st.Compression; c != nil {
		if c.Level != nil && (*c.Level < minCompressionLevel || *c.Level > maxCompressionLevel) {
			return fmt.Errorf("%s.compression.level must be between %d and %d, got %d",
				field, minCompressionLevel, maxCompressionLevel, *c.Level)
		}
		size, err := humanize.ParseBytes(c.MinSize)
		if err != nil {
			return fmt.Errorf("invalid format for %s.compression.min_size '%s': %w", field, c.MinSize, err)
		}
		c.MinSizeBytes = size
	}
	return nil
}

func validateLogging(lc *LoggingConfig) error {
	if lc == nil {
		return fmt.Errorf("logging section is missing")
	}
	switch lc.LogLevel {
	case LogLevelDebug, LogLevelInfo, LogLevelWarning, LogLevelError:
	default:
		return fmt.Errorf("logging.log_level must be one of DEBUG, INFO, WARNING, ERROR, got %q", lc.LogLevel)
	}
	if al := lc.AccessLog; al != nil {
		if err := validateLogTarget("logging.access_log.target", al.Target); err != nil {
			return err
		}
		if err := validateLogFormat("logging.access_log.format", al.Format); err != nil {
			return err
		}
		if al.RealIPHeader != nil && *al.RealIPHeader == "" {
			return fmt.Errorf("logging.access_log.real_ip_header cannot be an empty string if specified")
		}
	}
	if el := lc.ErrorLog; el != nil {
		if err := validateLogTarget("logging.error_log.target", el.Target); err != nil {
			return err
		}
		if err := validateLogFormat("logging.error_log.format", el.Format); err != nil {
			return err
		}
	}
	return nil
}

func validateLogTarget(field string, target *string) error {
	if target == nil {
		return nil
	}
	if *target == "" {
		return fmt.Errorf("%s cannot be empty", field)
	}
	if IsFilePath(*target) && !filepath.IsAbs(*target) {
		return fmt.Errorf("%s must be 'stdout', 'stderr', or an absolute file path, got %q", field, *target)
	}
	return nil
}

func validateLogFormat(field, format string) error {
	switch format {
	case LogFormatJSON, LogFormatConsole:
		return nil
	}
	return fmt.Errorf("%s must be %q or %q, got %q", field, LogFormatJSON, LogFormatConsole, format)
}

// DurationValue returns the parsed duration of a validated duration string, or 0 if unset.
func DurationValue(s *string) time.Duration {
	if s == nil {
		return 0
	}
	d, err := time.ParseDuration(*s)
	if err != nil {
		return 0
	}
	return d
}

func strPtr(s string) *string { return &s }
func boolPtr(b bool) *bool    { return &b }
