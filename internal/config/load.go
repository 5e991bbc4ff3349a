package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// EnvPrefix is prepended to every environment override variable name.
const EnvPrefix = "KAWAII_"

// envOverrides lists the settings that may be overridden from the environment.
// Booleans are kept as strings so an unset variable is distinguishable from "false".
type envOverrides struct {
	Address      string `env:"ADDRESS"`
	DocumentRoot string `env:"DOCUMENT_ROOT"`
	LogLevel     string `env:"LOG_LEVEL"`
	Compression  string `env:"COMPRESSION"`
	EnableH2C    string `env:"H2C"`
}

// LoadConfig reads, parses, defaults and validates the configuration file at filePath.
// The format is chosen by extension (.json, .toml, .yaml/.yml) and auto-detected otherwise.
// Relative paths inside the file are resolved against the file's directory.
func LoadConfig(filePath string) (*Config, error) {
	return load(filePath, false, "")
}

// LoadConfigWithEnv behaves like LoadConfig but applies KAWAII_* environment
// overrides before defaults and validation. If envFile is non-empty it is loaded
// into the process environment first; a missing envFile is not an error.
func LoadConfigWithEnv(filePath string, envFile string) (*Config, error) {
	return load(filePath, true, envFile)
}

func load(filePath string, withEnv bool, envFile string) (*Config, error) {
	if filePath == "" {
		return nil, fmt.Errorf("configuration file path cannot be empty")
	}

	absPath, err := filepath.Abs(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve configuration file path %s: %w", filePath, err)
	}

	data, err := os.ReadFile(absPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read configuration file %s: %w", filePath, err)
	}

	cfg, err := ParseConfig(data, filepath.Ext(absPath))
	if err != nil {
		return nil, err
	}

	if withEnv {
		if err := ApplyEnvOverrides(cfg, envFile); err != nil {
			return nil, err
		}
	}

	ApplyDefaults(cfg)
	if err := Validate(cfg, filepath.Dir(absPath)); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ParseConfig decodes raw configuration bytes. ext selects the decoder (".json",
// ".toml", ".yaml", ".yml"); any other value tries JSON, TOML and YAML in turn.
// Unknown keys are rejected by every decoder.
func ParseConfig(data []byte, ext string) (*Config, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, fmt.Errorf("configuration file is empty")
	}

	switch strings.ToLower(ext) {
	case ".json":
		cfg, err := decodeJSON(data)
		if err != nil {
			return nil, fmt.Errorf("failed to parse JSON config: %w", err)
		}
		return cfg, nil
	case ".toml":
		cfg, err := decodeTOML(data)
		if err != nil {
			return nil, fmt.Errorf("failed to parse TOML config: %w", err)
		}
		return cfg, nil
	case ".yaml", ".yml":
		cfg, err := decodeYAML(data)
		if err != nil {
			return nil, fmt.Errorf("failed to parse YAML config: %w", err)
		}
		return cfg, nil
	}

	cfg, jsonErr := decodeJSON(data)
	if jsonErr == nil {
		return cfg, nil
	}
	cfg, tomlErr := decodeTOML(data)
	if tomlErr == nil {
		return cfg, nil
	}
	cfg, yamlErr := decodeYAML(data)
	if yamlErr == nil {
		return cfg, nil
	}
	return nil, fmt.Errorf("failed to auto-detect and parse config: JSON error: %v; TOML error: %v; YAML error: %v",
		jsonErr, tomlErr, yamlErr)
}

func decodeJSON(data []byte) (*Config, error) {
	var cfg Config
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func decodeTOML(data []byte) (*Config, error) {
	var cfg Config
	md, err := toml.Decode(string(data), &cfg)
	if err != nil {
		return nil, err
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, 0, len(undecoded))
		for _, k := range undecoded {
			keys = append(keys, k.String())
		}
		return nil, fmt.Errorf("unknown keys: %s", strings.Join(keys, ", "))
	}
	return &cfg, nil
}

func decodeYAML(data []byte) (*Config, error) {
	var cfg Config
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// ApplyEnvOverrides loads envFile (when given and present) and then copies any
// KAWAII_* variables over the values in cfg. KAWAII_DOCUMENT_ROOT replaces the
// document root of the catch-all "/" route, creating that route if needed.
// KAWAII_COMPRESSION applies to every static route, including the default
// catch-all route when the file declares none.
func ApplyEnvOverrides(cfg *Config, envFile string) error {
	if cfg == nil {
		return fmt.Errorf("configuration cannot be nil")
	}
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return &ConfigError{FilePath: envFile, Message: "failed to load environment file", Err: err}
		}
	}

	var ov envOverrides
	if err := env.ParseWithOptions(&ov, env.Options{Prefix: EnvPrefix}); err != nil {
		return fmt.Errorf("failed to parse environment overrides: %w", err)
	}

	if ov.Address != "" {
		if cfg.Server == nil {
			cfg.Server = &ServerConfig{}
		}
		addr := ov.Address
		cfg.Server.Address = &addr
	}
	if ov.EnableH2C != "" {
		enabled, err := strconv.ParseBool(ov.EnableH2C)
		if err != nil {
			return fmt.Errorf("invalid value for %sH2C %q: %w", EnvPrefix, ov.EnableH2C, err)
		}
		if cfg.Server == nil {
			cfg.Server = &ServerConfig{}
		}
		cfg.Server.EnableH2C = &enabled
	}
	if ov.LogLevel != "" {
		if cfg.Logging == nil {
			cfg.Logging = &LoggingConfig{}
		}
		cfg.Logging.LogLevel = LogLevel(strings.ToUpper(ov.LogLevel))
	}
	if ov.DocumentRoot != "" {
		if cfg.Routing == nil {
			cfg.Routing = &RoutingConfig{}
		}
		route := catchAllRoute(cfg.Routing)
		if route.Static == nil {
			route.Static = &StaticFileServerConfig{}
		}
		route.Static.DocumentRoot = ov.DocumentRoot
	}
	if ov.Compression != "" {
		enabled, err := strconv.ParseBool(ov.Compression)
		if err != nil {
			return fmt.Errorf("invalid value for %sCOMPRESSION %q: %w", EnvPrefix, ov.Compression, err)
		}
		if cfg.Routing == nil {
			cfg.Routing = &RoutingConfig{}
		}
		if len(cfg.Routing.Routes) == 0 {
			catchAllRoute(cfg.Routing).Static = &StaticFileServerConfig{DocumentRoot: defaultDocumentRoot}
		}
		for i := range cfg.Routing.Routes {
			st := cfg.Routing.Routes[i].Static
			if st == nil {
				continue
			}
			if st.Compression == nil {
				st.Compression = &CompressionConfig{}
			}
			st.Compression.Enabled = boolPtr(enabled)
		}
	}
	return nil
}

// catchAllRoute returns the "/" prefix route, appending one if absent.
func catchAllRoute(rc *RoutingConfig) *Route {
	for i := range rc.Routes {
		if rc.Routes[i].PathPattern == "/" && rc.Routes[i].MatchType == MatchTypePrefix {
			return &rc.Routes[i]
		}
	}
	rc.Routes = append(rc.Routes, Route{PathPattern: "/", MatchType: MatchTypePrefix})
	return &rc.Routes[len(rc.Routes)-1]
}

// NewStaticConfig builds a validated single-route configuration serving
// documentRoot under "/" on address. It backs the quick-start binary.
func NewStaticConfig(address, documentRoot string) (*Config, error) {
	cfg := &Config{
		Server: &ServerConfig{Address: &address},
		Routing: &RoutingConfig{Routes: []Route{{
			PathPattern: "/",
			MatchType:   MatchTypePrefix,
			Static:      &StaticFileServerConfig{DocumentRoot: documentRoot},
		}}},
	}
	ApplyDefaults(cfg)

	cwd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("failed to determine working directory: %w", err)
	}
	if err := Validate(cfg, cwd); err != nil {
		return nil, err
	}
	return cfg, nil
}
