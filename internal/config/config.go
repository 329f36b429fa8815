// Package config resolves the settings that tune a spec run.
//
// Settings are layered: built-in defaults, then a config file, then
// environment variables. Callers apply explicit options on top of the
// result. Files ending in .cue are validated against an embedded CUE
// schema; every other file is read as YAML with unknown fields rejected.
package config

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"gopkg.in/yaml.v3"
)

// Environment variables read by Resolve and ApplyEnv.
const (
	EnvConfig        = "GWT_CONFIG"
	EnvTimeout       = "GWT_TIMEOUT"
	EnvVerbose       = "GWT_VERBOSE"
	EnvLogLevel      = "GWT_LOG_LEVEL"
	EnvImplicitGiven = "GWT_IMPLICIT_GIVEN"
)

// DefaultTimeout bounds each phase of a test instance.
const DefaultTimeout = 5 * time.Second

//go:embed schema.cue
var schemaSource string

// Config holds resolved settings.
type Config struct {
	// Timeout bounds each phase (setup, body, teardown) of a test instance.
	Timeout time.Duration `yaml:"timeout" json:"timeout"`

	// Verbose routes step logs to the test log.
	Verbose bool `yaml:"verbose" json:"verbose"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `yaml:"log_level" json:"log_level"`

	// ImplicitGiven lets a leading And act as Given instead of failing.
	ImplicitGiven bool `yaml:"implicit_given" json:"implicit_given"`
}

// fileConfig mirrors Config with optional fields so a file only
// overrides what it names.
type fileConfig struct {
	Timeout       *string `yaml:"timeout" json:"timeout,omitempty"`
	Verbose       *bool   `yaml:"verbose" json:"verbose,omitempty"`
	LogLevel      *string `yaml:"log_level" json:"log_level,omitempty"`
	ImplicitGiven *bool   `yaml:"implicit_given" json:"implicit_given,omitempty"`
}

// Default returns the built-in settings.
func Default() Config {
	return Config{Timeout: DefaultTimeout, LogLevel: "info"}
}

// Resolve layers defaults, the config file and the environment. An empty
// path falls back to $GWT_CONFIG; if that is empty too, no file is read.
// A nil getenv reads the process environment.
func Resolve(path string, getenv func(string) string) (Config, error) {
	if getenv == nil {
		getenv = os.Getenv
	}
	cfg := Default()
	if path == "" {
		path = getenv(EnvConfig)
	}
	if path != "" {
		if err := cfg.ApplyFile(path); err != nil {
			return Config{}, err
		}
	}
	if err := cfg.ApplyEnv(getenv); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Load reads a config file over the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	if err := cfg.ApplyFile(path); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// ApplyFile overlays the settings named in the file at path.
func (c *Config) ApplyFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	var fc fileConfig
	switch strings.ToLower(filepath.Ext(path)) {
	case ".cue":
		fc, err = decodeCUE(path, data)
	default:
		fc, err = decodeYAML(data)
	}
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}

	next := *c
	if fc.Timeout != nil {
		d, err := time.ParseDuration(*fc.Timeout)
		if err != nil {
			return fmt.Errorf("%s: timeout: %w", path, err)
		}
		next.Timeout = d
	}
	if fc.Verbose != nil {
		next.Verbose = *fc.Verbose
	}
	if fc.LogLevel != nil {
		next.LogLevel = *fc.LogLevel
	}
	if fc.ImplicitGiven != nil {
		next.ImplicitGiven = *fc.ImplicitGiven
	}
	if err := next.Validate(); err != nil {
		return fmt.Errorf("invalid config %s: %w", path, err)
	}
	*c = next
	return nil
}

// ApplyEnv overlays the GWT_* environment variables that are set.
func (c *Config) ApplyEnv(getenv func(string) string) error {
	next := *c
	if v := getenv(EnvTimeout); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvTimeout, err)
		}
		next.Timeout = d
	}
	if v := getenv(EnvVerbose); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvVerbose, err)
		}
		next.Verbose = b
	}
	if v := getenv(EnvLogLevel); v != "" {
		next.LogLevel = strings.ToLower(v)
	}
	if v := getenv(EnvImplicitGiven); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvImplicitGiven, err)
		}
		next.ImplicitGiven = b
	}
	if err := next.Validate(); err != nil {
		return fmt.Errorf("invalid environment: %w", err)
	}
	*c = next
	return nil
}

// Validate checks that every setting is usable.
func (c Config) Validate() error {
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive, got %s", c.Timeout)
	}
	if _, err := ParseLevel(c.LogLevel); err != nil {
		return err
	}
	return nil
}

// Level returns LogLevel as an slog level, defaulting to info.
func (c Config) Level() slog.Level {
	l, err := ParseLevel(c.LogLevel)
	if err != nil {
		return slog.LevelInfo
	}
	return l
}

// ParseLevel converts a level name to an slog level.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return 0, fmt.Errorf("unknown log level %q", s)
}

func decodeYAML(data []byte) (fileConfig, error) {
	var fc fileConfig
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&fc); err != nil {
		if errors.Is(err, io.EOF) {
			return fc, nil
		}
		return fileConfig{}, fmt.Errorf("failed to parse YAML: %w", err)
	}
	return fc, nil
}

func decodeCUE(path string, data []byte) (fileConfig, error) {
	ctx := cuecontext.New()
	schema := ctx.CompileString(schemaSource, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return fileConfig{}, fmt.Errorf("building config schema: %w", err)
	}

	value := ctx.CompileBytes(data, cue.Filename(path))
	if err := value.Err(); err != nil {
		return fileConfig{}, fmt.Errorf("failed to parse CUE: %w", err)
	}

	unified := schema.LookupPath(cue.ParsePath("#Config")).Unify(value)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return fileConfig{}, fmt.Errorf("config does not match schema: %w", err)
	}

	var fc fileConfig
	if err := unified.Decode(&fc); err != nil {
		return fileConfig{}, fmt.Errorf("decoding CUE config: %w", err)
	}
	return fc, nil
}
