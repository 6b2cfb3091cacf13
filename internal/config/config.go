// Package config loads storage peer settings.
//
// Settings come from defaults, then an optional YAML or CUE file, then the
// environment. Command-line flags are applied last by the caller.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"gopkg.in/yaml.v3"
)

// EnvDataDir names the environment variable that overrides the data dir.
const EnvDataDir = "REPO_ROOT"

// ErrUnsupportedFormat is returned for config files that are neither YAML
// nor CUE.
var ErrUnsupportedFormat = errors.New("unsupported config format")

// Config holds every runtime setting.
type Config struct {
	DataDir          string
	FileListen       string   // gRPC file server address; empty disables it
	StatusListen     string   // status HTTP address; empty disables it
	FilePeers        []string // remote gRPC file servers, tried in order
	FetchConcurrency int
	FetchRate        float64 // remote fetches per second; 0 means unlimited
	FetchBurst       int
	PollInterval     time.Duration
	Heartbeat        time.Duration // 0 disables heartbeats
	LogLevel         string
	LogFormat        string
}

// Default returns the built-in settings.
func Default() Config {
	return Config{
		DataDir:          "./.data",
		FetchConcurrency: 4,
		FetchRate:        0,
		FetchBurst:       1,
		PollInterval:     time.Second,
		LogLevel:         "info",
		LogFormat:        "text",
	}
}

// fileConfig mirrors Config for decoding. Nil fields leave the current
// value untouched.
type fileConfig struct {
	DataDir          *string  `yaml:"data_dir" json:"data_dir"`
	FileListen       *string  `yaml:"file_listen" json:"file_listen"`
	StatusListen     *string  `yaml:"status_listen" json:"status_listen"`
	FilePeers        []string `yaml:"file_peers" json:"file_peers"`
	FetchConcurrency *int     `yaml:"fetch_concurrency" json:"fetch_concurrency"`
	FetchRate        *float64 `yaml:"fetch_rate" json:"fetch_rate"`
	FetchBurst       *int     `yaml:"fetch_burst" json:"fetch_burst"`
	PollInterval     *string  `yaml:"poll_interval" json:"poll_interval"`
	Heartbeat        *string  `yaml:"heartbeat" json:"heartbeat"`
	LogLevel         *string  `yaml:"log_level" json:"log_level"`
	LogFormat        *string  `yaml:"log_format" json:"log_format"`
}

// Load returns the defaults overlaid by the file at path (if path is not
// empty) and by the environment.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		if err := cfg.LoadFile(path); err != nil {
			return Config{}, err
		}
	}
	cfg.ApplyEnv(os.Getenv)
	return cfg, nil
}

// LoadFile overlays the settings in path. The format follows the
// extension: .yaml, .yml or .cue.
func (c *Config) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}

	var fc fileConfig
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &fc); err != nil {
			return fmt.Errorf("parse %s: %w", path, err)
		}
	case ".cue":
		if err := decodeCUE(path, data, &fc); err != nil {
			return err
		}
	default:
		return fmt.Errorf("%s: %w", path, ErrUnsupportedFormat)
	}
	return c.overlay(fc)
}

// decodeCUE evaluates a CUE file and decodes its concrete value. The file
// may constrain its own fields.
func decodeCUE(path string, data []byte, out *fileConfig) error {
	ctx := cuecontext.New()
	v := ctx.CompileBytes(data, cue.Filename(path))
	if err := v.Err(); err != nil {
		return fmt.Errorf("compile %s: %w", path, err)
	}
	if err := v.Validate(cue.Concrete(true)); err != nil {
		return fmt.Errorf("validate %s: %w", path, err)
	}
	if err := v.Decode(out); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

func (c *Config) overlay(fc fileConfig) error {
	setString(&c.DataDir, fc.DataDir)
	setString(&c.FileListen, fc.FileListen)
	setString(&c.StatusListen, fc.StatusListen)
	setString(&c.LogLevel, fc.LogLevel)
	setString(&c.LogFormat, fc.LogFormat)
	if fc.FilePeers != nil {
		c.FilePeers = fc.FilePeers
	}
	if fc.FetchConcurrency != nil {
		c.FetchConcurrency = *fc.FetchConcurrency
	}
	if fc.FetchRate != nil {
		c.FetchRate = *fc.FetchRate
	}
	if fc.FetchBurst != nil {
		c.FetchBurst = *fc.FetchBurst
	}
	if err := setDuration(&c.PollInterval, fc.PollInterval, "poll_interval"); err != nil {
		return err
	}
	return setDuration(&c.Heartbeat, fc.Heartbeat, "heartbeat")
}

// ApplyEnv overlays environment settings read through getenv.
func (c *Config) ApplyEnv(getenv func(string) string) {
	if dir := getenv(EnvDataDir); dir != "" {
		c.DataDir = dir
	}
}

// Validate reports the first invalid setting.
func (c Config) Validate() error {
	switch {
	case c.DataDir == "":
		return errors.New("data dir must not be empty")
	case c.FetchConcurrency < 1:
		return fmt.Errorf("fetch concurrency must be positive, got %d", c.FetchConcurrency)
	case c.FetchRate < 0:
		return fmt.Errorf("fetch rate must not be negative, got %v", c.FetchRate)
	case c.FetchBurst < 1:
		return fmt.Errorf("fetch burst must be positive, got %d", c.FetchBurst)
	case c.PollInterval <= 0:
		return fmt.Errorf("poll interval must be positive, got %s", c.PollInterval)
	case c.Heartbeat < 0:
		return fmt.Errorf("heartbeat must not be negative, got %s", c.Heartbeat)
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log level %q", c.LogLevel)
	}
	switch c.LogFormat {
	case "text", "json":
	default:
		return fmt.Errorf("invalid log format %q", c.LogFormat)
	}
	return nil
}

// Path returns name inside the data dir.
func (c Config) Path(name string) string {
	return filepath.Join(c.DataDir, name)
}

func setString(dst *string, v *string) {
	if v != nil {
		*dst = *v
	}
}

func setDuration(dst *time.Duration, v *string, field string) error {
	if v == nil {
		return nil
	}
	d, err := time.ParseDuration(*v)
	if err != nil {
		return fmt.Errorf("%s: %w", field, err)
	}
	*dst = d
	return nil
}
