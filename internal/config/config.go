// Package config loads the gloomd configuration file.
//
// The file is selected by the GLOOMD_CONFIG environment variable or the
// --config flag. There is no automatic discovery: without either, gloomd
// runs on Default().
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	gloom "github.com/jcalabro/gloomd"
)

// EnvVar names the environment variable holding the config file path.
const EnvVar = "GLOOMD_CONFIG"

// Config is the gloomd configuration.
type Config struct {
	// Listen is where the request socket is served.
	Listen ListenConfig `yaml:"listen"`

	// MetricsAddress is the TCP address of the Prometheus endpoint.
	// Empty disables it.
	MetricsAddress string `yaml:"metrics_address"`

	Log LogConfig `yaml:"log"`

	// Defaults are the filter parameters used when init omits them.
	Defaults DefaultsConfig `yaml:"defaults"`

	Limits LimitsConfig `yaml:"limits"`

	Timeouts TimeoutsConfig `yaml:"timeouts"`
}

// ListenConfig configures the request socket.
type ListenConfig struct {
	// Network is "unix" or "tcp".
	Network string `yaml:"network"`

	// Address is a socket path for unix, host:port for tcp.
	Address string `yaml:"address"`
}

// LogConfig configures structured logging.
type LogConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `yaml:"level"`

	// Format is "text" or "json".
	Format string `yaml:"format"`
}

// DefaultsConfig holds default filter parameters.
type DefaultsConfig struct {
	Capacity  uint64  `yaml:"capacity"`
	ErrorRate float64 `yaml:"error_rate"`
	Seed      uint64  `yaml:"seed"`
}

// LimitsConfig bounds resource use.
type LimitsConfig struct {
	// MaxRequestBytes caps the size of one decoded request. Restores
	// carry a whole compressed filter, so this must exceed the largest
	// dump a client will send.
	MaxRequestBytes int64 `yaml:"max_request_bytes"`

	// MaxFilters caps the number of live filters. Zero is unlimited.
	MaxFilters int `yaml:"max_filters"`
}

// TimeoutsConfig bounds each connection.
type TimeoutsConfig struct {
	Read  time.Duration `yaml:"read"`
	Write time.Duration `yaml:"write"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Listen: ListenConfig{
			Network: "unix",
			Address: "/run/gloomd/gloomd.sock",
		},
		MetricsAddress: "",
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Defaults: DefaultsConfig{
			Capacity:  gloom.DefaultCapacity,
			ErrorRate: gloom.DefaultErrorRate,
			Seed:      gloom.DefaultSeed,
		},
		Limits: LimitsConfig{
			MaxRequestBytes: 64 << 20,
			MaxFilters:      0,
		},
		Timeouts: TimeoutsConfig{
			Read:  30 * time.Second,
			Write: 10 * time.Second,
		},
	}
}

// Load reads the file named by GLOOMD_CONFIG. It returns Default() when
// the variable is unset.
func Load() (*Config, error) {
	path := os.Getenv(EnvVar)
	if path == "" {
		return Default(), nil
	}
	return LoadFile(path)
}

// LoadFile reads path over Default() and validates the result.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes YAML over Default() and validates the result. Unknown
// keys are rejected.
func Parse(data []byte) (*Config, error) {
	cfg := Default()

	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parsing: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	switch c.Listen.Network {
	case "unix", "tcp":
	default:
		return fmt.Errorf("listen.network must be unix or tcp, got %q", c.Listen.Network)
	}
	if c.Listen.Address == "" {
		return errors.New("listen.address is required")
	}

	if _, err := c.Log.SlogLevel(); err != nil {
		return err
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("log.format must be text or json, got %q", c.Log.Format)
	}

	if err := c.Defaults.Params().Validate(); err != nil {
		return fmt.Errorf("defaults: %w", err)
	}

	if c.Limits.MaxRequestBytes <= 0 {
		return fmt.Errorf("limits.max_request_bytes must be positive, got %d", c.Limits.MaxRequestBytes)
	}
	if c.Limits.MaxFilters < 0 {
		return fmt.Errorf("limits.max_filters must not be negative, got %d", c.Limits.MaxFilters)
	}

	if c.Timeouts.Read <= 0 || c.Timeouts.Write <= 0 {
		return fmt.Errorf("timeouts must be positive, got read=%s write=%s", c.Timeouts.Read, c.Timeouts.Write)
	}
	return nil
}

// Params converts the defaults section to filter parameters.
func (d DefaultsConfig) Params() gloom.Params {
	return gloom.Params{
		Capacity:  d.Capacity,
		ErrorRate: d.ErrorRate,
		Seed:      d.Seed,
	}
}

// SlogLevel parses Level.
func (l LogConfig) SlogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(l.Level)); err != nil {
		return 0, fmt.Errorf("log.level: %w", err)
	}
	return level, nil
}
