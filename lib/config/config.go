// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"

	"github.com/bureau-foundation/liveprobe/protocol"
)

// PathVariable names the environment variable Load reads the config
// file path from.
const PathVariable = "LIVEPROBE_CONFIG"

// DisableCompressionVariable turns payload compression off when set to
// "1" (or "true"), whatever the config file says.
const DisableCompressionVariable = "LIVEPROBE_DISABLE_COMPRESSION"

// Environment represents the deployment environment.
type Environment string

const (
	// Development is for local development machines.
	Development Environment = "development"
	// Staging is for pre-production testing.
	Staging Environment = "staging"
	// Production is for production deployments.
	Production Environment = "production"
)

// Config is the liveprobe configuration.
type Config struct {
	// Environment identifies the deployment type (development, staging, production).
	Environment Environment `yaml:"environment"`

	// Endpoint configures the server or client endpoint.
	Endpoint EndpointConfig `yaml:"endpoint"`

	// Codec configures payload compression.
	Codec CodecConfig `yaml:"codec"`

	// Sync configures the property syncer.
	Sync SyncConfig `yaml:"sync"`

	// Per-environment overrides, applied after the base config is
	// loaded.
	Development *ConfigOverrides `yaml:"development,omitempty"`
	Staging     *ConfigOverrides `yaml:"staging,omitempty"`
	Production  *ConfigOverrides `yaml:"production,omitempty"`
}

// ConfigOverrides contains fields that can be overridden per environment.
type ConfigOverrides struct {
	Endpoint *EndpointConfig `yaml:"endpoint,omitempty"`
	Codec    *CodecConfig    `yaml:"codec,omitempty"`
	Sync     *SyncConfig     `yaml:"sync,omitempty"`
}

// EndpointConfig configures an endpoint.
type EndpointConfig struct {
	// Label is the server name advertised to clients.
	// Default: the executable name.
	Label string `yaml:"label"`

	// Listen is the address the server listens on, and the default
	// address clients dial.
	// Default: 127.0.0.1:11732
	Listen string `yaml:"listen"`

	// Strict makes protocol errors on the dispatch path panic instead
	// of being logged. Unset means strict in development and staging,
	// resilient in production.
	Strict *bool `yaml:"strict"`

	// StatsInterval is the transmission-rate sample period.
	// Default: 1s
	StatsInterval time.Duration `yaml:"stats_interval"`
}

// CodecConfig configures the frame codec. Both peers must agree.
type CodecConfig struct {
	// Compression is lz4, zstd, or none.
	// Default: lz4
	Compression string `yaml:"compression"`

	// MinCompressSize is the smallest payload that is compressed.
	// Default: 32
	MinCompressSize int `yaml:"min_compress_size"`
}

// SyncConfig configures the property syncer.
type SyncConfig struct {
	// RequestInitialSync makes the client ask for current values when
	// it starts watching an object.
	// Default: true
	RequestInitialSync bool `yaml:"request_initial_sync"`
}

// Default returns the default configuration. It is the base the config
// file is merged into, and the whole configuration when no file is
// given.
func Default() *Config {
	return &Config{
		Environment: Development,
		Endpoint: EndpointConfig{
			Listen:        fmt.Sprintf("127.0.0.1:%d", protocol.DefaultPort),
			StatsInterval: time.Second,
		},
		Codec: CodecConfig{
			Compression:     protocol.CompressionLZ4.String(),
			MinCompressSize: protocol.DefaultMinCompressSize,
		},
		Sync: SyncConfig{
			RequestInitialSync: true,
		},
	}
}

// Load loads configuration from the file named by LIVEPROBE_CONFIG.
// There is no search path: if the variable is not set, Load fails.
func Load() (*Config, error) {
	configPath := os.Getenv(PathVariable)
	if configPath == "" {
		return nil, fmt.Errorf("%s environment variable not set; "+
			"set it to the path of your liveprobe.yaml config file, or use --config flag", PathVariable)
	}
	return LoadFile(configPath)
}

// Resolve picks the configuration for a command: the file at path if
// given, else the file named by LIVEPROBE_CONFIG if set, else the
// defaults with the process environment applied.
func Resolve(path string) (*Config, error) {
	if path != "" {
		return LoadFile(path)
	}
	if os.Getenv(PathVariable) != "" {
		return Load()
	}
	cfg := Default()
	cfg.applyProcessEnvironment()
	return cfg, nil
}

// LoadFile loads configuration from a specific file path. YAML is the
// native format; files ending in .json or .jsonc are accepted too, with
// comments and trailing commas stripped.
func LoadFile(path string) (*Config, error) {
	cfg := Default()

	if err := cfg.loadFile(path); err != nil {
		return nil, err
	}

	// Apply environment-specific overrides (development/staging/production sections in the file).
	cfg.applyEnvironmentOverrides()
	cfg.applyProcessEnvironment()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// loadFile loads a single configuration file, merging into the current config.
func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".json", ".jsonc":
		// JSON is a subset of YAML, so the YAML decoder reads the
		// stripped document with the same field tags.
		data = jsonc.ToJSON(data)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parsing %s: %w", path, err)
	}
	return nil
}

// applyEnvironmentOverrides applies the environment-specific overrides.
func (c *Config) applyEnvironmentOverrides() {
	var overrides *ConfigOverrides

	switch c.Environment {
	case Development:
		overrides = c.Development
	case Staging:
		overrides = c.Staging
	case Production:
		overrides = c.Production
	}

	if overrides == nil {
		return
	}

	if overrides.Endpoint != nil {
		if overrides.Endpoint.Label != "" {
			c.Endpoint.Label = overrides.Endpoint.Label
		}
		if overrides.Endpoint.Listen != "" {
			c.Endpoint.Listen = overrides.Endpoint.Listen
		}
		if overrides.Endpoint.Strict != nil {
			c.Endpoint.Strict = overrides.Endpoint.Strict
		}
		if overrides.Endpoint.StatsInterval != 0 {
			c.Endpoint.StatsInterval = overrides.Endpoint.StatsInterval
		}
	}

	if overrides.Codec != nil {
		if overrides.Codec.Compression != "" {
			c.Codec.Compression = overrides.Codec.Compression
		}
		if overrides.Codec.MinCompressSize != 0 {
			c.Codec.MinCompressSize = overrides.Codec.MinCompressSize
		}
	}

	if overrides.Sync != nil {
		// RequestInitialSync is a bool, so we always apply it from overrides.
		c.Sync.RequestInitialSync = overrides.Sync.RequestInitialSync
	}
}

// applyProcessEnvironment applies the compression toggle, the only
// environment variable that overrides the file.
func (c *Config) applyProcessEnvironment() {
	switch strings.ToLower(os.Getenv(DisableCompressionVariable)) {
	case "1", "true", "yes":
		c.Codec.Compression = protocol.CompressionNone.String()
	}
}

// Strict reports whether dispatch-path protocol errors should panic.
func (c *Config) Strict() bool {
	if c.Endpoint.Strict != nil {
		return *c.Endpoint.Strict
	}
	return c.Environment != Production
}

// Compression returns the configured compression algorithm.
func (c *Config) Compression() (protocol.Compression, error) {
	return protocol.ParseCompression(c.Codec.Compression)
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []error

	if c.Environment != Development && c.Environment != Staging && c.Environment != Production {
		errs = append(errs, fmt.Errorf("invalid environment: %s", c.Environment))
	}

	if c.Endpoint.Listen == "" {
		errs = append(errs, fmt.Errorf("endpoint.listen is required"))
	}

	if c.Endpoint.StatsInterval <= 0 {
		errs = append(errs, fmt.Errorf("endpoint.stats_interval must be positive, got %s", c.Endpoint.StatsInterval))
	}

	if _, err := c.Compression(); err != nil {
		errs = append(errs, fmt.Errorf("codec.compression: %w", err))
	}

	if c.Codec.MinCompressSize < 0 {
		errs = append(errs, fmt.Errorf("codec.min_compress_size must not be negative, got %d", c.Codec.MinCompressSize))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}
