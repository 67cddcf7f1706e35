// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/bureau-foundation/liveprobe/protocol"
)

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	return path
}

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.Environment != Development {
		t.Errorf("expected environment=development, got %s", cfg.Environment)
	}
	if cfg.Endpoint.Listen != "127.0.0.1:11732" {
		t.Errorf("expected listen=127.0.0.1:11732, got %s", cfg.Endpoint.Listen)
	}
	if cfg.Endpoint.StatsInterval != time.Second {
		t.Errorf("expected stats_interval=1s, got %s", cfg.Endpoint.StatsInterval)
	}
	if cfg.Codec.MinCompressSize != 32 {
		t.Errorf("expected min_compress_size=32, got %d", cfg.Codec.MinCompressSize)
	}
	if compression, _ := cfg.Compression(); compression != protocol.CompressionLZ4 {
		t.Errorf("expected compression=lz4, got %s", compression)
	}
	if !cfg.Strict() {
		t.Error("expected strict error policy in development")
	}
	if !cfg.Sync.RequestInitialSync {
		t.Error("expected request_initial_sync=true")
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config is invalid: %v", err)
	}
}

func TestLoad_RequiresConfigVariable(t *testing.T) {
	t.Setenv(PathVariable, "")

	_, err := Load()
	if err == nil {
		t.Fatal("expected error when LIVEPROBE_CONFIG not set, got nil")
	}
	expectedMsg := "LIVEPROBE_CONFIG environment variable not set"
	if !strings.HasPrefix(err.Error(), expectedMsg) {
		t.Errorf("expected error message to start with %q, got %q", expectedMsg, err.Error())
	}
}

func TestLoad_WithConfigVariable(t *testing.T) {
	path := writeConfig(t, "liveprobe.yaml", `
environment: staging
endpoint:
  label: inspector
  listen: 0.0.0.0:9000
  stats_interval: 250ms
codec:
  compression: zstd
  min_compress_size: 128
sync:
  request_initial_sync: false
`)
	t.Setenv(PathVariable, path)
	t.Setenv(DisableCompressionVariable, "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if cfg.Environment != Staging {
		t.Errorf("expected environment=staging, got %s", cfg.Environment)
	}
	if cfg.Endpoint.Label != "inspector" || cfg.Endpoint.Listen != "0.0.0.0:9000" {
		t.Errorf("endpoint: got %+v", cfg.Endpoint)
	}
	if cfg.Endpoint.StatsInterval != 250*time.Millisecond {
		t.Errorf("expected stats_interval=250ms, got %s", cfg.Endpoint.StatsInterval)
	}
	if compression, _ := cfg.Compression(); compression != protocol.CompressionZstd {
		t.Errorf("expected compression=zstd, got %s", compression)
	}
	if cfg.Codec.MinCompressSize != 128 {
		t.Errorf("expected min_compress_size=128, got %d", cfg.Codec.MinCompressSize)
	}
	if cfg.Sync.RequestInitialSync {
		t.Error("expected request_initial_sync=false")
	}
}

func TestLoadFile_JSONC(t *testing.T) {
	path := writeConfig(t, "liveprobe.jsonc", `{
  // Comments and trailing commas are fine here.
  "environment": "production",
  "endpoint": {
    "label": "from-jsonc",
  },
  "codec": {"compression": "none"},
}`)
	t.Setenv(DisableCompressionVariable, "")

	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile() failed: %v", err)
	}
	if cfg.Endpoint.Label != "from-jsonc" {
		t.Errorf("expected label=from-jsonc, got %q", cfg.Endpoint.Label)
	}
	if compression, _ := cfg.Compression(); compression != protocol.CompressionNone {
		t.Errorf("expected compression=none, got %s", compression)
	}
	if cfg.Endpoint.Listen != "127.0.0.1:11732" {
		t.Errorf("unset field lost its default: listen=%q", cfg.Endpoint.Listen)
	}
}

func TestEnvironmentOverrides(t *testing.T) {
	t.Setenv(DisableCompressionVariable, "")

	tests := []struct {
		name        string
		content     string
		wantStrict  bool
		wantListen  string
		wantInitial bool
	}{
		{
			name:        "development keeps base values",
			content:     "environment: development\nproduction:\n  endpoint:\n    listen: 0.0.0.0:1\n",
			wantStrict:  true,
			wantListen:  "127.0.0.1:11732",
			wantInitial: true,
		},
		{
			name:        "production defaults to the resilient policy",
			content:     "environment: production\n",
			wantStrict:  false,
			wantListen:  "127.0.0.1:11732",
			wantInitial: true,
		},
		{
			name: "production section overrides",
			content: `
environment: production
endpoint:
  listen: 127.0.0.1:5000
production:
  endpoint:
    listen: 0.0.0.0:5000
    strict: true
  sync:
    request_initial_sync: false
`,
			wantStrict:  true,
			wantListen:  "0.0.0.0:5000",
			wantInitial: false,
		},
		{
			name:        "explicit strict false in development",
			content:     "environment: development\nendpoint:\n  strict: false\n",
			wantStrict:  false,
			wantListen:  "127.0.0.1:11732",
			wantInitial: true,
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			cfg, err := LoadFile(writeConfig(t, "liveprobe.yaml", test.content))
			if err != nil {
				t.Fatalf("LoadFile() failed: %v", err)
			}
			if cfg.Strict() != test.wantStrict {
				t.Errorf("Strict() = %v, want %v", cfg.Strict(), test.wantStrict)
			}
			if cfg.Endpoint.Listen != test.wantListen {
				t.Errorf("listen = %q, want %q", cfg.Endpoint.Listen, test.wantListen)
			}
			if cfg.Sync.RequestInitialSync != test.wantInitial {
				t.Errorf("request_initial_sync = %v, want %v", cfg.Sync.RequestInitialSync, test.wantInitial)
			}
		})
	}
}

func TestDisableCompressionVariable(t *testing.T) {
	path := writeConfig(t, "liveprobe.yaml", "codec:\n  compression: zstd\n")
	t.Setenv(DisableCompressionVariable, "1")

	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile() failed: %v", err)
	}
	if compression, _ := cfg.Compression(); compression != protocol.CompressionNone {
		t.Errorf("expected compression=none with %s=1, got %s", DisableCompressionVariable, compression)
	}

	t.Setenv(PathVariable, "")
	resolved, err := Resolve("")
	if err != nil {
		t.Fatalf("Resolve() failed: %v", err)
	}
	if compression, _ := resolved.Compression(); compression != protocol.CompressionNone {
		t.Errorf("Resolve without a file: expected compression=none, got %s", compression)
	}
}

func TestResolvePrefersFlag(t *testing.T) {
	t.Setenv(DisableCompressionVariable, "")
	fromVariable := writeConfig(t, "variable.yaml", "endpoint:\n  label: variable\n")
	fromFlag := writeConfig(t, "flag.yaml", "endpoint:\n  label: flag\n")
	t.Setenv(PathVariable, fromVariable)

	cfg, err := Resolve(fromFlag)
	if err != nil {
		t.Fatalf("Resolve(flag) failed: %v", err)
	}
	if cfg.Endpoint.Label != "flag" {
		t.Errorf("expected label=flag, got %q", cfg.Endpoint.Label)
	}

	cfg, err = Resolve("")
	if err != nil {
		t.Fatalf("Resolve() failed: %v", err)
	}
	if cfg.Endpoint.Label != "variable" {
		t.Errorf("expected label=variable, got %q", cfg.Endpoint.Label)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr string
	}{
		{"valid", func(*Config) {}, ""},
		{"bad environment", func(c *Config) { c.Environment = "moon" }, "invalid environment"},
		{"empty listen", func(c *Config) { c.Endpoint.Listen = "" }, "endpoint.listen is required"},
		{"zero interval", func(c *Config) { c.Endpoint.StatsInterval = 0 }, "stats_interval must be positive"},
		{"unknown compression", func(c *Config) { c.Codec.Compression = "brotli" }, "codec.compression"},
		{"negative threshold", func(c *Config) { c.Codec.MinCompressSize = -1 }, "min_compress_size"},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			cfg := Default()
			test.modify(cfg)
			err := cfg.Validate()
			if test.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() = %v, want nil", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), test.wantErr) {
				t.Errorf("Validate() = %v, want error containing %q", err, test.wantErr)
			}
		})
	}
}

func TestLoadFile_Errors(t *testing.T) {
	if _, err := LoadFile(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for a missing file")
	}
	if _, err := LoadFile(writeConfig(t, "broken.yaml", "endpoint: [unclosed\n")); err == nil {
		t.Error("expected error for malformed YAML")
	}
	if _, err := LoadFile(writeConfig(t, "invalid.yaml", "codec:\n  compression: brotli\n")); err == nil {
		t.Error("expected validation error for unknown compression")
	}
}
