// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/pflag"
	"golang.org/x/term"

	"github.com/bureau-foundation/liveprobe/endpoint"
	"github.com/bureau-foundation/liveprobe/lib/config"
	"github.com/bureau-foundation/liveprobe/protocol"
)

// commonFlags are accepted by every subcommand.
type commonFlags struct {
	configPath string
	verbose    bool
}

func (f *commonFlags) add(flagSet *pflag.FlagSet) {
	flagSet.StringVar(&f.configPath, "config", "", "path to liveprobe.yaml (default: $"+config.PathVariable+", then built-in defaults)")
	flagSet.BoolVarP(&f.verbose, "verbose", "v", false, "log at debug level")
}

// setup resolves the configuration and builds the logger.
func (f *commonFlags) setup(out streams) (*config.Config, *slog.Logger, error) {
	cfg, err := config.Resolve(f.configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("loading configuration: %w", err)
	}
	level := slog.LevelInfo
	if f.verbose {
		level = slog.LevelDebug
	}
	return cfg, newLogger(out.stderr, level), nil
}

// newLogger uses a text handler when w is a terminal and a JSON
// handler otherwise.
func newLogger(w io.Writer, level slog.Level) *slog.Logger {
	options := &slog.HandlerOptions{Level: level}
	if file, ok := w.(*os.File); ok && term.IsTerminal(int(file.Fd())) {
		return slog.New(slog.NewTextHandler(w, options))
	}
	return slog.New(slog.NewJSONHandler(w, options))
}

// endpointOptions maps the configuration onto endpoint options.
func endpointOptions(cfg *config.Config, logger *slog.Logger) (endpoint.Options, error) {
	compression, err := cfg.Compression()
	if err != nil {
		return endpoint.Options{}, err
	}
	policy := protocol.LogPolicy(logger)
	if cfg.Strict() {
		policy = protocol.StrictPolicy
	}
	return endpoint.Options{
		Compression:     compression,
		MinCompressSize: cfg.Codec.MinCompressSize,
		Policy:          policy,
		StatsInterval:   cfg.Endpoint.StatsInterval,
		Logger:          logger,
	}, nil
}
