// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/liveprobe/endpoint"
	"github.com/bureau-foundation/liveprobe/lib/config"
	"github.com/bureau-foundation/liveprobe/propsync"
	"github.com/bureau-foundation/liveprobe/protocol"
	"github.com/bureau-foundation/liveprobe/transport"
)

func runServe(ctx context.Context, out streams, args []string) error {
	var common commonFlags
	var listen string
	var tick time.Duration

	flagSet := pflag.NewFlagSet("serve", pflag.ContinueOnError)
	common.add(flagSet)
	flagSet.StringVar(&listen, "listen", "", "address to listen on (default: endpoint.listen from the config)")
	flagSet.DurationVar(&tick, "tick", time.Second, "how often the demo counter increments (0 disables)")
	if done, err := parseFlags(flagSet, args, out, "serve [flags]"); done || err != nil {
		return err
	}
	if flagSet.NArg() > 0 {
		return usagef("serve takes no arguments, got %q", flagSet.Arg(0))
	}

	cfg, logger, err := common.setup(out)
	if err != nil {
		return err
	}
	if listen == "" {
		listen = cfg.Endpoint.Listen
	}
	listener, err := transport.NewTCPListener(listen, transport.ConnOptions{Logger: logger})
	if err != nil {
		return err
	}
	defer listener.Close()
	logger.Info("listening", "address", listener.Address())

	return serve(ctx, cfg, logger, listener, tick)
}

// serve hosts the demo object on a server endpoint and attaches each
// accepted connection in turn until ctx is cancelled.
func serve(ctx context.Context, cfg *config.Config, logger *slog.Logger, listener transport.Listener, tick time.Duration) error {
	options, err := endpointOptions(cfg, logger)
	if err != nil {
		return err
	}
	server, err := endpoint.NewServer(endpoint.ServerOptions{Options: options, Label: cfg.Endpoint.Label})
	if err != nil {
		return err
	}

	// The server owns the demo values, so it never asks a client for
	// them.
	syncer := propsync.New(server, propsync.Options{Policy: options.Policy, Logger: logger})
	if _, err := propsync.Serve(server, syncer); err != nil {
		server.Close()
		return err
	}
	demo := newDemoObject()
	demoAddress, err := server.RegisterObject(demoObjectName, demo)
	if err != nil {
		server.Close()
		return err
	}
	if err := syncer.AddObject(demoAddress, demo); err != nil {
		server.Close()
		return err
	}

	disconnected := make(chan struct{}, 1)
	server.OnDisconnect(func() {
		select {
		case disconnected <- struct{}{}:
		default:
		}
	})
	server.OnTransmissionRate(func(rate endpoint.TransmissionRate) {
		if rate.BytesRead == 0 && rate.BytesWritten == 0 {
			return
		}
		logger.Debug("transmission rate",
			"bytes_read", rate.BytesRead,
			"bytes_written", rate.BytesWritten,
			"interval", rate.Interval)
	})
	identity := server.Identity()
	logger.Info("server ready", "label", identity.Label, "key", identity.Key, "object_address", demoAddress)

	runContext, cancelRun := context.WithCancel(ctx)
	runDone := make(chan error, 1)
	go func() { runDone <- server.Run(runContext) }()
	defer func() {
		cancelRun()
		<-runDone
		server.Close()
	}()

	if tick > 0 {
		go incrementEvery(runContext, server, demo.Invoke, tick)
	}

	for {
		conn, err := listener.Accept(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("accepting: %w", err)
		}
		remote := conn.RemoteAddr().String()

		var attachErr error
		if err := server.Do(ctx, func() { attachErr = server.Attach(conn) }); err != nil {
			conn.Close()
			return nil
		}
		if attachErr != nil {
			logger.Warn("refusing connection", "remote_address", remote, "error", attachErr)
			conn.Close()
			continue
		}
		logger.Info("client connected", "remote_address", remote)

		select {
		case <-disconnected:
			logger.Info("client disconnected", "remote_address", remote)
		case <-ctx.Done():
			return nil
		}
	}
}

// incrementEvery calls the demo's increment method on the server's
// goroutine once per period.
func incrementEvery(ctx context.Context, server *endpoint.Server, invoke func(string, []protocol.Value) error, period time.Duration) {
	ticker := time.NewTicker(period)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			err := server.Do(ctx, func() {
				if err := invoke("increment", nil); err != nil {
					server.Report(err)
				}
			})
			if err != nil {
				return
			}
		}
	}
}
