// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/bureau-foundation/liveprobe/endpoint"
	"github.com/bureau-foundation/liveprobe/lib/config"
	"github.com/bureau-foundation/liveprobe/transport"
)

// dialTimeout bounds the TCP connect of the client subcommands.
const dialTimeout = 10 * time.Second

// clientSession is a connected client endpoint whose Run loop is
// running on its own goroutine. Everything that touches the client
// goes through client.Do or endpoint hooks.
type clientSession struct {
	client  *endpoint.Client
	address string

	// hangup receives once when the connection goes away, carrying the
	// handshake error if that was the cause.
	hangup chan error

	cancel context.CancelFunc
	done   chan error
}

// connect dials address, runs the client, and waits for the
// handshake. prepare runs before the connection is attached, so hooks
// it installs see the whole handshake.
func connect(ctx context.Context, cfg *config.Config, logger *slog.Logger, address string, prepare func(*endpoint.Client)) (*clientSession, error) {
	options, err := endpointOptions(cfg, logger)
	if err != nil {
		return nil, err
	}
	client, err := endpoint.NewClient(options)
	if err != nil {
		return nil, err
	}

	session := &clientSession{
		client:  client,
		address: address,
		hangup:  make(chan error, 1),
		done:    make(chan error, 1),
	}
	ready := make(chan struct{}, 1)
	client.OnReady(func() {
		select {
		case ready <- struct{}{}:
		default:
		}
	})
	client.OnDisconnect(func() {
		select {
		case session.hangup <- client.HandshakeError():
		default:
		}
	})
	if prepare != nil {
		prepare(client)
	}

	dialer := &transport.TCPDialer{Timeout: dialTimeout, Options: transport.ConnOptions{Logger: logger}}
	conn, err := dialer.DialContext(ctx, address)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("connecting to %s: %w", address, err)
	}
	if err := client.Attach(conn); err != nil {
		conn.Close()
		client.Close()
		return nil, err
	}
	logger.Debug("connected", "address", address, "local_address", conn.LocalAddr().String())

	runContext, cancel := context.WithCancel(ctx)
	session.cancel = cancel
	go func() { session.done <- client.Run(runContext) }()

	select {
	case <-ready:
		return session, nil
	case err := <-session.hangup:
		session.close()
		if err == nil {
			err = errors.New("server hung up")
		}
		return nil, fmt.Errorf("handshake with %s: %w", address, err)
	case <-ctx.Done():
		session.close()
		return nil, ctx.Err()
	}
}

// do runs fn on the client's goroutine.
func (s *clientSession) do(ctx context.Context, fn func(client *endpoint.Client)) error {
	return s.client.Do(ctx, func() { fn(s.client) })
}

// flush waits until every message sent so far has been written to the
// socket.
func (s *clientSession) flush(ctx context.Context) error {
	var flushErr error
	if err := s.do(ctx, func(client *endpoint.Client) {
		flushErr = client.WaitForMessagesWritten(ctx)
	}); err != nil {
		return err
	}
	return flushErr
}

// close stops the Run loop, then closes the client from this
// goroutine, which is safe once Run has returned.
func (s *clientSession) close() {
	s.cancel()
	<-s.done
	if err := s.client.Close(); err != nil && !errors.Is(err, endpoint.ErrNotConnected) {
		s.client.Logger().Debug("closing client", "error", err)
	}
}
