// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"context"
	"errors"
	"net"
	"strconv"
	"time"

	"github.com/bureau-foundation/liveprobe/protocol"
)

// Compile-time interface checks.
var (
	_ Listener = (*TCPListener)(nil)
	_ Dialer   = (*TCPDialer)(nil)
)

// DefaultAddress listens on every interface at the default control
// port.
var DefaultAddress = ":" + strconv.Itoa(protocol.DefaultPort)

// TCPListener accepts inbound probe connections over TCP.
type TCPListener struct {
	listener *net.TCPListener
	options  ConnOptions
}

// NewTCPListener creates a TCP listener on address (e.g. ":11732" or
// "127.0.0.1:0" for a random port). An empty address means
// DefaultAddress.
func NewTCPListener(address string, options ConnOptions) (*TCPListener, error) {
	if address == "" {
		address = DefaultAddress
	}
	listener, err := net.Listen("tcp", address)
	if err != nil {
		return nil, err
	}
	return &TCPListener{listener: listener.(*net.TCPListener), options: options}, nil
}

// Accept waits for the next connection. It returns ctx.Err() when ctx
// is cancelled and net.ErrClosed after Close.
func (l *TCPListener) Accept(ctx context.Context) (*Conn, error) {
	// A deadline in the past unblocks Accept.
	stop := context.AfterFunc(ctx, func() {
		l.listener.SetDeadline(time.Unix(1, 0))
	})
	defer stop()

	conn, err := l.listener.Accept()
	if err != nil {
		if ctx.Err() != nil {
			l.listener.SetDeadline(time.Time{})
			return nil, ctx.Err()
		}
		return nil, err
	}
	if !stop() {
		// ctx was cancelled after Accept returned; clear the deadline so
		// the listener stays usable.
		l.listener.SetDeadline(time.Time{})
	}
	return NewConn(conn, l.options), nil
}

// Address returns the listening address in "host:port" format.
func (l *TCPListener) Address() string {
	return l.listener.Addr().String()
}

// Close shuts down the listener. Accepted connections stay open.
func (l *TCPListener) Close() error {
	err := l.listener.Close()
	if errors.Is(err, net.ErrClosed) {
		return nil
	}
	return err
}

// TCPDialer opens TCP connections to probes.
type TCPDialer struct {
	// Timeout is the maximum time to wait for a TCP connection to be
	// established. Zero means no standalone timeout, only the context
	// deadline applies.
	Timeout time.Duration

	Options ConnOptions
}

// DialContext opens a TCP connection to address (host:port). A missing
// port means protocol.DefaultPort.
func (d *TCPDialer) DialContext(ctx context.Context, address string) (*Conn, error) {
	if _, _, err := net.SplitHostPort(address); err != nil {
		address = net.JoinHostPort(address, strconv.Itoa(protocol.DefaultPort))
	}
	conn, err := (&net.Dialer{Timeout: d.Timeout}).DialContext(ctx, "tcp", address)
	if err != nil {
		return nil, err
	}
	return NewConn(conn, d.Options), nil
}
