// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"context"
	"net"
)

// Listener accepts inbound connections on the probe side. The server
// endpoint attaches each accepted Conn in turn.
type Listener interface {
	// Accept blocks until a connection arrives, ctx is cancelled, or
	// the listener is closed.
	Accept(ctx context.Context) (*Conn, error)

	// Address returns the address peers dial, in a transport-specific
	// format (e.g. "127.0.0.1:11732" for TCP).
	Address() string

	// Close stops accepting connections.
	Close() error
}

// Dialer opens connections from the controlling side.
type Dialer interface {
	// DialContext connects to a probe at address. The address format
	// matches what the probe's Listener.Address returns.
	DialContext(ctx context.Context, address string) (*Conn, error)
}

// Pipe returns the two ends of an in-process connection, for running a
// server and a client in one process and for tests.
func Pipe(options ConnOptions) (*Conn, *Conn) {
	a, b := net.Pipe()
	return NewConn(a, options), NewConn(b, options)
}
