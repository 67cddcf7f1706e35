// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package transport carries liveprobe frames between processes.
//
// [Conn] wraps a net.Conn as an endpoint stream: it implements
// endpoint.Stream (Write, Close), endpoint.Source (Data) and
// endpoint.Flusher (Flush). A reader goroutine hands each chunk read
// from the socket to Data; the endpoint's Run loop consumes it and
// reassembles frames. A writer goroutine drains an unbounded queue, so
// Endpoint.Send never blocks on the network, and each queued frame is
// written with a single Write so frames never interleave.
//
// The package defines two interfaces: [Listener] accepts inbound
// connections on the probe side, and [Dialer] opens them from the
// controlling side. [TCPListener] and [TCPDialer] implement them over
// TCP, defaulting to protocol.DefaultPort. [Pipe] returns a connected
// pair for in-process use.
//
// The discovery broadcast on protocol.BroadcastPort is not
// implemented; clients dial a known address.
package transport
