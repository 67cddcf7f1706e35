// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package endpoint implements one half of a liveprobe connection.
//
// An [Endpoint] composes the frame codec from package protocol with a
// [Registry] (the bidirectional name/address table and its object and
// handler bindings) and a [Dispatcher] (which routes each decoded
// message to the bound object and/or handler). It tracks connection
// state, the negotiated data version, per-address traffic
// [Statistics], and a periodic [TransmissionRate] sample.
//
// Two roles build on it:
//
//   - [Server] lives in the observed process. It allocates addresses
//     for the objects it exposes, sends the handshake (version,
//     identity, object map) when a stream is attached, announces
//     objects as they come and go, and tracks which objects the client
//     is monitoring.
//   - [Client] lives in the controlling process. It checks the
//     protocol version, negotiates the data version, mirrors the object
//     map, and sends monitor requests when handlers are registered.
//
// A process may hold at most one open Server and one open Client;
// constructing a second fails with [ErrDuplicateEndpoint].
//
// # Threading
//
// An endpoint is single-threaded. [Endpoint.Run] owns it: it reads
// from the attached stream, runs functions queued with [Endpoint.Post]
// or [Endpoint.Do], and drives the statistics tick. Dispatching,
// sending and the handshake handlers are synchronous and never block.
// Any iteration that calls out to handlers or hooks works on a
// snapshot, so callbacks may register and unregister entries (their
// own included) freely.
//
// # Errors
//
// Operations called directly return errors. Failures on the dispatch
// path have no caller; they go to the [protocol.ErrorPolicy] from
// [Options], which either panics ([protocol.StrictPolicy]) or logs.
package endpoint
