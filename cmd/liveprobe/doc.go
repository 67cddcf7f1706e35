// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// liveprobe runs and inspects live object endpoints over TCP.
//
// "liveprobe serve" hosts a server endpoint with a demo object whose
// properties change over time, plus the property syncer. It accepts
// one client at a time on endpoint.listen from the config (default
// 127.0.0.1:11732).
//
// The client subcommands connect to a server, complete the handshake,
// and then:
//
//   - objects: print the server identity and its object map
//   - watch: mirror properties of one object and print every change
//   - call: invoke a method on a server object
//
// Configuration comes from --config or LIVEPROBE_CONFIG; see
// lib/config. Both peers must use the same codec.compression.
package main
