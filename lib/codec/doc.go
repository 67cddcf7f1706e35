// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package codec holds liveprobe's CBOR configuration.
//
// The frame format and the primitive value kinds of the object protocol
// are hand-laid-out big-endian binary (see package protocol). CBOR is
// used where the protocol carries structured, schema-evolving data:
// the server description exchanged during the handshake, and the
// "structured" value kind, which lets callers ship arbitrary Go
// structs, maps and slices as a single property or argument value.
//
// Encoding uses Core Deterministic Encoding (RFC 8949 §4.2) so equal
// values always produce equal bytes; the property syncer relies on
// that when comparing a freshly read value against the last one sent.
// Decoding into an untyped target yields map[string]any rather than
// CBOR's default map[any]any.
package codec
