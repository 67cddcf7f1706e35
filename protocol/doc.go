// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package protocol implements liveprobe's wire protocol: the framed,
// optionally compressed message format exchanged between a probe
// (server endpoint, inside the target process) and a client endpoint
// (the controlling process).
//
// The package is organized around the data flow:
//
//   - types.go: object addresses, message types, versions, ports
//   - message.go: [Message], one addressed, typed payload backed by a
//     pooled buffer
//   - payload.go: [Encoder] and [Decoder] for the fields inside a payload
//   - value.go: [Value], the dynamically typed value carried in payloads
//   - frame.go: [Codec], the frame reader/writer
//   - compress.go: payload compression (LZ4 by default, zstd optional)
//   - errors.go: [Error] for protocol-invariant violations and the
//     [ErrorPolicy] deciding whether they abort or are logged
//
// # Frame Format
//
// All integers are big-endian.
//
//	int32   payload size (negative: payload is compressed, abs = compressed size)
//	uint16  object address
//	uint8   message type
//	bytes   payload
//
// A compressed payload starts with a uint32 holding the uncompressed
// length, followed by the compressed block. The writer compresses only
// payloads of at least [DefaultMinCompressSize] bytes and only keeps the
// compressed form when it is strictly smaller than the raw payload.
//
// A 5-byte "hello" sent to address 5 with type 7 is exactly:
//
//	00 00 00 05  00 05  07  68 65 6c 6c 6f
package protocol
