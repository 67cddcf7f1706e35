// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package binhash provides BLAKE3 content hashing for files.
//
// liveprobe uses it to fingerprint its own executable: the digest is
// printed by --version so two builds reporting the same version string
// can still be told apart when debugging a protocol mismatch between a
// server and a client.
//
//   - [HashFile] and [HashReader] stream content through BLAKE3
//   - [Digest.String] and [ParseDigest] convert to and from hex
package binhash
