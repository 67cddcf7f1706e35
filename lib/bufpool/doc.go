// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package bufpool provides an accounted pool of reusable byte buffers
// for message payloads.
//
// Unlike sync.Pool, a [Pool] knows how many buffers it has ever
// allocated (its capacity) and how many are currently checked out. The
// pool grows by exactly one fresh buffer whenever [Pool.Acquire] finds
// it empty, and [Buffer.Release] pushes the buffer back instead of
// freeing it. [Pool.Close] enforces the ownership contract: every buffer
// must have been released by then. A buffer still checked out at Close
// is a bug in the owner and panics.
//
//	pool := bufpool.New(bufpool.Options{})
//	defer pool.Close()
//
//	buffer := pool.Acquire()
//	defer buffer.Release()
//	buffer.Append(payload...)
//
// The pool is safe for concurrent use, but the intended model is a
// single owner goroutine (the endpoint loop) with buffers handed to
// exactly one holder at a time.
package bufpool
