// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package netutil classifies connection errors for the transport
// package.
package netutil

import (
	"errors"
	"io"
	"net"
	"syscall"
)

// IsExpectedCloseError reports whether err is what a read or write
// returns when a connection ends normally: EOF, a closed connection or
// pipe, a broken pipe, or a reset. A peer that exits without a clean
// shutdown produces ECONNRESET or EPIPE on our side instead of EOF, and
// net.Pipe reports io.ErrClosedPipe. None of these deserve a warning.
func IsExpectedCloseError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) || errors.Is(err, io.ErrClosedPipe) {
		return true
	}
	var errno syscall.Errno
	if errors.As(err, &errno) {
		return errno == syscall.EPIPE || errno == syscall.ECONNRESET
	}
	return false
}
