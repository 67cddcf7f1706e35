// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package process

import (
	"errors"
	"fmt"
	"io"
	"os"
)

// ExitCoder is implemented by errors that choose the process exit code.
type ExitCoder interface {
	ExitCode() int
}

// ExitCode returns the exit code for err: 0 for nil, the code of the
// first ExitCoder in the chain, or 1.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	var coder ExitCoder
	if errors.As(err, &coder) {
		return coder.ExitCode()
	}
	return 1
}

// Report writes "error: err" to w and returns the exit code for err.
// It writes nothing for a nil error.
func Report(w io.Writer, err error) int {
	if err != nil {
		fmt.Fprintf(w, "error: %v\n", err)
	}
	return ExitCode(err)
}

// Fatal reports err on stderr and exits with its code. Use it in main()
// for errors from run(), where the structured logger may not exist.
func Fatal(err error) {
	os.Exit(Report(os.Stderr, err))
}
