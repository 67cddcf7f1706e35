// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package process provides the binary entrypoint error handler.
//
// main() calls [Fatal] with the error from run(). Errors implementing
// [ExitCoder] pick the exit code, so usage errors can exit with 2
// while runtime failures exit with 1.
package process
