// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package testutil provides shared test helpers for liveprobe packages.
//
// [RequireReceive], [RequireSend], and [RequireClosed] wrap the
// select-with-timeout pattern so individual tests never call
// time.After themselves. These are the only place in the test suite
// where real wall-clock timeouts are used; everything else runs on
// lib/clock's fake clock.
//
// [RequireNoReceive] is the negative form: it asserts that nothing
// arrives within a short window. Use it sparingly, since it always
// costs the full window.
//
// [Logger] returns a slog.Logger that writes through t.Log, so log
// output shows up next to the failing test and nowhere else.
//
// All helpers call t.Fatalf on failure rather than returning errors,
// since test setup failures are not recoverable.
//
// This package has no liveprobe-internal dependencies.
package testutil
