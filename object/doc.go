// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package object provides the live objects an endpoint exposes: a
// [Lifetime] that tells observers when a value is destroyed, and
// [Live], a named bag of properties and methods that can be invoked
// through MethodCall messages and mirrored by the property syncer.
//
// The transport core never enumerates arbitrary Go values. Anything
// that should be visible to a peer is described explicitly, either by
// building a [Live] or by implementing the small interfaces the
// endpoint and propsync packages consume.
package object
