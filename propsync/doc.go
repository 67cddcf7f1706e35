// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package propsync keeps property values of paired objects in step
// across a liveprobe connection.
//
// Each side runs a [Syncer] registered under [ObjectName] and tracks
// its half of every paired object under the object's address. Two
// messages, both addressed to the syncer, carry the protocol:
//
//	PropertySyncRequest    uint16 address
//	PropertyValuesChanged  uint16 address, uint32 count, then (string name, value)*
//
// A request is answered with the current value of every tracked
// property. A change notification from a tracked object sends every
// property that shares the notifying signal in one message. Values
// received from the peer are applied with the object's sync guard set,
// so the signal they fire is not echoed back.
//
// [Serve] and [Follow] wire a Syncer into a server and a client
// endpoint.
package propsync
