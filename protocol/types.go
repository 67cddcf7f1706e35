// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package protocol

import (
	"fmt"
	"math"
)

// ObjectAddress is the compact numeric stand-in for an object name on
// the wire. Addresses are unique per endpoint and never reused while
// bound.
type ObjectAddress uint16

const (
	// InvalidObjectAddress marks an unassigned address.
	InvalidObjectAddress ObjectAddress = 0

	// EndpointAddress is the endpoint's own self-description object,
	// registered at construction under EndpointObjectName. Peers use
	// it to bootstrap name/address discovery.
	EndpointAddress ObjectAddress = 1

	// LauncherAddress is the out-of-band control channel used by a
	// launcher before a regular connection exists. Never allocated to
	// ordinary objects.
	LauncherAddress ObjectAddress = math.MaxUint16
)

// EndpointObjectName is the well-known name registered at
// EndpointAddress on every endpoint.
const EndpointObjectName = "liveprobe.endpoint"

// Valid reports whether a is neither invalid nor reserved for the
// launcher.
func (a ObjectAddress) Valid() bool {
	return a != InvalidObjectAddress && a != LauncherAddress
}

// MessageType tags the payload layout of a message. Zero is invalid;
// the rest is an open enumeration shared by both endpoints. Calling
// layers may define their own types starting at FirstUserMessageType.
type MessageType uint8

const (
	InvalidMessageType MessageType = 0

	// Endpoint bootstrap, addressed to EndpointAddress.
	ObjectMonitored             MessageType = 1
	ObjectUnmonitored           MessageType = 2
	ServerVersion               MessageType = 3
	ServerDataVersionNegotiated MessageType = 4
	ObjectMapReply              MessageType = 5
	ObjectAdded                 MessageType = 6
	ObjectRemoved               MessageType = 7
	ClientDataVersionNegotiated MessageType = 8
	ServerInfo                  MessageType = 9

	// MethodCall invokes a named method on the object bound at the
	// message's address. Payload: method name, then a value list.
	MethodCall MessageType = 10

	// Property synchronization, addressed to the property syncer.
	PropertySyncRequest   MessageType = 11
	PropertyValuesChanged MessageType = 12

	// Launcher channel, addressed to LauncherAddress.
	ServerAddress     MessageType = 13
	ServerLaunchError MessageType = 14

	// FirstUserMessageType is the first tag available to layers built
	// on top of this protocol.
	FirstUserMessageType MessageType = 64
)

var messageTypeNames = [...]string{
	InvalidMessageType:          "Invalid",
	ObjectMonitored:             "ObjectMonitored",
	ObjectUnmonitored:           "ObjectUnmonitored",
	ServerVersion:               "ServerVersion",
	ServerDataVersionNegotiated: "ServerDataVersionNegotiated",
	ObjectMapReply:              "ObjectMapReply",
	ObjectAdded:                 "ObjectAdded",
	ObjectRemoved:               "ObjectRemoved",
	ClientDataVersionNegotiated: "ClientDataVersionNegotiated",
	ServerInfo:                  "ServerInfo",
	MethodCall:                  "MethodCall",
	PropertySyncRequest:         "PropertySyncRequest",
	PropertyValuesChanged:       "PropertyValuesChanged",
	ServerAddress:               "ServerAddress",
	ServerLaunchError:           "ServerLaunchError",
}

// String returns the message type's name, or "User(n)" / "Unknown(n)".
func (t MessageType) String() string {
	if int(t) < len(messageTypeNames) && messageTypeNames[t] != "" {
		return messageTypeNames[t]
	}
	if t >= FirstUserMessageType {
		return fmt.Sprintf("User(%d)", uint8(t))
	}
	return fmt.Sprintf("Unknown(%d)", uint8(t))
}

// Version is the frame and core-message layout version. Both sides
// compare it during the handshake and refuse to proceed on mismatch.
// Bump it whenever the frame format or the payload layout of any
// message defined in this package changes incompatibly.
const Version = 1

// Data versions describe how Values are serialized inside payloads.
// Endpoints start at DataVersionMin and negotiate upward during the
// handshake to the highest version both support.
const (
	// DataVersion1 supports the primitive kinds and byte blobs.
	DataVersion1 = 1

	// DataVersion2 adds lists and CBOR-encoded structured values.
	DataVersion2 = 2

	DataVersionMin = DataVersion1
	DataVersionMax = DataVersion2
)

// MaxMethodArguments is the number of arguments delivered to every
// method invocation. Calls declaring fewer are padded with absent
// values; calls declaring more are rejected.
const MaxMethodArguments = 10

// Well-known TCP ports for endpoints exposed over the network.
const (
	DefaultPort   = 11732
	BroadcastPort = 13325
)
