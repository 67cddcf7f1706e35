// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package endpoint

import (
	"fmt"

	"github.com/bureau-foundation/liveprobe/lib/codec"
	"github.com/bureau-foundation/liveprobe/protocol"
)

// Identity describes a server to its clients. It travels CBOR-encoded
// in the ServerInfo message.
type Identity struct {
	Label     string `cbor:"label"`
	Key       string `cbor:"key"`
	PID       int    `cbor:"pid"`
	Host      string `cbor:"host"`
	StartedAt int64  `cbor:"started_at"`
}

// The payload layouts of the endpoint bootstrap messages. All of them
// are addressed to protocol.EndpointAddress.
//
//	ServerVersion                uint32 protocol version, uint32 max data version
//	ServerInfo                   bytes  CBOR Identity
//	ObjectMapReply               uint32 count, then (uint16 address, string name)*
//	ObjectAdded                  string name, uint16 address
//	ObjectRemoved                string name
//	ClientDataVersionNegotiated  uint32 data version
//	ServerDataVersionNegotiated  uint32 data version
//	ObjectMonitored              uint16 address
//	ObjectUnmonitored            uint16 address

func encodeIdentity(message *protocol.Message, identity Identity) error {
	data, err := codec.Marshal(identity)
	if err != nil {
		return fmt.Errorf("encoding server identity: %w", err)
	}
	encoder := message.Encoder()
	encoder.WriteBytes(data)
	return encoder.Err()
}

func decodeIdentity(message *protocol.Message) (Identity, error) {
	decoder := message.Decoder()
	data := decoder.ReadBytes()
	if err := decoder.Finish(); err != nil {
		return Identity{}, err
	}
	var identity Identity
	if err := codec.Unmarshal(data, &identity); err != nil {
		return Identity{}, &protocol.Error{
			Kind:    protocol.ErrMalformedPayload,
			Address: message.Address(),
			Detail:  fmt.Sprintf("server identity: %v", err),
		}
	}
	return identity, nil
}

func encodeObjectMap(message *protocol.Message, addresses []NamedAddress) error {
	encoder := message.Encoder()
	encoder.WriteUint32(uint32(len(addresses)))
	for _, named := range addresses {
		encoder.WriteAddress(named.Address)
		encoder.WriteString(named.Name)
	}
	return encoder.Err()
}

func decodeObjectMap(message *protocol.Message) ([]NamedAddress, error) {
	decoder := message.Decoder()
	// Each pair is at least a 2-byte address and a 4-byte length.
	count := decoder.ReadCount(6)
	addresses := make([]NamedAddress, 0, count)
	for range count {
		address := decoder.ReadAddress()
		name := decoder.ReadString()
		addresses = append(addresses, NamedAddress{Address: address, Name: name})
	}
	if err := decoder.Finish(); err != nil {
		return nil, err
	}
	return addresses, nil
}

// negotiateDataVersion picks the highest data version both sides
// support.
func negotiateDataVersion(peerMax uint32) int {
	if peerMax < protocol.DataVersionMax {
		return int(peerMax)
	}
	return protocol.DataVersionMax
}
