// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package protocol

import (
	"fmt"

	"github.com/bureau-foundation/liveprobe/lib/bufpool"
)

// standalonePool backs messages created outside a Codec. It lives for
// the whole process and is never closed.
var standalonePool = bufpool.New(bufpool.Options{})

// noCopy makes go vet's copylocks check flag a Message copied by
// value. A copied Message would share its pooled buffer.
type noCopy struct{}

func (*noCopy) Lock()   {}
func (*noCopy) Unlock() {}

// Message is one addressed, typed payload. It owns a pooled buffer
// from creation until Release; pass it by pointer and hand it to
// exactly one owner at a time. Endpoint.Send takes ownership.
type Message struct {
	_ noCopy

	address     ObjectAddress
	messageType MessageType
	dataVersion int
	payload     *bufpool.Buffer
}

// NewMessage creates an empty message at the lowest data version,
// backed by a process-wide buffer pool. Endpoints create messages
// through their codec instead so the negotiated data version applies.
func NewMessage(address ObjectAddress, messageType MessageType) *Message {
	return newMessage(standalonePool, address, messageType, DataVersionMin)
}

func newMessage(pool *bufpool.Pool, address ObjectAddress, messageType MessageType, dataVersion int) *Message {
	return &Message{
		address:     address,
		messageType: messageType,
		dataVersion: dataVersion,
		payload:     pool.Acquire(),
	}
}

func (m *Message) Address() ObjectAddress { return m.address }
func (m *Message) Type() MessageType      { return m.messageType }

// DataVersion is the value serialization version the payload was (or
// will be) encoded with.
func (m *Message) DataVersion() int { return m.dataVersion }

// Payload returns the raw payload. The slice is valid until the next
// write through an Encoder or Release.
func (m *Message) Payload() []byte {
	if m.payload == nil {
		return nil
	}
	return m.payload.Bytes()
}

// SetPayload replaces the payload with a copy of data.
func (m *Message) SetPayload(data []byte) {
	m.payload.Set(data)
}

// Encoder returns an encoder appending to the payload.
func (m *Message) Encoder() *Encoder {
	return &Encoder{buffer: m.payload, address: m.address, dataVersion: m.dataVersion}
}

// Decoder returns a decoder positioned at the start of the payload.
// Each call starts over.
func (m *Message) Decoder() *Decoder {
	return NewDecoder(m.Payload(), m.address, m.dataVersion)
}

// Clone returns an independent copy backed by the process-wide pool,
// so it may outlive the codec that produced m.
func (m *Message) Clone() *Message {
	clone := &Message{
		address:     m.address,
		messageType: m.messageType,
		dataVersion: m.dataVersion,
		payload:     standalonePool.Acquire(),
	}
	clone.payload.Set(m.Payload())
	return clone
}

// Release returns the payload buffer to its pool. Calling Release
// again is a no-op.
func (m *Message) Release() {
	if m.payload == nil {
		return
	}
	m.payload.Release()
	m.payload = nil
}

func (m *Message) String() string {
	return fmt.Sprintf("Message(address=%d type=%s payload=%d bytes)", m.address, m.messageType, len(m.Payload()))
}
