// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package protocol

import (
	"encoding/binary"
	"math"

	"github.com/bureau-foundation/liveprobe/lib/bufpool"
)

// maxDecodedCount bounds element counts read from a payload before the
// elements themselves are read, so a corrupt count cannot trigger a
// huge allocation.
const maxDecodedCount = 1 << 20

// MaxListDepth bounds how deeply list values may nest, on both the
// encode and the decode side. Decoding is recursive, so an unbounded
// depth lets a peer exhaust the goroutine stack.
const MaxListDepth = 32

// Encoder appends payload fields to a message. The first failure is
// sticky: later writes are ignored and Err reports it.
type Encoder struct {
	buffer      *bufpool.Buffer
	address     ObjectAddress
	dataVersion int
	depth       int
	err         error
}

// Err returns the first error encountered, if any.
func (e *Encoder) Err() error { return e.err }

func (e *Encoder) fail(format string, args ...any) {
	if e.err == nil {
		e.err = Errorf(ErrMalformedPayload, e.address, format, args...)
	}
}

func (e *Encoder) WriteUint8(v uint8) {
	if e.err == nil {
		e.buffer.Append(v)
	}
}

func (e *Encoder) WriteBool(v bool) {
	if v {
		e.WriteUint8(1)
	} else {
		e.WriteUint8(0)
	}
}

func (e *Encoder) WriteUint16(v uint16) {
	if e.err == nil {
		e.buffer.Append(byte(v>>8), byte(v))
	}
}

func (e *Encoder) WriteUint32(v uint32) {
	if e.err == nil {
		e.buffer.Append(byte(v>>24), byte(v>>16), byte(v>>8), byte(v))
	}
}

func (e *Encoder) WriteUint64(v uint64) {
	e.WriteUint32(uint32(v >> 32))
	e.WriteUint32(uint32(v))
}

func (e *Encoder) WriteInt64(v int64)     { e.WriteUint64(uint64(v)) }
func (e *Encoder) WriteFloat64(v float64) { e.WriteUint64(math.Float64bits(v)) }

func (e *Encoder) WriteAddress(address ObjectAddress) {
	e.WriteUint16(uint16(address))
}

func (e *Encoder) WriteMessageType(messageType MessageType) {
	e.WriteUint8(uint8(messageType))
}

// WriteBytes writes a uint32 length followed by the bytes.
func (e *Encoder) WriteBytes(data []byte) {
	if uint64(len(data)) > math.MaxUint32 {
		e.fail("byte field of %d bytes exceeds the uint32 length prefix", len(data))
		return
	}
	e.WriteUint32(uint32(len(data)))
	if e.err == nil {
		e.buffer.Append(data...)
	}
}

// WriteString writes a length-prefixed UTF-8 string.
func (e *Encoder) WriteString(s string) {
	if uint64(len(s)) > math.MaxUint32 {
		e.fail("string of %d bytes exceeds the uint32 length prefix", len(s))
		return
	}
	e.WriteUint32(uint32(len(s)))
	if e.err == nil {
		e.buffer.Append([]byte(s)...)
	}
}

// WriteValue writes a kind tag followed by the kind's encoding. Kinds
// newer than the message's data version are rejected.
func (e *Encoder) WriteValue(value Value) {
	if e.err != nil {
		return
	}
	kindCodec, ok := lookupKind(value.kind)
	if !ok {
		e.fail("value kind %d is not registered", uint8(value.kind))
		return
	}
	if kindCodec.MinDataVersion > e.dataVersion {
		e.err = Errorf(ErrVersionMismatch, e.address,
			"%s values require data version %d, message is at version %d",
			kindCodec.Name, kindCodec.MinDataVersion, e.dataVersion)
		return
	}
	e.WriteUint8(uint8(value.kind))
	kindCodec.Encode(e, value)
}

// WriteValues writes a uint32 count followed by each value.
func (e *Encoder) WriteValues(values []Value) {
	e.WriteUint32(uint32(len(values)))
	for _, value := range values {
		e.WriteValue(value)
	}
}

func (e *Encoder) writeList(values []Value) {
	if e.err != nil {
		return
	}
	if e.depth >= MaxListDepth {
		e.fail("list values nested deeper than %d levels", MaxListDepth)
		return
	}
	e.depth++
	e.WriteValues(values)
	e.depth--
}

// Decoder reads payload fields from a message. Reading past the end
// of the payload, or reading a malformed field, sets a sticky
// ErrMalformedPayload error and returns zero values from then on.
type Decoder struct {
	data        []byte
	offset      int
	address     ObjectAddress
	dataVersion int
	depth       int
	err         error
}

// NewDecoder returns a decoder over raw payload bytes at the given
// data version. Most callers use Message.Decoder instead.
func NewDecoder(data []byte, address ObjectAddress, dataVersion int) *Decoder {
	return &Decoder{data: data, address: address, dataVersion: dataVersion}
}

// Err returns the first error encountered, if any.
func (d *Decoder) Err() error { return d.err }

// Remaining returns the number of unread payload bytes.
func (d *Decoder) Remaining() int { return len(d.data) - d.offset }

func (d *Decoder) fail(format string, args ...any) {
	if d.err == nil {
		d.err = Errorf(ErrMalformedPayload, d.address, format, args...)
	}
}

func (d *Decoder) take(n int, field string) []byte {
	if d.err != nil {
		return nil
	}
	if n < 0 || d.Remaining() < n {
		d.fail("reading %s: need %d bytes at offset %d, payload has %d", field, n, d.offset, len(d.data))
		return nil
	}
	chunk := d.data[d.offset : d.offset+n]
	d.offset += n
	return chunk
}

func (d *Decoder) ReadUint8() uint8 {
	if chunk := d.take(1, "uint8"); chunk != nil {
		return chunk[0]
	}
	return 0
}

func (d *Decoder) ReadBool() bool { return d.ReadUint8() != 0 }

func (d *Decoder) ReadUint16() uint16 {
	if chunk := d.take(2, "uint16"); chunk != nil {
		return binary.BigEndian.Uint16(chunk)
	}
	return 0
}

func (d *Decoder) ReadUint32() uint32 {
	if chunk := d.take(4, "uint32"); chunk != nil {
		return binary.BigEndian.Uint32(chunk)
	}
	return 0
}

func (d *Decoder) ReadUint64() uint64 {
	if chunk := d.take(8, "uint64"); chunk != nil {
		return binary.BigEndian.Uint64(chunk)
	}
	return 0
}

func (d *Decoder) ReadInt64() int64     { return int64(d.ReadUint64()) }
func (d *Decoder) ReadFloat64() float64 { return math.Float64frombits(d.ReadUint64()) }

func (d *Decoder) ReadAddress() ObjectAddress {
	return ObjectAddress(d.ReadUint16())
}

func (d *Decoder) ReadMessageType() MessageType {
	return MessageType(d.ReadUint8())
}

// ReadBytes reads a length-prefixed byte field. The returned slice
// aliases the payload.
func (d *Decoder) ReadBytes() []byte {
	length := d.ReadUint32()
	if d.err != nil {
		return nil
	}
	return d.take(int(length), "byte field")
}

func (d *Decoder) ReadString() string {
	return string(d.ReadBytes())
}

// ReadCount reads a uint32 element count and checks it against the
// remaining payload, given the minimum encoded size of one element.
func (d *Decoder) ReadCount(minElementSize int) int {
	count := d.ReadUint32()
	if d.err != nil {
		return 0
	}
	if count > maxDecodedCount || (minElementSize > 0 && int(count) > d.Remaining()/minElementSize) {
		d.fail("element count %d cannot fit in the remaining %d bytes", count, d.Remaining())
		return 0
	}
	return int(count)
}

// ReadValue reads one tagged value.
func (d *Decoder) ReadValue() Value {
	kind := Kind(d.ReadUint8())
	if d.err != nil {
		return Value{}
	}
	kindCodec, ok := lookupKind(kind)
	if !ok {
		d.fail("unknown value kind %d", uint8(kind))
		return Value{}
	}
	if kindCodec.MinDataVersion > d.dataVersion {
		d.fail("%s value at data version %d (requires %d)", kindCodec.Name, d.dataVersion, kindCodec.MinDataVersion)
		return Value{}
	}
	value := kindCodec.Decode(d)
	if d.err != nil {
		return Value{}
	}
	return value
}

// ReadValues reads a uint32 count followed by that many values.
func (d *Decoder) ReadValues() []Value {
	count := d.ReadCount(1)
	if count == 0 {
		return nil
	}
	values := make([]Value, 0, count)
	for range count {
		value := d.ReadValue()
		if d.err != nil {
			return nil
		}
		values = append(values, value)
	}
	return values
}

func (d *Decoder) readList() Value {
	if d.err != nil {
		return Value{}
	}
	if d.depth >= MaxListDepth {
		d.fail("list values nested deeper than %d levels at offset %d", MaxListDepth, d.offset)
		return Value{}
	}
	d.depth++
	values := d.ReadValues()
	d.depth--
	return List(values...)
}

// Finish reports an error if payload bytes remain unread. Message
// handlers call it after reading every field they expect.
func (d *Decoder) Finish() error {
	if d.err == nil && d.Remaining() != 0 {
		d.fail("%d trailing bytes", d.Remaining())
	}
	return d.err
}
