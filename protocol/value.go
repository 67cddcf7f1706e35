// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package protocol

import (
	"bytes"
	"fmt"
	"math"
	"reflect"
	"strconv"
	"sync"

	"github.com/bureau-foundation/liveprobe/lib/codec"
)

// Kind is the wire tag identifying how a Value is serialized. Tags
// below KindFirstCustom are defined by this package; higher tags are
// available to RegisterKind.
type Kind uint8

const (
	// KindAbsent is the zero Value: no value at all. Method arguments
	// beyond those a caller supplied are absent.
	KindAbsent     Kind = 0
	KindBool       Kind = 1
	KindInt        Kind = 2
	KindUint       Kind = 3
	KindFloat      Kind = 4
	KindString     Kind = 5
	KindBytes      Kind = 6
	KindList       Kind = 7
	KindStructured Kind = 8

	// KindFirstCustom is the lowest tag RegisterKind accepts.
	KindFirstCustom Kind = 0x80
)

// Value is a dynamically typed value carried inside payloads: one of
// a small set of primitive kinds, an opaque byte blob, a list, a
// CBOR-encoded structured value, or a registered custom kind. The zero
// Value is absent.
type Value struct {
	kind    Kind
	number  uint64
	text    string
	blob    []byte
	list    []Value
	payload any
}

// Absent returns the absent value.
func Absent() Value { return Value{} }

func Bool(b bool) Value {
	if b {
		return Value{kind: KindBool, number: 1}
	}
	return Value{kind: KindBool}
}

func Int(i int64) Value     { return Value{kind: KindInt, number: uint64(i)} }
func Uint(u uint64) Value   { return Value{kind: KindUint, number: u} }
func Float(f float64) Value { return Value{kind: KindFloat, number: math.Float64bits(f)} }
func String(s string) Value { return Value{kind: KindString, text: s} }

// Bytes returns a byte-blob value holding a copy of b.
func Bytes(b []byte) Value {
	return Value{kind: KindBytes, blob: bytes.Clone(b)}
}

// List returns a list value. Lists require data version 2.
func List(values ...Value) Value {
	return Value{kind: KindList, list: values}
}

// Structured encodes v as CBOR and wraps it. Structured values require
// data version 2.
func Structured(v any) (Value, error) {
	data, err := codec.Marshal(v)
	if err != nil {
		return Value{}, fmt.Errorf("encoding structured value: %w", err)
	}
	return Value{kind: KindStructured, blob: data}, nil
}

// StructuredRaw returns a structured value from an item that is
// already CBOR-encoded. The item must be exactly one well-formed CBOR
// item; it is copied.
func StructuredRaw(item codec.RawMessage) (Value, error) {
	if err := codec.Valid(item); err != nil {
		return Value{}, fmt.Errorf("structured value is not well-formed CBOR: %w", err)
	}
	return Value{kind: KindStructured, blob: bytes.Clone(item)}, nil
}

// Custom returns a value of a registered custom kind. The payload is
// handed to the kind's encode function when the value is serialized.
func Custom(kind Kind, payload any) Value {
	return Value{kind: kind, payload: payload}
}

func (v Value) Kind() Kind      { return v.kind }
func (v Value) IsAbsent() bool  { return v.kind == KindAbsent }
func (v Value) Payload() any    { return v.payload }
func (v Value) AsList() []Value { return v.list }

func (v Value) AsBool() (bool, bool) {
	return v.number != 0, v.kind == KindBool
}

func (v Value) AsInt() (int64, bool) {
	return int64(v.number), v.kind == KindInt
}

func (v Value) AsUint() (uint64, bool) {
	return v.number, v.kind == KindUint
}

func (v Value) AsFloat() (float64, bool) {
	if v.kind != KindFloat {
		return 0, false
	}
	return math.Float64frombits(v.number), true
}

func (v Value) AsString() (string, bool) {
	return v.text, v.kind == KindString
}

// AsBytes returns the blob of a bytes value, or the raw CBOR of a
// structured value. The slice must not be modified.
func (v Value) AsBytes() ([]byte, bool) {
	return v.blob, v.kind == KindBytes || v.kind == KindStructured
}

// DecodeStructured unmarshals a structured value into target.
func (v Value) DecodeStructured(target any) error {
	if v.kind != KindStructured {
		return fmt.Errorf("value of kind %s is not structured", v.kind)
	}
	return codec.Unmarshal(v.blob, target)
}

// Equal reports whether two values have the same kind and contents.
func (v Value) Equal(other Value) bool {
	if v.kind != other.kind {
		return false
	}
	switch v.kind {
	case KindAbsent:
		return true
	case KindBool, KindInt, KindUint, KindFloat:
		return v.number == other.number
	case KindString:
		return v.text == other.text
	case KindBytes, KindStructured:
		return bytes.Equal(v.blob, other.blob)
	case KindList:
		if len(v.list) != len(other.list) {
			return false
		}
		for index := range v.list {
			if !v.list[index].Equal(other.list[index]) {
				return false
			}
		}
		return true
	default:
		return reflect.DeepEqual(v.payload, other.payload)
	}
}

// String formats the value for logs and the CLI.
func (v Value) String() string {
	switch v.kind {
	case KindAbsent:
		return "<absent>"
	case KindBool:
		return strconv.FormatBool(v.number != 0)
	case KindInt:
		return strconv.FormatInt(int64(v.number), 10)
	case KindUint:
		return strconv.FormatUint(v.number, 10)
	case KindFloat:
		return strconv.FormatFloat(math.Float64frombits(v.number), 'g', -1, 64)
	case KindString:
		return strconv.Quote(v.text)
	case KindBytes:
		return fmt.Sprintf("bytes[%d]", len(v.blob))
	case KindStructured:
		diagnostic, err := codec.Diagnose(v.blob)
		if err != nil {
			return fmt.Sprintf("cbor[%d]", len(v.blob))
		}
		return diagnostic
	case KindList:
		var buffer bytes.Buffer
		buffer.WriteByte('[')
		for index, element := range v.list {
			if index > 0 {
				buffer.WriteString(", ")
			}
			buffer.WriteString(element.String())
		}
		buffer.WriteByte(']')
		return buffer.String()
	default:
		return fmt.Sprintf("%s(%v)", v.kind, v.payload)
	}
}

// KindCodec serializes one value kind. Encode writes the value body
// (the kind tag has already been written); Decode reads it back.
// Errors are reported through the encoder's and decoder's sticky
// error.
type KindCodec struct {
	Name string

	// MinDataVersion is the lowest negotiated data version at which
	// this kind may appear on the wire.
	MinDataVersion int

	Encode func(encoder *Encoder, value Value)
	Decode func(decoder *Decoder) Value
}

var kindTable struct {
	sync.RWMutex
	codecs map[Kind]KindCodec
}

// The built-in kinds are installed from init because their codecs
// call back into the table for list elements.
func init() {
	kindTable.codecs = map[Kind]KindCodec{
		KindAbsent: {
			Name:           "absent",
			MinDataVersion: DataVersion1,
			Encode:         func(*Encoder, Value) {},
			Decode:         func(*Decoder) Value { return Value{} },
		},
		KindBool: {
			Name:           "bool",
			MinDataVersion: DataVersion1,
			Encode:         func(e *Encoder, v Value) { e.WriteBool(v.number != 0) },
			Decode:         func(d *Decoder) Value { return Bool(d.ReadBool()) },
		},
		KindInt: {
			Name:           "int",
			MinDataVersion: DataVersion1,
			Encode:         func(e *Encoder, v Value) { e.WriteUint64(v.number) },
			Decode:         func(d *Decoder) Value { return Int(int64(d.ReadUint64())) },
		},
		KindUint: {
			Name:           "uint",
			MinDataVersion: DataVersion1,
			Encode:         func(e *Encoder, v Value) { e.WriteUint64(v.number) },
			Decode:         func(d *Decoder) Value { return Uint(d.ReadUint64()) },
		},
		KindFloat: {
			Name:           "float",
			MinDataVersion: DataVersion1,
			Encode:         func(e *Encoder, v Value) { e.WriteUint64(v.number) },
			Decode: func(d *Decoder) Value {
				return Value{kind: KindFloat, number: d.ReadUint64()}
			},
		},
		KindString: {
			Name:           "string",
			MinDataVersion: DataVersion1,
			Encode:         func(e *Encoder, v Value) { e.WriteString(v.text) },
			Decode:         func(d *Decoder) Value { return String(d.ReadString()) },
		},
		KindBytes: {
			Name:           "bytes",
			MinDataVersion: DataVersion1,
			Encode:         func(e *Encoder, v Value) { e.WriteBytes(v.blob) },
			Decode:         func(d *Decoder) Value { return Bytes(d.ReadBytes()) },
		},
		KindList: {
			Name:           "list",
			MinDataVersion: DataVersion2,
			Encode:         func(e *Encoder, v Value) { e.writeList(v.list) },
			Decode:         func(d *Decoder) Value { return d.readList() },
		},
		KindStructured: {
			Name:           "structured",
			MinDataVersion: DataVersion2,
			Encode:         func(e *Encoder, v Value) { e.WriteBytes(v.blob) },
			Decode: func(d *Decoder) Value {
				data := d.ReadBytes()
				if d.Err() != nil {
					return Value{}
				}
				value, err := StructuredRaw(data)
				if err != nil {
					d.fail("%v", err)
					return Value{}
				}
				return value
			},
		},
	}
}

// RegisterKind adds a custom value kind to the process-wide kind
// table. Both endpoints must register the same kinds. The tag must be
// at least KindFirstCustom and not yet registered.
func RegisterKind(kind Kind, kindCodec KindCodec) error {
	if kind < KindFirstCustom {
		return fmt.Errorf("value kind %d is reserved (custom kinds start at %d)", kind, KindFirstCustom)
	}
	if kindCodec.Encode == nil || kindCodec.Decode == nil {
		return fmt.Errorf("value kind %d: encode and decode functions are required", kind)
	}
	if kindCodec.MinDataVersion == 0 {
		kindCodec.MinDataVersion = DataVersionMin
	}

	kindTable.Lock()
	defer kindTable.Unlock()
	if existing, ok := kindTable.codecs[kind]; ok {
		return fmt.Errorf("value kind %d already registered as %q", kind, existing.Name)
	}
	kindTable.codecs[kind] = kindCodec
	return nil
}

func lookupKind(kind Kind) (KindCodec, bool) {
	kindTable.RLock()
	defer kindTable.RUnlock()
	kindCodec, ok := kindTable.codecs[kind]
	return kindCodec, ok
}

func (k Kind) String() string {
	if kindCodec, ok := lookupKind(k); ok && kindCodec.Name != "" {
		return kindCodec.Name
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}
