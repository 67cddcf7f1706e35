// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"

	"github.com/bureau-foundation/liveprobe/lib/bufpool"
)

// HeaderSize is the fixed part of every frame: int32 size, uint16
// address, uint8 type.
const HeaderSize = 4 + 2 + 1

// ErrIncompleteFrame is returned by ReadMessage when the queue does not
// yet hold a complete frame. Nothing was consumed.
var ErrIncompleteFrame = errors.New("protocol: incomplete frame")

// ByteQueue is the inbound side of a stream: bytes received but not
// yet decoded. *bytes.Buffer satisfies it.
type ByteQueue interface {
	// Len returns the number of unread bytes.
	Len() int

	// Bytes returns the unread bytes without consuming them.
	Bytes() []byte

	// Next consumes and returns the next n bytes.
	Next(n int) []byte
}

// CodecOptions configures a Codec.
type CodecOptions struct {
	// Compression selects the outgoing compression algorithm.
	Compression Compression

	// MinCompressSize is the smallest payload the writer tries to
	// compress. Zero means DefaultMinCompressSize.
	MinCompressSize int

	// Pool supplies message buffers. Nil creates a private pool.
	Pool *bufpool.Pool

	// Logger receives decompression failures. Nil means slog.Default().
	Logger *slog.Logger
}

// Codec reads and writes frames and stamps messages with the
// negotiated data version. A Codec is owned by one endpoint and is not
// safe for concurrent use.
type Codec struct {
	pool            *bufpool.Pool
	compressor      compressor
	minCompressSize int
	dataVersion     int
	logger          *slog.Logger
	frame           []byte
}

// NewCodec creates a codec at DataVersionMin.
func NewCodec(options CodecOptions) *Codec {
	if options.MinCompressSize <= 0 {
		options.MinCompressSize = DefaultMinCompressSize
	}
	if options.Pool == nil {
		options.Pool = bufpool.New(bufpool.Options{})
	}
	if options.Logger == nil {
		options.Logger = slog.Default()
	}
	return &Codec{
		pool:            options.Pool,
		compressor:      compressor{algorithm: options.Compression},
		minCompressSize: options.MinCompressSize,
		dataVersion:     DataVersionMin,
		logger:          options.Logger,
	}
}

// Pool returns the buffer pool backing this codec's messages.
func (c *Codec) Pool() *bufpool.Pool { return c.pool }

// Compression returns the outgoing compression algorithm.
func (c *Codec) Compression() Compression { return c.compressor.algorithm }

// DataVersion returns the negotiated data version.
func (c *Codec) DataVersion() int { return c.dataVersion }

// SetDataVersion raises (or lowers) the negotiated data version. The
// version must lie within [DataVersionMin, DataVersionMax].
func (c *Codec) SetDataVersion(version int) error {
	if version < DataVersionMin || version > DataVersionMax {
		return Errorf(ErrVersionMismatch, InvalidObjectAddress,
			"data version %d outside supported range [%d, %d]", version, DataVersionMin, DataVersionMax)
	}
	c.dataVersion = version
	return nil
}

// ResetDataVersion returns to DataVersionMin, as after a disconnect.
func (c *Codec) ResetDataVersion() { c.dataVersion = DataVersionMin }

// NewMessage creates an empty message at the negotiated data version.
func (c *Codec) NewMessage(address ObjectAddress, messageType MessageType) *Message {
	return newMessage(c.pool, address, messageType, c.dataVersion)
}

// frameLength returns the total length of the frame at the front of
// data, or false if the header has not fully arrived.
func frameLength(data []byte) (int, bool) {
	if len(data) < HeaderSize {
		return 0, false
	}
	size := int64(int32(binary.BigEndian.Uint32(data)))
	if size < 0 {
		size = -size
	}
	return HeaderSize + int(size), true
}

// CanReadMessage reports whether queue holds at least one complete
// frame. It never consumes bytes.
func (c *Codec) CanReadMessage(queue ByteQueue) bool {
	if queue.Len() < HeaderSize {
		return false
	}
	length, ok := frameLength(queue.Bytes())
	return ok && queue.Len() >= length
}

// ReadMessage consumes exactly one frame from queue. It returns
// ErrIncompleteFrame, consuming nothing, if the frame has not fully
// arrived. A frame with address 0 or type 0 is consumed and reported
// as an *Error so the stream stays in sync. A compressed payload that
// fails to decode yields a message with an empty payload.
func (c *Codec) ReadMessage(queue ByteQueue) (*Message, error) {
	if !c.CanReadMessage(queue) {
		return nil, ErrIncompleteFrame
	}
	header := queue.Next(HeaderSize)
	size := int32(binary.BigEndian.Uint32(header))
	address := ObjectAddress(binary.BigEndian.Uint16(header[4:]))
	messageType := MessageType(header[6])

	compressed := size < 0
	payloadLength := int64(size)
	if compressed {
		payloadLength = -payloadLength
	}
	payload := queue.Next(int(payloadLength))

	if address == InvalidObjectAddress {
		return nil, Errorf(ErrInvalidAddress, address, "frame of type %s addressed to 0", messageType)
	}
	if messageType == InvalidMessageType {
		return nil, Errorf(ErrInvalidType, address, "frame with message type 0")
	}

	message := c.NewMessage(address, messageType)
	if !compressed {
		message.payload.Set(payload)
		return message, nil
	}
	if err := c.compressor.decompress(payload, message.payload.Resize); err != nil {
		c.logger.Warn("discarding corrupt compressed payload",
			"address", address,
			"message_type", messageType.String(),
			"compressed_size", payloadLength,
			"error", err,
		)
		message.payload.Reset()
	}
	return message, nil
}

// AppendFrame appends the encoded frame for message to dst and returns
// the extended slice.
func (c *Codec) AppendFrame(dst []byte, message *Message) ([]byte, error) {
	payload := message.Payload()
	if len(payload) > math.MaxInt32 {
		return dst, fmt.Errorf("payload of %d bytes exceeds the frame size limit", len(payload))
	}

	size := int32(len(payload))
	if len(payload) >= c.minCompressSize {
		if compressedPayload, ok := c.compressor.compress(payload); ok {
			payload = compressedPayload
			size = -int32(len(compressedPayload))
		}
	}

	dst = binary.BigEndian.AppendUint32(dst, uint32(size))
	dst = binary.BigEndian.AppendUint16(dst, uint16(message.Address()))
	dst = append(dst, uint8(message.Type()))
	return append(dst, payload...), nil
}

// WriteMessage encodes message as one frame and writes it with a
// single Write call, so frames from successive calls never interleave
// on a stream that serializes writes. Returns the number of bytes
// written.
func (c *Codec) WriteMessage(w io.Writer, message *Message) (int, error) {
	frame, err := c.AppendFrame(c.frame[:0], message)
	if err != nil {
		return 0, err
	}
	c.frame = frame
	written, err := w.Write(frame)
	if err != nil {
		return written, fmt.Errorf("writing %s frame: %w", message.Type(), err)
	}
	return written, nil
}
