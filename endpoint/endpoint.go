// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package endpoint

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"time"

	"github.com/bureau-foundation/liveprobe/lib/bufpool"
	"github.com/bureau-foundation/liveprobe/lib/clock"
	"github.com/bureau-foundation/liveprobe/protocol"
)

var (
	// ErrAlreadyAttached is returned by Attach on a connected endpoint.
	ErrAlreadyAttached = errors.New("endpoint: already attached to a stream")

	// ErrNotConnected is returned by operations that need a stream.
	ErrNotConnected = errors.New("endpoint: not connected")
)

// DefaultStatsInterval is the period of the transmission-rate tick.
const DefaultStatsInterval = time.Second

// Stream is the outbound side of a connection. Each Write carries
// exactly one frame. Write must not retain the slice.
type Stream interface {
	io.Writer
	io.Closer
}

// Source is implemented by streams that deliver received bytes on a
// channel. Each delivery is a readiness notification; the channel is
// closed when the peer goes away. Streams without a Source are fed by
// calling Receive and Closed directly.
type Source interface {
	Data() <-chan []byte
}

// Flusher is implemented by streams that buffer writes.
type Flusher interface {
	Flush(ctx context.Context) error
}

// State is the connection state.
type State int

const (
	Disconnected State = iota
	Connected
)

func (s State) String() string {
	if s == Connected {
		return "connected"
	}
	return "disconnected"
}

// Options configures an Endpoint.
type Options struct {
	// Compression and MinCompressSize configure the frame codec.
	Compression     protocol.Compression
	MinCompressSize int

	// Policy handles protocol errors raised while dispatching inbound
	// messages. Nil logs them.
	Policy protocol.ErrorPolicy

	// StatsInterval is the transmission-rate tick period. Zero means
	// DefaultStatsInterval.
	StatsInterval time.Duration

	// Clock drives the tick. Nil means the real clock.
	Clock clock.Clock

	// Pool supplies message buffers. Nil creates a private pool.
	Pool *bufpool.Pool

	Logger *slog.Logger
}

// Endpoint is one half of a connection: it owns the frame codec, the
// address registry and the dispatcher, and tracks connection state and
// traffic counters.
//
// An Endpoint is single-threaded. Every method except Post and Do must
// be called from the goroutine running Run (or, when Run is not used,
// from a single goroutine that feeds it with Receive and Closed).
type Endpoint struct {
	codec      *protocol.Codec
	ownsPool   bool
	registry   *Registry
	dispatcher *Dispatcher
	policy     protocol.ErrorPolicy
	logger     *slog.Logger

	clock         clock.Clock
	statsInterval time.Duration

	state   State
	stream  Stream
	inbound <-chan []byte
	input   bytes.Buffer

	posted chan func()

	statistics   *Statistics
	bytesRead    int64
	bytesWritten int64

	attachHooks     []func()
	disconnectHooks []func()
	rateHooks       []func(TransmissionRate)
}

func newEndpoint(options Options, hooks RegistryHooks) *Endpoint {
	if options.Logger == nil {
		options.Logger = slog.Default()
	}
	if options.Policy == nil {
		options.Policy = protocol.LogPolicy(options.Logger)
	}
	if options.Clock == nil {
		options.Clock = clock.Real()
	}
	if options.StatsInterval <= 0 {
		options.StatsInterval = DefaultStatsInterval
	}

	registry := NewRegistry(hooks)
	e := &Endpoint{
		codec: protocol.NewCodec(protocol.CodecOptions{
			Compression:     options.Compression,
			MinCompressSize: options.MinCompressSize,
			Pool:            options.Pool,
			Logger:          options.Logger,
		}),
		ownsPool:      options.Pool == nil,
		registry:      registry,
		dispatcher:    NewDispatcher(registry),
		policy:        options.Policy,
		logger:        options.Logger,
		clock:         options.Clock,
		statsInterval: options.StatsInterval,
		posted:        make(chan func(), 64),
		statistics:    newStatistics(),
	}
	if err := registry.RegisterName(protocol.EndpointObjectName, protocol.EndpointAddress); err != nil {
		panic(fmt.Sprintf("registering endpoint object: %v", err))
	}
	return e
}

// closePool closes the buffer pool when the endpoint created it. A
// message still checked out from it is an ownership bug, and Close on
// the pool panics.
func (e *Endpoint) closePool() {
	if e.ownsPool {
		e.codec.Pool().Close()
	}
}

// Registry returns the endpoint's address registry.
func (e *Endpoint) Registry() *Registry { return e.registry }

// Codec returns the endpoint's frame codec.
func (e *Endpoint) Codec() *protocol.Codec { return e.codec }

// Logger returns the endpoint's logger.
func (e *Endpoint) Logger() *slog.Logger { return e.logger }

// State returns the connection state.
func (e *Endpoint) State() State { return e.state }

// IsConnected reports whether a stream is attached.
func (e *Endpoint) IsConnected() bool { return e.state == Connected }

// Statistics returns the cumulative per-address message counters.
func (e *Endpoint) Statistics() *Statistics { return e.statistics }

// ObjectAddress returns the address registered under name, or
// protocol.InvalidObjectAddress.
func (e *Endpoint) ObjectAddress(name string) protocol.ObjectAddress {
	return e.registry.LookupByName(name)
}

// ObjectAddresses returns the object map.
func (e *Endpoint) ObjectAddresses() []NamedAddress {
	return e.registry.AllAddresses()
}

// Report hands a dispatch-path error to the error policy.
func (e *Endpoint) Report(err error) {
	if err != nil {
		e.policy(err)
	}
}

// OnAttach registers fn to run after each successful Attach.
func (e *Endpoint) OnAttach(fn func()) { e.attachHooks = append(e.attachHooks, fn) }

// OnDisconnect registers fn to run after the stream goes away.
func (e *Endpoint) OnDisconnect(fn func()) { e.disconnectHooks = append(e.disconnectHooks, fn) }

// OnTransmissionRate registers fn to receive each tick's sample.
func (e *Endpoint) OnTransmissionRate(fn func(TransmissionRate)) {
	e.rateHooks = append(e.rateHooks, fn)
}

// Attach connects the endpoint to a stream. Attaching while connected
// fails with ErrAlreadyAttached. If the stream implements Source, Run
// reads from it.
func (e *Endpoint) Attach(stream Stream) error {
	if e.state == Connected {
		return ErrAlreadyAttached
	}
	if stream == nil {
		return errors.New("endpoint: attaching a nil stream")
	}
	e.stream = stream
	e.state = Connected
	e.input.Reset()
	if source, ok := stream.(Source); ok {
		e.inbound = source.Data()
	}
	e.logger.Debug("stream attached")
	for _, hook := range slices.Clone(e.attachHooks) {
		hook()
	}
	return nil
}

// Detach closes the stream and transitions to Disconnected.
func (e *Endpoint) Detach() error {
	if e.state != Connected {
		return ErrNotConnected
	}
	stream := e.stream
	e.Closed()
	return stream.Close()
}

// Closed records that the stream went away: the endpoint becomes
// Disconnected, the data version falls back to the minimum, and
// disconnect hooks run. Registry bindings are kept.
func (e *Endpoint) Closed() {
	if e.state != Connected {
		return
	}
	e.state = Disconnected
	e.stream = nil
	e.inbound = nil
	e.input.Reset()
	e.codec.ResetDataVersion()
	e.logger.Debug("stream closed")
	for _, hook := range slices.Clone(e.disconnectHooks) {
		hook()
	}
}

// Receive appends received bytes and dispatches every complete frame.
// Partial frames stay buffered until more bytes arrive.
func (e *Endpoint) Receive(data []byte) {
	if e.state != Connected {
		return
	}
	e.input.Write(data)
	e.bytesRead += int64(len(data))

	for e.state == Connected && e.codec.CanReadMessage(&e.input) {
		before := e.input.Len()
		message, err := e.codec.ReadMessage(&e.input)
		if err != nil {
			e.Report(err)
			continue
		}
		e.statistics.record(Inbound, message.Address(), message.Type(), before-e.input.Len())
		e.Report(e.dispatcher.Dispatch(message))
		message.Release()
	}
}

// NewMessage creates a message at the negotiated data version.
func (e *Endpoint) NewMessage(address protocol.ObjectAddress, messageType protocol.MessageType) *protocol.Message {
	return e.codec.NewMessage(address, messageType)
}

// Send writes message to the stream and releases it. Send takes
// ownership whether or not the message is written. While disconnected
// the message is silently dropped.
func (e *Endpoint) Send(message *protocol.Message) {
	defer message.Release()
	if e.state != Connected {
		return
	}
	if message.Address() == protocol.InvalidObjectAddress {
		e.Report(&protocol.Error{Kind: protocol.ErrInvalidAddress, Detail: "sending " + message.Type().String()})
		return
	}
	written, err := e.codec.WriteMessage(e.stream, message)
	if err != nil {
		e.logger.Warn("write failed, dropping connection", "error", err)
		e.Closed()
		return
	}
	e.bytesWritten += int64(written)
	e.statistics.record(Outbound, message.Address(), message.Type(), written)
}

// InvokeObject sends a MethodCall for the named object. It does
// nothing while disconnected.
func (e *Endpoint) InvokeObject(name, method string, args ...protocol.Value) error {
	address := e.registry.LookupByName(name)
	if address == protocol.InvalidObjectAddress {
		return &protocol.Error{Kind: protocol.ErrUnknownName, Name: name}
	}
	if e.state != Connected {
		return nil
	}
	message := e.NewMessage(address, protocol.MethodCall)
	if err := EncodeMethodCall(message, method, args); err != nil {
		message.Release()
		return err
	}
	e.Send(message)
	return nil
}

// Tick emits a transmission-rate sample covering the bytes moved since
// the previous tick, then resets the byte counters.
func (e *Endpoint) Tick() {
	rate := TransmissionRate{
		BytesRead:    e.bytesRead,
		BytesWritten: e.bytesWritten,
		Interval:     e.statsInterval,
	}
	e.bytesRead, e.bytesWritten = 0, 0
	for _, hook := range slices.Clone(e.rateHooks) {
		hook(rate)
	}
}

// WaitForMessagesWritten blocks until every frame handed to the
// stream has been written, for streams that buffer. It is meant for
// shutdown paths and must not be called from a message handler.
func (e *Endpoint) WaitForMessagesWritten(ctx context.Context) error {
	if e.state != Connected {
		return nil
	}
	if flusher, ok := e.stream.(Flusher); ok {
		return flusher.Flush(ctx)
	}
	return nil
}

// Post queues fn to run on the Run goroutine. It is safe to call from
// any goroutine and blocks only while the queue is full.
func (e *Endpoint) Post(fn func()) {
	e.posted <- fn
}

// Do runs fn on the Run goroutine and waits for it to finish.
func (e *Endpoint) Do(ctx context.Context, fn func()) error {
	done := make(chan struct{})
	wrapped := func() {
		defer close(done)
		fn()
	}
	select {
	case e.posted <- wrapped:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run drives the endpoint until ctx is cancelled: it dispatches
// inbound data from a Source stream, runs posted functions, and ticks
// the transmission-rate sample.
func (e *Endpoint) Run(ctx context.Context) error {
	ticker := e.clock.NewTicker(e.statsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case fn := <-e.posted:
			fn()

		case data, ok := <-e.inbound:
			if !ok {
				if err := e.Detach(); err != nil {
					e.logger.Debug("closing stream after peer hangup", "error", err)
				}
				continue
			}
			e.Receive(data)

		case <-ticker.C:
			e.Tick()
		}
	}
}
