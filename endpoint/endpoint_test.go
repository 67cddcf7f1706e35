// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package endpoint

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/bureau-foundation/liveprobe/lib/bufpool"
	"github.com/bureau-foundation/liveprobe/lib/clock"
	"github.com/bureau-foundation/liveprobe/lib/testutil"
	"github.com/bureau-foundation/liveprobe/protocol"
)

// recordingStream keeps a copy of every frame written to it.
type recordingStream struct {
	frames   [][]byte
	closed   bool
	writeErr error
}

func (s *recordingStream) Write(p []byte) (int, error) {
	if s.writeErr != nil {
		return 0, s.writeErr
	}
	s.frames = append(s.frames, bytes.Clone(p))
	return len(p), nil
}

func (s *recordingStream) Close() error {
	s.closed = true
	return nil
}

// channelStream is a recordingStream that also delivers inbound data on
// a channel, the way a transport connection does.
type channelStream struct {
	recordingStream
	data chan []byte
}

func (s *channelStream) Data() <-chan []byte { return s.data }

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testOptions() Options {
	return Options{
		Compression: protocol.CompressionNone,
		Policy:      protocol.StrictPolicy,
		Logger:      quietLogger(),
	}
}

// encodeFrame produces the wire bytes for one message using a codec
// matching testOptions.
func encodeFrame(t *testing.T, address protocol.ObjectAddress, messageType protocol.MessageType, payload []byte) []byte {
	t.Helper()
	codec := protocol.NewCodec(protocol.CodecOptions{Compression: protocol.CompressionNone, Logger: quietLogger()})
	message := codec.NewMessage(address, messageType)
	defer message.Release()
	message.SetPayload(payload)
	frame, err := codec.AppendFrame(nil, message)
	if err != nil {
		t.Fatalf("AppendFrame: %v", err)
	}
	return frame
}

func TestAttachTwiceFails(t *testing.T) {
	t.Parallel()
	endpoint := newEndpoint(testOptions(), RegistryHooks{})
	attached := 0
	endpoint.OnAttach(func() { attached++ })

	if err := endpoint.Attach(&recordingStream{}); err != nil {
		t.Fatalf("Attach: %v", err)
	}
	if err := endpoint.Attach(&recordingStream{}); !errors.Is(err, ErrAlreadyAttached) {
		t.Errorf("second Attach: got %v, want ErrAlreadyAttached", err)
	}
	if attached != 1 {
		t.Errorf("attach hooks ran %d times, want 1", attached)
	}
	if endpoint.State() != Connected {
		t.Errorf("state: got %s, want connected", endpoint.State())
	}
}

func TestDetachClosesStream(t *testing.T) {
	t.Parallel()
	endpoint := newEndpoint(testOptions(), RegistryHooks{})
	disconnected := 0
	endpoint.OnDisconnect(func() { disconnected++ })

	if err := endpoint.Detach(); !errors.Is(err, ErrNotConnected) {
		t.Errorf("Detach while disconnected: got %v, want ErrNotConnected", err)
	}

	stream := &recordingStream{}
	endpoint.Attach(stream)
	endpoint.registry.RegisterName("kept", 9)
	if err := endpoint.codec.SetDataVersion(protocol.DataVersionMax); err != nil {
		t.Fatalf("SetDataVersion: %v", err)
	}

	if err := endpoint.Detach(); err != nil {
		t.Fatalf("Detach: %v", err)
	}
	if !stream.closed {
		t.Error("stream was not closed")
	}
	if disconnected != 1 {
		t.Errorf("disconnect hooks ran %d times, want 1", disconnected)
	}
	if got := endpoint.codec.DataVersion(); got != protocol.DataVersionMin {
		t.Errorf("data version after detach: got %d, want %d", got, protocol.DataVersionMin)
	}
	if endpoint.ObjectAddress("kept") != 9 {
		t.Error("registry entry was dropped on disconnect")
	}

	// A second Closed notification is a no-op.
	endpoint.Closed()
	if disconnected != 1 {
		t.Errorf("disconnect hooks ran %d times after repeated Closed, want 1", disconnected)
	}
}

func TestSendWhileDisconnectedDropsMessage(t *testing.T) {
	t.Parallel()
	pool := bufpool.New(bufpool.Options{})
	options := testOptions()
	options.Pool = pool
	endpoint := newEndpoint(options, RegistryHooks{})

	message := endpoint.NewMessage(protocol.EndpointAddress, protocol.ObjectAdded)
	message.Encoder().WriteString("ignored")
	endpoint.Send(message)

	if pool.Outstanding() != 0 {
		t.Errorf("outstanding buffers: got %d, want 0", pool.Outstanding())
	}
	if messages, _ := endpoint.Statistics().Total(Outbound); messages != 0 {
		t.Errorf("outbound messages: got %d, want 0", messages)
	}
	if err := endpoint.InvokeObject(protocol.EndpointObjectName, "noop"); err != nil {
		t.Errorf("InvokeObject while disconnected: %v", err)
	}
	if err := endpoint.InvokeObject("missing", "noop"); !protocol.IsKind(err, protocol.ErrUnknownName) {
		t.Errorf("InvokeObject on unknown name: got %v, want ErrUnknownName", err)
	}
}

func TestSendWritesOneFramePerMessage(t *testing.T) {
	t.Parallel()
	endpoint := newEndpoint(testOptions(), RegistryHooks{})
	stream := &recordingStream{}
	endpoint.Attach(stream)

	message := endpoint.NewMessage(5, 7)
	message.SetPayload([]byte("hello"))
	endpoint.Send(message)

	want := []byte{0, 0, 0, 5, 0, 5, 7, 'h', 'e', 'l', 'l', 'o'}
	if len(stream.frames) != 1 || !bytes.Equal(stream.frames[0], want) {
		t.Fatalf("frames: got %x, want [%x]", stream.frames, want)
	}
	messages, written := endpoint.Statistics().Total(Outbound)
	if messages != 1 || written != int64(len(want)) {
		t.Errorf("outbound totals: got %d messages %d bytes, want 1 and %d", messages, written, len(want))
	}
}

func TestWriteFailureDisconnects(t *testing.T) {
	t.Parallel()
	endpoint := newEndpoint(testOptions(), RegistryHooks{})
	disconnected := false
	endpoint.OnDisconnect(func() { disconnected = true })
	endpoint.Attach(&recordingStream{writeErr: io.ErrClosedPipe})

	endpoint.Send(endpoint.NewMessage(protocol.EndpointAddress, protocol.ObjectRemoved))
	if endpoint.IsConnected() || !disconnected {
		t.Errorf("after failed write: connected=%v, hook ran=%v", endpoint.IsConnected(), disconnected)
	}
}

func TestReceiveBuffersPartialFrames(t *testing.T) {
	t.Parallel()
	endpoint := newEndpoint(testOptions(), RegistryHooks{})
	endpoint.registry.RegisterName("sink", 5)
	var payloads []string
	endpoint.registry.BindHandler(5, HandlerFunc(func(message *protocol.Message) {
		payloads = append(payloads, string(message.Payload()))
	}))
	endpoint.Attach(&recordingStream{})

	stream := append(encodeFrame(t, 5, protocol.FirstUserMessageType, []byte("first")),
		encodeFrame(t, 5, protocol.FirstUserMessageType, []byte("second"))...)

	// Split inside the second frame's header.
	split := len(stream) - 10
	endpoint.Receive(stream[:split])
	if len(payloads) != 1 || payloads[0] != "first" {
		t.Fatalf("after first chunk: got %q, want [first]", payloads)
	}
	endpoint.Receive(stream[split:])
	if len(payloads) != 2 || payloads[1] != "second" {
		t.Fatalf("after second chunk: got %q, want [first second]", payloads)
	}

	messages, read := endpoint.Statistics().Total(Inbound)
	if messages != 2 || read != int64(len(stream)) {
		t.Errorf("inbound totals: got %d messages %d bytes, want 2 and %d", messages, read, len(stream))
	}
}

func TestReceiveReportsUnknownAddress(t *testing.T) {
	t.Parallel()
	var reported []error
	options := testOptions()
	options.Policy = func(err error) { reported = append(reported, err) }
	endpoint := newEndpoint(options, RegistryHooks{})
	endpoint.Attach(&recordingStream{})

	endpoint.Receive(encodeFrame(t, 77, protocol.FirstUserMessageType, nil))
	if len(reported) != 1 || !protocol.IsKind(reported[0], protocol.ErrUnknownAddress) {
		t.Errorf("reported: got %v, want one ErrUnknownAddress", reported)
	}
	if endpoint.registry.Len() != 1 {
		t.Errorf("registry size: got %d, want 1", endpoint.registry.Len())
	}
}

func TestStatisticsSnapshot(t *testing.T) {
	t.Parallel()
	endpoint := newEndpoint(testOptions(), RegistryHooks{})
	endpoint.registry.RegisterName("sink", 5)
	endpoint.registry.BindHandler(5, HandlerFunc(func(*protocol.Message) {}))
	endpoint.Attach(&recordingStream{})

	endpoint.Receive(encodeFrame(t, 5, protocol.FirstUserMessageType, []byte("x")))
	endpoint.Receive(encodeFrame(t, 5, protocol.FirstUserMessageType, []byte("y")))
	endpoint.Send(endpoint.NewMessage(5, protocol.FirstUserMessageType+1))

	snapshot := endpoint.Statistics().Snapshot()
	want := []MessageCount{
		{Direction: Inbound, Address: 5, Type: protocol.FirstUserMessageType, Messages: 2, Bytes: 2 * (protocol.HeaderSize + 1)},
		{Direction: Outbound, Address: 5, Type: protocol.FirstUserMessageType + 1, Messages: 1, Bytes: protocol.HeaderSize},
	}
	if len(snapshot) != len(want) {
		t.Fatalf("snapshot: got %+v, want %+v", snapshot, want)
	}
	for i := range want {
		if snapshot[i] != want[i] {
			t.Errorf("snapshot[%d]: got %+v, want %+v", i, snapshot[i], want[i])
		}
	}

	endpoint.Statistics().Reset()
	if len(endpoint.Statistics().Snapshot()) != 0 {
		t.Error("Reset left counters behind")
	}
}

func TestTickReportsBytesSinceLastTick(t *testing.T) {
	t.Parallel()
	endpoint := newEndpoint(testOptions(), RegistryHooks{})
	endpoint.registry.RegisterName("sink", 5)
	endpoint.registry.BindHandler(5, HandlerFunc(func(*protocol.Message) {}))
	var rates []TransmissionRate
	endpoint.OnTransmissionRate(func(rate TransmissionRate) { rates = append(rates, rate) })
	endpoint.Attach(&recordingStream{})

	frame := encodeFrame(t, 5, protocol.FirstUserMessageType, []byte("abc"))
	endpoint.Receive(frame)
	endpoint.Send(endpoint.NewMessage(5, protocol.FirstUserMessageType))
	endpoint.Tick()
	endpoint.Tick()

	want := []TransmissionRate{
		{BytesRead: int64(len(frame)), BytesWritten: protocol.HeaderSize, Interval: DefaultStatsInterval},
		{Interval: DefaultStatsInterval},
	}
	if len(rates) != len(want) || rates[0] != want[0] || rates[1] != want[1] {
		t.Errorf("rates: got %+v, want %+v", rates, want)
	}
}

func TestRunDrivesEndpoint(t *testing.T) {
	t.Parallel()
	fake := clock.Fake(time.Unix(1_700_000_000, 0))
	options := testOptions()
	options.Clock = fake
	options.StatsInterval = 500 * time.Millisecond
	endpoint := newEndpoint(options, RegistryHooks{})

	received := make(chan string, 4)
	rates := make(chan TransmissionRate, 4)
	disconnected := make(chan struct{})
	stream := &channelStream{data: make(chan []byte, 4)}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	setup := func() {
		endpoint.registry.RegisterName("sink", 5)
		endpoint.registry.BindHandler(5, HandlerFunc(func(message *protocol.Message) {
			received <- string(message.Payload())
		}))
		endpoint.OnTransmissionRate(func(rate TransmissionRate) { rates <- rate })
		endpoint.OnDisconnect(func() { close(disconnected) })
		endpoint.Attach(stream)
	}
	setup()

	done := make(chan error, 1)
	go func() { done <- endpoint.Run(ctx) }()

	frame := encodeFrame(t, 5, protocol.FirstUserMessageType, []byte("ping"))
	stream.data <- frame
	if got := testutil.RequireReceive(t, received, 5*time.Second, "waiting for dispatch"); got != "ping" {
		t.Errorf("payload: got %q, want ping", got)
	}

	fake.WaitForTickers(1)
	fake.Advance(500 * time.Millisecond)
	rate := testutil.RequireReceive(t, rates, 5*time.Second, "waiting for rate sample")
	if rate.BytesRead != int64(len(frame)) || rate.Interval != 500*time.Millisecond {
		t.Errorf("rate: got %+v, want %d bytes read over 500ms", rate, len(frame))
	}

	var address protocol.ObjectAddress
	if err := endpoint.Do(ctx, func() { address = endpoint.ObjectAddress("sink") }); err != nil {
		t.Fatalf("Do: %v", err)
	}
	if address != 5 {
		t.Errorf("address from Do: got %d, want 5", address)
	}

	close(stream.data)
	testutil.RequireClosed(t, disconnected, 5*time.Second, "waiting for hangup to disconnect")

	cancel()
	if err := testutil.RequireReceive(t, done, 5*time.Second, "waiting for Run to return"); !errors.Is(err, context.Canceled) {
		t.Errorf("Run: got %v, want context.Canceled", err)
	}
	if !stream.closed {
		t.Error("stream was not closed after hangup")
	}
}
