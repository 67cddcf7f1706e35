// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package endpoint

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"os"
	"slices"
	"testing"

	"github.com/bureau-foundation/liveprobe/lib/bufpool"
	"github.com/bureau-foundation/liveprobe/object"
	"github.com/bureau-foundation/liveprobe/protocol"
)

// The tests in this file construct a Server and a Client, which are
// limited to one of each per process, so none of them run in parallel.

// loopbackLink is one direction-pair of an in-memory connection: writes
// land in the peer's inbound queue and are delivered by session.pump.
type loopbackLink struct {
	peer    *loopbackLink
	inbound [][]byte
	closed  bool
}

func newLoopback() (*loopbackLink, *loopbackLink) {
	a, b := &loopbackLink{}, &loopbackLink{}
	a.peer, b.peer = b, a
	return a, b
}

func (l *loopbackLink) Write(p []byte) (int, error) {
	if l.closed || l.peer.closed {
		return 0, io.ErrClosedPipe
	}
	l.peer.inbound = append(l.peer.inbound, bytes.Clone(p))
	return len(p), nil
}

func (l *loopbackLink) Close() error {
	l.closed = true
	return nil
}

type session struct {
	t          *testing.T
	server     *Server
	client     *Client
	serverLink *loopbackLink
	clientLink *loopbackLink
}

func newServerForTest(t *testing.T) *Server {
	t.Helper()
	server, err := NewServer(ServerOptions{Options: testOptions(), Label: "test-probe"})
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	t.Cleanup(func() { server.Close() })
	return server
}

func newClientForTest(t *testing.T) *Client {
	t.Helper()
	client, err := NewClient(testOptions())
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	t.Cleanup(func() { client.Close() })
	return client
}

// newSession builds a server and client without connecting them.
func newSession(t *testing.T) *session {
	t.Helper()
	return &session{t: t, server: newServerForTest(t), client: newClientForTest(t)}
}

// connect attaches both sides to a fresh loopback and runs the
// handshake to completion.
func (s *session) connect() {
	s.t.Helper()
	s.serverLink, s.clientLink = newLoopback()
	if err := s.client.Attach(s.clientLink); err != nil {
		s.t.Fatalf("client Attach: %v", err)
	}
	if err := s.server.Attach(s.serverLink); err != nil {
		s.t.Fatalf("server Attach: %v", err)
	}
	s.pump()
}

// pump delivers queued frames alternately until both directions are
// idle, then propagates hangups.
func (s *session) pump() {
	s.t.Helper()
	for rounds := 0; len(s.serverLink.inbound)+len(s.clientLink.inbound) > 0; rounds++ {
		if rounds > 1000 {
			s.t.Fatal("loopback never went idle")
		}
		if len(s.serverLink.inbound) > 0 {
			data := s.serverLink.inbound[0]
			s.serverLink.inbound = s.serverLink.inbound[1:]
			s.server.Receive(data)
		}
		if len(s.clientLink.inbound) > 0 {
			data := s.clientLink.inbound[0]
			s.clientLink.inbound = s.clientLink.inbound[1:]
			s.client.Receive(data)
		}
	}
	if s.clientLink.closed {
		s.server.Closed()
	}
	if s.serverLink.closed {
		s.client.Closed()
	}
}

func TestHandshakeNegotiatesDataVersion(t *testing.T) {
	s := newSession(t)
	windowAddress, err := s.server.RegisterObject("window", object.NewLive("window"))
	if err != nil {
		t.Fatalf("RegisterObject: %v", err)
	}
	readyCalls := 0
	s.client.OnReady(func() { readyCalls++ })

	s.connect()

	if !s.client.Ready() || readyCalls != 1 {
		t.Fatalf("client ready=%v, hooks=%d, want true and 1", s.client.Ready(), readyCalls)
	}
	if got := s.client.Codec().DataVersion(); got != protocol.DataVersionMax {
		t.Errorf("client data version: got %d, want %d", got, protocol.DataVersionMax)
	}
	if got := s.server.Codec().DataVersion(); got != protocol.DataVersionMax {
		t.Errorf("server data version: got %d, want %d", got, protocol.DataVersionMax)
	}
	if got := s.client.ObjectAddress("window"); got != windowAddress {
		t.Errorf("client address of window: got %d, want %d", got, windowAddress)
	}
	if !slices.Equal(s.client.ObjectAddresses(), s.server.ObjectAddresses()) {
		t.Errorf("object maps differ: client %v, server %v", s.client.ObjectAddresses(), s.server.ObjectAddresses())
	}

	identity, ok := s.client.ServerIdentity()
	if !ok {
		t.Fatal("client never received ServerInfo")
	}
	if identity != s.server.Identity() {
		t.Errorf("identity: got %+v, want %+v", identity, s.server.Identity())
	}
	if identity.Label != "test-probe" || identity.PID != os.Getpid() || len(identity.Key) != 16 {
		t.Errorf("identity fields: got %+v", identity)
	}
}

func TestVersionMismatchStopsBeforeDispatch(t *testing.T) {
	client := newClientForTest(t)
	var failures []error
	client.OnHandshakeFailed(func(err error) { failures = append(failures, err) })
	stream := &recordingStream{}
	client.Attach(stream)

	version := binary.BigEndian.AppendUint32(nil, protocol.Version+98)
	version = binary.BigEndian.AppendUint32(version, protocol.DataVersionMax)
	added := binary.BigEndian.AppendUint32(nil, uint32(len("late")))
	added = append(added, "late"...)
	added = binary.BigEndian.AppendUint16(added, 9)

	client.Receive(append(
		encodeFrame(t, protocol.EndpointAddress, protocol.ServerVersion, version),
		encodeFrame(t, protocol.EndpointAddress, protocol.ObjectAdded, added)...))

	if client.IsConnected() || !stream.closed {
		t.Errorf("after mismatch: connected=%v, stream closed=%v", client.IsConnected(), stream.closed)
	}
	if !protocol.IsKind(client.HandshakeError(), protocol.ErrVersionMismatch) {
		t.Errorf("HandshakeError: got %v, want ErrVersionMismatch", client.HandshakeError())
	}
	if len(failures) != 1 {
		t.Errorf("handshake failure hooks: got %d, want 1", len(failures))
	}
	if client.ObjectAddress("late") != protocol.InvalidObjectAddress {
		t.Error("frame after the rejected handshake was dispatched")
	}
	if len(stream.frames) != 0 {
		t.Errorf("client replied %d frames to a rejected server", len(stream.frames))
	}
}

func TestObjectAnnouncementsAreMirrored(t *testing.T) {
	s := newSession(t)
	var registered, unregistered []string
	s.client.OnObjectRegistered(func(named NamedAddress) { registered = append(registered, named.Name) })
	s.client.OnObjectUnregistered(func(named NamedAddress) { unregistered = append(unregistered, named.Name) })
	s.connect()

	address, err := s.server.RegisterObject("inspector", nil)
	if err != nil {
		t.Fatalf("RegisterObject: %v", err)
	}
	s.pump()
	if got := s.client.ObjectAddress("inspector"); got != address {
		t.Errorf("client address: got %d, want %d", got, address)
	}

	if _, err := s.server.RegisterObject("inspector", nil); !protocol.IsKind(err, protocol.ErrDuplicateName) {
		t.Errorf("duplicate RegisterObject: got %v, want ErrDuplicateName", err)
	}

	if err := s.server.UnregisterObject("inspector"); err != nil {
		t.Fatalf("UnregisterObject: %v", err)
	}
	s.pump()
	if s.client.ObjectAddress("inspector") != protocol.InvalidObjectAddress {
		t.Error("client still maps inspector after removal")
	}
	if !slices.Equal(registered, []string{"inspector"}) || !slices.Equal(unregistered, []string{"inspector"}) {
		t.Errorf("hooks: registered %v, unregistered %v", registered, unregistered)
	}
}

func TestDestroyedServerObjectIsWithdrawn(t *testing.T) {
	s := newSession(t)
	live := object.NewLive("transient")
	if _, err := s.server.RegisterObject("transient", live); err != nil {
		t.Fatalf("RegisterObject: %v", err)
	}
	s.connect()
	if s.client.ObjectAddress("transient") == protocol.InvalidObjectAddress {
		t.Fatal("client never learned about transient")
	}

	live.Destroy()
	s.pump()
	if s.server.ObjectAddress("transient") != protocol.InvalidObjectAddress {
		t.Error("server kept the destroyed object's entry")
	}
	if s.client.ObjectAddress("transient") != protocol.InvalidObjectAddress {
		t.Error("client kept the destroyed object's entry")
	}
}

func TestMonitoringFollowsClientHandlers(t *testing.T) {
	s := newSession(t)
	address, _ := s.server.RegisterObject("model", nil)
	var changes []bool
	s.server.SetMonitorCallback(address, func(monitored bool) { changes = append(changes, monitored) })
	s.connect()

	if err := s.client.RegisterMessageHandler(address, HandlerFunc(func(*protocol.Message) {})); err != nil {
		t.Fatalf("RegisterMessageHandler: %v", err)
	}
	s.pump()
	if !s.server.IsMonitored(address) {
		t.Fatal("server does not see the object as monitored")
	}

	if err := s.client.UnregisterMessageHandler(address); err != nil {
		t.Fatalf("UnregisterMessageHandler: %v", err)
	}
	s.pump()
	if s.server.IsMonitored(address) {
		t.Error("server still sees the object as monitored")
	}

	// A destroyed handler withdraws its monitor request too.
	handler := &destroyableHandler{}
	s.client.RegisterMessageHandler(address, handler)
	s.pump()
	handler.Destroy()
	s.pump()

	// Disconnecting clears whatever was left.
	s.client.RegisterMessageHandler(address, HandlerFunc(func(*protocol.Message) {}))
	s.pump()
	s.client.Close()
	s.pump()

	want := []bool{true, false, true, false, true, false}
	if !slices.Equal(changes, want) {
		t.Errorf("monitor changes: got %v, want %v", changes, want)
	}
}

func TestInvokeObjectAcrossTheConnection(t *testing.T) {
	s := newSession(t)
	serverObject := object.NewLive("window")
	var titles []string
	serverObject.AddMethod("setTitle", func(args []protocol.Value) error {
		title, _ := args[0].AsString()
		titles = append(titles, title)
		return nil
	})
	if _, err := s.server.RegisterObject("window", serverObject); err != nil {
		t.Fatalf("RegisterObject: %v", err)
	}
	s.connect()

	if err := s.client.InvokeObject("window", "setTitle", protocol.String("from client")); err != nil {
		t.Fatalf("client InvokeObject: %v", err)
	}
	s.pump()
	if !slices.Equal(titles, []string{"from client"}) {
		t.Fatalf("server titles: got %q", titles)
	}

	// The server side invokes locally and remotely.
	clientObject := &recordingInvoker{}
	if _, err := s.client.RegisterObject("window", clientObject); err != nil {
		t.Fatalf("client RegisterObject: %v", err)
	}
	if err := s.server.InvokeObject("window", "setTitle", protocol.String("from server")); err != nil {
		t.Fatalf("server InvokeObject: %v", err)
	}
	s.pump()
	if !slices.Equal(titles, []string{"from client", "from server"}) {
		t.Errorf("server titles: got %q", titles)
	}
	if len(clientObject.calls) != 1 || clientObject.calls[0].method != "setTitle" {
		t.Errorf("client invocations: got %+v", clientObject.calls)
	}
}

func TestClientRegisterObjectNeedsAnnouncedName(t *testing.T) {
	client := newClientForTest(t)
	_, err := client.RegisterObject("unannounced", &recordingInvoker{})
	if !protocol.IsKind(err, protocol.ErrUnknownName) {
		t.Errorf("RegisterObject: got %v, want ErrUnknownName", err)
	}
}

func TestReconnectRenegotiates(t *testing.T) {
	s := newSession(t)
	s.connect()
	if err := s.server.Detach(); err != nil {
		t.Fatalf("server Detach: %v", err)
	}
	s.pump()
	if s.client.IsConnected() || s.client.Ready() {
		t.Fatal("client still connected after server hangup")
	}
	if got := s.client.Codec().DataVersion(); got != protocol.DataVersionMin {
		t.Errorf("client data version after hangup: got %d, want %d", got, protocol.DataVersionMin)
	}

	s.connect()
	if !s.client.Ready() {
		t.Error("second handshake did not complete")
	}
}

func TestOneEndpointPerRole(t *testing.T) {
	server := newServerForTest(t)
	if _, err := NewServer(ServerOptions{Options: testOptions()}); !errors.Is(err, ErrDuplicateEndpoint) {
		t.Fatalf("second NewServer: got %v, want ErrDuplicateEndpoint", err)
	}

	// The client role is independent.
	client := newClientForTest(t)
	if _, err := NewClient(testOptions()); !errors.Is(err, ErrDuplicateEndpoint) {
		t.Errorf("second NewClient: got %v, want ErrDuplicateEndpoint", err)
	}
	client.Close()

	server.Close()
	replacement, err := NewServer(ServerOptions{Options: testOptions()})
	if err != nil {
		t.Fatalf("NewServer after Close: %v", err)
	}
	replacement.Close()
}

func TestCloseChecksPrivatePool(t *testing.T) {
	server := newServerForTest(t)
	held := server.NewMessage(protocol.EndpointAddress, protocol.ObjectAdded)
	func() {
		defer func() {
			if recover() == nil {
				t.Error("Close with a message still held did not panic")
			}
		}()
		server.Close()
	}()
	held.Release()

	// The role is released even though Close panicked.
	client := newClientForTest(t)
	client.NewMessage(protocol.EndpointAddress, protocol.ObjectMonitored).Release()
	if err := client.Close(); err != nil {
		t.Errorf("client Close after Release: %v", err)
	}

	// A pool supplied by the caller belongs to the caller.
	pool := bufpool.New(bufpool.Options{})
	options := testOptions()
	options.Pool = pool
	shared, err := NewServer(ServerOptions{Options: options})
	if err != nil {
		t.Fatalf("NewServer after a panicking Close: %v", err)
	}
	held = shared.NewMessage(protocol.EndpointAddress, protocol.ObjectAdded)
	if err := shared.Close(); err != nil {
		t.Errorf("Close with a shared pool: %v", err)
	}
	if got := pool.Outstanding(); got != 1 {
		t.Errorf("shared pool outstanding: got %d, want 1", got)
	}
	held.Release()
	pool.Close()
}
