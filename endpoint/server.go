// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package endpoint

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"os"

	"github.com/zeebo/blake3"

	"github.com/bureau-foundation/liveprobe/protocol"
)

// ServerOptions configures a Server.
type ServerOptions struct {
	Options

	// Label is the human-readable server name advertised in
	// ServerInfo. Empty means the executable name.
	Label string
}

// Server is the endpoint living inside the observed process. It
// allocates addresses for the objects it exposes, announces them to
// the client, and tracks which objects the client is watching.
type Server struct {
	*Endpoint

	identity    Identity
	nextAddress protocol.ObjectAddress
	monitored   map[protocol.ObjectAddress]bool
	monitors    map[protocol.ObjectAddress]func(monitored bool)
	closed      bool
}

// NewServer creates the process's server endpoint. Only one may be
// open at a time; a second call before Close fails with
// ErrDuplicateEndpoint.
func NewServer(options ServerOptions) (*Server, error) {
	if err := claimRole(roleServer); err != nil {
		return nil, err
	}

	s := &Server{
		nextAddress: protocol.EndpointAddress + 1,
		monitored:   make(map[protocol.ObjectAddress]bool),
		monitors:    make(map[protocol.ObjectAddress]func(bool)),
	}
	s.Endpoint = newEndpoint(options.Options, RegistryHooks{
		ObjectDestroyed: s.objectDestroyed,
	})
	s.identity = newIdentity(options.Label, s.clock.Now().UnixNano())

	if err := s.registry.BindHandler(protocol.EndpointAddress, HandlerFunc(s.handleEndpointMessage)); err != nil {
		releaseRole(roleServer)
		return nil, fmt.Errorf("binding endpoint handler: %w", err)
	}
	s.OnAttach(s.sendHandshake)
	s.OnDisconnect(s.clearMonitored)
	return s, nil
}

func newIdentity(label string, startedAt int64) Identity {
	if label == "" {
		label = executableName()
	}
	pid := os.Getpid()

	hasher := blake3.New()
	hasher.Write([]byte(label))
	hasher.Write(binary.BigEndian.AppendUint64(nil, uint64(pid)))
	hasher.Write(binary.BigEndian.AppendUint64(nil, uint64(startedAt)))
	digest := hasher.Sum(nil)

	return Identity{
		Label:     label,
		Key:       hex.EncodeToString(digest[:8]),
		PID:       pid,
		Host:      hostDescription(),
		StartedAt: startedAt,
	}
}

// Identity returns the label, key, and host information advertised to
// clients.
func (s *Server) Identity() Identity { return s.identity }

// Close detaches from any stream and releases the server role. When the
// server created its own buffer pool, Close closes it, which panics if
// a message acquired from it was never released.
func (s *Server) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	defer releaseRole(roleServer)
	var err error
	if s.IsConnected() {
		err = s.Detach()
	}
	s.closePool()
	return err
}

func (s *Server) allocateAddress() (protocol.ObjectAddress, error) {
	for range int(protocol.LauncherAddress) {
		candidate := s.nextAddress
		s.nextAddress++
		if s.nextAddress == protocol.LauncherAddress {
			s.nextAddress = protocol.EndpointAddress + 1
		}
		if _, taken := s.registry.LookupByAddress(candidate); !taken {
			return candidate, nil
		}
	}
	return protocol.InvalidObjectAddress, fmt.Errorf("endpoint: object address space exhausted")
}

// RegisterObject exposes target under name at a freshly allocated
// address and announces it to a connected client. A nil target
// registers the name only, for objects that are served by a message
// handler.
func (s *Server) RegisterObject(name string, target Invoker) (protocol.ObjectAddress, error) {
	if existing := s.registry.LookupByName(name); existing != protocol.InvalidObjectAddress {
		return protocol.InvalidObjectAddress, &protocol.Error{Kind: protocol.ErrDuplicateName, Name: name, Address: existing}
	}
	address, err := s.allocateAddress()
	if err != nil {
		return protocol.InvalidObjectAddress, err
	}
	if err := s.registry.RegisterName(name, address); err != nil {
		return protocol.InvalidObjectAddress, err
	}
	if target != nil {
		if err := s.registry.BindObject(address, target); err != nil {
			s.registry.UnregisterName(name)
			return protocol.InvalidObjectAddress, err
		}
	}

	message := s.NewMessage(protocol.EndpointAddress, protocol.ObjectAdded)
	encoder := message.Encoder()
	encoder.WriteString(name)
	encoder.WriteAddress(address)
	s.Send(message)

	s.logger.Debug("object registered", "name", name, "address", address)
	return address, nil
}

// UnregisterObject removes name and announces the removal.
func (s *Server) UnregisterObject(name string) error {
	address := s.registry.LookupByName(name)
	if err := s.registry.UnregisterName(name); err != nil {
		return err
	}
	delete(s.monitored, address)
	delete(s.monitors, address)

	message := s.NewMessage(protocol.EndpointAddress, protocol.ObjectRemoved)
	message.Encoder().WriteString(name)
	s.Send(message)
	return nil
}

func (s *Server) objectDestroyed(address protocol.ObjectAddress, name string) {
	if err := s.UnregisterObject(name); err != nil {
		s.Report(err)
	}
}

// RegisterMessageHandler binds a handler to address.
func (s *Server) RegisterMessageHandler(address protocol.ObjectAddress, handler Handler) error {
	return s.registry.BindHandler(address, handler)
}

// UnregisterMessageHandler unbinds the handler at address.
func (s *Server) UnregisterMessageHandler(address protocol.ObjectAddress) error {
	return s.registry.UnbindHandler(address)
}

// InvokeObject calls method on the named object: remotely, by sending
// a MethodCall when connected, and locally when an object is bound
// here.
func (s *Server) InvokeObject(name, method string, args ...protocol.Value) error {
	if err := s.Endpoint.InvokeObject(name, method, args...); err != nil {
		return err
	}
	address := s.registry.LookupByName(name)
	target, _ := s.registry.LookupByAddress(address)
	if target.Object == nil {
		return nil
	}
	padded := make([]protocol.Value, protocol.MaxMethodArguments)
	copy(padded, args)
	return target.Object.Invoke(method, padded)
}

// SetMonitorCallback registers fn to be told when a client starts or
// stops watching address. Passing nil removes the callback.
func (s *Server) SetMonitorCallback(address protocol.ObjectAddress, fn func(monitored bool)) {
	if fn == nil {
		delete(s.monitors, address)
		return
	}
	s.monitors[address] = fn
}

// IsMonitored reports whether the client is watching address.
func (s *Server) IsMonitored(address protocol.ObjectAddress) bool {
	return s.monitored[address]
}

func (s *Server) setMonitored(address protocol.ObjectAddress, monitored bool) {
	if s.monitored[address] == monitored {
		return
	}
	if monitored {
		s.monitored[address] = true
	} else {
		delete(s.monitored, address)
	}
	if fn, ok := s.monitors[address]; ok {
		fn(monitored)
	}
}

func (s *Server) clearMonitored() {
	addresses := make([]protocol.ObjectAddress, 0, len(s.monitored))
	for address := range s.monitored {
		addresses = append(addresses, address)
	}
	for _, address := range addresses {
		s.setMonitored(address, false)
	}
}

func (s *Server) sendHandshake() {
	version := s.NewMessage(protocol.EndpointAddress, protocol.ServerVersion)
	encoder := version.Encoder()
	encoder.WriteUint32(protocol.Version)
	encoder.WriteUint32(protocol.DataVersionMax)
	s.Send(version)

	info := s.NewMessage(protocol.EndpointAddress, protocol.ServerInfo)
	if err := encodeIdentity(info, s.identity); err != nil {
		info.Release()
		s.Report(err)
	} else {
		s.Send(info)
	}

	objectMap := s.NewMessage(protocol.EndpointAddress, protocol.ObjectMapReply)
	if err := encodeObjectMap(objectMap, s.registry.AllAddresses()); err != nil {
		objectMap.Release()
		s.Report(err)
		return
	}
	s.Send(objectMap)
}

func (s *Server) handleEndpointMessage(message *protocol.Message) {
	decoder := message.Decoder()
	switch message.Type() {
	case protocol.ObjectMonitored, protocol.ObjectUnmonitored:
		address := decoder.ReadAddress()
		if err := decoder.Finish(); err != nil {
			s.Report(err)
			return
		}
		s.setMonitored(address, message.Type() == protocol.ObjectMonitored)

	case protocol.ClientDataVersionNegotiated:
		version := decoder.ReadUint32()
		if err := decoder.Finish(); err != nil {
			s.Report(err)
			return
		}
		if err := s.codec.SetDataVersion(int(version)); err != nil {
			s.Report(err)
			return
		}
		reply := s.NewMessage(protocol.EndpointAddress, protocol.ServerDataVersionNegotiated)
		reply.Encoder().WriteUint32(version)
		s.Send(reply)
		s.logger.Debug("data version negotiated", "data_version", version)

	default:
		s.Report(&protocol.Error{
			Kind:    protocol.ErrInvalidType,
			Address: protocol.EndpointAddress,
			Detail:  "server does not handle " + message.Type().String(),
		})
	}
}
