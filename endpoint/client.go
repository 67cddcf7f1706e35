// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package endpoint

import (
	"fmt"
	"slices"

	"github.com/bureau-foundation/liveprobe/protocol"
)

// Client is the endpoint in the controlling process. It mirrors the
// server's object map, negotiates the data version, and tells the
// server which objects it is watching.
type Client struct {
	*Endpoint

	ready        bool
	identity     Identity
	hasIdentity  bool
	handshakeErr error
	closed       bool

	readyHooks        []func()
	handshakeFailures []func(error)
	registeredHooks   []func(NamedAddress)
	unregisteredHooks []func(NamedAddress)
}

// NewClient creates the process's client endpoint. Only one may be
// open at a time.
func NewClient(options Options) (*Client, error) {
	if err := claimRole(roleClient); err != nil {
		return nil, err
	}
	c := &Client{}
	c.Endpoint = newEndpoint(options, RegistryHooks{
		HandlerDestroyed: c.handlerDestroyed,
	})
	if err := c.registry.BindHandler(protocol.EndpointAddress, HandlerFunc(c.handleEndpointMessage)); err != nil {
		releaseRole(roleClient)
		return nil, fmt.Errorf("binding endpoint handler: %w", err)
	}
	c.OnAttach(func() { c.handshakeErr = nil })
	c.OnDisconnect(func() { c.ready = false })
	return c, nil
}

// Close detaches from any stream and releases the client role. When the
// client created its own buffer pool, Close closes it, which panics if
// a message acquired from it was never released.
func (c *Client) Close() error {
	if c.closed {
		return nil
	}
	c.closed = true
	defer releaseRole(roleClient)
	var err error
	if c.IsConnected() {
		err = c.Detach()
	}
	c.closePool()
	return err
}

// Ready reports whether the handshake has completed on the current
// connection.
func (c *Client) Ready() bool { return c.ready }

// ServerIdentity returns the identity the server advertised.
func (c *Client) ServerIdentity() (Identity, bool) { return c.identity, c.hasIdentity }

// HandshakeError returns why the last handshake failed, or nil.
func (c *Client) HandshakeError() error { return c.handshakeErr }

// OnReady registers fn to run when the handshake completes.
func (c *Client) OnReady(fn func()) { c.readyHooks = append(c.readyHooks, fn) }

// OnHandshakeFailed registers fn to receive handshake failures such as
// a protocol version mismatch. The connection has already been
// dropped when fn runs.
func (c *Client) OnHandshakeFailed(fn func(error)) {
	c.handshakeFailures = append(c.handshakeFailures, fn)
}

// OnObjectRegistered registers fn to run when the server announces an
// object.
func (c *Client) OnObjectRegistered(fn func(NamedAddress)) {
	c.registeredHooks = append(c.registeredHooks, fn)
}

// OnObjectUnregistered registers fn to run when the server withdraws
// an object.
func (c *Client) OnObjectUnregistered(fn func(NamedAddress)) {
	c.unregisteredHooks = append(c.unregisteredHooks, fn)
}

// RegisterObject binds a local object to a name the server announced
// and returns its address.
func (c *Client) RegisterObject(name string, target Invoker) (protocol.ObjectAddress, error) {
	address := c.registry.LookupByName(name)
	if address == protocol.InvalidObjectAddress {
		return protocol.InvalidObjectAddress, &protocol.Error{
			Kind:   protocol.ErrUnknownName,
			Name:   name,
			Detail: "the server has not announced this object",
		}
	}
	if err := c.registry.BindObject(address, target); err != nil {
		return protocol.InvalidObjectAddress, err
	}
	return address, nil
}

// RegisterMessageHandler binds handler to address and asks the server
// to start producing traffic for it.
func (c *Client) RegisterMessageHandler(address protocol.ObjectAddress, handler Handler) error {
	if err := c.registry.BindHandler(address, handler); err != nil {
		return err
	}
	c.sendMonitored(address, protocol.ObjectMonitored)
	return nil
}

// UnregisterMessageHandler unbinds the handler at address and tells
// the server the object is no longer watched.
func (c *Client) UnregisterMessageHandler(address protocol.ObjectAddress) error {
	if err := c.registry.UnbindHandler(address); err != nil {
		return err
	}
	c.sendMonitored(address, protocol.ObjectUnmonitored)
	return nil
}

func (c *Client) handlerDestroyed(address protocol.ObjectAddress, name string) {
	c.sendMonitored(address, protocol.ObjectUnmonitored)
}

func (c *Client) sendMonitored(address protocol.ObjectAddress, messageType protocol.MessageType) {
	message := c.NewMessage(protocol.EndpointAddress, messageType)
	message.Encoder().WriteAddress(address)
	c.Send(message)
}

func (c *Client) failHandshake(err error) {
	c.handshakeErr = err
	c.logger.Error("handshake failed", "error", err)
	if detachErr := c.Detach(); detachErr != nil {
		c.logger.Debug("detaching after failed handshake", "error", detachErr)
	}
	for _, hook := range slices.Clone(c.handshakeFailures) {
		hook(err)
	}
}

func (c *Client) addMapping(named NamedAddress) {
	if existing, ok := c.registry.LookupByAddress(named.Address); ok && existing.Name == named.Name {
		return
	}
	if err := c.registry.RegisterName(named.Name, named.Address); err != nil {
		c.Report(err)
		return
	}
	for _, hook := range slices.Clone(c.registeredHooks) {
		hook(named)
	}
}

func (c *Client) removeMapping(name string) {
	address := c.registry.LookupByName(name)
	if err := c.registry.UnregisterName(name); err != nil {
		c.Report(err)
		return
	}
	for _, hook := range slices.Clone(c.unregisteredHooks) {
		hook(NamedAddress{Address: address, Name: name})
	}
}

func (c *Client) handleEndpointMessage(message *protocol.Message) {
	decoder := message.Decoder()
	switch message.Type() {
	case protocol.ServerVersion:
		version := decoder.ReadUint32()
		serverMax := decoder.ReadUint32()
		if err := decoder.Finish(); err != nil {
			c.failHandshake(err)
			return
		}
		if version != protocol.Version {
			c.failHandshake(protocol.Errorf(protocol.ErrVersionMismatch, protocol.EndpointAddress,
				"server speaks protocol version %d, client speaks %d", version, protocol.Version))
			return
		}
		reply := c.NewMessage(protocol.EndpointAddress, protocol.ClientDataVersionNegotiated)
		reply.Encoder().WriteUint32(uint32(negotiateDataVersion(serverMax)))
		c.Send(reply)

	case protocol.ServerInfo:
		identity, err := decodeIdentity(message)
		if err != nil {
			c.Report(err)
			return
		}
		c.identity, c.hasIdentity = identity, true

	case protocol.ObjectMapReply:
		addresses, err := decodeObjectMap(message)
		if err != nil {
			c.Report(err)
			return
		}
		for _, named := range addresses {
			c.addMapping(named)
		}

	case protocol.ObjectAdded:
		name := decoder.ReadString()
		address := decoder.ReadAddress()
		if err := decoder.Finish(); err != nil {
			c.Report(err)
			return
		}
		c.addMapping(NamedAddress{Address: address, Name: name})

	case protocol.ObjectRemoved:
		name := decoder.ReadString()
		if err := decoder.Finish(); err != nil {
			c.Report(err)
			return
		}
		c.removeMapping(name)

	case protocol.ServerDataVersionNegotiated:
		version := decoder.ReadUint32()
		if err := decoder.Finish(); err != nil {
			c.Report(err)
			return
		}
		if err := c.codec.SetDataVersion(int(version)); err != nil {
			c.failHandshake(err)
			return
		}
		c.ready = true
		c.logger.Debug("handshake complete", "data_version", version, "server", c.identity.Label)
		for _, hook := range slices.Clone(c.readyHooks) {
			hook()
		}

	default:
		c.Report(&protocol.Error{
			Kind:    protocol.ErrInvalidType,
			Address: protocol.EndpointAddress,
			Detail:  "client does not handle " + message.Type().String(),
		})
	}
}
