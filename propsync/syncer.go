// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package propsync

import (
	"fmt"
	"log/slog"

	"github.com/bureau-foundation/liveprobe/object"
	"github.com/bureau-foundation/liveprobe/protocol"
)

// ObjectName is the well-known name the syncer registers under on both
// sides of a connection. Sync messages are addressed to it.
const ObjectName = "liveprobe.propertysyncer"

// Object is a property-sync target. object.Live implements it.
type Object interface {
	Properties() []object.Property
	Property(name string) (protocol.Value, error)
	SetProperty(name string, value protocol.Value) error
	Connect(fn func(signal string)) (disconnect func())
}

// Sender is the part of an endpoint the syncer sends through.
type Sender interface {
	NewMessage(address protocol.ObjectAddress, messageType protocol.MessageType) *protocol.Message
	Send(message *protocol.Message)
}

// Options configures a Syncer.
type Options struct {
	// RequestInitialSync makes SetEnabled(address, true) ask the peer
	// for the object's current values.
	RequestInitialSync bool

	// Policy handles malformed sync messages. Nil logs them.
	Policy protocol.ErrorPolicy

	Logger *slog.Logger
}

type trackedObject struct {
	address    protocol.ObjectAddress
	object     Object
	properties []object.Property

	enabled bool
	// applying is set while a value received from the peer is being
	// assigned, so the resulting signal is not sent back.
	applying bool

	disconnect    func()
	cancelDestroy func()
}

// Syncer mirrors property values between paired objects on the two
// sides of a connection. Both sides track an object under the same
// address; changes on either side flow to the other as
// PropertyValuesChanged messages.
//
// A Syncer is owned by the endpoint goroutine.
type Syncer struct {
	sender             Sender
	policy             protocol.ErrorPolicy
	logger             *slog.Logger
	address            protocol.ObjectAddress
	requestInitialSync bool

	objects map[protocol.ObjectAddress]*trackedObject
}

// New returns a Syncer sending through sender. Its address is invalid
// until SetAddress is called.
func New(sender Sender, options Options) *Syncer {
	if options.Logger == nil {
		options.Logger = slog.Default()
	}
	if options.Policy == nil {
		options.Policy = protocol.LogPolicy(options.Logger)
	}
	return &Syncer{
		sender:             sender,
		policy:             options.Policy,
		logger:             options.Logger,
		requestInitialSync: options.RequestInitialSync,
		objects:            make(map[protocol.ObjectAddress]*trackedObject),
	}
}

// SetAddress sets the address sync messages are sent to: the address
// ObjectName is registered under.
func (s *Syncer) SetAddress(address protocol.ObjectAddress) { s.address = address }

// Address returns the syncer's own address.
func (s *Syncer) Address() protocol.ObjectAddress { return s.address }

// SetRequestInitialSync sets whether enabling an object requests its
// current values from the peer.
func (s *Syncer) SetRequestInitialSync(request bool) { s.requestInitialSync = request }

// RequestInitialSync reports whether enabling an object requests its
// current values from the peer.
func (s *Syncer) RequestInitialSync() bool { return s.requestInitialSync }

// AddObject starts tracking target under address. Objects without
// properties are ignored. Tracking starts disabled. If target is
// object.Destroyable, it is dropped when destroyed; a target that is
// already destroyed is never tracked.
func (s *Syncer) AddObject(address protocol.ObjectAddress, target Object) error {
	if !address.Valid() {
		return &protocol.Error{Kind: protocol.ErrInvalidAddress, Detail: "tracking properties"}
	}
	if _, exists := s.objects[address]; exists {
		return &protocol.Error{Kind: protocol.ErrDuplicateAddress, Address: address, Detail: "already tracking properties"}
	}
	properties := target.Properties()
	if len(properties) == 0 {
		return nil
	}

	tracked := &trackedObject{address: address, object: target, properties: properties}
	tracked.disconnect = target.Connect(func(signal string) {
		s.propertiesChanged(tracked, signal)
	})
	// OnDestroy runs the callback at once for an object that is already
	// destroyed, so the entry must exist for drop to remove it.
	s.objects[address] = tracked
	if destroyable, ok := target.(object.Destroyable); ok {
		tracked.cancelDestroy = destroyable.OnDestroy(func() {
			s.drop(tracked)
		})
	}
	return nil
}

// RemoveObject stops tracking the object at address.
func (s *Syncer) RemoveObject(address protocol.ObjectAddress) {
	tracked, ok := s.objects[address]
	if !ok {
		return
	}
	if tracked.cancelDestroy != nil {
		tracked.cancelDestroy()
	}
	s.drop(tracked)
}

func (s *Syncer) drop(tracked *trackedObject) {
	if s.objects[tracked.address] != tracked {
		return
	}
	tracked.disconnect()
	delete(s.objects, tracked.address)
}

// Tracking reports whether an object is tracked at address.
func (s *Syncer) Tracking(address protocol.ObjectAddress) bool {
	_, ok := s.objects[address]
	return ok
}

// Enabled reports whether changes of the object at address are sent.
func (s *Syncer) Enabled(address protocol.ObjectAddress) bool {
	tracked, ok := s.objects[address]
	return ok && tracked.enabled
}

// SetEnabled turns outgoing updates for the object at address on or
// off. Disabling keeps the object tracked. Enabling sends a sync
// request when RequestInitialSync is set.
func (s *Syncer) SetEnabled(address protocol.ObjectAddress, enabled bool) {
	tracked, ok := s.objects[address]
	if !ok || tracked.enabled == enabled {
		return
	}
	tracked.enabled = enabled
	if enabled && s.requestInitialSync {
		message := s.sender.NewMessage(s.address, protocol.PropertySyncRequest)
		message.Encoder().WriteAddress(address)
		s.sender.Send(message)
	}
}

// SetAllEnabled applies SetEnabled to every tracked object.
func (s *Syncer) SetAllEnabled(enabled bool) {
	for address := range s.objects {
		s.SetEnabled(address, enabled)
	}
}

func (s *Syncer) propertiesChanged(tracked *trackedObject, signal string) {
	if tracked.applying || !tracked.enabled {
		return
	}
	var changed []object.Property
	for _, property := range tracked.properties {
		if property.Signal == signal {
			changed = append(changed, property)
		}
	}
	if len(changed) == 0 {
		return
	}
	s.sendValues(tracked, changed)
}

func (s *Syncer) sendValues(tracked *trackedObject, properties []object.Property) {
	message := s.sender.NewMessage(s.address, protocol.PropertyValuesChanged)
	encoder := message.Encoder()
	encoder.WriteAddress(tracked.address)
	encoder.WriteUint32(uint32(len(properties)))
	for _, property := range properties {
		value, err := tracked.object.Property(property.Name)
		if err != nil {
			s.logger.Warn("reading tracked property", "address", tracked.address, "property", property.Name, "error", err)
		}
		encoder.WriteString(property.Name)
		encoder.WriteValue(value)
	}
	if err := encoder.Err(); err != nil {
		message.Release()
		s.policy(err)
		return
	}
	s.sender.Send(message)
}

// HandleMessage processes a sync message from the peer. It implements
// endpoint.Handler.
func (s *Syncer) HandleMessage(message *protocol.Message) {
	decoder := message.Decoder()
	switch message.Type() {
	case protocol.PropertySyncRequest:
		address := decoder.ReadAddress()
		if err := decoder.Finish(); err != nil {
			s.policy(err)
			return
		}
		tracked, ok := s.objects[address]
		if !ok {
			s.logger.Debug("sync request for untracked object", "address", address)
			return
		}
		s.sendValues(tracked, tracked.properties)

	case protocol.PropertyValuesChanged:
		address := decoder.ReadAddress()
		// Each pair is at least a 4-byte name length and a kind byte.
		count := decoder.ReadCount(5)
		type assignment struct {
			name  string
			value protocol.Value
		}
		assignments := make([]assignment, 0, count)
		for range count {
			name := decoder.ReadString()
			value := decoder.ReadValue()
			assignments = append(assignments, assignment{name: name, value: value})
		}
		if err := decoder.Finish(); err != nil {
			s.policy(err)
			return
		}
		tracked, ok := s.objects[address]
		if !ok {
			s.logger.Debug("values for untracked object", "address", address)
			return
		}
		for _, assigned := range assignments {
			s.apply(tracked, assigned.name, assigned.value)
		}

	default:
		s.policy(&protocol.Error{
			Kind:    protocol.ErrInvalidType,
			Address: message.Address(),
			Detail:  fmt.Sprintf("property syncer does not handle %s", message.Type()),
		})
	}
}

func (s *Syncer) apply(tracked *trackedObject, name string, value protocol.Value) {
	tracked.applying = true
	err := tracked.object.SetProperty(name, value)
	tracked.applying = false
	if err != nil {
		s.logger.Warn("applying synced property", "address", tracked.address, "property", name, "error", err)
	}
}
