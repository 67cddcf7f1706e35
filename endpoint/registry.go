// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package endpoint

import (
	"cmp"
	"slices"

	"github.com/bureau-foundation/liveprobe/object"
	"github.com/bureau-foundation/liveprobe/protocol"
)

// Invoker is a dispatch target that accepts MethodCall messages. Args
// always holds protocol.MaxMethodArguments values, padded with absent
// values.
type Invoker interface {
	Invoke(method string, args []protocol.Value) error
}

// Handler receives every message addressed to the entry it is bound
// to. The message is released when HandleMessage returns; handlers
// that keep it must Clone it.
type Handler interface {
	HandleMessage(message *protocol.Message)
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(message *protocol.Message)

func (f HandlerFunc) HandleMessage(message *protocol.Message) { f(message) }

// Entry is a snapshot of one registry binding.
type Entry struct {
	Name    string
	Address protocol.ObjectAddress
	Object  Invoker
	Handler Handler
}

// NamedAddress pairs an address with its name, as announced in the
// object map.
type NamedAddress struct {
	Address protocol.ObjectAddress
	Name    string
}

// RegistryHooks are called after the registry drops a binding because
// the bound value was destroyed. The name/address entry survives.
type RegistryHooks struct {
	ObjectDestroyed  func(address protocol.ObjectAddress, name string)
	HandlerDestroyed func(address protocol.ObjectAddress, name string)
}

type entry struct {
	name    string
	address protocol.ObjectAddress

	object           Invoker
	objectGeneration int
	cancelObject     func()

	handler           Handler
	handlerGeneration int
	cancelHandler     func()
}

// Registry is the bidirectional name/address table with its object
// and handler bindings. It is owned by one endpoint goroutine.
type Registry struct {
	byName    map[string]*entry
	byAddress map[protocol.ObjectAddress]*entry
	hooks     RegistryHooks
}

// NewRegistry returns an empty registry.
func NewRegistry(hooks RegistryHooks) *Registry {
	return &Registry{
		byName:    make(map[string]*entry),
		byAddress: make(map[protocol.ObjectAddress]*entry),
		hooks:     hooks,
	}
}

// RegisterName creates an entry binding name to address. Both must be
// unused; a failed registration leaves the registry unchanged.
func (r *Registry) RegisterName(name string, address protocol.ObjectAddress) error {
	if name == "" {
		return &protocol.Error{Kind: protocol.ErrEmptyName, Address: address}
	}
	if address == protocol.InvalidObjectAddress {
		return &protocol.Error{Kind: protocol.ErrInvalidAddress, Name: name}
	}
	if existing, ok := r.byName[name]; ok {
		return &protocol.Error{Kind: protocol.ErrDuplicateName, Name: name, Address: existing.address}
	}
	if existing, ok := r.byAddress[address]; ok {
		return &protocol.Error{
			Kind:    protocol.ErrDuplicateAddress,
			Address: address,
			Detail:  "already bound to " + existing.name,
		}
	}
	e := &entry{name: name, address: address}
	r.byName[name] = e
	r.byAddress[address] = e
	return nil
}

// UnregisterName removes an entry and its bindings.
func (r *Registry) UnregisterName(name string) error {
	e, ok := r.byName[name]
	if !ok {
		return &protocol.Error{Kind: protocol.ErrUnknownName, Name: name}
	}
	if e.cancelObject != nil {
		e.cancelObject()
	}
	if e.cancelHandler != nil {
		e.cancelHandler()
	}
	delete(r.byName, name)
	delete(r.byAddress, e.address)
	return nil
}

func (r *Registry) lookup(address protocol.ObjectAddress) (*entry, error) {
	e, ok := r.byAddress[address]
	if !ok {
		return nil, &protocol.Error{Kind: protocol.ErrUnknownAddress, Address: address}
	}
	return e, nil
}

// BindObject attaches a local object to an existing entry. If the
// object is object.Destroyable, its destruction clears the binding.
func (r *Registry) BindObject(address protocol.ObjectAddress, target Invoker) error {
	e, err := r.lookup(address)
	if err != nil {
		return err
	}
	if e.object != nil {
		return &protocol.Error{Kind: protocol.ErrObjectAlreadyBound, Address: address, Name: e.name}
	}
	e.object = target
	e.objectGeneration++
	generation := e.objectGeneration
	e.cancelObject = nil
	if destroyable, ok := target.(object.Destroyable); ok {
		e.cancelObject = destroyable.OnDestroy(func() {
			r.objectDestroyed(e, generation)
		})
	}
	return nil
}

// UnbindObject detaches the local object from an entry.
func (r *Registry) UnbindObject(address protocol.ObjectAddress) error {
	e, err := r.lookup(address)
	if err != nil {
		return err
	}
	if e.object == nil {
		return &protocol.Error{Kind: protocol.ErrNoObject, Address: address, Name: e.name}
	}
	if e.cancelObject != nil {
		e.cancelObject()
	}
	e.object, e.cancelObject = nil, nil
	return nil
}

// BindHandler attaches a message handler to an existing entry. At most
// one handler may be bound at a time.
func (r *Registry) BindHandler(address protocol.ObjectAddress, handler Handler) error {
	e, err := r.lookup(address)
	if err != nil {
		return err
	}
	if e.handler != nil {
		return &protocol.Error{Kind: protocol.ErrHandlerAlreadyBound, Address: address, Name: e.name}
	}
	e.handler = handler
	e.handlerGeneration++
	generation := e.handlerGeneration
	e.cancelHandler = nil
	if destroyable, ok := handler.(object.Destroyable); ok {
		e.cancelHandler = destroyable.OnDestroy(func() {
			r.handlerDestroyed(e, generation)
		})
	}
	return nil
}

// UnbindHandler detaches the handler from an entry.
func (r *Registry) UnbindHandler(address protocol.ObjectAddress) error {
	e, err := r.lookup(address)
	if err != nil {
		return err
	}
	if e.handler == nil {
		return &protocol.Error{Kind: protocol.ErrNoHandler, Address: address, Name: e.name}
	}
	if e.cancelHandler != nil {
		e.cancelHandler()
	}
	e.handler, e.cancelHandler = nil, nil
	return nil
}

func (r *Registry) objectDestroyed(e *entry, generation int) {
	if r.byAddress[e.address] != e || e.objectGeneration != generation || e.object == nil {
		return
	}
	e.object, e.cancelObject = nil, nil
	if r.hooks.ObjectDestroyed != nil {
		r.hooks.ObjectDestroyed(e.address, e.name)
	}
}

func (r *Registry) handlerDestroyed(e *entry, generation int) {
	if r.byAddress[e.address] != e || e.handlerGeneration != generation || e.handler == nil {
		return
	}
	e.handler, e.cancelHandler = nil, nil
	if r.hooks.HandlerDestroyed != nil {
		r.hooks.HandlerDestroyed(e.address, e.name)
	}
}

// LookupByName returns the address registered under name, or
// protocol.InvalidObjectAddress.
func (r *Registry) LookupByName(name string) protocol.ObjectAddress {
	if e, ok := r.byName[name]; ok {
		return e.address
	}
	return protocol.InvalidObjectAddress
}

// LookupByAddress returns a snapshot of the entry at address.
func (r *Registry) LookupByAddress(address protocol.ObjectAddress) (Entry, bool) {
	e, ok := r.byAddress[address]
	if !ok {
		return Entry{}, false
	}
	return Entry{Name: e.name, Address: e.address, Object: e.object, Handler: e.handler}, true
}

// AllAddresses returns every entry's address and name, sorted by
// address.
func (r *Registry) AllAddresses() []NamedAddress {
	addresses := make([]NamedAddress, 0, len(r.byAddress))
	for address, e := range r.byAddress {
		addresses = append(addresses, NamedAddress{Address: address, Name: e.name})
	}
	slices.SortFunc(addresses, func(a, b NamedAddress) int {
		return cmp.Compare(a.Address, b.Address)
	})
	return addresses
}

// Len returns the number of entries.
func (r *Registry) Len() int { return len(r.byAddress) }
