// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package object

import (
	"fmt"
	"slices"

	"github.com/bureau-foundation/liveprobe/protocol"
)

// Property describes one trackable property: its name and the change
// signal fired when it changes. Properties sharing a signal change
// together.
type Property struct {
	Name   string
	Signal string
}

// Method is a named operation invoked by a MethodCall. Args always
// holds protocol.MaxMethodArguments values; trailing ones are absent
// when the caller supplied fewer.
type Method func(args []protocol.Value) error

type liveProperty struct {
	Property
	value protocol.Value
}

// Live is a generic live object: named properties with change signals
// plus named methods. It serves as a dispatch target (Invoke) and as a
// property-sync target (Properties, Property, SetProperty, Connect).
//
// Live is owned by the endpoint goroutine and is not safe for
// concurrent use.
type Live struct {
	Lifetime

	name       string
	properties []liveProperty
	byName     map[string]int
	methods    map[string]Method

	listeners    map[int]func(signal string)
	nextListener int

	updateDepth    int
	pendingSignals []string
}

// NewLive returns an object with no properties or methods.
func NewLive(name string) *Live {
	return &Live{
		name:      name,
		byName:    make(map[string]int),
		methods:   make(map[string]Method),
		listeners: make(map[int]func(string)),
	}
}

// Name returns the object name.
func (o *Live) Name() string { return o.name }

// AddProperty declares a property. An empty signal means the property
// has its own signal, "<name>Changed".
func (o *Live) AddProperty(name, signal string, initial protocol.Value) {
	if signal == "" {
		signal = name + "Changed"
	}
	if index, ok := o.byName[name]; ok {
		o.properties[index] = liveProperty{Property: Property{Name: name, Signal: signal}, value: initial}
		return
	}
	o.byName[name] = len(o.properties)
	o.properties = append(o.properties, liveProperty{
		Property: Property{Name: name, Signal: signal},
		value:    initial,
	})
}

// AddMethod registers a method, replacing any previous one with the
// same name.
func (o *Live) AddMethod(name string, method Method) {
	o.methods[name] = method
}

// Properties returns the declared properties in declaration order.
func (o *Live) Properties() []Property {
	properties := make([]Property, len(o.properties))
	for index, property := range o.properties {
		properties[index] = property.Property
	}
	return properties
}

// Methods returns the sorted method names.
func (o *Live) Methods() []string {
	names := make([]string, 0, len(o.methods))
	for name := range o.methods {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Property returns the current value of a property.
func (o *Live) Property(name string) (protocol.Value, error) {
	index, ok := o.byName[name]
	if !ok {
		return protocol.Value{}, fmt.Errorf("object %q has no property %q", o.name, name)
	}
	return o.properties[index].value, nil
}

// SetProperty assigns a property and fires its signal if the value
// changed. Inside Update the signal is deferred until the outermost
// Update returns.
func (o *Live) SetProperty(name string, value protocol.Value) error {
	index, ok := o.byName[name]
	if !ok {
		return fmt.Errorf("object %q has no property %q", o.name, name)
	}
	property := &o.properties[index]
	if property.value.Equal(value) {
		return nil
	}
	property.value = value
	o.emit(property.Signal)
	return nil
}

// Update runs fn with signals deferred, then fires each signal that
// fn triggered exactly once, in first-trigger order.
func (o *Live) Update(fn func()) {
	o.updateDepth++
	defer func() {
		o.updateDepth--
		if o.updateDepth > 0 {
			return
		}
		pending := o.pendingSignals
		o.pendingSignals = nil
		for _, signal := range pending {
			o.notify(signal)
		}
	}()
	fn()
}

// Connect subscribes fn to every signal the object fires and returns a
// function that unsubscribes it.
func (o *Live) Connect(fn func(signal string)) func() {
	id := o.nextListener
	o.nextListener++
	o.listeners[id] = fn
	return func() { delete(o.listeners, id) }
}

// Invoke calls a method. Unknown methods yield an ErrUnknownMethod
// protocol error.
func (o *Live) Invoke(method string, args []protocol.Value) error {
	fn, ok := o.methods[method]
	if !ok {
		return &protocol.Error{
			Kind:   protocol.ErrUnknownMethod,
			Name:   o.name,
			Detail: fmt.Sprintf("no method %q", method),
		}
	}
	if len(args) < protocol.MaxMethodArguments {
		padded := make([]protocol.Value, protocol.MaxMethodArguments)
		copy(padded, args)
		args = padded
	}
	return fn(args)
}

func (o *Live) emit(signal string) {
	if o.updateDepth > 0 {
		if !slices.Contains(o.pendingSignals, signal) {
			o.pendingSignals = append(o.pendingSignals, signal)
		}
		return
	}
	o.notify(signal)
}

func (o *Live) notify(signal string) {
	ids := make([]int, 0, len(o.listeners))
	for id := range o.listeners {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	for _, id := range ids {
		// A listener may disconnect another one while being notified.
		if listener, ok := o.listeners[id]; ok {
			listener(signal)
		}
	}
}
