// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package endpoint

import (
	"errors"
	"fmt"

	"github.com/bureau-foundation/liveprobe/protocol"
)

// Dispatcher routes decoded messages to the object and handler bound
// at the message's address.
type Dispatcher struct {
	registry *Registry
}

// NewDispatcher returns a dispatcher resolving targets in registry.
func NewDispatcher(registry *Registry) *Dispatcher {
	return &Dispatcher{registry: registry}
}

// Dispatch delivers message. A MethodCall is invoked on the bound
// object; independently, the original message goes to the bound
// handler. Both targets are resolved before either runs, so a target
// that unregisters entries (its own included) does not affect this
// delivery.
//
// The returned error reports what could not be delivered: an unknown
// address, a method call without an object, a message with no target
// at all, a malformed method call, or a failed invocation. Dispatch
// never panics on peer input.
func (d *Dispatcher) Dispatch(message *protocol.Message) error {
	target, ok := d.registry.LookupByAddress(message.Address())
	if !ok {
		return &protocol.Error{
			Kind:    protocol.ErrUnknownAddress,
			Address: message.Address(),
			Detail:  "dropping " + message.Type().String(),
		}
	}

	var errs []error
	if message.Type() == protocol.MethodCall {
		if err := d.invoke(target, message); err != nil {
			errs = append(errs, err)
		}
	}

	if target.Handler != nil {
		target.Handler.HandleMessage(message)
	} else if message.Type() != protocol.MethodCall || target.Object == nil {
		errs = append(errs, &protocol.Error{
			Kind:    protocol.ErrNoHandler,
			Address: target.Address,
			Name:    target.Name,
			Detail:  "cannot dispatch " + message.Type().String(),
		})
	}
	return errors.Join(errs...)
}

func (d *Dispatcher) invoke(target Entry, message *protocol.Message) error {
	method, args, err := DecodeMethodCall(message)
	if err != nil {
		return err
	}
	if target.Object == nil {
		return &protocol.Error{
			Kind:    protocol.ErrNoObject,
			Address: target.Address,
			Name:    target.Name,
			Detail:  fmt.Sprintf("cannot call %q, no object registered", method),
		}
	}
	if err := target.Object.Invoke(method, args); err != nil {
		return fmt.Errorf("invoking %s.%s: %w", target.Name, method, err)
	}
	return nil
}

// EncodeMethodCall writes a method name and its arguments into a
// MethodCall payload.
func EncodeMethodCall(message *protocol.Message, method string, args []protocol.Value) error {
	if method == "" {
		return &protocol.Error{Kind: protocol.ErrMalformedPayload, Address: message.Address(), Detail: "empty method name"}
	}
	if len(args) > protocol.MaxMethodArguments {
		return &protocol.Error{
			Kind:    protocol.ErrMalformedPayload,
			Address: message.Address(),
			Detail:  fmt.Sprintf("%s has %d arguments, at most %d allowed", method, len(args), protocol.MaxMethodArguments),
		}
	}
	encoder := message.Encoder()
	encoder.WriteString(method)
	encoder.WriteValues(args)
	return encoder.Err()
}

// DecodeMethodCall reads a MethodCall payload. The returned arguments
// are padded with absent values to protocol.MaxMethodArguments.
func DecodeMethodCall(message *protocol.Message) (string, []protocol.Value, error) {
	decoder := message.Decoder()
	method := decoder.ReadString()
	values := decoder.ReadValues()
	if err := decoder.Finish(); err != nil {
		return "", nil, err
	}
	if method == "" {
		return "", nil, &protocol.Error{Kind: protocol.ErrMalformedPayload, Address: message.Address(), Detail: "empty method name"}
	}
	if len(values) > protocol.MaxMethodArguments {
		return "", nil, &protocol.Error{
			Kind:    protocol.ErrMalformedPayload,
			Address: message.Address(),
			Detail:  fmt.Sprintf("%s declares %d arguments, at most %d allowed", method, len(values), protocol.MaxMethodArguments),
		}
	}
	args := make([]protocol.Value, protocol.MaxMethodArguments)
	copy(args, values)
	return method, args, nil
}
