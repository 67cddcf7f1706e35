// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package protocol

import (
	"errors"
	"fmt"
	"log/slog"
)

// ErrorKind classifies a protocol-invariant violation.
type ErrorKind int

const (
	// ErrDuplicateName: a name is already registered.
	ErrDuplicateName ErrorKind = iota + 1

	// ErrDuplicateAddress: an address is already registered.
	ErrDuplicateAddress

	// ErrUnknownAddress: no registry entry exists for the address.
	ErrUnknownAddress

	// ErrUnknownName: no registry entry exists for the name.
	ErrUnknownName

	// ErrNoObject: a method call arrived for an entry without a bound
	// object.
	ErrNoObject

	// ErrNoHandler: a message arrived for an entry with neither an
	// object nor a handler bound.
	ErrNoHandler

	// ErrObjectAlreadyBound: the entry already has a bound object.
	ErrObjectAlreadyBound

	// ErrHandlerAlreadyBound: the entry already has a bound handler.
	ErrHandlerAlreadyBound

	// ErrInvalidAddress: address 0 or the launcher address was used
	// where an ordinary object address is required.
	ErrInvalidAddress

	// ErrInvalidType: a frame carried message type 0.
	ErrInvalidType

	// ErrMalformedPayload: a payload could not be decoded against the
	// layout its message type requires.
	ErrMalformedPayload

	// ErrVersionMismatch: the peer speaks a different protocol version.
	ErrVersionMismatch

	// ErrUnknownMethod: the target object has no method by that name.
	ErrUnknownMethod

	// ErrEmptyName: an object name was empty.
	ErrEmptyName
)

var errorKindNames = map[ErrorKind]string{
	ErrDuplicateName:       "duplicate name",
	ErrDuplicateAddress:    "duplicate address",
	ErrUnknownAddress:      "unknown address",
	ErrUnknownName:         "unknown name",
	ErrNoObject:            "no object bound",
	ErrNoHandler:           "no object or handler bound",
	ErrObjectAlreadyBound:  "object already bound",
	ErrHandlerAlreadyBound: "handler already bound",
	ErrInvalidAddress:      "invalid address",
	ErrInvalidType:         "invalid message type",
	ErrMalformedPayload:    "malformed payload",
	ErrVersionMismatch:     "protocol version mismatch",
	ErrUnknownMethod:       "unknown method",
	ErrEmptyName:           "empty object name",
}

func (k ErrorKind) String() string {
	if name, ok := errorKindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("ErrorKind(%d)", int(k))
}

// Error is a protocol-invariant violation. Callers match on Kind:
//
//	var protocolErr *protocol.Error
//	if errors.As(err, &protocolErr) && protocolErr.Kind == protocol.ErrDuplicateName {
//	    ...
//	}
type Error struct {
	Kind    ErrorKind
	Address ObjectAddress
	Name    string
	Detail  string
}

// Errorf builds an *Error with a formatted detail.
func Errorf(kind ErrorKind, address ObjectAddress, format string, args ...any) *Error {
	return &Error{Kind: kind, Address: address, Detail: fmt.Sprintf(format, args...)}
}

func (e *Error) Error() string {
	message := "protocol: " + e.Kind.String()
	if e.Name != "" {
		message += fmt.Sprintf(" %q", e.Name)
	}
	if e.Address != InvalidObjectAddress {
		message += fmt.Sprintf(" (address %d)", e.Address)
	}
	if e.Detail != "" {
		message += ": " + e.Detail
	}
	return message
}

// Is matches another *Error by kind only, so errors.Is(err,
// &protocol.Error{Kind: protocol.ErrNoHandler}) works.
func (e *Error) Is(target error) bool {
	var other *Error
	if !errors.As(target, &other) {
		return false
	}
	return other.Kind == e.Kind
}

// IsKind reports whether err is a protocol *Error of the given kind.
func IsKind(err error, kind ErrorKind) bool {
	return errors.Is(err, &Error{Kind: kind})
}

// ErrorPolicy decides what happens to a protocol error that has no
// caller to return to, such as a failure while dispatching an inbound
// message. The embedding application chooses the policy.
type ErrorPolicy func(error)

// StrictPolicy panics on every protocol error. Use it in development
// and tests to surface bugs at the point of violation.
func StrictPolicy(err error) {
	panic(err)
}

// LogPolicy returns a policy that logs each error and continues. The
// offending operation has already been turned into a no-op.
func LogPolicy(logger *slog.Logger) ErrorPolicy {
	if logger == nil {
		logger = slog.Default()
	}
	return func(err error) {
		logger.Warn("protocol error", "error", err)
	}
}
