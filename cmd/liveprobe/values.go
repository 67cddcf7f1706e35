// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"

	"github.com/bureau-foundation/liveprobe/lib/codec"
	"github.com/bureau-foundation/liveprobe/protocol"
)

// parseArgument converts a command-line method argument to a Value.
// A "kind:" prefix selects the kind explicitly (int, uint, float,
// bool, string, bytes as hex, cbor as a hex-encoded CBOR item for a
// structured value, absent). Without a prefix, true/false
// become bools, integers become ints, other numbers become floats, and
// anything else is a string.
func parseArgument(text string) (protocol.Value, error) {
	if kind, rest, ok := strings.Cut(text, ":"); ok {
		switch kind {
		case "int":
			parsed, err := strconv.ParseInt(rest, 0, 64)
			if err != nil {
				return protocol.Value{}, fmt.Errorf("argument %q: %w", text, err)
			}
			return protocol.Int(parsed), nil
		case "uint":
			parsed, err := strconv.ParseUint(rest, 0, 64)
			if err != nil {
				return protocol.Value{}, fmt.Errorf("argument %q: %w", text, err)
			}
			return protocol.Uint(parsed), nil
		case "float":
			parsed, err := strconv.ParseFloat(rest, 64)
			if err != nil {
				return protocol.Value{}, fmt.Errorf("argument %q: %w", text, err)
			}
			return protocol.Float(parsed), nil
		case "bool":
			parsed, err := strconv.ParseBool(rest)
			if err != nil {
				return protocol.Value{}, fmt.Errorf("argument %q: %w", text, err)
			}
			return protocol.Bool(parsed), nil
		case "string":
			return protocol.String(rest), nil
		case "bytes":
			parsed, err := hex.DecodeString(rest)
			if err != nil {
				return protocol.Value{}, fmt.Errorf("argument %q: %w", text, err)
			}
			return protocol.Bytes(parsed), nil
		case "cbor":
			parsed, err := hex.DecodeString(rest)
			if err != nil {
				return protocol.Value{}, fmt.Errorf("argument %q: %w", text, err)
			}
			value, err := protocol.StructuredRaw(codec.RawMessage(parsed))
			if err != nil {
				return protocol.Value{}, fmt.Errorf("argument %q: %w", text, err)
			}
			return value, nil
		case "absent":
			if rest != "" {
				return protocol.Value{}, fmt.Errorf("argument %q: absent takes no value", text)
			}
			return protocol.Absent(), nil
		}
	}

	switch text {
	case "true":
		return protocol.Bool(true), nil
	case "false":
		return protocol.Bool(false), nil
	}
	if parsed, err := strconv.ParseInt(text, 10, 64); err == nil {
		return protocol.Int(parsed), nil
	}
	if parsed, err := strconv.ParseFloat(text, 64); err == nil {
		return protocol.Float(parsed), nil
	}
	return protocol.String(text), nil
}

// parseArguments parses method arguments, rejecting more than a
// method call can carry.
func parseArguments(texts []string) ([]protocol.Value, error) {
	if len(texts) > protocol.MaxMethodArguments {
		return nil, usagef("%d arguments given, a method takes at most %d", len(texts), protocol.MaxMethodArguments)
	}
	values := make([]protocol.Value, 0, len(texts))
	for _, text := range texts {
		value, err := parseArgument(text)
		if err != nil {
			return nil, &usageError{message: err.Error()}
		}
		values = append(values, value)
	}
	return values, nil
}
