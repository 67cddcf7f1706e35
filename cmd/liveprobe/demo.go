// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"github.com/bureau-foundation/liveprobe/object"
	"github.com/bureau-foundation/liveprobe/protocol"
)

// demoObjectName is the name the serve command registers its object
// under.
const demoObjectName = "demo"

// newDemoObject returns the object served by "liveprobe serve".
// counter and parity share a signal, so the syncer sends them in one
// batch; label has its own.
//
// Methods:
//
//	increment [step]  add step (default 1) to counter
//	setLabel <text>   replace label
//	reset             zero counter and clear label
func newDemoObject() *object.Live {
	demo := object.NewLive(demoObjectName)
	demo.AddProperty("counter", "counterChanged", protocol.Int(0))
	demo.AddProperty("parity", "counterChanged", protocol.String("even"))
	demo.AddProperty("label", "", protocol.String(""))

	setCounter := func(counter int64) {
		demo.Update(func() {
			demo.SetProperty("counter", protocol.Int(counter))
			parity := "even"
			if counter%2 != 0 {
				parity = "odd"
			}
			demo.SetProperty("parity", protocol.String(parity))
		})
	}
	currentCounter := func() int64 {
		value, _ := demo.Property("counter")
		counter, _ := value.AsInt()
		return counter
	}

	demo.AddMethod("increment", func(args []protocol.Value) error {
		step := int64(1)
		if !args[0].IsAbsent() {
			given, ok := args[0].AsInt()
			if !ok {
				return protocol.Errorf(protocol.ErrMalformedPayload, protocol.InvalidObjectAddress,
					"increment: step must be an int, got %s", args[0].Kind())
			}
			step = given
		}
		setCounter(currentCounter() + step)
		return nil
	})
	demo.AddMethod("setLabel", func(args []protocol.Value) error {
		label, ok := args[0].AsString()
		if !ok {
			return protocol.Errorf(protocol.ErrMalformedPayload, protocol.InvalidObjectAddress,
				"setLabel: label must be a string, got %s", args[0].Kind())
		}
		return demo.SetProperty("label", protocol.String(label))
	})
	demo.AddMethod("reset", func([]protocol.Value) error {
		demo.Update(func() {
			setCounter(0)
			demo.SetProperty("label", protocol.String(""))
		})
		return nil
	})
	return demo
}
