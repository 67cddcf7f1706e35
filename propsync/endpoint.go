// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package propsync

import (
	"fmt"

	"github.com/bureau-foundation/liveprobe/endpoint"
	"github.com/bureau-foundation/liveprobe/protocol"
)

// Serve registers syncer on server under ObjectName and binds it as
// the handler for sync messages. Tracked objects are enabled while a
// client monitors the syncer and disabled when it stops.
func Serve(server *endpoint.Server, syncer *Syncer) (protocol.ObjectAddress, error) {
	address, err := server.RegisterObject(ObjectName, nil)
	if err != nil {
		return protocol.InvalidObjectAddress, fmt.Errorf("registering property syncer: %w", err)
	}
	if err := server.RegisterMessageHandler(address, syncer); err != nil {
		server.UnregisterObject(ObjectName)
		return protocol.InvalidObjectAddress, fmt.Errorf("binding property syncer: %w", err)
	}
	syncer.SetAddress(address)
	server.SetMonitorCallback(address, syncer.SetAllEnabled)
	return address, nil
}

// Follow binds syncer on client as soon as the server announces
// ObjectName, which monitors it on the server side. The binding is
// dropped if the server withdraws the name.
func Follow(client *endpoint.Client, syncer *Syncer) {
	bind := func(named endpoint.NamedAddress) {
		if named.Name != ObjectName {
			return
		}
		syncer.SetAddress(named.Address)
		if err := client.RegisterMessageHandler(named.Address, syncer); err != nil {
			client.Report(err)
		}
	}
	client.OnObjectRegistered(bind)
	client.OnObjectUnregistered(func(named endpoint.NamedAddress) {
		if named.Name == ObjectName {
			syncer.SetAddress(protocol.InvalidObjectAddress)
		}
	})
	if address := client.ObjectAddress(ObjectName); address != protocol.InvalidObjectAddress {
		bind(endpoint.NamedAddress{Address: address, Name: ObjectName})
	}
}
