// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/liveprobe/endpoint"
	"github.com/bureau-foundation/liveprobe/object"
	"github.com/bureau-foundation/liveprobe/propsync"
	"github.com/bureau-foundation/liveprobe/protocol"
)

func runWatch(ctx context.Context, out streams, args []string) error {
	var common commonFlags
	var count int
	flagSet := pflag.NewFlagSet("watch", pflag.ContinueOnError)
	common.add(flagSet)
	flagSet.IntVarP(&count, "count", "n", 0, "exit after this many property changes (0 watches until interrupted)")
	const usage = "watch [flags] <address> <object> <property>..."
	if done, err := parseFlags(flagSet, args, out, usage); done || err != nil {
		return err
	}
	if flagSet.NArg() < 3 {
		return usagef("usage: liveprobe %s", usage)
	}
	if count < 0 {
		return usagef("--count must not be negative")
	}
	address, objectName, properties := flagSet.Arg(0), flagSet.Arg(1), flagSet.Args()[2:]

	cfg, logger, err := common.setup(out)
	if err != nil {
		return err
	}
	options, err := endpointOptions(cfg, logger)
	if err != nil {
		return err
	}

	var syncer *propsync.Syncer
	session, err := connect(ctx, cfg, logger, address, func(client *endpoint.Client) {
		syncer = propsync.New(client, propsync.Options{
			RequestInitialSync: cfg.Sync.RequestInitialSync,
			Policy:             options.Policy,
			Logger:             logger,
		})
		propsync.Follow(client, syncer)
	})
	if err != nil {
		return err
	}
	defer session.close()

	mirror := object.NewLive(objectName)
	for _, name := range properties {
		mirror.AddProperty(name, "", protocol.Absent())
	}

	finished := make(chan struct{})
	withdrawn := make(chan struct{})
	changes := 0
	var setupErr error
	if err := session.do(ctx, func(client *endpoint.Client) {
		if client.ObjectAddress(propsync.ObjectName) == protocol.InvalidObjectAddress {
			setupErr = fmt.Errorf("%s does not serve property sync", address)
			return
		}
		objectAddress := client.ObjectAddress(objectName)
		if objectAddress == protocol.InvalidObjectAddress {
			setupErr = fmt.Errorf("%s has no object named %q", address, objectName)
			return
		}

		mirror.Connect(func(signal string) {
			for _, property := range mirror.Properties() {
				if property.Signal != signal {
					continue
				}
				value, _ := mirror.Property(property.Name)
				fmt.Fprintf(out.stdout, "%s.%s = %s\n", objectName, property.Name, value)
			}
			changes++
			if changes == count {
				close(finished)
			}
		})
		client.OnObjectUnregistered(func(named endpoint.NamedAddress) {
			if named.Name == objectName && !mirror.Destroyed() {
				mirror.Destroy()
				close(withdrawn)
			}
		})

		if err := syncer.AddObject(objectAddress, selectedProperties{mirror}); err != nil {
			setupErr = err
			return
		}
		syncer.SetEnabled(objectAddress, true)
		logger.Debug("watching", "object", objectName, "object_address", objectAddress, "properties", properties)
	}); err != nil {
		return err
	}
	if setupErr != nil {
		return setupErr
	}

	select {
	case <-finished:
		return nil
	case <-withdrawn:
		return fmt.Errorf("%s withdrew object %q", address, objectName)
	case err := <-session.hangup:
		if err == nil {
			err = errors.New("server hung up")
		}
		return err
	case <-ctx.Done():
		return nil
	}
}

// selectedProperties mirrors only the properties the user named. The
// server sends every property sharing a changed signal, and the rest
// are dropped without a warning.
type selectedProperties struct {
	*object.Live
}

func (s selectedProperties) SetProperty(name string, value protocol.Value) error {
	if _, err := s.Live.Property(name); err != nil {
		return nil
	}
	return s.Live.SetProperty(name, value)
}
