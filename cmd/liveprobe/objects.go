// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/liveprobe/endpoint"
)

func runObjects(ctx context.Context, out streams, args []string) error {
	var common commonFlags
	flagSet := pflag.NewFlagSet("objects", pflag.ContinueOnError)
	common.add(flagSet)
	const usage = "objects [flags] <address>"
	if done, err := parseFlags(flagSet, args, out, usage); done || err != nil {
		return err
	}
	if flagSet.NArg() != 1 {
		return usagef("usage: liveprobe %s", usage)
	}

	cfg, logger, err := common.setup(out)
	if err != nil {
		return err
	}
	session, err := connect(ctx, cfg, logger, flagSet.Arg(0), nil)
	if err != nil {
		return err
	}
	defer session.close()

	var identity endpoint.Identity
	var dataVersion int
	var objects []endpoint.NamedAddress
	if err := session.do(ctx, func(client *endpoint.Client) {
		identity, _ = client.ServerIdentity()
		dataVersion = client.Codec().DataVersion()
		objects = client.ObjectAddresses()
	}); err != nil {
		return err
	}

	fmt.Fprintf(out.stdout, "server %s (key %s, pid %d, %s), data version %d\n",
		identity.Label, identity.Key, identity.PID, identity.Host, dataVersion)
	writer := tabwriter.NewWriter(out.stdout, 2, 0, 3, ' ', 0)
	fmt.Fprintln(writer, "ADDRESS\tNAME")
	for _, named := range objects {
		fmt.Fprintf(writer, "%d\t%s\n", named.Address, named.Name)
	}
	return writer.Flush()
}
