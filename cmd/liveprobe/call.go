// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/liveprobe/endpoint"
)

func runCall(ctx context.Context, out streams, args []string) error {
	var common commonFlags
	flagSet := pflag.NewFlagSet("call", pflag.ContinueOnError)
	common.add(flagSet)
	const usage = "call [flags] <address> <object> <method> [argument]..."
	if done, err := parseFlags(flagSet, args, out, usage); done || err != nil {
		return err
	}
	if flagSet.NArg() < 3 {
		return usagef("usage: liveprobe %s", usage)
	}
	address, objectName, method := flagSet.Arg(0), flagSet.Arg(1), flagSet.Arg(2)
	arguments, err := parseArguments(flagSet.Args()[3:])
	if err != nil {
		return err
	}

	cfg, logger, err := common.setup(out)
	if err != nil {
		return err
	}
	session, err := connect(ctx, cfg, logger, address, nil)
	if err != nil {
		return err
	}
	defer session.close()

	var invokeErr error
	if err := session.do(ctx, func(client *endpoint.Client) {
		invokeErr = client.InvokeObject(objectName, method, arguments...)
	}); err != nil {
		return err
	}
	if invokeErr != nil {
		return fmt.Errorf("calling %s.%s: %w", objectName, method, invokeErr)
	}
	if err := session.flush(ctx); err != nil {
		return fmt.Errorf("flushing call to %s: %w", address, err)
	}
	logger.Debug("method call sent", "object", objectName, "method", method, "arguments", len(arguments))
	return nil
}
