// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"bytes"
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/bureau-foundation/liveprobe/lib/config"
	"github.com/bureau-foundation/liveprobe/lib/testutil"
	"github.com/bureau-foundation/liveprobe/protocol"
	"github.com/bureau-foundation/liveprobe/transport"
)

func TestDemoObject(t *testing.T) {
	t.Parallel()
	demo := newDemoObject()
	var signals []string
	demo.Connect(func(signal string) { signals = append(signals, signal) })

	if err := demo.Invoke("increment", []protocol.Value{protocol.Int(3)}); err != nil {
		t.Fatalf("increment: %v", err)
	}
	if counter, _ := demo.Property("counter"); !counter.Equal(protocol.Int(3)) {
		t.Errorf("counter: got %s, want 3", counter)
	}
	if parity, _ := demo.Property("parity"); !parity.Equal(protocol.String("odd")) {
		t.Errorf("parity: got %s, want \"odd\"", parity)
	}
	if len(signals) != 1 || signals[0] != "counterChanged" {
		t.Errorf("signals after increment: got %v, want [counterChanged]", signals)
	}

	if err := demo.Invoke("increment", nil); err != nil {
		t.Fatalf("increment without step: %v", err)
	}
	if counter, _ := demo.Property("counter"); !counter.Equal(protocol.Int(4)) {
		t.Errorf("counter: got %s, want 4", counter)
	}

	if err := demo.Invoke("setLabel", []protocol.Value{protocol.Int(1)}); !protocol.IsKind(err, protocol.ErrMalformedPayload) {
		t.Errorf("setLabel with an int: got %v, want a malformed payload error", err)
	}
	if err := demo.Invoke("reset", nil); err != nil {
		t.Fatalf("reset: %v", err)
	}
	if counter, _ := demo.Property("counter"); !counter.Equal(protocol.Int(0)) {
		t.Errorf("counter after reset: got %s, want 0", counter)
	}
}

// TestServeAndClients runs the serve loop on a loopback listener and
// drives it with each client subcommand in turn. The process allows
// one server and one client endpoint, so this test is not parallel.
func TestServeAndClients(t *testing.T) {
	t.Setenv(config.PathVariable, "")
	t.Setenv(config.DisableCompressionVariable, "")

	logger := testutil.Logger(t)
	listener, err := transport.NewTCPListener("127.0.0.1:0", transport.ConnOptions{Logger: logger})
	if err != nil {
		t.Fatalf("NewTCPListener: %v", err)
	}
	defer listener.Close()
	address := listener.Address()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	serveContext, stopServe := context.WithCancel(ctx)
	serveDone := make(chan error, 1)
	go func() { serveDone <- serve(serveContext, config.Default(), logger, listener, 0) }()
	defer func() {
		stopServe()
		if err := testutil.RequireReceive(t, serveDone, 10*time.Second, "waiting for serve to stop"); err != nil {
			t.Errorf("serve: %v", err)
		}
	}()

	runCommand := func(args ...string) string {
		t.Helper()
		var stdout bytes.Buffer
		if err := run(ctx, args, streams{stdout: &stdout, stderr: io.Discard}); err != nil {
			t.Fatalf("liveprobe %s: %v", strings.Join(args, " "), err)
		}
		return stdout.String()
	}

	objects := runCommand("objects", address)
	for _, want := range []string{"data version 2", "liveprobe.endpoint", "liveprobe.propertysyncer", "demo"} {
		if !strings.Contains(objects, want) {
			t.Errorf("objects output missing %q:\n%s", want, objects)
		}
	}

	runCommand("call", address, "demo", "setLabel", "string:hello")
	runCommand("call", address, "demo", "increment", "int:4")

	watched := runCommand("watch", "--count", "2", address, "demo", "counter", "label")
	want := "demo.counter = 4\ndemo.label = \"hello\"\n"
	if watched != want {
		t.Errorf("watch output: got %q, want %q", watched, want)
	}

	var stdout bytes.Buffer
	err = run(ctx, []string{"watch", "--count", "1", address, "missing", "counter"}, streams{stdout: &stdout, stderr: io.Discard})
	if err == nil || !strings.Contains(err.Error(), `no object named "missing"`) {
		t.Errorf("watch of an unknown object: got %v, want an unknown object error", err)
	}
}
