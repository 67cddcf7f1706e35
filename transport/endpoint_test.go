// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"context"
	"testing"
	"time"

	"github.com/bureau-foundation/liveprobe/endpoint"
	"github.com/bureau-foundation/liveprobe/lib/testutil"
	"github.com/bureau-foundation/liveprobe/object"
	"github.com/bureau-foundation/liveprobe/protocol"
)

// TestEndpointsOverPipe drives a server and a client through their Run
// loops over a Pipe. Only one of each may exist per process, so this
// test is not parallel.
func TestEndpointsOverPipe(t *testing.T) {
	logger := testutil.Logger(t)
	options := endpoint.Options{Policy: protocol.StrictPolicy, Logger: logger}

	server, err := endpoint.NewServer(endpoint.ServerOptions{Options: options, Label: "pipe-test"})
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	defer server.Close()
	client, err := endpoint.NewClient(options)
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	defer client.Close()

	invoked := make(chan string, 1)
	counter := object.NewLive("counter")
	counter.AddMethod("label", func(args []protocol.Value) error {
		label, _ := args[0].AsString()
		invoked <- label
		return nil
	})
	if _, err := server.RegisterObject("counter", counter); err != nil {
		t.Fatalf("RegisterObject: %v", err)
	}

	ready := make(chan struct{})
	client.OnReady(func() { close(ready) })

	serverConn, clientConn := Pipe(ConnOptions{Logger: logger})
	if err := server.Attach(serverConn); err != nil {
		t.Fatalf("server Attach: %v", err)
	}
	if err := client.Attach(clientConn); err != nil {
		t.Fatalf("client Attach: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	serverDone := make(chan error, 1)
	clientDone := make(chan error, 1)
	go func() { serverDone <- server.Run(ctx) }()
	go func() { clientDone <- client.Run(ctx) }()
	defer func() {
		cancel()
		testutil.RequireReceive(t, serverDone, 5*time.Second, "server Run")
		testutil.RequireReceive(t, clientDone, 5*time.Second, "client Run")
	}()

	testutil.RequireClosed(t, ready, 5*time.Second, "waiting for handshake")

	var invokeErr error
	if err := client.Do(ctx, func() {
		invokeErr = client.InvokeObject("counter", "label", protocol.String("over the pipe"))
	}); err != nil {
		t.Fatalf("Do: %v", err)
	}
	if invokeErr != nil {
		t.Fatalf("InvokeObject: %v", invokeErr)
	}
	if got := testutil.RequireReceive(t, invoked, 5*time.Second, "waiting for invocation"); got != "over the pipe" {
		t.Errorf("label: got %q, want %q", got, "over the pipe")
	}

	var dataVersion int
	server.Do(ctx, func() { dataVersion = server.Codec().DataVersion() })
	if dataVersion != protocol.DataVersionMax {
		t.Errorf("server data version: got %d, want %d", dataVersion, protocol.DataVersionMax)
	}

	// Closing the client's side hangs up the server.
	disconnected := make(chan struct{})
	server.Do(ctx, func() { server.OnDisconnect(func() { close(disconnected) }) })
	client.Do(ctx, func() {
		flushCtx, flushCancel := context.WithTimeout(ctx, 5*time.Second)
		defer flushCancel()
		if err := client.WaitForMessagesWritten(flushCtx); err != nil {
			t.Errorf("WaitForMessagesWritten: %v", err)
		}
		client.Detach()
	})
	testutil.RequireClosed(t, disconnected, 5*time.Second, "waiting for server to see the hangup")
}
