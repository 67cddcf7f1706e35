// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/liveprobe/lib/process"
	"github.com/bureau-foundation/liveprobe/lib/version"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], streams{stdout: os.Stdout, stderr: os.Stderr}); err != nil {
		stop()
		process.Fatal(err)
	}
}

// streams carries the command's output destinations. Results go to
// stdout, logs to stderr.
type streams struct {
	stdout io.Writer
	stderr io.Writer
}

// usageError reports bad command-line input.
type usageError struct {
	message string
}

func (e *usageError) Error() string { return e.message }

// ExitCode makes usage errors exit with status 2.
func (e *usageError) ExitCode() int { return 2 }

func usagef(format string, args ...any) error {
	return &usageError{message: fmt.Sprintf(format, args...)}
}

type command struct {
	name    string
	usage   string
	summary string
	run     func(ctx context.Context, out streams, args []string) error
}

var commands = []command{
	{"serve", "serve [flags]", "host the demo object and the property syncer", runServe},
	{"objects", "objects [flags] <address>", "print a server's object map", runObjects},
	{"watch", "watch [flags] <address> <object> <property>...", "mirror properties and print changes", runWatch},
	{"call", "call [flags] <address> <object> <method> [argument]...", "invoke a method on a server object", runCall},
}

func run(ctx context.Context, args []string, out streams) error {
	if len(args) == 0 {
		printUsage(out.stderr)
		return usagef("no command given")
	}
	switch args[0] {
	case "--version", "version":
		version.Print("liveprobe")
		return nil
	case "-h", "--help", "help":
		printUsage(out.stdout)
		return nil
	}
	for _, candidate := range commands {
		if candidate.name == args[0] {
			return candidate.run(ctx, out, args[1:])
		}
	}
	printUsage(out.stderr)
	return usagef("unknown command %q", args[0])
}

func printUsage(w io.Writer) {
	fmt.Fprintf(w, "liveprobe: run and inspect live object endpoints.\n\nUsage:\n")
	for _, candidate := range commands {
		fmt.Fprintf(w, "  liveprobe %-50s %s\n", candidate.usage, candidate.summary)
	}
	fmt.Fprintf(w, "\nRun \"liveprobe <command> --help\" for the flags of a command.\n")
}

// parseFlags parses a subcommand's flags. It returns done=true when
// --help was requested and handled.
func parseFlags(flagSet *pflag.FlagSet, args []string, out streams, usage string) (done bool, err error) {
	flagSet.SetOutput(out.stderr)
	flagSet.Usage = func() {
		fmt.Fprintf(out.stderr, "Usage:\n  liveprobe %s\n\nFlags:\n", usage)
		flagSet.PrintDefaults()
	}
	if err := flagSet.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return true, nil
		}
		return false, &usageError{message: err.Error()}
	}
	return false, nil
}
