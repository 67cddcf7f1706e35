// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package version

import (
	"fmt"
	"os"
	"runtime"

	"github.com/bureau-foundation/liveprobe/lib/binhash"
	"github.com/bureau-foundation/liveprobe/protocol"
)

// These variables are set via -ldflags at build time.
var (
	// GitCommit is the short git SHA of the build.
	GitCommit = "unknown"

	// GitDirty indicates whether there were uncommitted changes.
	GitDirty = "false"

	// BuildTime is the UTC timestamp of the build.
	BuildTime = "unknown"

	// Version is the semantic version. This is set manually for releases.
	Version = "0.1.0-dev"
)

// Info returns a formatted version string suitable for --version output.
func Info() string {
	dirty := ""
	if GitDirty == "true" {
		dirty = "-dirty"
	}
	return fmt.Sprintf("%s (%s%s, %s)", Version, GitCommit, dirty, BuildTime)
}

// Protocol describes the wire versions this build speaks.
func Protocol() string {
	return fmt.Sprintf("protocol %d, data %d-%d",
		protocol.Version, protocol.DataVersionMin, protocol.DataVersionMax)
}

// Full returns detailed version information: Info, the wire versions,
// the Go toolchain and platform, and the running binary's digest when
// it can be read.
func Full() string {
	full := fmt.Sprintf("%s\n  Wire: %s\n  Go: %s\n  Platform: %s/%s",
		Info(), Protocol(), runtime.Version(), runtime.GOOS, runtime.GOARCH)
	if digest, err := SelfDigest(); err == nil {
		full += "\n  Binary: " + digest.Short()
	}
	return full
}

// Print writes "<binary> <Full()>" to stdout, for --version handling.
func Print(binary string) {
	fmt.Printf("%s %s\n", binary, Full())
}

// Short returns just the version number.
func Short() string {
	return Version
}

// SelfDigest returns the BLAKE3 digest of the running executable.
func SelfDigest() (binhash.Digest, error) {
	executable, err := os.Executable()
	if err != nil {
		return binhash.Digest{}, fmt.Errorf("resolving own executable path: %w", err)
	}
	return binhash.HashFile(executable)
}
