// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

//go:build !unix

package endpoint

import (
	"os"
	"path/filepath"
	"runtime"
)

func hostDescription() string {
	hostname, _ := os.Hostname()
	return hostname + " (" + runtime.GOOS + " " + runtime.GOARCH + ")"
}

func executableName() string {
	path, err := os.Executable()
	if err != nil {
		return "liveprobe"
	}
	return filepath.Base(path)
}
