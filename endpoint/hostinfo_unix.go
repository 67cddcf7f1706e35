// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

//go:build unix

package endpoint

import (
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/sys/unix"
)

// hostDescription returns "nodename (sysname release machine)" from
// uname(2), or the hostname alone if uname fails.
func hostDescription() string {
	var name unix.Utsname
	if err := unix.Uname(&name); err != nil {
		hostname, _ := os.Hostname()
		return hostname
	}
	system := strings.Join([]string{
		unix.ByteSliceToString(name.Sysname[:]),
		unix.ByteSliceToString(name.Release[:]),
		unix.ByteSliceToString(name.Machine[:]),
	}, " ")
	return unix.ByteSliceToString(name.Nodename[:]) + " (" + system + ")"
}

func executableName() string {
	path, err := os.Executable()
	if err != nil {
		return "liveprobe"
	}
	return filepath.Base(path)
}
