// Copyright 2025 ZapFS Authors
// SPDX-License-Identifier: Apache-2.0

//go:build linux

package backend

import (
	"os"

	"golang.org/x/sys/unix"
)

// Fdatasync syncs file data to disk without flushing unnecessary metadata.
// Only the metadata needed to read the data back (the file size) is flushed.
func Fdatasync(f *os.File) error {
	return unix.Fdatasync(int(f.Fd()))
}
