// cryptfolder v0.3.0
// Copyright (c) cryptfolder developers
// Released under GPL-3.0-only
//
// cryptfolder keeps folders encrypted at rest and mounts their decrypted
// view on demand, next to the folder as FOLDER_UNCRYPT.
//
// The mount itself is done by a userspace filesystem driver:
//   - gocryptfs (default): runs the gocryptfs binary
//   - passthrough: in-process go-fuse loopback for development, no encryption
//
// Settings are read from config.yaml in the user config directory; see
// "cryptfolder --help".

package main

import (
	"os"

	"cryptfolder/internal/cli"

	// Drivers register themselves.
	_ "cryptfolder/internal/driver/gocryptfs"
	_ "cryptfolder/internal/driver/passthrough"
)

// version is the application version reported by --version.
const version = "v0.3.0"

func main() {
	os.Exit(cli.Execute(version))
}
