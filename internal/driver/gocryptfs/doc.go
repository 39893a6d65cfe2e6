// Package gocryptfs drives the gocryptfs binary. Importing it registers the
// "gocryptfs" driver on Linux and macOS.
//
// The key file is a gocryptfs config written with -init -config, kept apart
// from the ciphertext. A mount runs gocryptfs in the foreground with the
// password on stdin; the process lives as long as the mount, so Loop waits
// for it and Unmount asks it to exit.
package gocryptfs
