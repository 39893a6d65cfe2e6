//go:build linux

package unmount

import "golang.org/x/sys/unix"

// MNT_DETACH lets the unmount succeed while files are still open; the
// kernel finishes it once they are closed.
func syscallUnmount(path string) error {
	return unix.Unmount(path, unix.MNT_DETACH)
}

func toolCommands(path string) [][]string {
	return [][]string{
		{"fusermount3", "-u", "-z", path},
		{"fusermount", "-u", "-z", path},
		{"umount", "-l", path},
	}
}
