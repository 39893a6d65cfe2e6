//go:build darwin

package unmount

import "golang.org/x/sys/unix"

func syscallUnmount(path string) error {
	return unix.Unmount(path, unix.MNT_FORCE)
}

func toolCommands(path string) [][]string {
	return [][]string{
		{"umount", "-f", path},
		{"diskutil", "unmount", "force", path},
	}
}
