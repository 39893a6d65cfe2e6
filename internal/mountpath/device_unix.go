//go:build linux || darwin

package mountpath

import (
	"path/filepath"

	"golang.org/x/sys/unix"
)

func crossesDevice(path string) (bool, error) {
	var st, parent unix.Stat_t
	if err := unix.Lstat(path, &st); err != nil {
		return false, err
	}
	if err := unix.Lstat(filepath.Dir(filepath.Clean(path)), &parent); err != nil {
		return false, err
	}
	return st.Dev != parent.Dev, nil
}
