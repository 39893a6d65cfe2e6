package config

import (
	"os"
	"runtime"
)

// Capabilities are platform facts detected once at startup and handed to
// the folder manager.
type Capabilities struct {
	OS string
	// MountAvailable is false when no userspace filesystem support is
	// installed; encrypted folders are then kept paused.
	MountAvailable bool
}

var fuseMarkers = map[string][]string{
	"linux":  {"/dev/fuse"},
	"darwin": {"/Library/Filesystems/macfuse.fs", "/Library/Filesystems/osxfuse.fs"},
}

// DetectCapabilities probes the running system.
func DetectCapabilities() Capabilities {
	return detect(runtime.GOOS, func(p string) bool {
		_, err := os.Stat(p)
		return err == nil
	})
}

func detect(goos string, exists func(string) bool) Capabilities {
	caps := Capabilities{OS: goos}
	for _, p := range fuseMarkers[goos] {
		if exists(p) {
			caps.MountAvailable = true
			break
		}
	}
	return caps
}
