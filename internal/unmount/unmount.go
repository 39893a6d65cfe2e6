// Package unmount holds the ways a mount can be ended.
//
// Native asks the driver. Forced goes around the driver: an unmount
// syscall, then the platform's unmount tools. Fallback chains two
// strategies. ForPlatform picks one at startup from the configured mode.
package unmount

import (
	"fmt"
	"os/exec"
	"strings"

	"cryptfolder/internal/config"
	"cryptfolder/internal/driver"
	"cryptfolder/internal/errors"
	"cryptfolder/internal/log"
)

// Strategy ends the mount of h at mountPath. After a successful call the
// driver's Loop for h returns eventually.
type Strategy interface {
	Name() string
	Unmount(h driver.Handle, mountPath string) error
}

// Native unmounts through the driver.
type Native struct {
	Driver driver.Driver
}

func (n Native) Name() string { return "native" }

func (n Native) Unmount(h driver.Handle, mountPath string) error {
	if err := n.Driver.Unmount(h); err != nil {
		return errors.Kind(errors.ErrUnmount, err)
	}
	return nil
}

// Forced unmounts by path without the driver's cooperation. It needs no
// handle, so it also serves stale mounts left by a crashed process.
type Forced struct {
	// Syscall is the in-process unmount attempt; nil uses the platform default.
	Syscall func(path string) error
	// Exec runs an unmount tool and returns its combined output; nil uses os/exec.
	Exec func(name string, args ...string) ([]byte, error)
	// Commands lists the tools to try in order; nil uses the platform default.
	Commands func(path string) [][]string
}

func (f Forced) Name() string { return "forced" }

func (f Forced) Unmount(_ driver.Handle, mountPath string) error {
	return f.ForceUnmount(mountPath)
}

// ForceUnmount ends whatever is mounted at path.
func (f Forced) ForceUnmount(path string) error {
	sys := f.Syscall
	if sys == nil {
		sys = syscallUnmount
	}
	run := f.Exec
	if run == nil {
		run = func(name string, args ...string) ([]byte, error) {
			return exec.Command(name, args...).CombinedOutput()
		}
	}
	cmds := f.Commands
	if cmds == nil {
		cmds = toolCommands
	}

	err := sys(path)
	if err == nil {
		log.Debug("unmounted with syscall", log.String("path", path))
		return nil
	}
	failures := []error{fmt.Errorf("syscall: %w", err)}

	for _, argv := range cmds(path) {
		out, err := run(argv[0], argv[1:]...)
		if err == nil {
			log.Debug("unmounted with tool", log.String("path", path), log.String("tool", argv[0]))
			return nil
		}
		failures = append(failures, fmt.Errorf("%s: %w: %s", argv[0], err, strings.TrimSpace(string(out))))
	}
	return errors.Kind(errors.ErrUnmount, errors.Join(failures...))
}

// Fallback tries Primary and, if it fails, Secondary.
type Fallback struct {
	Primary, Secondary Strategy
}

func (f Fallback) Name() string {
	return f.Primary.Name() + "+" + f.Secondary.Name()
}

func (f Fallback) Unmount(h driver.Handle, mountPath string) error {
	err := f.Primary.Unmount(h, mountPath)
	if err == nil {
		return nil
	}
	log.Warn("unmount failed, trying fallback",
		log.String("path", mountPath),
		log.String("strategy", f.Primary.Name()),
		log.String("fallback", f.Secondary.Name()),
		log.Err(err))
	if err2 := f.Secondary.Unmount(h, mountPath); err2 != nil {
		return errors.Join(err, err2)
	}
	return nil
}

// ForPlatform returns the strategy for the configured unmount mode. In
// auto mode, platforms with unmount tools get native-then-forced.
func ForPlatform(mode, goos string, drv driver.Driver) (Strategy, error) {
	native := Native{Driver: drv}
	switch mode {
	case config.UnmountNative:
		return native, nil
	case config.UnmountForced:
		return Forced{}, nil
	case config.UnmountAuto, "":
		if goos == "linux" || goos == "darwin" {
			return Fallback{Primary: native, Secondary: Forced{}}, nil
		}
		return native, nil
	default:
		return nil, fmt.Errorf("unknown unmount mode %q", mode)
	}
}
