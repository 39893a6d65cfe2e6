// Package mountpath derives and manages the directory where a folder's
// decrypted view is mounted.
//
// The mount path of "/data/f" is "/data/f_UNCRYPT". It is created fresh
// and empty before every mount and removed after every unmount. Nothing in
// this package ever removes a directory that is still a live mount point,
// since that would delete through the decrypted view into the user's data.
package mountpath

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/shirou/gopsutil/v3/common"
	"github.com/shirou/gopsutil/v3/disk"

	"cryptfolder/internal/errors"
	"cryptfolder/internal/log"
)

// MountChecker reports whether path is currently a mount point.
type MountChecker func(path string) (bool, error)

// Planner derives, prepares and removes mount directories.
type Planner struct {
	suffix       string
	isMounted    MountChecker
	forceUnmount func(path string) error
	// crossesDevice backs up isMounted: a directory on another device than
	// its parent is a mount point whatever the mount table says.
	crossesDevice func(path string) (bool, error)
}

// Option configures a Planner.
type Option func(*Planner)

// WithMountChecker replaces the system mount table lookup.
func WithMountChecker(fn MountChecker) Option {
	return func(p *Planner) { p.isMounted = fn }
}

// WithForceUnmount sets how Prepare gets rid of a stale mount left behind by
// a crashed process. Without it such a mount makes Prepare fail.
func WithForceUnmount(fn func(path string) error) Option {
	return func(p *Planner) { p.forceUnmount = fn }
}

// New returns a Planner that appends suffix to source paths.
func New(suffix string, opts ...Option) *Planner {
	if suffix == "" {
		suffix = "_UNCRYPT"
	}
	p := &Planner{suffix: suffix, isMounted: IsMounted, crossesDevice: crossesDevice}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Derive returns the mount path for source. Distinct cleaned source paths
// always give distinct mount paths.
func (p *Planner) Derive(source string) string {
	clean := filepath.Clean(source)
	trimmed := strings.TrimRight(clean, string(filepath.Separator))
	if trimmed == "" {
		trimmed = clean
	}
	return trimmed + p.suffix
}

// Conflicts reports whether source would collide with one of others: it is
// another folder's mount path, or its own mount path is another folder.
func (p *Planner) Conflicts(source string, others []string) bool {
	src := filepath.Clean(source)
	mnt := p.Derive(source)
	for _, o := range others {
		other := filepath.Clean(o)
		if src == p.Derive(other) || mnt == other {
			return true
		}
	}
	return false
}

// Prepare makes mountPath an empty directory. Whatever was there before is
// removed: a stale mount is unmounted first, leftover files are deleted.
func (p *Planner) Prepare(mountPath string) error {
	mounted, err := p.isMounted(mountPath)
	if err != nil {
		return errors.Kind(errors.ErrMountDirectory, fmt.Errorf("checking mount table: %w", err))
	}
	if mounted {
		log.Warn("stale mount found, unmounting", log.String("path", mountPath))
		if p.forceUnmount == nil {
			return errors.Kind(errors.ErrMountDirectory, fmt.Errorf("%s is still mounted", mountPath))
		}
		if err := p.forceUnmount(mountPath); err != nil {
			log.Warn("forced unmount of stale mount failed", log.String("path", mountPath), log.Err(err))
		}
		if mounted, err = p.isMounted(mountPath); err != nil || mounted {
			return errors.Kind(errors.ErrMountDirectory, fmt.Errorf("%s is still mounted", mountPath))
		}
	}

	if _, err := os.Lstat(mountPath); err == nil {
		if err := p.refuseMountPoint(mountPath); err != nil {
			return errors.Kind(errors.ErrMountDirectory, err)
		}
		log.Debug("removing leftover mount directory", log.String("path", mountPath))
		if err := os.RemoveAll(mountPath); err != nil {
			return errors.Kind(errors.ErrMountDirectory, errors.NewFileError("remove", mountPath, err))
		}
	} else if !os.IsNotExist(err) {
		return errors.Kind(errors.ErrMountDirectory, errors.NewFileError("stat", mountPath, err))
	}

	if err := os.Mkdir(mountPath, 0700); err != nil {
		return errors.Kind(errors.ErrMountDirectory, errors.NewFileError("mkdir", mountPath, err))
	}
	return nil
}

// Cleanup removes mountPath after an unmount. A missing directory is fine;
// a directory that is still mounted is left alone and reported.
func (p *Planner) Cleanup(mountPath string) error {
	mounted, err := p.isMounted(mountPath)
	if err != nil {
		return errors.Kind(errors.ErrCleanup, fmt.Errorf("checking mount table: %w", err))
	}
	if mounted {
		return errors.Kind(errors.ErrCleanup, fmt.Errorf("%s is still mounted", mountPath))
	}
	if _, err := os.Lstat(mountPath); os.IsNotExist(err) {
		return nil
	}
	if err := p.refuseMountPoint(mountPath); err != nil {
		return errors.Kind(errors.ErrCleanup, err)
	}
	if err := os.RemoveAll(mountPath); err != nil {
		return errors.Kind(errors.ErrCleanup, errors.NewFileError("remove", mountPath, err))
	}
	return nil
}

// refuseMountPoint fails when path sits on another device than its parent
// or its device cannot be determined, as with a dead FUSE mount.
func (p *Planner) refuseMountPoint(path string) error {
	other, err := p.crossesDevice(path)
	if err != nil {
		return errors.NewFileError("stat", path, err)
	}
	if other {
		return fmt.Errorf("%s is a mount point", path)
	}
	return nil
}

// Mounted reports whether path is a live mount point, using the planner's
// mount checker.
func (p *Planner) Mounted(path string) (bool, error) {
	return p.isMounted(path)
}

// IsMounted looks path up in the system mount table.
func IsMounted(path string) (bool, error) {
	target, err := filepath.Abs(path)
	if err != nil {
		return false, err
	}
	// A dead FUSE mount cannot be resolved; compare the cleaned path then.
	if resolved, err := filepath.EvalSymlinks(target); err == nil {
		target = resolved
	}

	parts, err := disk.PartitionsWithContext(mountTableContext(context.Background()), true)
	if err != nil {
		return false, err
	}
	for _, part := range parts {
		if filepath.Clean(part.Mountpoint) == target {
			return true, nil
		}
	}
	return false, nil
}

// mountTableContext points gopsutil at the mount table of this process.
// Its default is PID 1's table, which misses mounts made inside a private
// mount namespace (flatpak, snap, systemd PrivateMounts).
func mountTableContext(ctx context.Context) context.Context {
	return context.WithValue(ctx, common.EnvKey, common.EnvMap{
		hostProcMountinfo: "/proc/self/mountinfo",
	})
}

const hostProcMountinfo common.EnvKeyType = "HOST_PROC_MOUNTINFO"
