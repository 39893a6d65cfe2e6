//go:build linux || darwin

package gocryptfs

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"cryptfolder/internal/driver"
	"cryptfolder/internal/log"
	"cryptfolder/internal/unmount"
)

const (
	// Name is the registry name of the driver.
	Name = "gocryptfs"

	defaultBinary       = "gocryptfs"
	defaultMountTimeout = 10 * time.Second
	initTimeout         = 2 * time.Minute
	termGrace           = 2 * time.Second

	// exitPasswordIncorrect is gocryptfs' exit status for a wrong password.
	exitPasswordIncorrect = 12
)

func init() {
	driver.Register(Name, New)
}

// Driver mounts folders with the gocryptfs binary.
type Driver struct {
	binary       string
	mountTimeout time.Duration
	run          runner
	launch       mountLauncher
	wait         waiter
	forceUnmount func(path string) error
}

var (
	_ driver.Driver = (*Driver)(nil)
	_ driver.Killer = (*Driver)(nil)
)

// New returns a driver for the gocryptfs binary at opts.BinaryPath, or the
// one found in PATH.
func New(opts driver.Options) (driver.Driver, error) {
	bin := opts.BinaryPath
	if bin == "" {
		bin = defaultBinary
	}
	resolved, err := exec.LookPath(bin)
	if err != nil {
		return nil, fmt.Errorf("gocryptfs: binary not found: %w", err)
	}
	return newDriver(resolved, opts.MountTimeout, execRunner{}, execLauncher{}, pollMountTable,
		unmount.Forced{}.ForceUnmount), nil
}

func newDriver(bin string, timeout time.Duration, r runner, l mountLauncher, w waiter, force func(string) error) *Driver {
	if timeout <= 0 {
		timeout = defaultMountTimeout
	}
	return &Driver{
		binary:       bin,
		mountTimeout: timeout,
		run:          r,
		launch:       l,
		wait:         w,
		forceUnmount: force,
	}
}

type handle struct {
	source, key string

	mu        sync.Mutex
	mountPath string
	proc      mountProcess
}

func (h *handle) SourcePath() string { return h.source }
func (h *handle) KeyPath() string    { return h.key }

func (h *handle) process() mountProcess {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.proc
}

func (d *Driver) Name() string { return Name }

// stdin is the password as -passfile /dev/stdin expects it.
func stdin(password []byte) []byte {
	in := make([]byte, 0, len(password)+1)
	in = append(in, password...)
	return append(in, '\n')
}

// GenerateKeyFile initializes sourceDir and writes the gocryptfs config to
// keyPath.
func (d *Driver) GenerateKeyFile(sourceDir, keyPath string, password []byte) error {
	ctx, cancel := context.WithTimeout(context.Background(), initTimeout)
	defer cancel()

	in := stdin(password)
	defer clear(in)
	args := []string{"-q", "-init", "-passfile", "/dev/stdin", "-config", keyPath, sourceDir}
	if err := d.run.Run(ctx, d.binary, args, in); err != nil {
		return fmt.Errorf("gocryptfs -init: %w", err)
	}
	return nil
}

// Create allocates a handle; gocryptfs itself validates the config on mount.
func (d *Driver) Create(sourceDir, keyPath string) (driver.Handle, error) {
	return &handle{source: sourceDir, key: keyPath}, nil
}

// Mount starts gocryptfs in the foreground and returns once the mount is
// visible in the mount table.
func (d *Driver) Mount(dh driver.Handle, mountPath string, password []byte) error {
	h := dh.(*handle)

	in := stdin(password)
	defer clear(in)
	args := []string{"-fg", "-q", "-passfile", "/dev/stdin", "-config", h.key, h.source, mountPath}

	ctx, cancel := context.WithTimeout(context.Background(), d.mountTimeout)
	defer cancel()

	proc, err := d.launch.Launch(ctx, d.binary, args, in)
	if err != nil {
		return fmt.Errorf("gocryptfs: failed to start: %w", err)
	}

	ready := make(chan error, 1)
	go func() { ready <- d.wait(ctx, mountPath) }()

	select {
	case err := <-proc.Wait():
		cancel()
		return exitCause(err)
	case err := <-ready:
		if err != nil {
			log.Warn("gocryptfs mount did not come up, terminating", log.Int("pid", proc.Pid()), log.Err(err))
			d.terminate(proc)
			return fmt.Errorf("gocryptfs: mount timed out after %v: %w", d.mountTimeout, err)
		}
	}

	h.mu.Lock()
	h.mountPath = mountPath
	h.proc = proc
	h.mu.Unlock()
	log.Debug("gocryptfs mounted", log.String("mount_path", mountPath), log.Int("pid", proc.Pid()))
	return nil
}

// terminate ends a process that never finished mounting.
func (d *Driver) terminate(proc mountProcess) {
	_ = proc.Signal(syscall.SIGTERM)
	select {
	case <-proc.Wait():
	case <-time.After(termGrace):
		_ = proc.Kill()
	}
}

// exitCause turns an early exit of the mount process into an error.
func exitCause(err error) error {
	if err == nil {
		return errors.New("gocryptfs exited before the mount appeared")
	}
	var exit interface{ ExitCode() int }
	if errors.As(err, &exit) && exit.ExitCode() == exitPasswordIncorrect {
		return fmt.Errorf("gocryptfs: %w", driver.ErrBadPassword)
	}
	return fmt.Errorf("gocryptfs: %w", err)
}

// Loop waits for the mount process. gocryptfs exits 0 after a clean unmount.
func (d *Driver) Loop(dh driver.Handle) error {
	proc := dh.(*handle).process()
	if proc == nil {
		return errors.New("gocryptfs: handle is not mounted")
	}
	if err := <-proc.Wait(); err != nil {
		return fmt.Errorf("gocryptfs exited: %w", err)
	}
	return nil
}

// Unmount asks gocryptfs to unmount and exit.
func (d *Driver) Unmount(dh driver.Handle) error {
	proc := dh.(*handle).process()
	if proc == nil {
		return errors.New("gocryptfs: handle is not mounted")
	}
	err := proc.Signal(syscall.SIGTERM)
	switch {
	case errors.Is(err, os.ErrProcessDone):
		log.Debug("gocryptfs already exited", log.Int("pid", proc.Pid()))
		return nil
	case err != nil:
		return fmt.Errorf("gocryptfs: failed to signal pid %d: %w", proc.Pid(), err)
	}
	return nil
}

// Kill ends gocryptfs with SIGKILL and removes the dead FUSE mount it
// leaves behind.
func (d *Driver) Kill(dh driver.Handle) error {
	h := dh.(*handle)
	proc := h.process()
	if proc == nil {
		return errors.New("gocryptfs: handle is not mounted")
	}
	if err := proc.Kill(); err != nil {
		return fmt.Errorf("gocryptfs: failed to kill pid %d: %w", proc.Pid(), err)
	}
	h.mu.Lock()
	mnt := h.mountPath
	h.mu.Unlock()
	if d.forceUnmount != nil && mnt != "" {
		if err := d.forceUnmount(mnt); err != nil {
			log.Warn("could not clear mount after kill", log.String("mount_path", mnt), log.Err(err))
		}
	}
	return nil
}

// Free drops the handle's reference to the process.
func (d *Driver) Free(dh driver.Handle) {
	h := dh.(*handle)
	h.mu.Lock()
	h.proc = nil
	h.mu.Unlock()
}
