// Package drivertest provides an in-memory driver for tests.
package drivertest

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"sync"

	"cryptfolder/internal/driver"
)

// Fake is a scripted driver. The key file it writes holds the password, so
// Mount rejects a password that differs from the one the key was made with.
//
// Every lifecycle call is counted, and calls that break the handle order
// (mount after free, loop before mount, and so on) are recorded in
// Violations.
type Fake struct {
	GenerateErr error
	CreateErr   error
	MountErr    error
	UnmountErr  error
	LoopErr     error

	// LoopExitsImmediately makes Loop return right away, as a mount that
	// silently died would.
	LoopExitsImmediately bool
	// IgnoreUnmount makes Unmount succeed without ending Loop; only Kill
	// releases it.
	IgnoreUnmount bool
	// NoKiller hides Kill so the fake behaves like a driver without one.
	NoKiller bool

	mu         sync.Mutex
	creates    int
	mounts     int
	loops      int
	unmounts   int
	frees      int
	kills      int
	live       map[*handle]struct{}
	violations []string
}

type handle struct {
	source, key string
	mountPath   string
	mounted     bool
	unmounted   bool
	freed       bool
	done        chan struct{}
	once        sync.Once
}

func (h *handle) SourcePath() string { return h.source }
func (h *handle) KeyPath() string    { return h.key }

func (h *handle) release() { h.once.Do(func() { close(h.done) }) }

var _ driver.Driver = (*Fake)(nil)
var _ driver.Killer = (*Fake)(nil)

// Name implements driver.Driver.
func (f *Fake) Name() string { return "fake" }

// GenerateKeyFile implements driver.Driver.
func (f *Fake) GenerateKeyFile(sourceDir, keyPath string, password []byte) error {
	if f.GenerateErr != nil {
		return f.GenerateErr
	}
	return os.WriteFile(keyPath, append([]byte("fake:"), password...), 0600)
}

// Create implements driver.Driver.
func (f *Fake) Create(sourceDir, keyPath string) (driver.Handle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.creates++
	if f.CreateErr != nil {
		return nil, f.CreateErr
	}
	h := &handle{source: sourceDir, key: keyPath, done: make(chan struct{})}
	if f.live == nil {
		f.live = make(map[*handle]struct{})
	}
	f.live[h] = struct{}{}
	return h, nil
}

// Mount implements driver.Driver.
func (f *Fake) Mount(dh driver.Handle, mountPath string, password []byte) error {
	h := dh.(*handle)
	f.mu.Lock()
	f.mounts++
	if h.freed || h.mounted {
		f.violate("mount on handle in wrong state")
	}
	f.mu.Unlock()

	if f.MountErr != nil {
		return f.MountErr
	}
	if info, err := os.Stat(mountPath); err != nil || !info.IsDir() {
		return fmt.Errorf("fake: mount point %s missing", mountPath)
	}
	key, err := os.ReadFile(h.key)
	if err != nil {
		return err
	}
	if !bytes.Equal(key, append([]byte("fake:"), password...)) {
		return driver.ErrBadPassword
	}

	f.mu.Lock()
	h.mounted = true
	h.mountPath = mountPath
	f.mu.Unlock()
	return nil
}

// Loop implements driver.Driver.
func (f *Fake) Loop(dh driver.Handle) error {
	h := dh.(*handle)
	f.mu.Lock()
	f.loops++
	if !h.mounted || h.freed {
		f.violate("loop on unmounted handle")
	}
	f.mu.Unlock()

	if f.LoopExitsImmediately {
		return f.LoopErr
	}
	<-h.done
	return f.LoopErr
}

// Unmount implements driver.Driver.
func (f *Fake) Unmount(dh driver.Handle) error {
	h := dh.(*handle)
	f.mu.Lock()
	f.unmounts++
	if !h.mounted || h.freed {
		f.violate("unmount on handle that is not mounted")
	}
	f.mu.Unlock()

	if f.UnmountErr != nil {
		return f.UnmountErr
	}
	f.mu.Lock()
	h.unmounted = true
	f.mu.Unlock()
	if !f.IgnoreUnmount {
		h.release()
	}
	return nil
}

// Free implements driver.Driver.
func (f *Fake) Free(dh driver.Handle) {
	h := dh.(*handle)
	f.mu.Lock()
	defer f.mu.Unlock()
	f.frees++
	if h.freed {
		f.violate("double free")
		return
	}
	if h.mounted && !h.unmounted {
		f.violate("free while mounted")
	}
	h.freed = true
	delete(f.live, h)
}

// Kill implements driver.Killer. It reports an error when NoKiller is set,
// which callers treat like a missing killer.
func (f *Fake) Kill(dh driver.Handle) error {
	if f.NoKiller {
		return errors.New("fake: kill not supported")
	}
	h := dh.(*handle)
	f.mu.Lock()
	f.kills++
	h.unmounted = true
	f.mu.Unlock()
	h.release()
	return nil
}

func (f *Fake) violate(msg string) {
	f.violations = append(f.violations, msg)
}

// Counts is a snapshot of the lifecycle calls made so far.
type Counts struct {
	Creates, Mounts, Loops, Unmounts, Frees, Kills int
}

// Counts returns the call counts.
func (f *Fake) Counts() Counts {
	f.mu.Lock()
	defer f.mu.Unlock()
	return Counts{f.creates, f.mounts, f.loops, f.unmounts, f.frees, f.kills}
}

// LiveHandles is the number of handles created and not yet freed.
func (f *Fake) LiveHandles() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.live)
}

// Violations returns the handle ordering violations seen so far.
func (f *Fake) Violations() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.violations...)
}
