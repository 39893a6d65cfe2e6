// Package driver defines the crypto filesystem capability the mount engine
// consumes. The engine never implements encryption itself: it creates a
// handle, mounts it, services it on a worker goroutine and tears it down,
// all through this interface.
//
// A handle moves strictly through created -> mounted -> unmounted -> freed.
// A handle whose Mount failed is never looped or unmounted, only freed.
package driver

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"
)

// ErrBadPassword is wrapped by drivers that can tell a wrong password apart
// from other mount failures.
var ErrBadPassword = errors.New("wrong password")

// Handle is the opaque per-mount state owned by a single session.
type Handle interface {
	SourcePath() string
	KeyPath() string
}

// Driver is the crypto filesystem capability.
type Driver interface {
	Name() string

	// GenerateKeyFile writes fresh key material for sourceDir to keyPath.
	// keyPath may be a temporary location; the caller moves it into place.
	GenerateKeyFile(sourceDir, keyPath string, password []byte) error

	// Create allocates a handle. Nothing is mounted yet.
	Create(sourceDir, keyPath string) (Handle, error)

	// Mount exposes the decrypted view of the handle's source at mountPath.
	Mount(h Handle, mountPath string, password []byte) error

	// Loop services the mount and blocks until it is unmounted.
	Loop(h Handle) error

	// Unmount asks the mount to end; Loop returns afterwards.
	Unmount(h Handle) error

	// Free releases the handle. It is safe on any handle Create returned.
	Free(h Handle)
}

// Killer is implemented by drivers that can end a mount that ignores
// Unmount. It is used only after a stop timeout.
type Killer interface {
	Kill(h Handle) error
}

// Options carries the settings a driver factory may use.
type Options struct {
	BinaryPath string
	// MountTimeout bounds how long Mount waits for the mount to appear.
	MountTimeout time.Duration
}

// Factory builds a driver.
type Factory func(opts Options) (Driver, error)

var (
	registryMu sync.RWMutex
	registry   = map[string]Factory{}
)

// Register makes a driver available by name. It panics on duplicates, like
// database/sql.Register.
func Register(name string, f Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	if f == nil {
		panic("driver: Register factory is nil")
	}
	if _, dup := registry[name]; dup {
		panic("driver: Register called twice for driver " + name)
	}
	registry[name] = f
}

// Open instantiates the named driver.
func Open(name string, opts Options) (Driver, error) {
	registryMu.RLock()
	f, ok := registry[name]
	registryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("driver: unknown driver %q (available: %v)", name, Drivers())
	}
	return f(opts)
}

// Drivers returns the sorted names of the registered drivers.
func Drivers() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
