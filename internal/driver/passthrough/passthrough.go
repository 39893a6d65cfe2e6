//go:build linux || darwin

// Package passthrough is a development driver: a go-fuse loopback mount of
// the source directory, unlocked by a password-checked key file. Data is
// NOT encrypted at rest. It lets the mount engine be exercised on machines
// without gocryptfs.
package passthrough

import (
	"errors"
	"fmt"
	"sync"

	"github.com/hanwen/go-fuse/v2/fs"
	"github.com/hanwen/go-fuse/v2/fuse"

	"cryptfolder/internal/crypto"
	"cryptfolder/internal/driver"
	"cryptfolder/internal/keyfile"
	"cryptfolder/internal/log"
)

// Name is the registry name of the driver.
const Name = "passthrough"

func init() {
	driver.Register(Name, func(driver.Options) (driver.Driver, error) {
		return New(crypto.NormalParams), nil
	})
}

// Driver serves loopback mounts from this process.
type Driver struct {
	params crypto.Argon2Params
}

var _ driver.Driver = (*Driver)(nil)

// New returns a driver that writes key files with params.
func New(params crypto.Argon2Params) *Driver {
	return &Driver{params: params}
}

type handle struct {
	source, key string
	header      *keyfile.Header

	mu     sync.Mutex
	server *fuse.Server
}

func (h *handle) SourcePath() string { return h.source }
func (h *handle) KeyPath() string    { return h.key }

func (h *handle) srv() *fuse.Server {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.server
}

func (d *Driver) Name() string { return Name }

func (d *Driver) GenerateKeyFile(_, keyPath string, password []byte) error {
	return keyfile.Write(keyPath, password, d.params)
}

// Create reads and checks the key file.
func (d *Driver) Create(sourceDir, keyPath string) (driver.Handle, error) {
	hdr, err := keyfile.Read(keyPath)
	if err != nil {
		return nil, err
	}
	return &handle{source: sourceDir, key: keyPath, header: hdr}, nil
}

// Mount verifies password and starts serving the loopback filesystem.
func (d *Driver) Mount(dh driver.Handle, mountPath string, password []byte) error {
	h := dh.(*handle)
	if err := h.header.Verify(password); err != nil {
		if errors.Is(err, keyfile.ErrBadPassword) {
			return fmt.Errorf("passthrough: %w", driver.ErrBadPassword)
		}
		return err
	}

	root, err := fs.NewLoopbackRoot(h.source)
	if err != nil {
		return fmt.Errorf("passthrough: %w", err)
	}
	server, err := fs.Mount(mountPath, root, &fs.Options{
		MountOptions: fuse.MountOptions{
			FsName: h.source,
			Name:   "cryptfolder",
		},
	})
	if err != nil {
		return fmt.Errorf("passthrough: mount %s: %w", mountPath, err)
	}

	h.mu.Lock()
	h.server = server
	h.mu.Unlock()
	log.Debug("loopback mount serving", log.String("mount_path", mountPath))
	return nil
}

// Loop blocks until the FUSE server stops.
func (d *Driver) Loop(dh driver.Handle) error {
	server := dh.(*handle).srv()
	if server == nil {
		return errors.New("passthrough: handle is not mounted")
	}
	server.Wait()
	return nil
}

func (d *Driver) Unmount(dh driver.Handle) error {
	server := dh.(*handle).srv()
	if server == nil {
		return errors.New("passthrough: handle is not mounted")
	}
	return server.Unmount()
}

func (d *Driver) Free(dh driver.Handle) {
	h := dh.(*handle)
	h.mu.Lock()
	h.server = nil
	h.header = nil
	h.mu.Unlock()
}
