// Package keystore decides whether a directory is encrypted and creates the
// key file that makes it so.
//
// A directory is encrypted iff the key file exists directly inside it. Only
// an empty (or missing) directory may become encrypted; hidden entries are
// ignored when deciding emptiness.
package keystore

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"cryptfolder/internal/crypto"
	"cryptfolder/internal/driver"
	"cryptfolder/internal/errors"
	"cryptfolder/internal/log"
)

// Store checks and generates key files through a driver.
type Store struct {
	drv     driver.Driver
	keyName string
}

// New returns a Store that names key files keyName (".key" by default).
func New(drv driver.Driver, keyName string) *Store {
	if keyName == "" {
		keyName = ".key"
	}
	return &Store{drv: drv, keyName: keyName}
}

// KeyPath returns where the key file of dir lives.
func (s *Store) KeyPath(dir string) string {
	return filepath.Join(dir, s.keyName)
}

// HasKey reports whether dir holds a key file. A missing dir has none.
func (s *Store) HasKey(dir string) bool {
	info, err := os.Lstat(s.KeyPath(dir))
	return err == nil && info.Mode().IsRegular()
}

// CanEncrypt reports whether dir may be turned into an encrypted folder:
// it does not exist yet, or it has no visible entries.
func (s *Store) CanEncrypt(dir string) bool {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return os.IsNotExist(err)
	}
	for _, e := range entries {
		if !strings.HasPrefix(e.Name(), ".") {
			return false
		}
	}
	return true
}

// GenerateKey makes dir an encrypted folder protected by password.
//
// It does nothing if dir already has a key, so existing key material is
// never replaced. The key is written next to dir first and renamed into
// place only after it has been synced and checked, so a failure never
// leaves a partial key file behind.
func (s *Store) GenerateKey(dir string, password *crypto.Secret) (err error) {
	if s.HasKey(dir) {
		log.Debug("key already present, nothing to generate", log.String("dir", dir))
		return nil
	}
	if !s.CanEncrypt(dir) {
		return fmt.Errorf("%w: %s", errors.ErrDirectoryNotEmpty, dir)
	}
	if password.Empty() {
		return errors.Kind(errors.ErrKeyGen, fmt.Errorf("empty password"))
	}

	before, existed := listDir(dir)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return errors.Kind(errors.ErrKeyGen, errors.NewFileError("mkdir", dir, err))
	}
	// The driver may initialize dir itself (gocryptfs writes gocryptfs.diriv).
	// Undo that on failure so the folder can be initialized again.
	defer func() {
		if err != nil {
			restoreDir(dir, existed, before)
		}
	}()

	// The staging directory sits beside dir so the final rename stays on one
	// filesystem, and dir itself stays empty for drivers that insist on it.
	staging, err := os.MkdirTemp(filepath.Dir(filepath.Clean(dir)), ".cryptfolder-keygen-")
	if err != nil {
		return errors.Kind(errors.ErrKeyGen, errors.NewFileError("mkdir", filepath.Dir(dir), err))
	}
	defer os.RemoveAll(staging)

	tmp := filepath.Join(staging, s.keyName)
	if err := s.drv.GenerateKeyFile(dir, tmp, password.Bytes()); err != nil {
		return errors.Kind(errors.ErrKeyGen, err)
	}
	if err := syncAndCheck(tmp); err != nil {
		return errors.Kind(errors.ErrKeyGen, err)
	}

	final := s.KeyPath(dir)
	if err := os.Rename(tmp, final); err != nil {
		return errors.Kind(errors.ErrKeyGen, errors.NewFileError("rename", final, err))
	}
	if err := syncDir(dir); err != nil {
		log.Warn("could not sync folder after key generation", log.String("dir", dir), log.Err(err))
	}

	log.Info("key generated", log.String("dir", dir), log.String("driver", s.drv.Name()))
	return nil
}

func syncAndCheck(path string) error {
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return errors.NewFileError("open", path, err)
	}
	defer f.Close()

	if err := f.Sync(); err != nil {
		return errors.NewFileError("sync", path, err)
	}
	info, err := f.Stat()
	if err != nil {
		return errors.NewFileError("stat", path, err)
	}
	if info.Size() == 0 {
		return errors.NewFileError("verify", path, fmt.Errorf("key file is empty"))
	}
	return nil
}

func syncDir(dir string) error {
	d, err := os.Open(dir)
	if err != nil {
		return err
	}
	defer d.Close()
	return d.Sync()
}

// listDir returns the entry names of dir and whether it exists.
func listDir(dir string) (map[string]bool, bool) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, false
	}
	names := make(map[string]bool, len(entries))
	for _, e := range entries {
		names[e.Name()] = true
	}
	return names, true
}

// restoreDir removes what a failed key generation added to dir.
func restoreDir(dir string, existed bool, before map[string]bool) {
	if !existed {
		if err := os.RemoveAll(dir); err != nil {
			log.Warn("could not remove folder after failed key generation", log.String("dir", dir), log.Err(err))
		}
		return
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return
	}
	for _, e := range entries {
		if before[e.Name()] {
			continue
		}
		if err := os.RemoveAll(filepath.Join(dir, e.Name())); err != nil {
			log.Warn("could not remove leftover after failed key generation", log.String("path", filepath.Join(dir, e.Name())), log.Err(err))
		}
	}
}
