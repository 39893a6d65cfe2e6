// Package folder ties encrypted folders into a sync client's folder model.
//
// A Folder is a configured local path. When the path holds a key file the
// folder is encrypted: the sync engine must work on the decrypted mount,
// never on the ciphertext, so an encrypted folder can sync only while its
// session runs. A folder that cannot be unlocked stays paused.
package folder

import (
	"os"
	"path/filepath"
	"sync"

	"cryptfolder/internal/session"
)

// Definition is the persisted configuration of a folder.
type Definition struct {
	Alias     string
	LocalPath string
	Paused    bool
}

// Folder is one registered folder.
type Folder struct {
	alias string
	path  string

	// op serializes unlock, pause and removal of this folder.
	op sync.Mutex

	mu        sync.Mutex
	paused    bool
	encrypted bool
	session   *session.Session
}

func (f *Folder) Alias() string { return f.alias }

// LocalPath is the configured path, cleaned.
func (f *Folder) LocalPath() string { return f.path }

func (f *Folder) Paused() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.paused
}

// Encrypted reports whether the folder had a key file when it was added.
func (f *Folder) Encrypted() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.encrypted
}

// Running reports whether the folder's decrypted view is mounted.
func (f *Folder) Running() bool {
	f.mu.Lock()
	s := f.session
	f.mu.Unlock()
	return s != nil && s.IsRunning()
}

// MountPath is the decrypted view, or "" when not running.
func (f *Folder) MountPath() string {
	f.mu.Lock()
	s := f.session
	f.mu.Unlock()
	if s == nil || !s.IsRunning() {
		return ""
	}
	return s.MountPath()
}

// CanonicalLocalPath is the path the sync engine should work on. For a
// running encrypted folder that is the mount path; for an encrypted folder
// that is not running it is the raw path, which CanSync keeps from being
// synced. Plain folders resolve symlinks and end in a separator.
func (f *Folder) CanonicalLocalPath() string {
	f.mu.Lock()
	encrypted, s := f.encrypted, f.session
	f.mu.Unlock()

	if encrypted {
		if s != nil && s.IsRunning() {
			return s.MountPath()
		}
		return f.path
	}

	resolved, err := filepath.EvalSymlinks(f.path)
	if err != nil {
		// Broken symlink or missing folder.
		return f.path
	}
	if abs, err := filepath.Abs(resolved); err == nil {
		resolved = abs
	}
	if resolved != string(os.PathSeparator) {
		resolved += string(os.PathSeparator)
	}
	return resolved
}

// CanSync reports whether the sync engine may run on this folder.
func (f *Folder) CanSync() bool {
	f.mu.Lock()
	paused, encrypted, s := f.paused, f.encrypted, f.session
	f.mu.Unlock()
	if paused {
		return false
	}
	return !encrypted || (s != nil && s.IsRunning())
}

func (f *Folder) setPaused(p bool) {
	f.mu.Lock()
	f.paused = p
	f.mu.Unlock()
}

// takeSession detaches the current session, if any.
func (f *Folder) takeSession() *session.Session {
	f.mu.Lock()
	defer f.mu.Unlock()
	s := f.session
	f.session = nil
	return s
}

// Done is closed when the folder's mount ends. For a folder without a
// session it is already closed.
func (f *Folder) Done() <-chan struct{} {
	f.mu.Lock()
	s := f.session
	f.mu.Unlock()
	if s == nil {
		closed := make(chan struct{})
		close(closed)
		return closed
	}
	return s.Done()
}
