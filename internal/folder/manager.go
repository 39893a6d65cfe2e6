package folder

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"sync"

	"cryptfolder/internal/config"
	"cryptfolder/internal/crypto"
	"cryptfolder/internal/errors"
	"cryptfolder/internal/journal"
	"cryptfolder/internal/log"
	"cryptfolder/internal/session"
	"cryptfolder/internal/unmount"
)

// Prompt asks the user for the password of an encrypted folder. attempt
// starts at 1. Returning an error, ErrPromptCancelled or otherwise, ends the
// password loop and leaves the folder paused.
type Prompt interface {
	Prompt(ctx context.Context, path string, attempt int) (*crypto.Secret, error)
}

// PromptFunc adapts a function to Prompt.
type PromptFunc func(ctx context.Context, path string, attempt int) (*crypto.Secret, error)

func (fn PromptFunc) Prompt(ctx context.Context, path string, attempt int) (*crypto.Secret, error) {
	return fn(ctx, path, attempt)
}

// Options configure a Manager.
type Options struct {
	Session      session.Deps
	Capabilities config.Capabilities
	Prompt       Prompt
	// MaxAttempts bounds the password loop; 0 keeps asking until the
	// prompt is cancelled.
	MaxAttempts int

	// Journal enables crash recovery and is recorded into by sessions.
	Journal *journal.Journal
	// Recovery ends stale mounts during RecoverStale. Defaults to
	// unmount.Forced.
	Recovery journal.Unmounter
}

// Manager owns the registered folders and their sessions.
type Manager struct {
	opts Options

	mu      sync.Mutex
	folders map[string]*Folder
}

// NewManager returns an empty manager.
func NewManager(opts Options) (*Manager, error) {
	if opts.Session.Driver == nil || opts.Session.Keys == nil || opts.Session.Planner == nil {
		return nil, fmt.Errorf("folder: driver, key store and planner are required")
	}
	if opts.Prompt == nil {
		return nil, fmt.Errorf("folder: a password prompt is required")
	}
	if opts.MaxAttempts < 0 {
		return nil, fmt.Errorf("folder: max attempts must not be negative")
	}
	if opts.Journal != nil {
		opts.Session.Journal = opts.Journal
	}
	if opts.Recovery == nil {
		opts.Recovery = unmount.Forced{}
	}
	return &Manager{opts: opts, folders: make(map[string]*Folder)}, nil
}

// Add registers def. If the folder is encrypted and not paused, the
// password loop runs before Add returns. The folder stays registered when
// unlocking fails: it is left paused and the returned error says why.
func (m *Manager) Add(ctx context.Context, def Definition) (*Folder, error) {
	if def.Alias == "" || def.LocalPath == "" {
		return nil, fmt.Errorf("folder: alias and local path are required")
	}
	path, err := filepath.Abs(def.LocalPath)
	if err != nil {
		return nil, err
	}

	f := &Folder{
		alias:     def.Alias,
		path:      path,
		paused:    def.Paused,
		encrypted: m.opts.Session.Keys.HasKey(path),
	}

	m.mu.Lock()
	if err := m.checkConflict(f); err != nil {
		m.mu.Unlock()
		return nil, err
	}
	m.folders[f.alias] = f
	m.mu.Unlock()

	log.Info("folder added",
		log.String("alias", f.alias), log.String("path", path), log.Bool("encrypted", f.encrypted))

	if !f.encrypted || def.Paused {
		return f, nil
	}
	f.op.Lock()
	defer f.op.Unlock()
	return f, m.unlock(ctx, f)
}

// checkConflict refuses a second folder on the same path, and folders
// where one's mount path is the other's source. Caller holds m.mu.
func (m *Manager) checkConflict(f *Folder) error {
	if _, dup := m.folders[f.alias]; dup {
		return fmt.Errorf("%w: alias %q already in use", errors.ErrFolderConflict, f.alias)
	}
	others := make([]string, 0, len(m.folders))
	for _, o := range m.folders {
		if o.path == f.path {
			return fmt.Errorf("%w: %s is already folder %q", errors.ErrFolderConflict, f.path, o.alias)
		}
		others = append(others, o.path)
	}
	if m.opts.Session.Planner.Conflicts(f.path, others) {
		return fmt.Errorf("%w: %s overlaps the mount path of another folder", errors.ErrFolderConflict, f.path)
	}
	return nil
}

// unlock runs the password loop for f. Caller holds f.op.
func (m *Manager) unlock(ctx context.Context, f *Folder) error {
	if !m.opts.Capabilities.MountAvailable {
		log.Warn("no mount support on this system, keeping folder paused", log.String("alias", f.alias))
		f.setPaused(true)
		return errors.ErrMountUnavailable
	}

	// A session whose mount died underneath is torn down before remounting.
	if old := f.takeSession(); old != nil {
		if err := old.Close(); err != nil {
			log.Warn("closing dead session", log.String("alias", f.alias), log.Err(err))
		}
	}

	var lastErr error
	for attempt := 1; m.opts.MaxAttempts == 0 || attempt <= m.opts.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			f.setPaused(true)
			return errors.Kind(errors.ErrPromptCancelled, err)
		}

		pw, err := m.opts.Prompt.Prompt(ctx, f.path, attempt)
		if err != nil {
			log.Info("password prompt cancelled, folder paused", log.String("alias", f.alias))
			f.setPaused(true)
			if errors.IsCancelled(err) {
				return err
			}
			return errors.Kind(errors.ErrPromptCancelled, err)
		}

		s, err := session.Open(f.path, pw, m.opts.Session)
		pw.Close()
		if err == nil {
			f.mu.Lock()
			f.session = s
			f.paused = false
			f.mu.Unlock()
			return nil
		}

		log.Warn("invalid password or mount error",
			log.String("alias", f.alias), log.Int("attempt", attempt), log.Err(err))
		lastErr = err
	}

	f.setPaused(true)
	return lastErr
}

func (m *Manager) get(alias string) (*Folder, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	f, ok := m.folders[alias]
	if !ok {
		return nil, fmt.Errorf("%w: %q", errors.ErrFolderNotFound, alias)
	}
	return f, nil
}

// Get returns the folder registered as alias.
func (m *Manager) Get(alias string) (*Folder, error) {
	return m.get(alias)
}

// Folders returns the registered folders sorted by alias.
func (m *Manager) Folders() []*Folder {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*Folder, 0, len(m.folders))
	for _, f := range m.folders {
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].alias < out[j].alias })
	return out
}

// SetPaused pauses or resumes a folder. Resuming an encrypted folder that
// is not running unlocks it first; if that fails the folder stays paused.
// Pausing keeps the mount.
func (m *Manager) SetPaused(ctx context.Context, alias string, paused bool) error {
	f, err := m.get(alias)
	if err != nil {
		return err
	}
	f.op.Lock()
	defer f.op.Unlock()

	if paused || !f.Encrypted() || f.Running() {
		f.setPaused(paused)
		return nil
	}
	return m.unlock(ctx, f)
}

// Remove unregisters a folder and closes its session. Teardown problems are
// returned for reporting; the folder is removed regardless.
func (m *Manager) Remove(alias string) error {
	f, err := m.get(alias)
	if err != nil {
		return err
	}
	f.op.Lock()
	defer f.op.Unlock()

	m.mu.Lock()
	delete(m.folders, alias)
	m.mu.Unlock()

	if s := f.takeSession(); s != nil {
		return s.Close()
	}
	return nil
}

// EncryptNew turns an empty or missing directory into an encrypted folder.
// It does not register the folder.
func (m *Manager) EncryptNew(path string, password *crypto.Secret) error {
	keys := m.opts.Session.Keys
	if keys.HasKey(path) {
		return nil
	}
	if !keys.CanEncrypt(path) {
		return fmt.Errorf("%w: %s", errors.ErrDirectoryNotEmpty, path)
	}
	return keys.GenerateKey(path, password)
}

// Close tears down every session. Folders stay registered, paused.
func (m *Manager) Close() error {
	var errs []error
	for _, f := range m.Folders() {
		f.op.Lock()
		if s := f.takeSession(); s != nil {
			if err := s.Close(); err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", f.alias, err))
			}
			f.setPaused(true)
		}
		f.op.Unlock()
	}
	return errors.Join(errs...)
}

// RecoverStale cleans up mounts a crashed process left behind. Without a
// journal it does nothing.
func (m *Manager) RecoverStale(ctx context.Context) ([]journal.Entry, error) {
	if m.opts.Journal == nil {
		return nil, nil
	}
	return m.opts.Journal.Recover(ctx, m.opts.Recovery, m.opts.Session.Planner)
}
