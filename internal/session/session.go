// Package session runs the mount lifecycle of one encrypted folder.
//
// Open performs the construction protocol: check the key, prepare the
// mount directory, create and mount a driver handle, start the service
// loop and confirm it stays up for a short probe. Any failure releases
// everything acquired so far before Open returns, so a failed Open leaks
// no handle, no mount, no goroutine and no mount directory.
//
// Close performs the teardown protocol in a fixed order: unmount, stop the
// service loop, remove the mount directory, free the handle. Teardown
// errors are reported but never stop the sequence, and Close is safe to
// call any number of times.
package session

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"cryptfolder/internal/crypto"
	"cryptfolder/internal/driver"
	"cryptfolder/internal/errors"
	"cryptfolder/internal/journal"
	"cryptfolder/internal/keystore"
	"cryptfolder/internal/log"
	"cryptfolder/internal/mountpath"
	"cryptfolder/internal/unmount"
	"cryptfolder/internal/worker"
)

// Journal records live mounts for crash recovery.
type Journal interface {
	Record(ctx context.Context, e journal.Entry) error
	Remove(ctx context.Context, mountPath string) error
}

// Deps are the collaborators of a session. Driver, Keys and Planner are
// required.
type Deps struct {
	Driver  driver.Driver
	Keys    *keystore.Store
	Planner *mountpath.Planner

	// Unmount defaults to the driver's own unmount.
	Unmount unmount.Strategy
	// ForceUnmount ends a loop that survived Unmount when the driver cannot
	// kill it. Defaults to unmount.Forced.
	ForceUnmount func(path string) error
	// Journal is optional.
	Journal Journal

	// StartProbe is how long the service loop must stay up after start.
	StartProbe time.Duration
	// StopTimeout bounds the wait for the loop to end during teardown.
	StopTimeout time.Duration
}

const (
	defaultStartProbe  = 100 * time.Millisecond
	defaultStopTimeout = 5 * time.Second
)

// Session is one mounted encrypted folder.
type Session struct {
	id        string
	source    string
	keyPath   string
	mountPath string
	deps      Deps
	log       log.Logger

	// closeMu serializes Close. mu guards state and worker only, so status
	// queries never wait for a teardown.
	closeMu sync.Mutex
	mu      sync.Mutex
	state   State
	worker  *worker.Worker
	done    <-chan struct{}

	// Owned by open and teardown.
	handle     driver.Handle
	mounted    bool
	dirCreated bool
}

// Open mounts the encrypted folder at source with password. The caller
// keeps ownership of password and should close it afterwards.
//
// On failure the returned error is a *Error wrapping one of ErrNoKey,
// ErrMountDirectory, ErrHandleCreate, ErrMount or ErrWorkerStart.
func Open(source string, password *crypto.Secret, deps Deps) (*Session, error) {
	if deps.Unmount == nil {
		deps.Unmount = unmount.Native{Driver: deps.Driver}
	}
	if deps.ForceUnmount == nil {
		deps.ForceUnmount = unmount.Forced{}.ForceUnmount
	}
	if deps.StartProbe <= 0 {
		deps.StartProbe = defaultStartProbe
	}
	if deps.StopTimeout <= 0 {
		deps.StopTimeout = defaultStopTimeout
	}

	source = filepath.Clean(source)
	id := uuid.NewString()
	s := &Session{
		id:      id,
		source:  source,
		keyPath: deps.Keys.KeyPath(source),
		deps:    deps,
		state:   Idle,
		log:     log.With(log.String("session", id), log.String("source", source)),
	}

	if err := s.open(password); err != nil {
		s.log.Warn("mount failed", log.String("stage", err.Stage.String()), log.Err(err.Err))
		_ = s.teardown()
		s.state = Failed
		return nil, err
	}

	s.log.Info("folder mounted", log.String("mount_path", s.mountPath), log.String("driver", deps.Driver.Name()))
	if deps.Journal != nil {
		entry := journal.Entry{
			ID:        s.id,
			Source:    s.source,
			MountPath: s.mountPath,
			Driver:    deps.Driver.Name(),
			PID:       os.Getpid(),
		}
		if err := deps.Journal.Record(context.Background(), entry); err != nil {
			s.log.Warn("could not record mount in journal", log.Err(err))
		}
	}
	return s, nil
}

func (s *Session) open(password *crypto.Secret) *Error {
	fail := func(stage State, kind, err error) *Error {
		return &Error{Stage: stage, Err: withKind(kind, err)}
	}

	// Step 1: the folder must already be encrypted.
	if !s.deps.Keys.HasKey(s.source) {
		return fail(KeyChecked, errors.ErrNoKey, fmt.Errorf("%s", s.source))
	}
	s.state = KeyChecked

	// Step 2: fresh, empty mount directory.
	s.mountPath = s.deps.Planner.Derive(s.source)
	if err := s.deps.Planner.Prepare(s.mountPath); err != nil {
		return fail(MountPrepared, errors.ErrMountDirectory, err)
	}
	s.dirCreated = true
	s.state = MountPrepared

	// Step 3: driver handle.
	h, err := s.deps.Driver.Create(s.source, s.keyPath)
	if err == nil && h == nil {
		err = fmt.Errorf("driver %s returned no handle", s.deps.Driver.Name())
	}
	if err != nil {
		return fail(Mounted, errors.ErrHandleCreate, err)
	}
	s.handle = h

	// Step 4: mount. Wrong password and other mount failures are one
	// outcome for the caller; the cause stays in the chain for logs.
	if err := s.deps.Driver.Mount(h, s.mountPath, password.Bytes()); err != nil {
		return fail(Mounted, errors.ErrMount, err)
	}
	s.mounted = true
	s.state = Mounted

	// Step 5: service loop plus liveness probe.
	w := worker.New(s.id, func() error { return s.deps.Driver.Loop(h) })
	s.worker = w
	if err := w.Start(); err != nil {
		return fail(Looping, errors.ErrWorkerStart, err)
	}
	s.done = w.Done()
	s.state = Looping
	if !w.ConfirmStartedWithin(s.deps.StartProbe) {
		cause := w.Err()
		if cause == nil {
			cause = fmt.Errorf("loop returned within %v", s.deps.StartProbe)
		}
		return fail(Running, errors.ErrWorkerStart, cause)
	}
	s.state = Running
	return nil
}

// teardown releases the resources present, in order: unmount, stop the
// loop, remove the directory, free the handle. It also unwinds a failed
// open. Only one teardown runs at a time.
func (s *Session) teardown() error {
	var errs []error

	if s.mounted {
		if err := s.deps.Unmount.Unmount(s.handle, s.mountPath); err != nil {
			s.log.Warn("unmount failed", log.Err(err))
			errs = append(errs, withKind(errors.ErrUnmount, err))
		}
		s.mounted = false
	}

	s.mu.Lock()
	w := s.worker
	s.worker = nil
	s.mu.Unlock()
	if w != nil {
		if st := w.Stop(s.deps.StopTimeout, s.force); st == worker.StoppedForced {
			s.log.Warn("service loop was stopped forcibly")
		}
	}

	if s.dirCreated {
		if err := s.deps.Planner.Cleanup(s.mountPath); err != nil {
			s.log.Warn("mount directory cleanup failed", log.String("mount_path", s.mountPath), log.Err(err))
			errs = append(errs, withKind(errors.ErrCleanup, err))
		}
		s.dirCreated = false
	}

	if s.handle != nil {
		s.deps.Driver.Free(s.handle)
		s.handle = nil
	}
	return errors.Join(errs...)
}

func withKind(kind, err error) error {
	if errors.Is(err, kind) {
		return err
	}
	return errors.Kind(kind, err)
}

// force ends a service loop that ignored the unmount.
func (s *Session) force() error {
	if k, ok := s.deps.Driver.(driver.Killer); ok {
		if err := k.Kill(s.handle); err == nil {
			return nil
		}
	}
	return s.deps.ForceUnmount(s.mountPath)
}

// Close unmounts the folder and releases every resource. It does nothing
// unless the session is running, so repeated calls are safe. The returned
// error is informational: teardown always completes.
//
// A mount that could not be unmounted or cleaned up stays in the journal
// so that recovery finds it later.
func (s *Session) Close() error {
	s.closeMu.Lock()
	defer s.closeMu.Unlock()

	s.mu.Lock()
	if s.state != Running {
		s.mu.Unlock()
		return nil
	}
	s.state = Unmounting
	s.mu.Unlock()

	s.log.Info("unmounting folder", log.String("mount_path", s.mountPath))
	err := s.teardown()
	s.setState(Cleaned)

	if s.deps.Journal != nil {
		if errors.IsTeardown(err) {
			s.log.Warn("mount kept in journal for recovery", log.String("mount_path", s.mountPath))
		} else if jerr := s.deps.Journal.Remove(context.Background(), s.mountPath); jerr != nil {
			s.log.Warn("could not remove mount from journal", log.Err(jerr))
		}
	}
	s.setState(Closed)
	return err
}

func (s *Session) setState(st State) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
}

// IsRunning reports whether the folder is mounted and its service loop is
// alive.
func (s *Session) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state == Running && s.worker != nil && s.worker.IsRunning()
}

// MountPath is where the decrypted view lives, with a trailing separator.
func (s *Session) MountPath() string {
	return s.mountPath + string(filepath.Separator)
}

// SourcePath is the encrypted folder.
func (s *Session) SourcePath() string {
	return s.source
}

// ID identifies the session in logs and in the journal.
func (s *Session) ID() string {
	return s.id
}

// State returns the lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Done is closed when the service loop ends, whether through Close or
// because the mount died underneath.
func (s *Session) Done() <-chan struct{} {
	if s.done == nil {
		closed := make(chan struct{})
		close(closed)
		return closed
	}
	return s.done
}
