// Package errors provides typed errors for encrypted folder operations.
// This enables callers to use errors.Is() and errors.As() for specific error handling.
package errors

import (
	"errors"
	"fmt"
)

// Sentinel errors for the mount lifecycle.
// Use errors.Is(err, errors.ErrMount) to check for specific errors.
var (
	// Key material errors
	ErrNoKey             = errors.New("folder has no key file")
	ErrKeyGen            = errors.New("key file could not be created")
	ErrDirectoryNotEmpty = errors.New("directory is not empty")

	// Construction errors
	ErrMountDirectory   = errors.New("mount directory could not be prepared")
	ErrHandleCreate     = errors.New("encrypted filesystem handle could not be created")
	ErrMount            = errors.New("invalid password or mount error")
	ErrWorkerStart      = errors.New("mount service loop exited immediately")
	ErrMountUnavailable = errors.New("mount capability not available on this system")

	// Teardown errors (reported, never fatal)
	ErrUnmount = errors.New("unmount failed")
	ErrCleanup = errors.New("mount directory cleanup failed")

	// Folder management errors
	ErrPromptCancelled = errors.New("password prompt cancelled")
	ErrFolderConflict  = errors.New("folder conflicts with an existing folder")
	ErrFolderNotFound  = errors.New("folder not found")
)

// FileError represents an error during file operations.
type FileError struct {
	Op   string // Operation: "stat", "mkdir", "remove", "rename", "sync"
	Path string // File path
	Err  error  // Underlying error
}

func (e *FileError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
	}
	return fmt.Sprintf("%s %s failed", e.Op, e.Path)
}

func (e *FileError) Unwrap() error {
	return e.Err
}

// NewFileError creates a new FileError.
func NewFileError(op, path string, err error) *FileError {
	return &FileError{Op: op, Path: path, Err: err}
}

// KindError attaches one of the sentinel kinds to an underlying cause so that
// both errors.Is(err, kind) and errors.Is(err, cause) hold.
type KindError struct {
	Kind error
	Err  error
}

func (e *KindError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%v: %v", e.Kind, e.Err)
	}
	return e.Kind.Error()
}

func (e *KindError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// Kind wraps err with a sentinel kind. Returns nil if kind is nil.
func Kind(kind, err error) error {
	if kind == nil {
		return nil
	}
	return &KindError{Kind: kind, Err: err}
}

// Is checks if target matches any of our sentinel errors.
// This is a convenience function for common error checks.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target.
func As(err error, target any) bool {
	return errors.As(err, target)
}

// New is errors.New, re-exported so callers need a single import.
func New(text string) error {
	return errors.New(text)
}

// Join is errors.Join, re-exported so callers need a single import.
func Join(errs ...error) error {
	return errors.Join(errs...)
}

// Wrap wraps an error with additional context.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// IsCancelled checks if the error indicates a cancelled password prompt.
func IsCancelled(err error) bool {
	return errors.Is(err, ErrPromptCancelled)
}

// IsMountFailure checks if the error is a failed mount, which callers
// present as an invalid password and may retry with fresh input.
func IsMountFailure(err error) bool {
	return errors.Is(err, ErrMount)
}

// IsTeardown checks if the error came from the non-fatal teardown path.
func IsTeardown(err error) bool {
	return errors.Is(err, ErrUnmount) || errors.Is(err, ErrCleanup)
}
