package errors

import (
	"errors"
	"fmt"
	"testing"
)

func TestSentinelErrors(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{"ErrNoKey", ErrNoKey},
		{"ErrKeyGen", ErrKeyGen},
		{"ErrDirectoryNotEmpty", ErrDirectoryNotEmpty},
		{"ErrMountDirectory", ErrMountDirectory},
		{"ErrHandleCreate", ErrHandleCreate},
		{"ErrMount", ErrMount},
		{"ErrWorkerStart", ErrWorkerStart},
		{"ErrMountUnavailable", ErrMountUnavailable},
		{"ErrUnmount", ErrUnmount},
		{"ErrCleanup", ErrCleanup},
		{"ErrPromptCancelled", ErrPromptCancelled},
		{"ErrFolderConflict", ErrFolderConflict},
		{"ErrFolderNotFound", ErrFolderNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.err == nil {
				t.Error("sentinel error should not be nil")
			}
			if tt.err.Error() == "" {
				t.Error("sentinel error should have a message")
			}
		})
	}
}

func TestMountErrorMessage(t *testing.T) {
	// Wrong password and other mount failures share one message.
	if ErrMount.Error() != "invalid password or mount error" {
		t.Errorf("unexpected ErrMount message: %q", ErrMount.Error())
	}
}

func TestFileError(t *testing.T) {
	baseErr := errors.New("permission denied")
	fileErr := NewFileError("mkdir", "/path/to/dir", baseErr)

	if fileErr.Error() != "mkdir /path/to/dir: permission denied" {
		t.Errorf("unexpected error message: %s", fileErr.Error())
	}

	if fileErr.Unwrap() != baseErr {
		t.Error("Unwrap should return underlying error")
	}

	fileErrNil := NewFileError("stat", "/some/path", nil)
	if fileErrNil.Error() != "stat /some/path failed" {
		t.Errorf("unexpected error message for nil: %s", fileErrNil.Error())
	}
}

func TestKindError(t *testing.T) {
	cause := NewFileError("rename", "/tmp/x", errors.New("disk full"))
	err := Kind(ErrKeyGen, cause)

	if !errors.Is(err, ErrKeyGen) {
		t.Error("errors.Is should match the kind")
	}
	var fe *FileError
	if !errors.As(err, &fe) {
		t.Fatal("errors.As should find the FileError cause")
	}
	if fe.Op != "rename" {
		t.Errorf("Op = %q; want rename", fe.Op)
	}
	if err.Error() != "key file could not be created: rename /tmp/x: disk full" {
		t.Errorf("unexpected message: %s", err.Error())
	}

	bare := Kind(ErrCleanup, nil)
	if bare.Error() != ErrCleanup.Error() {
		t.Errorf("bare kind message = %q", bare.Error())
	}
	if !errors.Is(bare, ErrCleanup) {
		t.Error("bare kind should match")
	}

	if Kind(nil, cause) != nil {
		t.Error("Kind(nil, ...) should return nil")
	}
}

func TestWrap(t *testing.T) {
	if Wrap(nil, "context") != nil {
		t.Error("Wrap(nil) should return nil")
	}

	wrapped := Wrap(ErrMount, "opening /tmp/f")
	if wrapped.Error() != "opening /tmp/f: invalid password or mount error" {
		t.Errorf("unexpected message: %s", wrapped.Error())
	}
	if !Is(wrapped, ErrMount) {
		t.Error("wrapped error should match ErrMount")
	}
}

func TestHelpers(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		cancel   bool
		mount    bool
		teardown bool
	}{
		{"cancelled", fmt.Errorf("prompt: %w", ErrPromptCancelled), true, false, false},
		{"mount", Kind(ErrMount, errors.New("exit 12")), false, true, false},
		{"unmount", Kind(ErrUnmount, nil), false, false, true},
		{"cleanup", Kind(ErrCleanup, errors.New("busy")), false, false, true},
		{"nil", nil, false, false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsCancelled(tt.err); got != tt.cancel {
				t.Errorf("IsCancelled = %v; want %v", got, tt.cancel)
			}
			if got := IsMountFailure(tt.err); got != tt.mount {
				t.Errorf("IsMountFailure = %v; want %v", got, tt.mount)
			}
			if got := IsTeardown(tt.err); got != tt.teardown {
				t.Errorf("IsTeardown = %v; want %v", got, tt.teardown)
			}
		})
	}
}

func TestJoin(t *testing.T) {
	err := Join(Kind(ErrUnmount, nil), Kind(ErrCleanup, nil))
	if !Is(err, ErrUnmount) || !Is(err, ErrCleanup) {
		t.Error("joined error should match both kinds")
	}
	if Join() != nil {
		t.Error("Join() should be nil")
	}
}
