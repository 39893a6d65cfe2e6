//go:build linux || darwin

package passthrough

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"cryptfolder/internal/crypto"
	"cryptfolder/internal/driver"
	"cryptfolder/internal/keyfile"
)

func newKeyed(t *testing.T) (*Driver, string, string) {
	t.Helper()
	d := New(crypto.TestParams)
	src := t.TempDir()
	key := filepath.Join(src, ".key")
	if err := d.GenerateKeyFile(src, key, []byte("pw")); err != nil {
		t.Fatalf("GenerateKeyFile: %v", err)
	}
	return d, src, key
}

func TestCreateReadsKey(t *testing.T) {
	d, src, key := newKeyed(t)
	h, err := d.Create(src, key)
	if err != nil {
		t.Fatal(err)
	}
	if h.SourcePath() != src || h.KeyPath() != key {
		t.Errorf("handle paths = %s %s", h.SourcePath(), h.KeyPath())
	}
	d.Free(h)
}

func TestCreateRejectsBadKey(t *testing.T) {
	d := New(crypto.TestParams)
	src := t.TempDir()
	key := filepath.Join(src, ".key")
	if err := os.WriteFile(key, []byte("not a key"), 0600); err != nil {
		t.Fatal(err)
	}
	if _, err := d.Create(src, key); !errors.Is(err, keyfile.ErrCorrupt) {
		t.Errorf("Create = %v; want ErrCorrupt", err)
	}
	if _, err := d.Create(src, filepath.Join(src, "missing")); err == nil {
		t.Error("Create with missing key should fail")
	}
}

func TestMountWrongPassword(t *testing.T) {
	d, src, key := newKeyed(t)
	h, err := d.Create(src, key)
	if err != nil {
		t.Fatal(err)
	}
	defer d.Free(h)

	err = d.Mount(h, t.TempDir(), []byte("wrong"))
	if !errors.Is(err, driver.ErrBadPassword) {
		t.Errorf("Mount = %v; want ErrBadPassword", err)
	}
}

func TestUnmountedHandle(t *testing.T) {
	d, src, key := newKeyed(t)
	h, _ := d.Create(src, key)
	if d.Loop(h) == nil || d.Unmount(h) == nil {
		t.Error("operations on an unmounted handle should fail")
	}
}

func TestRegistered(t *testing.T) {
	drv, err := driver.Open(Name, driver.Options{})
	if err != nil {
		t.Fatal(err)
	}
	if drv.Name() != Name {
		t.Errorf("Name = %s", drv.Name())
	}
}

// TestMountRoundTrip needs FUSE; set CRYPTFOLDER_TEST_FUSE=1 to run it.
func TestMountRoundTrip(t *testing.T) {
	if os.Getenv("CRYPTFOLDER_TEST_FUSE") != "1" {
		t.Skip("set CRYPTFOLDER_TEST_FUSE=1 to run FUSE mounts")
	}
	d, src, key := newKeyed(t)
	if err := os.WriteFile(filepath.Join(src, "hello.txt"), []byte("hi"), 0600); err != nil {
		t.Fatal(err)
	}
	mnt := t.TempDir()

	h, err := d.Create(src, key)
	if err != nil {
		t.Fatal(err)
	}
	defer d.Free(h)
	if err := d.Mount(h, mnt, []byte("pw")); err != nil {
		t.Fatalf("Mount: %v", err)
	}

	done := make(chan error, 1)
	go func() { done <- d.Loop(h) }()

	got, err := os.ReadFile(filepath.Join(mnt, "hello.txt"))
	if err != nil || string(got) != "hi" {
		t.Errorf("read through mount = %q, %v", got, err)
	}

	if err := d.Unmount(h); err != nil {
		t.Fatalf("Unmount: %v", err)
	}
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Loop did not return after Unmount")
	}
}
