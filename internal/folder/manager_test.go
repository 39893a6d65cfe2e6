package folder

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"cryptfolder/internal/config"
	"cryptfolder/internal/crypto"
	"cryptfolder/internal/driver/drivertest"
	cferrors "cryptfolder/internal/errors"
	"cryptfolder/internal/journal"
	"cryptfolder/internal/keystore"
	"cryptfolder/internal/mountpath"
	"cryptfolder/internal/session"
)

// scripted answers prompts from a list; an empty string cancels.
type scripted struct {
	answers  []string
	attempts []int
}

func (s *scripted) Prompt(_ context.Context, _ string, attempt int) (*crypto.Secret, error) {
	s.attempts = append(s.attempts, attempt)
	if len(s.answers) == 0 || s.answers[0] == "" {
		return nil, cferrors.ErrPromptCancelled
	}
	pw := s.answers[0]
	s.answers = s.answers[1:]
	return crypto.NewSecret(pw), nil
}

func notMounted(string) (bool, error) { return false, nil }

func newManager(t *testing.T, fake *drivertest.Fake, prompt Prompt, mutate func(*Options)) *Manager {
	t.Helper()
	opts := Options{
		Session: session.Deps{
			Driver:       fake,
			Keys:         keystore.New(fake, ""),
			Planner:      mountpath.New("_UNCRYPT", mountpath.WithMountChecker(notMounted)),
			ForceUnmount: func(string) error { return nil },
			StartProbe:   10 * time.Millisecond,
			StopTimeout:  50 * time.Millisecond,
		},
		Capabilities: config.Capabilities{OS: "linux", MountAvailable: true},
		Prompt:       prompt,
	}
	if mutate != nil {
		mutate(&opts)
	}
	m, err := NewManager(opts)
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	t.Cleanup(func() { m.Close() })
	return m
}

// encrypted creates an encrypted folder protected by "pw".
func encrypted(t *testing.T, m *Manager) string {
	t.Helper()
	dir := filepath.Join(t.TempDir(), "secret")
	pw := crypto.NewSecret("pw")
	defer pw.Close()
	if err := m.EncryptNew(dir, pw); err != nil {
		t.Fatalf("EncryptNew: %v", err)
	}
	return dir
}

func TestAddPlainFolder(t *testing.T) {
	fake := &drivertest.Fake{}
	prompt := &scripted{}
	m := newManager(t, fake, prompt, nil)

	dir := t.TempDir()
	f, err := m.Add(context.Background(), Definition{Alias: "docs", LocalPath: dir})
	if err != nil {
		t.Fatal(err)
	}
	if f.Encrypted() || !f.CanSync() {
		t.Errorf("plain folder: encrypted=%v canSync=%v", f.Encrypted(), f.CanSync())
	}
	if len(prompt.attempts) != 0 {
		t.Error("plain folder prompted for a password")
	}
	if got := f.CanonicalLocalPath(); !strings.HasSuffix(got, string(os.PathSeparator)) {
		t.Errorf("CanonicalLocalPath = %q; want trailing separator", got)
	}
}

func TestAddEncryptedUnlocks(t *testing.T) {
	fake := &drivertest.Fake{}
	prompt := &scripted{answers: []string{"wrong", "pw"}}
	m := newManager(t, fake, prompt, nil)
	dir := encrypted(t, m)

	f, err := m.Add(context.Background(), Definition{Alias: "secret", LocalPath: dir})
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	if len(prompt.attempts) != 2 || prompt.attempts[1] != 2 {
		t.Errorf("attempts = %v; want [1 2]", prompt.attempts)
	}
	if !f.Running() || !f.CanSync() || f.Paused() {
		t.Errorf("running=%v canSync=%v paused=%v", f.Running(), f.CanSync(), f.Paused())
	}
	want := dir + "_UNCRYPT" + string(filepath.Separator)
	if f.CanonicalLocalPath() != want || f.MountPath() != want {
		t.Errorf("CanonicalLocalPath = %q; want %q", f.CanonicalLocalPath(), want)
	}

	if err := m.Remove("secret"); err != nil {
		t.Errorf("Remove = %v", err)
	}
	if _, err := os.Stat(dir + "_UNCRYPT"); !os.IsNotExist(err) {
		t.Error("mount directory left after Remove")
	}
	if fake.LiveHandles() != 0 {
		t.Error("handle leaked after Remove")
	}
	if _, err := m.Get("secret"); !errors.Is(err, cferrors.ErrFolderNotFound) {
		t.Errorf("Get after Remove = %v", err)
	}
}

func TestAddEncryptedCancelled(t *testing.T) {
	fake := &drivertest.Fake{}
	prompt := &scripted{answers: []string{"wrong", ""}}
	m := newManager(t, fake, prompt, nil)
	dir := encrypted(t, m)

	f, err := m.Add(context.Background(), Definition{Alias: "secret", LocalPath: dir})
	if !errors.Is(err, cferrors.ErrPromptCancelled) {
		t.Fatalf("Add = %v; want ErrPromptCancelled", err)
	}
	if f == nil {
		t.Fatal("folder not registered after cancelled unlock")
	}
	if !f.Paused() || f.CanSync() || f.Running() {
		t.Errorf("paused=%v canSync=%v running=%v", f.Paused(), f.CanSync(), f.Running())
	}
	if f.CanonicalLocalPath() != dir {
		t.Errorf("CanonicalLocalPath = %q; want raw path %q", f.CanonicalLocalPath(), dir)
	}
	if fake.LiveHandles() != 0 {
		t.Error("failed attempts leaked handles")
	}
}

func TestMaxAttempts(t *testing.T) {
	fake := &drivertest.Fake{}
	prompt := &scripted{answers: []string{"a", "b", "c", "d"}}
	m := newManager(t, fake, prompt, func(o *Options) { o.MaxAttempts = 3 })
	dir := encrypted(t, m)

	f, err := m.Add(context.Background(), Definition{Alias: "secret", LocalPath: dir})
	if !cferrors.IsMountFailure(err) {
		t.Fatalf("Add = %v; want mount failure", err)
	}
	if len(prompt.attempts) != 3 {
		t.Errorf("prompted %d times; want 3", len(prompt.attempts))
	}
	if !f.Paused() {
		t.Error("folder not paused after exhausting attempts")
	}
}

func TestMountUnavailableSkipsPrompt(t *testing.T) {
	fake := &drivertest.Fake{}
	prompt := &scripted{answers: []string{"pw"}}
	m := newManager(t, fake, prompt, func(o *Options) { o.Capabilities.MountAvailable = false })
	dir := encrypted(t, m)

	f, err := m.Add(context.Background(), Definition{Alias: "secret", LocalPath: dir})
	if !errors.Is(err, cferrors.ErrMountUnavailable) {
		t.Errorf("Add = %v; want ErrMountUnavailable", err)
	}
	if len(prompt.attempts) != 0 {
		t.Error("prompted without mount support")
	}
	if !f.Paused() {
		t.Error("folder not paused")
	}
}

func TestSetPausedUnlocks(t *testing.T) {
	fake := &drivertest.Fake{}
	prompt := &scripted{}
	m := newManager(t, fake, prompt, nil)
	dir := encrypted(t, m)

	f, err := m.Add(context.Background(), Definition{Alias: "secret", LocalPath: dir, Paused: true})
	if err != nil {
		t.Fatal(err)
	}
	if len(prompt.attempts) != 0 {
		t.Error("paused folder prompted on add")
	}

	// Cancelled unlock keeps it paused.
	if err := m.SetPaused(context.Background(), "secret", false); !cferrors.IsCancelled(err) {
		t.Errorf("SetPaused = %v; want cancelled", err)
	}
	if !f.Paused() {
		t.Error("folder resumed without a session")
	}

	prompt.answers = []string{"pw"}
	if err := m.SetPaused(context.Background(), "secret", false); err != nil {
		t.Fatalf("SetPaused = %v", err)
	}
	if f.Paused() || !f.Running() {
		t.Errorf("paused=%v running=%v", f.Paused(), f.Running())
	}

	// Pausing keeps the mount.
	if err := m.SetPaused(context.Background(), "secret", true); err != nil {
		t.Fatal(err)
	}
	if !f.Running() || f.CanSync() {
		t.Errorf("after pause: running=%v canSync=%v", f.Running(), f.CanSync())
	}

	if err := m.SetPaused(context.Background(), "missing", true); !errors.Is(err, cferrors.ErrFolderNotFound) {
		t.Errorf("SetPaused(missing) = %v", err)
	}
}

func TestConflicts(t *testing.T) {
	fake := &drivertest.Fake{}
	m := newManager(t, fake, &scripted{}, nil)
	root := t.TempDir()
	a := filepath.Join(root, "a")

	if _, err := m.Add(context.Background(), Definition{Alias: "a", LocalPath: a, Paused: true}); err != nil {
		t.Fatal(err)
	}
	tests := []struct {
		name string
		def  Definition
	}{
		{"same alias", Definition{Alias: "a", LocalPath: filepath.Join(root, "other")}},
		{"same path", Definition{Alias: "b", LocalPath: a + string(filepath.Separator)}},
		{"mount path of existing", Definition{Alias: "c", LocalPath: a + "_UNCRYPT"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := m.Add(context.Background(), tt.def); !errors.Is(err, cferrors.ErrFolderConflict) {
				t.Errorf("Add = %v; want ErrFolderConflict", err)
			}
		})
	}

	// The reverse: an existing folder sits where the new one would mount.
	m2 := newManager(t, fake, &scripted{}, nil)
	if _, err := m2.Add(context.Background(), Definition{Alias: "m", LocalPath: a + "_UNCRYPT", Paused: true}); err != nil {
		t.Fatal(err)
	}
	if _, err := m2.Add(context.Background(), Definition{Alias: "a", LocalPath: a}); !errors.Is(err, cferrors.ErrFolderConflict) {
		t.Errorf("Add = %v; want ErrFolderConflict", err)
	}
}

func TestEncryptNewRefusesNonEmpty(t *testing.T) {
	fake := &drivertest.Fake{}
	m := newManager(t, fake, &scripted{}, nil)
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "data.txt"), []byte("x"), 0600); err != nil {
		t.Fatal(err)
	}
	pw := crypto.NewSecret("pw")
	defer pw.Close()
	if err := m.EncryptNew(dir, pw); !errors.Is(err, cferrors.ErrDirectoryNotEmpty) {
		t.Errorf("EncryptNew = %v; want ErrDirectoryNotEmpty", err)
	}
}

func TestCloseTearsDownAll(t *testing.T) {
	fake := &drivertest.Fake{}
	prompt := &scripted{answers: []string{"pw", "pw"}}
	m := newManager(t, fake, prompt, nil)

	var folders []*Folder
	for _, alias := range []string{"one", "two"} {
		dir := encrypted(t, m)
		f, err := m.Add(context.Background(), Definition{Alias: alias, LocalPath: dir})
		if err != nil {
			t.Fatal(err)
		}
		folders = append(folders, f)
	}

	if err := m.Close(); err != nil {
		t.Errorf("Close = %v", err)
	}
	for _, f := range folders {
		if f.Running() || f.CanSync() {
			t.Errorf("%s still running after Close", f.Alias())
		}
	}
	if fake.LiveHandles() != 0 || len(fake.Violations()) != 0 {
		t.Errorf("live=%d violations=%v", fake.LiveHandles(), fake.Violations())
	}
	if len(m.Folders()) != 2 {
		t.Error("Close unregistered folders")
	}
}

type recordingUnmounter struct{ paths []string }

func (r *recordingUnmounter) ForceUnmount(path string) error {
	r.paths = append(r.paths, path)
	return nil
}

func TestRecoverStale(t *testing.T) {
	j, err := journal.Open(filepath.Join(t.TempDir(), "journal.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer j.Close()

	stale := filepath.Join(t.TempDir(), "gone_UNCRYPT")
	if err := os.Mkdir(stale, 0700); err != nil {
		t.Fatal(err)
	}
	// A pid that cannot belong to a live process.
	if err := j.Record(context.Background(), journal.Entry{ID: "x", Source: "/gone", MountPath: stale, Driver: "fake", PID: -5}); err != nil {
		t.Fatal(err)
	}

	fake := &drivertest.Fake{}
	u := &recordingUnmounter{}
	m := newManager(t, fake, &scripted{}, func(o *Options) {
		o.Journal = j
		o.Recovery = u
	})

	got, err := m.RecoverStale(context.Background())
	if err != nil {
		t.Fatalf("RecoverStale: %v", err)
	}
	if len(got) != 1 || got[0].MountPath != stale {
		t.Errorf("recovered %+v", got)
	}
	if len(u.paths) != 0 {
		t.Errorf("unmounted %v although nothing was mounted", u.paths)
	}
	if _, err := os.Stat(stale); !os.IsNotExist(err) {
		t.Error("stale mount directory not removed")
	}
}

func TestRecoverStaleWithoutJournal(t *testing.T) {
	m := newManager(t, &drivertest.Fake{}, &scripted{}, nil)
	got, err := m.RecoverStale(context.Background())
	if err != nil || got != nil {
		t.Errorf("RecoverStale = %v, %v", got, err)
	}
}

func TestNewManagerValidates(t *testing.T) {
	if _, err := NewManager(Options{}); err == nil {
		t.Error("NewManager accepted empty options")
	}
}
