package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.MountSuffix != "_UNCRYPT" || cfg.KeyFileName != ".key" {
		t.Errorf("defaults not applied: %+v", cfg)
	}
	if cfg.StartProbe != 100*time.Millisecond {
		t.Errorf("StartProbe = %v; want 100ms", cfg.StartProbe)
	}
}

func TestLoadOverridesFields(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
driver: passthrough
mount_suffix: _PLAIN
start_probe: 250ms
stop_timeout: 2s
unmount: forced
max_password_attempts: 3
log_level: debug
`
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Driver != "passthrough" {
		t.Errorf("Driver = %q", cfg.Driver)
	}
	if cfg.MountSuffix != "_PLAIN" {
		t.Errorf("MountSuffix = %q", cfg.MountSuffix)
	}
	if cfg.StartProbe != 250*time.Millisecond {
		t.Errorf("StartProbe = %v", cfg.StartProbe)
	}
	if cfg.StopTimeout != 2*time.Second {
		t.Errorf("StopTimeout = %v", cfg.StopTimeout)
	}
	if cfg.Unmount != UnmountForced {
		t.Errorf("Unmount = %q", cfg.Unmount)
	}
	if cfg.MaxPasswordAttempts != 3 {
		t.Errorf("MaxPasswordAttempts = %d", cfg.MaxPasswordAttempts)
	}
	// Untouched fields keep their defaults.
	if cfg.KeyFileName != ".key" {
		t.Errorf("KeyFileName = %q; want default", cfg.KeyFileName)
	}
}

func TestLoadRejectsInvalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{"bad yaml", "driver: [", "parse"},
		{"bad unmount", "unmount: sometimes", "unmount"},
		{"suffix with separator", "mount_suffix: a/b", "mount_suffix"},
		{"negative attempts", "max_password_attempts: -1", "max_password_attempts"},
		{"zero probe", "start_probe: 0s", "start_probe"},
		{"bad level", "log_level: loud", "log level"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "config.yaml")
			if err := os.WriteFile(path, []byte(tt.content), 0600); err != nil {
				t.Fatal(err)
			}
			_, err := Load(path)
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error %q does not mention %q", err, tt.wantErr)
			}
		})
	}
}

func TestDefaultValidates(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Errorf("Default().Validate() = %v", err)
	}
}

func TestDetect(t *testing.T) {
	has := func(paths ...string) func(string) bool {
		return func(p string) bool {
			for _, q := range paths {
				if p == q {
					return true
				}
			}
			return false
		}
	}

	tests := []struct {
		name   string
		goos   string
		exists func(string) bool
		want   bool
	}{
		{"linux with fuse", "linux", has("/dev/fuse"), true},
		{"linux without fuse", "linux", has(), false},
		{"darwin macfuse", "darwin", has("/Library/Filesystems/macfuse.fs"), true},
		{"darwin osxfuse", "darwin", has("/Library/Filesystems/osxfuse.fs"), true},
		{"darwin none", "darwin", has(), false},
		{"windows", "windows", has("/dev/fuse"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			caps := detect(tt.goos, tt.exists)
			if caps.MountAvailable != tt.want {
				t.Errorf("MountAvailable = %v; want %v", caps.MountAvailable, tt.want)
			}
			if caps.OS != tt.goos {
				t.Errorf("OS = %q", caps.OS)
			}
		})
	}
}
