// Package config loads cryptfolder settings from a YAML file.
//
// A missing file is not an error: Load returns Default() so the tool works
// without any setup. Durations are written the Go way ("100ms", "5s").
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"cryptfolder/internal/log"
)

// Unmount modes.
const (
	UnmountAuto   = "auto"
	UnmountNative = "native"
	UnmountForced = "forced"
)

// Defaults used when a field is absent from the config file.
const (
	DefaultDriver       = "gocryptfs"
	DefaultKeyFileName  = ".key"
	DefaultMountSuffix  = "_UNCRYPT"
	DefaultStartProbe   = 100 * time.Millisecond
	DefaultStopTimeout  = 5 * time.Second
	DefaultMountTimeout = 10 * time.Second
)

// Config is the process-wide configuration. It is passed explicitly to the
// components that need it; nothing reads it from a global.
type Config struct {
	Driver        string `yaml:"driver"`
	GocryptfsPath string `yaml:"gocryptfs_path"`
	KeyFileName   string `yaml:"key_file_name"`
	MountSuffix   string `yaml:"mount_suffix"`

	StartProbe   time.Duration `yaml:"start_probe"`
	StopTimeout  time.Duration `yaml:"stop_timeout"`
	MountTimeout time.Duration `yaml:"mount_timeout"`

	Unmount     string `yaml:"unmount"`
	JournalPath string `yaml:"journal_path"`

	// MaxPasswordAttempts bounds the password prompt loop; 0 means unlimited.
	MaxPasswordAttempts int `yaml:"max_password_attempts"`

	LogLevel string `yaml:"log_level"`
	LogFile  string `yaml:"log_file"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Driver:        DefaultDriver,
		GocryptfsPath: "gocryptfs",
		KeyFileName:   DefaultKeyFileName,
		MountSuffix:   DefaultMountSuffix,
		StartProbe:    DefaultStartProbe,
		StopTimeout:   DefaultStopTimeout,
		MountTimeout:  DefaultMountTimeout,
		Unmount:       UnmountAuto,
		JournalPath:   defaultJournalPath(),
		LogLevel:      "info",
	}
}

// DefaultPath is where Load looks when no --config flag is given.
func DefaultPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "cryptfolder", "config.yaml")
}

func defaultJournalPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return filepath.Join(os.TempDir(), "cryptfolder-journal.db")
	}
	return filepath.Join(dir, "cryptfolder", "journal.db")
}

// Load reads path on top of Default(). An empty path or a missing file
// yields the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate reports the first invalid field.
func (c *Config) Validate() error {
	switch {
	case c.Driver == "":
		return fmt.Errorf("driver must be set")
	case c.KeyFileName == "" || strings.ContainsRune(c.KeyFileName, filepath.Separator):
		return fmt.Errorf("key_file_name must be a plain file name, got %q", c.KeyFileName)
	case c.MountSuffix == "" || strings.ContainsRune(c.MountSuffix, filepath.Separator):
		return fmt.Errorf("mount_suffix must be non-empty and contain no separator, got %q", c.MountSuffix)
	case c.StartProbe <= 0:
		return fmt.Errorf("start_probe must be positive")
	case c.StopTimeout <= 0:
		return fmt.Errorf("stop_timeout must be positive")
	case c.MountTimeout <= 0:
		return fmt.Errorf("mount_timeout must be positive")
	case c.MaxPasswordAttempts < 0:
		return fmt.Errorf("max_password_attempts must not be negative")
	}

	switch c.Unmount {
	case UnmountAuto, UnmountNative, UnmountForced:
	default:
		return fmt.Errorf("unmount must be one of auto, native, forced; got %q", c.Unmount)
	}

	if _, err := log.ParseLevel(c.LogLevel); err != nil {
		return err
	}
	return nil
}
