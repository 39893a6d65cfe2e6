package cli

import (
	"context"
	"fmt"
	"runtime"

	"github.com/spf13/cobra"

	"cryptfolder/internal/config"
	"cryptfolder/internal/driver"
	"cryptfolder/internal/folder"
	"cryptfolder/internal/journal"
	"cryptfolder/internal/keystore"
	"cryptfolder/internal/mountpath"
	"cryptfolder/internal/session"
	"cryptfolder/internal/unmount"
)

// env is everything a command needs, built from the loaded config.
type env struct {
	cfg      *config.Config
	caps     config.Capabilities
	keys     *keystore.Store
	planner  *mountpath.Planner
	journal  *journal.Journal
	manager  *folder.Manager
	reporter *Reporter
	prompt   *passwordReader
}

// Seams for tests.
var (
	openDriver         = driver.Open
	detectCapabilities = config.DetectCapabilities
	newPrompt          = newPasswordReader
)

// newEnv wires the mount engine. The driver is only opened when needsDriver
// is set, so read-only commands work without gocryptfs installed.
func newEnv(cmd *cobra.Command, needsDriver bool) (*env, error) {
	cfg := configFrom(cmd.Context())
	e := &env{
		cfg:      cfg,
		caps:     detectCapabilities(),
		reporter: NewReporter(cmd.OutOrStdout(), cmd.ErrOrStderr(), quiet),
		prompt:   newPrompt(passwordStdin),
	}
	forced := unmount.Forced{}
	e.planner = mountpath.New(cfg.MountSuffix, mountpath.WithForceUnmount(forced.ForceUnmount))

	j, err := journal.Open(cfg.JournalPath)
	if err != nil {
		return nil, err
	}
	e.journal = j

	if !needsDriver {
		e.keys = keystore.New(nil, cfg.KeyFileName)
		return e, nil
	}

	drv, err := openDriver(cfg.Driver, driver.Options{
		BinaryPath:   cfg.GocryptfsPath,
		MountTimeout: cfg.MountTimeout,
	})
	if err != nil {
		j.Close()
		return nil, err
	}
	strategy, err := unmount.ForPlatform(cfg.Unmount, runtime.GOOS, drv)
	if err != nil {
		j.Close()
		return nil, err
	}
	e.keys = keystore.New(drv, cfg.KeyFileName)

	e.manager, err = folder.NewManager(folder.Options{
		Session: session.Deps{
			Driver:       drv,
			Keys:         e.keys,
			Planner:      e.planner,
			Unmount:      strategy,
			ForceUnmount: forced.ForceUnmount,
			StartProbe:   cfg.StartProbe,
			StopTimeout:  cfg.StopTimeout,
		},
		Capabilities: e.caps,
		Prompt:       e.prompt,
		MaxAttempts:  cfg.MaxPasswordAttempts,
		Journal:      j,
		Recovery:     forced,
	})
	if err != nil {
		j.Close()
		return nil, err
	}
	return e, nil
}

// close tears down every mount and closes the journal.
func (e *env) close() error {
	var err error
	if e.manager != nil {
		err = e.manager.Close()
	}
	if jerr := e.journal.Close(); jerr != nil && err == nil {
		err = jerr
	}
	return err
}

// recoverStale clears mounts left by a crashed run and reports them.
func (e *env) recoverStale(ctx context.Context) error {
	var (
		entries []journal.Entry
		err     error
	)
	if e.manager != nil {
		entries, err = e.manager.RecoverStale(ctx)
	} else {
		entries, err = e.journal.Recover(ctx, unmount.Forced{}, e.planner)
	}
	for _, en := range entries {
		e.reporter.PrintInfo("Recovered stale mount %s (from pid %d)", en.MountPath, en.PID)
	}
	if err != nil {
		return fmt.Errorf("recovering stale mounts: %w", err)
	}
	return nil
}
