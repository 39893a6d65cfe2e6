package cli

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"cryptfolder/internal/errors"
	"cryptfolder/internal/folder"
)

var mountCmd = &cobra.Command{
	Use:   "mount DIR",
	Short: "Mount the decrypted view of an encrypted folder",
	Long: `Mount the decrypted view of DIR at DIR_UNCRYPT and keep it mounted
until interrupted (Ctrl+C) or terminated. The mount is then removed
together with its directory.

A wrong password can be retried; an empty answer gives up.`,
	Args: cobra.ExactArgs(1),
	RunE: runMount,
}

func init() {
	rootCmd.AddCommand(mountCmd)
}

func runMount(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	e, err := newEnv(cmd, true)
	if err != nil {
		return err
	}
	defer func() {
		if err := e.close(); err != nil {
			e.reporter.PrintWarning("teardown: %v", err)
		}
	}()

	if err := e.recoverStale(ctx); err != nil {
		e.reporter.PrintWarning("%v", err)
	}

	dir, err := filepath.Abs(args[0])
	if err != nil {
		return err
	}
	if !e.keys.HasKey(dir) {
		return fmt.Errorf("%w: %s (run 'cryptfolder init' first)", errors.ErrNoKey, dir)
	}

	f, err := e.manager.Add(ctx, folder.Definition{Alias: filepath.Base(dir), LocalPath: dir})
	switch {
	case errors.IsCancelled(err):
		e.reporter.PrintWarning("cancelled, folder left locked")
		return nil
	case err != nil:
		return err
	}

	e.reporter.PrintSuccess("Mounted %s", f.MountPath())
	e.reporter.PrintInfo("Press Ctrl+C to unmount.")

	select {
	case <-ctx.Done():
		e.reporter.PrintInfo("Unmounting ...")
	case <-f.Done():
		e.reporter.PrintWarning("the mount of %s ended unexpectedly", dir)
	}
	return nil
}
