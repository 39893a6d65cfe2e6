package cli

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"cryptfolder/internal/mountpath"
	"cryptfolder/internal/util"
)

var statusCmd = &cobra.Command{
	Use:   "status DIR",
	Short: "Show whether a folder is encrypted and mounted",
	Args:  cobra.ExactArgs(1),
	RunE:  runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	e, err := newEnv(cmd, false)
	if err != nil {
		return err
	}
	defer e.close()

	dir, err := filepath.Abs(args[0])
	if err != nil {
		return err
	}
	mnt := e.planner.Derive(dir)
	mounted, err := mountpath.IsMounted(mnt)
	if err != nil {
		e.reporter.PrintWarning("could not read the mount table: %v", err)
	}

	r := e.reporter
	r.PrintField("Folder", dir)
	switch {
	case e.keys.HasKey(dir):
		r.PrintField("Encrypted", "yes")
	case e.keys.CanEncrypt(dir):
		r.PrintField("Encrypted", "no (can be initialized)")
	default:
		r.PrintField("Encrypted", "no (not empty)")
	}
	r.PrintField("Mount path", mnt)
	r.PrintField("Mounted", yesNo(mounted))
	r.PrintField("FUSE", yesNo(e.caps.MountAvailable))

	entries, err := e.journal.List(cmd.Context())
	if err != nil {
		return err
	}
	for _, en := range entries {
		if en.MountPath == mnt {
			r.PrintField("Owner", fmt.Sprintf("pid %d, %s driver", en.PID, en.Driver))
			r.PrintField("Uptime", util.Uptime(time.Since(en.StartedAt)))
		}
	}
	return nil
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
