package cli

import (
	"github.com/spf13/cobra"
)

var recoverCmd = &cobra.Command{
	Use:   "recover",
	Short: "Remove mounts left behind by a crashed cryptfolder",
	Args:  cobra.NoArgs,
	RunE:  runRecover,
}

func init() {
	rootCmd.AddCommand(recoverCmd)
}

func runRecover(cmd *cobra.Command, _ []string) error {
	e, err := newEnv(cmd, false)
	if err != nil {
		return err
	}
	defer e.close()

	if err := e.recoverStale(cmd.Context()); err != nil {
		return err
	}
	e.reporter.PrintSuccess("Recovery finished")
	return nil
}
