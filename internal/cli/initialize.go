package cli

import (
	"path/filepath"

	"github.com/spf13/cobra"

	"cryptfolder/internal/crypto"
	"cryptfolder/internal/util"
)

var initCmd = &cobra.Command{
	Use:   "init DIR",
	Short: "Turn an empty or new directory into an encrypted folder",
	Long: `Create the key for DIR so that it becomes an encrypted folder.

DIR must not exist yet or contain nothing but hidden entries. An existing
key is never replaced. You are asked for the password twice; it is hidden
while typing.

Examples:
  # Prompt for the password
  cryptfolder init ~/Sync/private

  # Read the password from stdin (for scripts)
  echo "mypassword" | cryptfolder init ~/Sync/private -P

  # Generate a random password and print it once
  cryptfolder init ~/Sync/private --generate`,
	Args: cobra.ExactArgs(1),
	RunE: runInit,
}

var initGenerate bool

func init() {
	rootCmd.AddCommand(initCmd)
	initCmd.Flags().BoolVarP(&initGenerate, "generate", "g", false, "Generate a random password and print it")
}

func runInit(cmd *cobra.Command, args []string) error {
	e, err := newEnv(cmd, true)
	if err != nil {
		return err
	}
	defer e.close()

	dir, err := filepath.Abs(args[0])
	if err != nil {
		return err
	}
	if e.keys.HasKey(dir) {
		e.reporter.PrintSuccess("%s is already encrypted", dir)
		return nil
	}

	var pw *crypto.Secret
	if initGenerate {
		pw, err = util.GenPassword(util.DefaultPassgen)
	} else {
		pw, err = e.prompt.ReadNew()
	}
	if err != nil {
		return err
	}
	defer pw.Close()

	if passwordStrength(pw) < weakScore {
		e.reporter.PrintWarning("this password is weak and easy to guess")
	}

	e.reporter.PrintInfo("Creating key for %s ...", dir)
	if err := e.manager.EncryptNew(dir, pw); err != nil {
		return err
	}
	e.reporter.PrintSuccess("%s is now an encrypted folder", dir)
	if initGenerate {
		e.reporter.PrintField("Password", string(pw.Bytes()))
		e.reporter.PrintWarning("store this password safely, it is not shown again")
	}
	return nil
}
