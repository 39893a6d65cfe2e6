package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"cryptfolder/internal/config"
	"cryptfolder/internal/log"
)

// Version is set by main.go
var Version = "dev"

// Global flags
var (
	configPath    string
	debug         bool
	logFile       string
	passwordStdin bool
	quiet         bool
)

// rootCmd is the base command when called without subcommands
var rootCmd = &cobra.Command{
	Use:   "cryptfolder",
	Short: "Mount encrypted folders for a file sync client",
	Long: `cryptfolder keeps a folder encrypted on disk and mounts its decrypted
view next to it, at <folder>_UNCRYPT, for as long as you need it.

The encryption itself is done by a userspace filesystem (gocryptfs by
default). cryptfolder creates the key, prepares the mount directory,
mounts, watches the mount and tears everything down again, cleaning up
after crashes on the next start.`,
	SilenceErrors:     true,
	SilenceUsage:      true,
	PersistentPreRunE: setup,
}

var logCloser io.Closer

// setup loads the configuration and installs the logger before any
// command runs.
func setup(cmd *cobra.Command, _ []string) error {
	path := configPath
	if path == "" {
		path = config.DefaultPath()
	}
	cfg, err := config.Load(path)
	if err != nil {
		return err
	}
	if logFile != "" {
		cfg.LogFile = logFile
	}

	level, _ := log.ParseLevel(cfg.LogLevel)
	switch {
	case debug:
		log.EnableDebugLogging()
	case cfg.LogFile != "":
		c, err := log.EnableFileLogging(cfg.LogFile, level)
		if err != nil {
			return fmt.Errorf("opening log file: %w", err)
		}
		logCloser = c
	default:
		// The reporter prints progress; stderr logs only carry problems.
		log.SetLogger(log.NewConsoleLogger(cmd.ErrOrStderr(), max(level, log.LevelWarn)))
	}

	cmd.SetContext(withConfig(cmd.Context(), cfg))
	return nil
}

type configKey struct{}

func withConfig(ctx context.Context, cfg *config.Config) context.Context {
	return context.WithValue(ctx, configKey{}, cfg)
}

func configFrom(ctx context.Context) *config.Config {
	if cfg, ok := ctx.Value(configKey{}).(*config.Config); ok {
		return cfg
	}
	return config.Default()
}

// Execute runs the CLI and returns the process exit code. SIGINT and
// SIGTERM cancel the command's context, which unmounts whatever it
// mounted.
func Execute(version string) int {
	Version = version
	rootCmd.Version = version

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := rootCmd.ExecuteContext(ctx)
	if logCloser != nil {
		logCloser.Close()
	}
	if err != nil {
		NewReporter(os.Stdout, os.Stderr, false).PrintError("%v", err)
		return 1
	}
	return 0
}

func init() {
	// Disable default completion command
	rootCmd.CompletionOptions.DisableDefaultCmd = true

	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file (default is the user config dir)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "Log debug output to stderr")
	rootCmd.PersistentFlags().StringVar(&logFile, "log-file", "", "Write JSON logs to this file")
	rootCmd.PersistentFlags().BoolVarP(&passwordStdin, "password-stdin", "P", false, "Read the password from stdin")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "Only print errors")
}
