package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/oshokin/pyfreeze/internal/config"
	"github.com/oshokin/pyfreeze/internal/domain/build"
	"github.com/oshokin/pyfreeze/internal/logger"
	"github.com/oshokin/pyfreeze/internal/version"
)

var (
	// configPath to the configuration YAML file.
	configPath string
	// logLevel is the minimum level printed to stderr.
	logLevel string

	// rootCmd represents the base command when called without any subcommands.
	rootCmd = &cobra.Command{
		Use:   "pyfreeze",
		Short: "Bundle a Python application into a single executable.",
		Long: `pyfreeze reads a build manifest from a YAML settings file, makes sure the
packaging tool is installed in the configured virtual environment, and runs it
once to produce a self-contained executable in the dist directory.

The process exit code mirrors the packaging tool's exit code on failure.`,
		SilenceUsage: true,
		PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
			return logger.SetLevelString(logLevel)
		},
	}
)

// Execute runs the pyfreeze CLI and exits with the mapped status on error.
func Execute() {
	version.AttachCobraVersionCommand(rootCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(build.ExitCode(err))
	}
}

// signalContext is cancelled on SIGINT or SIGTERM so running tools are stopped.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
}

//nolint:gochecknoinits // Required by Cobra CLI framework architecture.
func init() {
	rootCmd.PersistentFlags().
		StringVarP(&configPath, "config", "c", config.DefaultConfigFilename, "path to configuration file")
	rootCmd.PersistentFlags().
		StringVar(&logLevel, "log-level", "info", "log level: debug, info, warn or error")
}
