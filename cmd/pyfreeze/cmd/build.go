package cmd

import (
	"github.com/spf13/cobra"

	"github.com/oshokin/pyfreeze/internal/service/bundler"
)

var (
	// buildOptions collects flags of the build command.
	buildOptions bundler.Options

	// buildCmd ensures the packaging tool and builds the manifest.
	buildCmd = &cobra.Command{
		Use:   "build",
		Short: "Ensure the packaging tool and build the executable.",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			ctx, stop := signalContext()
			defer stop()

			buildOptions.ConfigPath = configPath

			return bundler.Run(ctx, &buildOptions)
		},
	}
)

//nolint:gochecknoinits // Required by Cobra CLI framework architecture.
func init() {
	buildCmd.Flags().BoolVar(&buildOptions.Clean, "clean", false, "remove previous output before building")
	buildCmd.Flags().BoolVar(&buildOptions.SkipEnsure, "skip-ensure", false, "do not check or install the packaging tool")
	buildCmd.Flags().BoolVar(&buildOptions.ForceUpgrade, "upgrade", false, "always run the installer before building")

	rootCmd.AddCommand(buildCmd)
}
