package cmd

import (
	"github.com/spf13/cobra"

	"github.com/oshokin/pyfreeze/internal/service/toolchain"
)

var (
	// forceInstall runs the installer even when the constraint is satisfied.
	forceInstall bool

	// ensureCmd installs or upgrades the packaging tool.
	ensureCmd = &cobra.Command{
		Use:   "ensure-tool",
		Short: "Install or upgrade the packaging tool to satisfy the version constraint.",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			ctx, stop := signalContext()
			defer stop()

			return toolchain.Run(ctx, &toolchain.Options{
				ConfigPath: configPath,
				Force:      forceInstall,
			})
		},
	}
)

//nolint:gochecknoinits // Required by Cobra CLI framework architecture.
func init() {
	ensureCmd.Flags().BoolVarP(&forceInstall, "force", "f", false, "run the installer even if the constraint is satisfied")

	rootCmd.AddCommand(ensureCmd)
}
