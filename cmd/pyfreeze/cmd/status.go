package cmd

import (
	"github.com/spf13/cobra"

	"github.com/oshokin/pyfreeze/internal/service/status"
)

// statusCmd prints the last successful build.
var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the last successful build.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return status.Run(cmd.Context(), &status.Options{ConfigPath: configPath}, cmd.OutOrStdout())
	},
}

//nolint:gochecknoinits // Required by Cobra CLI framework architecture.
func init() {
	rootCmd.AddCommand(statusCmd)
}
