package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/oshokin/pyfreeze/internal/config"
)

var (
	// overwriteConfig replaces an existing settings file.
	overwriteConfig bool

	// initCmd writes the default settings file.
	initCmd = &cobra.Command{
		Use:   "init",
		Short: "Write a default settings file with an example manifest.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := config.WriteDefault(configPath, overwriteConfig); err != nil {
				return err
			}

			_, err := fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", configPath)

			return err
		},
	}
)

//nolint:gochecknoinits // Required by Cobra CLI framework architecture.
func init() {
	initCmd.Flags().BoolVarP(&overwriteConfig, "force", "f", false, "overwrite an existing settings file")

	rootCmd.AddCommand(initCmd)
}
