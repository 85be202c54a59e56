package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/oshokin/installer-updater/internal/config"
)

// newInitConfigCommand writes a settings file with the built-in defaults.
func newInitConfigCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "init-config [path]",
		Short: "Write a settings file with default values",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := config.DefaultConfigFilename
			if len(args) == 1 {
				path = args[0]
			}

			if err := config.Save(path, config.Default()); err != nil {
				return err
			}

			_, _ = fmt.Fprintln(cmd.OutOrStdout(), "Settings written to", path)

			return nil
		},
	}
}
