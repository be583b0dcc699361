package onboard

import (
	"github.com/spf13/cobra"

	"github.com/tinyland-inc/mucclaw/cmd/mucclaw/internal"
)

func NewInitCommand() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:     "init",
		Aliases: []string{"onboard"},
		Short:   "Write a default config file",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return initCmd(internal.ConfigPath(cmd), force, cmd.OutOrStdout())
		},
	}

	cmd.Flags().BoolVarP(&force, "force", "f", false, "Overwrite an existing config file")

	return cmd
}
