package run

import (
	"github.com/spf13/cobra"

	"github.com/tinyland-inc/mucclaw/cmd/mucclaw/internal"
)

func NewRunCommand() *cobra.Command {
	var debug bool

	cmd := &cobra.Command{
		Use:     "run",
		Aliases: []string{"r"},
		Short:   "Connect and serve the configured room",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runCmd(internal.ConfigPath(cmd), debug)
		},
	}

	cmd.Flags().BoolVarP(&debug, "debug", "d", false, "Enable debug logging")

	return cmd
}
