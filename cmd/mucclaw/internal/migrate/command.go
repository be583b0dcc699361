package migrate

import (
	"github.com/spf13/cobra"

	"github.com/tinyland-inc/mucclaw/cmd/mucclaw/internal"
	"github.com/tinyland-inc/mucclaw/pkg/migrate"
)

func NewMigrateCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Migrate configuration between formats",
		Example: `  mucclaw migrate to-dhall
  mucclaw migrate to-dhall --dry-run`,
	}

	var opts migrate.ToDhallOptions

	toDhallCmd := &cobra.Command{
		Use:   "to-dhall",
		Short: "Convert a JSON or YAML config to Dhall",
		Args:  cobra.NoArgs,
		Example: `  mucclaw migrate to-dhall
  mucclaw migrate to-dhall --dry-run
  mucclaw -c ~/.mucclaw/config.yaml migrate to-dhall
  mucclaw migrate to-dhall --output ~/.mucclaw/config.dhall --force`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			opts.ConfigPath = internal.ConfigPath(cmd)
			opts.Out = cmd.OutOrStdout()
			return toDhallCmd(opts)
		},
	}

	toDhallCmd.Flags().StringVar(&opts.OutputPath, "output", "",
		"Dhall output file path (default: same dir as input, .dhall extension)")
	toDhallCmd.Flags().BoolVar(&opts.DryRun, "dry-run", false,
		"Print generated Dhall without writing")
	toDhallCmd.Flags().BoolVar(&opts.Force, "force", false,
		"Overwrite existing output file")

	cmd.AddCommand(toDhallCmd)

	return cmd
}
