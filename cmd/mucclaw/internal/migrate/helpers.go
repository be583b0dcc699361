package migrate

import (
	"fmt"

	"github.com/fatih/color"

	"github.com/tinyland-inc/mucclaw/cmd/mucclaw/internal"
	"github.com/tinyland-inc/mucclaw/pkg/migrate"
)

func toDhallCmd(opts migrate.ToDhallOptions) error {
	result, err := migrate.RunToDhall(opts)
	if err != nil {
		return err
	}
	if !opts.DryRun {
		fmt.Fprintf(opts.Out, "%s Dhall config written to %s\n", internal.Logo, color.CyanString(result.OutputPath))
	}
	if len(result.Warnings) > 0 {
		fmt.Fprintln(opts.Out, color.YellowString("\nWarnings:"))
		for _, w := range result.Warnings {
			fmt.Fprintf(opts.Out, "  - %s\n", w)
		}
	}
	return nil
}
