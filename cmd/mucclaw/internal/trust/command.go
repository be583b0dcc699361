package trust

import (
	"github.com/spf13/cobra"

	"github.com/tinyland-inc/mucclaw/cmd/mucclaw/internal"
)

func NewTrustCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "trust",
		Short: "Inspect and decide device trust of the sealed provider",
		Example: `mucclaw trust fingerprint
mucclaw trust list alice@example.org
mucclaw trust set alice@example.org 3f2a91c0 trusted`,
	}

	cmd.AddCommand(
		newFingerprintCommand(),
		newListCommand(),
		newSetCommand(),
	)

	return cmd
}

func newFingerprintCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "fingerprint",
		Short: "Show the bot's own device fingerprint",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withProvider(internal.ConfigPath(cmd), func(e env) error {
				return fingerprintCmd(e, cmd.OutOrStdout())
			})
		},
	}
}

func newListCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "list [jid]",
		Short: "List known devices, of one contact or of all",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			jid := ""
			if len(args) == 1 {
				jid = args[0]
			}
			return withProvider(internal.ConfigPath(cmd), func(e env) error {
				return listCmd(e, jid, cmd.OutOrStdout())
			})
		},
	}
}

func newSetCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "set <jid> <fingerprint> <trusted|distrusted|blind|undecided>",
		Short: "Set the trust level of a device, matched by fingerprint prefix",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withProvider(internal.ConfigPath(cmd), func(e env) error {
				return setCmd(e, args[0], args[1], args[2], cmd.OutOrStdout())
			})
		},
	}
}
