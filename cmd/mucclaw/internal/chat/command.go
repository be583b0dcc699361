package chat

import (
	"github.com/spf13/cobra"

	"github.com/tinyland-inc/mucclaw/cmd/mucclaw/internal"
)

func NewChatCommand() *cobra.Command {
	var (
		message string
		debug   bool
	)

	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Talk to the responder from the terminal",
		Long: "Feeds lines typed on the terminal through the same classification and reply " +
			"pipeline the bot uses for direct messages, without connecting to a server.",
		Example: `mucclaw chat -m "hello"`,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return chatCmd(internal.ConfigPath(cmd), message, debug)
		},
	}

	cmd.Flags().StringVarP(&message, "message", "m", "", "Send a single message and exit")
	cmd.Flags().BoolVarP(&debug, "debug", "d", false, "Enable debug logging")

	return cmd
}
