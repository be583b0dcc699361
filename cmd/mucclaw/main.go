// MucClaw - XMPP group chat bot with end-to-end encrypted replies
// License: MIT
//
// Copyright (c) 2026 MucClaw contributors

package main

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/tinyland-inc/mucclaw/cmd/mucclaw/internal"
	"github.com/tinyland-inc/mucclaw/cmd/mucclaw/internal/chat"
	"github.com/tinyland-inc/mucclaw/cmd/mucclaw/internal/migrate"
	"github.com/tinyland-inc/mucclaw/cmd/mucclaw/internal/onboard"
	"github.com/tinyland-inc/mucclaw/cmd/mucclaw/internal/run"
	"github.com/tinyland-inc/mucclaw/cmd/mucclaw/internal/trust"
	"github.com/tinyland-inc/mucclaw/cmd/mucclaw/internal/version"
)

func NewMucclawCommand() *cobra.Command {
	short := fmt.Sprintf("%s mucclaw - XMPP room assistant v%s\n\n", internal.Logo, internal.GetVersion())

	cmd := &cobra.Command{
		Use:     "mucclaw",
		Short:   short,
		Long:    color.CyanString(internal.Logo+" mucclaw") + "\nAnswers a multi-user chat room and its members, encrypted when they are.",
		Example: "mucclaw run --config ~/.mucclaw/config.json",
	}

	cmd.PersistentFlags().StringP("config", "c", "", "Path to the config file (default ~/.mucclaw/config.json)")

	cmd.AddCommand(
		onboard.NewInitCommand(),
		run.NewRunCommand(),
		chat.NewChatCommand(),
		trust.NewTrustCommand(),
		migrate.NewMigrateCommand(),
		version.NewVersionCommand(),
	)

	return cmd
}

func main() {
	cmd := NewMucclawCommand()
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
