package onboard

import (
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"

	"github.com/tinyland-inc/mucclaw/cmd/mucclaw/internal"
	"github.com/tinyland-inc/mucclaw/pkg/config"
)

func initCmd(path string, force bool, out io.Writer) error {
	if _, err := os.Stat(path); err == nil && !force {
		return fmt.Errorf("%s already exists; use --force to overwrite", path)
	}

	cfg := config.DefaultConfig()
	if err := config.SaveConfig(path, cfg); err != nil {
		return fmt.Errorf("error writing config: %w", err)
	}

	fmt.Fprintf(out, "%s Config written to %s\n\n", internal.Logo, color.CyanString(path))
	fmt.Fprintln(out, "Next steps:")
	fmt.Fprintln(out, "  1. Set account.jid, account.password and room.jid")
	fmt.Fprintln(out, "     (or MUCCLAW_ACCOUNT_JID, MUCCLAW_ACCOUNT_PASSWORD, MUCCLAW_ROOM_JID)")
	fmt.Fprintln(out, "  2. Allow senders with auth.allow_from or auth.allow_affiliates")
	fmt.Fprintln(out, "  3. Try the responder locally:", color.GreenString("mucclaw chat"))
	fmt.Fprintln(out, "  4. Start the bot:", color.GreenString("mucclaw run"))
	return nil
}
