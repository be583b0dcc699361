package trust

import (
	"errors"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"

	"github.com/tinyland-inc/mucclaw/cmd/mucclaw/internal"
	"github.com/tinyland-inc/mucclaw/pkg/config"
	"github.com/tinyland-inc/mucclaw/pkg/e2ee/sealed"
	"github.com/tinyland-inc/mucclaw/pkg/stanza"
)

type env struct {
	provider *sealed.Provider
	trust    *sealed.TrustStore
}

func withProvider(configPath string, fn func(env) error) error {
	cfg, err := internal.LoadConfig(configPath)
	if err != nil {
		return fmt.Errorf("error loading config: %w", err)
	}
	return withConfig(cfg, fn)
}

func withConfig(cfg *config.Config, fn func(env) error) error {
	if cfg.Encryption.Provider == "none" {
		return errors.New("encryption.provider is none; device trust only exists for the sealed provider")
	}
	store, err := internal.OpenStore(cfg)
	if err != nil {
		return fmt.Errorf("open %s store: %w", cfg.Encryption.StoreBackend, err)
	}
	defer store.Close()

	p, err := sealed.New(store, cfg.Account.JID, sealed.Options{BlindTrust: cfg.Encryption.BlindTrust})
	if err != nil {
		return err
	}
	return fn(env{provider: p, trust: p.Trust()})
}

func fingerprintCmd(e env, out io.Writer) error {
	fmt.Fprintf(out, "%s\n", sealed.FormatFingerprint(e.provider.Fingerprint()))
	return nil
}

func listCmd(e env, jid string, out io.Writer) error {
	contacts := []string{stanza.Bare(jid)}
	if jid == "" {
		var err error
		if contacts, err = e.trust.Contacts(); err != nil {
			return err
		}
	}
	if len(contacts) == 0 {
		fmt.Fprintln(out, "No devices known yet.")
		return nil
	}

	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "JID\tFINGERPRINT\tTRUST\tFIRST SEEN")
	for _, c := range contacts {
		devices, err := e.trust.Devices(c)
		if err != nil {
			return err
		}
		for _, d := range devices {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n",
				c,
				sealed.FormatFingerprint(d.Fingerprint),
				trustLabel(d.Trust),
				d.FirstSeen.Local().Format(time.DateTime),
			)
		}
	}
	return tw.Flush()
}

func setCmd(e env, jid, fingerprint, level string, out io.Writer) error {
	l, err := sealed.ParseTrustLevel(level)
	if err != nil {
		return err
	}
	d, err := e.trust.SetTrust(stanza.Bare(jid), fingerprint, l)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "%s %s is now %s\n", stanza.Bare(jid), sealed.FormatFingerprint(d.Fingerprint), trustLabel(d.Trust))
	return nil
}

func trustLabel(l sealed.TrustLevel) string {
	switch l {
	case sealed.Trusted:
		return color.GreenString(string(l))
	case sealed.BlindlyTrusted:
		return color.CyanString(string(l))
	case sealed.Distrusted:
		return color.RedString(string(l))
	}
	return color.YellowString(string(l))
}
