package run

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"slices"
	"strings"
	"syscall"

	"github.com/tinyland-inc/mucclaw/cmd/mucclaw/internal"
	"github.com/tinyland-inc/mucclaw/pkg/affiliation"
	"github.com/tinyland-inc/mucclaw/pkg/bot"
	"github.com/tinyland-inc/mucclaw/pkg/e2ee"
	"github.com/tinyland-inc/mucclaw/pkg/e2ee/sealed"
	"github.com/tinyland-inc/mucclaw/pkg/logger"
	"github.com/tinyland-inc/mucclaw/pkg/providers"
	"github.com/tinyland-inc/mucclaw/pkg/session"
	"github.com/tinyland-inc/mucclaw/pkg/xmpp"
)

func runCmd(configPath string, debug bool) error {
	cfg, err := internal.LoadConfig(configPath)
	if err != nil {
		return fmt.Errorf("error loading config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config %s: %w", configPath, err)
	}
	if err := internal.SetupLogging(cfg, debug); err != nil {
		return fmt.Errorf("error setting up logging: %w", err)
	}
	defer logger.DisableFileLogging()

	transport := xmpp.NewClient(cfg.Account)
	self := transport.JID()

	crypto, store, err := internal.OpenCrypto(cfg, self)
	if err != nil {
		return fmt.Errorf("error opening encryption: %w", err)
	}
	if store != nil {
		defer store.Close()
	}

	gen, err := providers.CreateGenerator(cfg.Responder)
	if err != nil {
		return fmt.Errorf("error creating generator: %w", err)
	}

	tracker := affiliation.NewTracker(
		affiliation.NewResolver(transport, self, cfg.Timeouts.Query()),
		cfg.Room.JID,
	)
	sess := session.New(internal.SessionOptions(cfg, self), tracker)

	ctrl := bot.New(bot.Options{
		Transport:       transport,
		Session:         sess,
		Crypto:          crypto,
		Generator:       gen,
		RoomPassword:    cfg.Room.Password,
		RefreshSchedule: cfg.Room.RefreshSchedule,
	})

	fmt.Printf("%s mucclaw %s\n", internal.Logo, internal.FormatVersion())
	internal.Status(true, "Account: %s", self)
	internal.Status(true, "Room: %s as %s", cfg.Room.JID, cfg.Room.Nick)
	internal.Status(true, "Responder: %s", describeResponder(gen))
	internal.Status(cfg.Encryption.Provider != "none", "Encryption: %s", describeCrypto(crypto))
	if len(cfg.Auth.AllowFrom) == 0 && !cfg.Auth.AllowAffiliates {
		internal.Status(false, "Nobody is allowed to talk to the bot; set auth.allow_from or auth.allow_affiliates")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.InfoCF("bot", "Starting", map[string]any{
		"jid":  self,
		"room": cfg.Room.JID,
	})
	if err := ctrl.Run(ctx); err != nil {
		return err
	}
	fmt.Println("Goodbye!")
	return nil
}

func describeResponder(gen providers.Generator) string {
	if t, ok := gen.(providers.Trimmed); ok {
		return t.Inner.Name()
	}
	return gen.Name()
}

func describeCrypto(p e2ee.Provider) string {
	if _, ok := p.(e2ee.None); ok {
		return "disabled, encrypted messages are not answered"
	}
	// The sealed provider also lists the mechanisms it only recognises.
	if sp, ok := p.(*sealed.Provider); ok {
		return fmt.Sprintf("%s, device %s", sealed.Name, sealed.FormatFingerprint(sp.Fingerprint()))
	}
	mechs := p.Mechanisms()
	names := make([]string, 0, len(mechs))
	for _, name := range mechs {
		names = append(names, name)
	}
	slices.Sort(names)
	return strings.Join(slices.Compact(names), ", ")
}
