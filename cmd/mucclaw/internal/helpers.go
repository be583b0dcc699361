package internal

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/tinyland-inc/mucclaw/pkg/config"
	"github.com/tinyland-inc/mucclaw/pkg/e2ee"
	"github.com/tinyland-inc/mucclaw/pkg/e2ee/sealed"
	"github.com/tinyland-inc/mucclaw/pkg/logger"
	"github.com/tinyland-inc/mucclaw/pkg/session"
	"github.com/tinyland-inc/mucclaw/pkg/storage"
)

const Logo = "🦜"

var (
	version   = "dev"
	gitCommit string
	buildTime string
	goVersion string
)

// ConfigPath returns the --config flag, falling back to the default path.
func ConfigPath(cmd *cobra.Command) string {
	if cmd != nil {
		if p, err := cmd.Flags().GetString("config"); err == nil && p != "" {
			return config.ExpandHome(p)
		}
	}
	return config.DefaultPath()
}

// LoadConfig loads path. Without an explicit path a config.dhall next to the
// default JSON file is preferred when dhall-to-json is installed.
func LoadConfig(path string) (*config.Config, error) {
	if path == config.DefaultPath() {
		dhallPath := strings.TrimSuffix(path, filepath.Ext(path)) + ".dhall"
		if _, err := os.Stat(dhallPath); err == nil {
			cfg, err := config.LoadDhallConfig(dhallPath)
			if err == nil {
				return cfg, nil
			}
			if !errors.Is(err, config.ErrDhallNotAvailable) {
				return nil, fmt.Errorf("error loading dhall config: %w", err)
			}
		}
	}
	return config.LoadConfig(path)
}

// SetupLogging applies the configured level and log file. debug overrides
// the level.
func SetupLogging(cfg *config.Config, debug bool) error {
	level, err := logger.ParseLevel(cfg.Log.Level)
	if err != nil {
		return err
	}
	if debug {
		level = logger.DEBUG
		fmt.Println(color.YellowString("🔍 Debug mode enabled"))
	}
	logger.SetLevel(level)
	if cfg.Log.File != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.Log.File), 0o700); err != nil {
			return err
		}
		return logger.EnableFileLogging(cfg.Log.File)
	}
	return nil
}

// OpenStore opens the provider store named by the encryption section.
func OpenStore(cfg *config.Config) (storage.Store, error) {
	return storage.Open(cfg.Encryption.StoreBackend, cfg.Encryption.StorePath)
}

// OpenCrypto builds the configured end-to-end provider for self. The
// returned store is nil for the none provider.
func OpenCrypto(cfg *config.Config, self string) (e2ee.Provider, storage.Store, error) {
	switch cfg.Encryption.Provider {
	case "none":
		return e2ee.None{}, nil, nil
	case "", "sealed":
	default:
		return nil, nil, fmt.Errorf("unknown encryption provider %q", cfg.Encryption.Provider)
	}

	store, err := OpenStore(cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("open %s store: %w", cfg.Encryption.StoreBackend, err)
	}
	p, err := sealed.New(store, self, sealed.Options{BlindTrust: cfg.Encryption.BlindTrust})
	if err != nil {
		store.Close()
		return nil, nil, err
	}
	return p, store, nil
}

// Status prints one startup line.
func Status(ok bool, format string, args ...any) {
	mark := color.GreenString("✓")
	if !ok {
		mark = color.RedString("✗")
	}
	fmt.Printf("%s %s\n", mark, fmt.Sprintf(format, args...))
}

func FormatVersion() string {
	v := version
	if gitCommit != "" {
		v += fmt.Sprintf(" (git: %s)", gitCommit)
	}
	return v
}

func FormatBuildInfo() (string, string) {
	build := buildTime
	goVer := goVersion
	if goVer == "" {
		goVer = runtime.Version()
	}
	return build, goVer
}

func GetVersion() string {
	return version
}

// SessionOptions maps the config to session options for self.
func SessionOptions(cfg *config.Config, self string) session.Options {
	return session.Options{
		Self:            self,
		Room:            cfg.Room.JID,
		Nick:            cfg.Room.Nick,
		AllowFrom:       cfg.Auth.AllowFrom,
		AllowAffiliates: cfg.Auth.AllowAffiliates,
		MaxHistory:      cfg.Session.MaxHistoryLength,
		SentCapacity:    cfg.Session.SentIDCapacity,
		LaneIdle:        cfg.Session.LaneIdle(),
		Timeouts: session.Timeouts{
			Query:    cfg.Timeouts.Query(),
			Decrypt:  cfg.Timeouts.Decrypt(),
			Generate: cfg.Timeouts.Generate(),
			Encrypt:  cfg.Timeouts.Encrypt(),
			Send:     cfg.Timeouts.Send(),
		},
	}
}
