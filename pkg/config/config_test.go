package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	cfg := DefaultConfig()
	cfg.Account.JID = "bot@example.org"
	cfg.Account.Password = "secret"
	cfg.Room.JID = "room@muc.example.org"
	return cfg
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, 20, cfg.Session.MaxHistoryLength)
	assert.Equal(t, 4096, cfg.Session.SentIDCapacity)
	assert.Equal(t, 10*time.Minute, cfg.Session.LaneIdle())
	assert.Equal(t, "mucclaw", cfg.Room.Nick)
	assert.Equal(t, ModeLLM, cfg.Responder.Mode)
	assert.Equal(t, "Hello", cfg.Responder.EchoReply)
	assert.Equal(t, DefaultModel, cfg.Responder.Model)
	assert.Equal(t, 10*time.Second, cfg.Timeouts.Query())
	assert.Equal(t, 120*time.Second, cfg.Timeouts.Generate())
	assert.True(t, cfg.Encryption.BlindTrust)
	assert.Empty(t, cfg.Auth.AllowFrom)
}

func TestLoadConfig_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "absent.json"))
	require.NoError(t, err)
	assert.Equal(t, 20, cfg.Session.MaxHistoryLength)
}

func TestLoadConfig_JSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	data := `{
		"account": {"jid": "bot@example.org", "password": "pw"},
		"room": {"jid": "room@muc.example.org", "nick": "claw"},
		"auth": {"allow_from": ["alice@example.org", 42]},
		"session": {"max_history_length": 5}
	}`
	require.NoError(t, os.WriteFile(path, []byte(data), 0o600))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "claw", cfg.Room.Nick)
	assert.Equal(t, FlexibleStringSlice{"alice@example.org", "42"}, cfg.Auth.AllowFrom)
	assert.Equal(t, 5, cfg.Session.MaxHistoryLength)
	// untouched sections keep their defaults
	assert.Equal(t, 4096, cfg.Session.SentIDCapacity)
	assert.Equal(t, "mucclaw", cfg.Account.Resource)
}

func TestLoadConfig_YAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := `
account:
  jid: bot@example.org
  password: pw
room:
  jid: room@muc.example.org
  refresh_schedule: "*/5 * * * *"
responder:
  mode: echo
`
	require.NoError(t, os.WriteFile(path, []byte(data), 0o600))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "bot@example.org", cfg.Account.JID)
	assert.Equal(t, "*/5 * * * *", cfg.Room.RefreshSchedule)
	assert.Equal(t, ModeEcho, cfg.Responder.Mode)
	assert.Equal(t, "Hello", cfg.Responder.EchoReply)
}

func TestLoadConfig_EnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"room": {"nick": "file"}}`), 0o600))

	t.Setenv("MUCCLAW_ROOM_NICK", "env")
	t.Setenv("MUCCLAW_AUTH_ALLOW_FROM", "alice@example.org,bob@example.org/phone")
	t.Setenv("MUCCLAW_TIMEOUTS_GENERATE_SECONDS", "30")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "env", cfg.Room.Nick)
	assert.Equal(t, FlexibleStringSlice{"alice@example.org", "bob@example.org/phone"}, cfg.Auth.AllowFrom)
	assert.Equal(t, 30*time.Second, cfg.Timeouts.Generate())
}

func TestLoadConfig_InvalidJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{`), 0o600))
	_, err := LoadConfig(path)
	assert.Error(t, err)
}

func TestSaveConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "config.json")
	cfg := validConfig()
	require.NoError(t, SaveConfig(path, cfg))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	var back Config
	require.NoError(t, json.Unmarshal(raw, &back))
	assert.Equal(t, cfg.Account.JID, back.Account.JID)
	assert.Equal(t, cfg.Timeouts, back.Timeouts)
}

func TestValidate(t *testing.T) {
	require.NoError(t, validConfig().Validate())

	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"missing jid", func(c *Config) { c.Account.JID = "" }, "account.jid is required"},
		{"missing password", func(c *Config) { c.Account.Password = "" }, "account.password is required"},
		{"missing room", func(c *Config) { c.Room.JID = "" }, "room.jid is required"},
		{"bad schedule", func(c *Config) { c.Room.RefreshSchedule = "every minute" }, "room.refresh_schedule"},
		{"zero history", func(c *Config) { c.Session.MaxHistoryLength = 0 }, "max_history_length"},
		{"negative lane idle", func(c *Config) { c.Session.LaneIdleSeconds = -1 }, "lane_idle_seconds"},
		{"zero timeout", func(c *Config) { c.Timeouts.EncryptSeconds = 0 }, "timeouts.encrypt_seconds"},
		{"bad mode", func(c *Config) { c.Responder.Mode = "parrot" }, "responder.mode"},
		{"bad provider", func(c *Config) { c.Responder.Provider = "gemini" }, "responder.provider"},
		{"bad encryption", func(c *Config) { c.Encryption.Provider = "otr" }, "encryption.provider"},
		{"bad backend", func(c *Config) { c.Encryption.StoreBackend = "redis" }, "encryption.store_backend"},
		{"bad level", func(c *Config) { c.Log.Level = "loud" }, "log.level"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestAccountAddressing(t *testing.T) {
	a := AccountConfig{JID: "bot@example.org", Resource: "mucclaw"}
	assert.Equal(t, "example.org:5222", a.ServerAddr())
	assert.Equal(t, "bot@example.org/mucclaw", a.FullJID())

	a.Host = "xmpp.example.org"
	assert.Equal(t, "xmpp.example.org:5222", a.ServerAddr())
	a.Host = "xmpp.example.org:5223"
	assert.Equal(t, "xmpp.example.org:5223", a.ServerAddr())

	a = AccountConfig{JID: "bot@example.org/fixed", Resource: "mucclaw"}
	assert.Equal(t, "bot@example.org/fixed", a.FullJID())
}

func TestExpandHome(t *testing.T) {
	home, err := os.UserHomeDir()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, ".mucclaw/store.json"), ExpandHome("~/.mucclaw/store.json"))
	assert.Equal(t, "/var/lib/store.json", ExpandHome("/var/lib/store.json"))
	assert.Equal(t, "", ExpandHome(""))
}
