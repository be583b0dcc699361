package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/adhocore/gronx"
	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
	"mellium.im/xmpp/jid"

	"github.com/tinyland-inc/mucclaw/pkg/logger"
)

// ErrDhallNotAvailable is returned when dhall-to-json is not installed.
var ErrDhallNotAvailable = errors.New("dhall-to-json not available")

// FlexibleStringSlice is a []string that also accepts JSON numbers,
// so allow_from can contain both "123" and 123.
type FlexibleStringSlice []string

func (f *FlexibleStringSlice) UnmarshalJSON(data []byte) error {
	// Try []string first
	var ss []string
	if err := json.Unmarshal(data, &ss); err == nil {
		*f = ss
		return nil
	}

	var raw []any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	result := make([]string, 0, len(raw))
	for _, v := range raw {
		switch val := v.(type) {
		case string:
			result = append(result, val)
		case float64:
			result = append(result, fmt.Sprintf("%.0f", val))
		default:
			result = append(result, fmt.Sprintf("%v", val))
		}
	}
	*f = result
	return nil
}

type Config struct {
	Account    AccountConfig    `json:"account"    yaml:"account"`
	Room       RoomConfig       `json:"room"       yaml:"room"`
	Auth       AuthConfig       `json:"auth"       yaml:"auth"`
	Session    SessionConfig    `json:"session"    yaml:"session"`
	Timeouts   TimeoutsConfig   `json:"timeouts"   yaml:"timeouts"`
	Responder  ResponderConfig  `json:"responder"  yaml:"responder"`
	Encryption EncryptionConfig `json:"encryption" yaml:"encryption"`
	Log        LogConfig        `json:"log"        yaml:"log"`
}

type AccountConfig struct {
	JID                string `env:"MUCCLAW_ACCOUNT_JID"                  json:"jid"                  yaml:"jid"`
	Password           string `env:"MUCCLAW_ACCOUNT_PASSWORD"             json:"password"             yaml:"password"`
	Resource           string `env:"MUCCLAW_ACCOUNT_RESOURCE"             json:"resource"             yaml:"resource"`
	Host               string `env:"MUCCLAW_ACCOUNT_HOST"                 json:"host,omitempty"       yaml:"host,omitempty"`
	NoTLS              bool   `env:"MUCCLAW_ACCOUNT_NO_TLS"               json:"no_tls"               yaml:"no_tls"`
	StartTLS           bool   `env:"MUCCLAW_ACCOUNT_START_TLS"            json:"start_tls"            yaml:"start_tls"`
	InsecureSkipVerify bool   `env:"MUCCLAW_ACCOUNT_INSECURE_SKIP_VERIFY" json:"insecure_skip_verify" yaml:"insecure_skip_verify"`
}

// ServerAddr returns host:port to dial. Without an explicit host the domain
// of the account JID is used on the client port.
func (a AccountConfig) ServerAddr() string {
	if a.Host != "" {
		if _, _, err := net.SplitHostPort(a.Host); err == nil {
			return a.Host
		}
		return net.JoinHostPort(a.Host, "5222")
	}
	if j, err := jid.Parse(a.JID); err == nil {
		return net.JoinHostPort(j.Domainpart(), "5222")
	}
	return ""
}

// FullJID is the account JID with the configured resource.
func (a AccountConfig) FullJID() string {
	j, err := jid.Parse(a.JID)
	if err != nil {
		return a.JID
	}
	if a.Resource == "" || j.Resourcepart() != "" {
		return j.String()
	}
	full, err := jid.New(j.Localpart(), j.Domainpart(), a.Resource)
	if err != nil {
		return j.String()
	}
	return full.String()
}

type RoomConfig struct {
	JID      string `env:"MUCCLAW_ROOM_JID"      json:"jid"      yaml:"jid"`
	Nick     string `env:"MUCCLAW_ROOM_NICK"     json:"nick"     yaml:"nick"`
	Password string `env:"MUCCLAW_ROOM_PASSWORD" json:"password" yaml:"password"`
	// RefreshSchedule is a cron expression. Empty keeps the roster resolved
	// at session start for the whole session.
	RefreshSchedule string `env:"MUCCLAW_ROOM_REFRESH_SCHEDULE" json:"refresh_schedule,omitempty" yaml:"refresh_schedule,omitempty"`
}

type AuthConfig struct {
	AllowFrom       FlexibleStringSlice `env:"MUCCLAW_AUTH_ALLOW_FROM"       json:"allow_from"       yaml:"allow_from"`
	AllowAffiliates bool                `env:"MUCCLAW_AUTH_ALLOW_AFFILIATES" json:"allow_affiliates" yaml:"allow_affiliates"`
}

type SessionConfig struct {
	MaxHistoryLength int `env:"MUCCLAW_SESSION_MAX_HISTORY_LENGTH" json:"max_history_length" yaml:"max_history_length"`
	SentIDCapacity   int `env:"MUCCLAW_SESSION_SENT_ID_CAPACITY"   json:"sent_id_capacity"   yaml:"sent_id_capacity"`
	// LaneIdleSeconds stops a conversation's worker after that long without
	// work. Zero keeps the built-in timeout.
	LaneIdleSeconds int `env:"MUCCLAW_SESSION_LANE_IDLE_SECONDS" json:"lane_idle_seconds,omitempty" yaml:"lane_idle_seconds,omitempty"`
}

func (s SessionConfig) LaneIdle() time.Duration { return seconds(s.LaneIdleSeconds) }

type TimeoutsConfig struct {
	QuerySeconds    int `env:"MUCCLAW_TIMEOUTS_QUERY_SECONDS"    json:"query_seconds"    yaml:"query_seconds"`
	DecryptSeconds  int `env:"MUCCLAW_TIMEOUTS_DECRYPT_SECONDS"  json:"decrypt_seconds"  yaml:"decrypt_seconds"`
	GenerateSeconds int `env:"MUCCLAW_TIMEOUTS_GENERATE_SECONDS" json:"generate_seconds" yaml:"generate_seconds"`
	EncryptSeconds  int `env:"MUCCLAW_TIMEOUTS_ENCRYPT_SECONDS"  json:"encrypt_seconds"  yaml:"encrypt_seconds"`
	SendSeconds     int `env:"MUCCLAW_TIMEOUTS_SEND_SECONDS"     json:"send_seconds"     yaml:"send_seconds"`
}

func seconds(n int) time.Duration { return time.Duration(n) * time.Second }

func (t TimeoutsConfig) Query() time.Duration    { return seconds(t.QuerySeconds) }
func (t TimeoutsConfig) Decrypt() time.Duration  { return seconds(t.DecryptSeconds) }
func (t TimeoutsConfig) Generate() time.Duration { return seconds(t.GenerateSeconds) }
func (t TimeoutsConfig) Encrypt() time.Duration  { return seconds(t.EncryptSeconds) }
func (t TimeoutsConfig) Send() time.Duration     { return seconds(t.SendSeconds) }

const (
	ModeLLM  = "llm"
	ModeEcho = "echo"
)

type ResponderConfig struct {
	Mode           string   `env:"MUCCLAW_RESPONDER_MODE"            json:"mode"                  yaml:"mode"`
	EchoReply      string   `env:"MUCCLAW_RESPONDER_ECHO_REPLY"      json:"echo_reply"            yaml:"echo_reply"`
	Provider       string   `env:"MUCCLAW_RESPONDER_PROVIDER"        json:"provider"              yaml:"provider"`
	Model          string   `env:"MUCCLAW_RESPONDER_MODEL"           json:"model"                 yaml:"model"`
	APIBase        string   `env:"MUCCLAW_RESPONDER_API_BASE"        json:"api_base"              yaml:"api_base"`
	APIKey         string   `env:"MUCCLAW_RESPONDER_API_KEY"         json:"api_key,omitempty"     yaml:"api_key,omitempty"`
	MaxTokens      int      `env:"MUCCLAW_RESPONDER_MAX_TOKENS"      json:"max_tokens"            yaml:"max_tokens"`
	Temperature    *float64 `env:"MUCCLAW_RESPONDER_TEMPERATURE"     json:"temperature,omitempty" yaml:"temperature,omitempty"`
	StripReasoning bool     `env:"MUCCLAW_RESPONDER_STRIP_REASONING" json:"strip_reasoning"       yaml:"strip_reasoning"`
}

type EncryptionConfig struct {
	Provider     string `env:"MUCCLAW_ENCRYPTION_PROVIDER"      json:"provider"      yaml:"provider"`
	BlindTrust   bool   `env:"MUCCLAW_ENCRYPTION_BLIND_TRUST"   json:"blind_trust"   yaml:"blind_trust"`
	StoreBackend string `env:"MUCCLAW_ENCRYPTION_STORE_BACKEND" json:"store_backend" yaml:"store_backend"`
	StorePath    string `env:"MUCCLAW_ENCRYPTION_STORE_PATH"    json:"store_path"    yaml:"store_path"`
}

type LogConfig struct {
	Level string `env:"MUCCLAW_LOG_LEVEL" json:"level"          yaml:"level"`
	File  string `env:"MUCCLAW_LOG_FILE"  json:"file,omitempty" yaml:"file,omitempty"`
}

// LoadDhallConfig loads configuration from a .dhall file by invoking dhall-to-json
// and parsing the resulting JSON.
func LoadDhallConfig(path string) (*Config, error) {
	dhallBin, err := exec.LookPath("dhall-to-json")
	if errors.Is(err, exec.ErrNotFound) {
		return nil, ErrDhallNotAvailable
	}
	if err != nil {
		return nil, fmt.Errorf("dhall-to-json lookup: %w", err)
	}

	cmd := exec.Command(dhallBin, "--file", path)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("dhall-to-json failed for %s: %w\n%s", path, err, stderr.String())
	}

	cfg := DefaultConfig()
	if err := json.Unmarshal(out, cfg); err != nil {
		return nil, fmt.Errorf("error parsing dhall-to-json output: %w", err)
	}
	return finish(cfg)
}

// LoadConfig reads path on top of DefaultConfig and applies MUCCLAW_*
// environment variables. A missing file yields the defaults. The format
// follows the extension: .yaml/.yml, .dhall, anything else is JSON.
func LoadConfig(path string) (*Config, error) {
	loadDotEnv()

	switch strings.ToLower(filepath.Ext(path)) {
	case ".dhall":
		return LoadDhallConfig(path)
	}

	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return finish(cfg)
		}
		return nil, err
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("error parsing %s: %w", path, err)
		}
	default:
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("error parsing %s: %w", path, err)
		}
	}

	return finish(cfg)
}

func finish(cfg *Config) (*Config, error) {
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}
	cfg.Encryption.StorePath = ExpandHome(cfg.Encryption.StorePath)
	cfg.Log.File = ExpandHome(cfg.Log.File)
	return cfg, nil
}

// loadDotEnv reads .env.local and then .env from the working directory.
// Neither overrides variables that are already set, so .env.local wins.
func loadDotEnv() {
	for _, name := range []string{".env.local", ".env"} {
		if _, err := os.Stat(name); err != nil {
			continue
		}
		if err := godotenv.Load(name); err != nil {
			logger.WarnCF("config", "Failed to load env file", map[string]any{
				"file":  name,
				"error": err.Error(),
			})
		}
	}
}

func SaveConfig(path string, cfg *Config) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	return os.WriteFile(path, data, 0o600)
}

// Validate reports every problem that prevents the bot from starting.
func (c *Config) Validate() error {
	var errs []error
	if c.Account.JID == "" {
		errs = append(errs, errors.New("account.jid is required"))
	} else if _, err := jid.Parse(c.Account.JID); err != nil {
		errs = append(errs, fmt.Errorf("account.jid: %w", err))
	}
	if c.Account.Password == "" {
		errs = append(errs, errors.New("account.password is required"))
	}
	if c.Room.JID == "" {
		errs = append(errs, errors.New("room.jid is required"))
	} else if _, err := jid.Parse(c.Room.JID); err != nil {
		errs = append(errs, fmt.Errorf("room.jid: %w", err))
	}
	if c.Room.Nick == "" {
		errs = append(errs, errors.New("room.nick is required"))
	}
	if c.Room.RefreshSchedule != "" && !gronx.New().IsValid(c.Room.RefreshSchedule) {
		errs = append(errs, fmt.Errorf("room.refresh_schedule: invalid cron expression %q", c.Room.RefreshSchedule))
	}
	if c.Session.MaxHistoryLength <= 0 {
		errs = append(errs, errors.New("session.max_history_length must be positive"))
	}
	if c.Session.SentIDCapacity <= 0 {
		errs = append(errs, errors.New("session.sent_id_capacity must be positive"))
	}
	if c.Session.LaneIdleSeconds < 0 {
		errs = append(errs, errors.New("session.lane_idle_seconds must not be negative"))
	}
	for _, tm := range []struct {
		name string
		v    int
	}{
		{"query_seconds", c.Timeouts.QuerySeconds},
		{"decrypt_seconds", c.Timeouts.DecryptSeconds},
		{"generate_seconds", c.Timeouts.GenerateSeconds},
		{"encrypt_seconds", c.Timeouts.EncryptSeconds},
		{"send_seconds", c.Timeouts.SendSeconds},
	} {
		if tm.v <= 0 {
			errs = append(errs, fmt.Errorf("timeouts.%s must be positive", tm.name))
		}
	}
	switch c.Responder.Mode {
	case ModeLLM:
		switch c.Responder.Provider {
		case "openai", "ollama", "anthropic":
		default:
			errs = append(errs, fmt.Errorf("responder.provider: unknown provider %q", c.Responder.Provider))
		}
		if c.Responder.Model == "" {
			errs = append(errs, errors.New("responder.model is required in llm mode"))
		}
	case ModeEcho:
		if c.Responder.EchoReply == "" {
			errs = append(errs, errors.New("responder.echo_reply is required in echo mode"))
		}
	default:
		errs = append(errs, fmt.Errorf("responder.mode: unknown mode %q", c.Responder.Mode))
	}
	switch c.Encryption.Provider {
	case "sealed", "none":
	default:
		errs = append(errs, fmt.Errorf("encryption.provider: unknown provider %q", c.Encryption.Provider))
	}
	switch c.Encryption.StoreBackend {
	case "json", "sqlite", "memory":
	default:
		errs = append(errs, fmt.Errorf("encryption.store_backend: unknown backend %q", c.Encryption.StoreBackend))
	}
	if _, err := logger.ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, fmt.Errorf("log.level: %w", err))
	}
	return errors.Join(errs...)
}

func ExpandHome(path string) string {
	if path == "" {
		return path
	}
	if path[0] == '~' {
		home, _ := os.UserHomeDir()
		if len(path) > 1 && path[1] == '/' {
			return home + path[1:]
		}
		return home
	}
	return path
}
