package migrate

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/tinyland-inc/mucclaw/pkg/config"
)

// ToDhallOptions controls JSON/YAML-to-Dhall config migration.
type ToDhallOptions struct {
	ConfigPath string // source config (default: ~/.mucclaw/config.json)
	OutputPath string // Dhall output (default: source path with a .dhall extension)
	DryRun     bool
	Force      bool
	Out        io.Writer // dry-run destination, stdout when nil
}

// ToDhallResult summarizes the conversion.
type ToDhallResult struct {
	OutputPath string
	Warnings   []string
}

// RunToDhall converts a JSON or YAML config file to Dhall.
func RunToDhall(opts ToDhallOptions) (*ToDhallResult, error) {
	configPath := opts.ConfigPath
	if configPath == "" {
		configPath = config.DefaultPath()
	}
	if strings.EqualFold(filepath.Ext(configPath), ".dhall") {
		return nil, fmt.Errorf("%s is already a Dhall file", configPath)
	}

	outputPath := opts.OutputPath
	if outputPath == "" {
		outputPath = strings.TrimSuffix(configPath, filepath.Ext(configPath)) + ".dhall"
	}

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("config file not found: %s", configPath)
	}

	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	result := &ToDhallResult{OutputPath: outputPath}
	dhall := configToDhall(cfg, result)

	if opts.DryRun {
		out := opts.Out
		if out == nil {
			out = os.Stdout
		}
		fmt.Fprintln(out, "-- Generated Dhall config (dry-run)")
		fmt.Fprint(out, dhall)
		return result, nil
	}

	if !opts.Force {
		if _, err := os.Stat(outputPath); err == nil {
			return nil, fmt.Errorf("output file already exists: %s (use --force to overwrite)", outputPath)
		}
	}

	if err := os.MkdirAll(filepath.Dir(outputPath), 0o755); err != nil {
		return nil, err
	}
	if err := os.WriteFile(outputPath, []byte(dhall), 0o600); err != nil {
		return nil, err
	}

	return result, nil
}

// configToDhall renders cfg as a Dhall record. Credentials are replaced by
// environment imports and reported in result.Warnings.
func configToDhall(cfg *config.Config, result *ToDhallResult) string {
	var b strings.Builder

	b.WriteString("-- MucClaw configuration (generated)\n")
	b.WriteString("-- Credentials are read from the environment at load time.\n\n")
	b.WriteString("let emptyStrings = [] : List Text\n\n")
	b.WriteString("in  ")

	secret := func(field, envVar, value string) string {
		if value == "" {
			return dhallText("")
		}
		result.Warnings = append(result.Warnings,
			fmt.Sprintf("%s: credential value redacted, set %s", field, envVar))
		return "env:" + envVar + " as Text ? " + dhallText("")
	}

	a := cfg.Account
	b.WriteString("{ account =\n")
	b.WriteString("    { jid = " + dhallText(a.JID) + "\n")
	b.WriteString("    , password = " + secret("account.password", "MUCCLAW_ACCOUNT_PASSWORD", a.Password) + "\n")
	b.WriteString("    , resource = " + dhallText(a.Resource) + "\n")
	b.WriteString("    , host = " + dhallText(a.Host) + "\n")
	b.WriteString("    , no_tls = " + dhallBool(a.NoTLS) + "\n")
	b.WriteString("    , start_tls = " + dhallBool(a.StartTLS) + "\n")
	b.WriteString("    , insecure_skip_verify = " + dhallBool(a.InsecureSkipVerify) + "\n")
	b.WriteString("    }\n")

	r := cfg.Room
	b.WriteString(", room =\n")
	b.WriteString("    { jid = " + dhallText(r.JID) + "\n")
	b.WriteString("    , nick = " + dhallText(r.Nick) + "\n")
	b.WriteString("    , password = " + secret("room.password", "MUCCLAW_ROOM_PASSWORD", r.Password) + "\n")
	b.WriteString("    , refresh_schedule = " + dhallText(r.RefreshSchedule) + "\n")
	b.WriteString("    }\n")

	b.WriteString(fmt.Sprintf(", auth = { allow_from = %s, allow_affiliates = %s }\n",
		dhallTextList(cfg.Auth.AllowFrom), dhallBool(cfg.Auth.AllowAffiliates)))

	b.WriteString(fmt.Sprintf(", session = { max_history_length = %d, sent_id_capacity = %d }\n",
		cfg.Session.MaxHistoryLength, cfg.Session.SentIDCapacity))

	t := cfg.Timeouts
	b.WriteString(", timeouts =\n")
	b.WriteString(fmt.Sprintf("    { query_seconds = %d\n", t.QuerySeconds))
	b.WriteString(fmt.Sprintf("    , decrypt_seconds = %d\n", t.DecryptSeconds))
	b.WriteString(fmt.Sprintf("    , generate_seconds = %d\n", t.GenerateSeconds))
	b.WriteString(fmt.Sprintf("    , encrypt_seconds = %d\n", t.EncryptSeconds))
	b.WriteString(fmt.Sprintf("    , send_seconds = %d\n", t.SendSeconds))
	b.WriteString("    }\n")

	p := cfg.Responder
	b.WriteString(", responder =\n")
	b.WriteString("    { mode = " + dhallText(p.Mode) + "\n")
	b.WriteString("    , echo_reply = " + dhallText(p.EchoReply) + "\n")
	b.WriteString("    , provider = " + dhallText(p.Provider) + "\n")
	b.WriteString("    , model = " + dhallText(p.Model) + "\n")
	b.WriteString("    , api_base = " + dhallText(p.APIBase) + "\n")
	b.WriteString("    , api_key = " + secret("responder.api_key", "MUCCLAW_RESPONDER_API_KEY", p.APIKey) + "\n")
	b.WriteString(fmt.Sprintf("    , max_tokens = %d\n", p.MaxTokens))
	if p.Temperature != nil {
		b.WriteString("    , temperature = Some " + dhallDouble(*p.Temperature) + "\n")
	} else {
		b.WriteString("    , temperature = None Double\n")
	}
	b.WriteString("    , strip_reasoning = " + dhallBool(p.StripReasoning) + "\n")
	b.WriteString("    }\n")

	e := cfg.Encryption
	b.WriteString(", encryption =\n")
	b.WriteString("    { provider = " + dhallText(e.Provider) + "\n")
	b.WriteString("    , blind_trust = " + dhallBool(e.BlindTrust) + "\n")
	b.WriteString("    , store_backend = " + dhallText(e.StoreBackend) + "\n")
	b.WriteString("    , store_path = " + dhallText(e.StorePath) + "\n")
	b.WriteString("    }\n")

	b.WriteString(fmt.Sprintf(", log = { level = %s, file = %s }\n",
		dhallText(cfg.Log.Level), dhallText(cfg.Log.File)))
	b.WriteString("}\n")

	return b.String()
}

// Dhall literal helpers

var dhallEscaper = strings.NewReplacer(
	`\`, `\\`,
	`"`, `\"`,
	"${", `\${`,
	"\n", `\n`,
	"\r", `\r`,
	"\t", `\t`,
)

func dhallText(s string) string {
	return `"` + dhallEscaper.Replace(s) + `"`
}

func dhallBool(b bool) string {
	if b {
		return "True"
	}
	return "False"
}

// dhallDouble always carries a decimal point; 1 alone would be a Natural.
func dhallDouble(f float64) string {
	s := fmt.Sprintf("%g", f)
	if !strings.ContainsAny(s, ".eE") {
		s += ".0"
	}
	return s
}

func dhallTextList(ss []string) string {
	if len(ss) == 0 {
		return "emptyStrings"
	}
	parts := make([]string, len(ss))
	for i, s := range ss {
		parts[i] = dhallText(s)
	}
	return "[ " + strings.Join(parts, ", ") + " ]"
}
