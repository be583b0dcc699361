package migrate

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/tinyland-inc/mucclaw/pkg/config"
)

func TestConfigToDhall_DefaultConfig(t *testing.T) {
	cfg := config.DefaultConfig()
	result := &ToDhallResult{}
	dhall := configToDhall(cfg, result)

	if dhall == "" {
		t.Fatal("expected non-empty dhall output")
	}

	for _, expected := range []string{
		"let emptyStrings",
		"account =",
		"room =",
		"auth = { allow_from = emptyStrings, allow_affiliates = False }",
		"session = { max_history_length = 20, sent_id_capacity = 4096 }",
		"generate_seconds = 120",
		`provider = "openai"`,
		"temperature = None Double",
		`store_backend = "json"`,
		`level = "info"`,
	} {
		if !strings.Contains(dhall, expected) {
			t.Errorf("expected dhall output to contain %q", expected)
		}
	}

	if len(result.Warnings) != 0 {
		t.Errorf("expected no warnings for defaults, got %v", result.Warnings)
	}
}

func TestConfigToDhall_CredentialRedaction(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Account.Password = "hunter2"
	cfg.Responder.APIKey = "sk-secret-key-12345"

	result := &ToDhallResult{}
	dhall := configToDhall(cfg, result)

	for _, secret := range []string{"hunter2", "sk-secret-key-12345"} {
		if strings.Contains(dhall, secret) {
			t.Errorf("expected %q to be redacted", secret)
		}
	}
	if !strings.Contains(dhall, "env:MUCCLAW_ACCOUNT_PASSWORD as Text") {
		t.Error("expected env import for account password")
	}
	if !strings.Contains(dhall, "env:MUCCLAW_RESPONDER_API_KEY as Text") {
		t.Error("expected env import for api key")
	}
	if strings.Contains(dhall, "env:MUCCLAW_ROOM_PASSWORD") {
		t.Error("empty room password should stay a literal")
	}
	if len(result.Warnings) != 2 {
		t.Errorf("expected 2 warnings, got %d: %v", len(result.Warnings), result.Warnings)
	}
}

func TestConfigToDhall_Values(t *testing.T) {
	cfg := config.DefaultConfig()
	temp := 1.0
	cfg.Responder.Temperature = &temp
	cfg.Auth.AllowFrom = config.FlexibleStringSlice{"alice@example.org", "bob@example.org/phone"}
	cfg.Responder.EchoReply = "say \"hi\" ${now}"

	dhall := configToDhall(cfg, &ToDhallResult{})

	if !strings.Contains(dhall, "temperature = Some 1.0") {
		t.Error("expected temperature rendered as a Double")
	}
	if !strings.Contains(dhall, `[ "alice@example.org", "bob@example.org/phone" ]`) {
		t.Error("expected allow_from list")
	}
	if !strings.Contains(dhall, `echo_reply = "say \"hi\" \${now}"`) {
		t.Errorf("expected escaped echo reply in:\n%s", dhall)
	}
}

func TestDhallDouble(t *testing.T) {
	tests := map[float64]string{0: "0.0", 0.7: "0.7", 2: "2.0", 1e21: "1e+21"}
	for in, want := range tests {
		if got := dhallDouble(in); got != want {
			t.Errorf("dhallDouble(%g) = %q, want %q", in, got, want)
		}
	}
}

func writeJSONConfig(t *testing.T, dir string) string {
	t.Helper()
	path := filepath.Join(dir, "config.json")
	cfg := config.DefaultConfig()
	cfg.Account.JID = "bot@example.org"
	cfg.Room.JID = "room@muc.example.org"
	if err := config.SaveConfig(path, cfg); err != nil {
		t.Fatalf("SaveConfig: %v", err)
	}
	return path
}

func TestRunToDhall_WritesFile(t *testing.T) {
	dir := t.TempDir()
	src := writeJSONConfig(t, dir)

	result, err := RunToDhall(ToDhallOptions{ConfigPath: src})
	if err != nil {
		t.Fatalf("RunToDhall: %v", err)
	}

	want := filepath.Join(dir, "config.dhall")
	if result.OutputPath != want {
		t.Errorf("OutputPath = %q, want %q", result.OutputPath, want)
	}
	data, err := os.ReadFile(want)
	if err != nil {
		t.Fatalf("reading output: %v", err)
	}
	if !strings.Contains(string(data), `jid = "room@muc.example.org"`) {
		t.Error("expected room jid in output")
	}

	if _, err := RunToDhall(ToDhallOptions{ConfigPath: src}); err == nil {
		t.Error("expected error when output exists without force")
	}
	if _, err := RunToDhall(ToDhallOptions{ConfigPath: src, Force: true}); err != nil {
		t.Errorf("expected force to overwrite: %v", err)
	}
}

func TestRunToDhall_DryRun(t *testing.T) {
	dir := t.TempDir()
	src := writeJSONConfig(t, dir)

	var out bytes.Buffer
	result, err := RunToDhall(ToDhallOptions{ConfigPath: src, DryRun: true, Out: &out})
	if err != nil {
		t.Fatalf("RunToDhall: %v", err)
	}
	if !strings.Contains(out.String(), "dry-run") {
		t.Error("expected dry-run banner")
	}
	if _, err := os.Stat(result.OutputPath); !os.IsNotExist(err) {
		t.Error("dry run must not write the output file")
	}
}

func TestRunToDhall_Errors(t *testing.T) {
	dir := t.TempDir()

	if _, err := RunToDhall(ToDhallOptions{ConfigPath: filepath.Join(dir, "missing.json")}); err == nil {
		t.Error("expected error for missing config")
	}
	if _, err := RunToDhall(ToDhallOptions{ConfigPath: filepath.Join(dir, "config.dhall")}); err == nil {
		t.Error("expected error for dhall input")
	}
}
