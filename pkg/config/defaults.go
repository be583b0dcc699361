package config

import (
	"os"
	"path/filepath"
)

const (
	DefaultModel   = "deepseek-r1:7b"
	DefaultAPIBase = "http://localhost:11434/v1"
)

// HomeDir is the per-user state directory, ~/.mucclaw.
func HomeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".mucclaw"
	}
	return filepath.Join(home, ".mucclaw")
}

// DefaultPath is where LoadConfig looks when --config is not given.
func DefaultPath() string {
	return filepath.Join(HomeDir(), "config.json")
}

func DefaultConfig() *Config {
	return &Config{
		Account: AccountConfig{
			Resource: "mucclaw",
			StartTLS: true,
		},
		Room: RoomConfig{
			Nick: "mucclaw",
		},
		Auth: AuthConfig{
			AllowFrom: FlexibleStringSlice{},
		},
		Session: SessionConfig{
			MaxHistoryLength: 20,
			SentIDCapacity:   4096,
			LaneIdleSeconds:  600,
		},
		Timeouts: TimeoutsConfig{
			QuerySeconds:    10,
			DecryptSeconds:  10,
			GenerateSeconds: 120,
			EncryptSeconds:  10,
			SendSeconds:     10,
		},
		Responder: ResponderConfig{
			Mode:           ModeLLM,
			EchoReply:      "Hello",
			Provider:       "openai",
			Model:          DefaultModel,
			APIBase:        DefaultAPIBase,
			MaxTokens:      1024,
			StripReasoning: true,
		},
		Encryption: EncryptionConfig{
			Provider:     "sealed",
			BlindTrust:   true,
			StoreBackend: "json",
			StorePath:    "~/.mucclaw/store.json",
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}
