// Package providers produces the bot's replies. A Generator turns the prompt
// built from a conversation history into a reply text.
package providers

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/tinyland-inc/mucclaw/pkg/config"
	anthropicprovider "github.com/tinyland-inc/mucclaw/pkg/providers/anthropic"
	openaiprovider "github.com/tinyland-inc/mucclaw/pkg/providers/openai"
)

// ErrEmptyReply is returned when a backend answered with nothing to send.
var ErrEmptyReply = errors.New("generator returned an empty reply")

type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
	Name() string
}

// Echo answers every prompt with the same text.
type Echo struct {
	Reply string
}

func (e Echo) Generate(context.Context, string) (string, error) {
	if e.Reply == "" {
		return "", ErrEmptyReply
	}
	return e.Reply, nil
}

func (Echo) Name() string { return "echo" }

// Trimmed wraps a generator, removes reasoning blocks and surrounding
// whitespace from its replies and turns an empty result into ErrEmptyReply.
type Trimmed struct {
	Inner     Generator
	Reasoning bool
}

func (t Trimmed) Generate(ctx context.Context, prompt string) (string, error) {
	reply, err := t.Inner.Generate(ctx, prompt)
	if err != nil {
		return "", err
	}
	if t.Reasoning {
		reply = StripReasoning(reply)
	}
	reply = strings.TrimSpace(reply)
	if reply == "" {
		return "", ErrEmptyReply
	}
	return reply, nil
}

func (t Trimmed) Name() string { return t.Inner.Name() }

// CreateGenerator builds the generator selected by cfg.
func CreateGenerator(cfg config.ResponderConfig) (Generator, error) {
	if cfg.Mode == config.ModeEcho {
		return Echo{Reply: cfg.EchoReply}, nil
	}

	var gen Generator
	switch strings.ToLower(cfg.Provider) {
	case "", "openai", "ollama":
		gen = openaiprovider.NewProvider(openaiprovider.Options{
			APIKey:      cfg.APIKey,
			BaseURL:     cfg.APIBase,
			Model:       cfg.Model,
			MaxTokens:   cfg.MaxTokens,
			Temperature: cfg.Temperature,
		})
	case "anthropic":
		base := cfg.APIBase
		if base == config.DefaultAPIBase {
			base = ""
		}
		p := anthropicprovider.NewProviderWithBaseURL(cfg.APIKey, base)
		p.Model = cfg.Model
		p.MaxTokens = cfg.MaxTokens
		p.Temperature = cfg.Temperature
		gen = p
	default:
		return nil, fmt.Errorf("unknown responder provider %q", cfg.Provider)
	}
	return Trimmed{Inner: gen, Reasoning: cfg.StripReasoning}, nil
}
