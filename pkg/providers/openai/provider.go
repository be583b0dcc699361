// Package openaiprovider talks to any OpenAI compatible chat completion
// endpoint. Ollama serves one under /v1, which is the default target.
package openaiprovider

import (
	"context"
	"fmt"
	"strings"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
)

const (
	defaultBaseURL = "http://localhost:11434/v1"
	defaultModel   = "deepseek-r1:7b"
	// Ollama ignores the key but the client always sends one.
	placeholderKey = "ollama"
)

type Options struct {
	APIKey      string
	BaseURL     string
	Model       string
	MaxTokens   int
	Temperature *float64
}

type Provider struct {
	client  openai.Client
	baseURL string
	opts    Options
}

func NewProvider(opts Options) *Provider {
	base := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if base == "" {
		base = defaultBaseURL
	}
	key := opts.APIKey
	if key == "" {
		key = placeholderKey
	}
	if opts.Model == "" {
		opts.Model = defaultModel
	}
	return &Provider{
		client: openai.NewClient(
			option.WithAPIKey(key),
			option.WithBaseURL(base),
			option.WithMaxRetries(1),
		),
		baseURL: base,
		opts:    opts,
	}
}

func (p *Provider) Name() string { return "openai" }

func (p *Provider) BaseURL() string { return p.baseURL }

func (p *Provider) Generate(ctx context.Context, prompt string) (string, error) {
	resp, err := p.client.Chat.Completions.New(ctx, p.buildParams(prompt))
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", nil
	}
	return resp.Choices[0].Message.Content, nil
}

func (p *Provider) buildParams(prompt string) openai.ChatCompletionNewParams {
	params := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(p.opts.Model),
		Messages: []openai.ChatCompletionMessageParamUnion{openai.UserMessage(prompt)},
	}
	if p.opts.MaxTokens > 0 {
		params.MaxTokens = openai.Int(int64(p.opts.MaxTokens))
	}
	if p.opts.Temperature != nil {
		params.Temperature = openai.Float(*p.opts.Temperature)
	}
	return params
}
