package anthropicprovider

import (
	"context"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

const (
	defaultBaseURL   = "https://api.anthropic.com"
	defaultModel     = "claude-sonnet-4-5"
	defaultMaxTokens = 1024
)

// Provider answers prompts through the Anthropic Messages API.
type Provider struct {
	client  *anthropic.Client
	baseURL string

	Model       string
	MaxTokens   int
	Temperature *float64
}

func NewProvider(apiKey string) *Provider {
	return NewProviderWithBaseURL(apiKey, "")
}

func NewProviderWithBaseURL(apiKey, apiBase string) *Provider {
	baseURL := normalizeBaseURL(apiBase)
	client := anthropic.NewClient(
		option.WithAPIKey(apiKey),
		option.WithBaseURL(baseURL),
	)
	return &Provider{
		client:  &client,
		baseURL: baseURL,
	}
}

func NewProviderWithClient(client *anthropic.Client) *Provider {
	return &Provider{
		client:  client,
		baseURL: defaultBaseURL,
	}
}

func (p *Provider) Name() string { return "anthropic" }

func (p *Provider) BaseURL() string { return p.baseURL }

func (p *Provider) Generate(ctx context.Context, prompt string) (string, error) {
	resp, err := p.client.Messages.New(ctx, p.buildParams(prompt))
	if err != nil {
		return "", fmt.Errorf("anthropic API call: %w", err)
	}
	return parseResponse(resp), nil
}

func (p *Provider) buildParams(prompt string) anthropic.MessageNewParams {
	model := p.Model
	if model == "" {
		model = defaultModel
	}
	maxTokens := int64(p.MaxTokens)
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(model),
		Messages:  []anthropic.MessageParam{anthropic.NewUserMessage(anthropic.NewTextBlock(prompt))},
		MaxTokens: maxTokens,
	}
	if p.Temperature != nil {
		params.Temperature = anthropic.Float(*p.Temperature)
	}
	return params
}

func parseResponse(resp *anthropic.Message) string {
	var content strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			content.WriteString(block.AsText().Text)
		}
	}
	return content.String()
}

func normalizeBaseURL(apiBase string) string {
	base := strings.TrimSpace(apiBase)
	if base == "" {
		return defaultBaseURL
	}

	base = strings.TrimRight(base, "/")
	if b, ok := strings.CutSuffix(base, "/v1"); ok {
		base = b
	}
	if base == "" {
		return defaultBaseURL
	}

	return base
}
