package anthropicprovider

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/anthropics/anthropic-sdk-go"
	anthropicoption "github.com/anthropics/anthropic-sdk-go/option"
)

func TestBuildParams_Defaults(t *testing.T) {
	p := NewProvider("key")
	params := p.buildParams("Hello")
	if string(params.Model) != defaultModel {
		t.Errorf("Model = %q, want %q", params.Model, defaultModel)
	}
	if params.MaxTokens != defaultMaxTokens {
		t.Errorf("MaxTokens = %d, want %d", params.MaxTokens, defaultMaxTokens)
	}
	if len(params.Messages) != 1 {
		t.Fatalf("len(Messages) = %d, want 1", len(params.Messages))
	}
}

func TestBuildParams_Overrides(t *testing.T) {
	temp := 0.2
	p := NewProvider("key")
	p.Model = "claude-haiku-4-5"
	p.MaxTokens = 256
	p.Temperature = &temp

	params := p.buildParams("Hi")
	if string(params.Model) != "claude-haiku-4-5" {
		t.Errorf("Model = %q", params.Model)
	}
	if params.MaxTokens != 256 {
		t.Errorf("MaxTokens = %d, want 256", params.MaxTokens)
	}
	if !params.Temperature.Valid() || params.Temperature.Value != 0.2 {
		t.Errorf("Temperature = %v, want 0.2", params.Temperature)
	}
}

func TestParseResponse_Empty(t *testing.T) {
	if got := parseResponse(&anthropic.Message{}); got != "" {
		t.Errorf("parseResponse() = %q, want empty", got)
	}
}

func TestProvider_GenerateRoundTrip(t *testing.T) {
	var gotModel any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/messages" {
			http.Error(w, "not found", http.StatusNotFound)
			return
		}
		if r.Header.Get("X-Api-Key") != "test-key" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}

		var reqBody map[string]any
		json.NewDecoder(r.Body).Decode(&reqBody)
		gotModel = reqBody["model"]

		resp := map[string]any{
			"id":          "msg_test",
			"type":        "message",
			"role":        "assistant",
			"model":       reqBody["model"],
			"stop_reason": "end_turn",
			"content": []map[string]any{
				{"type": "text", "text": "Hello! "},
				{"type": "text", "text": "How can I help you?"},
			},
			"usage": map[string]any{
				"input_tokens":  15,
				"output_tokens": 8,
			},
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	provider := NewProviderWithClient(createAnthropicTestClient(server.URL, "test-key"))
	provider.Model = "claude-sonnet-4-5"
	got, err := provider.Generate(t.Context(), "alice@example.org: Hello")
	if err != nil {
		t.Fatalf("Generate() error: %v", err)
	}
	if got != "Hello! How can I help you?" {
		t.Errorf("Generate() = %q, want %q", got, "Hello! How can I help you?")
	}
	if gotModel != "claude-sonnet-4-5" {
		t.Errorf("model sent = %v", gotModel)
	}
}

func TestProvider_GenerateAPIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"type":"error","error":{"type":"invalid_request_error","message":"bad"}}`, http.StatusBadRequest)
	}))
	defer server.Close()

	provider := NewProviderWithClient(createAnthropicTestClient(server.URL, "test-key"))
	if _, err := provider.Generate(t.Context(), "hi"); err == nil {
		t.Fatal("expected error from 400 response")
	}
}

func TestProvider_NewProviderWithBaseURL_NormalizesV1Suffix(t *testing.T) {
	p := NewProviderWithBaseURL("token", "https://api.anthropic.com/v1/")
	if got := p.BaseURL(); got != "https://api.anthropic.com" {
		t.Fatalf("BaseURL() = %q, want %q", got, "https://api.anthropic.com")
	}
	if got := NewProviderWithBaseURL("token", "  ").BaseURL(); got != defaultBaseURL {
		t.Fatalf("BaseURL() = %q, want default", got)
	}
}

func createAnthropicTestClient(baseURL, key string) *anthropic.Client {
	c := anthropic.NewClient(
		anthropicoption.WithAPIKey(key),
		anthropicoption.WithBaseURL(baseURL),
		anthropicoption.WithMaxRetries(0),
	)
	return &c
}
