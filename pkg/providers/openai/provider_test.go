package openaiprovider

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func completionServer(t *testing.T, content string, gotBody *map[string]any, gotAuth *string) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			http.Error(w, "not found", http.StatusNotFound)
			return
		}
		*gotAuth = r.Header.Get("Authorization")
		json.NewDecoder(r.Body).Decode(gotBody)

		resp := map[string]any{
			"id":      "chatcmpl-1",
			"object":  "chat.completion",
			"created": 1,
			"model":   (*gotBody)["model"],
			"choices": []map[string]any{{
				"index":         0,
				"finish_reason": "stop",
				"message":       map[string]any{"role": "assistant", "content": content},
			}},
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	}))
	t.Cleanup(server.Close)
	return server
}

func TestProvider_GenerateRoundTrip(t *testing.T) {
	var body map[string]any
	var auth string
	server := completionServer(t, "<think>greet</think>Hi alice", &body, &auth)

	temp := 0.5
	p := NewProvider(Options{
		BaseURL:     server.URL + "/v1/",
		Model:       "llama3",
		MaxTokens:   64,
		Temperature: &temp,
	})
	got, err := p.Generate(t.Context(), "alice@example.org: hello")
	if err != nil {
		t.Fatalf("Generate() error: %v", err)
	}
	if got != "<think>greet</think>Hi alice" {
		t.Errorf("Generate() = %q", got)
	}
	if body["model"] != "llama3" {
		t.Errorf("model = %v, want llama3", body["model"])
	}
	if body["max_tokens"] != float64(64) {
		t.Errorf("max_tokens = %v, want 64", body["max_tokens"])
	}
	if body["temperature"] != 0.5 {
		t.Errorf("temperature = %v, want 0.5", body["temperature"])
	}
	msgs, _ := body["messages"].([]any)
	if len(msgs) != 1 {
		t.Fatalf("len(messages) = %d, want 1", len(msgs))
	}
	if m, _ := msgs[0].(map[string]any); m["role"] != "user" || m["content"] != "alice@example.org: hello" {
		t.Errorf("message = %v", msgs[0])
	}
	if auth != "Bearer "+placeholderKey {
		t.Errorf("Authorization = %q", auth)
	}
}

func TestProvider_OmitsUnsetOptions(t *testing.T) {
	var body map[string]any
	var auth string
	server := completionServer(t, "ok", &body, &auth)

	p := NewProvider(Options{APIKey: "sk-test", BaseURL: server.URL + "/v1"})
	if _, err := p.Generate(t.Context(), "x"); err != nil {
		t.Fatalf("Generate() error: %v", err)
	}
	if body["model"] != defaultModel {
		t.Errorf("model = %v, want %q", body["model"], defaultModel)
	}
	if _, ok := body["max_tokens"]; ok {
		t.Error("max_tokens should be omitted")
	}
	if _, ok := body["temperature"]; ok {
		t.Error("temperature should be omitted")
	}
	if auth != "Bearer sk-test" {
		t.Errorf("Authorization = %q", auth)
	}
}

func TestProvider_GenerateError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":{"message":"model not found"}}`, http.StatusNotFound)
	}))
	defer server.Close()

	p := NewProvider(Options{BaseURL: server.URL})
	if _, err := p.Generate(t.Context(), "x"); err == nil {
		t.Fatal("expected error")
	}
}

func TestNewProvider_Defaults(t *testing.T) {
	p := NewProvider(Options{})
	if p.BaseURL() != defaultBaseURL {
		t.Errorf("BaseURL() = %q", p.BaseURL())
	}
	if p.Name() != "openai" {
		t.Errorf("Name() = %q", p.Name())
	}
}
