package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"docqa/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewClientProviders(t *testing.T) {
	tests := []struct {
		name    string
		cfg     config.LLMConfig
		wantErr bool
	}{
		{name: "unknown", cfg: config.LLMConfig{Provider: "bard"}, wantErr: true},
		{name: "gemini without key", cfg: config.LLMConfig{Provider: "gemini"}, wantErr: true},
		{name: "openai", cfg: config.LLMConfig{Provider: "openai", OpenAI: config.ProviderConfig{APIKey: "k", Model: "m"}}},
		{name: "ollama", cfg: config.LLMConfig{Provider: "ollama", Ollama: config.ProviderConfig{Model: "llama3"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := NewClient(tt.cfg)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.NotNil(t, c)
		})
	}
}

func TestOllamaGenerate(t *testing.T) {
	var got map[string]interface{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/generate", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"model":"llama3","response":"{\"answer\":\"yes\"}","done":true}`))
	}))
	defer srv.Close()

	o, err := NewOllama("llama3", srv.URL, Options{Temperature: 0.3, MaxTokens: 64})
	require.NoError(t, err)
	out, err := o.Generate(context.Background(), "question")
	require.NoError(t, err)
	assert.Equal(t, `{"answer":"yes"}`, out)
	assert.Equal(t, "question", got["prompt"])
	assert.Equal(t, false, got["stream"])
}

func TestOpenAIGenerate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id":"1","object":"chat.completion","model":"m","choices":[{"index":0,"message":{"role":"assistant","content":"Paris"},"finish_reason":"stop"}]}`))
	}))
	defer srv.Close()

	o, err := NewOpenAI("m", "k", srv.URL, Options{})
	require.NoError(t, err)
	out, err := o.Generate(context.Background(), "capital of France?")
	require.NoError(t, err)
	assert.Equal(t, "Paris", out)
}

func TestOpenAIGenerateNoChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id":"1","choices":[]}`))
	}))
	defer srv.Close()

	o, err := NewOpenAI("m", "k", srv.URL, Options{})
	require.NoError(t, err)
	_, err = o.Generate(context.Background(), "q")
	assert.Error(t, err)
}
