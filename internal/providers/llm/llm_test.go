package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/sandevgo/recomate/internal/config"
	"github.com/sandevgo/recomate/internal/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenAICompatible_Generate(t *testing.T) {
	var gotAuth string
	var gotBody map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		gotAuth = r.Header.Get("Authorization")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"{\"category\":\"shoes\"}"}}]}`))
	}))
	defer server.Close()

	gen := NewOpenAICompatible(OpenAICompatibleConfig{
		BaseURL:    server.URL + "/v1/",
		APIKey:     "secret",
		Model:      "test-model",
		AuthHeader: "Authorization",
		AuthPrefix: "Bearer ",
	})

	out, err := gen.Generate(context.Background(), "parse this")
	require.NoError(t, err)
	assert.Equal(t, `{"category":"shoes"}`, out)
	assert.Equal(t, "Bearer secret", gotAuth)
	assert.Equal(t, "test-model", gotBody["model"])
}

func TestOpenAICompatible_HTTPError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}))
	defer server.Close()

	gen := NewOpenAICompatible(OpenAICompatibleConfig{BaseURL: server.URL})
	_, err := gen.Generate(context.Background(), "x")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "429")
}

func TestNewGenerator(t *testing.T) {
	ctx := context.Background()

	_, err := NewGenerator(ctx, &config.LLMConfig{Provider: config.ProviderNone})
	assert.ErrorIs(t, err, core.ErrNotConfigured)

	_, err = NewGenerator(ctx, &config.LLMConfig{Provider: "bogus"})
	assert.Error(t, err)

	gen, err := NewGenerator(ctx, &config.LLMConfig{Provider: config.ProviderAnthropic, AnthropicAPIKey: "k"})
	require.NoError(t, err)
	assert.IsType(t, &Anthropic{}, gen)

	gen, err = NewGenerator(ctx, &config.LLMConfig{Provider: config.ProviderOllama, OllamaBaseURL: "http://localhost:11434/v1"})
	require.NoError(t, err)
	assert.IsType(t, &OpenAICompatible{}, gen)
}
