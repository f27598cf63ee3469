package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
)

// OpenAICompatible talks to any /chat/completions endpoint: OpenAI,
// OpenRouter, Ollama or a self-hosted gateway.
type OpenAICompatible struct {
	baseProvider
	authHeader   string
	authPrefix   string
	extraHeaders map[string]string
	maxTokens    int
	temperature  float64
}

type OpenAICompatibleConfig struct {
	BaseURL      string
	APIKey       string
	Model        string
	AuthHeader   string // e.g., "Authorization"
	AuthPrefix   string // e.g., "Bearer "
	ExtraHeaders map[string]string
	MaxTokens    int
	Temperature  float64
}

func NewOpenAICompatible(cfg OpenAICompatibleConfig) *OpenAICompatible {
	return &OpenAICompatible{
		baseProvider: newBaseProvider(strings.TrimRight(cfg.BaseURL, "/"), cfg.APIKey, cfg.Model),
		authHeader:   cfg.AuthHeader,
		authPrefix:   cfg.AuthPrefix,
		extraHeaders: cfg.ExtraHeaders,
		maxTokens:    cfg.MaxTokens,
		temperature:  cfg.Temperature,
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

func (o *OpenAICompatible) Generate(ctx context.Context, prompt string) (string, error) {
	payload := map[string]any{
		"model":       o.model,
		"messages":    []chatMessage{{Role: "user", Content: prompt}},
		"temperature": o.temperature,
	}
	if o.maxTokens > 0 {
		payload["max_tokens"] = o.maxTokens
	}

	req := o.client.R().
		SetContext(ctx).
		SetHeaders(o.extraHeaders).
		SetBody(payload)
	if o.authHeader != "" && o.apiKey != "" {
		req.SetHeader(o.authHeader, o.authPrefix+o.apiKey)
	}

	resp, err := req.Post(o.baseURL + "/chat/completions")
	if err != nil {
		return "", fmt.Errorf("request: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return "", fmt.Errorf("http %d: %s", resp.StatusCode(), resp.String())
	}

	var result struct {
		Choices []struct {
			Message chatMessage `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(resp.Body(), &result); err != nil {
		return "", fmt.Errorf("decode: %w", err)
	}
	if len(result.Choices) == 0 {
		return "", fmt.Errorf("empty choices: %s", resp.String())
	}
	return result.Choices[0].Message.Content, nil
}
