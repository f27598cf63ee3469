package rag

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/sandevgo/recomate/internal/core"
)

// OpenAIModel calls an OpenAI-compatible /embeddings endpoint.
type OpenAIModel struct {
	client     *resty.Client
	baseURL    string
	apiKey     string
	model      string
	dimensions int
}

func NewOpenAIModel(baseURL, apiKey, model string, dimensions int) *OpenAIModel {
	client := resty.New().
		SetTimeout(60*time.Second).
		SetHeader("Content-Type", "application/json").
		SetHeader("User-Agent", core.AppUserAgent)

	return &OpenAIModel{
		client:     client,
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		model:      model,
		dimensions: dimensions,
	}
}

func (m *OpenAIModel) Dimensions() int {
	return m.dimensions
}

func (m *OpenAIModel) Embed(ctx context.Context, text string) ([]float32, error) {
	payload := map[string]any{
		"model": m.model,
		"input": text,
	}
	if m.dimensions > 0 {
		payload["dimensions"] = m.dimensions
	}

	req := m.client.R().SetContext(ctx).SetBody(payload)
	if m.apiKey != "" {
		req.SetAuthToken(m.apiKey)
	}

	resp, err := req.Post(m.baseURL + "/embeddings")
	if err != nil {
		return nil, fmt.Errorf("request: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, fmt.Errorf("http %d: %s", resp.StatusCode(), resp.String())
	}

	var result struct {
		Data []struct {
			Embedding []float32 `json:"embedding"`
		} `json:"data"`
	}
	if err := json.Unmarshal(resp.Body(), &result); err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}
	if len(result.Data) == 0 || len(result.Data[0].Embedding) == 0 {
		return nil, fmt.Errorf("empty embedding: %s", resp.String())
	}
	return result.Data[0].Embedding, nil
}
