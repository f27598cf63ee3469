package llm

import (
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/sandevgo/recomate/internal/core"
)

type baseProvider struct {
	client  *resty.Client
	baseURL string
	apiKey  string
	model   string
}

func newBaseProvider(baseURL, apiKey, model string) baseProvider {
	client := resty.New().
		SetTimeout(120*time.Second).
		SetHeader("Content-Type", "application/json").
		SetHeader("User-Agent", core.AppUserAgent)

	return baseProvider{
		client:  client,
		baseURL: baseURL,
		apiKey:  apiKey,
		model:   model,
	}
}
