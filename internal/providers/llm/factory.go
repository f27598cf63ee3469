package llm

import (
	"context"
	"fmt"

	"github.com/sandevgo/recomate/internal/config"
	"github.com/sandevgo/recomate/internal/core"
	"github.com/sandevgo/recomate/pkg/log"
)

// NewGenerator creates the generation model selected by cfg. It returns
// core.ErrNotConfigured when LLM_PROVIDER is none.
func NewGenerator(ctx context.Context, cfg *config.LLMConfig) (core.Generator, error) {
	if !cfg.Enabled() {
		return nil, core.ErrNotConfigured
	}

	log.FromCtx(ctx).Info().
		Str("provider", cfg.Provider).
		Str("model", cfg.Model).
		Msg("starting llm provider")

	compatible := func(baseURL, apiKey string, extra map[string]string) core.Generator {
		return NewOpenAICompatible(OpenAICompatibleConfig{
			BaseURL:      baseURL,
			APIKey:       apiKey,
			Model:        cfg.Model,
			AuthHeader:   "Authorization",
			AuthPrefix:   "Bearer ",
			ExtraHeaders: extra,
			MaxTokens:    cfg.MaxTokens,
			Temperature:  cfg.Temperature,
		})
	}

	switch cfg.Provider {
	case config.ProviderAnthropic:
		return NewAnthropic(cfg.AnthropicAPIKey, cfg.Model, cfg.MaxTokens, cfg.Temperature), nil
	case config.ProviderOpenAI:
		return compatible("https://api.openai.com/v1", cfg.OpenAIAPIKey, nil), nil
	case config.ProviderOpenRouter:
		return compatible("https://openrouter.ai/api/v1", cfg.OpenRouterAPIKey, map[string]string{
			"HTTP-Referer": core.RepositoryURL,
			"X-Title":      core.AppName,
		}), nil
	case config.ProviderOllama:
		return compatible(cfg.OllamaBaseURL, "", nil), nil
	case config.ProviderCustom:
		return compatible(cfg.CustomBaseURL, cfg.CustomAPIKey, nil), nil
	default:
		return nil, fmt.Errorf("unknown llm provider: %s", cfg.Provider)
	}
}
