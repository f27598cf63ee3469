package config

import (
	"context"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/sandevgo/recomate/pkg/log"
)

const (
	ProviderNone       = "none"
	ProviderAnthropic  = "anthropic"
	ProviderOpenAI     = "openai"
	ProviderOpenRouter = "openrouter"
	ProviderOllama     = "ollama"
	ProviderCustom     = "custom"
)

// LLMConfig selects the generation model used to parse intents and phrase
// answers. With LLM_PROVIDER=none intents are parsed by rules only.
type LLMConfig struct {
	Provider string `env:"LLM_PROVIDER" envDefault:"none"`
	Model    string `env:"LLM_MODEL"`

	AnthropicAPIKey  string `env:"ANTHROPIC_API_KEY"`
	OpenAIAPIKey     string `env:"OPENAI_API_KEY"`
	OpenRouterAPIKey string `env:"OPENROUTER_API_KEY"`
	OllamaBaseURL    string `env:"OLLAMA_BASE_URL" envDefault:"http://localhost:11434/v1"`
	CustomBaseURL    string `env:"CUSTOM_OPENAI_BASE_URL"`
	CustomAPIKey     string `env:"CUSTOM_OPENAI_API_KEY"`

	MaxTokens   int     `env:"LLM_MAX_TOKENS" envDefault:"1024"`
	Temperature float64 `env:"LLM_TEMPERATURE" envDefault:"0"`

	// Bounds answer phrasing; intent parsing has its own turn budget
	PhraseTimeout time.Duration `env:"LLM_PHRASE_TIMEOUT" envDefault:"20s"`
}

func NewLLMConfig(ctx context.Context) *LLMConfig {
	c := &LLMConfig{}
	if err := env.Parse(c); err != nil {
		log.FromCtx(ctx).Fatal().Err(err).Msg("failed to parse LLM config")
	}
	return c
}

func (c LLMConfig) Enabled() bool {
	return c.Provider != "" && c.Provider != ProviderNone
}
