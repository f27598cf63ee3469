package config

import (
	"context"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/sandevgo/recomate/pkg/log"
)

const (
	EmbedderHash   = "hash"
	EmbedderOpenAI = "openai"
)

type EmbeddingConfig struct {
	// hash | openai (any OpenAI-compatible /embeddings endpoint)
	Provider   string        `env:"EMBEDDING_PROVIDER" envDefault:"hash"`
	Model      string        `env:"EMBEDDING_MODEL" envDefault:"text-embedding-3-small"`
	BaseURL    string        `env:"EMBEDDING_BASE_URL" envDefault:"https://api.openai.com/v1"`
	APIKey     string        `env:"EMBEDDING_API_KEY"`
	Dimensions int           `env:"EMBEDDING_DIMENSIONS" envDefault:"384"`
	CacheSize  int64         `env:"EMBEDDING_CACHE_SIZE" envDefault:"10000"`
	Timeout    time.Duration `env:"EMBEDDING_TIMEOUT" envDefault:"10s"`
	// Token budget per review chunk at ingestion
	ChunkTokens int `env:"EMBEDDING_CHUNK_TOKENS" envDefault:"256"`
}

func NewEmbeddingConfig(ctx context.Context) *EmbeddingConfig {
	c := &EmbeddingConfig{}
	if err := env.Parse(c); err != nil {
		log.FromCtx(ctx).Fatal().Err(err).Msg("failed to parse Embedding config")
	}
	return c
}
