package rag

import (
	"fmt"

	"github.com/sandevgo/recomate/internal/config"
)

func NewModel(cfg *config.EmbeddingConfig) (Model, error) {
	switch cfg.Provider {
	case config.EmbedderHash, "":
		return NewHashModel(cfg.Dimensions), nil
	case config.EmbedderOpenAI:
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("embedding provider %q requires EMBEDDING_API_KEY", cfg.Provider)
		}
		return NewOpenAIModel(cfg.BaseURL, cfg.APIKey, cfg.Model, cfg.Dimensions), nil
	default:
		return nil, fmt.Errorf("unknown embedding provider: %s", cfg.Provider)
	}
}

func NewEmbedderFromConfig(cfg *config.EmbeddingConfig) (*Embedder, error) {
	model, err := NewModel(cfg)
	if err != nil {
		return nil, err
	}
	return NewEmbedder(model,
		WithTimeout(cfg.Timeout),
		WithCache(cfg.CacheSize),
		WithChunker(NewChunker(ReviewChunkerConfig(cfg.ChunkTokens), nil)),
	), nil
}
