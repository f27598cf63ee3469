package config

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/caarlos0/env/v11"
	"github.com/sandevgo/recomate/pkg/log"
)

const weightTolerance = 1e-6

type FusionConfig struct {
	// graph_affinity, semantic_similarity, preference_match
	Weights []float64 `env:"FUSION_WEIGHTS" envSeparator:"," envDefault:"0.4,0.4,0.2"`
	Size    int       `env:"RECOMMENDATION_SIZE" envDefault:"5"`

	GraphLimit            int     `env:"GRAPH_LIMIT" envDefault:"50"`
	SemanticK             int     `env:"SEMANTIC_K" envDefault:"30"`
	SemanticMinSimilarity float64 `env:"SEMANTIC_MIN_SIMILARITY" envDefault:"0.2"`
}

func NewFusionConfig(ctx context.Context) *FusionConfig {
	c := &FusionConfig{}
	if err := env.Parse(c); err != nil {
		log.FromCtx(ctx).Fatal().Err(err).Msg("failed to parse Fusion config")
	}
	if err := c.Validate(); err != nil {
		log.FromCtx(ctx).Fatal().Err(err).Msg("invalid Fusion config")
	}
	return c
}

func (c FusionConfig) Validate() error {
	if len(c.Weights) != 3 {
		return fmt.Errorf("FUSION_WEIGHTS needs 3 values, got %d", len(c.Weights))
	}
	sum := 0.0
	for _, w := range c.Weights {
		if w < 0 || w > 1 {
			return fmt.Errorf("fusion weight %v out of [0, 1]", w)
		}
		sum += w
	}
	if math.Abs(sum-1) > weightTolerance {
		return fmt.Errorf("fusion weights sum to %v, want 1", sum)
	}
	if c.Size < 1 {
		return errors.New("RECOMMENDATION_SIZE must be at least 1")
	}
	if c.GraphLimit < 1 || c.SemanticK < 1 {
		return errors.New("GRAPH_LIMIT and SEMANTIC_K must be positive")
	}
	if c.SemanticMinSimilarity < 0 || c.SemanticMinSimilarity > 1 {
		return errors.New("SEMANTIC_MIN_SIMILARITY must be in [0, 1]")
	}
	return nil
}
