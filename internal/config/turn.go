package config

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/sandevgo/recomate/pkg/log"
	"github.com/sandevgo/recomate/pkg/retry"
)

// TurnConfig bounds every stage of a turn and the retries around it.
type TurnConfig struct {
	RetrievalTimeoutMS     int `env:"RETRIEVAL_TIMEOUT_MS" envDefault:"800"`
	GraphTimeoutMS         int `env:"GRAPH_TIMEOUT_MS"`
	SemanticTimeoutMS      int `env:"SEMANTIC_TIMEOUT_MS"`
	RetrievalOverheadMS    int `env:"RETRIEVAL_OVERHEAD_MS" envDefault:"200"`
	UnderstandingTimeoutMS int `env:"UNDERSTANDING_TIMEOUT_MS" envDefault:"2000"`
	// 0 derives the turn bound from the stage bounds
	TurnTimeoutMS int `env:"TURN_TIMEOUT_MS"`

	PersistMaxRetries       int     `env:"PERSIST_MAX_RETRIES" envDefault:"4"`
	PersistInitialBackoffMS int     `env:"PERSIST_INITIAL_BACKOFF_MS" envDefault:"50"`
	PersistBackoffFactor    float64 `env:"PERSIST_BACKOFF_FACTOR" envDefault:"2"`
	PersistMaxBackoffMS     int     `env:"PERSIST_MAX_BACKOFF_MS" envDefault:"1000"`
	AgentMaxRetries         int     `env:"AGENT_MAX_RETRIES" envDefault:"1"`

	ProfileDecay        float64 `env:"PROFILE_DECAY" envDefault:"0.9"`
	ProfileLearningRate float64 `env:"PROFILE_LEARNING_RATE" envDefault:"0.3"`
	ProfileImplicitRate float64 `env:"PROFILE_IMPLICIT_RATE" envDefault:"0.1"`

	// A manager reloads its cached session once it is older than this.
	// 0 keeps the cached copy until a write fails.
	SessionCacheTTL time.Duration `env:"SESSION_CACHE_TTL" envDefault:"1m"`
}

// persistBudget is reserved inside a derived turn timeout for Persisting.
const persistBudget = 2 * time.Second

func NewTurnConfig(ctx context.Context) *TurnConfig {
	c := &TurnConfig{}
	if err := env.Parse(c); err != nil {
		log.FromCtx(ctx).Fatal().Err(err).Msg("failed to parse Turn config")
	}
	if err := c.Validate(); err != nil {
		log.FromCtx(ctx).Fatal().Err(err).Msg("invalid Turn config")
	}
	return c
}

func ms(v int) time.Duration {
	return time.Duration(v) * time.Millisecond
}

func (c TurnConfig) GraphTimeout() time.Duration {
	if c.GraphTimeoutMS > 0 {
		return ms(c.GraphTimeoutMS)
	}
	return ms(c.RetrievalTimeoutMS)
}

func (c TurnConfig) SemanticTimeout() time.Duration {
	if c.SemanticTimeoutMS > 0 {
		return ms(c.SemanticTimeoutMS)
	}
	return ms(c.RetrievalTimeoutMS)
}

func (c TurnConfig) UnderstandingTimeout() time.Duration {
	return ms(c.UnderstandingTimeoutMS)
}

// RetrievalBound is how long Retrieving may wait for both agents.
func (c TurnConfig) RetrievalBound() time.Duration {
	return max(c.GraphTimeout(), c.SemanticTimeout()) + ms(c.RetrievalOverheadMS)
}

func (c TurnConfig) TurnTimeout() time.Duration {
	if c.TurnTimeoutMS > 0 {
		return ms(c.TurnTimeoutMS)
	}
	return c.UnderstandingTimeout() + c.RetrievalBound() + persistBudget
}

func (c TurnConfig) PersistPolicy() retry.Policy {
	return retry.Policy{
		MaxRetries:    c.PersistMaxRetries,
		BackoffFactor: c.PersistBackoffFactor,
		InitialDelay:  ms(c.PersistInitialBackoffMS),
		MaxDelay:      ms(c.PersistMaxBackoffMS),
		Jitter:        ms(c.PersistInitialBackoffMS) / 2,
	}
}

func (c TurnConfig) AgentPolicy() retry.Policy {
	return retry.Policy{
		MaxRetries:    c.AgentMaxRetries,
		BackoffFactor: 2,
		InitialDelay:  25 * time.Millisecond,
		MaxDelay:      100 * time.Millisecond,
	}
}

func (c TurnConfig) Validate() error {
	var errs []error
	if c.RetrievalTimeoutMS <= 0 {
		errs = append(errs, errors.New("RETRIEVAL_TIMEOUT_MS must be positive"))
	}
	if c.UnderstandingTimeoutMS <= 0 {
		errs = append(errs, errors.New("UNDERSTANDING_TIMEOUT_MS must be positive"))
	}
	if c.RetrievalOverheadMS < 0 {
		errs = append(errs, errors.New("RETRIEVAL_OVERHEAD_MS must not be negative"))
	}
	if c.TurnTimeoutMS > 0 && c.TurnTimeout() < c.RetrievalBound() {
		errs = append(errs, fmt.Errorf("TURN_TIMEOUT_MS %d is below the retrieval bound %s", c.TurnTimeoutMS, c.RetrievalBound()))
	}
	if c.PersistMaxRetries < 0 || c.AgentMaxRetries < 0 {
		errs = append(errs, errors.New("retry counts must not be negative"))
	}
	if c.PersistBackoffFactor < 1 {
		errs = append(errs, errors.New("PERSIST_BACKOFF_FACTOR must be >= 1"))
	}
	if c.SessionCacheTTL < 0 {
		errs = append(errs, errors.New("SESSION_CACHE_TTL must not be negative"))
	}
	if c.ProfileDecay <= 0 || c.ProfileDecay > 1 {
		errs = append(errs, errors.New("PROFILE_DECAY must be in (0, 1]"))
	}
	if c.ProfileLearningRate < 0 || c.ProfileLearningRate > 1 || c.ProfileImplicitRate < 0 || c.ProfileImplicitRate > 1 {
		errs = append(errs, errors.New("profile rates must be in [0, 1]"))
	}
	return errors.Join(errs...)
}
