package config

import (
	"context"
	"path/filepath"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/sandevgo/recomate/pkg/log"
)

const (
	StoreSQLite = "sqlite"
	StoreRedis  = "redis"
	StoreMemory = "memory"

	VectorChromem  = "chromem"
	VectorPGVector = "pgvector"
)

type AppConfig struct {
	RuntimePath string `env:"RECOMATE_RUNTIME_PATH" envDefault:".recomate"`
	// Session store backend: sqlite | redis | memory
	SessionStore string `env:"SESSION_STORE" envDefault:"sqlite"`
	// Vector index backend: chromem | pgvector
	VectorStore string `env:"VECTOR_STORE" envDefault:"chromem"`

	// Transport Flags
	EnableHTTP     bool `env:"ENABLE_HTTP" envDefault:"true"`
	EnableTelegram bool `env:"ENABLE_TELEGRAM" envDefault:"false"`

	// How long an idle conversation manager stays resident
	ManagerIdleTTL time.Duration `env:"MANAGER_IDLE_TTL" envDefault:"15m"`
}

func NewAppConfig(ctx context.Context) *AppConfig {
	c := &AppConfig{}
	if err := env.Parse(c); err != nil {
		log.FromCtx(ctx).Fatal().Err(err).Msg("failed to parse App config")
	}
	c.RuntimePath = GetRuntimePath()
	return c
}

func (c AppConfig) GetRuntimePath() string {
	return c.RuntimePath
}

func (c AppConfig) GetDatabasePath() string {
	return filepath.Join(c.RuntimePath, "recomate.db")
}

func (c AppConfig) GetVectorPath() string {
	return filepath.Join(c.RuntimePath, "vectors")
}
