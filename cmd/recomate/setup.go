package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/sandevgo/recomate/internal/config"
	"github.com/sandevgo/recomate/internal/core"
	"github.com/sandevgo/recomate/internal/providers/llm"
	"github.com/sandevgo/recomate/internal/providers/rag"
	"github.com/sandevgo/recomate/internal/service/catalog"
	"github.com/sandevgo/recomate/internal/service/command"
	"github.com/sandevgo/recomate/internal/service/conversation"
	"github.com/sandevgo/recomate/internal/service/fusion"
	"github.com/sandevgo/recomate/internal/service/memory"
	"github.com/sandevgo/recomate/internal/service/orchestrator"
	"github.com/sandevgo/recomate/internal/service/presenter"
	"github.com/sandevgo/recomate/internal/service/retrieval"
	"github.com/sandevgo/recomate/internal/service/understanding"
	"github.com/sandevgo/recomate/internal/storage/memstore"
	"github.com/sandevgo/recomate/internal/storage/redisstore"
	"github.com/sandevgo/recomate/internal/storage/sqlite"
	"github.com/sandevgo/recomate/internal/storage/vector"
	"github.com/sandevgo/recomate/pkg/log"
	"github.com/sandevgo/recomate/pkg/srv"
	"github.com/sandevgo/recomate/pkg/tracing"
)

const tracingFlushTimeout = 5 * time.Second

type vectorStore interface {
	core.VectorIndex
	core.VectorWriter
}

// components is everything a command needs, wired from the environment.
type components struct {
	app       *config.AppConfig
	llm       *config.LLMConfig
	memory    *memory.Memory
	catalog   *sqlite.CatalogRepo
	vectors   vectorStore
	embedder  *rag.Embedder
	generator core.Generator
	vocab     *understanding.Vocabulary
	orch      *orchestrator.Orchestrator
	presenter *presenter.Presenter
	router    *command.Router

	// Closers, run on shutdown in order
	cleanups []srv.Service
}

func newComponents(ctx context.Context) (*components, error) {
	logger := log.FromCtx(ctx)

	if err := initEnv(ctx, config.GetRuntimePath()); err != nil {
		return nil, fmt.Errorf("failed to init env: %w", err)
	}

	// 1. Configuration
	c := &components{
		app: config.NewAppConfig(ctx),
		llm: config.NewLLMConfig(ctx),
	}
	turnCfg := config.NewTurnConfig(ctx)
	fusionCfg := config.NewFusionConfig(ctx)

	shutdownTracing, err := tracing.Init(ctx, config.NewTracingConfig(ctx).Tracing())
	if err != nil {
		return nil, fmt.Errorf("failed to init tracing: %w", err)
	}
	c.cleanups = append(c.cleanups, srv.NewCleanup("tracing", func() error {
		tCtx, cancel := context.WithTimeout(context.Background(), tracingFlushTimeout)
		defer cancel()
		return shutdownTracing(tCtx)
	}))

	// 2. Storage. The catalog graph always lives in SQLite.
	db, err := sqlite.NewDB(ctx, c.app.GetDatabasePath())
	if err != nil {
		return nil, err
	}
	c.cleanups = append(c.cleanups, srv.NewCleanup("sqlite", db.Close))
	c.catalog = sqlite.NewCatalogRepo(db)

	sessions, err := c.initSessionStore(ctx, db)
	if err != nil {
		return nil, err
	}
	c.memory = memory.New(sessions, turnCfg.PersistPolicy())

	if err := c.initVectors(ctx); err != nil {
		return nil, err
	}

	// 3. Models
	c.embedder, err = rag.NewEmbedderFromConfig(config.NewEmbeddingConfig(ctx))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize embedder: %w", err)
	}
	c.cleanups = append(c.cleanups, srv.NewCleanup("embedder", func() error {
		c.embedder.Close()
		return nil
	}))

	c.generator, err = llm.NewGenerator(ctx, c.llm)
	if errors.Is(err, core.ErrNotConfigured) {
		logger.Info().Msg("no generation model configured, intents are parsed by rules")
	} else if err != nil {
		return nil, fmt.Errorf("failed to initialize LLM provider: %w", err)
	}

	// 4. Agents
	c.vocab = understanding.NewVocabulary(c.catalog, 0)
	understander := understanding.NewAgent(turnCfg.UnderstandingTimeout(),
		understanding.WithGenerator(c.generator),
		understanding.WithVocabulary(c.vocab),
	)
	retrievers := []core.Retriever{
		retrieval.NewGraphAgent(c.catalog, turnCfg.GraphTimeout(), fusionCfg.GraphLimit, turnCfg.AgentPolicy()),
		retrieval.NewSemanticAgent(c.embedder, c.vectors, turnCfg.SemanticTimeout(), fusionCfg.SemanticK, fusionCfg.SemanticMinSimilarity, turnCfg.AgentPolicy()),
	}
	engine, err := fusion.NewEngine(fusionCfg.Weights, fusionCfg.Size)
	if err != nil {
		return nil, err
	}

	// 5. Orchestration
	convCfg := conversation.NewConfig(turnCfg)
	c.orch = orchestrator.New(func(sessionID string) orchestrator.Conversation {
		return conversation.NewManager(sessionID, understander, retrievers, engine, c.memory, convCfg)
	}, c.app.ManagerIdleTTL)

	c.presenter = presenter.New(c.catalog, c.generator, c.llm.PhraseTimeout)
	c.router = command.NewRouter(c.memory)

	logger.Debug().
		Str("session_store", c.app.SessionStore).
		Str("vector_store", c.app.VectorStore).
		Dur("turn_timeout", convCfg.TurnTimeout).
		Dur("retrieval_bound", convCfg.RetrievalBound).
		Msg("components ready")
	return c, nil
}

func (c *components) initSessionStore(ctx context.Context, db *sql.DB) (core.SessionStore, error) {
	switch c.app.SessionStore {
	case config.StoreSQLite:
		return sqlite.NewSessionRepo(db), nil
	case config.StoreRedis:
		redisCfg := config.NewRedisConfig(ctx)
		client, err := redisstore.NewClient(ctx, redisCfg)
		if err != nil {
			return nil, err
		}
		c.cleanups = append(c.cleanups, srv.NewCleanup("redis", client.Close))
		return redisstore.NewSessionStore(client, redisCfg.KeyPrefix), nil
	case config.StoreMemory:
		log.FromCtx(ctx).Warn().Msg("sessions are kept in memory and lost on exit")
		return memstore.New(), nil
	default:
		return nil, fmt.Errorf("unknown session store: %s", c.app.SessionStore)
	}
}

func (c *components) initVectors(ctx context.Context) error {
	switch c.app.VectorStore {
	case config.VectorChromem:
		store, err := vector.NewChromem(c.app.GetVectorPath())
		if err != nil {
			return err
		}
		c.vectors = store
	case config.VectorPGVector:
		store, err := vector.NewPGVector(ctx, config.NewPostgresConfig(ctx))
		if err != nil {
			return err
		}
		c.cleanups = append(c.cleanups, srv.NewCleanup("pgvector", func() error {
			store.Close()
			return nil
		}))
		c.vectors = store
	default:
		return fmt.Errorf("unknown vector store: %s", c.app.VectorStore)
	}
	return nil
}

func (c *components) ingester() *catalog.Ingester {
	return catalog.NewIngester(c.catalog, c.vectors, c.embedder, c.vocab)
}

// close runs the cleanups; for commands that do not go through
// srv.ShutdownServices.
func (c *components) close(ctx context.Context) {
	srv.Stop(ctx, c.cleanups)
}
