package vector

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
	pgxvec "github.com/pgvector/pgvector-go/pgx"
	"github.com/sandevgo/recomate/internal/config"
	"github.com/sandevgo/recomate/internal/core"
)

// PGVector keeps review chunks in Postgres with a pgvector column and
// ranks them by cosine distance.
type PGVector struct {
	pool *pgxpool.Pool
}

func NewPGVector(ctx context.Context, cfg *config.PostgresConfig) (*PGVector, error) {
	if err := ensureSchema(ctx, cfg); err != nil {
		return nil, err
	}

	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	poolCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		return pgxvec.RegisterTypes(ctx, conn)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	return &PGVector{pool: pool}, nil
}

// ensureSchema runs on a plain connection: the vector type must exist
// before pooled connections can register it.
func ensureSchema(ctx context.Context, cfg *config.PostgresConfig) error {
	conn, err := pgx.Connect(ctx, cfg.DSN)
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	defer conn.Close(ctx)

	stmts := []string{
		`CREATE EXTENSION IF NOT EXISTS vector`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS review_chunks (
			id         TEXT PRIMARY KEY,
			product_id TEXT NOT NULL,
			content    TEXT NOT NULL,
			name       TEXT NOT NULL DEFAULT '',
			brand      TEXT NOT NULL DEFAULT '',
			category   TEXT NOT NULL DEFAULT '',
			price      DOUBLE PRECISION,
			rating     DOUBLE PRECISION NOT NULL DEFAULT 0,
			tags       TEXT[] NOT NULL DEFAULT '{}',
			embedding  vector(%d) NOT NULL
		)`, cfg.Dimensions),
		`CREATE INDEX IF NOT EXISTS review_chunks_embedding_idx
			ON review_chunks USING hnsw (embedding vector_cosine_ops)`,
	}
	for _, stmt := range stmts {
		if _, err := conn.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}

func (p *PGVector) AddReviews(ctx context.Context, docs []core.ReviewDocument) error {
	batch := &pgx.Batch{}
	for _, d := range docs {
		tags := d.Evidence.Tags
		if tags == nil {
			tags = []string{}
		}
		batch.Queue(
			`INSERT INTO review_chunks (id, product_id, content, name, brand, category, price, rating, tags, embedding)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
			ON CONFLICT (id) DO UPDATE SET
				product_id = EXCLUDED.product_id, content = EXCLUDED.content, name = EXCLUDED.name,
				brand = EXCLUDED.brand, category = EXCLUDED.category, price = EXCLUDED.price,
				rating = EXCLUDED.rating, tags = EXCLUDED.tags, embedding = EXCLUDED.embedding`,
			d.ID, d.ProductID, d.Text, d.Evidence.Name, d.Evidence.Brand, d.Evidence.Category,
			d.Evidence.Price, d.Evidence.Rating, tags, pgvector.NewVector(d.Embedding),
		)
	}

	if err := p.pool.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("insert review chunks: %w", err)
	}
	return nil
}

func (p *PGVector) NearestReviews(ctx context.Context, embedding []float32, k int) ([]core.ReviewHit, error) {
	rows, err := p.pool.Query(ctx,
		`SELECT id, product_id, content, name, brand, category, price, rating, tags,
			1 - (embedding <=> $1) AS similarity
		FROM review_chunks
		ORDER BY embedding <=> $1, id
		LIMIT $2`,
		pgvector.NewVector(embedding), k)
	if err != nil {
		return nil, fmt.Errorf("query review chunks: %w", err)
	}
	defer rows.Close()

	var hits []core.ReviewHit
	for rows.Next() {
		var h core.ReviewHit
		var similarity float64
		if err := rows.Scan(&h.ReviewID, &h.ProductID, &h.Snippet,
			&h.Evidence.Name, &h.Evidence.Brand, &h.Evidence.Category,
			&h.Evidence.Price, &h.Evidence.Rating, &h.Evidence.Tags, &similarity); err != nil {
			return nil, fmt.Errorf("scan review chunk: %w", err)
		}
		h.Similarity = clampSimilarity(similarity)
		hits = append(hits, h)
	}
	return hits, rows.Err()
}

func (p *PGVector) Close() {
	p.pool.Close()
}
