package rag

import (
	"context"
	"fmt"
	"time"

	"github.com/dgraph-io/ristretto"
	"github.com/sandevgo/recomate/pkg/log"
)

// Model produces one embedding per text.
type Model interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Dimensions() int
}

// Passage is an embedded chunk of a longer text.
type Passage struct {
	Chunk
	Embedding []float32
}

// Embedder bounds model calls with a timeout, caches query embeddings and
// chunks passages before embedding them.
type Embedder struct {
	model   Model
	timeout time.Duration
	chunker *Chunker
	cache   *ristretto.Cache
}

type EmbedderOption func(*Embedder)

func WithTimeout(d time.Duration) EmbedderOption {
	return func(e *Embedder) { e.timeout = d }
}

func WithChunker(c *Chunker) EmbedderOption {
	return func(e *Embedder) { e.chunker = c }
}

// WithCache keeps up to size query embeddings in memory.
func WithCache(size int64) EmbedderOption {
	return func(e *Embedder) {
		if size <= 0 {
			return
		}
		cache, err := ristretto.NewCache(&ristretto.Config{
			NumCounters: size * 10,
			MaxCost:     size,
			BufferItems: 64,
		})
		if err == nil {
			e.cache = cache
		}
	}
}

func NewEmbedder(model Model, opts ...EmbedderOption) *Embedder {
	e := &Embedder{
		model:   model,
		timeout: 10 * time.Second,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.chunker == nil {
		e.chunker = NewChunker(ReviewChunkerConfig(0), nil)
	}
	return e
}

func (e *Embedder) Dimensions() int {
	return e.model.Dimensions()
}

// Embed returns the embedding of a query text.
func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if e.cache != nil {
		if v, ok := e.cache.Get(text); ok {
			return v.([]float32), nil
		}
	}

	emb, err := e.embedOne(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	if e.cache != nil {
		e.cache.Set(text, emb, 1)
	}
	return emb, nil
}

// EmbedPassage chunks text and embeds every chunk.
func (e *Embedder) EmbedPassage(ctx context.Context, text string) ([]Passage, error) {
	chunks := e.chunker.Split(text)
	out := make([]Passage, 0, len(chunks))

	for _, chunk := range chunks {
		log.FromCtx(ctx).Debug().Int("chunk", chunk.Index).Int("tokens", chunk.TokenSize).Msg("embedding chunk")
		emb, err := e.embedOne(ctx, chunk.Text)
		if err != nil {
			return nil, fmt.Errorf("failed to embed chunk %d: %w", chunk.Index, err)
		}
		out = append(out, Passage{Chunk: chunk, Embedding: emb})
	}
	return out, nil
}

func (e *Embedder) embedOne(ctx context.Context, text string) ([]float32, error) {
	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}
	return e.model.Embed(ctx, text)
}

func (e *Embedder) Close() {
	if e.cache != nil {
		e.cache.Close()
	}
}
