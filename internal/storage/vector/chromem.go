package vector

import (
	"context"
	"fmt"
	"runtime"
	"sort"

	chromem "github.com/philippgille/chromem-go"
	"github.com/sandevgo/recomate/internal/core"
)

const reviewsCollection = "reviews"

// Chromem is an embedded review index. With a path it persists to disk and
// reloads on start.
type Chromem struct {
	db  *chromem.DB
	col *chromem.Collection
}

func NewChromem(path string) (*Chromem, error) {
	db := chromem.NewDB()
	if path != "" {
		var err error
		db, err = chromem.NewPersistentDB(path, true)
		if err != nil {
			return nil, fmt.Errorf("open chromem db: %w", err)
		}
	}

	// Embeddings are always supplied by the caller.
	col, err := db.GetOrCreateCollection(reviewsCollection, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("create collection: %w", err)
	}

	return &Chromem{db: db, col: col}, nil
}

func (c *Chromem) AddReviews(ctx context.Context, docs []core.ReviewDocument) error {
	if len(docs) == 0 {
		return nil
	}

	batch := make([]chromem.Document, 0, len(docs))
	for _, d := range docs {
		batch = append(batch, chromem.Document{
			ID:        d.ID,
			Content:   d.Text,
			Embedding: d.Embedding,
			Metadata:  encodeMetadata(d),
		})
	}

	if err := c.col.AddDocuments(ctx, batch, runtime.NumCPU()); err != nil {
		return fmt.Errorf("add documents: %w", err)
	}
	return nil
}

func (c *Chromem) NearestReviews(ctx context.Context, embedding []float32, k int) ([]core.ReviewHit, error) {
	// chromem-go requires nResults <= collection size
	n := min(k, c.col.Count())
	if n <= 0 {
		return nil, nil
	}

	results, err := c.col.QueryEmbedding(ctx, embedding, n, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("chromem query: %w", err)
	}

	hits := make([]core.ReviewHit, 0, len(results))
	for _, r := range results {
		hits = append(hits, core.ReviewHit{
			ReviewID:   r.ID,
			ProductID:  r.Metadata[metaProductID],
			Similarity: clampSimilarity(float64(r.Similarity)),
			Snippet:    r.Content,
			Evidence:   decodeEvidence(r.Metadata),
		})
	}
	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].Similarity != hits[j].Similarity {
			return hits[i].Similarity > hits[j].Similarity
		}
		return hits[i].ReviewID < hits[j].ReviewID
	})
	return hits, nil
}

func (c *Chromem) Count() int {
	return c.col.Count()
}
