package core

import "context"

// SessionStore is the durable memory store. AppendTurn is a compare-and-set
// on the session version: it returns ErrVersionConflict when the stored
// version differs from expectedVersion. A session that does not exist has
// version 0 and is created by its first append.
type SessionStore interface {
	LoadSession(ctx context.Context, sessionID string) (*Session, error)
	AppendTurn(ctx context.Context, sessionID string, turn Turn, profile PreferenceProfile, expectedVersion int64) (int64, error)
	ListSessions(ctx context.Context, limit int) ([]SessionSummary, error)
}

// GraphQuery selects related products. Category, brands, tags and names
// widen the match; the price bounds are hard filters applied in the store.
type GraphQuery struct {
	Category string
	Brands   []string
	Tags     []string
	// Names are matched as substrings of the product name.
	Names    []string
	Seeds    []string
	MinPrice *float64
	MaxPrice *float64
	Limit    int
}

type GraphHit struct {
	ProductID string
	Score     float64
	Evidence  Evidence
}

type GraphStore interface {
	QueryRelatedProducts(ctx context.Context, q GraphQuery) ([]GraphHit, error)
}

// Catalog is the read side of the product catalog used outside retrieval.
type Catalog interface {
	GetProducts(ctx context.Context, ids []string) ([]Product, error)
	Vocabulary(ctx context.Context) (Vocabulary, error)
	// CountProducts counts products matching all of the category, any of
	// the brands and the price bounds of q. Tags, names and seeds are
	// ignored.
	CountProducts(ctx context.Context, q GraphQuery) (int, error)
}

type CatalogWriter interface {
	UpsertProduct(ctx context.Context, p Product) error
	AddRelation(ctx context.Context, r Relation) error
	UpdateReviewSummary(ctx context.Context, s ReviewSummary) error
}

type ReviewHit struct {
	ReviewID   string
	ProductID  string
	Similarity float64
	Snippet    string
	Evidence   Evidence
}

// ReviewDocument is a review chunk ready for indexing.
type ReviewDocument struct {
	ID        string
	ProductID string
	Text      string
	Embedding []float32
	Evidence  Evidence
}

type VectorIndex interface {
	NearestReviews(ctx context.Context, embedding []float32, k int) ([]ReviewHit, error)
}

type VectorWriter interface {
	AddReviews(ctx context.Context, docs []ReviewDocument) error
}
