package catalog

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/sandevgo/recomate/internal/core"
	"github.com/sandevgo/recomate/internal/providers/rag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleCatalog = `
products:
  - id: shoe-1
    name: Trail Runner
    brand: Nike
    category: Shoes
    price: 89.99
    tags: [running, Trail]
    specs:
      weight: 280g
  - id: shoe-2
    name: Road Flyer
    brand: Adidas
    category: Shoes
    price: 120
relations:
  - from: shoe-1
    to: shoe-2
    kind: similar_to
    weight: 0.7
  - from: shoe-2
    to: shoe-1
    kind: bought_together
reviews:
  - id: r1
    product_id: shoe-1
    rating: 5
    text: "<p>Great grip, lightweight and waterproof.</p>"
  - product_id: shoe-1
    rating: 3
    title: Okay
    text: Not good on long runs, poor cushioning.
`

type fakeCatalog struct {
	products  []core.Product
	relations []core.Relation
	summaries []core.ReviewSummary
	err       error
}

func (f *fakeCatalog) UpsertProduct(ctx context.Context, p core.Product) error {
	if f.err != nil {
		return f.err
	}
	f.products = append(f.products, p)
	return nil
}

func (f *fakeCatalog) AddRelation(ctx context.Context, r core.Relation) error {
	f.relations = append(f.relations, r)
	return nil
}

func (f *fakeCatalog) UpdateReviewSummary(ctx context.Context, s core.ReviewSummary) error {
	f.summaries = append(f.summaries, s)
	return nil
}

type fakeVectors struct {
	docs []core.ReviewDocument
}

func (f *fakeVectors) AddReviews(ctx context.Context, docs []core.ReviewDocument) error {
	f.docs = append(f.docs, docs...)
	return nil
}

type fakeEmbedder struct{}

func (fakeEmbedder) EmbedPassage(ctx context.Context, text string) ([]rag.Passage, error) {
	return []rag.Passage{{Chunk: rag.Chunk{Text: text, Index: 0}, Embedding: []float32{1, 0}}}, nil
}

type countingInvalidator struct{ n int }

func (c *countingInvalidator) Invalidate() { c.n++ }

func TestLoad(t *testing.T) {
	tests := []struct {
		name    string
		doc     string
		wantErr string
	}{
		{name: "sample", doc: sampleCatalog},
		{name: "empty document", doc: ""},
		{name: "missing name", doc: "products:\n  - id: a\n    category: Shoes\n", wantErr: "Name"},
		{name: "unknown key", doc: "products:\n  - id: a\n    name: A\n    category: X\n    colour: red\n", wantErr: "colour"},
		{name: "rating out of range", doc: "products:\n  - id: a\n    name: A\n    category: X\n    rating: 7\n", wantErr: "Rating"},
		{
			name:    "dangling relation",
			doc:     "products:\n  - id: a\n    name: A\n    category: X\nrelations:\n  - {from: a, to: b, kind: similar_to}\n",
			wantErr: `unknown product "b"`,
		},
		{
			name:    "unknown relation kind",
			doc:     "products:\n  - id: a\n    name: A\n    category: X\nrelations:\n  - {from: a, to: a, kind: cousin_of}\n",
			wantErr: "unknown kind",
		},
		{
			name:    "duplicate product",
			doc:     "products:\n  - {id: a, name: A, category: X}\n  - {id: a, name: B, category: X}\n",
			wantErr: "duplicate product",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(strings.NewReader(tt.doc))
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestIngester_Ingest(t *testing.T) {
	file, err := Load(strings.NewReader(sampleCatalog))
	require.NoError(t, err)

	cat := &fakeCatalog{}
	vectors := &fakeVectors{}
	vocab := &countingInvalidator{}
	ing := NewIngester(cat, vectors, fakeEmbedder{}, vocab)

	report, err := ing.Ingest(context.Background(), file)
	require.NoError(t, err)

	assert.Equal(t, Report{Products: 2, Relations: 2, Reviews: 2, Chunks: 2}, report)
	assert.Equal(t, 1, vocab.n)

	require.Len(t, cat.products, 2)
	shoe := cat.products[0]
	assert.Equal(t, []string{"running", "trail", "lightweight", "waterproof"}, shoe.Tags)
	assert.InDelta(t, 4.0, shoe.Rating, 1e-9)
	assert.Equal(t, 2, shoe.ReviewCount)

	assert.Equal(t, 1.0, cat.relations[1].Weight, "missing weight defaults to 1")

	require.Len(t, cat.summaries, 1)
	assert.Equal(t, core.ReviewSummary{ProductID: "shoe-1", Count: 2, Average: 4, Positive: 1, Negative: 1}, cat.summaries[0])

	require.Len(t, vectors.docs, 2)
	assert.Equal(t, "r1#0", vectors.docs[0].ID)
	assert.Equal(t, "Great grip, lightweight and waterproof.", vectors.docs[0].Text)
	assert.Equal(t, "shoe-1-r1#0", vectors.docs[1].ID)
	assert.Equal(t, "Okay. Not good on long runs, poor cushioning.", vectors.docs[1].Text)
	require.NotNil(t, vectors.docs[0].Evidence.Price)
	assert.Equal(t, 89.99, *vectors.docs[0].Evidence.Price)
}

func TestIngester_StoreError(t *testing.T) {
	file, err := Load(strings.NewReader(sampleCatalog))
	require.NoError(t, err)

	cat := &fakeCatalog{err: errors.New("database is locked")}
	vocab := &countingInvalidator{}
	_, err = NewIngester(cat, &fakeVectors{}, fakeEmbedder{}, vocab).Ingest(context.Background(), file)
	assert.Error(t, err)
	assert.Zero(t, vocab.n)
}
