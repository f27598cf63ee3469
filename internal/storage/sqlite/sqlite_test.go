package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"

	"github.com/sandevgo/recomate/internal/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := NewDB(context.Background(), filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func respondedTurn(seq int, input string, ids ...string) core.Turn {
	recs := make(core.RecommendationSet, 0, len(ids))
	for i, id := range ids {
		recs = append(recs, core.Recommendation{ProductID: id, Score: 1 - float64(i)/10, Rationale: []string{core.SignalGraph}})
	}
	return core.Turn{
		Seq:             seq,
		Input:           input,
		Intent:          core.Intent{Kind: core.IntentGeneral, Query: input, Category: "shoes"},
		Recommendations: recs,
		Status:          core.TurnResponded,
	}
}

func TestSessionRepo_AppendAndLoad(t *testing.T) {
	ctx := context.Background()
	repo := NewSessionRepo(newTestDB(t))

	_, err := repo.LoadSession(ctx, "s1")
	assert.ErrorIs(t, err, core.ErrSessionNotFound)

	v, err := repo.AppendTurn(ctx, "s1", respondedTurn(1, "running shoes under $50", "p1", "p2"), core.PreferenceProfile{"running": 0.3}, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(1), v)

	v, err = repo.AppendTurn(ctx, "s1", respondedTurn(2, "cheaper ones", "p3"), core.PreferenceProfile{"running": 0.5}, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(2), v)

	s, err := repo.LoadSession(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), s.Version)
	assert.Equal(t, "running shoes under $50", s.Title)
	assert.Equal(t, 0.5, s.Profile["running"])
	require.Len(t, s.Turns, 2)
	assert.Equal(t, []string{"p1", "p2"}, s.Turns[0].Recommendations.ProductIDs())
	assert.Equal(t, "shoes", s.Turns[0].Intent.Category)
	assert.Equal(t, 3, s.NextSeq())
}

func TestSessionRepo_StaleVersionConflicts(t *testing.T) {
	ctx := context.Background()
	repo := NewSessionRepo(newTestDB(t))

	_, err := repo.AppendTurn(ctx, "s1", respondedTurn(1, "a"), nil, 0)
	require.NoError(t, err)

	_, err = repo.AppendTurn(ctx, "s1", respondedTurn(1, "b"), nil, 0)
	assert.ErrorIs(t, err, core.ErrVersionConflict)

	_, err = repo.AppendTurn(ctx, "s1", respondedTurn(2, "c"), nil, 5)
	assert.ErrorIs(t, err, core.ErrVersionConflict)
}

func TestSessionRepo_ConcurrentAppendExactlyOneWins(t *testing.T) {
	ctx := context.Background()
	repo := NewSessionRepo(newTestDB(t))

	_, err := repo.AppendTurn(ctx, "s1", respondedTurn(1, "first"), nil, 0)
	require.NoError(t, err)

	const writers = 8
	var wg sync.WaitGroup
	errs := make([]error, writers)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = repo.AppendTurn(ctx, "s1", respondedTurn(2, "second"), nil, 1)
		}(i)
	}
	wg.Wait()

	wins := 0
	for _, err := range errs {
		switch {
		case err == nil:
			wins++
		case errors.Is(err, core.ErrVersionConflict):
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, wins)

	s, err := repo.LoadSession(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), s.Version)
	assert.Len(t, s.Turns, 2)
}

func TestSessionRepo_ListSessions(t *testing.T) {
	ctx := context.Background()
	repo := NewSessionRepo(newTestDB(t))

	for _, id := range []string{"a", "b"} {
		_, err := repo.AppendTurn(ctx, id, respondedTurn(1, "hello "+id), nil, 0)
		require.NoError(t, err)
	}
	_, err := repo.AppendTurn(ctx, "a", respondedTurn(2, "again"), nil, 1)
	require.NoError(t, err)

	list, err := repo.ListSessions(ctx, 10)
	require.NoError(t, err)
	require.Len(t, list, 2)

	counts := map[string]int{}
	for _, s := range list {
		counts[s.ID] = s.Turns
	}
	assert.Equal(t, map[string]int{"a": 2, "b": 1}, counts)
}

func seedCatalog(t *testing.T, repo *CatalogRepo) {
	t.Helper()
	ctx := context.Background()
	products := []core.Product{
		{ID: "p1", Name: "Trail Runner", Brand: "Nike", Category: "Shoes", Price: 45, Rating: 4.5, Tags: []string{"running", "trail"}},
		{ID: "p2", Name: "Road Racer", Brand: "Adidas", Category: "Shoes", Price: 80, Rating: 4.0, Tags: []string{"running"}},
		{ID: "p3", Name: "Casual Slip-on", Brand: "Vans", Category: "Shoes", Price: 40, Rating: 3.5, Tags: []string{"casual"}},
		{ID: "p4", Name: "Running Socks", Brand: "Nike", Category: "Accessories", Price: 10, Rating: 4.8, Tags: []string{"running"}},
		{ID: "p5", Name: "Laptop Pro", Brand: "Acme", Category: "Laptops", Price: 1500, Rating: 4.9, Specs: map[string]string{"ram": "16GB"}},
	}
	for _, p := range products {
		require.NoError(t, repo.UpsertProduct(ctx, p))
	}
	require.NoError(t, repo.AddRelation(ctx, core.Relation{From: "p1", To: "p4", Kind: core.RelationBoughtTogether, Weight: 0.9}))
}

func TestCatalogRepo_QueryRelatedProducts(t *testing.T) {
	ctx := context.Background()
	repo := NewCatalogRepo(newTestDB(t))
	seedCatalog(t, repo)

	hits, err := repo.QueryRelatedProducts(ctx, core.GraphQuery{Category: "shoes", Tags: []string{"running"}, Limit: 10})
	require.NoError(t, err)
	require.NotEmpty(t, hits)

	ids := make([]string, 0, len(hits))
	for _, h := range hits {
		assert.GreaterOrEqual(t, h.Score, 0.0)
		assert.LessOrEqual(t, h.Score, 1.0)
		ids = append(ids, h.ProductID)
	}
	assert.Equal(t, "p1", ids[0], "best rated running shoe first")
	assert.NotContains(t, ids, "p5")

	require.NotNil(t, hits[0].Evidence.Price)
	assert.Equal(t, 45.0, *hits[0].Evidence.Price)
	assert.Equal(t, "Nike", hits[0].Evidence.Brand)
}

func TestCatalogRepo_QuerySeedsPullRelated(t *testing.T) {
	ctx := context.Background()
	repo := NewCatalogRepo(newTestDB(t))
	seedCatalog(t, repo)

	hits, err := repo.QueryRelatedProducts(ctx, core.GraphQuery{Category: "laptops", Seeds: []string{"p1"}, Limit: 10})
	require.NoError(t, err)

	var socks *core.GraphHit
	for i := range hits {
		assert.NotEqual(t, "p1", hits[i].ProductID, "seeds are not re-recommended")
		if hits[i].ProductID == "p4" {
			socks = &hits[i]
		}
	}
	require.NotNil(t, socks)
	assert.Contains(t, socks.Evidence.Relations, "bought_together:p1")
}

func TestCatalogRepo_Deterministic(t *testing.T) {
	ctx := context.Background()
	repo := NewCatalogRepo(newTestDB(t))
	seedCatalog(t, repo)

	q := core.GraphQuery{Category: core.CategoryUnconstrained, Limit: 3}
	first, err := repo.QueryRelatedProducts(ctx, q)
	require.NoError(t, err)
	second, err := repo.QueryRelatedProducts(ctx, q)
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Len(t, first, 3)
}

func TestCatalogRepo_ProductsAndVocabulary(t *testing.T) {
	ctx := context.Background()
	repo := NewCatalogRepo(newTestDB(t))
	seedCatalog(t, repo)

	products, err := repo.GetProducts(ctx, []string{"p5", "missing", "p1"})
	require.NoError(t, err)
	require.Len(t, products, 2)
	assert.Equal(t, "p5", products[0].ID)
	assert.Equal(t, "16GB", products[0].Specs["ram"])
	assert.Equal(t, []string{"running", "trail"}, products[1].Tags)

	require.NoError(t, repo.UpdateReviewSummary(ctx, core.ReviewSummary{ProductID: "p1", Count: 2, Average: 3}))
	products, err = repo.GetProducts(ctx, []string{"p1"})
	require.NoError(t, err)
	assert.Equal(t, 3.0, products[0].Rating)
	assert.Equal(t, 2, products[0].ReviewCount)

	vocab, err := repo.Vocabulary(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"Acme", "Adidas", "Nike", "Vans"}, vocab.Brands)
	assert.Equal(t, []string{"Accessories", "Laptops", "Shoes"}, vocab.Categories)
}

func TestCatalogRepo_QueryPriceBounds(t *testing.T) {
	ctx := context.Background()
	repo := NewCatalogRepo(newTestDB(t))

	for i := range 60 {
		require.NoError(t, repo.UpsertProduct(ctx, core.Product{
			ID: fmt.Sprintf("premium-%02d", i), Name: "Premium Runner", Brand: "Nike",
			Category: "Shoes", Price: 120, Rating: 4.8,
		}))
	}
	require.NoError(t, repo.UpsertProduct(ctx, core.Product{
		ID: "cheap", Name: "Budget Runner", Brand: "Vans", Category: "Shoes", Price: 40, Rating: 3.5,
	}))
	require.NoError(t, repo.AddRelation(ctx, core.Relation{From: "cheap", To: "premium-00", Kind: core.RelationSimilar, Weight: 1}))

	tests := []struct {
		name    string
		query   core.GraphQuery
		wantIDs []string
	}{
		{
			name:    "max price keeps the cheap one",
			query:   core.GraphQuery{Category: "shoes", MaxPrice: core.Float(50), Limit: 5},
			wantIDs: []string{"cheap"},
		},
		{
			name:    "related products over the bound are skipped",
			query:   core.GraphQuery{Seeds: []string{"cheap"}, MaxPrice: core.Float(50), Limit: 5},
			wantIDs: []string{},
		},
		{
			name:    "min price excludes it",
			query:   core.GraphQuery{Category: "shoes", MinPrice: core.Float(100), Limit: 3},
			wantIDs: []string{"premium-00", "premium-01", "premium-02"},
		},
		{
			name:    "bounds with nothing in range",
			query:   core.GraphQuery{MinPrice: core.Float(50), MaxPrice: core.Float(60), Limit: 5},
			wantIDs: []string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hits, err := repo.QueryRelatedProducts(ctx, tt.query)
			require.NoError(t, err)
			ids := make([]string, 0, len(hits))
			for _, h := range hits {
				ids = append(ids, h.ProductID)
			}
			assert.Equal(t, tt.wantIDs, ids)
		})
	}
}

func TestCatalogRepo_QueryByName(t *testing.T) {
	ctx := context.Background()
	repo := NewCatalogRepo(newTestDB(t))
	seedCatalog(t, repo)

	hits, err := repo.QueryRelatedProducts(ctx, core.GraphQuery{Names: []string{"road racer", "LAPTOP PRO"}, Limit: 10})
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, "p2", hits[0].ProductID)
	assert.Equal(t, "p5", hits[1].ProductID)
	for _, h := range hits {
		assert.GreaterOrEqual(t, h.Score, nameMatchFloor)
	}

	hits, err = repo.QueryRelatedProducts(ctx, core.GraphQuery{Names: []string{"%"}, Limit: 10})
	require.NoError(t, err)
	assert.Empty(t, hits, "wildcards in names are literal")
}

func TestCatalogRepo_CountProducts(t *testing.T) {
	ctx := context.Background()
	repo := NewCatalogRepo(newTestDB(t))
	seedCatalog(t, repo)

	tests := []struct {
		name  string
		query core.GraphQuery
		want  int
	}{
		{name: "everything", query: core.GraphQuery{}, want: 5},
		{name: "unconstrained category", query: core.GraphQuery{Category: core.CategoryUnconstrained}, want: 5},
		{name: "category", query: core.GraphQuery{Category: "shoes"}, want: 3},
		{name: "category and brand", query: core.GraphQuery{Category: "shoes", Brands: []string{"nike"}}, want: 1},
		{name: "any of the brands", query: core.GraphQuery{Brands: []string{"Nike", "Vans"}}, want: 3},
		{name: "price ceiling", query: core.GraphQuery{Category: "Shoes", MaxPrice: core.Float(45)}, want: 2},
		{name: "tags are ignored", query: core.GraphQuery{Category: "Shoes", Tags: []string{"casual"}}, want: 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := repo.CountProducts(ctx, tt.query)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
