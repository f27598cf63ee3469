package retrieval

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/sandevgo/recomate/internal/core"
	"github.com/sandevgo/recomate/pkg/retry"
)

const GraphAgentName = "graph"

// GraphAgent scores products by their structural affinity to the intent:
// category, brand, tag overlap and relations to seed products.
type GraphAgent struct {
	store   core.GraphStore
	timeout time.Duration
	limit   int
	retrier *retry.Retrier
}

func NewGraphAgent(store core.GraphStore, timeout time.Duration, limit int, policy retry.Policy) *GraphAgent {
	return &GraphAgent{
		store:   store,
		timeout: timeout,
		limit:   limit,
		retrier: retry.NewRetrier(policy),
	}
}

func (a *GraphAgent) Name() string {
	return GraphAgentName
}

func (a *GraphAgent) Retrieve(ctx context.Context, intent core.Intent) core.RetrievalResult {
	return run(ctx, GraphAgentName, a.timeout, a.retrier, func(ctx context.Context) ([]core.Candidate, error) {
		hits, err := a.store.QueryRelatedProducts(ctx, graphQuery(intent, a.limit))
		if err != nil {
			return nil, fmt.Errorf("failed to query graph: %w", err)
		}

		candidates := make([]core.Candidate, 0, len(hits))
		for _, h := range hits {
			candidates = append(candidates, core.Candidate{
				ProductID: h.ProductID,
				Scores:    map[string]float64{core.SignalGraph: clamp01(h.Score)},
				Evidence:  h.Evidence,
			})
		}
		return candidates, nil
	})
}

// graphQuery maps an intent onto the graph store. Only liked tags are
// traversed; dislikes are left to fusion. A comparison looks up the
// products it names.
func graphQuery(intent core.Intent, limit int) core.GraphQuery {
	q := core.GraphQuery{
		Brands:   intent.Constraints.Brands,
		Seeds:    intent.Seeds,
		MinPrice: intent.Constraints.MinPrice,
		MaxPrice: intent.Constraints.MaxPrice,
		Limit:    limit,
	}
	if intent.HasCategory() {
		q.Category = intent.Category
	}
	if intent.Kind == core.IntentComparison {
		q.Names = intent.Products
	}
	for tag, w := range intent.Preferences {
		if w > 0 {
			q.Tags = append(q.Tags, tag)
		}
	}
	sort.Strings(q.Tags)
	return q
}
