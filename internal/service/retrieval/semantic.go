package retrieval

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/sandevgo/recomate/internal/core"
	"github.com/sandevgo/recomate/pkg/retry"
)

const (
	SemanticAgentName = "semantic"
	maxSnippets       = 2
)

// SemanticAgent finds products whose reviews read like the query.
type SemanticAgent struct {
	embedder      core.Embedder
	index         core.VectorIndex
	timeout       time.Duration
	k             int
	minSimilarity float64
	retrier       *retry.Retrier
}

func NewSemanticAgent(
	embedder core.Embedder,
	index core.VectorIndex,
	timeout time.Duration,
	k int,
	minSimilarity float64,
	policy retry.Policy,
) *SemanticAgent {
	return &SemanticAgent{
		embedder:      embedder,
		index:         index,
		timeout:       timeout,
		k:             k,
		minSimilarity: minSimilarity,
		retrier:       retry.NewRetrier(policy),
	}
}

func (a *SemanticAgent) Name() string {
	return SemanticAgentName
}

func (a *SemanticAgent) Retrieve(ctx context.Context, intent core.Intent) core.RetrievalResult {
	return run(ctx, SemanticAgentName, a.timeout, a.retrier, func(ctx context.Context) ([]core.Candidate, error) {
		text := semanticQuery(intent)
		if text == "" {
			return nil, nil
		}

		emb, err := a.embedder.Embed(ctx, text)
		if err != nil {
			return nil, fmt.Errorf("failed to embed query: %w", err)
		}
		hits, err := a.index.NearestReviews(ctx, emb, a.k)
		if err != nil {
			return nil, fmt.Errorf("failed to query reviews: %w", err)
		}
		return a.collapse(hits), nil
	})
}

// collapse keeps one candidate per product at its best review similarity and
// drops weak matches.
func (a *SemanticAgent) collapse(hits []core.ReviewHit) []core.Candidate {
	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].Similarity != hits[j].Similarity {
			return hits[i].Similarity > hits[j].Similarity
		}
		return hits[i].ReviewID < hits[j].ReviewID
	})

	byProduct := make(map[string]int)
	var out []core.Candidate
	for _, h := range hits {
		sim := clamp01(h.Similarity)
		if sim < a.minSimilarity || h.ProductID == "" {
			continue
		}
		i, seen := byProduct[h.ProductID]
		if !seen {
			byProduct[h.ProductID] = len(out)
			out = append(out, core.Candidate{
				ProductID: h.ProductID,
				Scores:    map[string]float64{core.SignalSemantic: sim},
				Evidence:  h.Evidence,
			})
			i = len(out) - 1
		} else {
			out[i].Evidence = out[i].Evidence.Merge(h.Evidence)
		}
		if h.Snippet != "" && len(out[i].Evidence.Snippets) < maxSnippets {
			out[i].Evidence.Snippets = append(out[i].Evidence.Snippets, h.Snippet)
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		si, sj := out[i].Scores[core.SignalSemantic], out[j].Scores[core.SignalSemantic]
		if si != sj {
			return si > sj
		}
		return out[i].ProductID < out[j].ProductID
	})
	return out
}

// semanticQuery is the text embedded for the intent. The category helps
// short follow-ups ("something cheaper") land in the right neighbourhood.
func semanticQuery(intent core.Intent) string {
	text := strings.TrimSpace(intent.Query)
	if intent.HasCategory() && !strings.Contains(strings.ToLower(text), strings.ToLower(intent.Category)) {
		text = strings.TrimSpace(text + " " + intent.Category)
	}
	return text
}
