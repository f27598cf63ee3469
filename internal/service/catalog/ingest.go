package catalog

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/sandevgo/recomate/internal/core"
	"github.com/sandevgo/recomate/internal/providers/rag"
	"github.com/sandevgo/recomate/internal/service/understanding"
	"github.com/sandevgo/recomate/pkg/conv"
	"github.com/sandevgo/recomate/pkg/log"
)

// A feature must be praised in at least this many reviews of a product to
// become one of its tags.
const minTagMentions = 1

type PassageEmbedder interface {
	EmbedPassage(ctx context.Context, text string) ([]rag.Passage, error)
}

type Invalidator interface {
	Invalidate()
}

type Report struct {
	Products  int `json:"products"`
	Relations int `json:"relations"`
	Reviews   int `json:"reviews"`
	Chunks    int `json:"chunks"`
	Skipped   int `json:"skipped"`
}

// Ingester loads catalog documents into the graph store and the review
// vector index.
type Ingester struct {
	catalog  core.CatalogWriter
	vectors  core.VectorWriter
	embedder PassageEmbedder
	vocab    Invalidator
}

func NewIngester(catalog core.CatalogWriter, vectors core.VectorWriter, embedder PassageEmbedder, vocab Invalidator) *Ingester {
	return &Ingester{
		catalog:  catalog,
		vectors:  vectors,
		embedder: embedder,
		vocab:    vocab,
	}
}

func (i *Ingester) Ingest(ctx context.Context, f *File) (Report, error) {
	logger := log.FromCtx(ctx)
	var report Report

	if err := f.Validate(); err != nil {
		return report, err
	}

	reviews := make(map[string][]reviewText)
	for idx, rev := range f.Reviews {
		text, err := reviewBody(rev)
		if err != nil || text == "" {
			logger.Warn().Err(err).Str("product_id", rev.ProductID).Int("review", idx).Msg("skipping unreadable review")
			report.Skipped++
			continue
		}
		id := rev.ID
		if id == "" {
			id = fmt.Sprintf("%s-r%d", rev.ProductID, idx)
		}
		reviews[rev.ProductID] = append(reviews[rev.ProductID], reviewText{id: id, rating: rev.Rating, text: text})
	}

	products := make(map[string]core.Product, len(f.Products))
	for _, p := range f.Products {
		p.Tags = mergeTags(p.Tags, reviewTags(reviews[p.ID]))
		if summary, ok := summarize(p.ID, reviews[p.ID]); ok {
			p.Rating = summary.Average
			p.ReviewCount = summary.Count
		}
		if err := i.catalog.UpsertProduct(ctx, p); err != nil {
			return report, err
		}
		products[p.ID] = p
		report.Products++
	}

	for _, rel := range f.Relations {
		if rel.Weight == 0 {
			rel.Weight = 1
		}
		if err := i.catalog.AddRelation(ctx, rel); err != nil {
			return report, err
		}
		report.Relations++
	}

	ids := make([]string, 0, len(reviews))
	for id := range reviews {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, productID := range ids {
		revs := reviews[productID]
		summary, _ := summarize(productID, revs)
		if err := i.catalog.UpdateReviewSummary(ctx, summary); err != nil {
			return report, err
		}

		docs, err := i.documents(ctx, products[productID], revs)
		if err != nil {
			return report, err
		}
		if len(docs) > 0 {
			if err := i.vectors.AddReviews(ctx, docs); err != nil {
				return report, fmt.Errorf("failed to index reviews of %s: %w", productID, err)
			}
		}
		report.Reviews += len(revs)
		report.Chunks += len(docs)
	}

	if i.vocab != nil {
		i.vocab.Invalidate()
	}

	logger.Info().
		Int("products", report.Products).
		Int("relations", report.Relations).
		Int("reviews", report.Reviews).
		Int("chunks", report.Chunks).
		Msg("catalog ingested")
	return report, nil
}

type reviewText struct {
	id     string
	rating float64
	text   string
}

func (i *Ingester) documents(ctx context.Context, p core.Product, revs []reviewText) ([]core.ReviewDocument, error) {
	ev := p.Evidence()
	var docs []core.ReviewDocument
	for _, rev := range revs {
		passages, err := i.embedder.EmbedPassage(ctx, rev.text)
		if err != nil {
			return nil, fmt.Errorf("failed to embed review %s: %w", rev.id, err)
		}
		for _, ps := range passages {
			docs = append(docs, core.ReviewDocument{
				ID:        fmt.Sprintf("%s#%d", rev.id, ps.Index),
				ProductID: p.ID,
				Text:      ps.Text,
				Embedding: ps.Embedding,
				Evidence:  ev,
			})
		}
	}
	return docs, nil
}

func reviewBody(rev core.Review) (string, error) {
	body := rev.Text
	if rev.Title != "" {
		body = rev.Title + ". " + body
	}
	return conv.HTMLToText(body)
}

// summarize averages the ratings of a product's reviews and counts their
// sentiment.
func summarize(productID string, revs []reviewText) (core.ReviewSummary, bool) {
	s := core.ReviewSummary{ProductID: productID, Count: len(revs)}
	if len(revs) == 0 {
		return s, false
	}
	var total float64
	for _, r := range revs {
		total += r.rating
		switch understanding.DetectSentiment(r.text) {
		case core.SentimentPositive:
			s.Positive++
		case core.SentimentNegative:
			s.Negative++
		}
	}
	s.Average = total / float64(len(revs))
	return s, true
}

// reviewTags returns the features praised across reviews, sorted.
func reviewTags(revs []reviewText) []string {
	mentions := make(map[string]int)
	for _, r := range revs {
		for tag, w := range understanding.ExtractFeatures(r.text) {
			if w > 0 {
				mentions[tag]++
			}
		}
	}
	var out []string
	for tag, n := range mentions {
		if n >= minTagMentions {
			out = append(out, tag)
		}
	}
	sort.Strings(out)
	return out
}

func mergeTags(a, b []string) []string {
	seen := make(map[string]struct{}, len(a)+len(b))
	out := make([]string, 0, len(a)+len(b))
	for _, t := range append(append([]string{}, a...), b...) {
		t = core.NormalizeTag(strings.TrimSpace(t))
		if _, ok := seen[t]; ok || t == "" {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}
