package presenter

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/sandevgo/recomate/internal/core"
	"github.com/sandevgo/recomate/internal/service/conversation"
	"github.com/sandevgo/recomate/pkg/log"
)

const NoResultsMessage = "I couldn't find any products matching your criteria. Please try:\n" +
	"› Expanding your budget\n" +
	"› Choosing a different brand\n" +
	"› Exploring other categories\n" +
	"› Asking about specific products\n\n" +
	"**Tip**: try `show me smartphones` or `best laptops under $1000`"

const partialNote = "_Some sources were unavailable, so these results may be incomplete._"

var signalReasons = map[string]string{
	core.SignalGraph:      "fits what you asked for",
	core.SignalSemantic:   "reviewers describe it the way you did",
	core.SignalPreference: "matches what you liked before",
}

// Item is one recommendation with the catalog details to show for it.
type Item struct {
	Rank      int
	Product   core.Product
	Known     bool
	Score     float64
	Rationale []string
}

// Presenter turns a turn result into the text shown to the shopper. With a
// generation model the answer is phrased by it; otherwise, or when it fails,
// a fixed template is used.
type Presenter struct {
	catalog core.Catalog
	gen     core.Generator
	timeout time.Duration
}

func New(catalog core.Catalog, gen core.Generator, timeout time.Duration) *Presenter {
	return &Presenter{catalog: catalog, gen: gen, timeout: timeout}
}

// Present renders the answer for the intent kind. Counting questions lead
// with the catalog count and comparisons of known products get a table and
// a best pick.
func (p *Presenter) Present(ctx context.Context, input string, res core.TurnResult) string {
	if res.Status == core.TurnFailed {
		return core.FailureMessage
	}

	var count string
	if res.Intent.Kind == core.IntentCounting {
		count = p.countLine(ctx, res.Intent)
	}
	if len(res.Recommendations) == 0 {
		if count != "" {
			return count
		}
		return NoResultsMessage
	}

	items := p.Items(ctx, res.Recommendations)
	partial := slices.ContainsFunc(res.Degraded, func(s string) bool { return s != conversation.StageUnderstanding })

	if res.Intent.Kind == core.IntentComparison {
		if text, ok := Comparison(items, input, partial); ok {
			return text
		}
	}

	text := p.list(ctx, input, items, partial)
	if count != "" {
		text = count + "\n\n" + text
	}
	return text
}

func (p *Presenter) list(ctx context.Context, input string, items []Item, partial bool) string {
	if p.gen != nil {
		text, err := p.phrase(ctx, input, items)
		if err == nil {
			if partial {
				text += "\n\n" + partialNote
			}
			return text
		}
		log.FromCtx(ctx).Warn().Err(err).Msg("answer phrasing failed, using template")
	}
	return Template(items, partial)
}

// countLine states how many catalog products match the intent's category,
// brands and price bounds. It is empty when the catalog cannot count.
func (p *Presenter) countLine(ctx context.Context, intent core.Intent) string {
	if p.catalog == nil {
		return ""
	}
	q := core.GraphQuery{
		Brands:   intent.Constraints.Brands,
		MinPrice: intent.Constraints.MinPrice,
		MaxPrice: intent.Constraints.MaxPrice,
	}
	if intent.HasCategory() {
		q.Category = intent.Category
	}

	n, err := p.catalog.CountProducts(ctx, q)
	if err != nil {
		log.FromCtx(ctx).Warn().Err(err).Msg("failed to count products")
		return ""
	}

	noun := "products"
	if n == 1 {
		noun = "product"
	}
	if q.Category != "" {
		return fmt.Sprintf("I found **%d** %s in %s matching your request.", n, noun, q.Category)
	}
	return fmt.Sprintf("I found **%d** %s matching your request.", n, noun)
}

// Items joins recommendations with catalog products. Products the catalog
// cannot return are kept by id.
func (p *Presenter) Items(ctx context.Context, recs core.RecommendationSet) []Item {
	byID := make(map[string]core.Product, len(recs))
	if p.catalog != nil {
		products, err := p.catalog.GetProducts(ctx, recs.ProductIDs())
		if err != nil {
			log.FromCtx(ctx).Warn().Err(err).Msg("failed to load recommended products")
		}
		for _, prod := range products {
			byID[prod.ID] = prod
		}
	}

	items := make([]Item, 0, len(recs))
	for i, rec := range recs {
		prod, ok := byID[rec.ProductID]
		if !ok {
			prod = core.Product{ID: rec.ProductID, Name: rec.ProductID}
		}
		items = append(items, Item{
			Rank:      i + 1,
			Product:   prod,
			Known:     ok,
			Score:     rec.Score,
			Rationale: rec.Rationale,
		})
	}
	return items
}

func (p *Presenter) phrase(ctx context.Context, input string, items []Item) (string, error) {
	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	out, err := p.gen.Generate(ctx, phrasePrompt(input, items))
	if err != nil {
		return "", fmt.Errorf("failed to phrase answer: %w", err)
	}
	out = strings.TrimSpace(out)
	if out == "" {
		return "", fmt.Errorf("failed to phrase answer: empty output")
	}
	return out, nil
}

func phrasePrompt(input string, items []Item) string {
	var sb strings.Builder
	sb.WriteString("You are a shopping assistant. The shopper asked:\n")
	sb.WriteString(input)
	sb.WriteString("\n\nRecommend exactly these products, in this order, and nothing else. ")
	sb.WriteString("For each, say in one sentence why it fits. Use Markdown, keep prices as given, do not invent specs.\n\n")
	for _, it := range items {
		sb.WriteString(describe(it))
		sb.WriteString("\n")
	}
	return sb.String()
}

// Template renders items as a numbered Markdown list.
func Template(items []Item, partial bool) string {
	var sb strings.Builder
	if len(items) == 1 {
		sb.WriteString("Here is my top pick:\n\n")
	} else {
		sb.WriteString(fmt.Sprintf("Here are my top %d picks:\n\n", len(items)))
	}
	for _, it := range items {
		sb.WriteString(fmt.Sprintf("%d. **%s**", it.Rank, it.Product.Name))
		if details := details(it); details != "" {
			sb.WriteString(" - ")
			sb.WriteString(details)
		}
		sb.WriteString("\n")
		if reasons := reasons(it.Rationale); reasons != "" {
			sb.WriteString("   _")
			sb.WriteString(reasons)
			sb.WriteString("_\n")
		}
	}
	if partial {
		sb.WriteString("\n")
		sb.WriteString(partialNote)
	}
	return strings.TrimRight(sb.String(), "\n")
}

func describe(it Item) string {
	line := fmt.Sprintf("%d. %s", it.Rank, it.Product.Name)
	if d := details(it); d != "" {
		line += " | " + d
	}
	if len(it.Product.Tags) > 0 {
		line += " | tags: " + strings.Join(it.Product.Tags, ", ")
	}
	if r := reasons(it.Rationale); r != "" {
		line += " | why: " + r
	}
	return line
}

func details(it Item) string {
	if !it.Known {
		return ""
	}
	var parts []string
	if it.Product.Brand != "" {
		parts = append(parts, it.Product.Brand)
	}
	if it.Product.Price > 0 {
		parts = append(parts, fmt.Sprintf("$%.2f", it.Product.Price))
	}
	if it.Product.Rating > 0 {
		parts = append(parts, fmt.Sprintf("★ %.1f", it.Product.Rating))
	}
	return strings.Join(parts, ", ")
}

func reasons(rationale []string) string {
	out := make([]string, 0, len(rationale))
	for _, s := range rationale {
		if r, ok := signalReasons[s]; ok {
			out = append(out, r)
		}
	}
	if len(out) == 0 {
		return ""
	}
	text := strings.Join(out, "; ")
	return strings.ToUpper(text[:1]) + text[1:]
}
