package understanding

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/sandevgo/recomate/internal/core"
)

var ErrUnparseable = errors.New("unparseable intent")

const intentPrompt = `You extract shopping intent from a customer message for a product recommender.
Reply with one JSON object and nothing else. Schema:
{
  "kind": one of "general","comparison","counting","spec_search","filtered_search","review_search","complex_search",
  "category": one of the known categories or "",
  "min_price": number or null,
  "max_price": number or null,
  "brands": [brand names the customer wants],
  "exclude": [tags to avoid, brands as "brand:<name>"],
  "specs": [{"key": "ram|storage|display|battery|camera", "op": ">|<|>=|<=|=|contains", "value": number, "text": ""}],
  "preferences": {"<feature tag>": weight from -1 to 1},
  "products": [product names being compared, only for "comparison"],
  "sentiment": "neutral"|"positive"|"negative"
}
Known categories: %s
Known brands: %s
A keyword parser suggested: %s

Customer message: %s`

var validOps = map[string]bool{
	core.OpGT: true, core.OpLT: true, core.OpGTE: true, core.OpLTE: true, core.OpEQ: true, core.OpContains: true,
}

type llmIntent struct {
	Kind        string             `json:"kind"`
	Category    string             `json:"category"`
	MinPrice    *float64           `json:"min_price"`
	MaxPrice    *float64           `json:"max_price"`
	Brands      []string           `json:"brands"`
	Exclude     []string           `json:"exclude"`
	Specs       []core.SpecFilter  `json:"specs"`
	Preferences map[string]float64 `json:"preferences"`
	Products    []string           `json:"products"`
	Sentiment   string             `json:"sentiment"`
}

// LLMParser asks the generation model for a JSON intent, using the rule
// parser's output as a hint.
type LLMParser struct {
	gen core.Generator
}

func NewLLMParser(gen core.Generator) *LLMParser {
	return &LLMParser{gen: gen}
}

func (p *LLMParser) Parse(ctx context.Context, text string, vocab core.Vocabulary, hint core.Intent) (core.Intent, error) {
	hintJSON, _ := json.Marshal(hint)
	prompt := fmt.Sprintf(intentPrompt,
		strings.Join(vocab.Categories, ", "),
		strings.Join(vocab.Brands, ", "),
		hintJSON,
		text,
	)

	out, err := p.gen.Generate(ctx, prompt)
	if err != nil {
		return core.Intent{}, fmt.Errorf("failed to generate intent: %w", err)
	}
	return decodeIntent(out, hint, vocab)
}

// decodeIntent validates model output. Unknown enum values and categories
// outside the vocabulary fall back to the hint; a malformed object or an
// impossible price range is an error.
func decodeIntent(out string, hint core.Intent, vocab core.Vocabulary) (core.Intent, error) {
	raw, ok := extractJSON(out)
	if !ok {
		return core.Intent{}, fmt.Errorf("%w: no JSON object in %q", ErrUnparseable, truncate(out, 120))
	}

	var li llmIntent
	if err := json.Unmarshal([]byte(raw), &li); err != nil {
		return core.Intent{}, fmt.Errorf("%w: %v", ErrUnparseable, err)
	}

	if li.MinPrice != nil && *li.MinPrice < 0 || li.MaxPrice != nil && *li.MaxPrice < 0 {
		return core.Intent{}, fmt.Errorf("%w: negative price", ErrUnparseable)
	}
	if li.MinPrice != nil && li.MaxPrice != nil && *li.MinPrice > *li.MaxPrice {
		return core.Intent{}, fmt.Errorf("%w: min price above max price", ErrUnparseable)
	}

	intent := core.Intent{
		Kind:      hint.Kind,
		Query:     hint.Query,
		Category:  knownCategory(li.Category, hint.Category, vocab.Categories),
		Sentiment: hint.Sentiment,
		Products:  hint.Products,
		Constraints: core.Constraints{
			MinPrice: li.MinPrice,
			MaxPrice: li.MaxPrice,
			Brands:   nonEmpty(li.Brands),
			Exclude:  nonEmpty(li.Exclude),
		},
	}
	if kind, ok := core.ParseIntentKind(li.Kind); ok {
		intent.Kind = kind
	}
	switch s := core.Sentiment(strings.ToLower(li.Sentiment)); s {
	case core.SentimentNeutral, core.SentimentPositive, core.SentimentNegative:
		intent.Sentiment = s
	}
	if intent.Kind != core.IntentComparison {
		intent.Products = nil
	} else if names := nonEmpty(li.Products); len(names) >= minCompared && len(names) <= maxCompared {
		intent.Products = lowerAll(names)
	}

	for _, f := range li.Specs {
		if !validOps[f.Op] || f.Key == "" {
			continue
		}
		f.Key = core.NormalizeTag(f.Key)
		intent.Constraints.Specs = append(intent.Constraints.Specs, f)
	}

	for tag, w := range li.Preferences {
		tag = core.NormalizeTag(tag)
		if tag == "" {
			continue
		}
		if intent.Preferences == nil {
			intent.Preferences = map[string]float64{}
		}
		intent.Preferences[tag] = clampSigned(w)
	}

	return intent, nil
}

// knownCategory returns the catalog spelling of category. An empty or
// unconstrained category is kept empty; one the catalog does not have is
// replaced by fallback.
func knownCategory(category, fallback string, known []string) string {
	category = strings.TrimSpace(category)
	if category == "" || strings.EqualFold(category, core.CategoryUnconstrained) {
		return ""
	}
	for _, k := range known {
		if strings.EqualFold(k, category) {
			return k
		}
	}
	return fallback
}

// extractJSON returns the outermost {...} of s, tolerating code fences and
// prose around it.
func extractJSON(s string) (string, bool) {
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end <= start {
		return "", false
	}
	return s[start : end+1], true
}

func nonEmpty(in []string) []string {
	var out []string
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func lowerAll(in []string) []string {
	out := make([]string, len(in))
	for i, s := range in {
		out[i] = strings.ToLower(s)
	}
	return out
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
