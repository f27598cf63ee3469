package core

import (
	"slices"
	"strconv"
	"strings"
)

type IntentKind string

const (
	IntentGeneral        IntentKind = "general"
	IntentComparison     IntentKind = "comparison"
	IntentCounting       IntentKind = "counting"
	IntentSpecSearch     IntentKind = "spec_search"
	IntentFilteredSearch IntentKind = "filtered_search"
	IntentReviewSearch   IntentKind = "review_search"
	IntentComplexSearch  IntentKind = "complex_search"
)

var intentKinds = []IntentKind{
	IntentGeneral, IntentComparison, IntentCounting, IntentSpecSearch,
	IntentFilteredSearch, IntentReviewSearch, IntentComplexSearch,
}

func ParseIntentKind(s string) (IntentKind, bool) {
	k := IntentKind(strings.ToLower(strings.TrimSpace(s)))
	return k, slices.Contains(intentKinds, k)
}

type Sentiment string

const (
	SentimentNeutral  Sentiment = "neutral"
	SentimentPositive Sentiment = "positive"
	SentimentNegative Sentiment = "negative"
)

// SpecFilter is a hard constraint on a numeric or textual product spec,
// e.g. ram >= 8.
type SpecFilter struct {
	Key   string  `json:"key"`
	Op    string  `json:"op"`
	Value float64 `json:"value,omitempty"`
	Text  string  `json:"text,omitempty"`
}

const (
	OpGT       = ">"
	OpLT       = "<"
	OpGTE      = ">="
	OpLTE      = "<="
	OpEQ       = "="
	OpContains = "contains"
)

// Match reports whether a raw spec value satisfies the filter. Numeric
// values may carry units ("16GB", "6.1 inch").
func (f SpecFilter) Match(raw string) bool {
	if f.Op == OpContains {
		return strings.Contains(strings.ToLower(raw), strings.ToLower(f.Text))
	}
	if f.Text != "" && f.Op == OpEQ {
		return strings.EqualFold(strings.TrimSpace(raw), f.Text)
	}
	v, ok := SpecNumber(raw)
	if !ok {
		return false
	}
	switch f.Op {
	case OpGT:
		return v > f.Value
	case OpLT:
		return v < f.Value
	case OpGTE:
		return v >= f.Value
	case OpLTE:
		return v <= f.Value
	case OpEQ:
		return v == f.Value
	}
	return false
}

// SpecNumber is LeadingNumber with terabytes expressed in gigabytes, so
// "1TB" and "1024GB" compare equal.
func SpecNumber(raw string) (float64, bool) {
	v, ok := LeadingNumber(raw)
	if !ok {
		return 0, false
	}
	unit := strings.ToLower(strings.TrimLeft(strings.ReplaceAll(raw, ",", ""), "0123456789. "))
	if strings.HasPrefix(unit, "tb") {
		v *= 1024
	}
	return v, true
}

// LeadingNumber parses the first number in s, ignoring thousands separators.
func LeadingNumber(s string) (float64, bool) {
	s = strings.ReplaceAll(strings.TrimSpace(s), ",", "")
	end := 0
	for end < len(s) && (s[end] >= '0' && s[end] <= '9' || s[end] == '.') {
		end++
	}
	if end == 0 {
		return 0, false
	}
	v, err := strconv.ParseFloat(s[:end], 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// Constraints are hard: candidates violating any of them are dropped.
type Constraints struct {
	MinPrice *float64     `json:"min_price,omitempty"`
	MaxPrice *float64     `json:"max_price,omitempty"`
	Brands   []string     `json:"brands,omitempty"`
	Specs    []SpecFilter `json:"specs,omitempty"`
	Exclude  []string     `json:"exclude,omitempty"`
}

func (c Constraints) IsZero() bool {
	return c.MinPrice == nil && c.MaxPrice == nil && len(c.Brands) == 0 &&
		len(c.Specs) == 0 && len(c.Exclude) == 0
}

// Intent is the structured interpretation of one user input.
type Intent struct {
	Kind        IntentKind  `json:"kind"`
	Query       string      `json:"query"`
	Category    string      `json:"category,omitempty"`
	Constraints Constraints `json:"constraints"`
	// Preferences are soft, tag -> signed weight in [-1, 1].
	Preferences map[string]float64 `json:"preferences,omitempty"`
	Sentiment   Sentiment          `json:"sentiment"`
	// Products are the product names a comparison is about.
	Products []string `json:"products,omitempty"`
	// RefersTo is the seq of the prior turn this one refines, 0 for none.
	RefersTo int `json:"refers_to,omitempty"`
	// Seeds are product ids recommended by the referenced turn.
	Seeds          []string `json:"seeds,omitempty"`
	Degraded       bool     `json:"degraded,omitempty"`
	DegradedReason string   `json:"degraded_reason,omitempty"`
}

// DegradedIntent is the fallback when understanding times out or fails.
// The raw query is kept so semantic retrieval still has text to embed.
func DegradedIntent(query, reason string) Intent {
	return Intent{
		Kind:           IntentGeneral,
		Query:          query,
		Category:       CategoryUnconstrained,
		Sentiment:      SentimentNeutral,
		Degraded:       true,
		DegradedReason: reason,
	}
}

// HasCategory reports whether the intent narrows retrieval to a category.
func (i Intent) HasCategory() bool {
	return i.Category != "" && i.Category != CategoryUnconstrained
}

func Float(v float64) *float64 {
	return &v
}
