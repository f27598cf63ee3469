package core

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

const (
	SignalGraph      = "graph_affinity"
	SignalSemantic   = "semantic_similarity"
	SignalPreference = "preference_match"
)

// Signals is the fixed order used for weights and rationale.
var Signals = []string{SignalGraph, SignalSemantic, SignalPreference}

// Evidence is what an agent knows about a product. Price is nil when the
// agent could not tell.
type Evidence struct {
	Name      string            `json:"name,omitempty"`
	Brand     string            `json:"brand,omitempty"`
	Category  string            `json:"category,omitempty"`
	Price     *float64          `json:"price,omitempty"`
	Rating    float64           `json:"rating,omitempty"`
	Tags      []string          `json:"tags,omitempty"`
	Specs     map[string]string `json:"specs,omitempty"`
	Relations []string          `json:"relations,omitempty"`
	Snippets  []string          `json:"snippets,omitempty"`
}

// Merge fills gaps in e with what other knows. Values already set in e win.
func (e Evidence) Merge(other Evidence) Evidence {
	if e.Name == "" {
		e.Name = other.Name
	}
	if e.Brand == "" {
		e.Brand = other.Brand
	}
	if e.Category == "" {
		e.Category = other.Category
	}
	if e.Price == nil && other.Price != nil {
		p := *other.Price
		e.Price = &p
	}
	if e.Rating == 0 {
		e.Rating = other.Rating
	}
	e.Tags = unionStrings(e.Tags, other.Tags)
	e.Relations = unionStrings(e.Relations, other.Relations)
	e.Snippets = unionStrings(e.Snippets, other.Snippets)
	if len(other.Specs) > 0 {
		specs := make(map[string]string, len(e.Specs)+len(other.Specs))
		for k, v := range other.Specs {
			specs[k] = v
		}
		for k, v := range e.Specs {
			specs[k] = v
		}
		e.Specs = specs
	}
	return e
}

// TagSet returns the normalized tags a candidate can be matched on against a
// preference profile, including its category and brand.
func (e Evidence) TagSet() []string {
	tags := make([]string, 0, len(e.Tags)+2)
	if e.Category != "" {
		tags = append(tags, CategoryTag(e.Category))
	}
	if e.Brand != "" {
		tags = append(tags, BrandTag(e.Brand))
	}
	for _, t := range e.Tags {
		tags = append(tags, NormalizeTag(t))
	}
	return unionStrings(nil, tags)
}

// Candidate is a product surfaced by at least one retrieval agent.
type Candidate struct {
	ProductID string             `json:"product_id"`
	Scores    map[string]float64 `json:"scores"`
	Evidence  Evidence           `json:"evidence"`
}

type AgentStatus string

const (
	AgentOK          AgentStatus = "ok"
	AgentUnavailable AgentStatus = "unavailable"
	AgentTimeout     AgentStatus = "timeout"
)

// RetrievalResult is the explicit outcome of one agent call. An unavailable
// agent yields no candidates and a non-ok status, never an error return.
type RetrievalResult struct {
	Agent      string        `json:"agent"`
	Status     AgentStatus   `json:"status"`
	Candidates []Candidate   `json:"candidates"`
	Elapsed    time.Duration `json:"elapsed"`
	Err        error         `json:"-"`
}

func (r RetrievalResult) Available() bool {
	return r.Status == AgentOK
}

// PreferenceProfile maps tags to weights in [0, 1].
type PreferenceProfile map[string]float64

func (p PreferenceProfile) Clone() PreferenceProfile {
	out := make(PreferenceProfile, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}

type WeightedTag struct {
	Tag    string  `json:"tag"`
	Weight float64 `json:"weight"`
}

// Top returns up to n tags with the highest weight, ties by name.
func (p PreferenceProfile) Top(n int) []WeightedTag {
	out := make([]WeightedTag, 0, len(p))
	for k, v := range p {
		out = append(out, WeightedTag{Tag: k, Weight: v})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Weight != out[j].Weight {
			return out[i].Weight > out[j].Weight
		}
		return out[i].Tag < out[j].Tag
	})
	if n > 0 && len(out) > n {
		out = out[:n]
	}
	return out
}

func NormalizeTag(tag string) string {
	return strings.Join(strings.Fields(strings.ToLower(tag)), "_")
}

func CategoryTag(category string) string {
	return fmt.Sprintf("category:%s", NormalizeTag(category))
}

func BrandTag(brand string) string {
	return fmt.Sprintf("brand:%s", NormalizeTag(brand))
}

func unionStrings(a, b []string) []string {
	if len(b) == 0 {
		return a
	}
	seen := make(map[string]struct{}, len(a)+len(b))
	out := make([]string, 0, len(a)+len(b))
	for _, list := range [][]string{a, b} {
		for _, s := range list {
			if _, ok := seen[s]; ok || s == "" {
				continue
			}
			seen[s] = struct{}{}
			out = append(out, s)
		}
	}
	return out
}
