package fusion

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/sandevgo/recomate/internal/core"
)

const weightTolerance = 1e-6

// rationaleShare is how close a signal's contribution must come to the
// dominant one to be named in the rationale.
const rationaleShare = 0.5

// Engine merges agent outputs into one ranked, constraint-safe
// recommendation set.
type Engine struct {
	weights map[string]float64
	size    int
}

// NewEngine takes weights in core.Signals order.
func NewEngine(weights []float64, size int) (*Engine, error) {
	if len(weights) != len(core.Signals) {
		return nil, fmt.Errorf("need %d fusion weights, got %d", len(core.Signals), len(weights))
	}
	sum := 0.0
	w := make(map[string]float64, len(weights))
	for i, v := range weights {
		if v < 0 || v > 1 || math.IsNaN(v) {
			return nil, fmt.Errorf("fusion weight %v out of [0, 1]", v)
		}
		w[core.Signals[i]] = v
		sum += v
	}
	if math.Abs(sum-1) > weightTolerance {
		return nil, fmt.Errorf("fusion weights sum to %v, want 1", sum)
	}
	if size < 1 {
		return nil, errors.New("recommendation size must be at least 1")
	}
	return &Engine{weights: w, size: size}, nil
}

type scored struct {
	core.Candidate
	final float64
}

func (e *Engine) Fuse(results []core.RetrievalResult, intent core.Intent, profile core.PreferenceProfile) core.RecommendationSet {
	candidates := union(results)
	norm := ProfileNorm(profile)

	ranked := make([]scored, 0, len(candidates))
	for _, c := range candidates {
		if !Satisfies(c.Evidence, intent.Constraints) {
			continue
		}
		c.Scores[core.SignalPreference] = PreferenceMatch(c.Evidence.TagSet(), profile, norm)

		final := 0.0
		for _, s := range core.Signals {
			final += e.weights[s] * c.Scores[s]
		}
		ranked = append(ranked, scored{Candidate: c, final: final})
	}

	sort.Slice(ranked, func(i, j int) bool {
		a, b := ranked[i], ranked[j]
		if a.final != b.final {
			return a.final > b.final
		}
		if ga, gb := a.Scores[core.SignalGraph], b.Scores[core.SignalGraph]; ga != gb {
			return ga > gb
		}
		return a.ProductID < b.ProductID
	})
	if len(ranked) > e.size {
		ranked = ranked[:e.size]
	}

	out := make(core.RecommendationSet, 0, len(ranked))
	for _, r := range ranked {
		out = append(out, core.Recommendation{
			ProductID: r.ProductID,
			Score:     r.final,
			Rationale: e.rationale(r.Scores),
			Signals:   r.Scores,
		})
	}
	return out
}

// union merges candidates from available agents by product id. Every signal
// starts at 0; an agent may only raise the signals it reports.
func union(results []core.RetrievalResult) []core.Candidate {
	byID := make(map[string]*core.Candidate)
	var order []string

	for _, res := range results {
		if !res.Available() {
			continue
		}
		for _, c := range res.Candidates {
			if c.ProductID == "" {
				continue
			}
			merged, ok := byID[c.ProductID]
			if !ok {
				merged = &core.Candidate{
					ProductID: c.ProductID,
					Scores:    make(map[string]float64, len(core.Signals)),
				}
				for _, s := range core.Signals {
					merged.Scores[s] = 0
				}
				byID[c.ProductID] = merged
				order = append(order, c.ProductID)
			}
			for _, s := range []string{core.SignalGraph, core.SignalSemantic} {
				if v, ok := c.Scores[s]; ok {
					merged.Scores[s] = max(merged.Scores[s], clamp01(v))
				}
			}
			merged.Evidence = merged.Evidence.Merge(c.Evidence)
		}
	}

	out := make([]core.Candidate, 0, len(order))
	for _, id := range order {
		out = append(out, *byID[id])
	}
	return out
}

// rationale names the dominant signal and any other signal contributing at
// least half as much, strongest first.
func (e *Engine) rationale(scores map[string]float64) []string {
	type contribution struct {
		signal string
		value  float64
	}
	contribs := make([]contribution, 0, len(core.Signals))
	top := 0.0
	for _, s := range core.Signals {
		v := e.weights[s] * scores[s]
		contribs = append(contribs, contribution{signal: s, value: v})
		top = max(top, v)
	}
	if top == 0 {
		return []string{}
	}

	sort.SliceStable(contribs, func(i, j int) bool {
		return contribs[i].value > contribs[j].value
	})

	out := make([]string, 0, len(contribs))
	for _, c := range contribs {
		if c.value > 0 && c.value >= rationaleShare*top {
			out = append(out, c.signal)
		}
	}
	return out
}

// ProfileNorm is the Euclidean norm of the profile weights. Keys are summed
// in sorted order so the result is bit-identical across calls.
func ProfileNorm(profile core.PreferenceProfile) float64 {
	keys := make([]string, 0, len(profile))
	for k := range profile {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var sum float64
	for _, k := range keys {
		sum += profile[k] * profile[k]
	}
	return math.Sqrt(sum)
}

// PreferenceMatch is the cosine between the candidate's binary tag vector
// and the profile's weight vector, norm being ProfileNorm(profile). Profile
// weights are non-negative, so the result is in [0, 1].
func PreferenceMatch(tags []string, profile core.PreferenceProfile, norm float64) float64 {
	if len(tags) == 0 || len(profile) == 0 || norm == 0 {
		return 0
	}

	sorted := append([]string(nil), tags...)
	sort.Strings(sorted)

	var dot float64
	for _, t := range sorted {
		dot += profile[t]
	}
	return clamp01(dot / (math.Sqrt(float64(len(sorted))) * norm))
}

// Satisfies reports whether evidence meets every hard constraint. An
// attribute a constraint needs but no agent reported counts as a violation.
func Satisfies(ev core.Evidence, c core.Constraints) bool {
	if c.MinPrice != nil || c.MaxPrice != nil {
		if ev.Price == nil {
			return false
		}
		if c.MinPrice != nil && *ev.Price < *c.MinPrice {
			return false
		}
		if c.MaxPrice != nil && *ev.Price > *c.MaxPrice {
			return false
		}
	}

	if len(c.Brands) > 0 {
		ok := false
		for _, b := range c.Brands {
			if ev.Brand != "" && strings.EqualFold(b, ev.Brand) {
				ok = true
				break
			}
		}
		if !ok {
			return false
		}
	}

	for _, f := range c.Specs {
		raw, ok := specValue(ev.Specs, f.Key)
		if !ok || !f.Match(raw) {
			return false
		}
	}

	if len(c.Exclude) > 0 {
		tags := ev.TagSet()
		for _, ex := range c.Exclude {
			ex = normalizeExclusion(ex)
			for _, t := range tags {
				if t == ex {
					return false
				}
			}
		}
	}
	return true
}

func specValue(specs map[string]string, key string) (string, bool) {
	if v, ok := specs[key]; ok {
		return v, true
	}
	want := core.NormalizeTag(key)
	keys := make([]string, 0, len(specs))
	for k := range specs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if core.NormalizeTag(k) == want {
			return specs[k], true
		}
	}
	return "", false
}

// normalizeExclusion keeps a "brand:" or "category:" prefix and normalizes
// the value after it.
func normalizeExclusion(ex string) string {
	if prefix, value, ok := strings.Cut(ex, ":"); ok {
		return strings.ToLower(strings.TrimSpace(prefix)) + ":" + core.NormalizeTag(value)
	}
	return core.NormalizeTag(ex)
}

func clamp01(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return max(0, min(1, v))
}
