package conversation

import (
	"github.com/sandevgo/recomate/internal/core"
)

// Weights below this are dropped so profiles do not grow without bound.
const pruneBelow = 0.01

// ProfileUpdate learns from one responded turn. Every stored weight decays,
// then explicit signals from the intent and implicit signals from the top
// recommendations are added, and the result is clamped to [0, 1].
type ProfileUpdate struct {
	Decay        float64
	LearningRate float64
	ImplicitRate float64
	// ImplicitTop is how many recommendations feed implicit signals.
	ImplicitTop int
}

// Apply returns a new profile. tags maps product ids to their tag sets.
func (u ProfileUpdate) Apply(
	profile core.PreferenceProfile,
	intent core.Intent,
	recs core.RecommendationSet,
	tags map[string][]string,
) core.PreferenceProfile {
	signals := make(map[string]float64)

	for tag, w := range intent.Preferences {
		if t := core.NormalizeTag(tag); t != "" {
			signals[t] += u.LearningRate * w
		}
	}
	if intent.HasCategory() {
		signals[core.CategoryTag(intent.Category)] += u.LearningRate
	}
	for _, b := range intent.Constraints.Brands {
		signals[core.BrandTag(b)] += u.LearningRate
	}
	for _, ex := range intent.Constraints.Exclude {
		signals[core.NormalizeTag(ex)] -= u.LearningRate
	}

	top := recs
	if u.ImplicitTop >= 0 && len(top) > u.ImplicitTop {
		top = top[:u.ImplicitTop]
	}
	for _, rec := range top {
		for _, t := range tags[rec.ProductID] {
			signals[t] += u.ImplicitRate
		}
	}

	out := make(core.PreferenceProfile, len(profile)+len(signals))
	for tag, w := range profile {
		out[tag] = w * u.Decay
	}
	for tag, s := range signals {
		out[tag] += s
	}
	for tag, w := range out {
		w = max(0, min(1, w))
		if w < pruneBelow {
			delete(out, tag)
			continue
		}
		out[tag] = w
	}
	return out
}

// tagSets collects each candidate's tag set across available agent results.
func tagSets(results []core.RetrievalResult) map[string][]string {
	evidence := make(map[string]core.Evidence)
	for _, res := range results {
		if !res.Available() {
			continue
		}
		for _, c := range res.Candidates {
			evidence[c.ProductID] = evidence[c.ProductID].Merge(c.Evidence)
		}
	}
	out := make(map[string][]string, len(evidence))
	for id, ev := range evidence {
		out[id] = ev.TagSet()
	}
	return out
}
