package understanding

import (
	"regexp"
	"slices"

	"github.com/sandevgo/recomate/internal/core"
)

// cheaperFactor lowers the inherited price ceiling on "cheaper" follow-ups.
const cheaperFactor = 0.8

var (
	continuationRe = regexp.MustCompile(`(?i)\b(cheaper|less expensive|more like (?:that|this|these|those|it)|similar|instead|those|these|same but|another one|other options)\b`)
	cheaperRe      = regexp.MustCompile(`(?i)\b(cheaper|less expensive|lower price)\b`)
)

// resolveContinuation links a follow-up ("something cheaper") to the last
// answered turn: it inherits that turn's category and constraints, and the
// products it recommended become graph seeds.
func resolveContinuation(intent core.Intent, session *core.Session) core.Intent {
	if !continuationRe.MatchString(intent.Query) {
		return intent
	}
	prev := session.LastResponded()
	if prev == nil {
		return intent
	}

	intent.RefersTo = prev.Seq
	intent.Seeds = prev.Recommendations.ProductIDs()

	if !intent.HasCategory() && prev.Intent.HasCategory() {
		intent.Category = prev.Intent.Category
	}
	intent.Constraints = inheritConstraints(intent.Constraints, prev.Intent.Constraints)

	if cheaperRe.MatchString(intent.Query) && intent.Constraints.MaxPrice != nil {
		if prev.Intent.Constraints.MaxPrice != nil && *intent.Constraints.MaxPrice == *prev.Intent.Constraints.MaxPrice {
			intent.Constraints.MaxPrice = core.Float(*intent.Constraints.MaxPrice * cheaperFactor)
		}
	}

	for tag, w := range prev.Intent.Preferences {
		if intent.Preferences == nil {
			intent.Preferences = map[string]float64{}
		}
		if _, ok := intent.Preferences[tag]; !ok {
			intent.Preferences[tag] = w
		}
	}
	return intent
}

// inheritConstraints keeps what the new turn states and fills the rest from
// the previous turn.
func inheritConstraints(cur, prev core.Constraints) core.Constraints {
	if cur.MinPrice == nil && prev.MinPrice != nil {
		cur.MinPrice = core.Float(*prev.MinPrice)
	}
	if cur.MaxPrice == nil && prev.MaxPrice != nil {
		cur.MaxPrice = core.Float(*prev.MaxPrice)
	}
	if len(cur.Brands) == 0 {
		cur.Brands = slices.Clone(prev.Brands)
	}
	if len(cur.Specs) == 0 {
		cur.Specs = slices.Clone(prev.Specs)
	}
	for _, ex := range prev.Exclude {
		if !slices.Contains(cur.Exclude, ex) {
			cur.Exclude = append(cur.Exclude, ex)
		}
	}
	if cur.MinPrice != nil && cur.MaxPrice != nil && *cur.MinPrice > *cur.MaxPrice {
		cur.MinPrice = nil
	}
	return cur
}
