package understanding

import (
	"regexp"
	"slices"
	"strconv"
	"strings"

	"github.com/sandevgo/recomate/internal/core"
)

const (
	currency = `[$₹€£]?`
	number   = `(\d{1,3}(?:,\d{3})+|\d+(?:\.\d+)?)(k)?\b`
)

var (
	betweenRe = regexp.MustCompile(`between\s*` + currency + `\s*` + number + `\s*(?:and|to|-)\s*` + currency + `\s*` + number)
	aroundRe  = regexp.MustCompile(`(?:around|about|approximately|roughly|~)\s*` + currency + `\s*` + number)
	underRe   = regexp.MustCompile(`(?:under|below|less than|cheaper than|max|maximum|up to|within|budget of|budget)\s*` + currency + `\s*` + number)
	aboveRe   = regexp.MustCompile(`(?:above|over|more than|min|minimum|at least)\s*` + currency + `\s*` + number)
)

const specOps = `more than|greater than|over|above|at least|minimum|min|less than|under|below|at most|maximum|max|up to|>=|<=|>|<|=`

type specDef struct {
	key   string
	names string
	units string
}

var specDefs = []specDef{
	{key: "ram", names: `ram|memory`, units: `gb|tb`},
	{key: "storage", names: `storage|ssd|rom`, units: `gb|tb`},
	{key: "display", names: `display|screen`, units: `inch(?:es)?|"|in\b`},
	{key: "battery", names: `battery`, units: `mah`},
	{key: "camera", names: `camera`, units: `mp`},
}

type specPattern struct {
	key string
	// unit first: "at least 256gb storage"
	valueFirst *regexp.Regexp
	// name first: "ram > 8gb", "battery more than 4000mah"
	nameFirst *regexp.Regexp
}

var specPatterns = func() []specPattern {
	out := make([]specPattern, 0, len(specDefs))
	for _, d := range specDefs {
		out = append(out, specPattern{
			key: d.key,
			valueFirst: regexp.MustCompile(
				`(?:(` + specOps + `)\s*)?(\d+(?:\.\d+)?)\s*(` + d.units + `)\s*(?:of\s+)?(?:` + d.names + `)\b`),
			nameFirst: regexp.MustCompile(
				`\b(?:` + d.names + `)\s*(?:of\s+|with\s+)?(?:(` + specOps + `)\s*)?(\d+(?:\.\d+)?)\s*(` + d.units + `)`),
		})
	}
	return out
}()

var opAliases = map[string]string{
	"more than": core.OpGT, "greater than": core.OpGT, "over": core.OpGT, "above": core.OpGT, ">": core.OpGT,
	"at least": core.OpGTE, "minimum": core.OpGTE, "min": core.OpGTE, ">=": core.OpGTE,
	"less than": core.OpLT, "under": core.OpLT, "below": core.OpLT, "<": core.OpLT,
	"at most": core.OpLTE, "maximum": core.OpLTE, "max": core.OpLTE, "up to": core.OpLTE, "<=": core.OpLTE,
	"=": core.OpEQ,
	// a bare "16gb ram" reads as a floor
	"": core.OpGTE,
}

var (
	comparisonKeywords = []string{"compare", "vs", "vs.", "versus", "difference between", "which is better", "or"}
	countingKeywords   = []string{"how many", "count", "number of", "total"}
	specKeywords       = []string{"ram", "storage", "display", "screen", "battery", "camera", "processor", "gb", "tb", "inch", "mah"}
	priceKeywords      = []string{"under", "below", "budget", "cheap", "cheaper", "affordable", "price", "within", "between", "around", "$", "₹", "€"}
	reviewKeywords     = []string{"review", "reviews", "rating", "good", "best", "quality", "recommend", "opinion",
		"performance", "think", "say", "customers", "feedback", "worth", "reliable", "durable"}
	exclusionMarkers = []string{"not", "no", "except", "without", "avoid", "excluding"}
)

// A comparison names between two and five products.
const (
	minCompared = 2
	maxCompared = 5
)

var (
	compareLeadRe  = regexp.MustCompile(`^(?:compare|comparison of|difference between|which is better|what is better)[,:]?\s+(?:the\s+)?`)
	compareSplitRe = regexp.MustCompile(`\s*(?:\bvs\b\.?|\bversus\b|\band\b|\bor\b|,)\s*(?:the\s+)?`)
)

// RuleParser extracts an Intent from text with keyword and pattern rules.
// It is deterministic and never fails.
type RuleParser struct{}

func NewRuleParser() *RuleParser {
	return &RuleParser{}
}

func (p *RuleParser) Parse(text string, vocab core.Vocabulary) core.Intent {
	query := strings.Join(strings.Fields(text), " ")
	lower := strings.ToLower(query)

	intent := core.Intent{
		Kind:      core.IntentGeneral,
		Query:     query,
		Sentiment: DetectSentiment(lower),
	}

	// Specs go first and are blanked so "ram under 16gb" is not a price.
	var rest string
	intent.Constraints.Specs, rest = parseSpecs(lower)
	intent.Constraints.MinPrice, intent.Constraints.MaxPrice = parsePrice(rest)

	intent.Category = matchCategory(lower, vocab.Categories)
	intent.Constraints.Brands, intent.Constraints.Exclude = matchBrands(lower, vocab.Brands)
	intent.Kind = classify(lower, intent)
	if intent.Kind == core.IntentComparison {
		intent.Products = comparedNames(lower)
	}

	if prefs := ExtractFeatures(lower); len(prefs) > 0 {
		intent.Preferences = prefs
	}
	return intent
}

func parseSpecs(text string) ([]core.SpecFilter, string) {
	var filters []core.SpecFilter
	rest := []byte(text)

	for _, sp := range specPatterns {
		for _, re := range []*regexp.Regexp{sp.valueFirst, sp.nameFirst} {
			for _, m := range re.FindAllStringSubmatchIndex(string(rest), -1) {
				op := opAliases[submatch(string(rest), m, 1)]
				v, err := strconv.ParseFloat(submatch(string(rest), m, 2), 64)
				if err != nil {
					continue
				}
				if strings.HasPrefix(submatch(string(rest), m, 3), "tb") {
					v *= 1024
				}
				filters = append(filters, core.SpecFilter{Key: sp.key, Op: op, Value: v})
				for i := m[0]; i < m[1]; i++ {
					rest[i] = ' '
				}
			}
		}
	}
	return filters, string(rest)
}

func submatch(s string, m []int, group int) string {
	if m[2*group] < 0 {
		return ""
	}
	return strings.TrimSpace(s[m[2*group]:m[2*group+1]])
}

func parsePrice(text string) (minPrice, maxPrice *float64) {
	if m := betweenRe.FindStringSubmatch(text); m != nil {
		lo, hi := amount(m[1], m[2]), amount(m[3], m[4])
		if lo > hi {
			lo, hi = hi, lo
		}
		return core.Float(lo), core.Float(hi)
	}
	if m := aroundRe.FindStringSubmatch(text); m != nil {
		v := amount(m[1], m[2])
		return core.Float(v * 0.8), core.Float(v * 1.2)
	}
	if m := underRe.FindStringSubmatch(text); m != nil {
		maxPrice = core.Float(amount(m[1], m[2]))
	}
	if m := aboveRe.FindStringSubmatch(text); m != nil {
		minPrice = core.Float(amount(m[1], m[2]))
	}
	if minPrice != nil && maxPrice != nil && *minPrice > *maxPrice {
		minPrice, maxPrice = maxPrice, minPrice
	}
	return minPrice, maxPrice
}

func amount(num, suffix string) float64 {
	v, _ := strconv.ParseFloat(strings.ReplaceAll(num, ",", ""), 64)
	if suffix == "k" {
		v *= 1000
	}
	return v
}

// matchCategory picks the earliest category mention. Known catalog
// categories are matched by name as well as by synonym.
func matchCategory(text string, known []string) string {
	best, bestPos := "", len(text)+1

	consider := func(category string, re *regexp.Regexp) {
		loc := re.FindStringIndex(text)
		if loc == nil || loc[0] >= bestPos {
			return
		}
		best, bestPos = category, loc[0]
	}

	for _, c := range known {
		name := strings.ToLower(c)
		consider(c, regexp.MustCompile(`\b`+regexp.QuoteMeta(name)+`\b`))
		if singular := strings.TrimSuffix(name, "s"); singular != name && singular != "" {
			consider(c, regexp.MustCompile(`\b`+regexp.QuoteMeta(singular)+`\b`))
		}
	}
	for _, ph := range categoryPhrases {
		consider(canonicalCategory(ph.value, known), ph.re)
	}
	return best
}

// canonicalCategory returns the catalog spelling of category when known.
func canonicalCategory(category string, known []string) string {
	for _, k := range known {
		if strings.EqualFold(k, category) {
			return k
		}
	}
	return category
}

// matchBrands splits brand mentions into wanted brands and excluded brand
// tags ("not samsung", "except apple").
func matchBrands(text string, known []string) (brands, exclude []string) {
	for _, b := range known {
		re := regexp.MustCompile(`\b` + regexp.QuoteMeta(strings.ToLower(b)) + `\b`)
		loc := re.FindStringIndex(text)
		if loc == nil {
			continue
		}
		if excludedBefore(text, loc[0]) {
			exclude = append(exclude, core.BrandTag(b))
			continue
		}
		brands = append(brands, b)
	}
	return brands, exclude
}

func excludedBefore(text string, pos int) bool {
	words := strings.Fields(text[:pos])
	for i := len(words) - 1; i >= 0 && i >= len(words)-2; i-- {
		if slices.Contains(exclusionMarkers, strings.Trim(words[i], ",.!?")) {
			return true
		}
	}
	return false
}

// classify assigns the intent kind. Comparison beats counting beats spec
// search; price and review cues combine into complex search.
func classify(text string, intent core.Intent) core.IntentKind {
	words := wordSet(text)
	has := func(keywords []string) bool {
		for _, k := range keywords {
			if strings.Contains(k, " ") {
				if strings.Contains(text, k) {
					return true
				}
				continue
			}
			if words[k] || (!isWord(k) && strings.Contains(text, k)) {
				return true
			}
		}
		return false
	}

	switch {
	case has(comparisonKeywords):
		return core.IntentComparison
	case has(countingKeywords):
		return core.IntentCounting
	case len(intent.Constraints.Specs) > 0 || has(specKeywords) && hasOperator(text):
		return core.IntentSpecSearch
	}

	filtered := intent.Constraints.MinPrice != nil || intent.Constraints.MaxPrice != nil || has(priceKeywords)
	reviews := has(reviewKeywords)
	switch {
	case filtered && reviews:
		return core.IntentComplexSearch
	case filtered:
		return core.IntentFilteredSearch
	case reviews:
		return core.IntentReviewSearch
	default:
		return core.IntentGeneral
	}
}

// comparedNames splits "compare x and y" or "x vs y" into the product
// names being compared. It returns nil unless two to five names are found.
func comparedNames(text string) []string {
	text = compareLeadRe.ReplaceAllString(strings.TrimSpace(text), "")
	var names []string
	for _, part := range compareSplitRe.Split(text, -1) {
		if part = strings.Trim(part, " ?!.,:;\"'"); part != "" {
			names = append(names, part)
		}
	}
	if len(names) < minCompared || len(names) > maxCompared {
		return nil
	}
	return names
}

func hasOperator(text string) bool {
	for _, op := range []string{">", "<", "more than", "less than", "at least", "above", "below", "minimum", "maximum"} {
		if strings.Contains(text, op) {
			return true
		}
	}
	return false
}

func wordSet(text string) map[string]bool {
	out := map[string]bool{}
	for _, w := range strings.Fields(text) {
		out[strings.Trim(w, ",.!?;:\"'()")] = true
	}
	return out
}

func isWord(s string) bool {
	for _, r := range s {
		if !(r >= 'a' && r <= 'z') {
			return false
		}
	}
	return true
}
