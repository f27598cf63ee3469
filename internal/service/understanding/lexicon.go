package understanding

import (
	"regexp"
	"sort"
	"strings"

	"github.com/sandevgo/recomate/internal/core"
)

// categorySynonyms maps shopper wording to catalog category names.
var categorySynonyms = map[string]string{
	"phone":         "Smartphones",
	"phones":        "Smartphones",
	"mobile":        "Smartphones",
	"mobiles":       "Smartphones",
	"mobile phone":  "Smartphones",
	"mobile phones": "Smartphones",
	"smartphone":    "Smartphones",
	"smartphones":   "Smartphones",
	"cellphone":     "Smartphones",

	"laptop":    "Laptops",
	"laptops":   "Laptops",
	"computer":  "Laptops",
	"computers": "Laptops",
	"notebook":  "Laptops",

	"headphone":  "Headphones",
	"headphones": "Headphones",
	"earphone":   "Headphones",
	"earphones":  "Headphones",
	"earbud":     "Headphones",
	"earbuds":    "Headphones",

	"tablet":  "Tablets",
	"tablets": "Tablets",
	"ipad":    "Tablets",

	"watch":        "Smartwatches",
	"watches":      "Smartwatches",
	"smartwatch":   "Smartwatches",
	"smartwatches": "Smartwatches",

	"speaker":  "Speakers",
	"speakers": "Speakers",

	"camera":  "Cameras",
	"cameras": "Cameras",

	"console":        "Gaming Consoles",
	"consoles":       "Gaming Consoles",
	"gaming console": "Gaming Consoles",

	"shoe":     "Shoes",
	"shoes":    "Shoes",
	"sneaker":  "Shoes",
	"sneakers": "Shoes",
	"trainers": "Shoes",
}

// featureLexicon maps phrases to the preference tags they express.
var featureLexicon = map[string]string{
	"lightweight":      "lightweight",
	"light weight":     "lightweight",
	"waterproof":       "waterproof",
	"water resistant":  "waterproof",
	"wireless":         "wireless",
	"bluetooth":        "wireless",
	"noise cancelling": "noise_cancelling",
	"noise canceling":  "noise_cancelling",
	"anc":              "noise_cancelling",
	"gaming":           "gaming",
	"running":          "running",
	"trail":            "trail",
	"hiking":           "hiking",
	"battery life":     "battery",
	"long battery":     "battery",
	"camera quality":   "camera",
	"budget":           "budget",
	"cheap":            "budget",
	"cheaper":          "budget",
	"affordable":       "budget",
	"premium":          "premium",
	"high end":         "premium",
	"flagship":         "premium",
	"durable":          "durable",
	"sturdy":           "durable",
	"comfortable":      "comfortable",
	"comfy":            "comfortable",
	"fast":             "performance",
	"performance":      "performance",
	"portable":         "portable",
	"compact":          "portable",
	"casual":           "casual",
}

var negators = map[string]bool{
	"not": true, "no": true, "without": true, "non": true, "never": true, "avoid": true,
}

var positiveWords = map[string]bool{
	"love": true, "great": true, "good": true, "best": true, "excellent": true,
	"like": true, "awesome": true, "amazing": true, "perfect": true, "happy": true,
}

var negativeWords = map[string]bool{
	"hate": true, "bad": true, "worst": true, "terrible": true, "awful": true,
	"disappointed": true, "broke": true, "poor": true, "dislike": true, "avoid": true,
}

// preferenceWeight is the strength of one mention of a feature.
const preferenceWeight = 0.6

type phrase struct {
	text  string
	value string
	re    *regexp.Regexp
}

// compilePhrases orders phrases longest first so "mobile phone" wins over
// "phone".
func compilePhrases(m map[string]string) []phrase {
	out := make([]phrase, 0, len(m))
	for k, v := range m {
		out = append(out, phrase{
			text:  k,
			value: v,
			re:    regexp.MustCompile(`\b` + regexp.QuoteMeta(k) + `\b`),
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if len(out[i].text) != len(out[j].text) {
			return len(out[i].text) > len(out[j].text)
		}
		return out[i].text < out[j].text
	})
	return out
}

var (
	categoryPhrases = compilePhrases(categorySynonyms)
	featurePhrases  = compilePhrases(featureLexicon)
)

// ExtractFeatures returns the feature tags mentioned in text with a signed
// weight: negated mentions ("no bluetooth") are negative.
func ExtractFeatures(text string) map[string]float64 {
	lower := strings.ToLower(text)
	out := map[string]float64{}

	for _, p := range featurePhrases {
		for _, loc := range p.re.FindAllStringIndex(lower, -1) {
			w := preferenceWeight
			if negatedBefore(lower, loc[0]) {
				w = -preferenceWeight
			}
			out[p.value] = clampSigned(out[p.value] + w)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// negatedBefore reports whether one of the two words before pos negates.
func negatedBefore(text string, pos int) bool {
	words := strings.Fields(text[:pos])
	for i := len(words) - 1; i >= 0 && i >= len(words)-2; i-- {
		if negators[strings.Trim(words[i], ",.!?")] {
			return true
		}
	}
	return false
}

// DetectSentiment counts polar words, with negation flipping the next one.
func DetectSentiment(text string) core.Sentiment {
	score := 0
	negate := false
	for _, w := range strings.Fields(strings.ToLower(text)) {
		w = strings.Trim(w, ",.!?;:\"'")
		switch {
		case negators[w] && !negativeWords[w]:
			negate = true
			continue
		case positiveWords[w]:
			if negate {
				score--
			} else {
				score++
			}
		case negativeWords[w]:
			if negate {
				score++
			} else {
				score--
			}
		}
		negate = false
	}

	switch {
	case score > 0:
		return core.SentimentPositive
	case score < 0:
		return core.SentimentNegative
	default:
		return core.SentimentNeutral
	}
}

func clampSigned(v float64) float64 {
	return max(-1, min(1, v))
}
