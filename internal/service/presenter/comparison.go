package presenter

import (
	"fmt"
	"strings"
	"unicode"
)

const maxCompared = 5

// Criteria weighs price against rating when picking the best of a
// comparison. Both weights sum to 1.
type Criteria struct {
	Price  float64
	Rating float64
}

var (
	balanced    = Criteria{Price: 0.5, Rating: 0.5}
	budgetFirst = Criteria{Price: 0.7, Rating: 0.3}
	ratingFirst = Criteria{Price: 0.3, Rating: 0.7}

	budgetWords = []string{"cheap", "budget", "affordable", "value", "save money"}
	ratingWords = []string{"best", "quality", "top", "premium", "highest rated"}
)

// CriteriaFor reads the shopper's priority from their wording. Budget
// wording wins over quality wording.
func CriteriaFor(input string) Criteria {
	lower := " " + strings.Join(strings.FieldsFunc(strings.ToLower(input), notLetter), " ") + " "
	has := func(words []string) bool {
		for _, w := range words {
			if strings.Contains(lower, " "+w+" ") {
				return true
			}
		}
		return false
	}
	switch {
	case has(budgetWords):
		return budgetFirst
	case has(ratingWords):
		return ratingFirst
	default:
		return balanced
	}
}

// BestPick returns the index of the item with the highest weighted score.
// Lower prices score higher relative to the cheapest and priciest item;
// ratings score relative to the best rating. Ties keep the better rank.
func BestPick(items []Item, c Criteria) int {
	if len(items) == 0 {
		return -1
	}

	minPrice, maxPrice := items[0].Product.Price, items[0].Product.Price
	maxRating := 0.0
	for _, it := range items {
		minPrice = min(minPrice, it.Product.Price)
		maxPrice = max(maxPrice, it.Product.Price)
		maxRating = max(maxRating, it.Product.Rating)
	}

	best, bestScore := 0, -1.0
	for i, it := range items {
		price := 1.0
		if maxPrice > minPrice {
			price = 1 - (it.Product.Price-minPrice)/(maxPrice-minPrice)
		}
		rating := 0.0
		if maxRating > 0 {
			rating = it.Product.Rating / maxRating
		}
		if score := c.Price*price + c.Rating*rating; score > bestScore {
			best, bestScore = i, score
		}
	}
	return best
}

// Comparison renders up to five known items as a Markdown table followed by
// the best pick and why. It reports false when fewer than two of the items
// are known to the catalog.
func Comparison(items []Item, input string, partial bool) (string, bool) {
	var known []Item
	for _, it := range items {
		if it.Known && len(known) < maxCompared {
			known = append(known, it)
		}
	}
	if len(known) < 2 {
		return "", false
	}

	best := BestPick(known, CriteriaFor(input))

	var sb strings.Builder
	sb.WriteString("Here is how they compare:\n\n")
	sb.WriteString("| Product | Brand | Price | Rating | Reviews |\n")
	sb.WriteString("|---|---|---|---|---|\n")
	for i, it := range known {
		name := it.Product.Name
		if i == best {
			name = "**" + name + "**"
		}
		sb.WriteString(fmt.Sprintf("| %s | %s | $%.2f | ★ %.1f | %d |\n",
			name, orDash(it.Product.Brand), it.Product.Price, it.Product.Rating, it.Product.ReviewCount))
	}

	sb.WriteString(fmt.Sprintf("\n**Best pick: %s**", known[best].Product.Name))
	sb.WriteString(": ")
	sb.WriteString(pickReason(known, best))
	if partial {
		sb.WriteString("\n\n")
		sb.WriteString(partialNote)
	}
	return sb.String(), true
}

func pickReason(items []Item, best int) string {
	pick := items[best].Product
	cheapest, topRated := true, true
	for _, it := range items {
		if it.Product.Price < pick.Price {
			cheapest = false
		}
		if it.Product.Rating > pick.Rating {
			topRated = false
		}
	}

	var reasons []string
	if cheapest {
		reasons = append(reasons, "lowest price")
	}
	if topRated {
		reasons = append(reasons, "highest rating")
	}
	if pick.ReviewCount > 10 {
		reasons = append(reasons, fmt.Sprintf("%d customer reviews", pick.ReviewCount))
	}
	if len(reasons) == 0 {
		return "the best balance of price and rating."
	}
	return strings.Join(reasons, ", ") + "."
}

func notLetter(r rune) bool {
	return !unicode.IsLetter(r) && !unicode.IsDigit(r)
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
