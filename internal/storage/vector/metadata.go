package vector

import (
	"strconv"
	"strings"

	"github.com/sandevgo/recomate/internal/core"
)

const (
	metaProductID = "product_id"
	metaName      = "name"
	metaBrand     = "brand"
	metaCategory  = "category"
	metaPrice     = "price"
	metaRating    = "rating"
	metaTags      = "tags"
)

func encodeMetadata(doc core.ReviewDocument) map[string]string {
	ev := doc.Evidence
	m := map[string]string{
		metaProductID: doc.ProductID,
		metaName:      ev.Name,
		metaBrand:     ev.Brand,
		metaCategory:  ev.Category,
		metaTags:      strings.Join(ev.Tags, ","),
	}
	if ev.Price != nil {
		m[metaPrice] = strconv.FormatFloat(*ev.Price, 'f', -1, 64)
	}
	if ev.Rating > 0 {
		m[metaRating] = strconv.FormatFloat(ev.Rating, 'f', -1, 64)
	}
	return m
}

func decodeEvidence(m map[string]string) core.Evidence {
	ev := core.Evidence{
		Name:     m[metaName],
		Brand:    m[metaBrand],
		Category: m[metaCategory],
	}
	if p, err := strconv.ParseFloat(m[metaPrice], 64); err == nil {
		ev.Price = &p
	}
	if r, err := strconv.ParseFloat(m[metaRating], 64); err == nil {
		ev.Rating = r
	}
	if t := m[metaTags]; t != "" {
		ev.Tags = strings.Split(t, ",")
	}
	return ev
}

// clampSimilarity maps cosine similarity into [0, 1]; opposite vectors are
// treated as unrelated.
func clampSimilarity(s float64) float64 {
	return max(0, min(1, s))
}
