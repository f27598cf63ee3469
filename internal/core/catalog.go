package core

// Product is a catalog entry as stored in the graph store.
type Product struct {
	ID          string            `json:"id" yaml:"id" validate:"required"`
	Name        string            `json:"name" yaml:"name" validate:"required"`
	Brand       string            `json:"brand" yaml:"brand"`
	Category    string            `json:"category" yaml:"category" validate:"required"`
	Price       float64           `json:"price" yaml:"price" validate:"gte=0"`
	Rating      float64           `json:"rating" yaml:"rating" validate:"gte=0,lte=5"`
	ReviewCount int               `json:"review_count" yaml:"review_count"`
	Description string            `json:"description,omitempty" yaml:"description"`
	Tags        []string          `json:"tags,omitempty" yaml:"tags"`
	Specs       map[string]string `json:"specs,omitempty" yaml:"specs"`
}

// Evidence returns what the catalog knows about the product.
func (p Product) Evidence() Evidence {
	price := p.Price
	return Evidence{
		Name:     p.Name,
		Brand:    p.Brand,
		Category: p.Category,
		Price:    &price,
		Rating:   p.Rating,
		Tags:     p.Tags,
		Specs:    p.Specs,
	}
}

const (
	RelationSimilar        = "similar_to"
	RelationBoughtTogether = "bought_together"
	RelationSameBrand      = "same_brand"
	RelationAccessoryOf    = "accessory_of"
)

type Relation struct {
	From   string  `json:"from" yaml:"from" validate:"required"`
	To     string  `json:"to" yaml:"to" validate:"required"`
	Kind   string  `json:"kind" yaml:"kind" validate:"required"`
	Weight float64 `json:"weight" yaml:"weight" validate:"gte=0,lte=1"`
}

type Review struct {
	ID        string  `json:"id" yaml:"id"`
	ProductID string  `json:"product_id" yaml:"product_id" validate:"required"`
	Rating    float64 `json:"rating" yaml:"rating" validate:"gte=0,lte=5"`
	Title     string  `json:"title,omitempty" yaml:"title"`
	Text      string  `json:"text" yaml:"text" validate:"required"`
}

// Vocabulary is the set of known brands and categories used to recognise
// them in free text.
type Vocabulary struct {
	Brands     []string `json:"brands"`
	Categories []string `json:"categories"`
}

// ReviewSummary aggregates review sentiment for a product.
type ReviewSummary struct {
	ProductID string  `json:"product_id"`
	Count     int     `json:"count"`
	Average   float64 `json:"average"`
	Positive  int     `json:"positive"`
	Negative  int     `json:"negative"`
}
