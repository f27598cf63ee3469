package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/sandevgo/recomate/internal/core"
)

// Affinity contributions of the graph walk. They sum to 1.
const (
	affinityCategory   = 0.45
	affinityBrand      = 0.15
	affinityTags       = 0.15
	affinityRelation   = 0.15
	affinityPopularity = 0.10
)

// A product named in the query scores at least this.
const nameMatchFloor = 0.9

// CatalogRepo stores products, their tags and typed relations, and answers
// related-product queries over them.
type CatalogRepo struct {
	db *sql.DB
}

func NewCatalogRepo(db *sql.DB) *CatalogRepo {
	return &CatalogRepo{db: db}
}

func (r *CatalogRepo) UpsertProduct(ctx context.Context, p core.Product) error {
	specs := p.Specs
	if specs == nil {
		specs = map[string]string{}
	}
	specsJSON, err := json.Marshal(specs)
	if err != nil {
		return fmt.Errorf("failed to marshal specs: %w", err)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO products (id, name, brand, category, price, rating, review_count, description, specs)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			name = excluded.name, brand = excluded.brand, category = excluded.category,
			price = excluded.price, rating = excluded.rating, review_count = excluded.review_count,
			description = excluded.description, specs = excluded.specs`,
		p.ID, p.Name, p.Brand, p.Category, p.Price, p.Rating, p.ReviewCount, p.Description, string(specsJSON))
	if err != nil {
		return fmt.Errorf("failed to upsert product %s: %w", p.ID, err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM product_tags WHERE product_id = ?`, p.ID); err != nil {
		return fmt.Errorf("failed to reset tags: %w", err)
	}
	for _, tag := range p.Tags {
		tag = core.NormalizeTag(tag)
		if tag == "" {
			continue
		}
		_, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO product_tags (product_id, tag) VALUES (?, ?)`, p.ID, tag)
		if err != nil {
			return fmt.Errorf("failed to insert tag: %w", err)
		}
	}

	return tx.Commit()
}

func (r *CatalogRepo) AddRelation(ctx context.Context, rel core.Relation) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO relations (src, dst, kind, weight) VALUES (?, ?, ?, ?)
		ON CONFLICT (src, dst, kind) DO UPDATE SET weight = excluded.weight`,
		rel.From, rel.To, rel.Kind, rel.Weight)
	if err != nil {
		return fmt.Errorf("failed to add relation: %w", err)
	}
	return nil
}

func (r *CatalogRepo) UpdateReviewSummary(ctx context.Context, s core.ReviewSummary) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE products SET rating = ?, review_count = ? WHERE id = ?`,
		s.Average, s.Count, s.ProductID)
	if err != nil {
		return fmt.Errorf("failed to update review summary: %w", err)
	}
	return nil
}

// GetProducts returns the known products among ids, in the order of ids.
func (r *CatalogRepo) GetProducts(ctx context.Context, ids []string) ([]core.Product, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	byID, err := r.productsWhere(ctx, "id IN ("+placeholders(len(ids))+")", toArgs(ids)...)
	if err != nil {
		return nil, err
	}

	out := make([]core.Product, 0, len(ids))
	for _, id := range ids {
		if p, ok := byID[id]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

func (r *CatalogRepo) Vocabulary(ctx context.Context) (core.Vocabulary, error) {
	var v core.Vocabulary
	var err error
	if v.Brands, err = r.distinct(ctx, "brand"); err != nil {
		return v, err
	}
	if v.Categories, err = r.distinct(ctx, "category"); err != nil {
		return v, err
	}
	return v, nil
}

func (r *CatalogRepo) distinct(ctx context.Context, column string) ([]string, error) {
	rows, err := r.db.QueryContext(ctx,
		fmt.Sprintf(`SELECT DISTINCT %[1]s FROM products WHERE %[1]s != '' ORDER BY %[1]s`, column))
	if err != nil {
		return nil, fmt.Errorf("failed to query %s vocabulary: %w", column, err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// QueryRelatedProducts scores products against the query by category,
// brand, tag overlap, relations to seed products and popularity.
func (r *CatalogRepo) QueryRelatedProducts(ctx context.Context, q core.GraphQuery) ([]core.GraphHit, error) {
	limit := q.Limit
	if limit <= 0 {
		limit = 50
	}

	var where []string
	var args []any
	if q.Category != "" && q.Category != core.CategoryUnconstrained {
		where = append(where, "category = ? COLLATE NOCASE")
		args = append(args, q.Category)
	}
	if len(q.Brands) > 0 {
		where = append(where, "brand COLLATE NOCASE IN ("+placeholders(len(q.Brands))+")")
		args = append(args, toArgs(q.Brands)...)
	}
	if len(q.Tags) > 0 {
		where = append(where, "id IN (SELECT product_id FROM product_tags WHERE tag IN ("+placeholders(len(q.Tags))+"))")
		args = append(args, toArgs(normalizeTags(q.Tags))...)
	}
	for _, name := range q.Names {
		where = append(where, `name LIKE ? ESCAPE '\'`)
		args = append(args, likePattern(name))
	}

	cond := "1 = 1"
	if len(where) > 0 {
		cond = "(" + strings.Join(where, " OR ") + ")"
	}
	priceCond, priceArgs := priceFilter(q)
	cond += priceCond
	args = append(args, priceArgs...)
	// Over-fetch so scoring can reorder beyond the popularity order.
	products, err := r.productsWhere(ctx, cond+" ORDER BY rating DESC, id LIMIT ?", append(args, limit*4)...)
	if err != nil {
		return nil, err
	}

	related, err := r.relatedTo(ctx, q.Seeds)
	if err != nil {
		return nil, err
	}
	var missing []string
	for id := range related {
		if _, ok := products[id]; !ok {
			missing = append(missing, id)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		extra, err := r.productsWhere(ctx, "id IN ("+placeholders(len(missing))+")"+priceCond, append(toArgs(missing), priceArgs...)...)
		if err != nil {
			return nil, err
		}
		for id, p := range extra {
			products[id] = p
		}
	}

	seeds := make(map[string]struct{}, len(q.Seeds))
	for _, s := range q.Seeds {
		seeds[s] = struct{}{}
	}

	hits := make([]core.GraphHit, 0, len(products))
	for id, p := range products {
		if _, isSeed := seeds[id]; isSeed {
			continue
		}
		ev := p.Evidence()
		score := affinityPopularity * p.Rating / 5
		if q.Category != "" && q.Category != core.CategoryUnconstrained && strings.EqualFold(p.Category, q.Category) {
			score += affinityCategory
		}
		if containsFold(q.Brands, p.Brand) {
			score += affinityBrand
		}
		if len(q.Tags) > 0 {
			score += affinityTags * overlap(normalizeTags(q.Tags), p.Tags)
		}
		if rel, ok := related[id]; ok {
			score += affinityRelation * rel.weight
			ev.Relations = rel.kinds
		}
		if nameMatches(q.Names, p.Name) {
			score = max(score, nameMatchFloor)
		}
		hits = append(hits, core.GraphHit{
			ProductID: id,
			Score:     min(score, 1),
			Evidence:  ev,
		})
	}

	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].ProductID < hits[j].ProductID
	})
	if len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}

// CountProducts counts the products in the category, of any of the brands
// and within the price bounds.
func (r *CatalogRepo) CountProducts(ctx context.Context, q core.GraphQuery) (int, error) {
	cond := "1 = 1"
	var args []any
	if q.Category != "" && q.Category != core.CategoryUnconstrained {
		cond += " AND category = ? COLLATE NOCASE"
		args = append(args, q.Category)
	}
	if len(q.Brands) > 0 {
		cond += " AND brand COLLATE NOCASE IN (" + placeholders(len(q.Brands)) + ")"
		args = append(args, toArgs(q.Brands)...)
	}
	priceCond, priceArgs := priceFilter(q)
	cond += priceCond
	args = append(args, priceArgs...)

	var n int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM products WHERE `+cond, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count products: %w", err)
	}
	return n, nil
}

// priceFilter returns the " AND ..." suffix for the query's price bounds.
func priceFilter(q core.GraphQuery) (string, []any) {
	var cond string
	var args []any
	if q.MinPrice != nil {
		cond += " AND price >= ?"
		args = append(args, *q.MinPrice)
	}
	if q.MaxPrice != nil {
		cond += " AND price <= ?"
		args = append(args, *q.MaxPrice)
	}
	return cond, args
}

func likePattern(s string) string {
	s = strings.NewReplacer(`\`, `\\`, "%", `\%`, "_", `\_`).Replace(strings.TrimSpace(s))
	return "%" + s + "%"
}

func nameMatches(names []string, name string) bool {
	name = strings.ToLower(name)
	for _, n := range names {
		if n = strings.ToLower(strings.TrimSpace(n)); n != "" && strings.Contains(name, n) {
			return true
		}
	}
	return false
}

type relatedProduct struct {
	weight float64
	kinds  []string
}

func (r *CatalogRepo) relatedTo(ctx context.Context, seeds []string) (map[string]relatedProduct, error) {
	out := make(map[string]relatedProduct)
	if len(seeds) == 0 {
		return out, nil
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT src, dst, kind, weight FROM relations WHERE src IN (`+placeholders(len(seeds))+`) ORDER BY src, dst, kind`,
		toArgs(seeds)...)
	if err != nil {
		return nil, fmt.Errorf("failed to query relations: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var src, dst, kind string
		var weight float64
		if err := rows.Scan(&src, &dst, &kind, &weight); err != nil {
			return nil, err
		}
		rel := out[dst]
		rel.weight = max(rel.weight, weight)
		rel.kinds = append(rel.kinds, fmt.Sprintf("%s:%s", kind, src))
		out[dst] = rel
	}
	return out, rows.Err()
}

func (r *CatalogRepo) productsWhere(ctx context.Context, cond string, args ...any) (map[string]core.Product, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, name, brand, category, price, rating, review_count, description, specs FROM products WHERE `+cond,
		args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query products: %w", err)
	}
	defer rows.Close()

	products := make(map[string]core.Product)
	var ids []string
	for rows.Next() {
		var p core.Product
		var specs string
		if err := rows.Scan(&p.ID, &p.Name, &p.Brand, &p.Category, &p.Price, &p.Rating, &p.ReviewCount, &p.Description, &specs); err != nil {
			return nil, fmt.Errorf("failed to scan product: %w", err)
		}
		if err := json.Unmarshal([]byte(specs), &p.Specs); err != nil {
			return nil, fmt.Errorf("failed to unmarshal specs of %s: %w", p.ID, err)
		}
		products[p.ID] = p
		ids = append(ids, p.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	rows.Close()

	if err := r.attachTags(ctx, products, ids); err != nil {
		return nil, err
	}
	return products, nil
}

func (r *CatalogRepo) attachTags(ctx context.Context, products map[string]core.Product, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT product_id, tag FROM product_tags WHERE product_id IN (`+placeholders(len(ids))+`) ORDER BY product_id, tag`,
		toArgs(ids)...)
	if err != nil {
		return fmt.Errorf("failed to query tags: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id, tag string
		if err := rows.Scan(&id, &tag); err != nil {
			return err
		}
		p := products[id]
		p.Tags = append(p.Tags, tag)
		products[id] = p
	}
	return rows.Err()
}

func toArgs(ss []string) []any {
	args := make([]any, len(ss))
	for i, s := range ss {
		args[i] = s
	}
	return args
}

func normalizeTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		out = append(out, core.NormalizeTag(t))
	}
	return out
}

func containsFold(list []string, s string) bool {
	if s == "" {
		return false
	}
	for _, item := range list {
		if strings.EqualFold(item, s) {
			return true
		}
	}
	return false
}

// overlap is the share of wanted tags the product carries.
func overlap(wanted, have []string) float64 {
	if len(wanted) == 0 {
		return 0
	}
	set := make(map[string]struct{}, len(have))
	for _, h := range have {
		set[h] = struct{}{}
	}
	n := 0
	for _, w := range wanted {
		if _, ok := set[w]; ok {
			n++
		}
	}
	return float64(n) / float64(len(wanted))
}
