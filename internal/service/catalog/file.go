package catalog

import (
	"errors"
	"fmt"
	"io"
	"os"
	"slices"

	"github.com/go-playground/validator/v10"
	"github.com/sandevgo/recomate/internal/core"
	"gopkg.in/yaml.v3"
)

var relationKinds = []string{
	core.RelationSimilar,
	core.RelationBoughtTogether,
	core.RelationSameBrand,
	core.RelationAccessoryOf,
}

// File is a catalog document: products, the relations between them and
// their reviews.
type File struct {
	Products  []core.Product  `yaml:"products" validate:"dive"`
	Relations []core.Relation `yaml:"relations" validate:"dive"`
	Reviews   []core.Review   `yaml:"reviews" validate:"dive"`
}

func LoadFile(path string) (*File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open catalog: %w", err)
	}
	defer f.Close()
	return Load(f)
}

// Load decodes and validates a catalog document. Unknown keys are rejected.
func Load(r io.Reader) (*File, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var file File
	if err := dec.Decode(&file); err != nil {
		if errors.Is(err, io.EOF) {
			return &file, nil
		}
		return nil, fmt.Errorf("failed to decode catalog: %w", err)
	}
	if err := file.Validate(); err != nil {
		return nil, err
	}
	return &file, nil
}

// Validate checks field rules and that every relation and review points at
// a product in the same document.
func (f *File) Validate() error {
	if err := validator.New().Struct(f); err != nil {
		return fmt.Errorf("%w: %w", core.ErrInvalidInput, err)
	}

	ids := make(map[string]struct{}, len(f.Products))
	var errs []error
	for _, p := range f.Products {
		if _, dup := ids[p.ID]; dup {
			errs = append(errs, fmt.Errorf("duplicate product id %q", p.ID))
		}
		ids[p.ID] = struct{}{}
	}
	for _, rel := range f.Relations {
		if !slices.Contains(relationKinds, rel.Kind) {
			errs = append(errs, fmt.Errorf("relation %s->%s: unknown kind %q", rel.From, rel.To, rel.Kind))
		}
		for _, id := range []string{rel.From, rel.To} {
			if _, ok := ids[id]; !ok {
				errs = append(errs, fmt.Errorf("relation %s->%s: unknown product %q", rel.From, rel.To, id))
			}
		}
	}
	for i, rev := range f.Reviews {
		if _, ok := ids[rev.ProductID]; !ok {
			errs = append(errs, fmt.Errorf("review %d: unknown product %q", i, rev.ProductID))
		}
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("%w: %w", core.ErrInvalidInput, err)
	}
	return nil
}
