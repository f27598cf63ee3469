package understanding

import (
	"context"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/sandevgo/recomate/internal/core"
	"github.com/sandevgo/recomate/pkg/log"
)

const (
	vocabKey        = "vocabulary"
	lastVocabKey    = "vocabulary:last"
	defaultVocabTTL = 5 * time.Minute
)

// Vocabulary caches the catalog's brand and category names. When the catalog
// is unreachable the last good copy is served.
type Vocabulary struct {
	catalog core.Catalog
	cache   *cache.Cache
}

func NewVocabulary(catalog core.Catalog, ttl time.Duration) *Vocabulary {
	if ttl <= 0 {
		ttl = defaultVocabTTL
	}
	return &Vocabulary{
		catalog: catalog,
		cache:   cache.New(ttl, 2*ttl),
	}
}

func (v *Vocabulary) Get(ctx context.Context) core.Vocabulary {
	if x, found := v.cache.Get(vocabKey); found {
		return x.(core.Vocabulary)
	}
	if v.catalog == nil {
		return core.Vocabulary{}
	}

	vocab, err := v.catalog.Vocabulary(ctx)
	if err != nil {
		log.FromCtx(ctx).Warn().Err(err).Msg("failed to load vocabulary")
		if x, found := v.cache.Get(lastVocabKey); found {
			return x.(core.Vocabulary)
		}
		return core.Vocabulary{}
	}

	v.cache.Set(vocabKey, vocab, cache.DefaultExpiration)
	v.cache.Set(lastVocabKey, vocab, cache.NoExpiration)
	return vocab
}

// Invalidate forces the next Get to reload, e.g. after catalog ingestion.
func (v *Vocabulary) Invalidate() {
	v.cache.Delete(vocabKey)
}
