package understanding

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sandevgo/recomate/internal/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testVocab = core.Vocabulary{
	Brands:     []string{"Apple", "Nike", "Samsung"},
	Categories: []string{"Laptops", "Shoes", "Smartphones"},
}

type mockGenerator struct {
	generateFunc func(ctx context.Context, prompt string) (string, error)
	prompts      []string
}

func (m *mockGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	m.prompts = append(m.prompts, prompt)
	if m.generateFunc != nil {
		return m.generateFunc(ctx, prompt)
	}
	return `{"kind":"general"}`, nil
}

type mockCatalog struct {
	vocabularyFunc func(ctx context.Context) (core.Vocabulary, error)
	calls          int
}

func (m *mockCatalog) GetProducts(ctx context.Context, ids []string) ([]core.Product, error) {
	return nil, nil
}

func (m *mockCatalog) CountProducts(ctx context.Context, q core.GraphQuery) (int, error) {
	return 0, nil
}

func (m *mockCatalog) Vocabulary(ctx context.Context) (core.Vocabulary, error) {
	m.calls++
	if m.vocabularyFunc != nil {
		return m.vocabularyFunc(ctx)
	}
	return testVocab, nil
}

func TestRuleParser_Parse(t *testing.T) {
	tests := []struct {
		name     string
		text     string
		kind     core.IntentKind
		category string
		minPrice *float64
		maxPrice *float64
		brands   []string
		exclude  []string
		specs    []core.SpecFilter
		prefs    map[string]float64
		products []string
	}{
		{
			name:     "price ceiling with currency",
			text:     "running shoes under $50",
			kind:     core.IntentFilteredSearch,
			category: "Shoes",
			maxPrice: core.Float(50),
			prefs:    map[string]float64{"running": 0.6},
		},
		{
			name:     "between with thousands separators",
			text:     "phone between ₹10,000 and ₹20,000",
			kind:     core.IntentFilteredSearch,
			category: "Smartphones",
			minPrice: core.Float(10000),
			maxPrice: core.Float(20000),
		},
		{
			name:     "around widens by a fifth",
			text:     "a laptop around 1k",
			kind:     core.IntentFilteredSearch,
			category: "Laptops",
			minPrice: core.Float(800),
			maxPrice: core.Float(1200),
		},
		{
			name:     "spec filter is not a price",
			text:     "laptop with ram more than 8gb",
			kind:     core.IntentSpecSearch,
			category: "Laptops",
			specs:    []core.SpecFilter{{Key: "ram", Op: core.OpGT, Value: 8}},
		},
		{
			name:     "value first spec in terabytes",
			text:     "notebook with at least 1tb storage",
			kind:     core.IntentSpecSearch,
			category: "Laptops",
			specs:    []core.SpecFilter{{Key: "storage", Op: core.OpGTE, Value: 1024}},
		},
		{
			name:     "brand is a hard constraint",
			text:     "nike sneakers",
			kind:     core.IntentGeneral,
			category: "Shoes",
			brands:   []string{"Nike"},
		},
		{
			name:     "negated brand is excluded",
			text:     "smartphone but not samsung",
			kind:     core.IntentGeneral,
			category: "Smartphones",
			exclude:  []string{"brand:samsung"},
		},
		{
			name:     "comparison wins",
			text:     "compare apple vs samsung phones",
			kind:     core.IntentComparison,
			category: "Smartphones",
			brands:   []string{"Apple", "Samsung"},
			products: []string{"apple", "samsung phones"},
		},
		{
			name:     "comparison names products",
			text:     "Which is better, the iPhone 15 or the Pixel 8?",
			kind:     core.IntentComparison,
			products: []string{"iphone 15", "pixel 8"},
		},
		{
			name: "too many compared products",
			text: "compare a1, a2, a3, a4, a5 and a6",
			kind: core.IntentComparison,
		},
		{
			name:     "counting",
			text:     "how many laptops do you have",
			kind:     core.IntentCounting,
			category: "Laptops",
		},
		{
			name:     "price and reviews combine",
			text:     "best rated laptop under 1500",
			kind:     core.IntentComplexSearch,
			category: "Laptops",
			maxPrice: core.Float(1500),
		},
		{
			name:  "negated feature",
			text:  "headphones that are wireless, no anc",
			kind:  core.IntentGeneral,
			prefs: map[string]float64{"wireless": 0.6, "noise_cancelling": -0.6},
		},
	}

	p := NewRuleParser()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := p.Parse(tt.text, testVocab)

			assert.Equal(t, tt.kind, got.Kind)
			if tt.category != "" {
				assert.Equal(t, tt.category, got.Category)
			}
			assertPrice(t, tt.minPrice, got.Constraints.MinPrice)
			assertPrice(t, tt.maxPrice, got.Constraints.MaxPrice)
			assert.Equal(t, tt.brands, got.Constraints.Brands)
			assert.Equal(t, tt.exclude, got.Constraints.Exclude)
			assert.Equal(t, tt.specs, got.Constraints.Specs)
			assert.Equal(t, tt.products, got.Products)
			if tt.prefs != nil {
				assert.Equal(t, tt.prefs, got.Preferences)
			}
		})
	}
}

func assertPrice(t *testing.T, want, got *float64) {
	t.Helper()
	if want == nil {
		assert.Nil(t, got)
		return
	}
	require.NotNil(t, got)
	assert.InDelta(t, *want, *got, 1e-9)
}

func TestDetectSentiment(t *testing.T) {
	assert.Equal(t, core.SentimentPositive, DetectSentiment("I love my trail runners"))
	assert.Equal(t, core.SentimentNegative, DetectSentiment("the last pair was terrible"))
	assert.Equal(t, core.SentimentNegative, DetectSentiment("not good at all"))
	assert.Equal(t, core.SentimentNeutral, DetectSentiment("show me laptops"))
}

func TestDecodeIntent(t *testing.T) {
	hint := core.Intent{Kind: core.IntentGeneral, Query: "q", Sentiment: core.SentimentNeutral}

	t.Run("fenced JSON", func(t *testing.T) {
		out := "```json\n{\"kind\":\"filtered_search\",\"category\":\"Shoes\",\"max_price\":50," +
			"\"specs\":[{\"key\":\"RAM\",\"op\":\">\",\"value\":8},{\"key\":\"x\",\"op\":\"~\"}]," +
			"\"preferences\":{\"Trail Running\":3},\"sentiment\":\"happy\"}\n```"
		got, err := decodeIntent(out, hint, testVocab)
		require.NoError(t, err)
		assert.Equal(t, core.IntentFilteredSearch, got.Kind)
		assert.Equal(t, "Shoes", got.Category)
		assert.Equal(t, 50.0, *got.Constraints.MaxPrice)
		assert.Equal(t, []core.SpecFilter{{Key: "ram", Op: ">", Value: 8}}, got.Constraints.Specs)
		assert.Equal(t, map[string]float64{"trail_running": 1}, got.Preferences)
		assert.Equal(t, core.SentimentNeutral, got.Sentiment, "unknown sentiment keeps hint")
		assert.Equal(t, "q", got.Query)
	})

	t.Run("unknown kind keeps hint", func(t *testing.T) {
		got, err := decodeIntent(`{"kind":"shopping"}`, hint, testVocab)
		require.NoError(t, err)
		assert.Equal(t, core.IntentGeneral, got.Kind)
	})

	t.Run("category outside the vocabulary keeps hint", func(t *testing.T) {
		hint := core.Intent{Kind: core.IntentGeneral, Category: "Shoes"}
		tests := []struct {
			name string
			out  string
			want string
		}{
			{name: "invented", out: `{"category":"Footwear & Apparel"}`, want: "Shoes"},
			{name: "catalog spelling", out: `{"category":"laptops"}`, want: "Laptops"},
			{name: "none", out: `{"category":""}`, want: ""},
			{name: "unconstrained", out: `{"category":"` + core.CategoryUnconstrained + `"}`, want: ""},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				got, err := decodeIntent(tt.out, hint, testVocab)
				require.NoError(t, err)
				assert.Equal(t, tt.want, got.Category)
			})
		}
	})

	t.Run("compared products", func(t *testing.T) {
		hint := core.Intent{Kind: core.IntentComparison, Products: []string{"iphone", "pixel"}}

		got, err := decodeIntent(`{"kind":"comparison","products":["iPhone 15 Pro"," Pixel 8 "]}`, hint, testVocab)
		require.NoError(t, err)
		assert.Equal(t, []string{"iphone 15 pro", "pixel 8"}, got.Products)

		got, err = decodeIntent(`{"kind":"comparison","products":["iPhone 15 Pro"]}`, hint, testVocab)
		require.NoError(t, err)
		assert.Equal(t, []string{"iphone", "pixel"}, got.Products, "a single name keeps the hint")

		got, err = decodeIntent(`{"kind":"general","products":["a","b"]}`, hint, testVocab)
		require.NoError(t, err)
		assert.Nil(t, got.Products)
	})

	for name, out := range map[string]string{
		"no object":      "I think they want shoes",
		"broken JSON":    `{"kind": }`,
		"inverted range": `{"min_price": 100, "max_price": 10}`,
		"negative price": `{"max_price": -1}`,
	} {
		t.Run(name, func(t *testing.T) {
			_, err := decodeIntent(out, hint, testVocab)
			assert.ErrorIs(t, err, ErrUnparseable)
		})
	}
}

func TestAgent_Understand(t *testing.T) {
	tests := []struct {
		name         string
		timeout      time.Duration
		generate     func(ctx context.Context, prompt string) (string, error)
		text         string
		wantDegraded string
		wantCategory string
	}{
		{
			name:         "rules only",
			text:         "running shoes under $50",
			wantCategory: "Shoes",
		},
		{
			name: "model output used",
			generate: func(ctx context.Context, prompt string) (string, error) {
				return `{"kind":"general","category":"Laptops"}`, nil
			},
			text:         "something to code on",
			wantCategory: "Laptops",
		},
		{
			name: "invented category keeps the rule category",
			generate: func(ctx context.Context, prompt string) (string, error) {
				return `{"kind":"general","category":"Athletic Footwear"}`, nil
			},
			text:         "running shoes",
			wantCategory: "Shoes",
		},
		{
			name: "unparseable model output degrades",
			generate: func(ctx context.Context, prompt string) (string, error) {
				return "sorry, I cannot help", nil
			},
			text:         "running shoes",
			wantDegraded: ReasonParse,
			wantCategory: core.CategoryUnconstrained,
		},
		{
			name:    "slow model times out",
			timeout: 20 * time.Millisecond,
			generate: func(ctx context.Context, prompt string) (string, error) {
				<-ctx.Done()
				time.Sleep(50 * time.Millisecond)
				return `{"category":"Shoes"}`, nil
			},
			text:         "running shoes",
			wantDegraded: ReasonTimeout,
			wantCategory: core.CategoryUnconstrained,
		},
		{
			name: "model error degrades",
			generate: func(ctx context.Context, prompt string) (string, error) {
				return "", errors.New("502")
			},
			text:         "running shoes",
			wantDegraded: ReasonParse,
			wantCategory: core.CategoryUnconstrained,
		},
		{
			name:         "blank input degrades",
			text:         "   ",
			wantDegraded: ReasonEmptyInput,
			wantCategory: core.CategoryUnconstrained,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			timeout := tt.timeout
			if timeout == 0 {
				timeout = time.Second
			}
			opts := []Option{WithVocabulary(NewVocabulary(&mockCatalog{}, time.Minute))}
			if tt.generate != nil {
				opts = append(opts, WithGenerator(&mockGenerator{generateFunc: tt.generate}))
			}
			agent := NewAgent(timeout, opts...)

			got := agent.Understand(context.Background(), tt.text, nil)

			assert.Equal(t, tt.wantDegraded != "", got.Degraded)
			assert.Equal(t, tt.wantDegraded, got.DegradedReason)
			assert.Equal(t, tt.wantCategory, got.Category)
			if got.Degraded {
				assert.True(t, got.Constraints.IsZero(), "degraded intent carries no constraints")
				assert.Empty(t, got.Preferences)
				assert.Empty(t, got.Seeds)
			}
		})
	}
}

func TestAgent_Continuation(t *testing.T) {
	session := core.NewSession("s1")
	session.Turns = []core.Turn{
		{
			Seq:    1,
			Input:  "nike running shoes under $100",
			Status: core.TurnResponded,
			Intent: core.Intent{
				Kind:        core.IntentFilteredSearch,
				Category:    "Shoes",
				Constraints: core.Constraints{MaxPrice: core.Float(100), Brands: []string{"Nike"}},
				Preferences: map[string]float64{"running": 0.6},
			},
			Recommendations: core.RecommendationSet{{ProductID: "p1"}, {ProductID: "p2"}},
		},
		{Seq: 2, Input: "broken", Status: core.TurnFailed},
	}

	agent := NewAgent(time.Second, WithVocabulary(NewVocabulary(&mockCatalog{}, time.Minute)))

	got := agent.Understand(context.Background(), "something cheaper", session)
	assert.Equal(t, 1, got.RefersTo)
	assert.Equal(t, []string{"p1", "p2"}, got.Seeds)
	assert.Equal(t, "Shoes", got.Category)
	assert.Equal(t, []string{"Nike"}, got.Constraints.Brands)
	require.NotNil(t, got.Constraints.MaxPrice)
	assert.InDelta(t, 80, *got.Constraints.MaxPrice, 1e-9)
	assert.Equal(t, 0.6, got.Preferences["running"])

	fresh := agent.Understand(context.Background(), "a laptop", session)
	assert.Zero(t, fresh.RefersTo)
	assert.Empty(t, fresh.Seeds)
	assert.Equal(t, "Laptops", fresh.Category)

	noHistory := agent.Understand(context.Background(), "something cheaper", core.NewSession("s2"))
	assert.Zero(t, noHistory.RefersTo)
}

func TestVocabulary_CachesAndServesStale(t *testing.T) {
	ctx := context.Background()
	catalog := &mockCatalog{}
	v := NewVocabulary(catalog, time.Minute)

	assert.Equal(t, testVocab, v.Get(ctx))
	assert.Equal(t, testVocab, v.Get(ctx))
	assert.Equal(t, 1, catalog.calls)

	catalog.vocabularyFunc = func(ctx context.Context) (core.Vocabulary, error) {
		return core.Vocabulary{}, errors.New("db down")
	}
	v.Invalidate()
	assert.Equal(t, testVocab, v.Get(ctx), "last good vocabulary served")
	assert.Equal(t, 2, catalog.calls)

	assert.Equal(t, core.Vocabulary{}, NewVocabulary(nil, 0).Get(ctx))
}
