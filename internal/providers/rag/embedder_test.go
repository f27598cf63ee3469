package rag

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/sandevgo/recomate/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockModel is a test double for the Model interface
type mockModel struct {
	embedFunc func(ctx context.Context, text string) ([]float32, error)
	calls     []string
}

func (m *mockModel) Embed(ctx context.Context, text string) ([]float32, error) {
	m.calls = append(m.calls, text)
	if m.embedFunc != nil {
		return m.embedFunc(ctx, text)
	}
	return []float32{0.1, 0.2, 0.3}, nil
}

func (m *mockModel) Dimensions() int { return 3 }

func TestEmbedder_Embed(t *testing.T) {
	tests := []struct {
		name        string
		timeout     time.Duration
		embedFunc   func(ctx context.Context, text string) ([]float32, error)
		want        []float32
		errContains string
	}{
		{
			name: "successfully embeds query",
			want: []float32{0.1, 0.2, 0.3},
		},
		{
			name: "wraps model failure",
			embedFunc: func(ctx context.Context, text string) ([]float32, error) {
				return nil, errors.New("model connection failed")
			},
			errContains: "failed to embed query",
		},
		{
			name:    "respects timeout",
			timeout: 20 * time.Millisecond,
			embedFunc: func(ctx context.Context, text string) ([]float32, error) {
				select {
				case <-time.After(200 * time.Millisecond):
					return []float32{0.1}, nil
				case <-ctx.Done():
					return nil, ctx.Err()
				}
			},
			errContains: "context deadline exceeded",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := &mockModel{embedFunc: tt.embedFunc}
			opts := []EmbedderOption{WithChunker(NewChunker(ChunkerConfig{MaxTokens: 10}, newWordTokenizer()))}
			if tt.timeout > 0 {
				opts = append(opts, WithTimeout(tt.timeout))
			}
			e := NewEmbedder(mock, opts...)

			got, err := e.Embed(context.Background(), "running shoes")
			if tt.errContains != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errContains)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, []string{"running shoes"}, mock.calls)
		})
	}
}

func TestEmbedder_CachesQueries(t *testing.T) {
	mock := &mockModel{}
	e := NewEmbedder(mock, WithCache(100), WithChunker(NewChunker(ChunkerConfig{MaxTokens: 10}, newWordTokenizer())))
	defer e.Close()

	_, err := e.Embed(context.Background(), "laptop")
	require.NoError(t, err)
	e.cache.Wait()

	got, err := e.Embed(context.Background(), "laptop")
	require.NoError(t, err)
	assert.Equal(t, []float32{0.1, 0.2, 0.3}, got)
	assert.Len(t, mock.calls, 1)
}

func TestEmbedder_EmbedPassage(t *testing.T) {
	tests := []struct {
		name        string
		text        string
		embedFunc   func(ctx context.Context, text string) ([]float32, error)
		wantChunks  int
		errContains string
	}{
		{
			name:       "empty text returns no passages",
			text:       "",
			wantChunks: 0,
		},
		{
			name:       "short review is one passage",
			text:       "Short review.",
			wantChunks: 1,
		},
		{
			name:       "long review is chunked",
			text:       "First part of the review here. Second part of the review here.",
			wantChunks: 2,
		},
		{
			name: "reports failing chunk index",
			text: "First part of the review here. Second part of the review here.",
			embedFunc: func(ctx context.Context, text string) ([]float32, error) {
				if strings.HasPrefix(text, "Second") {
					return nil, errors.New("embedding failed")
				}
				return []float32{0.1}, nil
			},
			errContains: "failed to embed chunk 1",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := &mockModel{embedFunc: tt.embedFunc}
			e := NewEmbedder(mock, WithChunker(NewChunker(ChunkerConfig{MaxTokens: 8}, newWordTokenizer())))

			got, err := e.EmbedPassage(context.Background(), tt.text)
			if tt.errContains != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errContains)
				return
			}
			require.NoError(t, err)
			assert.Len(t, got, tt.wantChunks)
			assert.Len(t, mock.calls, tt.wantChunks)
		})
	}
}

func TestHashModel(t *testing.T) {
	m := NewHashModel(64)
	ctx := context.Background()

	a, err := m.Embed(ctx, "Lightweight running shoes")
	require.NoError(t, err)
	b, err := m.Embed(ctx, "lightweight RUNNING shoes!")
	require.NoError(t, err)
	c, err := m.Embed(ctx, "mechanical keyboard")
	require.NoError(t, err)

	require.Len(t, a, 64)
	assert.InDelta(t, 1.0, dot(a, a), 1e-4, "unit length")
	assert.InDelta(t, 1.0, dot(a, b), 1e-4, "case and punctuation insensitive")
	assert.Less(t, dot(a, c), dot(a, b))

	empty, err := m.Embed(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, 0.0, dot(empty, empty))
}

func dot(a, b []float32) float64 {
	var s float64
	for i := range a {
		s += float64(a[i]) * float64(b[i])
	}
	return math.Round(s*1e6) / 1e6
}

func TestOpenAIModel_Embed(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/embeddings", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))

		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "text-embedding-3-small", body["model"])
		assert.Equal(t, "good battery", body["input"])

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"data":[{"embedding":[0.5,0.25]}]}`))
	}))
	defer server.Close()

	m := NewOpenAIModel(server.URL+"/", "sk-test", "text-embedding-3-small", 2)
	got, err := m.Embed(context.Background(), "good battery")
	require.NoError(t, err)
	assert.Equal(t, []float32{0.5, 0.25}, got)
}

func TestOpenAIModel_HTTPError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte("slow down"))
	}))
	defer server.Close()

	_, err := NewOpenAIModel(server.URL, "k", "m", 0).Embed(context.Background(), "x")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "http 429")
}

func TestNewModel(t *testing.T) {
	m, err := NewModel(&config.EmbeddingConfig{Provider: config.EmbedderHash, Dimensions: 16})
	require.NoError(t, err)
	assert.Equal(t, 16, m.Dimensions())

	_, err = NewModel(&config.EmbeddingConfig{Provider: config.EmbedderOpenAI})
	assert.Error(t, err)

	_, err = NewModel(&config.EmbeddingConfig{Provider: "word2vec"})
	assert.Error(t, err)
}
