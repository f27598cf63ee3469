package rag

import (
	"context"
	"hash/fnv"
	"math"
	"strings"
	"unicode"
)

// HashModel is an offline embedding model. Each word is hashed into a
// pseudo-random direction and the directions are summed, so texts sharing
// vocabulary land close together.
type HashModel struct {
	dimensions int
}

func NewHashModel(dimensions int) *HashModel {
	if dimensions <= 0 {
		dimensions = 384
	}
	return &HashModel{dimensions: dimensions}
}

func (m *HashModel) Dimensions() int {
	return m.dimensions
}

func (m *HashModel) Embed(_ context.Context, text string) ([]float32, error) {
	vec := make([]float32, m.dimensions)

	for _, word := range words(text) {
		h := fnv.New64a()
		h.Write([]byte(word))
		seed := h.Sum64()

		for i := range vec {
			// LCG step, mapped to [-1, 1]
			seed = seed*6364136223846793005 + 1442695040888963407
			vec[i] += float32(int64(seed)) / float32(math.MaxInt64)
		}
	}

	return normalize(vec), nil
}

func words(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
}

func normalize(vec []float32) []float32 {
	var sum float64
	for _, v := range vec {
		sum += float64(v) * float64(v)
	}
	if sum == 0 {
		return vec
	}
	norm := float32(math.Sqrt(sum))
	for i := range vec {
		vec[i] /= norm
	}
	return vec
}
