// Package embedding turns text into unit-normalized vectors for the memory
// store's ANN index and the retriever's query-time similarity search. All
// providers return already-normalized vectors so downstream cosine
// similarity is a plain dot product.
package embedding

import (
	"context"
	"math"
)

// Provider embeds a batch of texts in one round trip. Implementations must
// return vectors in the same order as texts and of the provider's fixed
// Dimension().
type Provider interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	Dimension() int
	Name() string
}

func normalize(v []float32) []float32 {
	var sumSq float64
	for _, x := range v {
		sumSq += float64(x) * float64(x)
	}
	if sumSq == 0 {
		return v
	}
	inv := float32(1.0 / math.Sqrt(sumSq))
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = x * inv
	}
	return out
}
