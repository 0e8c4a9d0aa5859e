package embedding

import (
	"context"
	"hash/fnv"
	"strings"
)

// LocalProvider is a deterministic, dependency-free embedder used for tests
// and offline development. It hashes character trigrams into a fixed-width
// vector, so semantically similar strings land closer together without
// calling out to a real model.
type LocalProvider struct {
	dimension int
}

// NewLocalProvider constructs a LocalProvider with the given vector width.
func NewLocalProvider(dimension int) *LocalProvider {
	if dimension <= 0 {
		dimension = 256
	}
	return &LocalProvider{dimension: dimension}
}

func (p *LocalProvider) Name() string { return "local:trigram-hash" }

func (p *LocalProvider) Dimension() int { return p.dimension }

func (p *LocalProvider) Embed(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = normalize(p.embedOne(t))
	}
	return out, nil
}

func (p *LocalProvider) embedOne(text string) []float32 {
	vec := make([]float32, p.dimension)
	normalized := strings.ToLower(strings.TrimSpace(text))
	runes := []rune(normalized)
	if len(runes) == 0 {
		return vec
	}
	n := 3
	if len(runes) < n {
		n = len(runes)
	}
	for i := 0; i+n <= len(runes); i++ {
		gram := string(runes[i : i+n])
		h := fnv.New32a()
		_, _ = h.Write([]byte(gram))
		bucket := int(h.Sum32()) % p.dimension
		if bucket < 0 {
			bucket += p.dimension
		}
		vec[bucket]++
	}
	return vec
}
