package model

import (
	"context"
	"math"
)

// EmbeddingProvider maps texts to fixed-length vectors, one per input, in order.
type EmbeddingProvider interface {
	Name() string
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// GenerativeProvider maps a prompt to a generated completion.
type GenerativeProvider interface {
	Name() string
	Generate(ctx context.Context, prompt string) (string, error)
}

// Providers is the capability descriptor handed to the pipeline at
// construction. A nil field means the capability is not configured.
type Providers struct {
	Embedder  EmbeddingProvider
	Generator GenerativeProvider
}

func (p Providers) EmbeddingAvailable() bool { return p.Embedder != nil }

func (p Providers) GenerationAvailable() bool { return p.Generator != nil }

// IsAvailable reports whether both capabilities are configured.
func (p Providers) IsAvailable() bool {
	return p.EmbeddingAvailable() && p.GenerationAvailable()
}

// Normalize scales v to unit length in place.
func Normalize(v []float32) []float32 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return v
	}
	inv := float32(1 / math.Sqrt(sum))
	for i := range v {
		v[i] *= inv
	}
	return v
}
