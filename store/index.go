package store

import (
	"context"
	"fmt"
	"math"

	"ragkb/model"
	"ragkb/types"
)

const embedBatchSize = 64

// VectorIndex holds the single live corpus and answers similarity queries
// against it.
type VectorIndex interface {
	// ReplaceAll discards the live corpus and installs chunks as the new one.
	// Readers observe either the old or the new corpus, never a mix.
	ReplaceAll(ctx context.Context, chunks []types.Chunk) error
	// Query returns the min(k, size) chunks most similar to text.
	Query(ctx context.Context, text string, k int) (types.QueryResult, error)
	IsEmpty(ctx context.Context) (bool, error)
	Stats(ctx context.Context) (types.IndexStats, error)
}

// embedAll embeds texts in batches and checks the provider returned one
// vector per input with a consistent dimension.
func embedAll(ctx context.Context, embedder model.EmbeddingProvider, texts []string) ([][]float32, error) {
	if embedder == nil {
		return nil, types.NewConfigurationError("embedding provider")
	}

	vectors := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += embedBatchSize {
		end := min(start+embedBatchSize, len(texts))
		batch, err := embedder.Embed(ctx, texts[start:end])
		if err != nil {
			return nil, types.NewProviderError("embed", err)
		}
		if len(batch) != end-start {
			return nil, types.NewProviderError("embed",
				fmt.Errorf("%s returned %d vectors for %d texts", embedder.Name(), len(batch), end-start))
		}
		vectors = append(vectors, batch...)
	}

	for i, v := range vectors {
		if len(v) == 0 || len(v) != len(vectors[0]) {
			return nil, types.NewProviderError("embed",
				fmt.Errorf("%s returned a vector of dimension %d at position %d", embedder.Name(), len(v), i))
		}
	}
	return vectors, nil
}

func embedOne(ctx context.Context, embedder model.EmbeddingProvider, text string) ([]float32, error) {
	vectors, err := embedAll(ctx, embedder, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// CosineSimilarity returns 0 when either vector has zero length or the
// dimensions differ.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
