package model

import (
	"context"

	"golang.org/x/time/rate"
)

// RateLimited wraps providers so that every call first waits for a token
// from a shared limiter.
type RateLimited struct {
	limiter *rate.Limiter
}

// NewRateLimited returns nil when rps is not positive, meaning no limit.
func NewRateLimited(rps float64, burst int) *RateLimited {
	if rps <= 0 {
		return nil
	}
	if burst <= 0 {
		burst = 1
	}
	return &RateLimited{limiter: rate.NewLimiter(rate.Limit(rps), burst)}
}

func (r *RateLimited) Embedder(e EmbeddingProvider) EmbeddingProvider {
	if r == nil || e == nil {
		return e
	}
	return &limitedEmbedder{next: e, limiter: r.limiter}
}

func (r *RateLimited) Generator(g GenerativeProvider) GenerativeProvider {
	if r == nil || g == nil {
		return g
	}
	return &limitedGenerator{next: g, limiter: r.limiter}
}

type limitedEmbedder struct {
	next    EmbeddingProvider
	limiter *rate.Limiter
}

func (l *limitedEmbedder) Name() string { return l.next.Name() }

func (l *limitedEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if err := l.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	return l.next.Embed(ctx, texts)
}

type limitedGenerator struct {
	next    GenerativeProvider
	limiter *rate.Limiter
}

func (l *limitedGenerator) Name() string { return l.next.Name() }

func (l *limitedGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	if err := l.limiter.Wait(ctx); err != nil {
		return "", err
	}
	return l.next.Generate(ctx, prompt)
}
