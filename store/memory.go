package store

import (
	"cmp"
	"context"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"ragkb/model"
	"ragkb/types"
)

type snapshot struct {
	chunks  []types.Chunk
	vectors [][]float32
	stats   types.IndexStats
}

// MemoryIndex keeps the corpus in process memory. A new corpus is embedded
// aside and published with a single pointer swap.
type MemoryIndex struct {
	embedder model.EmbeddingProvider
	logger   *slog.Logger

	writes chan struct{}
	mu     sync.RWMutex
	live   *snapshot
}

var _ VectorIndex = (*MemoryIndex)(nil)

func NewMemoryIndex(embedder model.EmbeddingProvider, logger *slog.Logger) *MemoryIndex {
	if logger == nil {
		logger = slog.Default()
	}
	return &MemoryIndex{
		embedder: embedder,
		logger:   logger.With("component", "memory_index"),
		live:     &snapshot{},
		writes:   make(chan struct{}, 1),
	}
}

func (m *MemoryIndex) ReplaceAll(ctx context.Context, chunks []types.Chunk) error {
	select {
	case m.writes <- struct{}{}:
		defer func() { <-m.writes }()
	case <-ctx.Done():
		return ctx.Err()
	}

	next := &snapshot{
		chunks: slices.Clone(chunks),
		stats: types.IndexStats{
			Generation: uuid.New(),
			Chunks:     len(chunks),
		},
	}

	if len(chunks) > 0 {
		texts := make([]string, len(chunks))
		for i, c := range chunks {
			texts[i] = c.Text
		}
		start := time.Now()
		vectors, err := embedAll(ctx, m.embedder, texts)
		if err != nil {
			return err
		}
		next.vectors = vectors
		m.logger.Debug("embedded corpus", "chunks", len(chunks), "took", time.Since(start))
	}
	next.stats.IndexedAt = time.Now()

	m.mu.Lock()
	m.live = next
	m.mu.Unlock()

	m.logger.Info("corpus replaced", "generation", next.stats.Generation, "chunks", len(chunks))
	return nil
}

func (m *MemoryIndex) Query(ctx context.Context, text string, k int) (types.QueryResult, error) {
	snap := m.snapshot()
	if k <= 0 || len(snap.chunks) == 0 {
		return types.QueryResult{}, nil
	}

	q, err := embedOne(ctx, m.embedder, text)
	if err != nil {
		return nil, err
	}

	scored := make(types.QueryResult, len(snap.chunks))
	for i, c := range snap.chunks {
		scored[i] = types.ScoredChunk{Chunk: c, Score: CosineSimilarity(q, snap.vectors[i])}
	}
	slices.SortStableFunc(scored, func(a, b types.ScoredChunk) int {
		if c := cmp.Compare(b.Score, a.Score); c != 0 {
			return c
		}
		return cmp.Compare(a.Chunk.Ordinal, b.Chunk.Ordinal)
	})
	return scored[:min(k, len(scored))], nil
}

func (m *MemoryIndex) IsEmpty(context.Context) (bool, error) {
	return len(m.snapshot().chunks) == 0, nil
}

func (m *MemoryIndex) Stats(context.Context) (types.IndexStats, error) {
	return m.snapshot().stats, nil
}

func (m *MemoryIndex) snapshot() *snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.live
}
