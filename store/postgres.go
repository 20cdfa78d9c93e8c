package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"ragkb/model"
	"ragkb/types"
)

// replaceLockKey serialises corpus replacement across every process sharing
// the database.
const replaceLockKey int64 = 0x7261676b62

type PostgresConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
}

func (c PostgresConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s", c.User, c.Password, c.Host, c.Port, c.DBName)
}

// PostgresIndex stores the corpus in a pgvector table. Replacement runs in
// one transaction, so concurrent readers see the old or the new corpus.
type PostgresIndex struct {
	pool       *pgxpool.Pool
	embedder   model.EmbeddingProvider
	dimensions int
	logger     *slog.Logger
}

var _ VectorIndex = (*PostgresIndex)(nil)

func NewPostgresIndex(ctx context.Context, connStr string, dimensions int, embedder model.EmbeddingProvider, logger *slog.Logger) (*PostgresIndex, error) {
	if dimensions <= 0 {
		return nil, fmt.Errorf("postgres index: invalid vector dimension %d", dimensions)
	}
	if logger == nil {
		logger = slog.Default()
	}

	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		return nil, err
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return &PostgresIndex{
		pool:       pool,
		embedder:   embedder,
		dimensions: dimensions,
		logger:     logger.With("component", "postgres_index"),
	}, nil
}

func (p *PostgresIndex) Init(ctx context.Context) error {
	query := fmt.Sprintf(`
	CREATE EXTENSION IF NOT EXISTS vector;

	CREATE TABLE IF NOT EXISTS corpus_chunks (
		ordinal INT PRIMARY KEY,
		id TEXT NOT NULL,
		content TEXT NOT NULL,
		embedding vector(%d) NOT NULL
	);

	CREATE TABLE IF NOT EXISTS corpus_generation (
		singleton BOOLEAN PRIMARY KEY DEFAULT TRUE CHECK (singleton),
		generation UUID NOT NULL,
		chunks INT NOT NULL,
		indexed_at TIMESTAMP WITH TIME ZONE NOT NULL
	);
	`, p.dimensions)
	_, err := p.pool.Exec(ctx, query)
	return err
}

func (p *PostgresIndex) ReplaceAll(ctx context.Context, chunks []types.Chunk) error {
	var vectors [][]float32
	if len(chunks) > 0 {
		texts := make([]string, len(chunks))
		for i, c := range chunks {
			texts[i] = c.Text
		}
		var err error
		vectors, err = embedAll(ctx, p.embedder, texts)
		if err != nil {
			return err
		}
		if len(vectors[0]) != p.dimensions {
			return types.NewProviderError("embed",
				fmt.Errorf("vector dimension %d does not match index dimension %d", len(vectors[0]), p.dimensions))
		}
	}

	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, "SELECT pg_advisory_xact_lock($1)", replaceLockKey); err != nil {
		return fmt.Errorf("error acquiring replace lock: %w", err)
	}
	if _, err := tx.Exec(ctx, "DELETE FROM corpus_chunks"); err != nil {
		return fmt.Errorf("error deleting old chunks: %w", err)
	}

	if len(chunks) > 0 {
		batch := &pgx.Batch{}
		for i, c := range chunks {
			batch.Queue(`INSERT INTO corpus_chunks (ordinal, id, content, embedding) VALUES ($1, $2, $3, $4)`,
				c.Ordinal, c.ID, c.Text, pgvector.NewVector(vectors[i]))
		}
		br := tx.SendBatch(ctx, batch)
		for range chunks {
			if _, err := br.Exec(); err != nil {
				br.Close()
				return fmt.Errorf("error inserting chunk: %w", err)
			}
		}
		if err := br.Close(); err != nil {
			return err
		}
	}

	generation := uuid.New()
	_, err = tx.Exec(ctx, `
		INSERT INTO corpus_generation (singleton, generation, chunks, indexed_at)
		VALUES (TRUE, $1, $2, $3)
		ON CONFLICT (singleton) DO UPDATE SET
			generation = EXCLUDED.generation,
			chunks = EXCLUDED.chunks,
			indexed_at = EXCLUDED.indexed_at`,
		generation, len(chunks), time.Now())
	if err != nil {
		return fmt.Errorf("error recording generation: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return err
	}
	p.logger.Info("corpus replaced", "generation", generation, "chunks", len(chunks))
	return nil
}

func (p *PostgresIndex) Query(ctx context.Context, text string, k int) (types.QueryResult, error) {
	if k <= 0 {
		return types.QueryResult{}, nil
	}
	empty, err := p.IsEmpty(ctx)
	if err != nil {
		return nil, err
	}
	if empty {
		return types.QueryResult{}, nil
	}

	q, err := embedOne(ctx, p.embedder, text)
	if err != nil {
		return nil, err
	}

	rows, err := p.pool.Query(ctx, `
		SELECT ordinal, id, content, 1-(embedding <=> $1) AS score
		FROM corpus_chunks
		ORDER BY embedding <=> $1, ordinal
		LIMIT $2`, pgvector.NewVector(q), k)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := types.QueryResult{}
	for rows.Next() {
		var sc types.ScoredChunk
		if err := rows.Scan(&sc.Chunk.Ordinal, &sc.Chunk.ID, &sc.Chunk.Text, &sc.Score); err != nil {
			return nil, err
		}
		result = append(result, sc)
	}
	return result, rows.Err()
}

func (p *PostgresIndex) IsEmpty(ctx context.Context) (bool, error) {
	var exists bool
	err := p.pool.QueryRow(ctx, "SELECT EXISTS (SELECT 1 FROM corpus_chunks)").Scan(&exists)
	return !exists, err
}

func (p *PostgresIndex) Stats(ctx context.Context) (types.IndexStats, error) {
	var stats types.IndexStats
	err := p.pool.QueryRow(ctx,
		"SELECT generation, chunks, indexed_at FROM corpus_generation WHERE singleton").
		Scan(&stats.Generation, &stats.Chunks, &stats.IndexedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return types.IndexStats{}, nil
	}
	return stats, err
}

func (p *PostgresIndex) Close() error {
	if p.pool != nil {
		p.pool.Close()
		p.logger.Info("Postgres connection pool is closed")
	}
	return nil
}
