package types

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Chunk is one retrievable span of the ingested corpus.
type Chunk struct {
	ID      string
	Text    string
	Ordinal int
}

// ChunkID returns the id assigned to the chunk at the given ordinal.
func ChunkID(ordinal int) string {
	return fmt.Sprintf("id_%d", ordinal)
}

// NewChunks assigns ids and ordinals to texts in order.
func NewChunks(texts []string) []Chunk {
	chunks := make([]Chunk, len(texts))
	for i, text := range texts {
		chunks[i] = Chunk{
			ID:      ChunkID(i),
			Text:    text,
			Ordinal: i,
		}
	}
	return chunks
}

type ScoredChunk struct {
	Chunk Chunk
	Score float64
}

// QueryResult is ordered by descending score, ties by ascending ordinal.
type QueryResult []ScoredChunk

// Texts returns the chunk texts in result order.
func (r QueryResult) Texts() []string {
	texts := make([]string, len(r))
	for i, sc := range r {
		texts[i] = sc.Chunk.Text
	}
	return texts
}

// IndexStats describes the live corpus generation.
type IndexStats struct {
	Generation uuid.UUID
	Chunks     int
	IndexedAt  time.Time
}

type IngestResult struct {
	ChunkCount int
}

type Answer struct {
	Answer string
}
