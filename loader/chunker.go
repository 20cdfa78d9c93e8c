package loader

import (
	"errors"
	"fmt"
	"strings"
)

const (
	DefaultChunkSize    = 600
	DefaultChunkOverlap = 100
)

var ErrInvalidWindow = errors.New("invalid chunk window")

// Chunker splits text into overlapping token windows.
type Chunker struct {
	tokenizer Tokenizer
	size      int
	overlap   int
}

func NewChunker(tokenizer Tokenizer, size, overlap int) (*Chunker, error) {
	if err := checkWindow(size, overlap); err != nil {
		return nil, err
	}
	if tokenizer == nil {
		tokenizer = WordTokenizer{}
	}
	return &Chunker{tokenizer: tokenizer, size: size, overlap: overlap}, nil
}

func (c *Chunker) Size() int            { return c.size }
func (c *Chunker) Overlap() int         { return c.overlap }
func (c *Chunker) Tokenizer() Tokenizer { return c.tokenizer }

func (c *Chunker) Chunk(text string) []string {
	return window(c.tokenizer.Tokenize(text), c.size, c.overlap)
}

// ChunkText tokenizes text and emits windows of chunkSize tokens advancing by
// chunkSize-overlap. The last window is the first one reaching the end of
// the token stream, so a short tail is emitted once.
func ChunkText(tokenizer Tokenizer, text string, chunkSize, overlap int) ([]string, error) {
	if err := checkWindow(chunkSize, overlap); err != nil {
		return nil, err
	}
	return window(tokenizer.Tokenize(text), chunkSize, overlap), nil
}

// ExpectedChunks returns how many windows a stream of n tokens yields.
func ExpectedChunks(n, chunkSize, overlap int) int {
	switch {
	case n <= 0:
		return 0
	case n <= chunkSize:
		return 1
	}
	stride := chunkSize - overlap
	return (n - overlap + stride - 1) / stride
}

func window(tokens []string, size, overlap int) []string {
	n := len(tokens)
	if n == 0 {
		return nil
	}
	stride := size - overlap
	chunks := make([]string, 0, ExpectedChunks(n, size, overlap))
	for start := 0; start < n; start += stride {
		end := min(start+size, n)
		chunks = append(chunks, strings.Join(tokens[start:end], ""))
		if start+size >= n {
			break
		}
	}
	return chunks
}

func checkWindow(size, overlap int) error {
	if size <= 0 || overlap < 0 || overlap >= size {
		return fmt.Errorf("%w: size=%d overlap=%d", ErrInvalidWindow, size, overlap)
	}
	return nil
}
