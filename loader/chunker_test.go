package loader

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func words(n int) string {
	w := make([]string, n)
	for i := range w {
		w[i] = "w" + strings.Repeat("x", i%7)
	}
	return strings.Join(w, " ")
}

func TestChunkText_Empty(t *testing.T) {
	chunks, err := ChunkText(WordTokenizer{}, "", 600, 100)
	require.NoError(t, err)
	assert.Empty(t, chunks)
}

func TestChunkText_SingleWindow(t *testing.T) {
	text := "Paris is the capital of France. It has a population of about 2 million."
	chunks, err := ChunkText(WordTokenizer{}, text, 600, 100)
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, text, chunks[0])

	// exactly chunkSize tokens is still one chunk
	chunks, err = ChunkText(WordTokenizer{}, words(10), 10, 3)
	require.NoError(t, err)
	assert.Len(t, chunks, 1)
}

func TestChunkText_Windows(t *testing.T) {
	text := "one two three four five six seven eight nine ten"
	chunks, err := ChunkText(WordTokenizer{}, text, 4, 2)
	require.NoError(t, err)
	assert.Equal(t, []string{
		"one two three four",
		" three four five six",
		" five six seven eight",
		" seven eight nine ten",
	}, chunks)
}

func TestChunkText_DisjointWithoutOverlap(t *testing.T) {
	text := words(23)
	chunks, err := ChunkText(WordTokenizer{}, text, 5, 0)
	require.NoError(t, err)
	assert.Len(t, chunks, 5)
	assert.Equal(t, text, strings.Join(chunks, ""))
}

func TestChunkText_Count(t *testing.T) {
	tests := []struct {
		n, size, overlap int
	}{
		{0, 600, 100},
		{1, 600, 100},
		{600, 600, 100},
		{601, 600, 100},
		{1100, 600, 100},
		{1101, 600, 100},
		{2500, 600, 100},
		{9, 4, 2},
		{10, 4, 2},
		{17, 5, 0},
		{50, 7, 6},
	}

	for _, tt := range tests {
		chunks, err := ChunkText(WordTokenizer{}, words(tt.n), tt.size, tt.overlap)
		require.NoError(t, err)

		want := 0
		switch {
		case tt.n == 0:
			want = 0
		case tt.n <= tt.size:
			want = 1
		default:
			stride := tt.size - tt.overlap
			want = (tt.n - tt.overlap + stride - 1) / stride
		}
		assert.Len(t, chunks, want, "n=%d size=%d overlap=%d", tt.n, tt.size, tt.overlap)
		assert.Equal(t, want, ExpectedChunks(tt.n, tt.size, tt.overlap))
	}
}

func TestChunkText_Reconstruct(t *testing.T) {
	tok := WordTokenizer{}
	for _, tc := range []struct{ n, size, overlap int }{
		{100, 30, 5},
		{101, 10, 9},
		{64, 8, 0},
		{7, 20, 4},
	} {
		text := words(tc.n) + "\n"
		chunks, err := ChunkText(tok, text, tc.size, tc.overlap)
		require.NoError(t, err)

		var rebuilt []string
		for i, c := range chunks {
			pieces := tok.Tokenize(c)
			assert.LessOrEqual(t, len(pieces), tc.size)
			if i > 0 {
				require.Greater(t, len(pieces), tc.overlap)
				pieces = pieces[tc.overlap:]
			}
			rebuilt = append(rebuilt, pieces...)
		}
		assert.Equal(t, tok.Tokenize(text), rebuilt)
		assert.Equal(t, text, strings.Join(rebuilt, ""))
	}
}

func TestChunkText_InvalidWindow(t *testing.T) {
	for _, tc := range []struct{ size, overlap int }{
		{0, 0},
		{10, 10},
		{10, 11},
		{10, -1},
	} {
		_, err := ChunkText(WordTokenizer{}, "text", tc.size, tc.overlap)
		assert.ErrorIs(t, err, ErrInvalidWindow)
	}

	_, err := NewChunker(nil, 5, 5)
	assert.ErrorIs(t, err, ErrInvalidWindow)
}

func TestChunker_Defaults(t *testing.T) {
	c, err := NewChunker(nil, DefaultChunkSize, DefaultChunkOverlap)
	require.NoError(t, err)
	assert.Equal(t, 600, c.Size())
	assert.Equal(t, 100, c.Overlap())
	assert.Equal(t, "words", c.Tokenizer().Name())
	assert.Len(t, c.Chunk(words(1101)), 3)
}

func TestChunkText_Tiktoken(t *testing.T) {
	tok := newTiktoken(t)
	texts := []string{
		strings.Repeat("The lighthouse keeper on the northern island is named Ada. ", 40),
		"東京は日本の首都です。🙂🙂🙂 私は猫が好きです。",
		strings.Repeat("Größe, Straße und Ärger. 日本語のテキスト。🚀 ", 25),
	}
	windows := []struct{ size, overlap int }{
		{3, 1},
		{5, 0},
		{16, 4},
		{600, 100},
	}

	for _, text := range texts {
		pieces := tok.Tokenize(text)
		require.Equal(t, text, strings.Join(pieces, ""))

		for _, w := range windows {
			chunks, err := ChunkText(tok, text, w.size, w.overlap)
			require.NoError(t, err)
			assert.Len(t, chunks, ExpectedChunks(len(pieces), w.size, w.overlap), "size=%d overlap=%d", w.size, w.overlap)

			stride := w.size - w.overlap
			for i, c := range chunks {
				assert.True(t, utf8.ValidString(c), "chunk %d %q", i, c)
				start := i * stride
				assert.Equal(t, strings.Join(pieces[start:min(start+w.size, len(pieces))], ""), c)
			}

			var rebuilt strings.Builder
			for i := range chunks {
				start := i * stride
				end := min(start+stride, len(pieces))
				if i == len(chunks)-1 {
					end = len(pieces)
				}
				rebuilt.WriteString(strings.Join(pieces[start:end], ""))
			}
			assert.Equal(t, text, rebuilt.String())
		}
	}
}
