package loader

import (
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/pkoukk/tiktoken-go"
	tiktoken_loader "github.com/pkoukk/tiktoken-go-loader"
)

const DefaultEncoding = "cl100k_base"

// Tokenizer splits text into pieces whose concatenation is the original text.
type Tokenizer interface {
	Name() string
	Tokenize(text string) []string
}

// TiktokenTokenizer tokenizes with an OpenAI BPE encoding.
type TiktokenTokenizer struct {
	encoding string
	enc      *tiktoken.Tiktoken
}

var offlineBpe sync.Once

// NewTiktokenTokenizer loads the encoding from the BPE tables embedded in
// the binary, so no network access is needed.
func NewTiktokenTokenizer(encoding string) (*TiktokenTokenizer, error) {
	if encoding == "" {
		encoding = DefaultEncoding
	}
	offlineBpe.Do(func() {
		tiktoken.SetBpeLoader(tiktoken_loader.NewOfflineLoader())
	})
	enc, err := tiktoken.GetEncoding(encoding)
	if err != nil {
		return nil, fmt.Errorf("failed to load encoding %s: %w", encoding, err)
	}
	return &TiktokenTokenizer{encoding: encoding, enc: enc}, nil
}

func (t *TiktokenTokenizer) Name() string { return "tiktoken:" + t.encoding }

// Tokenize decodes tokens one by one. Tokens holding part of a multi-byte
// character are merged with their neighbours until the piece is valid
// UTF-8, so a window boundary never splits a character.
func (t *TiktokenTokenizer) Tokenize(text string) []string {
	text = strings.ToValidUTF8(text, "\uFFFD")
	ids := t.enc.Encode(text, nil, nil)
	pieces := make([]string, 0, len(ids))
	var buf []byte
	for _, id := range ids {
		buf = append(buf, t.enc.Decode([]int{id})...)
		if utf8.Valid(buf) {
			pieces = append(pieces, string(buf))
			buf = buf[:0]
		}
	}
	if len(buf) > 0 {
		pieces = append(pieces, string(buf))
	}
	return pieces
}

var wordPattern = regexp.MustCompile(`\s*\S+`)

// WordTokenizer treats every whitespace-prefixed word as one token.
type WordTokenizer struct{}

func (WordTokenizer) Name() string { return "words" }

func (WordTokenizer) Tokenize(text string) []string {
	if text == "" {
		return nil
	}
	locs := wordPattern.FindAllStringIndex(text, -1)
	if len(locs) == 0 {
		return []string{text}
	}
	pieces := make([]string, len(locs))
	for i, loc := range locs {
		pieces[i] = text[loc[0]:loc[1]]
	}
	if end := locs[len(locs)-1][1]; end < len(text) {
		pieces[len(pieces)-1] += text[end:]
	}
	return pieces
}

// NewTokenizer loads the BPE encoding and falls back to WordTokenizer when
// the encoding is unknown.
func NewTokenizer(encoding string, logger *slog.Logger) Tokenizer {
	if encoding == "words" {
		return WordTokenizer{}
	}
	tok, err := NewTiktokenTokenizer(encoding)
	if err != nil {
		if logger != nil {
			logger.Warn("tiktoken unavailable, using word tokenizer", "encoding", encoding, "error", err)
		}
		return WordTokenizer{}
	}
	return tok
}

// CountTokens returns the number of tokens text splits into.
func CountTokens(tok Tokenizer, text string) int {
	return len(tok.Tokenize(text))
}
