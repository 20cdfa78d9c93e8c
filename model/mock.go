package model

import (
	"context"
	"hash/fnv"
	"strings"
	"sync"
	"time"
	"unicode"
)

const defaultMockDimensions = 256

// MockEmbedder is an offline embedding provider. It hashes lowercased words
// into a fixed number of buckets, so texts sharing vocabulary score higher.
type MockEmbedder struct {
	Dimensions int
	Err        error
	Delay      time.Duration

	mu    sync.Mutex
	calls [][]string
}

func NewMockEmbedder() *MockEmbedder {
	return &MockEmbedder{Dimensions: defaultMockDimensions}
}

func (m *MockEmbedder) Name() string { return "mock" }

func (m *MockEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	m.mu.Lock()
	m.calls = append(m.calls, append([]string(nil), texts...))
	err, delay := m.Err, m.Delay
	m.mu.Unlock()

	if err := sleep(ctx, delay); err != nil {
		return nil, err
	}
	if err != nil {
		return nil, err
	}

	out := make([][]float32, len(texts))
	for i, text := range texts {
		out[i] = m.vector(text)
	}
	return out, nil
}

// Calls returns the batches passed to Embed so far.
func (m *MockEmbedder) Calls() [][]string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([][]string(nil), m.calls...)
}

func (m *MockEmbedder) vector(text string) []float32 {
	dims := m.Dimensions
	if dims <= 0 {
		dims = defaultMockDimensions
	}
	v := make([]float32, dims)
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
	for _, w := range words {
		h := fnv.New32a()
		h.Write([]byte(w))
		v[h.Sum32()%uint32(dims)]++
	}
	return Normalize(v)
}

// MockGenerator records prompts and answers with Response, or with the
// result of Func when set.
type MockGenerator struct {
	Response string
	Func     func(prompt string) (string, error)
	Err      error
	Delay    time.Duration

	mu      sync.Mutex
	prompts []string
}

func NewMockGenerator(response string) *MockGenerator {
	return &MockGenerator{Response: response}
}

func (m *MockGenerator) Name() string { return "mock" }

func (m *MockGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	m.mu.Lock()
	m.prompts = append(m.prompts, prompt)
	fn, resp, err, delay := m.Func, m.Response, m.Err, m.Delay
	m.mu.Unlock()

	if err := sleep(ctx, delay); err != nil {
		return "", err
	}
	if err != nil {
		return "", err
	}
	if fn != nil {
		return fn(prompt)
	}
	return resp, nil
}

// Prompts returns every prompt received so far.
func (m *MockGenerator) Prompts() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.prompts...)
}

func (m *MockGenerator) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.prompts)
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
