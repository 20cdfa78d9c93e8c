package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ragkb/loader"
	"ragkb/model"
	"ragkb/store"
	"ragkb/types"
)

// contextEcho answers with the first context line of the prompt.
func contextEcho(prompt string) (string, error) {
	_, after, ok := strings.Cut(prompt, "Context:\n")
	if !ok {
		return "", errors.New("prompt has no context section")
	}
	line, _, _ := strings.Cut(after, "\n")
	return line, nil
}

func newTestPipeline(t *testing.T, providers model.Providers, opts Options) *Pipeline {
	t.Helper()
	chunker, err := loader.NewChunker(loader.WordTokenizer{}, loader.DefaultChunkSize, loader.DefaultChunkOverlap)
	require.NoError(t, err)
	return NewPipeline(store.NewMemoryIndex(providers.Embedder, nil), providers, chunker, opts, nil)
}

func TestPipeline_Paris(t *testing.T) {
	gen := &model.MockGenerator{Func: func(prompt string) (string, error) {
		if strings.Contains(prompt, "Paris is the capital of France") {
			return "Paris", nil
		}
		return RefusalAnswer, nil
	}}
	p := newTestPipeline(t, model.Providers{Embedder: model.NewMockEmbedder(), Generator: gen}, Options{})
	ctx := context.Background()

	res, err := p.Ingest(ctx, "Paris is the capital of France. It has a population of about 2 million.")
	require.NoError(t, err)
	assert.Equal(t, 1, res.ChunkCount)

	answer, err := p.Ask(ctx, "What is the capital of France?")
	require.NoError(t, err)
	assert.Contains(t, answer.Answer, "Paris")

	prompts := gen.Prompts()
	require.Len(t, prompts, 1)
	assert.Contains(t, prompts[0], "Question: What is the capital of France?")
	assert.Contains(t, prompts[0], RefusalAnswer)
}

func TestPipeline_ReplacesCorpus(t *testing.T) {
	gen := &model.MockGenerator{Func: contextEcho}
	p := newTestPipeline(t, model.Providers{Embedder: model.NewMockEmbedder(), Generator: gen}, Options{})
	ctx := context.Background()

	_, err := p.Ingest(ctx, "The lighthouse keeper is named Ada.")
	require.NoError(t, err)
	first, _ := p.Stats(ctx)

	_, err = p.Ingest(ctx, "The bakery opens at seven.")
	require.NoError(t, err)
	second, _ := p.Stats(ctx)
	assert.NotEqual(t, first.Generation, second.Generation)

	answer, err := p.Ask(ctx, "Who is the lighthouse keeper?")
	require.NoError(t, err)
	assert.Equal(t, "The bakery opens at seven.", answer.Answer)
	for _, prompt := range gen.Prompts() {
		assert.NotContains(t, prompt, "Ada")
	}
}

func TestPipeline_EmptyCorpusRefuses(t *testing.T) {
	gen := model.NewMockGenerator("should not be called")
	p := newTestPipeline(t, model.Providers{Embedder: model.NewMockEmbedder(), Generator: gen}, Options{})
	ctx := context.Background()

	answer, err := p.Ask(ctx, "Anything?")
	require.NoError(t, err)
	assert.Equal(t, RefusalAnswer, answer.Answer)

	// ingesting empty text empties the corpus
	res, err := p.Ingest(ctx, "")
	require.NoError(t, err)
	assert.Zero(t, res.ChunkCount)

	answer, err = p.Ask(ctx, "Anything?")
	require.NoError(t, err)
	assert.Equal(t, RefusalAnswer, answer.Answer)
	assert.Zero(t, gen.CallCount())
}

func TestPipeline_WhitespaceContextRefuses(t *testing.T) {
	gen := model.NewMockGenerator("should not be called")
	p := newTestPipeline(t, model.Providers{Embedder: model.NewMockEmbedder(), Generator: gen}, Options{})

	_, err := p.Ingest(context.Background(), "   \n\t ")
	require.NoError(t, err)

	answer, err := p.Ask(context.Background(), "Anything?")
	require.NoError(t, err)
	assert.Equal(t, RefusalAnswer, answer.Answer)
	assert.Zero(t, gen.CallCount())
}

func TestPipeline_ConfigurationMissing(t *testing.T) {
	ctx := context.Background()

	p := newTestPipeline(t, model.Providers{}, Options{})
	assert.False(t, p.Ready())

	_, err := p.Ingest(ctx, "text")
	assert.ErrorIs(t, err, types.ErrConfigurationMissing)

	_, err = p.Ask(ctx, "question")
	var cfgErr *types.ConfigurationError
	require.ErrorAs(t, err, &cfgErr)
	assert.Len(t, cfgErr.Missing, 2)

	embedOnly := newTestPipeline(t, model.Providers{Embedder: model.NewMockEmbedder()}, Options{})
	_, err = embedOnly.Ingest(ctx, "text")
	require.NoError(t, err)
	_, err = embedOnly.Ask(ctx, "question")
	assert.ErrorIs(t, err, types.ErrConfigurationMissing)
}

func TestPipeline_ProviderErrors(t *testing.T) {
	ctx := context.Background()
	boom := errors.New("upstream unavailable")

	emb := model.NewMockEmbedder()
	gen := &model.MockGenerator{Err: boom}
	p := newTestPipeline(t, model.Providers{Embedder: emb, Generator: gen}, Options{})

	_, err := p.Ingest(ctx, "some corpus text")
	require.NoError(t, err)

	_, err = p.Ask(ctx, "question")
	var pe *types.ProviderError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, "generate", pe.Op)
	assert.ErrorIs(t, err, boom)

	emb.Err = boom
	_, err = p.Ask(ctx, "question")
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, "embed", pe.Op)

	_, err = p.Ingest(ctx, "other corpus")
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, "embed", pe.Op)
}

func TestPipeline_Timeouts(t *testing.T) {
	ctx := context.Background()
	emb := model.NewMockEmbedder()
	gen := &model.MockGenerator{Response: "late", Delay: time.Second}
	p := newTestPipeline(t, model.Providers{Embedder: emb, Generator: gen}, Options{Timeout: 20 * time.Millisecond, IngestTimeout: time.Second})

	_, err := p.Ingest(ctx, "some corpus text")
	require.NoError(t, err)

	_, err = p.Ask(ctx, "question")
	var pe *types.ProviderError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, "generate", pe.Op)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	emb.Delay = time.Second
	_, err = p.Ask(ctx, "question")
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, "embed", pe.Op)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestPipeline_QueuedIngestKeepsItsDeadline(t *testing.T) {
	emb := model.NewMockEmbedder()
	emb.Delay = 100 * time.Millisecond
	p := newTestPipeline(t, model.Providers{Embedder: emb, Generator: model.NewMockGenerator("ok")},
		Options{IngestTimeout: 180 * time.Millisecond})

	var wg sync.WaitGroup
	for i := range 3 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := p.Ingest(context.Background(), fmt.Sprintf("corpus %d", i))
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
	assert.Len(t, emb.Calls(), 3)
}

func TestPipeline_IngestCancelledWhileQueued(t *testing.T) {
	emb := model.NewMockEmbedder()
	emb.Delay = 200 * time.Millisecond
	p := newTestPipeline(t, model.Providers{Embedder: emb, Generator: model.NewMockGenerator("ok")}, Options{})

	done := make(chan error, 1)
	go func() {
		_, err := p.Ingest(context.Background(), "first corpus")
		done <- err
	}()
	require.Eventually(t, func() bool { return len(emb.Calls()) == 1 }, time.Second, 5*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := p.Ingest(ctx, "second corpus")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	var pe *types.ProviderError
	assert.False(t, errors.As(err, &pe))
	assert.Len(t, emb.Calls(), 1)

	require.NoError(t, <-done)
}

func TestPipeline_ConcurrentIngestAndAsk(t *testing.T) {
	gen := &model.MockGenerator{Func: contextEcho}
	p := newTestPipeline(t, model.Providers{Embedder: model.NewMockEmbedder(), Generator: gen}, Options{})
	ctx := context.Background()

	corpora := []string{"alpha corpus", "beta corpus", "gamma corpus"}
	_, err := p.Ingest(ctx, corpora[0])
	require.NoError(t, err)

	var wg sync.WaitGroup
	for _, c := range corpora {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := p.Ingest(ctx, c)
			assert.NoError(t, err)
		}()
	}
	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			answer, err := p.Ask(ctx, "corpus")
			assert.NoError(t, err)
			assert.Contains(t, corpora, answer.Answer)
		}()
	}
	wg.Wait()
}

func TestBuildPrompt(t *testing.T) {
	prompt := BuildPrompt("chunk one\n\nchunk two", "What?")
	assert.Contains(t, prompt, "ONLY using the provided")
	assert.Contains(t, prompt, `"`+RefusalAnswer+`"`)
	assert.Contains(t, prompt, "Context:\nchunk one\n\nchunk two\n\nQuestion: What?")
	assert.Less(t, strings.Index(prompt, "Context:"), strings.Index(prompt, "Question:"))
}
