package agent

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"ragkb/loader"
	"ragkb/model"
	"ragkb/store"
	"ragkb/types"
)

// RefusalAnswer is returned verbatim when no context could be retrieved, and
// the model is told to reply with it when the context lacks the answer.
const RefusalAnswer = "I don't have enough information in the knowledge base."

const (
	DefaultTopK    = 4
	DefaultTimeout = 60 * time.Second
)

type Options struct {
	TopK int
	// Timeout bounds each query embedding and each generation call.
	Timeout time.Duration
	// IngestTimeout bounds embedding the whole corpus. Defaults to five times Timeout.
	IngestTimeout time.Duration
}

func (o Options) withDefaults() Options {
	if o.TopK <= 0 {
		o.TopK = DefaultTopK
	}
	if o.Timeout <= 0 {
		o.Timeout = DefaultTimeout
	}
	if o.IngestTimeout <= 0 {
		o.IngestTimeout = 5 * o.Timeout
	}
	return o
}

// Pipeline ingests a corpus and answers questions grounded in it.
type Pipeline struct {
	index     store.VectorIndex
	providers model.Providers
	chunker   *loader.Chunker
	opts      Options
	logger    *slog.Logger

	// ingests holds one token; the ingest deadline starts once it is taken.
	ingests chan struct{}
}

func NewPipeline(index store.VectorIndex, providers model.Providers, chunker *loader.Chunker, opts Options, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	if chunker == nil {
		chunker, _ = loader.NewChunker(nil, loader.DefaultChunkSize, loader.DefaultChunkOverlap)
	}
	return &Pipeline{
		index:     index,
		providers: providers,
		chunker:   chunker,
		opts:      opts.withDefaults(),
		logger:    logger.With("component", "pipeline"),
		ingests:   make(chan struct{}, 1),
	}
}

// Ready reports whether both providers are configured.
func (p *Pipeline) Ready() bool {
	return p.providers.IsAvailable()
}

func (p *Pipeline) Stats(ctx context.Context) (types.IndexStats, error) {
	return p.index.Stats(ctx)
}

// Ingest replaces the whole corpus with the chunks of text. Empty text
// leaves an empty corpus.
func (p *Pipeline) Ingest(ctx context.Context, text string) (types.IngestResult, error) {
	if !p.providers.EmbeddingAvailable() {
		return types.IngestResult{}, types.NewConfigurationError("embedding provider")
	}

	select {
	case p.ingests <- struct{}{}:
		defer func() { <-p.ingests }()
	case <-ctx.Done():
		return types.IngestResult{}, ctx.Err()
	}

	start := time.Now()
	chunks := types.NewChunks(p.chunker.Chunk(text))

	ctx, cancel := context.WithTimeout(ctx, p.opts.IngestTimeout)
	defer cancel()
	if err := p.index.ReplaceAll(ctx, chunks); err != nil {
		return types.IngestResult{}, asProviderError(ctx, "embed", err)
	}

	p.logger.Info("corpus ingested",
		"chunks", len(chunks),
		"chunk_size", p.chunker.Size(),
		"overlap", p.chunker.Overlap(),
		"took", time.Since(start))
	return types.IngestResult{ChunkCount: len(chunks)}, nil
}

// Ask retrieves the closest chunks to question and generates an answer
// conditioned on them.
func (p *Pipeline) Ask(ctx context.Context, question string) (types.Answer, error) {
	var missing []string
	if !p.providers.EmbeddingAvailable() {
		missing = append(missing, "embedding provider")
	}
	if !p.providers.GenerationAvailable() {
		missing = append(missing, "generative provider")
	}
	if len(missing) > 0 {
		return types.Answer{}, types.NewConfigurationError(missing...)
	}

	queryCtx, cancelQuery := context.WithTimeout(ctx, p.opts.Timeout)
	defer cancelQuery()
	result, err := p.index.Query(queryCtx, question, p.opts.TopK)
	if err != nil {
		return types.Answer{}, asProviderError(queryCtx, "embed", err)
	}

	contextText := strings.Join(result.Texts(), "\n\n")
	if strings.TrimSpace(contextText) == "" {
		p.logger.Debug("no context retrieved, refusing")
		return types.Answer{Answer: RefusalAnswer}, nil
	}

	prompt := BuildPrompt(contextText, question)
	p.logger.Debug("prompt built",
		"chunks", len(result),
		"tokens", loader.CountTokens(p.chunker.Tokenizer(), prompt),
		"symbols", len(prompt))

	start := time.Now()
	genCtx, cancelGen := context.WithTimeout(ctx, p.opts.Timeout)
	defer cancelGen()
	answer, err := p.providers.Generator.Generate(genCtx, prompt)
	if err != nil {
		return types.Answer{}, types.NewProviderError("generate", err)
	}
	p.logger.Debug("answer generated", "provider", p.providers.Generator.Name(), "took", time.Since(start))

	return types.Answer{Answer: answer}, nil
}

// BuildPrompt embeds context and question in delimited sections under an
// instruction to answer from the context alone.
func BuildPrompt(contextText, question string) string {
	return fmt.Sprintf(`You are a helpful AI assistant.
Answer the question ONLY using the provided historical data and context below.
If the answer is not contained in the context, strictly respond with: "%s"

Context:
%s

Question: %s`, RefusalAnswer, contextText, question)
}

// asProviderError classifies an index failure caused by the provider
// deadline as a provider failure. Other errors pass through unchanged.
func asProviderError(ctx context.Context, op string, err error) error {
	if ctx.Err() != nil {
		return types.NewProviderError(op, err)
	}
	return err
}
