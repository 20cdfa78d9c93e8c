package config

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"ragkb/loader"
	"ragkb/model"
	"ragkb/store"
)

func NewLogger(cfg LogConfig, w io.Writer) *slog.Logger {
	var level slog.Level
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// Providers builds the configured providers. Capabilities without
// credentials or endpoints are left nil.
func (c Config) Providers() model.Providers {
	p := c.Provider
	var providers model.Providers

	switch p.Kind {
	case ProviderOllama:
		if p.EmbeddingURL != "" {
			providers.Embedder = model.NewOllamaEmbedder(p.EmbeddingURL, p.EmbeddingModel, p.EmbedConcurrency, p.Timeout)
		}
		if p.GenerateURL != "" {
			providers.Generator = model.NewOllamaGenerator(p.GenerateURL, p.ChatModel, "", p.Timeout)
		}
	default:
		if p.APIKey != "" {
			oc := model.OpenAIConfig{
				APIKey:         p.APIKey,
				BaseURL:        p.BaseURL,
				EmbeddingModel: p.EmbeddingModel,
				ChatModel:      p.ChatModel,
				Timeout:        p.Timeout,
			}
			providers.Embedder = model.NewOpenAIEmbedder(oc)
			providers.Generator = model.NewOpenAIGenerator(oc)
		}
	}

	limiter := model.NewRateLimited(p.RequestsPerSecond, max(1, int(p.RequestsPerSecond)))
	providers.Embedder = limiter.Embedder(providers.Embedder)
	providers.Generator = limiter.Generator(providers.Generator)
	return providers
}

// MissingCredentials names the settings that would enable the providers.
func (c Config) MissingCredentials() string {
	if c.Provider.Kind == ProviderOllama {
		return "OLLAMA_EMBEDDING_URL and LLM_URL"
	}
	return "GEMINI_API_KEY"
}

func (c Config) Chunker(logger *slog.Logger) (*loader.Chunker, error) {
	tok := loader.NewTokenizer(c.Chunking.Encoding, logger)
	return loader.NewChunker(tok, c.Chunking.Size, c.Chunking.Overlap)
}

func (c Config) Converter(logger *slog.Logger) *loader.Converter {
	return loader.NewConverter(loader.ConverterConfig{
		DoclingURL: c.Loader.DoclingURL,
		CropTop:    c.Loader.CropTop,
		CropBottom: c.Loader.CropBottom,
	}, logger)
}

// OpenIndex returns the configured vector index and a function releasing it.
func (c Config) OpenIndex(ctx context.Context, embedder model.EmbeddingProvider, logger *slog.Logger) (store.VectorIndex, func(), error) {
	if c.Index.Backend != BackendPostgres {
		return store.NewMemoryIndex(embedder, logger), func() {}, nil
	}

	pg := store.PostgresConfig{
		Host:     c.Postgres.Host,
		Port:     c.Postgres.Port,
		User:     c.Postgres.User,
		Password: c.Postgres.Password,
		DBName:   c.Postgres.DBName,
	}
	idx, err := store.NewPostgresIndex(ctx, pg.DSN(), c.Index.Dimensions, embedder, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("error to connect to Postgres database: %w", err)
	}
	if err := idx.Init(ctx); err != nil {
		idx.Close()
		return nil, nil, fmt.Errorf("error to create tables: %w", err)
	}
	return idx, func() { idx.Close() }, nil
}
