package model

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"
)

const defaultOllamaConcurrency = 4

// OllamaEmbedder creates embeddings through the Ollama /api/embeddings endpoint.
// The endpoint takes one prompt per request, so batches fan out over a
// bounded number of goroutines.
type OllamaEmbedder struct {
	apiURL      string
	model       string
	concurrency int
	client      *http.Client
}

type OllamaEmbeddingRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

type OllamaEmbeddingResponse struct {
	Embedding []float64 `json:"embedding"`
}

func NewOllamaEmbedder(apiURL, model string, concurrency int, timeout time.Duration) *OllamaEmbedder {
	if concurrency <= 0 {
		concurrency = defaultOllamaConcurrency
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &OllamaEmbedder{
		apiURL:      apiURL,
		model:       model,
		concurrency: concurrency,
		client:      &http.Client{Timeout: timeout},
	}
}

func (e *OllamaEmbedder) Name() string { return "ollama:" + e.model }

func (e *OllamaEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	vectors := make([][]float32, len(texts))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(e.concurrency)
	for i, text := range texts {
		g.Go(func() error {
			v, err := e.embedOne(ctx, text)
			if err != nil {
				return fmt.Errorf("text %d: %w", i, err)
			}
			vectors[i] = v
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return vectors, nil
}

func (e *OllamaEmbedder) embedOne(ctx context.Context, text string) ([]float32, error) {
	var resp OllamaEmbeddingResponse
	if err := postJSON(ctx, e.client, e.apiURL, OllamaEmbeddingRequest{Model: e.model, Prompt: text}, &resp); err != nil {
		return nil, err
	}
	if len(resp.Embedding) == 0 {
		return nil, errors.New("ollama returned an empty embedding")
	}

	embedding := make([]float32, len(resp.Embedding))
	for i, v := range resp.Embedding {
		embedding[i] = float32(v)
	}
	return Normalize(embedding), nil
}

// OllamaGenerator completes prompts through the Ollama /api/generate endpoint.
type OllamaGenerator struct {
	apiURL string
	model  string
	system string
	client *http.Client
}

type GenerateRequest struct {
	Model  string `json:"model"`
	System string `json:"system,omitempty"`
	Prompt string `json:"prompt"`
	Stream bool   `json:"stream"`
}

type GenerateResponse struct {
	Response string `json:"response"`
	Done     bool   `json:"done"`
}

func NewOllamaGenerator(apiURL, model, system string, timeout time.Duration) *OllamaGenerator {
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	return &OllamaGenerator{
		apiURL: apiURL,
		model:  model,
		system: system,
		client: &http.Client{Timeout: timeout},
	}
}

func (g *OllamaGenerator) Name() string { return "ollama:" + g.model }

// Generate accepts both a single JSON object and a stream of
// newline-delimited chunks, whichever the server sends.
func (g *OllamaGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	body, err := doJSON(ctx, g.client, g.apiURL, GenerateRequest{
		Model:  g.model,
		System: g.system,
		Prompt: prompt,
	})
	if err != nil {
		return "", err
	}

	var b strings.Builder
	decoder := json.NewDecoder(bytes.NewReader(body))
	for decoder.More() {
		var chunk GenerateResponse
		if err := decoder.Decode(&chunk); err != nil {
			return "", fmt.Errorf("decode response: %w", err)
		}
		b.WriteString(chunk.Response)
		if chunk.Done {
			break
		}
	}
	return b.String(), nil
}

func postJSON(ctx context.Context, client *http.Client, url string, in, out any) error {
	body, err := doJSON(ctx, client, url, in)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to unmarshal response: %w", err)
	}
	return nil
}

func doJSON(ctx context.Context, client *http.Client, url string, in any) ([]byte, error) {
	reqBody, err := json.Marshal(in)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(reqBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to make request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("ollama API error: status %d, body: %s", resp.StatusCode, string(body))
	}
	return body, nil
}
