package llm

import (
	"context"
	"fmt"

	"github.com/tmc/langchaingo/llms/ollama"
	"golang.org/x/time/rate"
)

type EmbedderConfig struct {
	Model   string
	BaseURL string // Ollama server URL

	// RateLimit caps embedding calls per second. Zero disables the cap.
	RateLimit float64
}

// Embedder produces embedding vectors through an Ollama model. One call
// embeds a whole batch, so callers should pass every segment of a document
// at once rather than looping.
type Embedder struct {
	config  EmbedderConfig
	llm     *ollama.LLM
	limiter *rate.Limiter
}

func NewEmbedderWithConfig(config EmbedderConfig) (*Embedder, error) {
	if config.Model == "" {
		config.Model = "nomic-embed-text:latest"
	}
	if config.BaseURL == "" {
		config.BaseURL = "http://localhost:11434"
	}

	emb, err := ollama.New(
		ollama.WithModel(config.Model),
		ollama.WithServerURL(config.BaseURL),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize embedder: %w", err)
	}

	var limiter *rate.Limiter
	if config.RateLimit > 0 {
		limiter = rate.NewLimiter(rate.Limit(config.RateLimit), 1)
	}

	return &Embedder{config: config, llm: emb, limiter: limiter}, nil
}

// EmbedTexts returns one vector per input text, in input order.
func (e *Embedder) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	if e.limiter != nil {
		if err := e.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	vectors, err := e.llm.CreateEmbedding(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("embedding request failed: %w", err)
	}
	if len(vectors) != len(texts) {
		return nil, fmt.Errorf("embedder returned %d vectors for %d texts", len(vectors), len(texts))
	}
	return vectors, nil
}
