// Package search converts a query into an embedding, runs a similarity
// lookup against the chunk store and returns ranked, deduplicated,
// citation-annotated results.
package search

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/xhad/quill/internal/models"
	"github.com/xhad/quill/internal/types"
)

// DefaultMaxResults is used by the tool surface when the caller does not
// ask for a specific result count.
const DefaultMaxResults = 5

type EngineConfig struct {
	Embedder types.Embedder
	Chunks   types.ChunkStore
	Logger   zerolog.Logger
}

// Engine is read-only over the chunk store; ingestion owns all writes.
type Engine struct {
	config EngineConfig
}

func NewWithConfig(config EngineConfig) (*Engine, error) {
	if config.Embedder == nil {
		return nil, fmt.Errorf("search: embedder is required")
	}
	if config.Chunks == nil {
		return nil, fmt.Errorf("search: chunk store is required")
	}
	return &Engine{config: config}, nil
}

// Search returns up to maxResults chunks ranked by descending similarity
// to the query. documentID, when non-empty, restricts results to that
// document. Embedding the query dominates end-to-end latency, so it is
// timed and logged.
func (e *Engine) Search(ctx context.Context, query, documentID string, maxResults int) ([]models.ScoredChunk, error) {
	if maxResults <= 0 {
		return nil, fmt.Errorf("max results must be positive, got %d", maxResults)
	}

	start := time.Now()
	vectors, err := e.config.Embedder.EmbedTexts(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}
	e.config.Logger.Debug().
		Dur("embed", time.Since(start)).
		Str("filter", documentID).
		Msg("query embedded")

	results, err := e.config.Chunks.SearchChunks(ctx, vectors[0], maxResults, documentID)
	if err != nil {
		return nil, fmt.Errorf("similarity query failed: %w", err)
	}

	return dedupe(results), nil
}

// Tool runs a search and renders the results as a text block for the
// conversational agent: document id, page and content per result.
// maxResults falls back to DefaultMaxResults when zero.
func (e *Engine) Tool(ctx context.Context, query string, maxResults int) (string, error) {
	if maxResults == 0 {
		maxResults = DefaultMaxResults
	}
	results, err := e.Search(ctx, query, "", maxResults)
	if err != nil {
		return "", err
	}
	return FormatResults(results), nil
}

// FormatResults renders ranked chunks as the text block handed to the
// chat agent.
func FormatResults(results []models.ScoredChunk) string {
	if len(results) == 0 {
		return "No matching documents found."
	}

	var b strings.Builder
	for i, result := range results {
		fmt.Fprintf(&b, "%d. %s (page %d)\n%s\n", i+1, result.DocumentID, result.Page, result.Text)
		if i < len(results)-1 {
			b.WriteString("\n")
		}
	}
	return b.String()
}

// dedupe drops repeated identical texts from the same document, keeping
// the highest-ranked occurrence.
func dedupe(results []models.ScoredChunk) []models.ScoredChunk {
	seen := make(map[string]bool, len(results))
	out := results[:0]
	for _, result := range results {
		key := result.DocumentID + "\x00" + result.Text
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, result)
	}
	return out
}
