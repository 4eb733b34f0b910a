package types

import (
	"context"

	"github.com/xhad/quill/internal/models"
)

// ContentSource enumerates and reads documents from a backing repository.
// Implementations exist for local directories and crawled websites; any
// store that can list (id, version) pairs and read by id can back one.
type ContentSource interface {
	SourceID() string
	ListCurrent(ctx context.Context) ([]models.Listing, error)
	Read(ctx context.Context, documentID string) ([]byte, error)
}

// Extractor turns a document's raw content into ordered text segments
// sized for embedding. An empty document yields an empty slice, not an
// error.
type Extractor interface {
	Extract(raw []byte) ([]models.Segment, error)
}

// Embedder maps a batch of texts to fixed-length vectors, one per input,
// order-preserving.
type Embedder interface {
	EmbedTexts(ctx context.Context, texts []string) ([][]float32, error)
}

// DocumentStore persists document metadata records.
type DocumentStore interface {
	EnsureExists(ctx context.Context) error
	BySource(ctx context.Context, sourceID string) ([]models.Document, error)
	UpsertDocument(ctx context.Context, doc models.Document) error
	DeleteDocument(ctx context.Context, sourceID, documentID string) error
}

// ChunkStore persists embedded chunks and serves similarity queries.
// Search returns at most k chunks by descending similarity; documentID,
// when non-empty, restricts results to that document. Implementations
// must order ties by chunk key so results are deterministic.
type ChunkStore interface {
	EnsureExists(ctx context.Context) error
	UpsertChunks(ctx context.Context, chunks []models.Chunk) error
	DeleteChunks(ctx context.Context, documentID string) error
	SearchChunks(ctx context.Context, vector []float32, k int, documentID string) ([]models.ScoredChunk, error)
}
