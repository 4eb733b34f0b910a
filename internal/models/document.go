package models

// Document is the stored metadata record for one ingested document.
// At most one live record exists per (SourceID, DocumentID) pair; Key is a
// system-generated UUIDv7 so replacements get a fresh, time-ordered key.
type Document struct {
	Key        string
	SourceID   string
	DocumentID string
	Version    string
}

// Listing is one entry of a content source's current inventory.
// Version is an opaque token compared only for equality.
type Listing struct {
	DocumentID string
	Version    string
}

// Segment is a unit of text produced by the extractor, sized for embedding.
// Page is the citation locator within the originating document.
type Segment struct {
	Page int
	Text string
}

// Chunk is an embedded segment persisted in the vector store.
type Chunk struct {
	Key        string
	DocumentID string
	Page       int
	Text       string
	Embedding  []float32
}

// ScoredChunk pairs a chunk with its similarity score.
// Scores are diagnostic; callers should not depend on their scale.
type ScoredChunk struct {
	Chunk
	Score float64
}

// IngestReport summarises one ingestion run.
type IngestReport struct {
	Processed int
	Deleted   int
	Failed    int
}
