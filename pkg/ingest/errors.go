package ingest

import "errors"

// Failure classes for an ingestion run. Callers use errors.Is to decide
// whether a failed run was a timeout, a source problem, or a store problem.
var (
	// ErrSourceUnavailable means the content source could not be enumerated.
	ErrSourceUnavailable = errors.New("content source unavailable")

	// ErrExtraction means a document's content could not be read or turned
	// into segments.
	ErrExtraction = errors.New("extraction failed")

	// ErrEmbedding means the embedding provider rejected a batch.
	ErrEmbedding = errors.New("embedding failed")

	// ErrStore means the persistence layer rejected a read or write.
	ErrStore = errors.New("store operation failed")

	// ErrTimeout means the run exceeded its wall-clock budget. Partial
	// progress from completed documents is kept, not rolled back.
	ErrTimeout = errors.New("ingestion timed out")
)
