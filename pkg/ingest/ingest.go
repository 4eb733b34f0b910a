package ingest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/xhad/quill/internal/models"
	"github.com/xhad/quill/internal/types"
)

// OrchestratorConfig wires an Orchestrator to its collaborators.
type OrchestratorConfig struct {
	Source    types.ContentSource
	Extractor types.Extractor
	Embedder  types.Embedder
	Documents types.DocumentStore
	Chunks    types.ChunkStore

	// Timeout bounds a whole ingestion run. Zero disables the budget.
	Timeout time.Duration

	Logger zerolog.Logger

	// OnProgress, when set, is called after each document is processed or
	// deleted.
	OnProgress func(documentID string)
}

// Orchestrator drives the ingestion pipeline for one content source:
// change detection, chunk extraction, embedding, and store writes. It is
// the sole writer of document and chunk records. A single Orchestrator
// runs one document at a time; concurrent runs against the same source
// are unsupported.
type Orchestrator struct {
	config OrchestratorConfig
}

func NewWithConfig(config OrchestratorConfig) (*Orchestrator, error) {
	if config.Source == nil {
		return nil, fmt.Errorf("ingest: source is required")
	}
	if config.Extractor == nil {
		return nil, fmt.Errorf("ingest: extractor is required")
	}
	if config.Embedder == nil {
		return nil, fmt.Errorf("ingest: embedder is required")
	}
	if config.Documents == nil || config.Chunks == nil {
		return nil, fmt.Errorf("ingest: document and chunk stores are required")
	}
	return &Orchestrator{config: config}, nil
}

// Ingest runs one full pass over the source. Unchanged documents are left
// alone, so re-running against an unchanged source writes nothing. The
// first failing document aborts the run; completed documents keep their
// committed state.
func (o *Orchestrator) Ingest(ctx context.Context) (models.IngestReport, error) {
	if o.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.config.Timeout)
		defer cancel()
	}

	var report models.IngestReport
	sourceID := o.config.Source.SourceID()
	log := o.config.Logger.With().Str("source", sourceID).Logger()

	existing, err := o.config.Documents.BySource(ctx, sourceID)
	if err != nil {
		return report, o.fail(log, err, ErrStore, "", "load records")
	}

	current, err := o.config.Source.ListCurrent(ctx)
	if err != nil {
		return report, o.fail(log, err, ErrSourceUnavailable, "", "list source")
	}

	changes := Classify(existing, current)
	log.Info().
		Int("to_process", len(changes.ToProcess)).
		Int("to_delete", len(changes.ToDelete)).
		Msg("change detection complete")

	// Per-run index from the fresh listing; never outlives this run.
	versions := make(map[string]string, len(current))
	for _, listing := range current {
		versions[listing.DocumentID] = listing.Version
	}

	// Chunks go before their document so no chunk ever references a
	// missing record.
	for _, id := range changes.ToDelete {
		if err := o.config.Chunks.DeleteChunks(ctx, id); err != nil {
			report.Failed++
			return report, o.fail(log, err, ErrStore, id, "delete chunks")
		}
		if err := o.config.Documents.DeleteDocument(ctx, sourceID, id); err != nil {
			report.Failed++
			return report, o.fail(log, err, ErrStore, id, "delete document")
		}
		report.Deleted++
		o.progress(id)
	}

	for _, id := range changes.ToProcess {
		if err := o.processDocument(ctx, log, sourceID, id, versions[id]); err != nil {
			report.Failed++
			return report, err
		}
		report.Processed++
		o.progress(id)
	}

	log.Info().
		Int("processed", report.Processed).
		Int("deleted", report.Deleted).
		Msg("ingestion complete")
	return report, nil
}

// processDocument replaces one document and its chunks: stale chunks are
// deleted first (a no-op for new ids), then the record is upserted with a
// fresh key, then the new chunks are embedded in one batch and written.
func (o *Orchestrator) processDocument(ctx context.Context, log zerolog.Logger, sourceID, documentID, version string) error {
	raw, err := o.config.Source.Read(ctx, documentID)
	if err != nil {
		return o.fail(log, err, ErrExtraction, documentID, "read")
	}

	segments, err := o.config.Extractor.Extract(raw)
	if err != nil {
		return o.fail(log, err, ErrExtraction, documentID, "extract")
	}

	if err := o.config.Chunks.DeleteChunks(ctx, documentID); err != nil {
		return o.fail(log, err, ErrStore, documentID, "delete chunks")
	}

	doc := models.Document{
		Key:        uuid.Must(uuid.NewV7()).String(),
		SourceID:   sourceID,
		DocumentID: documentID,
		Version:    version,
	}
	if err := o.config.Documents.UpsertDocument(ctx, doc); err != nil {
		return o.fail(log, err, ErrStore, documentID, "upsert document")
	}

	// A document with no extractable text keeps its record and zero chunks.
	if len(segments) == 0 {
		log.Debug().Str("document", documentID).Msg("no extractable text")
		return nil
	}

	texts := make([]string, len(segments))
	for i, segment := range segments {
		texts[i] = segment.Text
	}
	vectors, err := o.config.Embedder.EmbedTexts(ctx, texts)
	if err != nil {
		return o.fail(log, err, ErrEmbedding, documentID, "embed")
	}
	if len(vectors) != len(segments) {
		err := fmt.Errorf("got %d vectors for %d segments", len(vectors), len(segments))
		return o.fail(log, err, ErrEmbedding, documentID, "embed")
	}

	chunks := make([]models.Chunk, len(segments))
	for i, segment := range segments {
		chunks[i] = models.Chunk{
			Key:        uuid.Must(uuid.NewV7()).String(),
			DocumentID: documentID,
			Page:       segment.Page,
			Text:       segment.Text,
			Embedding:  vectors[i],
		}
	}
	if err := o.config.Chunks.UpsertChunks(ctx, chunks); err != nil {
		return o.fail(log, err, ErrStore, documentID, "upsert chunks")
	}

	log.Debug().
		Str("document", documentID).
		Str("version", version).
		Int("chunks", len(chunks)).
		Msg("document processed")
	return nil
}

// fail logs the failure with its document and phase, then wraps it in the
// matching failure class. Deadline overruns always surface as ErrTimeout
// regardless of which call tripped over them.
func (o *Orchestrator) fail(log zerolog.Logger, err error, class error, documentID, phase string) error {
	if errors.Is(err, context.DeadlineExceeded) {
		class = ErrTimeout
	}
	event := log.Error().Err(err).Str("phase", phase)
	if documentID != "" {
		event = event.Str("document", documentID)
	}
	event.Msg("ingestion failed")

	if documentID != "" {
		return fmt.Errorf("%w: %s %s: %w", class, phase, documentID, err)
	}
	return fmt.Errorf("%w: %s: %w", class, phase, err)
}

func (o *Orchestrator) progress(documentID string) {
	if o.config.OnProgress != nil {
		o.config.OnProgress(documentID)
	}
}
