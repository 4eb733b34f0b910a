package ingest_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xhad/quill/internal/models"
	"github.com/xhad/quill/internal/types"
	"github.com/xhad/quill/pkg/ingest"
	"github.com/xhad/quill/pkg/store"
)

// fakeSource serves listings and content from maps.
type fakeSource struct {
	id       string
	listings []models.Listing
	content  map[string]string
	listErr  error
	readErr  error
	hang     bool
}

func (s *fakeSource) SourceID() string { return s.id }

func (s *fakeSource) ListCurrent(ctx context.Context) ([]models.Listing, error) {
	if s.hang {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if s.listErr != nil {
		return nil, s.listErr
	}
	return s.listings, nil
}

func (s *fakeSource) Read(_ context.Context, documentID string) ([]byte, error) {
	if s.readErr != nil {
		return nil, s.readErr
	}
	return []byte(s.content[documentID]), nil
}

func (s *fakeSource) set(documentID, version, content string) {
	for i := range s.listings {
		if s.listings[i].DocumentID == documentID {
			s.listings[i].Version = version
			s.content[documentID] = content
			return
		}
	}
	s.listings = append(s.listings, models.Listing{DocumentID: documentID, Version: version})
	s.content[documentID] = content
}

func (s *fakeSource) remove(documentID string) {
	for i := range s.listings {
		if s.listings[i].DocumentID == documentID {
			s.listings = append(s.listings[:i], s.listings[i+1:]...)
			break
		}
	}
	delete(s.content, documentID)
}

// fakeExtractor yields one segment per pipe-separated part, one page per
// part, so tests control segment counts exactly.
type fakeExtractor struct {
	err error
}

func (e *fakeExtractor) Extract(raw []byte) ([]models.Segment, error) {
	if e.err != nil {
		return nil, e.err
	}
	text := strings.TrimSpace(string(raw))
	if text == "" {
		return nil, nil
	}
	parts := strings.Split(text, "|")
	segments := make([]models.Segment, len(parts))
	for i, part := range parts {
		segments[i] = models.Segment{Page: i + 1, Text: part}
	}
	return segments, nil
}

// fakeEmbedder returns a deterministic vector per text and counts calls.
type fakeEmbedder struct {
	calls  int
	err    error
	failOn string
}

func (e *fakeEmbedder) EmbedTexts(_ context.Context, texts []string) ([][]float32, error) {
	e.calls++
	if e.err != nil {
		return nil, e.err
	}
	vectors := make([][]float32, len(texts))
	for i, text := range texts {
		if e.failOn != "" && text == e.failOn {
			return nil, assert.AnError
		}
		vectors[i] = embedText(text)
	}
	return vectors, nil
}

func embedText(text string) []float32 {
	var sum float32
	for _, r := range text {
		sum += float32(r)
	}
	return []float32{float32(len(text)), sum, 1}
}

type testPipeline struct {
	source    *fakeSource
	extractor *fakeExtractor
	embedder  *fakeEmbedder
	store     *store.MemoryStore
}

func newPipeline(t *testing.T) *testPipeline {
	t.Helper()
	return &testPipeline{
		source: &fakeSource{
			id:      "dir:/docs",
			content: make(map[string]string),
		},
		extractor: &fakeExtractor{},
		embedder:  &fakeEmbedder{},
		store:     store.NewMemoryStore(),
	}
}

func (p *testPipeline) orchestrator(t *testing.T, timeout time.Duration) *ingest.Orchestrator {
	t.Helper()
	o, err := ingest.NewWithConfig(ingest.OrchestratorConfig{
		Source:    p.source,
		Extractor: p.extractor,
		Embedder:  p.embedder,
		Documents: p.store,
		Chunks:    p.store,
		Timeout:   timeout,
		Logger:    zerolog.Nop(),
	})
	require.NoError(t, err)
	return o
}

func (p *testPipeline) run(t *testing.T) models.IngestReport {
	t.Helper()
	report, err := p.orchestrator(t, 0).Ingest(context.Background())
	require.NoError(t, err)
	return report
}

// checkIntegrity asserts every stored chunk references a live document.
func (p *testPipeline) checkIntegrity(t *testing.T) {
	t.Helper()
	docs, err := p.store.BySource(context.Background(), p.source.id)
	require.NoError(t, err)

	live := make(map[string]bool, len(docs))
	for _, doc := range docs {
		live[doc.DocumentID] = true
	}
	for _, chunk := range p.store.AllChunks() {
		assert.True(t, live[chunk.DocumentID], "chunk %s references dead document %s", chunk.Key, chunk.DocumentID)
	}
}

func TestIngestLifecycle(t *testing.T) {
	p := newPipeline(t)
	p.source.set("A.txt", "v1", "a1|a2|a3")
	p.source.set("B.txt", "v1", "b1|b2")

	// First run: everything is new.
	report := p.run(t)
	assert.Equal(t, models.IngestReport{Processed: 2}, report)
	assert.Equal(t, 5, p.store.ChunkCount(""))
	docs, err := p.store.BySource(context.Background(), p.source.id)
	require.NoError(t, err)
	assert.Len(t, docs, 2)
	p.checkIntegrity(t)

	bKeys := chunkKeys(p.store, "B.txt")

	// A changes version and grows to 4 segments.
	p.source.set("A.txt", "v2", "a1|a2|a3|a4")
	report = p.run(t)
	assert.Equal(t, models.IngestReport{Processed: 1}, report)
	assert.Equal(t, 6, p.store.ChunkCount(""))
	assert.Equal(t, 4, p.store.ChunkCount("A.txt"))
	assert.Equal(t, bKeys, chunkKeys(p.store, "B.txt"), "untouched document must not churn")

	docs, err = p.store.BySource(context.Background(), p.source.id)
	require.NoError(t, err)
	for _, doc := range docs {
		if doc.DocumentID == "A.txt" {
			assert.Equal(t, "v2", doc.Version)
		}
	}
	p.checkIntegrity(t)

	// B disappears from the source.
	p.source.remove("B.txt")
	report = p.run(t)
	assert.Equal(t, models.IngestReport{Deleted: 1}, report)
	assert.Equal(t, 4, p.store.ChunkCount(""))
	assert.Equal(t, 0, p.store.ChunkCount("B.txt"))

	docs, err = p.store.BySource(context.Background(), p.source.id)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "A.txt", docs[0].DocumentID)
	p.checkIntegrity(t)
}

func TestIngestIdempotent(t *testing.T) {
	p := newPipeline(t)
	p.source.set("A.txt", "v1", "a1|a2")
	p.source.set("B.txt", "v1", "b1")

	p.run(t)
	before := p.store.AllChunks()
	embedCalls := p.embedder.calls

	report := p.run(t)
	assert.Equal(t, models.IngestReport{}, report)
	assert.Equal(t, embedCalls, p.embedder.calls, "unchanged source must not be re-embedded")
	assert.Equal(t, before, p.store.AllChunks())
}

func TestIngestEmptyDocument(t *testing.T) {
	p := newPipeline(t)
	p.source.set("empty.txt", "v1", "")

	report := p.run(t)
	assert.Equal(t, models.IngestReport{Processed: 1}, report)
	assert.Equal(t, 0, p.store.ChunkCount(""))
	assert.Equal(t, 0, p.embedder.calls)

	// The record still exists so the source is not re-listed as new.
	docs, err := p.store.BySource(context.Background(), p.source.id)
	require.NoError(t, err)
	assert.Len(t, docs, 1)
}

func TestIngestEmbeddingsBatchedPerDocument(t *testing.T) {
	p := newPipeline(t)
	p.source.set("A.txt", "v1", "a1|a2|a3|a4|a5")
	p.source.set("B.txt", "v1", "b1|b2")

	p.run(t)
	assert.Equal(t, 2, p.embedder.calls, "one embedding call per document")
}

func TestIngestAbortsOnFirstFailure(t *testing.T) {
	p := newPipeline(t)
	p.source.set("a.txt", "v1", "fine")
	p.source.set("z.txt", "v1", "poison")
	p.embedder.failOn = "poison"

	report, err := p.orchestrator(t, 0).Ingest(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ingest.ErrEmbedding)
	assert.Equal(t, models.IngestReport{Processed: 1, Failed: 1}, report)

	// The document that completed before the failure keeps its state.
	assert.Equal(t, 1, p.store.ChunkCount("a.txt"))
}

func TestIngestExtractionFailure(t *testing.T) {
	p := newPipeline(t)
	p.source.set("bad.pdf", "v1", "whatever")
	p.extractor.err = assert.AnError

	_, err := p.orchestrator(t, 0).Ingest(context.Background())
	assert.ErrorIs(t, err, ingest.ErrExtraction)
}

func TestIngestSourceUnavailable(t *testing.T) {
	p := newPipeline(t)
	p.source.listErr = assert.AnError

	report, err := p.orchestrator(t, 0).Ingest(context.Background())
	assert.ErrorIs(t, err, ingest.ErrSourceUnavailable)
	assert.Equal(t, models.IngestReport{}, report)
	assert.Equal(t, 0, p.store.ChunkCount(""))
}

func TestIngestStoreFailure(t *testing.T) {
	p := newPipeline(t)
	p.source.set("A.txt", "v1", "a1")
	broken := &errChunkStore{ChunkStore: p.store}

	o, err := ingest.NewWithConfig(ingest.OrchestratorConfig{
		Source:    p.source,
		Extractor: p.extractor,
		Embedder:  p.embedder,
		Documents: p.store,
		Chunks:    broken,
		Logger:    zerolog.Nop(),
	})
	require.NoError(t, err)

	_, err = o.Ingest(context.Background())
	assert.ErrorIs(t, err, ingest.ErrStore)
}

func TestIngestTimeout(t *testing.T) {
	p := newPipeline(t)
	p.source.hang = true

	report, err := p.orchestrator(t, 20*time.Millisecond).Ingest(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ingest.ErrTimeout)
	assert.NotErrorIs(t, err, ingest.ErrSourceUnavailable)
	assert.Equal(t, models.IngestReport{}, report)
}

func TestNewWithConfigRequiresCollaborators(t *testing.T) {
	_, err := ingest.NewWithConfig(ingest.OrchestratorConfig{})
	assert.Error(t, err)
}

type errChunkStore struct {
	types.ChunkStore
}

func (s *errChunkStore) UpsertChunks(context.Context, []models.Chunk) error {
	return assert.AnError
}

func chunkKeys(s *store.MemoryStore, documentID string) []string {
	var keys []string
	for _, chunk := range s.AllChunks() {
		if chunk.DocumentID == documentID {
			keys = append(keys, chunk.Key)
		}
	}
	return keys
}
