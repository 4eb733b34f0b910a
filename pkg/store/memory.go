package store

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/xhad/quill/internal/models"
)

// MemoryStore is an in-process implementation of the document and chunk
// stores using brute-force cosine similarity. It serves tests and small
// corpora that do not warrant a database.
type MemoryStore struct {
	mu     sync.RWMutex
	docs   map[string]models.Document // keyed by sourceID + "\x00" + documentID
	chunks map[string]models.Chunk    // keyed by chunk key
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		docs:   make(map[string]models.Document),
		chunks: make(map[string]models.Chunk),
	}
}

func (s *MemoryStore) EnsureExists(_ context.Context) error { return nil }

func (s *MemoryStore) BySource(_ context.Context, sourceID string) ([]models.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var docs []models.Document
	for _, doc := range s.docs {
		if doc.SourceID == sourceID {
			docs = append(docs, doc)
		}
	}
	sort.Slice(docs, func(i, j int) bool { return docs[i].DocumentID < docs[j].DocumentID })
	return docs, nil
}

func (s *MemoryStore) UpsertDocument(_ context.Context, doc models.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.docs[doc.SourceID+"\x00"+doc.DocumentID] = doc
	return nil
}

func (s *MemoryStore) DeleteDocument(_ context.Context, sourceID, documentID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.docs, sourceID+"\x00"+documentID)
	return nil
}

func (s *MemoryStore) UpsertChunks(_ context.Context, chunks []models.Chunk) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, chunk := range chunks {
		s.chunks[chunk.Key] = chunk
	}
	return nil
}

func (s *MemoryStore) DeleteChunks(_ context.Context, documentID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for key, chunk := range s.chunks {
		if chunk.DocumentID == documentID {
			delete(s.chunks, key)
		}
	}
	return nil
}

func (s *MemoryStore) SearchChunks(_ context.Context, vector []float32, k int, documentID string) ([]models.ScoredChunk, error) {
	if k <= 0 {
		return nil, fmt.Errorf("search limit must be positive, got %d", k)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var results []models.ScoredChunk
	for _, chunk := range s.chunks {
		if documentID != "" && chunk.DocumentID != documentID {
			continue
		}
		results = append(results, models.ScoredChunk{
			Chunk: chunk,
			Score: cosine(vector, chunk.Embedding),
		})
	}

	// Descending score; equal scores fall back to key order so repeated
	// queries return the same ranking.
	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].Key < results[j].Key
	})

	if k < len(results) {
		results = results[:k]
	}
	return results, nil
}

// AllChunks returns a copy of every stored chunk. Diagnostic only.
func (s *MemoryStore) AllChunks() []models.Chunk {
	s.mu.RLock()
	defer s.mu.RUnlock()

	chunks := make([]models.Chunk, 0, len(s.chunks))
	for _, chunk := range s.chunks {
		chunks = append(chunks, chunk)
	}
	sort.Slice(chunks, func(i, j int) bool { return chunks[i].Key < chunks[j].Key })
	return chunks
}

// ChunkCount reports the number of stored chunks, optionally restricted to
// one document. Diagnostic only.
func (s *MemoryStore) ChunkCount(documentID string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if documentID == "" {
		return len(s.chunks)
	}
	n := 0
	for _, chunk := range s.chunks {
		if chunk.DocumentID == documentID {
			n++
		}
	}
	return n
}

func cosine(a, b []float32) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var dot, na, nb float64
	for i := 0; i < n; i++ {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
