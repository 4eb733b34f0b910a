package store

import (
	"context"
	"fmt"
	"unicode/utf8"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/xhad/quill/internal/models"
)

type PGStoreConfig struct {
	ConnString     string
	DocumentsTable string
	ChunksTable    string
	VectorDim      int
}

// PGStore keeps document records and embedded chunks in PostgreSQL with
// the pgvector extension. It backs both the DocumentStore and ChunkStore
// interfaces; similarity search uses the cosine distance operator with
// chunk key as the tie-breaker.
type PGStore struct {
	config PGStoreConfig
	pool   *pgxpool.Pool
}

func NewWithConfig(config PGStoreConfig) (*PGStore, error) {
	if config.DocumentsTable == "" {
		config.DocumentsTable = "documents"
	}
	if config.ChunksTable == "" {
		config.ChunksTable = "chunks"
	}
	if config.VectorDim == 0 {
		config.VectorDim = 768
	}

	pool, err := pgxpool.New(context.Background(), config.ConnString)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	return &PGStore{config: config, pool: pool}, nil
}

// EnsureExists creates the extension, both tables, and their indexes.
func (s *PGStore) EnsureExists(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, "CREATE EXTENSION IF NOT EXISTS vector"); err != nil {
		return fmt.Errorf("failed to create vector extension: %w", err)
	}

	createDocuments := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			key UUID PRIMARY KEY,
			source_id TEXT NOT NULL,
			document_id TEXT NOT NULL,
			version TEXT NOT NULL,
			UNIQUE (source_id, document_id)
		)`, s.config.DocumentsTable)
	if _, err := s.pool.Exec(ctx, createDocuments); err != nil {
		return fmt.Errorf("failed to create documents table: %w", err)
	}

	createChunks := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			key UUID PRIMARY KEY,
			document_id TEXT NOT NULL,
			page INTEGER NOT NULL,
			content TEXT NOT NULL,
			embedding vector(%d)
		)`, s.config.ChunksTable, s.config.VectorDim)
	if _, err := s.pool.Exec(ctx, createChunks); err != nil {
		return fmt.Errorf("failed to create chunks table: %w", err)
	}

	createVectorIndex := fmt.Sprintf(`
		CREATE INDEX IF NOT EXISTS %s_embedding_idx
		ON %s
		USING ivfflat (embedding vector_cosine_ops)
		WITH (lists = 100)`, s.config.ChunksTable, s.config.ChunksTable)
	if _, err := s.pool.Exec(ctx, createVectorIndex); err != nil {
		return fmt.Errorf("failed to create vector index: %w", err)
	}

	createDocIndex := fmt.Sprintf(`
		CREATE INDEX IF NOT EXISTS %s_document_id_idx
		ON %s (document_id)`, s.config.ChunksTable, s.config.ChunksTable)
	if _, err := s.pool.Exec(ctx, createDocIndex); err != nil {
		return fmt.Errorf("failed to create document index: %w", err)
	}

	return nil
}

func (s *PGStore) BySource(ctx context.Context, sourceID string) ([]models.Document, error) {
	query := fmt.Sprintf(`
		SELECT key, source_id, document_id, version
		FROM %s
		WHERE source_id = $1
		ORDER BY document_id`, s.config.DocumentsTable)

	rows, err := s.pool.Query(ctx, query, sourceID)
	if err != nil {
		return nil, fmt.Errorf("failed to query documents: %w", err)
	}
	defer rows.Close()

	var docs []models.Document
	for rows.Next() {
		var doc models.Document
		if err := rows.Scan(&doc.Key, &doc.SourceID, &doc.DocumentID, &doc.Version); err != nil {
			return nil, fmt.Errorf("failed to scan document: %w", err)
		}
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

// UpsertDocument replaces the live record for (source_id, document_id),
// including its storage key.
func (s *PGStore) UpsertDocument(ctx context.Context, doc models.Document) error {
	stmt := fmt.Sprintf(`
		INSERT INTO %s (key, source_id, document_id, version)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (source_id, document_id) DO UPDATE SET
			key = EXCLUDED.key,
			version = EXCLUDED.version`, s.config.DocumentsTable)

	if _, err := s.pool.Exec(ctx, stmt, doc.Key, doc.SourceID, doc.DocumentID, doc.Version); err != nil {
		return fmt.Errorf("failed to upsert document: %w", err)
	}
	return nil
}

func (s *PGStore) DeleteDocument(ctx context.Context, sourceID, documentID string) error {
	stmt := fmt.Sprintf(`DELETE FROM %s WHERE source_id = $1 AND document_id = $2`, s.config.DocumentsTable)
	if _, err := s.pool.Exec(ctx, stmt, sourceID, documentID); err != nil {
		return fmt.Errorf("failed to delete document: %w", err)
	}
	return nil
}

func (s *PGStore) UpsertChunks(ctx context.Context, chunks []models.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	stmt := fmt.Sprintf(`
		INSERT INTO %s (key, document_id, page, content, embedding)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (key) DO UPDATE SET
			page = EXCLUDED.page,
			content = EXCLUDED.content,
			embedding = EXCLUDED.embedding`, s.config.ChunksTable)

	for _, chunk := range chunks {
		_, err := tx.Exec(ctx, stmt,
			chunk.Key,
			chunk.DocumentID,
			chunk.Page,
			sanitizeUTF8(chunk.Text),
			pgvector.NewVector(chunk.Embedding),
		)
		if err != nil {
			return fmt.Errorf("failed to insert chunk: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func (s *PGStore) DeleteChunks(ctx context.Context, documentID string) error {
	stmt := fmt.Sprintf(`DELETE FROM %s WHERE document_id = $1`, s.config.ChunksTable)
	if _, err := s.pool.Exec(ctx, stmt, documentID); err != nil {
		return fmt.Errorf("failed to delete chunks: %w", err)
	}
	return nil
}

func (s *PGStore) SearchChunks(ctx context.Context, vector []float32, k int, documentID string) ([]models.ScoredChunk, error) {
	if k <= 0 {
		return nil, fmt.Errorf("search limit must be positive, got %d", k)
	}

	embedding := pgvector.NewVector(vector)
	query := fmt.Sprintf(`
		SELECT key, document_id, page, content, embedding, 1 - (embedding <=> $1) AS score
		FROM %s
		ORDER BY embedding <=> $1, key
		LIMIT $2`, s.config.ChunksTable)
	args := []any{embedding, k}

	if documentID != "" {
		query = fmt.Sprintf(`
			SELECT key, document_id, page, content, embedding, 1 - (embedding <=> $1) AS score
			FROM %s
			WHERE document_id = $3
			ORDER BY embedding <=> $1, key
			LIMIT $2`, s.config.ChunksTable)
		args = append(args, documentID)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query chunks: %w", err)
	}
	defer rows.Close()

	var results []models.ScoredChunk
	for rows.Next() {
		var result models.ScoredChunk
		var stored pgvector.Vector
		if err := rows.Scan(&result.Key, &result.DocumentID, &result.Page, &result.Text, &stored, &result.Score); err != nil {
			return nil, fmt.Errorf("failed to scan chunk: %w", err)
		}
		result.Embedding = stored.Slice()
		results = append(results, result)
	}
	return results, rows.Err()
}

func (s *PGStore) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

func sanitizeUTF8(s string) string {
	if utf8.ValidString(s) {
		return s
	}
	v := make([]rune, 0, len(s))
	for i, r := range s {
		if r == utf8.RuneError {
			_, size := utf8.DecodeRuneInString(s[i:])
			if size == 1 {
				continue
			}
		}
		v = append(v, r)
	}
	return string(v)
}
