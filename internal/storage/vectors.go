package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/dtecho/folio/internal/model"
)

// InsertEmbedding stores an embedding, unique on content hash. Inserting
// the same hash twice returns the existing id without modifying the row.
// The seq column records insertion order for tie-breaking.
func (s *Store) InsertEmbedding(ctx context.Context, e model.VectorEmbedding) (string, error) {
	if e.ContentHash == "" {
		return "", fmt.Errorf("storage: embedding content_hash is required")
	}
	if len(e.Vector) == 0 {
		return "", fmt.Errorf("storage: embedding vector is empty")
	}
	if e.ID == "" {
		e.ID = "vec_" + e.ContentHash[:min(16, len(e.ContentHash))]
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}

	id := e.ID
	err := s.withTx(ctx, func(tx *sqlx.Tx) error {
		var existing string
		err := tx.QueryRowxContext(ctx, s.rebind(
			`SELECT id FROM vector_embeddings WHERE content_hash = ?`), e.ContentHash).Scan(&existing)
		switch {
		case err == nil:
			id = existing
			return nil
		case !errors.Is(err, sql.ErrNoRows):
			return fmt.Errorf("storage: check embedding hash: %w", err)
		}

		var seq int64
		if err := tx.QueryRowxContext(ctx, `SELECT COALESCE(MAX(seq), 0) + 1 FROM vector_embeddings`).Scan(&seq); err != nil {
			return fmt.Errorf("storage: next embedding seq: %w", err)
		}
		_, err = tx.ExecContext(ctx, s.rebind(
			`INSERT INTO vector_embeddings (id, content_hash, vector, dims, metadata, seq, created_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?)
			 ON CONFLICT (content_hash) DO NOTHING`),
			e.ID, e.ContentHash, encodeVector(e.Vector), len(e.Vector),
			marshalJSON(e.Metadata), seq, formatTime(e.CreatedAt))
		if err != nil {
			return fmt.Errorf("storage: insert embedding: %w", err)
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	return id, nil
}

// ListEmbeddingVectors loads only (id, vector, seq) for every stored
// embedding. Metadata stays on disk; similarity scans over large corpora
// must not pay for it.
func (s *Store) ListEmbeddingVectors(ctx context.Context) ([]model.VectorEmbedding, error) {
	rows, err := s.query(ctx, `SELECT id, vector, seq FROM vector_embeddings ORDER BY seq ASC`)
	if err != nil {
		return nil, fmt.Errorf("storage: list embedding vectors: %w", err)
	}
	defer rows.Close()

	var out []model.VectorEmbedding
	for rows.Next() {
		var (
			e   model.VectorEmbedding
			raw []byte
		)
		if err := rows.Scan(&e.ID, &raw, &e.Seq); err != nil {
			return nil, fmt.Errorf("storage: scan embedding vector: %w", err)
		}
		e.Vector = decodeVector(raw)
		out = append(out, e)
	}
	return out, rows.Err()
}

// GetEmbedding loads one embedding with its metadata.
func (s *Store) GetEmbedding(ctx context.Context, id string) (*model.VectorEmbedding, error) {
	var (
		e            model.VectorEmbedding
		raw          []byte
		meta, created string
	)
	err := s.queryRow(ctx,
		`SELECT id, content_hash, vector, metadata, seq, created_at FROM vector_embeddings WHERE id = ?`, id).
		Scan(&e.ID, &e.ContentHash, &raw, &meta, &e.Seq, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("storage: get embedding: %w", err)
	}
	e.Vector = decodeVector(raw)
	e.Metadata = unmarshalMap(meta)
	e.CreatedAt = parseTime(created)
	return &e, nil
}
