package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/dtecho/folio/internal/model"
)

// UpsertRelation stores a knowledge relation. The id is deterministic on
// (source, target, type), so repeated adds update confidence and metadata
// on the single existing edge.
func (s *Store) UpsertRelation(ctx context.Context, r model.KnowledgeRelation) (string, error) {
	if r.SourceID == "" || r.TargetID == "" || r.Type == "" {
		return "", fmt.Errorf("storage: relation source, target, and type are required")
	}
	if r.ID == "" {
		r.ID = model.RelationID(r.SourceID, r.TargetID, r.Type)
	}
	r.Confidence = model.ClampImportance(r.Confidence)
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now().UTC()
	}

	_, err := s.exec(ctx,
		`INSERT INTO knowledge_relations (id, source_id, target_id, rel_type, confidence, metadata, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (id) DO UPDATE SET
		 confidence = excluded.confidence,
		 metadata = excluded.metadata`,
		r.ID, r.SourceID, r.TargetID, r.Type, r.Confidence,
		marshalJSON(r.Metadata), formatTime(r.CreatedAt),
	)
	if err != nil {
		return "", fmt.Errorf("storage: upsert relation: %w", err)
	}
	return r.ID, nil
}

// ListRelations returns the outgoing edges of a source node.
func (s *Store) ListRelations(ctx context.Context, sourceID string) ([]model.KnowledgeRelation, error) {
	rows, err := s.query(ctx,
		`SELECT id, source_id, target_id, rel_type, confidence, metadata, created_at
		 FROM knowledge_relations WHERE source_id = ? ORDER BY created_at ASC`, sourceID)
	if err != nil {
		return nil, fmt.Errorf("storage: list relations: %w", err)
	}
	defer rows.Close()

	var out []model.KnowledgeRelation
	for rows.Next() {
		var (
			r             model.KnowledgeRelation
			meta, created string
		)
		if err := rows.Scan(&r.ID, &r.SourceID, &r.TargetID, &r.Type, &r.Confidence, &meta, &created); err != nil {
			return nil, fmt.Errorf("storage: scan relation: %w", err)
		}
		r.Metadata = unmarshalMap(meta)
		r.CreatedAt = parseTime(created)
		out = append(out, r)
	}
	return out, rows.Err()
}
