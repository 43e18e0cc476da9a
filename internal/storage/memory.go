package storage

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/dtecho/folio/internal/model"
)

// UpsertMemoryEntry stores a memory entry. The id is deterministic on
// (agent_id, kind, content hash), so re-storing identical content updates
// the existing row instead of duplicating it.
func (s *Store) UpsertMemoryEntry(ctx context.Context, e model.MemoryEntry) (string, error) {
	if e.AgentID == "" {
		return "", fmt.Errorf("storage: memory entry agent_id is required")
	}
	if !model.ValidMemoryKind(e.Kind) {
		return "", fmt.Errorf("storage: invalid memory kind %q", e.Kind)
	}
	if e.ID == "" {
		e.ID = model.MemoryEntryID(e.AgentID, e.Kind, e.Content)
	}
	e.Importance = model.ClampImportance(e.Importance)

	now := time.Now().UTC()
	if e.CreatedAt.IsZero() {
		e.CreatedAt = now
	}
	if e.AccessedAt.IsZero() {
		e.AccessedAt = now
	}

	_, err := s.exec(ctx,
		`INSERT INTO memory_entries (id, agent_id, kind, content, metadata, importance, tags, created_at, accessed_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (id) DO UPDATE SET
		 content = excluded.content,
		 metadata = excluded.metadata,
		 importance = excluded.importance,
		 tags = excluded.tags,
		 accessed_at = excluded.accessed_at`,
		e.ID, e.AgentID, string(e.Kind), marshalJSON(e.Content), marshalJSON(e.Metadata),
		e.Importance, marshalStrings(e.Tags), formatTime(e.CreatedAt), formatTime(e.AccessedAt),
	)
	if err != nil {
		return "", fmt.Errorf("storage: upsert memory entry: %w", err)
	}
	return e.ID, nil
}

// ListMemory retrieves memory entries for an agent, optionally filtered
// by kind and minimum importance, ordered by (importance desc,
// accessed_at desc) and limited to limit rows.
//
// Reading bumps accessed_at on the returned rows. The bump is
// best-effort: failure to update does not fail the read.
func (s *Store) ListMemory(ctx context.Context, agentID string, kind *model.MemoryKind, minImportance float64, limit int) ([]model.MemoryEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `SELECT id, agent_id, kind, content, metadata, importance, tags, created_at, accessed_at
		 FROM memory_entries WHERE agent_id = ? AND importance >= ?`
	args := []any{agentID, minImportance}
	if kind != nil {
		query += ` AND kind = ?`
		args = append(args, string(*kind))
	}
	query += fmt.Sprintf(` ORDER BY importance DESC, accessed_at DESC LIMIT %d`, limit)

	rows, err := s.query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("storage: list memory: %w", err)
	}
	defer rows.Close()

	var entries []model.MemoryEntry
	for rows.Next() {
		var (
			e                                            model.MemoryEntry
			kindStr, content, meta, tags, created, accessed string
		)
		if err := rows.Scan(&e.ID, &e.AgentID, &kindStr, &content, &meta, &e.Importance, &tags, &created, &accessed); err != nil {
			return nil, fmt.Errorf("storage: scan memory entry: %w", err)
		}
		e.Kind = model.MemoryKind(kindStr)
		e.Content = unmarshalMap(content)
		e.Metadata = unmarshalMap(meta)
		e.Tags = unmarshalStrings(tags)
		e.CreatedAt = parseTime(created)
		e.AccessedAt = parseTime(accessed)
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("storage: list memory rows: %w", err)
	}

	s.touchAccessed(ctx, entries)
	return entries, nil
}

// touchAccessed bumps accessed_at for the given entries. Best-effort;
// updates may be reordered relative to concurrent reads.
func (s *Store) touchAccessed(ctx context.Context, entries []model.MemoryEntry) {
	if len(entries) == 0 {
		return
	}
	ids := make([]string, len(entries))
	for i, e := range entries {
		ids[i] = e.ID
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(ids)), ", ")
	args := make([]any, 0, len(ids)+1)
	args = append(args, formatTime(time.Now().UTC()))
	for _, id := range ids {
		args = append(args, id)
	}
	if _, err := s.exec(ctx, `UPDATE memory_entries SET accessed_at = ? WHERE id IN (`+placeholders+`)`, args...); err != nil {
		s.logger.Debug("storage: touch accessed_at failed", "error", err)
	}
}
