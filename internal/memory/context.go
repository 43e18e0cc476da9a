package memory

import (
	"context"
	"fmt"
	"strings"

	"github.com/dtecho/folio/internal/model"
	"github.com/dtecho/folio/internal/storage"
)

// ContextMemory stores importance-weighted working context for an agent.
type ContextMemory struct {
	store *storage.Store
}

// Store persists a context entry and returns its deterministic id.
func (c *ContextMemory) Store(ctx context.Context, agentID string, content, meta map[string]any, importance float64, tags []string) (string, error) {
	id, err := c.store.UpsertMemoryEntry(ctx, model.MemoryEntry{
		AgentID:    agentID,
		Kind:       model.MemoryContext,
		Content:    content,
		Metadata:   meta,
		Importance: importance,
		Tags:       tags,
	})
	if err != nil {
		return "", fmt.Errorf("memory: store context: %w", err)
	}
	return id, nil
}

// Retrieve returns an agent's context entries ordered by importance then
// recency of access. When query is non-empty, entries are filtered to
// those whose content or tags contain it (case-insensitive).
func (c *ContextMemory) Retrieve(ctx context.Context, agentID, query string, limit int, minImportance float64) ([]model.MemoryEntry, error) {
	kind := model.MemoryContext
	entries, err := c.store.ListMemory(ctx, agentID, &kind, minImportance, limit)
	if err != nil {
		return nil, fmt.Errorf("memory: retrieve context: %w", err)
	}
	if query == "" {
		return entries, nil
	}

	needle := strings.ToLower(query)
	filtered := entries[:0]
	for _, e := range entries {
		if entryMatches(e, needle) {
			filtered = append(filtered, e)
		}
	}
	return filtered, nil
}

func entryMatches(e model.MemoryEntry, needle string) bool {
	for _, tag := range e.Tags {
		if strings.Contains(strings.ToLower(tag), needle) {
			return true
		}
	}
	for k, v := range e.Content {
		if strings.Contains(strings.ToLower(k), needle) {
			return true
		}
		if s, ok := v.(string); ok && strings.Contains(strings.ToLower(s), needle) {
			return true
		}
	}
	return false
}
