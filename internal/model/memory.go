// Package model defines the persistent entities shared by the runtime:
// memory entries, experiences, goals, constraints, risks, plans, tasks,
// sync records, conflicts, and messages. All enumerations use string
// constants so the schema serializes identically across store backends.
package model

import (
	"fmt"
	"time"
)

// MemoryKind classifies a memory entry by the retrieval intent it serves.
type MemoryKind string

const (
	MemoryVector     MemoryKind = "vector"
	MemoryKnowledge  MemoryKind = "knowledge"
	MemoryExperience MemoryKind = "experience"
	MemoryContext    MemoryKind = "context"
)

// ValidMemoryKind reports whether k is one of the four memory kinds.
func ValidMemoryKind(k MemoryKind) bool {
	switch k {
	case MemoryVector, MemoryKnowledge, MemoryExperience, MemoryContext:
		return true
	}
	return false
}

// MemoryEntry is a tagged, importance-weighted piece of durable context
// owned by one agent.
type MemoryEntry struct {
	ID         string         `db:"id"`
	AgentID    string         `db:"agent_id"`
	Kind       MemoryKind     `db:"kind"`
	Content    map[string]any `db:"-"`
	Metadata   map[string]any `db:"-"`
	Importance float64        `db:"importance"`
	Tags       []string       `db:"-"`
	CreatedAt  time.Time      `db:"-"`
	AccessedAt time.Time      `db:"-"`
}

// ClampImportance forces v into [0, 1].
func ClampImportance(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// MemoryEntryID derives the deterministic id for a memory entry so that
// re-storing identical content is an upsert, not a duplicate.
func MemoryEntryID(agentID string, kind MemoryKind, content map[string]any) string {
	return fmt.Sprintf("mem_%s_%s_%s", agentID, kind, ContentHash(content)[:12])
}

// VectorEmbedding is a fixed-dimension embedding keyed by content hash.
// Similarity between embeddings is cosine.
type VectorEmbedding struct {
	ID          string
	ContentHash string
	Vector      []float32
	Metadata    map[string]any
	CreatedAt   time.Time
	// Seq records insertion order and breaks similarity-score ties.
	Seq int64
}

// KnowledgeRelation is a directed, typed edge between two arbitrary ids.
// The id is deterministic on (source, target, type) so adds are upserts.
type KnowledgeRelation struct {
	ID         string
	SourceID   string
	TargetID   string
	Type       string
	Confidence float64
	Metadata   map[string]any
	CreatedAt  time.Time
}

// RelationID derives the deterministic id for a knowledge relation.
func RelationID(source, target, relType string) string {
	return fmt.Sprintf("rel_%s", ContentHash(map[string]any{
		"source": source,
		"target": target,
		"type":   relType,
	})[:16])
}

// ExperienceRecord is the append-only record of one executed action.
// Records are never mutated after insert.
type ExperienceRecord struct {
	ID         string
	AgentID    string
	ActionType string
	Input      map[string]any
	Output     map[string]any
	Success    bool
	Metrics    map[string]float64
	Feedback   map[string]any
	CreatedAt  time.Time
}
