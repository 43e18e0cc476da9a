package memory

import (
	"context"
	"fmt"

	"github.com/dtecho/folio/internal/model"
	"github.com/dtecho/folio/internal/storage"
)

// KnowledgeGraph is a directed multigraph over arbitrary ids. Edges are
// upserts: adding (source, target, type) twice yields one edge with the
// latest confidence.
type KnowledgeGraph struct {
	store *storage.Store
}

// Add upserts a typed edge and returns its deterministic id.
func (g *KnowledgeGraph) Add(ctx context.Context, source, target, relType string, confidence float64, meta map[string]any) (string, error) {
	id, err := g.store.UpsertRelation(ctx, model.KnowledgeRelation{
		SourceID:   source,
		TargetID:   target,
		Type:       relType,
		Confidence: confidence,
		Metadata:   meta,
	})
	if err != nil {
		return "", fmt.Errorf("memory: add relation: %w", err)
	}
	return id, nil
}

// Related returns the outgoing edges of a node.
func (g *KnowledgeGraph) Related(ctx context.Context, source string) ([]model.KnowledgeRelation, error) {
	return g.store.ListRelations(ctx, source)
}
