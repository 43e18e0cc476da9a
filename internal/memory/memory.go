// Package memory provides the four retrieval views over the persistent
// store: vector store, knowledge graph, experience log, and context
// memory. The facades are stateless; they hold a store reference and add
// no caching of their own.
package memory

import (
	"log/slog"

	"github.com/dtecho/folio/internal/storage"
)

// System bundles the four facades over one shared store.
type System struct {
	Vectors     *VectorStore
	Graph       *KnowledgeGraph
	Experiences *ExperienceDB
	Context     *ContextMemory
}

// New builds the four facades over store.
func New(store *storage.Store, logger *slog.Logger) *System {
	return &System{
		Vectors:     &VectorStore{store: store, logger: logger},
		Graph:       &KnowledgeGraph{store: store},
		Experiences: &ExperienceDB{store: store},
		Context:     &ContextMemory{store: store},
	}
}
