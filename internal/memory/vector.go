package memory

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"

	"github.com/dtecho/folio/internal/model"
	"github.com/dtecho/folio/internal/storage"
)

// VectorStore stores fixed-dimension embeddings keyed by content hash and
// answers cosine-similarity queries.
type VectorStore struct {
	store  *storage.Store
	logger *slog.Logger
}

// SimilarResult is one hit from FindSimilar.
type SimilarResult struct {
	ID    string
	Score float64
}

// Store persists an embedding. Storing the same content hash twice
// returns the existing id.
func (v *VectorStore) Store(ctx context.Context, contentHash string, vector []float32, meta map[string]any) (string, error) {
	id, err := v.store.InsertEmbedding(ctx, model.VectorEmbedding{
		ContentHash: contentHash,
		Vector:      vector,
		Metadata:    meta,
	})
	if err != nil {
		return "", fmt.Errorf("memory: store vector: %w", err)
	}
	return id, nil
}

// FindSimilar returns the k nearest embeddings to query by cosine
// similarity, ties broken by insertion order. An empty store returns an
// empty result, not an error. Only embedding vectors are loaded; metadata
// stays on disk.
func (v *VectorStore) FindSimilar(ctx context.Context, query []float32, k int) ([]SimilarResult, error) {
	if k <= 0 {
		k = 10
	}
	vecs, err := v.store.ListEmbeddingVectors(ctx)
	if err != nil {
		return nil, fmt.Errorf("memory: find similar: %w", err)
	}
	if len(vecs) == 0 {
		return []SimilarResult{}, nil
	}

	type scored struct {
		id    string
		score float64
		seq   int64
	}
	hits := make([]scored, 0, len(vecs))
	for _, e := range vecs {
		hits = append(hits, scored{id: e.ID, score: Cosine(query, e.Vector), seq: e.Seq})
	}
	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].score != hits[j].score {
			return hits[i].score > hits[j].score
		}
		return hits[i].seq < hits[j].seq
	})

	if k > len(hits) {
		k = len(hits)
	}
	out := make([]SimilarResult, k)
	for i := 0; i < k; i++ {
		out[i] = SimilarResult{ID: hits[i].id, Score: hits[i].score}
	}
	return out, nil
}

// Cosine returns the cosine similarity of a and b. Mismatched dimensions
// or zero-norm vectors score 0.
func Cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
