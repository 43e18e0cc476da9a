package memory_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dtecho/folio/internal/memory"
	"github.com/dtecho/folio/internal/testutil"
)

func newSystem(t *testing.T) *memory.System {
	t.Helper()
	return memory.New(testutil.OpenStore(t), testutil.TestLogger())
}

func TestCosine(t *testing.T) {
	assert.InDelta(t, 1.0, memory.Cosine([]float32{1, 0}, []float32{2, 0}), 1e-9)
	assert.InDelta(t, 0.0, memory.Cosine([]float32{1, 0}, []float32{0, 1}), 1e-9)
	assert.InDelta(t, -1.0, memory.Cosine([]float32{1, 0}, []float32{-1, 0}), 1e-9)
	assert.Equal(t, 0.0, memory.Cosine([]float32{1, 0}, []float32{1, 0, 0}))
	assert.Equal(t, 0.0, memory.Cosine([]float32{0, 0}, []float32{1, 0}))
}

func TestFindSimilarEmptyStore(t *testing.T) {
	sys := newSystem(t)
	hits, err := sys.Vectors.FindSimilar(context.Background(), []float32{1, 0, 0}, 5)
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestFindSimilarRankingAndTies(t *testing.T) {
	sys := newSystem(t)
	ctx := context.Background()

	// Two identical directions inserted in order, one orthogonal.
	idA, err := sys.Vectors.Store(ctx, "hash-a", []float32{1, 0, 0}, nil)
	require.NoError(t, err)
	idB, err := sys.Vectors.Store(ctx, "hash-b", []float32{2, 0, 0}, nil)
	require.NoError(t, err)
	idC, err := sys.Vectors.Store(ctx, "hash-c", []float32{0, 1, 0}, nil)
	require.NoError(t, err)

	hits, err := sys.Vectors.FindSimilar(ctx, []float32{1, 0, 0}, 3)
	require.NoError(t, err)
	require.Len(t, hits, 3)
	// Equal scores tie-break by insertion order.
	assert.Equal(t, idA, hits[0].ID)
	assert.Equal(t, idB, hits[1].ID)
	assert.Equal(t, idC, hits[2].ID)
	assert.InDelta(t, 1.0, hits[0].Score, 1e-9)
	assert.InDelta(t, 0.0, hits[2].Score, 1e-9)

	hits, err = sys.Vectors.FindSimilar(ctx, []float32{1, 0, 0}, 1)
	require.NoError(t, err)
	assert.Len(t, hits, 1)
}

func TestContextRetrieveWithQuery(t *testing.T) {
	sys := newSystem(t)
	ctx := context.Background()

	_, err := sys.Context.Store(ctx, "ag1",
		map[string]any{"summary": "manuscript m17 accepted"}, nil, 0.8, []string{"editorial"})
	require.NoError(t, err)
	_, err = sys.Context.Store(ctx, "ag1",
		map[string]any{"summary": "reviewer pool refreshed"}, nil, 0.6, []string{"review"})
	require.NoError(t, err)

	all, err := sys.Context.Retrieve(ctx, "ag1", "", 10, 0)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	hits, err := sys.Context.Retrieve(ctx, "ag1", "manuscript", 10, 0)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "manuscript m17 accepted", hits[0].Content["summary"])

	hits, err = sys.Context.Retrieve(ctx, "ag1", "review", 10, 0)
	require.NoError(t, err)
	require.Len(t, hits, 1)

	none, err := sys.Context.Retrieve(ctx, "ag1", "production", 10, 0)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestGraphUpsert(t *testing.T) {
	sys := newSystem(t)
	ctx := context.Background()

	id1, err := sys.Graph.Add(ctx, "m1", "reviewer-9", "assigned_to", 0.4, nil)
	require.NoError(t, err)
	id2, err := sys.Graph.Add(ctx, "m1", "reviewer-9", "assigned_to", 0.9, nil)
	require.NoError(t, err)
	assert.Equal(t, id1, id2)

	rels, err := sys.Graph.Related(ctx, "m1")
	require.NoError(t, err)
	require.Len(t, rels, 1)
	assert.Equal(t, 0.9, rels[0].Confidence)
}

func TestExperienceLogList(t *testing.T) {
	sys := newSystem(t)
	ctx := context.Background()

	_, err := sys.Experiences.Log(ctx, "ag1", "assess",
		map[string]any{"id": "m1"}, map[string]any{"score": 0.7}, true,
		map[string]float64{"elapsed": 1.2}, nil)
	require.NoError(t, err)

	list, err := sys.Experiences.List(ctx, "ag1", nil, 10)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "assess", list[0].ActionType)
	assert.Equal(t, "m1", list[0].Input["id"])
	assert.Equal(t, 0.7, list[0].Output["score"])
	assert.True(t, list[0].Success)
}
