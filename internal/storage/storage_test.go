package storage_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dtecho/folio/internal/model"
	"github.com/dtecho/folio/internal/storage"
	"github.com/dtecho/folio/internal/testutil"
)

func TestMemoryEntryUpsertIsIdempotent(t *testing.T) {
	s := testutil.OpenStore(t)
	ctx := context.Background()

	entry := model.MemoryEntry{
		AgentID:    "ag1",
		Kind:       model.MemoryContext,
		Content:    map[string]any{"note": "manuscript m1 triaged"},
		Importance: 0.7,
		Tags:       []string{"triage"},
	}
	id1, err := s.UpsertMemoryEntry(ctx, entry)
	require.NoError(t, err)

	entry.Importance = 0.9
	id2, err := s.UpsertMemoryEntry(ctx, entry)
	require.NoError(t, err)
	assert.Equal(t, id1, id2)

	entries, err := s.ListMemory(ctx, "ag1", nil, 0, 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, 0.9, entries[0].Importance)
}

func TestMemoryImportanceClampedAndOrdered(t *testing.T) {
	s := testutil.OpenStore(t)
	ctx := context.Background()

	_, err := s.UpsertMemoryEntry(ctx, model.MemoryEntry{
		AgentID: "ag1", Kind: model.MemoryContext,
		Content: map[string]any{"n": 1}, Importance: 3.5,
	})
	require.NoError(t, err)
	_, err = s.UpsertMemoryEntry(ctx, model.MemoryEntry{
		AgentID: "ag1", Kind: model.MemoryContext,
		Content: map[string]any{"n": 2}, Importance: -1,
	})
	require.NoError(t, err)
	_, err = s.UpsertMemoryEntry(ctx, model.MemoryEntry{
		AgentID: "ag1", Kind: model.MemoryContext,
		Content: map[string]any{"n": 3}, Importance: 0.5,
	})
	require.NoError(t, err)

	entries, err := s.ListMemory(ctx, "ag1", nil, 0, 10)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	// Clamped to [0,1] and ordered importance desc.
	assert.Equal(t, 1.0, entries[0].Importance)
	assert.Equal(t, 0.5, entries[1].Importance)
	assert.Equal(t, 0.0, entries[2].Importance)

	// min_importance filters.
	entries, err = s.ListMemory(ctx, "ag1", nil, 0.4, 10)
	require.NoError(t, err)
	assert.Len(t, entries, 2)

	// Kind filter.
	kind := model.MemoryVector
	entries, err = s.ListMemory(ctx, "ag1", &kind, 0, 10)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestRelationUpsertKeepsOneEdge(t *testing.T) {
	s := testutil.OpenStore(t)
	ctx := context.Background()

	_, err := s.UpsertRelation(ctx, model.KnowledgeRelation{
		SourceID: "x", TargetID: "y", Type: "related", Confidence: 0.4,
	})
	require.NoError(t, err)
	_, err = s.UpsertRelation(ctx, model.KnowledgeRelation{
		SourceID: "x", TargetID: "y", Type: "related", Confidence: 0.8,
	})
	require.NoError(t, err)

	rels, err := s.ListRelations(ctx, "x")
	require.NoError(t, err)
	require.Len(t, rels, 1)
	assert.Equal(t, 0.8, rels[0].Confidence)
}

func TestRelationUpsertUnderRace(t *testing.T) {
	s := testutil.OpenStore(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := 0; i < 2; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs[i] = storage.WithRetry(ctx, 5, 10*time.Millisecond, func() error {
				_, err := s.UpsertRelation(ctx, model.KnowledgeRelation{
					SourceID: "x", TargetID: "y", Type: "related", Confidence: 0.4,
				})
				return err
			})
		}()
	}
	wg.Wait()

	require.NoError(t, errs[0])
	require.NoError(t, errs[1])
	rels, err := s.ListRelations(ctx, "x")
	require.NoError(t, err)
	require.Len(t, rels, 1)
	assert.Equal(t, 0.4, rels[0].Confidence)
}

func TestExperienceRoundTripAndOrdering(t *testing.T) {
	s := testutil.OpenStore(t)
	ctx := context.Background()

	_, err := s.AppendExperience(ctx, model.ExperienceRecord{
		AgentID: "ag1", ActionType: "assess",
		Input:   map[string]any{"manuscript_id": "m1"},
		Output:  map[string]any{"quality_score": 0.8},
		Success: true,
		Metrics: map[string]float64{"duration": 2.5},
		CreatedAt: time.Now().UTC().Add(-time.Minute),
	})
	require.NoError(t, err)
	_, err = s.AppendExperience(ctx, model.ExperienceRecord{
		AgentID: "ag1", ActionType: "assess",
		Input:   map[string]any{"manuscript_id": "m2"},
		Output:  map[string]any{"quality_score": 0.3},
		Success: false,
	})
	require.NoError(t, err)

	list, err := s.ListExperiences(ctx, "ag1", nil, 10)
	require.NoError(t, err)
	require.Len(t, list, 2)
	// Newest first.
	assert.Equal(t, "m2", list[0].Input["manuscript_id"])
	assert.False(t, list[0].Success)
	assert.Equal(t, "m1", list[1].Input["manuscript_id"])
	assert.True(t, list[1].Success)
	assert.Equal(t, 2.5, list[1].Metrics["duration"])

	other := "review"
	list, err = s.ListExperiences(ctx, "ag1", &other, 10)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestGoalOrderingByPriorityThenAge(t *testing.T) {
	s := testutil.OpenStore(t)
	ctx := context.Background()

	base := time.Now().UTC().Add(-time.Hour)
	for i, g := range []model.Goal{
		{AgentID: "ag1", Description: "low goal", Priority: model.PriorityLow},
		{AgentID: "ag1", Description: "critical goal", Priority: model.PriorityCritical},
		{AgentID: "ag1", Description: "older high goal", Priority: model.PriorityHigh},
		{AgentID: "ag1", Description: "newer high goal", Priority: model.PriorityHigh},
	} {
		g.CreatedAt = base.Add(time.Duration(i) * time.Minute)
		g.UpdatedAt = g.CreatedAt
		_, err := s.CreateGoal(ctx, g)
		require.NoError(t, err)
	}

	goals, err := s.ListGoals(ctx, "ag1", model.GoalActive)
	require.NoError(t, err)
	require.Len(t, goals, 4)
	assert.Equal(t, "critical goal", goals[0].Description)
	assert.Equal(t, "older high goal", goals[1].Description)
	assert.Equal(t, "newer high goal", goals[2].Description)
	assert.Equal(t, "low goal", goals[3].Description)
}

func TestGoalPastDeadlineStillActive(t *testing.T) {
	s := testutil.OpenStore(t)
	ctx := context.Background()

	past := time.Now().UTC().Add(-48 * time.Hour)
	id, err := s.CreateGoal(ctx, model.Goal{
		AgentID: "ag1", Description: "overdue goal",
		Priority: model.PriorityMedium, Deadline: &past,
	})
	require.NoError(t, err)

	goals, err := s.ListGoals(ctx, "ag1", model.GoalActive)
	require.NoError(t, err)
	require.Len(t, goals, 1)
	assert.Equal(t, id, goals[0].ID)
}

func TestRiskFactorLevelDerivedOnInsert(t *testing.T) {
	s := testutil.OpenStore(t)
	ctx := context.Background()

	// Caller-supplied level is ignored; the bucket comes from prob*impact.
	_, err := s.InsertRiskFactor(ctx, model.RiskFactor{
		AgentID: "ag1", Kind: "schedule", Description: "reviewer delay",
		Probability: 0.9, Impact: 0.9, Level: model.RiskMinimal,
	})
	require.NoError(t, err)

	risks, err := s.ListRiskFactors(ctx, "ag1")
	require.NoError(t, err)
	require.Len(t, risks, 1)
	assert.Equal(t, model.RiskCritical, risks[0].Level)

	_, err = s.InsertRiskFactor(ctx, model.RiskFactor{
		AgentID: "ag1", Kind: "schedule", Description: "bad probability",
		Probability: 1.5, Impact: 0.5,
	})
	assert.Error(t, err)
}

func TestSyncRecordLatestAndInProgressCount(t *testing.T) {
	s := testutil.OpenStore(t)
	ctx := context.Background()

	id1, err := s.UpsertSyncRecord(ctx, model.SyncRecord{
		EntityType: "manuscript", EntityID: "m1",
		Direction: model.SyncBidirectional, Status: model.SyncCompleted,
		Timestamp: time.Now().UTC().Add(-time.Minute),
	})
	require.NoError(t, err)
	id2, err := s.UpsertSyncRecord(ctx, model.SyncRecord{
		EntityType: "manuscript", EntityID: "m1",
		Direction: model.SyncBidirectional, Status: model.SyncInProgress,
	})
	require.NoError(t, err)
	require.NotEqual(t, id1, id2)

	latest, err := s.GetLatestSyncRecord(ctx, "manuscript", "m1")
	require.NoError(t, err)
	assert.Equal(t, id2, latest.ID)

	n, err := s.CountInProgress(ctx, "manuscript", "m1")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	_, err = s.GetLatestSyncRecord(ctx, "manuscript", "missing")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestSyncStatsRoundTrip(t *testing.T) {
	s := testutil.OpenStore(t)
	ctx := context.Background()

	st, err := s.LoadSyncStats(ctx)
	require.NoError(t, err)
	assert.Zero(t, st.Total)

	now := time.Now().UTC()
	require.NoError(t, s.SaveSyncStats(ctx, storage.SyncStats{
		Total: 5, Success: 3, Failure: 2, ConflictsDetected: 1, ConflictsResolved: 1, LastSync: &now,
	}))

	st, err = s.LoadSyncStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(5), st.Total)
	assert.Equal(t, int64(3), st.Success)
	require.NotNil(t, st.LastSync)
}

func TestRetentionPass(t *testing.T) {
	s := testutil.OpenStore(t)
	ctx := context.Background()

	old := time.Now().UTC().Add(-60 * 24 * time.Hour)
	// Old + unimportant: deleted. Old + important: kept. Fresh: kept.
	_, err := s.UpsertMemoryEntry(ctx, model.MemoryEntry{
		AgentID: "ag1", Kind: model.MemoryContext,
		Content: map[string]any{"n": "stale"}, Importance: 0.1,
		CreatedAt: old, AccessedAt: old,
	})
	require.NoError(t, err)
	_, err = s.UpsertMemoryEntry(ctx, model.MemoryEntry{
		AgentID: "ag1", Kind: model.MemoryContext,
		Content: map[string]any{"n": "old but important"}, Importance: 0.9,
		CreatedAt: old, AccessedAt: old,
	})
	require.NoError(t, err)
	_, err = s.UpsertMemoryEntry(ctx, model.MemoryEntry{
		AgentID: "ag1", Kind: model.MemoryContext,
		Content: map[string]any{"n": "fresh"}, Importance: 0.1,
	})
	require.NoError(t, err)

	_, err = s.UpsertSyncRecord(ctx, model.SyncRecord{
		EntityType: "manuscript", EntityID: "m1",
		Direction: model.SyncToExternal, Status: model.SyncCompleted,
		Timestamp: old,
	})
	require.NoError(t, err)

	counts, err := s.RunRetention(ctx, storage.DefaultRetentionPolicy())
	require.NoError(t, err)
	assert.Equal(t, int64(1), counts["memory_entries"])
	assert.Equal(t, int64(1), counts["sync_records"])

	// Idempotent: a second pass deletes nothing.
	counts, err = s.RunRetention(ctx, storage.DefaultRetentionPolicy())
	require.NoError(t, err)
	assert.Zero(t, counts["memory_entries"])
	assert.Zero(t, counts["sync_records"])
}

func TestEmbeddingUniqueOnContentHash(t *testing.T) {
	s := testutil.OpenStore(t)
	ctx := context.Background()

	id1, err := s.InsertEmbedding(ctx, model.VectorEmbedding{
		ContentHash: "abcdef0123456789", Vector: []float32{1, 0, 0},
	})
	require.NoError(t, err)
	id2, err := s.InsertEmbedding(ctx, model.VectorEmbedding{
		ContentHash: "abcdef0123456789", Vector: []float32{0, 1, 0},
	})
	require.NoError(t, err)
	assert.Equal(t, id1, id2)

	vecs, err := s.ListEmbeddingVectors(ctx)
	require.NoError(t, err)
	require.Len(t, vecs, 1)
	assert.Equal(t, []float32{1, 0, 0}, vecs[0].Vector)
}
