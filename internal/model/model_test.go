package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClampImportance(t *testing.T) {
	assert.Equal(t, 0.0, ClampImportance(-0.5))
	assert.Equal(t, 1.0, ClampImportance(1.5))
	assert.Equal(t, 0.42, ClampImportance(0.42))
}

func TestRiskLevelFromScore(t *testing.T) {
	tests := []struct {
		score float64
		want  RiskLevel
	}{
		{0.0, RiskMinimal},
		{0.15, RiskMinimal},
		{0.2, RiskLow},
		{0.39, RiskLow},
		{0.4, RiskMedium},
		{0.59, RiskMedium},
		{0.6, RiskHigh},
		{0.79, RiskHigh},
		{0.8, RiskCritical},
		{1.0, RiskCritical},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, RiskLevelFromScore(tt.score), "score %v", tt.score)
	}
}

func TestPriorityRank(t *testing.T) {
	assert.Greater(t, PriorityRank(PriorityCritical), PriorityRank(PriorityHigh))
	assert.Greater(t, PriorityRank(PriorityHigh), PriorityRank(PriorityMedium))
	assert.Greater(t, PriorityRank(PriorityMedium), PriorityRank(PriorityLow))
	assert.Equal(t, 0, PriorityRank(Priority("unknown")))
}

func TestCanonicalHashIgnoresTimestamps(t *testing.T) {
	a := map[string]any{"id": "m1", "title": "A", "updated_at": "2024-01-01T10:00:00Z"}
	b := map[string]any{"id": "m1", "title": "A", "updated_at": "2024-06-01T10:00:00Z", "last_updated": "now", "timestamp": 12345}
	c := map[string]any{"id": "m1", "title": "B", "updated_at": "2024-01-01T10:00:00Z"}

	assert.Equal(t, CanonicalHash(a), CanonicalHash(b))
	assert.NotEqual(t, CanonicalHash(a), CanonicalHash(c))
}

func TestContentHashDeterministic(t *testing.T) {
	a := map[string]any{"x": 1, "y": "z"}
	b := map[string]any{"y": "z", "x": 1}
	assert.Equal(t, ContentHash(a), ContentHash(b))
}

func TestDeterministicIDs(t *testing.T) {
	content := map[string]any{"note": "triage complete"}
	id1 := MemoryEntryID("ag1", MemoryContext, content)
	id2 := MemoryEntryID("ag1", MemoryContext, map[string]any{"note": "triage complete"})
	require.Equal(t, id1, id2)
	assert.NotEqual(t, id1, MemoryEntryID("ag2", MemoryContext, content))

	r1 := RelationID("x", "y", "related")
	r2 := RelationID("x", "y", "related")
	require.Equal(t, r1, r2)
	assert.NotEqual(t, r1, RelationID("y", "x", "related"))
}

func TestValidMemoryKind(t *testing.T) {
	assert.True(t, ValidMemoryKind(MemoryVector))
	assert.False(t, ValidMemoryKind(MemoryKind("episodic")))
}
