package learning_test

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dtecho/folio/internal/learning"
	"github.com/dtecho/folio/internal/memory"
	"github.com/dtecho/folio/internal/testutil"
)

func newFramework(t *testing.T) *learning.Framework {
	t.Helper()
	store := testutil.OpenStore(t)
	mem := memory.New(store, testutil.TestLogger())
	return learning.NewFramework("agent_test", mem.Experiences, testutil.TestLogger())
}

func TestQLearnerFirstUpdate(t *testing.T) {
	l := learning.NewQLearner()

	l.Update("s1", "a1", 1.0, "s2")

	// alpha * (r + gamma*0 - 0) = 0.1 * 1 = 0.1
	assert.InDelta(t, 0.1, l.Value("s1", "a1"), 1e-9)
}

func TestQLearnerConvergesTowardRewardCeiling(t *testing.T) {
	l := learning.NewQLearner()

	// Repeated reward of +1 on a self-loop converges toward
	// r / (1 - gamma) = 10 without reaching it.
	for i := 0; i < 1000; i++ {
		l.Update("s", "a", 1.0, "s")
	}
	v := l.Value("s", "a")
	assert.Greater(t, v, 9.0)
	assert.Less(t, v, 10.0)
}

func TestQLearnerSelectActionGreedy(t *testing.T) {
	l := learning.NewQLearner()
	l.SetParams(learning.DefaultAlpha, 0) // disable exploration

	l.Update("s", "good", 1.0, "s2")
	l.Update("s", "bad", -1.0, "s2")

	got := l.SelectAction("s", []string{"bad", "good"})
	assert.Equal(t, "good", got)

	assert.Equal(t, "", l.SelectAction("s", nil))
}

func TestQLearnerUnknownStateIsZero(t *testing.T) {
	l := learning.NewQLearner()
	assert.Zero(t, l.Value("never", "seen"))
}

func TestSimilarity(t *testing.T) {
	tests := []struct {
		name string
		a, b map[string]any
		want float64
	}{
		{
			name: "identical",
			a:    map[string]any{"x": 1.0, "y": "abc"},
			b:    map[string]any{"x": 1.0, "y": "abc"},
			want: 1.0,
		},
		{
			name: "both empty",
			a:    map[string]any{},
			b:    map[string]any{},
			want: 1.0,
		},
		{
			name: "disjoint keys",
			a:    map[string]any{"x": 1.0},
			b:    map[string]any{"y": 1.0},
			want: 0.0,
		},
		{
			name: "numeric half distance",
			a:    map[string]any{"x": 1.0},
			b:    map[string]any{"x": 2.0},
			// jaccard 1, value 1 - 1/2 = 0.5 -> mean 0.75
			want: 0.75,
		},
		{
			name: "string substring",
			a:    map[string]any{"s": "manuscript review"},
			b:    map[string]any{"s": "review"},
			// jaccard 1, value 0.5 -> mean 0.75
			want: 0.75,
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.InDelta(t, tc.want, learning.Similarity(tc.a, tc.b), 1e-9)
		})
	}
}

func TestSupervisedWindowOverflow(t *testing.T) {
	l := learning.NewSupervisedLearner()

	for i := 0; i < 101; i++ {
		l.Add("review", map[string]any{"i": i}, map[string]any{"ok": true}, true)
	}
	// 101 samples overflow the 100 cap; the oldest 50 are dropped.
	assert.Equal(t, 51, l.Len("review"))
}

func TestSupervisedFindSimilar(t *testing.T) {
	l := learning.NewSupervisedLearner()
	l.Add("review", map[string]any{"field": "physics", "pages": 10.0}, map[string]any{"decision": "accept"}, true)
	l.Add("review", map[string]any{"totally": "different", "shape": true}, map[string]any{"decision": "reject"}, false)

	matches := l.FindSimilar(map[string]any{"field": "physics", "pages": 10.0}, "review", 0.6)
	require.Len(t, matches, 1)
	assert.Equal(t, "accept", matches[0].Output["decision"])
	assert.True(t, matches[0].Success)

	assert.Empty(t, l.FindSimilar(map[string]any{"field": "physics"}, "unknown_action", 0.6))
}

func TestClustererPatternsAndAnomalies(t *testing.T) {
	c := learning.NewClusterer()

	common := map[string]any{"title": "a", "score": 0.5}
	for i := 0; i < 9; i++ {
		c.Observe(common)
	}
	rare := map[string]any{"weird": []any{1.0}}
	c.Observe(rare)

	patterns := c.Patterns()
	require.Len(t, patterns, 1)
	assert.Equal(t, 9, patterns[0].Size)
	assert.InDelta(t, 0.9, patterns[0].Confidence, 1e-9)

	score, anomalous := c.AnomalyScore(rare)
	assert.True(t, anomalous)
	assert.InDelta(t, 0.9, score, 1e-9)

	_, anomalous = c.AnomalyScore(common)
	assert.False(t, anomalous)
}

func TestClustererEmpty(t *testing.T) {
	c := learning.NewClusterer()
	score, anomalous := c.AnomalyScore(map[string]any{"x": 1.0})
	assert.Zero(t, score)
	assert.False(t, anomalous)
	assert.Empty(t, c.Patterns())
}

func TestClusterKeyStableOrdering(t *testing.T) {
	a := learning.ClusterKey(map[string]any{"b": 1.0, "a": "x"})
	assert.Equal(t, "a:string|b:number", a)
}

func TestMetaLearnerStrategy(t *testing.T) {
	observe := func(successes, failures int) *learning.MetaLearner {
		l := learning.NewMetaLearner()
		for i := 0; i < successes; i++ {
			l.Observe(true)
		}
		for i := 0; i < failures; i++ {
			l.Observe(false)
		}
		return l
	}

	_, ok := observe(2, 2).Strategy()
	assert.False(t, ok, "below minimum samples")

	s, ok := observe(2, 8).Strategy()
	require.True(t, ok)
	assert.Equal(t, 0.15, s.Alpha)
	assert.Equal(t, 0.20, s.Epsilon)

	s, ok = observe(9, 1).Strategy()
	require.True(t, ok)
	assert.Equal(t, 0.05, s.Alpha)
	assert.Equal(t, 0.05, s.Epsilon)

	s, ok = observe(7, 3).Strategy()
	require.True(t, ok)
	assert.Equal(t, 0.10, s.Alpha)
	assert.Equal(t, 0.10, s.Epsilon)
}

func TestMetaLearnerWindowSlides(t *testing.T) {
	l := learning.NewMetaLearner()
	for i := 0; i < 60; i++ {
		l.Observe(false)
	}
	// The 50-wide window now holds only successes after 50 more.
	for i := 0; i < 50; i++ {
		l.Observe(true)
	}
	s, ok := l.Strategy()
	require.True(t, ok)
	assert.Equal(t, "exploit", s.Posture)
}

func TestFrameworkLearnPersistsAndUpdates(t *testing.T) {
	ctx := context.Background()
	store := testutil.OpenStore(t)
	mem := memory.New(store, testutil.TestLogger())
	fw := learning.NewFramework("agent_test", mem.Experiences, testutil.TestLogger())

	in := map[string]any{"manuscript": "m1"}
	out := map[string]any{"decision": "accept"}
	id, err := fw.Learn(ctx, "review", in, out, true, map[string]float64{"execution_time": 1.5}, nil)
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	records, err := mem.Experiences.List(ctx, "agent_test", nil, 10)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "review", records[0].ActionType)

	assert.InDelta(t, 0.1, fw.QLearner().Value(learning.StateKey(in), "review"), 1e-9)
}

func TestFrameworkRecommendWithoutHistory(t *testing.T) {
	fw := newFramework(t)

	recs := fw.Recommend(context.Background(), "review", map[string]any{"anything": true})
	assert.Empty(t, recs)
}

func TestFrameworkRecommendMergesSourcesAndSkipsFailures(t *testing.T) {
	ctx := context.Background()
	fw := newFramework(t)

	in := map[string]any{"field": "physics", "pages": 10.0}
	for i := 0; i < 6; i++ {
		_, err := fw.Learn(ctx, "review", in, map[string]any{"decision": "accept"}, true, nil, nil)
		require.NoError(t, err)
	}
	_, err := fw.Learn(ctx, "review", in, map[string]any{"decision": "reject"}, false, nil, nil)
	require.NoError(t, err)

	recs := fw.Recommend(ctx, "review", in)
	require.NotEmpty(t, recs)

	var historical, adjustment int
	for _, r := range recs {
		switch r.Type {
		case "historical_success":
			historical++
			assert.Equal(t, "accept", r.Action["decision"], "failed samples never recommended")
		case "exploration_adjustment":
			adjustment++
		default:
			t.Fatalf("unexpected recommendation type %q", r.Type)
		}
	}
	assert.Equal(t, 6, historical)
	assert.Equal(t, 1, adjustment)
}

func TestFrameworkSnapshotRoundTrip(t *testing.T) {
	ctx := context.Background()
	fw := newFramework(t)

	in := map[string]any{"field": "biology"}
	for i := 0; i < 5; i++ {
		_, err := fw.Learn(ctx, "triage", in, map[string]any{"route": fmt.Sprintf("r%d", i)}, true, nil, nil)
		require.NoError(t, err)
	}
	blob, err := fw.Snapshot()
	require.NoError(t, err)

	restored := newFramework(t)
	require.NoError(t, restored.Restore(blob))

	assert.InDelta(t,
		fw.QLearner().Value(learning.StateKey(in), "triage"),
		restored.QLearner().Value(learning.StateKey(in), "triage"), 1e-9)
	recs := restored.Recommend(ctx, "triage", in)
	assert.NotEmpty(t, recs)
}

func TestFrameworkRestoreRejectsGarbage(t *testing.T) {
	fw := newFramework(t)
	assert.Error(t, fw.Restore([]byte("{not json")))
}
