package agent_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dtecho/folio/internal/agent"
	"github.com/dtecho/folio/internal/decision"
	"github.com/dtecho/folio/internal/learning"
	"github.com/dtecho/folio/internal/memory"
	"github.com/dtecho/folio/internal/testutil"
)

func newAgent(t *testing.T, opts ...agent.Option) *agent.Agent {
	t.Helper()
	store := testutil.OpenStore(t)
	logger := testutil.TestLogger()
	mem := memory.New(store, logger)
	fw := learning.NewFramework("ag_test", mem.Experiences, logger)
	engine := decision.NewEngine("ag_test", store, logger)
	return agent.New("ag_test", agent.TypeReview, mem, fw, engine, logger, opts...)
}

func TestTaskQueuePriorityOrdering(t *testing.T) {
	var order []float64
	a := newAgent(t, agent.WithProcessFunc(func(_ context.Context, data map[string]any, _ *decision.Decision) (map[string]any, error) {
		order = append(order, data["p"].(float64))
		return data, nil
	}))

	a.AddTask(map[string]any{"p": 0.2}, 0.2)
	a.AddTask(map[string]any{"p": 0.9}, 0.9)
	a.AddTask(map[string]any{"p": 0.5}, 0.5)

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		require.NotNil(t, a.ProcessNext(ctx))
	}
	assert.Equal(t, []float64{0.9, 0.5, 0.2}, order)
	assert.Nil(t, a.ProcessNext(ctx), "empty queue")
}

func TestTaskQueueFIFOWithinPriority(t *testing.T) {
	a := newAgent(t)

	first := a.AddTask(map[string]any{"n": 1}, 0.5)
	second := a.AddTask(map[string]any{"n": 2}, 0.5)
	urgent := a.AddTask(map[string]any{"n": 3}, 0.9)

	assert.Equal(t, []string{urgent, first, second}, a.QueueStatus())
}

func TestExecuteSuccessByExpectation(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name     string
		output   map[string]any
		expected map[string]any
		want     bool
	}{
		{
			name:     "numeric within tolerance",
			output:   map[string]any{"score": 0.75},
			expected: map[string]any{"score": 0.8},
			want:     true,
		},
		{
			name:     "numeric outside tolerance",
			output:   map[string]any{"score": 0.5},
			expected: map[string]any{"score": 0.8},
			want:     false,
		},
		{
			name:     "string exact",
			output:   map[string]any{"status": "accepted"},
			expected: map[string]any{"status": "accepted"},
			want:     true,
		},
		{
			name:     "string mismatch",
			output:   map[string]any{"status": "rejected"},
			expected: map[string]any{"status": "accepted"},
			want:     false,
		},
		{
			name:     "missing expected key",
			output:   map[string]any{},
			expected: map[string]any{"status": "accepted"},
			want:     false,
		},
		{
			name:     "no expectations",
			output:   map[string]any{"anything": 1},
			expected: nil,
			want:     true,
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			a := newAgent(t, agent.WithProcessFunc(func(context.Context, map[string]any, *decision.Decision) (map[string]any, error) {
				return tc.output, nil
			}))
			result := a.Execute(ctx, agent.Action{
				Type:           "review",
				Input:          map[string]any{"manuscript": "m1"},
				ExpectedOutput: tc.expected,
			})
			assert.Equal(t, tc.want, result.Success)
		})
	}
}

func TestExecuteRecordsExperienceAndAggregates(t *testing.T) {
	ctx := context.Background()
	store := testutil.OpenStore(t)
	logger := testutil.TestLogger()
	mem := memory.New(store, logger)
	fw := learning.NewFramework("ag_test", mem.Experiences, logger)
	engine := decision.NewEngine("ag_test", store, logger)
	a := agent.New("ag_test", agent.TypeReview, mem, fw, engine, logger)

	result := a.Execute(ctx, agent.Action{Type: "review", Input: map[string]any{"manuscript": "m1"}})
	require.True(t, result.Success)
	assert.Greater(t, result.DecisionConfidence, 0.0)

	records, err := mem.Experiences.List(ctx, "ag_test", nil, 10)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "review", records[0].ActionType)
	assert.True(t, records[0].Success)

	status := a.Status()
	assert.Equal(t, agent.StateActive, status.State)
	assert.Equal(t, 1, status.TotalActions)
	assert.InDelta(t, 1.0, status.SuccessRate, 1e-9)
}

func TestExecuteFailureReturnsToActive(t *testing.T) {
	a := newAgent(t, agent.WithProcessFunc(func(context.Context, map[string]any, *decision.Decision) (map[string]any, error) {
		return nil, errors.New("downstream unavailable")
	}))

	result := a.Execute(context.Background(), agent.Action{Type: "review", Input: map[string]any{"m": 1}})
	assert.False(t, result.Success)
	assert.Error(t, result.Err)

	status := a.Status()
	assert.Equal(t, agent.StateActive, status.State)
	assert.Equal(t, 1, status.TotalActions)
	assert.Zero(t, status.SuccessRate)
}

func TestSuccessRateRunningAverage(t *testing.T) {
	calls := 0
	a := newAgent(t, agent.WithProcessFunc(func(_ context.Context, data map[string]any, _ *decision.Decision) (map[string]any, error) {
		calls++
		if calls == 2 {
			return nil, errors.New("one failure")
		}
		return data, nil
	}))

	ctx := context.Background()
	for i := 0; i < 4; i++ {
		a.Execute(ctx, agent.Action{Type: "work", Input: map[string]any{"i": i}})
	}
	assert.InDelta(t, 0.75, a.Status().SuccessRate, 1e-9)
}

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "agent.json")
	a := newAgent(t)

	a.AddTask(map[string]any{"n": 1}, 0.5)
	a.Execute(context.Background(), agent.Action{Type: "work", Input: map[string]any{"x": 1}})
	require.NoError(t, a.Save(path))

	restored := newAgent(t)
	require.NoError(t, restored.Load(path))

	status := restored.Status()
	assert.Equal(t, 1, status.TotalActions)
	assert.Equal(t, 1, status.Pending)
	assert.Equal(t, agent.StateActive, status.State)
}

func TestLoadMissingFileIsFirstRun(t *testing.T) {
	a := newAgent(t)
	require.NoError(t, a.Load(filepath.Join(t.TempDir(), "never-saved.json")))
	assert.Equal(t, agent.StateActive, a.Status().State)
}

func TestLoadRejectsForeignState(t *testing.T) {
	path := filepath.Join(t.TempDir(), "agent.json")
	a := newAgent(t)
	require.NoError(t, a.Save(path))

	store := testutil.OpenStore(t)
	logger := testutil.TestLogger()
	mem := memory.New(store, logger)
	fw := learning.NewFramework("other_agent", mem.Experiences, logger)
	engine := decision.NewEngine("other_agent", store, logger)
	other := agent.New("other_agent", agent.TypeQuality, mem, fw, engine, logger)

	assert.Error(t, other.Load(path))
}
