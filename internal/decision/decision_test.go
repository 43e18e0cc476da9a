package decision_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dtecho/folio/internal/decision"
	"github.com/dtecho/folio/internal/model"
	"github.com/dtecho/folio/internal/testutil"
)

func newEngine(t *testing.T, opts ...decision.EngineOption) *decision.Engine {
	t.Helper()
	store := testutil.OpenStore(t)
	return decision.NewEngine("ag1", store, testutil.TestLogger(), opts...)
}

func TestDecisionBlockedByStrictConstraint(t *testing.T) {
	ctx := context.Background()
	e := newEngine(t)

	_, err := e.Goals().Create(ctx, "process submissions", map[string]float64{"throughput": 10}, model.PriorityHigh, nil)
	require.NoError(t, err)
	_, err = e.Constraints().Add(ctx, model.ConstraintResource, "Maximum CPU", map[string]any{"cpu": 0.5}, true, model.PriorityHigh)
	require.NoError(t, err)
	_, err = e.Risks().Add(ctx, "operational", "queue backlog", 0.3, 0.5, nil, nil)
	require.NoError(t, err)

	quality := 0.9
	d, err := e.MakeDecision(ctx, decision.DecisionContext{
		ActionType:        "run",
		RequiredResources: map[string]float64{"cpu": 0.8},
		EstimatedDuration: 60,
		QualityScore:      &quality,
	})
	require.NoError(t, err)

	assert.False(t, d.CanProceed)
	assert.Equal(t, []string{"Constraint 'Maximum CPU' violated"}, d.Violations)
	assert.InDelta(t, 0.15, d.Risk.OverallScore, 1e-9)
	assert.Nil(t, d.Plan)
	// 0.2 - 0.3*0.15 - 0.1*1 = 0.055, clamped to the floor.
	assert.InDelta(t, 0.1, d.Confidence, 1e-9)
}

func TestDecisionProceedsAndPlans(t *testing.T) {
	ctx := context.Background()
	e := newEngine(t)

	_, err := e.Goals().Create(ctx, "review incoming manuscripts", nil, model.PriorityHigh, nil)
	require.NoError(t, err)

	d, err := e.MakeDecision(ctx, decision.DecisionContext{
		ActionType:        "review",
		RequiredResources: map[string]float64{"cpu": 0.2},
		EstimatedDuration: 30,
	})
	require.NoError(t, err)

	assert.True(t, d.CanProceed)
	assert.Empty(t, d.Violations)
	require.NotNil(t, d.Plan)
	// analysis + review + validation
	require.Len(t, d.Plan.Steps, 3)
	assert.Equal(t, "review", d.Plan.Steps[1].ActionType)
	assert.InDelta(t, 0.8, d.Confidence, 1e-9)
	assert.Contains(t, d.Recommendations, "proceed as planned")
}

func TestDecisionHighestPriorityGoalPlanned(t *testing.T) {
	ctx := context.Background()
	e := newEngine(t)

	_, err := e.Goals().Create(ctx, "low priority cleanup", nil, model.PriorityLow, nil)
	require.NoError(t, err)
	_, err = e.Goals().Create(ctx, "critical research push", nil, model.PriorityCritical, nil)
	require.NoError(t, err)

	d, err := e.MakeDecision(ctx, decision.DecisionContext{ActionType: "work"})
	require.NoError(t, err)
	require.NotNil(t, d.Plan)
	assert.Contains(t, d.Plan.Description, "critical research push")
}

func TestNonStrictViolationDoesNotBlock(t *testing.T) {
	ctx := context.Background()
	e := newEngine(t)

	_, err := e.Constraints().Add(ctx, model.ConstraintTime, "Soft deadline", map[string]any{"max_duration": 10.0}, false, model.PriorityLow)
	require.NoError(t, err)

	d, err := e.MakeDecision(ctx, decision.DecisionContext{ActionType: "run", EstimatedDuration: 60})
	require.NoError(t, err)
	assert.True(t, d.CanProceed)
	assert.Equal(t, []string{"Constraint 'Soft deadline' violated"}, d.Violations)
}

func TestConstraintPredicates(t *testing.T) {
	ctx := context.Background()
	e := newEngine(t)

	_, err := e.Constraints().Add(ctx, model.ConstraintQuality, "Minimum quality", map[string]any{"min_quality": 0.7}, true, model.PriorityHigh)
	require.NoError(t, err)
	_, err = e.Constraints().Add(ctx, model.ConstraintPolicy, "Forbidden actions", map[string]any{"forbidden_actions": []any{"delete_everything"}}, true, model.PriorityCritical)
	require.NoError(t, err)

	low := 0.5
	proceed, violations, err := e.Constraints().Validate(ctx, decision.DecisionContext{ActionType: "run", QualityScore: &low})
	require.NoError(t, err)
	assert.False(t, proceed)
	assert.Equal(t, []string{"Constraint 'Minimum quality' violated"}, violations)

	proceed, violations, err = e.Constraints().Validate(ctx, decision.DecisionContext{ActionType: "delete_everything"})
	require.NoError(t, err)
	assert.False(t, proceed)
	assert.Equal(t, []string{"Constraint 'Forbidden actions' violated"}, violations)

	// No quality score in the context: the quality predicate cannot fire.
	proceed, violations, err = e.Constraints().Validate(ctx, decision.DecisionContext{ActionType: "run"})
	require.NoError(t, err)
	assert.True(t, proceed)
	assert.Empty(t, violations)
}

func TestRiskAssessment(t *testing.T) {
	ctx := context.Background()
	e := newEngine(t)

	_, err := e.Risks().Add(ctx, "operational", "minor slowdown", 0.2, 0.2, nil, nil) // 0.04
	require.NoError(t, err)
	_, err = e.Risks().Add(ctx, "data", "data loss", 0.8, 0.9, []string{"backups"}, nil) // 0.72
	require.NoError(t, err)

	a, err := e.Risks().Assess(ctx)
	require.NoError(t, err)
	assert.InDelta(t, 0.38, a.OverallScore, 1e-9)
	assert.Equal(t, model.RiskLow, a.Level)
	assert.Equal(t, 2, a.Count)
	require.Len(t, a.ActiveRisks, 1)
	assert.Equal(t, "data loss", a.ActiveRisks[0].Description)
}

func TestRiskAssessmentEmpty(t *testing.T) {
	a, err := newEngine(t).Risks().Assess(context.Background())
	require.NoError(t, err)
	assert.Zero(t, a.OverallScore)
	assert.Equal(t, model.RiskMinimal, a.Level)
}

func TestRiskRejectsOutOfRangeProbability(t *testing.T) {
	_, err := newEngine(t).Risks().Add(context.Background(), "x", "bad", 1.5, 0.5, nil, nil)
	assert.Error(t, err)
}

func TestPlanAdaptStretchesDurations(t *testing.T) {
	ctx := context.Background()
	store := testutil.OpenStore(t)
	planner := decision.NewAdaptivePlanner("ag1", store)

	goals := decision.NewGoalManager("ag1", store)
	_, err := goals.Create(ctx, "research new techniques", nil, model.PriorityMedium, nil)
	require.NoError(t, err)
	active, err := goals.ListActive(ctx)
	require.NoError(t, err)
	require.Len(t, active, 1)

	planID, err := planner.Create(ctx, active[0], nil, decision.Assessment{})
	require.NoError(t, err)
	before, err := planner.Get(ctx, planID)
	require.NoError(t, err)

	changed, err := planner.Adapt(ctx, planID, map[string]float64{"time_ratio": 1.5})
	require.NoError(t, err)
	assert.True(t, changed)

	after, err := planner.Get(ctx, planID)
	require.NoError(t, err)
	require.Equal(t, len(before.Steps), len(after.Steps))
	for i := range after.Steps {
		assert.Greater(t, after.Steps[i].DurationEst, before.Steps[i].DurationEst, "step %d", i)
	}
	assert.GreaterOrEqual(t, after.DurationEst, before.DurationEst)

	// In-range feedback changes nothing.
	changed, err = planner.Adapt(ctx, planID, map[string]float64{"time_ratio": 1.0})
	require.NoError(t, err)
	assert.False(t, changed)
}

func TestPlanAdaptAppendsQualityStep(t *testing.T) {
	ctx := context.Background()
	store := testutil.OpenStore(t)
	planner := decision.NewAdaptivePlanner("ag1", store)
	goals := decision.NewGoalManager("ag1", store)

	_, err := goals.Create(ctx, "produce final issue", nil, model.PriorityMedium, nil)
	require.NoError(t, err)
	active, err := goals.ListActive(ctx)
	require.NoError(t, err)

	planID, err := planner.Create(ctx, active[0], nil, decision.Assessment{})
	require.NoError(t, err)
	before, err := planner.Get(ctx, planID)
	require.NoError(t, err)

	changed, err := planner.Adapt(ctx, planID, map[string]float64{"quality_score": 0.4})
	require.NoError(t, err)
	assert.True(t, changed)

	after, err := planner.Get(ctx, planID)
	require.NoError(t, err)
	require.Len(t, after.Steps, len(before.Steps)+1)
	assert.Equal(t, "quality_check", after.Steps[len(after.Steps)-1].ActionType)
}

func TestPlanSuccessProbabilityPenalties(t *testing.T) {
	ctx := context.Background()
	store := testutil.OpenStore(t)
	planner := decision.NewAdaptivePlanner("ag1", store)

	goal := model.Goal{ID: "goal_x", AgentID: "ag1", Description: "routine work", Priority: model.PriorityMedium}
	strict := []model.Constraint{{Strict: true}, {Strict: true}}

	planID, err := planner.Create(ctx, goal, strict, decision.Assessment{OverallScore: 0.5})
	require.NoError(t, err)
	plan, err := planner.Get(ctx, planID)
	require.NoError(t, err)
	// 0.8 - 2*0.05 - 0.3*0.5 = 0.55
	assert.InDelta(t, 0.55, plan.SuccessProbability, 1e-9)
}

func TestChooseVariantIsPure(t *testing.T) {
	cfg := decision.DefaultABConfig()
	input := map[string]any{"submission_id": "sub_42"}

	first := decision.ChooseVariant(cfg, input)
	for i := 0; i < 50; i++ {
		assert.Equal(t, first, decision.ChooseVariant(cfg, input))
	}
}

func TestChooseVariantEdges(t *testing.T) {
	cfg := decision.DefaultABConfig()

	// Missing sticky field falls into the first bucket.
	assert.Equal(t, "control", decision.ChooseVariant(cfg, map[string]any{"other": 1}))

	cfg.Force = "pinned"
	assert.Equal(t, "pinned", decision.ChooseVariant(cfg, map[string]any{"submission_id": "x"}))

	single := decision.ABConfig{Buckets: []decision.Bucket{{Name: "only", Percent: 100}}, StickyBy: "submission_id"}
	assert.Equal(t, "only", decision.ChooseVariant(single, map[string]any{"submission_id": "anything"}))
}

func TestParseABSplit(t *testing.T) {
	buckets, err := decision.ParseABSplit("control:50, variant:50")
	require.NoError(t, err)
	require.Len(t, buckets, 2)
	assert.Equal(t, decision.Bucket{Name: "control", Percent: 50}, buckets[0])

	_, err = decision.ParseABSplit("control:60,variant:50")
	assert.Error(t, err, "sum over 100")
	_, err = decision.ParseABSplit("control")
	assert.Error(t, err, "missing percentage")
	_, err = decision.ParseABSplit("")
	assert.Error(t, err, "empty split")
}

type fixedScorer struct {
	score float64
	err   error
}

func (s fixedScorer) Score(context.Context, map[string]float64) (float64, error) {
	return s.score, s.err
}

func (s fixedScorer) Version() string { return "test-1" }

func TestScorerRecordedOnDecision(t *testing.T) {
	e := newEngine(t, decision.WithScorer(fixedScorer{score: 0.73}))

	d, err := e.MakeDecision(context.Background(), decision.DecisionContext{ActionType: "run"})
	require.NoError(t, err)
	require.NotNil(t, d.Score)
	assert.InDelta(t, 0.73, *d.Score, 1e-9)
	assert.Equal(t, "test-1", d.ModelVersion)
}

func TestScorerFailurePropagatesInProduction(t *testing.T) {
	broken := fixedScorer{err: errors.New("model unavailable")}

	e := newEngine(t, decision.WithScorer(broken), decision.WithProductionMode(true))
	_, err := e.MakeDecision(context.Background(), decision.DecisionContext{ActionType: "run"})
	assert.Error(t, err)

	// Outside production the decision proceeds with a nil score.
	e = newEngine(t, decision.WithScorer(broken))
	d, err := e.MakeDecision(context.Background(), decision.DecisionContext{ActionType: "run"})
	require.NoError(t, err)
	assert.Nil(t, d.Score)
}

func TestRegistryLoad(t *testing.T) {
	r := decision.NewRegistry()
	r.Register("linear", func(version, path string) (decision.ModelScorer, error) {
		return fixedScorer{score: 0.5}, nil
	})

	s, err := r.Load("linear", "1", "", true)
	require.NoError(t, err)
	require.NotNil(t, s)

	// Unregistered name: hard error in production, nil otherwise.
	_, err = r.Load("missing", "1", "", true)
	assert.Error(t, err)
	s, err = r.Load("missing", "1", "", false)
	require.NoError(t, err)
	assert.Nil(t, s)

	// No scorer configured at all.
	_, err = r.Load("", "", "", true)
	assert.Error(t, err)
	s, err = r.Load("", "", "", false)
	require.NoError(t, err)
	assert.Nil(t, s)
}

func TestGoalWithPastDeadlineStillActive(t *testing.T) {
	ctx := context.Background()
	e := newEngine(t)

	past := pastTime()
	_, err := e.Goals().Create(ctx, "overdue goal", nil, model.PriorityMedium, &past)
	require.NoError(t, err)

	active, err := e.Goals().ListActive(ctx)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, "overdue goal", active[0].Description)
}

func pastTime() time.Time {
	return time.Now().UTC().Add(-48 * time.Hour)
}
