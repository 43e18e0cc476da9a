package decision

import (
	"context"
	"fmt"
	"strings"

	"github.com/dtecho/folio/internal/model"
	"github.com/dtecho/folio/internal/storage"
)

// Planner tuning: feedback thresholds and the duration stretch applied
// when execution runs long.
const (
	baseSuccessProbability = 0.8
	minSuccessProbability  = 0.1
	overrunRatio           = 1.2
	overrunStretch         = 1.3
	overUtilization        = 0.9
	lowQualityScore        = 0.6
	contingencyRiskScore   = 0.6
)

// AdaptivePlanner generates stepwise plans for goals and adjusts them
// from execution feedback.
type AdaptivePlanner struct {
	agentID string
	store   *storage.Store
}

// NewAdaptivePlanner builds a planner scoped to one agent.
func NewAdaptivePlanner(agentID string, store *storage.Store) *AdaptivePlanner {
	return &AdaptivePlanner{agentID: agentID, store: store}
}

// Create builds a plan for the goal: keyword-derived work steps
// bracketed by an analysis step and a validation step, with success
// probability penalized by goal criticality, strict constraints, and
// overall risk. Returns the persisted plan id.
func (p *AdaptivePlanner) Create(ctx context.Context, goal model.Goal, constraints []model.Constraint, risk Assessment) (string, error) {
	steps := buildSteps(goal.Description)

	var duration float64
	resources := map[string]float64{}
	for _, s := range steps {
		duration += s.DurationEst
		for name, amount := range s.RequiredResources {
			if amount > resources[name] {
				resources[name] = amount
			}
		}
	}

	probability := baseSuccessProbability
	probability -= 0.1 * float64(criticalIndicators(goal))
	for _, c := range constraints {
		if c.Strict {
			probability -= 0.05
		}
	}
	probability -= 0.3 * risk.OverallScore
	if probability < minSuccessProbability {
		probability = minSuccessProbability
	}

	contingencies := []string{"fall back to manual handling on repeated step failure"}
	for _, f := range risk.ActiveRisks {
		if f.Score() > contingencyRiskScore {
			contingencies = append(contingencies, "mitigate: "+f.Description)
		}
	}

	id, err := p.store.CreatePlan(ctx, model.Plan{
		AgentID:              p.agentID,
		GoalID:               goal.ID,
		Description:          "plan for: " + goal.Description,
		Steps:                steps,
		DurationEst:          duration,
		ResourceRequirements: resources,
		SuccessProbability:   probability,
		Contingencies:        contingencies,
		Status:               model.PlanActive,
	})
	if err != nil {
		return "", fmt.Errorf("decision: create plan: %w", err)
	}
	return id, nil
}

// Get loads a plan by id.
func (p *AdaptivePlanner) Get(ctx context.Context, id string) (*model.Plan, error) {
	plan, err := p.store.GetPlan(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("decision: get plan: %w", err)
	}
	return plan, nil
}

// Adapt adjusts a plan from execution feedback and reports whether it
// changed. time_ratio > 1.2 stretches every step duration by 1.3x;
// resource_utilization > 0.9 flags the plan for a resource increase;
// quality_score < 0.6 appends a quality-check step.
func (p *AdaptivePlanner) Adapt(ctx context.Context, planID string, feedback map[string]float64) (bool, error) {
	plan, err := p.store.GetPlan(ctx, planID)
	if err != nil {
		return false, fmt.Errorf("decision: adapt plan: %w", err)
	}

	changed := false
	if ratio, ok := feedback["time_ratio"]; ok && ratio > overrunRatio {
		var total float64
		for i := range plan.Steps {
			plan.Steps[i].DurationEst *= overrunStretch
			total += plan.Steps[i].DurationEst
		}
		plan.DurationEst = total
		changed = true
	}
	if util, ok := feedback["resource_utilization"]; ok && util > overUtilization {
		plan.Contingencies = append(plan.Contingencies, "increase resource allocation")
		changed = true
	}
	if quality, ok := feedback["quality_score"]; ok && quality < lowQualityScore {
		plan.Steps = append(plan.Steps, model.PlanStep{
			Number:          len(plan.Steps) + 1,
			Description:     "additional quality check",
			ActionType:      "quality_check",
			DurationEst:     30,
			SuccessCriteria: []string{"quality score above threshold"},
		})
		plan.DurationEst += 30
		changed = true
	}

	if !changed {
		return false, nil
	}
	if err := p.store.UpdatePlan(ctx, *plan); err != nil {
		return false, fmt.Errorf("decision: adapt plan: %w", err)
	}
	return true, nil
}

// buildSteps derives the work steps from the goal description keywords
// and brackets them with analysis and validation.
func buildSteps(description string) []model.PlanStep {
	steps := []model.PlanStep{{
		Description:       "analyze requirements and context",
		ActionType:        "analysis",
		DurationEst:       30,
		RequiredResources: map[string]float64{"cpu": 0.2},
		SuccessCriteria:   []string{"requirements understood"},
	}}

	lower := strings.ToLower(description)
	switch {
	case strings.Contains(lower, "research"):
		steps = append(steps, model.PlanStep{
			Description:       "conduct research",
			ActionType:        "research",
			DurationEst:       120,
			RequiredResources: map[string]float64{"cpu": 0.5},
			SuccessCriteria:   []string{"findings collected"},
		})
	case strings.Contains(lower, "review"):
		steps = append(steps, model.PlanStep{
			Description:       "perform review",
			ActionType:        "review",
			DurationEst:       90,
			RequiredResources: map[string]float64{"cpu": 0.4},
			SuccessCriteria:   []string{"review completed"},
		})
	default:
		steps = append(steps, model.PlanStep{
			Description:       "execute primary work",
			ActionType:        "execution",
			DurationEst:       60,
			RequiredResources: map[string]float64{"cpu": 0.3},
			SuccessCriteria:   []string{"work item completed"},
		})
	}

	steps = append(steps, model.PlanStep{
		Description:       "validate outcome against targets",
		ActionType:        "validation",
		DurationEst:       30,
		RequiredResources: map[string]float64{"cpu": 0.2},
		SuccessCriteria:   []string{"targets met"},
	})
	for i := range steps {
		steps[i].Number = i + 1
	}
	return steps
}

// criticalIndicators counts signals that a goal is critical.
func criticalIndicators(goal model.Goal) int {
	n := 0
	if goal.Priority == model.PriorityCritical {
		n++
	}
	lower := strings.ToLower(goal.Description)
	if strings.Contains(lower, "critical") || strings.Contains(lower, "urgent") {
		n++
	}
	return n
}
