package decision

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/dtecho/folio/internal/model"
	"github.com/dtecho/folio/internal/storage"
)

// Confidence bounds and bases for the final decision.
const (
	confidenceFloor   = 0.1
	confidenceCeiling = 0.95
	proceedBase       = 0.8
	blockedBase       = 0.2
)

// Engine runs the decision procedure: goals, constraint validation,
// risk assessment, planning, optional model scoring, and deterministic
// A/B assignment.
type Engine struct {
	agentID     string
	goals       *GoalManager
	constraints *ConstraintHandler
	risks       *RiskAssessor
	planner     *AdaptivePlanner
	scorer      ModelScorer
	ab          ABConfig
	production  bool
	logger      *slog.Logger
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithScorer attaches an external model scorer.
func WithScorer(s ModelScorer) EngineOption {
	return func(e *Engine) { e.scorer = s }
}

// WithABConfig sets the A/B variant assignment.
func WithABConfig(cfg ABConfig) EngineOption {
	return func(e *Engine) { e.ab = cfg }
}

// WithProductionMode forbids degraded fallbacks: scorer failures
// propagate instead of yielding a nil score.
func WithProductionMode(on bool) EngineOption {
	return func(e *Engine) { e.production = on }
}

// NewEngine builds an engine and its four sub-managers for one agent.
func NewEngine(agentID string, store *storage.Store, logger *slog.Logger, opts ...EngineOption) *Engine {
	return NewEngineFromParts(
		agentID,
		NewGoalManager(agentID, store),
		NewConstraintHandler(agentID, store),
		NewRiskAssessor(agentID, store),
		NewAdaptivePlanner(agentID, store),
		logger,
		opts...,
	)
}

// NewEngineFromParts builds an engine from externally constructed
// sub-managers. Behavior is identical to NewEngine.
func NewEngineFromParts(agentID string, goals *GoalManager, constraints *ConstraintHandler, risks *RiskAssessor, planner *AdaptivePlanner, logger *slog.Logger, opts ...EngineOption) *Engine {
	e := &Engine{
		agentID:     agentID,
		goals:       goals,
		constraints: constraints,
		risks:       risks,
		planner:     planner,
		ab:          DefaultABConfig(),
		logger:      logger.With("component", "decision", "agent_id", agentID),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Goals exposes the goal manager.
func (e *Engine) Goals() *GoalManager { return e.goals }

// Constraints exposes the constraint handler.
func (e *Engine) Constraints() *ConstraintHandler { return e.constraints }

// Risks exposes the risk assessor.
func (e *Engine) Risks() *RiskAssessor { return e.risks }

// Planner exposes the adaptive planner.
func (e *Engine) Planner() *AdaptivePlanner { return e.planner }

// MakeDecision evaluates the context against the agent's goals,
// constraints, and risks and returns a proceed/halt verdict with
// confidence, violations, an optional plan, and the A/B variant.
func (e *Engine) MakeDecision(ctx context.Context, dc DecisionContext) (*Decision, error) {
	active, err := e.goals.ListActive(ctx)
	if err != nil {
		return nil, fmt.Errorf("decision: make decision: %w", err)
	}

	proceed, violations, err := e.constraints.Validate(ctx, dc)
	if err != nil {
		return nil, fmt.Errorf("decision: make decision: %w", err)
	}

	risk, err := e.risks.Assess(ctx)
	if err != nil {
		return nil, fmt.Errorf("decision: make decision: %w", err)
	}

	d := &Decision{
		CanProceed: proceed,
		Violations: violations,
		Risk:       risk,
		Variant:    ChooseVariant(e.ab, dc.Input),
	}

	if proceed && len(active) > 0 {
		constraintList, err := e.constraints.List(ctx)
		if err != nil {
			return nil, fmt.Errorf("decision: make decision: %w", err)
		}
		planID, err := e.planner.Create(ctx, active[0], constraintList, risk)
		if err != nil {
			return nil, fmt.Errorf("decision: make decision: %w", err)
		}
		plan, err := e.planner.Get(ctx, planID)
		if err != nil {
			return nil, fmt.Errorf("decision: make decision: %w", err)
		}
		d.Plan = plan
	}

	if e.scorer != nil {
		score, err := e.scorer.Score(ctx, e.features(dc, risk))
		if err != nil {
			if e.production {
				return nil, fmt.Errorf("decision: model scoring: %w", err)
			}
			e.logger.Warn("model scoring failed, recording nil score", "error", err)
		} else {
			d.Score = &score
			d.ModelVersion = e.scorer.Version()
		}
	}

	base := blockedBase
	if proceed {
		base = proceedBase
	}
	confidence := base - 0.3*risk.OverallScore - 0.1*float64(len(violations))
	if confidence < confidenceFloor {
		confidence = confidenceFloor
	}
	if confidence > confidenceCeiling {
		confidence = confidenceCeiling
	}
	d.Confidence = confidence

	d.Recommendations = e.recommendations(d)
	e.logger.Debug("decision made",
		"action_type", dc.ActionType,
		"can_proceed", d.CanProceed,
		"confidence", d.Confidence,
		"violations", len(d.Violations),
		"variant", d.Variant)
	return d, nil
}

// features flattens the context into a numeric vector for the scorer.
func (e *Engine) features(dc DecisionContext, risk Assessment) map[string]float64 {
	features := map[string]float64{
		"estimated_duration": dc.EstimatedDuration,
		"risk_score":         risk.OverallScore,
		"risk_tolerance":     dc.RiskTolerance,
		"option_count":       float64(len(dc.Options)),
	}
	if dc.QualityScore != nil {
		features["quality_score"] = *dc.QualityScore
	}
	for name, amount := range dc.RequiredResources {
		features["resource_"+name] = amount
	}
	return features
}

// recommendations derives prose guidance from the verdict.
func (e *Engine) recommendations(d *Decision) []string {
	var out []string
	if !d.CanProceed {
		out = append(out, "resolve constraint violations before retrying")
	}
	if len(d.Violations) > 0 && d.CanProceed {
		out = append(out, "review non-blocking constraint violations")
	}
	switch d.Risk.Level {
	case model.RiskCritical, model.RiskHigh:
		out = append(out, d.Risk.Recommendation)
	}
	if d.CanProceed && len(out) == 0 {
		out = append(out, "proceed as planned")
	}
	return out
}
