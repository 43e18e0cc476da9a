// Package decision implements the four responsibilities that turn an
// agent's goals, constraints, and risks into a proceed/halt decision:
// goal management, constraint validation, risk assessment, and adaptive
// planning, tied together by the Engine.
package decision

import "github.com/dtecho/folio/internal/model"

// Option is one candidate course of action offered to the engine.
type Option struct {
	Type            string         `json:"type"`
	Data            map[string]any `json:"data,omitempty"`
	Confidence      float64        `json:"confidence"`
	QualityScore    float64        `json:"quality_score"`
	RiskScore       float64        `json:"risk_score"`
	EfficiencyScore float64        `json:"efficiency_score"`
}

// DecisionContext carries everything the engine evaluates: the proposed
// action, its resource and time footprint, candidate options, and the
// caller's risk tolerance.
type DecisionContext struct {
	ActionType        string
	Input             map[string]any
	RequiredResources map[string]float64
	EstimatedDuration float64
	QualityScore      *float64
	Options           []Option
	RiskTolerance     float64
}

// Decision is the engine's verdict.
type Decision struct {
	CanProceed      bool
	Confidence      float64
	Score           *float64
	Violations      []string
	Risk            Assessment
	Plan            *model.Plan
	Variant         string
	ModelVersion    string
	Recommendations []string
}
