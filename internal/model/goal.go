package model

import "time"

// Priority orders goals and constraints. Rank is used for sorting; the
// string value is what gets persisted.
type Priority string

const (
	PriorityLow      Priority = "low"
	PriorityMedium   Priority = "medium"
	PriorityHigh     Priority = "high"
	PriorityCritical Priority = "critical"
)

// PriorityRank returns the numeric rank of a priority (higher = more urgent).
func PriorityRank(p Priority) int {
	switch p {
	case PriorityCritical:
		return 4
	case PriorityHigh:
		return 3
	case PriorityMedium:
		return 2
	case PriorityLow:
		return 1
	default:
		return 0
	}
}

// GoalStatus is the lifecycle state of a goal.
type GoalStatus string

const (
	GoalActive    GoalStatus = "active"
	GoalCompleted GoalStatus = "completed"
	GoalPaused    GoalStatus = "paused"
	GoalFailed    GoalStatus = "failed"
)

// Goal is a durable intent with a priority, target metrics, and an
// optional deadline. A past deadline does not remove a goal from the
// active set; status is authoritative.
type Goal struct {
	ID            string
	AgentID       string
	Description   string
	Priority      Priority
	TargetMetrics map[string]float64
	Deadline      *time.Time
	Status        GoalStatus
	Progress      float64
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// ConstraintKind selects the violation predicate for a constraint.
type ConstraintKind string

const (
	ConstraintResource ConstraintKind = "resource"
	ConstraintTime     ConstraintKind = "time"
	ConstraintQuality  ConstraintKind = "quality"
	ConstraintPolicy   ConstraintKind = "policy"
)

// Constraint bounds what an agent may decide to do. A strict constraint
// that evaluates to violated blocks the decision; a non-strict one is
// surfaced but does not block.
type Constraint struct {
	ID          string
	AgentID     string
	Kind        ConstraintKind
	Description string
	Parameters  map[string]any
	Strict      bool
	Priority    Priority
	Active      bool
	CreatedAt   time.Time
}

// RiskLevel buckets a risk factor's probability-times-impact score.
type RiskLevel string

const (
	RiskMinimal  RiskLevel = "minimal"
	RiskLow      RiskLevel = "low"
	RiskMedium   RiskLevel = "medium"
	RiskHigh     RiskLevel = "high"
	RiskCritical RiskLevel = "critical"
)

// RiskLevelFromScore derives the level bucket from probability*impact
// using the fixed 0.2 / 0.4 / 0.6 / 0.8 thresholds.
func RiskLevelFromScore(score float64) RiskLevel {
	switch {
	case score < 0.2:
		return RiskMinimal
	case score < 0.4:
		return RiskLow
	case score < 0.6:
		return RiskMedium
	case score < 0.8:
		return RiskHigh
	default:
		return RiskCritical
	}
}

// RiskFactor is a known hazard with probability, impact, and the derived
// level bucket. Level is always RiskLevelFromScore(Probability*Impact).
type RiskFactor struct {
	ID          string
	AgentID     string
	Kind        string
	Description string
	Probability float64
	Impact      float64
	Level       RiskLevel
	Mitigations []string
	Monitors    []string
	CreatedAt   time.Time
}

// Score returns probability times impact.
func (r RiskFactor) Score() float64 {
	return r.Probability * r.Impact
}

// PlanStatus is the lifecycle state of a plan.
type PlanStatus string

const (
	PlanDraft     PlanStatus = "draft"
	PlanActive    PlanStatus = "active"
	PlanCompleted PlanStatus = "completed"
	PlanFailed    PlanStatus = "failed"
)

// PlanStep is one ordered step of a plan.
type PlanStep struct {
	Number            int                `json:"number"`
	Description       string             `json:"description"`
	ActionType        string             `json:"action_type"`
	DurationEst       float64            `json:"duration_est"`
	RequiredResources map[string]float64 `json:"required_resources"`
	SuccessCriteria   []string           `json:"success_criteria"`
	RiskFactors       []string           `json:"risk_factors"`
}

// Plan is an ordered list of steps toward one goal, with aggregate
// duration, resource requirements, and a success probability estimate.
type Plan struct {
	ID                   string
	AgentID              string
	GoalID               string
	Description          string
	Steps                []PlanStep
	DurationEst          float64
	ResourceRequirements map[string]float64
	SuccessProbability   float64
	Contingencies        []string
	Status               PlanStatus
	CreatedAt            time.Time
	UpdatedAt            time.Time
}
