package decision

import (
	"context"
	"fmt"

	"github.com/dtecho/folio/internal/model"
	"github.com/dtecho/folio/internal/storage"
)

// activeRiskScore is the probability*impact threshold above which a
// factor counts as active in an assessment.
const activeRiskScore = 0.3

// Assessment aggregates an agent's risk factors into one verdict.
type Assessment struct {
	OverallScore   float64
	Level          model.RiskLevel
	ActiveRisks    []model.RiskFactor
	Count          int
	Recommendation string
}

// RiskAssessor records and aggregates one agent's risk factors.
type RiskAssessor struct {
	agentID string
	store   *storage.Store
}

// NewRiskAssessor builds an assessor scoped to one agent.
func NewRiskAssessor(agentID string, store *storage.Store) *RiskAssessor {
	return &RiskAssessor{agentID: agentID, store: store}
}

// Add persists a risk factor. Probability and impact must be in [0,1];
// the level bucket is derived, never supplied.
func (a *RiskAssessor) Add(ctx context.Context, kind, description string, probability, impact float64, mitigations, monitors []string) (string, error) {
	id, err := a.store.InsertRiskFactor(ctx, model.RiskFactor{
		AgentID:     a.agentID,
		Kind:        kind,
		Description: description,
		Probability: probability,
		Impact:      impact,
		Mitigations: mitigations,
		Monitors:    monitors,
	})
	if err != nil {
		return "", fmt.Errorf("decision: add risk factor: %w", err)
	}
	return id, nil
}

// Assess computes the overall risk: the mean of per-factor
// probability*impact clipped to 1, the derived level, and the factors
// whose individual score exceeds 0.3.
func (a *RiskAssessor) Assess(ctx context.Context) (Assessment, error) {
	factors, err := a.store.ListRiskFactors(ctx, a.agentID)
	if err != nil {
		return Assessment{}, fmt.Errorf("decision: assess risks: %w", err)
	}

	var sum float64
	var active []model.RiskFactor
	for _, f := range factors {
		score := f.Score()
		sum += score
		if score > activeRiskScore {
			active = append(active, f)
		}
	}

	overall := 0.0
	if len(factors) > 0 {
		overall = sum / float64(len(factors))
	}
	if overall > 1 {
		overall = 1
	}

	level := model.RiskLevelFromScore(overall)
	return Assessment{
		OverallScore:   overall,
		Level:          level,
		ActiveRisks:    active,
		Count:          len(factors),
		Recommendation: riskRecommendation(level),
	}, nil
}

func riskRecommendation(level model.RiskLevel) string {
	switch level {
	case model.RiskCritical:
		return "halt and escalate: critical risk exposure"
	case model.RiskHigh:
		return "apply mitigations before proceeding"
	case model.RiskMedium:
		return "proceed with monitoring on active risks"
	default:
		return "proceed as planned"
	}
}
