package decision

import (
	"context"
	"fmt"
	"strings"

	"github.com/dtecho/folio/internal/model"
	"github.com/dtecho/folio/internal/storage"
)

// ConstraintHandler validates a decision context against one agent's
// active constraints. A strict violation blocks the decision; a
// non-strict one is surfaced but does not block.
type ConstraintHandler struct {
	agentID string
	store   *storage.Store
}

// NewConstraintHandler builds a handler scoped to one agent.
func NewConstraintHandler(agentID string, store *storage.Store) *ConstraintHandler {
	return &ConstraintHandler{agentID: agentID, store: store}
}

// Add persists an active constraint and returns its id.
func (h *ConstraintHandler) Add(ctx context.Context, kind model.ConstraintKind, description string, params map[string]any, strict bool, priority model.Priority) (string, error) {
	id, err := h.store.InsertConstraint(ctx, model.Constraint{
		AgentID:     h.agentID,
		Kind:        kind,
		Description: description,
		Parameters:  params,
		Strict:      strict,
		Priority:    priority,
		Active:      true,
	})
	if err != nil {
		return "", fmt.Errorf("decision: add constraint: %w", err)
	}
	return id, nil
}

// List returns the agent's active constraints.
func (h *ConstraintHandler) List(ctx context.Context) ([]model.Constraint, error) {
	cs, err := h.store.ListActiveConstraints(ctx, h.agentID)
	if err != nil {
		return nil, fmt.Errorf("decision: list constraints: %w", err)
	}
	return cs, nil
}

// Validate evaluates every active constraint against the context. It
// returns whether the decision may proceed and the full violation list;
// proceed is false only when a strict constraint is violated.
func (h *ConstraintHandler) Validate(ctx context.Context, dc DecisionContext) (bool, []string, error) {
	constraints, err := h.List(ctx)
	if err != nil {
		return false, nil, err
	}

	proceed := true
	var violations []string
	for _, c := range constraints {
		if !violated(c, dc) {
			continue
		}
		violations = append(violations, fmt.Sprintf("Constraint '%s' violated", c.Description))
		if c.Strict {
			proceed = false
		}
	}
	return proceed, violations, nil
}

// violated applies the kind-specific predicate.
func violated(c model.Constraint, dc DecisionContext) bool {
	switch c.Kind {
	case model.ConstraintResource:
		for resource, budget := range c.Parameters {
			limit, ok := paramFloat(budget)
			if !ok {
				continue
			}
			if dc.RequiredResources[resource] > limit {
				return true
			}
		}
		return false
	case model.ConstraintTime:
		if maxDur, ok := paramFloat(c.Parameters["max_duration"]); ok {
			return dc.EstimatedDuration > maxDur
		}
		return false
	case model.ConstraintQuality:
		minQ, ok := paramFloat(c.Parameters["min_quality"])
		if !ok || dc.QualityScore == nil {
			return false
		}
		return *dc.QualityScore < minQ
	case model.ConstraintPolicy:
		forbidden, ok := c.Parameters["forbidden_actions"].([]any)
		if !ok {
			return false
		}
		for _, f := range forbidden {
			if s, ok := f.(string); ok && strings.EqualFold(s, dc.ActionType) {
				return true
			}
		}
		return false
	default:
		return false
	}
}

func paramFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}
