package decision

import (
	"context"
	"fmt"
	"time"

	"github.com/dtecho/folio/internal/model"
	"github.com/dtecho/folio/internal/storage"
)

// GoalManager creates and tracks one agent's durable goals.
type GoalManager struct {
	agentID string
	store   *storage.Store
}

// NewGoalManager builds a manager scoped to one agent.
func NewGoalManager(agentID string, store *storage.Store) *GoalManager {
	return &GoalManager{agentID: agentID, store: store}
}

// Create persists a new active goal and returns its id.
func (m *GoalManager) Create(ctx context.Context, description string, targets map[string]float64, priority model.Priority, deadline *time.Time) (string, error) {
	id, err := m.store.CreateGoal(ctx, model.Goal{
		AgentID:       m.agentID,
		Description:   description,
		Priority:      priority,
		TargetMetrics: targets,
		Deadline:      deadline,
		Status:        model.GoalActive,
	})
	if err != nil {
		return "", fmt.Errorf("decision: create goal: %w", err)
	}
	return id, nil
}

// UpdateProgress sets a goal's progress and optionally its status.
func (m *GoalManager) UpdateProgress(ctx context.Context, id string, progress float64, status *model.GoalStatus) error {
	if err := m.store.UpdateGoalProgress(ctx, id, progress, status); err != nil {
		return fmt.Errorf("decision: update goal progress: %w", err)
	}
	return nil
}

// ListActive returns the agent's active goals ordered by priority
// descending, then creation time ascending. A past deadline does not
// remove a goal from the active set.
func (m *GoalManager) ListActive(ctx context.Context) ([]model.Goal, error) {
	goals, err := m.store.ListGoals(ctx, m.agentID, model.GoalActive)
	if err != nil {
		return nil, fmt.Errorf("decision: list active goals: %w", err)
	}
	return goals, nil
}
