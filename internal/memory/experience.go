package memory

import (
	"context"
	"fmt"

	"github.com/dtecho/folio/internal/model"
	"github.com/dtecho/folio/internal/storage"
)

// ExperienceDB is the append-only log of executed actions.
type ExperienceDB struct {
	store *storage.Store
}

// Log appends one experience and returns its id.
func (e *ExperienceDB) Log(ctx context.Context, agentID, actionType string, input, output map[string]any, success bool, metrics map[string]float64, feedback map[string]any) (string, error) {
	id, err := e.store.AppendExperience(ctx, model.ExperienceRecord{
		AgentID:    agentID,
		ActionType: actionType,
		Input:      input,
		Output:     output,
		Success:    success,
		Metrics:    metrics,
		Feedback:   feedback,
	})
	if err != nil {
		return "", fmt.Errorf("memory: log experience: %w", err)
	}
	return id, nil
}

// List returns an agent's experiences newest first, optionally filtered
// by action type.
func (e *ExperienceDB) List(ctx context.Context, agentID string, actionType *string, limit int) ([]model.ExperienceRecord, error) {
	return e.store.ListExperiences(ctx, agentID, actionType, limit)
}
