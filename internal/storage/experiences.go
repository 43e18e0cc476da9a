package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/dtecho/folio/internal/model"
)

// AppendExperience inserts an experience record. Experiences are
// append-only and never mutated.
func (s *Store) AppendExperience(ctx context.Context, e model.ExperienceRecord) (string, error) {
	if e.AgentID == "" || e.ActionType == "" {
		return "", fmt.Errorf("storage: experience agent_id and action_type are required")
	}
	if e.ID == "" {
		e.ID = "exp_" + uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}

	_, err := s.exec(ctx,
		`INSERT INTO experiences (id, agent_id, action_type, input, output, success, metrics, feedback, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.AgentID, e.ActionType, marshalJSON(e.Input), marshalJSON(e.Output),
		e.Success, marshalJSON(e.Metrics), marshalJSON(e.Feedback), formatTime(e.CreatedAt),
	)
	if err != nil {
		return "", fmt.Errorf("storage: append experience: %w", err)
	}
	return e.ID, nil
}

// ListExperiences returns an agent's experiences newest first, optionally
// filtered by action type.
func (s *Store) ListExperiences(ctx context.Context, agentID string, actionType *string, limit int) ([]model.ExperienceRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `SELECT id, agent_id, action_type, input, output, success, metrics, feedback, created_at
		 FROM experiences WHERE agent_id = ?`
	args := []any{agentID}
	if actionType != nil {
		query += ` AND action_type = ?`
		args = append(args, *actionType)
	}
	query += fmt.Sprintf(` ORDER BY created_at DESC LIMIT %d`, limit)

	rows, err := s.query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("storage: list experiences: %w", err)
	}
	defer rows.Close()

	var out []model.ExperienceRecord
	for rows.Next() {
		var (
			e                                    model.ExperienceRecord
			input, output, metrics, feedback, created string
		)
		if err := rows.Scan(&e.ID, &e.AgentID, &e.ActionType, &input, &output, &e.Success, &metrics, &feedback, &created); err != nil {
			return nil, fmt.Errorf("storage: scan experience: %w", err)
		}
		e.Input = unmarshalMap(input)
		e.Output = unmarshalMap(output)
		e.Metrics = unmarshalFloatMap(metrics)
		e.Feedback = unmarshalMap(feedback)
		e.CreatedAt = parseTime(created)
		out = append(out, e)
	}
	return out, rows.Err()
}
