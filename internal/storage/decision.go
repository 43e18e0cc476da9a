package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/dtecho/folio/internal/model"
)

// CreateGoal inserts a goal.
func (s *Store) CreateGoal(ctx context.Context, g model.Goal) (string, error) {
	if g.AgentID == "" || g.Description == "" {
		return "", fmt.Errorf("storage: goal agent_id and description are required")
	}
	if g.ID == "" {
		g.ID = "goal_" + uuid.NewString()
	}
	if g.Status == "" {
		g.Status = model.GoalActive
	}
	now := time.Now().UTC()
	if g.CreatedAt.IsZero() {
		g.CreatedAt = now
	}
	if g.UpdatedAt.IsZero() {
		g.UpdatedAt = now
	}

	_, err := s.exec(ctx,
		`INSERT INTO goals (id, agent_id, description, priority, priority_rank, target_metrics, deadline, status, progress, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		g.ID, g.AgentID, g.Description, string(g.Priority), model.PriorityRank(g.Priority),
		marshalJSON(g.TargetMetrics), formatTimePtr(g.Deadline), string(g.Status), g.Progress,
		formatTime(g.CreatedAt), formatTime(g.UpdatedAt),
	)
	if err != nil {
		return "", fmt.Errorf("storage: create goal: %w", err)
	}
	return g.ID, nil
}

// UpdateGoalProgress sets progress (clamped to [0,1]) and optionally a
// new status.
func (s *Store) UpdateGoalProgress(ctx context.Context, id string, progress float64, status *model.GoalStatus) error {
	progress = model.ClampImportance(progress)
	now := formatTime(time.Now().UTC())

	var (
		res sql.Result
		err error
	)
	if status != nil {
		res, err = s.exec(ctx,
			`UPDATE goals SET progress = ?, status = ?, updated_at = ? WHERE id = ?`,
			progress, string(*status), now, id)
	} else {
		res, err = s.exec(ctx,
			`UPDATE goals SET progress = ?, updated_at = ? WHERE id = ?`,
			progress, now, id)
	}
	if err != nil {
		return fmt.Errorf("storage: update goal progress: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// ListGoals returns an agent's goals in the given status ordered by
// (priority desc, created_at asc). A past deadline does not filter a
// goal out; status is authoritative.
func (s *Store) ListGoals(ctx context.Context, agentID string, status model.GoalStatus) ([]model.Goal, error) {
	rows, err := s.query(ctx,
		`SELECT id, agent_id, description, priority, target_metrics, deadline, status, progress, created_at, updated_at
		 FROM goals WHERE agent_id = ? AND status = ?
		 ORDER BY priority_rank DESC, created_at ASC`,
		agentID, string(status))
	if err != nil {
		return nil, fmt.Errorf("storage: list goals: %w", err)
	}
	defer rows.Close()

	var out []model.Goal
	for rows.Next() {
		var (
			g                                  model.Goal
			priority, targets, st, created, updated string
			deadline                           *string
		)
		if err := rows.Scan(&g.ID, &g.AgentID, &g.Description, &priority, &targets, &deadline, &st, &g.Progress, &created, &updated); err != nil {
			return nil, fmt.Errorf("storage: scan goal: %w", err)
		}
		g.Priority = model.Priority(priority)
		g.TargetMetrics = unmarshalFloatMap(targets)
		g.Deadline = parseTimePtr(deadline)
		g.Status = model.GoalStatus(st)
		g.CreatedAt = parseTime(created)
		g.UpdatedAt = parseTime(updated)
		out = append(out, g)
	}
	return out, rows.Err()
}

// InsertConstraint stores a constraint.
func (s *Store) InsertConstraint(ctx context.Context, c model.Constraint) (string, error) {
	if c.AgentID == "" {
		return "", fmt.Errorf("storage: constraint agent_id is required")
	}
	if c.ID == "" {
		c.ID = "con_" + uuid.NewString()
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}

	_, err := s.exec(ctx,
		`INSERT INTO agent_constraints (id, agent_id, kind, description, parameters, strict, priority, active, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.AgentID, string(c.Kind), c.Description, marshalJSON(c.Parameters),
		c.Strict, string(c.Priority), c.Active, formatTime(c.CreatedAt),
	)
	if err != nil {
		return "", fmt.Errorf("storage: insert constraint: %w", err)
	}
	return c.ID, nil
}

// ListActiveConstraints returns an agent's active constraints.
func (s *Store) ListActiveConstraints(ctx context.Context, agentID string) ([]model.Constraint, error) {
	rows, err := s.query(ctx,
		`SELECT id, agent_id, kind, description, parameters, strict, priority, active, created_at
		 FROM agent_constraints WHERE agent_id = ? AND active = ? ORDER BY created_at ASC`,
		agentID, true)
	if err != nil {
		return nil, fmt.Errorf("storage: list constraints: %w", err)
	}
	defer rows.Close()

	var out []model.Constraint
	for rows.Next() {
		var (
			c                      model.Constraint
			kind, params, priority, created string
		)
		if err := rows.Scan(&c.ID, &c.AgentID, &kind, &c.Description, &params, &c.Strict, &priority, &c.Active, &created); err != nil {
			return nil, fmt.Errorf("storage: scan constraint: %w", err)
		}
		c.Kind = model.ConstraintKind(kind)
		c.Parameters = unmarshalMap(params)
		c.Priority = model.Priority(priority)
		c.CreatedAt = parseTime(created)
		out = append(out, c)
	}
	return out, rows.Err()
}

// InsertRiskFactor stores a risk factor. The level bucket is derived from
// probability*impact, never taken from the caller.
func (s *Store) InsertRiskFactor(ctx context.Context, r model.RiskFactor) (string, error) {
	if r.AgentID == "" {
		return "", fmt.Errorf("storage: risk factor agent_id is required")
	}
	if r.Probability < 0 || r.Probability > 1 || r.Impact < 0 || r.Impact > 1 {
		return "", fmt.Errorf("storage: risk probability and impact must be in [0,1]")
	}
	if r.ID == "" {
		r.ID = "risk_" + uuid.NewString()
	}
	r.Level = model.RiskLevelFromScore(r.Score())
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now().UTC()
	}

	_, err := s.exec(ctx,
		`INSERT INTO risk_factors (id, agent_id, kind, description, probability, impact, level, mitigations, monitors, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.AgentID, r.Kind, r.Description, r.Probability, r.Impact, string(r.Level),
		marshalStrings(r.Mitigations), marshalStrings(r.Monitors), formatTime(r.CreatedAt),
	)
	if err != nil {
		return "", fmt.Errorf("storage: insert risk factor: %w", err)
	}
	return r.ID, nil
}

// ListRiskFactors returns an agent's risk factors.
func (s *Store) ListRiskFactors(ctx context.Context, agentID string) ([]model.RiskFactor, error) {
	rows, err := s.query(ctx,
		`SELECT id, agent_id, kind, description, probability, impact, level, mitigations, monitors, created_at
		 FROM risk_factors WHERE agent_id = ? ORDER BY created_at ASC`, agentID)
	if err != nil {
		return nil, fmt.Errorf("storage: list risk factors: %w", err)
	}
	defer rows.Close()

	var out []model.RiskFactor
	for rows.Next() {
		var (
			r                           model.RiskFactor
			level, mitigations, monitors, created string
		)
		if err := rows.Scan(&r.ID, &r.AgentID, &r.Kind, &r.Description, &r.Probability, &r.Impact, &level, &mitigations, &monitors, &created); err != nil {
			return nil, fmt.Errorf("storage: scan risk factor: %w", err)
		}
		r.Level = model.RiskLevel(level)
		r.Mitigations = unmarshalStrings(mitigations)
		r.Monitors = unmarshalStrings(monitors)
		r.CreatedAt = parseTime(created)
		out = append(out, r)
	}
	return out, rows.Err()
}

// CreatePlan inserts a plan.
func (s *Store) CreatePlan(ctx context.Context, p model.Plan) (string, error) {
	if p.AgentID == "" || p.GoalID == "" {
		return "", fmt.Errorf("storage: plan agent_id and goal_id are required")
	}
	if p.ID == "" {
		p.ID = "plan_" + uuid.NewString()
	}
	if p.Status == "" {
		p.Status = model.PlanDraft
	}
	now := time.Now().UTC()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	if p.UpdatedAt.IsZero() {
		p.UpdatedAt = now
	}

	_, err := s.exec(ctx,
		`INSERT INTO plans (id, agent_id, goal_id, description, steps, duration_est, resource_requirements, success_probability, contingencies, status, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.AgentID, p.GoalID, p.Description, marshalJSON(p.Steps), p.DurationEst,
		marshalJSON(p.ResourceRequirements), p.SuccessProbability, marshalStrings(p.Contingencies),
		string(p.Status), formatTime(p.CreatedAt), formatTime(p.UpdatedAt),
	)
	if err != nil {
		return "", fmt.Errorf("storage: create plan: %w", err)
	}
	return p.ID, nil
}

// GetPlan loads one plan.
func (s *Store) GetPlan(ctx context.Context, id string) (*model.Plan, error) {
	var (
		p                                              model.Plan
		steps, resources, contingencies, status, created, updated string
	)
	err := s.queryRow(ctx,
		`SELECT id, agent_id, goal_id, description, steps, duration_est, resource_requirements, success_probability, contingencies, status, created_at, updated_at
		 FROM plans WHERE id = ?`, id).
		Scan(&p.ID, &p.AgentID, &p.GoalID, &p.Description, &steps, &p.DurationEst, &resources, &p.SuccessProbability, &contingencies, &status, &created, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("storage: get plan: %w", err)
	}
	if err := unmarshalInto(steps, &p.Steps); err != nil {
		return nil, fmt.Errorf("storage: decode plan steps: %w", err)
	}
	p.ResourceRequirements = unmarshalFloatMap(resources)
	p.Contingencies = unmarshalStrings(contingencies)
	p.Status = model.PlanStatus(status)
	p.CreatedAt = parseTime(created)
	p.UpdatedAt = parseTime(updated)
	return &p, nil
}

// UpdatePlan rewrites a plan's mutable fields.
func (s *Store) UpdatePlan(ctx context.Context, p model.Plan) error {
	res, err := s.exec(ctx,
		`UPDATE plans SET description = ?, steps = ?, duration_est = ?, resource_requirements = ?, success_probability = ?, contingencies = ?, status = ?, updated_at = ?
		 WHERE id = ?`,
		p.Description, marshalJSON(p.Steps), p.DurationEst, marshalJSON(p.ResourceRequirements),
		p.SuccessProbability, marshalStrings(p.Contingencies), string(p.Status),
		formatTime(time.Now().UTC()), p.ID,
	)
	if err != nil {
		return fmt.Errorf("storage: update plan: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}
