package agent

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/dtecho/folio/internal/decision"
)

// numericTolerance is the absolute tolerance when comparing numeric
// result fields against expectations.
const numericTolerance = 0.1

// Action is one unit of work: input, expectations, and scheduling hints.
type Action struct {
	ID                string
	Type              string
	Input             map[string]any
	ExpectedOutput    map[string]any
	RequiredResources map[string]float64
	Priority          float64
	EstimatedDuration time.Duration
}

// Result is the outcome of one executed action.
type Result struct {
	Success            bool
	Output             map[string]any
	DecisionConfidence float64
	Reasoning          string
	Metrics            map[string]float64
	Err                error
}

// Execute runs one action through the full loop: record intent, decide,
// process, evaluate, learn. The action carries an implicit deadline of
// twice its estimated duration; on expiry it is recorded as a failed
// experience and the agent returns to active.
func (a *Agent) Execute(ctx context.Context, action Action) Result {
	if action.ID == "" {
		action.ID = "act_" + uuid.NewString()
	}
	if action.EstimatedDuration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, 2*action.EstimatedDuration)
		defer cancel()
	}

	a.setState(StateBusy, action.ID)
	start := time.Now()

	if _, err := a.memory.Context.Store(ctx, a.id,
		map[string]any{"event": "action started", "action_id": action.ID, "action_type": action.Type},
		nil, action.Priority, []string{action.Type}); err != nil {
		a.logger.Warn("recording action start failed", "action_id", action.ID, "error", err)
	}

	dc := decision.DecisionContext{
		ActionType:        action.Type,
		Input:             action.Input,
		RequiredResources: action.RequiredResources,
		EstimatedDuration: action.EstimatedDuration.Seconds(),
		Options:           a.availableOptions(ctx, action),
		RiskTolerance:     a.riskTolerance,
	}
	d, err := a.engine.MakeDecision(ctx, dc)
	if err != nil {
		return a.fail(ctx, action, start, fmt.Errorf("agent: decide: %w", err))
	}

	output, err := a.process(ctx, action.Input, d)
	if err != nil {
		return a.fail(ctx, action, start, fmt.Errorf("agent: process: %w", err))
	}
	if err := ctx.Err(); err != nil {
		return a.fail(ctx, action, start, fmt.Errorf("agent: deadline: %w", err))
	}

	success := meetsExpectations(output, action.ExpectedOutput)
	elapsed := time.Since(start).Seconds()
	metrics := map[string]float64{"execution_time": elapsed}

	if _, err := a.learning.Learn(ctx, action.Type, action.Input, output, success, metrics,
		map[string]any{"decision_confidence": d.Confidence}); err != nil {
		a.logger.Warn("recording experience failed", "action_id", action.ID, "error", err)
	}

	a.recordOutcome(success)
	a.setState(StateActive, "")
	return Result{
		Success:            success,
		Output:             output,
		DecisionConfidence: d.Confidence,
		Reasoning:          reasoning(d),
		Metrics:            metrics,
	}
}

// fail records a failed experience, passes through the error state, and
// returns the agent to active.
func (a *Agent) fail(ctx context.Context, action Action, start time.Time, err error) Result {
	a.logger.Error("action failed", "action_id", action.ID, "action_type", action.Type, "error", err)
	a.setState(StateError, action.ID)

	metrics := map[string]float64{"execution_time": time.Since(start).Seconds()}
	if _, lerr := a.learning.Learn(context.WithoutCancel(ctx), action.Type, action.Input,
		map[string]any{"error": err.Error()}, false, metrics, nil); lerr != nil {
		a.logger.Warn("recording failed experience failed", "action_id", action.ID, "error", lerr)
	}

	a.recordOutcome(false)
	a.setState(StateActive, "")
	return Result{Success: false, Metrics: metrics, Err: err}
}

// availableOptions assembles the candidate options for the decision
// context: historical successes from memory, learning recommendations,
// and a default option at confidence 0.5.
func (a *Agent) availableOptions(ctx context.Context, action Action) []decision.Option {
	var options []decision.Option

	entries, err := a.memory.Context.Retrieve(ctx, a.id, action.Type, 5, 0)
	if err != nil {
		a.logger.Warn("retrieving historical options failed", "error", err)
	}
	for _, e := range entries {
		options = append(options, decision.Option{
			Type:         "historical",
			Data:         e.Content,
			Confidence:   e.Importance,
			QualityScore: e.Importance,
		})
	}

	for _, rec := range a.learning.Recommend(ctx, action.Type, action.Input) {
		options = append(options, decision.Option{
			Type:       rec.Type,
			Data:       rec.Action,
			Confidence: rec.Confidence,
		})
	}

	options = append(options, decision.Option{
		Type:       "default",
		Data:       action.Input,
		Confidence: 0.5,
	})
	return options
}

// meetsExpectations compares the output against every expected key:
// numeric fields within 0.1 absolute, strings exactly, any missing key
// fails. An empty expectation set succeeds.
func meetsExpectations(output, expected map[string]any) bool {
	for key, want := range expected {
		got, ok := output[key]
		if !ok {
			return false
		}
		if !valueMatches(got, want) {
			return false
		}
	}
	return true
}

func valueMatches(got, want any) bool {
	if wn, ok := asFloat(want); ok {
		gn, ok := asFloat(got)
		return ok && math.Abs(gn-wn) <= numericTolerance
	}
	if ws, ok := want.(string); ok {
		gs, ok := got.(string)
		return ok && gs == ws
	}
	if wb, ok := want.(bool); ok {
		gb, ok := got.(bool)
		return ok && gb == wb
	}
	return fmt.Sprint(got) == fmt.Sprint(want)
}

func asFloat(v any) (float64, bool) {
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

func reasoning(d *decision.Decision) string {
	if !d.CanProceed {
		return fmt.Sprintf("blocked by %d constraint violation(s)", len(d.Violations))
	}
	return fmt.Sprintf("proceeding at confidence %.2f under %s risk", d.Confidence, d.Risk.Level)
}
