// Package coordinator chains the seven agents into journal workflows.
// Each workflow is a fixed dependency chain of agent actions with
// conditional gates; coordination events fan out best-effort and never
// block workflow progress.
package coordinator

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/dtecho/folio/internal/agent"
)

// WorkflowStatus is the terminal state of a workflow run.
type WorkflowStatus string

const (
	WorkflowCompleted WorkflowStatus = "completed"
	WorkflowPartial   WorkflowStatus = "partial"
)

// StepRecord captures one executed workflow step. Skipped steps are not
// recorded at all.
type StepRecord struct {
	AgentType     agent.Type     `json:"agent_type"`
	ActionType    string         `json:"action_type"`
	Success       bool           `json:"success"`
	ExecutionTime float64        `json:"execution_time"`
	Result        map[string]any `json:"result,omitempty"`
	Error         string         `json:"error,omitempty"`
}

// WorkflowResult is the aggregate outcome of one workflow run.
type WorkflowResult struct {
	ID            string         `json:"id"`
	Kind          string         `json:"kind"`
	Status        WorkflowStatus `json:"status"`
	Steps         []StepRecord   `json:"steps"`
	ExecutionTime float64        `json:"execution_time"`
}

// Event is a coordination notification fanned out when a step's action
// matches another agent's trigger set.
type Event struct {
	Action   string
	Source   agent.Type
	Target   agent.Type
	Critical bool
	Payload  map[string]any
}

// EventHook receives coordination events. Delivery is best-effort.
type EventHook func(Event)

// Coordinator owns exactly one agent of each type and runs workflows
// across them.
type Coordinator struct {
	logger *slog.Logger
	hook   EventHook

	mu     sync.RWMutex
	agents map[agent.Type]*agent.Agent
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithEventHook sets the coordination event sink.
func WithEventHook(hook EventHook) Option {
	return func(c *Coordinator) { c.hook = hook }
}

// New builds an empty coordinator; agents are attached with Register.
func New(logger *slog.Logger, opts ...Option) *Coordinator {
	c := &Coordinator{
		logger: logger.With("component", "coordinator"),
		agents: map[agent.Type]*agent.Agent{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Register attaches an agent. Each type slot holds exactly one agent.
func (c *Coordinator) Register(a *agent.Agent) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.agents[a.Type()]; exists {
		return fmt.Errorf("coordinator: agent type %q already registered", a.Type())
	}
	c.agents[a.Type()] = a
	return nil
}

// Agent returns the registered agent of the given type.
func (c *Coordinator) Agent(t agent.Type) (*agent.Agent, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	a, ok := c.agents[t]
	return a, ok
}

// RunWorkflow executes the named workflow over the input data.
func (c *Coordinator) RunWorkflow(ctx context.Context, kind string, data map[string]any) (*WorkflowResult, error) {
	var run func(context.Context, *workflowRun, map[string]any)
	switch kind {
	case "manuscript_processing":
		run = c.manuscriptProcessing
	case "research_discovery":
		run = c.researchDiscovery
	case "publication_production":
		run = c.publicationProduction
	default:
		return nil, fmt.Errorf("coordinator: unknown workflow %q", kind)
	}

	wr := &workflowRun{result: &WorkflowResult{
		ID:     "wf_" + uuid.NewString(),
		Kind:   kind,
		Status: WorkflowCompleted,
	}}
	run(ctx, wr, data)

	c.logger.Info("workflow finished",
		"workflow_id", wr.result.ID,
		"kind", kind,
		"status", string(wr.result.Status),
		"steps", len(wr.result.Steps),
		"execution_time", wr.result.ExecutionTime)
	return wr.result, nil
}

// workflowRun accumulates step records for one run.
type workflowRun struct {
	result *WorkflowResult
}

// step executes one agent action, records it, and fans out coordination
// events. It returns the step's result map and whether it succeeded; a
// missing agent or step error downgrades the workflow to partial.
func (c *Coordinator) step(ctx context.Context, wr *workflowRun, agentType agent.Type, actionType string, input map[string]any, previous map[string]any) (map[string]any, bool) {
	a, ok := c.Agent(agentType)
	if !ok {
		wr.result.Steps = append(wr.result.Steps, StepRecord{
			AgentType:  agentType,
			ActionType: actionType,
			Error:      fmt.Sprintf("no %s agent registered", agentType),
		})
		wr.result.Status = WorkflowPartial
		return nil, false
	}

	stepInput := make(map[string]any, len(input)+1)
	for k, v := range input {
		stepInput[k] = v
	}
	if previous != nil {
		stepInput["previous_result"] = previous
	}

	res := a.Execute(ctx, agent.Action{Type: actionType, Input: stepInput, Priority: 0.5})

	record := StepRecord{
		AgentType:     agentType,
		ActionType:    actionType,
		Success:       res.Success,
		ExecutionTime: res.Metrics["execution_time"],
	}
	if res.Err != nil {
		record.Error = res.Err.Error()
		wr.result.Status = WorkflowPartial
	} else {
		record.Result = res.Output
	}
	wr.result.Steps = append(wr.result.Steps, record)
	wr.result.ExecutionTime += record.ExecutionTime

	c.fanOut(agentType, actionType, res.Output, !res.Success)
	return res.Output, res.Success
}

// fanOut delivers the step's action to every agent whose trigger set
// matches: its notification targets get the event; critical events also
// reach its escalation targets. Best-effort only.
func (c *Coordinator) fanOut(source agent.Type, action string, payload map[string]any, critical bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	for _, a := range c.agents {
		profile := a.Profile()
		if !profile.Triggers[action] {
			continue
		}
		targets := map[agent.Type]bool{}
		for t := range profile.Notifications {
			targets[t] = true
		}
		if critical {
			for t := range profile.Escalations {
				targets[t] = true
			}
		}
		for target := range targets {
			event := Event{Action: action, Source: source, Target: target, Critical: critical, Payload: payload}
			if c.hook != nil {
				func() {
					defer func() {
						if r := recover(); r != nil {
							c.logger.Warn("event hook panicked", "action", action, "target", string(target), "panic", r)
						}
					}()
					c.hook(event)
				}()
			}
			c.logger.Debug("coordination event",
				"action", action,
				"source", string(source),
				"target", string(target),
				"critical", critical)
		}
	}
}
