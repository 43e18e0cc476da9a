// Package agent implements the stateful worker at the heart of the
// runtime: each agent owns a task queue, consults memory and learned
// history, runs the decision procedure, executes an action through its
// process hook, and feeds the outcome back into learning.
package agent

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/dtecho/folio/internal/decision"
	"github.com/dtecho/folio/internal/learning"
	"github.com/dtecho/folio/internal/memory"
	"github.com/dtecho/folio/internal/model"
)

// State is an agent's observable lifecycle state.
type State string

const (
	StateActive State = "active"
	StateBusy   State = "busy"
	StateError  State = "error"
	StateIdle   State = "idle"
)

// Type tags the seven agent roles of the journal workflow.
type Type string

const (
	TypeResearch   Type = "research"
	TypeSubmission Type = "submission"
	TypeEditorial  Type = "editorial"
	TypeReview     Type = "review"
	TypeQuality    Type = "quality"
	TypeProduction Type = "production"
	TypeAnalytics  Type = "analytics"
)

// ProcessFunc is the per-agent work hook: it receives the action's data
// and the decision and produces the action's output.
type ProcessFunc func(ctx context.Context, data map[string]any, d *decision.Decision) (map[string]any, error)

// Profile declares an agent's coordination edges: which action names it
// reacts to, who it notifies, who it escalates to, and what it shares.
type Profile struct {
	Triggers      map[string]bool
	Notifications map[Type]bool
	Escalations   map[Type]bool
	DataSharing   map[Type]bool
}

// Agent is one long-lived worker.
type Agent struct {
	id           string
	agentType    Type
	capabilities []string
	profile      Profile

	memory   *memory.System
	learning *learning.Framework
	engine   *decision.Engine
	process  ProcessFunc
	logger   *slog.Logger

	riskTolerance float64

	mu           sync.Mutex
	state        State
	currentTask  string
	lastActivity time.Time
	totalActions int
	successRate  float64
	pending      []model.Task
	completed    []model.Task
}

// Option configures an Agent.
type Option func(*Agent)

// WithCapabilities declares the agent's capability set.
func WithCapabilities(caps ...string) Option {
	return func(a *Agent) { a.capabilities = caps }
}

// WithProcessFunc sets the work hook. Without one the agent echoes the
// action data as its result.
func WithProcessFunc(fn ProcessFunc) Option {
	return func(a *Agent) { a.process = fn }
}

// WithProfile declares the coordination edges.
func WithProfile(p Profile) Option {
	return func(a *Agent) { a.profile = p }
}

// WithRiskTolerance sets the fixed risk tolerance placed on every
// decision context.
func WithRiskTolerance(tol float64) Option {
	return func(a *Agent) { a.riskTolerance = tol }
}

// New builds an agent in the active state.
func New(id string, agentType Type, mem *memory.System, fw *learning.Framework, engine *decision.Engine, logger *slog.Logger, opts ...Option) *Agent {
	a := &Agent{
		id:            id,
		agentType:     agentType,
		memory:        mem,
		learning:      fw,
		engine:        engine,
		logger:        logger.With("component", "agent", "agent_id", id, "agent_type", string(agentType)),
		riskTolerance: 0.5,
		state:         StateActive,
		lastActivity:  time.Now().UTC(),
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.process == nil {
		a.process = func(_ context.Context, data map[string]any, _ *decision.Decision) (map[string]any, error) {
			return data, nil
		}
	}
	return a
}

// ID returns the agent id.
func (a *Agent) ID() string { return a.id }

// Type returns the agent's role tag.
func (a *Agent) Type() Type { return a.agentType }

// Capabilities returns the declared capability set.
func (a *Agent) Capabilities() []string { return a.capabilities }

// Profile returns the coordination edges.
func (a *Agent) Profile() Profile { return a.profile }

// Status is a read-only snapshot of the agent's observable state.
type Status struct {
	State        State
	CurrentTask  string
	LastActivity time.Time
	TotalActions int
	SuccessRate  float64
	Pending      int
	Completed    int
}

// Status snapshots the agent's observable state.
func (a *Agent) Status() Status {
	a.mu.Lock()
	defer a.mu.Unlock()
	return Status{
		State:        a.state,
		CurrentTask:  a.currentTask,
		LastActivity: a.lastActivity,
		TotalActions: a.totalActions,
		SuccessRate:  a.successRate,
		Pending:      len(a.pending),
		Completed:    len(a.completed),
	}
}

// setState transitions the state machine and stamps activity.
func (a *Agent) setState(s State, currentTask string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.state = s
	a.currentTask = currentTask
	a.lastActivity = time.Now().UTC()
}

// recordOutcome updates the running aggregates after one action.
func (a *Agent) recordOutcome(success bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.totalActions++
	n := float64(a.totalActions)
	hit := 0.0
	if success {
		hit = 1.0
	}
	a.successRate = (a.successRate*(n-1) + hit) / n
}
