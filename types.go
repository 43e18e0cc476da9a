package folio

import "time"

// WorkflowStatus is the terminal state of a workflow run.
type WorkflowStatus string

const (
	WorkflowCompleted WorkflowStatus = "completed"
	WorkflowPartial   WorkflowStatus = "partial"
)

// WorkflowStep is one executed step in a workflow run.
type WorkflowStep struct {
	Agent         string
	Action        string
	Success       bool
	ExecutionTime float64
	Result        map[string]any
	Error         string
}

// WorkflowResult is the public view of one workflow run.
type WorkflowResult struct {
	ID            string
	Kind          string
	Status        WorkflowStatus
	Steps         []WorkflowStep
	ExecutionTime float64
}

// WorkflowEvent is a coordination notification observed via WithWorkflowHook.
type WorkflowEvent struct {
	Action   string
	Source   string
	Target   string
	Critical bool
	Payload  map[string]any
}

// AgentStatus is a point-in-time snapshot of one agent.
type AgentStatus struct {
	ID             string
	Type           string
	State          string
	CurrentTask    string
	TotalActions   int
	SuccessRate    float64
	PendingTasks   int
	CompletedTasks int
}

// SyncHealth is the synchronizer's self-report.
type SyncHealth struct {
	Status string
	Issues []string
}

// SyncStats aggregates synchronization counters.
type SyncStats struct {
	Total             int64
	Success           int64
	Failure           int64
	ConflictsDetected int64
	ConflictsResolved int64
	LastSync          *time.Time
	PendingConflicts  int
	QueueSize         int
	InFlight          int
}
