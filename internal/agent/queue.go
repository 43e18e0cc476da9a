package agent

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/dtecho/folio/internal/model"
)

// AddTask queues work at the given priority and returns the task id.
// The pending list stays sorted by priority descending; tasks of equal
// priority run FIFO.
func (a *Agent) AddTask(data map[string]any, priority float64) string {
	task := model.Task{
		ID:        "task_" + uuid.NewString(),
		Data:      data,
		Priority:  priority,
		CreatedAt: time.Now().UTC(),
		Status:    model.TaskPending,
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	// Insert after the last task of strictly higher or equal priority so
	// equal priorities keep arrival order.
	i := len(a.pending)
	for i > 0 && a.pending[i-1].Priority < priority {
		i--
	}
	a.pending = append(a.pending, model.Task{})
	copy(a.pending[i+1:], a.pending[i:])
	a.pending[i] = task
	return task.ID
}

// ProcessNext pops the highest-priority pending task, executes it as an
// action, and records the completed task. It returns nil when the queue
// is empty.
func (a *Agent) ProcessNext(ctx context.Context) *Result {
	a.mu.Lock()
	if len(a.pending) == 0 {
		a.mu.Unlock()
		return nil
	}
	task := a.pending[0]
	a.pending = a.pending[1:]
	task.Status = model.TaskProcessing
	a.mu.Unlock()

	action := Action{
		ID:       task.ID,
		Type:     taskActionType(task),
		Input:    task.Data,
		Priority: task.Priority,
	}
	result := a.Execute(ctx, action)

	task.Result = result.Output
	if result.Success {
		task.Status = model.TaskCompleted
	} else {
		task.Status = model.TaskFailed
	}

	a.mu.Lock()
	a.completed = append(a.completed, task)
	a.mu.Unlock()
	return &result
}

// QueueStatus reports pending task ids in execution order.
func (a *Agent) QueueStatus() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	ids := make([]string, len(a.pending))
	for i, t := range a.pending {
		ids[i] = t.ID
	}
	return ids
}

// taskActionType reads the action type from the task data, defaulting
// to the agent's generic work action.
func taskActionType(task model.Task) string {
	if s, ok := task.Data["action_type"].(string); ok && s != "" {
		return s
	}
	return "process_task"
}
