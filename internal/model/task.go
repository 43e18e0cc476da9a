package model

import "time"

// TaskStatus is the runtime state of a queued task.
type TaskStatus string

const (
	TaskPending    TaskStatus = "pending"
	TaskProcessing TaskStatus = "processing"
	TaskCompleted  TaskStatus = "completed"
	TaskFailed     TaskStatus = "failed"
	TaskError      TaskStatus = "error"
)

// Task is a runtime-only unit of queued work. Tasks are ordered by
// priority descending; within a priority bucket they are FIFO.
type Task struct {
	ID        string
	Data      map[string]any
	Priority  float64
	CreatedAt time.Time
	Status    TaskStatus
	Result    map[string]any
}
