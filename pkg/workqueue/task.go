package workqueue

import (
	"context"
	"sync"
	"time"
)

// TaskStatus represents the current state of a task.
type TaskStatus string

const (
	TaskStatusPending   TaskStatus = "pending"
	TaskStatusRunning   TaskStatus = "running"
	TaskStatusCompleted TaskStatus = "completed"
	TaskStatusFailed    TaskStatus = "failed"
	TaskStatusCancelled TaskStatus = "cancelled"
)

// Result is the outcome of one task execution. A task that wants another
// attempt sets Retry along with the delay before the re-run; the runner
// honors it up to its attempt limit. Err carries the failure either way.
type Result struct {
	Retry bool
	Delay time.Duration
	Err   error
}

// Task is one unit of background work. Execute must honor ctx cancellation:
// the runner cancels the context on timeout and shutdown but cannot stop a
// task that ignores it.
type Task interface {
	// ID returns a unique identifier for this task, typically the job id.
	ID() string

	// Name returns a human-readable name for logs and snapshots.
	Name() string

	Execute(ctx context.Context) Result
}

// TaskState holds the runtime state of a task.
type TaskState struct {
	task Task

	mu          sync.RWMutex
	status      TaskStatus
	attempts    int
	startedAt   *time.Time
	completedAt *time.Time
	err         error
}

// NewTaskState creates a pending TaskState wrapping a task.
func NewTaskState(task Task) *TaskState {
	return &TaskState{
		task:   task,
		status: TaskStatusPending,
	}
}

// Status returns the current status.
func (ts *TaskState) Status() TaskStatus {
	ts.mu.RLock()
	defer ts.mu.RUnlock()
	return ts.status
}

func (ts *TaskState) setStatus(status TaskStatus) {
	ts.mu.Lock()
	defer ts.mu.Unlock()

	ts.status = status
	now := time.Now()

	switch status {
	case TaskStatusRunning:
		if ts.startedAt == nil {
			ts.startedAt = &now
		}
	case TaskStatusCompleted, TaskStatusFailed, TaskStatusCancelled:
		ts.completedAt = &now
	}
}

func (ts *TaskState) setError(err error) {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	ts.err = err
}

func (ts *TaskState) incrementAttempts() int {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	ts.attempts++
	return ts.attempts
}

// Err returns the recorded error, if any.
func (ts *TaskState) Err() error {
	ts.mu.RLock()
	defer ts.mu.RUnlock()
	return ts.err
}

// Snapshot returns an immutable copy of the task state. Errors are flattened
// to strings so snapshots serialize cleanly.
func (ts *TaskState) Snapshot() TaskSnapshot {
	ts.mu.RLock()
	defer ts.mu.RUnlock()

	var errMsg string
	if ts.err != nil {
		errMsg = ts.err.Error()
	}

	return TaskSnapshot{
		ID:          ts.task.ID(),
		Name:        ts.task.Name(),
		Status:      ts.status,
		Attempts:    ts.attempts,
		StartedAt:   ts.startedAt,
		CompletedAt: ts.completedAt,
		Error:       errMsg,
	}
}

// TaskSnapshot is an immutable view of task state for serialization.
type TaskSnapshot struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	Status      TaskStatus `json:"status"`
	Attempts    int        `json:"attempts"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	Error       string     `json:"error,omitempty"`
}

// BaseTask provides the identity half of the Task interface.
// Embed this in concrete task implementations.
type BaseTask struct {
	id   string
	name string
}

// NewBaseTask creates a new base task.
func NewBaseTask(id, name string) BaseTask {
	return BaseTask{id: id, name: name}
}

// ID returns the task ID.
func (t BaseTask) ID() string {
	return t.id
}

// Name returns the task name.
func (t BaseTask) Name() string {
	return t.name
}
