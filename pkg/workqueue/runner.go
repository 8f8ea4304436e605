// Package workqueue runs background pipeline tasks on a bounded worker pool
// with per-task timeouts, panic recovery, and result-driven re-runs.
package workqueue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Sentinel errors returned by Enqueue.
var (
	ErrShuttingDown = errors.New("runner is shutting down")
	ErrQueueFull    = errors.New("task queue is full")
)

const defaultQueueDepth = 256

// Runner executes tasks on a fixed pool of workers. Each execution gets its
// own timeout context; a task asking for a re-run via Result.Retry is
// re-executed after its delay, up to the attempt limit.
type Runner struct {
	workers     int
	maxAttempts int
	taskTimeout time.Duration

	mu       sync.Mutex
	tasks    map[string]*TaskState
	order    []string
	shutdown bool

	queue chan *TaskState
	wg    sync.WaitGroup

	ctx    context.Context
	cancel context.CancelFunc

	// onFailure is invoked when a task reaches the failed state, including
	// panics and timeouts. The job dispatcher uses it to drive the ledger row
	// to a terminal state even when the stage never got to report.
	onFailure func(taskID string, err error)

	logger *zap.Logger
}

// RunnerOption configures a Runner.
type RunnerOption func(*Runner)

// WithTaskTimeout sets the per-execution timeout. The timeout is soft: the
// task's context is cancelled and the task is expected to return.
func WithTaskTimeout(d time.Duration) RunnerOption {
	return func(r *Runner) {
		if d > 0 {
			r.taskTimeout = d
		}
	}
}

// WithMaxAttempts sets how many executions a task may consume in total.
func WithMaxAttempts(n int) RunnerOption {
	return func(r *Runner) {
		if n > 0 {
			r.maxAttempts = n
		}
	}
}

// WithFailureReporter sets the callback invoked when a task fails terminally.
func WithFailureReporter(fn func(taskID string, err error)) RunnerOption {
	return func(r *Runner) {
		r.onFailure = fn
	}
}

// NewRunner creates a runner with the given worker count and starts the pool.
func NewRunner(workers int, logger *zap.Logger, opts ...RunnerOption) *Runner {
	if workers < 1 {
		workers = 1
	}

	ctx, cancel := context.WithCancel(context.Background())
	r := &Runner{
		workers:     workers,
		maxAttempts: 3,
		taskTimeout: 30 * time.Minute,
		tasks:       make(map[string]*TaskState),
		queue:       make(chan *TaskState, defaultQueueDepth),
		ctx:         ctx,
		cancel:      cancel,
		logger:      logger.Named("workqueue"),
	}
	for _, opt := range opts {
		opt(r)
	}

	for i := 0; i < workers; i++ {
		r.wg.Add(1)
		go r.worker()
	}

	return r
}

// Enqueue submits a task for execution. It never blocks: a full queue is an
// error the caller surfaces instead of stalling a request handler.
func (r *Runner) Enqueue(task Task) error {
	r.mu.Lock()
	if r.shutdown {
		r.mu.Unlock()
		return ErrShuttingDown
	}

	state := NewTaskState(task)
	r.tasks[task.ID()] = state
	r.order = append(r.order, task.ID())

	// The send stays under the lock: Shutdown sets the flag under the same
	// lock before closing the queue, so no send can race the close.
	select {
	case r.queue <- state:
		r.mu.Unlock()
	default:
		state.setStatus(TaskStatusCancelled)
		r.mu.Unlock()
		return ErrQueueFull
	}

	r.logger.Info("task enqueued",
		zap.String("task_id", task.ID()),
		zap.String("task_name", task.Name()))
	return nil
}

// Snapshots returns the state of all known tasks in enqueue order.
func (r *Runner) Snapshots() []TaskSnapshot {
	r.mu.Lock()
	defer r.mu.Unlock()

	snapshots := make([]TaskSnapshot, 0, len(r.order))
	for _, id := range r.order {
		snapshots = append(snapshots, r.tasks[id].Snapshot())
	}
	return snapshots
}

// Snapshot returns the state of one task.
func (r *Runner) Snapshot(taskID string) (TaskSnapshot, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	state, ok := r.tasks[taskID]
	if !ok {
		return TaskSnapshot{}, false
	}
	return state.Snapshot(), true
}

// Shutdown stops accepting tasks and waits for in-flight work to finish.
// When ctx expires first, running tasks are cancelled and Shutdown returns
// the context error.
func (r *Runner) Shutdown(ctx context.Context) error {
	r.mu.Lock()
	if r.shutdown {
		r.mu.Unlock()
		return nil
	}
	r.shutdown = true
	close(r.queue)
	r.mu.Unlock()

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		r.cancel()
		<-done
		return ctx.Err()
	}
}

func (r *Runner) worker() {
	defer r.wg.Done()

	for state := range r.queue {
		if r.ctx.Err() != nil {
			state.setStatus(TaskStatusCancelled)
			continue
		}
		r.runTask(state)
	}
}

// runTask drives one task through its attempts until it completes, fails
// terminally, or the runner is cancelled.
func (r *Runner) runTask(state *TaskState) {
	task := state.task
	state.setStatus(TaskStatusRunning)

	for {
		attempt := state.incrementAttempts()

		r.logger.Info("task started",
			zap.String("task_id", task.ID()),
			zap.String("task_name", task.Name()),
			zap.Int("attempt", attempt))

		result := r.executeOnce(task)

		if result.Err == nil {
			state.setStatus(TaskStatusCompleted)
			r.logger.Info("task completed",
				zap.String("task_id", task.ID()),
				zap.String("task_name", task.Name()),
				zap.Int("attempts", attempt))
			return
		}

		if errors.Is(result.Err, context.Canceled) && r.ctx.Err() != nil {
			state.setError(result.Err)
			state.setStatus(TaskStatusCancelled)
			return
		}

		if !result.Retry || attempt >= r.maxAttempts {
			r.failTask(state, result.Err, attempt)
			return
		}

		r.logger.Warn("task will be re-run",
			zap.String("task_id", task.ID()),
			zap.String("task_name", task.Name()),
			zap.Int("attempt", attempt),
			zap.Duration("delay", result.Delay),
			zap.Error(result.Err))

		select {
		case <-time.After(result.Delay):
		case <-r.ctx.Done():
			state.setError(result.Err)
			state.setStatus(TaskStatusCancelled)
			return
		}
	}
}

// executeOnce runs a single attempt under the task timeout, converting
// panics into errors so one bad task cannot take down a worker.
func (r *Runner) executeOnce(task Task) (result Result) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("task panicked",
				zap.String("task_id", task.ID()),
				zap.String("task_name", task.Name()),
				zap.Any("panic", rec))
			result = Result{Err: fmt.Errorf("task panicked: %v", rec)}
		}
	}()

	ctx, cancel := context.WithTimeout(r.ctx, r.taskTimeout)
	defer cancel()

	result = task.Execute(ctx)
	if result.Err == nil && ctx.Err() != nil {
		result.Err = fmt.Errorf("task aborted: %w", ctx.Err())
	}
	return result
}

func (r *Runner) failTask(state *TaskState, err error, attempts int) {
	r.logger.Error("task failed",
		zap.String("task_id", state.task.ID()),
		zap.String("task_name", state.task.Name()),
		zap.Int("attempts", attempts),
		zap.Error(err))

	// Report before the terminal flip so anyone who observes the failed
	// snapshot also observes the reporter's bookkeeping.
	if r.onFailure != nil {
		r.onFailure(state.task.ID(), err)
	}

	state.setError(err)
	state.setStatus(TaskStatusFailed)
}
