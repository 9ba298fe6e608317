package task

import "context"

// ListFilter narrows list_tasks
type ListFilter struct {
	Status *Status
	Limit  int
}

// Store is the Task Store: the durable source of truth for
// task state, batch results, and a time-ordered task index. Implementations
// must guarantee serializable writes per task_id and monotonic reads within
// a client session.
type Store interface {
	// CreateTask inserts t with the status and progress already set on it
	// (they are not reset to pending/0) and indexes it by start_time.
	// Returns apperr.AlreadyExists if task_id is already present.
	CreateTask(ctx context.Context, t *Task) error

	// UpdateTask atomically merges the non-nil fields of upd onto the task.
	UpdateTask(ctx context.Context, taskID string, upd TaskUpdate) error

	// PutBatchResult atomically (a) stores the batch result, (b) increments
	// completed_batches, (c) recomputes progress via weigher, (d) sets
	// current_phase to stage. A concurrent reader observes either the old
	// or the new combination, never a partial increment.
	PutBatchResult(ctx context.Context, taskID string, batchIndex int, stage Phase, result BatchResult, weigher ProgressWeigher) error

	GetTask(ctx context.Context, taskID string) (*Task, error)

	// GetBatchResults returns all batch results for taskID ordered by
	// batch_index.
	GetBatchResults(ctx context.Context, taskID string) ([]BatchResult, error)

	// ListTasks returns tasks most-recent-first by creation time.
	ListTasks(ctx context.Context, filter ListFilter) ([]*Task, error)

	// DeleteTask removes the task and all of its batch results.
	DeleteTask(ctx context.Context, taskID string) error

	// NextBatchToProcess returns completed_batches if the task exists and
	// is not terminal, else nil.
	NextBatchToProcess(ctx context.Context, taskID string) (*int, error)

	// Stats returns aggregate task counts by status, backing the Control
	// API's `stats` endpoint.
	Stats(ctx context.Context) (map[Status]int, error)
}

// ProgressWeigher recomputes overall task progress given the stage just
// completing a batch and that stage's fractional completion. Implemented by
// the Batch Scheduler (internal/batch) so the Task Store stays ignorant of
// the stage weight table while still recomputing progress atomically with
// the batch-result write.
type ProgressWeigher func(stage Phase, k, total int) float64

// ErrNotFound is a sentinel for a missing task. GormStore does not wrap it:
// its not-found errors are apperr.NotFound values with no underlying cause,
// so errors.Is(err, ErrNotFound) does not match them.
var ErrNotFound = notFoundSentinel{}

type notFoundSentinel struct{}

func (notFoundSentinel) Error() string { return "task not found" }
