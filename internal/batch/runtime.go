package batch

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/tmalldedede/agentbox/internal/logger"
	"github.com/tmalldedede/agentbox/internal/pipeline"
	"github.com/tmalldedede/agentbox/internal/task"
)

var rlog = logger.Module("batch.runtime")

// Runtime is the Worker Runtime: a fixed pool of goroutines claiming jobs
// from Queue and driving them through pipeline.Runner one at a time. All
// goroutines share the one Runner and therefore its one WorkerContext
// (client, embedder, vector index, redactor); no goroutine has a set of its
// own.
type Runtime struct {
	Queue       *Queue
	Store       task.Store
	Runner      *pipeline.Runner
	Workers     int
	TaskTimeout time.Duration
	PollInterval time.Duration

	wg sync.WaitGroup
}

// NewRuntime builds a Runtime with sane polling defaults.
func NewRuntime(queue *Queue, store task.Store, runner *pipeline.Runner, workers int, taskTimeout time.Duration) *Runtime {
	if workers <= 0 {
		workers = 1
	}
	return &Runtime{
		Queue:        queue,
		Store:        store,
		Runner:       runner,
		Workers:      workers,
		TaskTimeout:  taskTimeout,
		PollInterval: 500 * time.Millisecond,
	}
}

// Start launches the worker pool and the queue's recovery loop; it returns
// immediately. Call Wait (or let ctx cancellation propagate) to drain.
func (rt *Runtime) Start(ctx context.Context) {
	rt.Queue.StartRecoveryLoop(ctx, 30*time.Second)
	for i := 0; i < rt.Workers; i++ {
		rt.wg.Add(1)
		go rt.workerLoop(ctx, i)
	}
}

// Wait blocks until every worker goroutine has returned (ctx canceled).
func (rt *Runtime) Wait() {
	rt.wg.Wait()
}

func (rt *Runtime) workerLoop(ctx context.Context, id int) {
	defer rt.wg.Done()
	workerLog := rlog.With("worker_id", id)
	workerLog.Info("worker started")
	for {
		job, err := rt.Queue.Claim(ctx, rt.PollInterval)
		if err != nil {
			if ctx.Err() != nil {
				workerLog.Info("worker stopping")
				return
			}
			workerLog.Warn("claim error", "error", err)
			continue
		}
		rt.process(ctx, workerLog, job)
	}
}

// process runs exactly one job to completion before the worker claims
// another: each worker processes one job at a time.
func (rt *Runtime) process(ctx context.Context, workerLog *slog.Logger, job *Job) {
	taskCtx := ctx
	var cancel context.CancelFunc
	if rt.TaskTimeout > 0 {
		taskCtx, cancel = context.WithTimeout(ctx, rt.TaskTimeout)
		defer cancel()
	}

	t, err := rt.Store.GetTask(taskCtx, job.TaskID)
	if err != nil {
		workerLog.Warn("job references unknown task", "task_id", job.TaskID, "error", err)
		_ = rt.Queue.Complete(ctx, job.TaskID)
		return
	}
	if t.IsTerminal() {
		workerLog.Info("skipping terminal task", "task_id", job.TaskID, "status", t.Status)
		_ = rt.Queue.Complete(ctx, job.TaskID)
		return
	}

	dataset := fromRawDataset(job.Dataset)
	if err := rt.Runner.Run(taskCtx, t, dataset); err != nil {
		workerLog.Warn("task failed", "task_id", job.TaskID, "error", err)
	}
	if err := rt.Queue.Complete(ctx, job.TaskID); err != nil {
		workerLog.Warn("failed to mark job complete", "task_id", job.TaskID, "error", err)
	}
}

// fromRawDataset converts the wire-level dataset (map[string]interface{})
// into task.Record without internal/batch importing internal/task's Record
// type at the wire-schema boundary (see Job's doc comment).
func fromRawDataset(raw []RawRecord) []task.Record {
	out := make([]task.Record, len(raw))
	for i, r := range raw {
		out[i] = task.Record(r)
	}
	return out
}

// NewJobID mints a job/task identifier the way the teacher's handlers do.
func NewJobID() string {
	return uuid.NewString()
}
