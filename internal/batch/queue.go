package batch

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/tmalldedede/agentbox/internal/logger"
)

var qlog = logger.Module("batch.queue")

// Job is the job message passed between the Control API and the Worker
// Runtime. The dataset travels in the message; the store also keeps a copy
// of it on the task row so resume can rebuild this message.
type Job struct {
	TaskID        string         `json:"task_id"`
	Dataset       []RawRecord    `json:"dataset"`
	KnowledgeBase []string       `json:"knowledge_base,omitempty"`
	Guidance      *RawGuidance   `json:"optimization_guidance,omitempty"`
	SaveReports   bool           `json:"save_reports,omitempty"`
}

// RawRecord avoids internal/batch depending on internal/task's Record type
// directly in the wire schema; both are map[string]interface{} underneath.
type RawRecord = map[string]interface{}

// RawGuidance mirrors task.Guidance for JSON transport without an import
// cycle concern. batch.Runtime does not read it on dequeue: the pipeline
// takes guidance from the task record in the store.
type RawGuidance struct {
	FocusAreas               []string `json:"focus_areas,omitempty"`
	ProblemIndices           []int    `json:"problem_indices,omitempty"`
	OptimizationInstructions string   `json:"optimization_instructions,omitempty"`
	GenerationInstructions   string   `json:"generation_instructions,omitempty"`
}

const (
	keyPending    = "optimizer:jobs:pending"
	keyProcessing = "optimizer:jobs:processing"
)

func keyJobData(taskID string) string { return "optimizer:jobs:data:" + taskID }

// Queue is a Redis-backed job queue grounded on the teacher's
// batch/redis_queue.go: an atomic Lua claim script moves a task_id from a
// pending list into a processing sorted set scored by claim time, so
// RecoverTimedOut can requeue jobs whose worker died mid-run.
type Queue struct {
	rdb          *redis.Client
	claimTimeout time.Duration
}

func NewQueue(rdb *redis.Client, claimTimeout time.Duration) *Queue {
	return &Queue{rdb: rdb, claimTimeout: claimTimeout}
}

// Enqueue pushes a job onto the pending list and stores its payload.
func (q *Queue) Enqueue(ctx context.Context, job Job) error {
	payload, err := json.Marshal(job)
	if err != nil {
		return err
	}
	pipe := q.rdb.TxPipeline()
	pipe.Set(ctx, keyJobData(job.TaskID), payload, 0)
	pipe.RPush(ctx, keyPending, job.TaskID)
	_, err = pipe.Exec(ctx)
	return err
}

// claimScript atomically pops the head of the pending list and records it
// in the processing zset scored by the current time, mirroring the
// teacher's claimScript in redis_queue.go.
var claimScript = redis.NewScript(`
local taskID = redis.call('LPOP', KEYS[1])
if not taskID then
	return nil
end
redis.call('ZADD', KEYS[2], ARGV[1], taskID)
return taskID
`)

// Claim blocks (via polling, since the Lua script itself is non-blocking)
// until a job is available or ctx is done, then returns its payload.
func (q *Queue) Claim(ctx context.Context, pollInterval time.Duration) (*Job, error) {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
			res, err := claimScript.Run(ctx, q.rdb, []string{keyPending, keyProcessing}, time.Now().Unix()).Result()
			if err == redis.Nil || res == nil {
				continue
			}
			if err != nil {
				qlog.Warn("claim failed", "error", err)
				continue
			}
			taskID, _ := res.(string)
			if taskID == "" {
				continue
			}
			data, err := q.rdb.Get(ctx, keyJobData(taskID)).Result()
			if err != nil {
				qlog.Warn("job data missing for claimed task", "task_id", taskID, "error", err)
				continue
			}
			var job Job
			if err := json.Unmarshal([]byte(data), &job); err != nil {
				qlog.Warn("corrupt job payload", "task_id", taskID, "error", err)
				continue
			}
			return &job, nil
		}
	}
}

// Complete removes a finished job from the processing set and its payload.
func (q *Queue) Complete(ctx context.Context, taskID string) error {
	pipe := q.rdb.TxPipeline()
	pipe.ZRem(ctx, keyProcessing, taskID)
	pipe.Del(ctx, keyJobData(taskID))
	_, err := pipe.Exec(ctx)
	return err
}

// RecoverTimedOut requeues processing entries older than claimTimeout,
// mirroring redis_queue.go's timeout-based recovery from a worker crash.
func (q *Queue) RecoverTimedOut(ctx context.Context) (int, error) {
	cutoff := time.Now().Add(-q.claimTimeout).Unix()
	ids, err := q.rdb.ZRangeByScore(ctx, keyProcessing, &redis.ZRangeBy{Min: "-inf", Max: strconv.FormatInt(cutoff, 10)}).Result()
	if err != nil {
		return 0, err
	}
	for _, id := range ids {
		pipe := q.rdb.TxPipeline()
		pipe.ZRem(ctx, keyProcessing, id)
		pipe.RPush(ctx, keyPending, id)
		if _, err := pipe.Exec(ctx); err != nil {
			qlog.Warn("failed to requeue timed-out job", "task_id", id, "error", err)
		}
	}
	return len(ids), nil
}

// StartRecoveryLoop runs RecoverTimedOut on a ticker until ctx is canceled.
func (q *Queue) StartRecoveryLoop(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if n, err := q.RecoverTimedOut(ctx); err != nil {
					qlog.Warn("recovery scan failed", "error", err)
				} else if n > 0 {
					qlog.Info("recovered timed-out jobs", "count", n)
				}
			}
		}
	}()
}
