// Package batch implements the Batch Scheduler and the Worker
// Runtime: splitting work into fixed-size batches, driving the
// five sequential pipeline stages, and dispatching job messages to a pool
// of workers via a Redis-backed queue.
package batch

import "github.com/tmalldedede/agentbox/internal/task"

// stageOffset and stageWeight implement the fixed progress-weight table —
// a load-bearing contract, not an implementation detail — grounded on the
// exact arithmetic the original source uses in tasks.py (50/25/20/5 split
// of post-diagnosis progress), generalized here to the documented
// 3/47/25/20/5 split.
var stageOffset = map[task.Phase]float64{
	task.PhaseDiagnostic:   0,
	task.PhaseOptimization: 3,
	task.PhaseGeneration:   50,
	task.PhaseVerification: 75,
	task.PhaseCleaning:     95,
}

var stageWeight = map[task.Phase]float64{
	task.PhaseDiagnostic:   3,
	task.PhaseOptimization: 47,
	task.PhaseGeneration:   25,
	task.PhaseVerification: 20,
	task.PhaseCleaning:     5,
}

// Weigher is the task.ProgressWeigher used by the Task Store: progress =
// offset(stage) + weight(stage) * k/total, written after each batch
// completes.
func Weigher(stage task.Phase, k, total int) float64 {
	offset := stageOffset[stage]
	weight := stageWeight[stage]
	if total <= 0 {
		return offset + weight
	}
	frac := float64(k) / float64(total)
	if frac > 1 {
		frac = 1
	}
	return offset + weight*frac
}

// Batches splits records into contiguous slices of at most size b, in
// index order; the last batch may be shorter. Kept here as a re-export so
// existing callers of batch.Batches don't need to know it now lives in
// internal/task (shared with internal/pipeline, which cannot import
// internal/batch without an import cycle back through runtime.go).
func Batches[T any](items []T, b int) [][]T {
	return task.Batches(items, b)
}
