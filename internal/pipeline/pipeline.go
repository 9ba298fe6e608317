package pipeline

import (
	"context"
	"time"

	"github.com/tmalldedede/agentbox/internal/apperr"
	"github.com/tmalldedede/agentbox/internal/logger"
	"github.com/tmalldedede/agentbox/internal/model"
	"github.com/tmalldedede/agentbox/internal/task"
)

var log = logger.Module("pipeline")

// WorkerContext holds the heavy external-collaborator singletons a worker
// builds once and keeps for its lifetime: a model client, an
// embedder, a vector index and a redactor. Runner never constructs these
// itself; they're injected so a worker pool can share one set across many
// tasks.
type WorkerContext struct {
	Client   model.Client
	Embedder model.Embedder
	Index    model.VectorIndex
	Redactor model.Redactor
}

// Options carries the tunables from config.PipelineConfig down into
// stage behavior.
type Options struct {
	BatchSize            int
	RetryLimit           int
	TopK                 int
	ConfidenceThreshold  float64
	EnableSelfCorrection bool
}

// Runner ties the Task Store to the five-stage state machine.
// One Runner is shared by every worker; it holds no per-task state itself.
// Weigher is injected (rather than imported from internal/batch directly)
// so the Batch Scheduler's package can depend on pipeline for dispatch
// without creating an import cycle back the other way.
type Runner struct {
	Store   task.Store
	Worker  *WorkerContext
	Options Options
	Weigher task.ProgressWeigher
}

func NewRunner(store task.Store, wc *WorkerContext, opts Options, weigher task.ProgressWeigher) *Runner {
	return &Runner{Store: store, Worker: wc, Options: opts, Weigher: weigher}
}

// resumeState reconstructs, from already-committed BatchResults, how far a
// previously-interrupted run of this task got: if next_batch_to_process
// returns k > 0, the first k completed batches of the current stage are
// skipped by reading them back from the store rather than re-invoking the
// external model for work that already committed.
type resumeState struct {
	diagnoseDone bool

	optimizeSkip    int
	optimizeRecords []task.Record

	generateSkip    int
	generateRecords []task.Record

	verifySkip    int
	verifyRecords []task.Record

	cleaningDone     bool
	cleaningRecords  []task.Record
	cleaningCounters map[string]int
}

// loadResumeState groups a task's persisted batch results by stage. Diagnose
// and cleaning are single-batch stages (StageTotal 1), so any persisted row
// means the stage already ran in full; optimize/generate/verify accumulate
// one persisted row per stage-local batch.
func loadResumeState(ctx context.Context, store task.Store, taskID string) (resumeState, error) {
	var rs resumeState
	results, err := store.GetBatchResults(ctx, taskID)
	if err != nil {
		return rs, err
	}
	for _, br := range results {
		switch br.Stage {
		case task.PhaseDiagnostic:
			rs.diagnoseDone = true
		case task.PhaseOptimization:
			rs.optimizeSkip++
			rs.optimizeRecords = append(rs.optimizeRecords, br.Records...)
		case task.PhaseGeneration:
			rs.generateSkip++
			rs.generateRecords = append(rs.generateRecords, br.Records...)
		case task.PhaseVerification:
			rs.verifySkip++
			rs.verifyRecords = append(rs.verifyRecords, br.Records...)
		case task.PhaseCleaning:
			rs.cleaningDone = true
			rs.cleaningRecords = append(rs.cleaningRecords, br.Records...)
			rs.cleaningCounters = br.Counters
		}
	}
	return rs, nil
}

// Run executes one task end to end: diagnose, optimize, generate, verify,
// redact, then marks the task completed. Any error returned by a stage or a
// batch commit, including a transient store error, marks the task failed;
// model-call failures are absorbed inside the stages and do not. On a
// resumed task, stages (and the stage-local batches within them) that
// already committed a BatchResult on a prior run are skipped rather than
// redone.
func (r *Runner) Run(ctx context.Context, t *task.Task, dataset []task.Record) error {
	batchSize := t.BatchSize
	if batchSize <= 0 {
		batchSize = r.Options.BatchSize
	}

	nextIdx := t.CompletedBatches

	// KnowledgeCorpus texts supplied in the task request are added to the
	// worker's shared index at task start (§4.2); a bulk-embedding
	// suspension point that never fails the task outright.
	if len(t.KnowledgeBase) > 0 && r.Worker.Index != nil {
		if err := r.Worker.Index.Add(ctx, t.KnowledgeBase); err != nil {
			log.Warn("failed to index knowledge corpus", "task_id", t.TaskID, "error", err)
		}
	}

	resume, err := loadResumeState(ctx, r.Store, t.TaskID)
	if err != nil {
		return r.fail(ctx, t.TaskID, err)
	}

	// Diagnose is a pure local computation over the (identically persisted)
	// dataset, so it's always cheap to recompute; only the commit is
	// skipped when it already happened.
	report := Diagnose(dataset, t.Mode, t.Guidance)
	if !resume.diagnoseDone {
		if err := r.commit(ctx, t.TaskID, &nextIdx, task.PhaseDiagnostic, task.BatchResult{
			TaskID: t.TaskID, BatchIndex: nextIdx, Stage: task.PhaseDiagnostic,
			Counters: map[string]int{
				"sparse_clusters":     len(report.SparseClusters),
				"low_quality_samples": len(report.LowQualitySamples),
			},
			StageIndex: 1, StageTotal: 1,
		}); err != nil {
			return r.fail(ctx, t.TaskID, err)
		}
	}

	optTotal := optimizeBatchCount(report, batchSize)
	optStageK := resume.optimizeSkip
	optimizedCount := 0
	optimized, optParseFailures, err := optimizeLowQuality(ctx, r.Worker.Client, dataset, report, t.Mode, t.Guidance, batchSize, resume.optimizeSkip, resume.optimizeRecords,
		func(recs []task.Record, stats map[string]int) error {
			optStageK++
			optimizedCount += stats["optimized"]
			return r.commit(ctx, t.TaskID, &nextIdx, task.PhaseOptimization, task.BatchResult{
				TaskID: t.TaskID, BatchIndex: nextIdx, Stage: task.PhaseOptimization, Records: recs, Counters: stats,
				StageIndex: optStageK, StageTotal: optTotal,
			})
		})
	if err != nil {
		return r.fail(ctx, t.TaskID, err)
	}
	if optParseFailures > 0 {
		log.Warn("optimize parse failures", "task_id", t.TaskID, "count", optParseFailures)
	}
	for _, rec := range resume.optimizeRecords {
		if rec.Marked(task.MarkerOptimized) {
			optimizedCount++
		}
	}

	genTotal := generateBatchCount(report.SparseClusters)
	genStageK := resume.generateSkip
	generated, genParseFailures, err := generateSparse(ctx, r.Worker.Client, report.SparseClusters, t.Mode, t.Guidance, resume.generateSkip, resume.generateRecords,
		func(recs []task.Record, stats map[string]int) error {
			genStageK++
			return r.commit(ctx, t.TaskID, &nextIdx, task.PhaseGeneration, task.BatchResult{
				TaskID: t.TaskID, BatchIndex: nextIdx, Stage: task.PhaseGeneration, Records: recs, Counters: stats,
				StageIndex: genStageK, StageTotal: genTotal,
			})
		})
	if err != nil {
		return r.fail(ctx, t.TaskID, err)
	}
	if genParseFailures > 0 {
		log.Warn("generate parse failures", "task_id", t.TaskID, "count", genParseFailures)
	}

	combined := append(append([]task.Record{}, optimized...), generated...)

	verifyOpts := VerifyOptions{
		TopK:                 r.Options.TopK,
		ConfidenceThreshold:  r.Options.ConfidenceThreshold,
		EnableSelfCorrection: r.Options.EnableSelfCorrection,
	}
	verifyTotal := verifyBatchCount(len(combined), batchSize)
	verifyStageK := resume.verifySkip
	verified, err := Verify(ctx, r.Worker.Client, r.Worker.Index, combined, verifyOpts, batchSize, resume.verifySkip, resume.verifyRecords,
		func(recs []task.Record, stats map[string]int) error {
			verifyStageK++
			return r.commit(ctx, t.TaskID, &nextIdx, task.PhaseVerification, task.BatchResult{
				TaskID: t.TaskID, BatchIndex: nextIdx, Stage: task.PhaseVerification, Records: recs, Counters: stats,
				StageIndex: verifyStageK, StageTotal: verifyTotal,
			})
		})
	if err != nil {
		return r.fail(ctx, t.TaskID, err)
	}

	var final []task.Record
	var cleanedCount int
	if resume.cleaningDone {
		final = resume.cleaningRecords
		cleanedCount = resume.cleaningCounters["pii_cleaned"]
	} else {
		final, cleanedCount = Redact(r.Worker.Redactor, verified)
		if err := r.commit(ctx, t.TaskID, &nextIdx, task.PhaseCleaning, task.BatchResult{
			TaskID: t.TaskID, BatchIndex: nextIdx, Stage: task.PhaseCleaning, Records: final,
			Counters: map[string]int{"pii_cleaned": cleanedCount},
			StageIndex: 1, StageTotal: 1,
		}); err != nil {
			return r.fail(ctx, t.TaskID, err)
		}
	}

	now := time.Now()
	completed := task.StatusCompleted
	progress := 100.0
	// Nested shape matches the statistics contract: input/output sizes at
	// the top level, per-stage counts grouped under optimization_stats/
	// verification_stats, pii_cleaned_count alongside them.
	stats := map[string]interface{}{
		"input_size":  len(dataset),
		"output_size": len(final),
		"mode":        string(t.Mode),
		"diagnostic_report": map[string]interface{}{
			"has_think_field":     report.HasThinkField,
			"sparse_clusters":     len(report.SparseClusters),
			"low_quality_samples": len(report.LowQualitySamples),
		},
		"optimization_stats": map[string]interface{}{
			"optimized_count":     optimizedCount,
			"generated_count":     len(generated),
			"sparse_clusters":     len(report.SparseClusters),
			"low_quality_samples": len(report.LowQualitySamples),
		},
		"verification_stats": map[string]interface{}{
			"total":    len(combined),
			"verified": len(verified),
		},
		"pii_cleaned_count": cleanedCount,
	}
	return r.Store.UpdateTask(ctx, t.TaskID, task.TaskUpdate{
		Status:     &completed,
		Progress:   &progress,
		EndTime:    &now,
		Statistics: stats,
	})
}

// commit writes one batch result through the store and advances the shared
// monotonic batch index (see the completed_batches/total_batches resolution
// in DESIGN.md). It also checks for out-of-band cancellation between
// batches, the only suspension points a cancellation can land on.
func (r *Runner) commit(ctx context.Context, taskID string, nextIdx *int, stage task.Phase, result task.BatchResult) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	current, err := r.Store.GetTask(ctx, taskID)
	if err != nil {
		return err
	}
	if current.Status == task.StatusFailed {
		return apperr.Conflict("task was canceled")
	}

	if err := r.Store.PutBatchResult(ctx, taskID, *nextIdx, stage, result, r.Weigher); err != nil {
		return err
	}
	*nextIdx++
	return nil
}

func (r *Runner) fail(ctx context.Context, taskID string, cause error) error {
	now := time.Now()
	failed := task.StatusFailed
	msg := cause.Error()
	_ = r.Store.UpdateTask(ctx, taskID, task.TaskUpdate{
		Status:  &failed,
		EndTime: &now,
		Error:   &msg,
	})
	return cause
}
