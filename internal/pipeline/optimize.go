package pipeline

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/tmalldedede/agentbox/internal/model"
	"github.com/tmalldedede/agentbox/internal/task"
)

// OptimizeStats summarizes Stage 2.
type OptimizeStats struct {
	OptimizedCount int `json:"optimized_count"`
	GeneratedCount int `json:"generated_count"`
	ParseFailures  int `json:"parse_failures"`
}

// optimizeLowQuality runs the optimize sub-stage of Stage 2. If
// has_think_field is false the sub-stage is skipped entirely and the
// dataset is forwarded unmodified. onBatch is invoked once per batch that
// actually commits, for progress bookkeeping.
//
// skipBatches/priorRecords support resuming an interrupted task:
// skipBatches is the number of leading batches already committed by
// a previous run of this stage, and priorRecords is those batches' output
// records, flattened in commit order. Skipped batches are replayed from
// priorRecords instead of re-invoking the model, and onBatch is not called
// for them again.
func optimizeLowQuality(
	ctx context.Context,
	client model.Client,
	dataset []task.Record,
	report DiagnosticReport,
	mode task.Mode,
	guidance *task.Guidance,
	batchSize int,
	skipBatches int,
	priorRecords []task.Record,
	onBatch func(batch []task.Record, stats map[string]int) error,
) ([]task.Record, int, error) {
	if !report.HasThinkField {
		if skipBatches > 0 {
			return dataset, 0, nil
		}
		if err := onBatch(dataset, map[string]int{"skipped": 1}); err != nil {
			return nil, 0, err
		}
		return dataset, 0, nil
	}

	lowQuality := map[int]LowQualitySample{}
	for _, s := range report.LowQualitySamples {
		lowQuality[s.Index] = s
	}

	indices := make([]int, 0, len(lowQuality))
	for idx := range lowQuality {
		indices = append(indices, idx)
	}
	sortInts(indices)

	result := make([]task.Record, len(dataset))
	copy(result, dataset)

	parseFailures := 0
	batches := batch(indices, batchSize)
	priorCursor := 0
	for b, idxBatch := range batches {
		if b < skipBatches {
			for _, idx := range idxBatch {
				if priorCursor < len(priorRecords) {
					result[idx] = priorRecords[priorCursor]
					priorCursor++
				}
			}
			continue
		}
		counters := map[string]int{}
		for _, idx := range idxBatch {
			prompt := rewritePrompt(dataset[idx], mode, guidance)
			out, err := client.Generate(ctx, prompt, model.Params{})
			if err != nil {
				// Model failure (after any retries by the client): skip
				// this record, keep the original rather than failing the
				// whole batch.
				counters["model_errors"]++
				continue
			}
			rewritten, ok := parseRecord(out)
			if !ok {
				parseFailures++
				counters["parse_failures"]++
				continue
			}
			result[idx] = rewritten.WithMarker(task.MarkerOptimized)
			counters["optimized"]++
		}
		batchRecords := make([]task.Record, len(idxBatch))
		for i, idx := range idxBatch {
			batchRecords[i] = result[idx]
		}
		if err := onBatch(batchRecords, counters); err != nil {
			return nil, 0, err
		}
	}

	return result, parseFailures, nil
}

// generateSparse runs the generate sub-stage of Stage 2: one
// external-model invocation per sparse cluster, synthesizing up to
// generationTarget(cluster) records.
//
// skipBatches/priorRecords resume an interrupted run the same way as
// optimizeLowQuality: the first skipBatches clusters (one committed batch
// per cluster, even on a model/parse failure) are not re-sent to the
// model, and priorRecords (already-generated records from those clusters)
// seed the output directly.
func generateSparse(
	ctx context.Context,
	client model.Client,
	clusters []Cluster,
	mode task.Mode,
	guidance *task.Guidance,
	skipBatches int,
	priorRecords []task.Record,
	onBatch func(generated []task.Record, stats map[string]int) error,
) ([]task.Record, int, error) {
	out := append([]task.Record{}, priorRecords...)
	parseFailures := 0

	for i, c := range clusters {
		if i < skipBatches {
			continue
		}
		target := generationTarget(c)
		prompt := generatePrompt(c, target, mode, guidance)
		raw, err := client.Generate(ctx, prompt, model.Params{})
		counters := map[string]int{}
		if err != nil {
			counters["model_errors"]++
			if err := onBatch(nil, counters); err != nil {
				return nil, 0, err
			}
			continue
		}
		records, ok := parseRecordArray(raw)
		if !ok {
			parseFailures++
			counters["parse_failures"]++
			if err := onBatch(nil, counters); err != nil {
				return nil, 0, err
			}
			continue
		}
		if len(records) > target {
			records = records[:target]
		}
		marked := make([]task.Record, len(records))
		for i, r := range records {
			marked[i] = r.WithMarker(task.MarkerGenerated)
		}
		out = append(out, marked...)
		counters["generated"] = len(marked)
		if err := onBatch(marked, counters); err != nil {
			return nil, 0, err
		}
	}

	return out, parseFailures, nil
}

func rewritePrompt(rec task.Record, mode task.Mode, guidance *task.Guidance) string {
	q, _ := rec.Question()
	a, _ := rec.Answer()
	instructions := ""
	if mode == task.ModeGuided && guidance != nil {
		instructions = guidance.OptimizationInstructions
	}
	return fmt.Sprintf("rewrite with chain-of-thought reasoning\nquestion: %s\nanswer: %s\ninstructions: %s", q, a, instructions)
}

func generatePrompt(c Cluster, target int, mode task.Mode, guidance *task.Guidance) string {
	instructions := ""
	if mode == task.ModeGuided && guidance != nil {
		instructions = guidance.GenerationInstructions
	}
	return fmt.Sprintf("generate %d records similar to cluster %s (%s)\nsamples: %v\ninstructions: %s",
		target, c.ClusterID, c.Characteristics, c.SampleQuestions, instructions)
}

// parseRecord parses a single JSON object from the model's response;
// malformed JSON is the ParseFailure kind and is never fatal.
func parseRecord(raw string) (task.Record, bool) {
	var rec task.Record
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		return nil, false
	}
	return rec, true
}

// parseRecordArray parses a JSON array of record objects.
func parseRecordArray(raw string) ([]task.Record, bool) {
	var recs []task.Record
	if err := json.Unmarshal([]byte(raw), &recs); err != nil {
		return nil, false
	}
	return recs, true
}

// optimizeBatchCount mirrors the batching optimizeLowQuality performs, so
// the caller can learn the stage-local K_S before running it (needed for
// the progress weigher's k/K_S fraction).
func optimizeBatchCount(report DiagnosticReport, batchSize int) int {
	if !report.HasThinkField {
		return 1
	}
	if len(report.LowQualitySamples) == 0 {
		return 0
	}
	seen := map[int]bool{}
	for _, s := range report.LowQualitySamples {
		seen[s.Index] = true
	}
	return len(batch(make([]int, len(seen)), batchSize))
}

// generateBatchCount is one external-model call per sparse cluster.
func generateBatchCount(clusters []Cluster) int {
	return len(clusters)
}

func batch(items []int, b int) [][]int {
	return task.Batches(items, b)
}

func sortInts(s []int) {
	for i := 1; i < len(s); i++ {
		for j := i; j > 0 && s[j-1] > s[j]; j-- {
			s[j-1], s[j] = s[j], s[j-1]
		}
	}
}
