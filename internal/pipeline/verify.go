package pipeline

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/tmalldedede/agentbox/internal/model"
	"github.com/tmalldedede/agentbox/internal/task"
)

// verifyDecision is the parsed judgment for a single record in Stage 3:
// is_correct plus an optional correction.
type verifyDecision struct {
	IsCorrect          bool    `json:"is_correct"`
	Confidence         float64 `json:"confidence"`
	CorrectedAnswer    string  `json:"corrected_answer,omitempty"`
	CorrectedReasoning string  `json:"corrected_reasoning,omitempty"`
}

// VerifyOptions carries the configurable knobs for Stage 3, sourced from
// config.PipelineConfig's RAGRetrievalTopK/RAGConfidenceThreshold/
// RAGEnableSelfCorrection settings.
type VerifyOptions struct {
	TopK                 int
	ConfidenceThreshold  float64
	EnableSelfCorrection bool
}

// Verify runs Stage 3 over the combined optimized+generated
// record set. Records are batched for progress reporting; each record is
// judged independently against retrieved evidence using a record-level
// decision rule: passed, corrected, or rejected.
//
// skipBatches/priorRecords resume an interrupted run: the leading
// skipBatches record batches are not re-judged, and priorRecords (their
// already-committed survivors) seed the result directly.
func Verify(
	ctx context.Context,
	client model.Client,
	index model.VectorIndex,
	records []task.Record,
	opts VerifyOptions,
	batchSize int,
	skipBatches int,
	priorRecords []task.Record,
	onBatch func(verified []task.Record, stats map[string]int) error,
) ([]task.Record, error) {
	result := make([]task.Record, 0, len(records)+len(priorRecords))
	result = append(result, priorRecords...)
	batches := batchRecords(records, batchSize)

	corpusEmpty := index == nil || index.Size() == 0

	for i, b := range batches {
		if i < skipBatches {
			continue
		}
		counters := map[string]int{}
		verifiedBatch := make([]task.Record, 0, len(b))
		for _, rec := range b {
			if corpusEmpty {
				verifiedBatch = append(verifiedBatch, rec)
				counters["passed"]++
				continue
			}

			q, _ := rec.Question()
			evidence, err := index.Search(ctx, q, opts.TopK)
			if err != nil {
				// TransientModel/TransientStore on retrieval: pass the record
				// through unchanged rather than failing the whole batch.
				verifiedBatch = append(verifiedBatch, rec)
				counters["passed"]++
				continue
			}

			decision, ok := judge(ctx, client, rec, evidence)
			if !ok {
				counters["parse_failures"]++
				verifiedBatch = append(verifiedBatch, rec)
				counters["passed"]++
				continue
			}

			switch {
			case decision.IsCorrect && decision.Confidence >= opts.ConfidenceThreshold:
				verifiedBatch = append(verifiedBatch, rec)
				counters["passed"]++
			case opts.EnableSelfCorrection && (decision.CorrectedAnswer != "" || decision.CorrectedReasoning != ""):
				corrected := rec.Clone()
				if decision.CorrectedAnswer != "" {
					corrected["answer"] = decision.CorrectedAnswer
				}
				if decision.CorrectedReasoning != "" {
					corrected["reasoning"] = decision.CorrectedReasoning
				}
				verifiedBatch = append(verifiedBatch, corrected.WithMarker(task.MarkerCorrected))
				counters["corrected"]++
			default:
				counters["rejected"]++
			}
		}

		result = append(result, verifiedBatch...)
		if err := onBatch(verifiedBatch, counters); err != nil {
			return nil, err
		}
	}

	return result, nil
}

func judge(ctx context.Context, client model.Client, rec task.Record, evidence []model.SearchResult) (verifyDecision, bool) {
	q, _ := rec.Question()
	a, _ := rec.Answer()
	prompt := fmt.Sprintf("judge correctness\nquestion: %s\nanswer: %s\nevidence: %v", q, a, evidence)
	raw, err := client.Generate(ctx, prompt, model.Params{})
	if err != nil {
		return verifyDecision{}, false
	}
	var d verifyDecision
	if err := json.Unmarshal([]byte(raw), &d); err != nil {
		return verifyDecision{}, false
	}
	return d, true
}

// verifyBatchCount mirrors batchRecords' count so the caller can learn the
// stage-local K_S before running Verify.
func verifyBatchCount(n, b int) int {
	if b <= 0 {
		b = 1
	}
	if n == 0 {
		return 0
	}
	return (n + b - 1) / b
}

func batchRecords(items []task.Record, b int) [][]task.Record {
	return task.Batches(items, b)
}
