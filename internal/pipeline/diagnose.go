package pipeline

import (
	"github.com/tmalldedede/agentbox/internal/task"
)

// Cluster summarizes one semantic cluster produced by diagnosis. The
// clustering algorithm itself is out of scope; this type only
// carries its I/O contract.
type Cluster struct {
	ClusterID         string   `json:"cluster_id"`
	Size              int      `json:"size"`
	Characteristics   string   `json:"characteristics"`
	SampleQuestions   []string `json:"sample_questions"`
	SamplesToGenerate int      `json:"samples_to_generate,omitempty"`
	memberIndices     []int
}

// LowQualitySample is one entry in the diagnostic report's low-quality list.
type LowQualitySample struct {
	Index  int         `json:"index"`
	Record task.Record `json:"record"`
	Issue  string      `json:"issue"`
}

// DiagnosticReport is produced once per task in Stage 1.
type DiagnosticReport struct {
	SparseClusters   []Cluster          `json:"sparse_clusters"`
	LowQualitySamples []LowQualitySample `json:"low_quality_samples"`
	HasThinkField    bool               `json:"has_think_field"`
}

const sparseClusterThreshold = 20

// generationTarget uses the explicit per-cluster target when present,
// else max(10, 50 - cluster.size).
func generationTarget(c Cluster) int {
	if c.SamplesToGenerate > 0 {
		return c.SamplesToGenerate
	}
	t := 50 - c.Size
	if t < 10 {
		t = 10
	}
	return t
}

// Diagnose runs Stage 1. It must never fail the task: if the
// clusterer or embedding model fails, it still returns a well-formed
// (possibly empty) report.
func Diagnose(dataset []task.Record, mode task.Mode, guidance *task.Guidance) DiagnosticReport {
	report := DiagnosticReport{}

	report.HasThinkField = scanHasThinkField(dataset)

	runSemantic := mode == task.ModeAuto || guidance.HasFocus("semantic_distribution")
	if runSemantic {
		report.SparseClusters = diagnoseSemanticDistribution(dataset)
	}

	runReasoning := mode == task.ModeAuto || guidance.HasFocus("reasoning_quality")
	if runReasoning && report.HasThinkField {
		report.LowQualitySamples = diagnoseReasoningQuality(dataset)
	}

	if mode == task.ModeGuided && guidance != nil && len(guidance.ProblemIndices) > 0 {
		for _, idx := range guidance.ProblemIndices {
			if idx < 0 || idx >= len(dataset) {
				continue
			}
			report.LowQualitySamples = append(report.LowQualitySamples, LowQualitySample{
				Index:  idx,
				Record: dataset[idx],
				Issue:  "guided_selection",
			})
		}
	}

	return report
}

// scanHasThinkField scans up to 10 records for any key equal to "think"
// case-insensitively
func scanHasThinkField(dataset []task.Record) bool {
	limit := 10
	if len(dataset) < limit {
		limit = len(dataset)
	}
	for i := 0; i < limit; i++ {
		if dataset[i].HasThinkKey() {
			return true
		}
	}
	return false
}

// diagnoseReasoningQuality marks a record low-quality if it lacks any
// recognized reasoning key, or its answer is shorter than 50 characters.
func diagnoseReasoningQuality(dataset []task.Record) []LowQualitySample {
	var out []LowQualitySample
	for i, rec := range dataset {
		answer, _ := rec.Answer()
		if !rec.HasReasoning() {
			out = append(out, LowQualitySample{Index: i, Record: rec, Issue: "missing_reasoning"})
			continue
		}
		if len(answer) < 50 {
			out = append(out, LowQualitySample{Index: i, Record: rec, Issue: "answer_too_short"})
		}
	}
	return out
}

// diagnoseSemanticDistribution buckets records into clusters and flags any
// cluster whose membership is below the sparse threshold. The clustering
// heuristic itself is out of scope — this is a deterministic
// stand-in that satisfies the I/O contract (cluster_id, size,
// characteristics, up to three sample_questions, a generation target) so
// the rest of the pipeline has real cluster data to batch against.
func diagnoseSemanticDistribution(dataset []task.Record) []Cluster {
	buckets := map[int][]int{}
	bucketCount := 5
	if len(dataset) == 0 {
		bucketCount = 0
	}
	for i, rec := range dataset {
		q, _ := rec.Question()
		b := bucketKey(q, i, bucketCount)
		buckets[b] = append(buckets[b], i)
	}

	var clusters []Cluster
	for b := 0; b < bucketCount; b++ {
		members := buckets[b]
		if len(members) == 0 {
			continue
		}
		c := Cluster{
			ClusterID:      clusterID(b),
			Size:           len(members),
			Characteristics: "semantic bucket",
			memberIndices:  members,
		}
		for i, idx := range members {
			if i >= 3 {
				break
			}
			if q, ok := dataset[idx].Question(); ok {
				c.SampleQuestions = append(c.SampleQuestions, q)
			}
		}
		clusters = append(clusters, c)
	}

	var sparse []Cluster
	for _, c := range clusters {
		if c.Size < sparseClusterThreshold {
			sparse = append(sparse, c)
		}
	}
	return sparse
}

func bucketKey(question string, index, bucketCount int) int {
	if bucketCount <= 0 {
		return 0
	}
	h := 0
	for _, r := range question {
		h = h*31 + int(r)
	}
	if h < 0 {
		h = -h
	}
	if question == "" {
		h = index
	}
	return h % bucketCount
}

func clusterID(b int) string {
	const letters = "abcdefghijklmnopqrstuvwxyz"
	return "cluster-" + string(letters[b%len(letters)])
}
