package pipeline

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/tmalldedede/agentbox/internal/model"
	"github.com/tmalldedede/agentbox/internal/task"
)

func TestOptimizeLowQuality_SkipsWhenNoThinkField(t *testing.T) {
	dataset := []task.Record{{"question": "q", "answer": "a"}}
	calls := 0
	onBatch := func(batch []task.Record, stats map[string]int) error {
		calls++
		require.Equal(t, 1, stats["skipped"])
		return nil
	}
	out, parseFailures, err := optimizeLowQuality(context.Background(), &model.EchoClient{}, dataset, DiagnosticReport{HasThinkField: false}, task.ModeAuto, nil, 10, 0, nil, onBatch)
	require.NoError(t, err)
	require.Equal(t, 0, parseFailures)
	require.Equal(t, 1, calls)
	require.Equal(t, dataset, out)
}

func TestOptimizeLowQuality_RewritesFlaggedRecords(t *testing.T) {
	dataset := []task.Record{
		{"question": "q0", "answer": "a0"},
		{"question": "q1", "answer": "a1"},
	}
	report := DiagnosticReport{
		HasThinkField:     true,
		LowQualitySamples: []LowQualitySample{{Index: 1, Issue: "answer_too_short"}},
	}
	client := &model.EchoClient{GenerateFunc: func(ctx context.Context, prompt string, params model.Params) (string, error) {
		return `{"question":"q1","answer":"rewritten","think":"scratch"}`, nil
	}}

	var batches int
	out, parseFailures, err := optimizeLowQuality(context.Background(), client, dataset, report, task.ModeAuto, nil, 10, 0, nil, func(batch []task.Record, stats map[string]int) error {
		batches++
		require.Equal(t, 1, stats["optimized"])
		require.Len(t, batch, 1, "committed batch result must carry the produced records, not just counters")
		require.Equal(t, "rewritten", batch[0]["answer"])
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, 0, parseFailures)
	require.Equal(t, 1, batches)
	require.Equal(t, "q0", out[0]["question"])
	require.Equal(t, "rewritten", out[1]["answer"])
	require.Equal(t, true, out[1][task.MarkerOptimized])
}

func TestOptimizeLowQuality_KeepsOriginalOnParseFailure(t *testing.T) {
	dataset := []task.Record{{"question": "q0", "answer": "a0"}}
	report := DiagnosticReport{
		HasThinkField:     true,
		LowQualitySamples: []LowQualitySample{{Index: 0}},
	}
	client := &model.EchoClient{GenerateFunc: func(ctx context.Context, prompt string, params model.Params) (string, error) {
		return "not json", nil
	}}

	out, parseFailures, err := optimizeLowQuality(context.Background(), client, dataset, report, task.ModeAuto, nil, 10, 0, nil, func(batch []task.Record, stats map[string]int) error {
		require.Equal(t, 1, stats["parse_failures"])
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, 1, parseFailures)
	require.Equal(t, dataset[0], out[0])
}

func TestGenerateSparse_RespectsGenerationTarget(t *testing.T) {
	clusters := []Cluster{{ClusterID: "cluster-a", Size: 45, SamplesToGenerate: 2}}
	client := &model.EchoClient{GenerateFunc: func(ctx context.Context, prompt string, params model.Params) (string, error) {
		return `[{"question":"g0"},{"question":"g1"},{"question":"g2"}]`, nil
	}}

	var generated []task.Record
	out, parseFailures, err := generateSparse(context.Background(), client, clusters, task.ModeAuto, nil, 0, nil, func(batch []task.Record, stats map[string]int) error {
		generated = append(generated, batch...)
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, 0, parseFailures)
	require.Len(t, out, 2)
	require.Len(t, generated, 2)
	for _, r := range out {
		require.Equal(t, true, r[task.MarkerGenerated])
	}
}

func TestGenerateSparse_CountsParseFailuresWithoutFailingTask(t *testing.T) {
	clusters := []Cluster{{ClusterID: "cluster-a", Size: 10}}
	client := &model.EchoClient{GenerateFunc: func(ctx context.Context, prompt string, params model.Params) (string, error) {
		return "garbage", nil
	}}

	out, parseFailures, err := generateSparse(context.Background(), client, clusters, task.ModeAuto, nil, 0, nil, func(batch []task.Record, stats map[string]int) error {
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, 1, parseFailures)
	require.Empty(t, out)
}

func TestOptimizeLowQuality_SkipsAlreadyCommittedBatches(t *testing.T) {
	dataset := []task.Record{
		{"question": "q0", "answer": "a0"},
		{"question": "q1", "answer": "a1"},
	}
	report := DiagnosticReport{
		HasThinkField:     true,
		LowQualitySamples: []LowQualitySample{{Index: 0}, {Index: 1}},
	}
	client := &model.EchoClient{GenerateFunc: func(ctx context.Context, prompt string, params model.Params) (string, error) {
		return `{"question":"q1","answer":"rewritten1"}`, nil
	}}
	prior := []task.Record{{"question": "q0", "answer": "rewritten0", task.MarkerOptimized: true}}

	var batches int
	out, parseFailures, err := optimizeLowQuality(context.Background(), client, dataset, report, task.ModeAuto, nil, 1, 1, prior, func(batch []task.Record, stats map[string]int) error {
		batches++
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, 0, parseFailures)
	require.Equal(t, 1, batches, "only the non-skipped batch should commit")
	require.Equal(t, "rewritten0", out[0]["answer"])
	require.Equal(t, "rewritten1", out[1]["answer"])
}

func TestGenerateSparse_SkipsAlreadyCommittedClusters(t *testing.T) {
	clusters := []Cluster{
		{ClusterID: "cluster-a", Size: 10},
		{ClusterID: "cluster-b", Size: 10},
	}
	client := &model.EchoClient{GenerateFunc: func(ctx context.Context, prompt string, params model.Params) (string, error) {
		return `[{"question":"g1"}]`, nil
	}}
	prior := []task.Record{{"question": "g0", task.MarkerGenerated: true}}

	var calls int
	out, parseFailures, err := generateSparse(context.Background(), client, clusters, task.ModeAuto, nil, 1, prior, func(batch []task.Record, stats map[string]int) error {
		calls++
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, 0, parseFailures)
	require.Equal(t, 1, calls)
	require.Len(t, out, 2)
	require.Equal(t, "g0", out[0]["question"])
	require.Equal(t, "g1", out[1]["question"])
}

func TestBatch_ContiguousWithShortLastBatch(t *testing.T) {
	out := batch([]int{0, 1, 2, 3, 4}, 2)
	require.Equal(t, [][]int{{0, 1}, {2, 3}, {4}}, out)
}

func TestSortInts(t *testing.T) {
	s := []int{3, 1, 2}
	sortInts(s)
	require.Equal(t, []int{1, 2, 3}, s)
}

func TestOptimizeBatchCount(t *testing.T) {
	require.Equal(t, 1, optimizeBatchCount(DiagnosticReport{HasThinkField: false}, 10))
	require.Equal(t, 0, optimizeBatchCount(DiagnosticReport{HasThinkField: true}, 10))
	report := DiagnosticReport{
		HasThinkField: true,
		LowQualitySamples: []LowQualitySample{{Index: 0}, {Index: 1}, {Index: 2}},
	}
	require.Equal(t, 2, optimizeBatchCount(report, 2))
}

func TestGenerateBatchCount(t *testing.T) {
	require.Equal(t, 0, generateBatchCount(nil))
	require.Equal(t, 2, generateBatchCount([]Cluster{{ClusterID: "a"}, {ClusterID: "b"}}))
}
