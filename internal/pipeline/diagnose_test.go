package pipeline

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/tmalldedede/agentbox/internal/task"
)

func TestGenerationTarget_ExplicitOverride(t *testing.T) {
	c := Cluster{Size: 5, SamplesToGenerate: 12}
	require.Equal(t, 12, generationTarget(c))
}

func TestGenerationTarget_Default(t *testing.T) {
	require.Equal(t, 30, generationTarget(Cluster{Size: 20}))
	require.Equal(t, 10, generationTarget(Cluster{Size: 45}))
}

func TestDiagnose_AutoModeRunsBothChecks(t *testing.T) {
	dataset := []task.Record{
		{"question": "q1", "answer": "short"},
		{"question": "q2", "answer": "short", "think": "scratch"},
	}
	report := Diagnose(dataset, task.ModeAuto, nil)
	require.True(t, report.HasThinkField)
	require.NotEmpty(t, report.LowQualitySamples)
}

func TestDiagnose_SkipsReasoningCheckWithoutThinkField(t *testing.T) {
	dataset := []task.Record{
		{"question": "q1", "answer": "short"},
	}
	report := Diagnose(dataset, task.ModeAuto, nil)
	require.False(t, report.HasThinkField)
	require.Empty(t, report.LowQualitySamples)
}

func TestDiagnose_GuidedModeHonorsFocus(t *testing.T) {
	dataset := []task.Record{
		{"question": "q1", "answer": "short", "think": "x"},
	}
	guidance := &task.Guidance{FocusAreas: []string{"semantic_distribution"}}
	report := Diagnose(dataset, task.ModeGuided, guidance)
	require.Nil(t, report.LowQualitySamples)
	require.True(t, report.HasThinkField)
}

func TestDiagnose_GuidedModeProblemIndices(t *testing.T) {
	dataset := []task.Record{
		{"question": "q1", "answer": "a1"},
		{"question": "q2", "answer": "a2"},
	}
	guidance := &task.Guidance{ProblemIndices: []int{1, 99, -1}}
	report := Diagnose(dataset, task.ModeGuided, guidance)
	require.Len(t, report.LowQualitySamples, 1)
	require.Equal(t, 1, report.LowQualitySamples[0].Index)
	require.Equal(t, "guided_selection", report.LowQualitySamples[0].Issue)
}

func TestDiagnoseSemanticDistribution_FlagsSparseClusters(t *testing.T) {
	dataset := make([]task.Record, 3)
	for i := range dataset {
		dataset[i] = task.Record{"question": "hello world"}
	}
	clusters := diagnoseSemanticDistribution(dataset)
	for _, c := range clusters {
		require.Less(t, c.Size, sparseClusterThreshold)
	}
}
