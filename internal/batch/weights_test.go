package batch

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/tmalldedede/agentbox/internal/task"
)

func TestWeigher_PrefixSumsAfterEachStageCompletes(t *testing.T) {
	cases := []struct {
		stage    task.Phase
		expected float64
	}{
		{task.PhaseDiagnostic, 3},
		{task.PhaseOptimization, 50},
		{task.PhaseGeneration, 75},
		{task.PhaseVerification, 95},
		{task.PhaseCleaning, 100},
	}
	for _, c := range cases {
		got := Weigher(c.stage, 4, 4)
		require.InDelta(t, c.expected, got, 0.5, "stage %s", c.stage)
	}
}

func TestWeigher_PartialFractionWithinStage(t *testing.T) {
	got := Weigher(task.PhaseOptimization, 1, 2)
	require.InDelta(t, 3+47*0.5, got, 0.001)
}

func TestWeigher_ZeroTotalTreatedAsStageComplete(t *testing.T) {
	got := Weigher(task.PhaseGeneration, 0, 0)
	require.InDelta(t, 75, got, 0.001)
}

func TestBatches_ContiguousWithShortLastBatch(t *testing.T) {
	out := Batches([]int{0, 1, 2, 3, 4}, 2)
	require.Equal(t, [][]int{{0, 1}, {2, 3}, {4}}, out)
}
