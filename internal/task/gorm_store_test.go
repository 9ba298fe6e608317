package task

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/tmalldedede/agentbox/internal/database"
)

func newTestStore(t *testing.T) *GormStore {
	t.Helper()
	err := database.Initialize(database.Config{Driver: "sqlite", DSN: "file::memory:?cache=shared", LogLevel: "silent"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = database.Close() })
	return NewGormStore(database.GetDB())
}

func flatWeigher(stage Phase, k, total int) float64 {
	if total == 0 {
		return 0
	}
	return float64(k) / float64(total) * 100
}

func TestCreateTask_DuplicateIsConflict(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	tk := &Task{TaskID: "t1", Status: StatusPending, Mode: ModeAuto, DatasetSize: 3, BatchSize: 1, TotalBatches: 3, StartTime: time.Now()}
	require.NoError(t, s.CreateTask(ctx, tk))

	err := s.CreateTask(ctx, tk)
	require.Error(t, err)
}

func TestGetTask_UnknownIsNotFound(t *testing.T) {
	s := newTestStore(t)
	_, err := s.GetTask(context.Background(), "missing")
	require.Error(t, err)
}

func TestPutBatchResult_AtomicIncrementAndProgress(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	tk := &Task{TaskID: "t2", Status: StatusPending, Mode: ModeAuto, DatasetSize: 3, BatchSize: 1, TotalBatches: 3, StartTime: time.Now()}
	require.NoError(t, s.CreateTask(ctx, tk))

	err := s.PutBatchResult(ctx, "t2", 0, PhaseOptimization, BatchResult{
		TaskID: "t2", BatchIndex: 0, Records: []Record{{"question": "q"}}, Counters: map[string]int{"optimized": 1},
		StageIndex: 1, StageTotal: 3,
	}, flatWeigher)
	require.NoError(t, err)

	got, err := s.GetTask(ctx, "t2")
	require.NoError(t, err)
	require.Equal(t, 1, got.CompletedBatches)
	require.InDelta(t, 33.33, got.Progress, 1)
	require.Equal(t, StatusProcessing, got.Status)

	results, err := s.GetBatchResults(ctx, "t2")
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.Equal(t, 1, results[0].Counters["optimized"])
}

func TestNextBatchToProcess(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	tk := &Task{TaskID: "t3", Status: StatusPending, Mode: ModeAuto, DatasetSize: 2, BatchSize: 1, TotalBatches: 2, StartTime: time.Now()}
	require.NoError(t, s.CreateTask(ctx, tk))

	next, err := s.NextBatchToProcess(ctx, "t3")
	require.NoError(t, err)
	require.NotNil(t, next)
	require.Equal(t, 0, *next)

	completed := StatusCompleted
	require.NoError(t, s.UpdateTask(ctx, "t3", TaskUpdate{Status: &completed}))

	next, err = s.NextBatchToProcess(ctx, "t3")
	require.NoError(t, err)
	require.Nil(t, next)
}

func TestListTasks_MostRecentFirst(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now()
	require.NoError(t, s.CreateTask(ctx, &Task{TaskID: "a", Status: StatusPending, BatchSize: 1, TotalBatches: 1, StartTime: now.Add(-time.Minute)}))
	require.NoError(t, s.CreateTask(ctx, &Task{TaskID: "b", Status: StatusPending, BatchSize: 1, TotalBatches: 1, StartTime: now}))

	tasks, err := s.ListTasks(ctx, ListFilter{})
	require.NoError(t, err)
	require.Len(t, tasks, 2)
	require.Equal(t, "b", tasks[0].TaskID)
}

func TestDeleteTask_RemovesBatchResults(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.CreateTask(ctx, &Task{TaskID: "d", Status: StatusPending, BatchSize: 1, TotalBatches: 1, StartTime: time.Now()}))
	require.NoError(t, s.PutBatchResult(ctx, "d", 0, PhaseOptimization, BatchResult{TaskID: "d", BatchIndex: 0}, flatWeigher))

	require.NoError(t, s.DeleteTask(ctx, "d"))

	_, err := s.GetTask(ctx, "d")
	require.Error(t, err)
	results, err := s.GetBatchResults(ctx, "d")
	require.NoError(t, err)
	require.Empty(t, results)
}
