package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/tmalldedede/agentbox/internal/batch"
	"github.com/tmalldedede/agentbox/internal/database"
	"github.com/tmalldedede/agentbox/internal/model"
	"github.com/tmalldedede/agentbox/internal/pipeline"
	"github.com/tmalldedede/agentbox/internal/task"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// setupTestHandler wires an OptimizeHandler against a fresh in-memory task
// store, a miniredis-backed queue and a Runner built from internal/model's
// mock collaborators, the same substitutes the pipeline package's own tests
// use in place of the external model/embedding/vector/redaction services.
func setupTestHandler(t *testing.T) (*gin.Engine, *OptimizeHandler) {
	t.Helper()

	require.NoError(t, database.Initialize(database.Config{Driver: "sqlite", DSN: "file::memory:?cache=shared", LogLevel: "silent"}))
	t.Cleanup(func() { _ = database.Close() })
	store := task.NewGormStore(database.GetDB())

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	queue := batch.NewQueue(rdb, 0)

	runner := pipeline.NewRunner(store, &pipeline.WorkerContext{
		Client:   &model.EchoClient{},
		Embedder: &model.NoopEmbedder{},
		Index:    &model.MemoryIndex{},
		Redactor: &model.PassthroughRedactor{},
	}, pipeline.Options{BatchSize: 10}, batch.Weigher)

	handler := NewOptimizeHandler(store, queue, runner, pipeline.Options{BatchSize: 10})

	router := gin.New()
	handler.RegisterRoutes(router.Group("/"))
	return router, handler
}

func doJSON(t *testing.T, router *gin.Engine, method, path string, body interface{}) (*httptest.ResponseRecorder, Response) {
	t.Helper()
	var reqBody *bytes.Buffer
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		reqBody = bytes.NewBuffer(b)
	} else {
		reqBody = bytes.NewBuffer(nil)
	}
	req := httptest.NewRequest(method, path, reqBody)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	var resp Response
	if w.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	}
	return w, resp
}

func TestSubmit_QueuesPendingTask(t *testing.T) {
	router, _ := setupTestHandler(t)

	body := gin.H{"dataset": []gin.H{{"question": "q0", "answer": "a0"}}}
	w, resp := doJSON(t, router, http.MethodPost, "/optimize", body)

	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, 0, resp.Code)
	data, ok := resp.Data.(map[string]interface{})
	require.True(t, ok)
	require.Equal(t, "task queued", data["message"])
	require.Equal(t, string(task.StatusPending), data["status"])
	require.NotEmpty(t, data["task_id"])
}

func TestSubmit_EmptyDatasetIsAccepted(t *testing.T) {
	router, _ := setupTestHandler(t)

	body := gin.H{"dataset": []gin.H{}}
	w, resp := doJSON(t, router, http.MethodPost, "/optimize", body)

	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, 0, resp.Code)
}

func TestGet_UnknownTaskIDIs404(t *testing.T) {
	router, _ := setupTestHandler(t)

	w, resp := doJSON(t, router, http.MethodGet, "/optimize/does-not-exist", nil)

	require.Equal(t, http.StatusNotFound, w.Code)
	require.NotEqual(t, 0, resp.Code)
}

func TestSubmitSync_OverLimitDatasetIs400(t *testing.T) {
	router, _ := setupTestHandler(t)

	dataset := make([]gin.H, 101)
	for i := range dataset {
		dataset[i] = gin.H{"question": "q", "answer": "a"}
	}
	w, resp := doJSON(t, router, http.MethodPost, "/optimize/sync", gin.H{"dataset": dataset})

	require.Equal(t, http.StatusBadRequest, w.Code)
	require.NotEqual(t, 0, resp.Code)
}

func TestSubmitSync_RunsPipelineInlineAndReturnsOptimizedDataset(t *testing.T) {
	router, _ := setupTestHandler(t)

	body := gin.H{"dataset": []gin.H{{"question": "q0", "answer": "a0"}}}
	w, resp := doJSON(t, router, http.MethodPost, "/optimize/sync", body)

	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, 0, resp.Code)
	data, ok := resp.Data.(map[string]interface{})
	require.True(t, ok)
	require.Contains(t, data, "task")
	require.Contains(t, data, "optimized_dataset")
}

func TestResume_TerminalTaskIs400(t *testing.T) {
	router, handler := setupTestHandler(t)
	ctx := httptest.NewRequest(http.MethodGet, "/", nil).Context()

	tk := &task.Task{TaskID: "terminal-1", Status: task.StatusCompleted, BatchSize: 1, TotalBatches: 1}
	require.NoError(t, handler.store.CreateTask(ctx, tk))

	w, resp := doJSON(t, router, http.MethodPost, "/tasks/terminal-1/resume", nil)

	require.Equal(t, http.StatusBadRequest, w.Code)
	require.NotEqual(t, 0, resp.Code)
}

func TestResume_UnknownTaskIDIs404(t *testing.T) {
	router, _ := setupTestHandler(t)

	w, resp := doJSON(t, router, http.MethodPost, "/tasks/does-not-exist/resume", nil)

	require.Equal(t, http.StatusNotFound, w.Code)
	require.NotEqual(t, 0, resp.Code)
}

func TestDelete_RemovesTask(t *testing.T) {
	router, handler := setupTestHandler(t)
	ctx := httptest.NewRequest(http.MethodGet, "/", nil).Context()

	tk := &task.Task{TaskID: "del-1", Status: task.StatusPending, BatchSize: 1, TotalBatches: 1}
	require.NoError(t, handler.store.CreateTask(ctx, tk))

	w, resp := doJSON(t, router, http.MethodDelete, "/tasks/del-1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, 0, resp.Code)

	w, resp = doJSON(t, router, http.MethodGet, "/optimize/del-1", nil)
	require.Equal(t, http.StatusNotFound, w.Code)
	require.NotEqual(t, 0, resp.Code)
}

func TestDelete_UnknownTaskIDIs404(t *testing.T) {
	router, _ := setupTestHandler(t)

	w, resp := doJSON(t, router, http.MethodDelete, "/tasks/does-not-exist", nil)

	require.Equal(t, http.StatusNotFound, w.Code)
	require.NotEqual(t, 0, resp.Code)
}
