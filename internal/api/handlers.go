package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/tmalldedede/agentbox/internal/apperr"
	"github.com/tmalldedede/agentbox/internal/batch"
	"github.com/tmalldedede/agentbox/internal/pipeline"
	"github.com/tmalldedede/agentbox/internal/task"
)

// OptimizeHandler implements the Control API
type OptimizeHandler struct {
	store   task.Store
	queue   *batch.Queue
	runner  *pipeline.Runner
	options pipeline.Options
	maxSyncDatasetSize int
}

func NewOptimizeHandler(store task.Store, queue *batch.Queue, runner *pipeline.Runner, opts pipeline.Options) *OptimizeHandler {
	return &OptimizeHandler{store: store, queue: queue, runner: runner, options: opts, maxSyncDatasetSize: 100}
}

func (h *OptimizeHandler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/optimize", h.Submit)
	r.POST("/optimize/sync", h.SubmitSync)
	r.GET("/optimize/:task_id", h.Get)
	r.GET("/tasks", h.List)
	r.GET("/tasks/:task_id/dataset", h.GetDataset)
	r.POST("/tasks/:task_id/resume", h.Resume)
	r.DELETE("/tasks/:task_id", h.Delete)
	r.POST("/knowledge-base/load", h.LoadKnowledge)
	r.GET("/health", h.Health)
	r.GET("/stats", h.Stats)
}

// submitRequest mirrors the wire schema accepted by the submit endpoints.
type submitRequest struct {
	Dataset             []map[string]interface{} `json:"dataset" binding:"required"`
	KnowledgeBase        []string                 `json:"knowledge_base,omitempty"`
	OptimizationGuidance *guidanceRequest         `json:"optimization_guidance,omitempty"`
	SaveReports          bool                     `json:"save_reports,omitempty"`
	BatchSize            int                      `json:"batch_size,omitempty"`
}

type guidanceRequest struct {
	FocusAreas               []string `json:"focus_areas,omitempty"`
	ProblemIndices           []int    `json:"problem_indices,omitempty"`
	OptimizationInstructions string   `json:"optimization_instructions,omitempty"`
	GenerationInstructions   string   `json:"generation_instructions,omitempty"`
}

func (req *submitRequest) guidance() *task.Guidance {
	if req.OptimizationGuidance == nil {
		return nil
	}
	g := req.OptimizationGuidance
	return &task.Guidance{
		FocusAreas:               g.FocusAreas,
		ProblemIndices:           g.ProblemIndices,
		OptimizationInstructions: g.OptimizationInstructions,
		GenerationInstructions:   g.GenerationInstructions,
	}
}

func (req *submitRequest) mode() task.Mode {
	if req.OptimizationGuidance != nil {
		return task.ModeGuided
	}
	return task.ModeAuto
}

// Submit handles `POST /optimize`: creates a pending task and enqueues a
// job message, returning immediately
func (h *OptimizeHandler) Submit(c *gin.Context) {
	var req submitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		HandleError(c, apperr.BadRequest("invalid request: "+err.Error()))
		return
	}

	batchSize := req.BatchSize
	if batchSize <= 0 {
		batchSize = h.options.BatchSize
	}

	t, job := h.buildTask(req, batchSize)
	if err := h.store.CreateTask(c.Request.Context(), t); err != nil {
		HandleError(c, err)
		return
	}
	if err := h.queue.Enqueue(c.Request.Context(), job); err != nil {
		HandleError(c, apperr.TransientStore(err))
		return
	}

	// §6: POST /optimize returns status code 200, not 201.
	Success(c, gin.H{"task_id": t.TaskID, "status": t.Status, "mode": t.Mode, "message": "task queued"})
}

// SubmitSync handles `POST /optimize/sync`: runs the pipeline inline and
// returns the final task, rejecting datasets above the synchronous size
// cap
func (h *OptimizeHandler) SubmitSync(c *gin.Context) {
	var req submitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		HandleError(c, apperr.BadRequest("invalid request: "+err.Error()))
		return
	}
	if len(req.Dataset) > h.maxSyncDatasetSize {
		HandleError(c, apperr.TooLarge("dataset_size exceeds synchronous limit"))
		return
	}

	batchSize := req.BatchSize
	if batchSize <= 0 {
		batchSize = h.options.BatchSize
	}

	t, job := h.buildTask(req, batchSize)
	if err := h.store.CreateTask(c.Request.Context(), t); err != nil {
		HandleError(c, err)
		return
	}

	dataset := make([]task.Record, len(job.Dataset))
	for i, r := range job.Dataset {
		dataset[i] = task.Record(r)
	}
	if err := h.runner.Run(c.Request.Context(), t, dataset); err != nil {
		HandleError(c, err)
		return
	}

	final, err := h.store.GetTask(c.Request.Context(), t.TaskID)
	if err != nil {
		HandleError(c, err)
		return
	}
	results, err := h.store.GetBatchResults(c.Request.Context(), t.TaskID)
	if err != nil {
		HandleError(c, err)
		return
	}
	Success(c, gin.H{"task": final, "optimized_dataset": finalDataset(results)})
}

// finalDataset extracts the records emerging from Stage 4 (redact), in
// batch-preserved order, per §4.4's "Final output" rule. GetBatchResults
// already returns results ordered by batch_index.
func finalDataset(results []task.BatchResult) []task.Record {
	var out []task.Record
	for _, r := range results {
		if r.Stage == task.PhaseCleaning {
			out = append(out, r.Records...)
		}
	}
	if out == nil {
		out = []task.Record{}
	}
	return out
}

func (h *OptimizeHandler) buildTask(req submitRequest, batchSize int) (*task.Task, batch.Job) {
	taskID := uuid.NewString()
	size := len(req.Dataset)
	totalBatches := (size + batchSize - 1) / batchSize
	if totalBatches == 0 {
		totalBatches = 1
	}

	dataset := make([]task.Record, size)
	raw := make([]batch.RawRecord, size)
	for i, r := range req.Dataset {
		dataset[i] = task.Record(r)
		raw[i] = batch.RawRecord(r)
	}

	t := &task.Task{
		TaskID:        taskID,
		Status:        task.StatusPending,
		Mode:          req.mode(),
		DatasetSize:   size,
		BatchSize:     batchSize,
		TotalBatches:  totalBatches,
		CurrentPhase:  task.PhaseDiagnostic,
		StartTime:     time.Now(),
		Dataset:       dataset,
		KnowledgeBase: req.KnowledgeBase,
		Guidance:      req.guidance(),
		SaveReports:   req.SaveReports,
	}

	var rawGuidance *batch.RawGuidance
	if req.OptimizationGuidance != nil {
		rawGuidance = &batch.RawGuidance{
			FocusAreas:               req.OptimizationGuidance.FocusAreas,
			ProblemIndices:           req.OptimizationGuidance.ProblemIndices,
			OptimizationInstructions: req.OptimizationGuidance.OptimizationInstructions,
			GenerationInstructions:   req.OptimizationGuidance.GenerationInstructions,
		}
	}

	job := batch.Job{
		TaskID:        taskID,
		Dataset:       raw,
		KnowledgeBase: req.KnowledgeBase,
		Guidance:      rawGuidance,
		SaveReports:   req.SaveReports,
	}
	return t, job
}

// Get handles `GET /optimize/{task_id}`: returns the task, plus the
// optimized dataset once the task has completed.
func (h *OptimizeHandler) Get(c *gin.Context) {
	t, err := h.store.GetTask(c.Request.Context(), c.Param("task_id"))
	if err != nil {
		HandleError(c, err)
		return
	}
	if t.Status != task.StatusCompleted {
		Success(c, gin.H{"task": t})
		return
	}
	results, err := h.store.GetBatchResults(c.Request.Context(), t.TaskID)
	if err != nil {
		HandleError(c, err)
		return
	}
	Success(c, gin.H{"task": t, "optimized_dataset": finalDataset(results)})
}

// GetDataset returns the per-batch results, useful for inspecting
// intermediate output before a task finishes.
func (h *OptimizeHandler) GetDataset(c *gin.Context) {
	results, err := h.store.GetBatchResults(c.Request.Context(), c.Param("task_id"))
	if err != nil {
		HandleError(c, err)
		return
	}
	Success(c, gin.H{"batch_results": results})
}

// List handles `GET /tasks`
func (h *OptimizeHandler) List(c *gin.Context) {
	filter := task.ListFilter{}
	if status := c.Query("status"); status != "" {
		s := task.Status(status)
		filter.Status = &s
	}
	if limit := c.Query("limit"); limit != "" {
		if n, err := parseInt(limit); err == nil {
			filter.Limit = n
		}
	}
	tasks, err := h.store.ListTasks(c.Request.Context(), filter)
	if err != nil {
		HandleError(c, err)
		return
	}
	Success(c, gin.H{"tasks": tasks})
}

// Delete handles `DELETE /tasks/{task_id}`
func (h *OptimizeHandler) Delete(c *gin.Context) {
	if err := h.store.DeleteTask(c.Request.Context(), c.Param("task_id")); err != nil {
		HandleError(c, err)
		return
	}
	Success(c, gin.H{"deleted": true})
}

// Resume handles `POST /tasks/{task_id}/resume`:
// re-enqueues a job message carrying the task's persisted dataset, closing
// the gap the original source left as a TODO.
func (h *OptimizeHandler) Resume(c *gin.Context) {
	taskID := c.Param("task_id")
	next, err := h.store.NextBatchToProcess(c.Request.Context(), taskID)
	if err != nil {
		HandleError(c, err)
		return
	}
	if next == nil {
		HandleError(c, apperr.BadRequest("task is already terminal"))
		return
	}

	t, err := h.store.GetTask(c.Request.Context(), taskID)
	if err != nil {
		HandleError(c, err)
		return
	}

	raw := make([]batch.RawRecord, len(t.Dataset))
	for i, r := range t.Dataset {
		raw[i] = batch.RawRecord(r)
	}
	var rawGuidance *batch.RawGuidance
	if t.Guidance != nil {
		rawGuidance = &batch.RawGuidance{
			FocusAreas:               t.Guidance.FocusAreas,
			ProblemIndices:           t.Guidance.ProblemIndices,
			OptimizationInstructions: t.Guidance.OptimizationInstructions,
			GenerationInstructions:   t.Guidance.GenerationInstructions,
		}
	}
	job := batch.Job{
		TaskID:        taskID,
		Dataset:       raw,
		KnowledgeBase: t.KnowledgeBase,
		Guidance:      rawGuidance,
		SaveReports:   t.SaveReports,
	}
	if err := h.queue.Enqueue(c.Request.Context(), job); err != nil {
		HandleError(c, apperr.TransientStore(err))
		return
	}
	Success(c, gin.H{"task_id": taskID, "resumed_from_batch": *next})
}

// LoadKnowledge handles `POST /knowledge-base/load`: body is a bare JSON
// array of document strings. In distributed deployments this is only an
// advisory hint (§4.5) — the authoritative path is the knowledge_base field
// carried in the job message — so it loads into whichever worker serves
// this API instance's index, if one is configured locally.
func (h *OptimizeHandler) LoadKnowledge(c *gin.Context) {
	var docs []string
	if err := c.ShouldBindJSON(&docs); err != nil {
		HandleError(c, apperr.BadRequest("invalid request: "+err.Error()))
		return
	}
	if h.runner.Worker.Index == nil {
		HandleError(c, apperr.Unavailable("no vector index configured"))
		return
	}
	if err := h.runner.Worker.Index.Add(c.Request.Context(), docs); err != nil {
		HandleError(c, apperr.TransientModel(err))
		return
	}
	Success(c, gin.H{"indexed": len(docs), "size": h.runner.Worker.Index.Size()})
}

// Health handles `GET /health`: reports whether the external-model client
// and embedding model singletons are configured (non-nil), degrading rather
// than failing outright when one is missing. It does not call either
// collaborator, so it does not detect one that is configured but down.
func (h *OptimizeHandler) Health(c *gin.Context) {
	llmAvailable := h.runner.Worker.Client != nil
	embeddingAvailable := h.runner.Worker.Embedder != nil
	status := "healthy"
	if !llmAvailable || !embeddingAvailable {
		status = "degraded"
	}
	c.JSON(http.StatusOK, gin.H{
		"status":          status,
		"llm_available":   llmAvailable,
		"embedding_model": embeddingAvailable,
		"engine":          "optimizer",
		"time":            time.Now().UTC(),
	})
}

// Stats handles `GET /stats`.
func (h *OptimizeHandler) Stats(c *gin.Context) {
	stats, err := h.store.Stats(c.Request.Context())
	if err != nil {
		HandleError(c, err)
		return
	}
	Success(c, gin.H{"tasks_by_status": stats})
}

func parseInt(s string) (int, error) {
	n := 0
	for _, r := range s {
		if r < '0' || r > '9' {
			return 0, apperr.BadRequest("not a number: " + s)
		}
		n = n*10 + int(r-'0')
	}
	return n, nil
}
