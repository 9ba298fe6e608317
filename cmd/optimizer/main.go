// @title Data Optimization Pipeline API
// @version 1.0
// @description Distributed dataset diagnosis, optimization, generation and verification service.
// @description
// @description ## Overview
// @description Submits a QA dataset for a five-stage pipeline run (diagnose, optimize,
// @description generate, verify, redact) and exposes its progress and results.

// @contact.name Data Platform Team

// @license.name Apache 2.0
// @license.url http://www.apache.org/licenses/LICENSE-2.0.html

// @host localhost:8080
// @BasePath /

// @tag.name Optimize
// @tag.description Dataset optimization task submission and inspection

// @tag.name Tasks
// @tag.description Task listing and lifecycle management

// @tag.name System
// @tag.description Health and aggregate statistics

package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"

	"github.com/tmalldedede/agentbox/internal/api"
	"github.com/tmalldedede/agentbox/internal/batch"
	"github.com/tmalldedede/agentbox/internal/config"
	"github.com/tmalldedede/agentbox/internal/database"
	"github.com/tmalldedede/agentbox/internal/logger"
	"github.com/tmalldedede/agentbox/internal/model"
	"github.com/tmalldedede/agentbox/internal/pipeline"
	"github.com/tmalldedede/agentbox/internal/task"
)

const (
	version = "0.1.0"
	banner  = `
  ___        _   _           _
 / _ \ _ __ | |_(_)_ __ ___ (_)_______ _ __
| | | | '_ \| __| | '_ ' _ \| |_  / _ \ '__|
| |_| | |_) | |_| | | | | | | |/ /  __/ |
 \___/| .__/ \__|_|_| |_| |_|_/___\___|_|
      |_|
`
)

func main() {
	fmt.Print(banner)
	fmt.Printf("Data Optimization Pipeline v%s\n", version)
	fmt.Println()

	cfg := config.Load()

	logger.Init(&logger.Config{Level: cfg.Log.Level, Format: cfg.Log.Format})

	if err := database.Initialize(database.Config{
		Driver:   cfg.Database.Driver,
		DSN:      cfg.Database.DSN,
		LogLevel: cfg.Database.LogLevel,
	}); err != nil {
		log.Fatalf("failed to initialize database: %v", err)
	}
	defer database.Close()

	store := task.NewGormStore(database.GetDB())

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
		PoolSize: cfg.Redis.PoolSize,
	})
	defer rdb.Close()

	queue := batch.NewQueue(rdb, cfg.Redis.ClaimTimeout)

	openaiCfg := model.OpenAIConfig{
		APIKey:  os.Getenv("OPENAI_API_KEY"),
		BaseURL: os.Getenv("OPENAI_BASE_URL"),
		Model:   os.Getenv("OPENAI_MODEL"),
	}
	client := model.NewOpenAIClient(openaiCfg)
	rateLimited := client.RateLimited(2, 4)
	retrying := model.NewRetryingClient(rateLimited, cfg.Pipeline.TaskRetryLimit)
	embedder := model.NewOpenAIEmbedder(openaiCfg)

	index, err := model.NewBleveIndex()
	if err != nil {
		log.Fatalf("failed to build knowledge index: %v", err)
	}

	redactor := model.NewRegexRedactor()

	workerCtx := &pipeline.WorkerContext{
		Client:   retrying,
		Embedder: embedder,
		Index:    index,
		Redactor: redactor,
	}

	pipelineOpts := pipeline.Options{
		BatchSize:            cfg.Pipeline.BatchSize,
		RetryLimit:           cfg.Pipeline.TaskRetryLimit,
		TopK:                 cfg.Pipeline.RAGRetrievalTopK,
		ConfidenceThreshold:  cfg.Pipeline.RAGConfidenceThreshold,
		EnableSelfCorrection: cfg.Pipeline.RAGEnableSelfCorrection,
	}
	runner := pipeline.NewRunner(store, workerCtx, pipelineOpts, batch.Weigher)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.Redis.Enabled {
		runtime := batch.NewRuntime(queue, store, runner, cfg.Pipeline.MaxWorkers, cfg.Pipeline.TaskTimeout)
		runtime.Start(ctx)
		log.Printf("worker runtime started with %d workers", cfg.Pipeline.MaxWorkers)
	} else {
		log.Println("REDIS_ENABLED=false: worker runtime disabled, only submit_sync is usable")
	}

	handler := api.NewOptimizeHandler(store, queue, runner, pipelineOpts)
	router := api.NewRouter(handler)

	log.Printf("starting server on %s", cfg.Server.Addr)
	log.Println()
	log.Println("  POST   /optimize                    - submit a task")
	log.Println("  POST   /optimize/sync                - run a small task inline")
	log.Println("  GET    /optimize/{task_id}           - get task status")
	log.Println("  GET    /tasks                        - list tasks")
	log.Println("  GET    /tasks/{task_id}/dataset      - get per-batch results")
	log.Println("  POST   /tasks/{task_id}/resume       - resume an interrupted task")
	log.Println("  DELETE /tasks/{task_id}               - delete a task")
	log.Println("  POST   /knowledge-base/load           - load retrieval documents")
	log.Println("  GET    /health                        - health check")
	log.Println("  GET    /stats                         - aggregate task counts")
	log.Println()

	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		log.Println("shutting down...")
		cancel()
		os.Exit(0)
	}()

	if err := router.Run(cfg.Server.Addr); err != nil {
		log.Fatalf("failed to start server: %v", err)
	}
}
