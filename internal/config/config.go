package config

import (
	"os"
	"strconv"
	"time"
)

// Config is the process-wide application configuration, loaded once at
// startup from environment variables
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Pipeline PipelineConfig
	Log      LogConfig
}

// ServerConfig is the Control API's HTTP listener.
type ServerConfig struct {
	Addr string
}

// DatabaseConfig selects the Task Store's backing driver.
type DatabaseConfig struct {
	Driver   string // sqlite, postgres
	DSN      string
	LogLevel string // silent, error, warn, info
}

// RedisConfig is the job-queue connection (internal/batch).
type RedisConfig struct {
	Enabled         bool
	Addr            string
	Password        string
	DB              int
	PoolSize        int
	ClaimTimeout    time.Duration
	RecoverInterval time.Duration
}

// PipelineConfig carries the batch scheduler and worker runtime knobs.
type PipelineConfig struct {
	BatchSize               int
	MaxWorkers              int
	TaskTimeout             time.Duration
	TaskRetryLimit          int
	RAGRetrievalTopK        int
	RAGConfidenceThreshold  float64
	RAGEnableSelfCorrection bool
}

// LogConfig configures internal/logger.Init.
type LogConfig struct {
	Level  string
	Format string
}

// Default returns the documented defaults applied when an env var is unset.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Addr: "0.0.0.0:8080",
		},
		Database: DatabaseConfig{
			Driver:   "sqlite",
			DSN:      "optimizer.db",
			LogLevel: "warn",
		},
		Redis: RedisConfig{
			Enabled:         true,
			Addr:            "localhost:6379",
			Password:        "",
			DB:              0,
			PoolSize:        10,
			ClaimTimeout:    5 * time.Minute,
			RecoverInterval: 30 * time.Second,
		},
		Pipeline: PipelineConfig{
			BatchSize:               50,
			MaxWorkers:              4,
			TaskTimeout:             1 * time.Hour,
			TaskRetryLimit:          3,
			RAGRetrievalTopK:        5,
			RAGConfidenceThreshold:  0.8,
			RAGEnableSelfCorrection: true,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load returns Default() overridden by any set environment variables.
func Load() *Config {
	cfg := Default()

	if v := os.Getenv("HTTP_ADDR"); v != "" {
		cfg.Server.Addr = v
	}

	if v := os.Getenv("STORE_DRIVER"); v != "" {
		cfg.Database.Driver = v
	}
	if v := os.Getenv("STORE_DSN"); v != "" {
		cfg.Database.DSN = v
	}
	if v := os.Getenv("STORE_LOG_LEVEL"); v != "" {
		cfg.Database.LogLevel = v
	}

	if v := os.Getenv("REDIS_ENABLED"); v != "" {
		cfg.Redis.Enabled = v == "true" || v == "1"
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("REDIS_DB"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Redis.DB = n
		}
	}
	if v := os.Getenv("REDIS_CLAIM_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Redis.ClaimTimeout = d
		}
	}
	if v := os.Getenv("REDIS_RECOVER_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Redis.RecoverInterval = d
		}
	}

	if v := os.Getenv("BATCH_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Pipeline.BatchSize = n
		}
	}
	if v := os.Getenv("MAX_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Pipeline.MaxWorkers = n
		}
	}
	if v := os.Getenv("TASK_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Pipeline.TaskTimeout = d
		}
	}
	if v := os.Getenv("TASK_RETRY_LIMIT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Pipeline.TaskRetryLimit = n
		}
	}
	if v := os.Getenv("RAG_RETRIEVAL_TOP_K"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Pipeline.RAGRetrievalTopK = n
		}
	}
	if v := os.Getenv("RAG_CONFIDENCE_THRESHOLD"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Pipeline.RAGConfidenceThreshold = f
		}
	}
	if v := os.Getenv("RAG_ENABLE_SELF_CORRECTION"); v != "" {
		cfg.Pipeline.RAGEnableSelfCorrection = v == "true" || v == "1"
	}

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		cfg.Log.Format = v
	}

	return cfg
}
