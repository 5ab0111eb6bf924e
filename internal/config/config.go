// Package config defines and loads all application configuration.
package config

import "time"

// Config holds all application configuration.
// It organizes settings into logical groups for better maintainability.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"   validate:"required"`
	Database DatabaseConfig `mapstructure:"database" validate:"required"`
	Storage  StorageConfig  `mapstructure:"storage"  validate:"required"`
	Queue    QueueConfig    `mapstructure:"queue"    validate:"required"`
	LLM      LLMConfig      `mapstructure:"llm"      validate:"required"`
	Pipeline PipelineConfig `mapstructure:"pipeline" validate:"required"`
	Worker   WorkerConfig   `mapstructure:"worker"   validate:"required"`
	Quota    QuotaConfig    `mapstructure:"quota"    validate:"required"`
}

// ServerConfig contains process-level settings shared by all entrypoints.
// Port is only read by the API server binary.
type ServerConfig struct {
	Port     int    `mapstructure:"port"      validate:"required,gte=1,lte=65535"`
	LogLevel string `mapstructure:"log_level" validate:"required,oneof=debug info warn error"`
}

// DatabaseConfig contains all database-related configuration settings.
type DatabaseConfig struct {
	URL string `mapstructure:"url" validate:"required"`
}

// StorageConfig contains object storage settings. Source documents and
// packaged decks live in separate buckets, mirroring their lifecycles.
type StorageConfig struct {
	SourceBucket string        `mapstructure:"source_bucket" validate:"required"`
	DeckBucket   string        `mapstructure:"deck_bucket"   validate:"required"`
	URLTTL       time.Duration `mapstructure:"url_ttl"       validate:"required"`
}

// QueueConfig contains settings for the durable task queue.
type QueueConfig struct {
	RedisAddr string `mapstructure:"redis_addr" validate:"required"`
	Stream    string `mapstructure:"stream"     validate:"required"`
	Group     string `mapstructure:"group"      validate:"required"`

	// MaxDeliveries bounds queue-level redelivery of one task. Independent
	// of the domain-level retry budget on the job record.
	MaxDeliveries int `mapstructure:"max_deliveries" validate:"required,gte=1"`

	// RedeliveryMinIdle is the base idle time before an unacked delivery is
	// claimed by another worker. Actual redelivery delay grows exponentially
	// with the delivery count, with jitter.
	RedeliveryMinIdle time.Duration `mapstructure:"redelivery_min_idle" validate:"required"`
}

// LLMConfig contains all generative-service integration settings.
type LLMConfig struct {
	GeminiAPIKey      string `mapstructure:"gemini_api_key" validate:"required"`
	ModelName         string `mapstructure:"model_name"     validate:"required"`
	MaxRetries        int    `mapstructure:"max_retries"        validate:"gte=0"`
	RetryDelaySeconds int    `mapstructure:"retry_delay_seconds" validate:"gte=1"`
}

// PipelineConfig contains stage tuning for the conversion pipeline.
type PipelineConfig struct {
	ChunkSize    int `mapstructure:"chunk_size"    validate:"required,gte=100"`
	ChunkOverlap int `mapstructure:"chunk_overlap" validate:"gte=0"`

	// Concurrency bounds the fan-out of per-chunk and per-question
	// generative-service calls within one job. Sized against the external
	// service's rate limits, not against local CPU.
	Concurrency int `mapstructure:"concurrency" validate:"required,gte=1"`
}

// WorkerConfig contains settings for the background worker pool.
type WorkerConfig struct {
	Count int `mapstructure:"count" validate:"required,gte=1"`

	// MaxTasksPerWorker retires a worker goroutine after it has processed
	// this many deliveries; a fresh one replaces it. Contains memory growth
	// over long-running processes.
	MaxTasksPerWorker int `mapstructure:"max_tasks_per_worker" validate:"required,gte=1"`

	// SoftTimeLimit requests graceful abort of a run; HardTimeLimit
	// forcibly terminates it.
	SoftTimeLimit time.Duration `mapstructure:"soft_time_limit" validate:"required"`
	HardTimeLimit time.Duration `mapstructure:"hard_time_limit" validate:"required,gtefield=SoftTimeLimit"`
}

// QuotaConfig bounds per-owner generation volume.
type QuotaConfig struct {
	MonthlyCardLimit int `mapstructure:"monthly_card_limit" validate:"required,gte=1"`
}
