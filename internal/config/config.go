package config

import "time"

// Config holds all application configuration.
// It organizes settings into logical groups for better maintainability.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"   validate:"required"`
	Database DatabaseConfig `mapstructure:"database" validate:"required"`
	Queue    QueueConfig    `mapstructure:"queue"    validate:"required"`
	Library  LibraryConfig  `mapstructure:"library"`
	Batch    BatchConfig    `mapstructure:"batch"`
}

// ServerConfig contains the settings for the local HTTP surface.
type ServerConfig struct {
	Port     int    `mapstructure:"port"      validate:"required,gt=0,lt=65536"`
	LogLevel string `mapstructure:"log_level" validate:"required,oneof=debug info warn error"`
}

// DatabaseConfig locates the embedded task database file.
// An empty Path selects the per-user default location.
type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

// QueueConfig contains the background task queue settings.
type QueueConfig struct {
	// MaxConcurrent is the ceiling on simultaneously running handlers.
	MaxConcurrent int `mapstructure:"max_concurrent" validate:"required,gte=1"`

	// DefaultMaxRetries applies to tasks enqueued without an explicit budget.
	DefaultMaxRetries int `mapstructure:"default_max_retries" validate:"gte=0"`

	// DefaultRetryDelay is the wait before a failed task becomes eligible again.
	DefaultRetryDelay time.Duration `mapstructure:"default_retry_delay" validate:"gte=0"`

	// ReapInterval is how often the reaper sweeps the task table.
	ReapInterval time.Duration `mapstructure:"reap_interval" validate:"required,gt=0"`

	// Retention is how long completed and cancelled rows are kept.
	Retention time.Duration `mapstructure:"retention" validate:"required,gt=0"`

	// StaleAge is how long a task may sit in the running state before
	// the reaper presumes its owner crashed and requeues it.
	StaleAge time.Duration `mapstructure:"stale_age" validate:"required,gt=0"`
}

// LibraryConfig contains the music library scan settings.
type LibraryConfig struct {
	Roots      []string `mapstructure:"roots"`
	Extensions []string `mapstructure:"extensions"`
}

// BatchConfig contains the chunked batch processor settings.
type BatchConfig struct {
	ChunkSize int `mapstructure:"chunk_size" validate:"gte=1"`
	Workers   int `mapstructure:"workers"    validate:"gte=1"`
}
