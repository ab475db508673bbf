package config

import (
	"time"

	redisclient "github.com/vietddude/analyzer/internal/infra/redis"
	"github.com/vietddude/analyzer/internal/infra/storage/postgres"
)

// AppConfig represents the top-level configuration.
type AppConfig struct {
	Server    ServerConfig             `yaml:"server"`
	Upstream  UpstreamConfig           `yaml:"upstream"`
	Content   ContentConfig            `yaml:"content"`
	Retry     map[string]RetryOverride `yaml:"retry"`
	Retention time.Duration            `yaml:"retention"`
	Logging   LoggingConfig            `yaml:"logging"`
	Redis     redisclient.Config       `yaml:"redis"`
	Database  postgres.Config          `yaml:"database"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port int `yaml:"port"`
}

// UpstreamConfig holds inference service settings. The call timeout lives
// here, with the transport; the orchestrator only reacts to the resulting
// signal.
type UpstreamConfig struct {
	Name      string        `yaml:"name"`
	URL       string        `yaml:"url"`
	Transport string        `yaml:"transport"` // http, grpc
	Timeout   time.Duration `yaml:"timeout"`
}

// ContentConfig holds the admission limits for submitted content.
type ContentConfig struct {
	MaxSizeBytes int64    `yaml:"max_size_bytes"`
	AllowedTypes []string `yaml:"allowed_types"`
}

// RetryOverride adjusts one error kind's retry policy. Missing fields keep
// the shipped defaults; the merged table is still validated at startup.
type RetryOverride struct {
	Retryable   *bool `yaml:"retryable"`
	AutoRetry   *bool `yaml:"auto_retry"`
	BaseDelayMs *int  `yaml:"base_delay_ms"`
	MaxAttempts *int  `yaml:"max_attempts"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, text
}
