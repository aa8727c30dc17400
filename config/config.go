// Package config provides configuration management for PersonaForge.
package config

import (
	"fmt"
	"time"
)

// Config is the global configuration for PersonaForge.
type Config struct {
	// App is the application configuration.
	App AppConfig `mapstructure:"app" validate:"required"`

	// Server is the HTTP API configuration.
	Server ServerConfig `mapstructure:"server" validate:"required"`

	// Log is the logging configuration.
	Log LogConfig `mapstructure:"log" validate:"required"`

	// Storage selects where personas and memory snapshots are kept.
	Storage StorageConfig `mapstructure:"storage"`

	// Index is the vector index configuration.
	Index IndexConfig `mapstructure:"index"`

	// Embedding is the embedding provider configuration.
	Embedding EmbeddingConfig `mapstructure:"embedding"`

	// Generation is the text generation service configuration.
	Generation GenerationConfig `mapstructure:"generation"`

	// Memory bounds conversation history and event logs.
	Memory MemoryConfig `mapstructure:"memory"`

	// Metrics is the Prometheus configuration.
	Metrics MetricsConfig `mapstructure:"metrics"`

	// Tracing is the OpenTelemetry configuration.
	Tracing TracingConfig `mapstructure:"tracing"`
}

// AppConfig holds application metadata and settings.
type AppConfig struct {
	// Name is the application name.
	Name string `mapstructure:"name" validate:"required"`

	// Version is the application version.
	Version string `mapstructure:"version"`

	// Environment is the runtime environment (development, staging, production).
	Environment string `mapstructure:"environment" validate:"env"`

	// Debug enables debug mode with verbose logging.
	Debug bool `mapstructure:"debug"`
}

// ServerConfig holds the HTTP server configuration.
type ServerConfig struct {
	// Host is the bind address.
	Host string `mapstructure:"host" validate:"host"`

	// Port is the HTTP API port.
	Port int `mapstructure:"port" validate:"required,min=1,max=65535"`

	// HTTP holds timeouts and limits.
	HTTP HTTPConfig `mapstructure:"http"`

	// CORS is the CORS configuration.
	CORS CORSConfig `mapstructure:"cors"`
}

// HTTPConfig holds HTTP-specific settings.
type HTTPConfig struct {
	// ReadTimeout is the maximum duration for reading the entire request.
	ReadTimeout time.Duration `mapstructure:"read_timeout"`

	// WriteTimeout is the maximum duration before timing out writes.
	WriteTimeout time.Duration `mapstructure:"write_timeout"`

	// IdleTimeout is the maximum amount of time to wait for the next request.
	IdleTimeout time.Duration `mapstructure:"idle_timeout"`

	// RequestTimeout bounds a single request inside the router.
	RequestTimeout time.Duration `mapstructure:"request_timeout"`

	// ShutdownTimeout is the maximum duration to wait for graceful shutdown.
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`

	// MaxHeaderBytes limits the size of request headers.
	MaxHeaderBytes int `mapstructure:"max_header_bytes"`
}

// CORSConfig holds CORS settings.
type CORSConfig struct {
	Enabled          bool     `mapstructure:"enabled"`
	AllowedOrigins   []string `mapstructure:"allowed_origins"`
	AllowedMethods   []string `mapstructure:"allowed_methods"`
	AllowedHeaders   []string `mapstructure:"allowed_headers"`
	AllowCredentials bool     `mapstructure:"allow_credentials"`

	// MaxAge is the maximum age of CORS preflight cache in seconds.
	MaxAge int `mapstructure:"max_age" validate:"min=0"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	// Level is the log level (debug, info, warn, error).
	Level string `mapstructure:"level" validate:"oneof=debug info warn error"`

	// Format is the output format (json, text).
	Format string `mapstructure:"format" validate:"oneof=json text"`

	// Output is the output destination (stdout, stderr, or file path).
	Output string `mapstructure:"output"`

	// File receives a JSON copy of every record when set.
	File string `mapstructure:"file"`
}

// StorageConfig holds persistence settings.
type StorageConfig struct {
	// Type is the backend (memory, badger, redis).
	Type string `mapstructure:"type" validate:"oneof=memory badger redis"`

	// Badger is used when Type is badger.
	Badger BadgerConfig `mapstructure:"badger"`

	// Redis is used when Type is redis.
	Redis RedisConfig `mapstructure:"redis"`
}

// BadgerConfig holds BadgerDB-specific settings.
type BadgerConfig struct {
	// Path is the database directory path.
	Path string `mapstructure:"path"`

	// SyncWrites enables synchronous writes for durability.
	SyncWrites bool `mapstructure:"sync_writes"`

	// ValueLogFileSize is the maximum size of value log files in bytes.
	ValueLogFileSize int64 `mapstructure:"value_log_file_size" validate:"min=0"`

	// NumVersionsToKeep is the number of versions to keep per key.
	NumVersionsToKeep int `mapstructure:"num_versions_to_keep" validate:"min=0"`
}

// RedisConfig holds Redis-specific settings.
type RedisConfig struct {
	Address      string        `mapstructure:"address"`
	Password     string        `mapstructure:"password"`
	DB           int           `mapstructure:"db" validate:"min=0"`
	KeyPrefix    string        `mapstructure:"key_prefix"`
	DialTimeout  time.Duration `mapstructure:"dial_timeout"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// IndexConfig holds vector index settings.
type IndexConfig struct {
	// Dir is the root directory holding one subdirectory per collection.
	Dir string `mapstructure:"dir" validate:"required"`

	// DefaultK is the number of chunks returned when a caller asks for none.
	DefaultK int `mapstructure:"default_k" validate:"min=1"`

	// RetrieveK is the number of background chunks fetched per turn.
	RetrieveK int `mapstructure:"retrieve_k" validate:"min=1"`
}

// EmbeddingConfig holds embedding provider settings.
type EmbeddingConfig struct {
	// Provider is hash, ollama or openai.
	Provider string `mapstructure:"provider" validate:"oneof=hash ollama openai"`

	Model     string `mapstructure:"model"`
	Dimension int    `mapstructure:"dimension" validate:"min=1"`
	ServerURL string `mapstructure:"server_url"`
	APIKey    string `mapstructure:"api_key"`
	BatchSize int    `mapstructure:"batch_size" validate:"min=0"`

	// CacheSize is the number of query embeddings kept in memory; 0 disables.
	CacheSize int `mapstructure:"cache_size" validate:"min=0"`
}

// GenerationConfig holds text generation settings.
type GenerationConfig struct {
	// Endpoint is the URL prompts are posted to.
	Endpoint string `mapstructure:"endpoint" validate:"required,url"`

	MaxTokens   int           `mapstructure:"max_tokens" validate:"min=1"`
	Temperature float64       `mapstructure:"temperature" validate:"min=0,max=2"`
	Timeout     time.Duration `mapstructure:"timeout"`

	// RateLimit is requests per second; 0 disables limiting.
	RateLimit float64 `mapstructure:"rate_limit" validate:"min=0"`
	Burst     int     `mapstructure:"burst" validate:"min=0"`

	// FallbackOnError answers with FallbackResponse when the service is down.
	FallbackOnError  bool   `mapstructure:"fallback_on_error"`
	FallbackResponse string `mapstructure:"fallback_response"`

	// CleanResponses strips prompt echoes from generated replies.
	CleanResponses bool `mapstructure:"clean_responses"`
}

// MemoryConfig bounds per-persona memory.
type MemoryConfig struct {
	MaxHistory    int `mapstructure:"max_history" validate:"min=1"`
	MaxEvents     int `mapstructure:"max_events" validate:"min=1"`
	ContextTurns  int `mapstructure:"context_turns" validate:"min=0"`
	ContextEvents int `mapstructure:"context_events" validate:"min=0"`

	// SnapshotWorkers is the number of background snapshot writers. Zero
	// persists inline before the turn returns.
	SnapshotWorkers int           `mapstructure:"snapshot_workers" validate:"min=0"`
	SnapshotTimeout time.Duration `mapstructure:"snapshot_timeout"`
}

// MetricsConfig holds Prometheus settings.
type MetricsConfig struct {
	// Enabled enables metrics collection.
	Enabled bool `mapstructure:"enabled"`

	// Port is the metrics server port.
	Port int `mapstructure:"port" validate:"min=1,max=65535"`

	// Path is the metrics endpoint path.
	Path string `mapstructure:"path"`
}

// TracingConfig holds OpenTelemetry settings.
type TracingConfig struct {
	// Enabled enables distributed tracing.
	Enabled bool `mapstructure:"enabled"`

	// Endpoint is the OTLP gRPC collector endpoint.
	Endpoint string `mapstructure:"endpoint"`

	// Headers are sent with every export request.
	Headers map[string]string `mapstructure:"headers"`

	// Timeout bounds one export call.
	Timeout time.Duration `mapstructure:"timeout"`

	// Sampler is always_on, always_off or ratio.
	Sampler string `mapstructure:"sampler" validate:"oneof=always_on always_off ratio"`

	// SampleRate is the fraction of traces to sample (0.0-1.0).
	SampleRate float64 `mapstructure:"sample_rate" validate:"min=0,max=1"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}
	return nil
}

// String returns a string representation of the configuration (without sensitive data).
func (c *Config) String() string {
	return fmt.Sprintf("Config{App: %s, Server: %s:%d, Env: %s, Storage: %s, Embedding: %s}",
		c.App.Name, c.Server.Host, c.Server.Port, c.App.Environment, c.Storage.Type, c.Embedding.Provider)
}
