package config

import (
	"time"

	"github.com/personaforge/personaforge/pkg/embedding"
	"github.com/personaforge/personaforge/pkg/generation"
	"github.com/personaforge/personaforge/pkg/memory"
	"github.com/personaforge/personaforge/pkg/retriever"
	"github.com/personaforge/personaforge/pkg/turn"
)

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		App: AppConfig{
			Name:        "personaforge",
			Version:     "dev",
			Environment: "development",
			Debug:       false,
		},
		Server: ServerConfig{
			Host: "0.0.0.0",
			Port: 8080,
			HTTP: HTTPConfig{
				ReadTimeout:     30 * time.Second,
				WriteTimeout:    60 * time.Second,
				IdleTimeout:     120 * time.Second,
				RequestTimeout:  45 * time.Second,
				ShutdownTimeout: 15 * time.Second,
				MaxHeaderBytes:  1 << 20, // 1MB
			},
			CORS: CORSConfig{
				Enabled:        false,
				AllowedOrigins: []string{"http://localhost:3000"},
				AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
				AllowedHeaders: []string{"Content-Type", "Authorization", "X-Request-ID"},
				MaxAge:         300,
			},
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		Storage: StorageConfig{
			Type: "memory",
			Badger: BadgerConfig{
				Path:              "./data/badger",
				SyncWrites:        false,
				ValueLogFileSize:  64 << 20,
				NumVersionsToKeep: 1,
			},
			Redis: RedisConfig{
				Address:      "localhost:6379",
				KeyPrefix:    "personaforge:",
				DialTimeout:  2 * time.Second,
				ReadTimeout:  time.Second,
				WriteTimeout: time.Second,
			},
		},
		Index: IndexConfig{
			Dir:       "./data/index",
			DefaultK:  retriever.DefaultK,
			RetrieveK: turn.DefaultRetrieveK,
		},
		Embedding: EmbeddingConfig{
			Provider:  string(embedding.ProviderHash),
			Dimension: embedding.DefaultHashDimension,
			BatchSize: 32,
			CacheSize: 1000,
		},
		Generation: GenerationConfig{
			Endpoint:         "http://localhost:8000/generate",
			MaxTokens:        generation.DefaultMaxTokens,
			Temperature:      generation.DefaultTemperature,
			Timeout:          generation.DefaultTimeout,
			FallbackOnError:  false,
			FallbackResponse: turn.DefaultFallbackResponse,
			CleanResponses:   true,
		},
		Memory: MemoryConfig{
			MaxHistory:      memory.DefaultMaxHistory,
			MaxEvents:       memory.DefaultMaxEvents,
			ContextTurns:    memory.DefaultContextTurns,
			ContextEvents:   memory.DefaultContextEvents,
			SnapshotWorkers: 2,
			SnapshotTimeout: 10 * time.Second,
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
			Port:    9091,
		},
		Tracing: TracingConfig{
			Enabled:    false,
			Endpoint:   "localhost:4317",
			Timeout:    5 * time.Second,
			Sampler:    "ratio",
			SampleRate: 0.1,
		},
	}
}
