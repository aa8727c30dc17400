package config

import (
	"github.com/personaforge/personaforge/pkg/embedding"
	"github.com/personaforge/personaforge/pkg/generation"
	"github.com/personaforge/personaforge/pkg/logger"
	"github.com/personaforge/personaforge/pkg/metrics"
	"github.com/personaforge/personaforge/pkg/snapshot"
	badgerstore "github.com/personaforge/personaforge/pkg/storage/badger"
	redisstore "github.com/personaforge/personaforge/pkg/storage/redis"
	"github.com/personaforge/personaforge/pkg/telemetry/tracing"
	"github.com/personaforge/personaforge/pkg/turn"
)

// ToLoggerConfig converts LogConfig to pkg/logger.Config.
func (l LogConfig) ToLoggerConfig() *logger.Config {
	return &logger.Config{
		Level:  logger.ParseLevel(l.Level),
		Format: l.Format,
		Output: l.Output,
		File:   l.File,
	}
}

// ToMetricsConfig converts MetricsConfig to pkg/metrics.Config, keeping the
// default histogram buckets.
func (m MetricsConfig) ToMetricsConfig() metrics.Config {
	cfg := metrics.DefaultConfig()
	cfg.Enabled = m.Enabled
	cfg.Port = m.Port
	cfg.Path = m.Path
	return cfg
}

// ToTracingConfig converts TracingConfig to pkg/telemetry/tracing.Config.
func (t TracingConfig) ToTracingConfig() tracing.Config {
	return tracing.Config{
		Enabled:    t.Enabled,
		Endpoint:   t.Endpoint,
		Headers:    t.Headers,
		Timeout:    t.Timeout,
		Sampler:    t.Sampler,
		SampleRate: t.SampleRate,
	}
}

// ToBadgerConfig converts BadgerConfig to pkg/storage/badger.Config.
func (b BadgerConfig) ToBadgerConfig() *badgerstore.Config {
	return &badgerstore.Config{
		Path:              b.Path,
		SyncWrites:        b.SyncWrites,
		ValueLogFileSize:  b.ValueLogFileSize,
		NumVersionsToKeep: b.NumVersionsToKeep,
	}
}

// ToRedisConfig converts RedisConfig to pkg/storage/redis.Config.
func (r RedisConfig) ToRedisConfig() *redisstore.Config {
	return &redisstore.Config{
		Address:      r.Address,
		Password:     r.Password,
		DB:           r.DB,
		KeyPrefix:    r.KeyPrefix,
		DialTimeout:  r.DialTimeout,
		ReadTimeout:  r.ReadTimeout,
		WriteTimeout: r.WriteTimeout,
	}
}

// ToEmbeddingConfig converts EmbeddingConfig to pkg/embedding.Config.
func (e EmbeddingConfig) ToEmbeddingConfig() embedding.Config {
	return embedding.Config{
		Provider:  embedding.ProviderType(e.Provider),
		Model:     e.Model,
		Dimension: e.Dimension,
		ServerURL: e.ServerURL,
		APIKey:    e.APIKey,
		BatchSize: e.BatchSize,
		CacheSize: e.CacheSize,
	}
}

// ToGenerationConfig converts GenerationConfig to pkg/generation.Config.
func (g GenerationConfig) ToGenerationConfig() generation.Config {
	return generation.Config{
		Endpoint:    g.Endpoint,
		MaxTokens:   g.MaxTokens,
		Temperature: g.Temperature,
		Timeout:     g.Timeout,
		RateLimit:   g.RateLimit,
		Burst:       g.Burst,
	}
}

// ToSnapshotConfig converts the snapshot settings of MemoryConfig.
func (m MemoryConfig) ToSnapshotConfig() snapshot.Config {
	return snapshot.Config{
		Workers:     m.SnapshotWorkers,
		TaskTimeout: m.SnapshotTimeout,
	}
}

// TurnConfig assembles the turn handler settings spread over several sections.
func (c *Config) TurnConfig() turn.Config {
	return turn.Config{
		RetrieveK:               c.Index.RetrieveK,
		ContextTurns:            c.Memory.ContextTurns,
		ContextEvents:           c.Memory.ContextEvents,
		FallbackOnUpstreamError: c.Generation.FallbackOnError,
		FallbackResponse:        c.Generation.FallbackResponse,
		CleanResponses:          c.Generation.CleanResponses,
	}
}
