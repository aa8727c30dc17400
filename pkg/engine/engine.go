// Package engine owns the PersonaForge runtime: it builds every component
// from configuration, restores persisted memory on start and drains
// pending snapshots on stop.
package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/personaforge/personaforge/config"
	"github.com/personaforge/personaforge/pkg/embedding"
	"github.com/personaforge/personaforge/pkg/generation"
	"github.com/personaforge/personaforge/pkg/logger"
	"github.com/personaforge/personaforge/pkg/memory"
	"github.com/personaforge/personaforge/pkg/metrics"
	"github.com/personaforge/personaforge/pkg/persona"
	"github.com/personaforge/personaforge/pkg/retriever"
	"github.com/personaforge/personaforge/pkg/snapshot"
	"github.com/personaforge/personaforge/pkg/storage"
	badgerstore "github.com/personaforge/personaforge/pkg/storage/badger"
	memorystore "github.com/personaforge/personaforge/pkg/storage/memory"
	redisstore "github.com/personaforge/personaforge/pkg/storage/redis"
	"github.com/personaforge/personaforge/pkg/telemetry/tracing"
	"github.com/personaforge/personaforge/pkg/turn"
	"github.com/personaforge/personaforge/pkg/vectorindex"
	"github.com/personaforge/personaforge/pkg/version"
	"go.opentelemetry.io/otel/attribute"
)

// Component names reported by Status.
const (
	ComponentStorage    = "storage"
	ComponentIndex      = "index"
	ComponentMemory     = "memory"
	ComponentSnapshots  = "snapshots"
	ComponentGeneration = "generation"
)

// State represents the current state of the engine.
type State int

const (
	StateIdle State = iota
	StateRunning
	StateStopped
	StateError
)

// String returns the string representation of State.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateStopped:
		return "stopped"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

// MarshalText lets State render by name in JSON.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Engine wires the turn handler, retriever and stores together.
type Engine struct {
	cfg    *config.Config
	logger logger.Logger

	mu        sync.RWMutex
	state     State
	startedAt time.Time

	kv        storage.KV
	index     *vectorindex.Store
	embedder  embedding.Embedder
	retriever *retriever.Retriever
	generator generation.Generator
	personas  *persona.Store
	memory    *memory.ConversationMemory
	events    *memory.EventLog
	snapshots *snapshot.Writer
	turns     *turn.Handler
	metrics   *metrics.Manager

	components *ComponentTracker
}

// Status is the detailed runtime view served on /status.
type Status struct {
	Name               string            `json:"name"`
	Version            string            `json:"version"`
	State              State             `json:"state"`
	StartedAt          time.Time         `json:"started_at,omitzero"`
	Uptime             string            `json:"uptime,omitempty"`
	StorageType        string            `json:"storage_type"`
	Collections        []string          `json:"collections"`
	SnapshotQueue      int               `json:"snapshot_queue"`
	SnapshotsProcessed int64             `json:"snapshots_processed"`
	SnapshotsFailed    int64             `json:"snapshots_failed"`
	Components         []ComponentStatus `json:"components"`
	// EmbeddingCache is set when query embeddings are cached.
	EmbeddingCache *CacheStatus `json:"embedding_cache,omitempty"`
}

// CacheStatus reports the query embedding cache.
type CacheStatus struct {
	HitRate float64 `json:"hit_rate"`
	Lookups int64   `json:"lookups"`
}

// New builds every component described by cfg. Options may replace the
// storage backend, embedder, generator or metrics manager.
func New(cfg *config.Config, log logger.Logger, opts ...Option) (*Engine, error) {
	if cfg == nil {
		return nil, fmt.Errorf("engine: config is required")
	}
	if log == nil {
		log = logger.Global()
	}

	e := &Engine{
		cfg:        cfg,
		logger:     log.With("component", "engine"),
		state:      StateIdle,
		components: newComponentTracker(),
	}
	e.components.Init([]string{ComponentStorage, ComponentIndex, ComponentMemory, ComponentSnapshots, ComponentGeneration})

	for _, opt := range opts {
		opt(e)
	}
	if e.metrics == nil {
		e.metrics = metrics.NoOpManager()
	}

	if e.kv == nil {
		kv, err := openStorage(cfg.Storage)
		if err != nil {
			return nil, &ComponentInitError{Component: ComponentStorage, Cause: err}
		}
		e.kv = kv
	}

	if err := e.build(log); err != nil {
		_ = e.kv.Close()
		return nil, err
	}
	return e, nil
}

func (e *Engine) build(log logger.Logger) error {
	cfg := e.cfg

	if e.embedder == nil {
		em, err := embedding.New(cfg.Embedding.ToEmbeddingConfig())
		if err != nil {
			return &ComponentInitError{Component: "embedding", Cause: err}
		}
		e.embedder = em
	}

	e.index = vectorindex.NewStore(cfg.Index.Dir, log)
	e.retriever = retriever.New(e.embedder, e.index,
		retriever.WithDefaultK(cfg.Index.DefaultK),
		retriever.WithBatchSize(cfg.Embedding.BatchSize),
		retriever.WithMetrics(e.metrics),
		retriever.WithLogger(log),
	)

	if e.generator == nil {
		gen, err := generation.NewHTTPClient(cfg.Generation.ToGenerationConfig(), generation.WithMetrics(e.metrics))
		if err != nil {
			return &ComponentInitError{Component: ComponentGeneration, Cause: err}
		}
		e.generator = gen
	}

	store := memory.NewStore(e.kv)
	clock := memory.NewClock()
	e.memory = memory.NewConversationMemory(cfg.Memory.MaxHistory, memory.WithClock(clock), memory.WithStore(store))
	e.events = memory.NewEventLog(cfg.Memory.MaxEvents, memory.WithClock(clock), memory.WithStore(store))
	e.personas = persona.NewStore(e.kv)

	// Zero workers persists snapshots inline at the end of each turn.
	if cfg.Memory.SnapshotWorkers > 0 {
		e.snapshots = snapshot.NewWriter(cfg.Memory.ToSnapshotConfig(),
			snapshot.WithLogger(log.With("component", "snapshot")),
			snapshot.WithMetrics(e.metrics),
		)
	}

	turns, err := turn.New(cfg.TurnConfig(), turn.Dependencies{
		Personas:  e.personas,
		Retriever: e.retriever,
		Generator: e.generator,
		Memory:    e.memory,
		Events:    e.events,
		Snapshots: e.snapshots,
		Metrics:   e.metrics,
		Logger:    log,
	})
	if err != nil {
		return &ComponentInitError{Component: "turn", Cause: err}
	}
	e.turns = turns
	return nil
}

// openStorage opens the backend selected by cfg.Type.
func openStorage(cfg config.StorageConfig) (storage.KV, error) {
	switch cfg.Type {
	case "memory", "":
		return memorystore.NewMemoryStorage(), nil
	case "badger":
		return badgerstore.NewBadgerStorage(cfg.Badger.ToBadgerConfig())
	case "redis":
		ctx := context.Background()
		if cfg.Redis.DialTimeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, cfg.Redis.DialTimeout)
			defer cancel()
		}
		return redisstore.NewRedisStorage(ctx, cfg.Redis.ToRedisConfig())
	default:
		return nil, fmt.Errorf("unknown storage type %q", cfg.Type)
	}
}

// Start restores persisted conversation windows and event logs and starts
// the snapshot workers.
func (e *Engine) Start(ctx context.Context) (err error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	switch e.state {
	case StateRunning:
		return &EngineAlreadyRunningError{}
	case StateStopped:
		return fmt.Errorf("engine: cannot restart a stopped engine")
	}

	ctx, span := runtimeTracer().Start(ctx, spanEngineStart)
	span.SetAttributes(attribute.String("storage.type", e.cfg.Storage.Type))
	defer func() { tracing.End(span, err) }()

	e.components.Set(ComponentStorage, ComponentReady, e.cfg.Storage.Type)
	e.components.Set(ComponentGeneration, ComponentReady, "")

	if err := e.restore(ctx); err != nil {
		e.state = StateError
		e.components.Set(ComponentMemory, ComponentFailed, err.Error())
		return fmt.Errorf("engine: restore memory: %w", err)
	}

	collections, err := e.index.Collections()
	if err != nil {
		e.logger.WarnContext(ctx, "cannot list indexed collections", "dir", e.cfg.Index.Dir, "error", err)
		e.components.Set(ComponentIndex, ComponentDegraded, err.Error())
	} else {
		e.components.Set(ComponentIndex, ComponentReady, fmt.Sprintf("%d collections", len(collections)))
	}

	if e.snapshots != nil {
		e.snapshots.Start()
		e.components.Set(ComponentSnapshots, ComponentReady, fmt.Sprintf("%d workers", e.cfg.Memory.SnapshotWorkers))
	} else {
		e.components.Set(ComponentSnapshots, ComponentReady, "inline")
	}

	e.state = StateRunning
	e.startedAt = time.Now()
	e.logger.InfoContext(ctx, "engine started",
		"storage", e.cfg.Storage.Type,
		"index_dir", e.cfg.Index.Dir,
		"collections", len(collections),
	)
	return nil
}

func (e *Engine) restore(ctx context.Context) (err error) {
	ctx, span := runtimeTracer().Start(ctx, spanEngineRestore)
	defer func() { tracing.End(span, err) }()

	windows, err := e.memory.LoadAll(ctx)
	if err != nil {
		return err
	}
	logs, err := e.events.LoadAll(ctx)
	if err != nil {
		return err
	}
	span.SetAttributes(
		attribute.Int("memory.windows", windows),
		attribute.Int("memory.event_logs", logs),
	)
	e.components.Set(ComponentMemory, ComponentReady, fmt.Sprintf("%d windows, %d event logs", windows, logs))
	e.logger.InfoContext(ctx, "memory restored", "windows", windows, "event_logs", logs)
	return nil
}

// Stop drains pending snapshots and closes the storage backend.
func (e *Engine) Stop(ctx context.Context) (err error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state != StateRunning && e.state != StateError {
		return nil
	}

	ctx, span := runtimeTracer().Start(ctx, spanEngineStop)
	defer func() { tracing.End(span, err) }()

	var firstErr error
	if e.snapshots != nil {
		if err := e.snapshots.Close(ctx); err != nil {
			e.logger.ErrorContext(ctx, "snapshot writer did not drain", "pending", e.snapshots.Pending(), "error", err)
			firstErr = err
		}
	}
	if err := e.kv.Close(); err != nil {
		e.logger.ErrorContext(ctx, "failed to close storage", "error", err)
		if firstErr == nil {
			firstErr = err
		}
	}

	e.state = StateStopped
	_, processed, failed := e.snapshotCounts()
	e.logger.InfoContext(ctx, "engine stopped",
		"snapshots_processed", processed,
		"snapshots_failed", failed,
	)
	return firstErr
}

// State returns the current state of the engine.
func (e *Engine) State() State {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.state
}

// IsHealthy reports whether the process should be kept alive.
func (e *Engine) IsHealthy() bool {
	s := e.State()
	return s == StateIdle || s == StateRunning
}

// IsReady reports whether the engine can serve turns.
func (e *Engine) IsReady() bool {
	return e.State() == StateRunning && !e.components.AnyFailed()
}

// GetStatus returns the detailed runtime status.
// snapshotCounts reports the writer's queue and totals, zero when inline.
func (e *Engine) snapshotCounts() (pending int, processed, failed int64) {
	if e.snapshots == nil {
		return 0, 0, 0
	}
	return e.snapshots.Pending(), e.snapshots.TasksProcessed(), e.snapshots.TasksFailed()
}

func (e *Engine) GetStatus() Status {
	e.mu.RLock()
	state, startedAt := e.state, e.startedAt
	e.mu.RUnlock()

	collections, err := e.index.Collections()
	if err != nil {
		collections = []string{}
	}
	pending, processed, failed := e.snapshotCounts()
	st := Status{
		Name:               e.cfg.App.Name,
		Version:            version.Version,
		State:              state,
		StorageType:        e.cfg.Storage.Type,
		Collections:        collections,
		SnapshotQueue:      pending,
		SnapshotsProcessed: processed,
		SnapshotsFailed:    failed,
		Components:         e.components.All(),
	}
	if c, ok := e.embedder.(*embedding.Cached); ok {
		rate, total := c.HitRate()
		st.EmbeddingCache = &CacheStatus{HitRate: rate, Lookups: total}
	}
	if state == StateRunning {
		st.StartedAt = startedAt
		st.Uptime = time.Since(startedAt).Truncate(time.Second).String()
	}
	return st
}

// BuildCollection replaces the index of collection with the chunks of every
// persona stored in it followed by lore. It returns the number of chunks
// indexed.
func (e *Engine) BuildCollection(ctx context.Context, collection string, lore []string) (int, error) {
	states, err := e.personas.List(ctx, collection)
	if err != nil {
		return 0, err
	}
	chunks := make([]string, 0, 3*len(states)+len(lore))
	for _, st := range states {
		chunks = append(chunks, st.Chunks()...)
	}
	chunks = append(chunks, lore...)
	n, err := e.retriever.BuildCollection(ctx, collection, chunks)
	if err != nil {
		return 0, err
	}
	e.logger.InfoContext(ctx, "collection built", "collection", collection, "personas", len(states), "lore", len(lore))
	return n, nil
}

// Search returns the chunks of collection nearest to query.
func (e *Engine) Search(ctx context.Context, query, collection string, k int) ([]retriever.Result, error) {
	return e.retriever.Search(ctx, query, collection, k)
}

// Turns returns the turn handler.
func (e *Engine) Turns() *turn.Handler { return e.turns }

// Retriever returns the retriever used for search and index builds.
func (e *Engine) Retriever() *retriever.Retriever { return e.retriever }

// Index returns the vector index store.
func (e *Engine) Index() *vectorindex.Store { return e.index }

// Personas returns the persona store.
func (e *Engine) Personas() *persona.Store { return e.personas }

// Metrics returns the metrics manager.
func (e *Engine) Metrics() *metrics.Manager { return e.metrics }

// Config returns the configuration the engine was built from.
func (e *Engine) Config() *config.Config { return e.cfg }
