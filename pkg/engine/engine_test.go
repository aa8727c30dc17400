package engine

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/personaforge/personaforge/config"
	"github.com/personaforge/personaforge/pkg/logger"
	"github.com/personaforge/personaforge/pkg/memory"
	"github.com/personaforge/personaforge/pkg/persona"
	storagememory "github.com/personaforge/personaforge/pkg/storage/memory"
	"github.com/personaforge/personaforge/pkg/turn"
)

type generatorFunc func(ctx context.Context, prompt string) (string, error)

func (f generatorFunc) Generate(ctx context.Context, prompt string) (string, error) {
	return f(ctx, prompt)
}

// minConfig returns a valid config rooted in a temp dir.
func minConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Index.Dir = t.TempDir()
	cfg.Embedding.Dimension = 32
	return cfg
}

func newTestEngine(t *testing.T, opts ...Option) *Engine {
	t.Helper()
	reply := generatorFunc(func(context.Context, string) (string, error) {
		return "Fly, you fools!", nil
	})
	opts = append([]Option{WithGenerator(reply)}, opts...)
	eng, err := New(minConfig(t), logger.Nop(), opts...)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return eng
}

// --- ComponentTracker tests ---

func TestComponentTracker_InitAndGet(t *testing.T) {
	tr := newComponentTracker()
	tr.Init([]string{"a", "b"})

	for _, name := range []string{"a", "b"} {
		c, ok := tr.Get(name)
		if !ok {
			t.Fatalf("expected status for %q", name)
		}
		if c.State != ComponentPending {
			t.Errorf("%q: expected pending, got %v", name, c.State)
		}
	}
	if !tr.AnyFailed() {
		t.Error("pending components should not count as ready")
	}
}

func TestComponentTracker_Set(t *testing.T) {
	tr := newComponentTracker()
	tr.Init([]string{"storage"})
	tr.Set("storage", ComponentReady, "memory")
	tr.Set("index", ComponentDegraded, "unreadable")

	if tr.AnyFailed() {
		t.Error("degraded must not fail readiness")
	}
	all := tr.All()
	if len(all) != 2 || all[0].Name != "index" || all[1].Name != "storage" {
		t.Fatalf("unexpected components: %+v", all)
	}
	if all[1].Detail != "memory" {
		t.Errorf("detail = %q", all[1].Detail)
	}

	tr.Set("storage", ComponentFailed, "down")
	if !tr.AnyFailed() {
		t.Error("expected failed component to be reported")
	}
}

func TestComponentState_String(t *testing.T) {
	cases := map[ComponentState]string{
		ComponentPending:   "pending",
		ComponentReady:     "ready",
		ComponentDegraded:  "degraded",
		ComponentFailed:    "failed",
		ComponentState(99): "unknown",
	}
	for s, want := range cases {
		if s.String() != want {
			t.Errorf("%d.String() = %q, want %q", int(s), s.String(), want)
		}
	}
}

// --- Engine lifecycle tests ---

func TestNew_RequiresConfig(t *testing.T) {
	if _, err := New(nil, logger.Nop()); err == nil {
		t.Fatal("expected error for nil config")
	}
}

func TestNew_UnknownStorage(t *testing.T) {
	cfg := minConfig(t)
	cfg.Storage.Type = "cassandra"
	_, err := New(cfg, logger.Nop())
	var initErr *ComponentInitError
	if !errors.As(err, &initErr) || initErr.Component != ComponentStorage {
		t.Fatalf("expected storage init error, got %v", err)
	}
}

func TestNew_BadgerStorage(t *testing.T) {
	cfg := minConfig(t)
	cfg.Storage.Type = "badger"
	cfg.Storage.Badger.Path = t.TempDir()

	eng, err := New(cfg, logger.Nop())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	ctx := context.Background()
	if err := eng.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if err := eng.Stop(ctx); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
}

func TestEngine_StartStop(t *testing.T) {
	eng := newTestEngine(t)
	ctx := context.Background()

	if eng.State() != StateIdle {
		t.Fatalf("initial state = %v", eng.State())
	}
	if eng.IsReady() {
		t.Error("idle engine must not be ready")
	}
	if !eng.IsHealthy() {
		t.Error("idle engine should be healthy")
	}

	if err := eng.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if !eng.IsReady() {
		t.Errorf("running engine should be ready: %+v", eng.GetStatus().Components)
	}

	var already *EngineAlreadyRunningError
	if err := eng.Start(ctx); !errors.As(err, &already) {
		t.Errorf("second Start() error = %v", err)
	}

	if err := eng.Stop(ctx); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	if eng.State() != StateStopped {
		t.Errorf("state after stop = %v", eng.State())
	}
	if eng.IsHealthy() || eng.IsReady() {
		t.Error("stopped engine must report unhealthy and not ready")
	}
	if err := eng.Start(ctx); err == nil {
		t.Error("restarting a stopped engine should fail")
	}
	if err := eng.Stop(ctx); err != nil {
		t.Errorf("second Stop() error = %v", err)
	}
}

func TestEngine_Status(t *testing.T) {
	eng := newTestEngine(t)
	ctx := context.Background()
	if err := eng.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer eng.Stop(ctx)

	if _, err := eng.Retriever().BuildCollection(ctx, "middle-earth", []string{"Gandalf is a wizard.", "Frodo carries the ring."}); err != nil {
		t.Fatalf("BuildCollection() error = %v", err)
	}

	st := eng.GetStatus()
	if st.State != StateRunning || st.StorageType != "memory" {
		t.Errorf("unexpected status: %+v", st)
	}
	if len(st.Collections) != 1 || st.Collections[0] != "middle-earth" {
		t.Errorf("collections = %v", st.Collections)
	}
	if st.Uptime == "" || st.StartedAt.IsZero() {
		t.Error("running status should report uptime")
	}
	for _, c := range st.Components {
		if c.State != ComponentReady {
			t.Errorf("component %s = %v (%s)", c.Name, c.State, c.Detail)
		}
	}
}

func TestEngine_StatusReportsEmbeddingCache(t *testing.T) {
	reply := generatorFunc(func(context.Context, string) (string, error) { return "ok", nil })
	eng, err := New(minConfig(t), logger.Nop(), WithGenerator(reply))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	ctx := context.Background()
	if err := eng.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer eng.Stop(ctx)

	if _, err := eng.Retriever().BuildCollection(ctx, "middle-earth", []string{"Gandalf is a wizard."}); err != nil {
		t.Fatalf("BuildCollection() error = %v", err)
	}
	for i := 0; i < 2; i++ {
		if _, err := eng.Retriever().Search(ctx, "wizard", "middle-earth", 1); err != nil {
			t.Fatalf("Search() error = %v", err)
		}
	}

	st := eng.GetStatus()
	if st.EmbeddingCache == nil {
		t.Fatal("default config should report the embedding cache")
	}
	if st.EmbeddingCache.Lookups != 2 || st.EmbeddingCache.HitRate != 0.5 {
		t.Errorf("cache = %+v, want 2 lookups at 0.5", st.EmbeddingCache)
	}
}

func TestEngine_RestoresPersistedMemory(t *testing.T) {
	kv := storagememory.NewMemoryStorage()
	ctx := context.Background()
	key := memory.Key{PersonaID: "gandalf", CollectionID: "middle-earth"}
	turns := []memory.ConversationTurn{
		{Role: memory.RoleUser, Content: "Who are you?", Timestamp: time.Now().UTC(), PersonaID: key.PersonaID, CollectionID: key.CollectionID},
	}
	if err := memory.NewStore(kv).SaveTurns(ctx, key, turns); err != nil {
		t.Fatalf("SaveTurns() error = %v", err)
	}

	eng := newTestEngine(t, WithStorage(kv))
	if err := eng.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer eng.Stop(ctx)

	history, err := eng.Turns().History(ctx, key.CollectionID, key.PersonaID)
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if len(history) != 1 || history[0].Content != "Who are you?" {
		t.Errorf("restored history = %+v", history)
	}

	c, _ := eng.components.Get(ComponentMemory)
	if !strings.Contains(c.Detail, "1 windows") {
		t.Errorf("memory detail = %q", c.Detail)
	}
}

func TestEngine_TurnIsSnapshottedOnStop(t *testing.T) {
	kv := storagememory.NewMemoryStorage()
	eng := newTestEngine(t, WithStorage(kv))
	ctx := context.Background()
	if err := eng.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	if _, err := eng.Retriever().BuildCollection(ctx, "middle-earth", []string{"The Shire is green."}); err != nil {
		t.Fatalf("BuildCollection() error = %v", err)
	}
	st := &persona.State{ID: "gandalf", Collection: "middle-earth", Name: "Gandalf"}
	if err := eng.Turns().SavePersona(ctx, st); err != nil {
		t.Fatalf("SavePersona() error = %v", err)
	}

	res, err := eng.Turns().HandleTurn(ctx, turn.Request{Query: "What should we do?", PersonaID: "gandalf", CollectionID: "middle-earth"})
	if err != nil {
		t.Fatalf("HandleTurn() error = %v", err)
	}
	if res.Response != "Fly, you fools!" {
		t.Errorf("response = %q", res.Response)
	}

	if err := eng.Stop(ctx); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}

	saved, err := memory.NewStore(kv).LoadTurns(ctx, memory.Key{PersonaID: "gandalf", CollectionID: "middle-earth"})
	if err != nil {
		t.Fatalf("LoadTurns() error = %v", err)
	}
	if len(saved) != 2 {
		t.Fatalf("expected user and assistant turns persisted, got %d", len(saved))
	}
	if saved[1].Role != memory.RoleAssistant {
		t.Errorf("second turn role = %v", saved[1].Role)
	}
}

func TestEngine_InlineSnapshotsWithoutWorkers(t *testing.T) {
	kv := storagememory.NewMemoryStorage()
	cfg := minConfig(t)
	cfg.Memory.SnapshotWorkers = 0
	reply := generatorFunc(func(context.Context, string) (string, error) {
		return "Fly, you fools!", nil
	})
	eng, err := New(cfg, logger.Nop(), WithGenerator(reply), WithStorage(kv))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	ctx := context.Background()
	if err := eng.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer eng.Stop(ctx)

	if c, ok := eng.components.Get(ComponentSnapshots); !ok || c.State != ComponentReady || c.Detail != "inline" {
		t.Errorf("snapshots component = %+v, %v", c, ok)
	}

	if _, err := eng.Retriever().BuildCollection(ctx, "middle-earth", []string{"The Shire is green."}); err != nil {
		t.Fatalf("BuildCollection() error = %v", err)
	}
	st := &persona.State{ID: "gandalf", Collection: "middle-earth", Name: "Gandalf"}
	if err := eng.Turns().SavePersona(ctx, st); err != nil {
		t.Fatalf("SavePersona() error = %v", err)
	}
	if _, err := eng.Turns().HandleTurn(ctx, turn.Request{Query: "What should we do?", PersonaID: "gandalf", CollectionID: "middle-earth"}); err != nil {
		t.Fatalf("HandleTurn() error = %v", err)
	}

	// No Stop yet: the window must already be durable.
	saved, err := memory.NewStore(kv).LoadTurns(ctx, memory.Key{PersonaID: "gandalf", CollectionID: "middle-earth"})
	if err != nil {
		t.Fatalf("LoadTurns() error = %v", err)
	}
	if len(saved) != 2 {
		t.Fatalf("expected user and assistant turns persisted inline, got %d", len(saved))
	}
	if st := eng.GetStatus(); st.SnapshotQueue != 0 || st.SnapshotsProcessed != 0 {
		t.Errorf("inline mode should report no writer activity, got %+v", st)
	}
}

func TestState_String(t *testing.T) {
	if StateRunning.String() != "running" || State(42).String() != "unknown" {
		t.Error("unexpected State names")
	}
	b, _ := StateStopped.MarshalText()
	if string(b) != "stopped" {
		t.Errorf("MarshalText() = %s", b)
	}
}
