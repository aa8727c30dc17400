// Package turn runs one conversational turn end to end: retrieval, prompt
// assembly, generation, memory append and persona state mutation.
package turn

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/personaforge/personaforge/pkg/errs"
	"github.com/personaforge/personaforge/pkg/generation"
	"github.com/personaforge/personaforge/pkg/keylock"
	"github.com/personaforge/personaforge/pkg/logger"
	"github.com/personaforge/personaforge/pkg/memory"
	"github.com/personaforge/personaforge/pkg/metrics"
	"github.com/personaforge/personaforge/pkg/persona"
	"github.com/personaforge/personaforge/pkg/snapshot"
	"github.com/personaforge/personaforge/pkg/statechange"
	"github.com/personaforge/personaforge/pkg/telemetry/tracing"
	"go.opentelemetry.io/otel/attribute"
)

// Defaults for Config fields left zero.
const (
	DefaultRetrieveK        = 3
	DefaultFallbackResponse = "I'm sorry, I can't gather my thoughts right now. Could you ask me again in a moment?"
)

// PersonaStore loads and saves persona state.
type PersonaStore interface {
	Get(ctx context.Context, collection, id string) (*persona.State, error)
	Put(ctx context.Context, st *persona.State) error
}

// Retriever returns background chunks for a query.
type Retriever interface {
	Retrieve(ctx context.Context, query, collection string, k int) ([]string, error)
}

// Recorder receives turn metrics.
type Recorder interface {
	RecordTurn(outcome string, duration time.Duration)
	RecordStateMutation(kind string)
	RecordPersistenceWarning(component string)
}

// Config tunes the handler.
type Config struct {
	RetrieveK     int
	ContextTurns  int
	ContextEvents int

	// FallbackOnUpstreamError answers with FallbackResponse instead of
	// failing when the generation service is unavailable.
	FallbackOnUpstreamError bool
	FallbackResponse        string

	// CleanResponses strips prompt echoes and invented dialogue from replies.
	CleanResponses bool
}

// Dependencies are the collaborators of a Handler. Snapshots, Metrics and
// Logger are optional.
type Dependencies struct {
	Personas  PersonaStore
	Retriever Retriever
	Generator generation.Generator
	Memory    *memory.ConversationMemory
	Events    *memory.EventLog
	Snapshots *snapshot.Writer
	Metrics   Recorder
	Logger    logger.Logger
}

// Handler serializes turns per (persona, collection) and runs them.
type Handler struct {
	cfg       Config
	personas  PersonaStore
	retriever Retriever
	generator generation.Generator
	memory    *memory.ConversationMemory
	events    *memory.EventLog
	snapshots *snapshot.Writer
	metrics   Recorder
	log       logger.Logger

	mutator *statechange.Mutator
	locks   *keylock.Locker
	prompts PromptBuilder
}

// New creates a Handler.
func New(cfg Config, deps Dependencies) (*Handler, error) {
	switch {
	case deps.Personas == nil:
		return nil, errors.New("turn: persona store is required")
	case deps.Retriever == nil:
		return nil, errors.New("turn: retriever is required")
	case deps.Generator == nil:
		return nil, errors.New("turn: generator is required")
	case deps.Memory == nil || deps.Events == nil:
		return nil, errors.New("turn: conversation memory and event log are required")
	}

	if cfg.RetrieveK <= 0 {
		cfg.RetrieveK = DefaultRetrieveK
	}
	if cfg.ContextTurns <= 0 {
		cfg.ContextTurns = memory.DefaultContextTurns
	}
	if cfg.ContextEvents <= 0 {
		cfg.ContextEvents = memory.DefaultContextEvents
	}
	if cfg.FallbackResponse == "" {
		cfg.FallbackResponse = DefaultFallbackResponse
	}
	if deps.Metrics == nil {
		deps.Metrics = metrics.NoOpManager()
	}
	if deps.Logger == nil {
		deps.Logger = logger.Nop()
	}

	return &Handler{
		cfg:       cfg,
		personas:  deps.Personas,
		retriever: deps.Retriever,
		generator: deps.Generator,
		memory:    deps.Memory,
		events:    deps.Events,
		snapshots: deps.Snapshots,
		metrics:   deps.Metrics,
		log:       deps.Logger,
		mutator:   statechange.NewMutator(deps.Events, deps.Metrics),
		locks:     keylock.New(),
	}, nil
}

// Request is one user message to a persona.
type Request struct {
	Query        string
	PersonaID    string
	CollectionID string
	Debug        bool
}

// Result is the outcome of a turn.
type Result struct {
	Response         string                        `json:"response"`
	Persona          string                        `json:"persona"`
	Collection       string                        `json:"collection"`
	CharacterUpdated bool                          `json:"character_updated"`
	EmotionChanges   []statechange.EmotionChange   `json:"emotion_changes"`
	InventoryChanges []statechange.InventoryChange `json:"inventory_changes"`
	Events           []memory.CharacterEvent       `json:"events,omitempty"`

	// Fallback is set when the reply is the configured fallback because the
	// generation service failed. Nothing was recorded for such a turn.
	Fallback bool `json:"fallback,omitempty"`

	// PersistenceWarning is set when the updated persona could not be saved.
	// The in-memory changes stand.
	PersistenceWarning bool `json:"persistence_warning,omitempty"`

	Debug *DebugInfo `json:"debug_info,omitempty"`
}

// CharacterInfo is the persona as it stands after the turn.
type CharacterInfo struct {
	Name      string   `json:"name"`
	Role      string   `json:"role"`
	Mood      string   `json:"mood"`
	Inventory []string `json:"inventory"`
	Backstory string   `json:"backstory"`
	Location  string   `json:"location"`
}

// DebugInfo exposes every intermediate of a turn.
type DebugInfo struct {
	Query               string                        `json:"query"`
	RetrievedContext    []string                      `json:"retrieved_context"`
	ConversationHistory string                        `json:"conversation_history"`
	ImportantEvents     string                        `json:"important_events"`
	CharacterState      string                        `json:"character_state"`
	EmotionChanges      []statechange.EmotionChange   `json:"emotion_changes"`
	InventoryChanges    []statechange.InventoryChange `json:"inventory_changes"`
	ChangesApplied      bool                          `json:"changes_applied"`
	CharacterInfo       CharacterInfo                 `json:"character_info"`
	FullPrompt          string                        `json:"full_prompt"`
	Collection          string                        `json:"collection"`
}

func keyOf(collection, personaID string) (memory.Key, error) {
	if strings.TrimSpace(collection) == "" || strings.TrimSpace(personaID) == "" {
		return memory.Key{}, fmt.Errorf("%w: persona and collection are required", errs.ErrInvalidInput)
	}
	return memory.Key{PersonaID: personaID, CollectionID: collection}, nil
}

// HandleTurn answers req. The per-key lock is held from before the persona
// is read until memory and state are updated, so turns for one key never
// interleave. When generation fails nothing is recorded.
func (h *Handler) HandleTurn(ctx context.Context, req Request) (res *Result, err error) {
	start := time.Now()
	outcome := metrics.OutcomeOK
	ctx, span := tracing.Start(ctx, "turn.handle",
		attribute.String("persona", req.PersonaID),
		attribute.String("collection", req.CollectionID),
	)
	defer func() {
		if err != nil {
			outcome = metrics.OutcomeError
		}
		h.metrics.RecordTurn(outcome, time.Since(start))
		tracing.End(span, err)
	}()

	if strings.TrimSpace(req.Query) == "" {
		return nil, fmt.Errorf("%w: query is empty", errs.ErrInvalidInput)
	}
	key, err := keyOf(req.CollectionID, req.PersonaID)
	if err != nil {
		return nil, err
	}
	log := h.log.With("persona", key.PersonaID, "collection", key.CollectionID)

	unlock, err := h.locks.Lock(ctx, key.String())
	if err != nil {
		return nil, fmt.Errorf("turn: waiting for %s: %w", key, err)
	}
	defer unlock()

	state, err := h.personas.Get(ctx, key.CollectionID, key.PersonaID)
	if err != nil {
		return nil, fmt.Errorf("turn: %w", err)
	}

	rctx, rspan := tracing.Start(ctx, "turn.retrieve")
	chunks, err := h.retriever.Retrieve(rctx, req.Query, key.CollectionID, h.cfg.RetrieveK)
	tracing.End(rspan, err)
	if err != nil {
		return nil, fmt.Errorf("turn: retrieve: %w", err)
	}

	in := PromptInput{
		Query:       req.Query,
		Description: state.Description(),
		Chunks:      chunks,
		History:     h.memory.RecentContext(key, state.Name, h.cfg.ContextTurns),
		Events:      h.events.FormatRecent(key, h.cfg.ContextEvents),
		State:       state.Snapshot(),
	}
	prompt := h.prompts.Build(in)

	gctx, gspan := tracing.Start(ctx, "turn.generate")
	reply, err := h.generator.Generate(gctx, prompt)
	tracing.End(gspan, err)
	if err != nil {
		if h.cfg.FallbackOnUpstreamError && errors.Is(err, errs.ErrUpstreamUnavailable) {
			log.WarnContext(ctx, "generation failed, answering with fallback", "error", err)
			outcome = metrics.OutcomeFallback
			res = &Result{
				Response:   h.cfg.FallbackResponse,
				Persona:    state.Name,
				Collection: key.CollectionID,
				Fallback:   true,
			}
			if req.Debug {
				res.Debug = debugInfo(req, in, prompt, state, statechange.Proposals{}, false)
			}
			return res, nil
		}
		return nil, fmt.Errorf("turn: generate: %w", err)
	}
	if h.cfg.CleanResponses {
		reply = generation.CleanResponse(reply, state.Name)
	}

	h.memory.AddExchange(key, req.Query, reply)
	proposals := statechange.Analyze(req.Query, reply)
	changed, applied := h.mutator.Apply(key, state, proposals)

	res = &Result{
		Response:         reply,
		Persona:          state.Name,
		Collection:       key.CollectionID,
		CharacterUpdated: changed,
		EmotionChanges:   proposals.Emotions,
		InventoryChanges: proposals.Inventory,
		Events:           applied,
	}

	if changed {
		if err := h.personas.Put(ctx, state); err != nil {
			h.persistenceWarning(ctx, log, "persona", err)
			res.PersistenceWarning = true
		}
	}
	h.scheduleSnapshot(ctx, log, key)

	if changed {
		log.InfoContext(ctx, "persona state changed",
			"mood", state.Mood.PrimaryEmotion,
			"intensity", state.Mood.Intensity,
			"inventory", len(state.Inventory),
			"events", len(applied),
		)
	}
	if req.Debug {
		res.Debug = debugInfo(req, in, prompt, state, proposals, changed)
	}
	return res, nil
}

func debugInfo(req Request, in PromptInput, prompt string, state *persona.State, p statechange.Proposals, changed bool) *DebugInfo {
	snap := state.Clone()
	return &DebugInfo{
		Query:               req.Query,
		RetrievedContext:    in.Chunks,
		ConversationHistory: in.History,
		ImportantEvents:     in.Events,
		CharacterState:      in.State,
		EmotionChanges:      p.Emotions,
		InventoryChanges:    p.Inventory,
		ChangesApplied:      changed,
		CharacterInfo: CharacterInfo{
			Name:      snap.Name,
			Role:      snap.Role,
			Mood:      snap.DescribeMood(),
			Inventory: snap.Inventory,
			Backstory: snap.Backstory,
			Location:  snap.Location,
		},
		FullPrompt: prompt,
		Collection: req.CollectionID,
	}
}

func (h *Handler) persistenceWarning(ctx context.Context, log logger.Logger, component string, err error) {
	log.WarnContext(ctx, "state kept in memory but not persisted",
		"component", component,
		"error", fmt.Errorf("%w: %w", errs.ErrPersistence, err),
	)
	h.metrics.RecordPersistenceWarning(component)
}

// scheduleSnapshot persists memory and events for key on the snapshot
// writer, or inline when no writer is configured.
func (h *Handler) scheduleSnapshot(ctx context.Context, log logger.Logger, key memory.Key) {
	task := func(ctx context.Context) error {
		return errors.Join(h.memory.Persist(ctx, key), h.events.Persist(ctx, key))
	}
	if h.snapshots != nil && h.snapshots.Submit(key.String(), task) {
		return
	}
	if err := task(ctx); err != nil {
		h.persistenceWarning(ctx, log, "memory", err)
	}
}

// ClearConversation drops the conversation window of a persona. Events and
// state are kept.
func (h *Handler) ClearConversation(ctx context.Context, collection, personaID string) error {
	key, err := keyOf(collection, personaID)
	if err != nil {
		return err
	}
	unlock, err := h.locks.Lock(ctx, key.String())
	if err != nil {
		return fmt.Errorf("turn: waiting for %s: %w", key, err)
	}
	defer unlock()

	h.memory.Clear(key)
	h.scheduleSnapshot(ctx, h.log.With("persona", personaID, "collection", collection), key)
	return nil
}

// Events returns up to limit recent events of a persona, oldest first.
func (h *Handler) Events(ctx context.Context, collection, personaID string, limit int) ([]memory.CharacterEvent, error) {
	key, err := keyOf(collection, personaID)
	if err != nil {
		return nil, err
	}
	return h.events.RecentEvents(key, limit), nil
}

// History returns the conversation window of a persona, oldest first.
func (h *Handler) History(ctx context.Context, collection, personaID string) ([]memory.ConversationTurn, error) {
	key, err := keyOf(collection, personaID)
	if err != nil {
		return nil, err
	}
	return h.memory.Snapshot(key), nil
}

// SavePersona stores st under the same lock as turns for its key.
func (h *Handler) SavePersona(ctx context.Context, st *persona.State) error {
	st.Normalize(time.Now().UTC())
	if err := persona.Validate(st); err != nil {
		return err
	}
	unlock, err := h.locks.Lock(ctx, st.Key().String())
	if err != nil {
		return fmt.Errorf("turn: waiting for %s: %w", st.Key(), err)
	}
	defer unlock()
	return h.personas.Put(ctx, st)
}
