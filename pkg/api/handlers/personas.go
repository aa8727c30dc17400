package handlers

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/personaforge/personaforge/pkg/api/middleware"
	"github.com/personaforge/personaforge/pkg/api/models"
	"github.com/personaforge/personaforge/pkg/api/response"
	"github.com/personaforge/personaforge/pkg/logger"
	"github.com/personaforge/personaforge/pkg/memory"
	"github.com/personaforge/personaforge/pkg/persona"
	"github.com/personaforge/personaforge/pkg/turn"
)

// TurnService runs turns and exposes per-persona memory.
type TurnService interface {
	HandleTurn(ctx context.Context, req turn.Request) (*turn.Result, error)
	ClearConversation(ctx context.Context, collection, personaID string) error
	Events(ctx context.Context, collection, personaID string, limit int) ([]memory.CharacterEvent, error)
	History(ctx context.Context, collection, personaID string) ([]memory.ConversationTurn, error)
	SavePersona(ctx context.Context, st *persona.State) error
}

// PersonaReader reads and removes stored personas.
type PersonaReader interface {
	Get(ctx context.Context, collection, id string) (*persona.State, error)
	List(ctx context.Context, collection string) ([]*persona.State, error)
	Delete(ctx context.Context, collection, id string) error
}

// PersonaHandler handles persona state and chat endpoints.
type PersonaHandler struct {
	turns     TurnService
	personas  PersonaReader
	logger    logger.Logger
	validator *validator.Validate
}

// NewPersonaHandler creates a new persona handler.
func NewPersonaHandler(turns TurnService, personas PersonaReader, log logger.Logger) *PersonaHandler {
	if log == nil {
		log = logger.Global()
	}
	return &PersonaHandler{
		turns:     turns,
		personas:  personas,
		logger:    log.With("handler", "personas"),
		validator: validator.New(),
	}
}

func personaParams(r *http.Request) (collection, id string) {
	return chi.URLParam(r, "collection"), chi.URLParam(r, "persona")
}

// ListPersonas handles GET /api/v1/collections/{collection}/personas
func (h *PersonaHandler) ListPersonas(w http.ResponseWriter, r *http.Request) {
	collection := chi.URLParam(r, "collection")
	list, err := h.personas.List(r.Context(), collection)
	if err != nil {
		fail(w, r, h.logger, "Failed to list personas", err)
		return
	}
	response.JSON(w, http.StatusOK, models.PersonaListResponse{
		Collection: collection,
		Personas:   list,
		Total:      len(list),
	})
}

// GetPersona handles GET /api/v1/collections/{collection}/personas/{persona}
func (h *PersonaHandler) GetPersona(w http.ResponseWriter, r *http.Request) {
	collection, id := personaParams(r)
	st, err := h.personas.Get(r.Context(), collection, id)
	if err != nil {
		fail(w, r, h.logger, "Failed to load persona", err)
		return
	}
	response.JSON(w, http.StatusOK, st)
}

// PutPersona handles PUT /api/v1/collections/{collection}/personas/{persona}.
// The path wins over any id or collection in the body.
func (h *PersonaHandler) PutPersona(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	collection, id := personaParams(r)

	var st persona.State
	if err := response.Decode(r, &st); err != nil {
		response.Error(w, http.StatusBadRequest, response.ErrCodeBadRequest, err.Error(), middleware.GetRequestID(ctx))
		return
	}
	st.Collection = collection
	st.ID = id

	if err := h.turns.SavePersona(ctx, &st); err != nil {
		fail(w, r, h.logger, "Failed to save persona", err)
		return
	}
	h.logger.InfoContext(ctx, "persona saved", "persona", id, "collection", collection)
	response.JSON(w, http.StatusOK, &st)
}

// DeletePersona handles DELETE /api/v1/collections/{collection}/personas/{persona}
func (h *PersonaHandler) DeletePersona(w http.ResponseWriter, r *http.Request) {
	collection, id := personaParams(r)
	if err := h.personas.Delete(r.Context(), collection, id); err != nil {
		fail(w, r, h.logger, "Failed to delete persona", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Chat handles POST /api/v1/collections/{collection}/personas/{persona}/chat
func (h *PersonaHandler) Chat(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	collection, id := personaParams(r)

	var req models.ChatRequest
	if !decodeAndValidate(w, r, h.validator, &req) {
		return
	}

	res, err := h.turns.HandleTurn(ctx, turn.Request{
		Query:        req.Query,
		PersonaID:    id,
		CollectionID: collection,
		Debug:        req.Debug,
	})
	if err != nil {
		fail(w, r, h.logger, "Turn failed", err)
		return
	}
	response.JSON(w, http.StatusOK, res)
}

// GetConversation handles GET /api/v1/collections/{collection}/personas/{persona}/conversation
func (h *PersonaHandler) GetConversation(w http.ResponseWriter, r *http.Request) {
	collection, id := personaParams(r)
	turns, err := h.turns.History(r.Context(), collection, id)
	if err != nil {
		fail(w, r, h.logger, "Failed to load conversation", err)
		return
	}
	if turns == nil {
		turns = []memory.ConversationTurn{}
	}
	response.JSON(w, http.StatusOK, models.ConversationResponse{
		Persona:    id,
		Collection: collection,
		Turns:      turns,
	})
}

// ClearConversation handles DELETE /api/v1/collections/{collection}/personas/{persona}/conversation
func (h *PersonaHandler) ClearConversation(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	collection, id := personaParams(r)
	if err := h.turns.ClearConversation(ctx, collection, id); err != nil {
		fail(w, r, h.logger, "Failed to clear conversation", err)
		return
	}
	h.logger.InfoContext(ctx, "conversation cleared", "persona", id, "collection", collection)
	w.WriteHeader(http.StatusNoContent)
}

// GetEvents handles GET /api/v1/collections/{collection}/personas/{persona}/events?limit=
func (h *PersonaHandler) GetEvents(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	collection, id := personaParams(r)

	limit, err := queryInt(r, "limit", memory.DefaultRecentEvents)
	if err != nil {
		response.Error(w, http.StatusBadRequest, response.ErrCodeValidationFailed, err.Error(), middleware.GetRequestID(ctx))
		return
	}

	events, err := h.turns.Events(ctx, collection, id, limit)
	if err != nil {
		fail(w, r, h.logger, "Failed to load events", err)
		return
	}
	if events == nil {
		events = []memory.CharacterEvent{}
	}
	response.JSON(w, http.StatusOK, models.EventsResponse{
		Persona:    id,
		Collection: collection,
		Events:     events,
	})
}
