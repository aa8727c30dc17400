package handlers

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/personaforge/personaforge/pkg/api/middleware"
	"github.com/personaforge/personaforge/pkg/api/models"
	"github.com/personaforge/personaforge/pkg/api/response"
	"github.com/personaforge/personaforge/pkg/logger"
	"github.com/personaforge/personaforge/pkg/retriever"
	"github.com/personaforge/personaforge/pkg/vectorindex"
)

// CollectionIndex lists, describes and drops collection indexes.
type CollectionIndex interface {
	Collections() ([]string, error)
	Stats(ctx context.Context, collection string) (vectorindex.Stats, error)
	Drop(ctx context.Context, collection string) error
}

// CollectionRetriever builds collections, personas included, and searches
// them.
type CollectionRetriever interface {
	BuildCollection(ctx context.Context, collection string, texts []string) (int, error)
	Search(ctx context.Context, query, collection string, k int) ([]retriever.Result, error)
}

// CollectionHandler handles collection index endpoints.
type CollectionHandler struct {
	index     CollectionIndex
	retriever CollectionRetriever
	logger    logger.Logger
	validator *validator.Validate
}

// NewCollectionHandler creates a new collection handler.
func NewCollectionHandler(index CollectionIndex, r CollectionRetriever, log logger.Logger) *CollectionHandler {
	if log == nil {
		log = logger.Global()
	}
	return &CollectionHandler{
		index:     index,
		retriever: r,
		logger:    log.With("handler", "collections"),
		validator: validator.New(),
	}
}

// ListCollections handles GET /api/v1/collections
func (h *CollectionHandler) ListCollections(w http.ResponseWriter, r *http.Request) {
	names, err := h.index.Collections()
	if err != nil {
		fail(w, r, h.logger, "Failed to list collections", err)
		return
	}
	response.JSON(w, http.StatusOK, models.CollectionListResponse{
		Collections: names,
		Total:       len(names),
	})
}

// GetCollection handles GET /api/v1/collections/{collection}
func (h *CollectionHandler) GetCollection(w http.ResponseWriter, r *http.Request) {
	collection := chi.URLParam(r, "collection")
	stats, err := h.index.Stats(r.Context(), collection)
	if err != nil {
		fail(w, r, h.logger, "Failed to describe collection", err)
		return
	}
	response.JSON(w, http.StatusOK, models.CollectionResponse(stats))
}

// BuildIndex handles POST /api/v1/collections/{collection}/index
func (h *CollectionHandler) BuildIndex(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	collection := chi.URLParam(r, "collection")

	var req models.IndexRequest
	if !decodeAndValidate(w, r, h.validator, &req) {
		return
	}

	n, err := h.retriever.BuildCollection(ctx, collection, req.Chunks)
	if err != nil {
		fail(w, r, h.logger, "Failed to build index", err)
		return
	}
	h.logger.InfoContext(ctx, "collection indexed", "collection", collection, "chunks", n)

	response.JSON(w, http.StatusCreated, models.IndexResponse{
		Collection: collection,
		Chunks:     n,
		Message:    fmt.Sprintf("Indexed %d chunks", n),
	})
}

// Search handles GET /api/v1/collections/{collection}/search?q=&k=
func (h *CollectionHandler) Search(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	collection := chi.URLParam(r, "collection")

	query := strings.TrimSpace(r.URL.Query().Get("q"))
	if query == "" {
		response.Error(w, http.StatusBadRequest, response.ErrCodeValidationFailed, "Query parameter q is required", middleware.GetRequestID(ctx))
		return
	}
	k, err := queryInt(r, "k", 0)
	if err != nil {
		response.Error(w, http.StatusBadRequest, response.ErrCodeValidationFailed, err.Error(), middleware.GetRequestID(ctx))
		return
	}

	results, err := h.retriever.Search(ctx, query, collection, k)
	if err != nil {
		fail(w, r, h.logger, "Failed to search collection", err)
		return
	}
	response.JSON(w, http.StatusOK, models.SearchResponse{
		Collection: collection,
		Query:      query,
		K:          len(results),
		Results:    results,
	})
}

// DeleteCollection handles DELETE /api/v1/collections/{collection}
func (h *CollectionHandler) DeleteCollection(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	collection := chi.URLParam(r, "collection")

	if err := h.index.Drop(ctx, collection); err != nil {
		fail(w, r, h.logger, "Failed to drop collection", err)
		return
	}
	h.logger.InfoContext(ctx, "collection dropped", "collection", collection)
	w.WriteHeader(http.StatusNoContent)
}
