// Package handlers provides HTTP request handlers.
package handlers

import (
	"net/http"

	"github.com/personaforge/personaforge/pkg/api/response"
	"github.com/personaforge/personaforge/pkg/engine"
)

// StatusProvider reports runtime health.
type StatusProvider interface {
	IsHealthy() bool
	IsReady() bool
	GetStatus() engine.Status
}

// HealthResponse is the body of /health.
type HealthResponse struct {
	Status string `json:"status"`
	State  string `json:"state"`
}

// ReadyResponse is the body of /ready. NotReady names the components
// holding readiness back.
type ReadyResponse struct {
	Ready    bool     `json:"ready"`
	NotReady []string `json:"not_ready,omitempty"`
}

// HealthHandler serves the liveness, readiness and status probes.
type HealthHandler struct {
	engine StatusProvider
}

// NewHealthHandler creates a new health handler.
func NewHealthHandler(eng StatusProvider) *HealthHandler {
	return &HealthHandler{engine: eng}
}

// Health is the liveness probe.
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	st := h.engine.GetStatus()
	if !h.engine.IsHealthy() {
		response.JSON(w, http.StatusServiceUnavailable, HealthResponse{Status: "unhealthy", State: st.State.String()})
		return
	}
	response.JSON(w, http.StatusOK, HealthResponse{Status: "ok", State: st.State.String()})
}

// Ready is the readiness probe. Degraded components do not fail it.
func (h *HealthHandler) Ready(w http.ResponseWriter, r *http.Request) {
	if h.engine.IsReady() {
		response.JSON(w, http.StatusOK, ReadyResponse{Ready: true})
		return
	}

	var blocking []string
	for _, c := range h.engine.GetStatus().Components {
		if c.State == engine.ComponentPending || c.State == engine.ComponentFailed {
			blocking = append(blocking, c.Name)
		}
	}
	response.JSON(w, http.StatusServiceUnavailable, ReadyResponse{Ready: false, NotReady: blocking})
}

// Status reports the runtime state, component states and snapshot queue.
func (h *HealthHandler) Status(w http.ResponseWriter, r *http.Request) {
	response.JSON(w, http.StatusOK, h.engine.GetStatus())
}
