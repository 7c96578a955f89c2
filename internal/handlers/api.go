package handlers

import (
	"net/http"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/tally/internal/common"
	"github.com/ternarybob/tally/internal/interfaces"
)

// APIHandler serves the system endpoints
type APIHandler struct {
	analysis interfaces.AnalysisService
	logger   arbor.ILogger
}

// NewAPIHandler creates an APIHandler
func NewAPIHandler(analysis interfaces.AnalysisService, logger arbor.ILogger) *APIHandler {
	return &APIHandler{
		analysis: analysis,
		logger:   logger,
	}
}

// HealthResponse is returned by GET /api/health
type HealthResponse struct {
	Status          string    `json:"status"`
	Timestamp       time.Time `json:"timestamp"`
	AgentsAvailable []string  `json:"agents_available"`
	Version         string    `json:"version"`
}

// HealthHandler returns health check status
func (h *APIHandler) HealthHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	steps := h.analysis.Steps()
	names := make([]string, 0, len(steps))
	for _, step := range steps {
		names = append(names, step.Name.String())
	}

	WriteJSON(w, http.StatusOK, HealthResponse{
		Status:          "healthy",
		Timestamp:       time.Now().UTC(),
		AgentsAvailable: names,
		Version:         common.GetVersion(),
	})
}

// AgentsHandler lists the steps in execution order
func (h *APIHandler) AgentsHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"agents": h.analysis.Steps(),
	})
}

// VersionHandler returns version information
func (h *APIHandler) VersionHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	WriteJSON(w, http.StatusOK, common.Info())
}

// NotFoundHandler handles 404 errors with JSON response
func (h *APIHandler) NotFoundHandler(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusNotFound, map[string]interface{}{
		"error":   "Not Found",
		"path":    r.URL.Path,
		"message": "The requested endpoint does not exist",
	})
}
