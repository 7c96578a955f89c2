package server

import (
	"net/http"

	"github.com/gorilla/mux"
)

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() *mux.Router {
	r := mux.NewRouter()

	// Analysis
	r.HandleFunc("/api/analyze", s.app.AnalysisHandler.AnalyzeHandler).Methods(http.MethodPost, http.MethodOptions)

	// System
	r.HandleFunc("/api/health", s.app.APIHandler.HealthHandler).Methods(http.MethodGet)
	r.HandleFunc("/api/agents", s.app.APIHandler.AgentsHandler).Methods(http.MethodGet)
	r.HandleFunc("/api/version", s.app.APIHandler.VersionHandler).Methods(http.MethodGet)
	r.HandleFunc("/api/config", s.app.ConfigHandler.GetConfig).Methods(http.MethodGet)
	r.Handle("/metrics", s.app.MetricsHandler()).Methods(http.MethodGet)

	// 404 handler for unmatched routes
	r.NotFoundHandler = http.HandlerFunc(s.app.APIHandler.NotFoundHandler)

	return r
}
