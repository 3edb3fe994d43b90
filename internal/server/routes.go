package server

import (
	"net/http"
	"strings"
)

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() *http.ServeMux {
	mux := http.NewServeMux()

	// WebSocket route - run event streaming
	mux.HandleFunc("/ws", s.app.WSHandler.HandleWebSocket)

	// API routes - Runs
	mux.HandleFunc("/api/runs", s.handleRunsRoute) // GET (list), POST (create)
	mux.HandleFunc("/api/runs/", s.handleRunRoutes) // GET /{id}, POST /{id}/cancel

	// API routes - Playbooks
	mux.HandleFunc("/api/playbooks", s.app.PlaybookHandler.ListPlaybooksHandler)
	mux.HandleFunc("/api/playbooks/", s.handlePlaybookRoutes) // GET /{id}

	// API routes - System
	mux.HandleFunc("/api/status", s.app.StatusHandler.GetStatusHandler)
	mux.HandleFunc("/api/health", s.app.StatusHandler.HealthHandler)
	mux.HandleFunc("/api/version", s.app.StatusHandler.VersionHandler)

	// 404 handler for unmatched API routes
	mux.HandleFunc("/api/", s.notFoundHandler)

	return mux
}

// handleRunsRoute routes collection-level run requests by method
func (s *Server) handleRunsRoute(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.app.RunHandler.ListRunsHandler(w, r)
	case http.MethodPost:
		s.app.RunHandler.CreateRunHandler(w, r)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// handleRunRoutes routes /api/runs/{id} and /api/runs/{id}/cancel
func (s *Server) handleRunRoutes(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/api/runs/")
	if path == "" {
		http.Error(w, "Run ID required", http.StatusBadRequest)
		return
	}

	if strings.HasSuffix(path, "/cancel") {
		runID := strings.TrimSuffix(path, "/cancel")
		s.app.RunHandler.CancelRunHandler(w, r, runID)
		return
	}

	if strings.Contains(path, "/") {
		http.Error(w, "Not found", http.StatusNotFound)
		return
	}

	s.app.RunHandler.GetRunHandler(w, r, path)
}

// handlePlaybookRoutes routes /api/playbooks/{id}
func (s *Server) handlePlaybookRoutes(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/api/playbooks/")
	if path == "" || strings.Contains(path, "/") {
		http.Error(w, "Not found", http.StatusNotFound)
		return
	}

	s.app.PlaybookHandler.GetPlaybookHandler(w, r, path)
}

func (s *Server) notFoundHandler(w http.ResponseWriter, r *http.Request) {
	http.Error(w, "Not found", http.StatusNotFound)
}
