package handlers

import (
	"net/http"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/cryptocrystian/pravado/internal/common"
	"github.com/cryptocrystian/pravado/internal/queue"
)

// StatusHandler reports engine health: queue depth by status and the state
// of each worker slot
type StatusHandler struct {
	queue  *queue.Queue
	pool   *queue.WorkerPool
	logger arbor.ILogger
}

// NewStatusHandler creates a new status handler
func NewStatusHandler(q *queue.Queue, pool *queue.WorkerPool, logger arbor.ILogger) *StatusHandler {
	return &StatusHandler{
		queue:  q,
		pool:   pool,
		logger: logger,
	}
}

// GetStatusHandler handles GET /api/status
func (h *StatusHandler) GetStatusHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"service":   "pravado",
		"version":   common.GetVersion(),
		"timestamp": time.Now().Format(time.RFC3339),
		"queue":     h.queue.Stats(),
		"workers":   h.pool.Workers(),
	})
}

// HealthHandler handles GET /api/health
func (h *StatusHandler) HealthHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}
	WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// VersionHandler handles GET /api/version
func (h *StatusHandler) VersionHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}
	WriteJSON(w, http.StatusOK, map[string]string{
		"version": common.GetFullVersion(),
	})
}
