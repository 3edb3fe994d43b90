package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/ternarybob/arbor"

	"github.com/cryptocrystian/pravado/internal/models"
	"github.com/cryptocrystian/pravado/internal/services/runs"
)

// RunHandler serves the run management API
type RunHandler struct {
	runService *runs.Service
	logger     arbor.ILogger
}

// NewRunHandler creates a new run handler
func NewRunHandler(runService *runs.Service, logger arbor.ILogger) *RunHandler {
	return &RunHandler{
		runService: runService,
		logger:     logger,
	}
}

// createRunRequest is the body for POST /api/runs
type createRunRequest struct {
	PlaybookID string `json:"playbook_id"`
	Priority   string `json:"priority,omitempty"`
}

// CreateRunHandler handles POST /api/runs - create and start a run
func (h *RunHandler) CreateRunHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}

	var req createRunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.PlaybookID == "" {
		WriteError(w, http.StatusBadRequest, "playbook_id is required")
		return
	}

	run, err := h.runService.TriggerRun(r.Context(), req.PlaybookID, models.JobPriority(req.Priority))
	if err != nil {
		h.logger.Warn().Err(err).Str("playbook_id", req.PlaybookID).Msg("Failed to trigger run")
		WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	WriteJSON(w, http.StatusCreated, run)
}

// ListRunsHandler handles GET /api/runs?playbook_id=&limit=
func (h *RunHandler) ListRunsHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	limit := 50
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if l, err := strconv.Atoi(limitStr); err == nil && l > 0 {
			limit = l
		}
	}

	result, err := h.runService.ListRuns(r.Context(), r.URL.Query().Get("playbook_id"), limit)
	if err != nil {
		WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"runs":  result,
		"count": len(result),
	})
}

// GetRunHandler handles GET /api/runs/{id} - run with step-runs
func (h *RunHandler) GetRunHandler(w http.ResponseWriter, r *http.Request, runID string) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	status, err := h.runService.GetRunStatus(r.Context(), runID)
	if err != nil {
		WriteError(w, http.StatusNotFound, err.Error())
		return
	}

	WriteJSON(w, http.StatusOK, status)
}

// CancelRunHandler handles POST /api/runs/{id}/cancel
func (h *RunHandler) CancelRunHandler(w http.ResponseWriter, r *http.Request, runID string) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}

	if err := h.runService.CancelRun(r.Context(), runID); err != nil {
		WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	WriteSuccess(w, "Run canceled")
}
