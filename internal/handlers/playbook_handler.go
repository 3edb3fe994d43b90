package handlers

import (
	"net/http"

	"github.com/ternarybob/arbor"

	"github.com/cryptocrystian/pravado/internal/interfaces"
)

// PlaybookHandler serves the playbook API
type PlaybookHandler struct {
	storage interfaces.StorageManager
	logger  arbor.ILogger
}

// NewPlaybookHandler creates a new playbook handler
func NewPlaybookHandler(storage interfaces.StorageManager, logger arbor.ILogger) *PlaybookHandler {
	return &PlaybookHandler{
		storage: storage,
		logger:  logger,
	}
}

// ListPlaybooksHandler handles GET /api/playbooks
func (h *PlaybookHandler) ListPlaybooksHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	playbooks, err := h.storage.PlaybookStorage().ListPlaybooks(r.Context())
	if err != nil {
		WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"playbooks": playbooks,
		"count":     len(playbooks),
	})
}

// GetPlaybookHandler handles GET /api/playbooks/{id}
func (h *PlaybookHandler) GetPlaybookHandler(w http.ResponseWriter, r *http.Request, playbookID string) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	playbook, err := h.storage.PlaybookStorage().GetPlaybook(r.Context(), playbookID)
	if err != nil {
		WriteError(w, http.StatusNotFound, err.Error())
		return
	}

	WriteJSON(w, http.StatusOK, playbook)
}
