package handlers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
)

// Status serves the flattened job summary polled by client sessions.
func (api *API) Status(w http.ResponseWriter, r *http.Request) {
	sessionID := strings.TrimSpace(chi.URLParam(r, "sessionID"))
	if sessionID == "" {
		writeError(w, r, http.StatusBadRequest, "invalid_request", "session_id is required")
		return
	}

	summary, err := api.summaryService.GetStatus(r.Context(), sessionID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, summary)
}

// SystemStatus serves the queue-wide counters and health metrics.
func (api *API) SystemStatus(w http.ResponseWriter, r *http.Request) {
	status, err := api.statsService.GetSystemStatus(r.Context())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, status)
}
