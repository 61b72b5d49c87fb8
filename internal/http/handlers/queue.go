package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/viralideas/analysis-queue/internal/domain"
	"github.com/viralideas/analysis-queue/internal/service"
)

type submitRequest struct {
	SessionID           string          `json:"session_id"`
	SubjectID           string          `json:"subject_id"`
	FormData            domain.FormData `json:"form_data"`
	Competitors         []string        `json:"competitors"`
	AutoRerunEnabled    bool            `json:"auto_rerun_enabled"`
	RerunFrequencyHours int             `json:"rerun_frequency_hours"`
}

type submitResponse struct {
	JobID       string           `json:"job_id"`
	SessionID   string           `json:"session_id"`
	SubjectID   string           `json:"subject_id"`
	Status      domain.JobStatus `json:"status"`
	SubmittedAt time.Time        `json:"submitted_at"`
}

func (api *API) Submit(w http.ResponseWriter, r *http.Request) {
	var request submitRequest
	if err := decodeJSON(r, &request); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid_request", "malformed request body")
		return
	}

	job, err := api.queueService.Submit(r.Context(), service.SubmitInput{
		SessionID:           request.SessionID,
		SubjectID:           request.SubjectID,
		FormData:            request.FormData,
		Competitors:         request.Competitors,
		AutoRerunEnabled:    request.AutoRerunEnabled,
		RerunFrequencyHours: request.RerunFrequencyHours,
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, submitResponse{
		JobID:       job.ID,
		SessionID:   job.SessionID,
		SubjectID:   job.SubjectID,
		Status:      job.Status,
		SubmittedAt: job.SubmittedAt,
	})
}

func (api *API) StartJob(w http.ResponseWriter, r *http.Request) {
	jobID := strings.TrimSpace(chi.URLParam(r, "jobID"))
	if jobID == "" {
		writeError(w, r, http.StatusBadRequest, "invalid_request", "job_id is required")
		return
	}

	job, err := api.queueService.StartJob(r.Context(), jobID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"job_id": job.ID,
		"status": job.Status,
	})
}

func (api *API) CancelJob(w http.ResponseWriter, r *http.Request) {
	jobID := strings.TrimSpace(chi.URLParam(r, "jobID"))
	if jobID == "" {
		writeError(w, r, http.StatusBadRequest, "invalid_request", "job_id is required")
		return
	}

	job, err := api.queueService.Cancel(r.Context(), jobID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"job_id":           job.ID,
		"status":           job.Status,
		"cancel_requested": job.CancelRequested,
	})
}

func (api *API) ProcessPending(w http.ResponseWriter, r *http.Request) {
	drained, err := api.queueService.DrainPending(r.Context())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":        "started",
		"drained_count": drained,
	})
}

type competitorPatchRequest struct {
	IsActive *bool `json:"is_active"`
}

func (api *API) PatchCompetitor(w http.ResponseWriter, r *http.Request) {
	jobID := strings.TrimSpace(chi.URLParam(r, "jobID"))
	username := strings.TrimSpace(chi.URLParam(r, "username"))
	if jobID == "" || username == "" {
		writeError(w, r, http.StatusBadRequest, "invalid_request", "job_id and username are required")
		return
	}

	var request competitorPatchRequest
	if err := decodeJSON(r, &request); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid_request", "malformed request body")
		return
	}
	if request.IsActive == nil {
		writeError(w, r, http.StatusBadRequest, "invalid_request", "is_active is required")
		return
	}

	if err := api.queueService.SetCompetitorActive(r.Context(), jobID, username, *request.IsActive); err != nil {
		writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"job_id":    jobID,
		"username":  username,
		"is_active": *request.IsActive,
	})
}
