package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/viralideas/analysis-queue/internal/http/middleware"
	"github.com/viralideas/analysis-queue/internal/repository"
	"github.com/viralideas/analysis-queue/internal/service"
)

var errInvalidPayload = errors.New("invalid payload")

// API bundles the handlers around the three services so the router wires a
// single value.
type API struct {
	queueService   *service.QueueService
	summaryService *service.SummaryService
	statsService   *service.StatsService
}

func NewAPI(
	queueService *service.QueueService,
	summaryService *service.SummaryService,
	statsService *service.StatsService,
) *API {
	return &API{
		queueService:   queueService,
		summaryService: summaryService,
		statsService:   statsService,
	}
}

type errorPayload struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
	RequestID string `json:"request_id"`
}

func writeJSON(w http.ResponseWriter, statusCode int, value any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(value)
}

func writeError(w http.ResponseWriter, r *http.Request, statusCode int, code, message string) {
	payload := errorPayload{RequestID: middleware.GetRequestID(r.Context())}
	payload.Error.Code = code
	payload.Error.Message = message
	writeJSON(w, statusCode, payload)
}

func decodeJSON(r *http.Request, value any) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(value); err != nil {
		return errInvalidPayload
	}
	return nil
}

// writeServiceError translates the service error taxonomy onto HTTP codes.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, service.ErrValidation):
		writeError(w, r, http.StatusBadRequest, "invalid_request", err.Error())
	case errors.Is(err, repository.ErrNotFound):
		writeError(w, r, http.StatusNotFound, "not_found", "resource not found")
	case errors.Is(err, repository.ErrConflict):
		writeError(w, r, http.StatusConflict, "conflict", "job state does not permit this operation")
	case errors.Is(err, repository.ErrDuplicate):
		writeError(w, r, http.StatusConflict, "duplicate", "a job for this session already exists")
	default:
		writeError(w, r, http.StatusInternalServerError, "internal_error", "operation failed")
	}
}
