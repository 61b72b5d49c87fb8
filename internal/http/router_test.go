package httpserver

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/viralideas/analysis-queue/internal/domain"
	"github.com/viralideas/analysis-queue/internal/http/handlers"
	"github.com/viralideas/analysis-queue/internal/queue"
	"github.com/viralideas/analysis-queue/internal/repository"
	"github.com/viralideas/analysis-queue/internal/service"
	"github.com/viralideas/analysis-queue/internal/worker"
)

type testServer struct {
	handler http.Handler
	repo    *repository.MemoryQueueRepository
	queue   *queue.LocalQueue
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	repo := repository.NewMemoryQueueRepository()
	localQueue := queue.NewLocalQueue(64, 3, nil)
	logger := log.New(io.Discard, "", 0)

	api := handlers.NewAPI(
		service.NewQueueService(repo, localQueue, nil, logger),
		service.NewSummaryService(repo, nil),
		service.NewStatsService(repo),
	)
	handler := NewRouter(RouterDependencies{
		API:    api,
		Logger: logger,
	})
	return &testServer{handler: handler, repo: repo, queue: localQueue}
}

func (s *testServer) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(payload)
	}
	request := httptest.NewRequest(method, path, reader)
	recorder := httptest.NewRecorder()
	s.handler.ServeHTTP(recorder, request)
	return recorder
}

func decodeBody(t *testing.T, recorder *httptest.ResponseRecorder) map[string]any {
	t.Helper()

	var body map[string]any
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &body))
	return body
}

func submitPayload(sessionID string) map[string]any {
	return map[string]any{
		"session_id": sessionID,
		"subject_id": "creatorhq",
		"form_data": map[string]any{
			"contentType":    "short_form_video",
			"targetAudience": "fitness creators",
			"goals":          "grow reach",
		},
		"competitors": []string{"hookmaster", "trendsetter"},
	}
}

func TestSubmitAndPollStatus(t *testing.T) {
	server := newTestServer(t)

	created := server.do(t, http.MethodPost, "/v1/viral-ideas/queue", submitPayload("session-1"))
	require.Equal(t, http.StatusCreated, created.Code)
	createdBody := decodeBody(t, created)
	assert.NotEmpty(t, createdBody["job_id"])
	assert.Equal(t, "pending", createdBody["status"])
	assert.NotEmpty(t, created.Header().Get("X-Request-Id"))

	polled := server.do(t, http.MethodGet, "/v1/viral-ideas/queue/session-1", nil)
	require.Equal(t, http.StatusOK, polled.Code)
	body := decodeBody(t, polled)
	assert.Equal(t, "session-1", body["session_id"])
	assert.Equal(t, "short_form_video", body["content_type"])
	assert.Equal(t, float64(2), body["active_competitors_count"])

	computed, ok := body["computed"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "waiting", computed["status_category"])
	assert.Equal(t, "not_started", computed["progress_stage"])
	assert.Equal(t, true, computed["can_be_cancelled"])
}

func TestStatusUnknownSessionReturns404(t *testing.T) {
	server := newTestServer(t)

	response := server.do(t, http.MethodGet, "/v1/viral-ideas/queue/no-such-session", nil)
	require.Equal(t, http.StatusNotFound, response.Code)
	body := decodeBody(t, response)
	errorBody, ok := body["error"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "not_found", errorBody["code"])
	assert.NotEmpty(t, body["request_id"])
}

func TestSubmitValidation(t *testing.T) {
	server := newTestServer(t)

	payload := submitPayload("")
	response := server.do(t, http.MethodPost, "/v1/viral-ideas/queue", payload)
	require.Equal(t, http.StatusBadRequest, response.Code)

	response = server.do(t, http.MethodPost, "/v1/viral-ideas/queue", map[string]any{"unexpected": true})
	require.Equal(t, http.StatusBadRequest, response.Code)
}

func TestSubmitDuplicateSessionConflicts(t *testing.T) {
	server := newTestServer(t)

	first := server.do(t, http.MethodPost, "/v1/viral-ideas/queue", submitPayload("session-dup"))
	require.Equal(t, http.StatusCreated, first.Code)

	second := server.do(t, http.MethodPost, "/v1/viral-ideas/queue", submitPayload("session-dup"))
	require.Equal(t, http.StatusConflict, second.Code)
}

func TestCancelTerminalJobConflicts(t *testing.T) {
	server := newTestServer(t)

	created := server.do(t, http.MethodPost, "/v1/viral-ideas/queue", submitPayload("session-cancel"))
	require.Equal(t, http.StatusCreated, created.Code)
	jobID := decodeBody(t, created)["job_id"].(string)

	ctx := context.Background()
	_, err := server.repo.ClaimJob(ctx, jobID)
	require.NoError(t, err)
	_, err = server.repo.CompleteJob(ctx, jobID, domain.JobStatusCompleted, "")
	require.NoError(t, err)

	response := server.do(t, http.MethodPost, "/v1/viral-ideas/queue/"+jobID+"/cancel", nil)
	require.Equal(t, http.StatusConflict, response.Code)
}

func TestPatchCompetitorToggle(t *testing.T) {
	server := newTestServer(t)

	created := server.do(t, http.MethodPost, "/v1/viral-ideas/queue", submitPayload("session-patch"))
	require.Equal(t, http.StatusCreated, created.Code)
	jobID := decodeBody(t, created)["job_id"].(string)

	response := server.do(
		t,
		http.MethodPatch,
		"/v1/viral-ideas/queue/"+jobID+"/competitors/hookmaster",
		map[string]any{"is_active": false},
	)
	require.Equal(t, http.StatusOK, response.Code)

	polled := server.do(t, http.MethodGet, "/v1/viral-ideas/queue/session-patch", nil)
	body := decodeBody(t, polled)
	assert.Equal(t, float64(1), body["active_competitors_count"])
	assert.Equal(t, float64(2), body["total_competitors_count"])

	missing := server.do(
		t,
		http.MethodPatch,
		"/v1/viral-ideas/queue/"+jobID+"/competitors/nobody",
		map[string]any{"is_active": false},
	)
	require.Equal(t, http.StatusNotFound, missing.Code)
}

func TestSystemStatusEndpoint(t *testing.T) {
	server := newTestServer(t)

	for i := 0; i < 3; i++ {
		created := server.do(t, http.MethodPost, "/v1/viral-ideas/queue", submitPayload(fmt.Sprintf("session-%d", i)))
		require.Equal(t, http.StatusCreated, created.Code)
	}

	response := server.do(t, http.MethodGet, "/v1/viral-ideas/queue-status", nil)
	require.Equal(t, http.StatusOK, response.Code)
	body := decodeBody(t, response)

	counts, ok := body["counts"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, float64(3), counts["pending"])
	assert.Equal(t, float64(3), body["total"])

	metrics, ok := body["metrics"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, float64(100), metrics["processing_efficiency"])
}

// Full lifecycle: submit over HTTP, let the worker pool drain the queue, poll
// until the summary reports completion.
func TestWorkflowSubmitProcessPoll(t *testing.T) {
	server := newTestServer(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	processor := worker.NewProcessor(server.queue, server.repo, &worker.ScriptedAnalyzer{}, 2, log.New(io.Discard, "", 0))
	go processor.Start(ctx)

	created := server.do(t, http.MethodPost, "/v1/viral-ideas/queue", submitPayload("session-flow"))
	require.Equal(t, http.StatusCreated, created.Code)

	deadline := time.Now().Add(5 * time.Second)
	var body map[string]any
	for time.Now().Before(deadline) {
		polled := server.do(t, http.MethodGet, "/v1/viral-ideas/queue/session-flow", nil)
		require.Equal(t, http.StatusOK, polled.Code)
		body = decodeBody(t, polled)
		if body["status"] == "completed" {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}
	require.Equal(t, "completed", body["status"], "job never completed")
	assert.Equal(t, float64(100), body["progress_percentage"])

	computed := body["computed"].(map[string]any)
	assert.Equal(t, "success", computed["status_category"])
	assert.Equal(t, "completed", computed["progress_stage"])
	assert.Equal(t, false, computed["can_be_cancelled"])
	assert.Equal(t, true, computed["can_be_rerun"])

	competitors, ok := body["competitors"].([]any)
	require.True(t, ok)
	require.Len(t, competitors, 2)
	for _, raw := range competitors {
		competitor := raw.(map[string]any)
		assert.Equal(t, "completed", competitor["processing_status"])
	}
}
