package httpapi_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jordigilh/taskforge/pkg/adapter"
	"github.com/jordigilh/taskforge/pkg/adapter/mockadapter"
	"github.com/jordigilh/taskforge/pkg/classifier"
	"github.com/jordigilh/taskforge/pkg/events"
	"github.com/jordigilh/taskforge/internal/httpapi"
	"github.com/jordigilh/taskforge/pkg/orchestrator"
	"github.com/jordigilh/taskforge/pkg/safety"
	"github.com/jordigilh/taskforge/pkg/stagegate"
	"github.com/jordigilh/taskforge/pkg/task"
	"github.com/jordigilh/taskforge/pkg/validation"
	"github.com/jordigilh/taskforge/pkg/verification"
)

func newTestServer(t *testing.T) http.Handler {
	t.Helper()
	root := t.TempDir()
	store := task.NewStore(nil)
	cfg := verification.DefaultConfig(validation.NewRegistry())
	cfg.CheckModification = false
	verifier := verification.New(cfg, root)
	gate := stagegate.New(safety.NewChecker(), verifier, events.NoopEmitter{})
	mock := mockadapter.New(mockadapter.Scenario{Claim: task.Claim{}})
	adapters := adapter.NewRegistry(mock)
	o := orchestrator.New(store, classifier.Default(), safety.NewChecker(), gate, adapters, events.NoopEmitter{}, nil, nil,
		orchestrator.Config{MaxConcurrentTasks: 2, DefaultTaskTimeout: time.Second})
	return httpapi.NewServer(o, nil, task.DefaultRetryParams())
}

func TestHandleHealth(t *testing.T) {
	srv := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestHandleSubmitAndGet(t *testing.T) {
	srv := newTestServer(t)

	body, err := json.Marshal(map[string]any{
		"vtid":   "VTID-HTTP-1",
		"title":  "test task",
		"domain": "backend",
	})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/tasks", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	require.Equal(t, http.StatusAccepted, rec.Code)

	var submitted struct {
		TaskID string `json:"task_id"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &submitted))
	require.NotEmpty(t, submitted.TaskID)

	getReq := httptest.NewRequest(http.MethodGet, "/tasks/"+submitted.TaskID, nil)
	getRec := httptest.NewRecorder()
	srv.ServeHTTP(getRec, getReq)
	assert.Equal(t, http.StatusOK, getRec.Code)
}

func TestHandleSubmitRejectsMissingVTID(t *testing.T) {
	srv := newTestServer(t)
	req := httptest.NewRequest(http.MethodPost, "/tasks", bytes.NewReader([]byte(`{}`)))
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleGetUnknownTask(t *testing.T) {
	srv := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/tasks/does-not-exist", nil)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
