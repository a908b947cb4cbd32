package events

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPEmitter_PostsExpectedPayload(t *testing.T) {
	var gotBody payload
	var gotHeader string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotHeader = r.Header.Get("X-Event-ID")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	e := NewHTTPEmitter(srv.URL, "acme", "deadbeef", "taskforge", true, nil)
	id := e.Emit(Event{Name: TaskCompleted, VTID: "VTID-T1", Status: StatusSuccess, Message: "done"})

	assert.NotEmpty(t, id)
	assert.Equal(t, id, gotHeader)
	assert.Equal(t, TaskCompleted, gotBody.Event)
	assert.Equal(t, "acme", gotBody.Tenant)
	assert.Equal(t, "deadbeef", gotBody.GitSHA)
	assert.Equal(t, "VTID-T1", gotBody.RID)
	assert.Equal(t, StatusSuccess, gotBody.Status)
}

func TestHTTPEmitter_DisabledIsNoop(t *testing.T) {
	called := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	defer srv.Close()

	e := NewHTTPEmitter(srv.URL, "acme", "", "taskforge", false, nil)
	id := e.Emit(Event{Name: TaskFailed})

	assert.NotEmpty(t, id)
	assert.False(t, called)
}

func TestHTTPEmitter_DeliveryFailureStillReturnsID(t *testing.T) {
	e := NewHTTPEmitter("http://127.0.0.1:0", "acme", "", "taskforge", true, nil)
	id := e.Emit(Event{Name: TaskFailed})
	assert.NotEmpty(t, id)
}

func TestHTTPEmitter_PreservesCallerSuppliedID(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	e := NewHTTPEmitter(srv.URL, "acme", "", "taskforge", true, nil)
	id := e.Emit(Event{ID: "fixed-id", Name: TaskCompleted})
	assert.Equal(t, "fixed-id", id)
}

func TestNoopEmitter_ReturnsID(t *testing.T) {
	var e NoopEmitter
	assert.NotEmpty(t, e.Emit(Event{Name: TaskCompleted}))
	assert.Equal(t, "fixed", e.Emit(Event{ID: "fixed"}))
}

func TestRecordingEmitter_AppendsInOrder(t *testing.T) {
	rec := &RecordingEmitter{}
	rec.Emit(Event{Name: StageVerificationStart})
	rec.Emit(Event{Name: StageVerificationPassed})
	require.Len(t, rec.Events, 2)
	assert.Equal(t, StageVerificationStart, rec.Events[0].Name)
	assert.Equal(t, StageVerificationPassed, rec.Events[1].Name)
}
