// Package httpapi exposes the orchestrator over HTTP (spec §6): submit
// a task, read back its state record, and a liveness probe.
package httpapi

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/jordigilh/taskforge/pkg/orchestrator"
	"github.com/jordigilh/taskforge/pkg/task"
)

// Server wires the Orchestrator behind a minimal REST surface.
type Server struct {
	orch         *orchestrator.Orchestrator
	log          *logrus.Logger
	defaultRetry task.RetryParams
}

// NewServer constructs the chi router. log defaults to a standalone
// logrus.Logger when nil. defaultRetry seeds a submitted task's retry
// budget when the request doesn't override it (spec §6 orchestrator
// retry_delay/max_retries/retry_backoff_multiplier).
func NewServer(orch *orchestrator.Orchestrator, log *logrus.Logger, defaultRetry task.RetryParams) http.Handler {
	if log == nil {
		log = logrus.New()
	}
	if defaultRetry == (task.RetryParams{}) {
		defaultRetry = task.DefaultRetryParams()
	}
	s := &Server{orch: orch, log: log, defaultRetry: defaultRetry}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost},
		AllowedHeaders: []string{"Content-Type"},
	}))

	r.Get("/health", s.handleHealth)
	r.Post("/tasks", s.handleSubmit)
	r.Get("/tasks/{id}", s.handleGet)

	return r
}

type submitRequest struct {
	VTID              string         `json:"vtid"`
	Title             string         `json:"title"`
	Description       string         `json:"description"`
	Domain            string         `json:"domain"`
	TargetPaths       []string       `json:"target_paths"`
	MaxRetries        int            `json:"max_retries"`
	RetryDelayMS      int            `json:"retry_delay_ms"`
	BackoffMultiplier float64        `json:"retry_backoff_multiplier"`
	TimeoutMS         int            `json:"timeout_ms"`
	ExpectedArtifacts []string       `json:"expected_artifacts"`
	Attributes        map[string]any `json:"attributes"`
	SkipVerification  bool           `json:"skip_verification"`
}

type submitResponse struct {
	TaskID string     `json:"task_id"`
	VTID   string     `json:"vtid"`
	Status task.Status `json:"status"`
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var req submitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}
	if req.VTID == "" {
		writeError(w, http.StatusBadRequest, "vtid is required")
		return
	}

	retry := s.defaultRetry
	if req.MaxRetries > 0 {
		retry.MaxRetries = req.MaxRetries
	}
	if req.RetryDelayMS > 0 {
		retry.RetryDelay = time.Duration(req.RetryDelayMS) * time.Millisecond
	}
	if req.BackoffMultiplier > 0 {
		retry.BackoffMultiplier = req.BackoffMultiplier
	}

	t := task.Task{
		ID:                uuid.NewString(),
		VTID:              req.VTID,
		Title:             req.Title,
		Description:       req.Description,
		Domain:            task.Domain(req.Domain),
		TargetPaths:       req.TargetPaths,
		Budget:            task.DefaultChangeBudget(),
		Retry:             retry,
		ExpectedArtifacts: req.ExpectedArtifacts,
		Attributes:        req.Attributes,
		SkipVerification:  req.SkipVerification,
	}
	if req.TimeoutMS > 0 {
		t.Timeout = time.Duration(req.TimeoutMS) * time.Millisecond
	}

	st := s.orch.Submit(t)
	s.log.WithField("vtid", st.Task.VTID).Info("httpapi: task submitted")

	writeJSON(w, http.StatusAccepted, submitResponse{TaskID: st.Task.ID, VTID: st.Task.VTID, Status: st.Status})
}

type stateResponse struct {
	TaskID         string                   `json:"task_id"`
	VTID           string                   `json:"vtid"`
	Status         task.Status              `json:"status"`
	Domain         task.Domain              `json:"domain"`
	RetryCount     int                      `json:"retry_count"`
	RetryReasons   []string                 `json:"retry_reasons,omitempty"`
	ClaimedChanges []task.ChangeClaim       `json:"claimed_changes,omitempty"`
	Children       []string                 `json:"children,omitempty"`
	NeedsReview    bool                     `json:"needs_review"`
	ErrorHistory   []string                 `json:"error_history,omitempty"`
	SubmittedAt    time.Time                `json:"submitted_at"`
	CompletedAt    time.Time                `json:"completed_at,omitempty"`
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	st, ok := s.orch.Store.Get(id)
	if !ok {
		writeError(w, http.StatusNotFound, "task not found")
		return
	}

	resp := stateResponse{
		TaskID:         st.Task.ID,
		VTID:           st.Task.VTID,
		Status:         st.Status,
		Domain:         st.Task.Domain,
		RetryCount:     st.RetryCount,
		RetryReasons:   st.RetryReasons,
		ClaimedChanges: st.ClaimedChanges,
		Children:       st.Children,
		NeedsReview:    st.NeedsReview,
		ErrorHistory:   st.ErrorHistory,
		SubmittedAt:    st.SubmittedAt,
	}
	if !st.CompletedAt.IsZero() {
		resp.CompletedAt = st.CompletedAt
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
