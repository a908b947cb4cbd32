// Package httpadapter implements the out-of-process Adapter contract of
// spec §6: POST /execute, GET /jobs/{id}, DELETE /jobs/{id}, GET
// /health. It polls /jobs/{id} until the remote status is completed or
// failed, and wraps outbound calls in a circuit breaker so a flapping
// agent backend degrades to a DispatchError instead of hanging the
// orchestrator's event loop (spec §5: the critical path never blocks).
package httpadapter

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sony/gobreaker"

	"github.com/jordigilh/taskforge/pkg/adapter"
	tferrors "github.com/jordigilh/taskforge/pkg/shared/errors"
	"github.com/jordigilh/taskforge/pkg/task"
)

// Adapter calls a remote agent service over HTTP.
type Adapter struct {
	BaseURL        string
	Client         *http.Client
	PollInterval   time.Duration
	breaker        *gobreaker.CircuitBreaker[*http.Response]
}

// New constructs an Adapter targeting baseURL, with a circuit breaker
// named after the backend so multiple backends can be distinguished in
// breaker metrics.
func New(name, baseURL string, pollInterval time.Duration) *Adapter {
	if pollInterval <= 0 {
		pollInterval = 5 * time.Second
	}
	settings := gobreaker.Settings{
		Name:    name,
		Timeout: 30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.Requests >= 5 && float64(counts.TotalFailures)/float64(counts.Requests) >= 0.5
		},
	}
	return &Adapter{
		BaseURL:      baseURL,
		Client:       &http.Client{Timeout: 10 * time.Second},
		PollInterval: pollInterval,
		breaker:      gobreaker.NewCircuitBreaker[*http.Response](settings),
	}
}

var _ adapter.Adapter = (*Adapter)(nil)

func (a *Adapter) Initialize(ctx context.Context) error { return nil }

type executeRequest struct {
	VTID        string         `json:"vtid"`
	Title       string         `json:"title"`
	Description string         `json:"description"`
	Prompt      string         `json:"prompt"`
	Hints       map[string]any `json:"hints,omitempty"`
}

type executeResponse struct {
	JobID string `json:"job_id"`
}

func (a *Adapter) Execute(ctx context.Context, t task.Task, prompt string, hints map[string]any) (adapter.Result, error) {
	body, err := json.Marshal(executeRequest{VTID: t.VTID, Title: t.Title, Description: t.Description, Prompt: prompt, Hints: hints})
	if err != nil {
		return adapter.Result{}, tferrors.Kind(tferrors.ErrDispatchError, "marshal execute request", err)
	}

	resp, err := a.call(ctx, http.MethodPost, "/execute", bytes.NewReader(body))
	if err != nil {
		return adapter.Result{}, tferrors.Kind(tferrors.ErrDispatchError, "POST /execute", err)
	}
	defer resp.Body.Close()

	var out executeResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return adapter.Result{}, tferrors.Kind(tferrors.ErrDispatchError, "decode execute response", err)
	}
	return adapter.Result{Success: true, Output: out.JobID}, nil
}

type jobResponse struct {
	Status    string             `json:"status"` // "completed" | "failed" | "running"
	Changes   []task.ChangeClaim `json:"changes"`
	Artifacts []string           `json:"artifacts"`
	Output    string             `json:"output"`
	Error     string             `json:"error,omitempty"`
}

func (a *Adapter) WaitForCompletion(ctx context.Context, t task.Task) (task.Claim, error) {
	jobID, _ := t.Attributes["job_id"].(string)
	if jobID == "" {
		jobID = t.VTID
	}

	ticker := time.NewTicker(a.PollInterval)
	defer ticker.Stop()

	for {
		resp, err := a.call(ctx, http.MethodGet, "/jobs/"+jobID, nil)
		if err != nil {
			return task.Claim{}, tferrors.Kind(tferrors.ErrDispatchError, "GET /jobs/"+jobID, err)
		}

		var job jobResponse
		decodeErr := json.NewDecoder(resp.Body).Decode(&job)
		resp.Body.Close()
		if decodeErr != nil {
			return task.Claim{}, tferrors.Kind(tferrors.ErrDispatchError, "decode job response", decodeErr)
		}

		switch job.Status {
		case "completed":
			return task.Claim{Changes: job.Changes, Artifacts: job.Artifacts, Output: job.Output}, nil
		case "failed":
			return task.Claim{}, fmt.Errorf("%w: job %s failed: %s", tferrors.ErrDispatchError, jobID, job.Error)
		}

		select {
		case <-ctx.Done():
			return task.Claim{}, ctx.Err()
		case <-ticker.C:
		}
	}
}

func (a *Adapter) Cancel(ctx context.Context, t task.Task) (bool, error) {
	jobID, _ := t.Attributes["job_id"].(string)
	if jobID == "" {
		jobID = t.VTID
	}
	resp, err := a.call(ctx, http.MethodDelete, "/jobs/"+jobID, nil)
	if err != nil {
		return false, nil // best-effort per spec §4.7
	}
	defer resp.Body.Close()
	return resp.StatusCode >= 200 && resp.StatusCode < 300, nil
}

func (a *Adapter) HealthCheck(ctx context.Context) (adapter.HealthStatus, error) {
	resp, err := a.call(ctx, http.MethodGet, "/health", nil)
	if err != nil {
		return adapter.HealthStatus{Status: "unreachable"}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return adapter.HealthStatus{Status: "degraded"}, nil
	}
	return adapter.HealthStatus{Status: "ok"}, nil
}

func (a *Adapter) Shutdown(ctx context.Context) error { return nil }

func (a *Adapter) call(ctx context.Context, method, path string, body io.Reader) (*http.Response, error) {
	return a.breaker.Execute(func() (*http.Response, error) {
		req, err := http.NewRequestWithContext(ctx, method, a.BaseURL+path, body)
		if err != nil {
			return nil, err
		}
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		resp, err := a.Client.Do(req)
		if err != nil {
			return nil, err
		}
		if resp.StatusCode >= 500 {
			resp.Body.Close()
			return nil, fmt.Errorf("remote adapter returned HTTP %d", resp.StatusCode)
		}
		return resp, nil
	})
}
