// Package events implements the best-effort, ordered, idempotent Event
// Emitter of spec §4.6: shipping stage events to the external OASIS
// ledger without ever blocking the orchestrator's critical path.
package events

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Status mirrors the payload schema's status enum (spec §4.6).
type Status string

const (
	StatusStart   Status = "start"
	StatusSuccess Status = "success"
	StatusFail    Status = "fail"
	StatusInfo    Status = "info"
	StatusError   Status = "error"
)

// Event names produced by this core (spec §6).
const (
	StageVerificationStart  = "vtid.stage.verification.start"
	StageVerificationPassed = "vtid.stage.verification.passed"
	StageVerificationFailed = "vtid.stage.verification.failed"
	TaskCompleted           = "task.completed"
	TaskFailed              = "task.failed"
	TaskTimeout             = "task.timeout"
	TaskCancelled           = "task.cancelled"
)

// Event is the transport payload of spec §4.6.
type Event struct {
	ID       string         `json:"-"`
	Name     string         `json:"event"`
	VTID     string         `json:"-"`
	Status   Status         `json:"status"`
	Message  string         `json:"message,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// payload is the wire shape posted to OASIS (spec §4.6).
type payload struct {
	Service  string         `json:"service"`
	Event    string         `json:"event"`
	Tenant   string         `json:"tenant"`
	Status   Status         `json:"status"`
	Message  string         `json:"message,omitempty"`
	GitSHA   string         `json:"git_sha,omitempty"`
	RID      string         `json:"rid"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// Emitter is the capability the orchestrator depends on (spec §4.6). It
// never returns an error to the caller — delivery failures are logged
// and dropped, per spec: "they never block orchestration".
type Emitter interface {
	// Emit ships an event and returns the event id that was (or would
	// have been) sent, so the caller can append it to the task's
	// EmittedEventIDs regardless of delivery outcome.
	Emit(e Event) string
}

// HTTPEmitter posts to {gatewayURL}/events/ingest with a 5s timeout
// (spec §6). It is the default, production Emitter.
type HTTPEmitter struct {
	GatewayURL string
	Tenant     string
	GitSHA     string
	Service    string
	Client     *http.Client
	Log        *logrus.Logger
	Enabled    bool
}

// NewHTTPEmitter constructs an emitter targeting gatewayURL. If enabled
// is false, Emit is a pure no-op (spec config toggle `enable_oasis_events`).
func NewHTTPEmitter(gatewayURL, tenant, gitSHA, service string, enabled bool, log *logrus.Logger) *HTTPEmitter {
	if log == nil {
		log = logrus.New()
	}
	return &HTTPEmitter{
		GatewayURL: gatewayURL,
		Tenant:     tenant,
		GitSHA:     gitSHA,
		Service:    service,
		Client:     &http.Client{Timeout: 5 * time.Second},
		Log:        log,
		Enabled:    enabled,
	}
}

// Emit ships the event; on any failure it logs and drops, never
// returning an error to the caller (spec §4.6).
func (h *HTTPEmitter) Emit(e Event) string {
	id := e.ID
	if id == "" {
		id = uuid.NewString()
	}
	if !h.Enabled || h.GatewayURL == "" {
		return id
	}

	body := payload{
		Service:  h.Service,
		Event:    e.Name,
		Tenant:   h.Tenant,
		Status:   e.Status,
		Message:  e.Message,
		GitSHA:   h.GitSHA,
		RID:      e.VTID,
		Metadata: e.Metadata,
	}
	raw, err := json.Marshal(body)
	if err != nil {
		h.Log.WithError(err).Warn("event emitter: failed to marshal payload")
		return id
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.GatewayURL+"/events/ingest", bytes.NewReader(raw))
	if err != nil {
		h.Log.WithError(err).Warn("event emitter: failed to build request")
		return id
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Event-ID", id)

	resp, err := h.Client.Do(req)
	if err != nil {
		h.Log.WithError(err).WithField("event", e.Name).Warn("event emitter: delivery failed, dropping")
		return id
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		h.Log.WithField("status", resp.StatusCode).WithField("event", e.Name).Warn("event emitter: non-2xx response, dropping")
	}
	return id
}

// NoopEmitter discards every event. Useful for tests and for the
// `enable_oasis_events=false` configuration.
type NoopEmitter struct{}

func (NoopEmitter) Emit(e Event) string {
	if e.ID != "" {
		return e.ID
	}
	return uuid.NewString()
}

// RecordingEmitter keeps every emitted event in memory, for assertions
// in orchestrator tests.
type RecordingEmitter struct {
	Events []Event
}

func (r *RecordingEmitter) Emit(e Event) string {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	r.Events = append(r.Events, e)
	return e.ID
}
