// Package adapter defines the capability contract an agent backend must
// implement (spec §4.7): a black-box capability that receives a task and
// claims a set of changes. The orchestrator never trusts the claim
// directly — it is only ever input to the Completion Verifier.
package adapter

import (
	"context"
	"time"

	"github.com/jordigilh/taskforge/pkg/task"
)

// Result is what execute() immediately returns (spec §4.7). It is not
// itself proof of anything; only the subsequent Verify call is.
type Result struct {
	Success  bool
	Changes  []task.ChangeClaim
	Artifacts []string
	Output   string
	Error    error
	Duration time.Duration
	Tokens   int
	Cost     float64
}

// HealthStatus is the result of a health check.
type HealthStatus struct {
	Status  string
	Details map[string]any
}

// Adapter is the capability contract of spec §4.7.
type Adapter interface {
	// Initialize prepares resources. Idempotent.
	Initialize(ctx context.Context) error
	// Execute dispatches the task with a prompt and context hints.
	Execute(ctx context.Context, t task.Task, prompt string, hints map[string]any) (Result, error)
	// WaitForCompletion blocks until the agent reports done, subject to
	// the caller's context deadline (the orchestrator's task timeout).
	WaitForCompletion(ctx context.Context, t task.Task) (task.Claim, error)
	// Cancel makes a best-effort attempt to abort in-flight work.
	Cancel(ctx context.Context, t task.Task) (bool, error)
	// HealthCheck reports backend health.
	HealthCheck(ctx context.Context) (HealthStatus, error)
	// Shutdown releases resources.
	Shutdown(ctx context.Context) error
}

// Registry maps a domain tag to the adapter that should handle it, with
// a mandatory "default" fallback (spec §4.7: "a map from domain tag to
// adapter and a default entry").
type Registry struct {
	byDomain map[string]Adapter
	def      Adapter
}

// NewRegistry builds a Registry with the given default adapter.
func NewRegistry(def Adapter) *Registry {
	return &Registry{byDomain: make(map[string]Adapter), def: def}
}

// Register binds an adapter to a domain tag, overriding the default for
// that domain.
func (r *Registry) Register(domain string, a Adapter) {
	r.byDomain[domain] = a
}

// For resolves the adapter for a domain tag, falling back to default.
func (r *Registry) For(domain string) Adapter {
	if a, ok := r.byDomain[domain]; ok {
		return a
	}
	return r.def
}
