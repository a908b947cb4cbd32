// Package mockadapter provides the tunable fake required by spec §4.7
// ("Mock adapters with tunable success and false-completion rates are
// first-class and required for tests"). It never calls a real agent
// backend; it is driven entirely by the scenario configured on it.
package mockadapter

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jordigilh/taskforge/pkg/adapter"
	"github.com/jordigilh/taskforge/pkg/task"
)

// Scenario is a scripted response for one WaitForCompletion call.
type Scenario struct {
	// Claim is what WaitForCompletion returns.
	Claim task.Claim
	// Delay is how long WaitForCompletion blocks before returning, used
	// to exercise the orchestrator's timeout path (spec §8 scenario 6).
	Delay time.Duration
	// NeverCompletes, when true, makes WaitForCompletion block until
	// ctx is cancelled instead of returning a claim.
	NeverCompletes bool
	// Err, if set, is returned instead of a claim (DispatchError-shaped).
	Err error
}

// Mock is a first-class fake Adapter. Each call to WaitForCompletion
// consumes the next scripted Scenario, falling back to repeating the
// last one once the script is exhausted.
type Mock struct {
	mu        sync.Mutex
	Scenarios []Scenario
	cursor    int

	CancelCount   int
	ExecuteCount  int
	InitCalled    bool
	ShutdownCalled bool
}

var _ adapter.Adapter = (*Mock)(nil)

// New constructs a Mock with the given scripted scenarios, consumed in
// order across successive WaitForCompletion calls (one per retry attempt).
func New(scenarios ...Scenario) *Mock {
	return &Mock{Scenarios: scenarios}
}

func (m *Mock) Initialize(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.InitCalled = true
	return nil
}

func (m *Mock) Execute(ctx context.Context, t task.Task, prompt string, hints map[string]any) (adapter.Result, error) {
	m.mu.Lock()
	m.ExecuteCount++
	m.mu.Unlock()
	return adapter.Result{Success: true}, nil
}

func (m *Mock) WaitForCompletion(ctx context.Context, t task.Task) (task.Claim, error) {
	m.mu.Lock()
	idx := m.cursor
	if idx >= len(m.Scenarios) {
		idx = len(m.Scenarios) - 1
	}
	if idx < 0 {
		m.mu.Unlock()
		return task.Claim{}, fmt.Errorf("mockadapter: no scenarios configured")
	}
	sc := m.Scenarios[idx]
	m.cursor++
	m.mu.Unlock()

	if sc.NeverCompletes {
		<-ctx.Done()
		return task.Claim{}, ctx.Err()
	}

	if sc.Delay > 0 {
		select {
		case <-time.After(sc.Delay):
		case <-ctx.Done():
			return task.Claim{}, ctx.Err()
		}
	}

	if sc.Err != nil {
		return task.Claim{}, sc.Err
	}
	return sc.Claim, nil
}

func (m *Mock) Cancel(ctx context.Context, t task.Task) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.CancelCount++
	return true, nil
}

func (m *Mock) HealthCheck(ctx context.Context) (adapter.HealthStatus, error) {
	return adapter.HealthStatus{Status: "ok"}, nil
}

func (m *Mock) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ShutdownCalled = true
	return nil
}
