// Package stagegate implements the Stage Gate of spec §4.5: a
// single-shot wrapper around Safety's output scan plus the Completion
// Verifier for one claim. It emits ledger events and recommends an
// action; it never mutates task status itself.
package stagegate

import (
	"time"

	"github.com/jordigilh/taskforge/pkg/events"
	"github.com/jordigilh/taskforge/pkg/safety"
	"github.com/jordigilh/taskforge/pkg/task"
	"github.com/jordigilh/taskforge/pkg/verification"
)

// Result is the Stage Gate's verdict (spec §4.5 "StageGateResult").
type Result struct {
	Outcome          task.VerificationOutcome
	RecommendedAction task.RecommendedAction
	Duration         time.Duration
	ChecksFailed     []string
	EventIDs         []string // ids of the ledger events this run emitted, in order
}

// Gate bundles the Safety checker and Completion Verifier behind the
// single-shot contract.
type Gate struct {
	Safety   *safety.Checker
	Verifier *verification.Verifier
	Emitter  events.Emitter
}

// New constructs a Gate.
func New(safetyChecker *safety.Checker, verifier *verification.Verifier, emitter events.Emitter) *Gate {
	return &Gate{Safety: safetyChecker, Verifier: verifier, Emitter: emitter}
}

// Run executes the single-shot verification of one claim against one
// task state and returns a recommendation (spec §4.5).
func (g *Gate) Run(st *task.State, claim task.Claim) Result {
	start := time.Now()

	var ids []string
	ids = append(ids, g.Emitter.Emit(events.Event{
		Name:   events.StageVerificationStart,
		VTID:   st.Task.VTID,
		Status: events.StatusStart,
	}))

	scan := g.Safety.ScanOutput(claim.Output)
	if !scan.Safe {
		outcome := task.VerificationOutcome{
			Result: task.ResultFailed,
			Reason: scan.Reason,
			Checks: map[string]task.CheckResult{
				"safety_output": {Passed: false, Reason: scan.Reason},
			},
			Retriable: false,
		}
		ids = append(ids, g.emitFailed(st, outcome))
		return Result{
			Outcome:           outcome,
			RecommendedAction: task.ActionFail,
			Duration:          time.Since(start),
			ChecksFailed:      []string{"safety_output"},
			EventIDs:          ids,
		}
	}

	outcome := g.Verifier.Verify(st, claim)
	duration := time.Since(start)

	switch outcome.Result {
	case task.ResultPassed:
		ids = append(ids, g.Emitter.Emit(events.Event{Name: events.StageVerificationPassed, VTID: st.Task.VTID, Status: events.StatusSuccess}))
		return Result{Outcome: outcome, RecommendedAction: task.ActionComplete, Duration: duration, EventIDs: ids}

	case task.ResultCannotVerify:
		ids = append(ids, g.emitFailed(st, outcome))
		return Result{Outcome: outcome, RecommendedAction: task.ActionManualReview, Duration: duration, ChecksFailed: failedChecks(outcome), EventIDs: ids}

	case task.ResultPartial:
		ids = append(ids, g.emitFailed(st, outcome))
		return Result{Outcome: outcome, RecommendedAction: task.ActionRetry, Duration: duration, ChecksFailed: failedChecks(outcome), EventIDs: ids}

	default: // failed, needs_retry
		ids = append(ids, g.emitFailed(st, outcome))
		action := task.ActionFail
		if outcome.Retriable {
			action = task.ActionRetry
		}
		return Result{Outcome: outcome, RecommendedAction: action, Duration: duration, ChecksFailed: failedChecks(outcome), EventIDs: ids}
	}
}

func (g *Gate) emitFailed(st *task.State, outcome task.VerificationOutcome) string {
	return g.Emitter.Emit(events.Event{
		Name:     events.StageVerificationFailed,
		VTID:     st.Task.VTID,
		Status:   events.StatusFail,
		Message:  outcome.Reason,
		Metadata: map[string]any{"result": string(outcome.Result)},
	})
}

func failedChecks(outcome task.VerificationOutcome) []string {
	var names []string
	for name, c := range outcome.Checks {
		if !c.Passed {
			names = append(names, name)
		}
	}
	return names
}
