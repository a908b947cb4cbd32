package orchestrator

import (
	"context"
	"fmt"
	"time"

	"github.com/jordigilh/taskforge/pkg/classifier"
	"github.com/jordigilh/taskforge/pkg/events"
	"github.com/jordigilh/taskforge/pkg/task"
)

// fanoutOrder is the fixed dispatch order for mixed-domain sub-tasks
// (spec §4.8 "split into up to three sub-tasks in the fixed order
// memory -> backend -> frontend").
var fanoutOrder = []task.Domain{task.DomainMemory, task.DomainBackend, task.DomainFrontend}

// runMixed splits a mixed-domain task into per-domain sub-tasks, runs
// each through the full completion-guarantee loop in order, and
// aggregates their claimed changes onto the parent. It is data-driven
// (a loop over fanoutOrder), not recursive, per spec §9's "keep the
// scheduler flat" design note.
func (o *Orchestrator) runMixed(ctx context.Context, parent *task.State) {
	if err := o.transition(parent, task.StatusDispatched); err != nil {
		o.Log.WithError(err).Error("orchestrator: mixed parent cannot dispatch")
		return
	}
	if err := o.transition(parent, task.StatusInProgress); err != nil {
		o.Log.WithError(err).Error("orchestrator: mixed parent cannot start")
		return
	}

	var aggregated []task.ChangeClaim
	for _, domain := range fanoutOrder {
		childPaths := matchingPaths(parent.Task.TargetPaths, o.Tables.Globs[domain])
		if len(childPaths) == 0 {
			continue
		}

		childTask := parent.Task
		childTask.ID = fmt.Sprintf("%s-%s", parent.Task.ID, domain)
		childTask.VTID = fmt.Sprintf("%s-%s", parent.Task.VTID, domain)
		childTask.Domain = domain
		childTask.TargetPaths = childPaths
		childTask.ParentVTID = parent.Task.VTID

		childState := o.Store.Submit(childTask)
		parent.Children = append(parent.Children, childTask.ID)

		if err := o.transition(childState, task.StatusRouting); err != nil {
			o.failTerminal(parent, fmt.Sprintf("sub-task %s could not be routed: %v", childTask.VTID, err))
			return
		}

		o.runSingle(ctx, childState)

		if ctx.Err() != nil {
			o.cancelTerminal(parent)
			return
		}

		if childState.Status != task.StatusCompleted {
			o.failTerminal(parent, fmt.Sprintf("sub-task %s did not complete (status=%s)", childTask.VTID, childState.Status))
			return
		}

		if childState.Result != nil {
			aggregated = append(aggregated, childState.Result.Changes...)
		}
	}

	if err := o.transition(parent, task.StatusVerifying); err != nil {
		o.Log.WithError(err).Error("orchestrator: mixed parent cannot verify")
		return
	}

	parent.ClaimedChanges = aggregated
	parent.Result = &task.Claim{Changes: aggregated}
	parent.CompletedAt = time.Now()
	if err := o.transition(parent, task.StatusCompleted); err != nil {
		o.Log.WithError(err).Error("orchestrator: mixed parent cannot complete")
		return
	}
	parent.EmittedEventIDs = append(parent.EmittedEventIDs, o.Emitter.Emit(events.Event{Name: events.TaskCompleted, VTID: parent.Task.VTID, Status: events.StatusSuccess}))
	o.Metrics.TaskCompleted(parent.Task.Domain, 1)
}

// matchingPaths returns the subset of paths matching any of globs,
// preserving order.
func matchingPaths(paths []string, globs []string) []string {
	var out []string
	for _, p := range paths {
		if classifier.MatchesAny(p, globs) {
			out = append(out, p)
		}
	}
	return out
}
