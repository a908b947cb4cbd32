// Package orchestrator implements the Orchestrator Core of spec §4.8:
// the state machine that classifies, dispatches, verifies, retries, and
// terminates tasks. It is the sole component permitted to call
// task.Store.Transition — the legality of every edge in the declared
// state graph is enforced here, not in the store (pkg/task/store.go's
// Transition is deliberately unconditional; see its doc comment).
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/sethvargo/go-retry"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/semaphore"

	"github.com/jordigilh/taskforge/pkg/adapter"
	"github.com/jordigilh/taskforge/pkg/classifier"
	"github.com/jordigilh/taskforge/pkg/events"
	"github.com/jordigilh/taskforge/pkg/metrics"
	"github.com/jordigilh/taskforge/pkg/planner"
	"github.com/jordigilh/taskforge/pkg/safety"
	"github.com/jordigilh/taskforge/pkg/shared/logging"
	tferrors "github.com/jordigilh/taskforge/pkg/shared/errors"
	"github.com/jordigilh/taskforge/pkg/stagegate"
	"github.com/jordigilh/taskforge/pkg/task"
	"github.com/jordigilh/taskforge/pkg/verification"
)

// errAlreadyTerminal signals that attempt() already performed the
// terminal state transition and ledger emission; the outer retry loop
// must not act on it again.
var errAlreadyTerminal = errors.New("orchestrator: task already terminal")

// legalTransitions enumerates the declared state graph (spec §4.8). The
// dispatched/in_progress -> retry_pending and -> failed edges are a
// deliberate generalization: spec §7 classifies DispatchError as
// "retriable with backoff" but the state table only draws that edge
// from `verifying`; extending the same edge to the dispatch stage keeps
// every retriable error funneled through one decision point.
var legalTransitions = map[task.Status][]task.Status{
	task.StatusPending:      {task.StatusRouting},
	task.StatusRouting:      {task.StatusDispatched, task.StatusFailed},
	task.StatusDispatched:   {task.StatusInProgress, task.StatusFailed, task.StatusRetryPending},
	task.StatusInProgress:   {task.StatusVerifying, task.StatusTimeout, task.StatusFailed, task.StatusRetryPending},
	task.StatusVerifying:    {task.StatusCompleted, task.StatusRetryPending, task.StatusFailed},
	task.StatusRetryPending: {task.StatusPending},
}

// Config bundles the orchestrator-wide settings of spec §6 that are not
// already carried per-task (those live on task.Task/task.RetryParams).
//
// SkipVerificationByDefault, DefaultRetry, and the rest default to the
// zero value meaning "behave as if unconfigured" (spec defaults apply),
// the same convention MaxConcurrentTasks/DefaultTaskTimeout already use
// below, so existing callers that only set those two fields keep their
// current behavior unchanged.
type Config struct {
	MaxConcurrentTasks int
	DefaultTaskTimeout time.Duration

	// SkipVerificationByDefault mirrors config.OrchestratorConfig's
	// verification_required (inverted so the zero value is safe: an
	// unconfigured Config{} still verifies, like every existing test
	// and caller already assumes).
	SkipVerificationByDefault bool
	VerificationTimeout       time.Duration
	MaxVerificationAttempts   int

	// DisableAutoRetry inverts config.OrchestratorConfig's
	// auto_retry_on_verification_failure the same safe-zero-value way:
	// when true, retryOrFail fails the task terminally on its first
	// retriable outcome instead of consuming the retry budget. Zero
	// value (false) keeps today's unconditional retry behavior.
	DisableAutoRetry bool

	DefaultRetry    task.RetryParams
	PollingInterval time.Duration
}

// DefaultConfig matches spec §6's defaults.
func DefaultConfig() Config {
	return Config{
		MaxConcurrentTasks:        5,
		DefaultTaskTimeout:        30 * time.Minute,
		SkipVerificationByDefault: false,
		VerificationTimeout:       60 * time.Second,
		MaxVerificationAttempts:   3,
		DisableAutoRetry:          false,
		DefaultRetry:              task.DefaultRetryParams(),
		PollingInterval:           5 * time.Second,
	}
}

// Orchestrator wires every leaf component into the state machine of
// spec §4.8. All dependencies are injected (spec §9: "replace global
// singletons with explicit dependency injection at orchestrator
// construction").
type Orchestrator struct {
	Store      *task.Store
	Tables     classifier.Tables
	Safety     *safety.Checker
	Gate       *stagegate.Gate
	Adapters   *adapter.Registry
	Emitter    events.Emitter
	Metrics    metrics.Recorder
	Log        *logrus.Logger
	cfg        Config

	sem *semaphore.Weighted

	mu      sync.Mutex
	cancels map[string]context.CancelFunc
}

// New constructs an Orchestrator. A nil Metrics recorder defaults to
// metrics.Noop{}; a nil logger defaults to logrus.New().
func New(store *task.Store, tables classifier.Tables, safetyChecker *safety.Checker, gate *stagegate.Gate, adapters *adapter.Registry, emitter events.Emitter, rec metrics.Recorder, log *logrus.Logger, cfg Config) *Orchestrator {
	if rec == nil {
		rec = metrics.Noop{}
	}
	if log == nil {
		log = logrus.New()
	}
	if cfg.MaxConcurrentTasks <= 0 {
		cfg.MaxConcurrentTasks = DefaultConfig().MaxConcurrentTasks
	}
	if cfg.DefaultTaskTimeout <= 0 {
		cfg.DefaultTaskTimeout = DefaultConfig().DefaultTaskTimeout
	}
	if cfg.VerificationTimeout <= 0 {
		cfg.VerificationTimeout = DefaultConfig().VerificationTimeout
	}
	if cfg.MaxVerificationAttempts <= 0 {
		cfg.MaxVerificationAttempts = DefaultConfig().MaxVerificationAttempts
	}
	if cfg.DefaultRetry == (task.RetryParams{}) {
		cfg.DefaultRetry = DefaultConfig().DefaultRetry
	}
	if cfg.PollingInterval <= 0 {
		cfg.PollingInterval = DefaultConfig().PollingInterval
	}
	return &Orchestrator{
		Store:    store,
		Tables:   tables,
		Safety:   safetyChecker,
		Gate:     gate,
		Adapters: adapters,
		Emitter:  emitter,
		Metrics:  rec,
		Log:      log,
		cfg:      cfg,
		sem:      semaphore.NewWeighted(int64(cfg.MaxConcurrentTasks)),
		cancels:  make(map[string]context.CancelFunc),
	}
}

// Submit accepts a new task, fills in its defaults, stores it pending,
// and starts its execution loop in its own goroutine (spec §4.8: "the
// per-task execution loop"). It returns immediately with the live state
// record.
func (o *Orchestrator) Submit(t task.Task) *task.State {
	if t.Retry == (task.RetryParams{}) {
		t.Retry = o.cfg.DefaultRetry
	}
	if t.Timeout == 0 {
		t.Timeout = o.cfg.DefaultTaskTimeout
	}
	if steps := planner.Plan(t.Description); len(steps) > 0 {
		if t.Attributes == nil {
			t.Attributes = map[string]any{}
		}
		t.Attributes[planner.AttributeKey] = steps
	}
	st := o.Store.Submit(t)
	go o.run(st)
	return st
}

// Cancel requests cancellation of a non-terminal task (spec §4.8
// "any non-terminal -> cancel -> cancelled"). Returns false if the task
// is unknown or already terminal.
func (o *Orchestrator) Cancel(taskID string) bool {
	o.mu.Lock()
	cancel, ok := o.cancels[taskID]
	o.mu.Unlock()
	if !ok {
		return false
	}
	cancel()
	return true
}

func (o *Orchestrator) registerCancel(id string, cancel context.CancelFunc) {
	o.mu.Lock()
	o.cancels[id] = cancel
	o.mu.Unlock()
}

func (o *Orchestrator) clearCancel(id string) {
	o.mu.Lock()
	delete(o.cancels, id)
	o.mu.Unlock()
}

// run is the scheduler coroutine for one task: classify, preflight,
// then dispatch (single-domain) or fan out (mixed).
func (o *Orchestrator) run(st *task.State) {
	ctx, cancel := context.WithCancel(context.Background())
	o.registerCancel(st.Task.ID, cancel)
	defer o.clearCancel(st.Task.ID)
	defer cancel()

	if st.Task.Domain == "" {
		st.Task.Domain = classifier.Classify(st.Task, o.Tables)
	}
	o.Metrics.TaskSubmitted(st.Task.Domain)
	o.Metrics.ActiveTasks(1)
	defer o.Metrics.ActiveTasks(-1)

	if err := o.transition(st, task.StatusRouting); err != nil {
		o.Log.WithError(err).Error("orchestrator: cannot route task")
		return
	}

	pre := o.Safety.Preflight(st.Task)
	if !pre.Safe {
		o.failTerminal(st, pre.Reason)
		return
	}

	if st.Task.Domain == task.DomainMixed {
		o.runMixed(ctx, st)
		return
	}

	o.runSingle(ctx, st)
}

// transition enforces the declared state graph before delegating to
// the store (spec invariant 1).
func (o *Orchestrator) transition(st *task.State, to task.Status) error {
	from := st.Status
	if to == task.StatusCancelled {
		if from.Terminal() {
			return fmt.Errorf("task %s: already terminal (%s), cannot cancel", st.Task.VTID, from)
		}
		return o.Store.Transition(st.Task.ID, to)
	}
	for _, allowed := range legalTransitions[from] {
		if allowed == to {
			return o.Store.Transition(st.Task.ID, to)
		}
	}
	return fmt.Errorf("task %s: illegal transition %s -> %s", st.Task.VTID, from, to)
}

// toDispatched advances st from its current status (routing on the
// first attempt, retry_pending on subsequent ones) up to dispatched,
// replaying every intermediate edge in the declared graph.
func (o *Orchestrator) toDispatched(st *task.State) error {
	switch st.Status {
	case task.StatusRetryPending:
		if err := o.transition(st, task.StatusPending); err != nil {
			return err
		}
		fallthrough
	case task.StatusPending:
		if err := o.transition(st, task.StatusRouting); err != nil {
			return err
		}
		fallthrough
	case task.StatusRouting:
		return o.transition(st, task.StatusDispatched)
	default:
		return fmt.Errorf("task %s: unexpected status %s before dispatch", st.Task.VTID, st.Status)
	}
}

// runSingle drives the completion-guarantee loop for one non-mixed
// task (spec §4.8 "per-task execution loop").
func (o *Orchestrator) runSingle(ctx context.Context, st *task.State) {
	if err := o.sem.Acquire(ctx, 1); err != nil {
		o.cancelTerminal(st)
		return
	}
	defer o.sem.Release(1)

	ad := o.Adapters.For(string(st.Task.Domain))
	if ad == nil {
		o.failTerminal(st, "no adapter registered for domain "+string(st.Task.Domain))
		return
	}

	b := &expBackoff{base: st.Task.Retry.RetryDelay, mult: st.Task.Retry.BackoffMultiplier}
	attemptNum := 0
	err := retry.Do(ctx, b, func(ctx context.Context) error {
		attemptNum++
		return o.attempt(ctx, st, ad, attemptNum)
	})

	switch {
	case err == nil:
		return
	case errors.Is(err, errAlreadyTerminal):
		return
	case ctx.Err() != nil:
		o.cancelTerminal(st)
	default:
		o.failTerminal(st, tferrors.Kind(tferrors.ErrMaxRetriesExceeded, "retry scheduler", err).Error())
	}
}

// attempt runs exactly one dispatch/verify cycle. A nil return means
// the task completed successfully. errAlreadyTerminal means a terminal
// transition already happened inside this call. A retry.RetryableError
// means the caller should back off and call attempt again.
func (o *Orchestrator) attempt(ctx context.Context, st *task.State, ad adapter.Adapter, attemptNum int) error {
	if err := o.toDispatched(st); err != nil {
		return err
	}
	if st.AssignedAt.IsZero() {
		st.AssignedAt = time.Now()
	}
	st.AssignedAdapter = fmt.Sprintf("%T", ad)

	if err := ad.Initialize(ctx); err != nil {
		return o.retryOrFail(st, tferrors.Kind(tferrors.ErrDispatchError, "adapter initialize", err).Error())
	}

	hashMode := o.Gate.Verifier.Config().ModificationMode == verification.ModeHash
	if hashMode && st.ContentSnapshot == nil {
		st.ContentSnapshot = verification.SnapshotHashes(o.Gate.Verifier.WorkspaceRoot(), st.Task.TargetPaths)
	}

	execCtx, execCancel := context.WithTimeout(ctx, st.Task.Timeout)
	defer execCancel()

	dispatchStart := time.Now()
	if _, err := ad.Execute(execCtx, st.Task, st.Task.Description, st.Task.Attributes); err != nil {
		return o.retryOrFail(st, tferrors.Kind(tferrors.ErrDispatchError, "adapter execute", err).Error())
	}

	if err := o.transition(st, task.StatusInProgress); err != nil {
		return err
	}
	if st.StartedAt.IsZero() {
		st.StartedAt = time.Now()
	}

	claim, err := ad.WaitForCompletion(execCtx, st.Task)
	o.Metrics.DispatchDuration(st.Task.Domain, time.Since(dispatchStart).Seconds())
	if err != nil {
		return o.handleWaitError(ctx, execCtx, st, ad, err)
	}

	if err := o.transition(st, task.StatusVerifying); err != nil {
		return err
	}

	if st.Task.SkipVerification || o.cfg.SkipVerificationByDefault {
		st.Result = &claim
		st.ClaimedChanges = claim.Changes
		st.CompletedAt = time.Now()
		if err := o.transition(st, task.StatusCompleted); err != nil {
			return err
		}
		st.EmittedEventIDs = append(st.EmittedEventIDs, o.Emitter.Emit(events.Event{Name: events.TaskCompleted, VTID: st.Task.VTID, Status: events.StatusSuccess}))
		o.Metrics.TaskCompleted(st.Task.Domain, attemptNum)
		return nil
	}

	verifyStart := time.Now()
	result := o.runGate(st, claim)
	o.Metrics.VerificationDuration(st.Task.Domain, time.Since(verifyStart).Seconds())
	st.VerificationAttempt++
	st.LastOutcome = &result.Outcome
	st.EmittedEventIDs = append(st.EmittedEventIDs, result.EventIDs...)

	// A verification-specific retry budget (spec §6
	// max_verification_attempts), independent of the dispatch-level
	// retry budget on st.Task.Retry: a task that keeps getting verified
	// and keeps coming up short stops burning attempts once this
	// ceiling is reached, even if dispatch retries remain.
	if result.RecommendedAction == task.ActionRetry && st.VerificationAttempt >= o.cfg.MaxVerificationAttempts {
		o.failTerminal(st, fmt.Sprintf("%s (verification attempts exhausted)", result.Outcome.Reason))
		return errAlreadyTerminal
	}

	switch result.RecommendedAction {
	case task.ActionComplete:
		st.Result = &claim
		st.ClaimedChanges = claim.Changes
		st.CompletedAt = time.Now()
		if err := o.transition(st, task.StatusCompleted); err != nil {
			return err
		}
		st.EmittedEventIDs = append(st.EmittedEventIDs, o.Emitter.Emit(events.Event{Name: events.TaskCompleted, VTID: st.Task.VTID, Status: events.StatusSuccess}))
		o.Metrics.TaskCompleted(st.Task.Domain, attemptNum)
		return nil

	case task.ActionRetry:
		return o.retryOrFail(st, result.Outcome.Reason)

	case task.ActionManualReview:
		st.NeedsReview = true
		o.failTerminal(st, result.Outcome.Reason)
		return errAlreadyTerminal

	default: // fail
		o.failTerminal(st, result.Outcome.Reason)
		return errAlreadyTerminal
	}
}

// runGate bounds stagegate.Gate.Run to the configured verification
// timeout (spec §6 verification_timeout): the verifier's own checks are
// synchronous filesystem/process work with no context plumbed through
// them, so the bound is enforced here rather than inside the gate.
func (o *Orchestrator) runGate(st *task.State, claim task.Claim) stagegate.Result {
	done := make(chan stagegate.Result, 1)
	go func() { done <- o.Gate.Run(st, claim) }()

	select {
	case result := <-done:
		return result
	case <-time.After(o.cfg.VerificationTimeout):
		return stagegate.Result{
			Outcome: task.VerificationOutcome{
				Result: task.ResultCannotVerify,
				Reason: "verification exceeded the configured timeout",
				Checks: map[string]task.CheckResult{},
			},
			RecommendedAction: task.ActionManualReview,
		}
	}
}

// handleWaitError distinguishes timeout, cancellation, and ordinary
// dispatch error among WaitForCompletion's failure modes.
func (o *Orchestrator) handleWaitError(ctx, execCtx context.Context, st *task.State, ad adapter.Adapter, err error) error {
	switch {
	case errors.Is(execCtx.Err(), context.DeadlineExceeded):
		o.invokeCancel(ad, st)
		if tErr := o.transition(st, task.StatusTimeout); tErr != nil {
			return tErr
		}
		st.RecordError("wait_for_completion exceeded task timeout")
		st.EmittedEventIDs = append(st.EmittedEventIDs, o.Emitter.Emit(events.Event{Name: events.TaskTimeout, VTID: st.Task.VTID, Status: events.StatusError}))
		o.Metrics.TaskFailed(st.Task.Domain, "timeout")
		return errAlreadyTerminal

	case ctx.Err() != nil:
		o.invokeCancel(ad, st)
		return err // outer loop classifies via ctx.Err() and calls cancelTerminal

	default:
		return o.retryOrFail(st, tferrors.Kind(tferrors.ErrDispatchError, "wait_for_completion", err).Error())
	}
}

// invokeCancel calls the adapter's best-effort Cancel using a detached
// context, since the task's own context may already be done.
func (o *Orchestrator) invokeCancel(ad adapter.Adapter, st *task.State) {
	cancelCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := ad.Cancel(cancelCtx, st.Task); err != nil {
		o.Log.WithFields(logging.NewFields().VTID(st.Task.VTID).Logrus()).WithError(err).Warn("adapter cancel failed")
	}
}

// retryOrFail is the single decision point for every retriable failure
// (verification or dispatch stage): retry while under the configured
// limit, otherwise fail terminally (spec §4.8 "verifying | ...
// retries_exhausted | failed★").
func (o *Orchestrator) retryOrFail(st *task.State, reason string) error {
	if !o.cfg.DisableAutoRetry && st.RetryCount < st.Task.Retry.MaxRetries {
		st.PushRetryReason(reason)
		if err := o.transition(st, task.StatusRetryPending); err != nil {
			return err
		}
		o.Metrics.TaskRetried(st.Task.Domain, st.RetryCount)
		return retry.RetryableError(errors.New(reason))
	}
	o.failTerminal(st, reason)
	return errAlreadyTerminal
}

// failTerminal records the error, transitions to failed, and emits the
// terminal failure event. Safe to call from any non-terminal status
// that has a legal edge to failed.
func (o *Orchestrator) failTerminal(st *task.State, reason string) {
	st.RecordError(reason)
	if err := o.transition(st, task.StatusFailed); err != nil {
		o.Log.WithError(err).Error("orchestrator: cannot transition to failed")
		return
	}
	st.EmittedEventIDs = append(st.EmittedEventIDs, o.Emitter.Emit(events.Event{Name: events.TaskFailed, VTID: st.Task.VTID, Status: events.StatusFail, Message: reason}))
	o.Metrics.TaskFailed(st.Task.Domain, reason)
}

// cancelTerminal transitions a non-terminal task to cancelled and emits
// the terminal cancel event (spec §4.8).
func (o *Orchestrator) cancelTerminal(st *task.State) {
	if st.Status.Terminal() {
		return
	}
	if err := o.transition(st, task.StatusCancelled); err != nil {
		o.Log.WithError(err).Error("orchestrator: cannot transition to cancelled")
		return
	}
	st.EmittedEventIDs = append(st.EmittedEventIDs, o.Emitter.Emit(events.Event{Name: events.TaskCancelled, VTID: st.Task.VTID, Status: events.StatusInfo}))
}

// expBackoff implements go-retry's Backoff interface with the exact
// formula of spec §4.8: delay * multiplier^(attempt-1). It never
// signals "stop" on its own — the retry-count limit is enforced by
// retryOrFail, not by the backoff; ctx cancellation is the only thing
// that interrupts retry.Do's sleep.
type expBackoff struct {
	attempt int
	base    time.Duration
	mult    float64
}

func (b *expBackoff) Next() (time.Duration, bool) {
	b.attempt++
	d := time.Duration(float64(b.base) * math.Pow(b.mult, float64(b.attempt-1)))
	return d, false
}
