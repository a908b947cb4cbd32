// Package task defines the data model of spec §3: Task, Task State
// Record, Change Claim, and Verification Outcome — and the in-memory
// Task Model & State Store of spec §4.1.
package task

import "time"

// Domain selects the validator set and path globs (spec GLOSSARY).
type Domain string

const (
	DomainFrontend Domain = "frontend"
	DomainBackend  Domain = "backend"
	DomainMemory   Domain = "memory"
	DomainMixed    Domain = "mixed"
)

// Status is a node in the declared state graph (spec §4.8).
type Status string

const (
	StatusPending      Status = "pending"
	StatusRouting      Status = "routing"
	StatusDispatched   Status = "dispatched"
	StatusInProgress   Status = "in_progress"
	StatusVerifying    Status = "verifying"
	StatusRetryPending Status = "retry_pending"
	StatusCompleted    Status = "completed"
	StatusFailed       Status = "failed"
	StatusTimeout      Status = "timeout"
	StatusCancelled    Status = "cancelled"
)

// Terminal reports whether status has no outgoing transitions.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusTimeout, StatusCancelled:
		return true
	default:
		return false
	}
}

// ChangeBudget bounds the scope of a task (spec §4.2 scope budget).
type ChangeBudget struct {
	MaxFiles       int `yaml:"max_files" json:"max_files"`
	MaxDirectories int `yaml:"max_directories" json:"max_directories"`
}

// DefaultChangeBudget matches spec §4.2's defaults.
func DefaultChangeBudget() ChangeBudget {
	return ChangeBudget{MaxFiles: 20, MaxDirectories: 10}
}

// RetryParams configures the orchestrator's backoff scheduler (spec §4.8).
type RetryParams struct {
	MaxRetries        int           `yaml:"max_retries" json:"max_retries"`
	RetryDelay        time.Duration `yaml:"retry_delay" json:"retry_delay"`
	BackoffMultiplier float64       `yaml:"backoff_multiplier" json:"backoff_multiplier"`
}

// DefaultRetryParams matches the configuration defaults of spec §6.
func DefaultRetryParams() RetryParams {
	return RetryParams{MaxRetries: 3, RetryDelay: 10 * time.Second, BackoffMultiplier: 2.0}
}

// Task is the immutable submission record (spec §3 "Task").
type Task struct {
	VTID              string
	ID                string // internal, opaque id
	Title             string
	Description       string
	Domain            Domain
	TargetPaths       []string
	Budget            ChangeBudget
	Retry             RetryParams
	Timeout           time.Duration
	SkipVerification  bool // zero value (false) verifies, matching spec default "verification_required: true"
	ExpectedArtifacts []string
	Attributes        map[string]any
	ParentVTID        string // set on mixed-domain sub-tasks
}

// ChangeAction is the kind of filesystem mutation an agent claims to have made.
type ChangeAction string

const (
	ActionCreated  ChangeAction = "created"
	ActionModified ChangeAction = "modified"
	ActionDeleted  ChangeAction = "deleted"
)

// ChangeClaim is the unit of proof an adapter submits (spec §3).
type ChangeClaim struct {
	FilePath string
	Action   ChangeAction
	Content  string // optional
}

// Claim is the full self-report from an adapter (spec GLOSSARY "Claim").
type Claim struct {
	Changes   []ChangeClaim
	Artifacts []string
	Output    string
}

// VerificationResult is the tagged outcome kind of spec §3/§9. The type
// itself does not tie an outcome to a reason; package verification sets
// a reason on every outcome it returns.
type VerificationResult string

const (
	ResultPassed        VerificationResult = "passed"
	ResultFailed        VerificationResult = "failed"
	ResultPartial       VerificationResult = "partial"
	ResultNeedsRetry    VerificationResult = "needs_retry"
	ResultCannotVerify  VerificationResult = "cannot_verify"
)

// CheckResult is a single stage's outcome within a VerificationOutcome.
type CheckResult struct {
	Passed  bool
	Reason  string
	Details map[string]any
}

// VerificationOutcome is the Completion Verifier's report (spec §3).
type VerificationOutcome struct {
	Result    VerificationResult
	Reason    string
	Checks    map[string]CheckResult
	Details   map[string]any
	Retriable bool
}

// RecommendedAction is the Stage Gate's advice to the orchestrator (spec §4.5).
type RecommendedAction string

const (
	ActionComplete     RecommendedAction = "complete"
	ActionRetry        RecommendedAction = "retry"
	ActionFail         RecommendedAction = "fail"
	ActionManualReview RecommendedAction = "manual_review"
	ActionNone         RecommendedAction = "none"
)

// State is the mutable Task State Record (spec §3).
type State struct {
	Task Task

	Status             Status
	AssignedAdapter    string
	SubmittedAt        time.Time
	AssignedAt         time.Time
	StartedAt          time.Time
	CompletedAt        time.Time
	VerificationAttempt int
	LastOutcome        *VerificationOutcome
	RetryCount         int
	RetryReasons       []string
	Result             *Claim
	ClaimedChanges     []ChangeClaim
	ErrorHistory       []string
	EmittedEventIDs    []string
	NeedsReview        bool
	ContentSnapshot    map[string]string // path -> sha256 hex, captured at dispatch (hash verification mode)

	Children []string // internal ids of mixed-domain sub-tasks, in dispatch order
}

// PushRetryReason increments RetryCount and appends reason, preserving
// invariant 3 of spec §3 (monotonic counter, one reason per increment).
func (s *State) PushRetryReason(reason string) {
	s.RetryCount++
	s.RetryReasons = append(s.RetryReasons, reason)
}

// RecordError appends to the append-only error history (spec §3).
func (s *State) RecordError(msg string) {
	s.ErrorHistory = append(s.ErrorHistory, msg)
}
