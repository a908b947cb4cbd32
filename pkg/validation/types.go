// Package validation implements the domain validators of spec §4.3:
// FrontendValidator, BackendValidator, and MemoryValidator, each a pure
// function over a change set and a workspace root, plus the
// domain-to-validator registration map that is the component's single
// extension point.
package validation

import (
	"fmt"
	"strings"

	"github.com/jordigilh/taskforge/pkg/task"
)

// Severity classifies a validation issue (spec §3 "Validation Issue").
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// Issue is a single finding against one file.
type Issue struct {
	File     string
	Issue    string
	Severity Severity
}

// Result is a validator's structured pass/fail report (spec §4.3).
type Result struct {
	Passed    bool
	Reason    string
	Issues    []Issue
	Retriable bool
}

// Summary renders a human-readable digest of the issues found,
// supplementing the pass/fail boolean with the kind of detail an
// operator skimming a stage event would want (additive per
// SPEC_FULL.md "validator severity summary").
func (r Result) Summary() string {
	if len(r.Issues) == 0 {
		return "no issues found"
	}
	counts := map[Severity]int{}
	for _, i := range r.Issues {
		counts[i.Severity]++
	}
	var parts []string
	for _, sev := range []Severity{SeverityCritical, SeverityWarning, SeverityInfo} {
		if n := counts[sev]; n > 0 {
			parts = append(parts, fmt.Sprintf("%d %s", n, sev))
		}
	}
	return strings.Join(parts, ", ")
}

// Validator is the capability interface of spec §9 ("replace inheritance
// hierarchy with a capability plus a registration map").
type Validator interface {
	Validate(changes []task.ChangeClaim, workspaceRoot string) Result
}

// Registry maps a domain tag to its ordered list of validators. Mixed
// tasks run all registered validators; the selection map is the single
// extension point new domains plug into (spec §4.3).
type Registry struct {
	byDomain map[task.Domain][]Validator
}

// NewRegistry builds the default registration: one validator per
// concrete domain (spec §4.3's three validators).
func NewRegistry() *Registry {
	r := &Registry{byDomain: make(map[task.Domain][]Validator)}
	r.Register(task.DomainFrontend, &Frontend{})
	r.Register(task.DomainBackend, &Backend{})
	r.Register(task.DomainMemory, &Memory{})
	return r
}

// Register appends a validator for domain.
func (r *Registry) Register(domain task.Domain, v Validator) {
	r.byDomain[domain] = append(r.byDomain[domain], v)
}

// For resolves the ordered validator list for a domain. A `mixed` task
// runs all three concrete-domain validators, in a stable order.
func (r *Registry) For(domain task.Domain) []Validator {
	if domain == task.DomainMixed {
		var all []Validator
		for _, d := range []task.Domain{task.DomainMemory, task.DomainBackend, task.DomainFrontend} {
			all = append(all, r.byDomain[d]...)
		}
		return all
	}
	return r.byDomain[domain]
}

func hasCritical(issues []Issue) bool {
	for _, i := range issues {
		if i.Severity == SeverityCritical {
			return true
		}
	}
	return false
}
