// Package safety implements the pre-flight and post-flight guards of
// spec §4.2: forbidden-path / scope-budget checks before dispatch, and a
// credential-leak scan over agent free-text output afterward.
package safety

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/jordigilh/taskforge/pkg/task"
)

// forbiddenSubstrings is matched case-insensitively against the
// normalized target path (spec §4.2 check 1).
var forbiddenSubstrings = []string{
	".git", ".env", ".env.local", ".env.production",
	"credentials.json", "serviceaccountkey.json", "secrets/",
	"node_modules/", "__pycache__/",
}

// sensitiveNames are leaked-credential markers scanned for verbatim in
// agent output (spec §4.2 post-flight).
var sensitiveNames = []string{
	"ANTHROPIC_API_KEY", "GOOGLE_APPLICATION_CREDENTIALS",
	"AWS_SECRET_ACCESS_KEY", "DATABASE_URL", "JWT_SECRET", "PRIVATE_KEY",
}

// quotedTokenPattern matches a quoted token of length >= 32, independent
// of the sensitive-name list (spec §4.2: "a quoted token of length >= 32
// characters"). The quotes are load-bearing: an unquoted 32+ char run is
// just as likely to be a commit SHA, a URL path segment, or a hash the
// agent legitimately printed.
var quotedTokenPattern = regexp.MustCompile(`["']([A-Za-z0-9_-]{32,})["']`)

// PreflightResult is the pre-dispatch safety verdict (spec §4.2).
type PreflightResult struct {
	Safe         bool
	Reason       string
	BlockedItems []string
}

// OutputScanResult is the post-flight credential-leak verdict.
type OutputScanResult struct {
	Safe   bool
	Reason string
	Leaks  []string
}

// Checker implements both contracts of spec §4.2. It holds no mutable
// state — each check is a pure function of its input — so a single
// instance may be shared across orchestrator instances (spec §5).
type Checker struct{}

// NewChecker constructs a safety Checker.
func NewChecker() *Checker {
	return &Checker{}
}

// Preflight runs the forbidden-path check then the scope budget check,
// in that order, against a submitted task's target paths.
func (c *Checker) Preflight(t task.Task) PreflightResult {
	if blocked := forbiddenPaths(t.TargetPaths); len(blocked) > 0 {
		return PreflightResult{
			Safe:         false,
			Reason:       fmt.Sprintf("target paths touch forbidden locations: %s", strings.Join(blocked, ", ")),
			BlockedItems: blocked,
		}
	}

	budget := t.Budget
	if budget.MaxFiles == 0 && budget.MaxDirectories == 0 {
		budget = task.DefaultChangeBudget()
	}

	if len(t.TargetPaths) > budget.MaxFiles {
		return PreflightResult{
			Safe:   false,
			Reason: fmt.Sprintf("scope exceeds budget: %d target paths > max_files %d", len(t.TargetPaths), budget.MaxFiles),
		}
	}

	if dirs := topLevelDirs(t.TargetPaths); len(dirs) > budget.MaxDirectories {
		return PreflightResult{
			Safe:   false,
			Reason: fmt.Sprintf("scope exceeds budget: %d distinct top-level directories > max_directories %d", len(dirs), budget.MaxDirectories),
		}
	}

	return PreflightResult{Safe: true}
}

func forbiddenPaths(paths []string) []string {
	var blocked []string
	for _, p := range paths {
		normalized := strings.ToLower(filepathClean(p))
		for _, forbidden := range forbiddenSubstrings {
			if strings.Contains(normalized, forbidden) {
				blocked = append(blocked, p)
				break
			}
		}
	}
	return blocked
}

// filepathClean normalizes path separators without touching the
// filesystem — we only need a stable string for substring matching.
func filepathClean(p string) string {
	return strings.ReplaceAll(p, "\\", "/")
}

func topLevelDirs(paths []string) map[string]struct{} {
	dirs := make(map[string]struct{})
	for _, p := range paths {
		clean := filepathClean(p)
		if idx := strings.Index(clean, "/"); idx >= 0 {
			dirs[clean[:idx]] = struct{}{}
		}
	}
	return dirs
}

// ScanOutput inspects agent free-text output for leaked credentials
// (spec §4.2 post-flight contract).
func (c *Checker) ScanOutput(output string) OutputScanResult {
	var leaks []string

	for _, name := range sensitiveNames {
		if strings.Contains(output, name) {
			leaks = append(leaks, name)
		}
	}

	for _, m := range quotedTokenPattern.FindAllStringSubmatch(output, -1) {
		leaks = append(leaks, fmt.Sprintf("opaque token (len=%d)", len(m[1])))
	}

	if len(leaks) > 0 {
		return OutputScanResult{
			Safe:   false,
			Reason: fmt.Sprintf("output contains leaked credential markers: %s", strings.Join(dedupe(leaks), ", ")),
			Leaks:  leaks,
		}
	}
	return OutputScanResult{Safe: true}
}

func dedupe(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		if _, ok := seen[s]; !ok {
			seen[s] = struct{}{}
			out = append(out, s)
		}
	}
	return out
}
