// Package classifier implements the domain classification of spec §4.8:
// keyword and path-glob scoring over a task's title/description/target
// paths, resolving to mixed when more than one domain scores.
package classifier

import (
	"strings"

	"github.com/gobwas/glob"

	"github.com/jordigilh/taskforge/pkg/task"
)


// Tables holds the normative keyword/glob tables plus SPEC_FULL.md's
// additive per-domain overrides (classifier.extra_keywords/extra_globs).
type Tables struct {
	Keywords map[task.Domain][]string
	Globs    map[task.Domain][]string
}

// Default returns the normative tables from spec §4.8, verbatim.
func Default() Tables {
	return Tables{
		Keywords: map[task.Domain][]string{
			task.DomainFrontend: {
				"command hub", "ui", "css", "spa", "csp", "styles", "orb overlay",
				"frontend", "component", "layout", "button", "modal", "form", "input",
				"display", "render", "view", "page", "template", "tailwind", "web", "browser",
			},
			task.DomainBackend: {
				"endpoint", "api/v1", "gateway", "controller", "route mount", "sse",
				"operator", "service", "middleware", "handler", "api", "rest", "post",
				"get", "patch", "delete", "express", "router", "request", "response",
				"authentication", "authorization", "cicd", "deploy",
			},
			task.DomainMemory: {
				"supabase", "rpc", "vectors", "qdrant", "mem0", "embedding", "context",
				"memory", "migration", "database", "table", "schema", "index", "query",
				"oasis", "ledger", "tenant", "user context",
			},
		},
		Globs: map[task.Domain][]string{
			task.DomainFrontend: {
				"services/gateway/src/frontend/**", "services/gateway/dist/frontend/**",
				"**/*.html", "**/*.css", "**/frontend/**", "**/web/**",
			},
			task.DomainBackend: {
				"services/gateway/src/**", "services/**/src/**", "**/*.ts",
				"**/routes/**", "**/controllers/**", "**/services/**", "**/middleware/**",
			},
			task.DomainMemory: {
				"supabase/migrations/**", "services/agents/memory-indexer/**",
				"**/memory/**", "**/*.sql",
			},
		},
	}
}

// WithOverrides appends operator-configured extra keywords/globs
// additively, never removing the normative entries (SPEC_FULL.md
// "per-domain keyword/glob override").
func (t Tables) WithOverrides(extraKeywords, extraGlobs map[task.Domain][]string) Tables {
	out := Tables{Keywords: map[task.Domain][]string{}, Globs: map[task.Domain][]string{}}
	for d, k := range t.Keywords {
		out.Keywords[d] = append(append([]string{}, k...), extraKeywords[d]...)
	}
	for d, g := range t.Globs {
		out.Globs[d] = append(append([]string{}, g...), extraGlobs[d]...)
	}
	return out
}

// resolutionOrder breaks ties: memory > backend > frontend (spec §4.8).
var resolutionOrder = []task.Domain{task.DomainMemory, task.DomainBackend, task.DomainFrontend}

// Classify scores title+description+target-paths against the keyword
// and glob tables and resolves the winning domain, or `mixed` when more
// than one domain scores above zero (spec §4.8).
func Classify(t task.Task, tables Tables) task.Domain {
	scores := map[task.Domain]int{}

	text := strings.ToLower(t.Title + " " + t.Description)
	for domain, keywords := range tables.Keywords {
		for _, kw := range keywords {
			if strings.Contains(text, kw) {
				scores[domain]++
			}
		}
	}

	for domain, globs := range tables.Globs {
		for _, path := range t.TargetPaths {
			if MatchesAny(path, globs) {
				scores[domain] += 2
			}
		}
	}

	if len(scores) == 0 {
		return task.DomainBackend // unmatched text defaults to backend (spec §4.8)
	}

	var winner task.Domain
	winnerScore := -1
	for _, d := range resolutionOrder {
		if scores[d] > winnerScore {
			winner = d
			winnerScore = scores[d]
		}
	}
	if winnerScore <= 0 {
		return task.DomainBackend
	}

	for _, d := range resolutionOrder {
		if d != winner && scores[d] > 0 {
			return task.DomainMixed
		}
	}
	return winner
}

// matchGlob matches the normative `**`-bearing glob tables of spec
// §4.8 against a target path, using '/' as the path separator so `**`
// spans directories while `*` stays within one segment.
func matchGlob(pattern, path string) bool {
	path = strings.ReplaceAll(path, "\\", "/")
	g, err := glob.Compile(pattern, '/')
	if err != nil {
		return false
	}
	return g.Match(path)
}

// MatchesAny reports whether path matches at least one of globs. Shared
// with package orchestrator for mixed-domain sub-task path partitioning.
func MatchesAny(path string, globs []string) bool {
	for _, g := range globs {
		if matchGlob(g, path) {
			return true
		}
	}
	return false
}
