// Package planner implements the supplemented planner stage described in
// SPEC_FULL.md ("Planner stage"): a pure decomposition of a task's
// description into an ordered list of steps, attached to
// task.Attributes["plan"] before dispatch. It is purely informational —
// it never gates dispatch, and its output is not itself verified (only
// the adapter's claim is, per spec §4.4).
package planner

import (
	"regexp"
	"strings"
)

// Step is one decomposed unit of work.
type Step struct {
	Index       int
	Description string
}

var sentenceSplit = regexp.MustCompile(`[.\n]+`)
var bulletPrefix = regexp.MustCompile(`^\s*[-*\d.)]+\s*`)

// Plan decomposes a free-text description into an ordered step list.
// Each non-empty sentence or bullet line becomes one step; there is no
// LLM call here — the planner is a pure, deterministic pre-processing
// pass so its output can be attached to a task before any adapter is
// even selected.
func Plan(description string) []Step {
	var steps []Step
	for _, line := range sentenceSplit.Split(description, -1) {
		line = bulletPrefix.ReplaceAllString(strings.TrimSpace(line), "")
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		steps = append(steps, Step{Index: len(steps), Description: line})
	}
	return steps
}

// AttributeKey is where the plan is attached on task.Task.Attributes.
const AttributeKey = "plan"
