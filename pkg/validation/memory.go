package validation

import (
	"path/filepath"
	"regexp"
	"strings"

	"github.com/jordigilh/taskforge/pkg/task"
)

// Memory implements spec §4.3's MemoryValidator (data-schema): every
// created table needs row-level security in the same file, DROP TABLE
// is always critical, and two-or-more CREATE TABLEs without a BEGIN
// wrapper is a non-blocking warning.
type Memory struct{}

var createTablePattern = regexp.MustCompile(`(?i)CREATE\s+TABLE\s+(?:IF\s+NOT\s+EXISTS\s+)?([a-zA-Z0-9_."]+)`)
var dropTablePattern = regexp.MustCompile(`(?i)DROP\s+TABLE`)
var beginPattern = regexp.MustCompile(`(?i)\bBEGIN\b`)

func (Memory) Validate(changes []task.ChangeClaim, workspaceRoot string) Result {
	var issues []Issue

	for _, c := range changes {
		if c.Action == task.ActionDeleted || filepath.Ext(c.FilePath) != ".sql" {
			continue
		}
		content, ok := readContent(c, workspaceRoot)
		if !ok {
			continue
		}

		if dropTablePattern.MatchString(content) {
			issues = append(issues, Issue{File: c.FilePath, Issue: "DROP TABLE statement present", Severity: SeverityCritical})
		}

		tables := createTablePattern.FindAllStringSubmatch(content, -1)
		for _, m := range tables {
			name := strings.Trim(m[1], `"`)
			if !hasRLS(content, name) {
				issues = append(issues, Issue{
					File:     c.FilePath,
					Issue:    "Table " + name + " created without RLS policy",
					Severity: SeverityCritical,
				})
			}
		}

		if len(tables) >= 2 && !beginPattern.MatchString(content) {
			issues = append(issues, Issue{File: c.FilePath, Issue: "multiple CREATE TABLE statements without a BEGIN wrapper", Severity: SeverityWarning})
		}
	}

	critical := hasCritical(issues)
	result := Result{Passed: !critical, Issues: issues, Reason: "data-schema validation"}
	if critical {
		result.Retriable = false
	}
	return result
}

func hasRLS(content, table string) bool {
	enablePattern := regexp.MustCompile(`(?i)ALTER\s+TABLE\s+` + regexp.QuoteMeta(table) + `\s+ENABLE\s+ROW\s+LEVEL\s+SECURITY`)
	policyPattern := regexp.MustCompile(`(?i)CREATE\s+POLICY\s+\S+\s+ON\s+` + regexp.QuoteMeta(table))
	return enablePattern.MatchString(content) || policyPattern.MatchString(content)
}
