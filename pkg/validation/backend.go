package validation

import (
	"path/filepath"
	"regexp"
	"strings"

	"github.com/jordigilh/taskforge/pkg/task"
)

// Backend implements spec §4.3's BackendValidator: hardcoded credentials
// and SQL-injection-shaped string building are critical (security
// failures are never retriable); missing error handling in route
// handlers is a non-blocking warning.
type Backend struct{}

var hardcodedCredPattern = regexp.MustCompile(`(?i)(password|api_key|secret|token)\s*=\s*["'][^"']+["']`)
var sqlConcatPattern = regexp.MustCompile(`(?i)(query|execute)\(\s*["'][^"']*["']\s*\+`)
var sqlTemplatePattern = regexp.MustCompile("`[^`]*SELECT[^`]*\\$\\{")

func (Backend) Validate(changes []task.ChangeClaim, workspaceRoot string) Result {
	var issues []Issue

	for _, c := range changes {
		if c.Action == task.ActionDeleted || isFrontendFile(c.FilePath) || !isBackendFile(c.FilePath) {
			continue
		}
		content, ok := readContent(c, workspaceRoot)
		if !ok {
			continue
		}

		if hardcodedCredPattern.MatchString(content) {
			issues = append(issues, Issue{File: c.FilePath, Issue: "hardcoded credential assignment", Severity: SeverityCritical})
		}
		if sqlConcatPattern.MatchString(content) || sqlTemplatePattern.MatchString(content) {
			issues = append(issues, Issue{File: c.FilePath, Issue: "SQL injection risk via string concatenation/interpolation", Severity: SeverityCritical})
		}

		lowerPath := strings.ToLower(c.FilePath)
		isRoute := strings.Contains(lowerPath, "/routes/") || strings.Contains(strings.ToLower(filepath.Base(c.FilePath)), "router")
		if isRoute && !hasErrorHandling(content) {
			issues = append(issues, Issue{File: c.FilePath, Issue: "route handler missing error handling", Severity: SeverityWarning})
		}
	}

	critical := hasCritical(issues)
	result := Result{Passed: !critical, Issues: issues, Reason: "backend validation"}
	if critical {
		result.Retriable = false
	}
	return result
}

func isBackendFile(path string) bool {
	lower := strings.ToLower(path)
	for _, marker := range []string{"/routes/", "/controllers/", "/services/", "/middleware/", "/api/"} {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	switch filepath.Ext(lower) {
	case ".ts", ".py":
		return true
	}
	return false
}

func hasErrorHandling(content string) bool {
	for _, marker := range []string{"try {", "try{", ".catch(", "errorHandler", "asyncHandler"} {
		if strings.Contains(content, marker) {
			return true
		}
	}
	return false
}
