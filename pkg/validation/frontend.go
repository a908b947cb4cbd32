package validation

import (
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/jordigilh/taskforge/pkg/task"
)

// Frontend implements spec §4.3's FrontendValidator: console.log usage,
// inline styles, and <img> tags missing alt text are all non-blocking
// (no critical issue is defined for frontend by default).
type Frontend struct{}

var imgTagPattern = regexp.MustCompile(`<img\b[^>]*>`)
var altAttrPattern = regexp.MustCompile(`\balt\s*=`)

func (Frontend) Validate(changes []task.ChangeClaim, workspaceRoot string) Result {
	var issues []Issue

	for _, c := range changes {
		if c.Action == task.ActionDeleted || !isFrontendFile(c.FilePath) {
			continue
		}
		content, ok := readContent(c, workspaceRoot)
		if !ok {
			continue
		}

		if strings.Contains(content, "console.log") {
			issues = append(issues, Issue{File: c.FilePath, Issue: "console.log left in source", Severity: SeverityWarning})
		}
		if strings.Contains(content, "style={") {
			issues = append(issues, Issue{File: c.FilePath, Issue: "inline style attribute", Severity: SeverityInfo})
		}
		for _, tag := range imgTagPattern.FindAllString(content, -1) {
			if !altAttrPattern.MatchString(tag) {
				issues = append(issues, Issue{File: c.FilePath, Issue: "<img> without alt attribute", Severity: SeverityWarning})
			}
		}
	}

	return Result{Passed: !hasCritical(issues), Issues: issues, Reason: "frontend validation"}
}

func isFrontendFile(path string) bool {
	lower := strings.ToLower(path)
	if strings.Contains(lower, "frontend/") || strings.Contains(lower, "web/") {
		return true
	}
	switch filepath.Ext(lower) {
	case ".tsx", ".jsx", ".css", ".html":
		return true
	}
	return false
}

func readContent(c task.ChangeClaim, workspaceRoot string) (string, bool) {
	if c.Content != "" {
		return c.Content, true
	}
	data, err := os.ReadFile(filepath.Join(workspaceRoot, c.FilePath))
	if err != nil {
		return "", false
	}
	return string(data), true
}
