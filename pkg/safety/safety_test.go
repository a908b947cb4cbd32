package safety

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/jordigilh/taskforge/pkg/task"
)

func TestPreflight_ForbiddenPath(t *testing.T) {
	c := NewChecker()
	result := c.Preflight(task.Task{TargetPaths: []string{"services/api/.env.production"}})

	assert.False(t, result.Safe)
	assert.Contains(t, result.BlockedItems, "services/api/.env.production")
}

func TestPreflight_ForbiddenPathCaseInsensitive(t *testing.T) {
	c := NewChecker()
	result := c.Preflight(task.Task{TargetPaths: []string{"Secrets/API_KEY.TXT"}})
	assert.False(t, result.Safe)
}

func TestPreflight_ScopeBudgetFiles(t *testing.T) {
	c := NewChecker()
	paths := make([]string, 21)
	for i := range paths {
		paths[i] = "src/file.go"
	}
	result := c.Preflight(task.Task{TargetPaths: paths})
	assert.False(t, result.Safe)
	assert.Contains(t, result.Reason, "max_files")
}

func TestPreflight_ScopeBudgetDirectories(t *testing.T) {
	c := NewChecker()
	paths := []string{
		"a/file.go", "b/file.go", "c/file.go", "d/file.go", "e/file.go",
		"f/file.go", "g/file.go", "h/file.go", "i/file.go", "j/file.go", "k/file.go",
	}
	result := c.Preflight(task.Task{TargetPaths: paths})
	assert.False(t, result.Safe)
	assert.Contains(t, result.Reason, "max_directories")
}

func TestPreflight_Safe(t *testing.T) {
	c := NewChecker()
	result := c.Preflight(task.Task{TargetPaths: []string{"src/routes/users.ts"}})
	assert.True(t, result.Safe)
}

func TestScanOutput_SensitiveName(t *testing.T) {
	c := NewChecker()
	result := c.ScanOutput("exported ANTHROPIC_API_KEY=sk_ant_1234567890abcdefghijklmnopqrstuvwxyz")
	assert.False(t, result.Safe)
	assert.Contains(t, result.Reason, "ANTHROPIC_API_KEY")
}

func TestScanOutput_LongOpaqueToken(t *testing.T) {
	c := NewChecker()
	result := c.ScanOutput(`token = "abcdefghijklmnopqrstuvwxyz0123456789ABCD"`)
	assert.False(t, result.Safe)
}

func TestScanOutput_Clean(t *testing.T) {
	c := NewChecker()
	result := c.ScanOutput("all tests passed, 12 files changed")
	assert.True(t, result.Safe)
	assert.Empty(t, result.Leaks)
}

func TestScanOutput_UnquotedLongRunIsNotAToken(t *testing.T) {
	c := NewChecker()
	result := c.ScanOutput("commit 8f1c2b9a7e6d5c4b3a2190837465fedcba09182736455647381920abcdef01 applied cleanly")
	assert.True(t, result.Safe)
	assert.Empty(t, result.Leaks)
}
