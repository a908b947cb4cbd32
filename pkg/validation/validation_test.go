package validation

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/jordigilh/taskforge/pkg/task"
)

func claim(path, content string) task.ChangeClaim {
	return task.ChangeClaim{FilePath: path, Action: task.ActionModified, Content: content}
}

func TestFrontend_ConsoleLogWarning(t *testing.T) {
	v := Frontend{}
	r := v.Validate([]task.ChangeClaim{claim("web/Panel.tsx", "console.log('debug')")}, "")
	assert.True(t, r.Passed)
	assert.Len(t, r.Issues, 1)
	assert.Equal(t, SeverityWarning, r.Issues[0].Severity)
}

func TestFrontend_ImgMissingAlt(t *testing.T) {
	v := Frontend{}
	r := v.Validate([]task.ChangeClaim{claim("web/Panel.tsx", `<img src="x.png">`)}, "")
	assert.True(t, r.Passed)
	assert.Contains(t, r.Summary(), "warning")
}

func TestFrontend_ImgWithAltIsClean(t *testing.T) {
	v := Frontend{}
	r := v.Validate([]task.ChangeClaim{claim("web/Panel.tsx", `<img src="x.png" alt="x">`)}, "")
	assert.Empty(t, r.Issues)
}

func TestFrontend_IgnoresNonFrontendFiles(t *testing.T) {
	v := Frontend{}
	r := v.Validate([]task.ChangeClaim{claim("services/routes/api.ts", "console.log('x')")}, "")
	assert.Empty(t, r.Issues)
}

func TestBackend_HardcodedCredentialIsCritical(t *testing.T) {
	v := Backend{}
	r := v.Validate([]task.ChangeClaim{claim("services/routes/auth.ts", `const api_key = "sk-abcdef123456"`)}, "")
	assert.False(t, r.Passed)
	assert.False(t, r.Retriable)
}

func TestBackend_SQLConcatenationIsCritical(t *testing.T) {
	v := Backend{}
	r := v.Validate([]task.ChangeClaim{claim("services/controllers/users.ts", `db.query("SELECT * FROM users WHERE id=" + userId)`)}, "")
	assert.False(t, r.Passed)
}

func TestBackend_SQLTemplateLiteralIsCritical(t *testing.T) {
	v := Backend{}
	r := v.Validate([]task.ChangeClaim{claim("services/controllers/users.ts", "db.query(`SELECT * FROM users WHERE id=${userId}`)")}, "")
	assert.False(t, r.Passed)
}

func TestBackend_RouteMissingErrorHandlingIsWarningOnly(t *testing.T) {
	v := Backend{}
	r := v.Validate([]task.ChangeClaim{claim("services/routes/users.ts", "router.get('/users', (req, res) => { res.send(users) })")}, "")
	assert.True(t, r.Passed)
	assert.NotEmpty(t, r.Issues)
	assert.Equal(t, SeverityWarning, r.Issues[0].Severity)
}

func TestBackend_RouteWithAsyncHandlerIsClean(t *testing.T) {
	v := Backend{}
	r := v.Validate([]task.ChangeClaim{claim("services/routes/users.ts", "router.get('/users', asyncHandler(handler))")}, "")
	assert.Empty(t, r.Issues)
}

func TestMemory_CreateTableWithoutRLSIsCritical(t *testing.T) {
	v := Memory{}
	r := v.Validate([]task.ChangeClaim{claim("supabase/migrations/001.sql", "CREATE TABLE users (id uuid primary key);")}, "")
	assert.False(t, r.Passed)
	assert.False(t, r.Retriable)
	assert.Contains(t, r.Issues[0].Issue, "Table users created without RLS policy")
}

func TestMemory_CreateTableWithRLSPasses(t *testing.T) {
	v := Memory{}
	sql := "CREATE TABLE users (id uuid primary key);\nALTER TABLE users ENABLE ROW LEVEL SECURITY;"
	r := v.Validate([]task.ChangeClaim{claim("supabase/migrations/001.sql", sql)}, "")
	assert.True(t, r.Passed)
}

func TestMemory_CreateTableWithPolicyPasses(t *testing.T) {
	v := Memory{}
	sql := `CREATE TABLE users (id uuid primary key);
CREATE POLICY tenant_isolation ON users USING (tenant_id = current_tenant());`
	r := v.Validate([]task.ChangeClaim{claim("supabase/migrations/001.sql", sql)}, "")
	assert.True(t, r.Passed)
}

func TestMemory_DropTableIsCritical(t *testing.T) {
	v := Memory{}
	r := v.Validate([]task.ChangeClaim{claim("supabase/migrations/002.sql", "DROP TABLE old_sessions;")}, "")
	assert.False(t, r.Passed)
}

func TestMemory_MultipleCreateTableWithoutBeginIsWarning(t *testing.T) {
	v := Memory{}
	sql := `CREATE TABLE a (id uuid primary key);
ALTER TABLE a ENABLE ROW LEVEL SECURITY;
CREATE TABLE b (id uuid primary key);
ALTER TABLE b ENABLE ROW LEVEL SECURITY;`
	r := v.Validate([]task.ChangeClaim{claim("supabase/migrations/003.sql", sql)}, "")
	assert.True(t, r.Passed)
	found := false
	for _, i := range r.Issues {
		if i.Severity == SeverityWarning {
			found = true
		}
	}
	assert.True(t, found)
}

func TestRegistry_MixedRunsAllThreeInOrder(t *testing.T) {
	reg := NewRegistry()
	validators := reg.For(task.DomainMixed)
	require := []string{"*validation.Memory", "*validation.Backend", "*validation.Frontend"}
	if assert.Len(t, validators, len(require)) {
		for i, v := range validators {
			assert.Equal(t, require[i], fmt.Sprintf("%T", v))
		}
	}
}

func TestRegistry_SingleDomain(t *testing.T) {
	reg := NewRegistry()
	assert.Len(t, reg.For(task.DomainBackend), 1)
}
