package governance

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testRoles() map[string]RoleRules {
	return map[string]RoleRules{
		"implementer": {
			Deny: []Rule{
				{Pattern: "secrets/**", Reason: "credentials are off limits"},
				{Pattern: "**/*.lock", Actions: []Action{ActionDelete}, Reason: "lockfiles are managed by tooling"},
			},
			Approve: []Rule{
				{Pattern: "migrations/**", Reason: "schema changes need sign-off"},
			},
			Allow: []Rule{
				{Pattern: "app/**"},
				{Pattern: "docs/**"},
			},
		},
	}
}

func TestEvaluatePrecedence(t *testing.T) {
	e := NewEvaluator(testRoles(), nil)

	tests := []struct {
		name   string
		action Action
		path   string
		want   Decision
	}{
		{"deny wins over allow", ActionModify, "secrets/api-key.txt", Deny},
		{"approve bucket", ActionCreate, "migrations/0042_add_index.sql", Approve},
		{"plain allow", ActionModify, "app/api/users.go", Allow},
		{"unmatched path fails closed", ActionCreate, "infra/terraform/main.tf", Deny},
		{"action filter limits deny to delete", ActionModify, "app/go.lock", Allow},
		{"action filter applies on delete", ActionDelete, "app/go.lock", Deny},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := e.Evaluate("implementer", tt.action, tt.path)
			require.NoError(t, err)
			assert.Equal(t, tt.want, result.Decision)
		})
	}
}

func TestEvaluateUnknownRoleDenies(t *testing.T) {
	e := NewEvaluator(testRoles(), nil)

	result, err := e.Evaluate("stranger", ActionModify, "app/main.go")
	require.NoError(t, err)
	assert.Equal(t, Deny, result.Decision)
	assert.Contains(t, result.Reason, "stranger")
}

func TestCheckReturnsDeniedErrorWithReason(t *testing.T) {
	e := NewEvaluator(testRoles(), nil)

	_, err := e.Check("implementer", ActionModify, "secrets/api-key.txt")
	var denied *DeniedError
	require.ErrorAs(t, err, &denied)
	assert.Equal(t, "credentials are off limits", denied.Reason)
	assert.Equal(t, ActionModify, denied.Action)
}

func TestLoadEvaluatorFromYAML(t *testing.T) {
	doc := `roles:
  planner:
    deny:
      - pattern: "vendor/**"
        reason: vendored code is read-only
    allow:
      - pattern: "**"
`
	path := filepath.Join(t.TempDir(), "governance.yaml")
	require.NoError(t, os.WriteFile(path, []byte(doc), 0644))

	e, err := LoadEvaluator(path, nil)
	require.NoError(t, err)

	result, err := e.Evaluate("planner", ActionModify, "vendor/lib/code.go")
	require.NoError(t, err)
	assert.Equal(t, Deny, result.Decision)
	assert.Equal(t, "vendored code is read-only", result.Reason)

	result, err = e.Evaluate("planner", ActionCreate, "app/new.go")
	require.NoError(t, err)
	assert.Equal(t, Allow, result.Decision)
}

func TestLoadEvaluatorMissingFile(t *testing.T) {
	_, err := LoadEvaluator(filepath.Join(t.TempDir(), "missing.yaml"), nil)
	assert.ErrorIs(t, err, ErrRulesNotFound)
}
