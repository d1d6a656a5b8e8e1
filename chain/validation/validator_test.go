package validation

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360studio/stagehand/chain"
)

func doneChain() *chain.Chain {
	return &chain.Chain{
		ID:        "chain-1",
		RequestID: "REQ-1",
		Type:      chain.TypeDesign,
		Status:    chain.StatusActive,
		CreatedAt: time.Now().Add(-time.Hour),
		Tasks: []chain.Task{
			{ID: "task-1", Status: chain.TaskDone, Acceptance: []string{"it works"}, AcceptanceChecked: true},
			{ID: "task-2", Status: chain.TaskDone},
		},
		CompletionNotes: "delivered the design document",
	}
}

func checkByName(t *testing.T, result *chain.ValidationResult, name string) chain.ValidationCheck {
	t.Helper()
	for _, c := range result.Checks {
		if c.Name == name {
			return c
		}
	}
	t.Fatalf("check %q not found in result", name)
	return chain.ValidationCheck{}
}

func TestValidateAllChecksPass(t *testing.T) {
	v := NewChecker(t.TempDir(), Config{})

	result := v.Validate(doneChain())
	assert.True(t, result.RequiredPassed())
	assert.True(t, result.Passed())
	assert.Empty(t, result.FormatFeedback())
}

func TestMissingCompletionNotesIsNamedInDiagnostics(t *testing.T) {
	v := NewChecker(t.TempDir(), Config{})

	c := doneChain()
	c.CompletionNotes = ""
	result := v.Validate(c)

	assert.False(t, result.RequiredPassed())
	check := checkByName(t, result, CheckCompletionNotes)
	assert.False(t, check.Passed)
	assert.Contains(t, result.FormatFeedback(), CheckCompletionNotes)
}

func TestOpenTasksFailTaskStateCheck(t *testing.T) {
	v := NewChecker(t.TempDir(), Config{})

	c := doneChain()
	c.Tasks[1].Status = chain.TaskInReview
	result := v.Validate(c)

	check := checkByName(t, result, CheckTaskStateComplete)
	assert.False(t, check.Passed)
	assert.Contains(t, check.Detail, "task-2")
}

func TestUncheckedAcceptanceCriteriaFail(t *testing.T) {
	v := NewChecker(t.TempDir(), Config{})

	c := doneChain()
	c.Tasks[0].AcceptanceChecked = false
	result := v.Validate(c)

	check := checkByName(t, result, CheckAcceptanceCriteria)
	assert.False(t, check.Passed)
	assert.Contains(t, check.Detail, "task-1")
}

func TestDesignDocCheckForImplementationChains(t *testing.T) {
	root := t.TempDir()
	v := NewChecker(root, Config{Required: map[string]bool{CheckDesignDocUpdated: true}})

	c := doneChain()
	c.Type = chain.TypeImplementation
	c.DependsOn = "chain-0"
	c.DesignDoc = "docs/design.md"

	// Missing document fails.
	result := v.Validate(c)
	check := checkByName(t, result, CheckDesignDocUpdated)
	assert.False(t, check.Passed)

	// A document newer than the chain passes.
	require.NoError(t, os.MkdirAll(filepath.Join(root, "docs"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "docs", "design.md"), []byte("# design"), 0644))
	result = v.Validate(c)
	check = checkByName(t, result, CheckDesignDocUpdated)
	assert.True(t, check.Passed)
}

func TestCoverageThreshold(t *testing.T) {
	v := NewChecker(t.TempDir(), Config{
		Required:          map[string]bool{CheckTestCoverage: true},
		CoverageThreshold: 80,
	})

	c := doneChain()
	c.Coverage = 72.5
	result := v.Validate(c)
	check := checkByName(t, result, CheckTestCoverage)
	assert.False(t, check.Passed)
	assert.Contains(t, check.Detail, "72.5")

	c.Coverage = 85
	result = v.Validate(c)
	assert.True(t, checkByName(t, result, CheckTestCoverage).Passed)
}

func TestSkipDesignChainsSkipDesignDocCheck(t *testing.T) {
	v := NewChecker(t.TempDir(), Config{Required: map[string]bool{CheckDesignDocUpdated: true}})

	c := doneChain()
	c.Type = chain.TypeImplementation
	c.SkipDesign = true
	c.SkipDesignJustification = "trivial fix"

	result := v.Validate(c)
	assert.True(t, checkByName(t, result, CheckDesignDocUpdated).Passed)
}
