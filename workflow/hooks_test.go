package workflow

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360studio/stagehand/chain"
	"github.com/c360studio/stagehand/governance"
	"github.com/c360studio/stagehand/template"
)

// hookFixture exposes the executor directly so actions can be exercised
// without a full stage transition.
type hookFixture struct {
	*fixture
	exec    *Executor
	workDir string
}

func newHookFixture(t *testing.T, gov *governance.Evaluator) *hookFixture {
	t.Helper()
	f := newFixture(t)
	workDir := t.TempDir()
	exec := NewExecutor(f.run, f.agents, f.chains, f.store, f.sink, gov, workDir, slog.Default())
	return &hookFixture{fixture: f, exec: exec, workDir: workDir}
}

func hookedStage(name, roleID string, actions ...template.Action) *StageState {
	return &StageState{Stage: template.Stage{
		Name:   name,
		Type:   template.StageImplementation,
		RoleID: roleID,
		Hooks:  template.Hooks{OnEnter: actions},
	}}
}

func TestFileMoveHookRenamesWithinWorkDir(t *testing.T) {
	f := newHookFixture(t, nil)

	src := filepath.Join(f.workDir, "drafts", "plan.md")
	require.NoError(t, os.MkdirAll(filepath.Dir(src), 0755))
	require.NoError(t, os.WriteFile(src, []byte("plan"), 0644))

	w := &Workflow{ID: "wf-1", RequestID: "REQ-1", Status: StatusActive}
	stage := hookedStage("promote", "",
		template.Action{Type: template.ActionFileMove, From: "drafts/plan.md", To: "docs/plan.md"})

	require.NoError(t, f.exec.RunBatch(context.Background(), w, stage, phaseEnter))

	_, err := os.Stat(filepath.Join(f.workDir, "docs", "plan.md"))
	require.NoError(t, err)
	_, err = os.Stat(src)
	assert.True(t, os.IsNotExist(err))
}

func TestFileMoveHookBlockedByGovernance(t *testing.T) {
	gov := governance.NewEvaluator(map[string]governance.RoleRules{
		"implementer": {
			Deny:  []governance.Rule{{Pattern: "docs/**", Reason: "docs are reviewer-owned"}},
			Allow: []governance.Rule{{Pattern: "**"}},
		},
	}, slog.Default())
	f := newHookFixture(t, gov)

	src := filepath.Join(f.workDir, "drafts", "plan.md")
	require.NoError(t, os.MkdirAll(filepath.Dir(src), 0755))
	require.NoError(t, os.WriteFile(src, []byte("plan"), 0644))

	w := &Workflow{ID: "wf-1", RequestID: "REQ-1", Status: StatusActive}
	stage := hookedStage("promote", "implementer",
		template.Action{Type: template.ActionFileMove, From: "drafts/plan.md", To: "docs/plan.md"})

	err := f.exec.RunBatch(context.Background(), w, stage, phaseEnter)
	var herr *HookExecutionError
	require.ErrorAs(t, err, &herr)
	var denied *governance.DeniedError
	require.ErrorAs(t, err, &denied)
	assert.Contains(t, denied.Reason, "reviewer-owned")

	// The denied move left the file where it was.
	_, statErr := os.Stat(src)
	require.NoError(t, statErr)
}

func TestCustomHookDispatch(t *testing.T) {
	f := newHookFixture(t, nil)

	var got map[string]string
	f.exec.RegisterHandler("notify-oncall", func(_ context.Context, _ *Workflow, _ *StageState, action template.Action) error {
		got = action.Context
		return nil
	})

	w := &Workflow{ID: "wf-1", Status: StatusActive}
	stage := hookedStage("escalate", "",
		template.Action{Type: template.ActionCustom, Handler: "notify-oncall", Context: map[string]string{"severity": "low"}})

	require.NoError(t, f.exec.RunBatch(context.Background(), w, stage, phaseEnter))
	assert.Equal(t, "low", got["severity"])
}

func TestCustomHookUnknownHandlerFails(t *testing.T) {
	f := newHookFixture(t, nil)

	w := &Workflow{ID: "wf-1", Status: StatusActive}
	stage := hookedStage("escalate", "",
		template.Action{Type: template.ActionCustom, Handler: "nope"})

	err := f.exec.RunBatch(context.Background(), w, stage, phaseEnter)
	var herr *HookExecutionError
	require.ErrorAs(t, err, &herr)
	assert.Contains(t, herr.Error(), "nope")
	assert.True(t, IsHookError(err))
	assert.False(t, IsHookError(errors.New("plain")))
}

func TestPostMessageToOtherWorkflowPersists(t *testing.T) {
	f := newHookFixture(t, nil)

	other := &Workflow{
		ID:        NewWorkflowID(),
		RequestID: "REQ-2",
		Status:    StatusActive,
	}
	require.NoError(t, f.store.Create(other))

	w := &Workflow{ID: "wf-origin", Status: StatusActive}
	stage := hookedStage("handoff", "",
		template.Action{Type: template.ActionPostMessage, WorkflowID: other.ID, Message: "work handed off"})

	require.NoError(t, f.exec.RunBatch(context.Background(), w, stage, phaseEnter))

	// The triggering workflow is untouched; the target was saved.
	assert.Empty(t, w.Messages)
	stored, err := f.store.Get(other.ID)
	require.NoError(t, err)
	require.Len(t, stored.Messages, 1)
	assert.Equal(t, SystemAuthor, stored.Messages[0].Author)
	assert.Equal(t, "work handed off", stored.Messages[0].Body)
	require.Len(t, f.sink.messages, 1)
}

func TestPostMessageToSelfStaysInMemory(t *testing.T) {
	f := newHookFixture(t, nil)

	w := &Workflow{ID: "wf-self", Status: StatusActive}
	stage := hookedStage("note", "",
		template.Action{Type: template.ActionPostMessage, Message: "entered review"})

	require.NoError(t, f.exec.RunBatch(context.Background(), w, stage, phaseEnter))
	require.Len(t, w.Messages, 1)
	assert.Equal(t, "entered review", w.Messages[0].Body)

	// Nothing was written; the caller persists the transition.
	_, err := f.store.Get(w.ID)
	assert.ErrorIs(t, err, ErrWorkflowNotFound)
}

func TestTaskTransitionHookResolvesChainByRequest(t *testing.T) {
	f := newHookFixture(t, nil)

	c, err := f.chains.CreateChain(chain.CreateChainInput{
		ID:        "chain-impl",
		RequestID: "REQ-3",
		Type:      chain.TypeDesign,
	})
	require.NoError(t, err)
	task, err := f.chains.AddTask(c.ID, chain.TaskInput{Title: "wire it up"})
	require.NoError(t, err)

	w := &Workflow{ID: "wf-1", RequestID: "REQ-3", Status: StatusActive}
	stage := hookedStage("kickoff", "",
		template.Action{Type: template.ActionTaskTransition, TaskID: task.ID, Transition: "ready"})

	require.NoError(t, f.exec.RunBatch(context.Background(), w, stage, phaseEnter))

	got, err := f.chains.GetChain(c.ID)
	require.NoError(t, err)
	assert.Equal(t, chain.TaskTodo, got.Task(task.ID).Status)
}

func TestTaskTransitionHookUnknownTask(t *testing.T) {
	f := newHookFixture(t, nil)

	w := &Workflow{ID: "wf-1", RequestID: "REQ-none", Status: StatusActive}
	stage := hookedStage("kickoff", "",
		template.Action{Type: template.ActionTaskTransition, TaskID: "task-x", Transition: "ready"})

	err := f.exec.RunBatch(context.Background(), w, stage, phaseEnter)
	assert.ErrorIs(t, err, chain.ErrTaskNotFound)
}
