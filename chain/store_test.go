package chain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeValidator lets tests script the completion validation outcome.
type fakeValidator struct {
	result *ValidationResult
}

func (f *fakeValidator) Validate(c *Chain) *ValidationResult {
	if f.result != nil {
		r := *f.result
		r.ChainID = c.ID
		return &r
	}
	return &ValidationResult{
		ChainID:   c.ID,
		CheckedAt: time.Now(),
		Checks: []ValidationCheck{
			{Name: "task-state-complete", Required: true, Passed: c.AllTasksDone()},
		},
	}
}

func newTestStore(t *testing.T, v Validator) *Store {
	t.Helper()
	return NewStore(t.TempDir(), v, nil)
}

func mustCreateChain(t *testing.T, s *Store, input CreateChainInput) *Chain {
	t.Helper()
	c, err := s.CreateChain(input)
	require.NoError(t, err)
	return c
}

func TestCreateChainImplementationInvariant(t *testing.T) {
	s := newTestStore(t, nil)

	_, err := s.CreateChain(CreateChainInput{
		RequestID: "REQ-1",
		Type:      TypeImplementation,
	})
	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "depends_on", ve.Field)

	// Depending on a chain that does not exist is also rejected.
	_, err = s.CreateChain(CreateChainInput{
		RequestID: "REQ-1",
		Type:      TypeImplementation,
		DependsOn: "chain-ghost",
	})
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "depends_on", ve.Field)

	design := mustCreateChain(t, s, CreateChainInput{RequestID: "REQ-1", Type: TypeDesign})
	impl := mustCreateChain(t, s, CreateChainInput{
		RequestID: "REQ-1",
		Type:      TypeImplementation,
		DependsOn: design.ID,
	})
	assert.Equal(t, StatusActive, impl.Status)
}

func TestTaskLifecycleHappyPath(t *testing.T) {
	s := newTestStore(t, &fakeValidator{})
	c := mustCreateChain(t, s, CreateChainInput{RequestID: "REQ-1", Type: TypeDesign})

	task, err := s.AddTask(c.ID, TaskInput{Title: "draft the design", Ready: true})
	require.NoError(t, err)
	assert.Equal(t, TaskTodo, task.Status)

	task, err = s.StartTask(c.ID, task.ID)
	require.NoError(t, err)
	assert.Equal(t, TaskInProgress, task.Status)

	task, err = s.CompleteTask(c.ID, task.ID)
	require.NoError(t, err)
	assert.Equal(t, TaskInReview, task.Status)

	task, result, err := s.ApproveTask(c.ID, task.ID, true)
	require.NoError(t, err)
	assert.Equal(t, TaskDone, task.Status)
	require.NotNil(t, result, "final approval must trigger completion validation")
	assert.True(t, result.RequiredPassed())

	got, err := s.GetChain(c.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusDone, got.Status)
}

func TestInvalidTransitionLeavesNoPartialMutation(t *testing.T) {
	s := newTestStore(t, nil)
	c := mustCreateChain(t, s, CreateChainInput{RequestID: "REQ-1", Type: TypeDesign})

	task, err := s.AddTask(c.ID, TaskInput{Title: "work"})
	require.NoError(t, err)

	// backlog → in-progress is not an edge.
	_, err = s.StartTask(c.ID, task.ID)
	var ve *ValidationError
	require.ErrorAs(t, err, &ve)

	got, err := s.GetChain(c.ID)
	require.NoError(t, err)
	assert.Equal(t, TaskBacklog, got.Task(task.ID).Status)
}

func TestBlockThenUnblockAlwaysLandsInTodo(t *testing.T) {
	s := newTestStore(t, nil)
	c := mustCreateChain(t, s, CreateChainInput{RequestID: "REQ-1", Type: TypeDesign})

	task, err := s.AddTask(c.ID, TaskInput{Title: "work", Ready: true})
	require.NoError(t, err)
	_, err = s.StartTask(c.ID, task.ID)
	require.NoError(t, err)
	_, err = s.CompleteTask(c.ID, task.ID)
	require.NoError(t, err)

	// Block from in-review, unblock must land in todo, not in-review.
	_, err = s.BlockTask(c.ID, task.ID)
	require.NoError(t, err)
	got, err := s.UnblockTask(c.ID, task.ID)
	require.NoError(t, err)
	assert.Equal(t, TaskTodo, got.Status)
}

func TestReworkRecordsReason(t *testing.T) {
	s := newTestStore(t, nil)
	c := mustCreateChain(t, s, CreateChainInput{RequestID: "REQ-1", Type: TypeDesign})

	task, err := s.AddTask(c.ID, TaskInput{Title: "work", Ready: true})
	require.NoError(t, err)
	_, err = s.StartTask(c.ID, task.ID)
	require.NoError(t, err)
	_, err = s.CompleteTask(c.ID, task.ID)
	require.NoError(t, err)

	got, err := s.ReworkTask(c.ID, task.ID, "missing error handling")
	require.NoError(t, err)
	assert.Equal(t, TaskInProgress, got.Status)
	assert.Equal(t, "missing error handling", got.ReworkReason)
	assert.Equal(t, 1, got.ReworkCount)
}

func TestReorderTasksMustBePermutation(t *testing.T) {
	s := newTestStore(t, nil)
	c := mustCreateChain(t, s, CreateChainInput{RequestID: "REQ-1", Type: TypeDesign})

	t1, err := s.AddTask(c.ID, TaskInput{Title: "first"})
	require.NoError(t, err)
	t2, err := s.AddTask(c.ID, TaskInput{Title: "second"})
	require.NoError(t, err)

	var ve *ValidationError

	_, err = s.ReorderTasks(c.ID, []string{t1.ID})
	require.ErrorAs(t, err, &ve)

	_, err = s.ReorderTasks(c.ID, []string{t1.ID, "task-unknown"})
	require.ErrorAs(t, err, &ve)

	_, err = s.ReorderTasks(c.ID, []string{t1.ID, t1.ID})
	require.ErrorAs(t, err, &ve)

	got, err := s.ReorderTasks(c.ID, []string{t2.ID, t1.ID})
	require.NoError(t, err)
	assert.Equal(t, []string{t2.ID, t1.ID}, []string{got.Tasks[0].ID, got.Tasks[1].ID})
}

func TestFailedRequiredCheckBlocksChainCompletion(t *testing.T) {
	blocked := &fakeValidator{result: &ValidationResult{
		CheckedAt: time.Now(),
		Checks: []ValidationCheck{
			{Name: "completion-notes-present", Required: true, Passed: false,
				Detail: "chain has no completion notes; record what was delivered"},
		},
	}}
	s := newTestStore(t, blocked)
	c := mustCreateChain(t, s, CreateChainInput{RequestID: "REQ-1", Type: TypeDesign})

	task, err := s.AddTask(c.ID, TaskInput{Title: "work", Ready: true})
	require.NoError(t, err)
	_, err = s.StartTask(c.ID, task.ID)
	require.NoError(t, err)
	_, err = s.CompleteTask(c.ID, task.ID)
	require.NoError(t, err)

	approved, result, err := s.ApproveTask(c.ID, task.ID, true)
	require.NoError(t, err)
	assert.Equal(t, TaskDone, approved.Status, "the task itself still reaches done")
	require.NotNil(t, result)
	assert.False(t, result.RequiredPassed())
	assert.Contains(t, result.FormatFeedback(), "completion-notes-present")

	got, err := s.GetChain(c.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusActive, got.Status, "chain completion is blocked")

	// While the check still fails, CompleteChain reports it without
	// closing the chain.
	reattempted, result, err := s.CompleteChain(c.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusActive, reattempted.Status)
	assert.False(t, result.RequiredPassed())

	// Once the check passes, CompleteChain closes the chain.
	blocked.result.Checks[0].Passed = true
	closed, result, err := s.CompleteChain(c.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusDone, closed.Status)
	assert.True(t, result.RequiredPassed())

	// Completing an already-done chain is a no-op.
	again, result, err := s.CompleteChain(c.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusDone, again.Status)
	assert.Nil(t, result)
}

func TestNextTaskPicksFirstTodoInOrder(t *testing.T) {
	s := newTestStore(t, nil)
	c := mustCreateChain(t, s, CreateChainInput{RequestID: "REQ-1", Type: TypeDesign})

	_, err := s.AddTask(c.ID, TaskInput{Title: "backlog item"})
	require.NoError(t, err)
	t2, err := s.AddTask(c.ID, TaskInput{Title: "ready item", Ready: true})
	require.NoError(t, err)
	_, err = s.AddTask(c.ID, TaskInput{Title: "another ready item", Ready: true})
	require.NoError(t, err)

	next, err := s.NextTask(c.ID)
	require.NoError(t, err)
	require.NotNil(t, next)
	assert.Equal(t, t2.ID, next.ID)
}
