package runner

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExecRunnerSuccess(t *testing.T) {
	r := NewExecRunner(t.TempDir(), nil)

	result, err := r.Run(context.Background(), "true")
	require.NoError(t, err)
	assert.Equal(t, 0, result.ExitCode)
}

func TestExecRunnerNonZeroExitIsNotAnError(t *testing.T) {
	r := NewExecRunner(t.TempDir(), nil)

	result, err := r.Run(context.Background(), "false")
	require.NoError(t, err)
	assert.Equal(t, 1, result.ExitCode)
}

func TestExecRunnerCapturesOutput(t *testing.T) {
	r := NewExecRunner(t.TempDir(), nil)

	result, err := r.Run(context.Background(), `echo "hello world"`)
	require.NoError(t, err)
	assert.Equal(t, "hello world\n", result.Stdout)
}

func TestExecRunnerRejectsEmptyCommand(t *testing.T) {
	r := NewExecRunner(t.TempDir(), nil)

	_, err := r.Run(context.Background(), "")
	assert.ErrorIs(t, err, ErrEmptyCommand)
}

func TestExecRunnerMissingBinary(t *testing.T) {
	r := NewExecRunner(t.TempDir(), nil)

	_, err := r.Run(context.Background(), "definitely-not-a-real-binary-xyz")
	assert.Error(t, err)
}

func TestNopAgentRuntimeRequiresRole(t *testing.T) {
	var rt NopAgentRuntime

	err := rt.SpawnSession(context.Background(), SpawnRequest{})
	assert.ErrorIs(t, err, ErrRoleRequired)

	err = rt.SpawnSession(context.Background(), SpawnRequest{Role: "planner"})
	assert.NoError(t, err)
}
