// Package runner executes external commands and brokers agent session
// spawn requests. The orchestration core only ever consumes the interfaces
// here; production wiring supplies the exec- and NATS-backed
// implementations, tests supply fakes.
package runner

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"time"

	"github.com/kballard/go-shellquote"
)

// ErrEmptyCommand is returned for blank command strings.
var ErrEmptyCommand = errors.New("command is empty")

// Result is the outcome of one external command run.
type Result struct {
	// Command is the command string as given.
	Command string

	// ExitCode is the process exit code. Zero means success.
	ExitCode int

	// Stdout and Stderr capture the process output.
	Stdout string
	Stderr string

	// Duration is the wall-clock run time.
	Duration time.Duration
}

// CommandRunner runs one external command and reports its exit code.
// A non-zero exit code is not an error; errors mean the command could not
// be run at all.
type CommandRunner interface {
	Run(ctx context.Context, command string) (*Result, error)
}

// ExecRunner runs commands as local processes.
type ExecRunner struct {
	// Dir is the working directory for spawned processes. Empty means
	// the caller's working directory.
	Dir string

	// Env is the process environment. Nil inherits the parent's.
	Env []string

	logger *slog.Logger
}

// NewExecRunner creates a process-backed command runner rooted at dir.
func NewExecRunner(dir string, logger *slog.Logger) *ExecRunner {
	if logger == nil {
		logger = slog.Default()
	}
	return &ExecRunner{Dir: dir, logger: logger}
}

// Run parses the command string shell-style and executes it.
func (r *ExecRunner) Run(ctx context.Context, command string) (*Result, error) {
	words, err := shellquote.Split(command)
	if err != nil {
		return nil, fmt.Errorf("failed to parse command %q: %w", command, err)
	}
	if len(words) == 0 {
		return nil, ErrEmptyCommand
	}

	cmd := exec.CommandContext(ctx, words[0], words[1:]...)
	cmd.Dir = r.Dir
	if r.Env != nil {
		cmd.Env = r.Env
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	runErr := cmd.Run()
	result := &Result{
		Command:  command,
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		Duration: time.Since(start),
	}

	if runErr != nil {
		var exitErr *exec.ExitError
		if errors.As(runErr, &exitErr) {
			result.ExitCode = exitErr.ExitCode()
			r.logger.Debug("command exited non-zero",
				slog.String("command", command),
				slog.Int("exit_code", result.ExitCode))
			return result, nil
		}
		return nil, fmt.Errorf("failed to run command %q: %w", command, runErr)
	}

	r.logger.Debug("command succeeded",
		slog.String("command", command),
		slog.Duration("duration", result.Duration))
	return result, nil
}
