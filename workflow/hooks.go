package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/c360studio/stagehand/chain"
	"github.com/c360studio/stagehand/governance"
	"github.com/c360studio/stagehand/metrics"
	"github.com/c360studio/stagehand/runner"
	"github.com/c360studio/stagehand/template"
)

// hookPhase names the transition side a batch belongs to.
type hookPhase string

const (
	phaseEnter hookPhase = "on_enter"
	phaseExit  hookPhase = "on_exit"
)

// HandlerFunc is a registered implementation for a custom hook action.
type HandlerFunc func(ctx context.Context, w *Workflow, stage *StageState, action template.Action) error

// Executor runs hook action batches. Actions execute sequentially in
// declaration order. A blocking action failure aborts the batch with a
// *HookExecutionError; non-blocking failures are appended to the workflow
// message log as advisories and never fail the batch.
type Executor struct {
	run     runner.CommandRunner
	agents  runner.AgentRuntime
	chains  *chain.Store
	store   *Store
	events  EventSink
	gov     *governance.Evaluator
	workDir string
	custom  map[string]HandlerFunc
	logger  *slog.Logger
}

// NewExecutor wires a hook executor. workDir anchors file_move paths. A
// nil evaluator disables governance enforcement on file actions.
func NewExecutor(run runner.CommandRunner, agents runner.AgentRuntime, chains *chain.Store, store *Store, events EventSink, gov *governance.Evaluator, workDir string, logger *slog.Logger) *Executor {
	if logger == nil {
		logger = slog.Default()
	}
	if events == nil {
		events = NopSink{}
	}
	return &Executor{
		run:     run,
		agents:  agents,
		chains:  chains,
		store:   store,
		events:  events,
		gov:     gov,
		workDir: workDir,
		custom:  make(map[string]HandlerFunc),
		logger:  logger,
	}
}

// RegisterHandler binds a named handler for custom actions. Handlers are
// resolved by exact name at execution time.
func (x *Executor) RegisterHandler(name string, fn HandlerFunc) {
	x.custom[name] = fn
}

// RunBatch executes the stage's hooks for one phase against the in-memory
// workflow. Mutations to w (advisory messages, post_message to self) are
// the caller's to persist.
func (x *Executor) RunBatch(ctx context.Context, w *Workflow, stage *StageState, phase hookPhase) error {
	actions := stage.Hooks.OnEnter
	if phase == phaseExit {
		actions = stage.Hooks.OnExit
	}
	for i := range actions {
		action := &actions[i]
		err := x.dispatch(ctx, w, stage, *action)
		if err == nil {
			metrics.ObserveHook(string(action.Type), metrics.OutcomeOK)
			continue
		}
		metrics.ObserveHook(string(action.Type), metrics.OutcomeFailed)

		if action.IsBlocking() {
			return &HookExecutionError{
				StageName: stage.Name,
				Phase:     string(phase),
				Action:    action.Type,
				Err:       err,
			}
		}
		x.logger.Warn("non-blocking hook failed",
			"workflow", w.ID, "stage", stage.Name, "phase", phase,
			"action", action.Type, "error", err)
		w.appendSystemMessage(fmt.Sprintf("%s hook %s on stage %q failed: %v",
			phase, action.Type, stage.Name, err))
	}
	return nil
}

func (x *Executor) dispatch(ctx context.Context, w *Workflow, stage *StageState, action template.Action) error {
	switch action.Type {
	case template.ActionCommand:
		return x.runCommand(ctx, action.Command)
	case template.ActionTaskTransition:
		return x.transitionTask(w, action)
	case template.ActionFileMove:
		return x.moveFile(stage, action)
	case template.ActionCustom:
		handler, ok := x.custom[action.Handler]
		if !ok {
			return fmt.Errorf("no handler registered for %q", action.Handler)
		}
		return handler(ctx, w, stage, action)
	case template.ActionSpawnAgent:
		return x.agents.SpawnSession(ctx, runner.SpawnRequest{
			Role:       action.Role,
			WorkflowID: w.ID,
			Stage:      stage.Name,
			Context:    action.Context,
		})
	case template.ActionPostMessage:
		return x.postMessage(ctx, w, action)
	case template.ActionEmitEvent:
		return x.events.PublishEvent(ctx, w.ID, action.Event, action.Context)
	default:
		return fmt.Errorf("unknown action type %q", action.Type)
	}
}

func (x *Executor) runCommand(ctx context.Context, command string) error {
	res, err := x.run.Run(ctx, command)
	if err != nil {
		return err
	}
	if res.ExitCode != 0 {
		return fmt.Errorf("command %q exited %d", command, res.ExitCode)
	}
	return nil
}

// transitionTask resolves the task's chain from the workflow's request and
// applies the named lifecycle transition.
func (x *Executor) transitionTask(w *Workflow, action template.Action) error {
	chainID, err := x.findTaskChain(w.RequestID, action.TaskID)
	if err != nil {
		return err
	}
	switch action.Transition {
	case "ready":
		_, err = x.chains.ReadyTask(chainID, action.TaskID)
	case "start":
		_, err = x.chains.StartTask(chainID, action.TaskID)
	case "complete":
		_, err = x.chains.CompleteTask(chainID, action.TaskID)
	case "approve":
		_, _, err = x.chains.ApproveTask(chainID, action.TaskID, false)
	case "rework":
		_, err = x.chains.ReworkTask(chainID, action.TaskID, "requested by workflow hook")
	case "block":
		_, err = x.chains.BlockTask(chainID, action.TaskID)
	case "unblock":
		_, err = x.chains.UnblockTask(chainID, action.TaskID)
	default:
		return fmt.Errorf("unknown task transition %q", action.Transition)
	}
	return err
}

func (x *Executor) findTaskChain(requestID, taskID string) (string, error) {
	chains, err := x.chains.ListChains(requestID)
	if err != nil {
		return "", err
	}
	for _, c := range chains {
		if c.Task(taskID) != nil {
			return c.ID, nil
		}
	}
	return "", fmt.Errorf("%w: %s for request %s", chain.ErrTaskNotFound, taskID, requestID)
}

// moveFile performs a deterministic rename inside the working directory.
// The stage's role must be allowed to touch both paths.
func (x *Executor) moveFile(stage *StageState, action template.Action) error {
	if x.gov != nil && stage.RoleID != "" {
		if _, err := x.gov.Check(stage.RoleID, governance.ActionDelete, action.From); err != nil {
			return err
		}
		if _, err := x.gov.Check(stage.RoleID, governance.ActionCreate, action.To); err != nil {
			return err
		}
	}
	from := filepath.Join(x.workDir, filepath.Clean(action.From))
	to := filepath.Join(x.workDir, filepath.Clean(action.To))
	if err := os.MkdirAll(filepath.Dir(to), 0755); err != nil {
		return fmt.Errorf("failed to prepare %s: %w", action.To, err)
	}
	if err := os.Rename(from, to); err != nil {
		return fmt.Errorf("failed to move %s to %s: %w", action.From, action.To, err)
	}
	return nil
}

// postMessage appends a message authored by the system. A target of the
// triggering workflow (or none) mutates the in-memory copy so the append
// commits atomically with the transition; another workflow is loaded,
// appended to and saved immediately.
func (x *Executor) postMessage(ctx context.Context, w *Workflow, action template.Action) error {
	if action.WorkflowID == "" || action.WorkflowID == w.ID {
		w.appendSystemMessage(action.Message)
		return nil
	}
	target, err := x.store.Get(action.WorkflowID)
	if err != nil {
		return err
	}
	msg := target.appendSystemMessage(action.Message)
	if err := x.store.Save(target); err != nil {
		return err
	}
	if err := x.events.PublishMessage(ctx, target.ID, *msg); err != nil {
		x.logger.Warn("failed to publish message event",
			"workflow", target.ID, "error", err)
	}
	return nil
}

// IsHookError reports whether err is a blocking hook failure.
func IsHookError(err error) bool {
	var hookErr *HookExecutionError
	return errors.As(err, &hookErr)
}
