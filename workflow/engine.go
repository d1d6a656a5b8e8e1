package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/c360studio/stagehand/chain"
	"github.com/c360studio/stagehand/governance"
	"github.com/c360studio/stagehand/metrics"
	"github.com/c360studio/stagehand/runner"
	"github.com/c360studio/stagehand/template"
)

// Engine coordinates workflow lifecycles: creation from templates, gate
// satisfaction, hook execution and status transitions. Every mutating
// operation is validate-then-commit: a validation or blocking-hook failure
// leaves stored state exactly as it was.
type Engine struct {
	store     *Store
	templates *template.Store
	gates     *gateEvaluator
	hooks     *Executor
	events    EventSink
	logger    *slog.Logger
}

// NewEngine wires a workflow engine. workDir anchors hook file operations;
// a nil evaluator disables governance enforcement in hooks.
func NewEngine(store *Store, templates *template.Store, chains *chain.Store, run runner.CommandRunner, agents runner.AgentRuntime, events EventSink, gov *governance.Evaluator, workDir string, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	if events == nil {
		events = NopSink{}
	}
	return &Engine{
		store:     store,
		templates: templates,
		gates:     &gateEvaluator{chains: chains, run: run},
		hooks:     NewExecutor(run, agents, chains, store, events, gov, workDir, logger),
		events:    events,
		logger:    logger,
	}
}

// RegisterHandler binds a named handler for custom hook actions.
func (e *Engine) RegisterHandler(name string, fn HandlerFunc) {
	e.hooks.RegisterHandler(name, fn)
}

// Get loads a workflow by id.
func (e *Engine) Get(id string) (*Workflow, error) {
	return e.store.Get(id)
}

// List returns workflows, optionally filtered by request id.
func (e *Engine) List(requestID string) ([]*Workflow, error) {
	return e.store.List(requestID)
}

// Create instantiates a workflow from a template: stages are deep-copied
// with every gate unsatisfied, stage 0's entry hooks run, and leading auto
// gates are satisfied in sequence by the system. A blocking entry-hook
// failure on stage 0 aborts creation with nothing persisted.
func (e *Engine) Create(ctx context.Context, requestID, templateName, createdBy, initialMessage string) (*Workflow, error) {
	if strings.TrimSpace(requestID) == "" {
		return nil, ErrRequestRequired
	}
	tpl, err := e.templates.Get(templateName)
	if err != nil {
		return nil, err
	}
	if len(tpl.Stages) == 0 {
		return nil, &ValidationError{
			Field:   "template",
			Message: fmt.Sprintf("template %q has no stages", templateName),
		}
	}

	now := time.Now()
	w := &Workflow{
		ID:              NewWorkflowID(),
		RequestID:       requestID,
		TemplateName:    tpl.Name,
		TemplateVersion: tpl.Version,
		Status:          StatusActive,
		CurrentStage:    0,
		Stages:          snapshotStages(tpl.Stages),
		CreatedAt:       now,
	}
	if initialMessage != "" {
		author := createdBy
		if author == "" {
			author = "user"
		}
		w.appendMessage(author, "", initialMessage)
	}

	if err := e.hooks.RunBatch(ctx, w, &w.Stages[0], phaseEnter); err != nil {
		return nil, err
	}
	e.cascadeAuto(ctx, w)

	if err := e.store.Create(w); err != nil {
		return nil, err
	}

	e.publishStage(ctx, w)
	for i := range w.Messages {
		e.publishMessage(ctx, w.ID, w.Messages[i])
	}

	e.logger.Info("workflow created",
		"workflow", w.ID, "request", requestID,
		"template", tpl.Name, "stage", w.CurrentStage, "status", w.Status)
	return w, nil
}

// AddMessage appends a message to the workflow log. Late results from
// already-spawned agents are legal on terminal workflows; messages never
// affect stage advancement.
func (e *Engine) AddMessage(ctx context.Context, workflowID, author, role, body string) (*Message, error) {
	if strings.TrimSpace(author) == "" {
		return nil, &ValidationError{Field: "author", Message: "message author is required"}
	}
	if strings.TrimSpace(body) == "" {
		return nil, &ValidationError{Field: "body", Message: "message body is required"}
	}
	w, err := e.store.Get(workflowID)
	if err != nil {
		return nil, err
	}
	msg := w.appendMessage(author, role, body)
	if err := e.store.Save(w); err != nil {
		return nil, err
	}
	e.publishMessage(ctx, w.ID, *msg)
	return msg, nil
}

// SatisfyGate satisfies the gate at stageIndex and advances the workflow
// by exactly one stage, never more. Auto gates mid-template pass trivially
// but still take one call each. Satisfying the final stage's gate
// completes the workflow. A blocking exit-hook failure aborts the call
// atomically.
func (e *Engine) SatisfyGate(ctx context.Context, workflowID string, stageIndex int, satisfiedBy string) (*Workflow, error) {
	w, err := e.store.Get(workflowID)
	if err != nil {
		return nil, err
	}
	if w.Status != StatusActive {
		return nil, &ValidationError{
			Field:   "status",
			Message: fmt.Sprintf("workflow %s is %s; only active workflows advance", w.ID, w.Status),
		}
	}
	if stageIndex != w.CurrentStage {
		return nil, &ValidationError{
			Field:   "stageIndex",
			Message: fmt.Sprintf("stage %d is not current (current stage is %d)", stageIndex, w.CurrentStage),
		}
	}
	stage := w.Current()
	if stage.GateState.Satisfied {
		return nil, &ValidationError{
			Field:   "stageIndex",
			Message: fmt.Sprintf("gate on stage %q is already satisfied", stage.Name),
		}
	}

	if err := e.gates.Evaluate(ctx, w, stage, satisfiedBy); err != nil {
		metrics.ObserveGate(string(stage.Gate.Type), metrics.OutcomeFailed)
		return nil, err
	}
	metrics.ObserveGate(string(stage.Gate.Type), metrics.OutcomeOK)

	if stage.Gate.Type == template.GateAuto && strings.TrimSpace(satisfiedBy) == "" {
		satisfiedBy = SystemAuthor
	}

	baseline := len(w.Messages)
	if _, err := e.advanceStage(ctx, w, satisfiedBy); err != nil {
		return nil, err
	}

	if err := e.store.Save(w); err != nil {
		return nil, err
	}

	e.publishStage(ctx, w)
	for i := baseline; i < len(w.Messages); i++ {
		e.publishMessage(ctx, w.ID, w.Messages[i])
	}

	e.logger.Info("gate satisfied",
		"workflow", w.ID, "stage", stageIndex, "by", satisfiedBy,
		"current_stage", w.CurrentStage, "status", w.Status)
	return w, nil
}

// UpdateStatus applies a guarded status transition. Only active<->paused
// and active|paused->cancelled are legal here; completion happens through
// gate satisfaction and discarding through Discard.
func (e *Engine) UpdateStatus(ctx context.Context, workflowID string, target Status) (*Workflow, error) {
	if !target.IsValid() {
		return nil, &ValidationError{
			Field:   "status",
			Message: fmt.Sprintf("unknown status %q", target),
		}
	}
	w, err := e.store.Get(workflowID)
	if err != nil {
		return nil, err
	}
	if !w.Status.CanTransitionTo(target) {
		return nil, &ValidationError{
			Field:   "status",
			Message: fmt.Sprintf("cannot transition workflow %s from %s to %s", w.ID, w.Status, target),
		}
	}
	w.Status = target
	if err := e.store.Save(w); err != nil {
		return nil, err
	}
	e.publishStage(ctx, w)
	e.logger.Info("workflow status updated", "workflow", w.ID, "status", target)
	return w, nil
}

// Discard throws the workflow away from any non-terminal status and
// records the reason as a system message.
func (e *Engine) Discard(ctx context.Context, workflowID, reason string) (*Workflow, error) {
	w, err := e.store.Get(workflowID)
	if err != nil {
		return nil, err
	}
	if w.Status.Terminal() {
		return nil, &ValidationError{
			Field:   "status",
			Message: fmt.Sprintf("workflow %s is already %s", w.ID, w.Status),
		}
	}
	w.Status = StatusDiscarded
	msg := w.appendSystemMessage("workflow discarded: " + reason)
	if err := e.store.Save(w); err != nil {
		return nil, err
	}
	e.publishStage(ctx, w)
	e.publishMessage(ctx, w.ID, *msg)
	e.logger.Info("workflow discarded", "workflow", w.ID, "reason", reason)
	return w, nil
}

// advanceStage marks the current gate satisfied, runs the exit hooks and
// moves to the next stage. Satisfying the final gate completes the
// workflow. An exit-hook blocking failure unwinds the gate mark and
// returns the error so nothing is persisted; an entry-hook blocking
// failure on the new stage stands as an advisory and only stops further
// automatic progression (cont=false).
func (e *Engine) advanceStage(ctx context.Context, w *Workflow, satisfiedBy string) (cont bool, err error) {
	stage := w.Current()
	stage.GateState = GateState{
		Satisfied:   true,
		SatisfiedBy: satisfiedBy,
		SatisfiedAt: time.Now(),
	}
	if err := e.hooks.RunBatch(ctx, w, stage, phaseExit); err != nil {
		stage.GateState = GateState{}
		return false, err
	}

	metrics.StageAdvanced()
	next := w.CurrentStage + 1
	if next == len(w.Stages) {
		w.Status = StatusCompleted
		return false, nil
	}
	w.CurrentStage = next

	entered := w.Current()
	if err := e.hooks.RunBatch(ctx, w, entered, phaseEnter); err != nil {
		// Exit hooks already ran; rolling back here would discard their
		// side effects. The advancement stands and progression halts
		// until a human intervenes.
		w.appendSystemMessage(err.Error())
		e.logger.Warn("entry hooks failed after advancement",
			"workflow", w.ID, "stage", entered.Name, "error", err)
		return false, nil
	}
	return true, nil
}

// cascadeAuto satisfies consecutive leading auto gates during creation.
// It never runs after an ordinary gate satisfaction: mid-template auto
// gates take one SatisfyGate call each, keeping stage advancement at
// exactly one per call. A blocking hook failure stops the cascade but
// keeps the progress made before it.
func (e *Engine) cascadeAuto(ctx context.Context, w *Workflow) {
	for w.Status == StatusActive {
		stage := w.Current()
		if stage.Gate.Type != template.GateAuto || stage.GateState.Satisfied {
			return
		}
		metrics.ObserveGate(string(template.GateAuto), metrics.OutcomeOK)
		cont, err := e.advanceStage(ctx, w, SystemAuthor)
		if err != nil {
			w.appendSystemMessage(err.Error())
			e.logger.Warn("auto gate cascade stopped",
				"workflow", w.ID, "stage", stage.Name, "error", err)
			return
		}
		if !cont {
			return
		}
	}
}

func (e *Engine) publishStage(ctx context.Context, w *Workflow) {
	evt := StageEvent{
		WorkflowID: w.ID,
		RequestID:  w.RequestID,
		Stage:      w.CurrentStage,
		Status:     w.Status,
		OccurredAt: time.Now(),
	}
	if stage := w.Current(); stage != nil {
		evt.StageName = stage.Name
	}
	if err := e.events.PublishStage(ctx, evt); err != nil {
		e.logger.Warn("failed to publish stage event", "workflow", w.ID, "error", err)
	}
}

func (e *Engine) publishMessage(ctx context.Context, workflowID string, msg Message) {
	if err := e.events.PublishMessage(ctx, workflowID, msg); err != nil {
		e.logger.Warn("failed to publish message event", "workflow", workflowID, "error", err)
	}
}
