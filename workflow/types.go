// Package workflow implements the template-driven workflow engine. A
// workflow is a runtime instance of a template: a stage list with mutable
// gate state, an append-only message log and a guarded status machine.
// All stage advancement happens through gate satisfaction.
package workflow

import (
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/google/uuid"

	"github.com/c360studio/stagehand/template"
)

// Sentinel errors for the workflow store and engine.
var (
	ErrWorkflowNotFound = errors.New("workflow not found")
	ErrWorkflowExists   = errors.New("workflow already exists")
	ErrRequestRequired  = errors.New("request id is required")
)

// ValidationError reports malformed input or an illegal state transition.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// GateNotSatisfiableError reports a gate whose precondition is unmet. The
// reason names the specific condition so a human can act on it.
type GateNotSatisfiableError struct {
	WorkflowID string
	StageName  string
	Gate       template.GateType
	Reason     string
}

func (e *GateNotSatisfiableError) Error() string {
	return fmt.Sprintf("gate %s on stage %q not satisfiable: %s", e.Gate, e.StageName, e.Reason)
}

// HookExecutionError reports a blocking hook failure during a stage
// transition. The triggering operation is aborted with no state persisted.
type HookExecutionError struct {
	StageName string
	Phase     string
	Action    template.ActionType
	Err       error
}

func (e *HookExecutionError) Error() string {
	return fmt.Sprintf("%s hook %s on stage %q failed: %v", e.Phase, e.Action, e.StageName, e.Err)
}

func (e *HookExecutionError) Unwrap() error { return e.Err }

// Status is the workflow lifecycle state.
type Status string

const (
	// StatusActive means the workflow is progressing through its stages.
	StatusActive Status = "active"
	// StatusPaused means progression is suspended but resumable.
	StatusPaused Status = "paused"
	// StatusCancelled is terminal. The workflow was abandoned deliberately.
	StatusCancelled Status = "cancelled"
	// StatusDiscarded is terminal. The workflow was thrown away with a reason.
	StatusDiscarded Status = "discarded"
	// StatusCompleted is terminal. Every stage gate was satisfied.
	StatusCompleted Status = "completed"
)

// IsValid returns true for a known status.
func (s Status) IsValid() bool {
	switch s {
	case StatusActive, StatusPaused, StatusCancelled, StatusDiscarded, StatusCompleted:
		return true
	default:
		return false
	}
}

// Terminal reports whether the workflow is immutable in this status.
func (s Status) Terminal() bool {
	return s == StatusCancelled || s == StatusDiscarded || s == StatusCompleted
}

// CanTransitionTo reports whether UpdateStatus may move from s to target.
// Completion and discarding have their own operations and are not
// reachable through UpdateStatus.
func (s Status) CanTransitionTo(target Status) bool {
	switch s {
	case StatusActive:
		return target == StatusPaused || target == StatusCancelled
	case StatusPaused:
		return target == StatusActive || target == StatusCancelled
	default:
		return false
	}
}

// GateState is the mutable runtime side of a stage gate.
type GateState struct {
	// Satisfied marks the gate as passed.
	Satisfied bool `json:"satisfied"`

	// SatisfiedBy records who satisfied the gate. Auto gates record
	// "system".
	SatisfiedBy string `json:"satisfied_by,omitempty"`

	// SatisfiedAt is when the gate was satisfied.
	SatisfiedAt time.Time `json:"satisfied_at,omitzero"`
}

// StageState is a stage snapshot plus its runtime gate state. The template
// side is copied at workflow creation; later template edits never affect
// a running workflow.
type StageState struct {
	template.Stage

	GateState GateState `json:"gate_state"`
}

// Message is one entry in a workflow's append-only message log.
type Message struct {
	// ID uniquely identifies the message.
	ID string `json:"id"`

	// Author is who posted the message. System-generated entries use
	// "system".
	Author string `json:"author"`

	// Role is the author's role, when known.
	Role string `json:"role,omitempty"`

	// Body is the message text.
	Body string `json:"body"`

	// CreatedAt orders the log.
	CreatedAt time.Time `json:"created_at"`
}

// SystemAuthor is the author recorded on engine-generated messages.
const SystemAuthor = "system"

// NewWorkflowID generates a workflow identifier.
func NewWorkflowID() string {
	return "wf-" + uuid.NewString()[:8]
}

// idPattern validates workflow ids: alphanumeric with hyphens, 1-64 chars.
var idPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9-]{0,63}$`)

// ValidateID checks that an id is safe for use in file paths.
func ValidateID(id string) error {
	if id == "" || !idPattern.MatchString(id) {
		return &ValidationError{Field: "id", Message: fmt.Sprintf("invalid workflow id %q", id)}
	}
	return nil
}

// Workflow is a runtime instance of a template.
type Workflow struct {
	// ID uniquely identifies the workflow.
	ID string `json:"id"`

	// RequestID links the workflow to the request it fulfils. Chains
	// created for the same request are discovered through it.
	RequestID string `json:"request_id"`

	// TemplateName names the template this workflow was created from.
	TemplateName string `json:"template_name"`

	// TemplateVersion pins the template version snapshotted at creation.
	TemplateVersion int `json:"template_version"`

	// Status is the lifecycle state.
	Status Status `json:"status"`

	// CurrentStage indexes the active stage. It is non-decreasing and
	// only advances through successful gate satisfaction.
	CurrentStage int `json:"current_stage"`

	// Stages is the stage snapshot with runtime gate state.
	Stages []StageState `json:"stages"`

	// Messages is the append-only message log, ordered by append time.
	Messages []Message `json:"messages,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Stage returns the stage state at index, or nil when out of range.
func (w *Workflow) Stage(index int) *StageState {
	if index < 0 || index >= len(w.Stages) {
		return nil
	}
	return &w.Stages[index]
}

// Current returns the active stage state.
func (w *Workflow) Current() *StageState {
	return w.Stage(w.CurrentStage)
}

// appendMessage appends a message with a generated id and timestamp and
// returns it.
func (w *Workflow) appendMessage(author, role, body string) *Message {
	msg := Message{
		ID:        "msg-" + uuid.NewString()[:8],
		Author:    author,
		Role:      role,
		Body:      body,
		CreatedAt: time.Now(),
	}
	w.Messages = append(w.Messages, msg)
	return &w.Messages[len(w.Messages)-1]
}

// appendSystemMessage records an engine-generated advisory entry.
func (w *Workflow) appendSystemMessage(body string) *Message {
	return w.appendMessage(SystemAuthor, "", body)
}

// snapshotStages deep-copies template stages into runtime stage state with
// all gates unsatisfied.
func snapshotStages(stages []template.Stage) []StageState {
	copied := template.CloneStages(stages)
	out := make([]StageState, len(copied))
	for i := range copied {
		out[i] = StageState{Stage: copied[i]}
	}
	return out
}
