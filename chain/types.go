// Package chain provides the chain and task lifecycle: typed chains of
// ordered tasks scoped to file patterns, executed through a per-task
// status state machine with a completion-validation gate before a chain
// can be reported done.
package chain

import (
	"fmt"
	"strings"
	"time"
)

// ValidationError describes malformed input or an illegal state transition.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Field + ": " + e.Message
}

// Type distinguishes design chains from implementation chains.
type Type string

const (
	// TypeDesign chains produce design documents.
	TypeDesign Type = "design"
	// TypeImplementation chains produce code. They must either depend on
	// a design chain or explicitly justify skipping design.
	TypeImplementation Type = "implementation"
)

// IsValid returns true if the chain type is a known kind.
func (t Type) IsValid() bool {
	return t == TypeDesign || t == TypeImplementation
}

// Status is the chain lifecycle state.
type Status string

const (
	// StatusActive means tasks are being worked.
	StatusActive Status = "active"
	// StatusDone means every task is done and completion validation passed.
	StatusDone Status = "done"
	// StatusCancelled means the chain was abandoned.
	StatusCancelled Status = "cancelled"
)

// IsValid returns true if the chain status is a known state.
func (s Status) IsValid() bool {
	switch s {
	case StatusActive, StatusDone, StatusCancelled:
		return true
	default:
		return false
	}
}

// Terminal reports whether the chain can no longer change.
func (s Status) Terminal() bool {
	return s == StatusDone || s == StatusCancelled
}

// TaskStatus is the task execution state.
type TaskStatus string

const (
	// TaskBacklog is unscheduled work.
	TaskBacklog TaskStatus = "backlog"
	// TaskTodo is scheduled, unstarted work.
	TaskTodo TaskStatus = "todo"
	// TaskInProgress is work being executed.
	TaskInProgress TaskStatus = "in-progress"
	// TaskInReview is finished work awaiting approval.
	TaskInReview TaskStatus = "in-review"
	// TaskDone is approved, completed work.
	TaskDone TaskStatus = "done"
	// TaskBlocked is work stopped on an impediment. The only way out is
	// back to todo.
	TaskBlocked TaskStatus = "blocked"
)

// String returns the string representation of the task status.
func (s TaskStatus) String() string {
	return string(s)
}

// IsValid returns true if the task status is a known state.
func (s TaskStatus) IsValid() bool {
	switch s {
	case TaskBacklog, TaskTodo, TaskInProgress, TaskInReview, TaskDone, TaskBlocked:
		return true
	default:
		return false
	}
}

// CanTransitionTo returns true if the status can move to the target along
// a defined edge. The lifecycle is:
//
//	backlog → todo → in-progress → in-review → done
//	any non-terminal state → blocked
//	blocked → todo (single recovery edge)
//	in-review → in-progress (rework, with reason)
func (s TaskStatus) CanTransitionTo(target TaskStatus) bool {
	switch s {
	case TaskBacklog:
		return target == TaskTodo || target == TaskBlocked
	case TaskTodo:
		return target == TaskInProgress || target == TaskBlocked
	case TaskInProgress:
		return target == TaskInReview || target == TaskBlocked
	case TaskInReview:
		return target == TaskDone || target == TaskInProgress || target == TaskBlocked
	case TaskBlocked:
		return target == TaskTodo
	case TaskDone:
		return false // Terminal state
	default:
		return false
	}
}

// Task is the smallest unit of assignable work.
type Task struct {
	// ID is stable across reordering.
	ID string `json:"id"`

	// ChainID is the owning chain.
	ChainID string `json:"chain_id"`

	// Title is the short human-readable name.
	Title string `json:"title"`

	// Description is what to implement.
	Description string `json:"description,omitempty"`

	// Status is the current lifecycle state.
	Status TaskStatus `json:"status"`

	// FileScope lists the glob patterns the task may touch.
	FileScope []string `json:"file_scope,omitempty"`

	// Acceptance lists the acceptance criteria for the task.
	Acceptance []string `json:"acceptance,omitempty"`

	// AcceptanceChecked records that the acceptance criteria were
	// confirmed during approval.
	AcceptanceChecked bool `json:"acceptance_checked,omitempty"`

	// ReworkReason is the most recent rework justification.
	ReworkReason string `json:"rework_reason,omitempty"`

	// ReworkCount is how many times the task was sent back from review.
	ReworkCount int `json:"rework_count,omitempty"`

	// CreatedAt is when the task was added.
	CreatedAt time.Time `json:"created_at"`

	// UpdatedAt is when the task last changed.
	UpdatedAt time.Time `json:"updated_at"`
}

// Chain is an ordered, typed group of tasks scoped to file patterns.
type Chain struct {
	// ID is the unique chain identifier.
	ID string `json:"id"`

	// RequestID ties the chain to the workflow request it serves.
	RequestID string `json:"request_id"`

	// Type is design or implementation.
	Type Type `json:"type"`

	// DependsOn names the chain that must complete first. Required for
	// implementation chains unless SkipDesign is justified.
	DependsOn string `json:"depends_on,omitempty"`

	// SkipDesign marks an implementation chain that deliberately has no
	// design dependency. Requires a non-empty justification.
	SkipDesign bool `json:"skip_design,omitempty"`

	// SkipDesignJustification explains why design was skipped.
	SkipDesignJustification string `json:"skip_design_justification,omitempty"`

	// Status is the chain lifecycle state.
	Status Status `json:"status"`

	// FileScope lists the glob patterns the chain claims.
	FileScope []string `json:"file_scope,omitempty"`

	// Tasks is the ordered task list. Ids are stable across reordering.
	Tasks []Task `json:"tasks"`

	// CompletionNotes summarise what the chain delivered. Checked by the
	// completion validation.
	CompletionNotes string `json:"completion_notes,omitempty"`

	// DesignDoc is the path of the design document this chain maintains
	// or depends on, relative to the repository root.
	DesignDoc string `json:"design_doc,omitempty"`

	// Coverage is the recorded test coverage percentage, if any.
	Coverage float64 `json:"coverage,omitempty"`

	// CreatedAt is when the chain was created.
	CreatedAt time.Time `json:"created_at"`

	// UpdatedAt is when the chain last changed.
	UpdatedAt time.Time `json:"updated_at"`
}

// Task returns the task with the given id, or nil.
func (c *Chain) Task(taskID string) *Task {
	for i := range c.Tasks {
		if c.Tasks[i].ID == taskID {
			return &c.Tasks[i]
		}
	}
	return nil
}

// AllTasksDone reports whether every task has reached done. A chain with
// no tasks is not considered done.
func (c *Chain) AllTasksDone() bool {
	if len(c.Tasks) == 0 {
		return false
	}
	for i := range c.Tasks {
		if c.Tasks[i].Status != TaskDone {
			return false
		}
	}
	return true
}

// ValidateNew checks the creation invariants for a chain.
func (c *Chain) ValidateNew() error {
	if c.ID == "" {
		return &ValidationError{Field: "id", Message: "chain id is required"}
	}
	if c.RequestID == "" {
		return &ValidationError{Field: "request_id", Message: "request id is required"}
	}
	if !c.Type.IsValid() {
		return &ValidationError{Field: "type", Message: fmt.Sprintf("unknown chain type %q", c.Type)}
	}
	if c.Type == TypeImplementation && c.DependsOn == "" {
		if !c.SkipDesign {
			return &ValidationError{
				Field:   "depends_on",
				Message: "implementation chain requires a design dependency or skip_design with justification",
			}
		}
		if strings.TrimSpace(c.SkipDesignJustification) == "" {
			return &ValidationError{
				Field:   "skip_design_justification",
				Message: "skipping design requires a non-empty justification",
			}
		}
	}
	return nil
}

// ValidationCheck is one independently evaluated completion check.
type ValidationCheck struct {
	// Name identifies the check.
	Name string `json:"name"`

	// Required marks checks that block chain completion when failing.
	Required bool `json:"required"`

	// Passed is the check outcome.
	Passed bool `json:"passed"`

	// Detail is the human-readable diagnostic.
	Detail string `json:"detail,omitempty"`
}

// ValidationResult aggregates per-check outcomes for a chain.
type ValidationResult struct {
	ChainID   string            `json:"chain_id"`
	Checks    []ValidationCheck `json:"checks"`
	CheckedAt time.Time         `json:"checked_at"`
}

// Passed reports whether every check passed, required or not.
func (r *ValidationResult) Passed() bool {
	for _, c := range r.Checks {
		if !c.Passed {
			return false
		}
	}
	return true
}

// RequiredPassed reports whether every required check passed.
func (r *ValidationResult) RequiredPassed() bool {
	for _, c := range r.Checks {
		if c.Required && !c.Passed {
			return false
		}
	}
	return true
}

// FailedRequired returns the failing required checks.
func (r *ValidationResult) FailedRequired() []ValidationCheck {
	var out []ValidationCheck
	for _, c := range r.Checks {
		if c.Required && !c.Passed {
			out = append(out, c)
		}
	}
	return out
}

// FormatFeedback renders the failing checks as actionable feedback.
func (r *ValidationResult) FormatFeedback() string {
	if r.RequiredPassed() {
		return ""
	}
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("chain %s cannot complete:\n", r.ChainID))
	for _, c := range r.FailedRequired() {
		sb.WriteString(fmt.Sprintf("- %s: %s\n", c.Name, c.Detail))
	}
	return sb.String()
}

// Validator evaluates a chain's completion checks.
type Validator interface {
	Validate(c *Chain) *ValidationResult
}
