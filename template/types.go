// Package template provides versioned workflow template definitions.
// Templates describe the ordered stages a workflow advances through,
// the gate guarding each stage, and the hooks executed on stage
// transitions. Built-in templates ship with the binary; editing one
// creates a custom override of the same name that shadows it.
package template

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"
)

// Sentinel errors for template operations.
var (
	ErrNameRequired     = errors.New("template name is required")
	ErrInvalidName      = errors.New("invalid template name: must be lowercase alphanumeric with hyphens, no path separators")
	ErrTemplateNotFound = errors.New("template not found")
	ErrTemplateExists   = errors.New("template already exists")
	ErrVersionNotFound  = errors.New("template version not found")
)

// namePattern validates template names: lowercase alphanumeric with hyphens, 1-50 chars.
var namePattern = regexp.MustCompile(`^[a-z0-9]([a-z0-9-]{0,48}[a-z0-9])?$`)

// ValidateName checks if a template name is valid and safe for use in file paths.
func ValidateName(name string) error {
	if name == "" {
		return ErrNameRequired
	}
	// Prevent path traversal attacks
	if strings.Contains(name, "..") || strings.Contains(name, "/") || strings.Contains(name, "\\") {
		return ErrInvalidName
	}
	if !namePattern.MatchString(name) {
		return ErrInvalidName
	}
	return nil
}

// ValidationError describes a malformed template field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Field + ": " + e.Message
}

// GateType identifies the kind of precondition guarding a stage.
type GateType string

const (
	// GateAuto passes unconditionally.
	GateAuto GateType = "auto"
	// GateHumanApproval passes when a human satisfies it by name.
	GateHumanApproval GateType = "human_approval"
	// GateChainComplete passes when every referenced chain is done and
	// has passed its completion validation.
	GateChainComplete GateType = "chain_complete"
	// GateVerificationPass passes when every configured command exits zero.
	GateVerificationPass GateType = "verification_pass"
)

// IsValid returns true if the gate type is a known kind.
func (g GateType) IsValid() bool {
	switch g {
	case GateAuto, GateHumanApproval, GateChainComplete, GateVerificationPass:
		return true
	default:
		return false
	}
}

// GateSpec declares the precondition for advancing past a stage.
type GateSpec struct {
	// Type is the gate kind.
	Type GateType `json:"type" yaml:"type"`

	// Prompt is shown to the human for human_approval gates.
	Prompt string `json:"prompt,omitempty" yaml:"prompt,omitempty"`

	// Commands are run sequentially for verification_pass gates.
	// Required and non-empty for that kind.
	Commands []string `json:"commands,omitempty" yaml:"commands,omitempty"`

	// ChainID pins a chain_complete gate to a specific chain. When empty
	// the gate covers every chain recorded for the workflow's request.
	ChainID string `json:"chain_id,omitempty" yaml:"chain_id,omitempty"`
}

// Validate checks type-specific required fields.
func (g *GateSpec) Validate() error {
	if !g.Type.IsValid() {
		return &ValidationError{Field: "gate.type", Message: fmt.Sprintf("unknown gate type %q", g.Type)}
	}
	if g.Type == GateVerificationPass && len(g.Commands) == 0 {
		return &ValidationError{Field: "gate.commands", Message: "verification_pass gate requires at least one command"}
	}
	return nil
}

// ActionType identifies the kind of side effect a transition action performs.
type ActionType string

const (
	// ActionCommand invokes an external process and blocks on its exit code.
	ActionCommand ActionType = "command"
	// ActionTaskTransition moves a task through its lifecycle.
	ActionTaskTransition ActionType = "task_transition"
	// ActionFileMove renames a file from one pattern to another.
	ActionFileMove ActionType = "file_move"
	// ActionCustom dispatches to a registered handler by name.
	ActionCustom ActionType = "custom"
	// ActionSpawnAgent asks the agent runtime to start a session for a role.
	ActionSpawnAgent ActionType = "spawn_agent"
	// ActionPostMessage appends a message to a target workflow's log.
	ActionPostMessage ActionType = "post_message"
	// ActionEmitEvent pushes a structured event to the notifier.
	ActionEmitEvent ActionType = "emit_event"
)

// IsValid returns true if the action type is a known kind.
func (a ActionType) IsValid() bool {
	switch a {
	case ActionCommand, ActionTaskTransition, ActionFileMove, ActionCustom,
		ActionSpawnAgent, ActionPostMessage, ActionEmitEvent:
		return true
	default:
		return false
	}
}

// Action is one side-effecting step executed when entering or leaving a
// stage. The Type field selects the variant; each variant has its own
// required fields, checked by Validate.
type Action struct {
	// Type selects the action variant.
	Type ActionType `json:"type" yaml:"type"`

	// Blocking controls failure propagation. Nil means true: a failure
	// aborts the triggering transition. When explicitly false, failures
	// are recorded as advisory messages and never fail the caller.
	Blocking *bool `json:"blocking,omitempty" yaml:"blocking,omitempty"`

	// Command is the process invocation for command actions.
	Command string `json:"command,omitempty" yaml:"command,omitempty"`

	// TaskID and Transition drive task_transition actions. TaskID may be
	// empty when the task is resolved from stage context at execution time.
	TaskID     string `json:"task_id,omitempty" yaml:"task_id,omitempty"`
	Transition string `json:"transition,omitempty" yaml:"transition,omitempty"`

	// From and To are the rename endpoints for file_move actions.
	From string `json:"from,omitempty" yaml:"from,omitempty"`
	To   string `json:"to,omitempty" yaml:"to,omitempty"`

	// Handler names the registered handler for custom actions.
	Handler string `json:"handler,omitempty" yaml:"handler,omitempty"`

	// Role selects the agent behaviour for spawn_agent actions.
	Role string `json:"role,omitempty" yaml:"role,omitempty"`

	// WorkflowID targets post_message actions. Empty means the workflow
	// whose transition is executing.
	WorkflowID string `json:"workflow_id,omitempty" yaml:"workflow_id,omitempty"`

	// Message is the body for post_message actions.
	Message string `json:"message,omitempty" yaml:"message,omitempty"`

	// Event names the event for emit_event actions.
	Event string `json:"event,omitempty" yaml:"event,omitempty"`

	// Context carries free-form key/value context for spawn_agent,
	// custom and emit_event actions.
	Context map[string]string `json:"context,omitempty" yaml:"context,omitempty"`
}

// IsBlocking reports whether a failure of this action aborts its transition.
func (a *Action) IsBlocking() bool {
	return a.Blocking == nil || *a.Blocking
}

// Validate checks the variant-specific required fields.
func (a *Action) Validate() error {
	if !a.Type.IsValid() {
		return &ValidationError{Field: "action.type", Message: fmt.Sprintf("unknown action type %q", a.Type)}
	}
	switch a.Type {
	case ActionCommand:
		if a.Command == "" {
			return &ValidationError{Field: "action.command", Message: "command action requires a command string"}
		}
	case ActionTaskTransition:
		if a.Transition == "" {
			return &ValidationError{Field: "action.transition", Message: "task_transition action requires a transition name"}
		}
	case ActionFileMove:
		if a.From == "" || a.To == "" {
			return &ValidationError{Field: "action.from", Message: "file_move action requires from and to"}
		}
	case ActionCustom:
		if a.Handler == "" {
			return &ValidationError{Field: "action.handler", Message: "custom action requires a handler name"}
		}
	case ActionSpawnAgent:
		if a.Role == "" {
			return &ValidationError{Field: "action.role", Message: "spawn_agent action requires a role"}
		}
	case ActionPostMessage:
		if a.Message == "" {
			return &ValidationError{Field: "action.message", Message: "post_message action requires a message"}
		}
	case ActionEmitEvent:
		if a.Event == "" {
			return &ValidationError{Field: "action.event", Message: "emit_event action requires an event name"}
		}
	}
	return nil
}

// Hooks groups the actions run when entering and leaving a stage.
type Hooks struct {
	OnEnter []Action `json:"on_enter,omitempty" yaml:"on_enter,omitempty"`
	OnExit  []Action `json:"on_exit,omitempty" yaml:"on_exit,omitempty"`
}

// StageType classifies what kind of work happens during a stage.
type StageType string

const (
	// StagePlanning covers requirement capture and chain/task breakdown.
	StagePlanning StageType = "planning"
	// StageOrchestration covers coordinating parallel chain execution.
	StageOrchestration StageType = "orchestration"
	// StageImplementation covers code-writing work.
	StageImplementation StageType = "implementation"
	// StageReview covers human or agent review of produced work.
	StageReview StageType = "review"
	// StageVerification covers automated verification runs.
	StageVerification StageType = "verification"
)

// IsValid returns true if the stage type is a known kind.
func (s StageType) IsValid() bool {
	switch s {
	case StagePlanning, StageOrchestration, StageImplementation, StageReview, StageVerification:
		return true
	default:
		return false
	}
}

// Stage is one named step of a template.
type Stage struct {
	// Name is the display name for the stage.
	Name string `json:"name" yaml:"name"`

	// Type classifies the stage kind.
	Type StageType `json:"type" yaml:"type"`

	// RoleID names the capability set assigned to agents active in this stage.
	RoleID string `json:"role_id" yaml:"role_id"`

	// Gate is the precondition for advancing past this stage.
	Gate GateSpec `json:"gate" yaml:"gate"`

	// Hooks are the actions run on stage entry and exit.
	Hooks Hooks `json:"hooks,omitempty" yaml:"hooks,omitempty"`
}

// Validate checks the stage and everything it contains.
func (s *Stage) Validate() error {
	if s.Name == "" {
		return &ValidationError{Field: "stage.name", Message: "stage name is required"}
	}
	if !s.Type.IsValid() {
		return &ValidationError{Field: "stage.type", Message: fmt.Sprintf("unknown stage type %q", s.Type)}
	}
	if err := s.Gate.Validate(); err != nil {
		return err
	}
	for i := range s.Hooks.OnEnter {
		if err := s.Hooks.OnEnter[i].Validate(); err != nil {
			return err
		}
	}
	for i := range s.Hooks.OnExit {
		if err := s.Hooks.OnExit[i].Validate(); err != nil {
			return err
		}
	}
	return nil
}

// WorkflowTemplate is a named, versioned stage list.
type WorkflowTemplate struct {
	// Name is the unique identifier (lowercase slug).
	Name string `json:"name" yaml:"name"`

	// DisplayName is the human-readable title.
	DisplayName string `json:"display_name" yaml:"display_name"`

	// Description explains what the template coordinates.
	Description string `json:"description,omitempty" yaml:"description,omitempty"`

	// Builtin marks templates shipped with the binary. Built-in templates
	// cannot be deleted; editing one creates a custom override.
	Builtin bool `json:"builtin" yaml:"builtin"`

	// Version increases monotonically on every update.
	Version int `json:"version" yaml:"version"`

	// Stages is the ordered, non-empty stage list.
	Stages []Stage `json:"stages" yaml:"stages"`

	// CreatedAt is when the template was first created.
	CreatedAt time.Time `json:"created_at" yaml:"created_at"`

	// UpdatedAt is when the template was last modified.
	UpdatedAt time.Time `json:"updated_at" yaml:"updated_at"`
}

// Validate checks the template and every stage it contains.
func (t *WorkflowTemplate) Validate() error {
	if err := ValidateName(t.Name); err != nil {
		return err
	}
	if len(t.Stages) == 0 {
		return &ValidationError{Field: "stages", Message: "template requires at least one stage"}
	}
	for i := range t.Stages {
		if err := t.Stages[i].Validate(); err != nil {
			return fmt.Errorf("stage %d: %w", i, err)
		}
	}
	return nil
}

// Clone returns a deep copy of the template.
func (t *WorkflowTemplate) Clone() *WorkflowTemplate {
	out := *t
	out.Stages = CloneStages(t.Stages)
	return &out
}

// CloneStages returns a deep copy of a stage list.
func CloneStages(stages []Stage) []Stage {
	out := make([]Stage, len(stages))
	for i, s := range stages {
		out[i] = s
		out[i].Gate.Commands = append([]string(nil), s.Gate.Commands...)
		out[i].Hooks.OnEnter = cloneActions(s.Hooks.OnEnter)
		out[i].Hooks.OnExit = cloneActions(s.Hooks.OnExit)
	}
	return out
}

func cloneActions(actions []Action) []Action {
	if actions == nil {
		return nil
	}
	out := make([]Action, len(actions))
	for i, a := range actions {
		out[i] = a
		if a.Blocking != nil {
			b := *a.Blocking
			out[i].Blocking = &b
		}
		if a.Context != nil {
			ctx := make(map[string]string, len(a.Context))
			for k, v := range a.Context {
				ctx[k] = v
			}
			out[i].Context = ctx
		}
	}
	return out
}

// Version metadata file fields.

// VersionMeta records who changed a template version and why.
type VersionMeta struct {
	// TemplateName is the owning template.
	TemplateName string `json:"template_name" yaml:"template_name"`

	// Version is the snapshot version number.
	Version int `json:"version" yaml:"version"`

	// ChangedBy identifies who made the change.
	ChangedBy string `json:"changed_by" yaml:"changed_by"`

	// ChangeDescription summarises the change.
	ChangeDescription string `json:"change_description,omitempty" yaml:"change_description,omitempty"`

	// CreatedAt is when the snapshot was written.
	CreatedAt time.Time `json:"created_at" yaml:"created_at"`
}

// TemplateVersion is an immutable snapshot of a template at a version.
type TemplateVersion struct {
	VersionMeta `yaml:",inline"`

	// Template is the snapshot content.
	Template *WorkflowTemplate `json:"template" yaml:"template"`
}
