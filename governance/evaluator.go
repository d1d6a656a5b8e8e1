// Package governance evaluates whether a role may create, modify or delete
// a given path. Rules are ordered glob patterns grouped per role under
// three buckets. Precedence is deny > approve > allow; a path no rule
// matches is denied (fail closed).
package governance

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"gopkg.in/yaml.v3"
)

// Action is the kind of mutation being evaluated.
type Action string

const (
	// ActionCreate is adding a new file.
	ActionCreate Action = "create"
	// ActionModify is changing an existing file.
	ActionModify Action = "modify"
	// ActionDelete is removing a file.
	ActionDelete Action = "delete"
)

// IsValid returns true if the action is a known kind.
func (a Action) IsValid() bool {
	switch a {
	case ActionCreate, ActionModify, ActionDelete:
		return true
	default:
		return false
	}
}

// Decision is the evaluator's verdict.
type Decision string

const (
	// Allow permits the mutation.
	Allow Decision = "allow"
	// Approve permits the mutation only with human sign-off.
	Approve Decision = "approve"
	// Deny refuses the mutation.
	Deny Decision = "deny"
)

// Sentinel errors for governance operations.
var (
	ErrRoleRequired  = errors.New("role id is required")
	ErrPathRequired  = errors.New("path is required")
	ErrInvalidAction = errors.New("invalid governance action")
	ErrRulesNotFound = errors.New("governance rules not found")
)

// DeniedError reports a policy refusal with the evaluated rule's reason.
type DeniedError struct {
	// Role is the role that was refused.
	Role string
	// Action is the attempted mutation.
	Action Action
	// Path is the target path.
	Path string
	// Reason is the human-readable rule reason, or the fail-closed default.
	Reason string
}

func (e *DeniedError) Error() string {
	return fmt.Sprintf("governance denied %s of %s for role %s: %s", e.Action, e.Path, e.Role, e.Reason)
}

// Rule is one ordered glob pattern with an optional action filter.
type Rule struct {
	// Pattern is the doublestar glob matched against the path.
	Pattern string `yaml:"pattern" json:"pattern"`

	// Actions restricts which mutations the rule covers. Empty means all.
	Actions []Action `yaml:"actions,omitempty" json:"actions,omitempty"`

	// Reason is surfaced on denials and approval requirements.
	Reason string `yaml:"reason,omitempty" json:"reason,omitempty"`
}

// applies reports whether the rule covers the given action and path.
func (r *Rule) applies(action Action, path string) bool {
	if len(r.Actions) > 0 {
		found := false
		for _, a := range r.Actions {
			if a == action {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	ok, err := doublestar.Match(r.Pattern, path)
	return err == nil && ok
}

// RoleRules groups a role's rules by bucket.
type RoleRules struct {
	Deny    []Rule `yaml:"deny,omitempty" json:"deny,omitempty"`
	Approve []Rule `yaml:"approve,omitempty" json:"approve,omitempty"`
	Allow   []Rule `yaml:"allow,omitempty" json:"allow,omitempty"`
}

// Result carries a decision plus the reason text of the matched rule.
type Result struct {
	Decision Decision
	Reason   string
}

// Evaluator holds the per-role rule sets.
type Evaluator struct {
	roles  map[string]RoleRules
	logger *slog.Logger
}

// NewEvaluator creates an evaluator over the given per-role rules.
func NewEvaluator(roles map[string]RoleRules, logger *slog.Logger) *Evaluator {
	if roles == nil {
		roles = map[string]RoleRules{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Evaluator{roles: roles, logger: logger}
}

// rulesFile is the on-disk shape of a governance document.
type rulesFile struct {
	Roles map[string]RoleRules `yaml:"roles"`
}

// LoadEvaluator reads a YAML rules document and builds an evaluator.
func LoadEvaluator(path string, logger *slog.Logger) (*Evaluator, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrRulesNotFound, path)
		}
		return nil, fmt.Errorf("failed to read governance rules: %w", err)
	}
	var file rulesFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse governance rules: %w", err)
	}
	return NewEvaluator(file.Roles, logger), nil
}

// Evaluate returns the single decision for the highest-precedence matching
// bucket. A path matched by no rule is denied.
func (e *Evaluator) Evaluate(roleID string, action Action, path string) (Result, error) {
	if roleID == "" {
		return Result{}, ErrRoleRequired
	}
	if !action.IsValid() {
		return Result{}, fmt.Errorf("%w: %s", ErrInvalidAction, action)
	}
	path = strings.TrimPrefix(path, "./")
	if path == "" {
		return Result{}, ErrPathRequired
	}

	rules, ok := e.roles[roleID]
	if !ok {
		return Result{Decision: Deny, Reason: fmt.Sprintf("no rules defined for role %q", roleID)}, nil
	}

	for _, r := range rules.Deny {
		if r.applies(action, path) {
			return Result{Decision: Deny, Reason: denyReason(r)}, nil
		}
	}
	for _, r := range rules.Approve {
		if r.applies(action, path) {
			return Result{Decision: Approve, Reason: r.Reason}, nil
		}
	}
	for _, r := range rules.Allow {
		if r.applies(action, path) {
			return Result{Decision: Allow, Reason: r.Reason}, nil
		}
	}

	return Result{Decision: Deny, Reason: fmt.Sprintf("no rule matches %s for role %q", path, roleID)}, nil
}

// Check evaluates and converts a deny into a DeniedError, so callers can
// guard mutations with a single call.
func (e *Evaluator) Check(roleID string, action Action, path string) (Result, error) {
	result, err := e.Evaluate(roleID, action, path)
	if err != nil {
		return Result{}, err
	}
	if result.Decision == Deny {
		e.logger.Debug("governance denial",
			slog.String("role", roleID),
			slog.String("action", string(action)),
			slog.String("path", path))
		return result, &DeniedError{Role: roleID, Action: action, Path: path, Reason: result.Reason}
	}
	return result, nil
}

func denyReason(r Rule) string {
	if r.Reason != "" {
		return r.Reason
	}
	return fmt.Sprintf("path matches denied pattern %q", r.Pattern)
}
