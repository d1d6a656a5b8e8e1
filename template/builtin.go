package template

import "time"

// builtinCreatedAt pins the timestamps of compiled-in templates so that
// listing output is stable across runs.
var builtinCreatedAt = time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC)

// Builtins returns the compiled-in template catalog, keyed by name.
// Callers receive fresh deep copies and may mutate them freely.
func Builtins() map[string]*WorkflowTemplate {
	out := make(map[string]*WorkflowTemplate, len(builtinCatalog))
	for name, t := range builtinCatalog {
		out[name] = t.Clone()
	}
	return out
}

// BuiltinNames returns the names of all compiled-in templates.
func BuiltinNames() []string {
	names := make([]string, 0, len(builtinCatalog))
	for name := range builtinCatalog {
		names = append(names, name)
	}
	return names
}

var builtinCatalog = map[string]*WorkflowTemplate{
	"feature": {
		Name:        "feature",
		DisplayName: "Feature Development",
		Description: "Plan, implement in parallel chains, verify and review a feature.",
		Builtin:     true,
		Version:     1,
		CreatedAt:   builtinCreatedAt,
		UpdatedAt:   builtinCreatedAt,
		Stages: []Stage{
			{
				Name:   "intake",
				Type:   StagePlanning,
				RoleID: "planner",
				Gate:   GateSpec{Type: GateAuto},
				Hooks: Hooks{
					OnEnter: []Action{
						{Type: ActionPostMessage, Message: "Workflow created; planning started."},
					},
				},
			},
			{
				Name:   "planning",
				Type:   StagePlanning,
				RoleID: "planner",
				Gate: GateSpec{
					Type:   GateHumanApproval,
					Prompt: "Approve the proposed chain breakdown?",
				},
				Hooks: Hooks{
					OnEnter: []Action{
						{Type: ActionSpawnAgent, Role: "planner"},
					},
				},
			},
			{
				Name:   "implementation",
				Type:   StageOrchestration,
				RoleID: "implementer",
				Gate:   GateSpec{Type: GateChainComplete},
				Hooks: Hooks{
					OnExit: []Action{
						{Type: ActionEmitEvent, Event: "implementation.complete"},
					},
				},
			},
			{
				Name:   "verification",
				Type:   StageVerification,
				RoleID: "verifier",
				Gate: GateSpec{
					Type:     GateVerificationPass,
					Commands: []string{"go build ./...", "go test ./..."},
				},
			},
			{
				Name:   "review",
				Type:   StageReview,
				RoleID: "reviewer",
				Gate: GateSpec{
					Type:   GateHumanApproval,
					Prompt: "Sign off on the completed work?",
				},
				Hooks: Hooks{
					OnExit: []Action{
						// Audit bookkeeping must never hold up completion.
						{Type: ActionEmitEvent, Event: "review.signed-off", Blocking: boolPtr(false)},
					},
				},
			},
		},
	},
	"hotfix": {
		Name:        "hotfix",
		DisplayName: "Hotfix",
		Description: "Single-chain fix with verification, no planning gate.",
		Builtin:     true,
		Version:     1,
		CreatedAt:   builtinCreatedAt,
		UpdatedAt:   builtinCreatedAt,
		Stages: []Stage{
			{
				Name:   "fix",
				Type:   StageImplementation,
				RoleID: "implementer",
				Gate:   GateSpec{Type: GateChainComplete},
				Hooks: Hooks{
					OnEnter: []Action{
						{Type: ActionSpawnAgent, Role: "implementer"},
					},
				},
			},
			{
				Name:   "verification",
				Type:   StageVerification,
				RoleID: "verifier",
				Gate: GateSpec{
					Type:     GateVerificationPass,
					Commands: []string{"go test ./..."},
				},
			},
		},
	},
}

func boolPtr(b bool) *bool { return &b }
