package chain

import "testing"

func TestTaskStatusCanTransitionTo(t *testing.T) {
	tests := []struct {
		name string
		from TaskStatus
		to   TaskStatus
		want bool
	}{
		{"backlog to todo", TaskBacklog, TaskTodo, true},
		{"backlog to blocked", TaskBacklog, TaskBlocked, true},
		{"backlog cannot skip to in-progress", TaskBacklog, TaskInProgress, false},
		{"todo to in-progress", TaskTodo, TaskInProgress, true},
		{"todo cannot skip to in-review", TaskTodo, TaskInReview, false},
		{"in-progress to in-review", TaskInProgress, TaskInReview, true},
		{"in-progress to blocked", TaskInProgress, TaskBlocked, true},
		{"in-review to done", TaskInReview, TaskDone, true},
		{"in-review rework to in-progress", TaskInReview, TaskInProgress, true},
		{"in-review to blocked", TaskInReview, TaskBlocked, true},
		{"blocked recovers only to todo", TaskBlocked, TaskTodo, true},
		{"blocked cannot resume in-progress", TaskBlocked, TaskInProgress, false},
		{"done is terminal", TaskDone, TaskTodo, false},
		{"done cannot be blocked", TaskDone, TaskBlocked, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.from.CanTransitionTo(tt.to); got != tt.want {
				t.Errorf("%s → %s = %v, want %v", tt.from, tt.to, got, tt.want)
			}
		})
	}
}

func TestChainValidateNew(t *testing.T) {
	tests := []struct {
		name    string
		chain   Chain
		wantErr string
	}{
		{
			name:    "design chain needs no dependency",
			chain:   Chain{ID: "chain-1", RequestID: "REQ-1", Type: TypeDesign},
			wantErr: "",
		},
		{
			name:    "implementation without dependency or skip is rejected",
			chain:   Chain{ID: "chain-1", RequestID: "REQ-1", Type: TypeImplementation},
			wantErr: "depends_on",
		},
		{
			name: "skip design without justification is rejected",
			chain: Chain{
				ID: "chain-1", RequestID: "REQ-1",
				Type: TypeImplementation, SkipDesign: true,
			},
			wantErr: "skip_design_justification",
		},
		{
			name: "skip design with whitespace justification is rejected",
			chain: Chain{
				ID: "chain-1", RequestID: "REQ-1",
				Type: TypeImplementation, SkipDesign: true, SkipDesignJustification: "   ",
			},
			wantErr: "skip_design_justification",
		},
		{
			name: "skip design with justification passes",
			chain: Chain{
				ID: "chain-1", RequestID: "REQ-1",
				Type: TypeImplementation, SkipDesign: true,
				SkipDesignJustification: "trivial one-line fix",
			},
			wantErr: "",
		},
		{
			name: "implementation with dependency passes",
			chain: Chain{
				ID: "chain-1", RequestID: "REQ-1",
				Type: TypeImplementation, DependsOn: "chain-0",
			},
			wantErr: "",
		},
		{
			name:    "unknown type is rejected",
			chain:   Chain{ID: "chain-1", RequestID: "REQ-1", Type: "research"},
			wantErr: "type",
		},
		{
			name:    "missing request id is rejected",
			chain:   Chain{ID: "chain-1", Type: TypeDesign},
			wantErr: "request_id",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.chain.ValidateNew()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("expected no error, got %v", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("expected error containing %q, got nil", tt.wantErr)
			}
			ve, ok := err.(*ValidationError)
			if !ok {
				t.Fatalf("expected *ValidationError, got %T", err)
			}
			if ve.Field != tt.wantErr {
				t.Errorf("error field = %q, want %q", ve.Field, tt.wantErr)
			}
		})
	}
}
